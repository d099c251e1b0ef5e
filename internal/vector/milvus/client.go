package milvus

import (
	"context"
	"fmt"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/askql/backend/internal/models"
	"github.com/askql/backend/pkg/config"
	"github.com/askql/backend/pkg/logger"
)

// Client wraps two collections: schema fragments describing tables, and
// previously answered question/SQL pairs. Both are searched by embedding
// at resolution time.
type Client struct {
	client            client.Client
	schemaCollection  string
	exampleCollection string
	vectorDim         int
}

func NewClient(ctx context.Context, cfg config.MilvusConfig) (*Client, error) {
	c, err := client.NewGrpcClient(ctx, cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	m := &Client{
		client:            c,
		schemaCollection:  cfg.SchemaCollection,
		exampleCollection: cfg.ExampleCollection,
		vectorDim:         cfg.VectorDim,
	}

	logger.Info("Milvus client initialized",
		zap.String("endpoint", cfg.Endpoint),
		zap.String("schema_collection", cfg.SchemaCollection),
		zap.String("example_collection", cfg.ExampleCollection),
	)

	return m, nil
}

func (m *Client) Close() error {
	return m.client.Close()
}

// EnsureCollections creates and loads both collections if they do not
// already exist.
func (m *Client) EnsureCollections(ctx context.Context) error {
	if err := m.ensureCollection(ctx, m.schemaCollection, m.schemaFields()); err != nil {
		return err
	}
	return m.ensureCollection(ctx, m.exampleCollection, m.exampleFields())
}

func (m *Client) schemaFields() []*entity.Field {
	return []*entity.Field{
		{
			Name:       "fragment_id",
			DataType:   entity.FieldTypeVarChar,
			PrimaryKey: true,
			AutoID:     false,
			TypeParams: map[string]string{"max_length": "64"},
		},
		{
			Name:       "embedding",
			DataType:   entity.FieldTypeFloatVector,
			TypeParams: map[string]string{"dim": fmt.Sprintf("%d", m.vectorDim)},
		},
		{
			Name:       "table_name",
			DataType:   entity.FieldTypeVarChar,
			TypeParams: map[string]string{"max_length": "256"},
		},
		{
			Name:       "description",
			DataType:   entity.FieldTypeVarChar,
			TypeParams: map[string]string{"max_length": "4096"},
		},
		{
			Name:       "columns",
			DataType:   entity.FieldTypeVarChar,
			TypeParams: map[string]string{"max_length": "4096"},
		},
	}
}

func (m *Client) exampleFields() []*entity.Field {
	return []*entity.Field{
		{
			Name:       "example_id",
			DataType:   entity.FieldTypeVarChar,
			PrimaryKey: true,
			AutoID:     false,
			TypeParams: map[string]string{"max_length": "64"},
		},
		{
			Name:       "embedding",
			DataType:   entity.FieldTypeFloatVector,
			TypeParams: map[string]string{"dim": fmt.Sprintf("%d", m.vectorDim)},
		},
		{
			Name:       "question",
			DataType:   entity.FieldTypeVarChar,
			TypeParams: map[string]string{"max_length": "2048"},
		},
		{
			Name:       "sql_text",
			DataType:   entity.FieldTypeVarChar,
			TypeParams: map[string]string{"max_length": "8192"},
		},
	}
}

func (m *Client) ensureCollection(ctx context.Context, name string, fields []*entity.Field) error {
	has, err := m.client.HasCollection(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to check collection %s: %w", name, err)
	}

	if !has {
		schema := &entity.Schema{
			CollectionName: name,
			Fields:         fields,
		}
		if err := m.client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
			return fmt.Errorf("failed to create collection %s: %w", name, err)
		}

		idx, _ := entity.NewIndexIvfFlat(entity.L2, 1024)
		if err := m.client.CreateIndex(ctx, name, "embedding", idx, false); err != nil {
			return fmt.Errorf("failed to create index on %s: %w", name, err)
		}

		logger.Info("Collection created", zap.String("collection", name))
	}

	if err := m.client.LoadCollection(ctx, name, false); err != nil {
		return fmt.Errorf("failed to load collection %s: %w", name, err)
	}
	return nil
}

// InsertSchemaFragment stores one table description with its embedding.
// The fragment id is the table name, so re-indexing upserts in place.
func (m *Client) InsertSchemaFragment(ctx context.Context, fragment models.SchemaFragment, embedding []float32) error {
	_, err := m.client.Insert(ctx, m.schemaCollection, "",
		entity.NewColumnVarChar("fragment_id", []string{fragment.Table}),
		entity.NewColumnFloatVector("embedding", m.vectorDim, [][]float32{embedding}),
		entity.NewColumnVarChar("table_name", []string{fragment.Table}),
		entity.NewColumnVarChar("description", []string{fragment.Description}),
		entity.NewColumnVarChar("columns", []string{strings.Join(fragment.Columns, ",")}),
	)
	if err != nil {
		return fmt.Errorf("failed to insert schema fragment: %w", err)
	}

	if err := m.client.Flush(ctx, m.schemaCollection, false); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}
	return nil
}

// InsertExample stores a successfully answered question and its SQL.
func (m *Client) InsertExample(ctx context.Context, id, question, sql string, embedding []float32) error {
	_, err := m.client.Insert(ctx, m.exampleCollection, "",
		entity.NewColumnVarChar("example_id", []string{id}),
		entity.NewColumnFloatVector("embedding", m.vectorDim, [][]float32{embedding}),
		entity.NewColumnVarChar("question", []string{question}),
		entity.NewColumnVarChar("sql_text", []string{sql}),
	)
	if err != nil {
		return fmt.Errorf("failed to insert example: %w", err)
	}
	return nil
}

// SearchSchema returns the topK schema fragments closest to the embedding.
func (m *Client) SearchSchema(ctx context.Context, queryEmbedding []float32, topK int) ([]models.SchemaFragment, error) {
	searchResult, err := m.search(ctx, m.schemaCollection, queryEmbedding, topK,
		[]string{"table_name", "description", "columns"})
	if err != nil {
		return nil, err
	}

	results := make([]models.SchemaFragment, 0)
	for _, sr := range searchResult {
		for i := 0; i < sr.ResultCount; i++ {
			tableCol := sr.Fields.GetColumn("table_name")
			descCol := sr.Fields.GetColumn("description")
			columnsCol := sr.Fields.GetColumn("columns")

			table, _ := tableCol.Get(i)
			desc, _ := descCol.Get(i)
			columns, _ := columnsCol.Get(i)

			fragment := models.SchemaFragment{
				Table:       table.(string),
				Description: desc.(string),
				Score:       sr.Scores[i],
			}
			if joined := columns.(string); joined != "" {
				fragment.Columns = strings.Split(joined, ",")
			}
			results = append(results, fragment)
		}
	}

	return results, nil
}

// SearchExamples returns the topK stored questions closest to the embedding.
func (m *Client) SearchExamples(ctx context.Context, queryEmbedding []float32, topK int) ([]models.QueryExample, error) {
	searchResult, err := m.search(ctx, m.exampleCollection, queryEmbedding, topK,
		[]string{"question", "sql_text"})
	if err != nil {
		return nil, err
	}

	results := make([]models.QueryExample, 0)
	for _, sr := range searchResult {
		for i := 0; i < sr.ResultCount; i++ {
			questionCol := sr.Fields.GetColumn("question")
			sqlCol := sr.Fields.GetColumn("sql_text")

			question, _ := questionCol.Get(i)
			sqlText, _ := sqlCol.Get(i)

			results = append(results, models.QueryExample{
				Question: question.(string),
				SQL:      sqlText.(string),
				Score:    sr.Scores[i],
			})
		}
	}

	return results, nil
}

func (m *Client) search(ctx context.Context, collection string, queryEmbedding []float32, topK int, outputFields []string) ([]client.SearchResult, error) {
	sp, _ := entity.NewIndexIvfFlatSearchParam(16)

	searchResult, err := m.client.Search(
		ctx,
		collection,
		[]string{},
		"",
		outputFields,
		[]entity.Vector{entity.FloatVector(queryEmbedding)},
		"embedding",
		entity.L2,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", collection, err)
	}
	return searchResult, nil
}
