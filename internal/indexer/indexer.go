package indexer

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/askql/backend/internal/models"
	"github.com/askql/backend/pkg/logger"
)

// SchemaSource describes the connected database.
type SchemaSource interface {
	DescribeSchema(ctx context.Context) ([]models.SchemaFragment, error)
}

// Embedder produces vectors for text.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// Index stores fragments and examples.
type Index interface {
	InsertSchemaFragment(ctx context.Context, fragment models.SchemaFragment, embedding []float32) error
	InsertExample(ctx context.Context, id, question, sql string, embedding []float32) error
}

// Indexer pushes database schema metadata and answered questions into the
// vector store. It runs once at startup and then incrementally as
// questions succeed.
type Indexer struct {
	source   SchemaSource
	embedder Embedder
	index    Index
}

func New(source SchemaSource, embedder Embedder, index Index) *Indexer {
	return &Indexer{source: source, embedder: embedder, index: index}
}

// IndexSchema embeds every table description and stores it. Individual
// table failures are logged and skipped so one bad fragment cannot block
// startup.
func (ix *Indexer) IndexSchema(ctx context.Context) error {
	fragments, err := ix.source.DescribeSchema(ctx)
	if err != nil {
		return fmt.Errorf("failed to describe schema: %w", err)
	}

	indexed := 0
	for _, fragment := range fragments {
		embedding, err := ix.embedder.GenerateEmbedding(ctx, fragmentText(fragment))
		if err != nil {
			logger.Warn("Failed to embed schema fragment",
				zap.String("table", fragment.Table),
				zap.Error(err),
			)
			continue
		}

		if err := ix.index.InsertSchemaFragment(ctx, fragment, embedding); err != nil {
			logger.Warn("Failed to index schema fragment",
				zap.String("table", fragment.Table),
				zap.Error(err),
			)
			continue
		}
		indexed++
	}

	logger.Info("Schema indexed",
		zap.Int("tables", len(fragments)),
		zap.Int("indexed", indexed),
	)
	return nil
}

// StoreExample embeds a successfully answered question and stores it with
// its SQL for future retrieval.
func (ix *Indexer) StoreExample(ctx context.Context, question, sql string) error {
	embedding, err := ix.embedder.GenerateEmbedding(ctx, models.NormalizeQuestion(question))
	if err != nil {
		return fmt.Errorf("failed to embed question: %w", err)
	}

	if err := ix.index.InsertExample(ctx, uuid.New().String(), question, sql, embedding); err != nil {
		return fmt.Errorf("failed to store example: %w", err)
	}
	return nil
}

func fragmentText(fragment models.SchemaFragment) string {
	text := fmt.Sprintf("table %s columns %s", fragment.Table, strings.Join(fragment.Columns, ", "))
	if fragment.Description != "" {
		text += " " + fragment.Description
	}
	return text
}
