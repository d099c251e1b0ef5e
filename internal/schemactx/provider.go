package schemactx

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/askql/backend/internal/models"
	"github.com/askql/backend/pkg/config"
	"github.com/askql/backend/pkg/logger"
	"github.com/askql/backend/pkg/utils"
)

const embeddingCacheTTL = 24 * time.Hour

// Embedder produces a vector for a piece of text.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// Index searches the two vector collections.
type Index interface {
	SearchSchema(ctx context.Context, embedding []float32, topK int) ([]models.SchemaFragment, error)
	SearchExamples(ctx context.Context, embedding []float32, topK int) ([]models.QueryExample, error)
}

// Provider retrieves the schema fragments and similar past questions used
// to ground SQL generation. Retrieval is best effort: any failure along
// the way degrades to an empty context instead of propagating.
type Provider struct {
	embedder     Embedder
	index        Index
	redis        *redis.Client
	fragmentsTop int
	examplesTop  int
}

func NewProvider(embedder Embedder, index Index, redisClient *redis.Client, cfg config.MilvusConfig) *Provider {
	fragmentsTop := cfg.SchemaFragmentsTop
	if fragmentsTop <= 0 {
		fragmentsTop = 5
	}
	examplesTop := cfg.SimilarExamplesTop
	if examplesTop <= 0 {
		examplesTop = 3
	}

	return &Provider{
		embedder:     embedder,
		index:        index,
		redis:        redisClient,
		fragmentsTop: fragmentsTop,
		examplesTop:  examplesTop,
	}
}

func (p *Provider) ContextFor(ctx context.Context, question string) *models.SchemaContext {
	empty := &models.SchemaContext{}
	if p == nil || p.index == nil || p.embedder == nil {
		return empty
	}

	embedding, err := p.embed(ctx, question)
	if err != nil {
		logger.Warn("Failed to embed question, proceeding without context",
			zap.String("question", question),
			zap.Error(err),
		)
		return empty
	}

	result := &models.SchemaContext{}

	fragments, err := p.index.SearchSchema(ctx, embedding, p.fragmentsTop)
	if err != nil {
		logger.Warn("Schema fragment search failed", zap.Error(err))
	} else {
		result.SchemaFragments = fragments
	}

	examples, err := p.index.SearchExamples(ctx, embedding, p.examplesTop)
	if err != nil {
		logger.Warn("Similar example search failed", zap.Error(err))
	} else {
		result.SimilarExamples = examples
	}

	logger.Debug("Schema context retrieved",
		zap.Int("fragments", len(result.SchemaFragments)),
		zap.Int("examples", len(result.SimilarExamples)),
	)
	return result
}

// embed returns the question embedding, served from Redis when available.
func (p *Provider) embed(ctx context.Context, question string) ([]float32, error) {
	key := fmt.Sprintf("embedding:%s", utils.HashString(models.NormalizeQuestion(question)))

	if p.redis != nil {
		if data, err := p.redis.Get(ctx, key).Bytes(); err == nil {
			var embedding []float32
			if err := json.Unmarshal(data, &embedding); err == nil && len(embedding) > 0 {
				return embedding, nil
			}
		}
	}

	embedding, err := p.embedder.GenerateEmbedding(ctx, question)
	if err != nil {
		return nil, err
	}

	if p.redis != nil {
		if data, err := json.Marshal(embedding); err == nil {
			if err := p.redis.Set(ctx, key, data, embeddingCacheTTL).Err(); err != nil {
				logger.Warn("Failed to cache embedding", zap.Error(err))
			}
		}
	}

	return embedding, nil
}
