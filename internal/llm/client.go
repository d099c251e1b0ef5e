package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/askql/backend/internal/corrections"
	"github.com/askql/backend/internal/models"
	"github.com/askql/backend/pkg/circuitbreaker"
	"github.com/askql/backend/pkg/config"
	"github.com/askql/backend/pkg/logger"
	"github.com/askql/backend/pkg/retry"
)

const systemPrompt = `You are a MySQL analyst for a retail sales database.
Generate exactly one SELECT statement answering the user's question.

Rules:
- MySQL dialect only. Use DATE_SUB(CURDATE(), INTERVAL n MONTH) for time windows, DATE_FORMAT for month buckets, CONCAT(YEAR(d), '-Q', QUARTER(d)) for quarters.
- Order totals are computed from order_items: SUM(oi.qty * oi.unit_price * (1 - oi.discount_pct/100)). The orders table has no total column.
- Exclude cancelled orders from revenue figures.
- Alias every aggregate. Always include a LIMIT for row-level listings.
- Return only SQL, no explanation, no markdown.`

type Client struct {
	api         *openai.Client
	model       string
	embedding   string
	temperature float32
	maxTokens   int
	timeout     time.Duration
	breaker     *circuitbreaker.CircuitBreaker
	retryCfg    retry.Config
}

func NewClient(cfg config.LLMConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		api:         openai.NewClient(cfg.APIKey),
		model:       cfg.Model,
		embedding:   cfg.EmbeddingModel,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     timeout,
		breaker: circuitbreaker.NewCircuitBreaker("openai", circuitbreaker.Config{
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Timeout:          30 * time.Second,
			Logger:           logger.GetLogger(),
		}),
		retryCfg: retry.Config{
			MaxAttempts:  3,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     5 * time.Second,
			Multiplier:   2.0,
			Logger:       logger.GetLogger(),
		},
	}
}

// GenerateSQL asks the model for a SELECT statement grounded on the
// retrieved schema context. The response is sanitized and must be a
// SELECT; anything else is a generation error.
func (c *Client) GenerateSQL(ctx context.Context, question string, schemaCtx *models.SchemaContext) (models.Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	prompt := buildPrompt(question, schemaCtx)

	var resp openai.ChatCompletionResponse
	err := c.breaker.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryCfg, func() error {
			var callErr error
			resp, callErr = c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
				Model:       c.model,
				Temperature: c.temperature,
				MaxTokens:   c.maxTokens,
				Messages: []openai.ChatCompletionMessage{
					{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
					{Role: openai.ChatMessageRoleUser, Content: prompt},
				},
			})
			return callErr
		})
	})
	if err != nil {
		return models.Candidate{Source: models.SourceAI}, fmt.Errorf("chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return models.Candidate{Source: models.SourceAI}, fmt.Errorf("chat completion returned no choices")
	}

	sql := corrections.Sanitize(resp.Choices[0].Message.Content)
	if !strings.HasPrefix(strings.ToUpper(sql), "SELECT") {
		return models.Candidate{Source: models.SourceAI}, fmt.Errorf("model did not return a SELECT statement")
	}

	logger.Debug("AI SQL generated",
		zap.String("question", question),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)

	return models.Candidate{SQL: sql, Source: models.SourceAI}, nil
}

// GenerateEmbedding embeds text for similarity search.
func (c *Client) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var resp openai.EmbeddingResponse
	err := c.breaker.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryCfg, func() error {
			var callErr error
			resp, callErr = c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
				Model: openai.EmbeddingModel(c.embedding),
				Input: []string{text},
			})
			return callErr
		})
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding response is empty")
	}

	return resp.Data[0].Embedding, nil
}

func buildPrompt(question string, schemaCtx *models.SchemaContext) string {
	var b strings.Builder

	if !schemaCtx.Empty() {
		if len(schemaCtx.SchemaFragments) > 0 {
			b.WriteString("Relevant schema:\n")
			for _, fragment := range schemaCtx.SchemaFragments {
				fmt.Fprintf(&b, "- %s(%s): %s\n", fragment.Table, strings.Join(fragment.Columns, ", "), fragment.Description)
			}
			b.WriteString("\n")
		}

		examples := schemaCtx.SimilarExamples
		if len(examples) > 3 {
			examples = examples[:3]
		}
		if len(examples) > 0 {
			b.WriteString("Similar past questions:\n")
			for _, ex := range examples {
				fmt.Fprintf(&b, "Q: %s\nSQL: %s\n", ex.Question, ex.SQL)
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("Question: ")
	b.WriteString(question)
	return b.String()
}
