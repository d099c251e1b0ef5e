package resolver

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/askql/backend/internal/models"
	"github.com/askql/backend/pkg/logger"
)

// Generator produces a SQL candidate for a question using retrieved schema
// context.
type Generator interface {
	GenerateSQL(ctx context.Context, question string, schemaCtx *models.SchemaContext) (models.Candidate, error)
}

// Executor validates and runs SQL, classifying anything that goes wrong.
type Executor interface {
	Execute(ctx context.Context, sql string) ([]models.Row, *models.Failure)
}

// ContextProvider retrieves schema fragments and similar past questions.
// It degrades to an empty context rather than failing.
type ContextProvider interface {
	ContextFor(ctx context.Context, question string) *models.SchemaContext
}

// Fallback produces deterministic SQL when the AI path is exhausted.
type Fallback interface {
	Generate(question string) models.Candidate
}

// Shaper classifies the question and shapes the rows for presentation.
type Shaper interface {
	Categorize(question string) (models.Category, float64)
	Chart(rows []models.Row) *models.ChartSpec
	Suggestions(category models.Category) []string
	RelatedQuestions(question string, examples []models.QueryExample) []string
}

// ErrorSink receives one entry per failed generation or execution.
type ErrorSink interface {
	Append(entry models.ErrorLogEntry)
}

// HistoryStore persists resolved requests.
type HistoryStore interface {
	InsertQueryRecord(ctx context.Context, record models.QueryRecord) error
}

// ExampleStore receives successful question/SQL pairs for future retrieval.
type ExampleStore interface {
	StoreExample(ctx context.Context, question, sql string) error
}

type Resolver struct {
	generator Generator
	executor  Executor
	provider  ContextProvider
	fallback  Fallback
	shaper    Shaper
	corrector *Corrector
	cache     *ResultCache
	learning  *LearningStore
	errlog    ErrorSink
	history   HistoryStore
	examples  ExampleStore
	metrics   Metrics
}

// Metrics receives resolution outcomes for export. A nil-safe no-op
// implementation is acceptable.
type Metrics interface {
	ObserveResolution(source models.Source, succeeded bool, duration time.Duration)
	ObserveCache(hit bool)
}

type Options struct {
	Generator Generator
	Executor  Executor
	Provider  ContextProvider
	Fallback  Fallback
	Shaper    Shaper
	Corrector *Corrector
	Cache     *ResultCache
	Learning  *LearningStore
	ErrorLog  ErrorSink
	History   HistoryStore
	Examples  ExampleStore
	Metrics   Metrics
}

func New(opts Options) *Resolver {
	return &Resolver{
		generator: opts.Generator,
		executor:  opts.Executor,
		provider:  opts.Provider,
		fallback:  opts.Fallback,
		shaper:    opts.Shaper,
		corrector: opts.Corrector,
		cache:     opts.Cache,
		learning:  opts.Learning,
		errlog:    opts.ErrorLog,
		history:   opts.History,
		examples:  opts.Examples,
		metrics:   opts.Metrics,
	}
}

// Resolve answers a natural language question. The pipeline is: cache,
// AI generation with retrieved context, bounded self-correction, heuristic
// fallback. Only a failure on the heuristic path surfaces to the caller;
// every intermediate failure is logged and absorbed.
func (r *Resolver) Resolve(ctx context.Context, question string) *models.Result {
	start := time.Now()

	if cached, ok := r.cache.Get(question); ok {
		r.learning.Record(cached.Category, models.SourceCache, cached.Succeeded)
		if r.metrics != nil {
			r.metrics.ObserveCache(true)
			r.metrics.ObserveResolution(models.SourceCache, true, time.Since(start))
		}
		cached.ID = uuid.New().String()
		cached.LatencyMS = int(time.Since(start).Milliseconds())
		logger.Info("Cache hit", zap.String("question", question))
		return cached
	}
	if r.metrics != nil {
		r.metrics.ObserveCache(false)
	}

	result := &models.Result{
		ID:       uuid.New().String(),
		Question: question,
	}

	schemaCtx := r.provider.ContextFor(ctx, question)

	rows, candidate, failure := r.resolveAI(ctx, question, schemaCtx)
	if failure != nil {
		rows, candidate, failure = r.resolveHeuristic(ctx, question)
	}

	result.SQL = candidate.SQL
	result.Source = candidate.Source
	result.Corrected = candidate.Corrected
	result.Failure = failure
	result.Rows = rows

	// Succeeded requires both a clean execution and at least one row; an
	// empty result set is valid output but does not count as a success.
	result.Succeeded = failure == nil && len(rows) > 0

	category, confidence := r.shaper.Categorize(question)
	result.Category = category
	result.CategoryConfidence = confidence
	result.Chart = r.shaper.Chart(result.Rows)
	result.Suggestions = r.shaper.Suggestions(category)
	if schemaCtx != nil {
		result.RelatedQuestions = r.shaper.RelatedQuestions(question, schemaCtx.SimilarExamples)
	}

	result.LatencyMS = int(time.Since(start).Milliseconds())

	r.learning.Record(category, result.Source, result.Succeeded)

	if result.Succeeded {
		r.cache.Put(question, *result)
		if candidate.Source == models.SourceAI && r.examples != nil {
			if err := r.examples.StoreExample(ctx, question, candidate.SQL); err != nil {
				logger.Warn("Failed to store example", zap.Error(err))
			}
		}
	}

	r.persist(ctx, result)

	if r.metrics != nil {
		r.metrics.ObserveResolution(result.Source, result.Succeeded, time.Since(start))
	}

	logger.Info("Question resolved",
		zap.String("id", result.ID),
		zap.String("source", string(result.Source)),
		zap.Bool("succeeded", result.Succeeded),
		zap.Bool("corrected", result.Corrected),
		zap.Int("rows", len(result.Rows)),
		zap.Int("latency_ms", result.LatencyMS),
	)

	return result
}

func (r *Resolver) resolveAI(ctx context.Context, question string, schemaCtx *models.SchemaContext) ([]models.Row, models.Candidate, *models.Failure) {
	candidate, err := r.generator.GenerateSQL(ctx, question, schemaCtx)
	if err != nil {
		failure := &models.Failure{Kind: models.FailureGeneration, Message: err.Error()}
		if r.errlog != nil {
			r.errlog.Append(models.ErrorLogEntry{
				Timestamp: time.Now().UTC(),
				Kind:      failure.Kind,
				Question:  question,
				Message:   failure.Message,
				Source:    models.SourceAI,
			})
		}
		logger.Warn("AI generation failed", zap.String("question", question), zap.Error(err))
		return nil, models.Candidate{Source: models.SourceAI}, failure
	}

	return r.corrector.Run(ctx, question, candidate, r.executor)
}

func (r *Resolver) resolveHeuristic(ctx context.Context, question string) ([]models.Row, models.Candidate, *models.Failure) {
	candidate := r.fallback.Generate(question)

	rows, candidate, failure := r.corrector.Run(ctx, question, candidate, r.executor)
	if failure != nil {
		failure = &models.Failure{
			Kind:    models.FailureHeuristicExhausted,
			Message: "all resolution strategies failed: " + failure.Message,
			SQL:     candidate.SQL,
		}
	}
	return rows, candidate, failure
}

func (r *Resolver) persist(ctx context.Context, result *models.Result) {
	if r.history == nil {
		return
	}
	record := models.QueryRecord{
		ID:        result.ID,
		Question:  result.Question,
		SQL:       result.SQL,
		Source:    result.Source,
		Category:  result.Category,
		Corrected: result.Corrected,
		Succeeded: result.Succeeded,
		RowCount:  len(result.Rows),
		LatencyMS: result.LatencyMS,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.history.InsertQueryRecord(ctx, record); err != nil {
		logger.Warn("Failed to persist query record", zap.Error(err))
	}
}

// Learning exposes the accuracy counters for the metrics endpoint.
func (r *Resolver) Learning() LearningSummary {
	return r.learning.Summary()
}
