package resolver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askql/backend/internal/heuristic"
	"github.com/askql/backend/internal/models"
	"github.com/askql/backend/internal/shaper"
)

type fakeGenerator struct {
	sql string
	err error
}

func (g *fakeGenerator) GenerateSQL(_ context.Context, _ string, _ *models.SchemaContext) (models.Candidate, error) {
	if g.err != nil {
		return models.Candidate{Source: models.SourceAI}, g.err
	}
	return models.Candidate{SQL: g.sql, Source: models.SourceAI}, nil
}

type fakeProvider struct {
	ctx models.SchemaContext
}

func (p *fakeProvider) ContextFor(_ context.Context, _ string) *models.SchemaContext {
	return &p.ctx
}

type fakeHistory struct {
	records []models.QueryRecord
}

func (h *fakeHistory) InsertQueryRecord(_ context.Context, record models.QueryRecord) error {
	h.records = append(h.records, record)
	return nil
}

type fakeExamples struct {
	stored [][2]string
}

func (e *fakeExamples) StoreExample(_ context.Context, question, sql string) error {
	e.stored = append(e.stored, [2]string{question, sql})
	return nil
}

type fixture struct {
	resolver *Resolver
	exec     *scriptedExecutor
	sink     *memorySink
	history  *fakeHistory
	examples *fakeExamples
	learning *LearningStore
	cache    *ResultCache
}

func newFixture(gen Generator, exec *scriptedExecutor) *fixture {
	sink := &memorySink{}
	learning := NewLearningStore()
	cache := NewResultCache(time.Minute, 100)
	history := &fakeHistory{}
	examples := &fakeExamples{}

	r := New(Options{
		Generator: gen,
		Executor:  exec,
		Provider:  &fakeProvider{},
		Fallback:  heuristic.NewGenerator(),
		Shaper:    shaper.NewShaper(),
		Corrector: NewCorrector(2, sink, learning.RecordCorrection),
		Cache:     cache,
		Learning:  learning,
		ErrorLog:  sink,
		History:   history,
		Examples:  examples,
	})

	return &fixture{resolver: r, exec: exec, sink: sink, history: history, examples: examples, learning: learning, cache: cache}
}

func TestResolveAISuccess(t *testing.T) {
	exec := &scriptedExecutor{outcomes: []execOutcome{
		{rows: []models.Row{{"product": "Widget", "revenue": 99.0}}},
	}}
	f := newFixture(&fakeGenerator{sql: "SELECT p.name AS product FROM products p;"}, exec)

	result := f.resolver.Resolve(context.Background(), "top products by revenue")

	assert.True(t, result.Succeeded)
	assert.Equal(t, models.SourceAI, result.Source)
	assert.False(t, result.Corrected)
	assert.Nil(t, result.Failure)
	assert.Len(t, result.Rows, 1)
	assert.NotEmpty(t, result.ID)
	assert.NotEmpty(t, result.Suggestions)

	require.NotNil(t, result.Chart)
	assert.Equal(t, models.ChartBar, result.Chart.Kind)

	// Successful AI resolutions are stored as examples and in history.
	require.Len(t, f.examples.stored, 1)
	assert.Equal(t, "top products by revenue", f.examples.stored[0][0])
	require.Len(t, f.history.records, 1)
	assert.True(t, f.history.records[0].Succeeded)

	summary := f.learning.Summary()
	assert.Equal(t, 1, summary.TotalResolved)
	assert.Equal(t, 1, summary.BySource[models.SourceAI].Total)
	assert.Equal(t, 1, summary.BySource[models.SourceAI].Successful)
	assert.Equal(t, 1.0, summary.BySource[models.SourceAI].Accuracy)
}

func TestResolveAICorrectedReportsAISource(t *testing.T) {
	exec := &scriptedExecutor{outcomes: []execOutcome{
		{failure: &models.Failure{Kind: models.FailureSyntax, Message: "bad cast"}},
		{rows: []models.Row{{"total": 10.0}}},
	}}
	f := newFixture(&fakeGenerator{sql: "SELECT CAST(price * qty ) AS total FROM order_items;"}, exec)

	result := f.resolver.Resolve(context.Background(), "total order value")

	assert.True(t, result.Succeeded)
	assert.Equal(t, models.SourceAI, result.Source)
	assert.True(t, result.Corrected)
	assert.Equal(t, 1, f.learning.Summary().Corrections)
	assert.Equal(t, 1, f.learning.Summary().BySource[models.SourceAI].Successful)
	assert.Len(t, f.sink.all(), 1)
}

func TestResolveFallsBackToHeuristic(t *testing.T) {
	// AI candidate fails with an unrepairable kind; the heuristic query then
	// succeeds.
	exec := &scriptedExecutor{outcomes: []execOutcome{
		{failure: &models.Failure{Kind: models.FailureExecution, Message: "table gone"}},
		{rows: []models.Row{{"month": "2024-01", "total_sales": 5.0}}},
	}}
	f := newFixture(&fakeGenerator{sql: "SELECT broken FROM nowhere;"}, exec)

	result := f.resolver.Resolve(context.Background(), "monthly sales")

	assert.True(t, result.Succeeded)
	assert.Equal(t, models.SourceHeuristic, result.Source)
	assert.Nil(t, result.Failure)
	require.NotNil(t, result.Chart)
	assert.Equal(t, models.ChartLine, result.Chart.Kind)

	// Heuristic successes are not stored as AI examples.
	assert.Empty(t, f.examples.stored)

	// The heuristic is the winning source; the failed AI candidate does
	// not appear in the source totals.
	summary := f.learning.Summary()
	assert.Equal(t, 1, summary.TotalResolved)
	assert.Equal(t, 0, summary.BySource[models.SourceAI].Total)
	assert.Equal(t, 1, summary.BySource[models.SourceHeuristic].Successful)
}

func TestResolveGenerationErrorFallsBack(t *testing.T) {
	exec := &scriptedExecutor{outcomes: []execOutcome{
		{rows: []models.Row{{"status": "SHIPPED", "order_count": int64(3)}}},
	}}
	f := newFixture(&fakeGenerator{err: errors.New("model unavailable")}, exec)

	result := f.resolver.Resolve(context.Background(), "orders by status")

	assert.True(t, result.Succeeded)
	assert.Equal(t, models.SourceHeuristic, result.Source)

	entries := f.sink.all()
	require.Len(t, entries, 1)
	assert.Equal(t, models.FailureGeneration, entries[0].Kind)
}

func TestResolveTerminalFailure(t *testing.T) {
	// Both the AI candidate and the heuristic fallback fail.
	failure := &models.Failure{Kind: models.FailureExecution, Message: "db down"}
	exec := &scriptedExecutor{outcomes: []execOutcome{
		{failure: failure},
		{failure: failure},
	}}
	f := newFixture(&fakeGenerator{sql: "SELECT 1;"}, exec)

	result := f.resolver.Resolve(context.Background(), "anything")

	assert.False(t, result.Succeeded)
	require.NotNil(t, result.Failure)
	assert.Equal(t, models.FailureHeuristicExhausted, result.Failure.Kind)
	assert.Empty(t, result.Rows)
	assert.Nil(t, result.Chart)

	// Failed resolutions never enter the cache.
	assert.Zero(t, f.cache.Len())

	summary := f.learning.Summary()
	assert.Equal(t, 1, summary.BySource[models.SourceHeuristic].Total)
	assert.Equal(t, 0, summary.BySource[models.SourceHeuristic].Successful)

	// Both failed executions were logged.
	assert.Len(t, f.sink.all(), 2)
}

func TestResolveCacheHit(t *testing.T) {
	exec := &scriptedExecutor{outcomes: []execOutcome{
		{rows: []models.Row{{"product": "Widget", "revenue": 99.0}}},
	}}
	f := newFixture(&fakeGenerator{sql: "SELECT 1;"}, exec)

	first := f.resolver.Resolve(context.Background(), "Top products by revenue")
	require.True(t, first.Succeeded)
	assert.Equal(t, models.SourceAI, first.Source)

	second := f.resolver.Resolve(context.Background(), "top products BY revenue")
	assert.True(t, second.Succeeded)
	assert.Equal(t, models.SourceCache, second.Source)
	assert.Equal(t, first.SQL, second.SQL)
	assert.Equal(t, first.Category, second.Category)
	assert.Equal(t, first.Chart, second.Chart)
	assert.NotEqual(t, first.ID, second.ID)

	// The executor ran only once, and both requests are counted.
	assert.Len(t, f.exec.calls, 1)

	summary := f.learning.Summary()
	assert.Equal(t, 2, summary.TotalResolved)
	assert.Equal(t, 1, summary.BySource[models.SourceCache].Total)
	assert.Equal(t, 1, summary.BySource[models.SourceAI].Total)
}

func TestResolveEmptyRowsNotCountedAsSuccess(t *testing.T) {
	exec := &scriptedExecutor{outcomes: []execOutcome{
		{rows: []models.Row{}},
	}}
	f := newFixture(&fakeGenerator{sql: "SELECT 1 WHERE 1 = 0;"}, exec)

	result := f.resolver.Resolve(context.Background(), "orders from the future")

	assert.False(t, result.Succeeded)
	assert.Nil(t, result.Failure)
	assert.Empty(t, result.Rows)
	assert.Nil(t, result.Chart)

	// Empty results are valid output but are neither cached nor counted
	// as successes.
	assert.Zero(t, f.cache.Len())
	summary := f.learning.Summary()
	assert.Equal(t, 1, summary.BySource[models.SourceAI].Total)
	assert.Equal(t, 0, summary.BySource[models.SourceAI].Successful)
}
