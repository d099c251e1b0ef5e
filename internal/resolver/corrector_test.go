package resolver

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askql/backend/internal/models"
)

// scriptedExecutor returns one scripted outcome per call, in order, and
// keeps the SQL it was asked to run.
type scriptedExecutor struct {
	outcomes []execOutcome
	calls    []string
}

type execOutcome struct {
	rows    []models.Row
	failure *models.Failure
}

func (e *scriptedExecutor) Execute(_ context.Context, sql string) ([]models.Row, *models.Failure) {
	e.calls = append(e.calls, sql)
	if len(e.outcomes) == 0 {
		return nil, &models.Failure{Kind: models.FailureExecution, Message: "unscripted call"}
	}
	out := e.outcomes[0]
	e.outcomes = e.outcomes[1:]
	return out.rows, out.failure
}

type memorySink struct {
	mu      sync.Mutex
	entries []models.ErrorLogEntry
}

func (s *memorySink) Append(entry models.ErrorLogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
}

func (s *memorySink) all() []models.ErrorLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ErrorLogEntry(nil), s.entries...)
}

func aiCandidate(sql string) models.Candidate {
	return models.Candidate{SQL: sql, Source: models.SourceAI}
}

func TestCorrectorSuccessFirstTry(t *testing.T) {
	exec := &scriptedExecutor{outcomes: []execOutcome{
		{rows: []models.Row{{"n": int64(1)}}},
	}}
	sink := &memorySink{}
	c := NewCorrector(2, sink, nil)

	rows, candidate, failure := c.Run(context.Background(), "q", aiCandidate("SELECT 1;"), exec)
	require.Nil(t, failure)
	assert.Len(t, rows, 1)
	assert.False(t, candidate.Corrected)
	assert.Zero(t, candidate.Attempt)
	assert.Empty(t, sink.all())
}

func TestCorrectorRepairsAndRetries(t *testing.T) {
	exec := &scriptedExecutor{outcomes: []execOutcome{
		{failure: &models.Failure{Kind: models.FailureSyntax, Message: "bad cast"}},
		{rows: []models.Row{{"total": 5.0}}},
	}}
	sink := &memorySink{}
	corrected := 0
	c := NewCorrector(2, sink, func() { corrected++ })

	rows, candidate, failure := c.Run(context.Background(), "q",
		aiCandidate("SELECT CAST(price * qty ) AS total FROM order_items;"), exec)

	require.Nil(t, failure)
	assert.Len(t, rows, 1)
	assert.True(t, candidate.Corrected)
	assert.Equal(t, 1, candidate.Attempt)
	assert.Equal(t, models.SourceAI, candidate.Source)
	assert.Equal(t, 1, corrected)

	// The failed execution was logged before the repair ran.
	entries := sink.all()
	require.Len(t, entries, 1)
	assert.Equal(t, models.FailureSyntax, entries[0].Kind)

	require.Len(t, exec.calls, 2)
	assert.Contains(t, exec.calls[1], "AS DECIMAL(10,2)")
}

func TestCorrectorExhaustsAfterMaxAttempts(t *testing.T) {
	// Repairable failure every time: paren balance keeps "fixing" it.
	failing := &models.Failure{Kind: models.FailureSyntax, Message: "syntax"}
	exec := &scriptedExecutor{outcomes: []execOutcome{
		{failure: failing},
		{failure: failing},
		{failure: failing},
	}}
	sink := &memorySink{}
	c := NewCorrector(2, sink, nil)

	rows, candidate, failure := c.Run(context.Background(), "q",
		aiCandidate("SELECT SUM(x FROM t;"), exec)

	require.NotNil(t, failure)
	assert.Nil(t, rows)
	assert.Equal(t, models.FailureSyntax, failure.Kind)
	// Initial run plus at most two corrected runs.
	assert.LessOrEqual(t, len(exec.calls), 3)
	assert.Equal(t, len(exec.calls), len(sink.all()))
	assert.LessOrEqual(t, candidate.Attempt, 2)
}

func TestCorrectorUnrepairableKindExhaustsImmediately(t *testing.T) {
	exec := &scriptedExecutor{outcomes: []execOutcome{
		{failure: &models.Failure{Kind: models.FailureTimeout, Message: "deadline"}},
	}}
	sink := &memorySink{}
	c := NewCorrector(2, sink, nil)

	_, _, failure := c.Run(context.Background(), "q", aiCandidate("SELECT 1;"), exec)
	require.NotNil(t, failure)
	assert.Equal(t, models.FailureTimeout, failure.Kind)
	assert.Len(t, exec.calls, 1)
	assert.Len(t, sink.all(), 1)
}
