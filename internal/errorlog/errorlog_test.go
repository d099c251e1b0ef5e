package errorlog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askql/backend/internal/models"
)

func entry(kind models.FailureKind, question string) models.ErrorLogEntry {
	return models.ErrorLogEntry{
		Timestamp: time.Now().UTC(),
		Kind:      kind,
		Question:  question,
		SQL:       "SELECT 1;",
		Message:   "boom",
		Source:    models.SourceAI,
	}
}

func TestAppendAndRecent(t *testing.T) {
	l, err := Open(t.TempDir())
	require.NoError(t, err)

	l.Append(entry(models.FailureSyntax, "first"))
	l.Append(entry(models.FailureExecution, "second"))
	l.Append(entry(models.FailureSyntax, "third"))

	recent := l.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "third", recent[0].Question)
	assert.Equal(t, "second", recent[1].Question)

	all := l.Recent(0)
	assert.Len(t, all, 3)
}

func TestFilesWritten(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir)
	require.NoError(t, err)

	l.Append(entry(models.FailureSyntax, "broken question"))

	raw, err := os.ReadFile(filepath.Join(dir, "ai_errors.jsonl"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"sql_syntax_error"`)
	assert.Equal(t, 1, strings.Count(string(raw), "\n"))

	readable, err := os.ReadFile(filepath.Join(dir, "ai_errors_readable.log"))
	require.NoError(t, err)
	assert.Contains(t, string(readable), "broken question")
	assert.Contains(t, string(readable), "sql_syntax_error")
}

func TestReopenRebuildsMemory(t *testing.T) {
	dir := t.TempDir()

	l, err := Open(dir)
	require.NoError(t, err)
	l.Append(entry(models.FailureTimeout, "slow one"))

	reopened, err := Open(dir)
	require.NoError(t, err)

	recent := reopened.Recent(10)
	require.Len(t, recent, 1)
	assert.Equal(t, "slow one", recent[0].Question)
	assert.Equal(t, models.FailureTimeout, recent[0].Kind)
}

func TestSummary(t *testing.T) {
	l, err := Open(t.TempDir())
	require.NoError(t, err)

	assert.Zero(t, l.Summary().Total)
	assert.Nil(t, l.Summary().Latest)

	l.Append(entry(models.FailureSyntax, "a"))
	l.Append(entry(models.FailureSyntax, "b"))
	l.Append(entry(models.FailureExecution, "c"))

	s := l.Summary()
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 2, s.ByKind[models.FailureSyntax])
	assert.Equal(t, 1, s.ByKind[models.FailureExecution])
	require.NotNil(t, s.Latest)
}
