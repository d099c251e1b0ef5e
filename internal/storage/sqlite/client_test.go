package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askql/backend/internal/models"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c, err := NewClient(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func record(id string, createdAt time.Time) models.QueryRecord {
	return models.QueryRecord{
		ID:        id,
		Question:  "top products",
		SQL:       "SELECT 1;",
		Source:    models.SourceAI,
		Category:  models.CategoryProduct,
		Succeeded: true,
		RowCount:  3,
		LatencyMS: 120,
		CreatedAt: createdAt,
	}
}

func TestInsertAndGetHistory(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, c.InsertQueryRecord(ctx, record("a", base)))
	require.NoError(t, c.InsertQueryRecord(ctx, record("b", base.Add(time.Minute))))
	require.NoError(t, c.InsertQueryRecord(ctx, record("c", base.Add(2*time.Minute))))

	records, err := c.GetHistory(ctx, 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "c", records[0].ID)
	assert.Equal(t, "b", records[1].ID)
	assert.Equal(t, models.SourceAI, records[0].Source)
	assert.Equal(t, models.CategoryProduct, records[0].Category)
	assert.True(t, records[0].Succeeded)
}

func TestGetHistoryDefaultLimit(t *testing.T) {
	c := newTestClient(t)

	records, err := c.GetHistory(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, records)
}
