package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/askql/backend/internal/models"
	"github.com/askql/backend/pkg/logger"
)

// Client is the durable request history, kept in a local SQLite file.
type Client struct {
	db *sql.DB
}

func NewClient(path string) (*Client, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	c := &Client{db: db}
	if err := c.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("History database opened", zap.String("path", path))
	return c, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS query_history (
		id TEXT PRIMARY KEY,
		question TEXT NOT NULL,
		sql_text TEXT NOT NULL,
		source TEXT NOT NULL,
		category TEXT NOT NULL,
		corrected INTEGER NOT NULL DEFAULT 0,
		succeeded INTEGER NOT NULL DEFAULT 0,
		row_count INTEGER NOT NULL DEFAULT 0,
		latency_ms INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_query_history_created ON query_history(created_at DESC);
	`

	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to init history schema: %w", err)
	}
	return nil
}

func (c *Client) InsertQueryRecord(ctx context.Context, record models.QueryRecord) error {
	const query = `
	INSERT INTO query_history (id, question, sql_text, source, category, corrected, succeeded, row_count, latency_ms, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := c.db.ExecContext(ctx, query,
		record.ID,
		record.Question,
		record.SQL,
		string(record.Source),
		string(record.Category),
		boolToInt(record.Corrected),
		boolToInt(record.Succeeded),
		record.RowCount,
		record.LatencyMS,
		record.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert query record: %w", err)
	}
	return nil
}

// GetHistory returns up to limit records, newest first.
func (c *Client) GetHistory(ctx context.Context, limit int) ([]models.QueryRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	const query = `
	SELECT id, question, sql_text, source, category, corrected, succeeded, row_count, latency_ms, created_at
	FROM query_history
	ORDER BY created_at DESC
	LIMIT ?`

	rows, err := c.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var records []models.QueryRecord
	for rows.Next() {
		var record models.QueryRecord
		var source, category, createdAt string
		var corrected, succeeded int

		if err := rows.Scan(
			&record.ID,
			&record.Question,
			&record.SQL,
			&source,
			&category,
			&corrected,
			&succeeded,
			&record.RowCount,
			&record.LatencyMS,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}

		record.Source = models.Source(source)
		record.Category = models.Category(category)
		record.Corrected = corrected != 0
		record.Succeeded = succeeded != 0
		if ts, err := time.Parse(time.RFC3339, createdAt); err == nil {
			record.CreatedAt = ts
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
