package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/askql/backend/internal/models"
	"github.com/askql/backend/pkg/config"
	"github.com/askql/backend/pkg/logger"
)

const maxResultRows = 1000

// Client executes generated SELECT statements against the sales database
// and classifies everything that goes wrong, so the corrector can branch
// on the failure kind.
type Client struct {
	db      *sql.DB
	timeout time.Duration
}

func NewClient(cfg config.DatabaseConfig) (*Client, error) {
	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping mysql: %w", err)
	}

	timeout := time.Duration(cfg.QueryTimeoutMS) * time.Millisecond
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	logger.Info("Connected to MySQL", zap.Duration("query_timeout", timeout))

	return &Client{db: db, timeout: timeout}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Execute runs one statement. Only SELECT is allowed; everything else is
// rejected before reaching the database.
func (c *Client) Execute(ctx context.Context, query string) ([]models.Row, *models.Failure) {
	trimmed := strings.TrimSpace(query)
	if !strings.HasPrefix(strings.ToUpper(trimmed), "SELECT") {
		return nil, &models.Failure{
			Kind:    models.FailureDisallowedStatement,
			Message: "only SELECT statements are allowed",
			SQL:     query,
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	rows, err := c.db.QueryContext(ctx, trimmed)
	if err != nil {
		return nil, classify(err, query)
	}
	defer rows.Close()

	result, err := scanRows(rows)
	if err != nil {
		return nil, classify(err, query)
	}

	logger.Debug("Query executed",
		zap.Int("rows", len(result)),
		zap.Duration("duration", time.Since(start)),
	)
	return result, nil
}

func scanRows(rows *sql.Rows) ([]models.Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var result []models.Row
	for rows.Next() {
		if len(result) >= maxResultRows {
			break
		}

		values := make([]interface{}, len(columns))
		pointers := make([]interface{}, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}

		row := make(models.Row, len(columns))
		for i, col := range columns {
			row[col] = normalizeValue(values[i])
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// normalizeValue converts driver byte slices to strings so rows marshal as
// text instead of base64.
func normalizeValue(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

func classify(err error, query string) *models.Failure {
	if errors.Is(err, context.DeadlineExceeded) {
		return &models.Failure{
			Kind:    models.FailureTimeout,
			Message: "query exceeded the execution deadline",
			SQL:     query,
		}
	}

	var mysqlErr *gomysql.MySQLError
	if errors.As(err, &mysqlErr) {
		kind := models.FailureExecution
		switch mysqlErr.Number {
		case 1064:
			kind = models.FailureSyntax
		case 1054, 1146, 1052:
			kind = models.FailureUnknownIdentifier
		case 1142, 1143:
			kind = models.FailureDisallowedStatement
		}
		return &models.Failure{
			Kind:    kind,
			Message: mysqlErr.Message,
			SQL:     query,
		}
	}

	return &models.Failure{
		Kind:    models.FailureExecution,
		Message: err.Error(),
		SQL:     query,
	}
}

// DescribeSchema reads table and column metadata for the connected
// database, for indexing into the vector store.
func (c *Client) DescribeSchema(ctx context.Context) ([]models.SchemaFragment, error) {
	const query = `
		SELECT TABLE_NAME, COLUMN_NAME, COLUMN_TYPE, IFNULL(COLUMN_COMMENT, '')
		FROM information_schema.COLUMNS
		WHERE TABLE_SCHEMA = DATABASE()
		ORDER BY TABLE_NAME, ORDINAL_POSITION`

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema metadata: %w", err)
	}
	defer rows.Close()

	byTable := make(map[string]*models.SchemaFragment)
	var order []string
	for rows.Next() {
		var table, column, columnType, comment string
		if err := rows.Scan(&table, &column, &columnType, &comment); err != nil {
			return nil, fmt.Errorf("failed to scan schema row: %w", err)
		}

		fragment, ok := byTable[table]
		if !ok {
			fragment = &models.SchemaFragment{Table: table}
			byTable[table] = fragment
			order = append(order, table)
		}
		fragment.Columns = append(fragment.Columns, fmt.Sprintf("%s %s", column, columnType))
		if comment != "" {
			if fragment.Description != "" {
				fragment.Description += "; "
			}
			fragment.Description += fmt.Sprintf("%s: %s", column, comment)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate schema rows: %w", err)
	}

	fragments := make([]models.SchemaFragment, 0, len(order))
	for _, table := range order {
		fragments = append(fragments, *byTable[table])
	}
	return fragments, nil
}
