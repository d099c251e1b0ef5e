package mysql

import (
	"context"
	"errors"
	"testing"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askql/backend/internal/models"
)

func TestExecuteRejectsNonSelect(t *testing.T) {
	c := &Client{}

	for _, stmt := range []string{
		"DROP TABLE orders;",
		"INSERT INTO orders VALUES (1);",
		"UPDATE orders SET status = 'SHIPPED';",
		"  delete from orders",
	} {
		rows, failure := c.Execute(context.Background(), stmt)
		assert.Nil(t, rows)
		require.NotNil(t, failure, "statement %q", stmt)
		assert.Equal(t, models.FailureDisallowedStatement, failure.Kind)
		assert.Equal(t, stmt, failure.SQL)
	}
}

func TestClassifyMySQLErrors(t *testing.T) {
	tests := []struct {
		number uint16
		want   models.FailureKind
	}{
		{1064, models.FailureSyntax},
		{1054, models.FailureUnknownIdentifier},
		{1146, models.FailureUnknownIdentifier},
		{1052, models.FailureUnknownIdentifier},
		{1142, models.FailureDisallowedStatement},
		{1143, models.FailureDisallowedStatement},
		{1205, models.FailureExecution},
	}

	for _, tt := range tests {
		err := &gomysql.MySQLError{Number: tt.number, Message: "boom"}
		failure := classify(err, "SELECT 1;")
		assert.Equal(t, tt.want, failure.Kind, "error %d", tt.number)
		assert.Equal(t, "boom", failure.Message)
	}
}

func TestClassifyTimeout(t *testing.T) {
	failure := classify(context.DeadlineExceeded, "SELECT 1;")
	assert.Equal(t, models.FailureTimeout, failure.Kind)
}

func TestClassifyGenericError(t *testing.T) {
	failure := classify(errors.New("connection refused"), "SELECT 1;")
	assert.Equal(t, models.FailureExecution, failure.Kind)
	assert.Equal(t, "connection refused", failure.Message)
}

func TestNormalizeValue(t *testing.T) {
	assert.Equal(t, "text", normalizeValue([]byte("text")))
	assert.Equal(t, int64(5), normalizeValue(int64(5)))
	assert.Nil(t, normalizeValue(nil))
}
