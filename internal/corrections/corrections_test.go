package corrections

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/askql/backend/internal/models"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"SELECT 1;", "SELECT 1;"},
		{"```sql\nSELECT 1;\n```", "SELECT 1;"},
		{"```\nSELECT 1;\n```", "SELECT 1;"},
		{"  SELECT 1;  ", "SELECT 1;"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Sanitize(tt.in))
	}
}

func TestRepairCastSyntax(t *testing.T) {
	failure := &models.Failure{Kind: models.FailureSyntax}

	sql, fixes, changed := Repair("SELECT CAST(price * qty ) AS total FROM t;", failure)
	assert.True(t, changed)
	assert.NotEmpty(t, fixes)
	assert.Contains(t, sql, "CAST(price * qty AS DECIMAL(10,2)) AS total")
}

func TestRepairLeavesValidCastAlone(t *testing.T) {
	failure := &models.Failure{Kind: models.FailureSyntax}
	in := "SELECT CAST(price AS DECIMAL(10,2)) AS p FROM products;"

	sql, _, changed := Repair(in, failure)
	assert.False(t, changed)
	assert.Equal(t, in, sql)
}

func TestRepairBalancesParens(t *testing.T) {
	failure := &models.Failure{Kind: models.FailureSyntax}

	sql, _, changed := Repair("SELECT SUM(COUNT(x) FROM t;", failure)
	assert.True(t, changed)
	assert.Equal(t, "SELECT SUM(COUNT(x) FROM t);", sql)
}

func TestRepairPhantomColumn(t *testing.T) {
	failure := &models.Failure{Kind: models.FailureUnknownIdentifier}

	sql, _, changed := Repair("SELECT o.total_amount FROM orders o GROUP BY o.id;", failure)
	assert.True(t, changed)
	assert.Contains(t, sql, "SUM(oi.qty * oi.unit_price * (1 - oi.discount_pct/100))")
	assert.Contains(t, sql, "JOIN order_items oi ON oi.order_id = o.id")
}

func TestRepairPhantomColumnKeepsExistingJoin(t *testing.T) {
	failure := &models.Failure{Kind: models.FailureUnknownIdentifier}
	in := "SELECT o.revenue FROM orders o JOIN order_items oi ON oi.order_id = o.id;"

	sql, _, changed := Repair(in, failure)
	assert.True(t, changed)
	assert.Equal(t, 1, countOccurrences(sql, "JOIN order_items"))
}

func TestRepairAmbiguousColumn(t *testing.T) {
	failure := &models.Failure{
		Kind:    models.FailureUnknownIdentifier,
		Message: "Column 'id' in field list is ambiguous",
	}

	sql, _, changed := Repair("SELECT id, c.name FROM orders o JOIN customers c ON c.id = o.customer_id;", failure)
	assert.True(t, changed)
	assert.True(t, strings.HasPrefix(sql, "SELECT o.id, c.name"))
	// Already qualified references stay untouched.
	assert.Contains(t, sql, "ON c.id = o.customer_id")
}

func TestRepairJoinReferences(t *testing.T) {
	failure := &models.Failure{Kind: models.FailureUnknownIdentifier}

	sql, _, changed := Repair("SELECT COUNT(JOIN.id) FROM orders o;", failure)
	assert.True(t, changed)
	assert.Contains(t, sql, "COUNT(o.id)")
}

func TestRepairExtractsInnerSelect(t *testing.T) {
	failure := &models.Failure{Kind: models.FailureDisallowedStatement}

	sql, _, changed := Repair("INSERT INTO t SELECT id FROM orders;", failure)
	assert.True(t, changed)
	assert.Equal(t, "SELECT id FROM orders;", sql)
}

func TestRepairUnrecognizedKindNoChange(t *testing.T) {
	for _, kind := range []models.FailureKind{
		models.FailureGeneration,
		models.FailureExecution,
		models.FailureTimeout,
	} {
		sql, fixes, changed := Repair("SELECT 1;", &models.Failure{Kind: kind})
		assert.False(t, changed, "kind %s", kind)
		assert.Empty(t, fixes)
		assert.Equal(t, "SELECT 1;", sql)
	}
}

func countOccurrences(s, sub string) int {
	count := 0
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			count++
		}
	}
	return count
}
