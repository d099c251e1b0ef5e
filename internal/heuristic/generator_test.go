package heuristic

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/askql/backend/internal/models"
)

func TestGenerateNeverEmpty(t *testing.T) {
	g := NewGenerator()

	questions := []string{
		"",
		"what are the top products by revenue",
		"completely unrelated gibberish xyzzy",
		"show me sales by month for the last 6 months",
	}

	for _, q := range questions {
		c := g.Generate(q)
		assert.NotEmpty(t, c.SQL, "question %q", q)
		assert.Equal(t, models.SourceHeuristic, c.Source)
		assert.True(t, strings.HasPrefix(strings.ToUpper(c.SQL), "SELECT"))
	}
}

func TestGeneratePatternSelection(t *testing.T) {
	g := NewGenerator()

	tests := []struct {
		question string
		contains string
	}{
		{"top 5 products by revenue", "JOIN products p"},
		{"monthly sales trend", "DATE_FORMAT"},
		{"sales by quarter last year", "QUARTER(o.order_date)"},
		{"who are our top customers", "JOIN orders o ON o.customer_id"},
		{"new customers last month", "MIN(o.order_date)"},
		{"products low on stock", "stock_quantity"},
		{"breakdown by product category", "product_count"},
		{"orders by status", "GROUP BY o.status"},
		{"show recent orders", "ORDER BY o.order_date DESC"},
		{"tell me a joke", "No specific pattern matched"},
	}

	for _, tt := range tests {
		c := g.Generate(tt.question)
		assert.Contains(t, c.SQL, tt.contains, "question %q", tt.question)
	}
}

func TestGenerateLimitExtraction(t *testing.T) {
	g := NewGenerator()

	c := g.Generate("top 7 products by revenue")
	assert.Contains(t, c.SQL, "LIMIT 7;")

	c = g.Generate("top products by revenue")
	assert.Contains(t, c.SQL, "LIMIT 10;")
}

func TestExtractLimit(t *testing.T) {
	tests := []struct {
		question string
		want     int
	}{
		{"top 3 customers", 3},
		{"best 15 products", 15},
		{"first 20 orders", 20},
		{"last 5 orders", 5},
		{"show 8 products", 8},
		{"top customers", 10},
		{"top 0 customers", 10},
	}

	for _, tt := range tests {
		got := extractLimit(tt.question, 10)
		assert.Equal(t, tt.want, got, "question %q", tt.question)
	}
}

func TestMonthsFromQuestion(t *testing.T) {
	tests := []struct {
		question string
		want     int
	}{
		{"revenue last year", 12},
		{"revenue past year", 12},
		{"revenue last quarter", 3},
		{"revenue last month", 1},
		{"revenue last 4 months", 4},
		{"revenue past 99 months", 24},
		{"revenue", 6},
	}

	for _, tt := range tests {
		got := monthsFromQuestion(tt.question, 6)
		assert.Equal(t, tt.want, got, "question %q", tt.question)
	}
}
