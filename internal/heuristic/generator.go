package heuristic

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/askql/backend/internal/models"
	"github.com/askql/backend/pkg/logger"
)

// Generator is the deterministic last line of defense: it always produces
// some executable SQL, for any input, without touching the network.
type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

const defaultQuery = "SELECT 'No specific pattern matched' AS message, COUNT(*) AS total_orders FROM orders LIMIT 1;"

const revenueExpr = "CAST(SUM(oi.qty * oi.unit_price * (1 - oi.discount_pct/100)) AS DECIMAL(10,2))"

type pattern struct {
	keywords []string
	build    func(q string) string
}

var patterns = []pattern{
	{[]string{"top", "product", "revenue"}, buildTopRevenue},
	{[]string{"top", "product", "sales"}, buildTopRevenue},
	{[]string{"best", "selling", "product"}, buildTopRevenue},
	{[]string{"highest", "revenue", "product"}, buildTopRevenue},

	{[]string{"sales", "month"}, buildMonthlySales},
	{[]string{"monthly", "sales"}, buildMonthlySales},
	{[]string{"monthly", "revenue"}, buildMonthlySales},
	{[]string{"revenue", "trend"}, buildMonthlySales},
	{[]string{"quarterly", "quarter"}, buildQuarterlySales},
	{[]string{"sales", "quarter"}, buildQuarterlySales},
	{[]string{"revenue", "quarter"}, buildQuarterlySales},

	{[]string{"top", "customer"}, buildTopCustomers},
	{[]string{"customer", "order", "value"}, buildTopCustomers},
	{[]string{"new", "customer"}, buildNewCustomers},

	{[]string{"product", "inventory"}, buildLowStock},
	{[]string{"low", "stock"}, buildLowStock},
	{[]string{"product", "category"}, buildCategoryBreakdown},

	{[]string{"order", "status"}, buildOrderStatus},
	{[]string{"recent", "order"}, buildRecentOrders},
}

// Generate scores every pattern by keyword overlap and builds SQL from the
// best match, falling back to a safe bounded default. It never fails.
func (g *Generator) Generate(question string) models.Candidate {
	q := strings.ToLower(question)

	var best *pattern
	bestScore := 0
	for i := range patterns {
		score := 0
		for _, kw := range patterns[i].keywords {
			if strings.Contains(q, kw) {
				score++
			}
		}
		if score > bestScore {
			bestScore = score
			best = &patterns[i]
		}
	}

	sql := defaultQuery
	if best != nil && bestScore > 0 {
		sql = best.build(q)
	}

	logger.Debug("Heuristic SQL generated",
		zap.String("question", question),
		zap.Int("score", bestScore),
	)

	return models.Candidate{SQL: sql, Source: models.SourceHeuristic}
}

func buildTopRevenue(q string) string {
	months := monthsFromQuestion(q, 3)
	limit := extractLimit(q, 10)

	return fmt.Sprintf(
		"SELECT p.name AS product, %s AS revenue "+
			"FROM order_items oi "+
			"JOIN products p ON p.id = oi.product_id "+
			"JOIN orders o ON o.id = oi.order_id "+
			"WHERE o.status <> 'CANCELLED' AND o.order_date >= DATE_SUB(CURDATE(), INTERVAL %d MONTH) "+
			"GROUP BY p.name ORDER BY revenue DESC LIMIT %d;",
		revenueExpr, months, limit)
}

func buildMonthlySales(q string) string {
	months := monthsFromQuestion(q, 6)

	return fmt.Sprintf(
		"SELECT DATE_FORMAT(o.order_date, '%%Y-%%m') AS month, %s AS total_sales "+
			"FROM orders o "+
			"JOIN order_items oi ON oi.order_id = o.id "+
			"WHERE o.status <> 'CANCELLED' AND o.order_date >= DATE_SUB(CURDATE(), INTERVAL %d MONTH) "+
			"GROUP BY month ORDER BY month;",
		revenueExpr, months)
}

func buildQuarterlySales(q string) string {
	months := monthsFromQuestion(q, 12)

	return fmt.Sprintf(
		"SELECT CONCAT(YEAR(o.order_date), '-Q', QUARTER(o.order_date)) AS quarter, %s AS total_sales "+
			"FROM orders o "+
			"JOIN order_items oi ON oi.order_id = o.id "+
			"WHERE o.status <> 'CANCELLED' AND o.order_date >= DATE_SUB(CURDATE(), INTERVAL %d MONTH) "+
			"GROUP BY YEAR(o.order_date), QUARTER(o.order_date) "+
			"ORDER BY YEAR(o.order_date), QUARTER(o.order_date);",
		revenueExpr, months)
}

func buildTopCustomers(q string) string {
	limit := extractLimit(q, 10)

	return fmt.Sprintf(
		"SELECT c.name AS customer, %s AS total_value, COUNT(DISTINCT o.id) AS order_count "+
			"FROM customers c "+
			"JOIN orders o ON o.customer_id = c.id "+
			"JOIN order_items oi ON oi.order_id = o.id "+
			"WHERE o.status <> 'CANCELLED' "+
			"GROUP BY c.id, c.name "+
			"ORDER BY total_value DESC LIMIT %d;",
		revenueExpr, limit)
}

func buildNewCustomers(q string) string {
	months := monthsFromQuestion(q, 1)

	return fmt.Sprintf(
		"SELECT c.name AS customer, c.email, MIN(o.order_date) AS first_order "+
			"FROM customers c "+
			"JOIN orders o ON o.customer_id = c.id "+
			"WHERE o.order_date >= DATE_SUB(CURDATE(), INTERVAL %d MONTH) "+
			"GROUP BY c.id, c.name, c.email "+
			"ORDER BY first_order DESC;",
		months)
}

func buildLowStock(q string) string {
	return "SELECT p.name AS product, p.stock_quantity, c.name AS category " +
		"FROM products p " +
		"JOIN categories c ON c.id = p.category_id " +
		"WHERE p.stock_quantity < 50 " +
		"ORDER BY p.stock_quantity ASC;"
}

func buildCategoryBreakdown(q string) string {
	return "SELECT c.name AS category, COUNT(p.id) AS product_count, " +
		"CAST(AVG(p.price) AS DECIMAL(10,2)) AS avg_price " +
		"FROM categories c " +
		"LEFT JOIN products p ON p.category_id = c.id " +
		"GROUP BY c.id, c.name " +
		"ORDER BY product_count DESC;"
}

func buildOrderStatus(q string) string {
	return "SELECT o.status, COUNT(*) AS order_count " +
		"FROM orders o " +
		"GROUP BY o.status " +
		"ORDER BY order_count DESC;"
}

func buildRecentOrders(q string) string {
	limit := extractLimit(q, 10)

	return fmt.Sprintf(
		"SELECT o.id, c.name AS customer, o.order_date, o.status "+
			"FROM orders o "+
			"JOIN customers c ON c.id = o.customer_id "+
			"ORDER BY o.order_date DESC LIMIT %d;",
		limit)
}

var limitRes = []*regexp.Regexp{
	regexp.MustCompile(`top\s+(\d+)`),
	regexp.MustCompile(`best\s+(\d+)`),
	regexp.MustCompile(`first\s+(\d+)`),
	regexp.MustCompile(`last\s+(\d+)\b`),
	regexp.MustCompile(`(\d+)\s+products?`),
	regexp.MustCompile(`(\d+)\s+customers?`),
}

func extractLimit(q string, def int) int {
	for _, re := range limitRes {
		if m := re.FindStringSubmatch(q); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
				return n
			}
		}
	}
	return def
}

var lastMonthsRe = regexp.MustCompile(`\b(?:last|past)\s+(\d{1,2})\s+months?\b`)

func monthsFromQuestion(q string, def int) int {
	switch {
	case strings.Contains(q, "last year") || strings.Contains(q, "past year"):
		return 12
	case strings.Contains(q, "last quarter") || strings.Contains(q, "past quarter"):
		return 3
	case strings.Contains(q, "last month") || strings.Contains(q, "past month"):
		return 1
	}

	if m := lastMonthsRe.FindStringSubmatch(q); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			if n < 1 {
				return 1
			}
			if n > 24 {
				return 24
			}
			return n
		}
	}

	return def
}
