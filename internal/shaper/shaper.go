package shaper

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/askql/backend/internal/models"
)

// Shaper turns a resolved question and its rows into presentation metadata:
// a category with a confidence score, a chart suggestion, and follow-up
// question prompts.
type Shaper struct{}

func NewShaper() *Shaper {
	return &Shaper{}
}

type categoryRules struct {
	keywords []string
	phrases  []*regexp.Regexp
}

var rulesByCategory = map[models.Category]categoryRules{
	models.CategoryRevenue: {
		keywords: []string{"revenue", "sales", "income", "earnings", "profit"},
		phrases: []*regexp.Regexp{
			regexp.MustCompile(`total\s+(?:revenue|sales)`),
			regexp.MustCompile(`(?:revenue|sales)\s+(?:by|per|trend)`),
			regexp.MustCompile(`how\s+much\s+(?:did\s+we\s+)?(?:make|earn|sell)`),
		},
	},
	models.CategoryCustomer: {
		keywords: []string{"customer", "customers", "client", "clients", "buyer", "buyers"},
		phrases: []*regexp.Regexp{
			regexp.MustCompile(`top\s+customers?`),
			regexp.MustCompile(`new\s+customers?`),
			regexp.MustCompile(`customer\s+(?:value|retention|count)`),
		},
	},
	models.CategoryProduct: {
		keywords: []string{"product", "products", "item", "items", "inventory", "stock", "category", "categories"},
		phrases: []*regexp.Regexp{
			regexp.MustCompile(`best\s+selling`),
			regexp.MustCompile(`top\s+products?`),
			regexp.MustCompile(`(?:low|out\s+of)\s+stock`),
		},
	},
	models.CategoryTimeSeries: {
		keywords: []string{"monthly", "quarterly", "yearly", "weekly", "daily", "trend", "trends", "growth"},
		phrases: []*regexp.Regexp{
			regexp.MustCompile(`(?:by|per|each)\s+(?:month|quarter|year|week|day)`),
			regexp.MustCompile(`over\s+time`),
			regexp.MustCompile(`last\s+\d+\s+months?`),
		},
	},
	models.CategoryAnalytics: {
		keywords: []string{"average", "compare", "comparison", "ratio", "percentage", "distribution", "correlation"},
		phrases: []*regexp.Regexp{
			regexp.MustCompile(`compared?\s+(?:to|with)`),
			regexp.MustCompile(`average\s+\w+`),
		},
	},
	models.CategoryReporting: {
		keywords: []string{"report", "summary", "overview", "breakdown", "status", "total", "count"},
		phrases: []*regexp.Regexp{
			regexp.MustCompile(`(?:summary|breakdown|overview)\s+of`),
			regexp.MustCompile(`order\s+status`),
		},
	},
	models.CategoryExploration: {
		keywords: []string{"show", "list", "find", "which", "what", "recent", "latest"},
		phrases: []*regexp.Regexp{
			regexp.MustCompile(`show\s+me`),
			regexp.MustCompile(`list\s+(?:all|the)`),
		},
	},
}

// Categorize scores each category by keyword and phrase hits, normalized by
// question length so short pointed questions are not drowned out. Keywords
// count 1.0, phrase matches 2.0. Ties resolve in the fixed category
// priority order; a zero score yields CategoryOther.
func (s *Shaper) Categorize(question string) (models.Category, float64) {
	q := strings.ToLower(strings.TrimSpace(question))
	words := strings.Fields(q)
	if len(words) == 0 {
		return models.CategoryOther, 0
	}

	best := models.CategoryOther
	bestScore := 0.0
	for _, cat := range models.Categories {
		rules, ok := rulesByCategory[cat]
		if !ok {
			continue
		}

		score := 0.0
		for _, kw := range rules.keywords {
			if containsWord(words, kw) {
				score += 1.0
			}
		}
		for _, re := range rules.phrases {
			if re.MatchString(q) {
				score += 2.0
			}
		}

		score /= float64(len(words))
		if score > bestScore {
			bestScore = score
			best = cat
		}
	}

	if bestScore == 0 {
		return models.CategoryOther, 0
	}

	confidence := bestScore
	if confidence > 1.0 {
		confidence = 1.0
	}
	return best, confidence
}

func containsWord(words []string, kw string) bool {
	for _, w := range words {
		if strings.Trim(w, ".,?!'\"") == kw {
			return true
		}
	}
	return false
}

var timeColumnRe = regexp.MustCompile(`(?i)\b(month|date|year|time|day|week|quarter|ym|ymd)\b|_(month|date|year|time|day|week|quarter)$|^(month|date|year|time|day|week|quarter)_`)

var valueColumnRe = regexp.MustCompile(`(?i)revenue|sales|amount|total|value|price|count|sum|qty|quantity`)

var nameColumnRe = regexp.MustCompile(`(?i)name|product|customer|category|status|label|title`)

// Chart inspects only the result rows and suggests how to draw them. The
// same rows always produce the same suggestion. Time-keyed numeric series
// become line charts, categorical numeric pairs become bars, anything
// without a clear axis pair gets no chart at all.
func (s *Shaper) Chart(rows []models.Row) *models.ChartSpec {
	if len(rows) == 0 {
		return nil
	}

	cols := sortedColumns(rows[0])
	if len(cols) < 2 {
		return nil
	}

	var timeCols, textCols, numCols []string
	for _, col := range cols {
		val := firstNonNil(rows, col)
		switch {
		case isTimeValue(val) || (timeColumnRe.MatchString(col) && !isNumericOnly(rows, col)):
			timeCols = append(timeCols, col)
		case isNumeric(val):
			numCols = append(numCols, col)
		case isText(val):
			textCols = append(textCols, col)
		}
	}

	if len(numCols) == 0 {
		return nil
	}

	y := pickValueColumn(numCols)

	if len(timeCols) > 0 {
		return &models.ChartSpec{Kind: models.ChartLine, XAxis: timeCols[0], YAxis: y}
	}

	x := pickLabelColumn(textCols)
	if x == "" {
		return nil
	}
	return &models.ChartSpec{Kind: models.ChartBar, XAxis: x, YAxis: y}
}

func sortedColumns(row models.Row) []string {
	cols := make([]string, 0, len(row))
	for col := range row {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

func firstNonNil(rows []models.Row, col string) interface{} {
	for _, row := range rows {
		if v, ok := row[col]; ok && v != nil {
			return v
		}
	}
	return nil
}

func isNumericOnly(rows []models.Row, col string) bool {
	v := firstNonNil(rows, col)
	return isNumeric(v)
}

func isNumeric(v interface{}) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	}
	return false
}

func isText(v interface{}) bool {
	_, ok := v.(string)
	return ok
}

func isTimeValue(v interface{}) bool {
	_, ok := v.(time.Time)
	return ok
}

func pickValueColumn(numCols []string) string {
	for _, col := range numCols {
		if valueColumnRe.MatchString(col) {
			return col
		}
	}
	return numCols[0]
}

func pickLabelColumn(textCols []string) string {
	for _, col := range textCols {
		if nameColumnRe.MatchString(col) && !timeColumnRe.MatchString(col) {
			return col
		}
	}
	for _, col := range textCols {
		if !timeColumnRe.MatchString(col) {
			return col
		}
	}
	return ""
}

var suggestionsByCategory = map[models.Category][]string{
	models.CategoryRevenue: {
		"How does this compare to the previous period?",
		"Which products drove this revenue?",
	},
	models.CategoryCustomer: {
		"What is the average order value for these customers?",
		"How many of these customers are new this quarter?",
	},
	models.CategoryProduct: {
		"Which categories do these products belong to?",
		"How has stock changed for these products?",
	},
	models.CategoryTimeSeries: {
		"What does the same trend look like by quarter?",
		"Which month performed best?",
	},
	models.CategoryAnalytics: {
		"Can you break this down by category?",
		"What does the distribution look like over time?",
	},
	models.CategoryReporting: {
		"Can you show the same summary for last month?",
		"What are the top contributors to these totals?",
	},
	models.CategoryExploration: {
		"Can you filter this to the last 30 days?",
		"What are the totals for these results?",
	},
	models.CategoryOther: {
		"What were our top products by revenue?",
		"Show monthly sales for the last 6 months",
	},
}

// Suggestions returns canned follow-up prompts for the category.
func (s *Shaper) Suggestions(category models.Category) []string {
	if prompts, ok := suggestionsByCategory[category]; ok {
		out := make([]string, len(prompts))
		copy(out, prompts)
		return out
	}
	return nil
}

// RelatedQuestions turns stored similar examples into prompts, skipping the
// question itself.
func (s *Shaper) RelatedQuestions(question string, examples []models.QueryExample) []string {
	norm := models.NormalizeQuestion(question)

	var related []string
	for _, ex := range examples {
		if models.NormalizeQuestion(ex.Question) == norm {
			continue
		}
		related = append(related, ex.Question)
		if len(related) == 3 {
			break
		}
	}
	return related
}
