package corrections

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/askql/backend/internal/models"
)

// Deterministic textual repairs applied by the corrector. Each rule either
// rewrites the SQL or leaves it untouched; rules never call out to the
// network or the database.

var (
	fenceOpenRe  = regexp.MustCompile("(?s)^```(?:sql)?\\s*")
	fenceCloseRe = regexp.MustCompile("\\s*```\\s*$")

	castRe       = regexp.MustCompile(`(?i)CAST\(\s*([^()]+?)\s*\)\s+AS\s+(\w+)`)
	fromTableRe  = regexp.MustCompile(`(?i)FROM\s+(\w+)(?:\s+(?:AS\s+)?(\w+))?`)
	fromOrdersRe = regexp.MustCompile(`(?i)(FROM\s+orders\s+o\b)`)
	countJoinRe  = regexp.MustCompile(`(?i)COUNT\(\s*JOIN\.(\w+)\s*\)`)
	joinRefRe    = regexp.MustCompile(`(?i)\bJOIN\.(\w+)`)

	ambiguousColRe = regexp.MustCompile(`(?i)column '([^']+)'.* is ambiguous`)
)

// Column rewrites for references the sales schema never had: order totals
// must be computed from order_items.
var missingColumnRewrites = []struct {
	pattern     *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`(?i)\bo\.total_amount\b`), "SUM(oi.qty * oi.unit_price * (1 - oi.discount_pct/100))"},
	{regexp.MustCompile(`(?i)\bo\.revenue\b`), "SUM(oi.qty * oi.unit_price * (1 - oi.discount_pct/100))"},
	{regexp.MustCompile(`(?i)\bo\.sales\b`), "SUM(oi.qty * oi.unit_price * (1 - oi.discount_pct/100))"},
	{regexp.MustCompile(`(?i)\bo\.amount\b`), "SUM(oi.qty * oi.unit_price * (1 - oi.discount_pct/100))"},
}

// Sanitize normalizes a raw model completion into bare SQL: markdown fences
// stripped, surrounding whitespace trimmed.
func Sanitize(sql string) string {
	sql = strings.TrimSpace(sql)
	sql = fenceOpenRe.ReplaceAllString(sql, "")
	sql = fenceCloseRe.ReplaceAllString(sql, "")
	return strings.TrimSpace(sql)
}

// Repair attempts the deterministic fixes registered for the failure kind.
// It returns the repaired SQL, the descriptions of the fixes applied, and
// whether anything changed.
func Repair(sql string, failure *models.Failure) (string, []string, bool) {
	var fixes []string

	switch failure.Kind {
	case models.FailureSyntax:
		sql, fixes = applyAll(sql, fixes, fixCastSyntax, balanceParens, fixJoinReferences)
	case models.FailureUnknownIdentifier:
		if column := ambiguousColumn(failure.Message); column != "" {
			sql, fixes = applyAll(sql, fixes, qualifyColumn(column))
		}
		sql, fixes = applyAll(sql, fixes, fixMissingColumns, fixJoinReferences)
	case models.FailureDisallowedStatement:
		sql, fixes = applyAll(sql, fixes, extractInnerSelect)
	}

	return sql, fixes, len(fixes) > 0
}

type rule func(sql string) (string, []string)

func applyAll(sql string, fixes []string, rules ...rule) (string, []string) {
	for _, r := range rules {
		var applied []string
		sql, applied = r(sql)
		fixes = append(fixes, applied...)
	}
	return sql, fixes
}

// fixCastSyntax rewrites CAST(expr) AS alias into
// CAST(expr AS DECIMAL(10,2)) AS alias. Valid casts already carrying a
// target type are left alone.
func fixCastSyntax(sql string) (string, []string) {
	var fixes []string

	fixed := castRe.ReplaceAllStringFunc(sql, func(match string) string {
		groups := castRe.FindStringSubmatch(match)
		expr, alias := groups[1], groups[2]
		if strings.Contains(strings.ToUpper(expr), " AS ") {
			return match
		}
		fixes = append(fixes, fmt.Sprintf("fixed CAST syntax for %s", alias))
		return fmt.Sprintf("CAST(%s AS DECIMAL(10,2)) AS %s", expr, alias)
	})

	return fixed, fixes
}

// balanceParens appends missing closing parentheses. A surplus of closing
// parens is not repairable textually, so it is left for the executor to
// reject again.
func balanceParens(sql string) (string, []string) {
	open := strings.Count(sql, "(")
	closed := strings.Count(sql, ")")
	if open <= closed {
		return sql, nil
	}

	trimmed := strings.TrimRight(strings.TrimSpace(sql), ";")
	trimmed += strings.Repeat(")", open-closed)
	return trimmed + ";", []string{fmt.Sprintf("closed %d unbalanced parentheses", open-closed)}
}

// ambiguousColumn extracts the offending column name from an
// ambiguous-column execution error, or "" when the error is something else.
func ambiguousColumn(message string) string {
	if m := ambiguousColRe.FindStringSubmatch(message); m != nil {
		return m[1]
	}
	return ""
}

// qualifyColumn prefixes bare occurrences of an ambiguous column with the
// FROM table's alias.
func qualifyColumn(column string) rule {
	return func(sql string) (string, []string) {
		table := fromAlias(sql)
		bareRe := regexp.MustCompile(`(?i)(^|[^.\w])` + regexp.QuoteMeta(column) + `\b`)

		fixed := bareRe.ReplaceAllString(sql, "${1}"+table+"."+column)
		if fixed == sql {
			return sql, nil
		}
		return fixed, []string{fmt.Sprintf("qualified ambiguous column %s as %s.%s", column, table, column)}
	}
}

func fromAlias(sql string) string {
	if m := fromTableRe.FindStringSubmatch(sql); m != nil {
		if m[2] != "" && !isKeyword(m[2]) {
			return m[2]
		}
		return m[1]
	}
	return "orders"
}

// fixJoinReferences rewrites the model's occasional JOIN.column artifacts
// to reference the FROM table instead.
func fixJoinReferences(sql string) (string, []string) {
	var fixes []string

	table := fromAlias(sql)

	if countJoinRe.MatchString(sql) {
		sql = countJoinRe.ReplaceAllString(sql, fmt.Sprintf("COUNT(%s.$1)", table))
		fixes = append(fixes, fmt.Sprintf("rewrote COUNT(JOIN.*) to %s", table))
	}
	if joinRefRe.MatchString(sql) {
		sql = joinRefRe.ReplaceAllString(sql, fmt.Sprintf("%s.$1", table))
		fixes = append(fixes, fmt.Sprintf("rewrote JOIN.* references to %s", table))
	}

	return sql, fixes
}

// fixMissingColumns handles unknown-column failures. Known phantom columns
// (order totals) are replaced with the computed order_items expression,
// adding the join when it is absent.
func fixMissingColumns(sql string) (string, []string) {
	var fixes []string

	for _, rewrite := range missingColumnRewrites {
		if !rewrite.pattern.MatchString(sql) {
			continue
		}

		if !strings.Contains(sql, "order_items") && !strings.Contains(sql, "oi.") {
			if fromOrdersRe.MatchString(sql) {
				sql = fromOrdersRe.ReplaceAllString(sql, "$1 JOIN order_items oi ON oi.order_id = o.id")
			}
		}

		sql = rewrite.pattern.ReplaceAllString(sql, rewrite.replacement)
		fixes = append(fixes, fmt.Sprintf("replaced phantom column with %s", rewrite.replacement))
	}

	return sql, fixes
}

// extractInnerSelect recovers the SELECT embedded in a disallowed write
// statement, when one exists.
func extractInnerSelect(sql string) (string, []string) {
	upper := strings.ToUpper(sql)
	if strings.HasPrefix(strings.TrimSpace(upper), "SELECT") {
		return sql, nil
	}

	idx := strings.Index(upper, "SELECT")
	if idx < 0 {
		return sql, nil
	}

	return strings.TrimSpace(sql[idx:]), []string{"extracted inner SELECT from write statement"}
}

func isKeyword(word string) bool {
	switch strings.ToUpper(word) {
	case "WHERE", "JOIN", "LEFT", "RIGHT", "INNER", "OUTER", "GROUP", "ORDER", "LIMIT", "ON", "AS":
		return true
	}
	return false
}
