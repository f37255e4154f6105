package watchdog

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/agentmesh/core/pkg/domain"
)

// commonNumericFields and commonStatusFields are the object field names
// condition evaluation falls back to when the result isn't a bare scalar,
// matching condition.rs exactly.
var (
	commonNumericFields = []string{"value", "result", "data", "score", "count"}
	commonStatusFields  = []string{"status", "state", "result", "type"}
)

// EvaluateCondition reports whether result satisfies condition. result is
// typically a tool's return value decoded from JSON (so map[string]any,
// []any, string, float64, bool, or nil).
func EvaluateCondition(condition domain.TriggerCondition, result any) bool {
	switch condition.Kind {
	case domain.ConditionNumericRange:
		return evaluateNumericRange(result, condition.Min, condition.Max)
	case domain.ConditionStringContains:
		return evaluateStringContains(result, condition.Content)
	case domain.ConditionStatusMatches:
		return evaluateStatusMatch(result, condition.ExpectedStatus)
	case domain.ConditionCustomExpr:
		return evaluateCustomExpression(result, condition.Expression)
	default:
		return false
	}
}

func asFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func inRange(v any, min, max float64) bool {
	n, ok := asFloat64(v)
	return ok && n >= min && n <= max
}

func evaluateNumericRange(result any, min, max float64) bool {
	if inRange(result, min, max) {
		return true
	}

	switch r := result.(type) {
	case map[string]any:
		for _, field := range commonNumericFields {
			if v, ok := r[field]; ok && inRange(v, min, max) {
				return true
			}
		}
		for _, v := range r {
			if inRange(v, min, max) {
				return true
			}
		}
	case []any:
		for _, v := range r {
			if inRange(v, min, max) {
				return true
			}
		}
	}
	return false
}

func stringify(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return "null"
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(raw)
	}
}

func evaluateStringContains(result any, content string) bool {
	if s, ok := result.(string); ok {
		return strings.Contains(s, content)
	}
	return strings.Contains(stringify(result), content)
}

func evaluateStatusMatch(result any, expected string) bool {
	if s, ok := result.(string); ok && s == expected {
		return true
	}

	if obj, ok := result.(map[string]any); ok {
		for _, field := range commonStatusFields {
			if v, ok := obj[field]; ok {
				if s, ok := v.(string); ok && s == expected {
					return true
				}
			}
		}
	}

	return stringify(result) == expected
}

// evaluateCustomExpression parses a "<field> <op> <literal>" expression
// and compares the literal against a number or string extracted from
// result. The field name is parsed for symmetry with the grammar but is
// never actually consulted — the comparison always runs against result
// itself (or its common value/status fields via extractNumber/the string
// form), exactly reproducing the original evaluator's behavior. This is
// surprising but deliberate: fixing it would change which rules fire for
// existing deployments, so it is preserved rather than corrected.
func evaluateCustomExpression(result any, expression string) bool {
	expr := strings.ToLower(expression)

	switch {
	case strings.Contains(expr, ">="):
		return evaluateComparison(result, ">=", expr)
	case strings.Contains(expr, "<="):
		return evaluateComparison(result, "<=", expr)
	case strings.Contains(expr, ">"):
		return evaluateComparison(result, ">", expr)
	case strings.Contains(expr, "<"):
		return evaluateComparison(result, "<", expr)
	case strings.Contains(expr, "==") || strings.Contains(expr, "="):
		return evaluateEquality(result, expr)
	default:
		return evaluateStringContains(result, expression)
	}
}

func evaluateComparison(result any, op, expr string) bool {
	parts := strings.SplitN(expr, op, 2)
	if len(parts) != 2 {
		return false
	}

	threshold, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return false
	}

	num, ok := extractNumber(result)
	if !ok {
		return false
	}

	switch op {
	case ">=":
		return num >= threshold
	case "<=":
		return num <= threshold
	case ">":
		return num > threshold
	case "<":
		return num < threshold
	default:
		return false
	}
}

func evaluateEquality(result any, expr string) bool {
	sep := "="
	if strings.Contains(expr, "==") {
		sep = "=="
	}
	parts := strings.SplitN(expr, sep, 2)
	if len(parts) != 2 {
		return false
	}
	expected := strings.TrimSpace(parts[1])

	if s, ok := result.(string); ok {
		return s == expected
	}

	if expectedNum, err := strconv.ParseFloat(expected, 64); err == nil {
		if num, ok := extractNumber(result); ok {
			diff := num - expectedNum
			if diff < 0 {
				diff = -diff
			}
			return diff < 1e-9
		}
	}
	return false
}

func extractNumber(v any) (float64, bool) {
	if n, ok := asFloat64(v); ok {
		return n, true
	}
	if s, ok := v.(string); ok {
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			return n, true
		}
	}
	if obj, ok := v.(map[string]any); ok {
		for _, field := range commonNumericFields {
			if fv, ok := obj[field]; ok {
				if n, ok := asFloat64(fv); ok {
					return n, true
				}
			}
		}
	}
	if arr, ok := v.([]any); ok {
		for _, item := range arr {
			if n, ok := asFloat64(item); ok {
				return n, true
			}
		}
	}
	return 0, false
}
