package watchdog

import (
	"testing"

	"github.com/agentmesh/core/pkg/domain"
)

func TestNumericRangeDirectValue(t *testing.T) {
	cond := domain.NumericRange(10, 20)
	if !EvaluateCondition(cond, 15.0) {
		t.Fatal("expected 15 to be in range [10,20]")
	}
	if EvaluateCondition(cond, 25.0) {
		t.Fatal("expected 25 to be out of range [10,20]")
	}
}

func TestNumericRangeObjectFieldFallback(t *testing.T) {
	cond := domain.NumericRange(10, 20)
	if !EvaluateCondition(cond, map[string]any{"value": 15.0}) {
		t.Fatal("expected object's value field to be checked")
	}
	if !EvaluateCondition(cond, map[string]any{"unrelated": 15.0}) {
		t.Fatal("expected any numeric object field to be checked, not just the common names")
	}
}

func TestNumericRangeArrayFallback(t *testing.T) {
	cond := domain.NumericRange(10, 20)
	if !EvaluateCondition(cond, []any{5.0, 15.0, 30.0}) {
		t.Fatal("expected array elements to be checked")
	}
}

func TestStringContains(t *testing.T) {
	cond := domain.StringContains("success")
	if !EvaluateCondition(cond, "operation was successful") {
		t.Fatal("expected substring match")
	}
	if EvaluateCondition(cond, "operation failed") {
		t.Fatal("expected no match")
	}
}

func TestStatusMatchesDirectAndObjectField(t *testing.T) {
	cond := domain.StatusMatches("success")
	if !EvaluateCondition(cond, "success") {
		t.Fatal("expected direct string match")
	}
	if !EvaluateCondition(cond, map[string]any{"status": "success"}) {
		t.Fatal("expected object status field match")
	}
	if EvaluateCondition(cond, map[string]any{"status": "failure"}) {
		t.Fatal("expected no match for a differing status field")
	}
}

func TestCustomExpressionComparisonIgnoresFieldName(t *testing.T) {
	cond := domain.CustomExpression("value > 10")
	if !EvaluateCondition(cond, map[string]any{"value": 15.0}) {
		t.Fatal("expected value field to satisfy value > 10")
	}

	// The field name in the expression is parsed but never consulted:
	// any common numeric field on the result satisfies the comparison,
	// not just one literally named "value".
	if !EvaluateCondition(cond, map[string]any{"score": 15.0}) {
		t.Fatal("expected the field name to be ignored and score to still satisfy the comparison")
	}
}

func TestCustomExpressionEquality(t *testing.T) {
	cond := domain.CustomExpression("status = success")
	if !EvaluateCondition(cond, "success") {
		t.Fatal("expected equality expression to match the plain string result")
	}
}

func TestCustomExpressionFallsBackToStringContains(t *testing.T) {
	cond := domain.CustomExpression("hello")
	if !EvaluateCondition(cond, "hello world") {
		t.Fatal("expected an expression with no operator to behave like StringContains")
	}
}
