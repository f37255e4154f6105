package domain

// ConditionKind discriminates a TriggerCondition.
type ConditionKind string

const (
	ConditionNumericRange   ConditionKind = "numeric_range"
	ConditionStringContains ConditionKind = "string_contains"
	ConditionStatusMatches  ConditionKind = "status_matches"
	ConditionCustomExpr     ConditionKind = "custom_expression"
)

// TriggerCondition is the union of watchdog rule conditions described in
// spec §3/§4.6. Only the fields relevant to Kind are meaningful.
type TriggerCondition struct {
	Kind ConditionKind `json:"kind"`

	// NumericRange
	Min float64 `json:"min,omitempty"`
	Max float64 `json:"max,omitempty"`

	// StringContains
	Content string `json:"content,omitempty"`

	// StatusMatches
	ExpectedStatus string `json:"expected_status,omitempty"`

	// CustomExpression — "<field> <op> <literal>"; the field name is
	// parsed but intentionally ignored, matching the original source
	// (see internal/watchdog doc comment on evaluateCustomExpression).
	Expression string `json:"expression,omitempty"`
}

// NumericRange builds a NumericRange condition.
func NumericRange(min, max float64) TriggerCondition {
	return TriggerCondition{Kind: ConditionNumericRange, Min: min, Max: max}
}

// StringContains builds a StringContains condition.
func StringContains(content string) TriggerCondition {
	return TriggerCondition{Kind: ConditionStringContains, Content: content}
}

// StatusMatches builds a StatusMatches condition.
func StatusMatches(expected string) TriggerCondition {
	return TriggerCondition{Kind: ConditionStatusMatches, ExpectedStatus: expected}
}

// CustomExpression builds a CustomExpression condition.
func CustomExpression(expr string) TriggerCondition {
	return TriggerCondition{Kind: ConditionCustomExpr, Expression: expr}
}

// WatchdogRule binds a tool id + condition to a target agent to wake.
type WatchdogRule struct {
	ID            string           `json:"id"`
	ToolID        string           `json:"tool_id"`
	Condition     TriggerCondition `json:"condition"`
	TargetAgentID string           `json:"target_agent_id"`
	Enabled       bool             `json:"enabled"`
	Tags          []string         `json:"tags,omitempty"`
}

// HasTag reports whether the rule carries the given tag.
func (r WatchdogRule) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
