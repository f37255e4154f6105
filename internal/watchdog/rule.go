package watchdog

import (
	"github.com/agentmesh/core/internal/toolexec"
	"github.com/agentmesh/core/pkg/domain"
)

// ShouldTrigger reports whether rule fires for event: the rule must be
// enabled, the event must be a successful PostExecute for rule's tool, and
// the result must satisfy rule's condition.
func ShouldTrigger(rule domain.WatchdogRule, event toolexec.Event) bool {
	if !rule.Enabled {
		return false
	}
	if event.Kind != toolexec.EventPostExecute || event.ToolID != rule.ToolID {
		return false
	}
	return EvaluateCondition(rule.Condition, event.Result)
}
