package watchdog

import (
	"context"
	"testing"

	"github.com/agentmesh/core/internal/observability"
	"github.com/agentmesh/core/internal/toolexec"
	"github.com/agentmesh/core/pkg/domain"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestFrameworkEmitTriggersMatchingRule(t *testing.T) {
	var woken []string
	f := NewFramework(nil, func(_ context.Context, rule domain.WatchdogRule, _ toolexec.Event) {
		woken = append(woken, rule.TargetAgentID)
	})

	f.RegisterRule(domain.WatchdogRule{
		ID:            "r1",
		ToolID:        "score.compute",
		Condition:     domain.NumericRange(10, 20),
		TargetAgentID: "agent-a",
		Enabled:       true,
	})

	f.Emit(context.Background(), toolexec.Event{Kind: toolexec.EventPostExecute, ToolID: "score.compute", Result: 15.0})

	if len(woken) != 1 || woken[0] != "agent-a" {
		t.Fatalf("woken = %v, want [agent-a]", woken)
	}
}

func TestFrameworkDisabledRuleNeverFires(t *testing.T) {
	var woken []string
	f := NewFramework(nil, func(_ context.Context, rule domain.WatchdogRule, _ toolexec.Event) {
		woken = append(woken, rule.TargetAgentID)
	})
	f.RegisterRule(domain.WatchdogRule{ID: "r1", ToolID: "t", Condition: domain.NumericRange(0, 100), TargetAgentID: "a", Enabled: false})

	f.Emit(context.Background(), toolexec.Event{Kind: toolexec.EventPostExecute, ToolID: "t", Result: 50.0})

	if len(woken) != 0 {
		t.Fatalf("woken = %v, want none (rule disabled)", woken)
	}
}

func TestFrameworkGloballyDisabled(t *testing.T) {
	var woken []string
	f := NewFramework(nil, func(_ context.Context, rule domain.WatchdogRule, _ toolexec.Event) {
		woken = append(woken, rule.TargetAgentID)
	})
	f.RegisterRule(domain.WatchdogRule{ID: "r1", ToolID: "t", Condition: domain.NumericRange(0, 100), TargetAgentID: "a", Enabled: true})
	f.SetEnabled(false)

	f.Emit(context.Background(), toolexec.Event{Kind: toolexec.EventPostExecute, ToolID: "t", Result: 50.0})

	if len(woken) != 0 {
		t.Fatalf("woken = %v, want none (framework disabled)", woken)
	}
}

func TestProcessEventReturnsTargetAgents(t *testing.T) {
	f := NewFramework(nil, nil)
	f.RegisterRule(domain.WatchdogRule{ID: "r1", ToolID: "t", Condition: domain.StringContains("ok"), TargetAgentID: "agent-a", Enabled: true})

	triggered := f.ProcessEvent(toolexec.Event{Kind: toolexec.EventPostExecute, ToolID: "t", Result: "all ok"})
	if len(triggered) != 1 || triggered[0] != "agent-a" {
		t.Fatalf("triggered = %v, want [agent-a]", triggered)
	}
}

func TestListRulesByTag(t *testing.T) {
	f := NewFramework(nil, nil)
	f.RegisterRule(domain.WatchdogRule{ID: "r1", Tags: []string{"finance"}})
	f.RegisterRule(domain.WatchdogRule{ID: "r2", Tags: []string{"ops"}})

	got := f.ListRulesByTag("finance")
	if len(got) != 1 || got[0].ID != "r1" {
		t.Fatalf("ListRulesByTag(finance) = %+v, want [r1]", got)
	}
}

func TestRemoveAndSetRuleEnabled(t *testing.T) {
	f := NewFramework(nil, nil)
	f.RegisterRule(domain.WatchdogRule{ID: "r1", Enabled: true})

	if !f.SetRuleEnabled("r1", false) {
		t.Fatal("expected SetRuleEnabled to succeed for a known rule")
	}
	rule, err := f.GetRule("r1")
	if err != nil || rule.Enabled {
		t.Fatalf("GetRule() = %+v, err=%v, want Enabled=false", rule, err)
	}

	if _, ok := f.RemoveRule("r1"); !ok {
		t.Fatal("expected RemoveRule to report the rule existed")
	}
	if f.HasRule("r1") {
		t.Fatal("expected rule to be gone after RemoveRule")
	}
}

func TestEmitRecordsWatchdogHitMetric(t *testing.T) {
	f := NewFramework(nil, nil)
	metrics := observability.NewMetrics()
	f.SetMetrics(metrics)

	f.RegisterRule(domain.WatchdogRule{
		ID:            "r1",
		ToolID:        "score.compute",
		Condition:     domain.NumericRange(10, 20),
		TargetAgentID: "agent-a",
		Enabled:       true,
	})

	f.Emit(context.Background(), toolexec.Event{Kind: toolexec.EventPostExecute, ToolID: "score.compute", Result: 15.0})

	if got := testutil.ToFloat64(metrics.WatchdogRuleHits.WithLabelValues("r1", "score.compute")); got != 1 {
		t.Fatalf("WatchdogRuleHits = %v, want 1", got)
	}
}
