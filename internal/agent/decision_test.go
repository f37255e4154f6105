package agent

import (
	"testing"

	"github.com/agentmesh/core/pkg/domain"
)

// Grounded on core/agent.rs's test_decision_parsing.
func TestParseDecisionSendMessageDirect(t *testing.T) {
	decision := ParseDecision("SEND_MESSAGE agent-2 hello there")
	if decision.Kind != DecisionSendMessage {
		t.Fatalf("kind = %v", decision.Kind)
	}
	if decision.Target != domain.DirectTarget("agent-2") {
		t.Fatalf("target = %+v", decision.Target)
	}
	if decision.Content != "hello there" {
		t.Fatalf("content = %q", decision.Content)
	}
}

func TestParseDecisionSendMessageGroup(t *testing.T) {
	decision := ParseDecision("SEND_MESSAGE group-standup status please")
	if decision.Kind != DecisionSendMessage {
		t.Fatalf("kind = %v", decision.Kind)
	}
	if decision.Target != domain.GroupTarget("group-standup") {
		t.Fatalf("target = %+v", decision.Target)
	}
}

func TestParseDecisionCreateGroup(t *testing.T) {
	decision := ParseDecision("CREATE_GROUP eng-team agent-1,agent-2, agent-3")
	if decision.Kind != DecisionCreateGroup {
		t.Fatalf("kind = %v", decision.Kind)
	}
	if decision.GroupName != "eng-team" {
		t.Fatalf("name = %q", decision.GroupName)
	}
	want := []string{"agent-1", "agent-2", "agent-3"}
	if len(decision.GroupMembers) != len(want) {
		t.Fatalf("members = %+v", decision.GroupMembers)
	}
	for i, m := range want {
		if decision.GroupMembers[i] != m {
			t.Fatalf("members = %+v", decision.GroupMembers)
		}
	}
}

func TestParseDecisionExecuteTask(t *testing.T) {
	decision := ParseDecision("EXECUTE_TASK summarize the incident report")
	if decision.Kind != DecisionExecuteTask {
		t.Fatalf("kind = %v", decision.Kind)
	}
	if decision.Task != "summarize the incident report" {
		t.Fatalf("task = %q", decision.Task)
	}
}

func TestParseDecisionWait(t *testing.T) {
	if ParseDecision("WAIT").Kind != DecisionWait {
		t.Fatal("expected wait")
	}
}

func TestParseDecisionUnrecognizedDefaultsToWait(t *testing.T) {
	cases := []string{"", "   ", "do something useful", "SEND_MESSAGE onlytarget"}
	for _, c := range cases {
		if got := ParseDecision(c); got.Kind != DecisionWait {
			t.Fatalf("ParseDecision(%q) = %+v, want Wait", c, got)
		}
	}
}

func TestParseDecisionUsesFirstNonEmptyLine(t *testing.T) {
	decision := ParseDecision("\n\nWAIT\nSEND_MESSAGE agent-9 ignored")
	if decision.Kind != DecisionWait {
		t.Fatalf("kind = %v", decision.Kind)
	}
}

func TestFreshGroupIDIsSanitizedAndTimestamped(t *testing.T) {
	id := freshGroupID("Eng Team", 12345)
	if id != "group_eng_team_12345" {
		t.Fatalf("id = %q", id)
	}
}
