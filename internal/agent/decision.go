// Package agent implements the per-agent cooperative think/act loop (spec
// §4.9): drain the mailbox, ask an LLM for one decision in a fixed
// mini-grammar, execute it through the bus/router, repeat. Grounded on
// core/agent.rs's AgentRuntime/Decision/parse_decision, adapted to the
// teacher's ticker-loop idiom (internal/gateway/memory_consolidation.go)
// in place of Rust's tokio task.
package agent

import (
	"strconv"
	"strings"

	"github.com/agentmesh/core/pkg/domain"
)

// DecisionKind discriminates the mini-grammar's four forms.
type DecisionKind int

const (
	DecisionWait DecisionKind = iota
	DecisionSendMessage
	DecisionCreateGroup
	DecisionExecuteTask
)

// Decision is the parsed result of one LLM turn. Only the fields relevant
// to Kind are populated.
type Decision struct {
	Kind DecisionKind

	// DecisionSendMessage
	Target  domain.MessageTarget
	Content string

	// DecisionCreateGroup
	GroupName    string
	GroupMembers []string

	// DecisionExecuteTask
	Task string
}

const (
	prefixSendMessage = "SEND_MESSAGE "
	prefixCreateGroup = "CREATE_GROUP "
	prefixExecuteTask = "EXECUTE_TASK "
	literalWait       = "WAIT"
	groupTargetPrefix = "group-"
)

// ParseDecision reads the first non-empty line of an LLM response and
// matches it against the mini-grammar described in spec §4.9. Anything
// that doesn't match — including an empty response — is WAIT, matching
// parse_decision's "unwrap_or(WAIT)" fallback.
func ParseDecision(response string) Decision {
	line := firstNonEmptyLine(response)

	switch {
	case strings.HasPrefix(line, prefixSendMessage):
		rest := strings.TrimSpace(line[len(prefixSendMessage):])
		parts := strings.SplitN(rest, " ", 2)
		if len(parts) == 2 {
			return Decision{Kind: DecisionSendMessage, Target: parseTarget(parts[0]), Content: parts[1]}
		}
	case strings.HasPrefix(line, prefixCreateGroup):
		rest := strings.TrimSpace(line[len(prefixCreateGroup):])
		parts := strings.SplitN(rest, " ", 2)
		if len(parts) == 2 {
			return Decision{Kind: DecisionCreateGroup, GroupName: parts[0], GroupMembers: splitMembers(parts[1])}
		}
	case strings.HasPrefix(line, prefixExecuteTask):
		task := strings.TrimSpace(line[len(prefixExecuteTask):])
		return Decision{Kind: DecisionExecuteTask, Task: task}
	}

	return Decision{Kind: DecisionWait}
}

func firstNonEmptyLine(response string) string {
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			return line
		}
	}
	return literalWait
}

func parseTarget(raw string) domain.MessageTarget {
	if strings.HasPrefix(raw, groupTargetPrefix) {
		return domain.GroupTarget(raw)
	}
	return domain.DirectTarget(raw)
}

func splitMembers(raw string) []string {
	parts := strings.Split(raw, ",")
	members := make([]string, 0, len(parts))
	for _, p := range parts {
		if m := strings.TrimSpace(p); m != "" {
			members = append(members, m)
		}
	}
	return members
}

// freshGroupID derives a fresh group id from name and a millisecond
// timestamp, matching spec §4.9's `group_<name>_<timestamp>` scheme. name
// is sanitized to keep the id filesystem/URL-safe.
func freshGroupID(name string, nowMillis int64) string {
	safe := strings.Map(func(r rune) rune {
		if r == ' ' {
			return '_'
		}
		return r
	}, strings.ToLower(strings.TrimSpace(name)))
	return "group_" + safe + "_" + strconv.FormatInt(nowMillis, 10)
}
