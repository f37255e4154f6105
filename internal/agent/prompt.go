package agent

import (
	"fmt"
	"strings"

	"github.com/agentmesh/core/pkg/domain"
)

// decisionGrammarHelp is appended to every thinking prompt so the model
// always sees the exact mini-grammar ParseDecision understands. Grounded
// on core/agent.rs's build_thinking_prompt, re-expressed in English to
// match this module's idiom rather than translated verbatim.
const decisionGrammarHelp = `
Decide your next action. You may:
1. SEND_MESSAGE <target> <content> - send a message (target is an agent id, or a group id prefixed with group-)
2. CREATE_GROUP <group name> <member1,member2,...> - create a group chat
3. EXECUTE_TASK <task description> - execute a task
4. WAIT - wait for now

Respond with your decision as a single line:
`

func thinkingPrompt(a domain.Agent, c Context) string {
	var b strings.Builder
	b.WriteString(a.Role.SystemPrompt)
	b.WriteString("\n\nCurrent situation:\n")

	if len(c.UnreadMessages) > 0 {
		b.WriteString("\nUnread messages:\n")
		for _, msg := range c.UnreadMessages {
			fmt.Fprintf(&b, "- [%s]: %s\n", msg.From, msg.Content)
		}
	}

	if c.CurrentTask != "" {
		fmt.Fprintf(&b, "\nCurrent task: %s\n", c.CurrentTask)
	}

	b.WriteString(decisionGrammarHelp)
	return b.String()
}

func taskPrompt(a domain.Agent, task string) string {
	return fmt.Sprintf("%s\n\nComplete the following task:\n%s\n", a.Role.SystemPrompt, task)
}
