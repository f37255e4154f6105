package agent

import "context"

// Client is the boundary to whatever LLM backend actually answers a
// thinking or task-execution prompt (spec §1 Non-goals: the LLM call
// itself is out of scope, only this seam is ours). Deliberately a trimmed,
// non-streaming cousin of the teacher's agent.LLMProvider — a single
// decision line or task result never needs the teacher's streaming
// CompletionChunk/Tool machinery, so Complete returns the full text.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// CompletionRequest mirrors the teacher's CompletionRequest shape
// (internal/agent/provider_types.go) scoped down to what a decision prompt
// needs: a system prompt plus one rendered user turn.
type CompletionRequest struct {
	Model    string
	System   string
	Messages []CompletionMessage
}

// CompletionMessage is one turn of the rendered conversation. Role follows
// the teacher's convention: "user" or "assistant".
type CompletionMessage struct {
	Role    string
	Content string
}
