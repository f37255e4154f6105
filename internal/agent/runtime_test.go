package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/agentmesh/core/internal/bus"
	"github.com/agentmesh/core/pkg/domain"
)

// scriptedLLM returns queued responses in order, looping on the last one
// once exhausted, and records every request it was handed.
type scriptedLLM struct {
	mu        sync.Mutex
	responses []string
	calls     []CompletionRequest
	err       error
}

func (l *scriptedLLM) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, req)
	if l.err != nil {
		return "", l.err
	}
	if len(l.responses) == 0 {
		return "WAIT", nil
	}
	next := l.responses[0]
	if len(l.responses) > 1 {
		l.responses = l.responses[1:]
	}
	return next, nil
}

func (l *scriptedLLM) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.calls)
}

// fakeRouter records routed messages and created groups without touching
// a real bus or HTTP client.
type fakeRouter struct {
	mu       sync.Mutex
	routed   []domain.Message
	created  []domain.Group
	routeErr error
}

func (f *fakeRouter) Route(ctx context.Context, msg domain.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.routeErr != nil {
		return f.routeErr
	}
	f.routed = append(f.routed, msg)
	return nil
}

func (f *fakeRouter) CreateGroup(ctx context.Context, id, name, creatorID string, members []string) (domain.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g := domain.Group{ID: id, Name: name, CreatorID: creatorID, Members: members}
	f.created = append(f.created, g)
	return g, nil
}

func testAgent(id string) domain.Agent {
	return domain.Agent{
		ID:   id,
		Name: id,
		Role: domain.Role{SystemPrompt: "you are a test agent"},
		LLM:  domain.LLMConfig{Model: "test-model"},
	}
}

func TestStepSendMessageRoutesThroughRouter(t *testing.T) {
	b := bus.New(nil)
	router := &fakeRouter{}
	llm := &scriptedLLM{responses: []string{"SEND_MESSAGE agent-2 hello"}}

	rt := NewRuntime(testAgent("agent-1"), llm, b, router, nil)
	rt.Step(context.Background())

	if len(router.routed) != 1 {
		t.Fatalf("routed = %+v", router.routed)
	}
	msg := router.routed[0]
	if msg.From != "agent-1" || msg.To != domain.DirectTarget("agent-2") || msg.Content != "hello" {
		t.Fatalf("msg = %+v", msg)
	}
}

func TestStepCreateGroupAddsCreatorIfMissing(t *testing.T) {
	b := bus.New(nil)
	router := &fakeRouter{}
	llm := &scriptedLLM{responses: []string{"CREATE_GROUP standup agent-2,agent-3"}}

	rt := NewRuntime(testAgent("agent-1"), llm, b, router, nil)
	rt.Step(context.Background())

	if len(router.created) != 1 {
		t.Fatalf("created = %+v", router.created)
	}
	g := router.created[0]
	if g.CreatorID != "agent-1" {
		t.Fatalf("creator = %q", g.CreatorID)
	}
	found := false
	for _, m := range g.Members {
		if m == "agent-1" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected creator auto-added, members = %+v", g.Members)
	}
}

func TestStepDrainsMailboxIntoContext(t *testing.T) {
	b := bus.New(nil)
	router := &fakeRouter{}
	llm := &scriptedLLM{responses: []string{"WAIT"}}

	rt := NewRuntime(testAgent("agent-1"), llm, b, router, nil)
	b.Send(context.Background(), domain.Message{ID: "m1", From: "agent-2", To: domain.DirectTarget("agent-1"), Content: "ping"})

	done := make(chan struct{})
	go func() { rt.Step(context.Background()); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Step blocked")
	}

	if llm.callCount() != 1 {
		t.Fatalf("calls = %d", llm.callCount())
	}
	if len(llm.calls[0].Messages) != 1 {
		t.Fatalf("request = %+v", llm.calls[0])
	}
}

func TestStepThinkErrorLogsAndReturns(t *testing.T) {
	b := bus.New(nil)
	router := &fakeRouter{}
	llm := &scriptedLLM{err: errors.New("llm unavailable")}

	rt := NewRuntime(testAgent("agent-1"), llm, b, router, nil)
	rt.Step(context.Background())

	if len(router.routed) != 0 || len(router.created) != 0 {
		t.Fatalf("expected no side effects on think error, routed=%+v created=%+v", router.routed, router.created)
	}
}

func TestStepRouteErrorIsRecordedNotPropagated(t *testing.T) {
	b := bus.New(nil)
	router := &fakeRouter{routeErr: errors.New("peer unreachable")}
	llm := &scriptedLLM{responses: []string{"SEND_MESSAGE agent-2 hi"}}

	rt := NewRuntime(testAgent("agent-1"), llm, b, router, nil)
	rt.Step(context.Background())
}

func TestEnqueueTaskIsConsumedOnce(t *testing.T) {
	b := bus.New(nil)
	router := &fakeRouter{}
	llm := &scriptedLLM{responses: []string{"WAIT", "WAIT"}}

	rt := NewRuntime(testAgent("agent-1"), llm, b, router, nil)
	rt.EnqueueTask("investigate outage")

	rt.Step(context.Background())
	if llm.calls[0].Messages[0].Content == "" {
		t.Fatal("expected rendered prompt")
	}

	task, ok := rt.takeTask()
	if ok || task != "" {
		t.Fatalf("expected task already consumed, got %q ok=%v", task, ok)
	}
}
