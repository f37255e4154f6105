package toolexec

import (
	"context"
	"errors"
	"testing"

	"github.com/agentmesh/core/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeSkillChecker struct {
	allowed map[string]bool
}

func (f fakeSkillChecker) CanCallTool(toolID string, callerSkills []string) bool {
	return f.allowed[toolID]
}

type recordingSink struct {
	events []Event
}

func (s *recordingSink) Emit(_ context.Context, event Event) {
	s.events = append(s.events, event)
}

func TestExecuteRoutesToMatchingExecutor(t *testing.T) {
	r := NewRegistry(nil, nil)
	r.Register(NewFnExecutor("echo", func(_ context.Context, params map[string]any, _ CallContext) (any, error) {
		return params["text"], nil
	}))

	result := r.Execute(context.Background(), "echo", map[string]any{"text": "hi"}, NewCallContext("caller-1"))
	if !result.Success || result.Data != "hi" {
		t.Fatalf("Execute() = %+v, want success with data=hi", result)
	}
}

func TestExecuteUnknownToolFails(t *testing.T) {
	r := NewRegistry(nil, nil)
	result := r.Execute(context.Background(), "ghost", nil, NewCallContext("caller-1"))
	if result.Success {
		t.Fatal("expected failure for an unregistered tool")
	}
}

func TestExecuteSurfacesHandlerError(t *testing.T) {
	r := NewRegistry(nil, nil)
	r.Register(NewFnExecutor("boom", func(context.Context, map[string]any, CallContext) (any, error) {
		return nil, errors.New("kaboom")
	}))

	result := r.Execute(context.Background(), "boom", nil, NewCallContext("caller-1"))
	if result.Success || result.Error != "kaboom" {
		t.Fatalf("Execute() = %+v, want failure with error=kaboom", result)
	}
}

func TestExecuteWithSkillsDeniesUnauthorizedCaller(t *testing.T) {
	r := NewRegistry(fakeSkillChecker{allowed: map[string]bool{}}, nil)
	r.Register(NewFnExecutor("secret", func(context.Context, map[string]any, CallContext) (any, error) {
		return "leaked", nil
	}))

	result := r.ExecuteWithSkills(context.Background(), "secret", nil, NewCallContext("caller-1"), []string{"analyst"})
	if result.Success {
		t.Fatal("expected the skill checker to deny this call")
	}
}

func TestExecuteWithSkillsAllowsAuthorizedCaller(t *testing.T) {
	r := NewRegistry(fakeSkillChecker{allowed: map[string]bool{"secret": true}}, nil)
	r.Register(NewFnExecutor("secret", func(context.Context, map[string]any, CallContext) (any, error) {
		return "ok", nil
	}))

	result := r.ExecuteWithSkills(context.Background(), "secret", nil, NewCallContext("caller-1"), []string{"analyst"})
	if !result.Success || result.Data != "ok" {
		t.Fatalf("ExecuteWithSkills() = %+v, want success with data=ok", result)
	}
}

func TestExecuteEmitsLifecycleEvents(t *testing.T) {
	sink := &recordingSink{}
	r := NewRegistry(nil, sink)
	r.Register(NewFnExecutor("echo", func(context.Context, map[string]any, CallContext) (any, error) {
		return "done", nil
	}))

	r.Execute(context.Background(), "echo", nil, NewCallContext("caller-1"))

	if len(sink.events) != 2 {
		t.Fatalf("got %d events, want 2 (pre + post)", len(sink.events))
	}
	if sink.events[0].Kind != EventPreExecute || sink.events[1].Kind != EventPostExecute {
		t.Fatalf("events = %+v, want [pre, post]", sink.events)
	}
}

func TestExecuteEmitsErrorEvent(t *testing.T) {
	sink := &recordingSink{}
	r := NewRegistry(nil, sink)
	r.Register(NewFnExecutor("boom", func(context.Context, map[string]any, CallContext) (any, error) {
		return nil, errors.New("kaboom")
	}))

	r.Execute(context.Background(), "boom", nil, NewCallContext("caller-1"))

	if len(sink.events) != 2 {
		t.Fatalf("got %d events, want 2 (pre + error)", len(sink.events))
	}
	if sink.events[1].Kind != EventError || sink.events[1].Err != "kaboom" {
		t.Fatalf("events[1] = %+v, want Kind=error Err=kaboom", sink.events[1])
	}
}

func TestExecuteRecordsToolCallMetric(t *testing.T) {
	r := NewRegistry(nil, nil)
	metrics := observability.NewMetrics()
	r.SetObservability(metrics, nil)
	r.Register(NewFnExecutor("echo", func(_ context.Context, params map[string]any, _ CallContext) (any, error) {
		return params["text"], nil
	}))

	r.Execute(context.Background(), "echo", map[string]any{"text": "hi"}, NewCallContext("caller-1"))

	if got := testutil.ToFloat64(metrics.ToolCallCounter.WithLabelValues("echo", "success")); got != 1 {
		t.Fatalf("ToolCallCounter = %v, want 1", got)
	}
}
