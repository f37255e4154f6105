// Package toolexec routes tool invocations to the executor that handles
// them, optionally gating the call through a skill manager and emitting
// watchdog events around the call. Grounded on
// infrastructure/capability/executor.rs's CapabilityExecutorRegistry,
// generalized here to the tool surface (spec §4.5); internal/watchdog
// reuses the same Event type for capability calls.
package toolexec

import (
	"context"
	"fmt"
	"time"

	"github.com/agentmesh/core/internal/observability"
)

// CallContext carries metadata about who is invoking a tool and when.
type CallContext struct {
	CallerID  string
	Timestamp time.Time
	Metadata  map[string]string
}

// NewCallContext builds a CallContext stamped with the current time.
func NewCallContext(callerID string) CallContext {
	return CallContext{CallerID: callerID, Timestamp: time.Now(), Metadata: make(map[string]string)}
}

// Executor handles invocations for the tool ids it reports supporting.
type Executor interface {
	// CanExecute reports whether this executor handles toolID.
	CanExecute(toolID string) bool
	// Execute runs toolID with params and returns its result.
	Execute(ctx context.Context, toolID string, params map[string]any, call CallContext) (any, error)
}

// SkillGatedExecutor is implemented by executors that additionally
// restrict which caller skill sets may invoke them, beyond the registry's
// own skill-manager check. Most executors don't need this; Registry treats
// a missing implementation as "no additional restriction".
type SkillGatedExecutor interface {
	CanExecuteWithSkills(toolID string, callerSkills []string) bool
}

// SkillChecker is the subset of skills.Manager the registry needs, kept as
// an interface so toolexec does not import internal/skills directly and
// can be unit-tested without a real Manager.
type SkillChecker interface {
	CanCallTool(toolID string, callerSkills []string) bool
}

// Result is the outcome of a tool call: exactly one of Data or Error is
// meaningful, mirroring CapabilityResult from the original source.
// Artifacts is optional, populated only by executors producing file-like
// output (src/a2a.rs's TaskResult::Success{artifacts}) — most executors
// leave it nil.
type Result struct {
	Success   bool
	Data      any
	Error     string
	Artifacts []Artifact `json:",omitempty"`
}

// Artifact is a named, typed piece of output a tool call produced
// alongside its plain Data, e.g. a generated file or report.
type Artifact struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Content     string `json:"content"`
}

func success(data any) Result { return Result{Success: true, Data: data} }
func failure(format string, args ...any) Result {
	return Result{Success: false, Error: fmt.Sprintf(format, args...)}
}

// EventKind discriminates the phase of a tool call an Event represents.
type EventKind string

const (
	EventPreExecute  EventKind = "pre_execute"
	EventPostExecute EventKind = "post_execute"
	EventError       EventKind = "error"
)

// Event describes one phase of a tool invocation, passed to an EventSink so
// the watchdog framework (or anything else) can observe tool traffic
// without the executor registry depending on it.
type Event struct {
	Kind    EventKind
	ToolID  string
	Params  map[string]any
	Result  any
	Err     string
	Context CallContext
}

// EventSink receives lifecycle events from Registry.Execute /
// ExecuteWithSkills. internal/watchdog's framework implements this.
type EventSink interface {
	Emit(ctx context.Context, event Event)
}

// Registry routes tool ids to the executor that handles them, the way
// CapabilityExecutorRegistry does for capabilities in the original source.
type Registry struct {
	executors []Executor
	skills    SkillChecker
	sink      EventSink

	metrics *observability.Metrics
	tracer  *observability.Tracer
}

// NewRegistry creates an empty Registry. skills and sink may both be nil:
// a nil skills checker allows every call through ExecuteWithSkills, and a
// nil sink simply emits no events.
func NewRegistry(skills SkillChecker, sink EventSink) *Registry {
	return &Registry{skills: skills, sink: sink}
}

// SetObservability attaches metrics and tracing; either may be nil.
func (r *Registry) SetObservability(metrics *observability.Metrics, tracer *observability.Tracer) {
	r.metrics = metrics
	r.tracer = tracer
}

// Register adds an executor to the routing table. Executors are tried in
// registration order; the first whose CanExecute matches wins.
func (r *Registry) Register(executor Executor) {
	r.executors = append(r.executors, executor)
}

func (r *Registry) find(toolID string, callerSkills []string) Executor {
	for _, e := range r.executors {
		if !e.CanExecute(toolID) {
			continue
		}
		if gated, ok := e.(SkillGatedExecutor); ok && callerSkills != nil {
			if !gated.CanExecuteWithSkills(toolID, callerSkills) {
				continue
			}
		}
		return e
	}
	return nil
}

// CanExecute reports whether any registered executor handles toolID.
func (r *Registry) CanExecute(toolID string) bool {
	return r.find(toolID, nil) != nil
}

// Execute routes toolID to its executor, with no skill check. Use
// ExecuteWithSkills when the call needs to be gated.
func (r *Registry) Execute(ctx context.Context, toolID string, params map[string]any, call CallContext) Result {
	return r.execute(ctx, toolID, params, call, nil, false)
}

// ExecuteWithSkills first confirms the skill checker allows callerSkills to
// invoke toolID, then routes to the first executor that both handles the
// tool and (if it implements SkillGatedExecutor) accepts those skills.
func (r *Registry) ExecuteWithSkills(ctx context.Context, toolID string, params map[string]any, call CallContext, callerSkills []string) Result {
	if r.skills != nil && !r.skills.CanCallTool(toolID, callerSkills) {
		return failure("insufficient skills to execute tool: %s", toolID)
	}
	return r.execute(ctx, toolID, params, call, callerSkills, true)
}

func (r *Registry) execute(ctx context.Context, toolID string, params map[string]any, call CallContext, callerSkills []string, skillChecked bool) Result {
	ctx, span := r.tracer.TraceToolExecution(ctx, toolID)
	defer span.End()
	start := time.Now()

	r.emit(ctx, Event{Kind: EventPreExecute, ToolID: toolID, Params: params, Context: call})

	var executor Executor
	if skillChecked {
		executor = r.find(toolID, callerSkills)
	} else {
		executor = r.find(toolID, nil)
	}
	if executor == nil {
		err := fmt.Errorf("no executor found for tool: %s", toolID)
		r.tracer.RecordError(span, err)
		r.metrics.RecordToolCall(toolID, "error", time.Since(start))
		return failure("%s", err.Error())
	}

	data, err := executor.Execute(ctx, toolID, params, call)
	if err != nil {
		r.emit(ctx, Event{Kind: EventError, ToolID: toolID, Err: err.Error(), Context: call})
		r.tracer.RecordError(span, err)
		r.metrics.RecordToolCall(toolID, "error", time.Since(start))
		return failure("%s", err.Error())
	}

	r.emit(ctx, Event{Kind: EventPostExecute, ToolID: toolID, Result: data, Context: call})
	r.metrics.RecordToolCall(toolID, "success", time.Since(start))
	result := success(data)
	if producer, ok := data.(artifactProducer); ok {
		result.Artifacts = producer.Artifacts()
	}
	return result
}

// artifactProducer is implemented by an executor's result value when it
// wants to report file-like output alongside its plain Data. Optional: the
// common case is a result with no artifacts.
type artifactProducer interface {
	Artifacts() []Artifact
}

func (r *Registry) emit(ctx context.Context, event Event) {
	if r.sink != nil {
		r.sink.Emit(ctx, event)
	}
}
