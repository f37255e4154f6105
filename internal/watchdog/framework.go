// Package watchdog implements the event-to-wakeup pipeline: tool execution
// events are matched against registered rules, and a rule match resolves
// to the agent id that should be woken. Grounded on
// core/watchdog/{mod,condition,rule}.rs.
package watchdog

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/agentmesh/core/internal/apperr"
	"github.com/agentmesh/core/internal/observability"
	"github.com/agentmesh/core/internal/toolexec"
	"github.com/agentmesh/core/pkg/domain"
)

// ErrRuleNotFound is returned when a rule id has no registration.
var ErrRuleNotFound = errors.New("watchdog: rule not found")

// Handler observes every tool execution event that passes through the
// framework, regardless of whether it matches a rule. Grounded on
// EventHandler in the original source.
type Handler interface {
	HandleEvent(event toolexec.Event)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(event toolexec.Event)

// HandleEvent implements Handler.
func (f HandlerFunc) HandleEvent(event toolexec.Event) { f(event) }

// Dispatcher fans out events to every registered Handler, logging (but not
// propagating) handler errors so one broken handler never blocks another.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	logger   *slog.Logger
}

// NewDispatcher creates an empty Dispatcher.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{handlers: make(map[string]Handler), logger: logger}
}

// RegisterHandler adds or replaces the handler registered under name.
func (d *Dispatcher) RegisterHandler(name string, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[name] = handler
}

// Dispatch invokes every registered handler with event.
func (d *Dispatcher) Dispatch(event toolexec.Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for name, h := range d.handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					d.logger.Warn("watchdog handler panicked", "handler", name, "panic", r)
				}
			}()
			h.HandleEvent(event)
		}()
	}
}

// Framework holds the rule set and routes incoming tool events through the
// dispatcher, returning the set of agent ids a matching rule wants woken.
// Implements toolexec.EventSink so it can be wired straight into a
// toolexec.Registry.
type Framework struct {
	mu      sync.RWMutex
	rules   map[string]domain.WatchdogRule
	enabled bool

	dispatcher *Dispatcher
	logger     *slog.Logger

	onWake func(ctx context.Context, rule domain.WatchdogRule, event toolexec.Event)

	metrics *observability.Metrics
}

// SetMetrics attaches a metrics recorder; nil leaves rule hits unrecorded.
func (f *Framework) SetMetrics(metrics *observability.Metrics) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metrics = metrics
}

// NewFramework creates an enabled Framework. onWake, if non-nil, is called
// once per matching rule each time Emit processes a triggering event — the
// facade wires this to the bus to actually deliver a wake message.
func NewFramework(logger *slog.Logger, onWake func(ctx context.Context, rule domain.WatchdogRule, event toolexec.Event)) *Framework {
	if logger == nil {
		logger = slog.Default()
	}
	return &Framework{
		rules:      make(map[string]domain.WatchdogRule),
		enabled:    true,
		dispatcher: NewDispatcher(logger),
		logger:     logger,
		onWake:     onWake,
	}
}

// Dispatcher returns the framework's event dispatcher so callers can
// register additional observers.
func (f *Framework) Dispatcher() *Dispatcher { return f.dispatcher }

// RegisterRule adds or replaces a rule.
func (f *Framework) RegisterRule(rule domain.WatchdogRule) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules[rule.ID] = rule
}

// RemoveRule deletes a rule, returning it if it existed.
func (f *Framework) RemoveRule(ruleID string) (domain.WatchdogRule, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rules[ruleID]
	if ok {
		delete(f.rules, ruleID)
	}
	return r, ok
}

// GetRule returns the rule registered under ruleID.
func (f *Framework) GetRule(ruleID string) (domain.WatchdogRule, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	r, ok := f.rules[ruleID]
	if !ok {
		return domain.WatchdogRule{}, apperr.New(apperr.KindNotFound, ErrRuleNotFound)
	}
	return r, nil
}

// HasRule reports whether ruleID is registered.
func (f *Framework) HasRule(ruleID string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.rules[ruleID]
	return ok
}

// ListRules returns every registered rule.
func (f *Framework) ListRules() []domain.WatchdogRule {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]domain.WatchdogRule, 0, len(f.rules))
	for _, r := range f.rules {
		out = append(out, r)
	}
	return out
}

// ListRulesByTag returns every enabled-or-not rule carrying tag. This
// supplements the original framework's listing with the tag index
// WatchdogRule.Tags already carries but core/watchdog/mod.rs never
// exposed a query for.
func (f *Framework) ListRulesByTag(tag string) []domain.WatchdogRule {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var out []domain.WatchdogRule
	for _, r := range f.rules {
		if r.HasTag(tag) {
			out = append(out, r)
		}
	}
	return out
}

// SetRuleEnabled toggles a rule's Enabled flag, returning false if ruleID
// is unknown.
func (f *Framework) SetRuleEnabled(ruleID string, enabled bool) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rules[ruleID]
	if !ok {
		return false
	}
	r.Enabled = enabled
	f.rules[ruleID] = r
	return true
}

// IsEnabled reports whether the framework as a whole is processing events.
func (f *Framework) IsEnabled() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.enabled
}

// SetEnabled enables or disables the whole framework; while disabled, Emit
// is a no-op.
func (f *Framework) SetEnabled(enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled = enabled
}

// Emit implements toolexec.EventSink: it dispatches event to every
// registered Handler, then evaluates every rule against it, invoking
// onWake for each match.
func (f *Framework) Emit(ctx context.Context, event toolexec.Event) {
	f.mu.RLock()
	enabled := f.enabled
	rules := make([]domain.WatchdogRule, 0, len(f.rules))
	for _, r := range f.rules {
		rules = append(rules, r)
	}
	f.mu.RUnlock()

	if !enabled {
		return
	}

	f.dispatcher.Dispatch(event)

	for _, rule := range rules {
		if !ShouldTrigger(rule, event) {
			continue
		}
		f.logger.Info("watchdog rule triggered", "rule_id", rule.ID, "tool_id", rule.ToolID, "target_agent_id", rule.TargetAgentID)
		f.metrics.RecordWatchdogHit(rule.ID, rule.ToolID)
		if f.onWake != nil {
			f.onWake(ctx, rule, event)
		}
	}
}

// ProcessEvent evaluates event against every rule and returns the target
// agent ids of every match, without requiring an onWake callback. This
// mirrors WatchdogFramework::process_event from the original source for
// callers that want the matches synchronously instead of via Emit's
// callback.
func (f *Framework) ProcessEvent(event toolexec.Event) []string {
	f.mu.RLock()
	enabled := f.enabled
	rules := make([]domain.WatchdogRule, 0, len(f.rules))
	for _, r := range f.rules {
		rules = append(rules, r)
	}
	f.mu.RUnlock()

	if !enabled {
		return nil
	}

	f.dispatcher.Dispatch(event)

	var triggered []string
	for _, rule := range rules {
		if ShouldTrigger(rule, event) {
			triggered = append(triggered, rule.TargetAgentID)
		}
	}
	return triggered
}
