package facade

import (
	"context"
	"fmt"

	"github.com/agentmesh/core/internal/agent"
	"github.com/agentmesh/core/internal/toolexec"
	"github.com/agentmesh/core/pkg/domain"
)

// Run registers one agent.Runtime per organization agent, connects each to
// the bus, self-subscribes any declared watchdog rules, and starts the A2A
// server and periodic maintenance — spec §4.10's run(). Event-driven mode
// (the default: agents with no independent reason to tick) still get a
// ticking Runtime.Run loop, since this module has no separate "parked
// until woken" runtime variant; onWake additionally forces an out-of-band
// Step so a matched rule doesn't wait for the next tick.
func (f *Facade) Run(ctx context.Context) error {
	f.runtimesMu.Lock()
	if f.running {
		f.runtimesMu.Unlock()
		return fmt.Errorf("facade: already running")
	}
	f.running = true
	f.runtimesMu.Unlock()

	org := f.Organization()
	for _, a := range org.Agents {
		f.startAgent(a)
	}

	if f.server != nil && f.server.Addr() != "" {
		if err := f.server.Start(); err != nil {
			return fmt.Errorf("facade: start a2a server: %w", err)
		}
	}

	f.maintenance.Start(ctx)
	return nil
}

// startAgent builds and launches the runtime for a single agent,
// registering it with the router and wiring any declared watchdog rules.
// Safe to call after Run for an agent added to the organization later.
func (f *Facade) startAgent(a domain.Agent) {
	rt := agent.NewRuntime(a, f.llm, f.bus, routerAdapter{router: f.router, hub: f.observers}, f.logger)
	f.router.RegisterLocalAgent(a.ID)
	f.registerWatchedRules(a)

	loopCtx, cancel := context.WithCancel(context.Background())

	f.runtimesMu.Lock()
	f.runtimes[a.ID] = rt
	f.cancels[a.ID] = cancel
	f.runtimesMu.Unlock()

	f.loopWG.Add(1)
	go func() {
		defer f.loopWG.Done()
		rt.Run(loopCtx)
	}()
}

// registerWatchedRules turns an agent's declarative WatchedTools/
// TriggerConditions into watchdog rules targeting that agent, per spec
// §3's "optional declarative fields ... allow an agent to self-subscribe
// to watchdog rules at startup". A trigger condition missing for a given
// index falls back to StatusMatches("success"), matching
// pkg/domain.Agent's documented default.
func (f *Facade) registerWatchedRules(a domain.Agent) {
	for i, toolID := range a.WatchedTools {
		cond := domain.StatusMatches("success")
		if i < len(a.TriggerConditions) {
			cond = a.TriggerConditions[i]
		}
		f.watchdogFW.RegisterRule(domain.WatchdogRule{
			ID:            fmt.Sprintf("%s-watch-%d", a.ID, i),
			ToolID:        toolID,
			Condition:     cond,
			TargetAgentID: a.ID,
			Enabled:       true,
		})
	}
}

// onWake is the watchdog.Framework callback wired at construction: when a
// rule matches, it forces an immediate Step on the matched agent's
// runtime instead of waiting for that runtime's next tick.
func (f *Facade) onWake(ctx context.Context, rule domain.WatchdogRule, event toolexec.Event) {
	f.runtimesMu.Lock()
	rt, ok := f.runtimes[rule.TargetAgentID]
	f.runtimesMu.Unlock()
	if !ok {
		f.logger.Warn("facade: watchdog rule matched an agent with no running runtime", "rule_id", rule.ID, "agent_id", rule.TargetAgentID)
		return
	}
	go rt.Step(ctx)
}

// Stop cancels every agent loop, stops the A2A server and maintenance
// scheduler, and waits for in-flight loop iterations to return. Per spec
// §5, dropping the facade cancels all loops; Stop is that drop made
// explicit and waitable.
func (f *Facade) Stop(ctx context.Context) error {
	f.runtimesMu.Lock()
	cancels := f.cancels
	f.cancels = make(map[string]context.CancelFunc)
	f.runtimes = make(map[string]*agent.Runtime)
	f.running = false
	f.runtimesMu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	f.loopWG.Wait()

	f.maintenance.Stop()
	if f.server != nil {
		f.server.Stop(ctx)
	}

	if f.storeCloser != nil {
		if err := f.storeCloser.Close(); err != nil {
			return fmt.Errorf("facade: close store: %w", err)
		}
	}
	return nil
}
