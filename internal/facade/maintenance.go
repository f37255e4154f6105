package facade

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// maintenanceScheduler runs the facade's periodic upkeep — mailbox/group
// GC and stale-peer pruning from SPEC_FULL.md §B — on robfig/cron/v3,
// already a module dependency (the teacher's own cron-expression parser
// usage in internal/cron/schedule.go); this is the one place in the
// module that drives the full cron.Cron scheduler rather than just its
// parser, since a facade is the only component with something worth
// scheduling repeatedly.
type maintenanceScheduler struct {
	facade *Facade
	logger *slog.Logger
	cron   *cron.Cron
}

func newMaintenanceScheduler(f *Facade, logger *slog.Logger) *maintenanceScheduler {
	return &maintenanceScheduler{facade: f, logger: logger, cron: cron.New()}
}

// Start schedules the sweep to run every minute and starts the
// underlying cron scheduler. ctx bounds each individual sweep, not the
// scheduler itself — Stop is what ends the recurring schedule.
func (m *maintenanceScheduler) Start(ctx context.Context) {
	_, err := m.cron.AddFunc("@every 1m", func() {
		m.sweep(ctx)
	})
	if err != nil {
		m.logger.Error("facade: failed to schedule maintenance sweep", "error", err)
		return
	}
	m.cron.Start()
}

// Stop halts the scheduler and waits for any in-flight sweep to finish.
func (m *maintenanceScheduler) Stop() {
	<-m.cron.Stop().Done()
}

func (m *maintenanceScheduler) sweep(ctx context.Context) {
	m.pruneStaleGroups()
	m.pruneStalePeers(ctx)
}

// pruneStaleGroups deletes any bus group whose members are all absent
// from the current organization — a department reshuffle or agent
// removal otherwise leaves orphaned fan-out channels running forever.
func (m *maintenanceScheduler) pruneStaleGroups() {
	org := m.facade.Organization()
	known := make(map[string]struct{}, len(org.Agents))
	for _, a := range org.Agents {
		known[a.ID] = struct{}{}
	}

	for _, g := range m.facade.bus.ListGroups() {
		stale := true
		for _, member := range g.Members {
			if _, ok := known[member]; ok {
				stale = false
				break
			}
		}
		if stale {
			m.facade.bus.DeleteGroup(g.ID)
			m.logger.Info("facade: pruned stale group", "group_id", g.ID)
		}
	}
}

// pruneStalePeers health-checks every remote agent route and unregisters
// the ones that no longer answer, so routeBroadcast/routeGroup stop
// wasting calls on dead nodes.
func (m *maintenanceScheduler) pruneStalePeers(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	for agentID, endpoint := range m.facade.router.ListRemoteAgents() {
		if !m.facade.client.HealthCheck(checkCtx, endpoint) {
			m.facade.router.UnregisterAgent(agentID)
			m.logger.Info("facade: pruned unreachable peer", "agent_id", agentID, "endpoint", endpoint)
		}
	}
}
