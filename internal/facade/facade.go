// Package facade composes every other package into the single entry point
// an application constructs: the "Company" facade of spec §4.10, grounded
// on the teacher's internal/gateway.Server composition root
// (lifecycle.go's Start/Stop, server.go's field set) scaled down to this
// module's ten components instead of the teacher's several dozen.
package facade

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/agentmesh/core/internal/a2a"
	"github.com/agentmesh/core/internal/agent"
	"github.com/agentmesh/core/internal/bus"
	"github.com/agentmesh/core/internal/config"
	"github.com/agentmesh/core/internal/observability"
	"github.com/agentmesh/core/internal/skills"
	"github.com/agentmesh/core/internal/store"
	"github.com/agentmesh/core/internal/store/memstore"
	"github.com/agentmesh/core/internal/store/pgstore"
	"github.com/agentmesh/core/internal/store/sqlitestore"
	"github.com/agentmesh/core/internal/toolcat"
	"github.com/agentmesh/core/internal/toolexec"
	"github.com/agentmesh/core/internal/watchdog"
	"github.com/agentmesh/core/pkg/domain"
)

// Facade owns the lifecycle of every component spec §4.10 lists:
// organization state, the store, the bus, the A2A router/server/client,
// the tool/capability catalog, the skill manager, the tool executor, the
// watchdog framework, and one agent.Runtime per organization agent.
// Dropping a Facade (calling Stop) cancels every agent loop, matching
// spec §5's "dropping the facade cancels all loops" cancellation rule.
type Facade struct {
	logger *slog.Logger

	store       store.Store
	storeCloser io.Closer

	orgMu sync.RWMutex
	org   domain.Organization

	bus    *bus.Bus
	router *a2a.Router
	server *a2a.Server
	client *a2a.Client

	tools        *toolcat.ToolRegistry
	capabilities *toolcat.CapabilityRegistry
	skillManager *skills.Manager
	toolExec     *toolexec.Registry
	watchdogFW   *watchdog.Framework

	llm agent.Client

	runtimesMu sync.Mutex
	runtimes   map[string]*agent.Runtime
	cancels    map[string]context.CancelFunc
	loopWG     sync.WaitGroup
	running    bool

	observers *messageHub

	maintenance *maintenanceScheduler

	metrics *observability.Metrics
	tracer  *observability.Tracer
}

// routerAdapter wraps an *a2a.Router so every decision-driven send also
// reaches subscribe_messages observers, without internal/agent importing
// internal/a2a or internal/facade directly — the same "publish after
// delivery" idea as bus.Send, one layer up.
type routerAdapter struct {
	router *a2a.Router
	hub    *messageHub
}

func (r routerAdapter) Route(ctx context.Context, msg domain.Message) error {
	err := r.router.Route(ctx, msg)
	if err == nil {
		r.hub.publish(msg)
	}
	return err
}

func (r routerAdapter) CreateGroup(ctx context.Context, id, name, creatorID string, members []string) (domain.Group, error) {
	return r.router.CreateGroup(ctx, id, name, creatorID, members)
}

var (
	obsOnce           sync.Once
	sharedMetrics     *observability.Metrics
	sharedTracerValue *observability.Tracer
	sharedTracerStop  func(context.Context) error
)

// sharedObservability builds the process-wide Metrics and Tracer exactly
// once: Prometheus collectors register against a single global registry,
// so a second NewMetrics() call in the same process (e.g. a second
// Facade built in the same test binary) would panic on duplicate
// registration. Every Facade in a process shares the same collectors and
// tracer, which is also how Prometheus scraping expects metrics to work.
func sharedObservability() (*observability.Metrics, *observability.Tracer) {
	obsOnce.Do(func() {
		sharedMetrics = observability.NewMetrics()
		sharedTracerValue, sharedTracerStop = observability.NewTracer(observability.TraceConfig{ServiceName: "agentmesh"})
	})
	return sharedMetrics, sharedTracerValue
}

// ShutdownObservability stops the process-wide tracer provider built by
// the first Facade constructed in this process. An application calls
// this once during its own shutdown, after every Facade has stopped —
// it is not called automatically by Facade.Stop because the tracer is
// shared across every Facade instance in the process.
func ShutdownObservability(ctx context.Context) error {
	if sharedTracerStop == nil {
		return nil
	}
	return sharedTracerStop(ctx)
}

// buildComponents wires everything below the organization+store layer:
// bus, A2A router/server/client, catalog, skills, toolexec, watchdog.
// Shared by FromConfig and FromStore so both constructors end up with an
// identically-shaped Facade.
func buildComponents(cfg config.Config, st store.Store, llm agent.Client, logger *slog.Logger) *Facade {
	b := bus.New(logger)
	client := a2a.NewClient(cfg.A2A.PublicEndpoint)
	router := a2a.NewRouter(b, client, logger)

	addr := cfg.A2A.BindAddr
	server := a2a.NewServer(addr, b, logger)

	tools := toolcat.NewToolRegistry()
	capabilities := toolcat.NewCapabilityRegistry()
	skillManager := skills.New(tools, capabilities)

	hub := newMessageHub()

	metrics, tracer := sharedObservability()

	f := &Facade{
		logger:       logger,
		store:        st,
		bus:          b,
		router:       router,
		server:       server,
		client:       client,
		tools:        tools,
		capabilities: capabilities,
		skillManager: skillManager,
		llm:          llm,
		runtimes:     make(map[string]*agent.Runtime),
		cancels:      make(map[string]context.CancelFunc),
		observers:    hub,
		metrics:      metrics,
		tracer:       tracer,
	}

	b.SetObservability(metrics, tracer)
	client.SetObservability(metrics, tracer)

	f.watchdogFW = watchdog.NewFramework(logger, f.onWake)
	f.watchdogFW.SetMetrics(metrics)
	f.toolExec = toolexec.NewRegistry(skillManager, f.watchdogFW)
	f.toolExec.SetObservability(metrics, tracer)

	// A watchdog.Poller needs an application-specific PollFunc (what
	// external resource to re-check) that this module has no concrete
	// instance of; applications that want one construct it themselves
	// from WatchdogFramework() and cfg.Watchdog's interval/enabled
	// settings, then feed results back via Framework.Emit.
	f.maintenance = newMaintenanceScheduler(f, logger)
	return f
}

// FromConfig builds a Facade from a loaded Config, opening the configured
// store backend and loading the organization it currently holds. llm is
// the application-supplied LLM client every agent.Runtime calls into —
// this module never constructs one itself (spec §1 Non-goals: "LLM
// provider HTTP clients").
func FromConfig(ctx context.Context, cfg config.Config, llm agent.Client, logger *slog.Logger) (*Facade, error) {
	if logger == nil {
		logger = slog.Default()
	}
	st, closer, err := openStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("facade: open store: %w", err)
	}

	f := buildComponents(cfg, st, llm, logger)
	f.storeCloser = closer

	org, err := st.LoadOrganization(ctx)
	if err != nil {
		return nil, fmt.Errorf("facade: load organization: %w", err)
	}
	f.org = org
	return f, nil
}

// FromStore builds a Facade directly over an already-open Store, for
// callers (tests, embedders) that manage store lifecycle themselves.
func FromStore(ctx context.Context, st store.Store, llm agent.Client, logger *slog.Logger) (*Facade, error) {
	if logger == nil {
		logger = slog.Default()
	}
	f := buildComponents(config.Config{}, st, llm, logger)

	org, err := st.LoadOrganization(ctx)
	if err != nil {
		return nil, fmt.Errorf("facade: load organization: %w", err)
	}
	f.org = org
	return f, nil
}

func openStore(cfg config.Config) (store.Store, io.Closer, error) {
	switch cfg.Database.Driver {
	case "", "memory":
		return memstore.New(), nil, nil
	case "sqlite":
		s, err := sqlitestore.Open(cfg.Database.DSN)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case "postgres":
		s, err := pgstore.OpenDSN(cfg.Database.DSN, pgstore.DefaultConfig())
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	default:
		return nil, nil, fmt.Errorf("facade: unknown database driver %q", cfg.Database.Driver)
	}
}

// Organization returns a copy of the currently loaded organization.
func (f *Facade) Organization() domain.Organization {
	f.orgMu.RLock()
	defer f.orgMu.RUnlock()
	return f.org
}

// SetOrganization replaces the facade's organization in memory; callers
// must call Save to persist it. Run must be called again (or agents
// individually started) to pick up any newly added agents.
func (f *Facade) SetOrganization(org domain.Organization) {
	f.orgMu.Lock()
	defer f.orgMu.Unlock()
	f.org = org
}

// Save persists the current organization, per spec §4.10's save().
func (f *Facade) Save(ctx context.Context) error {
	f.orgMu.RLock()
	org := f.org
	f.orgMu.RUnlock()
	if err := org.Validate(); err != nil {
		return fmt.Errorf("facade: refusing to save invalid organization: %w", err)
	}
	return f.store.SaveOrganization(ctx, org)
}

// Bus, Router, Server, Client, ToolRegistry, CapabilityRegistry,
// SkillManager, ToolExecRegistry, and WatchdogFramework are accessors so
// applications may register their own tool/capability entries and
// executors, per spec §4.10's closing bullet.
func (f *Facade) Bus() *bus.Bus { return f.bus }
func (f *Facade) Router() *a2a.Router { return f.router }
func (f *Facade) Server() *a2a.Server { return f.server }
func (f *Facade) Client() *a2a.Client { return f.client }
func (f *Facade) ToolRegistry() *toolcat.ToolRegistry { return f.tools }
func (f *Facade) CapabilityRegistry() *toolcat.CapabilityRegistry { return f.capabilities }
func (f *Facade) SkillManager() *skills.Manager { return f.skillManager }
func (f *Facade) ToolExecRegistry() *toolexec.Registry { return f.toolExec }
func (f *Facade) WatchdogFramework() *watchdog.Framework { return f.watchdogFW }

// Metrics returns the process-wide Prometheus collectors this facade and
// its components record against.
func (f *Facade) Metrics() *observability.Metrics { return f.metrics }

// SubscribeMessages returns a multi-consumer observer of every message
// successfully routed through this facade, per spec §4.10. Call the
// returned cancel func to stop receiving and release the channel.
func (f *Facade) SubscribeMessages(buffer int) (<-chan domain.Message, func()) {
	return f.observers.subscribe(buffer)
}
