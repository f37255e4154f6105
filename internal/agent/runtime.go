package agent

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentmesh/core/internal/bus"
	"github.com/agentmesh/core/pkg/domain"
)

const (
	// tickInterval is the "sleep briefly between iterations regardless"
	// delay from spec §4.9, so many agent loops share a worker pool
	// gracefully.
	tickInterval = 100 * time.Millisecond
	// waitInterval is how long a WAIT decision sleeps before the next
	// iteration, to avoid a hot loop when there's nothing to do.
	waitInterval = time.Second
)

// Router is the slice of internal/a2a.Router a Runtime needs: dispatch a
// message whether its recipient is local or on another node, and create a
// group with the same cross-node propagation. Declared here rather than
// imported so tests can substitute an in-memory fake without spinning up
// a real bus+client pair.
type Router interface {
	Route(ctx context.Context, msg domain.Message) error
	CreateGroup(ctx context.Context, id, name, creatorID string, members []string) (domain.Group, error)
}

// Context is the rendered state handed to the LLM on each think step.
// Grounded on core/agent.rs's Context{unread_messages, current_task,
// organization_info}.
type Context struct {
	UnreadMessages   []domain.Message
	CurrentTask      string
	OrganizationInfo string
}

// Runtime drives one agent's cooperative think/act loop (spec §4.9): drain
// the mailbox, render a Context, ask the LLM for a Decision, execute it.
// Grounded on core/agent.rs's AgentRuntime.
type Runtime struct {
	agent  domain.Agent
	llm    Client
	router Router
	logger *slog.Logger

	recv *bus.Receiver

	mu          sync.Mutex
	pendingTask string
	hasTask     bool

	now func() time.Time
}

// NewRuntime builds a Runtime for agentCfg, registering its mailbox on b.
// If logger is nil, slog.Default() is used.
func NewRuntime(agentCfg domain.Agent, llm Client, b *bus.Bus, router Router, logger *slog.Logger) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runtime{
		agent:  agentCfg,
		llm:    llm,
		router: router,
		logger: logger,
		recv:   b.Register(agentCfg.ID),
		now:    time.Now,
	}
}

// ID returns the underlying agent's id.
func (rt *Runtime) ID() string { return rt.agent.ID }

// Close releases the runtime's mailbox registration.
func (rt *Runtime) Close() { rt.recv.Close() }

// EnqueueTask sets the pending task consumed by the runtime's next loop
// iteration, overwriting any task that hasn't been picked up yet.
func (rt *Runtime) EnqueueTask(task string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.pendingTask = task
	rt.hasTask = true
}

func (rt *Runtime) takeTask() (string, bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if !rt.hasTask {
		return "", false
	}
	task := rt.pendingTask
	rt.pendingTask = ""
	rt.hasTask = false
	return task, true
}

// Run drives the loop until ctx is cancelled. Grounded on the teacher's
// ticker-based background worker idiom (internal/gateway/
// memory_consolidation.go's startMemoryConsolidation), adapted to a fixed
// short tick rather than a long maintenance interval.
func (rt *Runtime) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		rt.Step(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Step runs exactly one loop iteration: drain, think, execute. Exported so
// callers that want manual/event-driven stepping (e.g. a watchdog waking
// one agent) don't need the ticker loop. A panic inside decision execution
// is recovered so it aborts only this iteration, per spec §4.9's
// failure-handling clause.
func (rt *Runtime) Step(ctx context.Context) {
	messages := rt.recv.DrainAll()
	task, _ := rt.takeTask()

	decision, err := rt.think(ctx, Context{UnreadMessages: messages, CurrentTask: task})
	if err != nil {
		rt.logger.Error("agent: think failed", "agent_id", rt.agent.ID, "error", err)
		return
	}

	rt.executeDecision(ctx, decision)
}

func (rt *Runtime) executeDecision(ctx context.Context, decision Decision) {
	defer func() {
		if r := recover(); r != nil {
			rt.logger.Error("agent: decision execution panicked", "agent_id", rt.agent.ID, "panic", r)
		}
	}()

	switch decision.Kind {
	case DecisionSendMessage:
		rt.sendMessage(ctx, decision)
	case DecisionCreateGroup:
		rt.createGroup(ctx, decision)
	case DecisionExecuteTask:
		rt.executeTask(ctx, decision.Task)
	case DecisionWait:
		time.Sleep(waitInterval)
	}
}

func (rt *Runtime) sendMessage(ctx context.Context, decision Decision) {
	msg := domain.Message{
		ID:        uuid.NewString(),
		From:      rt.agent.ID,
		To:        decision.Target,
		Content:   decision.Content,
		Timestamp: rt.now().Unix(),
	}
	if err := rt.router.Route(ctx, msg); err != nil {
		rt.logger.Warn("agent: send failed", "agent_id", rt.agent.ID, "target", decision.Target, "error", err)
	}
}

func (rt *Runtime) createGroup(ctx context.Context, decision Decision) {
	members := decision.GroupMembers
	hasCreator := false
	for _, m := range members {
		if m == rt.agent.ID {
			hasCreator = true
			break
		}
	}
	if !hasCreator {
		members = append(append([]string(nil), members...), rt.agent.ID)
	}

	groupID := freshGroupID(decision.GroupName, rt.now().UnixMilli())
	if _, err := rt.router.CreateGroup(ctx, groupID, decision.GroupName, rt.agent.ID, members); err != nil {
		rt.logger.Warn("agent: create group failed", "agent_id", rt.agent.ID, "group_name", decision.GroupName, "error", err)
	}
}

func (rt *Runtime) executeTask(ctx context.Context, task string) {
	result, err := rt.llm.Complete(ctx, CompletionRequest{
		Model:    rt.agent.LLM.Model,
		System:   rt.agent.Role.SystemPrompt,
		Messages: []CompletionMessage{{Role: "user", Content: taskPrompt(rt.agent, task)}},
	})
	if err != nil {
		rt.logger.Error("agent: task execution failed", "agent_id", rt.agent.ID, "error", err)
		return
	}
	rt.logger.Info("agent: task completed", "agent_id", rt.agent.ID, "result", result)
}

// think calls the LLM with the rendered thinking prompt and parses its
// reply into a Decision.
func (rt *Runtime) think(ctx context.Context, decisionCtx Context) (Decision, error) {
	response, err := rt.llm.Complete(ctx, CompletionRequest{
		Model:    rt.agent.LLM.Model,
		System:   rt.agent.Role.SystemPrompt,
		Messages: []CompletionMessage{{Role: "user", Content: thinkingPrompt(rt.agent, decisionCtx)}},
	})
	if err != nil {
		return Decision{}, err
	}
	return ParseDecision(response), nil
}
