// Package bus implements the process-local message bus: per-agent
// mailboxes, per-group fan-out, and broadcast, per spec §4.2.
package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/agentmesh/core/internal/apperr"
	"github.com/agentmesh/core/internal/observability"
	"github.com/agentmesh/core/pkg/domain"
)

// mailboxCapacity matches spec §4.2's "capacity ≈ 100" for both private
// mailboxes and group fan-out channels.
const mailboxCapacity = 100

var (
	// ErrRecipientNotFound is returned when a Direct send targets an
	// agent id with no registered mailbox.
	ErrRecipientNotFound = errors.New("bus: recipient not found")
	// ErrGroupNotFound is returned when a Group send or subscribe
	// targets an unknown group id.
	ErrGroupNotFound = errors.New("bus: group not found")
	// ErrCreatorNotRegistered is returned by CreateGroup when the
	// creator has no mailbox.
	ErrCreatorNotRegistered = errors.New("bus: creator not registered")
)

// Bus is the in-process messaging fabric: mailboxes, groups, and group
// fan-out channels. A zero value is not usable; construct with New.
type Bus struct {
	logger *slog.Logger

	mu        sync.RWMutex
	mailboxes map[string]chan domain.Message
	groups    map[string]domain.Group
	fanouts   map[string]*fanout

	metrics *observability.Metrics
	tracer  *observability.Tracer
}

// SetObservability attaches metrics and tracing; either may be nil to
// leave that signal unwired. Call before Send is exercised concurrently
// — there's no lock around these fields, matching the construction-time
// wiring pattern the rest of this module uses for optional dependencies.
func (b *Bus) SetObservability(metrics *observability.Metrics, tracer *observability.Tracer) {
	b.metrics = metrics
	b.tracer = tracer
}

// New creates an empty Bus. If logger is nil, slog.Default() is used.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		logger:    logger,
		mailboxes: make(map[string]chan domain.Message),
		groups:    make(map[string]domain.Group),
		fanouts:   make(map[string]*fanout),
	}
}

// Register creates a mailbox for agentID and returns a Receiver bound to
// it. Re-registering the same id replaces the previous mailbox; the
// previous Receiver's mailbox is closed so it observes end-of-stream
// rather than leaking a goroutine.
func (b *Bus) Register(agentID string) *Receiver {
	b.mu.Lock()
	defer b.mu.Unlock()

	if old, ok := b.mailboxes[agentID]; ok {
		close(old)
	}
	ch := make(chan domain.Message, mailboxCapacity)
	b.mailboxes[agentID] = ch

	b.logger.Debug("agent registered", "agent_id", agentID)
	return &Receiver{
		agentID:   agentID,
		bus:       b,
		mailbox:   ch,
		groupSubs: make(map[string]*subscription),
	}
}

// Unregister removes agentID's mailbox. Subsequent direct sends to this id
// fail with ErrRecipientNotFound.
func (b *Bus) Unregister(agentID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.mailboxes[agentID]; ok {
		close(ch)
		delete(b.mailboxes, agentID)
		b.logger.Debug("agent unregistered", "agent_id", agentID)
	}
}

// isRegistered reports whether agentID currently owns a mailbox.
func (b *Bus) isRegistered(agentID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.mailboxes[agentID]
	return ok
}

// CreateGroup records a new group and allocates its fan-out channel. The
// creator is added to members if absent. Fails with ErrCreatorNotRegistered
// if the creator has no mailbox.
func (b *Bus) CreateGroup(id, name, creatorID string, members []string) (domain.Group, error) {
	if !b.isRegistered(creatorID) {
		return domain.Group{}, apperr.New(apperr.KindValidation, fmt.Errorf("%w: %s", ErrCreatorNotRegistered, creatorID))
	}

	g := domain.Group{ID: id, Name: name, CreatorID: creatorID, Members: append([]string(nil), members...)}
	g = g.WithMember(creatorID)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.groups[id] = g
	b.fanouts[id] = newFanout()

	b.logger.Info("group created", "group_id", id, "creator_id", creatorID, "members", len(g.Members))
	return g, nil
}

// AddMember adds agentID to an existing group's membership in place,
// leaving its fan-out channel (and any active subscriptions on it) intact
// — unlike CreateGroup, which always allocates a fresh channel. Used by
// group invites, which must not drop subscribers already receiving that
// group's messages.
func (b *Bus) AddMember(groupID, agentID string) (domain.Group, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	g, ok := b.groups[groupID]
	if !ok {
		return domain.Group{}, apperr.New(apperr.KindNotFound, fmt.Errorf("%w: %s", ErrGroupNotFound, groupID))
	}
	g = g.WithMember(agentID)
	b.groups[groupID] = g
	return g, nil
}

// DeleteGroup removes a group. Idempotent: deleting an unknown group is not
// an error, matching spec §4.1's delete_group contract reused here for
// symmetry with in-memory group lifecycle.
func (b *Bus) DeleteGroup(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.groups, id)
	delete(b.fanouts, id)
}

// Send dispatches message by its target variant.
func (b *Bus) Send(ctx context.Context, msg domain.Message) error {
	ctx, span := b.tracer.TraceBusSend(ctx, msg.ID, string(msg.To.Kind))
	defer span.End()

	var err error
	switch msg.To.Kind {
	case domain.TargetDirect:
		err = b.sendDirect(ctx, msg)
	case domain.TargetGroup:
		err = b.sendGroup(msg)
	case domain.TargetBroadcast:
		err = b.sendBroadcast(ctx, msg)
	default:
		err = apperr.New(apperr.KindValidation, fmt.Errorf("bus: message %s has unknown target kind %q", msg.ID, msg.To.Kind))
	}
	if err != nil {
		b.tracer.RecordError(span, err)
	}
	return err
}

// sendDirect preserves FIFO per (sender, recipient) pair by blocking until
// the recipient's mailbox has room — the cooperative back-pressure wait
// from spec §4.2/§5.
func (b *Bus) sendDirect(ctx context.Context, msg domain.Message) error {
	b.mu.RLock()
	ch, ok := b.mailboxes[msg.To.AgentID]
	b.mu.RUnlock()
	if !ok {
		return apperr.New(apperr.KindNotFound, fmt.Errorf("%w: %s", ErrRecipientNotFound, msg.To.AgentID))
	}

	select {
	case ch <- msg:
		b.metrics.RecordMailboxDepth(msg.To.AgentID, len(ch))
		return nil
	case <-ctx.Done():
		return apperr.New(apperr.KindBackpressure, ctx.Err())
	}
}

func (b *Bus) sendGroup(msg domain.Message) error {
	b.mu.RLock()
	fo, ok := b.fanouts[msg.To.GroupID]
	b.mu.RUnlock()
	if !ok {
		return apperr.New(apperr.KindNotFound, fmt.Errorf("%w: %s", ErrGroupNotFound, msg.To.GroupID))
	}
	fo.publish(msg)
	return nil
}

// sendBroadcast enqueues msg to every currently registered mailbox.
// Per-recipient failures (a mailbox closed mid-iteration) are logged and
// never abort the rest of the broadcast.
func (b *Bus) sendBroadcast(ctx context.Context, msg domain.Message) error {
	b.mu.RLock()
	targets := make([]chan domain.Message, 0, len(b.mailboxes))
	for _, ch := range b.mailboxes {
		targets = append(targets, ch)
	}
	b.mu.RUnlock()

	for _, ch := range targets {
		cancelled, closed := false, false
		func() {
			defer func() { closed = recover() != nil }()
			select {
			case ch <- msg:
			case <-ctx.Done():
				cancelled = true
			}
		}()
		if closed {
			b.logger.Warn("bus: broadcast delivery failed: mailbox closed", "message_id", msg.ID)
			continue
		}
		if cancelled {
			return apperr.New(apperr.KindBackpressure, ctx.Err())
		}
	}
	return nil
}

// SubscribeGroup returns a fan-out subscription for groupID. Subscribers
// only see messages published after subscription.
func (b *Bus) SubscribeGroup(groupID string) (*subscription, error) {
	b.mu.RLock()
	fo, ok := b.fanouts[groupID]
	b.mu.RUnlock()
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, fmt.Errorf("%w: %s", ErrGroupNotFound, groupID))
	}
	return fo.subscribe(), nil
}

// GetGroup returns a copy of the group's current state.
func (b *Bus) GetGroup(groupID string) (domain.Group, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	g, ok := b.groups[groupID]
	return g, ok
}

// ListAgentGroups returns every group agentID currently belongs to.
func (b *Bus) ListAgentGroups(agentID string) []domain.Group {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []domain.Group
	for _, g := range b.groups {
		if g.HasMember(agentID) {
			out = append(out, g)
		}
	}
	return out
}

// ListGroups returns every group currently known to the bus, for
// maintenance sweeps (internal/facade's periodic group GC) that need the
// full set rather than one agent's membership.
func (b *Bus) ListGroups() []domain.Group {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]domain.Group, 0, len(b.groups))
	for _, g := range b.groups {
		out = append(out, g)
	}
	return out
}
