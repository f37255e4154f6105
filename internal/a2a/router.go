package a2a

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/agentmesh/core/internal/apperr"
	"github.com/agentmesh/core/internal/bus"
	"github.com/agentmesh/core/pkg/domain"
)

// ErrUnknownRecipient is returned when a direct send targets an agent id
// the router has never seen as local or remote.
var ErrUnknownRecipient = errors.New("a2a: unknown recipient")

// ErrSenderNotMember is returned when a group send's sender is not a
// member of the target group.
var ErrSenderNotMember = errors.New("a2a: sender is not in the group")

// routeKind distinguishes a local agent id from a remote one addressed by
// the node endpoint that owns it.
type routeKind int

const (
	routeLocal routeKind = iota
	routeRemote
)

type route struct {
	kind     routeKind
	endpoint string // set only for routeRemote
}

// Router dispatches a Message to whichever agents actually own it: local
// ones go straight to the in-process bus, remote ones go out over the A2A
// Client to the node endpoint they were last registered under. Grounded on
// protocol/router.rs's MessageRouter.
type Router struct {
	bus    *bus.Bus
	client *Client
	logger *slog.Logger

	mu     sync.RWMutex
	routes map[string]route
}

// NewRouter builds a Router over the given local bus and A2A client. If
// logger is nil, slog.Default() is used.
func NewRouter(b *bus.Bus, client *Client, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		bus:    b,
		client: client,
		logger: logger,
		routes: make(map[string]route),
	}
}

// RegisterLocalAgent marks agentID as owned by this node, overwriting any
// prior remote registration for the same id — local and remote are
// mutually exclusive.
func (r *Router) RegisterLocalAgent(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[agentID] = route{kind: routeLocal}
}

// RegisterRemoteAgent marks agentID as owned by the node at endpoint,
// overwriting any prior local registration for the same id.
func (r *Router) RegisterRemoteAgent(agentID, endpoint string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[agentID] = route{kind: routeRemote, endpoint: endpoint}
}

// UnregisterAgent removes agentID's route entirely.
func (r *Router) UnregisterAgent(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.routes, agentID)
}

// IsLocal reports whether agentID is currently routed to this node.
func (r *Router) IsLocal(agentID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.routes[agentID]
	return ok && rt.kind == routeLocal
}

// IsKnown reports whether agentID has any route, local or remote.
func (r *Router) IsKnown(agentID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.routes[agentID]
	return ok
}

// ListLocalAgents returns the ids currently routed to this node.
func (r *Router) ListLocalAgents() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for id, rt := range r.routes {
		if rt.kind == routeLocal {
			out = append(out, id)
		}
	}
	return out
}

// ListRemoteAgents returns id -> endpoint for every agent routed off-node.
func (r *Router) ListRemoteAgents() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string)
	for id, rt := range r.routes {
		if rt.kind == routeRemote {
			out[id] = rt.endpoint
		}
	}
	return out
}

func (r *Router) routeOf(agentID string) (route, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.routes[agentID]
	return rt, ok
}

// Route dispatches msg according to its target kind.
func (r *Router) Route(ctx context.Context, msg domain.Message) error {
	switch msg.To.Kind {
	case domain.TargetDirect:
		return r.routePrivate(ctx, msg)
	case domain.TargetGroup:
		return r.routeGroup(ctx, msg)
	case domain.TargetBroadcast:
		return r.routeBroadcast(ctx, msg)
	default:
		return apperr.New(apperr.KindValidation, fmt.Errorf("a2a: message %s has unknown target kind %q", msg.ID, msg.To.Kind))
	}
}

func (r *Router) routePrivate(ctx context.Context, msg domain.Message) error {
	rt, ok := r.routeOf(msg.To.AgentID)
	if !ok {
		return apperr.New(apperr.KindNotFound, fmt.Errorf("%w: %s", ErrUnknownRecipient, msg.To.AgentID))
	}
	if rt.kind == routeLocal {
		return r.bus.Send(ctx, msg)
	}
	return r.client.SendPrivate(ctx, rt.endpoint, msg.From, msg.To.AgentID, msg.Content)
}

// routeGroup fans a group message out member by member: local members go
// through the bus, remote members through their owning node. A failure to
// reach one member is logged, not propagated, so one unreachable peer never
// blocks delivery to the rest of the group. Grounded on router.rs's
// route_group.
func (r *Router) routeGroup(ctx context.Context, msg domain.Message) error {
	group, ok := r.bus.GetGroup(msg.To.GroupID)
	if !ok {
		return apperr.New(apperr.KindNotFound, fmt.Errorf("%w: %s", bus.ErrGroupNotFound, msg.To.GroupID))
	}
	if !group.HasMember(msg.From) {
		return apperr.New(apperr.KindPermissionDenied, fmt.Errorf("%w: %s", ErrSenderNotMember, msg.From))
	}

	for _, member := range group.Members {
		if member == msg.From {
			continue
		}
		rt, ok := r.routeOf(member)
		if !ok {
			r.logger.Warn("a2a: group member has no route", "group_id", group.ID, "member", member)
			continue
		}
		if rt.kind == routeLocal {
			continue // the bus's own fan-out channel already delivers to local members
		}
		if err := r.client.SendGroup(ctx, rt.endpoint, msg.From, group.ID, msg.Content); err != nil {
			r.logger.Warn("a2a: failed to forward group message", "group_id", group.ID, "member", member, "error", err)
		}
	}
	return r.bus.Send(ctx, msg)
}

// routeBroadcast delivers locally, then POSTs to every known remote
// agent's endpoint. Per-agent failures are logged, not propagated. Matches
// router.rs's route_broadcast, which iterates remote_agents (not distinct
// endpoints) — two remote agents sharing one node do receive the broadcast
// twice, same as the original.
func (r *Router) routeBroadcast(ctx context.Context, msg domain.Message) error {
	if err := r.bus.Send(ctx, msg); err != nil {
		return err
	}
	for agentID, endpoint := range r.ListRemoteAgents() {
		if err := r.client.SendBroadcast(ctx, endpoint, msg.From, msg.Content); err != nil {
			r.logger.Warn("a2a: failed to forward broadcast", "agent_id", agentID, "error", err)
		}
	}
	return nil
}

// CreateGroup creates the group locally, then notifies every remote
// member's node so it allocates its own local fan-out bookkeeping. Remote
// notify failures are logged, not propagated — the group exists locally
// regardless of whether every remote peer learned about it yet.
func (r *Router) CreateGroup(ctx context.Context, id, name, creatorID string, members []string) (domain.Group, error) {
	group, err := r.bus.CreateGroup(id, name, creatorID, members)
	if err != nil {
		return domain.Group{}, err
	}

	for _, member := range group.Members {
		if member == creatorID {
			continue
		}
		rt, ok := r.routeOf(member)
		if !ok || rt.kind == routeLocal {
			continue
		}
		if _, err := r.client.CreateGroup(ctx, rt.endpoint, group.ID, group.Name, creatorID, group.Members); err != nil {
			r.logger.Warn("a2a: failed to propagate group creation", "group_id", group.ID, "member", member, "error", err)
		}
	}
	return group, nil
}

// InviteToGroup adds invitee to the group locally and, if invitee is
// routed to a remote node, propagates the invite there too — this one
// does return the remote failure, unlike CreateGroup's best-effort
// fan-out, matching router.rs's invite_to_group.
func (r *Router) InviteToGroup(ctx context.Context, groupID, inviter, invitee string) error {
	group, ok := r.bus.GetGroup(groupID)
	if !ok {
		return apperr.New(apperr.KindNotFound, fmt.Errorf("%w: %s", bus.ErrGroupNotFound, groupID))
	}
	if !group.HasMember(inviter) {
		return apperr.New(apperr.KindPermissionDenied, fmt.Errorf("%w: %s", ErrSenderNotMember, inviter))
	}

	if _, err := r.bus.AddMember(groupID, invitee); err != nil {
		return err
	}

	rt, ok := r.routeOf(invitee)
	if ok && rt.kind == routeRemote {
		if err := r.client.InviteToGroup(ctx, rt.endpoint, groupID, inviter, invitee); err != nil {
			return fmt.Errorf("a2a: propagate invite to %s: %w", rt.endpoint, err)
		}
	}
	return nil
}
