package bus

import (
	"context"
	"sync"

	"github.com/agentmesh/core/pkg/domain"
)

// Receiver aggregates an agent's private mailbox and its joined group
// subscriptions into a single message source. It filters its own id out of
// group deliveries so the bus stays reentrant: a handler reading a message
// may publish new ones into the same group without seeing its own echo.
type Receiver struct {
	agentID string
	bus     *Bus

	mailbox <-chan domain.Message

	mu        sync.Mutex
	groupSubs map[string]*subscription
}

// JoinGroup subscribes the receiver to groupID's fan-out channel.
func (r *Receiver) JoinGroup(groupID string) error {
	sub, err := r.bus.SubscribeGroup(groupID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.groupSubs[groupID]; ok {
		old.Close()
	}
	r.groupSubs[groupID] = sub
	return nil
}

// LeaveGroup unsubscribes from groupID, if joined.
func (r *Receiver) LeaveGroup(groupID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sub, ok := r.groupSubs[groupID]; ok {
		sub.Close()
		delete(r.groupSubs, groupID)
	}
}

// TryRecv returns the next available message without blocking, preferring
// the private mailbox, then group subscriptions in no particular order.
// Used by the agent runtime to drain pending input each loop iteration
// (spec §4.9 step 1).
func (r *Receiver) TryRecv() (domain.Message, bool) {
	select {
	case msg, ok := <-r.mailbox:
		if ok {
			return msg, true
		}
	default:
	}

	r.mu.Lock()
	subs := make([]*subscription, 0, len(r.groupSubs))
	for _, s := range r.groupSubs {
		subs = append(subs, s)
	}
	r.mu.Unlock()

	for _, s := range subs {
		select {
		case msg, ok := <-s.C():
			if !ok {
				continue
			}
			if msg.From == r.agentID {
				continue
			}
			return msg, true
		default:
		}
	}
	return domain.Message{}, false
}

// DrainAll repeatedly calls TryRecv until it has no more pending input,
// matching spec §4.9 step 1 ("drain the mailbox non-blockingly into a
// list").
func (r *Receiver) DrainAll() []domain.Message {
	var out []domain.Message
	for {
		msg, ok := r.TryRecv()
		if !ok {
			return out
		}
		out = append(out, msg)
	}
}

// Recv blocks until a message is available or ctx is done.
func (r *Receiver) Recv(ctx context.Context) (domain.Message, bool) {
	if msg, ok := r.TryRecv(); ok {
		return msg, true
	}

	// A blocking select on the mailbox covers the common single-target
	// case; group messages are picked up by the next TryRecv poll, which
	// the agent runtime already performs every loop iteration (spec
	// §4.9) — a group-only wait never starves, only adds latency bounded
	// by the runtime's own poll interval.
	select {
	case msg, ok := <-r.mailbox:
		return msg, ok
	case <-ctx.Done():
		return domain.Message{}, false
	}
}

// Close releases all group subscriptions held by this receiver. The
// mailbox itself is owned by the Bus and is closed via Bus.Unregister.
func (r *Receiver) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, sub := range r.groupSubs {
		sub.Close()
		delete(r.groupSubs, id)
	}
}
