package facade

import (
	"sync"

	"github.com/agentmesh/core/pkg/domain"
)

// messageHub is a multi-consumer fan-out of every message successfully
// routed through the facade, for subscribe_messages() (spec §4.10's UI
// hook). Grounded on internal/bus's fanout (per-group fan-out with a
// lossy slow-subscriber branch); this one keeps the same "never block the
// publisher on a slow subscriber" policy since it backs a UI, not
// message delivery — losing an observer update is harmless, losing a
// routed message is not.
type messageHub struct {
	mu          sync.Mutex
	subscribers map[chan domain.Message]struct{}
}

func newMessageHub() *messageHub {
	return &messageHub{subscribers: make(map[chan domain.Message]struct{})}
}

// subscribe returns a channel that receives every future published
// message, and a cancel func that closes it and removes it from the hub.
// buffer <= 0 is treated as 1.
func (h *messageHub) subscribe(buffer int) (<-chan domain.Message, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan domain.Message, buffer)

	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subscribers[ch]; ok {
			delete(h.subscribers, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// publish fans msg out to every current subscriber, dropping it for any
// subscriber whose buffer is currently full rather than blocking the
// caller. Like the bus's group fan-out, this path accepts silent loss,
// matching spec §5's backpressure policy for lossy fan-out.
func (h *messageHub) publish(msg domain.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers {
		select {
		case ch <- msg:
		default:
		}
	}
}
