package bus

import (
	"sync"

	"github.com/agentmesh/core/pkg/domain"
)

// fanout is a multi-consumer publish channel for one group. It mirrors the
// tokio::sync::broadcast channel the original Rust bus used: every
// subscriber gets its own bounded buffer, and a subscriber that falls more
// than mailboxCapacity messages behind loses the oldest ones instead of
// blocking the publisher. This is the one place spec §5 permits silent
// message loss.
type fanout struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]chan domain.Message
}

func newFanout() *fanout {
	return &fanout{subs: make(map[uint64]chan domain.Message)}
}

func (f *fanout) subscribe() *subscription {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextID
	f.nextID++
	ch := make(chan domain.Message, mailboxCapacity)
	f.subs[id] = ch

	return &subscription{
		id: id,
		ch: ch,
		unsubscribe: func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			delete(f.subs, id)
		},
	}
}

// publish sends msg to every current subscriber, non-blocking. A
// subscriber whose buffer is full has its oldest message dropped to make
// room — lossy by design, never blocks the sender.
func (f *fanout) publish(msg domain.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, ch := range f.subs {
		select {
		case ch <- msg:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- msg:
			default:
			}
		}
	}
}

// subscription is a handle to one fan-out subscriber.
type subscription struct {
	id          uint64
	ch          chan domain.Message
	unsubscribe func()
}

// C exposes the subscriber's receive channel.
func (s *subscription) C() <-chan domain.Message { return s.ch }

// Close unsubscribes, stopping further deliveries to this handle.
func (s *subscription) Close() { s.unsubscribe() }
