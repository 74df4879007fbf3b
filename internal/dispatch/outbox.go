package dispatch

import (
	"sync"

	"github.com/AtDexters-Lab/sim-protocol/internal/protocol"
)

// Outbox is an unbounded FIFO of Events waiting for the outbound pump. It
// supports many producers and a single consumer.
type Outbox struct {
	mu     sync.Mutex
	items  []protocol.Event
	closed bool

	ready chan struct{}
	done  chan struct{}
}

func NewOutbox() *Outbox {
	return &Outbox{
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Push appends ev. It returns false once the outbox is closed.
func (o *Outbox) Push(ev protocol.Event) bool {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return false
	}
	o.items = append(o.items, ev)
	o.mu.Unlock()

	select {
	case o.ready <- struct{}{}:
	default:
	}
	return true
}

// Pop blocks until an Event is available and removes it. It returns false
// once the outbox is closed, even if Events were still queued.
func (o *Outbox) Pop() (protocol.Event, bool) {
	for {
		o.mu.Lock()
		if o.closed {
			o.mu.Unlock()
			return nil, false
		}
		if len(o.items) > 0 {
			ev := o.items[0]
			o.items[0] = nil
			o.items = o.items[1:]
			o.mu.Unlock()
			return ev, true
		}
		o.mu.Unlock()

		select {
		case <-o.ready:
		case <-o.done:
		}
	}
}

// Close discards everything still queued and returns how many Events were
// dropped. Later calls return 0.
func (o *Outbox) Close() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return 0
	}
	o.closed = true
	n := len(o.items)
	o.items = nil
	close(o.done)
	return n
}

func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.items)
}
