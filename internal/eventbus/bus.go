package eventbus

import "sync"

// Bus is an unbounded multi-producer, single-consumer event queue.
// Losing a device report is worse than growing memory briefly, so inbound
// is deliberately never backpressured (spec.md §5) — Send never blocks.
//
// Internally this is a mutex-guarded slice feeding a condition variable
// rather than a buffered Go channel, because a channel's capacity is
// fixed at construction and this queue must grow without bound.
type Bus struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Event
	closed bool
}

// New constructs an empty Bus.
func New() *Bus {
	b := &Bus{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Send enqueues an event. Safe to call concurrently from any number of
// producers; never blocks. Sending after Close is a no-op, matching
// shutdown's cooperative drain-then-stop contract (spec.md §5).
func (b *Bus) Send(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.queue = append(b.queue, e)
	b.cond.Signal()
}

// Recv blocks until an event is available or the bus is closed and
// drained, returning ok=false in the latter case. There is exactly one
// consumer: the dispatcher loop.
func (b *Bus) Recv() (Event, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for len(b.queue) == 0 {
		if b.closed {
			return Event{}, false
		}
		b.cond.Wait()
	}
	e := b.queue[0]
	b.queue = b.queue[1:]
	return e, true
}

// Close signals shutdown. Any events already queued are still delivered
// to Recv before it starts returning ok=false; new Sends are dropped.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.cond.Broadcast()
}

// Len reports the current queue depth, exported for the event-loop-depth
// metric (internal/platform/metrics).
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}
