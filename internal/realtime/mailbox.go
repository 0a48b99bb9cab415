package realtime

import "sync"

// mailbox is an unbounded FIFO of events for one channel binding.
// A single goroutine drains it so handlers for a channel never run concurrently
// and always observe events in arrival order.
type mailbox struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Event
	closed bool
}

func newMailbox() *mailbox {
	m := &mailbox{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// push enqueues an event. Returns false once the mailbox is closed.
func (m *mailbox) push(ev Event) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false
	}
	m.queue = append(m.queue, ev)
	m.cond.Signal()
	return true
}

// pop blocks until an event is available or the mailbox is closed.
func (m *mailbox) pop() (Event, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for len(m.queue) == 0 && !m.closed {
		m.cond.Wait()
	}
	if m.closed {
		return Event{}, false
	}

	ev := m.queue[0]
	m.queue[0] = Event{}
	m.queue = m.queue[1:]
	if len(m.queue) == 0 {
		// Release the backing array once drained.
		m.queue = nil
	}
	return ev, true
}

// close stops delivery and returns how many queued events were discarded.
// A closed binding must not see further events.
func (m *mailbox) close() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0
	}
	m.closed = true
	n := len(m.queue)
	m.queue = nil
	m.cond.Broadcast()
	return n
}

// pending returns the number of queued events not yet handed to the handler.
func (m *mailbox) pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}
