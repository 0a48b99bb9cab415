package realtime

import (
	"log/slog"
	"sync"
)

// subState tracks a binding's subscription on the live connection.
type subState int

const (
	subIdle subState = iota
	subPending
	subActive
)

// binding pairs a channel with its handlers and delivery goroutine.
// state and version are guarded by the Manager's mutex.
type binding struct {
	channel string
	logger  *slog.Logger

	version uint64
	state   subState

	sentOn *connection // connection the subscribe frame went out on; guarded by Manager.wireMu

	mu       sync.RWMutex
	handlers Handlers

	box  *mailbox
	done chan struct{}
}

func newBinding(channel string, handlers Handlers, logger *slog.Logger) *binding {
	b := &binding{
		channel: channel,
		logger:  logger,
		box:     newMailbox(),
		done:    make(chan struct{}),
	}
	b.setHandlers(handlers)
	go b.run()
	return b
}

func (b *binding) setHandlers(h Handlers) {
	cp := make(Handlers, len(h))
	for name, fn := range h {
		if fn != nil {
			cp[name] = fn
		}
	}
	b.mu.Lock()
	b.handlers = cp
	b.mu.Unlock()
}

func (b *binding) handler(event string) EventHandler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.handlers[event]
}

func (b *binding) deliver(ev Event) bool {
	return b.box.push(ev)
}

// close stops delivery and returns the number of events dropped.
func (b *binding) close() int {
	return b.box.close()
}

func (b *binding) run() {
	defer close(b.done)
	for {
		ev, ok := b.box.pop()
		if !ok {
			return
		}
		h := b.handler(ev.Name)
		if h == nil {
			b.logger.Debug("no handler for event", "channel", b.channel, "event", ev.Name)
			continue
		}
		b.invoke(h, ev)
	}
}

// invoke runs a handler, containing panics to the event that caused them.
func (b *binding) invoke(h EventHandler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"channel", b.channel,
				"event", ev.Name,
				"panic", r,
			)
		}
	}()
	h(ev)
}
