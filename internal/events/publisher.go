package events

import (
	"context"
	"log/slog"
	"sync"
)

// Publisher appends events to the durable store and fans them out to sinks
// and in-process subscribers. The store write is synchronous and its error is
// the caller's error; sink and subscriber delivery never fails an emit.
type Publisher struct {
	store  Store
	sinks  []Sink
	logger *slog.Logger

	subMu   sync.Mutex
	nextSub int
	subs    map[int]func(Event)

	inbox chan Event
	done  chan struct{}
	once  sync.Once
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithSink adds a delivery sink.
func WithSink(sink Sink) PublisherOption {
	return func(p *Publisher) {
		if sink != nil {
			p.sinks = append(p.sinks, sink)
		}
	}
}

// WithAsyncBuffer moves sink/subscriber delivery onto a background worker
// with the given buffer. A full buffer drops the fan-out copy (the store
// write already happened).
func WithAsyncBuffer(size int) PublisherOption {
	return func(p *Publisher) {
		if size > 0 {
			p.inbox = make(chan Event, size)
		}
	}
}

// WithLogger sets the logger used for delivery failures.
func WithLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// NewPublisher constructs a publisher around the given store.
func NewPublisher(store Store, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		store:  store,
		logger: slog.Default(),
		subs:   make(map[int]func(Event)),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.inbox != nil {
		go p.run()
	}
	return p
}

// Emit persists the event and schedules fan-out.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if err := p.store.Append(ctx, event); err != nil {
		return err
	}

	if p.inbox == nil {
		p.deliver(event)
		return nil
	}

	select {
	case p.inbox <- event:
	default:
		p.logger.Warn("event fan-out buffer full, dropping delivery copy", "event_id", event.ID)
	}
	return nil
}

// Query proxies to the underlying store.
func (p *Publisher) Query(ctx context.Context, filter Filter) ([]Event, error) {
	return p.store.Query(ctx, filter)
}

// Subscribe registers fn for every emitted event and returns a cancel func.
func (p *Publisher) Subscribe(fn func(Event)) (cancel func()) {
	p.subMu.Lock()
	defer p.subMu.Unlock()

	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn

	return func() {
		p.subMu.Lock()
		defer p.subMu.Unlock()
		delete(p.subs, id)
	}
}

// Close stops the async worker, draining pending deliveries.
func (p *Publisher) Close() {
	p.once.Do(func() {
		close(p.done)
	})
}

func (p *Publisher) run() {
	for {
		select {
		case <-p.done:
			for {
				select {
				case event := <-p.inbox:
					p.deliver(event)
				default:
					return
				}
			}
		case event := <-p.inbox:
			p.deliver(event)
		}
	}
}

func (p *Publisher) deliver(event Event) {
	ctx := context.Background()
	for _, sink := range p.sinks {
		if err := sink.Write(ctx, event); err != nil {
			p.logger.Warn("event sink delivery failed", "event_id", event.ID, "error", err)
		}
	}

	p.subMu.Lock()
	fns := make([]func(Event), 0, len(p.subs))
	for _, fn := range p.subs {
		fns = append(fns, fn)
	}
	p.subMu.Unlock()

	for _, fn := range fns {
		fn(event)
	}
}
