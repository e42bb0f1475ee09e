package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Dispatcher hands events to an Emitter on a background goroutine so callers
// never wait on the sink. A full buffer drops the event with a warning.
type Dispatcher struct {
	emitter Emitter
	logger  *slog.Logger
	timeout time.Duration

	events chan Event
	done   chan struct{}

	mu     sync.RWMutex
	closed bool

	onDrop func(Event)
}

type DispatcherOption func(*Dispatcher)

// WithEmitTimeout bounds each Emit call.
func WithEmitTimeout(d time.Duration) DispatcherOption {
	return func(disp *Dispatcher) { disp.timeout = d }
}

// WithDropHook is called for every event dropped on a full buffer.
func WithDropHook(fn func(Event)) DispatcherOption {
	return func(disp *Dispatcher) { disp.onDrop = fn }
}

func NewDispatcher(emitter Emitter, logger *slog.Logger, buffer int, opts ...DispatcherOption) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}

	if buffer < 1 {
		buffer = 1
	}

	d := &Dispatcher{
		emitter: emitter,
		logger:  logger,
		timeout: 2 * time.Second,
		events:  make(chan Event, buffer),
		done:    make(chan struct{}),
	}

	for _, opt := range opts {
		opt(d)
	}

	go d.loop()

	return d
}

// Emit enqueues e and always returns nil.
func (d *Dispatcher) Emit(_ context.Context, e Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil
	}

	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}

	select {
	case d.events <- e:
	default:
		d.logger.Warn("audit buffer full, dropping event", "type", e.Type, "user_id", e.UserID)

		if d.onDrop != nil {
			d.onDrop(e)
		}
	}

	return nil
}

func (d *Dispatcher) loop() {
	defer close(d.done)

	for e := range d.events {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err := d.emitter.Emit(ctx, e)
		cancel()

		if err != nil {
			d.logger.Warn("audit emit failed", "type", e.Type, "user_id", e.UserID, "error", err)
		}
	}
}

// Close stops accepting events and waits for the buffer to drain or ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.events)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
