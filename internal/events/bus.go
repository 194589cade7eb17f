package events

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pgx-knowledge-graph/internal/domain"
)

// Bus is the typed pipeline event stream. Emit never blocks: when the queue
// is full the oldest event is dropped, since events are advisory and fatal
// errors additionally surface as phase return values. Multi-producer; each
// subscriber gets its own bounded queue.
type Bus struct {
	logger *logrus.Logger
	size   int

	mu        sync.Mutex
	subs      []chan domain.Event
	callbacks []func(domain.Event)
	closed    bool
}

// NewBus creates an event bus with the given per-subscriber queue size.
func NewBus(queueSize int, logger *logrus.Logger) *Bus {
	if queueSize <= 0 {
		queueSize = 256
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Bus{logger: logger, size: queueSize}
}

// Subscribe returns a receive channel for events. The channel closes when
// the bus closes.
func (b *Bus) Subscribe() <-chan domain.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan domain.Event, b.size)
	if b.closed {
		close(ch)
		return ch
	}
	b.subs = append(b.subs, ch)
	return ch
}

// OnEvent registers a callback invoked synchronously on emit. The channel
// subscription is the primary contract; callbacks are a compatibility layer.
func (b *Bus) OnEvent(fn func(domain.Event)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.callbacks = append(b.callbacks, fn)
}

// Emit publishes an event to all subscribers without blocking.
func (b *Bus) Emit(event domain.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	subs := b.subs
	callbacks := b.callbacks
	b.mu.Unlock()

	for _, fn := range callbacks {
		fn(event)
	}
	for _, ch := range subs {
		select {
		case ch <- event:
		default:
			// Queue full: drop the oldest to make room for the newest.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- event:
			default:
			}
		}
	}
}

// Info emits an info-level event.
func (b *Bus) Info(stage, substage, message string) {
	b.Emit(domain.Event{Stage: stage, Substage: substage, Level: domain.LevelInfo, Message: message})
}

// Warn emits a warn-level event.
func (b *Bus) Warn(stage, substage, message string) {
	b.Emit(domain.Event{Stage: stage, Substage: substage, Level: domain.LevelWarn, Message: message})
}

// Error emits an error-level event.
func (b *Bus) Error(stage, substage, message string) {
	b.Emit(domain.Event{Stage: stage, Substage: substage, Level: domain.LevelError, Message: message})
}

// Progress emits an info event carrying a progress fraction in [0,1].
func (b *Bus) Progress(stage, substage, message string, progress float64) {
	b.Emit(domain.Event{
		Stage:    stage,
		Substage: substage,
		Level:    domain.LevelInfo,
		Message:  message,
		Progress: &progress,
	})
}

// Close closes all subscriber channels. Emit becomes a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
