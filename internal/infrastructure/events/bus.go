package events

import (
	"sync"

	"go.uber.org/zap"

	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/shared/types"
)

// DefaultBuffer is the queue and subscriber channel capacity
const DefaultBuffer = 64

// Sink delivers events outside the process
type Sink interface {
	Name() string
	Send(event types.IndexEvent) error
	Close() error
}

// Recorder receives delivery outcomes
type Recorder interface {
	RecordEvent(sink, status string)
}

// Bus is an ordered, non-blocking event fan-out
type Bus struct {
	logger *zap.Logger
	rec    Recorder
	buffer int

	queue chan types.IndexEvent
	done  chan struct{}

	mu     sync.RWMutex
	subs   map[uint64]chan types.IndexEvent
	nextID uint64
	sinks  []Sink
	closed bool
}

// Option configures a Bus
type Option func(*Bus)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithRecorder sets the delivery metrics sink
func WithRecorder(r Recorder) Option {
	return func(b *Bus) { b.rec = r }
}

// WithBuffer sets the queue and subscriber capacity
func WithBuffer(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.buffer = n
		}
	}
}

// WithSink attaches an external sink
func WithSink(s Sink) Option {
	return func(b *Bus) {
		if s != nil {
			b.sinks = append(b.sinks, s)
		}
	}
}

// NewBus starts a bus
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		logger: zap.NewNop(),
		buffer: DefaultBuffer,
		subs:   make(map[uint64]chan types.IndexEvent),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.queue = make(chan types.IndexEvent, b.buffer)

	go b.run()
	return b
}

// Publish queues an event. It drops the event if the queue is full or the
// bus is closed.
func (b *Bus) Publish(event types.IndexEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	select {
	case b.queue <- event:
	default:
		b.logger.Warn("event queue full, dropping event",
			zap.String("event_id", event.ID),
			zap.String("op", string(event.Op)),
		)
		b.record("queue", "dropped")
	}
}

// Subscribe registers an in-process listener. The returned cancel function
// unregisters it and closes the channel; it is safe to call more than once.
func (b *Bus) Subscribe() (<-chan types.IndexEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan types.IndexEvent, b.buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	subID := b.nextID
	b.nextID++
	b.subs[subID] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[subID]; ok {
				delete(b.subs, subID)
				close(c)
			}
		})
	}
}

// Subscribers returns the number of in-process listeners
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close delivers queued events, closes every subscriber channel and sink,
// and stops the bus.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.queue)
	b.mu.Unlock()

	<-b.done

	b.mu.Lock()
	for subID, ch := range b.subs {
		delete(b.subs, subID)
		close(ch)
	}
	sinks := b.sinks
	b.mu.Unlock()

	var firstErr error
	for _, s := range sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (b *Bus) run() {
	defer close(b.done)
	for event := range b.queue {
		b.deliver(event)
	}
}

func (b *Bus) deliver(event types.IndexEvent) {
	b.mu.RLock()
	for _, ch := range b.subs {
		select {
		case ch <- event:
			b.record("subscriber", "ok")
		default:
			b.record("subscriber", "dropped")
		}
	}
	sinks := b.sinks
	b.mu.RUnlock()

	for _, s := range sinks {
		if err := s.Send(event); err != nil {
			b.logger.Warn("event sink failed",
				zap.String("sink", s.Name()),
				zap.String("event_id", event.ID),
				zap.Error(err),
			)
			b.record(s.Name(), "error")
			continue
		}
		b.record(s.Name(), "ok")
	}
}

func (b *Bus) record(sink, status string) {
	if b.rec != nil {
		b.rec.RecordEvent(sink, status)
	}
}
