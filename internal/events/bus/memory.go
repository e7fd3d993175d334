package bus

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/thalassa-ai/thalassa/internal/common/logger"
)

// subscriberBuffer is the per-subscriber channel depth. A subscriber that
// lags behind by more than this many events starts missing events.
const subscriberBuffer = 100

// MemoryEventBus implements EventBus with in-process channels.
type MemoryEventBus struct {
	mu          sync.RWMutex
	subscribers []*memorySubscription
	closed      bool
	logger      *logger.Logger
}

type memorySubscription struct {
	bus    *MemoryEventBus
	ch     chan *Event
	mu     sync.Mutex
	active bool
}

// Events returns the subscriber's channel.
func (s *memorySubscription) Events() <-chan *Event {
	return s.ch
}

// Unsubscribe detaches the subscriber and closes its channel.
func (s *memorySubscription) Unsubscribe() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return nil
	}
	s.active = false
	s.mu.Unlock()

	for i, sub := range s.bus.subscribers {
		if sub == s {
			s.bus.subscribers = append(s.bus.subscribers[:i], s.bus.subscribers[i+1:]...)
			break
		}
	}
	close(s.ch)
	return nil
}

// NewMemoryEventBus creates a new in-memory event bus.
func NewMemoryEventBus(log *logger.Logger) *MemoryEventBus {
	return &MemoryEventBus{
		logger: log.WithFields(zap.String("component", "event-bus")),
	}
}

// Publish delivers the event to every active subscriber. A subscriber whose
// buffer is full is skipped; this keeps a stuck front-end from blocking the
// rest of the process.
func (b *MemoryEventBus) Publish(ctx context.Context, event *Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("event bus is closed")
	}

	for _, sub := range b.subscribers {
		sub.mu.Lock()
		active := sub.active
		sub.mu.Unlock()
		if !active {
			continue
		}

		select {
		case sub.ch <- event:
		default:
			b.logger.Warn("Dropping event for slow subscriber",
				zap.String("event_id", event.ID),
				zap.String("event_type", string(event.Type)))
		}
	}

	b.logger.Debug("Published event",
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)))

	return nil
}

// Subscribe creates a subscription receiving events published from now on.
func (b *MemoryEventBus) Subscribe() (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("event bus is closed")
	}

	sub := &memorySubscription{
		bus:    b,
		ch:     make(chan *Event, subscriberBuffer),
		active: true,
	}
	b.subscribers = append(b.subscribers, sub)
	return sub, nil
}

// Close shuts the bus down and closes all subscriber channels.
func (b *MemoryEventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, sub := range b.subscribers {
		sub.mu.Lock()
		sub.active = false
		sub.mu.Unlock()
		close(sub.ch)
	}
	b.subscribers = nil

	b.logger.Info("Memory event bus closed")
}

// IsConnected returns true while the bus is open.
func (b *MemoryEventBus) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return !b.closed
}

var _ EventBus = (*MemoryEventBus)(nil)
