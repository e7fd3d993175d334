package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/thalassa-ai/thalassa/internal/common/config"
	"github.com/thalassa-ai/thalassa/internal/common/logger"
)

// NATSEventBus implements EventBus over a NATS connection, for deployments
// where front-ends and the coordinator run as separate processes. All events
// travel JSON-encoded on a single configured subject.
type NATSEventBus struct {
	conn    *nats.Conn
	subject string
	logger  *logger.Logger
}

type natsSubscription struct {
	sub    *nats.Subscription
	ch     chan *Event
	mu     sync.Mutex
	active bool
}

func (s *natsSubscription) Events() <-chan *Event {
	return s.ch
}

func (s *natsSubscription) Unsubscribe() error {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return nil
	}
	s.active = false
	s.mu.Unlock()

	err := s.sub.Unsubscribe()
	close(s.ch)
	return err
}

// deliver pushes a decoded event to the subscriber, dropping when its buffer
// is full. The active check keeps late handler invocations from writing to a
// closed channel.
func (s *natsSubscription) deliver(event *Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return false
	}
	select {
	case s.ch <- event:
		return true
	default:
		return false
	}
}

// NewNATSEventBus connects to NATS with reconnection handling.
func NewNATSEventBus(cfg config.NATSConfig, log *logger.Logger) (*NATSEventBus, error) {
	subject := cfg.Subject
	if subject == "" {
		subject = "thalassa.events"
	}

	bus := &NATSEventBus{
		subject: subject,
		logger:  log.WithFields(zap.String("component", "nats-event-bus")),
	}

	opts := []nats.Option{
		nats.Name(cfg.ClientID),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(2 * time.Second),

		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn("NATS disconnected", zap.Error(err))
			} else {
				log.Info("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			if err := nc.LastError(); err != nil {
				log.Error("NATS connection closed", zap.Error(err))
			} else {
				log.Info("NATS connection closed")
			}
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	bus.conn = conn
	log.Info("Connected to NATS", zap.String("url", cfg.URL))

	return bus, nil
}

// Publish sends an event on the bus subject.
func (b *NATSEventBus) Publish(ctx context.Context, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := b.conn.Publish(b.subject, data); err != nil {
		b.logger.Error("Failed to publish event",
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
		return fmt.Errorf("failed to publish event: %w", err)
	}

	b.logger.Debug("Published event",
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)))

	return nil
}

// Subscribe creates a subscription on the bus subject.
func (b *NATSEventBus) Subscribe() (Subscription, error) {
	sub := &natsSubscription{
		ch:     make(chan *Event, subscriberBuffer),
		active: true,
	}

	natsSub, err := b.conn.Subscribe(b.subject, func(msg *nats.Msg) {
		var event Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			b.logger.Error("Failed to unmarshal event",
				zap.String("subject", msg.Subject),
				zap.Error(err))
			return
		}
		if !sub.deliver(&event) {
			b.logger.Warn("Dropping event for slow subscriber",
				zap.String("event_id", event.ID),
				zap.String("event_type", string(event.Type)))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", b.subject, err)
	}

	sub.sub = natsSub
	return sub, nil
}

// Close drains and closes the NATS connection.
func (b *NATSEventBus) Close() {
	if b.conn != nil {
		if err := b.conn.Drain(); err != nil {
			b.logger.Warn("Error draining NATS connection", zap.Error(err))
			b.conn.Close()
		}
		b.logger.Info("NATS connection closed")
	}
}

// IsConnected returns whether the NATS connection is active.
func (b *NATSEventBus) IsConnected() bool {
	return b.conn != nil && b.conn.IsConnected()
}

var _ EventBus = (*NATSEventBus)(nil)
