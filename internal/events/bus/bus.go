// Package bus provides the process-wide event bus for Thalassa.
//
// The bus is a lossy broadcast: every live subscriber receives every event
// published after it subscribed, in publish order, but a subscriber that
// falls far enough behind misses events rather than stalling publishers.
package bus

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/thalassa-ai/thalassa/internal/chat"
	"github.com/thalassa-ai/thalassa/internal/entity"
)

// EventType discriminates the event variants carried on the bus.
type EventType string

const (
	EventChatMessage        EventType = "chat.message"
	EventSystemNotification EventType = "system.notification"
	EventScheduledTrigger   EventType = "scheduled.trigger"
	EventConfigChanged      EventType = "config.changed"
)

// NotificationLevel grades a system notification.
type NotificationLevel string

const (
	LevelInfo    NotificationLevel = "info"
	LevelWarning NotificationLevel = "warning"
	LevelError   NotificationLevel = "error"
	LevelSuccess NotificationLevel = "success"
)

// SystemNotification is an operational message for users (container started,
// build failed, agent ready). A nil Target means broadcast to everyone.
type SystemNotification struct {
	Level   NotificationLevel `json:"level"`
	Message string            `json:"message"`
	Target  *entity.ID        `json:"target,omitempty"`
}

// ScheduledTrigger reports a fired scheduled job.
type ScheduledTrigger struct {
	JobID   string `json:"job_id"`
	Payload string `json:"payload"`
}

// Event is the closed variant carried on the bus. Type names the variant;
// exactly one payload field matching the type is non-nil (none for
// EventConfigChanged).
type Event struct {
	ID        string              `json:"id"`
	Type      EventType           `json:"type"`
	Timestamp time.Time           `json:"timestamp"`
	Chat      *chat.Message       `json:"chat,omitempty"`
	Notify    *SystemNotification `json:"notify,omitempty"`
	Trigger   *ScheduledTrigger   `json:"trigger,omitempty"`
}

// NewChatEvent wraps a chat message for publication.
func NewChatEvent(msg *chat.Message) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      EventChatMessage,
		Timestamp: time.Now().UTC(),
		Chat:      msg,
	}
}

// NewNotificationEvent wraps a system notification for publication.
func NewNotificationEvent(level NotificationLevel, message string, target *entity.ID) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      EventSystemNotification,
		Timestamp: time.Now().UTC(),
		Notify: &SystemNotification{
			Level:   level,
			Message: message,
			Target:  target,
		},
	}
}

// NewConfigChangedEvent signals that the daemon configuration was reloaded.
func NewConfigChangedEvent() *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      EventConfigChanged,
		Timestamp: time.Now().UTC(),
	}
}

// Subscription is a live handle onto the event stream.
type Subscription interface {
	// Events returns the subscriber's channel. It is closed by Unsubscribe
	// and when the bus shuts down.
	Events() <-chan *Event

	// Unsubscribe detaches the subscriber and closes its channel.
	Unsubscribe() error
}

// EventBus is the publish/subscribe surface shared by all front-ends and
// bridges in the process.
type EventBus interface {
	// Publish delivers an event to every current subscriber. Delivery is
	// at-most-once per subscriber.
	Publish(ctx context.Context, event *Event) error

	// Subscribe creates a new subscription receiving events from now on.
	Subscribe() (Subscription, error)

	// Close shuts the bus down and closes all subscriber channels.
	Close()

	// IsConnected reports whether the bus can accept publications.
	IsConnected() bool
}
