package bus

import (
	"context"
	"testing"
	"time"

	"github.com/thalassa-ai/thalassa/internal/chat"
	"github.com/thalassa-ai/thalassa/internal/common/logger"
	"github.com/thalassa-ai/thalassa/internal/entity"
)

func newTestLogger(t *testing.T) *logger.Logger {
	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      "debug",
		Format:     "console",
		OutputPath: "stdout",
	})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	return log
}

func recvEvent(t *testing.T, sub Subscription) *Event {
	t.Helper()
	select {
	case event, ok := <-sub.Events():
		if !ok {
			t.Fatal("subscription channel closed")
		}
		return event
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return nil
}

func TestMemoryEventBus_PublishSubscribe(t *testing.T) {
	bus := NewMemoryEventBus(newTestLogger(t))
	defer bus.Close()

	sub, err := bus.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	msg := chat.New(entity.New("u1", "Alice", entity.RoleUser), "hello", nil)
	if err := bus.Publish(context.Background(), NewChatEvent(msg)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	event := recvEvent(t, sub)
	if event.Type != EventChatMessage {
		t.Errorf("expected %q event, got %q", EventChatMessage, event.Type)
	}
	if event.Chat == nil || event.Chat.Content != "hello" {
		t.Errorf("unexpected chat payload: %+v", event.Chat)
	}
}

func TestMemoryEventBus_BroadcastToAllSubscribers(t *testing.T) {
	bus := NewMemoryEventBus(newTestLogger(t))
	defer bus.Close()

	first, err := bus.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	second, err := bus.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	event := NewNotificationEvent(LevelInfo, "agent ready", nil)
	if err := bus.Publish(context.Background(), event); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	for _, sub := range []Subscription{first, second} {
		got := recvEvent(t, sub)
		if got.ID != event.ID {
			t.Errorf("expected event %s, got %s", event.ID, got.ID)
		}
	}

	// After one subscriber departs, delivery continues to the remaining one.
	if err := first.Unsubscribe(); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}

	next := NewNotificationEvent(LevelSuccess, "build done", nil)
	if err := bus.Publish(context.Background(), next); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if got := recvEvent(t, second); got.ID != next.ID {
		t.Errorf("expected event %s, got %s", next.ID, got.ID)
	}
}

func TestMemoryEventBus_SubscribeAfterPublishMissesEvent(t *testing.T) {
	bus := NewMemoryEventBus(newTestLogger(t))
	defer bus.Close()

	early := NewConfigChangedEvent()
	if err := bus.Publish(context.Background(), early); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	sub, err := bus.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	select {
	case event := <-sub.Events():
		t.Errorf("expected no event, got %s", event.ID)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryEventBus_SlowSubscriberLosesEvents(t *testing.T) {
	bus := NewMemoryEventBus(newTestLogger(t))
	defer bus.Close()

	sub, err := bus.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	// Fill the subscriber buffer and then some; the overflow is dropped
	// rather than blocking the publisher.
	total := subscriberBuffer + 10
	for i := 0; i < total; i++ {
		if err := bus.Publish(context.Background(), NewConfigChangedEvent()); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
	}

	received := 0
	for {
		select {
		case <-sub.Events():
			received++
		default:
			if received != subscriberBuffer {
				t.Errorf("expected %d buffered events, got %d", subscriberBuffer, received)
			}
			return
		}
	}
}

func TestMemoryEventBus_Close(t *testing.T) {
	bus := NewMemoryEventBus(newTestLogger(t))

	sub, err := bus.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	bus.Close()

	if bus.IsConnected() {
		t.Error("expected bus to report disconnected after Close")
	}
	if _, ok := <-sub.Events(); ok {
		t.Error("expected subscriber channel to be closed")
	}
	if err := bus.Publish(context.Background(), NewConfigChangedEvent()); err == nil {
		t.Error("expected Publish on closed bus to fail")
	}
	if _, err := bus.Subscribe(); err == nil {
		t.Error("expected Subscribe on closed bus to fail")
	}
}
