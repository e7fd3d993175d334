// Package chat defines the chat message model carried on the event bus.
package chat

import (
	"time"

	"github.com/google/uuid"

	"github.com/thalassa-ai/thalassa/internal/entity"
)

// MetadataProjectName is the metadata key naming the project a user message
// targets. The bridge echoes the whole metadata map back on its reply so
// downstream routing keys survive the round trip.
const MetadataProjectName = "project_name"

// MetadataChatID is the metadata key carrying the external chat routing id.
const MetadataChatID = "chat_id"

// Message is a single chat message exchanged between users and agents.
type Message struct {
	ID        string            `json:"id"`
	ChatID    string            `json:"chat_id,omitempty"`
	Sender    entity.ID         `json:"sender"`
	Content   string            `json:"content"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata"`
}

// New creates a message with a fresh id and the current time.
func New(sender entity.ID, content string, metadata map[string]string) *Message {
	if metadata == nil {
		metadata = make(map[string]string)
	}
	return &Message{
		ID:        uuid.New().String(),
		Sender:    sender,
		Content:   content,
		Timestamp: time.Now().UTC(),
		Metadata:  metadata,
	}
}
