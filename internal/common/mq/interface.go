package mq

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// MessageQueue defines the unified interface for message queue operations.
// The abstraction keeps producers independent of the broker implementation.
type MessageQueue interface {
	// Publish publishes a message to the specified topic.
	Publish(ctx context.Context, topic string, message *Message) error

	// Ping verifies the broker connection is alive.
	Ping(ctx context.Context) error

	// Close closes the connection.
	Close() error
}

// Message represents one message on the queue.
type Message struct {
	// ID is the unique identifier for the message; brokers use it as the
	// partition key so same-attempt messages stay ordered.
	ID string `json:"id"`

	// Body is the message payload.
	Body []byte `json:"body"`

	// Headers contains metadata about the message.
	Headers map[string]string `json:"headers,omitempty"`

	// Timestamp is when the message was created.
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage creates a message with a fresh ID and timestamp.
func NewMessage(body []byte) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Body:      body,
		Timestamp: time.Now(),
	}
}
