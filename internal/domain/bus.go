package domain

import (
	"context"
)

// EventBus defines the interface for event-driven communication.
// Backed by Go channels (standalone) or NATS (cluster).
// All methods require checkpointID for strict checkpoint isolation.
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, checkpointID string, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, checkpointID string, topic string, handler MessageHandler) (Subscription, error)

	// Request sends a message and waits for a response (request-reply pattern).
	Request(ctx context.Context, checkpointID string, topic string, payload []byte) ([]byte, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID           string            `json:"id"`
	CheckpointID string            `json:"checkpointId"`
	Topic        string            `json:"topic"`
	Payload      []byte            `json:"payload"`
	Metadata     map[string]string `json:"metadata"`
	Timestamp    int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string

	// Channel settings (standalone mode)
	ChannelBufferSize int

	// NATS settings (cluster mode)
	NATSUrl           string
	NATSToken         string
	NATSMaxReconnects int
	NATSReconnectWait int // seconds
}

// Standard topic names for the screening pipeline.
const (
	TopicEntryReceived   = "kestrel.entry.received"
	TopicDecision        = "kestrel.decision"
	TopicQuarantineAlert = "kestrel.alert.quarantine"
	TopicRefDataReloaded = "kestrel.refdata.reloaded"
)
