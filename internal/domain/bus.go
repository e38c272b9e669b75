package domain

import (
	"context"
	"time"
)

// EventBus carries pipeline events: alerts for flagged transactions and
// run-completed notifications. Backed by Go channels (Community) or
// NATS (Pro).
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string `json:"id"`
	Topic     string `json:"topic"`
	Payload   []byte `json:"payload"`
	Timestamp int64  `json:"timestamp"`
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

	// Channel settings
	ChannelBufferSize int

	// NATS settings
	NATSUrl           string
	NATSToken         string
	NATSMaxReconnects int
	NATSReconnectWait int // seconds
}

// Standard topic names for the scoring pipeline.
const (
	TopicAlert        = "kestrel.alert"
	TopicRunCompleted = "kestrel.run.completed"
)

// AlertEvent is the payload published to TopicAlert for each scored
// transaction classified High or above.
type AlertEvent struct {
	TransactionID string    `json:"transaction_id"`
	AccountNumber string    `json:"account_number"`
	RiskScore     float64   `json:"risk_score"`
	RiskLevel     RiskLevel `json:"risk_level"`
	Flags         RuleFlags `json:"flags"`
	Timestamp     time.Time `json:"timestamp"`
}

// RunCompletedEvent is published once per scoring run.
type RunCompletedEvent struct {
	Transactions int64     `json:"transactions"`
	Alerts       int64     `json:"alerts"`
	CompletedAt  time.Time `json:"completed_at"`
}
