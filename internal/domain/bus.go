package domain

import "context"

// EventBus is the interface for pipeline eventing. Backed by Go channels
// (Community) or NATS (Pro).
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers a handler for a topic. Returns a subscription
	// used to unsubscribe.
	Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error)

	// Ping checks bus health.
	Ping(ctx context.Context) error

	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message is one event on the bus.
type Message struct {
	ID        string `json:"id"`
	Topic     string `json:"topic"`
	Payload   []byte `json:"payload"`
	Timestamp int64  `json:"timestamp"`
}

// Subscription is an active topic subscription.
type Subscription interface {
	Unsubscribe() error
	Topic() string
}

// Standard topic names for the assessment pipeline.
const (
	TopicPayloadSubmitted = "merlin.payload.submitted"
	TopicDomainEvaluated  = "merlin.domain.evaluated"
	TopicReportReady      = "merlin.report.ready"
	TopicReportBlocked    = "merlin.report.blocked"
	TopicCatalogueReload  = "merlin.catalogue.reloaded"
)
