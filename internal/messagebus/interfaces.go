package messagebus

import (
	"context"

	"github.com/jordanhubbard/gauntlet/pkg/messages"
)

// ResultPublisher abstracts result publishing for testability.
type ResultPublisher interface {
	PublishResult(ctx context.Context, result *messages.ResultMessage) error
}

// EventPublisher abstracts event publishing for testability.
type EventPublisher interface {
	PublishEvent(ctx context.Context, eventType string, event *messages.EventMessage) error
}

// Publisher is everything the engine publishes.
type Publisher interface {
	ResultPublisher
	EventPublisher
}

// ResultSubscriber abstracts result subscription for testability.
type ResultSubscriber interface {
	SubscribeResults(handler func(*messages.ResultMessage)) error
}

// Verify NatsMessageBus implements all interfaces at compile time.
var (
	_ Publisher        = (*NatsMessageBus)(nil)
	_ ResultSubscriber = (*NatsMessageBus)(nil)
)
