// Package broker defines the MessageBroker capability set: a uniform
// contract (publish, topic-subscribe, queue-group-subscribe, request/reply)
// that every transport adapter (in-process, Redis, NATS, MQTT) implements.
package broker

import (
	"context"
	"strings"

	"github.com/messagetrigger/runtime/broadcast"
	"github.com/messagetrigger/runtime/errdefs"
	"github.com/messagetrigger/runtime/message"
	"github.com/messagetrigger/runtime/subscription"
)

// Receiver is what Subscribe* calls return: an independent broadcast
// receiver of Inbound messages. It remains valid until Close is called,
// which releases the broker-side slot.
type Receiver = *broadcast.Receiver[message.Inbound]

// Broker is the capability set every transport adapter satisfies. name() is
// stable for the broker's lifetime and unique within the runtime; it is the
// value stamped into Inbound.Broker for messages the broker produces.
type Broker interface {
	Name() string
	Publish(ctx context.Context, msg message.Outbound) error
	SubscribeToTopic(ctx context.Context, pattern string) (Receiver, error)
	SubscribeToQueue(ctx context.Context, topic, group string) (Receiver, error)
	Request(ctx context.Context, req message.Outbound) (message.Inbound, error)
}

// PublishAll publishes every message in order, stopping at the first error.
func PublishAll(ctx context.Context, b Broker, msgs []message.Outbound) error {
	for _, m := range msgs {
		if err := b.Publish(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe dispatches to the appropriate Subscribe* call for spec.Kind.
func Subscribe(ctx context.Context, b Broker, spec subscription.Spec) (Receiver, error) {
	switch spec.Kind {
	case subscription.Topic:
		return b.SubscribeToTopic(ctx, spec.Pattern)
	case subscription.Queue:
		return b.SubscribeToQueue(ctx, spec.Pattern, spec.Group)
	case subscription.Request:
		return b.SubscribeToTopic(ctx, spec.TopicPattern())
	default:
		return nil, errdefs.ErrNoSubscription
	}
}

// DefaultResponseSubject implements the Redis/in-process convention: a
// subject that begins with "request" maps to the same subject with the
// leading "request" replaced by "response"; anything else has no default.
func DefaultResponseSubject(subject string) (string, bool) {
	if strings.HasPrefix(subject, "request") {
		return "response" + strings.TrimPrefix(subject, "request"), true
	}
	return "", false
}
