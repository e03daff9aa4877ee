// Package mock provides test doubles for the broker and dispatch
// interfaces.
package mock

import (
	"context"
	"sync"

	"github.com/messagetrigger/runtime/broadcast"
	brokerpkg "github.com/messagetrigger/runtime/broker"
	"github.com/messagetrigger/runtime/correlator"
	"github.com/messagetrigger/runtime/errdefs"
	"github.com/messagetrigger/runtime/message"
)

// Broker is a minimal broker.Broker test double: Publish records every
// message, and SubscribeToTopic delivers to any receiver whose pattern
// equals the published subject exactly (no globbing; tests needing glob
// behavior should exercise brokers/inmemory directly).
type Broker struct {
	name string

	mu         sync.Mutex
	published  []message.Outbound
	receivers  map[string][]*broadcast.Channel[message.Inbound]
	PublishErr error
}

// NewBroker creates a named mock Broker.
func NewBroker(name string) *Broker {
	return &Broker{name: name, receivers: make(map[string][]*broadcast.Channel[message.Inbound])}
}

func (b *Broker) Name() string { return b.name }

func (b *Broker) Publish(_ context.Context, msg message.Outbound) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.PublishErr != nil {
		return b.PublishErr
	}
	if msg.Subject == "" {
		return errdefs.ErrNoSubject
	}
	b.published = append(b.published, msg)

	for _, ch := range b.receivers[msg.Subject] {
		ch.Send(message.Inbound{
			Body:            msg.Body,
			Subject:         msg.Subject,
			Broker:          b.name,
			ResponseSubject: msg.ResponseSubject,
		})
	}
	return nil
}

func (b *Broker) SubscribeToTopic(_ context.Context, pattern string) (brokerpkg.Receiver, error) {
	ch := broadcast.NewChannel[message.Inbound](10)
	b.mu.Lock()
	b.receivers[pattern] = append(b.receivers[pattern], ch)
	b.mu.Unlock()
	return ch.Subscribe(), nil
}

func (b *Broker) SubscribeToQueue(ctx context.Context, topic, _ string) (brokerpkg.Receiver, error) {
	return b.SubscribeToTopic(ctx, topic)
}

func (b *Broker) Request(ctx context.Context, req message.Outbound) (message.Inbound, error) {
	return correlator.Request(ctx, b, req)
}

// Published returns every message passed to Publish, in order.
func (b *Broker) Published() []message.Outbound {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]message.Outbound, len(b.published))
	copy(out, b.published)
	return out
}
