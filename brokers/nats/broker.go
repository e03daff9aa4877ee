package nats

import (
	"context"
	"log"
	"sync"

	natsgo "github.com/nats-io/nats.go"

	"github.com/messagetrigger/runtime/broadcast"
	"github.com/messagetrigger/runtime/broker"
	"github.com/messagetrigger/runtime/config"
	"github.com/messagetrigger/runtime/errdefs"
	"github.com/messagetrigger/runtime/message"
)

const localCapacity = 100

// Broker implements broker.Broker directly over a core NATS connection.
// Unlike the Redis and in-process adapters, NATS already provides native
// subscribe, queue-group subscribe, and request/reply primitives, so this
// broker calls straight through to nc.Subscribe/QueueSubscribe/RequestMsg
// instead of going through the shared correlator.
type Broker struct {
	name string
	conn *natsgo.Conn

	mu   sync.Mutex
	subs []*natsgo.Subscription
}

// New connects to NATS per cfg and returns a ready Broker.
func New(name string, cfg config.NATSConfig) (*Broker, error) {
	conn, err := connect(cfg)
	if err != nil {
		return nil, err
	}
	return &Broker{name: name, conn: conn}, nil
}

func (b *Broker) Name() string { return b.name }

// Publish sends msg.Body on msg.Subject. NATS core publish is fire-and-forget;
// delivery to zero subscribers is not an error, matching the in-process and
// Redis adapters.
func (b *Broker) Publish(_ context.Context, msg message.Outbound) error {
	if msg.Subject == "" {
		return errdefs.ErrNoSubject
	}
	if err := b.conn.Publish(msg.Subject, msg.Body); err != nil {
		return &errdefs.TransportError{Broker: b.name, Err: err}
	}
	return nil
}

// SubscribeToTopic maps directly onto nc.Subscribe; NATS understands `*`
// (single token) and `>` (tail) wildcards natively, so no in-process
// matching is performed here.
func (b *Broker) SubscribeToTopic(_ context.Context, pattern string) (broker.Receiver, error) {
	ch := broadcast.NewChannel[message.Inbound](localCapacity)

	sub, err := b.conn.Subscribe(pattern, func(m *natsgo.Msg) {
		respSubject := m.Reply
		if respSubject == "" {
			respSubject, _ = broker.DefaultResponseSubject(m.Subject)
		}
		ch.Send(message.Inbound{
			Body:            m.Data,
			Subject:         m.Subject,
			Broker:          b.name,
			ResponseSubject: respSubject,
		})
	})
	if err != nil {
		return nil, &errdefs.TransportError{Broker: b.name, Err: err}
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	log.Printf("[trigger/nats] %s: subscribed %s", b.name, pattern)
	return ch.Subscribe(), nil
}

// SubscribeToQueue maps onto nc.QueueSubscribe; NATS performs the
// round-robin distribution natively across every connection sharing the
// queue group name, including across processes.
func (b *Broker) SubscribeToQueue(_ context.Context, topic, group string) (broker.Receiver, error) {
	ch := broadcast.NewChannel[message.Inbound](localCapacity)

	sub, err := b.conn.QueueSubscribe(topic, group, func(m *natsgo.Msg) {
		respSubject := m.Reply
		if respSubject == "" {
			respSubject, _ = broker.DefaultResponseSubject(m.Subject)
		}
		ch.Send(message.Inbound{
			Body:            m.Data,
			Subject:         m.Subject,
			Broker:          b.name,
			ResponseSubject: respSubject,
		})
	})
	if err != nil {
		return nil, &errdefs.TransportError{Broker: b.name, Err: err}
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	log.Printf("[trigger/nats] %s: queue subscribed %s group=%s", b.name, topic, group)
	return ch.Subscribe(), nil
}

// Request uses NATS' native reply-subject request/reply instead of the
// shared correlator: the server mints no subject prefixing scheme of its
// own, so the inbox subject nc.RequestMsg generates becomes req's
// ResponseSubject directly.
func (b *Broker) Request(ctx context.Context, req message.Outbound) (message.Inbound, error) {
	if req.Subject == "" {
		return message.Inbound{}, errdefs.ErrNoSubject
	}

	reply, err := b.conn.RequestMsgWithContext(ctx, &natsgo.Msg{
		Subject: req.Subject,
		Data:    req.Body,
	})
	if err != nil {
		return message.Inbound{}, &errdefs.TransportError{Broker: b.name, Err: err}
	}

	return message.Inbound{
		Body:    reply.Data,
		Subject: reply.Subject,
		Broker:  b.name,
	}, nil
}

// Close unsubscribes every active subscription and drains the connection.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subs {
		_ = sub.Unsubscribe()
	}
	return b.conn.Drain()
}
