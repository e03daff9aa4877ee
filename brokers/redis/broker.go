// Package redis implements the broker contract over Redis pub/sub for
// topic subscriptions and a Redis-list-backed queue abstraction keyed on
// topic for queue-group subscriptions.
package redis

import (
	"context"
	"log"
	"sync"

	goredis "github.com/redis/go-redis/v9"

	"github.com/messagetrigger/runtime/broadcast"
	"github.com/messagetrigger/runtime/broker"
	"github.com/messagetrigger/runtime/correlator"
	"github.com/messagetrigger/runtime/errdefs"
	"github.com/messagetrigger/runtime/message"
)

const remoteCapacity = 100

type subscribeRequest struct {
	pattern string
	channel *broadcast.Channel[message.Inbound]
}

type queueRequest struct {
	topic   string
	group   string
	channel *broadcast.Channel[message.Inbound]
}

type publishRequest struct {
	subject string
	msg     message.Outbound
}

// Broker implements broker.Broker over a single Redis client, driven by a
// control-plane goroutine reading three buffered channels: subscribe
// requests, queue-subscribe requests, and publish requests. Caller-facing
// methods never block on network I/O directly; they enqueue work and
// suspend only on the channel's back pressure.
type Broker struct {
	name   string
	client *goredis.Client

	mu      sync.Mutex
	topics  map[string]*broadcast.Channel[message.Inbound]
	queueOf map[string]bool // topic -> has at least one queue subscriber

	subscribeCh chan subscribeRequest
	queueCh     chan queueRequest
	publishCh   chan publishRequest
}

// New creates a Redis-backed Broker and spawns its background connection
// task. url accepts either a full redis:// URL or a bare host:port.
func New(name, url string) *Broker {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		opts = &goredis.Options{Addr: url}
	}
	client := goredis.NewClient(opts)

	b := &Broker{
		name:        name,
		client:      client,
		topics:      make(map[string]*broadcast.Channel[message.Inbound]),
		queueOf:     make(map[string]bool),
		subscribeCh: make(chan subscribeRequest, remoteCapacity),
		queueCh:     make(chan queueRequest, remoteCapacity),
		publishCh:   make(chan publishRequest, remoteCapacity),
	}

	go b.run()

	return b
}

func (b *Broker) Name() string { return b.name }

func (b *Broker) run() {
	ctx := context.Background()
	go b.publishLoop(ctx)

	for {
		select {
		case req := <-b.subscribeCh:
			go b.subscribeLoop(ctx, req)
		case req := <-b.queueCh:
			go b.queueLoop(ctx, req)
		}
	}
}

func (b *Broker) publishLoop(ctx context.Context) {
	for req := range b.publishCh {
		if err := b.client.Publish(ctx, req.subject, req.msg.Body).Err(); err != nil {
			log.Printf("[trigger/redis] %s: publish to %s failed: %v", b.name, req.subject, err)
			continue
		}
		log.Printf("[trigger/redis] %s: published to %s", b.name, req.subject)

		if b.hasQueueSubscriber(req.subject) {
			queueKey := "queue:" + req.subject
			if err := b.client.LPush(ctx, queueKey, req.msg.Body).Err(); err != nil {
				log.Printf("[trigger/redis] %s: enqueue to %s failed: %v", b.name, queueKey, err)
			}
		}
	}
}

func (b *Broker) hasQueueSubscriber(topic string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queueOf[topic]
}

func (b *Broker) subscribeLoop(ctx context.Context, req subscribeRequest) {
	pubsub := b.client.PSubscribe(ctx, req.pattern)
	defer pubsub.Close()

	log.Printf("[trigger/redis] %s: PSUBSCRIBE %s", b.name, req.pattern)

	ch := pubsub.Channel()
	for msg := range ch {
		respSubject, _ := broker.DefaultResponseSubject(msg.Channel)
		req.channel.Send(message.Inbound{
			Body:            []byte(msg.Payload),
			Subject:         req.pattern,
			Broker:          b.name,
			ResponseSubject: respSubject,
		})
	}
}

func (b *Broker) queueLoop(ctx context.Context, req queueRequest) {
	queueKey := "queue:" + req.topic
	log.Printf("[trigger/redis] %s: queue subscribe %s group=%s", b.name, req.topic, req.group)

	for {
		result, err := b.client.BLPop(ctx, 0, queueKey).Result()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("[trigger/redis] %s: BLPOP %s failed: %v", b.name, queueKey, err)
			continue
		}
		if len(result) < 2 {
			continue
		}
		respSubject, _ := broker.DefaultResponseSubject(req.topic)
		req.channel.Send(message.Inbound{
			Body:            []byte(result[1]),
			Subject:         req.topic,
			Broker:          b.name,
			ResponseSubject: respSubject,
		})
	}
}

// Publish requires msg.Subject to be set and enqueues it onto the
// control-plane publish channel.
func (b *Broker) Publish(_ context.Context, msg message.Outbound) error {
	if msg.Subject == "" {
		return errdefs.ErrNoSubject
	}
	b.publishCh <- publishRequest{subject: msg.Subject, msg: msg}
	return nil
}

// SubscribeToTopic issues PSUBSCRIBE on a dedicated connection for pattern.
func (b *Broker) SubscribeToTopic(_ context.Context, pattern string) (broker.Receiver, error) {
	ch := broadcast.NewChannel[message.Inbound](remoteCapacity)
	b.subscribeCh <- subscribeRequest{pattern: pattern, channel: ch}
	return ch.Subscribe(), nil
}

// SubscribeToQueue creates (idempotently) a named queue for topic and
// begins popping messages for it.
func (b *Broker) SubscribeToQueue(_ context.Context, topic, group string) (broker.Receiver, error) {
	b.mu.Lock()
	b.queueOf[topic] = true
	b.mu.Unlock()

	ch := broadcast.NewChannel[message.Inbound](remoteCapacity)
	b.queueCh <- queueRequest{topic: topic, group: group, channel: ch}
	return ch.Subscribe(), nil
}

// Request implements the generic correlator in terms of this broker's
// publish/subscribe primitives.
func (b *Broker) Request(ctx context.Context, req message.Outbound) (message.Inbound, error) {
	return correlator.Request(ctx, b, req)
}
