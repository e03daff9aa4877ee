// Package inmemory implements the broker contract purely in memory: topic
// fan-out plus queue-group round-robin delivery, with no external
// dependency. The MQTT broker embeds an instance of this broker as its
// local demultiplexer.
package inmemory

import (
	"context"
	"log"
	"sync"
	"sync/atomic"

	"github.com/messagetrigger/runtime/broadcast"
	"github.com/messagetrigger/runtime/broker"
	"github.com/messagetrigger/runtime/correlator"
	"github.com/messagetrigger/runtime/errdefs"
	"github.com/messagetrigger/runtime/message"
	"github.com/messagetrigger/runtime/subject"
)

const defaultCapacity = 10

type topicEntry struct {
	pattern string
	channel *broadcast.Channel[message.Inbound]
}

type queueMember struct {
	channel  *broadcast.Channel[message.Inbound]
	receiver broker.Receiver
}

type queueGroup struct {
	pattern string
	members []*queueMember
	cursor  atomic.Uint64
}

// Broker implements broker.Broker entirely with in-memory maps and
// broadcast channels.
type Broker struct {
	name string

	mu    sync.RWMutex
	topic map[string]*topicEntry
	queue map[string]*queueGroup
}

// New creates a named in-process Broker.
func New(name string) *Broker {
	return &Broker{
		name:  name,
		topic: make(map[string]*topicEntry),
		queue: make(map[string]*queueGroup),
	}
}

// Name returns the broker's stable, unique name.
func (b *Broker) Name() string { return b.name }

// Publish requires msg.Subject to be set, stamps an Inbound message with
// this broker's name, and fans it out to every matching topic subscription
// and to exactly one member of every matching queue group.
func (b *Broker) Publish(_ context.Context, msg message.Outbound) error {
	if msg.Subject == "" {
		return errdefs.ErrNoSubject
	}
	responseSubject := msg.ResponseSubject
	if responseSubject == "" {
		responseSubject, _ = broker.DefaultResponseSubject(msg.Subject)
	}
	inbound := message.Inbound{
		Body:            msg.Body,
		Subject:         msg.Subject,
		Broker:          b.name,
		ResponseSubject: responseSubject,
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for pattern, entry := range b.topic {
		if pattern == msg.Subject || subject.Match(pattern, msg.Subject) {
			entry.channel.Send(inbound)
		}
	}

	for key, group := range b.queue {
		if key == msg.Subject || subject.Match(group.pattern, msg.Subject) {
			b.deliverToGroup(group, inbound)
		}
	}

	return nil
}

// deliverToGroup selects exactly one member via a monotonic round-robin
// cursor and sends to it. Membership removal on receiver drop is not
// implemented; round-robin simply indexes over currently registered
// members. Group membership is expected to be stable during a run.
func (b *Broker) deliverToGroup(group *queueGroup, inbound message.Inbound) {
	n := len(group.members)
	if n == 0 {
		return
	}
	idx := int(group.cursor.Add(1)-1) % n
	member := group.members[idx]
	member.channel.Send(inbound)
}

// SubscribeToTopic returns a Receiver for pattern, creating the topic entry
// if this is the first subscriber. The pattern is stored unchanged; Publish
// matches it against each published subject with subject.Match, and no
// precompiled matcher is kept.
func (b *Broker) SubscribeToTopic(_ context.Context, pattern string) (broker.Receiver, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.topic[pattern]
	if !ok {
		entry = &topicEntry{
			pattern: pattern,
			channel: broadcast.NewChannel[message.Inbound](defaultCapacity),
		}
		b.topic[pattern] = entry
	}
	return entry.channel.Subscribe(), nil
}

// SubscribeToQueue appends a new member to the (topic, group) queue,
// creating the group if needed (idempotent).
func (b *Broker) SubscribeToQueue(_ context.Context, topic, group string) (broker.Receiver, error) {
	key := topic + "::" + group

	b.mu.Lock()
	defer b.mu.Unlock()

	g, ok := b.queue[key]
	if !ok {
		g = &queueGroup{pattern: topic}
		b.queue[key] = g
	}

	ch := broadcast.NewChannel[message.Inbound](defaultCapacity)
	r := ch.Subscribe()
	g.members = append(g.members, &queueMember{channel: ch, receiver: r})

	if !ok {
		log.Printf("[trigger/inmemory] %s: created queue group %s", b.name, key)
	}

	return r, nil
}

// Request implements the generic request/response correlator in terms of
// this broker's own primitives.
func (b *Broker) Request(ctx context.Context, req message.Outbound) (message.Inbound, error) {
	return correlator.Request(ctx, b, req)
}
