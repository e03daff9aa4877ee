// Package mqtt implements the broker contract over MQTT. Unlike the NATS
// adapter, MQTT's wildcard alphabet (`+`/`#`) and lack of in-process pattern
// matching mean incoming messages are decoded off the wire and republished
// into an embedded in-process broker, which does the actual subject
// matching and queue-group distribution that subscribers observe.
package mqtt

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/oklog/ulid/v2"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/messagetrigger/runtime/broker"
	"github.com/messagetrigger/runtime/brokers/inmemory"
	"github.com/messagetrigger/runtime/config"
	"github.com/messagetrigger/runtime/correlator"
	"github.com/messagetrigger/runtime/errdefs"
	"github.com/messagetrigger/runtime/message"
)

// Broker bridges subject/queue operations onto an MQTT broker while
// delegating actual fan-out and matching to an embedded in-process Broker.
type Broker struct {
	name   string
	client paho.Client
	local  *inmemory.Broker
}

// New connects to the MQTT broker at cfg.Address and returns a ready Broker.
// The client ID defaults to a fresh ULID when cfg.ClientID is empty.
func New(name string, cfg config.MQTTConfig) (*Broker, error) {
	id := cfg.ClientID
	if id == "" {
		id = ulid.Make().String()
	}

	keepAlive := cfg.KeepAliveS
	if keepAlive <= 0 {
		keepAlive = 5
	}

	local := inmemory.New(name)

	opts := paho.NewClientOptions().
		AddBroker(cfg.Address).
		SetClientID(id).
		SetKeepAlive(time.Duration(keepAlive * float32(time.Second))).
		SetAutoReconnect(true)

	if cfg.Credentials != nil {
		opts.SetUsername(cfg.Credentials.Username)
		opts.SetPassword(cfg.Credentials.Password)
	}

	b := &Broker{name: name, local: local}

	opts.SetDefaultPublishHandler(func(_ paho.Client, m paho.Message) {
		b.onMessage(m)
	})

	client := paho.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("trigger/mqtt: connect to %s: %w", cfg.Address, token.Error())
	}
	b.client = client

	log.Printf("[trigger/mqtt] %s: connected to %s as %s", name, cfg.Address, id)
	return b, nil
}

func (b *Broker) Name() string { return b.name }

// toWire maps the runtime's `.`/`*` subject alphabet onto MQTT's `/`/`+`.
// The mapping is one-to-one; onMessage relies on the embedded broker seeing
// the original dot-separated subject carried inside the payload.
func toWire(subject string) string {
	subject = strings.ReplaceAll(subject, ".", "/")
	subject = strings.ReplaceAll(subject, "*", "+")
	return subject
}

func (b *Broker) onMessage(m paho.Message) {
	var out message.Outbound
	if err := msgpack.Unmarshal(m.Payload(), &out); err != nil {
		log.Printf("[trigger/mqtt] %s: discarding undecodable payload on %s: %v", b.name, m.Topic(), err)
		return
	}
	if err := b.local.Publish(context.Background(), out); err != nil {
		log.Printf("[trigger/mqtt] %s: local republish failed: %v", b.name, err)
	}
}

// Publish MessagePack-encodes msg and publishes it at QoS 1 on the
// wire-mapped subject.
func (b *Broker) Publish(_ context.Context, msg message.Outbound) error {
	if msg.Subject == "" {
		return errdefs.ErrNoSubject
	}

	body, err := msgpack.Marshal(msg)
	if err != nil {
		return fmt.Errorf("trigger/mqtt: encode outbound: %w", err)
	}

	topic := toWire(msg.Subject)
	token := b.client.Publish(topic, 1, false, body)
	token.Wait()
	if err := token.Error(); err != nil {
		return &errdefs.TransportError{Broker: b.name, Err: err}
	}
	return nil
}

// SubscribeToTopic subscribes on the wire-mapped subject at the MQTT level,
// then hands the receiver off to the embedded in-process broker, which
// performs the actual `*`/`?` glob matching against decoded messages.
func (b *Broker) SubscribeToTopic(ctx context.Context, pattern string) (broker.Receiver, error) {
	topic := toWire(pattern)
	token := b.client.Subscribe(topic, 1, nil)
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, &errdefs.TransportError{Broker: b.name, Err: err}
	}
	return b.local.SubscribeToTopic(ctx, pattern)
}

// SubscribeToQueue subscribes to the MQTT shared-subscription form
// `$share/{group}/{topic}` so multiple trigger instances split delivery at
// the broker, then joins the local queue group for in-process round robin
// among this process's own members.
func (b *Broker) SubscribeToQueue(ctx context.Context, topic, group string) (broker.Receiver, error) {
	shared := fmt.Sprintf("$share/%s/%s", group, toWire(topic))
	token := b.client.Subscribe(shared, 1, nil)
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, &errdefs.TransportError{Broker: b.name, Err: err}
	}
	return b.local.SubscribeToQueue(ctx, topic, group)
}

// Request has no native MQTT primitive, so it goes through the shared
// correlator the same way the in-process and Redis brokers do.
func (b *Broker) Request(ctx context.Context, req message.Outbound) (message.Inbound, error) {
	return correlator.Request(ctx, b, req)
}

// Close disconnects the underlying MQTT client.
func (b *Broker) Close() error {
	b.client.Disconnect(250)
	return nil
}
