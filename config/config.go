// Package config provides the typed representation of brokers,
// subscriptions, and result routing accepted by the runtime's YAML
// configuration file, together with strict decoding that rejects unknown
// fields.
package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/messagetrigger/runtime/subscription"
)

// Root is the top-level configuration document:
//
//	trigger:
//	  type: message
//	  brokers: { <name>: BrokerConfig }
//	triggers: [ { component, broker, subscription } ]
type Root struct {
	Trigger  TriggerMetadata  `yaml:"trigger"`
	Triggers []HandlerBinding `yaml:"triggers"`
}

// TriggerMetadata names this trigger's type and its broker set.
type TriggerMetadata struct {
	Type    string                  `yaml:"type"`
	Brokers map[string]BrokerConfig `yaml:"brokers"`
}

// HandlerBinding ties a component to a broker and a subscription.
type HandlerBinding struct {
	Component    string             `yaml:"component"`
	Broker       string             `yaml:"broker"`
	Subscription SubscriptionConfig `yaml:"subscription"`
}

// BrokerConfig describes one named broker instance: its transport type and
// optional HTTP/WebSocket gateway.
type BrokerConfig struct {
	Type    string         `yaml:"type"` // "memory" | "redis" | "nats" | "mqtt"
	Redis   *RedisConfig   `yaml:"redis,omitempty"`
	NATS    *NATSConfig    `yaml:"nats,omitempty"`
	MQTT    *MQTTConfig    `yaml:"mqtt,omitempty"`
	Gateway *GatewayConfig `yaml:"gateway,omitempty"`
}

// RedisConfig configures the Redis broker adapter.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// NATSAuth is a tagged union of NATS authentication mechanisms; exactly one
// of its field groups is expected to be set.
type NATSAuth struct {
	Token           string `yaml:"token,omitempty"`
	User            string `yaml:"user,omitempty"`
	Password        string `yaml:"password,omitempty"`
	NKeySeed        string `yaml:"nkey_seed,omitempty"`
	JWT             string `yaml:"jwt,omitempty"`
	CredentialsFile string `yaml:"credentials_file,omitempty"`
	CredentialsText string `yaml:"credentials_text,omitempty"`
}

// NATSConfig configures the NATS broker adapter.
type NATSConfig struct {
	Addresses       []string  `yaml:"addresses"`
	TLS             *bool     `yaml:"tls,omitempty"`
	PingIntervalMs  int64     `yaml:"ping_interval_ms,omitempty"`
	Auth            *NATSAuth `yaml:"auth,omitempty"`
	RootCertificate string    `yaml:"root_certificate,omitempty"`
	ClientCertFile  string    `yaml:"client_certificate,omitempty"`
	ClientKeyFile   string    `yaml:"client_key,omitempty"`
	ClientName      string    `yaml:"client_name,omitempty"`
}

// MQTTCredentials is a username/password pair for MQTT connections.
type MQTTCredentials struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTConfig configures the MQTT broker adapter.
type MQTTConfig struct {
	Address     string           `yaml:"address"`
	ClientID    string           `yaml:"id,omitempty"`
	KeepAliveS  float32          `yaml:"keep_alive,omitempty"`
	Credentials *MQTTCredentials `yaml:"credentials,omitempty"`
}

// WebsocketFraming selects how Inbound messages are framed onto a
// subscriber WebSocket.
type WebsocketFraming string

const (
	FramingBinaryBody  WebsocketFraming = "binary"
	FramingTextBody    WebsocketFraming = "text"
	FramingMessagePack WebsocketFraming = "messagepack"
	FramingJSON        WebsocketFraming = "json"
)

// RequestResponseCodec selects the wire codec for the HTTP request/response
// envelope.
type RequestResponseCodec string

const (
	CodecMessagePack RequestResponseCodec = "messagepack"
	CodecJSON        RequestResponseCodec = "json"
)

// GatewayConfig enables the HTTP+WebSocket gateway for a broker.
type GatewayConfig struct {
	Port            uint16                `yaml:"port"`
	Websockets      *WebsocketFraming     `yaml:"websockets,omitempty"`
	RequestResponse *RequestResponseCodec `yaml:"request_response,omitempty"`
	TimeoutMs       *uint64               `yaml:"timeout_ms,omitempty"`
}

// SubscriptionConfig is the YAML-facing tagged Subscription variant. Exactly
// one of Topic/Queue/Request/None semantics is selected by Type.
type SubscriptionConfig struct {
	Type   string       `yaml:"type"` // "topic" | "queue" | "request" | "none"
	Topic  string       `yaml:"topic,omitempty"`
	Group  string       `yaml:"group,omitempty"`
	Path   string       `yaml:"path,omitempty"`
	Method string       `yaml:"method,omitempty"`
	Result *ResultRoute `yaml:"result,omitempty"`
}

// ResultRoute is the fallback broker/subject applied to handler outputs
// lacking their own.
type ResultRoute struct {
	DefaultBroker  string `yaml:"default_broker"`
	DefaultSubject string `yaml:"default_subject"`
}

// ToSpec converts the YAML-facing configuration into the runtime's
// subscription.Spec value.
func (s SubscriptionConfig) ToSpec() (subscription.Spec, error) {
	var route *subscription.ResultRoute
	if s.Result != nil {
		route = &subscription.ResultRoute{
			DefaultBroker:  s.Result.DefaultBroker,
			DefaultSubject: s.Result.DefaultSubject,
		}
	}

	switch s.Type {
	case "topic":
		if s.Topic == "" {
			return subscription.Spec{}, fmt.Errorf("config: topic subscription requires topic")
		}
		return subscription.Spec{Kind: subscription.Topic, Pattern: s.Topic, Result: route}, nil
	case "queue":
		if s.Topic == "" || s.Group == "" {
			return subscription.Spec{}, fmt.Errorf("config: queue subscription requires topic and group")
		}
		return subscription.Spec{Kind: subscription.Queue, Pattern: s.Topic, Group: s.Group, Result: route}, nil
	case "request":
		if s.Path == "" {
			return subscription.Spec{}, fmt.Errorf("config: request subscription requires path")
		}
		return subscription.Spec{Kind: subscription.Request, Path: s.Path, Method: s.Method}, nil
	case "none", "":
		return subscription.Spec{Kind: subscription.None}, nil
	default:
		return subscription.Spec{}, fmt.Errorf("config: unknown subscription type %q", s.Type)
	}
}

// Load reads and strictly decodes a YAML configuration file from path.
// Unknown fields are rejected.
func Load(path string) (*Root, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse strictly decodes YAML configuration from raw bytes.
func Parse(data []byte) (*Root, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var root Root
	if err := dec.Decode(&root); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	return &root, nil
}
