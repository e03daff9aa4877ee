package wiring

import (
	"errors"
	"testing"

	"github.com/messagetrigger/runtime/config"
	"github.com/messagetrigger/runtime/errdefs"
	"github.com/messagetrigger/runtime/subscription"
)

func TestBrokersBuildsMemoryBroker(t *testing.T) {
	root := &config.Root{
		Trigger: config.TriggerMetadata{
			Type: "message",
			Brokers: map[string]config.BrokerConfig{
				"main": {Type: "memory"},
			},
		},
	}

	brokers, err := Brokers(root)
	if err != nil {
		t.Fatalf("Brokers: %v", err)
	}
	b, ok := brokers["main"]
	if !ok {
		t.Fatal("expected broker \"main\"")
	}
	if b.Name() != "main" {
		t.Errorf("name = %q, want %q", b.Name(), "main")
	}
}

func TestBrokersRejectsUnknownType(t *testing.T) {
	root := &config.Root{
		Trigger: config.TriggerMetadata{
			Brokers: map[string]config.BrokerConfig{
				"bad": {Type: "kafka"},
			},
		},
	}

	_, err := Brokers(root)
	if err == nil {
		t.Fatal("expected error for unknown broker type")
	}
	var cfgErr *errdefs.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("err = %T, want *errdefs.ConfigError", err)
	}
}

func TestBrokersRequiresTransportSection(t *testing.T) {
	for _, typ := range []string{"redis", "nats", "mqtt"} {
		root := &config.Root{
			Trigger: config.TriggerMetadata{
				Brokers: map[string]config.BrokerConfig{
					"b": {Type: typ},
				},
			},
		}
		if _, err := Brokers(root); err == nil {
			t.Errorf("type %q without its section should fail", typ)
		}
	}
}

func TestBindingsRejectsUnknownBroker(t *testing.T) {
	root := &config.Root{
		Trigger: config.TriggerMetadata{
			Brokers: map[string]config.BrokerConfig{"main": {Type: "memory"}},
		},
		Triggers: []config.HandlerBinding{
			{Component: "echo", Broker: "missing", Subscription: config.SubscriptionConfig{Type: "topic", Topic: "t"}},
		},
	}

	brokers, err := Brokers(root)
	if err != nil {
		t.Fatalf("Brokers: %v", err)
	}

	_, err = Bindings(root, brokers)
	if !errors.Is(err, errdefs.ErrUnknownBroker) {
		t.Fatalf("err = %v, want ErrUnknownBroker", err)
	}
}

func TestBindingsConvertsSubscriptions(t *testing.T) {
	root := &config.Root{
		Trigger: config.TriggerMetadata{
			Brokers: map[string]config.BrokerConfig{"main": {Type: "memory"}},
		},
		Triggers: []config.HandlerBinding{
			{
				Component: "echo",
				Broker:    "main",
				Subscription: config.SubscriptionConfig{
					Type:  "queue",
					Topic: "jobs.*",
					Group: "workers",
				},
			},
		},
	}

	brokers, err := Brokers(root)
	if err != nil {
		t.Fatalf("Brokers: %v", err)
	}

	bindings, err := Bindings(root, brokers)
	if err != nil {
		t.Fatalf("Bindings: %v", err)
	}
	if len(bindings) != 1 {
		t.Fatalf("bindings = %d, want 1", len(bindings))
	}
	spec := bindings[0].Subscription
	if spec.Kind != subscription.Queue || spec.Pattern != "jobs.*" || spec.Group != "workers" {
		t.Errorf("spec = %+v", spec)
	}
}
