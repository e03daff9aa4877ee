// Package wiring wires a parsed configuration document into live brokers
// and dispatch bindings. It is the one place that knows about every
// concrete broker adapter, which keeps the config package free of import
// cycles with brokers/nats and brokers/mqtt (both of which depend on
// config for their own typed settings).
package wiring

import (
	"fmt"

	"github.com/messagetrigger/runtime/broker"
	"github.com/messagetrigger/runtime/brokers/inmemory"
	"github.com/messagetrigger/runtime/brokers/mqtt"
	"github.com/messagetrigger/runtime/brokers/nats"
	"github.com/messagetrigger/runtime/brokers/redis"
	"github.com/messagetrigger/runtime/config"
	"github.com/messagetrigger/runtime/dispatch"
	"github.com/messagetrigger/runtime/errdefs"
)

// Brokers builds one live broker.Broker per entry in root.Trigger.Brokers.
// Construction stops at the first failure; brokers built before the
// failure are left open since the caller is expected to abort startup
// entirely on error.
func Brokers(root *config.Root) (map[string]broker.Broker, error) {
	out := make(map[string]broker.Broker, len(root.Trigger.Brokers))

	for name, bc := range root.Trigger.Brokers {
		b, err := buildBroker(name, bc)
		if err != nil {
			return nil, &errdefs.ConfigError{Detail: fmt.Sprintf("broker %q", name), Err: err}
		}
		out[name] = b
	}

	return out, nil
}

func buildBroker(name string, bc config.BrokerConfig) (broker.Broker, error) {
	switch bc.Type {
	case "memory", "":
		return inmemory.New(name), nil
	case "redis":
		if bc.Redis == nil {
			return nil, fmt.Errorf("redis broker requires a redis section")
		}
		return redis.New(name, bc.Redis.URL), nil
	case "nats":
		if bc.NATS == nil {
			return nil, fmt.Errorf("nats broker requires a nats section")
		}
		return nats.New(name, *bc.NATS)
	case "mqtt":
		if bc.MQTT == nil {
			return nil, fmt.Errorf("mqtt broker requires an mqtt section")
		}
		return mqtt.New(name, *bc.MQTT)
	default:
		return nil, fmt.Errorf("unknown broker type %q", bc.Type)
	}
}

// Bindings converts every configured trigger into a dispatch.Binding,
// validating that each one references a broker present in brokers.
func Bindings(root *config.Root, brokers map[string]broker.Broker) ([]dispatch.Binding, error) {
	out := make([]dispatch.Binding, 0, len(root.Triggers))

	for _, t := range root.Triggers {
		if _, ok := brokers[t.Broker]; !ok {
			return nil, &errdefs.ConfigError{
				Detail: fmt.Sprintf("trigger %q references broker %q", t.Component, t.Broker),
				Err:    errdefs.ErrUnknownBroker,
			}
		}

		spec, err := t.Subscription.ToSpec()
		if err != nil {
			return nil, &errdefs.ConfigError{Detail: fmt.Sprintf("trigger %q", t.Component), Err: err}
		}

		out = append(out, dispatch.Binding{
			Component:    t.Component,
			BrokerName:   t.Broker,
			Subscription: spec,
		})
	}

	return out, nil
}
