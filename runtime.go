// Package trigger re-exports the runtime's most commonly used types at the
// module root, so callers wiring up a trigger can write:
//
//	brokers, err := wiring.Brokers(root)
//	loop := dispatch.New(brokers, invoker)
//	loop.Run(ctx, bindings)
//
// without reaching into each subpackage individually for the shapes that
// cross package boundaries.
package trigger

import (
	"github.com/messagetrigger/runtime/broker"
	"github.com/messagetrigger/runtime/dispatch"
	"github.com/messagetrigger/runtime/message"
	"github.com/messagetrigger/runtime/subscription"
)

type (
	Broker   = broker.Broker
	Inbound  = message.Inbound
	Outbound = message.Outbound
	Outcome  = message.Outcome
	Invoker  = dispatch.Invoker
	Binding  = dispatch.Binding
	Spec     = subscription.Spec
)

// NewLoop creates a dispatch.Loop over the given named brokers.
func NewLoop(brokers map[string]Broker, invoker Invoker) *dispatch.Loop {
	return dispatch.New(brokers, invoker)
}
