// Package dispatch binds (component, subscription) pairs to running
// goroutines: one per configured trigger. Each goroutine subscribes to its
// broker, invokes the component for every inbound message, and routes the
// resulting Outcome back out through the same broker set.
package dispatch

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/messagetrigger/runtime/broker"
	"github.com/messagetrigger/runtime/errdefs"
	"github.com/messagetrigger/runtime/message"
	"github.com/messagetrigger/runtime/subscription"
)

// gracePeriod bounds how long Run waits for in-flight handler invocations
// after cancellation.
const gracePeriod = 10 * time.Second

// Invoker runs a component against one inbound message and returns its
// declared Outcome. The real component host (a sandboxed runtime) lives
// outside this repo; tests and the reference entrypoint use FuncInvoker.
type Invoker interface {
	Invoke(ctx context.Context, componentID string, msg message.Inbound) (message.Outcome, error)
}

// FuncInvoker adapts a plain function to Invoker.
type FuncInvoker func(ctx context.Context, componentID string, msg message.Inbound) (message.Outcome, error)

func (f FuncInvoker) Invoke(ctx context.Context, componentID string, msg message.Inbound) (message.Outcome, error) {
	return f(ctx, componentID, msg)
}

// Binding is one resolved (component, broker, subscription) trigger, ready
// to dispatch.
type Binding struct {
	Component    string
	BrokerName   string
	Subscription subscription.Spec
}

// Loop runs every Binding against a broker set until ctx is cancelled.
type Loop struct {
	brokers map[string]broker.Broker
	invoker Invoker
}

// New creates a Loop over the given named brokers. The invoker is always
// wrapped with Recovery so a panicking component can't kill its binding's
// goroutine; callers that want logging or metrics should wrap invoker with
// Chain themselves before calling New.
func New(brokers map[string]broker.Broker, invoker Invoker) *Loop {
	return &Loop{brokers: brokers, invoker: Chain(invoker, Recovery())}
}

// Run spawns one goroutine per binding and blocks until ctx is cancelled. If
// a binding's subscription fails to establish, Run returns that error
// immediately; goroutines already started for earlier bindings keep running
// until ctx is cancelled.
func (l *Loop) Run(ctx context.Context, bindings []Binding) error {
	var wg sync.WaitGroup

	for _, b := range bindings {
		bnd := b
		br, ok := l.brokers[bnd.BrokerName]
		if !ok {
			// Config validation catches this before Run in the normal startup
			// path; a stray binding here only loses its own subscription.
			log.Printf("[trigger/dispatch] %s: %v: %q, skipping binding", bnd.Component, errdefs.ErrUnknownBroker, bnd.BrokerName)
			continue
		}

		recv, err := broker.Subscribe(ctx, br, bnd.Subscription)
		if err != nil {
			return fmt.Errorf("dispatch: subscribe %s/%s: %w", bnd.Component, bnd.BrokerName, err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			l.runBinding(ctx, bnd, recv)
		}()
	}

	<-ctx.Done()

	// Bounded grace period: in-flight handler invocations get gracePeriod to
	// finish before Run returns and the process exits.
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(gracePeriod):
		log.Printf("[trigger/dispatch] grace period elapsed with bindings still in flight")
	}
	return nil
}

func (l *Loop) runBinding(ctx context.Context, bnd Binding, recv broker.Receiver) {
	defer recv.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-recv.C():
			if !ok {
				return
			}
			l.dispatchOne(ctx, bnd, msg)
		}
	}
}

func (l *Loop) dispatchOne(ctx context.Context, bnd Binding, msg message.Inbound) {
	outcome, err := l.invoker.Invoke(ctx, bnd.Component, msg)
	if err != nil {
		log.Printf("[trigger/dispatch] %s: invoke failed: %v", bnd.Component, err)
		return
	}
	if outcome.Err != nil {
		log.Printf("[trigger/dispatch] %s: handler reported error: %v", bnd.Component, outcome.Err)
		return
	}

	defaultBroker, defaultSubject := l.defaults(bnd, msg)
	l.publishAll(ctx, defaultBroker, defaultSubject, outcome.Publish)
}

// defaults resolves the (broker, subject) fallback applied to outputs that
// don't name their own: the subscription's ResultRoute wins when set;
// otherwise fall back to the binding's own broker and the inbound subject.
func (l *Loop) defaults(bnd Binding, msg message.Inbound) (string, string) {
	if route := bnd.Subscription.Result; route != nil {
		return route.DefaultBroker, route.DefaultSubject
	}
	return bnd.BrokerName, msg.Subject
}

// publishAll sends every output, resolving each one's own broker/subject
// against the supplied defaults. An output naming a broker this Loop
// doesn't know about is logged and skipped; a publish failure on one
// output is logged and does not stop the remaining outputs.
func (l *Loop) publishAll(ctx context.Context, defaultBroker, defaultSubject string, outputs []message.Outbound) {
	for _, out := range outputs {
		brokerName := defaultBroker
		if out.Broker != "" {
			brokerName = out.Broker
		}
		target, ok := l.brokers[brokerName]
		if !ok {
			log.Printf("[trigger/dispatch] output references unknown broker %q, dropping", brokerName)
			continue
		}

		if out.Subject == "" {
			out.Subject = defaultSubject
		}

		if err := target.Publish(ctx, out); err != nil {
			log.Printf("[trigger/dispatch] publish to %s/%s failed: %v", brokerName, out.Subject, err)
		}
	}
}
