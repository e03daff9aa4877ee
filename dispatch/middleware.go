package dispatch

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"
	"time"

	"github.com/messagetrigger/runtime/message"
)

// Middleware wraps an Invoker. The chain composes around the component
// invocation rather than around a raw message handler, since Outcome is
// this runtime's unit of handler result.
type Middleware func(Invoker) Invoker

// Chain applies middlewares to base in the order given: the first
// middleware wraps outermost, matching core/middleware's registration order.
func Chain(base Invoker, mws ...Middleware) Invoker {
	for i := len(mws) - 1; i >= 0; i-- {
		base = mws[i](base)
	}
	return base
}

// Recovery returns middleware that converts an Invoke panic into an error,
// logging the stack trace. New installs this by default so a single
// misbehaving component can't take down its binding's goroutine.
func Recovery() Middleware {
	return func(next Invoker) Invoker {
		return FuncInvoker(func(ctx context.Context, componentID string, msg message.Inbound) (outcome message.Outcome, err error) {
			defer func() {
				if r := recover(); r != nil {
					buf := debug.Stack()
					log.Printf("[trigger/dispatch] %s: panic recovered: %v\n%s", componentID, r, buf)
					err = fmt.Errorf("dispatch: panic recovered: %v", r)
				}
			}()
			return next.Invoke(ctx, componentID, msg)
		})
	}
}

// Logging returns middleware that logs invocation duration and outcome.
func Logging() Middleware {
	return func(next Invoker) Invoker {
		return FuncInvoker(func(ctx context.Context, componentID string, msg message.Inbound) (message.Outcome, error) {
			start := time.Now()
			outcome, err := next.Invoke(ctx, componentID, msg)
			elapsed := time.Since(start)
			if err != nil {
				log.Printf("[trigger/dispatch] %s: ERROR subject=%s elapsed=%s err=%v", componentID, msg.Subject, elapsed, err)
			} else {
				log.Printf("[trigger/dispatch] %s: OK subject=%s elapsed=%s", componentID, msg.Subject, elapsed)
			}
			return outcome, err
		})
	}
}

// MetricsCollector is the interface metrics backends implement to observe
// dispatch outcomes, decoupling this package from any specific metrics
// library.
type MetricsCollector interface {
	MessageProcessed(component string, duration time.Duration, err error)
}

// Metrics returns middleware that reports every invocation to collector.
func Metrics(collector MetricsCollector) Middleware {
	return func(next Invoker) Invoker {
		return FuncInvoker(func(ctx context.Context, componentID string, msg message.Inbound) (message.Outcome, error) {
			start := time.Now()
			outcome, err := next.Invoke(ctx, componentID, msg)
			collector.MessageProcessed(componentID, time.Since(start), err)
			return outcome, err
		})
	}
}
