package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/messagetrigger/runtime/message"
)

func TestRecoveryConvertsPanicToError(t *testing.T) {
	inv := Chain(FuncInvoker(func(context.Context, string, message.Inbound) (message.Outcome, error) {
		panic("boom")
	}), Recovery())

	_, err := inv.Invoke(context.Background(), "c", message.Inbound{Subject: "s"})
	if err == nil {
		t.Fatal("expected error from recovered panic")
	}
}

func TestRecoveryPassesThroughNormalOutcome(t *testing.T) {
	want := message.Outcome{Publish: []message.Outbound{{Subject: "out", Body: []byte("x")}}}
	inv := Chain(FuncInvoker(func(context.Context, string, message.Inbound) (message.Outcome, error) {
		return want, nil
	}), Recovery())

	got, err := inv.Invoke(context.Background(), "c", message.Inbound{})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if len(got.Publish) != 1 || got.Publish[0].Subject != "out" {
		t.Fatalf("outcome = %+v", got)
	}
}

func TestChainAppliesOutermostFirst(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next Invoker) Invoker {
			return FuncInvoker(func(ctx context.Context, id string, msg message.Inbound) (message.Outcome, error) {
				order = append(order, name)
				return next.Invoke(ctx, id, msg)
			})
		}
	}

	inv := Chain(FuncInvoker(func(context.Context, string, message.Inbound) (message.Outcome, error) {
		order = append(order, "base")
		return message.Outcome{}, nil
	}), tag("first"), tag("second"))

	if _, err := inv.Invoke(context.Background(), "c", message.Inbound{}); err != nil {
		t.Fatalf("invoke: %v", err)
	}

	want := []string{"first", "second", "base"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

type recordingCollector struct {
	component string
	duration  time.Duration
	err       error
	calls     int
}

func (c *recordingCollector) MessageProcessed(component string, duration time.Duration, err error) {
	c.component = component
	c.duration = duration
	c.err = err
	c.calls++
}

func TestMetricsReportsEveryInvocation(t *testing.T) {
	collector := &recordingCollector{}
	invokeErr := errors.New("handler blew up")

	inv := Chain(FuncInvoker(func(context.Context, string, message.Inbound) (message.Outcome, error) {
		return message.Outcome{}, invokeErr
	}), Metrics(collector))

	_, err := inv.Invoke(context.Background(), "billing", message.Inbound{Subject: "s"})
	if !errors.Is(err, invokeErr) {
		t.Fatalf("err = %v, want %v", err, invokeErr)
	}

	if collector.calls != 1 {
		t.Fatalf("collector calls = %d, want 1", collector.calls)
	}
	if collector.component != "billing" {
		t.Errorf("component = %q, want %q", collector.component, "billing")
	}
	if !errors.Is(collector.err, invokeErr) {
		t.Errorf("collector err = %v, want %v", collector.err, invokeErr)
	}
}
