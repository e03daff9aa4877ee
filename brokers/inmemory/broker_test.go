package inmemory_test

import (
	"context"
	"testing"
	"time"

	"github.com/messagetrigger/runtime/broker"
	"github.com/messagetrigger/runtime/brokers/inmemory"
	"github.com/messagetrigger/runtime/message"
	"github.com/messagetrigger/runtime/subscription"
)

func recvTimeout(t *testing.T, r interface{ C() <-chan message.Inbound }, wantOK bool) (message.Inbound, bool) {
	t.Helper()
	select {
	case v, ok := <-r.C():
		return v, ok
	case <-time.After(100 * time.Millisecond):
		if wantOK {
			t.Fatal("expected a message, got none")
		}
		return message.Inbound{}, false
	}
}

func TestPublishedMessageReceivedBySubscriber(t *testing.T) {
	ctx := context.Background()
	b := inmemory.New("test")

	r, err := b.SubscribeToTopic(ctx, "message.test")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	msg := message.Outbound{Subject: "message.test", Body: []byte("test")}
	if err := b.Publish(ctx, msg); err != nil {
		t.Fatalf("publish: %v", err)
	}

	got, ok := recvTimeout(t, r, true)
	if !ok {
		t.Fatal("expected delivery")
	}
	if got.Subject != "message.test" || string(got.Body) != "test" {
		t.Errorf("got %+v", got)
	}
	if got.Broker != "test" {
		t.Errorf("broker = %q, want %q", got.Broker, "test")
	}
}

func TestPublishedMessageNotReceivedByWrongSubscriber(t *testing.T) {
	ctx := context.Background()
	b := inmemory.New("test")

	r, err := b.SubscribeToTopic(ctx, "message.wrong")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := b.Publish(ctx, message.Outbound{Subject: "message.test", Body: []byte("test")}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if _, ok := recvTimeout(t, r, false); ok {
		t.Fatal("expected no delivery")
	}
}

func TestWildcardSubscriptionMatches(t *testing.T) {
	ctx := context.Background()
	b := inmemory.New("test")

	r, err := b.SubscribeToTopic(ctx, "message.*")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := b.Publish(ctx, message.Outbound{Subject: "message.test", Body: []byte("test")}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	got, ok := recvTimeout(t, r, true)
	if !ok || got.Subject != "message.test" {
		t.Fatalf("got %+v, ok=%v", got, ok)
	}
}

func TestWildcardSubscriptionDoesNotMatchWrongSubject(t *testing.T) {
	ctx := context.Background()
	b := inmemory.New("test")

	r, err := b.SubscribeToTopic(ctx, "message.*")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := b.Publish(ctx, message.Outbound{Subject: "test.message", Body: []byte("test")}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if _, ok := recvTimeout(t, r, false); ok {
		t.Fatal("expected no delivery")
	}
}

func TestQueueSubscriberReceivesMessage(t *testing.T) {
	ctx := context.Background()
	b := inmemory.New("test")

	r, err := b.SubscribeToQueue(ctx, "message.test", "group")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := b.Publish(ctx, message.Outbound{Subject: "message.test", Body: []byte("test")}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	got, ok := recvTimeout(t, r, true)
	if !ok || got.Subject != "message.test" {
		t.Fatalf("got %+v, ok=%v", got, ok)
	}
}

func TestOnlyOneQueueMemberReceivesMessage(t *testing.T) {
	ctx := context.Background()
	b := inmemory.New("test")

	r1, err := b.SubscribeToQueue(ctx, "message.test", "group")
	if err != nil {
		t.Fatalf("subscribe r1: %v", err)
	}
	r2, err := b.SubscribeToQueue(ctx, "message.test", "group")
	if err != nil {
		t.Fatalf("subscribe r2: %v", err)
	}

	if err := b.Publish(ctx, message.Outbound{Subject: "message.test", Body: []byte("test")}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	got, ok := recvTimeout(t, r1, true)
	if !ok {
		t.Fatal("r1 should have received the message")
	}
	if got.Subject != "message.test" {
		t.Errorf("got %+v", got)
	}
	if _, ok := recvTimeout(t, r2, false); ok {
		t.Fatal("r2 should not have received anything")
	}
}

func TestQueueMembersAlternate(t *testing.T) {
	ctx := context.Background()
	b := inmemory.New("test")

	r1, _ := b.SubscribeToQueue(ctx, "message.test", "group")
	r2, _ := b.SubscribeToQueue(ctx, "message.test", "group")

	publish := func() {
		if err := b.Publish(ctx, message.Outbound{Subject: "message.test", Body: []byte("test")}); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	publish()
	if _, ok := recvTimeout(t, r1, true); !ok {
		t.Fatal("expected r1 to receive first")
	}
	if _, ok := recvTimeout(t, r2, false); ok {
		t.Fatal("r2 should be empty after first publish")
	}

	publish()
	if _, ok := recvTimeout(t, r2, true); !ok {
		t.Fatal("expected r2 to receive second")
	}
	if _, ok := recvTimeout(t, r1, false); ok {
		t.Fatal("r1 should be empty after second publish")
	}

	publish()
	if _, ok := recvTimeout(t, r1, true); !ok {
		t.Fatal("expected r1 to receive third")
	}
}

func TestQueueGroupRoundRobinDistribution(t *testing.T) {
	ctx := context.Background()
	b := inmemory.New("test")

	r1, _ := b.SubscribeToQueue(ctx, "message.test", "group")
	r2, _ := b.SubscribeToQueue(ctx, "message.test", "group")

	const n = 10
	for i := 0; i < n; i++ {
		if err := b.Publish(ctx, message.Outbound{Subject: "message.test", Body: []byte("x")}); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	count := func(r interface{ C() <-chan message.Inbound }) int {
		c := 0
		for {
			select {
			case <-r.C():
				c++
			case <-time.After(20 * time.Millisecond):
				return c
			}
		}
	}

	c1 := count(r1)
	c2 := count(r2)
	if c1+c2 != n {
		t.Fatalf("total received = %d, want %d", c1+c2, n)
	}
	if c1 != n/2 || c2 != n/2 {
		t.Fatalf("expected even split 5/5, got %d/%d", c1, c2)
	}
}

func TestTwoSubscribersOnSamePatternBothReceive(t *testing.T) {
	ctx := context.Background()
	b := inmemory.New("test")

	r1, err := b.SubscribeToTopic(ctx, "message.test")
	if err != nil {
		t.Fatalf("subscribe r1: %v", err)
	}
	r2, err := b.SubscribeToTopic(ctx, "message.test")
	if err != nil {
		t.Fatalf("subscribe r2: %v", err)
	}

	if err := b.Publish(ctx, message.Outbound{Subject: "message.test", Body: []byte("test")}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if _, ok := recvTimeout(t, r1, true); !ok {
		t.Fatal("r1 should have received")
	}
	if _, ok := recvTimeout(t, r2, true); !ok {
		t.Fatal("r2 should have received")
	}
}

func TestRequestSubscriptionReceivesHTTPShapedSubjects(t *testing.T) {
	ctx := context.Background()
	b := inmemory.New("test")

	spec := subscription.Spec{Kind: subscription.Request, Path: "orders/new", Method: "POST"}
	r, err := broker.Subscribe(ctx, b, spec)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := b.Publish(ctx, message.Outbound{
		Subject: "request.01HZXW.POST.orders.new",
		Body:    []byte("{}"),
	}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	got, ok := recvTimeout(t, r, true)
	if !ok {
		t.Fatal("expected delivery for request-shaped subject")
	}
	// A request-prefixed subject without an explicit response subject gets
	// the response.{...} default applied at publish.
	if got.ResponseSubject != "response.01HZXW.POST.orders.new" {
		t.Errorf("response subject = %q", got.ResponseSubject)
	}

	// A different method must not match.
	if err := b.Publish(ctx, message.Outbound{
		Subject: "request.01HZXW.GET.orders.new",
		Body:    []byte("{}"),
	}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if _, ok := recvTimeout(t, r, false); ok {
		t.Fatal("GET request should not match a POST subscription")
	}
}

func TestPublishRequiresSubject(t *testing.T) {
	ctx := context.Background()
	b := inmemory.New("test")

	err := b.Publish(ctx, message.Outbound{Body: []byte("x")})
	if err == nil {
		t.Fatal("expected error for missing subject")
	}
}

func TestRequestResponseRoundTrip(t *testing.T) {
	ctx := context.Background()
	b := inmemory.New("test")

	// Simulate a handler replying on the response subject. The correlator
	// rewrites the bare subject "echo" into "request.{id}.echo", so the
	// responder subscribes with a wildcard over the minted id.
	go func() {
		r, err := b.SubscribeToTopic(ctx, "request.*.echo")
		if err != nil {
			return
		}
		v, ok := recvTimeout(t, r, true)
		if !ok {
			return
		}
		_ = b.Publish(ctx, message.Outbound{
			Subject: v.ResponseSubject,
			Body:    v.Body,
		})
	}()

	time.Sleep(20 * time.Millisecond)

	reqCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	resp, err := b.Request(reqCtx, message.Outbound{Subject: "echo", Body: []byte("hi")})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if string(resp.Body) != "hi" {
		t.Errorf("body = %q, want %q", resp.Body, "hi")
	}
}
