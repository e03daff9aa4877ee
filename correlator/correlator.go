// Package correlator implements the request/response correlator: minting
// unique request/response subject pairs, publishing the request, and
// awaiting the matching reply under a timeout. Brokers that don't provide
// a native request primitive (in-process, Redis, MQTT) call these
// functions from inside their own Request method; NATS implements Request
// natively instead (see brokers/nats).
package correlator

import (
	"context"
	"errors"
	"fmt"

	"github.com/oklog/ulid/v2"

	"github.com/messagetrigger/runtime/broker"
	"github.com/messagetrigger/runtime/errdefs"
	"github.com/messagetrigger/runtime/message"
	"github.com/messagetrigger/runtime/subscription"
)

// Request mints a response subject if req doesn't already carry one,
// subscribes to it, publishes req, and returns the first reply received.
// Callers that need a deadline should wrap ctx themselves; Request with no
// deadline on ctx waits indefinitely.
func Request(ctx context.Context, b broker.Broker, req message.Outbound) (message.Inbound, error) {
	if req.Subject == "" {
		return message.Inbound{}, errdefs.ErrNoSubject
	}

	responseSubject := req.ResponseSubject
	if responseSubject == "" {
		id := ulid.Make().String()
		original := req.Subject
		req.Subject = fmt.Sprintf("request.%s.%s", id, original)
		responseSubject = fmt.Sprintf("response.%s.%s", id, original)
		req.ResponseSubject = responseSubject
	}

	recv, err := b.SubscribeToTopic(ctx, responseSubject)
	if err != nil {
		return message.Inbound{}, err
	}
	defer recv.Close()

	if err := b.Publish(ctx, req); err != nil {
		return message.Inbound{}, err
	}

	select {
	case v, ok := <-recv.C():
		if !ok {
			return message.Inbound{}, errdefs.ErrBrokerClosed
		}
		return v, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return message.Inbound{}, fmt.Errorf("%w: %w", errdefs.ErrTimeout, ctx.Err())
		}
		return message.Inbound{}, ctx.Err()
	}
}

// Codec serializes and deserializes the HTTPRequest/HTTPResponse envelope
// carried over the bus for request/response gateway traffic.
type Codec interface {
	EncodeRequest(message.HTTPRequest) ([]byte, error)
	DecodeResponse([]byte) (message.HTTPResponse, error)
}

// HTTPRequest mints (subject, response_subject) from a fresh ULID and the
// escaped request path, serializes req with codec, issues Request under
// ctx's deadline, and decodes the reply.
func HTTPRequest(ctx context.Context, b broker.Broker, req message.HTTPRequest, codec Codec) (message.HTTPResponse, error) {
	id := ulid.Make().String()
	path := subscription.EscapePath(req.Path)
	method := req.Method
	if method == "" {
		method = "*"
	}
	base := fmt.Sprintf("%s.%s.%s", id, method, path)
	subj := "request." + base
	respSubj := "response." + base

	body, err := codec.EncodeRequest(req)
	if err != nil {
		return message.HTTPResponse{}, fmt.Errorf("trigger: encode http request: %w", err)
	}

	out := message.Outbound{
		Subject:         subj,
		Body:            body,
		ResponseSubject: respSubj,
	}

	reply, err := Request(ctx, b, out)
	if err != nil {
		return message.HTTPResponse{}, err
	}

	resp, err := codec.DecodeResponse(reply.Body)
	if err != nil {
		return message.HTTPResponse{}, fmt.Errorf("trigger: decode http response: %w", err)
	}
	return resp, nil
}
