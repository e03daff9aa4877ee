package mock

import (
	"context"

	"github.com/messagetrigger/runtime/message"
)

// EchoInvoker is a dispatch.Invoker test double (and the reference
// entrypoint's placeholder component host) that republishes every inbound
// message's body back onto its own response subject, or does nothing when
// the message carries none. The real component host is a sandboxed runtime
// outside this repo's scope.
type EchoInvoker struct{}

// NewEchoInvoker returns a ready EchoInvoker.
func NewEchoInvoker() EchoInvoker { return EchoInvoker{} }

func (EchoInvoker) Invoke(_ context.Context, _ string, msg message.Inbound) (message.Outcome, error) {
	if msg.ResponseSubject == "" {
		return message.Outcome{}, nil
	}
	return message.Outcome{
		Publish: []message.Outbound{
			{Subject: msg.ResponseSubject, Body: msg.Body},
		},
	}, nil
}
