// Package message defines the canonical message shapes that flow between
// brokers, the dispatch loop, and the gateway.
package message

// Inbound is produced by a broker when it receives a message, stamped with
// the broker's own name. It is immutable after creation.
type Inbound struct {
	Body            []byte `json:"body" msgpack:"body"`
	Subject         string `json:"subject" msgpack:"subject"`
	Broker          string `json:"broker" msgpack:"broker"`
	ResponseSubject string `json:"response_subject,omitempty" msgpack:"response_subject,omitempty"`
}

// Outbound is produced by a handler. Subject/Broker may be empty, in which
// case the dispatch loop fills them in with a resolved default before
// publishing.
type Outbound struct {
	Body            []byte `json:"body" msgpack:"body"`
	Subject         string `json:"subject,omitempty" msgpack:"subject,omitempty"`
	Broker          string `json:"broker,omitempty" msgpack:"broker,omitempty"`
	ResponseSubject string `json:"response_subject,omitempty" msgpack:"response_subject,omitempty"`
}

// Outcome is the tagged result of a handler invocation: either a list of
// messages to publish, or an error. Publish and Err are mutually exclusive;
// a non-nil Err means the handler reported Outcome.Error.
type Outcome struct {
	Publish []Outbound
	Err     error
}

// HTTPRequest is the envelope serialized onto the bus for request/response
// gateway traffic.
type HTTPRequest struct {
	Method  string            `json:"method" msgpack:"method"`
	Headers map[string]string `json:"headers" msgpack:"headers"`
	URI     string            `json:"uri" msgpack:"uri"`
	Path    string            `json:"path" msgpack:"path"`
	Body    []byte            `json:"body" msgpack:"body"`
}

// HTTPResponse is the reply half of the request/response envelope.
type HTTPResponse struct {
	Status  int               `json:"status" msgpack:"status"`
	Headers map[string]string `json:"headers" msgpack:"headers"`
	Body    []byte            `json:"body" msgpack:"body"`
}
