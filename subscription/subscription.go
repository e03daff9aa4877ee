// Package subscription models the Subscription configuration variant:
// Topic, Queue, Request, or None, each optionally carrying a default
// result route for handler outputs.
package subscription

import "strings"

// Kind tags which variant a Spec holds.
type Kind int

const (
	// None means no subscription is configured; subscribing is an error.
	None Kind = iota
	// Topic subscribes to every message whose subject matches Pattern.
	Topic
	// Queue subscribes as one member of a named group sharing Pattern.
	Queue
	// Request is a convenience that expands to a topic pattern matching
	// request envelopes for Path (and optionally Method).
	Request
)

// ResultRoute is the fallback broker/subject applied to a handler output
// whose own subject/broker is absent.
type ResultRoute struct {
	DefaultBroker  string
	DefaultSubject string
}

// Spec is a tagged Subscription value. Only the fields relevant to Kind are
// meaningful.
type Spec struct {
	Kind    Kind
	Pattern string // Topic, Queue
	Group   string // Queue
	Path    string // Request
	Method  string // Request, "" means any method

	Result *ResultRoute // optional, for Topic and Queue
}

// TopicPattern returns the in-process topic pattern a Request subscription
// expands to: "request.*.<method|*>.<path-dot-escaped>".
func (s Spec) TopicPattern() string {
	method := s.Method
	if method == "" {
		method = "*"
	}
	path := EscapePath(s.Path)
	return "request.*." + method + "." + path
}

// EscapePath converts a URL path into the dot-escaped form used inside
// subject strings: '.' becomes "_DOT_", then '/' becomes '.'.
func EscapePath(path string) string {
	path = strings.ReplaceAll(path, ".", "_DOT_")
	path = strings.ReplaceAll(path, "/", ".")
	return path
}
