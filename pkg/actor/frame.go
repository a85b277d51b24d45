// Package actor implements the cooperative, single-threaded message-passing
// runtime the rest of the module is built on: a bidirectional channel of
// typed frames between a parent and a child, a correlation-id tracker that
// resolves pending callbacks on response or timeout, and the thin Actor
// contract every subsystem implements.
//
// Every actor in this module is driven by repeated Process calls from its
// owner; there are no goroutines spawned per actor and no suspension
// points within one tick, so no component is ever polled concurrently.
package actor

import (
	"fmt"

	"github.com/google/uuid"
)

// CorrelationID identifies one outstanding request across a
// request/response pair.
type CorrelationID string

// newCorrelationID builds a short component-prefix, monotonic counter and
// random-suffix id.
func newCorrelationID(prefix string, counter uint64) CorrelationID {
	return CorrelationID(fmt.Sprintf("%s-%d-%s", prefix, counter, uuid.New().String()[:8]))
}

// FrameKind tags one of the three frame shapes a channel direction carries.
type FrameKind int

const (
	FrameRequest FrameKind = iota
	FrameResponse
	FrameEvent
)

// Span is a lightweight diagnostic back-trace carried by every frame, used
// to blame the origin of an unhandled error on a publish path.
type Span struct {
	Origin string
	Trace  []string
}

// WithFrame appends one more hop to the span's trace, returning a copy.
func (s Span) WithFrame(hop string) Span {
	trace := make([]string, len(s.Trace), len(s.Trace)+1)
	copy(trace, s.Trace)
	trace = append(trace, hop)
	return Span{Origin: s.Origin, Trace: trace}
}

// NewSpan starts a span at origin.
func NewSpan(origin string) Span {
	return Span{Origin: origin, Trace: []string{origin}}
}

// Frame is one message crossing a channel in one direction.
type Frame struct {
	Kind    FrameKind
	CorrID  CorrelationID // set for FrameRequest/FrameResponse, empty for FrameEvent
	Payload interface{}
	Result  Result // set for FrameResponse only
	Span    Span
}

// Result is the outcome carried by a response frame: exactly one of Ok/Err
// is meaningful.
type Result struct {
	Ok  interface{}
	Err error
}

// IsErr reports whether the result carries an error.
func (r Result) IsErr() bool { return r.Err != nil }
