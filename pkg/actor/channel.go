package actor

import (
	"errors"
	"time"

	"github.com/jabolina/lib3h-go/internal/obs"
)

// ErrEndpointDisconnected is returned by publish/request once the channel's
// other side has been torn down; the endpoint is unusable afterwards.
var ErrEndpointDisconnected = errors.New("actor: endpoint disconnected")

// channelCore is the shared state of one bidirectional channel: two FIFO
// queues, one per direction. It is not exported; both endpoints reach it
// through their *Endpoint handle, and single-threaded cooperative
// scheduling means no locking is required.
type channelCore struct {
	toParent []Frame // frames the child enqueues for the parent to drain
	toChild  []Frame // frames the parent enqueues for the child to drain
	closed   bool
}

// Endpoint wraps one side of a channel. The parent side and child side of
// a newly created channel are distinct *Endpoint values sharing one
// channelCore.
type Endpoint struct {
	name     string
	core     *channelCore
	isParent bool
	tracker  *Tracker
	metrics  *obs.Metrics
}

// NewChannel builds a connected pair of endpoints. name is used as the
// correlation-id prefix and in log fields; it is typically the child
// actor's name since correlation ids travel with requests the child issues
// back to callers.
func NewChannel(name string, metrics *obs.Metrics) (parentSide, childSide *Endpoint) {
	core := &channelCore{}
	parentSide = &Endpoint{name: name + "-parent", core: core, isParent: true, tracker: NewTracker(name+"-parent", metrics), metrics: metrics}
	childSide = &Endpoint{name: name + "-child", core: core, isParent: false, tracker: NewTracker(name+"-child", metrics), metrics: metrics}
	return parentSide, childSide
}

func (e *Endpoint) outboundQueue() *[]Frame {
	if e.isParent {
		return &e.core.toChild
	}
	return &e.core.toParent
}

func (e *Endpoint) inboundQueue() *[]Frame {
	if e.isParent {
		return &e.core.toParent
	}
	return &e.core.toChild
}

// Publish enqueues an event frame; no response is ever expected. A
// response sent back for an event frame carries no correlation id, so the
// receiving tracker drops it as a late response.
func (e *Endpoint) Publish(span Span, payload interface{}) error {
	if e.core.closed {
		return ErrEndpointDisconnected
	}
	q := e.outboundQueue()
	*q = append(*q, Frame{Kind: FrameEvent, Payload: payload, Span: span.WithFrame(e.name)})
	return nil
}

// Request allocates a correlation id, registers cb with the tracker under
// DefaultTimeout, and enqueues a request frame. See RequestOptions for a
// custom deadline.
func (e *Endpoint) Request(span Span, payload interface{}, cb Callback) error {
	return e.RequestOptions(span, payload, DefaultTimeout, cb)
}

// RequestOptions is Request with an overridden deadline.
func (e *Endpoint) RequestOptions(span Span, payload interface{}, timeout time.Duration, cb Callback) error {
	if e.core.closed {
		return ErrEndpointDisconnected
	}
	id := e.tracker.Register(span, timeout, cb)
	q := e.outboundQueue()
	*q = append(*q, Frame{Kind: FrameRequest, CorrID: id, Payload: payload, Span: span.WithFrame(e.name)})
	return nil
}

// Respond answers a request this endpoint received, by enqueueing a
// response frame carrying corrID back to the requester.
func (e *Endpoint) Respond(span Span, corrID CorrelationID, result Result) error {
	if e.core.closed {
		return ErrEndpointDisconnected
	}
	q := e.outboundQueue()
	*q = append(*q, Frame{Kind: FrameResponse, CorrID: corrID, Result: result, Span: span.WithFrame(e.name)})
	return nil
}

// DrainMessages removes and returns all queued inbound request/event
// frames. Inbound response frames are consumed by Process, not by
// DrainMessages.
func (e *Endpoint) DrainMessages() []Frame {
	in := e.inboundQueue()
	var drained []Frame
	var kept []Frame
	for _, f := range *in {
		if f.Kind == FrameResponse {
			kept = append(kept, f)
			continue
		}
		drained = append(drained, f)
	}
	*in = kept
	return drained
}

// Process drains inbound response frames and hands them to the tracker,
// then runs the tracker's own timeout sweep. It returns whether any
// inbound frame or timeout was processed.
func (e *Endpoint) Process() bool {
	in := e.inboundQueue()
	workDone := false
	var kept []Frame
	for _, f := range *in {
		if f.Kind != FrameResponse {
			kept = append(kept, f)
			continue
		}
		workDone = true
		e.tracker.Resolve(f.CorrID, f.Result)
	}
	*in = kept
	if e.tracker.Process() {
		workDone = true
	}
	return workDone
}

// Close tears down the channel; further Publish/Request calls on either
// endpoint fail with ErrEndpointDisconnected.
func (e *Endpoint) Close() {
	e.core.closed = true
}

// PendingRequests returns the tracker's outstanding-callback count, for
// tests and diagnostics.
func (e *Endpoint) PendingRequests() int {
	return e.tracker.Pending()
}
