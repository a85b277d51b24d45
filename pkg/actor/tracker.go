package actor

import (
	"time"

	"github.com/jabolina/lib3h-go/internal/obs"
)

// DefaultTimeout is the request deadline used when the caller does not
// override one.
const DefaultTimeout = 2 * time.Second

// Callback is invoked exactly once per tracked request: either with the
// response Result, or with the ErrTimeout sentinel error if the deadline
// elapses first.
type Callback func(Result)

// ErrTimeout is the error carried by Result when a tracked request's
// deadline elapses before a response arrives.
var ErrTimeout = timeoutError{}

type timeoutError struct{}

func (timeoutError) Error() string { return "request timed out" }

// pendingCallback is the tracker's bookkeeping for one outstanding
// request.
type pendingCallback struct {
	callback Callback
	deadline time.Time
	span     Span
}

// Tracker maps correlation ids to pending callbacks with deadlines,
// resolving them on response delivery or on timeout.
type Tracker struct {
	pending map[CorrelationID]pendingCallback
	counter uint64
	prefix  string
	metrics *obs.Metrics
	now     func() time.Time
}

// NewTracker builds a Tracker whose correlation ids are prefixed with
// prefix (typically the owning component's name).
func NewTracker(prefix string, metrics *obs.Metrics) *Tracker {
	return &Tracker{
		pending: make(map[CorrelationID]pendingCallback),
		prefix:  prefix,
		metrics: metrics,
		now:     time.Now,
	}
}

// Register allocates a fresh correlation id, records cb with the given
// deadline duration from now, and returns the id to stamp onto the
// outbound request frame.
func (t *Tracker) Register(span Span, timeout time.Duration, cb Callback) CorrelationID {
	t.counter++
	id := newCorrelationID(t.prefix, t.counter)
	t.pending[id] = pendingCallback{
		callback: cb,
		deadline: t.now().Add(timeout),
		span:     span,
	}
	return id
}

// Resolve delivers a response frame's result to its tracked callback and
// removes the entry. A correlation id that is not tracked (a late
// response, already resolved by timeout) is dropped and counted.
func (t *Tracker) Resolve(id CorrelationID, result Result) {
	entry, ok := t.pending[id]
	if !ok {
		if t.metrics != nil {
			t.metrics.TrackerLateResponses.Inc()
		}
		return
	}
	delete(t.pending, id)
	entry.callback(result)
}

// Process scans for expired entries and resolves them with ErrTimeout,
// returning whether any work was done. Timeouts are local: they never
// cancel the peer-side work, only stop the caller waiting.
func (t *Tracker) Process() bool {
	if len(t.pending) == 0 {
		return false
	}
	now := t.now()
	var expired []CorrelationID
	for id, entry := range t.pending {
		if !now.Before(entry.deadline) {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		entry := t.pending[id]
		delete(t.pending, id)
		if t.metrics != nil {
			t.metrics.TrackerTimeouts.Inc()
		}
		entry.callback(Result{Err: ErrTimeout})
	}
	return len(expired) > 0
}

// Pending returns the number of outstanding callbacks, for tests.
func (t *Tracker) Pending() int {
	return len(t.pending)
}
