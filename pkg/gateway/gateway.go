// Package gateway implements the Gateway actor: a (transport + inner DHT +
// encoding) bundle for one identity domain (the network overlay, or one
// space), providing send-with-retry, a pending-send queue, and
// DHT-forwarding.
package gateway

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jabolina/lib3h-go/internal/obs"
	"github.com/jabolina/lib3h-go/pkg/actor"
	"github.com/jabolina/lib3h-go/pkg/dht"
	"github.com/jabolina/lib3h-go/pkg/protocol"
	"github.com/jabolina/lib3h-go/pkg/transport"
	"github.com/jabolina/lib3h-go/pkg/uri"
)

const (
	DefaultSendDeadline  = 20 * time.Second
	DefaultRetryInterval = 20 * time.Millisecond
)

// SendWithPartialHighUri asks the gateway to resolve a partial ("high")
// URI through the DHT before sending.
type SendWithPartialHighUri struct {
	URI     uri.Uri
	Payload []byte
	Timeout time.Duration
}

// SendWithFullLowUri asks the gateway to send directly to a fully resolved
// low-level URI.
type SendWithFullLowUri struct {
	URI     uri.Uri
	Payload []byte
	Timeout time.Duration
}

// SendSuccess is the response to a completed send.
type SendSuccess struct{}

// Dht forwards a command to the inner DHT.
type Dht struct {
	Command interface{}
}

// Transport forwards a command to the inner transport.
type Transport struct {
	Command interface{}
}

// RequestThisPeer synchronously reads this gateway's own PeerData.
type RequestThisPeer struct{}

type pendingSend struct {
	corrID      actor.CorrelationID
	span        actor.Span
	partialHigh bool
	uri         uri.Uri
	payload     []byte
	deadline    time.Time
	lastAttempt time.Time

	inFlight  bool // a transport request is outstanding for this send
	responded bool // the original corrID has already been answered
}

func (ps *pendingSend) respondOnce(ep *actor.Endpoint, result actor.Result) {
	if ps.responded {
		return
	}
	ps.responded = true
	_ = ep.Respond(ps.span, ps.corrID, result)
}

// Gateway binds one transport and one inner DHT into one identity domain,
// driving every send through a resolve-then-encode-then-send retry loop.
type Gateway struct {
	log     *logrus.Entry
	metrics *obs.Metrics

	innerDht       *actor.ParentWrapper
	innerTransport *actor.ParentWrapper

	// framing selects whether this gateway applies its own encode/decode
	// hop. The engine's one network gateway (the sole owner of the real
	// transport) sets this true; a future nested gateway sharing the wire
	// through this one's multiplexer would set it false to avoid framing a
	// payload twice.
	framing bool

	pending []*pendingSend

	parentEndpoint *actor.Endpoint
	childEndpoint  *actor.Endpoint

	now func() time.Time
}

// New builds a Gateway wrapping the given inner DHT and transport. framing
// selects whether this gateway applies the encoding hop itself or leaves
// payloads untouched because an outer gateway already frames them.
func New(name string, innerDht *actor.ParentWrapper, innerTransport *actor.ParentWrapper, framing bool, log *logrus.Entry, metrics *obs.Metrics) *actor.ParentWrapper {
	parent, child := actor.NewChannel(name, metrics)
	g := &Gateway{
		log:            log,
		metrics:        metrics,
		innerDht:       innerDht,
		innerTransport: innerTransport,
		framing:        framing,
		parentEndpoint: parent,
		childEndpoint:  child,
		now:            time.Now,
	}
	return actor.Wrap(g)
}

// TakeParentEndpoint implements actor.Actor.
func (g *Gateway) TakeParentEndpoint() *actor.Endpoint {
	ep := g.parentEndpoint
	g.parentEndpoint = nil
	return ep
}

// ProcessConcrete implements actor.Actor: drives the inner actors, handles
// inbound commands and bubbles inner events upward, then advances the
// pending-send retry queue.
func (g *Gateway) ProcessConcrete() (bool, error) {
	workDone := false

	if w, err := g.innerTransport.Process(); err != nil {
		return workDone, fmt.Errorf("gateway: inner transport: %w", err)
	} else if w {
		workDone = true
	}
	if w, err := g.innerDht.Process(); err != nil {
		return workDone, fmt.Errorf("gateway: inner dht: %w", err)
	} else if w {
		workDone = true
	}

	for _, f := range g.innerTransport.DrainMessages() {
		g.handleTransportEvent(f)
		workDone = true
	}
	for _, f := range g.innerDht.DrainMessages() {
		g.handleDhtEvent(f)
		workDone = true
	}

	for _, f := range g.childEndpoint.DrainMessages() {
		g.dispatch(f)
		workDone = true
	}

	if g.retryPending() {
		workDone = true
	}

	return workDone, nil
}

func (g *Gateway) dispatch(f actor.Frame) {
	switch cmd := f.Payload.(type) {
	case SendWithPartialHighUri:
		g.enqueueSend(f, cmd.URI, cmd.Payload, cmd.Timeout, true)
	case SendWithFullLowUri:
		g.enqueueSend(f, cmd.URI, cmd.Payload, cmd.Timeout, false)
	case Dht:
		g.forwardDht(f, cmd.Command)
	case Transport:
		g.forwardTransport(f, cmd.Command)
	case RequestThisPeer:
		g.forwardDht(f, dht.RequestThisPeer{})
	default:
		g.log.Warnf("gateway: unhandled command %#v", cmd)
	}
}

func (g *Gateway) enqueueSend(f actor.Frame, u uri.Uri, payload []byte, timeout time.Duration, partialHigh bool) {
	if timeout <= 0 {
		timeout = DefaultSendDeadline
	}
	ps := &pendingSend{
		corrID:      f.CorrID,
		span:        f.Span,
		partialHigh: partialHigh,
		uri:         u,
		payload:     payload,
		deadline:    g.now().Add(timeout),
	}
	g.pending = append(g.pending, ps)
}

// retryPending drives the send state machine: resolve the target if the
// URI is partial, encode, hand to the transport, and re-queue on failure
// until the deadline. A send that already has a transport request
// outstanding is left alone (no duplicate dispatch) until its callback
// marks it responded or its deadline elapses.
func (g *Gateway) retryPending() bool {
	if len(g.pending) == 0 {
		return false
	}
	now := g.now()
	var kept []*pendingSend
	workDone := false
	for _, ps := range g.pending {
		if ps.responded {
			workDone = true
			continue
		}
		if now.After(ps.deadline) {
			if g.metrics != nil {
				g.metrics.GatewaySendTimeouts.Inc()
			}
			ps.respondOnce(g.childEndpoint, actor.Result{Err: fmt.Errorf("gateway: send timeout")})
			workDone = true
			continue
		}
		if ps.inFlight {
			kept = append(kept, ps)
			continue
		}
		if !ps.lastAttempt.IsZero() && now.Sub(ps.lastAttempt) < DefaultRetryInterval {
			kept = append(kept, ps)
			continue
		}
		if g.attemptSend(ps) {
			workDone = true
		} else if g.metrics != nil {
			g.metrics.GatewaySendRetries.Inc()
		}
		ps.lastAttempt = now
		kept = append(kept, ps)
		workDone = true
	}
	g.pending = kept
	return workDone
}

// attemptSend resolves a partial URI if needed and issues the transport
// request for ps, marking it in-flight. Returns true if a request was
// successfully issued (regardless of whether it has completed yet).
func (g *Gateway) attemptSend(ps *pendingSend) bool {
	target := ps.uri
	if ps.partialHigh {
		agent, _ := target.AgentID()
		peerName := target.ClearAgentID()
		view, ok := g.resolvePeer(peerName)
		if !ok {
			return false // not yet resolvable: retry later
		}
		target = view.PeerLocation.SetAgentID(agent)
	}

	framed := ps.payload
	if g.framing {
		framed = encodeFrame(ps.payload)
	}
	lowURI := target.ClearAgentID()
	ps.inFlight = true
	err := g.innerTransport.Endpoint().Request(ps.span, transport.SendMessage{URI: lowURI, Payload: framed}, func(r actor.Result) {
		ps.inFlight = false
		if r.IsErr() {
			ps.respondOnce(g.childEndpoint, actor.Result{Err: r.Err})
			return
		}
		ps.respondOnce(g.childEndpoint, actor.Result{Ok: SendSuccess{}})
	})
	if err != nil {
		ps.inFlight = false
		return false
	}
	return true
}

func (g *Gateway) resolvePeer(peerName uri.Uri) (protocol.PeerData, bool) {
	var view protocol.PeerData
	found := false
	resolved := false
	_ = g.innerDht.Endpoint().Request(actor.NewSpan("gateway-resolve"), dht.RequestPeer{PeerName: peerName}, func(r actor.Result) {
		resolved = true
		if r.IsErr() {
			return
		}
		if pv, ok := r.Ok.(dht.PeerView); ok {
			view = pv.Peer
			found = pv.Found
		}
	})
	// Drive the inner DHT two ticks: the first lets it drain and answer
	// the request we just enqueued, the second lets our own parent-side
	// endpoint drain that response and invoke the callback above. This
	// keeps peer resolution synchronous within one gateway retry attempt
	// instead of costing an extra outer process() round trip.
	_, _ = g.innerDht.Process()
	_, _ = g.innerDht.Process()
	if !resolved {
		return protocol.PeerData{}, false
	}
	return view, found
}

func (g *Gateway) forwardDht(f actor.Frame, cmd interface{}) {
	if f.Kind == actor.FrameRequest {
		corrID, span := f.CorrID, f.Span
		_ = g.innerDht.Endpoint().Request(span, cmd, func(r actor.Result) {
			_ = g.childEndpoint.Respond(span, corrID, r)
		})
		return
	}
	_ = g.innerDht.Endpoint().Publish(f.Span, cmd)
}

func (g *Gateway) forwardTransport(f actor.Frame, cmd interface{}) {
	if f.Kind == actor.FrameRequest {
		corrID, span := f.CorrID, f.Span
		_ = g.innerTransport.Endpoint().Request(span, cmd, func(r actor.Result) {
			_ = g.childEndpoint.Respond(span, corrID, r)
		})
		return
	}
	_ = g.innerTransport.Endpoint().Publish(f.Span, cmd)
}

// handleTransportEvent bubbles inner-transport events upward, translating
// ErrorKindUnbind into a user-visible Unbound event.
func (g *Gateway) handleTransportEvent(f actor.Frame) {
	switch ev := f.Payload.(type) {
	case transport.ErrorOccured:
		if ev.Kind == transport.ErrorKindUnbind {
			_ = g.childEndpoint.Publish(f.Span, Unbound{URI: ev.URI})
			return
		}
		_ = g.childEndpoint.Publish(f.Span, ev)
	case transport.ReceivedData:
		if !g.framing {
			_ = g.childEndpoint.Publish(f.Span, ev)
			return
		}
		decoded, ok := decodeFrame(ev.Payload)
		if !ok {
			g.log.Warnf("gateway: dropping unparseable wire frame from %s", ev.URI.String())
			return
		}
		_ = g.childEndpoint.Publish(f.Span, transport.ReceivedData{URI: ev.URI, Payload: decoded})
	default:
		_ = g.childEndpoint.Publish(f.Span, ev)
	}
}

// Unbound is the gateway-level surfacing of a transport unbind error.
type Unbound struct {
	URI uri.Uri
}

func (g *Gateway) handleDhtEvent(f actor.Frame) {
	_ = g.childEndpoint.Publish(f.Span, f.Payload)
}
