package gateway

import (
	"github.com/sirupsen/logrus"

	"github.com/jabolina/lib3h-go/pkg/actor"
	"github.com/jabolina/lib3h-go/pkg/protocol"
	"github.com/jabolina/lib3h-go/pkg/transport"
	"github.com/jabolina/lib3h-go/pkg/uri"
)

// RouteKey identifies one (space, local agent) pair sharing the
// multiplexer's one underlying gateway.
type RouteKey struct {
	SpaceAddress protocol.SpaceHash
	LocalAgent   protocol.AgentPubKey
}

// Downward commands a route issues through the multiplexer.

// RouteBind asks the multiplexer to forward a bind through the inner
// gateway.
type RouteBind struct {
	Route   RouteKey
	SpecURI uri.Uri
}

// RouteSend asks the multiplexer to forward a send through the inner
// gateway on behalf of Route.
type RouteSend struct {
	Route       RouteKey
	PartialHigh bool
	URI         uri.Uri
	Payload     []byte
}

// Upward event: the multiplexer publishes every ReceivedData it observes
// from the inner gateway to its owner (the engine) for dispatch.
type MultiplexReceivedData struct {
	URI     uri.Uri
	Payload []byte
}

// Multiplexer shares one Gateway across multiple space gateways by holding
// a registry of routes; it does not demultiplex by itself beyond
// forwarding send/bind and bubbling received-data upward. Per-route
// delivery is the owner's job.
type Multiplexer struct {
	log   *logrus.Entry
	inner *actor.ParentWrapper

	routes map[RouteKey]struct{}

	parentEndpoint *actor.Endpoint
	childEndpoint  *actor.Endpoint
}

// NewMultiplexer builds a Multiplexer wrapping inner (typically the network Gateway).
func NewMultiplexer(name string, inner *actor.ParentWrapper, log *logrus.Entry, metrics interface{}) *actor.ParentWrapper {
	parent, child := actor.NewChannel(name, nil)
	m := &Multiplexer{
		log:            log,
		inner:          inner,
		routes:         make(map[RouteKey]struct{}),
		parentEndpoint: parent,
		childEndpoint:  child,
	}
	return actor.Wrap(m)
}

// TakeParentEndpoint implements actor.Actor.
func (m *Multiplexer) TakeParentEndpoint() *actor.Endpoint {
	ep := m.parentEndpoint
	m.parentEndpoint = nil
	return ep
}

// ProcessConcrete implements actor.Actor.
func (m *Multiplexer) ProcessConcrete() (bool, error) {
	workDone := false
	if w, err := m.inner.Process(); err != nil {
		return workDone, err
	} else if w {
		workDone = true
	}

	for _, f := range m.inner.DrainMessages() {
		m.handleInnerEvent(f)
		workDone = true
	}

	for _, f := range m.childEndpoint.DrainMessages() {
		m.dispatch(f)
		workDone = true
	}
	return workDone, nil
}

func (m *Multiplexer) dispatch(f actor.Frame) {
	switch cmd := f.Payload.(type) {
	case RouteBind:
		m.routes[cmd.Route] = struct{}{}
		m.forward(f, transport.Bind{SpecURI: cmd.SpecURI})
	case RouteSend:
		if cmd.PartialHigh {
			m.forward(f, SendWithPartialHighUri{URI: cmd.URI, Payload: cmd.Payload})
		} else {
			m.forward(f, SendWithFullLowUri{URI: cmd.URI, Payload: cmd.Payload})
		}
	default:
		// Everything else (Dht, Transport, RequestThisPeer,
		// SendWith*Uri issued directly against the network identity rather
		// than through a route) passes through untouched: the multiplexer
		// only needs to intercept route-scoped traffic.
		m.forward(f, cmd)
	}
}

func (m *Multiplexer) forward(f actor.Frame, cmd interface{}) {
	if f.Kind == actor.FrameRequest {
		corrID, span := f.CorrID, f.Span
		_ = m.inner.Endpoint().Request(span, cmd, func(r actor.Result) {
			_ = m.childEndpoint.Respond(span, corrID, r)
		})
		return
	}
	_ = m.inner.Endpoint().Publish(f.Span, cmd)
}

// handleInnerEvent bubbles the inner gateway's events upward; ReceivedData
// is republished as MultiplexReceivedData so the owner (the engine) can
// route it to the correct per-route endpoint.
func (m *Multiplexer) handleInnerEvent(f actor.Frame) {
	if rd, ok := f.Payload.(transport.ReceivedData); ok {
		_ = m.childEndpoint.Publish(f.Span, MultiplexReceivedData{URI: rd.URI, Payload: rd.Payload})
		return
	}
	_ = m.childEndpoint.Publish(f.Span, f.Payload)
}
