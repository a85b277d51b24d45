// Package engine implements the top-level actor a client embeds: the owner
// of one network gateway, one mirror DHT per joined (space, agent) pair,
// and the client-facing ClientToLib3h/Lib3hToClient mailbox pair. All
// subsystems advance cooperatively from Process; nothing here spawns a
// goroutine.
package engine

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jabolina/lib3h-go/internal/obs"
	"github.com/jabolina/lib3h-go/pkg/actor"
	"github.com/jabolina/lib3h-go/pkg/dht"
	"github.com/jabolina/lib3h-go/pkg/gateway"
	"github.com/jabolina/lib3h-go/pkg/protocol"
	"github.com/jabolina/lib3h-go/pkg/transport"
	"github.com/jabolina/lib3h-go/pkg/uri"
)

// spaceKey indexes one joined (space, agent) pair. A pair's state exists
// exactly while it is joined and not yet left.
type spaceKey struct {
	space protocol.SpaceHash
	agent uri.Hash32
}

func keyFor(space protocol.SpaceHash, agent protocol.AgentPubKey) spaceKey {
	return spaceKey{space: space, agent: uri.NewHash32(agent.Bytes())}
}

// spaceState is the engine's per-joined-pair bookkeeping: the pair's own
// mirror DHT plus the fetch-tag ledger that routes an eventual
// HandleFetchEntryResult back to the operation that asked for it.
type spaceState struct {
	space    protocol.SpaceHash
	agentID  protocol.AgentPubKey
	thisPeer protocol.PeerData
	dht      *actor.ParentWrapper

	fetchPending map[string]fetchWait
}

type fetchWait struct {
	tag protocol.FetchTag
}

// deferredSend parks an outbound payload for the next Process tick, so a
// reply triggered while draining multiplexer events goes out on a later
// tick where the multiplexer is attached again.
type deferredSend struct {
	uri     uri.Uri
	payload []byte
}

// Engine is the top-level actor a client embeds. It is the root of the
// actor tree, driven directly by its owner's event loop rather than
// wrapped behind an actor.ParentWrapper.
type Engine struct {
	config   Config
	thisNode protocol.NodePubKey
	log      *logrus.Entry
	metrics  *obs.Metrics

	networkTransport *actor.ParentWrapper
	networkDht       *actor.ParentWrapper
	networkGateway   *actor.ParentWrapper
	multiplexer      *actor.ParentWrapper

	spaces map[spaceKey]*spaceState

	clientInbox  []protocol.ClientToLib3h
	clientOutbox []protocol.Lib3hToClient

	// networkConnections records every transport URI observed live so
	// far; the Connected event fires only for the first of them.
	networkConnections map[string]struct{}
	// pendingConnects maps a connect target URI to the client RequestID
	// waiting on it, echoed back when Connected fires.
	pendingConnects map[string]string

	deferredSends []deferredSend

	requestCounter uint64
	shuttingDown   bool
}

// New constructs an Engine, binding its network transport under the
// configured BindURL. Binding is driven synchronously (a handful of
// Process ticks) so the engine is immediately usable on return.
func New(config Config, thisNode protocol.NodePubKey, log *logrus.Entry, metrics *obs.Metrics) (*Engine, error) {
	networkTransport := transport.NewMemory(log.WithField("component", "network-transport"))
	networkDht := dht.New("network-dht", protocol.PeerData{
		PeerName:     uri.Build(uri.SchemeNode, thisNode.String(), 0),
		PeerLocation: config.BindURL,
		TimestampMs:  nowMs(),
	}, config.DhtCustomConfig, log.WithField("component", "network-dht"), metrics)
	networkGateway := gateway.New("network-gateway", networkDht, networkTransport, true, log.WithField("component", "network-gateway"), metrics)
	multiplexer := gateway.NewMultiplexer("multiplexer", networkGateway, log.WithField("component", "multiplexer"), metrics)

	e := &Engine{
		config:             config,
		thisNode:           thisNode,
		log:                log,
		metrics:            metrics,
		networkTransport:   networkTransport,
		networkDht:         networkDht,
		networkGateway:     networkGateway,
		multiplexer:        multiplexer,
		spaces:             make(map[spaceKey]*spaceState),
		networkConnections: make(map[string]struct{}),
		pendingConnects:    make(map[string]string),
	}

	bound := false
	var bindErr error
	_ = multiplexer.Endpoint().Request(actor.NewSpan("engine-bind"), gateway.Transport{Command: transport.Bind{SpecURI: config.BindURL}}, func(r actor.Result) {
		bound = true
		if r.IsErr() {
			bindErr = r.Err
		}
	})
	// The bind request crosses three nested actor boundaries (multiplexer,
	// then network gateway, then the real transport) before its response
	// travels back; give it generous headroom rather than guess the exact
	// tick count.
	for i := 0; i < 20 && !bound; i++ {
		if _, err := e.Process(); err != nil {
			return nil, err
		}
	}
	if bindErr != nil {
		return nil, fmt.Errorf("engine: bind %s: %w", config.BindURL.String(), bindErr)
	}
	if !bound {
		return nil, fmt.Errorf("engine: bind %s: did not complete", config.BindURL.String())
	}

	for _, b := range config.BootstrapURIs {
		_ = networkGateway.Endpoint().Publish(actor.NewSpan("engine-bootstrap"), gateway.Dht{Command: dht.HoldPeer{Peer: protocol.PeerData{
			PeerName:     b,
			PeerLocation: b,
			TimestampMs:  nowMs(),
		}}})
	}

	return e, nil
}

// nowMs is a seam over time.Now for the millisecond timestamps PeerData
// carries; tests may want a deterministic clock but the engine itself just
// needs wall time.
var nowMs = func() int64 { return time.Now().UnixMilli() }

// Post enqueues a client request for the next Process tick.
func (e *Engine) Post(msg protocol.ClientToLib3h) {
	e.clientInbox = append(e.clientInbox, msg)
}

// DrainClientOutbox removes and returns every Lib3hToClient message queued
// for the client since the last call.
func (e *Engine) DrainClientOutbox() []protocol.Lib3hToClient {
	out := e.clientOutbox
	e.clientOutbox = nil
	return out
}

// nextRequestID mints an engine-local request id for messages the engine
// itself originates (as opposed to echoing a client-supplied RequestID).
func (e *Engine) nextRequestID(prefix string) string {
	e.requestCounter++
	return fmt.Sprintf("%s-%d", prefix, e.requestCounter)
}

func (e *Engine) emit(msg protocol.Lib3hToClient) {
	e.clientOutbox = append(e.clientOutbox, msg)
}

// spaceFor returns the state for an exact (space, agent) pair.
func (e *Engine) spaceFor(space protocol.SpaceHash, agent protocol.AgentPubKey) (*spaceState, bool) {
	sp, ok := e.spaces[keyFor(space, agent)]
	return sp, ok
}

// anySpace returns one joined state for a space hash, regardless of which
// local agent joined it. Used when an inbound message carries no agent.
func (e *Engine) anySpace(space protocol.SpaceHash) (*spaceState, bool) {
	for _, sp := range e.spaces {
		if sp.space == space {
			return sp, true
		}
	}
	return nil, false
}

// spacesFor returns every joined state for a space hash; gossip and join
// broadcasts fan out to all of them.
func (e *Engine) spacesFor(space protocol.SpaceHash) []*spaceState {
	var out []*spaceState
	for _, sp := range e.spaces {
		if sp.space == space {
			out = append(out, sp)
		}
	}
	return out
}

// Process drives one cooperative tick: the deferred-send queue, the
// network gateway/multiplexer, every joined pair's DHT, and finally the
// client inbox. There are no suspension points within one tick; every
// cross-actor interaction queues a frame and returns.
func (e *Engine) Process() (bool, error) {
	workDone := false

	if len(e.deferredSends) > 0 {
		sends := e.deferredSends
		e.deferredSends = nil
		for _, ds := range sends {
			_ = e.multiplexer.Endpoint().Publish(actor.NewSpan("engine-deferred"), gateway.SendWithFullLowUri{URI: ds.uri, Payload: ds.payload})
		}
		workDone = true
	}

	if w, err := e.multiplexer.Process(); err != nil {
		return workDone, fmt.Errorf("engine: multiplexer: %w", err)
	} else if w {
		workDone = true
	}
	for _, f := range e.multiplexer.DrainMessages() {
		e.handleMultiplexEvent(f)
		workDone = true
	}

	for key, sp := range e.spaces {
		if w, err := sp.dht.Process(); err != nil {
			return workDone, fmt.Errorf("engine: space %s dht: %w", key.space.String(), err)
		} else if w {
			workDone = true
		}
		for _, f := range sp.dht.DrainMessages() {
			e.handleSpaceDhtEvent(sp, f)
			workDone = true
		}
	}

	if len(e.clientInbox) > 0 {
		inbox := e.clientInbox
		e.clientInbox = nil
		for _, msg := range inbox {
			e.handleClientMessage(msg)
		}
		workDone = true
	}

	return workDone, nil
}

// ShuttingDown reports whether the client has posted Shutdown.
func (e *Engine) ShuttingDown() bool {
	return e.shuttingDown
}

// ThisPeer returns the network-level PeerData this engine advertises.
func (e *Engine) ThisPeer() (protocol.PeerData, error) {
	var view protocol.PeerData
	resolved := false
	err := e.networkGateway.Endpoint().Request(actor.NewSpan("engine-this-peer"), gateway.RequestThisPeer{}, func(r actor.Result) {
		resolved = true
		if pd, ok := r.Ok.(protocol.PeerData); ok {
			view = pd
		}
	})
	if err != nil {
		return protocol.PeerData{}, err
	}
	for i := 0; i < 4 && !resolved; i++ {
		_, _ = e.networkGateway.Process()
	}
	return view, nil
}
