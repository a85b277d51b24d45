package engine

import (
	"github.com/jabolina/lib3h-go/pkg/actor"
	"github.com/jabolina/lib3h-go/pkg/dht"
	"github.com/jabolina/lib3h-go/pkg/gateway"
	"github.com/jabolina/lib3h-go/pkg/protocol"
	"github.com/jabolina/lib3h-go/pkg/transport"
	"github.com/jabolina/lib3h-go/pkg/uri"
)

// zeroSpace is the network-level sentinel SpaceHash: gossip about the node
// overlay itself (rather than about one space's content) rides the same
// Gossip envelope tagged with the zero address.
var zeroSpace protocol.SpaceHash

// syncRequest issues cmd against ep and drives it through two Process
// ticks so a read completes within the calling tick, per the pattern
// documented on Gateway.resolvePeer.
func syncRequest(ep *actor.ParentWrapper, cmd interface{}) (actor.Result, bool) {
	var result actor.Result
	done := false
	_ = ep.Endpoint().Request(actor.NewSpan("engine-sync"), cmd, func(r actor.Result) {
		result = r
		done = true
	})
	_, _ = ep.Process()
	_, _ = ep.Process()
	return result, done
}

// handleMultiplexEvent processes one event bubbled up from the network
// gateway via the multiplexer: a decoded wire payload, a transport
// lifecycle event, or a passed-through DHT event.
func (e *Engine) handleMultiplexEvent(f actor.Frame) {
	switch ev := f.Payload.(type) {
	case gateway.MultiplexReceivedData:
		e.observeConnection(ev.URI)
		e.handleWirePayload(ev.URI, ev.Payload)
	case transport.IncomingConnection:
		e.observeConnection(ev.URI)
	case transport.Disconnect:
		e.emit(protocol.Lib3hToClient{Kind: protocol.EngineDisconnected, Connected: &protocol.ConnectedData{URI: ev.URI}})
	case transport.ErrorOccured:
		e.log.Warnf("engine: transport error from %s: %v", ev.URI.String(), ev.Err)
	case gateway.Unbound:
		e.emit(protocol.Lib3hToClient{Kind: protocol.EngineUnbound, Unbound: &protocol.UnboundData{URI: ev.URI.String()}})
	case dht.GossipTo:
		e.sendGossipBundle(zeroSpace, ev)
	case dht.HoldPeerRequested:
		// Admit the peer, then open a connection with an empty-payload
		// ping so the remote observes us as well.
		_ = e.networkGateway.Endpoint().Publish(f.Span, gateway.Dht{Command: dht.HoldPeer{Peer: ev.Peer}})
		e.deferredSends = append(e.deferredSends, deferredSend{uri: ev.Peer.PeerLocation, payload: nil})
	case dht.PeerTimedOut:
		e.log.Infof("engine: network peer timed out: %s", ev.PeerName.String())
	default:
		e.log.Debugf("engine: unhandled multiplexer event %#v", ev)
	}
}

// observeConnection tracks first-sight of a live transport URI: the very
// first connection surfaces Connected to the client, and every new remote
// is bootstrapped with this engine's full joined-space list via the
// deferred-send queue.
func (e *Engine) observeConnection(u uri.Uri) {
	key := u.String()
	if _, known := e.networkConnections[key]; known {
		return
	}
	if len(e.networkConnections) == 0 {
		e.emit(protocol.Lib3hToClient{Kind: protocol.EngineConnected, Connected: &protocol.ConnectedData{
			RequestID: e.pendingConnects[key],
			URI:       u,
		}})
	}
	e.networkConnections[key] = struct{}{}
	delete(e.pendingConnects, key)
	e.queueJoinedSpaceList(u)
}

// queueJoinedSpaceList sends the remote at u a snapshot of every space
// this engine has joined, so a freshly connected node can seed its
// per-space peer maps without waiting for gossip to find it.
func (e *Engine) queueJoinedSpaceList(u uri.Uri) {
	if len(e.spaces) == 0 {
		return
	}
	var list protocol.AllJoinedSpaceList
	for _, sp := range e.spaces {
		list.Spaces = append(list.Spaces, protocol.JoinedSpace{SpaceAddress: sp.space, Peer: sp.thisPeer})
	}
	encoded, err := protocol.Encode(protocol.P2pProtocol{Kind: protocol.KindAllJoinedSpaceList, AllJoinedSpaceList: &list})
	if err != nil {
		e.log.Warnf("engine: encode joined-space list: %v", err)
		return
	}
	e.deferredSends = append(e.deferredSends, deferredSend{uri: u, payload: encoded})
}

// handleSpaceDhtEvent processes one event from a joined pair's own mirror
// DHT: gossip fan-out, peer admission, timeouts, holding gossiped entries
// (or fetching their content from the client), and newly held aspects.
func (e *Engine) handleSpaceDhtEvent(sp *spaceState, f actor.Frame) {
	switch ev := f.Payload.(type) {
	case dht.GossipTo:
		e.sendGossipBundle(sp.space, ev)
	case dht.HoldPeerRequested:
		_ = sp.dht.Endpoint().Publish(f.Span, dht.HoldPeer{Peer: ev.Peer})
	case dht.PeerTimedOut:
		e.log.Infof("engine: space %s peer timed out: %s", sp.space.String(), ev.PeerName.String())
	case dht.HoldEntryRequested:
		// Gossiped content that carries its bytes is merged straight into
		// the space DHT, which reports it back as EntryAspectsHeld; only a
		// shallow reference asks the client for the content.
		if ev.Entry.IsShallowReference() {
			e.requestEntryFetch(sp, ev)
		} else {
			_ = sp.dht.Endpoint().Publish(f.Span, dht.HoldEntryAspectAddress{Entry: ev.Entry})
		}
	case dht.EntryAspectsHeld:
		for _, a := range ev.NewAspects {
			e.emit(protocol.Lib3hToClient{Kind: protocol.EngineHandleStoreEntryAspect, HandleStoreEntryAspect: &protocol.StoreEntryAspectData{
				SpaceAddress: sp.space,
				ProviderID:   sp.agentID,
				EntryAddress: ev.Entry.EntryAddress,
				Aspect:       a,
			}})
		}
	default:
		e.log.Debugf("engine: unhandled space dht event %#v", ev)
	}
}

// sendGossipBundle wraps a GossipTo event's bundle in a Gossip envelope
// and fans it out to every named peer. Network-level gossip uses the zero
// SpaceHash sentinel.
func (e *Engine) sendGossipBundle(space protocol.SpaceHash, ev dht.GossipTo) {
	msg := protocol.P2pProtocol{Kind: protocol.KindGossip, Gossip: &protocol.Gossip{
		FromPeerName: e.thisNode.String(),
		SpaceAddress: space,
		Bundle:       ev.Bundle,
	}}
	encoded, err := protocol.Encode(msg)
	if err != nil {
		e.log.Warnf("engine: encode gossip bundle: %v", err)
		return
	}
	for _, peer := range ev.Peers {
		if e.metrics != nil {
			e.metrics.DhtGossipSent.WithLabelValues(string(ev.Kind)).Inc()
		}
		_ = e.multiplexer.Endpoint().Publish(actor.NewSpan("engine-gossip"), gateway.SendWithFullLowUri{URI: peer, Payload: encoded})
	}
}

// handleWirePayload decodes one inbound wire frame and routes it by kind.
// An empty payload is a connection-establishing ping and carries nothing
// to dispatch.
func (e *Engine) handleWirePayload(from uri.Uri, payload []byte) {
	if len(payload) == 0 {
		return
	}
	msg, err := protocol.Decode(payload)
	if err != nil {
		e.log.Warnf("engine: dropping unparseable wire payload from %s: %v", from.String(), err)
		return
	}
	switch msg.Kind {
	case protocol.KindGossip:
		e.handleIncomingGossip(from, msg.Gossip)
	case protocol.KindDirectMessage:
		e.handleIncomingDirectMessage(msg.DirectMessage)
	case protocol.KindDirectMessageResult:
		e.emit(protocol.Lib3hToClient{Kind: protocol.EngineSendDirectMessageResult, SendDirectMessageResult: toDirectMessageData(msg.DirectMessageResult)})
	case protocol.KindBroadcastJoinSpace:
		e.handleIncomingBroadcastJoinSpace(msg.BroadcastJoinSpace)
	case protocol.KindAllJoinedSpaceList:
		e.handleIncomingJoinedSpaceList(msg.AllJoinedSpaceList)
	case protocol.KindPeerName, protocol.KindCapnProtoMessage:
		e.log.Debugf("engine: ignoring reserved wire kind %d from %s", msg.Kind, from.String())
	default:
		e.log.Warnf("engine: unknown wire kind %d from %s", msg.Kind, from.String())
	}
}

func (e *Engine) handleIncomingGossip(from uri.Uri, g *protocol.Gossip) {
	if g.SpaceAddress == zeroSpace {
		_ = e.networkDht.Endpoint().Publish(actor.NewSpan("engine-gossip-in"), dht.HandleGossip{
			From:   protocol.PeerData{PeerName: from, PeerLocation: from, TimestampMs: nowMs()},
			Bundle: g.Bundle,
		})
		return
	}
	targets := e.spacesFor(g.SpaceAddress)
	if len(targets) == 0 {
		e.log.Debugf("engine: gossip for unjoined space %s, dropping", g.SpaceAddress.String())
		return
	}
	for _, sp := range targets {
		_ = sp.dht.Endpoint().Publish(actor.NewSpan("engine-gossip-in"), dht.HandleGossip{
			From:   protocol.PeerData{PeerName: from, PeerLocation: from, TimestampMs: nowMs()},
			Bundle: g.Bundle,
		})
	}
}

func (e *Engine) handleIncomingDirectMessage(dm *protocol.DirectMessage) {
	if _, ok := e.spaceFor(dm.SpaceAddress, dm.ToAgent); !ok {
		if _, ok := e.anySpace(dm.SpaceAddress); !ok {
			e.log.Debugf("engine: direct message for unjoined space %s, dropping", dm.SpaceAddress.String())
			return
		}
	}
	e.emit(protocol.Lib3hToClient{Kind: protocol.EngineHandleSendDirectMessage, HandleSendDirectMessage: toDirectMessageData(dm)})
}

func (e *Engine) handleIncomingBroadcastJoinSpace(b *protocol.BroadcastJoinSpace) {
	for _, sp := range e.spacesFor(b.SpaceAddress) {
		_ = sp.dht.Endpoint().Publish(actor.NewSpan("engine-join-in"), dht.HoldPeer{Peer: b.Peer})
	}
}

func (e *Engine) handleIncomingJoinedSpaceList(list *protocol.AllJoinedSpaceList) {
	for _, js := range list.Spaces {
		for _, sp := range e.spacesFor(js.SpaceAddress) {
			_ = sp.dht.Endpoint().Publish(actor.NewSpan("engine-space-list-in"), dht.HoldPeer{Peer: js.Peer})
		}
	}
}

func toDirectMessageData(dm *protocol.DirectMessage) *protocol.DirectMessageData {
	return &protocol.DirectMessageData{
		RequestID:    dm.RequestID,
		SpaceAddress: dm.SpaceAddress,
		ToAgentID:    dm.ToAgent,
		FromAgentID:  dm.FromAgent,
		Content:      dm.Content,
	}
}

// requestEntryFetch asks the client for an entry's content, recording the
// fetch tag so HandleFetchEntryResult can be routed back to the operation
// that needed it.
func (e *Engine) requestEntryFetch(sp *spaceState, ev dht.HoldEntryRequested) {
	tag := protocol.FetchForGossip
	if ev.FromSelf {
		tag = protocol.FetchForAuthoring
	}
	reqID := e.nextRequestID("fetch")
	if sp.fetchPending == nil {
		sp.fetchPending = make(map[string]fetchWait)
	}
	sp.fetchPending[reqID] = fetchWait{tag: tag}
	e.emit(protocol.Lib3hToClient{Kind: protocol.EngineHandleFetchEntry, HandleFetchEntry: &protocol.FetchEntryData{
		RequestID:    reqID,
		SpaceAddress: sp.space,
		EntryAddress: ev.Entry.EntryAddress,
	}})
}
