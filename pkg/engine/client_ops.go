package engine

import (
	"github.com/jabolina/lib3h-go/pkg/actor"
	"github.com/jabolina/lib3h-go/pkg/dht"
	"github.com/jabolina/lib3h-go/pkg/gateway"
	"github.com/jabolina/lib3h-go/pkg/protocol"
	"github.com/jabolina/lib3h-go/pkg/uri"
)

// handleClientMessage performs one ClientToLib3h operation, appending
// whatever Lib3hToClient messages the operation produces to the client
// outbox. Request correlation is preserved end to end: every reply echoes
// the client-supplied RequestID verbatim.
func (e *Engine) handleClientMessage(msg protocol.ClientToLib3h) {
	switch msg.Kind {
	case protocol.ClientConnect:
		e.doConnect(msg.Connect)
	case protocol.ClientJoinSpace:
		e.doJoinSpace(msg.JoinSpace)
	case protocol.ClientLeaveSpace:
		e.doLeaveSpace(msg.LeaveSpace)
	case protocol.ClientSendDirectMessage:
		e.doSendDirectMessage(msg.SendDirectMessage)
	case protocol.ClientHandleSendDirectMessageResult:
		e.doSendDirectMessageResult(msg.HandleSendDirectMessageResult)
	case protocol.ClientFetchEntry:
		e.doFetchEntry(msg.FetchEntry)
	case protocol.ClientPublishEntry:
		e.doPublishEntry(msg.PublishEntry)
	case protocol.ClientHoldEntry:
		e.doHoldEntry(msg.HoldEntry)
	case protocol.ClientQueryEntry:
		e.doQueryEntry(msg.QueryEntry)
	case protocol.ClientBootstrap:
		e.doBootstrap(msg.Bootstrap)
	case protocol.ClientHandleFetchEntryResult:
		e.doHandleFetchEntryResult(msg.HandleFetchEntryResult)
	case protocol.ClientHandleQueryEntryResult:
		e.doHandleQueryEntryResult(msg.HandleQueryEntryResult)
	case protocol.ClientHandleGetAuthoringEntryListResult:
		e.doReconcileEntryList(msg.HandleGetAuthoringEntryListResult, protocol.FetchForAuthoring)
	case protocol.ClientHandleGetGossipingEntryListResult:
		e.doReconcileEntryList(msg.HandleGetGossipingEntryListResult, protocol.FetchForGossip)
	case protocol.ClientShutdown:
		e.shuttingDown = true
		e.emit(protocol.Lib3hToClient{Kind: protocol.EngineDisconnected})
	default:
		e.log.Warnf("engine: unhandled client message kind %d", msg.Kind)
	}
}

// doConnect admits the target into the network peer map and opens a
// connection with an empty-payload ping. Connected is reported back only
// once the first live transport event for the target is observed, carrying
// the RequestID recorded here.
func (e *Engine) doConnect(cmd *protocol.ConnectData) {
	if cmd == nil {
		return
	}
	e.pendingConnects[cmd.PeerURI.String()] = cmd.RequestID
	_ = e.networkGateway.Endpoint().Publish(actor.NewSpan("engine-connect"), gateway.Dht{Command: dht.HoldPeer{Peer: protocol.PeerData{
		PeerName:     cmd.PeerURI,
		PeerLocation: cmd.PeerURI,
		TimestampMs:  nowMs(),
	}}})
	e.deferredSends = append(e.deferredSends, deferredSend{uri: cmd.PeerURI, payload: nil})
}

func (e *Engine) doJoinSpace(cmd *protocol.SpaceData) {
	if cmd == nil {
		return
	}
	if _, exists := e.spaceFor(cmd.SpaceAddress, cmd.AgentID); exists {
		e.emitResult(cmd.RequestID, cmd.SpaceAddress, cmd.AgentID, false, "Already joined space")
		return
	}
	thisPeer := protocol.PeerData{
		PeerName:     uri.Build(uri.SchemeAgent, cmd.AgentID.String(), 0),
		PeerLocation: e.config.BindURL.SetAgentID(cmd.AgentID.String()),
		TimestampMs:  nowMs(),
	}
	spaceDht := dht.New("space-dht-"+cmd.SpaceAddress.String(), thisPeer, e.config.DhtCustomConfig, e.log.WithField("space", cmd.SpaceAddress.String()), e.metrics)
	sp := &spaceState{
		space:        cmd.SpaceAddress,
		agentID:      cmd.AgentID,
		thisPeer:     thisPeer,
		dht:          spaceDht,
		fetchPending: make(map[string]fetchWait),
	}
	e.spaces[keyFor(cmd.SpaceAddress, cmd.AgentID)] = sp

	// Announce this join to every network peer so remotes can start
	// gossiping with us in this space.
	announce := protocol.P2pProtocol{Kind: protocol.KindBroadcastJoinSpace, BroadcastJoinSpace: &protocol.BroadcastJoinSpace{
		SpaceAddress: cmd.SpaceAddress,
		Peer:         thisPeer,
	}}
	if encoded, err := protocol.Encode(announce); err == nil {
		selfName := uri.Build(uri.SchemeNode, e.thisNode.String(), 0).String()
		for _, peer := range e.knownNetworkPeers() {
			if peer.PeerName.String() == selfName {
				continue
			}
			_ = e.multiplexer.Endpoint().Publish(actor.NewSpan("engine-join-announce"), gateway.SendWithFullLowUri{URI: peer.PeerLocation, Payload: encoded})
		}
	} else {
		e.log.Warnf("engine: encode join announcement: %v", err)
	}

	e.emitResult(cmd.RequestID, cmd.SpaceAddress, cmd.AgentID, true, "")

	// Ask the client to reconcile its locally authored and gossiping entry
	// lists against what this DHT already holds.
	e.emit(protocol.Lib3hToClient{Kind: protocol.EngineHandleGetAuthoringEntryList, HandleGetAuthoringEntryList: &protocol.GetListData{
		RequestID: e.nextRequestID("authoring-list"), SpaceAddress: cmd.SpaceAddress, ProviderID: cmd.AgentID,
	}})
	e.emit(protocol.Lib3hToClient{Kind: protocol.EngineHandleGetGossipingEntryList, HandleGetGossipingEntryList: &protocol.GetListData{
		RequestID: e.nextRequestID("gossiping-list"), SpaceAddress: cmd.SpaceAddress, ProviderID: cmd.AgentID,
	}})
}

func (e *Engine) knownNetworkPeers() []protocol.PeerData {
	r, done := syncRequest(e.networkDht, dht.RequestPeerList{})
	if !done || r.IsErr() {
		return nil
	}
	if pv, ok := r.Ok.(dht.PeerListView); ok {
		return pv.Peers
	}
	return nil
}

func (e *Engine) doLeaveSpace(cmd *protocol.SpaceData) {
	if cmd == nil {
		return
	}
	key := keyFor(cmd.SpaceAddress, cmd.AgentID)
	if _, ok := e.spaces[key]; !ok {
		e.emitResult(cmd.RequestID, cmd.SpaceAddress, cmd.AgentID, false, "Agent is not part of the space")
		return
	}
	delete(e.spaces, key)
	e.emitResult(cmd.RequestID, cmd.SpaceAddress, cmd.AgentID, true, "")
}

func (e *Engine) doSendDirectMessage(cmd *protocol.DirectMessageData) {
	if cmd == nil {
		return
	}
	sp, ok := e.spaceFor(cmd.SpaceAddress, cmd.FromAgentID)
	if !ok {
		e.emitResult(cmd.RequestID, cmd.SpaceAddress, cmd.FromAgentID, false, "Agent is not part of the space")
		return
	}
	if cmd.ToAgentID.Equal(sp.agentID) {
		e.emitResult(cmd.RequestID, cmd.SpaceAddress, cmd.ToAgentID, false, "Messaging self")
		return
	}
	target, found := e.resolveSpacePeer(sp, cmd.ToAgentID)
	if !found {
		e.emitResult(cmd.RequestID, cmd.SpaceAddress, cmd.ToAgentID, false, "peer unknown")
		return
	}

	wire := protocol.P2pProtocol{Kind: protocol.KindDirectMessage, DirectMessage: &protocol.DirectMessage{
		SpaceAddress: cmd.SpaceAddress,
		RequestID:    cmd.RequestID,
		ToAgent:      cmd.ToAgentID,
		FromAgent:    cmd.FromAgentID,
		Content:      cmd.Content,
	}}
	encoded, err := protocol.Encode(wire)
	if err != nil {
		e.emitResult(cmd.RequestID, cmd.SpaceAddress, cmd.ToAgentID, false, "encode failed")
		return
	}
	requestID, spaceAddr, toAgent := cmd.RequestID, cmd.SpaceAddress, cmd.ToAgentID
	_ = e.multiplexer.Endpoint().Request(actor.NewSpan("engine-dm"), gateway.SendWithFullLowUri{URI: target.PeerLocation, Payload: encoded}, func(r actor.Result) {
		e.emitResult(requestID, spaceAddr, toAgent, !r.IsErr(), errString(r))
	})
}

// doSendDirectMessageResult sends the responder's answer back to the
// original sender and, once the send completes, reports success to the
// responding client under the original RequestID.
func (e *Engine) doSendDirectMessageResult(cmd *protocol.DirectMessageData) {
	if cmd == nil {
		return
	}
	sp, ok := e.spaceFor(cmd.SpaceAddress, cmd.FromAgentID)
	if !ok {
		e.emitResult(cmd.RequestID, cmd.SpaceAddress, cmd.FromAgentID, false, "Agent is not part of the space")
		return
	}
	target, found := e.resolveSpacePeer(sp, cmd.ToAgentID)
	if !found {
		e.emitResult(cmd.RequestID, cmd.SpaceAddress, cmd.ToAgentID, false, "peer unknown")
		return
	}
	wire := protocol.P2pProtocol{Kind: protocol.KindDirectMessageResult, DirectMessageResult: &protocol.DirectMessage{
		SpaceAddress: cmd.SpaceAddress,
		RequestID:    cmd.RequestID,
		ToAgent:      cmd.ToAgentID,
		FromAgent:    cmd.FromAgentID,
		Content:      cmd.Content,
	}}
	encoded, err := protocol.Encode(wire)
	if err != nil {
		e.emitResult(cmd.RequestID, cmd.SpaceAddress, cmd.ToAgentID, false, "encode failed")
		return
	}
	requestID, spaceAddr, toAgent := cmd.RequestID, cmd.SpaceAddress, cmd.ToAgentID
	_ = e.multiplexer.Endpoint().Request(actor.NewSpan("engine-dm-result"), gateway.SendWithFullLowUri{URI: target.PeerLocation, Payload: encoded}, func(r actor.Result) {
		e.emitResult(requestID, spaceAddr, toAgent, !r.IsErr(), errString(r))
	})
}

func (e *Engine) resolveSpacePeer(sp *spaceState, agent protocol.AgentPubKey) (protocol.PeerData, bool) {
	peerName := uri.Build(uri.SchemeAgent, agent.String(), 0)
	r, done := syncRequest(sp.dht, dht.RequestPeer{PeerName: peerName})
	if !done || r.IsErr() {
		return protocol.PeerData{}, false
	}
	pv, ok := r.Ok.(dht.PeerView)
	if !ok || !pv.Found {
		return protocol.PeerData{}, false
	}
	return pv.Peer, true
}

// spaceForProvider resolves the state a provider-scoped entry operation
// targets, tolerating an unset provider by falling back to any joined
// agent in the space.
func (e *Engine) spaceForProvider(space protocol.SpaceHash, provider protocol.AgentPubKey) (*spaceState, bool) {
	if !provider.IsZero() {
		if sp, ok := e.spaceFor(space, provider); ok {
			return sp, true
		}
	}
	return e.anySpace(space)
}

func (e *Engine) doPublishEntry(cmd *protocol.ProvidedEntryData) {
	if cmd == nil {
		return
	}
	sp, ok := e.spaceForProvider(cmd.SpaceAddress, cmd.ProviderID)
	if !ok {
		e.emitResult(cmd.RequestID, cmd.SpaceAddress, cmd.ProviderID, false, "Agent is not part of the space")
		return
	}
	_ = sp.dht.Endpoint().Publish(actor.NewSpan("engine-publish"), dht.BroadcastEntry{Entry: cmd.Entry})
	e.emitResult(cmd.RequestID, cmd.SpaceAddress, cmd.ProviderID, true, "")
}

func (e *Engine) doHoldEntry(cmd *protocol.ProvidedEntryData) {
	if cmd == nil {
		return
	}
	sp, ok := e.spaceForProvider(cmd.SpaceAddress, cmd.ProviderID)
	if !ok {
		return
	}
	_ = sp.dht.Endpoint().Publish(actor.NewSpan("engine-hold"), dht.HoldEntryAspectAddress{Entry: cmd.Entry})
}

// doQueryEntry loops the query straight back to the client as
// HandleQueryEntry: under full sync every member holds every entry, so
// the authoritative answer lives with the client's own application state,
// not with the DHT.
func (e *Engine) doQueryEntry(cmd *protocol.QueryEntryData) {
	if cmd == nil {
		return
	}
	if _, ok := e.spaceForProvider(cmd.SpaceAddress, cmd.RequesterID); !ok {
		e.emitResult(cmd.RequestID, cmd.SpaceAddress, cmd.RequesterID, false, "Agent is not part of the space")
		return
	}
	e.emit(protocol.Lib3hToClient{Kind: protocol.EngineHandleQueryEntry, HandleQueryEntry: cmd})
}

// doHandleQueryEntryResult completes the looped-back query, relaying the
// client's answer as a QueryEntryResult under the same request id.
func (e *Engine) doHandleQueryEntryResult(cmd *protocol.QueryEntryResultData) {
	if cmd == nil {
		return
	}
	e.emit(protocol.Lib3hToClient{Kind: protocol.EngineQueryEntryResult, QueryEntryResult: cmd})
}

// doFetchEntry answers a direct client fetch request against local DHT
// state only; content this node does not yet hold arrives later via
// ordinary gossip rather than a synchronous network round trip.
func (e *Engine) doFetchEntry(cmd *protocol.FetchEntryData) {
	if cmd == nil {
		return
	}
	sp, ok := e.spaceForProvider(cmd.SpaceAddress, cmd.AgentID)
	if !ok {
		e.emitResult(cmd.RequestID, cmd.SpaceAddress, cmd.AgentID, false, "Agent is not part of the space")
		return
	}
	r, done := syncRequest(sp.dht, dht.RequestEntry{EntryAddress: cmd.EntryAddress})
	found := done && !r.IsErr()
	if found {
		if ev, ok := r.Ok.(dht.EntryView); !ok || !ev.Found {
			found = false
		}
	}
	e.emitResult(cmd.RequestID, cmd.SpaceAddress, cmd.AgentID, found, "")
}

func (e *Engine) doBootstrap(cmd *protocol.BootstrapData) {
	if cmd == nil {
		return
	}
	_ = e.networkGateway.Endpoint().Publish(actor.NewSpan("engine-bootstrap"), gateway.Dht{Command: dht.HoldPeer{Peer: protocol.PeerData{
		PeerName:     cmd.BootstrapURI,
		PeerLocation: cmd.BootstrapURI,
		TimestampMs:  nowMs(),
	}}})
	e.deferredSends = append(e.deferredSends, deferredSend{uri: cmd.BootstrapURI, payload: nil})
	e.emitResult(cmd.RequestID, cmd.SpaceAddress, protocol.AgentPubKey{}, true, "")
}

func (e *Engine) doHandleFetchEntryResult(cmd *protocol.FetchEntryResultData) {
	if cmd == nil {
		return
	}
	for _, sp := range e.spacesFor(cmd.SpaceAddress) {
		wait, ok := sp.fetchPending[cmd.RequestID]
		if !ok {
			continue
		}
		delete(sp.fetchPending, cmd.RequestID)
		if wait.tag == protocol.FetchForAuthoring {
			_ = sp.dht.Endpoint().Publish(actor.NewSpan("engine-fetch-result"), dht.BroadcastEntry{Entry: cmd.Entry})
			return
		}
		_ = sp.dht.Endpoint().Publish(actor.NewSpan("engine-fetch-result"), dht.HoldEntryAspectAddress{Entry: cmd.Entry})
		return
	}
	e.log.Debugf("engine: fetch result for unknown request %s", cmd.RequestID)
}

// doReconcileEntryList fetches entry bodies back from the client, tagging
// each fetch with the operation (authoring vs gossip) that will consume
// the result. The authoring path only fetches entries whose aspects the
// DHT is missing; the gossiping path fetches every listed entry
// unconditionally, since held content must reach the DHT's gossip loop
// whether or not its addresses are already known.
func (e *Engine) doReconcileEntryList(cmd *protocol.EntryListData, tag protocol.FetchTag) {
	if cmd == nil {
		return
	}
	sp, ok := e.spaceForProvider(cmd.SpaceAddress, cmd.ProviderID)
	if !ok {
		return
	}
	for entryAddr, aspects := range cmd.Entries {
		if tag == protocol.FetchForAuthoring && !e.missingAspects(sp, entryAddr, aspects) {
			continue
		}
		reqID := e.nextRequestID("fetch")
		if sp.fetchPending == nil {
			sp.fetchPending = make(map[string]fetchWait)
		}
		sp.fetchPending[reqID] = fetchWait{tag: tag}
		e.emit(protocol.Lib3hToClient{Kind: protocol.EngineHandleFetchEntry, HandleFetchEntry: &protocol.FetchEntryData{
			RequestID:    reqID,
			SpaceAddress: cmd.SpaceAddress,
			EntryAddress: entryAddr,
		}})
	}
}

// missingAspects reports whether any of the listed aspect addresses is
// absent from the DHT's view of entryAddr.
func (e *Engine) missingAspects(sp *spaceState, entryAddr protocol.EntryHash, aspects []protocol.AspectHash) bool {
	r, done := syncRequest(sp.dht, dht.RequestAspectsOf{EntryAddress: entryAddr})
	known := make(map[protocol.AspectHash]struct{})
	if done && !r.IsErr() {
		if av, ok := r.Ok.(dht.AspectsView); ok {
			for _, a := range av.Aspects {
				known[a] = struct{}{}
			}
		}
	}
	for _, a := range aspects {
		if _, ok := known[a]; !ok {
			return true
		}
	}
	return false
}

func (e *Engine) emitResult(requestID string, space protocol.SpaceHash, agent protocol.AgentPubKey, ok bool, info string) {
	kind := protocol.EngineSuccessResult
	if !ok {
		kind = protocol.EngineFailureResult
	}
	data := &protocol.GenericResultData{RequestID: requestID, SpaceAddress: space, ToAgentID: agent, ResultInfo: info}
	if ok {
		e.emit(protocol.Lib3hToClient{Kind: kind, SuccessResult: data})
		return
	}
	e.emit(protocol.Lib3hToClient{Kind: kind, FailureResult: data})
}

func errString(r actor.Result) string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}
