package engine

import (
	"testing"

	"github.com/jabolina/lib3h-go/pkg/actor"
	"github.com/jabolina/lib3h-go/pkg/gateway"
	"github.com/jabolina/lib3h-go/pkg/harness"
	"github.com/jabolina/lib3h-go/pkg/protocol"
	"github.com/jabolina/lib3h-go/pkg/transport"
	"github.com/jabolina/lib3h-go/pkg/uri"
)

// Joining then leaving returns the pair to its prior state: subsequent
// operations on it fail, and a second leave reports the same failure.
func TestEngineLeaveSpaceRestoresPriorState(t *testing.T) {
	transport.ResetGlobalState()
	t.Cleanup(transport.ResetGlobalState)

	e, agent := spawnTestEngine(t, "leaver")
	space := uri.NewHash32([]byte("leave-space"))

	joinSpace(t, e, "join-1", space, agent)
	e.Post(protocol.ClientToLib3h{Kind: protocol.ClientLeaveSpace, LeaveSpace: &protocol.SpaceData{
		RequestID: "leave-1", SpaceAddress: space, AgentID: agent,
	}})

	var leaveResult *protocol.Lib3hToClient
	_, err := harness.RunUntil(100, func() bool {
		for _, out := range e.DrainClientOutbox() {
			out := out
			if (out.Kind == protocol.EngineSuccessResult && out.SuccessResult.RequestID == "leave-1") ||
				(out.Kind == protocol.EngineFailureResult && out.FailureResult.RequestID == "leave-1") {
				leaveResult = &out
			}
		}
		return leaveResult != nil
	}, e)
	if err != nil {
		t.Fatalf("leave: %v", err)
	}
	if leaveResult.Kind != protocol.EngineSuccessResult {
		t.Fatalf("leave = %+v, want success", leaveResult)
	}

	e.Post(protocol.ClientToLib3h{Kind: protocol.ClientSendDirectMessage, SendDirectMessage: &protocol.DirectMessageData{
		RequestID: "dm-after-leave", SpaceAddress: space, FromAgentID: agent, ToAgentID: agent, Content: []byte("x"),
	}})
	e.Post(protocol.ClientToLib3h{Kind: protocol.ClientLeaveSpace, LeaveSpace: &protocol.SpaceData{
		RequestID: "leave-2", SpaceAddress: space, AgentID: agent,
	}})

	var failures []*protocol.GenericResultData
	_, err = harness.RunUntil(100, func() bool {
		for _, out := range e.DrainClientOutbox() {
			if out.Kind == protocol.EngineFailureResult {
				failures = append(failures, out.FailureResult)
			}
		}
		return len(failures) >= 2
	}, e)
	if err != nil {
		t.Fatalf("operations after leave: %v", err)
	}
	for _, f := range failures {
		if f.ResultInfo != "Agent is not part of the space" {
			t.Fatalf("failure info = %q, want %q", f.ResultInfo, "Agent is not part of the space")
		}
	}
}

// An unbind surfacing from the transport must reach the client as exactly
// one Unbound event.
func TestEngineUnbindSurfacesUnboundOnce(t *testing.T) {
	transport.ResetGlobalState()
	t.Cleanup(transport.ResetGlobalState)

	e, _ := spawnTestEngine(t, "unbinder")

	_ = e.multiplexer.Endpoint().Publish(actor.NewSpan("test"), gateway.Transport{Command: transport.Unbind{}})

	unboundCount := 0
	_, err := harness.RunUntil(100, func() bool {
		for _, out := range e.DrainClientOutbox() {
			if out.Kind == protocol.EngineUnbound {
				unboundCount++
			}
		}
		return unboundCount > 0
	}, e)
	if err != nil {
		t.Fatalf("unbind: %v", err)
	}

	// A few extra ticks must not produce a second Unbound.
	_, _ = harness.RunUntil(20, func() bool { return false }, e)
	for _, out := range e.DrainClientOutbox() {
		if out.Kind == protocol.EngineUnbound {
			unboundCount++
		}
	}
	if unboundCount != 1 {
		t.Fatalf("unbound events = %d, want exactly 1", unboundCount)
	}
}

// The first live connection, and only the first, surfaces Connected.
func TestEngineConnectedFiresOnFirstConnectionOnly(t *testing.T) {
	transport.ResetGlobalState()
	t.Cleanup(transport.ResetGlobalState)

	alice, _ := spawnTestEngine(t, "conn-alice")
	bob, _ := spawnTestEngine(t, "conn-bob")
	carol, _ := spawnTestEngine(t, "conn-carol")

	bobPeer, err := bob.ThisPeer()
	if err != nil {
		t.Fatalf("bob this peer: %v", err)
	}
	carolPeer, err := carol.ThisPeer()
	if err != nil {
		t.Fatalf("carol this peer: %v", err)
	}

	alice.Post(protocol.ClientToLib3h{Kind: protocol.ClientConnect, Connect: &protocol.ConnectData{
		RequestID: "connect-bob", PeerURI: bobPeer.PeerLocation,
	}})
	alice.Post(protocol.ClientToLib3h{Kind: protocol.ClientConnect, Connect: &protocol.ConnectData{
		RequestID: "connect-carol", PeerURI: carolPeer.PeerLocation,
	}})

	var connected []*protocol.ConnectedData
	_, err = harness.RunUntil(1000, func() bool {
		for _, out := range alice.DrainClientOutbox() {
			if out.Kind == protocol.EngineConnected {
				connected = append(connected, out.Connected)
			}
		}
		return len(connected) >= 1
	}, alice, bob, carol)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	_, _ = harness.RunUntil(200, func() bool { return false }, alice, bob, carol)
	for _, out := range alice.DrainClientOutbox() {
		if out.Kind == protocol.EngineConnected {
			connected = append(connected, out.Connected)
		}
	}
	if len(connected) != 1 {
		t.Fatalf("connected events = %d, want exactly 1", len(connected))
	}
}

// Authoring-list reconciliation: an entry held locally by the client but
// never published is fetched back by the engine, broadcast through the
// DHT, and lands on the remote peer as a HandleStoreEntryAspect.
func TestEngineAuthoringListReconciliationReachesPeer(t *testing.T) {
	transport.ResetGlobalState()
	t.Cleanup(transport.ResetGlobalState)

	alice, aliceAgent := spawnTestEngine(t, "author-alice")
	bob, bobAgent := spawnTestEngine(t, "author-bob")
	connectPair(t, alice, bob)

	space := uri.NewHash32([]byte("author-space"))
	joinSpace(t, alice, "join-alice", space, aliceAgent)
	joinSpace(t, bob, "join-bob", space, bobAgent)
	_, _ = harness.RunUntil(500, func() bool { return false }, alice, bob)
	alice.DrainClientOutbox()
	bob.DrainClientOutbox()

	entryAddr := uri.NewHash32([]byte("authored-entry"))
	aspect := protocol.EntryAspect{AspectAddress: uri.NewHash32([]byte("hello-1")), AspectBytes: []byte("hello-1")}

	// The client reports one authored entry the DHT has never seen.
	alice.Post(protocol.ClientToLib3h{Kind: protocol.ClientHandleGetAuthoringEntryListResult, HandleGetAuthoringEntryListResult: &protocol.EntryListData{
		RequestID:    "authoring-list-1",
		SpaceAddress: space,
		ProviderID:   aliceAgent,
		Entries:      map[protocol.EntryHash][]protocol.AspectHash{entryAddr: {aspect.AspectAddress}},
	}})

	var fetch *protocol.FetchEntryData
	_, err := harness.RunUntil(500, func() bool {
		for _, out := range alice.DrainClientOutbox() {
			if out.Kind == protocol.EngineHandleFetchEntry && out.HandleFetchEntry != nil &&
				out.HandleFetchEntry.EntryAddress == entryAddr {
				fetch = out.HandleFetchEntry
			}
		}
		return fetch != nil
	}, alice, bob)
	if err != nil {
		t.Fatalf("fetch request: %v", err)
	}

	alice.Post(protocol.ClientToLib3h{Kind: protocol.ClientHandleFetchEntryResult, HandleFetchEntryResult: &protocol.FetchEntryResultData{
		RequestID:    fetch.RequestID,
		SpaceAddress: space,
		EntryAddress: entryAddr,
		Entry:        protocol.Entry{EntryAddress: entryAddr, Aspects: []protocol.EntryAspect{aspect}},
	}})

	bobGotIt := false
	_, err = harness.RunUntil(3000, func() bool {
		for _, out := range bob.DrainClientOutbox() {
			if out.Kind == protocol.EngineHandleStoreEntryAspect && out.HandleStoreEntryAspect != nil &&
				out.HandleStoreEntryAspect.EntryAddress == entryAddr {
				bobGotIt = true
			}
		}
		return bobGotIt
	}, alice, bob)
	if err != nil {
		t.Fatalf("reconciliation fan-out: %v", err)
	}
}

// A query loops back to the client as HandleQueryEntry, and the client's
// reply returns as a QueryEntryResult under the same request id — even
// for an unheld entry with an empty body.
func TestEngineQueryEntryLoopsBackToClient(t *testing.T) {
	transport.ResetGlobalState()
	t.Cleanup(transport.ResetGlobalState)

	e, agent := spawnTestEngine(t, "querier")
	space := uri.NewHash32([]byte("query-space"))
	joinSpace(t, e, "join-1", space, agent)
	_, _ = harness.RunUntil(100, func() bool { return false }, e)
	e.DrainClientOutbox()

	entryAddr := uri.NewHash32([]byte("query-entry"))
	e.Post(protocol.ClientToLib3h{Kind: protocol.ClientQueryEntry, QueryEntry: &protocol.QueryEntryData{
		RequestID: "query-1", SpaceAddress: space, EntryAddress: entryAddr, RequesterID: agent,
	}})

	var handle *protocol.QueryEntryData
	_, err := harness.RunUntil(100, func() bool {
		for _, out := range e.DrainClientOutbox() {
			if out.Kind == protocol.EngineHandleQueryEntry && out.HandleQueryEntry != nil {
				handle = out.HandleQueryEntry
			}
		}
		return handle != nil
	}, e)
	if err != nil {
		t.Fatalf("query loop-back: %v", err)
	}
	if handle.RequestID != "query-1" || handle.EntryAddress != entryAddr {
		t.Fatalf("looped-back query = %+v", handle)
	}

	e.Post(protocol.ClientToLib3h{Kind: protocol.ClientHandleQueryEntryResult, HandleQueryEntryResult: &protocol.QueryEntryResultData{
		RequestID: "query-1", SpaceAddress: space, EntryAddress: entryAddr, RequesterID: agent,
	}})

	var result *protocol.QueryEntryResultData
	_, err = harness.RunUntil(100, func() bool {
		for _, out := range e.DrainClientOutbox() {
			if out.Kind == protocol.EngineQueryEntryResult && out.QueryEntryResult != nil {
				result = out.QueryEntryResult
			}
		}
		return result != nil
	}, e)
	if err != nil {
		t.Fatalf("query result: %v", err)
	}
	if result.RequestID != "query-1" {
		t.Fatalf("request id = %q", result.RequestID)
	}
	if len(result.ResultBytes) != 0 {
		t.Fatalf("result bytes = %q, want empty", result.ResultBytes)
	}
}
