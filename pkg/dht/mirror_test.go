package dht

import (
	"testing"
	"time"

	"github.com/jabolina/lib3h-go/pkg/actor"
	"github.com/jabolina/lib3h-go/pkg/protocol"
	"github.com/jabolina/lib3h-go/pkg/uri"
	"github.com/sirupsen/logrus"
)

func testPeer(name string, locPort int, tsMs int64) protocol.PeerData {
	return protocol.PeerData{
		PeerName:     uri.Build(uri.SchemeNode, name, 0),
		PeerLocation: uri.Build(uri.SchemeMem, name, locPort),
		TimestampMs:  tsMs,
	}
}

func newTestDht(self protocol.PeerData) *actor.ParentWrapper {
	log := logrus.NewEntry(logrus.New())
	return New("test-dht", self, DefaultConfig(), log, nil)
}

func TestHoldPeerAdmitsAndRejectsStaleUpdates(t *testing.T) {
	self := testPeer("self", 1, 100)
	w := newTestDht(self)

	other := testPeer("other", 2, 200)
	_ = w.Endpoint().Publish(actor.NewSpan("test"), HoldPeer{Peer: other})
	w.Process()

	var view PeerView
	_ = w.Endpoint().Request(actor.NewSpan("test"), RequestPeer{PeerName: other.PeerName}, func(r actor.Result) {
		view = r.Ok.(PeerView)
	})
	w.Process()
	w.Process()
	if !view.Found || view.Peer.TimestampMs != 200 {
		t.Fatalf("view = %+v, want found with ts 200", view)
	}

	stale := other
	stale.TimestampMs = 150
	_ = w.Endpoint().Publish(actor.NewSpan("test"), HoldPeer{Peer: stale})
	w.Process()

	_ = w.Endpoint().Request(actor.NewSpan("test"), RequestPeer{PeerName: other.PeerName}, func(r actor.Result) {
		view = r.Ok.(PeerView)
	})
	w.Process()
	w.Process()
	if view.Peer.TimestampMs != 200 {
		t.Fatalf("stale update must not overwrite newer info: got ts %d", view.Peer.TimestampMs)
	}
}

func TestRequestPeerListIncludesSelf(t *testing.T) {
	self := testPeer("self", 1, 100)
	w := newTestDht(self)

	var view PeerListView
	_ = w.Endpoint().Request(actor.NewSpan("test"), RequestPeerList{}, func(r actor.Result) {
		view = r.Ok.(PeerListView)
	})
	w.Process()
	w.Process()
	if len(view.Peers) != 1 || view.Peers[0].PeerName.String() != self.PeerName.String() {
		t.Fatalf("peer list = %+v, want just self", view.Peers)
	}
}

func TestBroadcastEntryMergesAspectsAndGossipsToPeers(t *testing.T) {
	self := testPeer("self", 1, 100)
	w := newTestDht(self)

	other := testPeer("other", 2, 200)
	_ = w.Endpoint().Publish(actor.NewSpan("test"), HoldPeer{Peer: other})
	w.Process()
	// Discard the peer gossip HoldPeer itself emits; only the entry fan-out
	// below is under test.
	w.DrainMessages()

	entryAddr := uri.NewHash32([]byte("entry-1"))
	aspect := protocol.EntryAspect{AspectAddress: uri.NewHash32([]byte("aspect-1")), AspectBytes: []byte("body")}
	_ = w.Endpoint().Publish(actor.NewSpan("test"), BroadcastEntry{Entry: protocol.Entry{EntryAddress: entryAddr, Aspects: []protocol.EntryAspect{aspect}}})
	w.Process()

	frames := w.DrainMessages()
	var sawGossip bool
	for _, f := range frames {
		if gt, ok := f.Payload.(GossipTo); ok {
			sawGossip = true
			if gt.Kind != GossipKindEntry {
				t.Fatalf("gossip kind = %v, want entry", gt.Kind)
			}
			if len(gt.Peers) != 1 || gt.Peers[0].String() != other.PeerLocation.String() {
				t.Fatalf("gossip recipients = %+v, want just other", gt.Peers)
			}
		}
	}
	if !sawGossip {
		t.Fatalf("expected a GossipTo event after BroadcastEntry, got %+v", frames)
	}

	var aspectsView AspectsView
	_ = w.Endpoint().Request(actor.NewSpan("test"), RequestAspectsOf{EntryAddress: entryAddr}, func(r actor.Result) {
		aspectsView = r.Ok.(AspectsView)
	})
	w.Process()
	w.Process()
	if len(aspectsView.Aspects) != 1 || aspectsView.Aspects[0] != aspect.AspectAddress {
		t.Fatalf("aspects = %+v", aspectsView.Aspects)
	}
}

func TestHoldEntryAspectAddressShallowReferenceForwardsUpward(t *testing.T) {
	self := testPeer("self", 1, 100)
	w := newTestDht(self)

	entryAddr := uri.NewHash32([]byte("entry-2"))
	shallow := protocol.EntryAspect{AspectAddress: uri.NewHash32([]byte("aspect-2"))}
	_ = w.Endpoint().Publish(actor.NewSpan("test"), HoldEntryAspectAddress{Entry: protocol.Entry{EntryAddress: entryAddr, Aspects: []protocol.EntryAspect{shallow}}})
	w.Process()

	frames := w.DrainMessages()
	var sawForward bool
	for _, f := range frames {
		if req, ok := f.Payload.(RequestEntry); ok && req.EntryAddress == entryAddr {
			sawForward = true
		}
	}
	if !sawForward {
		t.Fatalf("expected shallow HoldEntryAspectAddress to forward a RequestEntry, got %+v", frames)
	}
}

func TestHandleGossipPeerRequestsHoldForUnknownPeer(t *testing.T) {
	self := testPeer("self", 1, 100)
	w := newTestDht(self)

	other := testPeer("other", 2, 200)
	bundle, err := protocol.EncodeBundle(protocol.GossipBundle{Kind: protocol.BundlePeer, Peer: &other})
	if err != nil {
		t.Fatalf("encode bundle: %v", err)
	}
	_ = w.Endpoint().Publish(actor.NewSpan("test"), HandleGossip{From: self, Bundle: bundle})
	w.Process()

	frames := w.DrainMessages()
	var sawHoldRequested bool
	for _, f := range frames {
		if hp, ok := f.Payload.(HoldPeerRequested); ok && hp.Peer.PeerName.String() == other.PeerName.String() {
			sawHoldRequested = true
		}
	}
	if !sawHoldRequested {
		t.Fatalf("expected HoldPeerRequested for unknown gossiped peer, got %+v", frames)
	}
}

func TestPeerTimeoutEmitsPeerTimedOut(t *testing.T) {
	self := testPeer("self", 1, 100)
	w := newTestDht(self)

	other := testPeer("other", 2, 0)
	_ = w.Endpoint().Publish(actor.NewSpan("test"), HoldPeer{Peer: other})
	w.Process()

	deadline := time.Now().Add(2 * time.Second)
	var sawTimeout bool
	for time.Now().Before(deadline) && !sawTimeout {
		w.Process()
		for _, f := range w.DrainMessages() {
			if _, ok := f.Payload.(PeerTimedOut); ok {
				sawTimeout = true
			}
		}
		if sawTimeout {
			break
		}
	}
	if !sawTimeout {
		t.Fatalf("expected a PeerTimedOut event for a peer with an ancient timestamp")
	}
}
