// Package dht implements the full-replication mirror DHT: a peer map with
// timeout-based liveness, an entry/aspect content map, and a gossip
// scheduler that fans out new peers and new content to every known peer.
package dht

import (
	"github.com/jabolina/lib3h-go/pkg/protocol"
	"github.com/jabolina/lib3h-go/pkg/uri"
)

// Downward commands, parent (gateway/engine) -> DHT. Event-shaped
// commands (no response expected) are delivered via Endpoint.Publish; the
// Request-prefixed commands are synchronous reads delivered via
// Endpoint.Request/RequestOptions.

// HoldPeer asks the DHT to admit or refresh knowledge of a peer.
type HoldPeer struct {
	Peer protocol.PeerData
}

// HoldEntryAspectAddress asks the DHT to merge a possibly-shallow entry
// reference into the entry map.
type HoldEntryAspectAddress struct {
	Entry protocol.Entry
}

// BroadcastEntry asks the DHT to merge and gossip a locally authored entry,
// without the shallow-reference short-circuit HoldEntryAspectAddress has.
type BroadcastEntry struct {
	Entry protocol.Entry
}

// HandleGossip delivers a gossip bundle received from another peer.
type HandleGossip struct {
	From   protocol.PeerData
	Bundle []byte
}

// DropEntryAddress requests an entry be forgotten; a no-op under this
// monotonic DHT.
type DropEntryAddress struct {
	EntryAddress protocol.EntryHash
}

// UpdateAdvertise changes this peer's advertised low-level location.
type UpdateAdvertise struct {
	URI uri.Uri
}

// RequestPeer reads back one known peer by name.
type RequestPeer struct {
	PeerName uri.Uri
}

// RequestPeerList reads back every known peer, this DHT's own included;
// the response is a PeerListView.
type RequestPeerList struct{}

// RequestThisPeer reads back this DHT's own advertised PeerData.
type RequestThisPeer struct{}

// RequestEntryAddressList reads back every known entry address.
type RequestEntryAddressList struct{}

// RequestAspectsOf reads back the aspect address set for one entry.
type RequestAspectsOf struct {
	EntryAddress protocol.EntryHash
}

// RequestEntry asks for the full Entry body. If the DHT does not hold real
// content locally this is forwarded upward to the parent.
type RequestEntry struct {
	EntryAddress protocol.EntryHash
}

// Upward events, DHT -> parent (gateway/engine).

// GossipToKind distinguishes the two gossip fan-out reasons so the gossip
// counter can be labelled.
type GossipToKind string

const (
	GossipKindPeer  GossipToKind = "peer"
	GossipKindEntry GossipToKind = "entry"
)

// GossipTo asks the parent to deliver a serialized gossip bundle to every
// peer in Peers (never including the local peer).
type GossipTo struct {
	Kind   GossipToKind
	Peers  []uri.Uri
	Bundle []byte
}

// HoldPeerRequested asks the parent to accept and connect to a
// newly-learned peer (emitted when HandleGossip observes an unknown peer).
type HoldPeerRequested struct {
	Peer protocol.PeerData
}

// PeerTimedOut notifies the parent that a peer's liveness deadline elapsed.
type PeerTimedOut struct {
	PeerName uri.Uri
}

// HoldEntryRequested asks the parent to hold a gossiped entry whose aspect
// set includes aspects this DHT does not yet store.
type HoldEntryRequested struct {
	FromSelf bool
	Entry    protocol.Entry
}

// EntryAspectsHeld notifies the parent that NewAspects were just merged
// into the entry map for Entry.EntryAddress, so the owner can tell the
// client content landed locally.
type EntryAspectsHeld struct {
	Entry      protocol.Entry
	NewAspects []protocol.EntryAspect
}

// Views returned by the *Request read commands.

// PeerView is the response to RequestPeer.
type PeerView struct {
	Peer  protocol.PeerData
	Found bool
}

// PeerListView is the response to RequestPeerList.
type PeerListView struct {
	Peers []protocol.PeerData
}

// EntryAddressListView is the response to RequestEntryAddressList.
type EntryAddressListView struct {
	Addresses []protocol.EntryHash
}

// AspectsView is the response to RequestAspectsOf.
type AspectsView struct {
	Aspects []protocol.AspectHash
}

// EntryView is the response to RequestEntry.
type EntryView struct {
	Entry protocol.Entry
	Found bool
}
