// Wire protocol between engines: the P2pProtocol tagged union, encoded as
// a variant tag plus a msgpack payload so a decoder never has to
// speculatively try every variant.
package protocol

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// P2pKind tags a P2pProtocol variant.
type P2pKind byte

const (
	KindGossip              P2pKind = 1
	KindDirectMessage       P2pKind = 2
	KindDirectMessageResult P2pKind = 3
	KindPeerName            P2pKind = 4
	KindBroadcastJoinSpace  P2pKind = 5
	KindAllJoinedSpaceList  P2pKind = 6
	KindCapnProtoMessage    P2pKind = 7
)

// Gossip carries an addressed DHT gossip bundle.
type Gossip struct {
	FromPeerName uri32     `msgpack:"from_peer_name"`
	ToPeerName   uri32     `msgpack:"to_peer_name"`
	SpaceAddress SpaceHash `msgpack:"space_address"`
	Bundle       []byte    `msgpack:"bundle"`
}

// DirectMessage is an application-level direct message between agents.
type DirectMessage struct {
	SpaceAddress SpaceHash   `msgpack:"space_address"`
	RequestID    string      `msgpack:"request_id"`
	ToAgent      AgentPubKey `msgpack:"to_agent"`
	FromAgent    AgentPubKey `msgpack:"from_agent"`
	Content      []byte      `msgpack:"content"`
}

// PeerName announces a peer's node id/uri/agent id; reserved, a no-op on
// receipt.
type PeerName struct {
	NodeID  NodePubKey  `msgpack:"node_id"`
	URI     uri32       `msgpack:"uri"`
	AgentID AgentPubKey `msgpack:"agent_id"`
}

// BroadcastJoinSpace fans a new space join out to the network.
type BroadcastJoinSpace struct {
	SpaceAddress SpaceHash `msgpack:"space_address"`
	Peer         PeerData  `msgpack:"peer"`
}

// JoinedSpace pairs a space with the peer data advertised for it, the
// element type of AllJoinedSpaceList.
type JoinedSpace struct {
	SpaceAddress SpaceHash `msgpack:"space_address"`
	Peer         PeerData  `msgpack:"peer"`
}

// AllJoinedSpaceList bootstraps a newly observed remote's view of every
// space this engine has joined.
type AllJoinedSpaceList struct {
	Spaces []JoinedSpace `msgpack:"spaces"`
}

// CapnProtoMessage is a reserved ping/pong envelope; no component
// constructs or dispatches on it yet.
type CapnProtoMessage struct {
	Bytes []byte `msgpack:"bytes"`
}

// uri32 is the msgpack wire shape for a uri.Uri (a plain string).
type uri32 = string

// P2pProtocol is the tagged union of wire messages exchanged between
// engines. Exactly one of the payload fields is meaningful, selected by
// Kind.
type P2pProtocol struct {
	Kind                P2pKind
	Gossip              *Gossip
	DirectMessage       *DirectMessage
	DirectMessageResult *DirectMessage
	PeerName            *PeerName
	BroadcastJoinSpace  *BroadcastJoinSpace
	AllJoinedSpaceList  *AllJoinedSpaceList
	CapnProtoMessage    *CapnProtoMessage
}

// envelope is the on-wire shape: a tag byte plus the raw msgpack payload,
// so a decoder never has to speculatively try every variant.
type envelope struct {
	Kind    P2pKind            `msgpack:"kind"`
	Payload msgpack.RawMessage `msgpack:"payload"`
}

// Encode serializes p to its wire form.
func Encode(p P2pProtocol) ([]byte, error) {
	var payload interface{}
	switch p.Kind {
	case KindGossip:
		payload = p.Gossip
	case KindDirectMessage:
		payload = p.DirectMessage
	case KindDirectMessageResult:
		payload = p.DirectMessageResult
	case KindPeerName:
		payload = p.PeerName
	case KindBroadcastJoinSpace:
		payload = p.BroadcastJoinSpace
	case KindAllJoinedSpaceList:
		payload = p.AllJoinedSpaceList
	case KindCapnProtoMessage:
		payload = p.CapnProtoMessage
	default:
		return nil, fmt.Errorf("protocol: encode: unknown kind %d", p.Kind)
	}
	raw, err := msgpack.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode payload: %w", err)
	}
	return msgpack.Marshal(envelope{Kind: p.Kind, Payload: raw})
}

// Decode parses the wire form produced by Encode.
func Decode(data []byte) (P2pProtocol, error) {
	var env envelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return P2pProtocol{}, fmt.Errorf("protocol: decode envelope: %w", err)
	}
	out := P2pProtocol{Kind: env.Kind}
	var err error
	switch env.Kind {
	case KindGossip:
		out.Gossip = &Gossip{}
		err = msgpack.Unmarshal(env.Payload, out.Gossip)
	case KindDirectMessage:
		out.DirectMessage = &DirectMessage{}
		err = msgpack.Unmarshal(env.Payload, out.DirectMessage)
	case KindDirectMessageResult:
		out.DirectMessageResult = &DirectMessage{}
		err = msgpack.Unmarshal(env.Payload, out.DirectMessageResult)
	case KindPeerName:
		out.PeerName = &PeerName{}
		err = msgpack.Unmarshal(env.Payload, out.PeerName)
	case KindBroadcastJoinSpace:
		out.BroadcastJoinSpace = &BroadcastJoinSpace{}
		err = msgpack.Unmarshal(env.Payload, out.BroadcastJoinSpace)
	case KindAllJoinedSpaceList:
		out.AllJoinedSpaceList = &AllJoinedSpaceList{}
		err = msgpack.Unmarshal(env.Payload, out.AllJoinedSpaceList)
	case KindCapnProtoMessage:
		out.CapnProtoMessage = &CapnProtoMessage{}
		err = msgpack.Unmarshal(env.Payload, out.CapnProtoMessage)
	default:
		return P2pProtocol{}, fmt.Errorf("protocol: decode: unknown kind %d", env.Kind)
	}
	if err != nil {
		return P2pProtocol{}, fmt.Errorf("protocol: decode payload: %w", err)
	}
	return out, nil
}

// GossipBundleKind tags the two DHT gossip bundle variants: a peer
// announcement or an entry's aspect set.
type GossipBundleKind byte

const (
	BundlePeer  GossipBundleKind = 1
	BundleEntry GossipBundleKind = 2
)

// GossipBundle is the payload gossiped between mirror DHT instances.
type GossipBundle struct {
	Kind  GossipBundleKind
	Peer  *PeerData
	Entry *Entry
}

type bundleEnvelope struct {
	Kind    GossipBundleKind   `msgpack:"kind"`
	Payload msgpack.RawMessage `msgpack:"payload"`
}

// EncodeBundle serializes a GossipBundle.
func EncodeBundle(b GossipBundle) ([]byte, error) {
	var payload interface{}
	switch b.Kind {
	case BundlePeer:
		payload = b.Peer
	case BundleEntry:
		payload = b.Entry
	default:
		return nil, fmt.Errorf("protocol: encode bundle: unknown kind %d", b.Kind)
	}
	raw, err := msgpack.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode bundle payload: %w", err)
	}
	return msgpack.Marshal(bundleEnvelope{Kind: b.Kind, Payload: raw})
}

// DecodeBundle parses the wire form produced by EncodeBundle.
func DecodeBundle(data []byte) (GossipBundle, error) {
	var env bundleEnvelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return GossipBundle{}, fmt.Errorf("protocol: decode bundle envelope: %w", err)
	}
	out := GossipBundle{Kind: env.Kind}
	var err error
	switch env.Kind {
	case BundlePeer:
		out.Peer = &PeerData{}
		err = msgpack.Unmarshal(env.Payload, out.Peer)
	case BundleEntry:
		out.Entry = &Entry{}
		err = msgpack.Unmarshal(env.Payload, out.Entry)
	default:
		return GossipBundle{}, fmt.Errorf("protocol: decode bundle: unknown kind %d", env.Kind)
	}
	if err != nil {
		return GossipBundle{}, fmt.Errorf("protocol: decode bundle payload: %w", err)
	}
	return out, nil
}
