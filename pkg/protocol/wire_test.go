package protocol

import (
	"bytes"
	"testing"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/jabolina/lib3h-go/pkg/uri"
)

func TestEncodeDecodeDirectMessageRoundTrip(t *testing.T) {
	agentA := NewAgentPubKey([]byte("agent-a"))
	agentB := NewAgentPubKey([]byte("agent-b"))
	space := uri.NewHash32([]byte("space-1"))

	msg := P2pProtocol{Kind: KindDirectMessage, DirectMessage: &DirectMessage{
		SpaceAddress: space,
		RequestID:    "req-1",
		ToAgent:      agentB,
		FromAgent:    agentA,
		Content:      []byte("hello"),
	}}

	raw, err := Encode(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Kind != KindDirectMessage {
		t.Fatalf("kind = %d", decoded.Kind)
	}
	if decoded.DirectMessage.RequestID != "req-1" {
		t.Fatalf("request id = %q", decoded.DirectMessage.RequestID)
	}
	if !bytes.Equal(decoded.DirectMessage.Content, []byte("hello")) {
		t.Fatalf("content = %q", decoded.DirectMessage.Content)
	}
	if !decoded.DirectMessage.ToAgent.Equal(agentB) {
		t.Fatalf("to agent mismatch")
	}
	if decoded.DirectMessage.SpaceAddress != space {
		t.Fatalf("space mismatch")
	}
}

func TestEncodeDecodeGossipRoundTrip(t *testing.T) {
	space := uri.NewHash32([]byte("space-g"))
	msg := P2pProtocol{Kind: KindGossip, Gossip: &Gossip{
		FromPeerName: "nodepubkey://from",
		ToPeerName:   "nodepubkey://to",
		SpaceAddress: space,
		Bundle:       []byte{0x01, 0x02, 0x03},
	}}

	raw, err := Encode(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Kind != KindGossip {
		t.Fatalf("kind = %d", decoded.Kind)
	}
	g := decoded.Gossip
	if g.FromPeerName != "nodepubkey://from" || g.ToPeerName != "nodepubkey://to" {
		t.Fatalf("peer names = %q / %q", g.FromPeerName, g.ToPeerName)
	}
	if g.SpaceAddress != space {
		t.Fatalf("space mismatch")
	}
	if !bytes.Equal(g.Bundle, []byte{0x01, 0x02, 0x03}) {
		t.Fatalf("bundle = %v", g.Bundle)
	}
}

func TestEncodeDecodeDirectMessageResultRoundTrip(t *testing.T) {
	agentA := NewAgentPubKey([]byte("agent-a"))
	agentB := NewAgentPubKey([]byte("agent-b"))
	space := uri.NewHash32([]byte("space-r"))

	msg := P2pProtocol{Kind: KindDirectMessageResult, DirectMessageResult: &DirectMessage{
		SpaceAddress: space,
		RequestID:    "req-2",
		ToAgent:      agentA,
		FromAgent:    agentB,
		Content:      []byte("echo: hello"),
	}}

	raw, err := Encode(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Kind != KindDirectMessageResult {
		t.Fatalf("kind = %d", decoded.Kind)
	}
	dm := decoded.DirectMessageResult
	if dm.RequestID != "req-2" {
		t.Fatalf("request id = %q", dm.RequestID)
	}
	if !dm.ToAgent.Equal(agentA) || !dm.FromAgent.Equal(agentB) {
		t.Fatalf("agent mismatch")
	}
	if dm.SpaceAddress != space {
		t.Fatalf("space mismatch")
	}
	if !bytes.Equal(dm.Content, []byte("echo: hello")) {
		t.Fatalf("content = %q", dm.Content)
	}
}

func TestEncodeDecodePeerNameRoundTrip(t *testing.T) {
	node := NewNodePubKey([]byte("node-1"))
	agent := NewAgentPubKey([]byte("agent-1"))

	msg := P2pProtocol{Kind: KindPeerName, PeerName: &PeerName{
		NodeID:  node,
		URI:     "mem://host:4000",
		AgentID: agent,
	}}

	raw, err := Encode(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Kind != KindPeerName {
		t.Fatalf("kind = %d", decoded.Kind)
	}
	pn := decoded.PeerName
	if !pn.NodeID.Equal(node) || !pn.AgentID.Equal(agent) {
		t.Fatalf("key mismatch: %+v", pn)
	}
	if pn.URI != "mem://host:4000" {
		t.Fatalf("uri = %q", pn.URI)
	}
}

func TestEncodeDecodeBroadcastJoinSpaceRoundTrip(t *testing.T) {
	space := uri.NewHash32([]byte("space-j"))
	peer := PeerData{
		PeerName:     uri.MustParse("agentpubkey://joiner"),
		PeerLocation: uri.MustParse("mem://joiner:1"),
		TimestampMs:  77,
	}

	msg := P2pProtocol{Kind: KindBroadcastJoinSpace, BroadcastJoinSpace: &BroadcastJoinSpace{
		SpaceAddress: space,
		Peer:         peer,
	}}

	raw, err := Encode(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Kind != KindBroadcastJoinSpace {
		t.Fatalf("kind = %d", decoded.Kind)
	}
	b := decoded.BroadcastJoinSpace
	if b.SpaceAddress != space {
		t.Fatalf("space mismatch")
	}
	if !b.Peer.PeerName.Equal(peer.PeerName) || !b.Peer.PeerLocation.Equal(peer.PeerLocation) {
		t.Fatalf("peer = %+v", b.Peer)
	}
	if b.Peer.TimestampMs != 77 {
		t.Fatalf("timestamp = %d", b.Peer.TimestampMs)
	}
}

func TestEncodeDecodeAllJoinedSpaceListRoundTrip(t *testing.T) {
	spaceA := uri.NewHash32([]byte("space-a"))
	spaceB := uri.NewHash32([]byte("space-b"))
	peer := PeerData{
		PeerName:     uri.MustParse("agentpubkey://member"),
		PeerLocation: uri.MustParse("mem://member:2"),
		TimestampMs:  99,
	}

	msg := P2pProtocol{Kind: KindAllJoinedSpaceList, AllJoinedSpaceList: &AllJoinedSpaceList{
		Spaces: []JoinedSpace{
			{SpaceAddress: spaceA, Peer: peer},
			{SpaceAddress: spaceB, Peer: peer},
		},
	}}

	raw, err := Encode(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Kind != KindAllJoinedSpaceList {
		t.Fatalf("kind = %d", decoded.Kind)
	}
	spaces := decoded.AllJoinedSpaceList.Spaces
	if len(spaces) != 2 {
		t.Fatalf("spaces = %d, want 2", len(spaces))
	}
	if spaces[0].SpaceAddress != spaceA || spaces[1].SpaceAddress != spaceB {
		t.Fatalf("space order mismatch: %+v", spaces)
	}
	if !spaces[0].Peer.PeerName.Equal(peer.PeerName) || spaces[1].Peer.TimestampMs != 99 {
		t.Fatalf("peer mismatch: %+v", spaces)
	}
}

func TestEncodeDecodeCapnProtoMessageRoundTrip(t *testing.T) {
	msg := P2pProtocol{Kind: KindCapnProtoMessage, CapnProtoMessage: &CapnProtoMessage{
		Bytes: []byte("ping"),
	}}

	raw, err := Encode(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Kind != KindCapnProtoMessage {
		t.Fatalf("kind = %d", decoded.Kind)
	}
	if !bytes.Equal(decoded.CapnProtoMessage.Bytes, []byte("ping")) {
		t.Fatalf("bytes = %q", decoded.CapnProtoMessage.Bytes)
	}
}

func TestDecodeRejectsUnknownKind(t *testing.T) {
	raw, err := Encode(P2pProtocol{Kind: KindPeerName, PeerName: &PeerName{}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := Decode(raw); err != nil {
		t.Fatalf("decode known kind: %v", err)
	}
	unknown, err := msgpack.Marshal(envelope{Kind: P2pKind(0xff), Payload: msgpack.RawMessage{0xc0}})
	if err != nil {
		t.Fatalf("encode unknown-kind envelope: %v", err)
	}
	if _, err := Decode(unknown); err == nil {
		t.Fatalf("expected decode error on unknown kind")
	}
	if _, err := Decode([]byte("not msgpack")); err == nil {
		t.Fatalf("expected decode error on garbage input")
	}
}

func TestGossipBundleRoundTrip(t *testing.T) {
	peer := PeerData{PeerName: uri.MustParse("agentpubkey://x"), PeerLocation: uri.MustParse("nodepubkey://x:1"), TimestampMs: 42}
	bundle := GossipBundle{Kind: BundlePeer, Peer: &peer}

	raw, err := EncodeBundle(bundle)
	if err != nil {
		t.Fatalf("encode bundle: %v", err)
	}
	decoded, err := DecodeBundle(raw)
	if err != nil {
		t.Fatalf("decode bundle: %v", err)
	}
	if decoded.Kind != BundlePeer {
		t.Fatalf("kind = %d", decoded.Kind)
	}
	if decoded.Peer.TimestampMs != 42 {
		t.Fatalf("timestamp = %d", decoded.Peer.TimestampMs)
	}
}

func TestEntryIsShallowReferenceAndNewAspects(t *testing.T) {
	full := EntryAspect{AspectAddress: uri.NewHash32([]byte("a1")), AspectBytes: []byte("body")}
	shallow := EntryAspect{AspectAddress: uri.NewHash32([]byte("a2"))}

	e := Entry{EntryAddress: uri.NewHash32([]byte("e1")), Aspects: []EntryAspect{shallow}}
	if !e.IsShallowReference() {
		t.Fatalf("expected shallow reference")
	}

	fresh := e.NewAspects([]EntryAspect{shallow, full})
	if len(fresh) != 1 || fresh[0].AspectAddress != full.AspectAddress {
		t.Fatalf("NewAspects = %+v, want just the full aspect", fresh)
	}
}
