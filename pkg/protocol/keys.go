package protocol

import (
	"fmt"

	libp2pcrypto "github.com/libp2p/go-libp2p-core/crypto"

	"github.com/jabolina/lib3h-go/pkg/uri"
)

// AgentPubKey identifies a client identity within one space. The wire
// representation is always the raw 32-byte hash; the optional libp2p key
// lets callers round-trip through a real signing key instead of an opaque
// byte slice.
type AgentPubKey struct {
	hash uri.Hash32
	pub  libp2pcrypto.PubKey
}

// NewAgentPubKey wraps a raw 32-byte address with no backing key material.
func NewAgentPubKey(raw []byte) AgentPubKey {
	return AgentPubKey{hash: uri.NewHash32(raw)}
}

// GenerateAgentPubKey derives a fresh ed25519 key pair and returns the
// public half addressed by its raw key bytes.
func GenerateAgentPubKey() (AgentPubKey, libp2pcrypto.PrivKey, error) {
	priv, pub, err := libp2pcrypto.GenerateEd25519Key(nil)
	if err != nil {
		return AgentPubKey{}, nil, fmt.Errorf("protocol: generate agent key: %w", err)
	}
	raw, err := pub.Raw()
	if err != nil {
		return AgentPubKey{}, nil, fmt.Errorf("protocol: marshal agent key: %w", err)
	}
	return AgentPubKey{hash: uri.NewHash32(raw), pub: pub}, priv, nil
}

// String renders the key as base-58 text.
func (a AgentPubKey) String() string { return a.hash.String() }

// Bytes returns the raw address bytes.
func (a AgentPubKey) Bytes() []byte { return a.hash.Bytes() }

// Equal compares two agent keys by their address bytes.
func (a AgentPubKey) Equal(other AgentPubKey) bool { return a.hash == other.hash }

// IsZero reports whether the key is unset.
func (a AgentPubKey) IsZero() bool { return a.hash.IsZero() }

// NodePubKey identifies a transport endpoint ("a machine"), one per engine
// instance.
type NodePubKey struct {
	hash uri.Hash32
}

// NewNodePubKey wraps a raw 32-byte address.
func NewNodePubKey(raw []byte) NodePubKey {
	return NodePubKey{hash: uri.NewHash32(raw)}
}

func (n NodePubKey) String() string        { return n.hash.String() }
func (n NodePubKey) Bytes() []byte         { return n.hash.Bytes() }
func (n NodePubKey) Equal(o NodePubKey) bool { return n.hash == o.hash }
func (n NodePubKey) IsZero() bool          { return n.hash.IsZero() }

// SpaceHash identifies an application overlay.
type SpaceHash = uri.Hash32

// NetworkHash identifies the network overlay.
type NetworkHash = uri.Hash32

// EntryHash addresses an Entry.
type EntryHash = uri.Hash32

// AspectHash addresses one EntryAspect.
type AspectHash = uri.Hash32
