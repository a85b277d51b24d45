package uri

import (
	"encoding/base64"

	"github.com/btcsuite/btcutil/base58"
)

// Hash32 is a fixed-width 32-byte content address or identifier, as used
// for SpaceHash, NetworkHash, EntryHash and AspectHash.
type Hash32 [32]byte

// NewHash32 copies b into a Hash32, zero-padding or truncating to 32 bytes.
func NewHash32(b []byte) Hash32 {
	var h Hash32
	copy(h[:], b)
	return h
}

// String renders the hash as base-58 text, the default textual form used
// for logs and node names.
func (h Hash32) String() string {
	return base58.Encode(h[:])
}

// Base64 renders the hash as unpadded base-64, used where a more compact
// log-friendly form is preferred.
func (h Hash32) Base64() string {
	return base64.RawURLEncoding.EncodeToString(h[:])
}

// Bytes returns the raw 32 bytes.
func (h Hash32) Bytes() []byte {
	return h[:]
}

// IsZero reports whether the hash is all-zero (unset).
func (h Hash32) IsZero() bool {
	return h == Hash32{}
}
