package protocol

import "github.com/jabolina/lib3h-go/pkg/uri"

// PeerData describes one known peer: its node-level name, its advertised
// low-level location, and the freshness timestamp used for liveness and
// for resolving HoldPeer conflicts.
type PeerData struct {
	PeerName     uri.Uri `msgpack:"peer_name"`
	PeerLocation uri.Uri `msgpack:"peer_location"`
	TimestampMs  int64   `msgpack:"timestamp_ms"`
}

// SameName compares two PeerData by name only; peer equality is the name.
func (p PeerData) SameName(o PeerData) bool {
	return p.PeerName.Equal(o.PeerName)
}

// EntryAspect is one immutable unit of content under an Entry.
type EntryAspect struct {
	AspectAddress AspectHash `msgpack:"aspect_address"`
	TypeHint      string     `msgpack:"type_hint"`
	AspectBytes   []byte     `msgpack:"aspect_bytes"`
	PublishTsMs   int64      `msgpack:"publish_ts_ms"`
}

// IsShallow reports whether this aspect is a content-less reference.
func (a EntryAspect) IsShallow() bool {
	return len(a.AspectBytes) == 0
}

// Entry is a content-addressed bundle of aspects, unique by AspectAddress,
// growing only by union.
type Entry struct {
	EntryAddress EntryHash     `msgpack:"entry_address"`
	Aspects      []EntryAspect `msgpack:"aspects"`
}

// AspectAddresses returns the set of addresses carried by this entry.
func (e Entry) AspectAddresses() map[AspectHash]struct{} {
	out := make(map[AspectHash]struct{}, len(e.Aspects))
	for _, a := range e.Aspects {
		out[a.AspectAddress] = struct{}{}
	}
	return out
}

// IsShallowReference reports whether the entry is a bare address reference:
// a non-empty aspect list whose first aspect carries no bytes.
func (e Entry) IsShallowReference() bool {
	return len(e.Aspects) > 0 && e.Aspects[0].IsShallow()
}

// NewAspects returns the aspects in incoming that are not already present
// by address in e, preserving incoming's order.
func (e Entry) NewAspects(incoming []EntryAspect) []EntryAspect {
	known := e.AspectAddresses()
	var fresh []EntryAspect
	for _, a := range incoming {
		if _, ok := known[a.AspectAddress]; !ok {
			fresh = append(fresh, a)
		}
	}
	return fresh
}
