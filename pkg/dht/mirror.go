package dht

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jabolina/lib3h-go/internal/obs"
	"github.com/jabolina/lib3h-go/pkg/actor"
	"github.com/jabolina/lib3h-go/pkg/protocol"
	"github.com/jabolina/lib3h-go/pkg/uri"
)

// Config configures one MirrorDht instance: how often it re-advertises
// itself and how stale a peer may go before being flagged.
type Config struct {
	GossipInterval   time.Duration
	TimeoutThreshold time.Duration
}

// DefaultConfig is the stock gossip/liveness tuning.
func DefaultConfig() Config {
	return Config{
		GossipInterval:   100 * time.Millisecond,
		TimeoutThreshold: 1000 * time.Millisecond,
	}
}

// entryState is the DHT's per-entry bookkeeping: the set of known aspect
// addresses plus the full aspects so RequestEntry can answer with bodies.
type entryState struct {
	aspects map[protocol.AspectHash]protocol.EntryAspect
}

func newEntryState() *entryState {
	return &entryState{aspects: make(map[protocol.AspectHash]protocol.EntryAspect)}
}

// MirrorDht is a full-replication DHT for one identity domain: every
// member ends up holding every entry, converging by monotonic union, with
// peers flagged (never removed) when their freshness timestamp goes
// stale.
type MirrorDht struct {
	log    *logrus.Entry
	config Config

	peerMap     map[string]protocol.PeerData
	timedOutMap map[string]bool
	entryMap    map[protocol.EntryHash]*entryState
	thisPeer    protocol.PeerData

	lastSelfGossip time.Time
	now            func() time.Time

	parentEndpoint *actor.Endpoint
	childEndpoint  *actor.Endpoint
	metrics        *obs.Metrics
}

// New builds a MirrorDht for thisPeer and wraps it, returning the
// ParentWrapper the owner (a Gateway) drives.
func New(name string, thisPeer protocol.PeerData, config Config, log *logrus.Entry, metrics *obs.Metrics) *actor.ParentWrapper {
	parent, child := actor.NewChannel(name, metrics)
	d := &MirrorDht{
		log:            log,
		config:         config,
		peerMap:        make(map[string]protocol.PeerData),
		timedOutMap:    make(map[string]bool),
		entryMap:       make(map[protocol.EntryHash]*entryState),
		thisPeer:       thisPeer,
		now:            time.Now,
		parentEndpoint: parent,
		childEndpoint:  child,
		metrics:        metrics,
	}
	d.peerMap[thisPeer.PeerName.String()] = thisPeer
	d.timedOutMap[thisPeer.PeerName.String()] = false
	return actor.Wrap(d)
}

// TakeParentEndpoint implements actor.Actor.
func (d *MirrorDht) TakeParentEndpoint() *actor.Endpoint {
	ep := d.parentEndpoint
	d.parentEndpoint = nil
	return ep
}

// peersExceptSelf snapshots every known peer URI other than thisPeer,
// taken *before* any insertion so a newly admitted peer never receives
// gossip about itself.
func (d *MirrorDht) peersExceptSelf() []uri.Uri {
	var out []uri.Uri
	selfName := d.thisPeer.PeerName.String()
	for name, p := range d.peerMap {
		if name == selfName {
			continue
		}
		out = append(out, p.PeerLocation)
	}
	return out
}

func (d *MirrorDht) emitGossipTo(kind GossipToKind, peers []uri.Uri, bundle []byte) {
	if len(peers) == 0 {
		return
	}
	if d.metrics != nil {
		d.metrics.DhtGossipSent.WithLabelValues(string(kind)).Inc()
	}
	_ = d.childEndpoint.Publish(actor.NewSpan("mirror-dht"), GossipTo{Kind: kind, Peers: peers, Bundle: bundle})
}

// ProcessConcrete implements actor.Actor: drains inbound command frames,
// dispatches them, then runs the per-tick liveness/self-gossip sweep.
func (d *MirrorDht) ProcessConcrete() (bool, error) {
	frames := d.childEndpoint.DrainMessages()
	workDone := len(frames) > 0
	for _, f := range frames {
		d.dispatch(f)
	}
	if d.tick() {
		workDone = true
	}
	d.refreshGauges()
	return workDone, nil
}

func (d *MirrorDht) refreshGauges() {
	if d.metrics == nil {
		return
	}
	d.metrics.DhtPeersHeld.Set(float64(len(d.peerMap)))
	timedOut := 0
	for _, v := range d.timedOutMap {
		if v {
			timedOut++
		}
	}
	d.metrics.DhtPeersTimedOut.Set(float64(timedOut))
}

func (d *MirrorDht) dispatch(f actor.Frame) {
	switch cmd := f.Payload.(type) {
	case HoldPeer:
		d.holdPeer(cmd.Peer)
	case HoldEntryAspectAddress:
		d.holdEntryAspectAddress(cmd.Entry)
	case BroadcastEntry:
		d.broadcastEntry(cmd.Entry)
	case HandleGossip:
		d.handleGossip(cmd)
	case DropEntryAddress:
		// no-op: monotonic DHT never forgets content.
	case UpdateAdvertise:
		d.thisPeer.PeerLocation = cmd.URI
		d.peerMap[d.thisPeer.PeerName.String()] = d.thisPeer
	case RequestPeer:
		p, ok := d.peerMap[cmd.PeerName.String()]
		d.respond(f, PeerView{Peer: p, Found: ok}, nil)
	case RequestPeerList:
		d.respond(f, PeerListView{Peers: d.allPeers()}, nil)
	case RequestThisPeer:
		d.respond(f, d.thisPeer, nil)
	case RequestEntryAddressList:
		d.respond(f, EntryAddressListView{Addresses: d.allEntryAddresses()}, nil)
	case RequestAspectsOf:
		d.respond(f, AspectsView{Aspects: d.aspectsOf(cmd.EntryAddress)}, nil)
	case RequestEntry:
		d.requestEntry(f, cmd)
	default:
		d.log.Warnf("mirror dht: unhandled command %#v", cmd)
	}
}

func (d *MirrorDht) respond(f actor.Frame, ok interface{}, err error) {
	if f.Kind != actor.FrameRequest {
		return
	}
	_ = d.childEndpoint.Respond(f.Span, f.CorrID, actor.Result{Ok: ok, Err: err})
}

func (d *MirrorDht) allPeers() []protocol.PeerData {
	out := make([]protocol.PeerData, 0, len(d.peerMap))
	for _, p := range d.peerMap {
		out = append(out, p)
	}
	return out
}

func (d *MirrorDht) allEntryAddresses() []protocol.EntryHash {
	out := make([]protocol.EntryHash, 0, len(d.entryMap))
	for addr := range d.entryMap {
		out = append(out, addr)
	}
	return out
}

func (d *MirrorDht) aspectsOf(entryAddr protocol.EntryHash) []protocol.AspectHash {
	st, ok := d.entryMap[entryAddr]
	if !ok {
		return nil
	}
	out := make([]protocol.AspectHash, 0, len(st.aspects))
	for addr := range st.aspects {
		out = append(out, addr)
	}
	return out
}

func (d *MirrorDht) requestEntry(f actor.Frame, cmd RequestEntry) {
	st, ok := d.entryMap[cmd.EntryAddress]
	if ok && d.hasRealContent(st) {
		d.respond(f, EntryView{Entry: entryFromState(cmd.EntryAddress, st), Found: true}, nil)
		return
	}
	// Forward upward to the parent to fetch real content, relaying the
	// parent's answer back as this request's own response.
	span := f.Span.WithFrame("mirror-dht-forward")
	corrID := f.CorrID
	err := d.childEndpoint.Request(span, RequestEntry{EntryAddress: cmd.EntryAddress}, func(r actor.Result) {
		if r.IsErr() {
			_ = d.childEndpoint.Respond(span, corrID, actor.Result{Err: r.Err})
			return
		}
		_ = d.childEndpoint.Respond(span, corrID, actor.Result{Ok: r.Ok})
	})
	if err != nil {
		d.respond(f, nil, err)
	}
}

func (d *MirrorDht) hasRealContent(st *entryState) bool {
	for _, a := range st.aspects {
		if !a.IsShallow() {
			return true
		}
	}
	return len(st.aspects) == 0
}

func entryFromState(addr protocol.EntryHash, st *entryState) protocol.Entry {
	e := protocol.Entry{EntryAddress: addr}
	for _, a := range st.aspects {
		e.Aspects = append(e.Aspects, a)
	}
	return e
}

// holdPeer admits or refreshes a peer: only strictly newer timestamps
// replace stored info, an admitted peer is gossiped to everyone who knew
// us before it arrived, and the newcomer is told about us in return.
func (d *MirrorDht) holdPeer(p protocol.PeerData) {
	name := p.PeerName.String()
	stored, known := d.peerMap[name]
	if known && stored.TimestampMs >= p.TimestampMs {
		return // older-or-equal info is rejected except for strictly-newer updates
	}

	recipients := d.peersExceptSelf() // snapshot before insertion; the newcomer is excluded
	d.peerMap[name] = p
	d.timedOutMap[name] = false

	bundle, err := protocol.EncodeBundle(protocol.GossipBundle{Kind: protocol.BundlePeer, Peer: &p})
	if err != nil {
		d.log.Errorf("mirror dht: encode peer gossip bundle: %v", err)
		return
	}
	d.emitGossipTo(GossipKindPeer, recipients, bundle)

	if name != d.thisPeer.PeerName.String() {
		selfBundle, err := protocol.EncodeBundle(protocol.GossipBundle{Kind: protocol.BundlePeer, Peer: &d.thisPeer})
		if err != nil {
			d.log.Errorf("mirror dht: encode self gossip bundle: %v", err)
			return
		}
		d.emitGossipTo(GossipKindPeer, []uri.Uri{p.PeerLocation}, selfBundle)
	}
}

// holdEntryAspectAddress merges an entry reference into the entry map. A
// shallow reference (addresses without bytes) short-circuits into a
// RequestEntry so the real content gets fetched first.
func (d *MirrorDht) holdEntryAspectAddress(e protocol.Entry) {
	if e.IsShallowReference() {
		_ = d.childEndpoint.Publish(actor.NewSpan("mirror-dht"), RequestEntry{EntryAddress: e.EntryAddress})
		return
	}
	d.mergeAndGossip(e)
}

// broadcastEntry is holdEntryAspectAddress minus the shallow-reference
// shortcut: locally authored content always carries its bytes.
func (d *MirrorDht) broadcastEntry(e protocol.Entry) {
	d.mergeAndGossip(e)
}

func (d *MirrorDht) mergeAndGossip(e protocol.Entry) {
	st, ok := d.entryMap[e.EntryAddress]
	if !ok {
		st = newEntryState()
	}
	existing := entryFromState(e.EntryAddress, st)
	fresh := existing.NewAspects(e.Aspects)
	if len(fresh) == 0 {
		return
	}
	for _, a := range fresh {
		st.aspects[a.AspectAddress] = a
	}
	d.entryMap[e.EntryAddress] = st

	_ = d.childEndpoint.Publish(actor.NewSpan("mirror-dht"), EntryAspectsHeld{
		Entry:      entryFromState(e.EntryAddress, st),
		NewAspects: fresh,
	})

	bundle, err := protocol.EncodeBundle(protocol.GossipBundle{Kind: protocol.BundleEntry, Entry: &e})
	if err != nil {
		d.log.Errorf("mirror dht: encode entry gossip bundle: %v", err)
		return
	}
	d.emitGossipTo(GossipKindEntry, d.peersExceptSelf(), bundle)
}

// handleGossip dispatches one gossip bundle received from another peer.
func (d *MirrorDht) handleGossip(g HandleGossip) {
	bundle, err := protocol.DecodeBundle(g.Bundle)
	if err != nil {
		d.log.Errorf("mirror dht: decode gossip bundle from %s: %v", g.From.PeerName, err)
		return
	}
	switch bundle.Kind {
	case protocol.BundlePeer:
		d.handleGossipPeer(*bundle.Peer)
	case protocol.BundleEntry:
		d.handleGossipEntry(*bundle.Entry)
	default:
		d.log.Warnf("mirror dht: unknown gossip bundle kind %d", bundle.Kind)
	}
}

func (d *MirrorDht) handleGossipPeer(p protocol.PeerData) {
	name := p.PeerName.String()
	stored, known := d.peerMap[name]
	if !known {
		_ = d.childEndpoint.Publish(actor.NewSpan("mirror-dht"), HoldPeerRequested{Peer: p})
		return
	}
	if p.TimestampMs > stored.TimestampMs {
		stored.TimestampMs = p.TimestampMs
		d.peerMap[name] = stored
	}
}

func (d *MirrorDht) handleGossipEntry(e protocol.Entry) {
	st, ok := d.entryMap[e.EntryAddress]
	if !ok {
		st = newEntryState()
	}
	existing := entryFromState(e.EntryAddress, st)
	fresh := existing.NewAspects(e.Aspects)
	if len(fresh) == 0 {
		return // subset of what's already stored: no HoldEntryRequested emitted
	}
	_ = d.childEndpoint.Publish(actor.NewSpan("mirror-dht"), HoldEntryRequested{FromSelf: false, Entry: e})
}

// tick runs the per-tick work: liveness sweep then periodic self-gossip.
func (d *MirrorDht) tick() bool {
	workDone := false
	now := d.now()
	selfName := d.thisPeer.PeerName.String()
	for name, p := range d.peerMap {
		if name == selfName {
			continue
		}
		if d.timedOutMap[name] {
			continue
		}
		if now.Sub(time.UnixMilli(p.TimestampMs)) > d.config.TimeoutThreshold {
			d.timedOutMap[name] = true
			_ = d.childEndpoint.Publish(actor.NewSpan("mirror-dht"), PeerTimedOut{PeerName: p.PeerName})
			workDone = true
		}
	}

	if now.Sub(d.lastSelfGossip) > d.config.GossipInterval {
		d.lastSelfGossip = now
		recipients := d.peersExceptSelf()
		if len(recipients) > 0 {
			bundle, err := protocol.EncodeBundle(protocol.GossipBundle{Kind: protocol.BundlePeer, Peer: &d.thisPeer})
			if err != nil {
				d.log.Errorf("mirror dht: encode self-gossip bundle: %v", err)
			} else {
				d.emitGossipTo(GossipKindPeer, recipients, bundle)
				workDone = true
			}
		}
	}
	return workDone
}
