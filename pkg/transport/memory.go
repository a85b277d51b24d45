package transport

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/jabolina/lib3h-go/pkg/actor"
	"github.com/jabolina/lib3h-go/pkg/uri"
)

// globalBindTable is the process-global in-memory transport registry,
// guarded by a mutex and lifecycle-bound to the host process. Each bound
// address maps to the instance currently owning it.
var globalBindTable = struct {
	mu    sync.Mutex
	binds map[string]*Memory
}{binds: make(map[string]*Memory)}

// globalIDCounter backs unbound/anonymous memory addresses.
var globalIDCounter = struct {
	mu sync.Mutex
	n  uint64
}{}

func nextID() uint64 {
	globalIDCounter.mu.Lock()
	defer globalIDCounter.mu.Unlock()
	globalIDCounter.n++
	return globalIDCounter.n
}

// ResetGlobalState clears the bind table and id counter, giving tests an
// isolated namespace per case.
func ResetGlobalState() {
	globalBindTable.mu.Lock()
	globalBindTable.binds = make(map[string]*Memory)
	globalBindTable.mu.Unlock()
	globalIDCounter.mu.Lock()
	globalIDCounter.n = 0
	globalIDCounter.mu.Unlock()
}

type inboundMsg struct {
	from    uri.Uri
	payload []byte
}

// Memory is an in-memory Transport implementation: sends are delivered
// synchronously into the destination instance's inbox, and ReceivedData
// events surface on the destination's next ProcessConcrete tick.
type Memory struct {
	log      *logrus.Entry
	boundURI uri.Uri
	seen     map[string]bool // peers we have already announced IncomingConnection for

	inboxMu sync.Mutex
	inbox   []inboundMsg

	parentEndpoint *actor.Endpoint
	childEndpoint  *actor.Endpoint
}

// NewMemory constructs an unbound in-memory transport.
func NewMemory(log *logrus.Entry) *actor.ParentWrapper {
	parent, child := actor.NewChannel("mem-transport", nil)
	m := &Memory{
		log:            log,
		seen:           make(map[string]bool),
		parentEndpoint: parent,
		childEndpoint:  child,
	}
	return actor.Wrap(m)
}

// TakeParentEndpoint implements actor.Actor.
func (m *Memory) TakeParentEndpoint() *actor.Endpoint {
	ep := m.parentEndpoint
	m.parentEndpoint = nil
	return ep
}

// ProcessConcrete implements actor.Actor.
func (m *Memory) ProcessConcrete() (bool, error) {
	frames := m.childEndpoint.DrainMessages()
	workDone := len(frames) > 0
	for _, f := range frames {
		m.dispatch(f)
	}
	if m.deliverInbox() {
		workDone = true
	}
	return workDone, nil
}

func (m *Memory) dispatch(f actor.Frame) {
	switch cmd := f.Payload.(type) {
	case Bind:
		m.bind(f, cmd)
	case Unbind:
		m.unbind(f)
	case SendMessage:
		m.send(f, cmd)
	default:
		m.log.Warnf("memory transport: unhandled command %#v", cmd)
	}
}

func (m *Memory) bind(f actor.Frame, cmd Bind) {
	bound := cmd.SpecURI
	if bound.Host() == "" {
		bound = uri.Build(uri.SchemeMem, fmt.Sprintf("anon-%d", nextID()), 0)
	}
	key := bound.String()

	globalBindTable.mu.Lock()
	if existing, ok := globalBindTable.binds[key]; ok && existing != m {
		globalBindTable.mu.Unlock()
		if f.Kind == actor.FrameRequest {
			_ = m.childEndpoint.Respond(f.Span, f.CorrID, actor.Result{Err: fmt.Errorf("memory transport: address %s already bound", key)})
		}
		return
	}
	globalBindTable.binds[key] = m
	globalBindTable.mu.Unlock()

	m.boundURI = bound
	if f.Kind == actor.FrameRequest {
		_ = m.childEndpoint.Respond(f.Span, f.CorrID, actor.Result{Ok: BindResult{BoundURI: bound}})
	}
}

func (m *Memory) unbind(f actor.Frame) {
	if m.boundURI.Empty() {
		if f.Kind == actor.FrameRequest {
			_ = m.childEndpoint.Respond(f.Span, f.CorrID, actor.Result{Err: ErrNotBound})
		}
		return
	}
	released := m.boundURI
	globalBindTable.mu.Lock()
	delete(globalBindTable.binds, released.String())
	globalBindTable.mu.Unlock()
	m.boundURI = uri.Uri{}

	_ = m.childEndpoint.Publish(actor.NewSpan("mem-transport"), ErrorOccured{
		URI:  released,
		Kind: ErrorKindUnbind,
		Err:  errors.New("memory transport: unbound"),
	})
	if f.Kind == actor.FrameRequest {
		_ = m.childEndpoint.Respond(f.Span, f.CorrID, actor.Result{Ok: BindResult{BoundURI: released}})
	}
}

func (m *Memory) send(f actor.Frame, cmd SendMessage) {
	if m.boundURI.Empty() {
		if f.Kind == actor.FrameRequest {
			_ = m.childEndpoint.Respond(f.Span, f.CorrID, actor.Result{Err: ErrNotBound})
		}
		return
	}
	globalBindTable.mu.Lock()
	dest, ok := globalBindTable.binds[cmd.URI.String()]
	globalBindTable.mu.Unlock()
	if !ok {
		err := fmt.Errorf("memory transport: no bound peer at %s", cmd.URI.String())
		if f.Kind == actor.FrameRequest {
			_ = m.childEndpoint.Respond(f.Span, f.CorrID, actor.Result{Err: err})
		}
		return
	}

	dest.inboxMu.Lock()
	dest.inbox = append(dest.inbox, inboundMsg{from: m.boundURI, payload: cmd.Payload})
	dest.inboxMu.Unlock()

	if f.Kind == actor.FrameRequest {
		_ = m.childEndpoint.Respond(f.Span, f.CorrID, actor.Result{Ok: SendMessageSuccess{}})
	}
}

func (m *Memory) deliverInbox() bool {
	m.inboxMu.Lock()
	pending := m.inbox
	m.inbox = nil
	m.inboxMu.Unlock()
	if len(pending) == 0 {
		return false
	}
	for _, msg := range pending {
		if !m.seen[msg.from.String()] {
			m.seen[msg.from.String()] = true
			_ = m.childEndpoint.Publish(actor.NewSpan("mem-transport"), IncomingConnection{URI: msg.from})
		}
		_ = m.childEndpoint.Publish(actor.NewSpan("mem-transport"), ReceivedData{URI: msg.from, Payload: msg.payload})
	}
	return true
}

// LocalURI returns the transport's bound address, or the empty Uri if
// unbound.
func (m *Memory) LocalURI() uri.Uri {
	return m.boundURI
}
