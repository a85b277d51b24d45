// Package transport defines the abstract bind/send/receive contract a
// Gateway consumes, plus a minimal in-memory implementation used by tests
// and the demo CLI. Production transports (TLS/WebSocket, mDNS discovery)
// live outside this module and plug into the same contract.
package transport

import (
	"errors"

	"github.com/jabolina/lib3h-go/pkg/uri"
)

// ErrNotBound is returned by SendMessage when issued against a transport
// that has never completed Bind.
var ErrNotBound = errors.New("Transport must be bound before sending")

// ErrorKind classifies a transport-level error event.
type ErrorKind int

const (
	ErrorKindOther ErrorKind = iota
	ErrorKindUnbind
)

// Downward commands, owner -> transport.

// Bind asks the transport to bind the given spec URI.
type Bind struct {
	SpecURI uri.Uri
}

// BindResult answers Bind with the concrete bound URI.
type BindResult struct {
	BoundURI uri.Uri
}

// Unbind asks the transport to release its bound address. The transport
// reports the release as an ErrorOccured event with ErrorKindUnbind, which
// the owning gateway surfaces as a user-visible Unbound event.
type Unbind struct{}

// SendMessage asks the transport to deliver payload to the low-level URI.
type SendMessage struct {
	URI     uri.Uri
	Payload []byte
}

// SendMessageSuccess answers a successful SendMessage.
type SendMessageSuccess struct{}

// Upward events, transport -> owner.

// IncomingConnection signals a new inbound connection from uri.
type IncomingConnection struct {
	URI uri.Uri
}

// ReceivedData delivers a payload received from uri.
type ReceivedData struct {
	URI     uri.Uri
	Payload []byte
}

// Disconnect signals that uri's connection closed.
type Disconnect struct {
	URI uri.Uri
}

// ErrorOccured reports a transport-level error for uri. The gateway treats
// ErrorKindUnbind specially, surfacing a user-visible Unbound event.
type ErrorOccured struct {
	URI  uri.Uri
	Kind ErrorKind
	Err  error
}
