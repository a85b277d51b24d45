package transport

import (
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/jabolina/lib3h-go/pkg/actor"
	"github.com/jabolina/lib3h-go/pkg/uri"
)

func bindMemory(t *testing.T, name string) (*actor.ParentWrapper, uri.Uri) {
	t.Helper()
	w := NewMemory(logrus.NewEntry(logrus.New()))
	var bound uri.Uri
	err := w.Endpoint().Request(actor.NewSpan("test"), Bind{SpecURI: uri.Build(uri.SchemeMem, name, 0)}, func(r actor.Result) {
		if r.IsErr() {
			t.Fatalf("bind %s: %v", name, r.Err)
		}
		bound = r.Ok.(BindResult).BoundURI
	})
	if err != nil {
		t.Fatalf("bind request %s: %v", name, err)
	}
	w.Process()
	w.Process()
	if bound.String() == "" {
		t.Fatalf("bind %s never resolved", name)
	}
	return w, bound
}

func TestBindSendReceiveRoundTrip(t *testing.T) {
	ResetGlobalState()
	t.Cleanup(ResetGlobalState)

	alice, aliceURI := bindMemory(t, "alice")
	bob, bobURI := bindMemory(t, "bob")

	err := alice.Endpoint().Request(actor.NewSpan("test"), SendMessage{URI: bobURI, Payload: []byte("hi bob")}, func(r actor.Result) {
		if r.IsErr() {
			t.Fatalf("send: %v", r.Err)
		}
	})
	if err != nil {
		t.Fatalf("send request: %v", err)
	}
	alice.Process()
	alice.Process()

	bob.Process()
	frames := bob.DrainMessages()
	var sawIncoming, sawData bool
	for _, f := range frames {
		switch ev := f.Payload.(type) {
		case IncomingConnection:
			if ev.URI.String() == aliceURI.String() {
				sawIncoming = true
			}
		case ReceivedData:
			if ev.URI.String() == aliceURI.String() && string(ev.Payload) == "hi bob" {
				sawData = true
			}
		}
	}
	if !sawIncoming {
		t.Fatalf("expected IncomingConnection from alice, got %+v", frames)
	}
	if !sawData {
		t.Fatalf("expected ReceivedData with alice's payload, got %+v", frames)
	}
}

func TestSendToUnboundAddressFails(t *testing.T) {
	ResetGlobalState()
	t.Cleanup(ResetGlobalState)

	alice, _ := bindMemory(t, "alice")

	var gotErr error
	err := alice.Endpoint().Request(actor.NewSpan("test"), SendMessage{URI: uri.Build(uri.SchemeMem, "nobody", 0), Payload: []byte("x")}, func(r actor.Result) {
		gotErr = r.Err
	})
	if err != nil {
		t.Fatalf("send request: %v", err)
	}
	alice.Process()
	alice.Process()
	if gotErr == nil {
		t.Fatalf("expected an error sending to an unbound address")
	}
}

func TestSendBeforeBindFails(t *testing.T) {
	ResetGlobalState()
	t.Cleanup(ResetGlobalState)

	w := NewMemory(logrus.NewEntry(logrus.New()))
	var gotErr error
	err := w.Endpoint().Request(actor.NewSpan("test"), SendMessage{URI: uri.Build(uri.SchemeMem, "nobody", 0), Payload: []byte("x")}, func(r actor.Result) {
		gotErr = r.Err
	})
	if err != nil {
		t.Fatalf("send request: %v", err)
	}
	w.Process()
	w.Process()
	if gotErr == nil || gotErr.Error() != "Transport must be bound before sending" {
		t.Fatalf("got error %v, want ErrNotBound", gotErr)
	}
}

func TestResetGlobalStateFreesAddressForRebind(t *testing.T) {
	ResetGlobalState()
	t.Cleanup(ResetGlobalState)

	first := NewMemory(logrus.NewEntry(logrus.New()))
	var firstErr error
	_ = first.Endpoint().Request(actor.NewSpan("test"), Bind{SpecURI: uri.Build(uri.SchemeMem, "dup", 0)}, func(r actor.Result) {
		firstErr = r.Err
	})
	first.Process()
	first.Process()
	if firstErr != nil {
		t.Fatalf("first bind: %v", firstErr)
	}

	second := NewMemory(logrus.NewEntry(logrus.New()))
	var secondErr error
	_ = second.Endpoint().Request(actor.NewSpan("test"), Bind{SpecURI: uri.Build(uri.SchemeMem, "dup", 0)}, func(r actor.Result) {
		secondErr = r.Err
	})
	second.Process()
	second.Process()
	if secondErr == nil {
		t.Fatalf("expected a duplicate-bind error before reset")
	}

	ResetGlobalState()

	third := NewMemory(logrus.NewEntry(logrus.New()))
	var thirdErr error
	_ = third.Endpoint().Request(actor.NewSpan("test"), Bind{SpecURI: uri.Build(uri.SchemeMem, "dup", 0)}, func(r actor.Result) {
		thirdErr = r.Err
	})
	third.Process()
	third.Process()
	if thirdErr != nil {
		t.Fatalf("bind after reset: %v", thirdErr)
	}
}
