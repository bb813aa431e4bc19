package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"worldsim.ai/internal/protocol"
	"worldsim.ai/internal/sim/narrative"
)

type fakeSource struct{ log *narrative.Log }

func (f fakeSource) Log() *narrative.Log { return f.log }
func (f fakeSource) WorldID() string     { return "w1" }
func (f fakeSource) Epoch() int64        { return 7 }
func (f fakeSource) Running() bool       { return true }

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) (protocol.BaseMessage, []byte) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return base, msg
}

func readEntry(t *testing.T, conn *websocket.Conn) narrative.Entry {
	t.Helper()
	base, msg := read(t, conn)
	if base.Type != protocol.TypeLog {
		t.Fatalf("expected LOG, got %s", msg)
	}
	var lm protocol.LogMsg
	if err := json.Unmarshal(msg, &lm); err != nil {
		t.Fatal(err)
	}
	var e narrative.Entry
	if err := json.Unmarshal(lm.Entry, &e); err != nil {
		t.Fatal(err)
	}
	return e
}

func TestStream_ReplayThenLive(t *testing.T) {
	ctx := context.Background()
	l := narrative.New(16, nil, nil)
	l.SetWorld(ctx, "w1")
	l.Append(ctx, narrative.Tick(0, 1))
	l.Append(ctx, narrative.Warning(0, protocol.WarnEffect, "ev1", "unknown target"))
	l.Append(ctx, narrative.Tick(1, 1))

	srv := httptest.NewServer(NewServer(fakeSource{log: l}, nil).Handler())
	defer srv.Close()
	conn := dial(t, srv)

	if err := conn.WriteJSON(protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, Kinds: []string{"warning"}, Replay: 10}); err != nil {
		t.Fatal(err)
	}
	base, msg := read(t, conn)
	if base.Type != protocol.TypeWelcome {
		t.Fatalf("expected WELCOME, got %s", msg)
	}
	var welcome protocol.WelcomeMsg
	_ = json.Unmarshal(msg, &welcome)
	if welcome.WorldID != "w1" || welcome.Epoch != 7 || !welcome.Running {
		t.Fatalf("welcome: %+v", welcome)
	}

	e := readEntry(t, conn)
	if e.Kind != narrative.KindWarning || e.Seq != 2 {
		t.Fatalf("replayed: %+v", e)
	}

	// The subscription is registered before WELCOME, so this arrives live.
	l.Append(ctx, narrative.Tick(2, 1))
	l.Append(ctx, narrative.Warning(2, protocol.WarnEffect, "ev2", "bad field"))
	e = readEntry(t, conn)
	if e.Kind != narrative.KindWarning || e.Warning.EventID != "ev2" {
		t.Fatalf("live: %+v", e)
	}
}

func TestStream_RejectsBadHello(t *testing.T) {
	l := narrative.New(4, nil, nil)
	srv := httptest.NewServer(NewServer(fakeSource{log: l}, nil).Handler())
	defer srv.Close()

	for _, hello := range []string{
		`{"type":"SUBSCRIBE"}`,
		`{"type":"HELLO","kinds":["gossip"]}`,
		`{"type":"HELLO","protocol_version":"0.1"}`,
	} {
		conn := dial(t, srv)
		if err := conn.WriteMessage(websocket.TextMessage, []byte(hello)); err != nil {
			t.Fatal(err)
		}
		base, msg := read(t, conn)
		if base.Type != protocol.TypeError {
			t.Fatalf("%s: expected ERROR, got %s", hello, msg)
		}
		var em protocol.ErrorMsg
		_ = json.Unmarshal(msg, &em)
		if em.Code != protocol.ErrInvalidArgument {
			t.Fatalf("%s: code %s", hello, em.Code)
		}
	}
}
