package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type testServer struct {
	srv   *httptest.Server
	conns chan *websocket.Conn
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{conns: make(chan *websocket.Conn, 8)}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	ts.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ts.conns <- conn
	}))
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *testServer) url() string {
	return "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws"
}

func (ts *testServer) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-ts.conns:
		t.Cleanup(func() { c.Close() })
		return c
	case <-time.After(3 * time.Second):
		t.Fatal("no connection accepted")
		return nil
	}
}

func readEnvelope(t *testing.T, c *websocket.Conn) Envelope {
	t.Helper()
	if err := c.SetReadDeadline(time.Now().Add(3 * time.Second)); err != nil {
		t.Fatalf("set deadline: %v", err)
	}
	_, raw, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("server read: %v", err)
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("unmarshal %s: %v", raw, err)
	}
	return env
}

func waitSignal(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func signalOn(s Socket, event EventType) <-chan struct{} {
	ch := make(chan struct{}, 8)
	s.On(event, func(json.RawMessage) {
		select {
		case ch <- struct{}{}:
		default:
		}
	})
	return ch
}

func TestClient_JoinRoomBeforeConnect(t *testing.T) {
	c := NewClient(Options{URL: "ws://127.0.0.1:1/ws"})
	if err := c.JoinRoom(ScopeSession, 1); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("JoinRoom err = %v, want ErrNotConnected", err)
	}
	if err := c.Emit(EventCheckUserOnline, CheckUserOnlinePayload{SessionToken: "x"}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Emit err = %v, want ErrNotConnected", err)
	}
	if c.IsConnected() {
		t.Fatal("IsConnected before Connect")
	}
}

func TestClient_ReceivesEventsAndEmitsJoin(t *testing.T) {
	ts := newTestServer(t)
	c := NewClient(Options{URL: ts.url()})
	connected := signalOn(c, EventConnected)

	got := make(chan StartChatPayload, 1)
	c.On(EventStartChat, func(raw json.RawMessage) {
		p, err := Decode[StartChatPayload](raw)
		if err == nil {
			got <- p
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	// second call is a no-op
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect again: %v", err)
	}
	srv := ts.accept(t)
	waitSignal(t, connected, "connect")

	if err := c.JoinRoom(ScopeSession, 42); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
	env := readEnvelope(t, srv)
	if env.Type != EventJoinSession {
		t.Fatalf("server got %s, want join_session", env.Type)
	}
	p, _ := Decode[SessionRoomPayload](env.Payload)
	if p.SessionID != 42 {
		t.Fatalf("session_id = %d, want 42", p.SessionID)
	}

	frame := `{"type":"start_chat","payload":{"session_id":42,"user1_username":"A","user2_username":"B"}}`
	if err := srv.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatalf("server write: %v", err)
	}
	select {
	case sc := <-got:
		if sc.SessionID != 42 || sc.User2Username != "B" {
			t.Fatalf("unexpected payload %+v", sc)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("start_chat not dispatched")
	}

	c.Disconnect()
	c.Wait()
	if c.IsConnected() {
		t.Fatal("still connected after Disconnect")
	}
}

func TestClient_ServerKickReconnectsAndRejoins(t *testing.T) {
	ts := newTestServer(t)
	c := NewClient(Options{URL: ts.url(), ReconnectDelay: 10 * time.Millisecond})
	connected := signalOn(c, EventConnected)
	reconnected := signalOn(c, EventReconnect)

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		c.Disconnect()
		cancel()
		c.Wait()
	}()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	first := ts.accept(t)
	waitSignal(t, connected, "connect")
	if err := c.JoinRoom(ScopeChatroom, 7); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
	readEnvelope(t, first)

	msg := websocket.FormatCloseMessage(CloseServerKick, "kicked")
	if err := first.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil {
		t.Fatalf("write close: %v", err)
	}

	second := ts.accept(t)
	waitSignal(t, reconnected, "reconnect")
	env := readEnvelope(t, second)
	if env.Type != EventJoinChatroom {
		t.Fatalf("after reconnect server got %s, want join_chatroom", env.Type)
	}
	p, _ := Decode[ChatroomRoomPayload](env.Payload)
	if p.ChatroomID != 7 {
		t.Fatalf("chatroom_id = %d, want 7", p.ChatroomID)
	}
}

func TestClient_ReconnectFailedAfterAttemptCap(t *testing.T) {
	ts := newTestServer(t)
	url := ts.url()
	ts.srv.Close()

	c := NewClient(Options{
		URL:               url,
		ReconnectAttempts: 2,
		ReconnectDelay:    5 * time.Millisecond,
		ReconnectDelayMax: 10 * time.Millisecond,
	})
	failed := signalOn(c, EventReconnectFailed)
	attempts := 0
	c.On(EventReconnectAttempt, func(json.RawMessage) { attempts++ })

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	waitSignal(t, failed, "reconnect_failed")
	c.Wait()
	if attempts != 2 {
		t.Fatalf("reconnect attempts = %d, want 2", attempts)
	}
	if c.IsConnected() {
		t.Fatal("connected to a closed server")
	}
}

func TestClient_Backoff(t *testing.T) {
	c := NewClient(Options{URL: "ws://x", ReconnectDelay: time.Second, ReconnectDelayMax: 5 * time.Second})
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for i, w := range want {
		if got := c.backoff(i + 1); got != w {
			t.Errorf("backoff(%d) = %v, want %v", i+1, got, w)
		}
	}
}
