package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/agora/internal/model"
	"github.com/agora/internal/store"
)

func startHub(t *testing.T, st *store.Store, maxConns int) (*Hub, string, context.CancelFunc) {
	t.Helper()
	hub := NewHub(st, maxConns)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		cctx, ccancel := context.WithCancel(context.Background())
		c := NewClient(hub, conn, r.RemoteAddr)
		c.Start(cctx, ccancel)
		hub.Register(c)
	}))
	t.Cleanup(func() {
		cancel()
		<-hub.done
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http"), cancel
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

type frame struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func read(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f frame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("read: %v", err)
	}
	return f
}

func readState(t *testing.T, conn *websocket.Conn) store.State {
	t.Helper()
	for {
		f := read(t, conn)
		if f.Type != EventState {
			continue
		}
		var st store.State
		if err := json.Unmarshal(f.Payload, &st); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return st
	}
}

func waitCount(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Count() != want {
		if time.Now().After(deadline) {
			t.Fatalf("Count = %d, want %d", hub.Count(), want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHub_SnapshotThenCommands(t *testing.T) {
	st := store.New()
	st.AddPlannedChat(model.PlannedChat{ID: 7, InviteCode: "abc"})
	_, url, _ := startHub(t, st, 4)
	conn := dial(t, url)

	first := readState(t, conn)
	if c, ok := first.PlannedChat(7); !ok || c.IsMinimized {
		t.Fatalf("first snapshot floater = %+v, %v", c, ok)
	}

	if err := conn.WriteJSON(IncomingMessage{Type: EventToggleMinimize, SessionID: 7}); err != nil {
		t.Fatal(err)
	}
	next := readState(t, conn)
	if c, _ := next.PlannedChat(7); !c.IsMinimized {
		t.Fatal("toggle not applied")
	}
	if next.Version <= first.Version {
		t.Fatalf("version %d after %d", next.Version, first.Version)
	}

	if err := conn.WriteJSON(IncomingMessage{Type: EventToggleMinimize, SessionID: 99}); err != nil {
		t.Fatal(err)
	}
	if f := read(t, conn); f.Type != EventError {
		t.Fatalf("frame %s, want error", f.Type)
	}

	if err := conn.WriteJSON(IncomingMessage{Type: EventRemoveFloater, SessionID: 7}); err != nil {
		t.Fatal(err)
	}
	if _, ok := readState(t, conn).PlannedChat(7); ok {
		t.Fatal("floater not removed")
	}
}

func TestHub_ConnectionLimit(t *testing.T) {
	hub, url, _ := startHub(t, store.New(), 1)
	first := dial(t, url)
	readState(t, first)
	waitCount(t, hub, 1)

	second := dial(t, url)
	_ = second.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := second.ReadMessage(); err == nil {
		t.Fatal("viewer over the limit got a frame")
	}
	if hub.Count() != 1 {
		t.Fatalf("Count = %d", hub.Count())
	}
}

func TestHub_ShutdownClosesViewers(t *testing.T) {
	hub, url, cancel := startHub(t, store.New(), 4)
	conn := dial(t, url)
	readState(t, conn)
	waitCount(t, hub, 1)

	cancel()
	<-hub.done
	if hub.Count() != 0 {
		t.Fatalf("Count = %d after shutdown", hub.Count())
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
