package events

import (
	"context"
	"strings"
	"testing"

	"github.com/agora/internal/model"
	"github.com/agora/internal/store"
	"github.com/agora/internal/transport"
)

func setup(t *testing.T) (*transport.Memory, *store.Store) {
	t.Helper()
	sock := transport.NewMemory()
	st := store.New()
	st.SetIdentity("me", "WiseAthena")
	d := New(sock, st)
	d.Attach()
	d.Attach()
	t.Cleanup(d.Detach)
	if err := sock.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return sock, st
}

func TestDispatcher_StartChatMismatchedID(t *testing.T) {
	sock, st := setup(t)
	st.BeginRandomSearch(42)

	sock.Push(transport.EventStartChat, transport.StartChatPayload{SessionID: 43, User1Username: "A", User2Username: "B"})
	if r := st.Snapshot().Random; r.Status != store.RandomWaiting || r.SessionID != 42 {
		t.Fatalf("random = %+v, want waiting on 42", r)
	}

	sock.Push(transport.EventStartChat, transport.StartChatPayload{SessionID: 42, User1Username: "WiseAthena", User2Username: "Plato"})
	if r := st.Snapshot().Random; r.Status != store.RandomMatched || r.Partner != "Plato" {
		t.Fatalf("random = %+v, want matched with Plato", r)
	}
}

func TestDispatcher_NewMessageRouting(t *testing.T) {
	sock, st := setup(t)
	st.BeginRandomSearch(1)
	sock.Push(transport.EventStartChat, transport.StartChatPayload{SessionID: 1, User1Username: "WiseAthena", User2Username: "Plato"})
	st.AddPlannedChat(model.PlannedChat{ID: 2, IsMinimized: true})

	sock.Push(transport.EventNewMessage, transport.NewMessagePayload{ID: 10, ChatSessionID: 1, SenderSessionToken: "p", SenderUsername: "Plato", Content: "hi"})
	sock.Push(transport.EventNewMessage, transport.NewMessagePayload{ID: 10, ChatSessionID: 1, SenderSessionToken: "p", SenderUsername: "Plato", Content: "hi"})
	sock.Push(transport.EventNewMessage, transport.NewMessagePayload{ID: 11, ChatSessionID: 1, SenderSessionToken: "me", SenderUsername: "WiseAthena", Content: "hey"})
	sock.Push(transport.EventNewMessage, transport.NewMessagePayload{ID: 20, ChatSessionID: 2, SenderSessionToken: "z"})
	sock.Push(transport.EventNewMessage, transport.NewMessagePayload{ID: 30, ChatSessionID: 3, SenderSessionToken: "z"})
	sock.Push(transport.EventNewMessage, transport.NewMessagePayload{ID: 31, ChatSessionID: 3, SenderSessionToken: "me"})

	s := st.Snapshot()
	if n := len(s.Random.Messages); n != 2 {
		t.Fatalf("random log = %d messages, want 2", n)
	}
	if s.Random.Messages[0].IsMe || !s.Random.Messages[1].IsMe {
		t.Fatalf("IsMe flags wrong: %+v", s.Random.Messages)
	}
	c, _ := s.PlannedChat(2)
	if c.UnreadCount != 1 || s.ChatUnreadCounts[2] != 0 {
		t.Fatalf("floater session: floater=%d global=%d", c.UnreadCount, s.ChatUnreadCounts[2])
	}
	if s.ChatUnreadCounts[3] != 1 {
		t.Fatalf("global unread for 3 = %d, want 1", s.ChatUnreadCounts[3])
	}
	if s.ChatUnreadCounts[1] != 0 {
		t.Fatal("random chat messages counted as unread")
	}
}

func TestDispatcher_UserLeftClearsRandomChat(t *testing.T) {
	sock, st := setup(t)
	st.BeginRandomSearch(5)
	sock.Push(transport.EventStartChat, transport.StartChatPayload{SessionID: 5, User1Username: "WiseAthena", User2Username: "Plato"})
	sock.Push(transport.EventNewMessage, transport.NewMessagePayload{ID: 1, ChatSessionID: 5, SenderSessionToken: "p"})

	sock.Push(transport.EventUserLeft, transport.UserLeftPayload{SessionID: 6, Username: "Other"})
	if st.Snapshot().Random.Status != store.RandomMatched {
		t.Fatal("user_left for another session changed random chat")
	}

	sock.Push(transport.EventUserLeft, transport.UserLeftPayload{SessionID: 5, Username: "Plato"})
	s := st.Snapshot()
	if s.Random.Status != store.RandomIdle || len(s.Random.Messages) != 0 {
		t.Fatalf("random = %+v, want idle with empty log", s.Random)
	}
	if s.Notification == nil || s.Notification.Kind != model.NotifyInfo || !strings.Contains(s.Notification.Text, "Plato") {
		t.Fatalf("notification = %+v", s.Notification)
	}
}

func TestDispatcher_SessionEndedKeepsLog(t *testing.T) {
	sock, st := setup(t)
	st.BeginRandomSearch(5)
	sock.Push(transport.EventStartChat, transport.StartChatPayload{SessionID: 5, User1Username: "WiseAthena", User2Username: "Plato"})
	sock.Push(transport.EventNewMessage, transport.NewMessagePayload{ID: 1, ChatSessionID: 5, SenderSessionToken: "p"})
	st.AddPlannedChat(model.PlannedChat{ID: 8})

	sock.Push(transport.EventSessionEnded, transport.SessionEndedPayload{SessionID: 5, Reason: "Partner disconnected"})
	sock.Push(transport.EventSessionEnded, transport.SessionEndedPayload{SessionID: 8, Reason: "bye"})

	s := st.Snapshot()
	if s.Random.Status != store.RandomEnded || s.Random.EndReason != "Partner disconnected" || len(s.Random.Messages) != 1 {
		t.Fatalf("random = %+v", s.Random)
	}
	if c, _ := s.PlannedChat(8); c.Status != model.SessionEnded {
		t.Fatalf("floater status = %q, want ended", c.Status)
	}
}

func TestDispatcher_SessionExpired(t *testing.T) {
	sock, st := setup(t)
	st.BeginRandomSearch(9)
	sock.Push(transport.EventNewMessageRequest, transport.NewMessageRequestPayload{SessionID: 4, RequesterUsername: "Zeno", RequesterSessionToken: "z"})

	sock.Push(transport.EventSessionExpired, transport.SessionExpiredPayload{SessionID: 4})
	s := st.Snapshot()
	if len(s.MessageRequests) != 0 {
		t.Fatal("expired request kept")
	}
	if s.Notification != nil {
		t.Fatal("notification for an expired request")
	}

	sock.Push(transport.EventSessionExpired, transport.SessionExpiredPayload{SessionID: 9})
	s = st.Snapshot()
	if s.Random.Status != store.RandomIdle {
		t.Fatalf("random = %+v, want idle", s.Random)
	}
	if s.Notification == nil || s.Notification.Kind != model.NotifyInfo {
		t.Fatalf("notification = %+v, want info", s.Notification)
	}
}

func TestDispatcher_RequestLifecycle(t *testing.T) {
	sock, st := setup(t)
	req := transport.NewMessageRequestPayload{SessionID: 7, RequesterUsername: "Zeno", RequesterSessionToken: "z"}
	sock.Push(transport.EventNewMessageRequest, req)
	sock.Push(transport.EventNewMessageRequest, req)
	if n := len(st.Snapshot().MessageRequests); n != 1 {
		t.Fatalf("requests = %d, want 1", n)
	}

	sock.Push(transport.EventChatRequestAccepted, transport.ChatRequestAcceptedPayload{
		SessionID: 7, User1Username: "Zeno", User1SessionToken: "z", User2Username: "WiseAthena", User2SessionToken: "me",
	})
	s := st.Snapshot()
	if len(s.MessageRequests) != 0 {
		t.Fatal("accepted request kept")
	}
	c, ok := s.PlannedChat(7)
	if !ok || c.PartnerUsername != "Zeno" || c.Status != model.SessionActive || c.InviteCode == "" {
		t.Fatalf("floater = %+v, %v", c, ok)
	}

	// a late duplicate request for an active session is ignored
	sock.Push(transport.EventNewMessageRequest, req)
	if n := len(st.Snapshot().MessageRequests); n != 0 {
		t.Fatalf("requests = %d after late duplicate", n)
	}
}

func TestDispatcher_CountersAndConnection(t *testing.T) {
	sock, st := setup(t)
	if !st.Snapshot().Connected {
		t.Fatal("Connected not set on connect")
	}
	sock.Push(transport.EventUserOnlineStatus, transport.UserOnlineStatusPayload{SessionToken: "z", Online: true})
	sock.Push(transport.EventNotificationCountUpdated, transport.NotificationCountPayload{Count: 4})
	sock.Push(transport.EventChatroomUsersUpdated, transport.ChatroomUsersPayload{ChatroomID: 3, UserCount: 12})
	s := st.Snapshot()
	if !s.OnlineUsers["z"] || s.NotificationCount != 4 || s.ChatroomUserCounts[3] != 12 {
		t.Fatalf("counters = %+v %d %+v", s.OnlineUsers, s.NotificationCount, s.ChatroomUserCounts)
	}

	sock.Drop()
	if st.Snapshot().Connected {
		t.Fatal("Connected after drop")
	}
	sock.Reconnect()
	if !st.Snapshot().Connected {
		t.Fatal("not Connected after reconnect")
	}
	sock.GiveUp()
	s = st.Snapshot()
	if s.Connected || s.Notification == nil || s.Notification.Text != ConnectionLost {
		t.Fatalf("after give up: connected=%v notification=%+v", s.Connected, s.Notification)
	}
}

func TestDispatcher_DetachStopsHandling(t *testing.T) {
	sock := transport.NewMemory()
	st := store.New()
	d := New(sock, st)
	d.Attach()
	d.Detach()
	sock.Push(transport.EventNotificationCountUpdated, transport.NotificationCountPayload{Count: 4})
	if st.Snapshot().NotificationCount != 0 {
		t.Fatal("handler ran after Detach")
	}
}
