package store

import (
	"sync"
	"testing"
	"time"

	"github.com/agora/internal/model"
)

func TestStore_ToggleMinimizeParity(t *testing.T) {
	for _, initial := range []bool{false, true} {
		for n := 0; n < 7; n++ {
			s := New()
			s.AddPlannedChat(model.PlannedChat{ID: 1, InviteCode: "X", IsMinimized: initial})
			for i := 0; i < n; i++ {
				s.ToggleMinimize(1)
			}
			c, _ := s.Snapshot().PlannedChat(1)
			want := initial != (n%2 == 1)
			if c.IsMinimized != want {
				t.Errorf("initial=%v n=%d: minimized=%v, want %v", initial, n, c.IsMinimized, want)
			}
		}
	}
}

func TestStore_AddPlannedChatThenToggle(t *testing.T) {
	s := New()
	s.AddPlannedChat(model.PlannedChat{ID: 7, InviteCode: "X", PartnerUsername: "Bob"})
	if s.AddPlannedChat(model.PlannedChat{ID: 7, InviteCode: "X"}) {
		t.Fatal("duplicate floater accepted")
	}
	s.ToggleMinimize(7)

	st := s.Snapshot()
	if len(st.PlannedChats) != 1 {
		t.Fatalf("planned chats = %d, want 1", len(st.PlannedChats))
	}
	if !st.PlannedChats[0].IsMinimized || st.PlannedChats[0].PartnerUsername != "Bob" {
		t.Fatalf("floater = %+v", st.PlannedChats[0])
	}
}

func TestStore_RemoveMessageRequestTwice(t *testing.T) {
	s := New()
	s.AddMessageRequest(model.MessageRequest{SessionID: 5, RequesterUsername: "Zeno"})
	s.AddMessageRequest(model.MessageRequest{SessionID: 5, RequesterUsername: "Zeno"})
	if n := len(s.Snapshot().MessageRequests); n != 1 {
		t.Fatalf("requests = %d after duplicate add, want 1", n)
	}
	if !s.RemoveMessageRequest(5) {
		t.Fatal("first remove reported no change")
	}
	if s.RemoveMessageRequest(5) {
		t.Fatal("second remove reported a change")
	}
	if n := len(s.Snapshot().MessageRequests); n != 0 {
		t.Fatalf("requests = %d, want 0", n)
	}
}

func TestStore_NotificationReplaced(t *testing.T) {
	s := New()
	s.ShowNotification(model.NotifyError, "X")
	s.ShowNotification(model.NotifySuccess, "Y")
	n := s.Snapshot().Notification
	if n == nil || n.Kind != model.NotifySuccess || n.Text != "Y" {
		t.Fatalf("notification = %+v, want success Y", n)
	}
	s.DismissNotification()
	if s.Snapshot().Notification != nil {
		t.Fatal("notification not dismissed")
	}
}

func TestStore_NotificationSeqSurvivesDismiss(t *testing.T) {
	s := New(WithDismissDelay(time.Second))
	s.ShowNotification(model.NotifyInfo, "first", AutoDismiss(0))
	first := s.Snapshot().Notification
	if first.Delay != time.Second {
		t.Fatalf("delay = %v, want default 1s", first.Delay)
	}
	s.DismissNotification()
	s.ShowNotification(model.NotifyInfo, "second")
	s.DismissNotificationSeq(first.Seq)
	if n := s.Snapshot().Notification; n == nil || n.Text != "second" {
		t.Fatalf("stale dismiss removed the new banner: %+v", n)
	}
}

func TestStore_RecordIncomingMessage(t *testing.T) {
	s := New()
	s.SetIdentity("me", "WiseAthena")
	s.AddPlannedChat(model.PlannedChat{ID: 1, IsMinimized: true})

	if got := s.RecordIncomingMessage(1, "other"); got != UnreadFloater {
		t.Fatalf("floater session target = %v", got)
	}
	if got := s.RecordIncomingMessage(2, "other"); got != UnreadGlobal {
		t.Fatalf("no-floater session target = %v", got)
	}
	if got := s.RecordIncomingMessage(1, "me"); got != UnreadNone {
		t.Fatalf("self-authored target = %v", got)
	}
	if got := s.RecordIncomingMessage(2, "me"); got != UnreadNone {
		t.Fatalf("self-authored target = %v", got)
	}

	st := s.Snapshot()
	c, _ := st.PlannedChat(1)
	if c.UnreadCount != 1 {
		t.Errorf("floater unread = %d, want 1", c.UnreadCount)
	}
	if st.ChatUnreadCounts[1] != 0 {
		t.Errorf("global unread for floater session = %d, want 0", st.ChatUnreadCounts[1])
	}
	if st.ChatUnreadCounts[2] != 1 {
		t.Errorf("global unread = %d, want 1", st.ChatUnreadCounts[2])
	}

	s.ToggleMinimize(1)
	if c, _ := s.Snapshot().PlannedChat(1); c.UnreadCount != 0 {
		t.Errorf("unread after expanding = %d, want 0", c.UnreadCount)
	}
	s.ClearChatUnread(2)
	if _, ok := s.Snapshot().ChatUnreadCounts[2]; ok {
		t.Error("global unread not cleared")
	}
}

func TestStore_RandomChatLifecycle(t *testing.T) {
	s := New()
	s.SetIdentity("me", "WiseAthena")

	if !s.BeginRandomSearch(42) {
		t.Fatal("BeginRandomSearch from idle failed")
	}
	if s.BeginRandomSearch(43) {
		t.Fatal("BeginRandomSearch while waiting succeeded")
	}
	s.ApplySessionPatch(SessionPatch{ID: 43, Status: model.SessionActive, User1Username: "A", User2Username: "B"})
	if r := s.Snapshot().Random; r.Status != RandomWaiting || r.SessionID != 42 {
		t.Fatalf("mismatched start_chat changed random chat: %+v", r)
	}

	s.ApplySessionPatch(SessionPatch{ID: 42, Status: model.SessionActive,
		User1Username: "Plato", User1SessionToken: "p", User2Username: "WiseAthena", User2SessionToken: "me"})
	r := s.Snapshot().Random
	if r.Status != RandomMatched || r.Partner != "Plato" {
		t.Fatalf("random = %+v, want matched with Plato", r)
	}

	s.AddRandomChatMessage(model.Message{ID: 1, Content: "hi"})
	s.AddRandomChatMessage(model.Message{ID: 2, Content: "hello"})
	s.AddRandomChatMessage(model.Message{ID: 1, Content: "hi"})
	if n := len(s.Snapshot().Random.Messages); n != 2 {
		t.Fatalf("messages = %d, want 2", n)
	}

	if !s.EndRandomChat("partner ended") {
		t.Fatal("EndRandomChat from matched failed")
	}
	r = s.Snapshot().Random
	if r.Status != RandomEnded || r.EndReason != "partner ended" || len(r.Messages) != 2 {
		t.Fatalf("random after end = %+v", r)
	}

	s.ClearRandomChat()
	r = s.Snapshot().Random
	if r.Status != RandomIdle || r.SessionID != 0 || len(r.Messages) != 0 {
		t.Fatalf("random after clear = %+v", r)
	}
}

func TestStore_CancelRandomSearch(t *testing.T) {
	s := New()
	if s.CancelRandomSearch() {
		t.Fatal("cancel from idle reported change")
	}
	s.BeginRandomSearch(9)
	if !s.CancelRandomSearch() {
		t.Fatal("cancel from waiting failed")
	}
	if r := s.Snapshot().Random; r.Status != RandomIdle || r.SessionID != 0 {
		t.Fatalf("random = %+v", r)
	}
}

func TestStore_StartChatBeforeMatchResponse(t *testing.T) {
	s := New()
	s.SetIdentity("me", "WiseAthena")
	s.ApplySessionPatch(SessionPatch{ID: 42, Status: model.SessionActive, User1Username: "WiseAthena", User2Username: "Plato"})
	s.BeginRandomSearch(42)
	if r := s.Snapshot().Random; r.Status != RandomMatched || r.Partner != "Plato" {
		t.Fatalf("random = %+v, want matched with Plato", r)
	}
}

func TestStore_SessionPatchesCommute(t *testing.T) {
	patches := []SessionPatch{
		{ID: 42, Status: model.SessionWaiting, Type: model.SessionRandom},
		{ID: 42, Status: model.SessionActive, User1Username: "WiseAthena", User2Username: "Plato"},
		{ID: 42, Status: model.SessionEnded, Reason: "partner ended"},
	}
	orders := [][]int{{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0}}

	var want RandomChat
	for i, order := range orders {
		s := New()
		s.SetIdentity("me", "WiseAthena")
		s.BeginRandomSearch(42)
		for _, k := range order {
			s.ApplySessionPatch(patches[k])
			s.ApplySessionPatch(patches[k])
		}
		got := s.Snapshot().Random
		cs, _ := s.Snapshot().Session(42)
		if cs.Status != model.SessionEnded {
			t.Errorf("order %v: cached status %s", order, cs.Status)
		}
		if i == 0 {
			want = got
			continue
		}
		if got.Status != want.Status || got.Partner != want.Partner || got.EndReason != want.EndReason {
			t.Errorf("order %v: %+v, want %+v", order, got, want)
		}
	}
	if want.Status != RandomEnded || want.Partner != "Plato" || want.EndReason != "partner ended" {
		t.Fatalf("converged state = %+v", want)
	}
}

func TestStore_PlannedStatusFollowsCache(t *testing.T) {
	s := New()
	s.ApplySessionPatch(SessionPatch{ID: 3, Status: model.SessionActive})
	s.AddPlannedChat(model.PlannedChat{ID: 3})
	if c, _ := s.Snapshot().PlannedChat(3); c.Status != model.SessionActive {
		t.Fatalf("status = %q, want active from cache", c.Status)
	}
	s.ApplySessionPatch(SessionPatch{ID: 3, Status: model.SessionEnded})
	s.SetPlannedChatStatus(3, model.SessionActive)
	if c, _ := s.Snapshot().PlannedChat(3); c.Status != model.SessionEnded {
		t.Fatalf("status = %q, want ended", c.Status)
	}
}

func TestStore_ExpireSession(t *testing.T) {
	s := New()
	s.AddMessageRequest(model.MessageRequest{SessionID: 4})
	s.AddPlannedChat(model.PlannedChat{ID: 4})
	s.RecordIncomingMessage(5, "x")
	if s.ExpireSession(4) {
		t.Fatal("ExpireSession(4) reported a cleared search")
	}
	st := s.Snapshot()
	if len(st.MessageRequests) != 0 || len(st.PlannedChats) != 0 {
		t.Fatalf("session 4 not forgotten: %+v", st)
	}
	if st.ChatUnreadCounts[5] != 1 {
		t.Fatal("unrelated unread count touched")
	}

	s.BeginRandomSearch(6)
	if !s.ExpireSession(6) {
		t.Fatal("waiting search not cleared")
	}
	if r := s.Snapshot().Random; r.Status != RandomIdle {
		t.Fatalf("random = %+v, want idle", r)
	}
	// late start_chat for the expired session changes nothing
	s.ApplySessionPatch(SessionPatch{ID: 6, Status: model.SessionActive})
	if r := s.Snapshot().Random; r.Status != RandomIdle {
		t.Fatalf("random = %+v after late start_chat", r)
	}
}

func TestStore_SubscribeReceivesOrderedSnapshots(t *testing.T) {
	s := New()
	var mu sync.Mutex
	var versions []uint64
	unsub := s.Subscribe(func(st State) {
		mu.Lock()
		versions = append(versions, st.Version)
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.SetChatroomUserCount(int64(i), i+1)
		}(i)
	}
	wg.Wait()
	unsub()
	unsub()
	s.SetNotificationCount(3)

	mu.Lock()
	defer mu.Unlock()
	if len(versions) != 20 {
		t.Fatalf("got %d snapshots, want 20", len(versions))
	}
	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Fatalf("snapshots out of order: %v", versions)
		}
	}
}

func TestStore_SnapshotIsolated(t *testing.T) {
	s := New()
	s.AddPlannedChat(model.PlannedChat{ID: 1})
	snap := s.Snapshot()
	snap.PlannedChats[0].IsMinimized = true
	snap.ChatUnreadCounts[9] = 9
	st := s.Snapshot()
	if st.PlannedChats[0].IsMinimized || st.ChatUnreadCounts[9] != 0 {
		t.Fatal("snapshot shares memory with the store")
	}
}

func TestStore_NoopUpdatesDoNotPublish(t *testing.T) {
	s := New()
	calls := 0
	s.Subscribe(func(State) { calls++ })
	s.SetConnected(false)
	s.DismissNotification()
	s.RemovePlannedChat(1)
	s.ToggleMinimize(1)
	if calls != 0 {
		t.Fatalf("published %d snapshots for no-op updates", calls)
	}
	s.SetConnected(true)
	if calls != 1 {
		t.Fatalf("published %d snapshots, want 1", calls)
	}
}
