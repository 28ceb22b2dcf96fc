package controller

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/agora/internal/logger"
	"github.com/agora/internal/model"
	"github.com/agora/internal/store"
	"github.com/agora/internal/transport"
)

const countdownTick = time.Second

// ChatRow: строка списка личных чатов.
type ChatRow struct {
	Session   model.ChatSession `json:"session"`
	Partner   string            `json:"partner"`
	Remaining time.Duration     `json:"remaining,omitempty"`
	Unread    int               `json:"unread"`
	Floating  bool              `json:"floating"`
}

// PrivateChatList: страница списка planned-сессий с отсчётом до истечения waiting.
type PrivateChatList struct {
	page
	d        Deps
	requests *Requests
	now      func() time.Time

	sessions  []model.ChatSession
	remaining map[int64]time.Duration
	expired   map[int64]bool // expire_session уже отправлен

	stop chan struct{}
	wg   sync.WaitGroup
}

func OpenPrivateChatList(ctx context.Context, d Deps) (*PrivateChatList, error) {
	l := &PrivateChatList{
		d:         d,
		requests:  NewRequests(d),
		now:       time.Now,
		remaining: make(map[int64]time.Duration),
		expired:   make(map[int64]bool),
		stop:      make(chan struct{}),
	}
	l.listen(d.Socket, transport.EventSessionExpired, l.onSessionExpired)
	l.listen(d.Socket, transport.EventNewMessageRequest, l.onNewMessageRequest)

	if err := d.refreshIdentity(ctx); err != nil {
		l.close()
		return nil, d.fail("list.Open", err, "Failed to load session")
	}
	if err := l.Refresh(ctx); err != nil {
		l.close()
		return nil, err
	}
	l.tick(l.now())
	l.wg.Add(1)
	go l.loop()
	return l, nil
}

// Refresh перечитывает сессии. Показываются только planned.
func (l *PrivateChatList) Refresh(ctx context.Context) error {
	sessions, err := l.d.API.ChatSessions(ctx)
	if err != nil {
		return l.d.fail("list.Refresh", err, "Failed to load chats")
	}
	planned := make([]model.ChatSession, 0, len(sessions))
	for _, s := range sessions {
		if s.Type == model.SessionRandom {
			continue
		}
		l.d.Store.ApplySessionPatch(store.PatchFromSession(s))
		planned = append(planned, s)
	}
	l.mu.Lock()
	if !l.closed {
		l.sessions = planned
	}
	l.mu.Unlock()
	return nil
}

func (l *PrivateChatList) loop() {
	defer l.wg.Done()
	t := time.NewTicker(countdownTick)
	defer t.Stop()
	for {
		select {
		case <-l.stop:
			return
		case now := <-t.C:
			l.tick(now)
		}
	}
}

// tick пересчитывает отсчёт для waiting-сессий. На нуле серверу уходит expire_session,
// один раз на сессию; строку убирает только пришедший в ответ session_expired.
func (l *PrivateChatList) tick(now time.Time) {
	st := l.d.Store.Snapshot()
	window := l.d.expiry()

	var due []int64
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	for _, s := range l.sessions {
		cs, ok := st.Session(s.ID)
		if !ok {
			cs = s
		}
		if cs.Status != model.SessionWaiting {
			delete(l.remaining, s.ID)
			continue
		}
		left := s.CreatedAt.Add(window).Sub(now)
		if left <= 0 {
			left = 0
			if !l.expired[s.ID] {
				l.expired[s.ID] = true
				due = append(due, s.ID)
			}
		}
		l.remaining[s.ID] = left.Truncate(time.Second)
	}
	l.mu.Unlock()

	for _, id := range due {
		if err := l.d.Socket.Emit(transport.EventExpireSession, transport.SessionRoomPayload{SessionID: id}); err != nil {
			// не ушло: попробуем на следующем тике
			logger.Errorf("list: expire_session %d: %v", id, err)
			l.mu.Lock()
			delete(l.expired, id)
			l.mu.Unlock()
			continue
		}
		logger.Infof("list: session %d expired locally, expire_session sent", id)
	}
}

func (l *PrivateChatList) onSessionExpired(raw json.RawMessage) {
	p, err := transport.Decode[transport.SessionExpiredPayload](raw)
	if err != nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, s := range l.sessions {
		if s.ID == p.SessionID {
			l.sessions = append(l.sessions[:i:i], l.sessions[i+1:]...)
			break
		}
	}
	delete(l.remaining, p.SessionID)
	delete(l.expired, p.SessionID)
}

// новое приглашение появляется в списке сразу, без перезагрузки
func (l *PrivateChatList) onNewMessageRequest(raw json.RawMessage) {
	p, err := transport.Decode[transport.NewMessageRequestPayload](raw)
	if err != nil {
		return
	}
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = l.now()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, s := range l.sessions {
		if s.ID == p.SessionID {
			return
		}
	}
	st := l.d.Store.Snapshot()
	l.sessions = append(l.sessions, model.ChatSession{
		ID:                p.SessionID,
		User1Username:     p.RequesterUsername,
		User1SessionToken: p.RequesterSessionToken,
		User2Username:     st.Identity.Username,
		User2SessionToken: st.Identity.SessionToken,
		Status:            model.SessionWaiting,
		Type:              model.SessionPlanned,
		CreatedAt:         createdAt,
	})
}

// Rows: текущие строки. Статус берётся из общего кэша сессий.
func (l *PrivateChatList) Rows() []ChatRow {
	st := l.d.Store.Snapshot()
	l.mu.Lock()
	defer l.mu.Unlock()
	rows := make([]ChatRow, 0, len(l.sessions))
	for _, s := range l.sessions {
		cs, ok := st.Session(s.ID)
		if !ok {
			cs = s
		}
		cs.CreatedAt, cs.MatchedAt, cs.EndedAt = s.CreatedAt, s.MatchedAt, s.EndedAt
		partner, _ := cs.Partner(st.Identity.SessionToken, st.Identity.Username)
		row := ChatRow{Session: cs, Partner: partner, Unread: st.ChatUnreadCounts[s.ID]}
		if c, ok := st.PlannedChat(s.ID); ok {
			row.Floating = true
			row.Unread = c.UnreadCount
		}
		if cs.Status == model.SessionWaiting {
			row.Remaining = l.remaining[s.ID]
		}
		rows = append(rows, row)
	}
	return rows
}

// Accept и Reject удаляют локальный запрос при любом исходе, затем перечитывают список.
func (l *PrivateChatList) Accept(ctx context.Context, id int64) error {
	if err := l.requests.Accept(ctx, id); err != nil {
		return err
	}
	return l.Refresh(ctx)
}

func (l *PrivateChatList) Reject(ctx context.Context, id int64) error {
	if err := l.requests.Reject(ctx, id); err != nil {
		return err
	}
	return l.Refresh(ctx)
}

// ToggleFloater открывает плавающее окно для сессии или закрывает уже открытое.
func (l *PrivateChatList) ToggleFloater(id int64) bool {
	if _, ok := l.d.Store.Snapshot().PlannedChat(id); ok {
		l.d.Store.RemovePlannedChat(id)
		return false
	}
	return l.d.Events.OpenFloater(id)
}

// Close останавливает таймер и снимает подписки.
func (l *PrivateChatList) Close() {
	if l.close() {
		close(l.stop)
		l.wg.Wait()
	}
}
