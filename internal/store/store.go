// Package store хранит состояние клиента в одном процессе: random-чат, плавающие окна,
// входящие запросы, баннер и счётчики непрочитанного. Все изменения идут через методы
// под мьютексом, после каждого изменения подписчики получают неизменяемый снимок.
package store

import (
	"slices"
	"sync"
	"time"

	"github.com/agora/internal/model"
)

// DefaultDismissDelay: задержка автоскрытия баннера по умолчанию.
const DefaultDismissDelay = 5 * time.Second

// Store владеет состоянием. Создаётся корнем композиции и передаётся по ссылке.
type Store struct {
	mu    sync.Mutex
	state State

	// pubMu держится от изменения до конца рассылки, чтобы снимки приходили в порядке версий.
	pubMu   sync.Mutex
	subsMu  sync.Mutex
	subs    map[int]func(State)
	nextSub int

	dismissDelay time.Duration
	notifySeq    uint64
}

type Option func(*Store)

// WithDismissDelay задаёт задержку автоскрытия баннера.
func WithDismissDelay(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.dismissDelay = d
		}
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		state:        initialState(),
		subs:         make(map[int]func(State)),
		dismissDelay: DefaultDismissDelay,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Snapshot возвращает копию текущего состояния.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Subscribe регистрирует слушателя. Слушатель вызывается синхронно после каждого изменения
// и не должен сам изменять Store в том же вызове (для этого есть горутина или таймер).
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subsMu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.subsMu.Lock()
			delete(s.subs, id)
			s.subsMu.Unlock()
		})
	}
}

// update применяет fn под мьютексом; если fn вернула true, рассылает снимок.
func (s *Store) update(fn func(st *State) bool) bool {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	s.mu.Lock()
	if !fn(&s.state) {
		s.mu.Unlock()
		return false
	}
	s.state.Version++
	snap := s.state.clone()
	s.mu.Unlock()

	s.subsMu.Lock()
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	fns := make([]func(State), 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		fns = append(fns, s.subs[id])
	}
	s.subsMu.Unlock()

	for _, f := range fns {
		f(snap)
	}
	return true
}

// --- identity / connection ---

func (s *Store) SetIdentity(token, username string) {
	s.update(func(st *State) bool {
		if st.Identity.SessionToken == token && st.Identity.Username == username {
			return false
		}
		st.Identity = Identity{SessionToken: token, Username: username}
		return true
	})
}

func (s *Store) SetConnected(connected bool) {
	s.update(func(st *State) bool {
		if st.Connected == connected {
			return false
		}
		st.Connected = connected
		return true
	})
}

// --- notification ---

type NotifyOption func(*model.Notification)

// AutoDismiss включает автоскрытие; delay <= 0 означает задержку по умолчанию.
func AutoDismiss(delay time.Duration) NotifyOption {
	return func(n *model.Notification) {
		n.AutoDismiss = true
		if delay > 0 {
			n.Delay = delay
		}
	}
}

// ShowNotification заменяет текущий баннер целиком.
func (s *Store) ShowNotification(kind model.NotificationKind, text string, opts ...NotifyOption) {
	s.update(func(st *State) bool {
		n := model.Notification{Kind: kind, Text: text}
		for _, o := range opts {
			o(&n)
		}
		if n.AutoDismiss && n.Delay <= 0 {
			n.Delay = s.dismissDelay
		}
		s.notifySeq++
		n.Seq = s.notifySeq
		st.Notification = &n
		return true
	})
}

func (s *Store) DismissNotification() {
	s.update(func(st *State) bool {
		if st.Notification == nil {
			return false
		}
		st.Notification = nil
		return true
	})
}

// DismissNotificationSeq скрывает баннер, только если он всё ещё тот же показ.
// Таймер автоскрытия не должен закрыть баннер, пришедший ему на смену.
func (s *Store) DismissNotificationSeq(seq uint64) {
	s.update(func(st *State) bool {
		if st.Notification == nil || st.Notification.Seq != seq {
			return false
		}
		st.Notification = nil
		return true
	})
}

// --- counters from push ---

func (s *Store) SetNotificationCount(n int) {
	s.update(func(st *State) bool {
		if st.NotificationCount == n {
			return false
		}
		st.NotificationCount = n
		return true
	})
}

func (s *Store) SetUserOnline(token string, online bool) {
	if token == "" {
		return
	}
	s.update(func(st *State) bool {
		if cur, ok := st.OnlineUsers[token]; ok && cur == online {
			return false
		}
		st.OnlineUsers[token] = online
		return true
	})
}

func (s *Store) SetChatroomUserCount(id int64, n int) {
	s.update(func(st *State) bool {
		if cur, ok := st.ChatroomUserCounts[id]; ok && cur == n {
			return false
		}
		st.ChatroomUserCounts[id] = n
		return true
	})
}
