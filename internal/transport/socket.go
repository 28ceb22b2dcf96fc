// Package transport owns the single push-channel connection of a client process.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/agora/internal/logger"
)

// ErrNotConnected is returned by room and emit operations on a dead channel.
var ErrNotConnected = errors.New("push connection not established, please refresh the page and try again")

// Handler receives the raw payload of one event. Handlers for one connection run
// sequentially in emission order.
type Handler func(payload json.RawMessage)

// Socket is the capability set controllers and the store need from the push channel.
type Socket interface {
	Connect(ctx context.Context) error
	Disconnect()
	IsConnected() bool
	JoinRoom(scope Scope, id int64) error
	LeaveRoom(scope Scope, id int64) error
	On(event EventType, h Handler) (off func())
	Emit(event EventType, payload any) error
}

// Decode unmarshals a payload into T.
func Decode[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("transport.Decode: %w", err)
	}
	return v, nil
}

type listener struct {
	id int
	h  Handler
}

// listeners is the event-name -> handlers registry shared by all implementations.
type listeners struct {
	mu     sync.RWMutex
	nextID int
	byType map[EventType][]listener
}

func (l *listeners) on(event EventType, h Handler) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.byType == nil {
		l.byType = make(map[EventType][]listener)
	}
	l.nextID++
	id := l.nextID
	l.byType[event] = append(l.byType[event], listener{id: id, h: h})
	var once sync.Once
	return func() {
		once.Do(func() { l.off(event, id) })
	}
}

func (l *listeners) off(event EventType, id int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	list := l.byType[event]
	for i, ls := range list {
		if ls.id == id {
			l.byType[event] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// dispatch calls handlers outside the lock so a handler may register or remove listeners.
func (l *listeners) dispatch(event EventType, payload json.RawMessage) {
	l.mu.RLock()
	list := make([]listener, len(l.byType[event]))
	copy(list, l.byType[event])
	l.mu.RUnlock()
	sort.Slice(list, func(i, j int) bool { return list[i].id < list[j].id })
	for _, ls := range list {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Errorf("transport handler panic event=%s: %v", event, r)
				}
			}()
			ls.h(payload)
		}()
	}
}

func (l *listeners) dispatchValue(event EventType, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		logger.Errorf("transport marshal local event=%s: %v", event, err)
		return
	}
	l.dispatch(event, raw)
}

type roomKey struct {
	scope Scope
	id    int64
}

// roomEvents maps a scope to its join and leave events and payload.
func roomEvents(scope Scope, id int64) (join, leave EventType, payload any, err error) {
	switch scope {
	case ScopeSession:
		return EventJoinSession, EventLeaveSession, SessionRoomPayload{SessionID: id}, nil
	case ScopeChatroom:
		return EventJoinChatroom, EventLeaveChatroom, ChatroomRoomPayload{ChatroomID: id}, nil
	default:
		return "", "", nil, fmt.Errorf("transport: unknown room scope %q", scope)
	}
}

// rooms remembers joined rooms so they can be re-joined after a reconnect.
type rooms struct {
	mu  sync.Mutex
	set map[roomKey]struct{}
}

func (r *rooms) add(k roomKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.set == nil {
		r.set = make(map[roomKey]struct{})
	}
	r.set[k] = struct{}{}
}

func (r *rooms) remove(k roomKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.set, k)
}

func (r *rooms) list() []roomKey {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]roomKey, 0, len(r.set))
	for k := range r.set {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].scope != out[j].scope {
			return out[i].scope < out[j].scope
		}
		return out[i].id < out[j].id
	})
	return out
}
