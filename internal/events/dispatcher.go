// Package events переводит push-события канала в изменения Store.
// Обработчики регистрируются один раз на процесс и живут, пока живёт Dispatcher.
package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/agora/internal/logger"
	"github.com/agora/internal/model"
	"github.com/agora/internal/store"
	"github.com/agora/internal/transport"
)

// ConnectionLost: текст баннера, когда канал недоступен.
const ConnectionLost = "Connection lost. Please refresh the page to reconnect."

type Dispatcher struct {
	socket transport.Socket
	store  *store.Store

	mu   sync.Mutex
	offs []func()
}

func New(socket transport.Socket, st *store.Store) *Dispatcher {
	return &Dispatcher{socket: socket, store: st}
}

// Attach регистрирует обработчики. Повторный вызов ничего не делает.
func (d *Dispatcher) Attach() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.offs != nil {
		return
	}
	d.offs = []func(){
		on(d.socket, transport.EventConnected, d.onConnected),
		on(d.socket, transport.EventDisconnected, d.onDisconnected),
		on(d.socket, transport.EventReconnectFailed, d.onReconnectFailed),
		on(d.socket, transport.EventStartChat, d.onStartChat),
		on(d.socket, transport.EventUserLeft, d.onUserLeft),
		on(d.socket, transport.EventNewMessage, d.onNewMessage),
		on(d.socket, transport.EventSessionEnded, d.onSessionEnded),
		on(d.socket, transport.EventSessionExpired, d.onSessionExpired),
		on(d.socket, transport.EventNewMessageRequest, d.onNewMessageRequest),
		on(d.socket, transport.EventChatRequestAccepted, d.onChatRequestAccepted),
		on(d.socket, transport.EventUserOnlineStatus, d.onUserOnlineStatus),
		on(d.socket, transport.EventNotificationCountUpdated, d.onNotificationCount),
		on(d.socket, transport.EventChatroomUsersUpdated, d.onChatroomUsers),
	}
}

// Detach снимает все обработчики.
func (d *Dispatcher) Detach() {
	d.mu.Lock()
	offs := d.offs
	d.offs = nil
	d.mu.Unlock()
	for _, off := range offs {
		off()
	}
}

// on декодирует payload в T и вызывает h; битые payload только логируются.
func on[T any](s transport.Socket, event transport.EventType, h func(T)) func() {
	return s.On(event, func(raw json.RawMessage) {
		p, err := transport.Decode[T](raw)
		if err != nil {
			logger.Errorf("events: decode %s: %v", event, err)
			return
		}
		logger.Debugf("events: %s %s", event, raw)
		h(p)
	})
}

func (d *Dispatcher) onConnected(json.RawMessage) {
	d.store.SetConnected(true)
}

func (d *Dispatcher) onDisconnected(transport.DisconnectPayload) {
	d.store.SetConnected(false)
}

func (d *Dispatcher) onReconnectFailed(json.RawMessage) {
	d.store.SetConnected(false)
	d.store.ShowNotification(model.NotifyError, ConnectionLost)
}

func (d *Dispatcher) onStartChat(p transport.StartChatPayload) {
	d.store.ApplySessionPatch(store.SessionPatch{
		ID:                p.SessionID,
		Status:            model.SessionActive,
		Type:              model.SessionRandom,
		User1Username:     p.User1Username,
		User2Username:     p.User2Username,
		User1SessionToken: p.User1SessionToken,
		User2SessionToken: p.User2SessionToken,
	})
}

// user_left: собеседник ушёл из random-чата, чат сбрасывается в idle вместе с логом.
func (d *Dispatcher) onUserLeft(p transport.UserLeftPayload) {
	r := d.store.Snapshot().Random
	if r.SessionID != p.SessionID || r.Status == store.RandomIdle {
		return
	}
	d.store.ClearRandomChat()
	who := p.Username
	if who == "" {
		who = "Your chat partner"
	}
	d.store.ShowNotification(model.NotifyInfo, who+" left the chat", store.AutoDismiss(0))
}

func (d *Dispatcher) onNewMessage(p transport.NewMessagePayload) {
	st := d.store.Snapshot()
	if st.Random.SessionID == p.ChatSessionID && st.Random.Status != store.RandomIdle {
		d.store.AddRandomChatMessage(model.Message{
			ID:        p.ID,
			Content:   p.Content,
			Username:  p.SenderUsername,
			IsMe:      isMe(st.Identity, p.SenderSessionToken, p.SenderUsername),
			CreatedAt: p.CreatedAt,
		})
		return
	}
	d.store.RecordIncomingMessage(p.ChatSessionID, p.SenderSessionToken)
}

func (d *Dispatcher) onSessionEnded(p transport.SessionEndedPayload) {
	d.store.ApplySessionPatch(store.SessionPatch{ID: p.SessionID, Status: model.SessionEnded, Reason: p.Reason})
}

func (d *Dispatcher) onSessionExpired(p transport.SessionExpiredPayload) {
	if d.store.ExpireSession(p.SessionID) {
		d.store.ShowNotification(model.NotifyInfo, "No chat partner found. Try again.", store.AutoDismiss(0))
	}
}

func (d *Dispatcher) onNewMessageRequest(p transport.NewMessageRequestPayload) {
	d.store.ApplySessionPatch(store.SessionPatch{
		ID:                p.SessionID,
		Status:            model.SessionWaiting,
		Type:              model.SessionPlanned,
		User1Username:     p.RequesterUsername,
		User1SessionToken: p.RequesterSessionToken,
	})
	if cs, ok := d.store.Snapshot().Session(p.SessionID); ok && cs.Status != model.SessionWaiting {
		return
	}
	d.store.AddMessageRequest(model.MessageRequest{
		SessionID:         p.SessionID,
		RequesterUsername: p.RequesterUsername,
		RequesterToken:    p.RequesterSessionToken,
		CreatedAt:         p.CreatedAt,
	})
}

// chat_request_accepted приходит обоим участникам: запрос убирается, открывается окно чата.
func (d *Dispatcher) onChatRequestAccepted(p transport.ChatRequestAcceptedPayload) {
	d.store.ApplySessionPatch(store.SessionPatch{
		ID:                p.SessionID,
		Status:            model.SessionActive,
		Type:              model.SessionPlanned,
		User1Username:     p.User1Username,
		User2Username:     p.User2Username,
		User1SessionToken: p.User1SessionToken,
		User2SessionToken: p.User2SessionToken,
	})
	d.store.RemoveMessageRequest(p.SessionID)
	d.OpenFloater(p.SessionID)
}

// OpenFloater открывает плавающее окно для сессии, если его ещё нет.
func (d *Dispatcher) OpenFloater(sessionID int64) bool {
	st := d.store.Snapshot()
	partner := ""
	if cs, ok := st.Session(sessionID); ok {
		partner, _ = cs.Partner(st.Identity.SessionToken, st.Identity.Username)
	}
	return d.store.AddPlannedChat(model.PlannedChat{
		ID:              sessionID,
		InviteCode:      InviteCode(sessionID),
		PartnerUsername: partner,
	})
}

func (d *Dispatcher) onUserOnlineStatus(p transport.UserOnlineStatusPayload) {
	d.store.SetUserOnline(p.SessionToken, p.Online)
}

func (d *Dispatcher) onNotificationCount(p transport.NotificationCountPayload) {
	d.store.SetNotificationCount(p.Count)
}

func (d *Dispatcher) onChatroomUsers(p transport.ChatroomUsersPayload) {
	d.store.SetChatroomUserCount(p.ChatroomID, p.UserCount)
}

// InviteCode: короткий код окна для отображения, вида "7-1f3a9c2e".
func InviteCode(sessionID int64) string {
	return fmt.Sprintf("%d-%s", sessionID, strings.SplitN(uuid.NewString(), "-", 2)[0])
}

func isMe(id store.Identity, token, username string) bool {
	if token != "" && id.SessionToken != "" {
		return token == id.SessionToken
	}
	return username != "" && username == id.Username
}
