package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/agora/internal/api"
	"github.com/agora/internal/logger"
	"github.com/agora/internal/model"
	"github.com/agora/internal/store"
	"github.com/agora/internal/transport"
)

// PrivateChat: страница одной 1:1 сессии.
type PrivateChat struct {
	page
	d  Deps
	id int64

	messages []model.ChatMessage
}

// PrivateChatView: то, что рисует страница.
type PrivateChatView struct {
	Session       model.ChatSession `json:"session"`
	Partner       string            `json:"partner"`
	PartnerOnline bool              `json:"partner_online"`
	Messages      []model.Message   `json:"messages"`
	CanSend       bool              `json:"can_send"`
}

// OpenPrivateChat открывает страницу сессии id. Неизвестный id: ErrNotFound и баннер.
func OpenPrivateChat(ctx context.Context, d Deps, id int64) (*PrivateChat, error) {
	c := &PrivateChat{d: d, id: id}

	// страница и плавающее окно одной сессии одновременно не показываются
	d.Store.RemovePlannedChat(id)

	// подписки раньше загрузки: сообщение, пришедшее во время REST, не потеряется
	c.listen(d.Socket, transport.EventNewMessage, c.onNewMessage)
	c.listen(d.Socket, transport.EventSessionEnded, c.onSessionEnded)

	if err := d.refreshIdentity(ctx); err != nil {
		c.close()
		return nil, d.fail("private.Open", err, "Failed to load session")
	}
	session, err := d.API.FindSession(ctx, id)
	if err != nil {
		c.close()
		if errors.Is(err, api.ErrNotFound) {
			logger.Errorf("private.Open: session %d: %v", id, err)
			d.Store.ShowNotification(model.NotifyError, "Chat session not found")
			return nil, fmt.Errorf("private.Open %d: %w", id, ErrNotFound)
		}
		return nil, d.fail("private.Open", err, "Failed to load chat")
	}
	d.Store.ApplySessionPatch(store.PatchFromSession(*session))

	msgs, err := d.API.ChatMessages(ctx, id)
	if err != nil {
		c.close()
		return nil, d.fail("private.Open", err, "Failed to load messages")
	}
	c.mergeLoaded(msgs)

	if err := d.API.MarkRead(ctx, id); err != nil {
		logger.Errorf("private.Open: mark read %d: %v", id, err)
	}
	d.Store.ClearChatUnread(id)

	if c.isClosed() {
		return nil, fmt.Errorf("private.Open %d: closed: %w", id, ErrInvalidState)
	}
	if err := d.joinRoom("private.Open", transport.ScopeSession, id); err != nil {
		// страница остаётся открытой только на чтение; баннер уже показан
		logger.Errorf("private.Open: join %d: %v", id, err)
	}
	st := d.Store.Snapshot()
	if cs, ok := st.Session(id); ok {
		if _, token := cs.Partner(st.Identity.SessionToken, st.Identity.Username); token != "" && d.Socket.IsConnected() {
			if err := d.Socket.Emit(transport.EventCheckUserOnline, transport.CheckUserOnlinePayload{SessionToken: token}); err != nil {
				logger.Errorf("private.Open: check online: %v", err)
			}
		}
	}
	return c, nil
}

func (c *PrivateChat) ID() int64 { return c.id }

// mergeLoaded кладёт загруженную историю перед сообщениями, пришедшими по push во время загрузки.
func (c *PrivateChat) mergeLoaded(loaded []model.ChatMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.ChatMessage, 0, len(loaded)+len(c.messages))
	out = append(out, loaded...)
	for _, m := range c.messages {
		if !containsMessage(out, m.ID) {
			out = append(out, m)
		}
	}
	c.messages = out
}

func (c *PrivateChat) appendMessage(m model.ChatMessage) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || containsMessage(c.messages, m.ID) {
		return false
	}
	c.messages = append(c.messages, m)
	return true
}

func containsMessage(list []model.ChatMessage, id int64) bool {
	if id == 0 {
		return false
	}
	return slices.ContainsFunc(list, func(m model.ChatMessage) bool { return m.ID == id })
}

func (c *PrivateChat) onNewMessage(raw json.RawMessage) {
	p, err := transport.Decode[transport.NewMessagePayload](raw)
	if err != nil || p.ChatSessionID != c.id {
		return
	}
	c.appendMessage(model.ChatMessage{
		ID:                 p.ID,
		ChatSessionID:      p.ChatSessionID,
		SenderSessionToken: p.SenderSessionToken,
		SenderUsername:     p.SenderUsername,
		Content:            p.Content,
		CreatedAt:          p.CreatedAt,
	})
	// страница открыта: сообщение прочитано
	c.d.Store.ClearChatUnread(c.id)
}

func (c *PrivateChat) onSessionEnded(raw json.RawMessage) {
	p, err := transport.Decode[transport.SessionEndedPayload](raw)
	if err != nil || p.SessionID != c.id {
		return
	}
	text := "Chat Ended"
	if p.Reason != "" {
		text += ": " + p.Reason
	}
	c.d.Store.ShowNotification(model.NotifyInfo, text)
}

// Session: кэшированная (слитая) копия сессии.
func (c *PrivateChat) Session() model.ChatSession {
	cs, _ := c.d.Store.Snapshot().Session(c.id)
	return cs
}

func (c *PrivateChat) View() PrivateChatView {
	st := c.d.Store.Snapshot()
	cs, _ := st.Session(c.id)
	partner, token := cs.Partner(st.Identity.SessionToken, st.Identity.Username)
	c.mu.Lock()
	msgs := make([]model.Message, 0, len(c.messages))
	for _, m := range c.messages {
		msgs = append(msgs, chatMessageView(m, st.Identity))
	}
	c.mu.Unlock()
	return PrivateChatView{
		Session:       cs,
		Partner:       partner,
		PartnerOnline: st.OnlineUsers[token],
		Messages:      msgs,
		CanSend:       cs.Status == model.SessionActive && st.Connected,
	}
}

// Send: только в active-сессии и при живом канале.
func (c *PrivateChat) Send(ctx context.Context, content string) error {
	content, err := normalizeContent(content)
	if err != nil {
		return err
	}
	if c.isClosed() {
		return fmt.Errorf("private.Send %d: closed: %w", c.id, ErrInvalidState)
	}
	if s := c.Session().Status; s != model.SessionActive {
		c.d.Store.ShowNotification(model.NotifyError, "This chat is not active")
		return fmt.Errorf("private.Send %d: status %s: %w", c.id, s, ErrInvalidState)
	}
	if err := c.d.requireConnection("private.Send"); err != nil {
		return err
	}
	msg, err := c.d.API.SendChatMessage(ctx, c.id, content)
	if err != nil {
		return c.d.fail("private.Send", err, "Failed to send message")
	}
	c.appendMessage(*msg)
	return nil
}

// End: waiting-сессия отменяется, active завершается.
func (c *PrivateChat) End(ctx context.Context) error {
	status := c.Session().Status
	switch status {
	case model.SessionWaiting:
		if err := c.d.API.Cancel(ctx, c.id); err != nil {
			return c.d.fail("private.End", err, "Failed to cancel chat request")
		}
	case model.SessionActive:
		if err := c.d.API.End(ctx, c.id); err != nil {
			return c.d.fail("private.End", err, "Failed to end chat")
		}
	default:
		return fmt.Errorf("private.End %d: status %s: %w", c.id, status, ErrInvalidState)
	}
	c.d.Store.ApplySessionPatch(store.SessionPatch{ID: c.id, Status: model.SessionEnded})
	return nil
}

// Close снимает подписки и выходит из комнаты. Повторный вызов ничего не делает.
func (c *PrivateChat) Close() {
	if c.close() {
		c.d.leaveRoom(transport.ScopeSession, c.id)
	}
}
