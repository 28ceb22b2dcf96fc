package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/agora/internal/model"
	"github.com/agora/internal/transport"
)

// Chatroom: страница общей комнаты.
type Chatroom struct {
	page
	d  Deps
	id int64

	messages []model.ChatroomMessage
}

type ChatroomView struct {
	ChatroomID int64                   `json:"chatroom_id"`
	UserCount  int                     `json:"user_count"`
	Messages   []model.ChatroomMessage `json:"messages"`
}

func OpenChatroom(ctx context.Context, d Deps, id int64) (*Chatroom, error) {
	c := &Chatroom{d: d, id: id}
	c.listen(d.Socket, transport.EventNewChatroomMessage, c.onNewMessage)

	msgs, err := d.API.ChatroomMessages(ctx, id)
	if err != nil {
		c.close()
		return nil, d.fail("chatroom.Open", err, "Failed to load messages")
	}
	c.mu.Lock()
	merged := make([]model.ChatroomMessage, 0, len(msgs)+len(c.messages))
	merged = append(merged, msgs...)
	for _, m := range c.messages {
		if !containsRoomMessage(merged, m.ID) {
			merged = append(merged, m)
		}
	}
	c.messages = merged
	c.mu.Unlock()

	// без канала комната открыта только на чтение; баннер покажет joinRoom
	_ = d.joinRoom("chatroom.Open", transport.ScopeChatroom, id)
	return c, nil
}

func (c *Chatroom) ID() int64 { return c.id }

func containsRoomMessage(list []model.ChatroomMessage, id int64) bool {
	if id == 0 {
		return false
	}
	return slices.ContainsFunc(list, func(m model.ChatroomMessage) bool { return m.ID == id })
}

func (c *Chatroom) append(m model.ChatroomMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || containsRoomMessage(c.messages, m.ID) {
		return
	}
	c.messages = append(c.messages, m)
}

func (c *Chatroom) onNewMessage(raw json.RawMessage) {
	p, err := transport.Decode[transport.NewChatroomMessagePayload](raw)
	if err != nil || p.ChatroomID != c.id {
		return
	}
	c.append(model.ChatroomMessage{
		ID:                 p.ID,
		ChatroomID:         p.ChatroomID,
		SenderSessionToken: p.SenderSessionToken,
		SenderUsername:     p.SenderUsername,
		Content:            p.Content,
		CreatedAt:          p.CreatedAt,
	})
}

func (c *Chatroom) View() ChatroomView {
	count := c.d.Store.Snapshot().ChatroomUserCounts[c.id]
	c.mu.Lock()
	defer c.mu.Unlock()
	return ChatroomView{ChatroomID: c.id, UserCount: count, Messages: slices.Clone(c.messages)}
}

func (c *Chatroom) Send(ctx context.Context, content string) error {
	content, err := normalizeContent(content)
	if err != nil {
		return err
	}
	if c.isClosed() {
		return fmt.Errorf("chatroom.Send %d: closed: %w", c.id, ErrInvalidState)
	}
	if err := c.d.requireConnection("chatroom.Send"); err != nil {
		return err
	}
	msg, err := c.d.API.SendChatroomMessage(ctx, c.id, content)
	if err != nil {
		return c.d.fail("chatroom.Send", err, "Failed to send message")
	}
	c.append(*msg)
	return nil
}

func (c *Chatroom) Close() {
	if c.close() {
		c.d.leaveRoom(transport.ScopeChatroom, c.id)
	}
}
