package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/agora/internal/model"
)

type chatSessionsResponse struct {
	Sessions []model.ChatSession `json:"sessions"`
}

type chatSessionResponse struct {
	Session model.ChatSession `json:"session"`
}

type chatMessagesResponse struct {
	Messages []model.ChatMessage `json:"messages"`
}

type chatMessageResponse struct {
	Success bool              `json:"success"`
	Message model.ChatMessage `json:"message"`
}

func sessionPath(id int64, action string) string {
	if action == "" {
		return fmt.Sprintf("/api/chat/%d", id)
	}
	return fmt.Sprintf("/api/chat/%d/%s", id, action)
}

// ChatSessions возвращает все 1:1 сессии текущего пользователя.
func (c *Client) ChatSessions(ctx context.Context) ([]model.ChatSession, error) {
	var out chatSessionsResponse
	if err := c.do(ctx, "ChatSessions", http.MethodGet, "/api/chat/sessions", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

// FindSession ищет сессию по id среди сессий пользователя. Нет такой: ErrNotFound.
func (c *Client) FindSession(ctx context.Context, id int64) (*model.ChatSession, error) {
	sessions, err := c.ChatSessions(ctx)
	if err != nil {
		return nil, err
	}
	for i := range sessions {
		if sessions[i].ID == id {
			return &sessions[i], nil
		}
	}
	return nil, fmt.Errorf("api.FindSession %d: %w", id, ErrNotFound)
}

// MatchRandom ставит пользователя в очередь случайного чата.
func (c *Client) MatchRandom(ctx context.Context) (*model.ChatSession, error) {
	var out chatSessionResponse
	if err := c.do(ctx, "MatchRandom", http.MethodPost, "/api/chat/match/random", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out.Session, nil
}

// MatchPlanned отправляет приглашение конкретному пользователю.
func (c *Client) MatchPlanned(ctx context.Context, recipientID string) (*model.ChatSession, error) {
	var out chatSessionResponse
	body := map[string]string{"recipientId": recipientID}
	if err := c.do(ctx, "MatchPlanned", http.MethodPost, "/api/chat/match/planned", nil, body, &out); err != nil {
		return nil, err
	}
	return &out.Session, nil
}

// Accept принимает приглашение (может только приглашённый).
func (c *Client) Accept(ctx context.Context, id int64) (*model.ChatSession, error) {
	var out chatSessionResponse
	if err := c.do(ctx, "Accept", http.MethodPost, sessionPath(id, "accept"), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out.Session, nil
}

func (c *Client) Reject(ctx context.Context, id int64) error {
	return c.do(ctx, "Reject", http.MethodDelete, sessionPath(id, "reject"), nil, nil, nil)
}

// Cancel отменяет сессию в статусе waiting (поиск случайного собеседника или исходящее приглашение).
func (c *Client) Cancel(ctx context.Context, id int64) error {
	return c.do(ctx, "Cancel", http.MethodDelete, sessionPath(id, "cancel"), nil, nil, nil)
}

// End завершает активную сессию, история сохраняется.
func (c *Client) End(ctx context.Context, id int64) error {
	return c.do(ctx, "End", http.MethodPut, sessionPath(id, "end"), nil, nil, nil)
}

// Delete удаляет сессию целиком.
func (c *Client) Delete(ctx context.Context, id int64) error {
	return c.do(ctx, "Delete", http.MethodDelete, sessionPath(id, ""), nil, nil, nil)
}

func (c *Client) MarkRead(ctx context.Context, id int64) error {
	return c.do(ctx, "MarkRead", http.MethodPut, sessionPath(id, "mark-read"), nil, nil, nil)
}

func (c *Client) ChatMessages(ctx context.Context, id int64) ([]model.ChatMessage, error) {
	var out chatMessagesResponse
	if err := c.do(ctx, "ChatMessages", http.MethodGet, sessionPath(id, "messages"), nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

func (c *Client) SendChatMessage(ctx context.Context, id int64, content string) (*model.ChatMessage, error) {
	var out chatMessageResponse
	if err := c.do(ctx, "SendChatMessage", http.MethodPost, sessionPath(id, "messages"), nil, map[string]string{"content": content}, &out); err != nil {
		return nil, err
	}
	return &out.Message, nil
}

// CancelBeacon и EndBeacon: варианты Cancel/End, переживающие завершение вызывающего.
func (c *Client) CancelBeacon(id int64) { c.Beacon(http.MethodDelete, sessionPath(id, "cancel")) }

func (c *Client) EndBeacon(id int64) { c.Beacon(http.MethodPut, sessionPath(id, "end")) }
