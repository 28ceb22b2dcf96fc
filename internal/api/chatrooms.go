package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/agora/internal/model"
)

type CreateChatroomRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type chatroomsResponse struct {
	Chatrooms []model.Chatroom `json:"chatrooms"`
}

type chatroomResponse struct {
	Chatroom model.Chatroom `json:"chatroom"`
}

type chatroomMessagesResponse struct {
	Messages []model.ChatroomMessage `json:"messages"`
}

type chatroomMessageResponse struct {
	Success bool                  `json:"success"`
	Message model.ChatroomMessage `json:"message"`
}

func (c *Client) ListChatrooms(ctx context.Context, p Page) ([]model.Chatroom, error) {
	var out chatroomsResponse
	if err := c.do(ctx, "ListChatrooms", http.MethodGet, "/api/chatrooms", p.values(), nil, &out); err != nil {
		return nil, err
	}
	return out.Chatrooms, nil
}

func (c *Client) SearchChatrooms(ctx context.Context, query string, p Page) ([]model.Chatroom, error) {
	q := p.values()
	q.Set("q", query)
	var out chatroomsResponse
	if err := c.do(ctx, "SearchChatrooms", http.MethodGet, "/api/chatrooms/search", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Chatrooms, nil
}

func (c *Client) CreateChatroom(ctx context.Context, req CreateChatroomRequest) (*model.Chatroom, error) {
	var out chatroomResponse
	if err := c.do(ctx, "CreateChatroom", http.MethodPost, "/api/chatrooms", nil, req, &out); err != nil {
		return nil, err
	}
	return &out.Chatroom, nil
}

func (c *Client) ChatroomMessages(ctx context.Context, chatroomID int64) ([]model.ChatroomMessage, error) {
	var out chatroomMessagesResponse
	path := fmt.Sprintf("/api/chatrooms/%d/messages", chatroomID)
	if err := c.do(ctx, "ChatroomMessages", http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

func (c *Client) SendChatroomMessage(ctx context.Context, chatroomID int64, content string) (*model.ChatroomMessage, error) {
	var out chatroomMessageResponse
	path := fmt.Sprintf("/api/chatrooms/%d/messages", chatroomID)
	if err := c.do(ctx, "SendChatroomMessage", http.MethodPost, path, nil, map[string]string{"content": content}, &out); err != nil {
		return nil, err
	}
	return &out.Message, nil
}
