package api

import (
	"context"
	"net/http"

	"github.com/agora/internal/model"
)

type sessionResponse struct {
	Success bool                `json:"success"`
	User    model.AnonymousUser `json:"user"`
	Message string              `json:"message,omitempty"`
}

// CreateSession создаёт анонимную сессию (или обновляет имя существующей). Cookie сохраняется в jar.
func (c *Client) CreateSession(ctx context.Context, username string) (*model.AnonymousUser, error) {
	var body map[string]string
	if username != "" {
		body = map[string]string{"username": username}
	} else {
		body = map[string]string{}
	}
	var out sessionResponse
	if err := c.do(ctx, "CreateSession", http.MethodPost, "/api/session/create", nil, body, &out); err != nil {
		return nil, err
	}
	if out.User.SessionToken != "" && c.SessionToken() == "" {
		c.SetSessionToken(out.User.SessionToken)
	}
	return &out.User, nil
}

// UpdateUsername меняет имя текущей сессии.
func (c *Client) UpdateUsername(ctx context.Context, username string) error {
	return c.do(ctx, "UpdateUsername", http.MethodPut, "/api/session/username", nil,
		map[string]string{"username": username}, nil)
}

// Me возвращает текущую идентичность.
func (c *Client) Me(ctx context.Context) (*model.AnonymousUser, error) {
	var out sessionResponse
	if err := c.do(ctx, "Me", http.MethodGet, "/api/session/me", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out.User, nil
}
