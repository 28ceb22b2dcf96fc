package model

import "time"

// AnonymousUser: анонимная сессия пользователя (идентичность задаётся session_token).
type AnonymousUser struct {
	SessionToken  string    `json:"session_token"`
	Username      string    `json:"username"`
	Discriminator string    `json:"discriminator"`
	CreatedAt     time.Time `json:"created_at"`
	LastActive    time.Time `json:"last_active"`
	Notifications int       `json:"notifications,omitempty"`
}

// Snapshot: снимок автора на момент публикации (поля приходят от API).
type Snapshot struct {
	ID           int64     `json:"id"`
	SessionToken string    `json:"session_token"`
	Username     string    `json:"username"`
	CreatedAt    time.Time `json:"created_at"`
}
