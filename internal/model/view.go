package model

import "time"

// PlannedChat: плавающее окно 1:1 чата. Существует только на клиенте.
type PlannedChat struct {
	ID              int64         `json:"id"`
	InviteCode      string        `json:"invite_code"`
	PartnerUsername string        `json:"partner_username,omitempty"`
	IsMinimized     bool          `json:"is_minimized"`
	UnreadCount     int           `json:"unread_count"`
	Status          SessionStatus `json:"status,omitempty"`
}

// MessageRequest: входящее приглашение в planned-чат, ожидающее ответа.
type MessageRequest struct {
	SessionID         int64     `json:"session_id"`
	RequesterUsername string    `json:"requester_username"`
	RequesterToken    string    `json:"requester_session_token"`
	CreatedAt         time.Time `json:"created_at"`
}

type NotificationKind string

const (
	NotifyError   NotificationKind = "error"
	NotifySuccess NotificationKind = "success"
	NotifyInfo    NotificationKind = "info"
)

// Notification: единственный баннер; новый вызов заменяет предыдущий целиком.
type Notification struct {
	Kind        NotificationKind `json:"type"`
	Text        string           `json:"message"`
	AutoDismiss bool             `json:"auto_dismiss"`
	Delay       time.Duration    `json:"delay"`
	// Seq растёт с каждым показом; по нему view отличает новый баннер от прежнего с тем же текстом.
	Seq uint64 `json:"seq"`
}
