package model

import "time"

// ChatMessage: сообщение 1:1 сессии в том виде, в каком его отдаёт API и push-канал.
type ChatMessage struct {
	ID                 int64     `json:"id"`
	ChatSessionID      int64     `json:"chat_session_id"`
	SenderSessionToken string    `json:"sender_session_token"`
	SenderUsername     string    `json:"sender_username"`
	Content            string    `json:"content"`
	CreatedAt          time.Time `json:"created_at"`
}

// ChatroomMessage: сообщение общей комнаты.
type ChatroomMessage struct {
	ID                 int64     `json:"id"`
	ChatroomID         int64     `json:"chatroom_id"`
	SenderSessionToken string    `json:"sender_session_token,omitempty"`
	SenderUsername     string    `json:"sender_username,omitempty"`
	Content            string    `json:"content"`
	CreatedAt          time.Time `json:"created_at"`
	Snapshot           *Snapshot `json:"snapshot,omitempty"`
}

// Message: строка лога random-чата для отображения (IsMe вычисляется клиентом).
type Message struct {
	ID        int64     `json:"id"`
	Content   string    `json:"content"`
	Username  string    `json:"username"`
	IsMe      bool      `json:"is_me"`
	IsSystem  bool      `json:"is_system,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
