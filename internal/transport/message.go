package transport

import (
	"encoding/json"
	"time"
)

type EventType string

// Push events consumed from the server.
const (
	EventStartChat                EventType = "start_chat"
	EventUserLeft                 EventType = "user_left"
	EventNewMessage               EventType = "new_message"
	EventSessionEnded             EventType = "session_ended"
	EventSessionExpired           EventType = "session_expired"
	EventNewMessageRequest        EventType = "new_message_request"
	EventChatRequestAccepted      EventType = "chat_request_accepted"
	EventUserOnlineStatus         EventType = "user_online_status"
	EventNotificationCountUpdated EventType = "notification_count_updated"
	EventChatroomUsersUpdated     EventType = "chatroom_users_updated"
	EventNewChatroomMessage       EventType = "new_chatroom_message"
	EventServerDisconnect         EventType = "disconnect"
)

// Events emitted to the server.
const (
	EventJoinSession     EventType = "join_session"
	EventLeaveSession    EventType = "leave_session"
	EventJoinChatroom    EventType = "join_chatroom"
	EventLeaveChatroom   EventType = "leave_chatroom"
	EventCheckUserOnline EventType = "check_user_online"
	EventExpireSession   EventType = "expire_session"
)

// Local lifecycle events. They never travel over the wire.
const (
	EventConnected        EventType = "connect"
	EventDisconnected     EventType = "disconnected"
	EventReconnect        EventType = "reconnect"
	EventReconnectAttempt EventType = "reconnect_attempt"
	EventReconnectFailed  EventType = "reconnect_failed"
)

// ServerKickReason is the disconnect reason the server sends when it drops the client on purpose.
const ServerKickReason = "io server disconnect"

// CloseServerKick is the websocket close code used for the same purpose.
const CloseServerKick = 4000

// Envelope is one frame on the push channel in both directions.
type Envelope struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Scope selects the kind of room a client joins.
type Scope string

const (
	ScopeSession  Scope = "session"
	ScopeChatroom Scope = "chatroom"
)

// --- Typed payloads ---

type SessionRoomPayload struct {
	SessionID int64 `json:"session_id"`
}

type ChatroomRoomPayload struct {
	ChatroomID int64 `json:"chatroom_id"`
}

type CheckUserOnlinePayload struct {
	SessionToken string `json:"session_token"`
}

type StartChatPayload struct {
	SessionID         int64  `json:"session_id"`
	User1Username     string `json:"user1_username"`
	User2Username     string `json:"user2_username"`
	User1SessionToken string `json:"user1_session_token,omitempty"`
	User2SessionToken string `json:"user2_session_token,omitempty"`
}

type UserLeftPayload struct {
	SessionID int64  `json:"session_id"`
	Username  string `json:"username"`
}

type NewMessagePayload struct {
	ID                 int64     `json:"id"`
	ChatSessionID      int64     `json:"chat_session_id"`
	SenderSessionToken string    `json:"sender_session_token"`
	SenderUsername     string    `json:"sender_username"`
	Content            string    `json:"content"`
	CreatedAt          time.Time `json:"created_at"`
}

type SessionEndedPayload struct {
	SessionID int64  `json:"session_id"`
	Reason    string `json:"reason"`
}

type SessionExpiredPayload struct {
	SessionID int64  `json:"session_id"`
	Reason    string `json:"reason,omitempty"`
}

type NewMessageRequestPayload struct {
	SessionID             int64     `json:"session_id"`
	RequesterUsername     string    `json:"requester_username"`
	RequesterSessionToken string    `json:"requester_session_token"`
	CreatedAt             time.Time `json:"created_at"`
}

type ChatRequestAcceptedPayload struct {
	SessionID         int64  `json:"session_id"`
	User1Username     string `json:"user1_username"`
	User2Username     string `json:"user2_username"`
	User1SessionToken string `json:"user1_session_token"`
	User2SessionToken string `json:"user2_session_token"`
}

type UserOnlineStatusPayload struct {
	SessionToken string `json:"session_token"`
	Online       bool   `json:"online"`
}

type NotificationCountPayload struct {
	Count int `json:"count"`
}

type ChatroomUsersPayload struct {
	ChatroomID int64 `json:"chatroom_id"`
	UserCount  int   `json:"user_count"`
}

type NewChatroomMessagePayload struct {
	ID                 int64     `json:"id"`
	ChatroomID         int64     `json:"chatroom_id"`
	SenderSessionToken string    `json:"sender_session_token"`
	SenderUsername     string    `json:"sender_username"`
	Content            string    `json:"content"`
	CreatedAt          time.Time `json:"created_at"`
}

type DisconnectPayload struct {
	Reason string `json:"reason"`
}

type ReconnectPayload struct {
	Attempt int `json:"attempt"`
}
