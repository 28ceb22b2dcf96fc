package store

import (
	"maps"
	"slices"

	"github.com/agora/internal/model"
)

// RandomStatus is the lifecycle of the random-chat slice.
type RandomStatus string

const (
	RandomIdle    RandomStatus = "idle"
	RandomWaiting RandomStatus = "waiting"
	RandomMatched RandomStatus = "matched"
	RandomEnded   RandomStatus = "ended"
)

// Identity is the current anonymous user.
type Identity struct {
	SessionToken string `json:"session_token"`
	Username     string `json:"username"`
}

// RandomChat holds the single random conversation. Messages are kept in arrival order.
type RandomChat struct {
	Status    RandomStatus    `json:"status"`
	SessionID int64           `json:"session_id,omitempty"`
	Partner   string          `json:"partner,omitempty"`
	Messages  []model.Message `json:"messages"`
	EndReason string          `json:"end_reason,omitempty"`
}

// State is an immutable snapshot handed to subscribers.
type State struct {
	Identity           Identity                    `json:"identity"`
	Connected          bool                        `json:"connected"`
	Random             RandomChat                  `json:"random"`
	PlannedChats       []model.PlannedChat         `json:"planned_chats"`
	MessageRequests    []model.MessageRequest      `json:"message_requests"`
	Notification       *model.Notification         `json:"notification,omitempty"`
	ChatUnreadCounts   map[int64]int               `json:"chat_unread_counts"`
	NotificationCount  int                         `json:"notification_count"`
	OnlineUsers        map[string]bool             `json:"online_users"`
	ChatroomUserCounts map[int64]int               `json:"chatroom_user_counts"`
	Sessions           map[int64]model.ChatSession `json:"-"`
	EndReasons         map[int64]string            `json:"-"`
	Version            uint64                      `json:"version"`
}

func initialState() State {
	return State{
		Random:             RandomChat{Status: RandomIdle},
		PlannedChats:       []model.PlannedChat{},
		MessageRequests:    []model.MessageRequest{},
		ChatUnreadCounts:   map[int64]int{},
		OnlineUsers:        map[string]bool{},
		ChatroomUserCounts: map[int64]int{},
		Sessions:           map[int64]model.ChatSession{},
		EndReasons:         map[int64]string{},
	}
}

func (s State) clone() State {
	out := s
	out.Random.Messages = slices.Clone(s.Random.Messages)
	if out.Random.Messages == nil {
		out.Random.Messages = []model.Message{}
	}
	out.PlannedChats = slices.Clone(s.PlannedChats)
	if out.PlannedChats == nil {
		out.PlannedChats = []model.PlannedChat{}
	}
	out.MessageRequests = slices.Clone(s.MessageRequests)
	if out.MessageRequests == nil {
		out.MessageRequests = []model.MessageRequest{}
	}
	if s.Notification != nil {
		n := *s.Notification
		out.Notification = &n
	}
	out.ChatUnreadCounts = maps.Clone(s.ChatUnreadCounts)
	out.OnlineUsers = maps.Clone(s.OnlineUsers)
	out.ChatroomUserCounts = maps.Clone(s.ChatroomUserCounts)
	out.Sessions = maps.Clone(s.Sessions)
	out.EndReasons = maps.Clone(s.EndReasons)
	return out
}

// PlannedChat returns the floater for id, if open.
func (s State) PlannedChat(id int64) (model.PlannedChat, bool) {
	for _, c := range s.PlannedChats {
		if c.ID == id {
			return c, true
		}
	}
	return model.PlannedChat{}, false
}

// HasMessageRequest reports whether a pending request exists for the session.
func (s State) HasMessageRequest(id int64) bool {
	for _, r := range s.MessageRequests {
		if r.SessionID == id {
			return true
		}
	}
	return false
}

// Session returns the merged cached copy of a chat session.
func (s State) Session(id int64) (model.ChatSession, bool) {
	cs, ok := s.Sessions[id]
	return cs, ok
}
