package model

import "time"

type SessionStatus string

const (
	SessionWaiting SessionStatus = "waiting"
	SessionActive  SessionStatus = "active"
	SessionEnded   SessionStatus = "ended"
)

// Rank orders statuses along the only direction a session can move.
// Unknown statuses rank below waiting so they never override a known one.
func (s SessionStatus) Rank() int {
	switch s {
	case SessionWaiting:
		return 1
	case SessionActive:
		return 2
	case SessionEnded:
		return 3
	default:
		return 0
	}
}

type SessionType string

const (
	SessionRandom  SessionType = "random"
	SessionPlanned SessionType = "planned"
)

// ChatSession is the client's cached, possibly stale copy of a server-owned 1:1 session.
type ChatSession struct {
	ID                 int64         `json:"id"`
	User1Username      string        `json:"user1_username"`
	User2Username      string        `json:"user2_username"`
	User1SessionToken  string        `json:"user1_session_token,omitempty"`
	User2SessionToken  string        `json:"user2_session_token,omitempty"`
	User1Discriminator string        `json:"user1_discriminator,omitempty"`
	User2Discriminator string        `json:"user2_discriminator,omitempty"`
	Status             SessionStatus `json:"status"`
	Type               SessionType   `json:"type"`
	CreatedAt          time.Time     `json:"created_at"`
	MatchedAt          *time.Time    `json:"matched_at,omitempty"`
	EndedAt            *time.Time    `json:"ended_at,omitempty"`
}

// IsUser1 reports whether token belongs to the session's first participant.
func (s *ChatSession) IsUser1(token string) bool {
	return token != "" && s.User1SessionToken == token
}

// Partner returns the other participant's display name and token.
// Tokens are compared first; usernames are the fallback when a token is unknown.
func (s *ChatSession) Partner(myToken, myUsername string) (username, token string) {
	switch {
	case myToken != "" && s.User1SessionToken == myToken:
		return s.User2Username, s.User2SessionToken
	case myToken != "" && s.User2SessionToken == myToken:
		return s.User1Username, s.User1SessionToken
	case myUsername != "" && s.User1Username == myUsername:
		return s.User2Username, s.User2SessionToken
	default:
		return s.User1Username, s.User1SessionToken
	}
}
