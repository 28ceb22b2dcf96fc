package ws

type EventType string

const (
	// EventState: полный снимок Store; UI перерисовывается целиком.
	EventState EventType = "state"
	EventError EventType = "error"

	// Команды от UI
	EventDismissNotification EventType = "dismiss_notification"
	EventToggleMinimize      EventType = "toggle_minimize"
	EventRemoveFloater       EventType = "remove_floater"
)

// IncomingMessage is what the local UI sends over the state stream.
type IncomingMessage struct {
	Type      EventType `json:"type"`
	SessionID int64     `json:"session_id,omitempty"`
}

// OutgoingMessage is what the hub sends to the UI.
type OutgoingMessage struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}
