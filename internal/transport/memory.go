package transport

import (
	"context"
	"encoding/json"
	"sync"
)

// Emitted is one event sent through a Memory socket.
type Emitted struct {
	Type    EventType
	Payload json.RawMessage
}

// Memory is an in-process Socket. The "server" side is driven by Push, Drop,
// Reconnect and GiveUp; everything the client emits is recorded.
type Memory struct {
	listeners listeners
	rooms     rooms

	mu        sync.Mutex
	connected bool
	emitted   []Emitted
}

var _ Socket = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.connected {
		m.mu.Unlock()
		return nil
	}
	m.connected = true
	m.mu.Unlock()
	m.listeners.dispatch(EventConnected, nil)
	return nil
}

func (m *Memory) Disconnect() {
	m.drop("io client disconnect")
}

// Drop simulates a network failure.
func (m *Memory) Drop() {
	m.drop("transport close")
}

func (m *Memory) drop(reason string) {
	m.mu.Lock()
	if !m.connected {
		m.mu.Unlock()
		return
	}
	m.connected = false
	m.mu.Unlock()
	m.listeners.dispatchValue(EventDisconnected, DisconnectPayload{Reason: reason})
}

// Reconnect brings a dropped socket back and re-joins remembered rooms, like Client does.
func (m *Memory) Reconnect() {
	m.mu.Lock()
	if m.connected {
		m.mu.Unlock()
		return
	}
	m.connected = true
	m.mu.Unlock()
	for _, k := range m.rooms.list() {
		join, _, payload, err := roomEvents(k.scope, k.id)
		if err == nil {
			m.record(join, payload)
		}
	}
	m.listeners.dispatchValue(EventReconnect, ReconnectPayload{Attempt: 1})
	m.listeners.dispatch(EventConnected, nil)
}

// GiveUp simulates an exhausted reconnect budget.
func (m *Memory) GiveUp() {
	m.drop("transport close")
	m.listeners.dispatch(EventReconnectFailed, nil)
}

func (m *Memory) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *Memory) On(event EventType, h Handler) func() {
	return m.listeners.on(event, h)
}

func (m *Memory) Emit(event EventType, payload any) error {
	if !m.IsConnected() {
		return ErrNotConnected
	}
	m.record(event, payload)
	return nil
}

func (m *Memory) JoinRoom(scope Scope, id int64) error {
	join, _, payload, err := roomEvents(scope, id)
	if err != nil {
		return err
	}
	if err := m.Emit(join, payload); err != nil {
		return err
	}
	m.rooms.add(roomKey{scope: scope, id: id})
	return nil
}

func (m *Memory) LeaveRoom(scope Scope, id int64) error {
	_, leave, payload, err := roomEvents(scope, id)
	if err != nil {
		return err
	}
	m.rooms.remove(roomKey{scope: scope, id: id})
	return m.Emit(leave, payload)
}

// Push delivers a server event to the registered handlers synchronously.
func (m *Memory) Push(event EventType, payload any) {
	m.listeners.dispatchValue(event, payload)
}

// Emitted returns a copy of everything emitted so far.
func (m *Memory) Emitted() []Emitted {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Emitted, len(m.emitted))
	copy(out, m.emitted)
	return out
}

// Count returns how many times event was emitted.
func (m *Memory) Count(event EventType) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.emitted {
		if e.Type == event {
			n++
		}
	}
	return n
}

func (m *Memory) record(event EventType, payload any) {
	var raw json.RawMessage
	if payload != nil {
		raw, _ = json.Marshal(payload)
	}
	m.mu.Lock()
	m.emitted = append(m.emitted, Emitted{Type: event, Payload: raw})
	m.mu.Unlock()
}
