// Package ws держит поток состояния для локального UI. Каждый снимок Store уходит всем
// подключённым вкладкам, обратно принимаются простые команды (скрыть баннер, свернуть окно).
package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/agora/internal/logger"
	"github.com/agora/internal/store"
)

type Hub struct {
	mu       sync.RWMutex
	clients  map[*Client]struct{}
	maxConns int

	store      *store.Store
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

func NewHub(s *store.Store, maxConns int) *Hub {
	if maxConns <= 0 {
		maxConns = 64
	}
	return &Hub{
		clients:    make(map[*Client]struct{}),
		maxConns:   maxConns,
		store:      s,
		register:   make(chan *Client, 16),
		unregister: make(chan *Client, 16),
		done:       make(chan struct{}),
	}
}

// Run обслуживает регистрацию клиентов и рассылку снимков до отмены ctx.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	unsub := h.store.Subscribe(h.broadcast)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

func (h *Hub) shutdown() {
	// Collect all clients under the lock, do NOT perform I/O under mutex.
	h.mu.Lock()
	all := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		all = append(all, c)
	}
	h.clients = make(map[*Client]struct{})
	h.mu.Unlock()

	for _, c := range all {
		c.Close()
	}
	for _, c := range all {
		c.Wait()
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	if len(h.clients) >= h.maxConns {
		h.mu.Unlock()
		logger.Errorf("ws connection limit reached (%d), rejecting %s", h.maxConns, c.remote)
		c.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	logger.Debugf("ws viewer connected %s", c.remote)

	// первый кадр: текущее состояние; дальше кадры только с большей версией
	h.sendState(c, h.store.Snapshot())
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	h.mu.Unlock()
	c.Close()
	logger.Debugf("ws viewer disconnected %s", c.remote)
}

// broadcast вызывается Store синхронно после каждого изменения.
func (h *Hub) broadcast(st store.State) {
	data, err := encode(OutgoingMessage{Type: EventState, Payload: st})
	if err != nil {
		logger.Errorf("ws encode state: %v", err)
		return
	}
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.sendFrame(c, st.Version, data)
	}
}

func (h *Hub) sendState(c *Client, st store.State) {
	data, err := encode(OutgoingMessage{Type: EventState, Payload: st})
	if err != nil {
		logger.Errorf("ws encode state: %v", err)
		return
	}
	h.sendFrame(c, st.Version, data)
}

// sendFrame кладёт кадр в очередь клиента, пропуская версии не новее уже отправленной.
func (h *Hub) sendFrame(c *Client, version uint64, data []byte) {
	c.mu.Lock()
	if c.sent && version <= c.version {
		c.mu.Unlock()
		return
	}
	c.sent, c.version = true, version
	c.mu.Unlock()
	h.sendToClient(c, data)
}

func (h *Hub) sendToClient(c *Client, data []byte) {
	select {
	case c.send <- data:
	case <-c.done:
	default:
		// Backpressure: send buffer full, close slow client.
		logger.Errorf("ws send buffer full, closing slow viewer %s", c.remote)
		c.Close()
	}
}

func (h *Hub) sendError(c *Client, msg string) {
	data, err := encode(OutgoingMessage{Type: EventError, Payload: msg})
	if err == nil {
		h.sendToClient(c, data)
	}
}

// HandleMessage выполняет команду UI. Вызывается из readPump, не из рассылки Store.
func (h *Hub) HandleMessage(c *Client, msg IncomingMessage) {
	switch msg.Type {
	case EventDismissNotification:
		h.store.DismissNotification()
	case EventToggleMinimize:
		if msg.SessionID == 0 || !h.store.ToggleMinimize(msg.SessionID) {
			h.sendError(c, "unknown floater")
		}
	case EventRemoveFloater:
		h.store.RemovePlannedChat(msg.SessionID)
	default:
		h.sendError(c, "unknown event type")
	}
}

func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		c.Close()
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Count: число подключённых вкладок.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func encode(msg OutgoingMessage) ([]byte, error) {
	return json.Marshal(msg)
}
