// Package controller содержит логику страниц клиента: random-чат, страница 1:1 чата,
// список личных чатов, комнаты и входящие приглашения. Контроллеры ходят в REST,
// подписываются на push-события своего id и меняют Store только через его методы.
package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/agora/internal/api"
	"github.com/agora/internal/events"
	"github.com/agora/internal/logger"
	"github.com/agora/internal/model"
	"github.com/agora/internal/storage"
	"github.com/agora/internal/store"
	"github.com/agora/internal/transport"
)

var (
	ErrNotFound     = errors.New("chat session not found")
	ErrInvalidState = errors.New("invalid state")
)

// DefaultExpiry: окно ожидания ответа на waiting-сессию.
const DefaultExpiry = 5 * time.Minute

// Deps: общие зависимости контроллеров. Все поля, кроме Expiry, обязательны.
type Deps struct {
	API    *api.Client
	Socket transport.Socket
	Store  *store.Store
	Guard  storage.CleanupGuard
	Events *events.Dispatcher
	Expiry time.Duration
}

func (d Deps) expiry() time.Duration {
	if d.Expiry <= 0 {
		return DefaultExpiry
	}
	return d.Expiry
}

// fail показывает баннер с сообщением сервера (или fallback) и возвращает err.
func (d Deps) fail(op string, err error, fallback string) error {
	logger.Errorf("%s: %v", op, err)
	d.Store.ShowNotification(model.NotifyError, api.ErrorMessage(err, fallback))
	return err
}

// requireConnection проверяет канал перед join/emit. Если канала нет, показывает баннер ConnectionLost.
func (d Deps) requireConnection(op string) error {
	if d.Socket.IsConnected() {
		return nil
	}
	logger.Errorf("%s: %v", op, transport.ErrNotConnected)
	d.Store.ShowNotification(model.NotifyError, events.ConnectionLost)
	return fmt.Errorf("%s: %w", op, transport.ErrNotConnected)
}

// joinRoom входит в комнату; при мёртвом канале показывает баннер.
func (d Deps) joinRoom(op string, scope transport.Scope, id int64) error {
	if err := d.requireConnection(op); err != nil {
		return err
	}
	if err := d.Socket.JoinRoom(scope, id); err != nil {
		return d.fail(op, err, events.ConnectionLost)
	}
	logger.Debugf("%s: joined %s %d", op, scope, id)
	return nil
}

func (d Deps) leaveRoom(scope transport.Scope, id int64) {
	if err := d.Socket.LeaveRoom(scope, id); err != nil && !errors.Is(err, transport.ErrNotConnected) {
		logger.Errorf("leave %s %d: %v", scope, id, err)
	}
}

// refreshIdentity подтягивает текущего пользователя в Store.
func (d Deps) refreshIdentity(ctx context.Context) error {
	me, err := d.API.Me(ctx)
	if err != nil {
		return err
	}
	token := me.SessionToken
	if token == "" {
		token = d.API.SessionToken()
	}
	d.Store.SetIdentity(token, me.Username)
	return nil
}

func normalizeContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", fmt.Errorf("empty message: %w", ErrInvalidState)
	}
	return content, nil
}

// page: общий скелет страницы. Подписки снимаются раньше выхода из комнаты,
// после Close поздние ответы REST и события игнорируются.
type page struct {
	mu     sync.Mutex
	closed bool
	offs   []func()
}

func (p *page) listen(s transport.Socket, event transport.EventType, h transport.Handler) {
	off := s.On(event, func(raw json.RawMessage) {
		if p.isClosed() {
			return
		}
		h(raw)
	})
	p.mu.Lock()
	p.offs = append(p.offs, off)
	p.mu.Unlock()
}

func (p *page) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// close снимает подписки; false, если страница уже закрыта.
func (p *page) close() bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false
	}
	p.closed = true
	offs := p.offs
	p.offs = nil
	p.mu.Unlock()
	for _, off := range offs {
		off()
	}
	return true
}

func chatMessageView(m model.ChatMessage, id store.Identity) model.Message {
	isMe := m.SenderSessionToken != "" && m.SenderSessionToken == id.SessionToken
	if m.SenderSessionToken == "" || id.SessionToken == "" {
		isMe = m.SenderUsername != "" && m.SenderUsername == id.Username
	}
	return model.Message{
		ID:        m.ID,
		Content:   m.Content,
		Username:  m.SenderUsername,
		IsMe:      isMe,
		CreatedAt: m.CreatedAt,
	}
}
