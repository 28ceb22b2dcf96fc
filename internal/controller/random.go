package controller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agora/internal/logger"
	"github.com/agora/internal/model"
	"github.com/agora/internal/storage"
	"github.com/agora/internal/store"
	"github.com/agora/internal/transport"
)

// RandomChat управляет единственным random-чатом процесса. Push-события для него
// обрабатывает events.Dispatcher; здесь только действия пользователя.
type RandomChat struct {
	d  Deps
	mu sync.Mutex // одно действие за раз: find/cancel/end не перемежаются

	// gen растёт при каждом уходе со страницы; find сверяет его после ответа match.
	// Teardown не ждёт mu, иначе навигация висит до таймаута запроса.
	genMu sync.Mutex
	gen   uint64
}

func NewRandomChat(d Deps) *RandomChat {
	return &RandomChat{d: d}
}

// Find ставит пользователя в очередь: idle -> waiting (или сразу matched, если start_chat уже пришёл).
func (c *RandomChat) Find(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.find(ctx)
}

func (c *RandomChat) find(ctx context.Context) error {
	r := c.d.Store.Snapshot().Random
	if r.Status != store.RandomIdle && r.Status != store.RandomEnded {
		return fmt.Errorf("random.Find: status %s: %w", r.Status, ErrInvalidState)
	}
	// без канала start_chat не дойдёт, а сессия на сервере повиснет
	if err := c.d.requireConnection("random.Find"); err != nil {
		return err
	}
	c.genMu.Lock()
	gen := c.gen
	c.genMu.Unlock()

	session, err := c.d.API.MatchRandom(ctx)
	if err != nil {
		return c.d.fail("random.Find", err, "Failed to start random chat")
	}
	c.d.Store.ApplySessionPatch(store.PatchFromSession(*session))

	c.genMu.Lock()
	defer c.genMu.Unlock()
	if c.gen != gen {
		// страницу покинули, пока шёл запрос: сессия на сервере есть, у нас её уже нет
		c.abandon(ctx, session.ID, session.Status == model.SessionActive)
		return fmt.Errorf("random.Find: page closed during request: %w", ErrInvalidState)
	}
	if !c.d.Store.BeginRandomSearch(session.ID) {
		return fmt.Errorf("random.Find: state changed during request: %w", ErrInvalidState)
	}
	logger.Infof("random chat: searching, session %d", session.ID)
	return c.d.joinRoom("random.Find", transport.ScopeSession, session.ID)
}

// Cancel отменяет поиск: waiting -> idle.
func (c *RandomChat) Cancel(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancel(ctx)
}

func (c *RandomChat) cancel(ctx context.Context) error {
	r := c.d.Store.Snapshot().Random
	if r.Status != store.RandomWaiting {
		return fmt.Errorf("random.Cancel: status %s: %w", r.Status, ErrInvalidState)
	}
	if err := c.d.API.Cancel(ctx, r.SessionID); err != nil {
		return c.d.fail("random.Cancel", err, "Failed to cancel search")
	}
	c.d.Store.CancelRandomSearch()
	c.d.leaveRoom(transport.ScopeSession, r.SessionID)
	logger.Infof("random chat: search %d cancelled", r.SessionID)
	return nil
}

// End завершает текущий чат. Для waiting это отмена поиска, для matched и ended завершение;
// местами их не менять.
func (c *RandomChat) End(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.end(ctx)
}

func (c *RandomChat) end(ctx context.Context) error {
	r := c.d.Store.Snapshot().Random
	switch r.Status {
	case store.RandomWaiting:
		return c.cancel(ctx)
	case store.RandomMatched, store.RandomEnded:
	default:
		return fmt.Errorf("random.End: status %s: %w", r.Status, ErrInvalidState)
	}
	if err := c.d.API.End(ctx, r.SessionID); err != nil {
		if r.Status == store.RandomMatched {
			return c.d.fail("random.End", err, "Failed to end chat")
		}
		// сессия уже завершена сервером, отказ повторного end не мешает закрыть чат
		logger.Errorf("random.End: session %d already ended: %v", r.SessionID, err)
	}
	c.d.Store.ClearRandomChat()
	c.d.leaveRoom(transport.ScopeSession, r.SessionID)
	logger.Infof("random chat: session %d ended", r.SessionID)
	return nil
}

// Reroll завершает текущий чат и сразу ищет новый.
func (c *RandomChat) Reroll(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.d.Store.Snapshot().Random.Status != store.RandomIdle {
		if err := c.end(ctx); err != nil {
			return err
		}
	}
	return c.find(ctx)
}

// Send отправляет сообщение в matched-чат. Сообщение из ответа попадает в лог сразу,
// копия из push отбрасывается по id.
func (c *RandomChat) Send(ctx context.Context, content string) error {
	content, err := normalizeContent(content)
	if err != nil {
		return err
	}
	st := c.d.Store.Snapshot()
	if st.Random.Status != store.RandomMatched {
		return fmt.Errorf("random.Send: status %s: %w", st.Random.Status, ErrInvalidState)
	}
	if err := c.d.requireConnection("random.Send"); err != nil {
		return err
	}
	msg, err := c.d.API.SendChatMessage(ctx, st.Random.SessionID, content)
	if err != nil {
		return c.d.fail("random.Send", err, "Failed to send message")
	}
	c.d.Store.AddRandomChatMessage(chatMessageView(*msg, st.Identity))
	return nil
}

// Teardown: уход со страницы или завершение процесса. Для waiting и matched отправляется
// beacon cancel/end, не более одного на сессию: guard по ключу cleanup:session:<id>:<token>
// гасит повтор из второго обработчика. Локальное состояние чистится в любом случае.
// Find, который ещё ждёт ответа, увидит новый gen и закроет свою сессию сам.
func (c *RandomChat) Teardown(ctx context.Context) {
	c.genMu.Lock()
	c.gen++
	r := c.d.Store.Snapshot().Random
	c.genMu.Unlock()
	if r.Status != store.RandomWaiting && r.Status != store.RandomMatched {
		return
	}
	c.abandon(ctx, r.SessionID, r.Status == store.RandomMatched)
	c.d.Store.ClearRandomChat()
	c.d.leaveRoom(transport.ScopeSession, r.SessionID)
}

// abandon шлёт beacon end (matched) или cancel (waiting) через guard.
func (c *RandomChat) abandon(ctx context.Context, sessionID int64, matched bool) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	token := c.d.Store.Snapshot().Identity.SessionToken
	ok, err := c.d.Guard.Claim(ctx, storage.SessionCleanupKey(token, sessionID))
	switch {
	case err != nil:
		// guard недоступен: beacon не шлём
		logger.Errorf("random: guard %d: %v", sessionID, err)
	case !ok:
		logger.Debugf("random: session %d already cleaned up", sessionID)
	case matched:
		c.d.API.EndBeacon(sessionID)
		logger.Infof("random chat: end beacon sent for session %d", sessionID)
	default:
		c.d.API.CancelBeacon(sessionID)
		logger.Infof("random chat: cancel beacon sent for session %d", sessionID)
	}
}
