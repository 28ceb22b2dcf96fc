package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/agora/internal/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
	sendBufSize    = 256
)

// bufPool pools bytes.Buffer for JSON encoding in writePump.
var bufPool = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

// Options configure the websocket client. Zero values take the defaults below.
type Options struct {
	URL    string
	Header http.Header
	Jar    http.CookieJar

	ReconnectAttempts int           // default 5
	ReconnectDelay    time.Duration // default 1s
	ReconnectDelayMax time.Duration // default 5s
	HandshakeTimeout  time.Duration // default 10s
}

func (o *Options) withDefaults() {
	if o.ReconnectAttempts <= 0 {
		o.ReconnectAttempts = 5
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = time.Second
	}
	if o.ReconnectDelayMax < o.ReconnectDelay {
		o.ReconnectDelayMax = 5 * time.Second
		if o.ReconnectDelayMax < o.ReconnectDelay {
			o.ReconnectDelayMax = o.ReconnectDelay
		}
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 10 * time.Second
	}
}

// liveConn is one established websocket with its send queue.
// Lifecycle: dial -> serve (readPump + writePump) -> close.
type liveConn struct {
	ws     *websocket.Conn
	send   chan Envelope
	done   chan struct{}
	once   sync.Once
	kicked atomic.Bool
}

func newLiveConn(ws *websocket.Conn) *liveConn {
	return &liveConn{
		ws:   ws,
		send: make(chan Envelope, sendBufSize),
		done: make(chan struct{}),
	}
}

// close is safe to call multiple times from any goroutine.
func (lc *liveConn) close() {
	lc.once.Do(func() {
		close(lc.done)
		lc.ws.Close()
	})
}

func (lc *liveConn) alive() bool {
	select {
	case <-lc.done:
		return false
	default:
		return true
	}
}

// Client is the websocket implementation of Socket. Nothing is dialed until Connect.
type Client struct {
	opts      Options
	dialer    *websocket.Dialer
	listeners listeners
	rooms     rooms

	mu      sync.Mutex
	cur     *liveConn
	running bool
	gen     uint64
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

var _ Socket = (*Client)(nil)

func NewClient(opts Options) *Client {
	opts.withDefaults()
	return &Client{
		opts: opts,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.HandshakeTimeout,
			Jar:              opts.Jar,
		},
	}
}

// Connect starts the connection loop and returns immediately. Calling it while the loop
// is running is a no-op. ctx bounds the lifetime of the loop.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}
	if c.opts.URL == "" {
		return errors.New("transport.Connect: socket url is empty")
	}
	loopCtx, cancel := context.WithCancel(ctx)
	c.running = true
	c.gen++
	c.cancel = cancel
	c.wg.Add(1)
	go c.run(loopCtx, c.gen)
	return nil
}

// Disconnect stops the loop and closes the live connection. Idempotent.
// It does not wait for goroutines, so it may be called from an event handler; use Wait for that.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	cancel := c.cancel
	cur := c.cur
	c.mu.Unlock()

	cancel()
	if cur != nil {
		cur.close()
	}
}

// Wait blocks until the connection loop has exited.
func (c *Client) Wait() {
	c.wg.Wait()
}

func (c *Client) IsConnected() bool {
	cn := c.current()
	return cn != nil && cn.alive()
}

func (c *Client) On(event EventType, h Handler) func() {
	return c.listeners.on(event, h)
}

func (c *Client) Emit(event EventType, payload any) error {
	cn := c.current()
	if cn == nil || !cn.alive() {
		return ErrNotConnected
	}
	return enqueue(cn, event, payload)
}

// JoinRoom fails with ErrNotConnected on a dead channel. Joined rooms are re-joined
// after every reconnect.
func (c *Client) JoinRoom(scope Scope, id int64) error {
	join, _, payload, err := roomEvents(scope, id)
	if err != nil {
		return err
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	if err := c.Emit(join, payload); err != nil {
		return err
	}
	c.rooms.add(roomKey{scope: scope, id: id})
	logger.Debugf("transport joined %s %d", scope, id)
	return nil
}

// LeaveRoom forgets the room even when disconnected, so it is not re-joined later,
// but still reports ErrNotConnected in that case.
func (c *Client) LeaveRoom(scope Scope, id int64) error {
	_, leave, payload, err := roomEvents(scope, id)
	if err != nil {
		return err
	}
	c.rooms.remove(roomKey{scope: scope, id: id})
	if !c.IsConnected() {
		return ErrNotConnected
	}
	logger.Debugf("transport left %s %d", scope, id)
	return c.Emit(leave, payload)
}

func (c *Client) current() *liveConn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur
}

func (c *Client) setCurrent(gen uint64, cn *liveConn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen || !c.running {
		return false
	}
	c.cur = cn
	return true
}

func (c *Client) clearCurrent(cn *liveConn) {
	c.mu.Lock()
	if c.cur == cn {
		c.cur = nil
	}
	c.mu.Unlock()
}

func (c *Client) finish(gen uint64) {
	c.mu.Lock()
	if c.gen == gen {
		c.running = false
	}
	c.mu.Unlock()
}

// backoff returns the delay before reconnection attempt n (1-based): doubling, capped.
func (c *Client) backoff(n int) time.Duration {
	d := c.opts.ReconnectDelay
	for i := 1; i < n; i++ {
		d *= 2
		if d >= c.opts.ReconnectDelayMax {
			return c.opts.ReconnectDelayMax
		}
	}
	if d > c.opts.ReconnectDelayMax {
		return c.opts.ReconnectDelayMax
	}
	return d
}

func (c *Client) run(ctx context.Context, gen uint64) {
	defer c.wg.Done()
	defer c.finish(gen)

	everConnected := false
	attempt := 0 // reconnection attempts since the last live connection
	for {
		if ctx.Err() != nil {
			return
		}
		if attempt > 0 {
			if attempt > c.opts.ReconnectAttempts {
				logger.Errorf("transport reconnection failed after %d attempts", c.opts.ReconnectAttempts)
				c.listeners.dispatch(EventReconnectFailed, nil)
				return
			}
			c.listeners.dispatchValue(EventReconnectAttempt, ReconnectPayload{Attempt: attempt})
			if !sleepCtx(ctx, c.backoff(attempt)) {
				return
			}
		}

		ws, err := c.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Errorf("transport connect error: %v", err)
			attempt++
			continue
		}

		cn := newLiveConn(ws)
		if !c.setCurrent(gen, cn) {
			ws.Close()
			return
		}
		if everConnected {
			logger.Infof("transport reconnected after %d attempts", attempt)
			c.listeners.dispatchValue(EventReconnect, ReconnectPayload{Attempt: attempt})
		} else {
			logger.Info("transport connected")
		}
		everConnected = true
		attempt = 0
		c.rejoin(cn)
		c.listeners.dispatch(EventConnected, nil)

		c.serve(ctx, cn)
		c.clearCurrent(cn)

		reason := "transport close"
		switch {
		case ctx.Err() != nil:
			reason = "io client disconnect"
		case cn.kicked.Load():
			reason = ServerKickReason
		}
		logger.Infof("transport disconnected: %s", reason)
		c.listeners.dispatchValue(EventDisconnected, DisconnectPayload{Reason: reason})

		if ctx.Err() != nil {
			return
		}
		if cn.kicked.Load() {
			// The server dropped us on purpose: reconnect right away with a fresh budget.
			continue
		}
		attempt = 1
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	dctx, cancel := context.WithTimeout(ctx, c.opts.HandshakeTimeout)
	defer cancel()
	var header http.Header
	if c.opts.Header != nil {
		header = c.opts.Header.Clone()
	}
	ws, resp, err := c.dialer.DialContext(dctx, c.opts.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("transport.dial %s: %w (status %d)", c.opts.URL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("transport.dial %s: %w", c.opts.URL, err)
	}
	return ws, nil
}

func (c *Client) rejoin(cn *liveConn) {
	for _, k := range c.rooms.list() {
		join, _, payload, err := roomEvents(k.scope, k.id)
		if err != nil {
			continue
		}
		if err := enqueue(cn, join, payload); err != nil {
			logger.Errorf("transport rejoin %s %d: %v", k.scope, k.id, err)
		}
	}
}

// serve runs both pumps and returns when the connection is gone.
func (c *Client) serve(ctx context.Context, cn *liveConn) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		writePump(ctx, cn)
	}()
	c.readPump(cn)
	cn.close()
	wg.Wait()
}

// readPump dispatches incoming envelopes in arrival order.
// Exits on read error (triggered by close() or a dead peer).
func (c *Client) readPump(cn *liveConn) {
	defer cn.close()

	cn.ws.SetReadLimit(maxMessageSize)
	if err := cn.ws.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logger.Errorf("transport set read deadline: %v", err)
		return
	}
	cn.ws.SetPongHandler(func(string) error {
		return cn.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := cn.ws.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) && ce.Code == CloseServerKick {
				cn.kicked.Store(true)
			} else if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && cn.alive() {
				logger.Errorf("transport read error: %v", err)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			logger.Errorf("transport unmarshal error: %v", err)
			continue
		}
		if env.Type == EventServerDisconnect {
			p, _ := Decode[DisconnectPayload](env.Payload)
			if p.Reason == ServerKickReason {
				cn.kicked.Store(true)
			}
			return
		}
		if isLocalEvent(env.Type) {
			continue
		}
		logger.Debugf("transport event %s", env.Type)
		c.listeners.dispatch(env.Type, env.Payload)
	}
}

// writePump writes queued envelopes and keepalive pings.
// Exits on ctx cancellation, write error, or connection close.
func writePump(ctx context.Context, cn *liveConn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cn.close()
	}()

	for {
		select {
		case <-ctx.Done():
			_ = cn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			if err := cn.ws.WriteMessage(websocket.CloseMessage, msg); err != nil {
				logger.Debugf("transport close message: %v", err)
			}
			return
		case <-cn.done:
			return
		case env := <-cn.send:
			if err := cn.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logger.Errorf("transport set write deadline: %v", err)
				return
			}
			buf := bufPool.Get().(*bytes.Buffer)
			buf.Reset()
			if err := json.NewEncoder(buf).Encode(env); err != nil {
				bufPool.Put(buf)
				logger.Errorf("transport marshal error: %v", err)
				continue
			}
			data := buf.Bytes()
			// json.Encoder appends '\n'; trim it for websocket text frames.
			if len(data) > 0 && data[len(data)-1] == '\n' {
				data = data[:len(data)-1]
			}
			writeErr := cn.ws.WriteMessage(websocket.TextMessage, data)
			bufPool.Put(buf)
			if writeErr != nil {
				return
			}
		case <-ticker.C:
			if err := cn.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logger.Errorf("transport set write deadline: %v", err)
				return
			}
			if err := cn.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func enqueue(cn *liveConn, event EventType, payload any) error {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("transport.Emit %s: %w", event, err)
		}
		raw = b
	}
	select {
	case <-cn.done:
		return ErrNotConnected
	default:
	}
	select {
	case cn.send <- Envelope{Type: event, Payload: raw}:
		return nil
	default:
		return fmt.Errorf("transport.Emit %s: send buffer full", event)
	}
}

func isLocalEvent(t EventType) bool {
	switch t {
	case EventConnected, EventDisconnected, EventReconnect, EventReconnectAttempt, EventReconnectFailed:
		return true
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
