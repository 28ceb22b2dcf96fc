// Package api: клиент REST API платформы (сессия, форумы, посты, комнаты, 1:1 чаты).
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/agora/internal/logger"
)

// SessionCookie: имя cookie анонимной сессии.
const SessionCookie = "session_token"

// ErrNotFound сопоставляется с ответом 404 через errors.Is.
var ErrNotFound = errors.New("not found")

// Error: ответ API с кодом не 2xx. Message берётся из поля "error" тела, если оно есть.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: status %d", e.Status)
	}
	return fmt.Sprintf("api: status %d: %s", e.Status, e.Message)
}

func (e *Error) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

// ErrorMessage возвращает текст для пользователя: сообщение сервера, если оно пришло, иначе fallback.
func ErrorMessage(err error, fallback string) string {
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}

// Page: параметры пагинации списков.
type Page struct {
	Page  int
	Limit int
}

func (p Page) values() url.Values {
	q := url.Values{}
	page, limit := p.Page, p.Limit
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	q.Set("page", fmt.Sprint(page))
	q.Set("limit", fmt.Sprint(limit))
	return q
}

// Client вызывает REST API. Cookie сессии хранится в jar и передаётся также push-каналу.
type Client struct {
	baseURL       *url.URL
	httpClient    *http.Client
	jar           http.CookieJar
	beaconTimeout time.Duration
	beacons       sync.WaitGroup
}

// NewClient создаёт клиент. timeout ограничивает обычный вызов, beaconTimeout ограничивает запросы Beacon.
func NewClient(baseURL string, timeout, beaconTimeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("api.NewClient: parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("api.NewClient: base url %q must be absolute", baseURL)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("api.NewClient: cookie jar: %w", err)
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if beaconTimeout <= 0 {
		beaconTimeout = 5 * time.Second
	}
	return &Client{
		baseURL:       u,
		httpClient:    &http.Client{Timeout: timeout, Jar: jar},
		jar:           jar,
		beaconTimeout: beaconTimeout,
	}, nil
}

// Jar отдаёт cookie jar для websocket-рукопожатия.
func (c *Client) Jar() http.CookieJar { return c.jar }

// SetSessionToken кладёт заранее известный токен сессии в jar (например, из конфига).
func (c *Client) SetSessionToken(token string) {
	if token == "" {
		return
	}
	c.jar.SetCookies(c.baseURL, []*http.Cookie{{Name: SessionCookie, Value: token, Path: "/"}})
}

// SessionToken возвращает текущий токен из jar (пусто, если сессии ещё нет).
func (c *Client) SessionToken() string {
	for _, ck := range c.jar.Cookies(c.baseURL) {
		if ck.Name == SessionCookie {
			return ck.Value
		}
	}
	return ""
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), rd)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-Id", uuid.NewString())
	return req, nil
}

// do выполняет запрос и декодирует ответ в out (если out не nil).
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	defer logger.DeferLogDuration("api."+op, time.Now())()
	req, err := c.newRequest(ctx, method, path, query, body)
	if err != nil {
		return fmt.Errorf("api.%s: %w", op, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("api.%s: %w", op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("api.%s: %w", op, decodeError(resp))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("api.%s: decode response: %w", op, err)
	}
	return nil
}

func decodeError(resp *http.Response) *Error {
	apiErr := &Error{Status: resp.StatusCode}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil || len(data) == 0 {
		return apiErr
	}
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &body) == nil {
		apiErr.Message = body.Error
		if apiErr.Message == "" {
			apiErr.Message = body.Message
		}
	}
	return apiErr
}

// Beacon отправляет запрос «выстрелил и забыл»: он не зависит от контекста вызывающего
// и завершается, даже если вызывающий уже ушёл (аналог отправки при закрытии страницы).
// Flush дожидается всех отправленных beacon.
func (c *Client) Beacon(method, path string) {
	c.beacons.Add(1)
	go func() {
		defer c.beacons.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.beaconTimeout)
		defer cancel()
		if err := c.do(ctx, "Beacon", method, path, nil, nil, nil); err != nil {
			logger.Errorf("beacon %s %s: %v", method, path, err)
			return
		}
		logger.Infof("beacon %s %s delivered", method, path)
	}()
}

// Flush ждёт завершения beacon-запросов не дольше timeout. Возвращает false по таймауту.
func (c *Client) Flush(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		c.beacons.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
