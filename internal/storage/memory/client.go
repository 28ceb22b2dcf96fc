package memory

import (
	"context"
	"sync"
	"time"
)

// DefaultTTL: сколько помнить выданный ключ. Сессия к этому времени давно завершена.
const DefaultTTL = 10 * time.Minute

type Client struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	items map[string]time.Time
}

func New(ttl time.Duration) *Client {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Client{ttl: ttl, now: time.Now, items: make(map[string]time.Time)}
}

func (c *Client) Close() error { return nil }

// Claim помечает ключ. Повторный Claim до истечения TTL возвращает false.
func (c *Client) Claim(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if exp, ok := c.items[key]; ok && now.Before(exp) {
		return false, nil
	}
	c.items[key] = now.Add(c.ttl)
	c.sweep(now)
	return true, nil
}

// sweep выбрасывает истёкшие ключи, чтобы карта не росла бесконечно.
func (c *Client) sweep(now time.Time) {
	for k, exp := range c.items {
		if !now.Before(exp) {
			delete(c.items, k)
		}
	}
}
