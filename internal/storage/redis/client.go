package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ClaimTTL: время жизни ключа guard (SET NX). 10 минут.
const ClaimTTL = 600

type Client struct {
	cli    *redis.Client
	prefix string
}

func New(ctx context.Context, url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{cli: cli, prefix: "agora:"}, nil
}

func (c *Client) Close() error {
	return c.cli.Close()
}

// Claim ставит ключ agora:{key} через SET NX с TTL. true: ключ поставили мы,
// false: его уже поставил этот или другой процесс.
func (c *Client) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := c.cli.SetNX(ctx, c.prefix+key, time.Now().Unix(), ClaimTTL*time.Second).Result()
	if err != nil {
		return false, fmt.Errorf("redis claim %s: %w", key, err)
	}
	return ok, nil
}
