package startup

import (
	"context"
	"fmt"
	"time"

	"github.com/agora/internal/logger"
	"github.com/agora/internal/storage"
	"github.com/agora/internal/storage/memory"
	redisstorage "github.com/agora/internal/storage/redis"
)

// ConnectRedisWithRetry подключается к Redis с повторами, но не дольше maxWait.
// logPrefix добавляется к сообщениям лога (например "client: ").
func ConnectRedisWithRetry(ctx context.Context, redisURL string, maxWait time.Duration, logPrefix string) (*redisstorage.Client, error) {
	deadline := time.Now().Add(maxWait)
	backoff := 2 * time.Second
	for {
		dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		client, err := redisstorage.New(dialCtx, redisURL)
		cancel()
		if err == nil {
			return client, nil
		}
		if time.Now().Add(backoff).After(deadline) {
			return nil, fmt.Errorf("%sredis (gave up after %v): %w", logPrefix, maxWait, err)
		}
		logger.Errorf("%sredis connect failed, retry in %v: %v", logPrefix, backoff, err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

// CleanupGuard выбирает guard: Redis, если задан REDIS_URL и он доступен, иначе память процесса.
func CleanupGuard(ctx context.Context, redisURL string, maxWait time.Duration, logPrefix string) storage.CleanupGuard {
	if redisURL == "" {
		logger.Info(logPrefix + "cleanup guard: memory")
		return memory.New(memory.DefaultTTL)
	}
	client, err := ConnectRedisWithRetry(ctx, redisURL, maxWait, logPrefix)
	if err != nil {
		logger.Errorf("%v; cleanup guard falls back to memory", err)
		return memory.New(memory.DefaultTTL)
	}
	logger.Info(logPrefix + "cleanup guard: redis")
	return client
}
