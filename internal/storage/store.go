package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// CleanupGuard: одноразовый флаг на ключ. Claim возвращает true ровно один раз,
// пока ключ не истёк. Реализации: redis.Client (общий для нескольких процессов
// одной личности), memory.Client (один процесс, без Redis).
type CleanupGuard interface {
	Claim(ctx context.Context, key string) (bool, error)
	Close() error
}

// SessionCleanupKey: ключ guard для запроса завершения сессии. Оба участника random-чата
// видят один id сессии, поэтому ключ включает хэш токена: у каждого свой флаг.
func SessionCleanupKey(sessionToken string, sessionID int64) string {
	sum := sha256.Sum256([]byte(sessionToken))
	return fmt.Sprintf("cleanup:session:%d:%s", sessionID, hex.EncodeToString(sum[:8]))
}
