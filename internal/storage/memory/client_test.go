package memory

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agora/internal/storage"
)

var _ storage.CleanupGuard = (*Client)(nil)

func TestClient_ClaimOnce(t *testing.T) {
	c := New(time.Minute)
	key := storage.SessionCleanupKey("token-a", 42)
	ok, err := c.Claim(context.Background(), key)
	if err != nil || !ok {
		t.Fatalf("first Claim = %v, %v", ok, err)
	}
	ok, err = c.Claim(context.Background(), key)
	if err != nil || ok {
		t.Fatalf("second Claim = %v, %v", ok, err)
	}
	if ok, _ := c.Claim(context.Background(), storage.SessionCleanupKey("token-a", 43)); !ok {
		t.Fatal("other key refused")
	}
}

// Оба участника random-чата знают id сессии; флаг у каждого свой.
func TestClient_ClaimPerIdentity(t *testing.T) {
	c := New(time.Minute)
	a := storage.SessionCleanupKey("token-a", 42)
	b := storage.SessionCleanupKey("token-b", 42)
	if a == b {
		t.Fatalf("partners share key %q", a)
	}
	if !strings.HasPrefix(a, "cleanup:session:42:") || strings.Contains(a, "token-a") {
		t.Fatalf("key = %q", a)
	}
	if a != storage.SessionCleanupKey("token-a", 42) {
		t.Fatal("key not stable")
	}
	if ok, _ := c.Claim(context.Background(), a); !ok {
		t.Fatal("first partner refused")
	}
	if ok, _ := c.Claim(context.Background(), b); !ok {
		t.Fatal("second partner refused after first claimed")
	}
}

func TestClient_ClaimConcurrent(t *testing.T) {
	c := New(time.Minute)
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := c.Claim(context.Background(), "k"); ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("wins = %d, want 1", wins.Load())
	}
}

func TestClient_ClaimExpires(t *testing.T) {
	c := New(time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	if ok, _ := c.Claim(context.Background(), "k"); !ok {
		t.Fatal("first Claim refused")
	}
	now = now.Add(59 * time.Second)
	if ok, _ := c.Claim(context.Background(), "k"); ok {
		t.Fatal("Claim before expiry succeeded")
	}
	now = now.Add(time.Second)
	if ok, _ := c.Claim(context.Background(), "k"); !ok {
		t.Fatal("Claim after expiry refused")
	}
}

func TestClient_ClaimCanceledContext(t *testing.T) {
	c := New(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Claim(ctx, "k"); err == nil {
		t.Fatal("expected context error")
	}
	if ok, _ := c.Claim(context.Background(), "k"); !ok {
		t.Fatal("canceled Claim consumed the key")
	}
}
