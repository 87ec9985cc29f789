package ledger

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Backoff é o portão compartilhado de rate limit: depois de um 429 ninguém
// chama a rede até o prazo vencer.
type Backoff interface {
	Wait(ctx context.Context) error
	Trip(ctx context.Context, d time.Duration) error
}

// MemoryBackoff vale para um único processo
type MemoryBackoff struct {
	mu    sync.Mutex
	until time.Time
}

func NewMemoryBackoff() *MemoryBackoff { return &MemoryBackoff{} }

func (b *MemoryBackoff) Trip(_ context.Context, d time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if until := time.Now().Add(d); until.After(b.until) {
		b.until = until
	}
	return nil
}

func (b *MemoryBackoff) Wait(ctx context.Context) error {
	b.mu.Lock()
	remaining := time.Until(b.until)
	b.mu.Unlock()
	return sleep(ctx, remaining)
}

// RedisBackoff guarda o prazo numa chave com TTL, para todos os processos
// que falam com o mesmo endpoint respeitarem o mesmo back-off.
type RedisBackoff struct {
	rdb *redis.Client
	key string
}

func NewRedisBackoff(rdb *redis.Client, key string) *RedisBackoff {
	return &RedisBackoff{rdb: rdb, key: key}
}

func (b *RedisBackoff) Trip(ctx context.Context, d time.Duration) error {
	until := strconv.FormatInt(time.Now().Add(d).UnixMilli(), 10)
	// só estende; nunca encurta um back-off já em curso
	ok, err := b.rdb.SetNX(ctx, b.key, until, d).Result()
	if err != nil || ok {
		return err
	}
	ttl, err := b.rdb.PTTL(ctx, b.key).Result()
	if err != nil {
		return err
	}
	if ttl < d {
		return b.rdb.Set(ctx, b.key, until, d).Err()
	}
	return nil
}

func (b *RedisBackoff) Wait(ctx context.Context) error {
	ttl, err := b.rdb.PTTL(ctx, b.key).Result()
	if err != nil {
		// Redis fora do ar não bloqueia a rede; o próximo 429 volta a armar
		return nil
	}
	return sleep(ctx, ttl)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
