package calls

import (
	"context"
	"errors"
	"sync"
	"time"

	"voice-banking/pkg/utils"

	"github.com/redis/go-redis/v9"
)

var ErrCapacity = errors.New("calls: concurrent call limit reached")

// Limiter caps simultaneous calls. Acquire returns a release func on success.
type Limiter interface {
	Acquire(ctx context.Context) (release func(), err error)
}

// LocalLimiter caps calls within one process.
type LocalLimiter struct {
	mu    sync.Mutex
	limit int
	inUse int
}

func NewLocalLimiter(limit int) *LocalLimiter { return &LocalLimiter{limit: limit} }

func (l *LocalLimiter) Acquire(_ context.Context) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.limit > 0 && l.inUse >= l.limit {
		return nil, ErrCapacity
	}
	l.inUse++
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			l.inUse--
			l.mu.Unlock()
		})
	}, nil
}

// RedisLimiter caps calls across every API instance sharing one Redis.
type RedisLimiter struct {
	rdb   *redis.Client
	key   string
	limit int
	// ttl bounds how long a leaked slot survives a crashed instance.
	ttl time.Duration
}

const activeCallsKey = "voicebank:calls:active"

func NewRedisLimiter(rdb *redis.Client, limit int, ttl time.Duration) *RedisLimiter {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &RedisLimiter{rdb: rdb, key: activeCallsKey, limit: limit, ttl: ttl}
}

func (l *RedisLimiter) Acquire(ctx context.Context) (func(), error) {
	ok, err := utils.AcquireConcurrencyCap(ctx, l.rdb, l.key, l.limit, l.ttl)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCapacity
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			relCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = utils.ReleaseConcurrencyCap(relCtx, l.rdb, l.key)
		})
	}, nil
}
