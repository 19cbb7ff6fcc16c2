package httpx

import (
	"context"
	"errors"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	redis "github.com/redis/go-redis/v9"
)

// RateLimiter counts hits per bucket in fixed windows.
type RateLimiter interface {
	Hit(ctx context.Context, bucket string, window time.Duration) (usage, error)
	Close()
}

// usage is a bucket's state right after a hit.
type usage struct {
	hits    int
	resetAt time.Time
}

const expiredSweepInterval = 5 * time.Minute

// memoryLimiter keeps buckets in a go-cache whose entries expire with their
// window. Sweeping runs on our own ticker so Close can stop it.
type memoryLimiter struct {
	buckets *gocache.Cache
	stop    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

// NewMemoryRateLimiter returns a process-local limiter.
func NewMemoryRateLimiter() RateLimiter {
	return newMemoryLimiter(expiredSweepInterval)
}

func newMemoryLimiter(sweepEvery time.Duration) *memoryLimiter {
	m := &memoryLimiter{
		buckets: gocache.New(gocache.NoExpiration, 0),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go m.sweep(sweepEvery)
	return m
}

func (m *memoryLimiter) Hit(_ context.Context, bucket string, window time.Duration) (usage, error) {
	if err := m.buckets.Add(bucket, 1, window); err == nil {
		return usage{hits: 1, resetAt: time.Now().Add(window)}, nil
	}
	hits, err := m.buckets.IncrementInt(bucket, 1)
	if err != nil {
		// The window lapsed between Add and IncrementInt.
		m.buckets.Set(bucket, 1, window)
		return usage{hits: 1, resetAt: time.Now().Add(window)}, nil
	}
	_, resetAt, _ := m.buckets.GetWithExpiration(bucket)
	return usage{hits: hits, resetAt: resetAt}, nil
}

func (m *memoryLimiter) sweep(every time.Duration) {
	defer close(m.stopped)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.buckets.DeleteExpired()
		case <-m.stop:
			return
		}
	}
}

func (m *memoryLimiter) Close() {
	m.once.Do(func() { close(m.stop) })
	<-m.stopped
}

// redisLimiter shares buckets across replicas. Each hit is one MULTI/EXEC
// round trip: INCR, EXPIRE NX (Redis 7+) and PTTL.
type redisLimiter struct {
	client  redis.Cmdable
	closer  func() error
	prefix  string
	timeout time.Duration
}

// NewRedisRateLimiter connects to Redis and verifies the connection.
func NewRedisRateLimiter(ctx context.Context, addr, password string, db int) (RateLimiter, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Join(err, client.Close())
	}
	return newRedisLimiter(client, client.Close), nil
}

func newRedisLimiter(client redis.Cmdable, closer func() error) *redisLimiter {
	return &redisLimiter{
		client:  client,
		closer:  closer,
		prefix:  "trapped:ratelimit:",
		timeout: 250 * time.Millisecond,
	}
}

func (l *redisLimiter) Hit(ctx context.Context, bucket string, window time.Duration) (usage, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	key := l.prefix + bucket
	var (
		incr *redis.IntCmd
		ttl  *redis.DurationCmd
	)
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, window)
		ttl = pipe.PTTL(ctx, key)
		return nil
	})
	if err != nil {
		return usage{}, err
	}
	left := ttl.Val()
	if left <= 0 {
		left = window
	}
	return usage{hits: int(incr.Val()), resetAt: time.Now().Add(left)}, nil
}

func (l *redisLimiter) Close() {
	if l.closer != nil {
		_ = l.closer()
	}
}
