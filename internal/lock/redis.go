package lock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spigell/nudger/internal/utils"
)

const (
	defaultKeyPrefix = "nudger:lock:"
	defaultTTL       = 30 * time.Second
	defaultRetry     = 50 * time.Millisecond
	releaseTimeout   = 2 * time.Second
)

// releaseScript deletes the key only while it still holds our token,
// so an expired lock taken over by another process is never released by us.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisOptions configures a Redis locker. Zero values fall back to defaults.
type RedisOptions struct {
	Prefix string
	TTL    time.Duration
	Retry  time.Duration
}

// Redis is a cross-process Locker built on SET NX PX with a random token.
// The TTL bounds how long a crashed holder can block others.
type Redis struct {
	client goredis.UniversalClient
	prefix string
	ttl    time.Duration
	retry  time.Duration
	logger *zap.Logger
}

// NewRedis wraps an existing client.
func NewRedis(client goredis.UniversalClient, opts RedisOptions, log *zap.Logger) (*Redis, error) {
	if client == nil {
		return nil, errors.New("redis client required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	r := &Redis{
		client: client,
		prefix: strings.TrimSpace(opts.Prefix),
		ttl:    opts.TTL,
		retry:  opts.Retry,
		logger: log,
	}
	if r.prefix == "" {
		r.prefix = defaultKeyPrefix
	}
	if r.ttl <= 0 {
		r.ttl = defaultTTL
	}
	if r.retry <= 0 {
		r.retry = defaultRetry
	}
	return r, nil
}

// Dial connects to addr and verifies the connection with PING.
func Dial(ctx context.Context, addr, password string) (*goredis.Client, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("missing redis address")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    password,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// Lock polls until the key is acquired, ctx is done, or Redis fails.
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := r.prefix + key
	token := uuid.NewString()

	for {
		ok, err := r.client.SetNX(ctx, redisKey, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire %s: %w", redisKey, err)
		}
		if ok {
			break
		}
		if err := utils.WaitFor(ctx, r.retry); err != nil {
			return nil, err
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// the caller's ctx may already be cancelled
			ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
			defer cancel()

			if err := releaseScript.Run(ctx, r.client, []string{redisKey}, token).Err(); err != nil && !errors.Is(err, goredis.Nil) {
				r.logger.Warn("failed to release redis lock. It expires on its own.",
					zap.String("key", redisKey),
					zap.Duration("ttl", r.ttl),
					zap.Error(err),
				)
			}
		})
	}, nil
}
