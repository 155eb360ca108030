package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/ReelPass/internal/pkg/env"
)

var client *redis.Client

// SetupCache initializes the connection to the Redis compatible cache server
func SetupCache() {
	host := env.GetEnv("CACHE_HOST", "localhost")
	port := env.GetEnv("CACHE_PORT", "6379")

	client = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: env.GetEnv("CACHE_PASSWORD", ""),
		DB:       env.GetEnvInt("CACHE_DB", 0),
	})

	pong, err := client.Ping(context.Background()).Result()
	if err != nil {
		log.Warnf("[Cache] Could not connect to cache: %v", err)
	} else {
		log.Infof("[Cache] Successfully connected to cache: %s", pong)
	}
}

// GetClient returns the Redis client instance
func GetClient() *redis.Client {
	if client == nil {
		SetupCache()
	}
	return client
}

// ErrLocked is returned by Locker.Acquire when another holder owns the key.
var ErrLocked = errors.New("cache: key is locked")

// releaseScript deletes the key only if it still carries our token, so an
// expired lock taken over by someone else is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Locker hands out short lived SET NX locks.
type Locker struct {
	rdb    *redis.Client
	prefix string
}

func NewLocker(rdb *redis.Client, prefix string) *Locker {
	return &Locker{rdb: rdb, prefix: prefix}
}

// Acquire takes key for ttl and returns a release func. It fails with
// ErrLocked when the key is held.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	full := l.prefix + key
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, full, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLocked
	}
	return func() {
		if err := releaseScript.Run(context.Background(), l.rdb, []string{full}, token).Err(); err != nil {
			log.Warnf("[Cache] release %s: %v", full, err)
		}
	}, nil
}
