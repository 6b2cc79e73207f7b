package joblock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "compliance:joblock:"

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis implements Locker with SET NX PX and a compare-and-delete release.
type Redis struct {
	client redis.UniversalClient
	logger *slog.Logger
}

func NewRedis(client redis.UniversalClient, logger *slog.Logger) *Redis {
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{client: client, logger: logger}
}

// Dial parses a redis:// URL and pings the server.
func Dial(ctx context.Context, url string, logger *slog.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedis(client, logger), nil
}

func (r *Redis) TryAcquire(ctx context.Context, name string, ttl time.Duration) (Lease, bool, error) {
	key := keyPrefix + name
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		r.logger.Error("joblock.acquire.error", "lock", name, "error", err)
		return nil, false, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	if !ok {
		r.logger.Debug("joblock.acquire.busy", "lock", name)
		return nil, false, nil
	}
	return &redisLease{r: r, key: key, name: name, token: token}, true, nil
}

func (r *Redis) Close() error { return r.client.Close() }

type redisLease struct {
	r        *Redis
	key      string
	name     string
	token    string
	released bool
}

func (l *redisLease) Release(ctx context.Context) error {
	if l.released {
		return nil
	}
	l.released = true
	n, err := releaseScript.Run(ctx, l.r.client, []string{l.key}, l.token).Int()
	if err != nil {
		return fmt.Errorf("release lock %s: %w", l.name, err)
	}
	if n == 0 {
		l.r.logger.Warn("joblock.release.expired", "lock", l.name)
	}
	return nil
}
