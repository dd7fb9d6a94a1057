package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/timberdayz/datahub/internal/domain/shared"
)

// RedisLocker implements ScopeLocker with Redis SET NX, for deployments
// where multiple ingestd instances share the work. The TTL bounds how
// long a crashed holder can wedge a scope.
type RedisLocker struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// NewRedisLocker creates a Redis-backed scope locker
func NewRedisLocker(cfg RedisConfig) (*RedisLocker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisLocker{
		client:    client,
		keyPrefix: "ingest:scope:",
		ttl:       ttl,
	}, nil
}

// NewRedisLockerWithClient creates a locker sharing an existing client
func NewRedisLockerWithClient(client *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisLocker{client: client, keyPrefix: "ingest:scope:", ttl: ttl}
}

var _ ScopeLocker = (*RedisLocker)(nil)

// releaseScript deletes the lock only if this holder still owns it.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

// Acquire takes the scope lock or fails fast if it is held
func (l *RedisLocker) Acquire(ctx context.Context, key ScopeKey) (func(), error) {
	redisKey := l.keyPrefix + key.String()
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire scope lock %s: %w", key, err)
	}
	if !ok {
		return nil, shared.NewDomainErrorf(shared.CodeScopeLocked,
			"Ingestion scope %s is already being processed", key)
	}

	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _ = releaseScript.Run(releaseCtx, l.client, []string{redisKey}, token).Result()
	}
	return release, nil
}
