package roles

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/felixgeelhaar/finhub/internal/errors"
)

// redisClient is the part of *redis.Client the store uses.
type redisClient interface {
	HGet(ctx context.Context, key, field string) *redis.StringCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// RedisStore reads roles from hashes at <prefix>users:<uid>, field "role".
type RedisStore struct {
	client redisClient
	prefix string
}

// RedisOptions configures the Redis connection.
type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// OpenRedis connects and verifies the connection.
func OpenRedis(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.NewStoreUnavailableError("redis", err)
	}
	return &RedisStore{client: client, prefix: opts.KeyPrefix}, nil
}

// Name implements Store.
func (s *RedisStore) Name() string { return "redis" }

// Key returns the hash key holding userID's record.
func (s *RedisStore) Key(userID string) string {
	return s.prefix + "users:" + userID
}

// GetRoleRecord implements Store. A missing hash and a hash without a role
// field both count as no record.
func (s *RedisStore) GetRoleRecord(ctx context.Context, userID string) (*Record, error) {
	if userID == "" {
		return nil, errors.New(errors.ErrCodeRoleInvalid, "user ID is required")
	}

	role, err := s.client.HGet(ctx, s.Key(userID), "role").Result()
	if stderrors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewRoleLookupError(userID, err)
	}
	return &Record{UserID: userID, Role: role}, nil
}

// Ping implements Pinger.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
