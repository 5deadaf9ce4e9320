package main

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Denylist records revoked token ids. Entries carry a TTL equal to the
// token's remaining lifetime, so the set stays bounded without a sweeper.
// Tokens are otherwise stateless; the denylist exists only when revocation
// is enabled in config.
type Denylist interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

type RedisDenylist struct {
	client *redis.Client
}

func NewRedisDenylist(addr, password string, db int) *RedisDenylist {
	return &RedisDenylist{client: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

func denyKey(jti string) string { return "revoked:" + jti }

func (d *RedisDenylist) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		// already expired, nothing to record
		return nil
	}
	return d.client.Set(ctx, denyKey(jti), "1", ttl).Err()
}

func (d *RedisDenylist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	_, err := d.client.Get(ctx, denyKey(jti)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (d *RedisDenylist) close() error { return d.client.Close() }
func (d *RedisDenylist) ping() bool {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return d.client.Ping(ctx).Err() == nil
}
