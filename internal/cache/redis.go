package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"vidtube/internal/models"
)

const keyPrefix = "user:"

// Identities caches user projections in Redis as JSON. Errors are logged
// and treated as misses so the store stays authoritative.
type Identities struct {
	client *redis.Client
	ttl    time.Duration
}

func Open(ctx context.Context, redisURL string, ttl time.Duration) (*Identities, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	opt.PoolSize = 10
	opt.MinIdleConns = 3

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	return New(client, ttl), nil
}

func New(client *redis.Client, ttl time.Duration) *Identities {
	return &Identities{client: client, ttl: ttl}
}

func (c *Identities) Get(ctx context.Context, userID string) (*models.User, bool) {
	val, err := c.client.Get(ctx, key(userID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("identity cache read failed", "component", "cache", "user_id", userID, "error", err)
		}
		return nil, false
	}

	var user models.User
	if err := json.Unmarshal(val, &user); err != nil {
		slog.Warn("identity cache entry corrupt", "component", "cache", "user_id", userID, "error", err)
		return nil, false
	}
	return &user, true
}

func (c *Identities) Set(ctx context.Context, user *models.User) {
	data, err := json.Marshal(user)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key(user.ID), data, c.ttl).Err(); err != nil {
		slog.Warn("identity cache write failed", "component", "cache", "user_id", user.ID, "error", err)
	}
}

func (c *Identities) Delete(ctx context.Context, userID string) {
	if err := c.client.Del(ctx, key(userID)).Err(); err != nil {
		slog.Warn("identity cache delete failed", "component", "cache", "user_id", userID, "error", err)
	}
}

func (c *Identities) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Identities) Close() error {
	return c.client.Close()
}

func key(userID string) string {
	return keyPrefix + userID
}
