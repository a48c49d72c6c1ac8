package infrastructure

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// NewRedisClient creates a Redis client and verifies connectivity
func NewRedisClient(ctx context.Context, addr string) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr: addr,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	log.WithField("addr", addr).Info("Redis connection established")
	return client, nil
}

// RedisPresence tracks which players are online. A player stays online for
// ttl after their last heartbeat.
type RedisPresence struct {
	client *goredis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisPresence creates a presence tracker backed by Redis keys with a TTL
func NewRedisPresence(client *goredis.Client, ttl time.Duration) *RedisPresence {
	return &RedisPresence{
		client: client,
		prefix: "presence:",
		ttl:    ttl,
	}
}

func (p *RedisPresence) key(ownerID int64) string {
	return p.prefix + strconv.FormatInt(ownerID, 10)
}

// MarkOnline records a heartbeat for a player
func (p *RedisPresence) MarkOnline(ctx context.Context, ownerID int64) error {
	if err := p.client.Set(ctx, p.key(ownerID), time.Now().Unix(), p.ttl).Err(); err != nil {
		return fmt.Errorf("redis presence set: %w", err)
	}
	return nil
}

// MarkOffline removes a player's presence immediately
func (p *RedisPresence) MarkOffline(ctx context.Context, ownerID int64) error {
	if err := p.client.Del(ctx, p.key(ownerID)).Err(); err != nil {
		return fmt.Errorf("redis presence delete: %w", err)
	}
	return nil
}

// IsOnline reports whether a player has a live heartbeat
func (p *RedisPresence) IsOnline(ctx context.Context, ownerID int64) (bool, error) {
	n, err := p.client.Exists(ctx, p.key(ownerID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis presence check: %w", err)
	}
	return n > 0, nil
}

// LastSeen returns the time of a player's last heartbeat, if still live
func (p *RedisPresence) LastSeen(ctx context.Context, ownerID int64) (time.Time, bool, error) {
	ts, err := p.client.Get(ctx, p.key(ownerID)).Int64()
	if err == goredis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("redis presence get: %w", err)
	}
	return time.Unix(ts, 0), true, nil
}
