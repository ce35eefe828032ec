// Package cache implements the Redis-backed key-value store that holds all
// persisted relaybot state: the known-member set, subscriptions, mute
// configuration, dedup timestamps, maintenance flags and daily counters.
package cache

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"

	"github.com/relayops/relaybot/internal/alert"
	"github.com/relayops/relaybot/internal/config"
)

// Store is the narrow surface the engine and its tests depend on.
type Store interface {
	AddMember(ctx context.Context, member string) error
	IsMember(ctx context.Context, member string) (bool, error)
	Members(ctx context.Context) ([]string, error)

	AddSubscriber(ctx context.Context, member string, severity alert.Severity, who string) error
	RemoveSubscriber(ctx context.Context, member string, severity alert.Severity, who string) error
	IsSubscriber(ctx context.Context, member string, severity alert.Severity, who string) (bool, error)
	Subscribers(ctx context.Context, member string, severity alert.Severity) ([]string, error)

	SetSubscriberMute(ctx context.Context, who, member string, severity alert.Severity, muteMinutes int) error
	SubscriberMute(ctx context.Context, who, member string, severity alert.Severity) (int64, error)

	LastAlertTime(ctx context.Context, who, member, field string) (int64, error)
	RecordDelivery(ctx context.Context, who, member, dedupField, codeField string, ts int64) error

	MaintenanceMode(ctx context.Context, member string) (string, error)
	IncrStats(ctx context.Context, category StatsCategory, day, member, field string) error
}

// Cache implements Store on a pooled go-redis client.
type Cache struct {
	rdb *redis.Client
}

// New builds a Cache from the redis section of the configuration. The
// connection is lazy; call WaitReady to block until the server answers.
func New(cfg config.RedisConfig) *Cache {
	rdb := redis.NewClient(&redis.Options{
		Addr:            cfg.Addr,
		Password:        cfg.Password,
		DB:              cfg.Database,
		PoolSize:        cfg.PoolSize,
		MinIdleConns:    cfg.MinIdleConns,
		ConnMaxLifetime: time.Duration(cfg.ConnMaxLifetime) * time.Second,
		PoolTimeout:     time.Duration(cfg.PoolTimeout) * time.Second,
	})
	return &Cache{rdb: rdb}
}

// WaitReady pings the server until it responds, sleeping a fixed interval
// between attempts. It returns early if ctx is cancelled.
func (c *Cache) WaitReady(ctx context.Context) error {
	ping := func() error {
		if err := c.rdb.Ping(ctx).Err(); err != nil {
			log.Printf("cache: awaiting redis at %s: %v", c.rdb.Options().Addr, err)
			return err
		}
		return nil
	}
	policy := backoff.WithContext(backoff.NewConstantBackOff(6*time.Second), ctx)
	return backoff.Retry(ping, policy)
}

// Close releases the connection pool.
func (c *Cache) Close() error { return c.rdb.Close() }

func (c *Cache) AddMember(ctx context.Context, member string) error {
	return c.rdb.SAdd(ctx, membersKey(), member).Err()
}

func (c *Cache) IsMember(ctx context.Context, member string) (bool, error) {
	return c.rdb.SIsMember(ctx, membersKey(), member).Result()
}

func (c *Cache) Members(ctx context.Context) ([]string, error) {
	return c.rdb.SMembers(ctx, membersKey()).Result()
}

func (c *Cache) AddSubscriber(ctx context.Context, member string, severity alert.Severity, who string) error {
	return c.rdb.SAdd(ctx, subscribersKey(member, severity), who).Err()
}

func (c *Cache) RemoveSubscriber(ctx context.Context, member string, severity alert.Severity, who string) error {
	return c.rdb.SRem(ctx, subscribersKey(member, severity), who).Err()
}

func (c *Cache) IsSubscriber(ctx context.Context, member string, severity alert.Severity, who string) (bool, error) {
	return c.rdb.SIsMember(ctx, subscribersKey(member, severity), who).Result()
}

func (c *Cache) Subscribers(ctx context.Context, member string, severity alert.Severity) ([]string, error) {
	return c.rdb.SMembers(ctx, subscribersKey(member, severity)).Result()
}

func (c *Cache) SetSubscriberMute(ctx context.Context, who, member string, severity alert.Severity, muteMinutes int) error {
	return c.rdb.HSet(ctx, subscriberConfigKey(who, member, severity), "mute", muteMinutes).Err()
}

// SubscriberMute returns the configured mute window in minutes, or 0 when
// no configuration exists (the most permissive reading).
func (c *Cache) SubscriberMute(ctx context.Context, who, member string, severity alert.Severity) (int64, error) {
	val, err := c.rdb.HGet(ctx, subscriberConfigKey(who, member, severity), "mute").Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing mute value %q: %w", val, err)
	}
	return n, nil
}

// LastAlertTime returns the unix timestamp of the last delivery recorded
// under the given dedup field, or 0 when none exists.
func (c *Cache) LastAlertTime(ctx context.Context, who, member, field string) (int64, error) {
	val, err := c.rdb.HGet(ctx, lastAlertsKey(who, member), field).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing last alert timestamp %q: %w", val, err)
	}
	return n, nil
}

// RecordDelivery writes the dedup field and the legacy bare-code field in a
// single HSET so both timestamps move together.
func (c *Cache) RecordDelivery(ctx context.Context, who, member, dedupField, codeField string, ts int64) error {
	return c.rdb.HSet(ctx, lastAlertsKey(who, member),
		dedupField, ts,
		codeField, ts,
	).Err()
}

// MaintenanceMode returns "on", "off" or "" when the flag was never set.
func (c *Cache) MaintenanceMode(ctx context.Context, member string) (string, error) {
	val, err := c.rdb.HGet(ctx, maintenanceKey(member), "mode").Result()
	if err == redis.Nil {
		return "", nil
	}
	return val, err
}

// SetMaintenanceMode flips the per-member maintenance flag.
func (c *Cache) SetMaintenanceMode(ctx context.Context, member, mode string) error {
	return c.rdb.HSet(ctx, maintenanceKey(member), "mode", mode).Err()
}

func (c *Cache) IncrStats(ctx context.Context, category StatsCategory, day, member, field string) error {
	return c.rdb.HIncrBy(ctx, statsKey(category, day, member), field, 1).Err()
}
