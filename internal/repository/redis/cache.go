package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"shortlink/internal/domain"
	"shortlink/internal/metrics"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "link:"
	// invalidationChannel carries comma-separated short codes
	invalidationChannel = "link:invalidate"
)

// Cache is the shared link cache in front of the database.
//
// It holds whole link rows (including active flag, expiry and password hash)
// so a cached read answers the same questions a database read would. Writers
// must call DeleteLink after any change to a link.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache creates a new Redis cache
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{
		client: client,
		ttl:    ttl,
	}
}

func linkKey(code string) string {
	return keyPrefix + code
}

// GetLink retrieves a link from cache.
// Returns nil, nil on a miss.
func (c *Cache) GetLink(ctx context.Context, code string) (*domain.Link, error) {
	start := time.Now()
	defer func() {
		metrics.CacheOperationDuration.WithLabelValues("get").Observe(time.Since(start).Seconds())
	}()

	data, err := c.client.Get(ctx, linkKey(code)).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.RecordCacheMiss("redis")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get error: %w", err)
	}

	metrics.RecordCacheHit("redis")

	var link domain.Link
	if err := json.Unmarshal(data, &link); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached link: %w", err)
	}
	return &link, nil
}

// SetLink stores a link under its short code
func (c *Cache) SetLink(ctx context.Context, link *domain.Link) error {
	start := time.Now()
	defer func() {
		metrics.CacheOperationDuration.WithLabelValues("set").Observe(time.Since(start).Seconds())
	}()

	data, err := json.Marshal(link)
	if err != nil {
		return fmt.Errorf("failed to marshal link: %w", err)
	}

	if err := c.client.Set(ctx, linkKey(link.ShortCode), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set error: %w", err)
	}
	return nil
}

// DeleteLink removes codes from cache
func (c *Cache) DeleteLink(ctx context.Context, codes ...string) error {
	if len(codes) == 0 {
		return nil
	}
	start := time.Now()
	defer func() {
		metrics.CacheOperationDuration.WithLabelValues("delete").Observe(time.Since(start).Seconds())
	}()

	keys := make([]string, len(codes))
	for i, code := range codes {
		keys[i] = linkKey(code)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis delete error: %w", err)
	}
	return nil
}

// PublishInvalidation tells every subscribed instance to drop codes from
// its in-process cache
func (c *Cache) PublishInvalidation(ctx context.Context, codes ...string) error {
	if len(codes) == 0 {
		return nil
	}
	if err := c.client.Publish(ctx, invalidationChannel, strings.Join(codes, ",")).Err(); err != nil {
		return fmt.Errorf("redis publish error: %w", err)
	}
	return nil
}

// SubscribeInvalidations calls fn with the codes of every published
// invalidation until ctx is done. It returns once the subscription is live.
func (c *Cache) SubscribeInvalidations(ctx context.Context, fn func(codes []string)) error {
	sub := c.client.Subscribe(ctx, invalidationChannel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return fmt.Errorf("redis subscribe error: %w", err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				fn(strings.Split(msg.Payload, ","))
			}
		}
	}()
	return nil
}

// Ping checks the connection, used by the readiness probe
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// InitRedis creates a new Redis client
func InitRedis(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,

		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}
