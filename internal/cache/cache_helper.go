package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// Cache errors
var (
	ErrCacheNotAvailable = errors.New("cache not available")
	ErrCacheNotFound     = errors.New("cache not found")
)

const (
	QuizPrefix = "quiz:"
	UserPrefix = "user:"

	DefaultQuizTTL = 5 * time.Minute
	UserTTL        = 15 * time.Minute
)

// CacheHelper wraps a redis client with a key prefix and JSON encoding.
// A nil client turns every operation into a miss.
type CacheHelper struct {
	client *redis.Client
	prefix string
	group  singleflight.Group
}

func NewCacheHelper(client *redis.Client, prefix string) *CacheHelper {
	return &CacheHelper{
		client: client,
		prefix: prefix,
	}
}

// GetCacheKey generates a cache key with prefix
func (c *CacheHelper) GetCacheKey(key string) string {
	return c.prefix + key
}

// Get retrieves and unmarshals data from cache
func (c *CacheHelper) Get(ctx context.Context, key string, dest interface{}) error {
	if c.client == nil {
		return ErrCacheNotAvailable
	}

	data, err := c.client.Get(ctx, c.GetCacheKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCacheNotFound
		}
		return fmt.Errorf("cache get error: %w", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("cache unmarshal error: %w", err)
	}
	return nil
}

// Set marshals and stores data in cache
func (c *CacheHelper) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if c.client == nil {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal error: %w", err)
	}
	return c.client.Set(ctx, c.GetCacheKey(key), data, ttl).Err()
}

// CacheOrExecute implements cache-aside. Concurrent misses for the same key share a
// single fetch; the fetched value is written back before returning.
func (c *CacheHelper) CacheOrExecute(ctx context.Context, key string, dest interface{}, ttl time.Duration, fetchFunc func() (interface{}, error)) error {
	err := c.Get(ctx, key, dest)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrCacheNotFound) && !errors.Is(err, ErrCacheNotAvailable) {
		slog.WarnContext(ctx, "Cache get error, proceeding to fetch", "error", err, "key", key)
	}

	raw, err, _ := c.group.Do(key, func() (interface{}, error) {
		value, err := fetchFunc()
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("marshal result error: %w", err)
		}
		if c.client != nil {
			if err := c.client.Set(ctx, c.GetCacheKey(key), data, ttl).Err(); err != nil {
				slog.ErrorContext(ctx, "Cache set error", "error", err, "key", key)
			}
		}
		return data, nil
	})
	if err != nil {
		return fmt.Errorf("fetch function error: %w", err)
	}

	return json.Unmarshal(raw.([]byte), dest)
}

// CacheManager groups the service's cache helpers
type CacheManager struct {
	Quiz    *CacheHelper
	User    *CacheHelper
	QuizTTL time.Duration
	client  *redis.Client
}

// NewCacheManager builds the helpers; client may be nil when Redis is not configured
func NewCacheManager(client *redis.Client, quizTTL time.Duration) *CacheManager {
	if quizTTL <= 0 {
		quizTTL = DefaultQuizTTL
	}
	return &CacheManager{
		Quiz:    NewCacheHelper(client, QuizPrefix),
		User:    NewCacheHelper(client, UserPrefix),
		QuizTTL: quizTTL,
		client:  client,
	}
}

// Enabled reports whether a redis client is attached
func (cm *CacheManager) Enabled() bool {
	return cm.client != nil
}

// HealthCheck verifies cache connectivity
func (cm *CacheManager) HealthCheck(ctx context.Context) error {
	if cm.client == nil {
		return ErrCacheNotAvailable
	}
	if err := cm.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("cache health check failed: %w", err)
	}
	return nil
}

// QuizKey is the key a quiz definition is cached under
func QuizKey(quizID uint) string {
	return fmt.Sprintf("id:%d", quizID)
}
