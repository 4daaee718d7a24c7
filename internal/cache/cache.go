package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// DefaultTTL keeps exchange rates for half a day.
const DefaultTTL = 12 * time.Hour

// Cache provides Redis-backed caching for exchange rates.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to Redis at the given URL and returns a Cache.
// URL format: redis://localhost:6379
func New(redisURL string, ttl time.Duration) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("cache: invalid redis URL: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("cache: redis ping failed: %w", err)
	}

	return &Cache{client: client, ttl: ttl}, nil
}

// GetRate returns the cached rate converting base into target, and whether a
// usable entry exists.
func (c *Cache) GetRate(ctx context.Context, base, target string) (decimal.Decimal, bool) {
	raw, err := c.client.Get(ctx, rateKey(base, target)).Result()
	if err != nil {
		return decimal.Zero, false
	}
	return decodeRate(raw)
}

// SetRate stores a rate with the configured TTL.
func (c *Cache) SetRate(ctx context.Context, base, target string, rate decimal.Decimal) error {
	if err := c.client.Set(ctx, rateKey(base, target), rate.String(), c.ttl).Err(); err != nil {
		return fmt.Errorf("cache: storing rate %s/%s: %w", base, target, err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}

func rateKey(base, target string) string {
	return fmt.Sprintf("cratedig:rate:%s:%s", strings.ToUpper(base), strings.ToUpper(target))
}

func decodeRate(raw string) (decimal.Decimal, bool) {
	rate, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil || !rate.IsPositive() {
		return decimal.Zero, false
	}
	return rate, true
}
