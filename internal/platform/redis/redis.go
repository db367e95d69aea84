// Package redis wraps go-redis/v9 with the small surface the
// Driver State Store needs when it is configured for the shared,
// horizontally-scalable backend (GEOADD for the spatial index, per-cell
// sets read with SMEMBERS for the nearby search, and get/set with
// expiry for each driver's current cell).
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/richxcame/ride-hailing/internal/platform/config"
)

// Client wraps *goredis.Client with the operations the driver store
// needs, plus a Set.
type Client struct {
	*goredis.Client
}

// NewClient dials Redis per cfg and verifies connectivity.
func NewClient(cfg *config.RedisConfig) (*Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis: unable to connect: %w", err)
	}

	return &Client{Client: client}, nil
}

// SetWithExpiration stores value under key with a TTL.
func (c *Client) SetWithExpiration(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return c.Set(ctx, key, value, expiration).Err()
}

// GetString returns the string stored at key.
func (c *Client) GetString(ctx context.Context, key string) (string, error) {
	return c.Get(ctx, key).Result()
}

// Delete removes one or more keys.
func (c *Client) Delete(ctx context.Context, keys ...string) error {
	return c.Del(ctx, keys...).Err()
}

// GeoAdd indexes member at (longitude, latitude) in the geospatial set
// key.
func (c *Client) GeoAdd(ctx context.Context, key string, longitude, latitude float64, member string) error {
	return c.Client.GeoAdd(ctx, key, &goredis.GeoLocation{
		Longitude: longitude,
		Latitude:  latitude,
		Name:      member,
	}).Err()
}

// GeoRadius returns members within radiusKm of (longitude, latitude),
// sorted ascending by distance.
func (c *Client) GeoRadius(ctx context.Context, key string, longitude, latitude, radiusKm float64, count int) ([]string, error) {
	result, err := c.Client.GeoRadius(ctx, key, longitude, latitude, &goredis.GeoRadiusQuery{
		Radius: radiusKm,
		Unit:   "km",
		Count:  count,
		Sort:   "ASC",
	}).Result()
	if err != nil {
		return nil, err
	}

	members := make([]string, 0, len(result))
	for _, loc := range result {
		members = append(members, loc.Name)
	}
	return members, nil
}

// GeoRemove removes member from the geospatial set key.
func (c *Client) GeoRemove(ctx context.Context, key, member string) error {
	return c.Client.ZRem(ctx, key, member).Err()
}

// SAdd/SRem back the per-cell driver-id sets.
func (c *Client) SAdd(ctx context.Context, key string, members ...interface{}) error {
	return c.Client.SAdd(ctx, key, members...).Err()
}

func (c *Client) SRem(ctx context.Context, key string, members ...interface{}) error {
	return c.Client.SRem(ctx, key, members...).Err()
}

func (c *Client) SMembers(ctx context.Context, key string) ([]string, error) {
	return c.Client.SMembers(ctx, key).Result()
}

// Close closes the underlying connection pool.
func (c *Client) Close() error {
	return c.Client.Close()
}
