package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/andrewmarklloyd/sentry-notifier/internal/pkg/sentry"
)

const statePrefix = "sentry/"

// Client mirrors the latest status of every vehicle so other services can
// read it without polling the provider.
type Client struct {
	client   *redis.Client
	ttl      time.Duration
	location *time.Location
}

// statusRecord timestamps use the configured time zone, matching the MQTT
// last_update topic.
type statusRecord struct {
	VIN           string `json:"vin"`
	Name          string `json:"name"`
	Online        bool   `json:"online"`
	SentryEnabled bool   `json:"sentry_enabled"`
	Triggered     bool   `json:"triggered"`
	Timestamp     string `json:"timestamp"`
}

// NewRedisClient parses a redis:// or rediss:// URL. Entries expire after
// ttl so a stopped monitor does not leave a stale status behind; zero keeps
// them forever. A nil location means UTC.
func NewRedisClient(redisURL string, ttl time.Duration, location *time.Location) (*Client, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	if location == nil {
		location = time.UTC
	}

	return &Client{
		client:   redis.NewClient(options),
		ttl:      ttl,
		location: location,
	}, nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Client) PublishStatus(ctx context.Context, v sentry.Vehicle, status sentry.Status) error {
	value, err := c.statusValue(v, status)
	if err != nil {
		return err
	}

	if err := c.client.Set(ctx, stateKey(v.VIN), value, c.ttl).Err(); err != nil {
		return fmt.Errorf("writing state to redis: %w", err)
	}
	return nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func stateKey(vin string) string {
	return fmt.Sprintf("%s%s", statePrefix, vin)
}

func (c *Client) statusValue(v sentry.Vehicle, status sentry.Status) (string, error) {
	b, err := json.Marshal(statusRecord{
		VIN:           v.VIN,
		Name:          v.Name(),
		Online:        status.Online,
		SentryEnabled: status.SentryEnabled,
		Triggered:     status.Triggered,
		Timestamp:     status.Timestamp.In(c.location).Format(time.RFC3339),
	})
	if err != nil {
		return "", fmt.Errorf("marshalling status: %w", err)
	}
	return string(b), nil
}
