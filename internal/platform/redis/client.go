// Package redis wraps the go-redis client and exposes the per-activity
// registration lease used to serialize capacity decisions across nodes.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client wraps the go-redis client with health checking.
type Client struct {
	*redis.Client
}

// New creates a Redis client from a URL. Returns nil (and no error) if the
// URL is empty, meaning Redis is not configured and in-process locking
// applies alone.
func New(url string) (*Client, error) {
	if url == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{Client: client}, nil
}

// Health checks if the Redis connection is healthy.
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.Client.Close()
}

// ActivityLocker takes short leases keyed by activity so that two nodes
// cannot run the capacity check-then-act for the same activity at once.
// Within one process the striped mutex in the registration service already
// serializes; this extends the guarantee across processes.
type ActivityLocker struct {
	client *Client
	ttl    time.Duration
}

// NewActivityLocker builds a locker with the given lease TTL. The TTL only
// bounds how long a crashed holder can block others.
func NewActivityLocker(client *Client, ttl time.Duration) *ActivityLocker {
	return &ActivityLocker{client: client, ttl: ttl}
}

// Acquire polls SET NX until the lease is taken or ctx expires. The token
// returned must be passed back to Release.
func (l *ActivityLocker) Acquire(ctx context.Context, activityID string) (string, error) {
	key := "volunteerhub:activity-lock:" + activityID
	token := fmt.Sprintf("%d", time.Now().UnixNano())

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return "", fmt.Errorf("acquire activity lock: %w", err)
		}
		if ok {
			return token, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// releaseScript deletes the lease only if we still hold it, so an expired
// lease reacquired by another node is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Release returns the lease if the token still matches.
func (l *ActivityLocker) Release(ctx context.Context, activityID, token string) error {
	key := "volunteerhub:activity-lock:" + activityID
	return releaseScript.Run(ctx, l.client, []string{key}, token).Err()
}
