package downloads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	cacheVersionPrefix = "downloads:version"
	// BumpChannel carries per-endpoint cache version bumps between dashboard instances
	// and workers. The message payload is the endpoint key.
	BumpChannel = "downloads.bump"
)

// Cache stores decoded snapshots in Redis under keys versioned per endpoint.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func versionKey(endpoint string) string {
	return cacheVersionPrefix + ":" + endpoint
}

// Version returns the current cache version of endpoint, initialising when missing.
func (c *Cache) Version(ctx context.Context, endpoint string) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	key := versionKey(endpoint)
	ver, err := c.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, key, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, key).Int64()
	}
	if err != nil {
		return 0, err
	}
	if ver <= 0 {
		ver = 1
		if err := c.client.Set(ctx, key, ver, 0).Err(); err != nil {
			return 0, err
		}
	}
	return ver, nil
}

// SnapshotKey composes the snapshot key of endpoint with its current version.
func (c *Cache) SnapshotKey(ctx context.Context, endpoint string) (string, error) {
	base := strings.Join([]string{"downloads", "snapshot", endpoint}, ":")
	if c == nil || c.client == nil {
		return base, nil
	}
	ver, err := c.Version(ctx, endpoint)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d", base, ver), nil
}

// Get loads a cached snapshot. ok is false on a miss.
func (c *Cache) Get(ctx context.Context, key string) (Snapshot, bool, error) {
	if c == nil || c.client == nil {
		return Snapshot{}, false, nil
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, err
	}
	var snap Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return Snapshot{}, false, fmt.Errorf("downloads: decode cached snapshot: %w", err)
	}
	return snap, true, nil
}

// Put stores snap under key for the cache TTL.
func (c *Cache) Put(ctx context.Context, key string, snap Snapshot) error {
	if c == nil || c.client == nil {
		return nil
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, raw, c.ttl).Err()
}

// Bump invalidates the cached snapshot of endpoint by incrementing its version, then
// publishes the endpoint key. Other endpoints keep their versions.
func (c *Cache) Bump(ctx context.Context, endpoint string) error {
	if c == nil || c.client == nil {
		return nil
	}
	if err := c.client.Incr(ctx, versionKey(endpoint)).Err(); err != nil {
		return err
	}
	return c.client.Publish(ctx, BumpChannel, endpoint).Err()
}

// ListenForInvalidation subscribes to version bumps and calls onBump with the bumped
// endpoint key until ctx is done.
func (c *Cache) ListenForInvalidation(ctx context.Context, onBump func(endpoint string)) error {
	if c == nil || c.client == nil {
		return nil
	}
	pubsub := c.client.Subscribe(ctx, BumpChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if onBump != nil && msg.Payload != "" {
					onBump(msg.Payload)
				}
			}
		}
	}()
	return nil
}
