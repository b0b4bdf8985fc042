package entity

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	id "civica/pkg/domain"
)

const snapshotKeyPrefix = "civica:entity:"

// SnapshotCache decorates a Store with a Redis read-through cache on Get.
// Canonical snapshots are re-read on every validate and apply pass, so
// caching them keeps repeated orchestration off the database. Writes
// invalidate the key; the TTL bounds retention for rows mutated out of band.
//
// Cache failures are never fatal: a Redis outage degrades to direct store
// reads with a warning.
type SnapshotCache struct {
	inner  Store
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewSnapshotCache(inner Store, client *redis.Client, ttl time.Duration, logger *slog.Logger) *SnapshotCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotCache{inner: inner, client: client, ttl: ttl, logger: logger}
}

func cacheKey(typ id.EntityType, entityID string) string {
	return snapshotKeyPrefix + typ.String() + ":" + entityID
}

func (c *SnapshotCache) Get(ctx context.Context, typ id.EntityType, entityID string) (Document, error) {
	key := cacheKey(typ, entityID)
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var doc Document
		if jsonErr := json.Unmarshal(raw, &doc); jsonErr == nil {
			return doc, nil
		}
		// Unreadable payload: drop it and fall through to the store.
		c.client.Del(ctx, key)
	} else if !errors.Is(err, redis.Nil) {
		c.logger.WarnContext(ctx, "snapshot cache read failed", "key", key, "error", err.Error())
	}

	doc, err := c.inner.Get(ctx, typ, entityID)
	if err != nil {
		return nil, err
	}
	if raw, jsonErr := json.Marshal(doc); jsonErr == nil {
		if setErr := c.client.Set(ctx, key, raw, c.ttl).Err(); setErr != nil {
			c.logger.WarnContext(ctx, "snapshot cache write failed", "key", key, "error", setErr.Error())
		}
	}
	return doc, nil
}

func (c *SnapshotCache) Create(ctx context.Context, typ id.EntityType, doc Document) (Document, error) {
	created, err := c.inner.Create(ctx, typ, doc)
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx, typ, created.ID())
	return created, nil
}

func (c *SnapshotCache) Update(ctx context.Context, typ id.EntityType, entityID string, doc Document) (Document, error) {
	updated, err := c.inner.Update(ctx, typ, entityID, doc)
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx, typ, entityID)
	return updated, nil
}

func (c *SnapshotCache) Delete(ctx context.Context, typ id.EntityType, entityID string) error {
	if err := c.inner.Delete(ctx, typ, entityID); err != nil {
		return err
	}
	c.invalidate(ctx, typ, entityID)
	return nil
}

func (c *SnapshotCache) ListByField(ctx context.Context, typ id.EntityType, field, value string) ([]Document, error) {
	return c.inner.ListByField(ctx, typ, field, value)
}

func (c *SnapshotCache) invalidate(ctx context.Context, typ id.EntityType, entityID string) {
	if entityID == "" {
		return
	}
	if err := c.client.Del(ctx, cacheKey(typ, entityID)).Err(); err != nil {
		c.logger.WarnContext(ctx, "snapshot cache invalidation failed",
			"entity_type", typ.String(),
			"entity_id", entityID,
			"error", err.Error(),
		)
	}
}
