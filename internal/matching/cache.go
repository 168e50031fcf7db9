package matching

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// SnapshotCache keeps recent dashboard snapshots in Redis so repeated
// dashboard loads do not re-run the aggregates. Suggestion results are
// deliberately never cached here: freshness decay is a function of "now" and
// must be evaluated per query.
//
// Nil-safe: a nil *SnapshotCache (redis not configured) is a no-op.
type SnapshotCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSnapshotCache(client *redis.Client, ttl time.Duration) *SnapshotCache {
	if client == nil {
		return nil
	}
	return &SnapshotCache{client: client, ttl: ttl}
}

func snapshotKey(tenantID int64) string {
	return fmt.Sprintf("matching:dashboard:%d", tenantID)
}

func (c *SnapshotCache) Get(ctx context.Context, tenantID int64) (*AnalyticsSnapshot, bool) {
	if c == nil {
		return nil, false
	}
	data, err := c.client.Get(ctx, snapshotKey(tenantID)).Bytes()
	if err != nil {
		return nil, false
	}
	var snapshot AnalyticsSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, false
	}
	return &snapshot, true
}

func (c *SnapshotCache) Set(ctx context.Context, tenantID int64, snapshot *AnalyticsSnapshot) {
	if c == nil {
		return
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return
	}
	// Best effort; a failed cache write just means the next load re-aggregates.
	c.client.Set(ctx, snapshotKey(tenantID), data, c.ttl)
}
