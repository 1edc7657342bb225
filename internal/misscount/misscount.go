// Package misscount serves per-user counts of missed tasks through a TTL cache.
package misscount

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"task-tracker-api/internal/cache"
	"task-tracker-api/internal/metrics"
	"task-tracker-api/internal/models"

	"gorm.io/gorm"
)

const DefaultTTL = 300 * time.Second

func Key(userID string) string {
	return "user:" + userID + ":miss_count"
}

// Counter reads miss counts. Cache failures degrade to a storage read.
//
// Each user has a generation bumped by Invalidate. A count is only cached if
// no invalidation happened while it was being computed.
type Counter struct {
	db     *gorm.DB
	store  cache.Store
	ttl    time.Duration
	logger *slog.Logger

	mu  sync.Mutex
	gen map[string]uint64

	afterCount func(userID string)
}

func NewCounter(db *gorm.DB, store cache.Store, ttl time.Duration, logger *slog.Logger) *Counter {
	if store == nil {
		store = cache.NopStore{}
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Counter{db: db, store: store, ttl: ttl, logger: logger, gen: map[string]uint64{}}
}

// Get returns the user's task_miss count and whether it came from the cache.
func (c *Counter) Get(ctx context.Context, userID string) (int64, bool, error) {
	raw, ok, err := c.store.Get(ctx, Key(userID))
	if err != nil {
		metrics.CacheErrors.WithLabelValues("get").Inc()
		c.logger.Warn("miss count cache read failed", "user_id", userID, "error", err)
	} else if ok {
		if n, perr := strconv.ParseInt(string(raw), 10, 64); perr == nil {
			metrics.MissCountLookups.WithLabelValues("hit").Inc()
			c.logger.Debug("miss count cache hit", "user_id", userID, "count", n)
			return n, true, nil
		}
	}

	metrics.MissCountLookups.WithLabelValues("miss").Inc()
	n, err := c.Refresh(ctx, userID)
	return n, false, err
}

// Refresh recomputes the count from storage and overwrites the cached value.
func (c *Counter) Refresh(ctx context.Context, userID string) (int64, error) {
	c.mu.Lock()
	gen := c.gen[userID]
	c.mu.Unlock()

	var n int64
	err := c.db.WithContext(ctx).Model(&models.Task{}).
		Where("user_id = ? AND status = ?", userID, models.StatusTaskMiss).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("misscount: count %s: %w", userID, err)
	}
	if c.afterCount != nil {
		c.afterCount(userID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen[userID] != gen {
		c.logger.Debug("miss count invalidated during refresh, not cached", "user_id", userID, "count", n)
		return n, nil
	}
	if err := c.store.Set(ctx, Key(userID), []byte(strconv.FormatInt(n, 10)), c.ttl); err != nil {
		metrics.CacheErrors.WithLabelValues("set").Inc()
		c.logger.Warn("miss count cache write failed", "user_id", userID, "error", err)
	}
	c.logger.Debug("miss count refreshed", "user_id", userID, "count", n)
	return n, nil
}

// Invalidate drops cached counts so the next read recomputes them.
func (c *Counter) Invalidate(ctx context.Context, userIDs ...string) {
	if len(userIDs) == 0 {
		return
	}
	keys := make([]string, len(userIDs))
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, id := range userIDs {
		keys[i] = Key(id)
		c.gen[id]++
	}
	if err := c.store.Delete(ctx, keys...); err != nil {
		metrics.CacheErrors.WithLabelValues("delete").Inc()
		c.logger.Warn("miss count cache invalidate failed", "users", len(userIDs), "error", err)
	}
}
