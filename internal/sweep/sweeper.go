// Package sweep demotes overdue tasks to task_miss on a schedule.
package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"task-tracker-api/internal/cache"
	"task-tracker-api/internal/lifecycle"
	"task-tracker-api/internal/metrics"
	"task-tracker-api/internal/models"
	"task-tracker-api/internal/params"
	"task-tracker-api/internal/realtime"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Sweeper struct {
	db        *gorm.DB
	params    params.Reader
	counts    lifecycle.Invalidator
	publisher realtime.Publisher
	purger    cache.Purger
	now       func() time.Time
	logger    *slog.Logger

	mu sync.Mutex
}

type Options struct {
	Counts    lifecycle.Invalidator
	Publisher realtime.Publisher
	// Purger, when set, gets a housekeeping call after every run.
	Purger cache.Purger
	Now    func() time.Time
	Logger *slog.Logger
}

func NewSweeper(db *gorm.DB, p params.Reader, opts Options) *Sweeper {
	s := &Sweeper{
		db:        db,
		params:    p,
		counts:    opts.Counts,
		publisher: opts.Publisher,
		purger:    opts.Purger,
		now:       opts.Now,
		logger:    opts.Logger,
	}
	if s.publisher == nil {
		s.publisher = realtime.Discard{}
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// batchSize keeps every statement well under SQLite's bound-variable limit.
const batchSize = 500

type candidate struct {
	ID     string
	UserID string
	Status models.TaskStatus
}

// Run moves every non-terminal task whose due date has passed (less the
// grace period) to task_miss and records one history row per task. It
// returns the number of tasks transitioned. Running it twice is harmless.
func (s *Sweeper) Run(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	started := time.Now()
	now := s.now()
	grace := time.Duration(s.params.Int(ctx, params.MissGracePeriod, 0)) * time.Second
	cutoff := now.Add(-grace)

	var (
		affected  int64
		perUser   = map[string]int{}
		userOrder []string
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Model(&models.Task{}).
			Select("id, user_id, status").
			Where("due_date < ? AND status NOT IN ?", cutoff, models.TerminalStatuses)
		if tx.Dialector.Name() == "mysql" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var found []candidate
		if err := q.Scan(&found).Error; err != nil {
			return fmt.Errorf("sweep: select candidates: %w", err)
		}
		if len(found) == 0 {
			return nil
		}

		ids := make([]string, len(found))
		for i, c := range found {
			ids[i] = c.ID
			if _, seen := perUser[c.UserID]; !seen {
				userOrder = append(userOrder, c.UserID)
			}
			perUser[c.UserID]++
		}

		for start := 0; start < len(ids); start += batchSize {
			end := min(start+batchSize, len(ids))
			res := tx.Model(&models.Task{}).
				Where("id IN ? AND status NOT IN ?", ids[start:end], models.TerminalStatuses).
				Updates(map[string]any{"status": models.StatusTaskMiss, "updated_at": now})
			if res.Error != nil {
				return fmt.Errorf("sweep: update tasks: %w", res.Error)
			}
			affected += res.RowsAffected
		}

		history := make([]models.TaskStatusHistory, len(found))
		for i, c := range found {
			history[i] = models.TaskStatusHistory{
				TaskID:         c.ID,
				UserID:         c.UserID,
				PreviousStatus: string(c.Status),
				NewStatus:      string(models.StatusTaskMiss),
				ChangedAt:      now,
			}
		}
		if err := tx.CreateInBatches(&history, batchSize).Error; err != nil {
			return fmt.Errorf("sweep: write history: %w", err)
		}
		return nil
	})
	metrics.SweepDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		metrics.SweepRuns.WithLabelValues("error").Inc()
		s.logger.Error("expiry sweep failed", "error", err)
		return 0, err
	}
	metrics.SweepRuns.WithLabelValues("ok").Inc()

	if len(userOrder) > 0 {
		if s.counts != nil {
			s.counts.Invalidate(ctx, userOrder...)
		}
		for _, u := range userOrder {
			s.publisher.Publish(u, realtime.Event{
				Type: realtime.EventTasksMissed,
				Data: map[string]any{"count": perUser[u]},
			})
		}
		metrics.SweepTransitioned.Add(float64(affected))
	}
	if s.purger != nil {
		if err := s.purger.PurgeExpired(ctx); err != nil {
			s.logger.Warn("cache purge failed", "error", err)
		}
	}

	s.logger.Info("expiry sweep finished", "transitioned", affected, "users", len(userOrder), "cutoff", cutoff)
	return affected, nil
}
