// Package lifecycle applies post-miss strategies to tasks and keeps the
// status history and archive tables.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"task-tracker-api/internal/metrics"
	"task-tracker-api/internal/models"
	"task-tracker-api/internal/params"
	"task-tracker-api/internal/realtime"
	"task-tracker-api/internal/tracking"

	"gorm.io/gorm"
)

type Strategy string

const (
	StrategyArchive Strategy = "archive"
	StrategyModify  Strategy = "modify"
	StrategyKeep    Strategy = "keep"
)

var (
	ErrTaskNotFound        = errors.New("task not found")
	ErrInvalidStrategy     = errors.New("invalid strategy")
	ErrArchiveLimitReached = errors.New("archive limit reached")
)

// ParseStrategy accepts any casing of archive, modify or keep.
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(strings.ToLower(strings.TrimSpace(s))); st {
	case StrategyArchive, StrategyModify, StrategyKeep:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStrategy, s)
}

func (s Strategy) behavior() models.BehaviorEventType {
	return models.BehaviorEventType(s)
}

// Invalidator drops cached derived values for users.
type Invalidator interface {
	Invalidate(ctx context.Context, userIDs ...string)
}

type ApplyRequest struct {
	Strategy   Strategy
	NewDueDate *time.Time
}

type ApplyResult struct {
	TaskID         string                   `json:"task_id"`
	Strategy       Strategy                 `json:"strategy"`
	PreviousStatus models.TaskStatus        `json:"previous_status"`
	NewStatus      string                   `json:"new_status"`
	Task           *models.Task             `json:"task,omitempty"`
	Archive        *models.TaskArchive      `json:"archive,omitempty"`
	History        models.TaskStatusHistory `json:"history"`
}

type Service struct {
	db        *gorm.DB
	params    params.Reader
	counts    Invalidator
	recorder  *tracking.Recorder
	publisher realtime.Publisher
	now       func() time.Time
	logger    *slog.Logger
}

type Options struct {
	Counts    Invalidator
	Recorder  *tracking.Recorder
	Publisher realtime.Publisher
	Now       func() time.Time
	Logger    *slog.Logger
}

func NewService(db *gorm.DB, p params.Reader, opts Options) *Service {
	s := &Service{
		db:        db,
		params:    p,
		counts:    opts.Counts,
		recorder:  opts.Recorder,
		publisher: opts.Publisher,
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

func (s *Service) offered(ctx context.Context, st Strategy) bool {
	for _, o := range s.params.Strings(ctx, params.StrategyOptions, []string{"archive", "modify", "keep"}) {
		if strings.EqualFold(o, string(st)) {
			return true
		}
	}
	return false
}

func loadTask(ctx context.Context, tx *gorm.DB, userID, taskID string) (models.Task, error) {
	var task models.Task
	err := tx.WithContext(ctx).Where("id = ? AND user_id = ?", taskID, userID).First(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return task, ErrTaskNotFound
	}
	if err != nil {
		return task, fmt.Errorf("lifecycle: load task %s: %w", taskID, err)
	}
	return task, nil
}

// Apply runs a strategy on one of the user's tasks. The history row is
// written before the mutation, in the same transaction.
func (s *Service) Apply(ctx context.Context, userID, taskID string, req ApplyRequest) (ApplyResult, error) {
	st, err := ParseStrategy(string(req.Strategy))
	if err != nil {
		return ApplyResult{}, err
	}
	if !s.offered(ctx, st) {
		return ApplyResult{}, fmt.Errorf("%w: %q is not offered", ErrInvalidStrategy, st)
	}

	ctx = params.Pin(ctx, s.params)
	var res ApplyResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		task, err := loadTask(ctx, tx, userID, taskID)
		if err != nil {
			return err
		}
		label := string(st)
		res = ApplyResult{TaskID: task.ID, Strategy: st, PreviousStatus: task.Status}

		switch st {
		case StrategyArchive:
			archive, hist, err := s.archive(ctx, tx, task, &label)
			if err != nil {
				return err
			}
			res.Archive, res.History, res.NewStatus = &archive, hist, models.StatusArchived
		case StrategyModify:
			hist, err := s.transition(ctx, tx, &task, models.StatusPending, &label, req.NewDueDate)
			if err != nil {
				return err
			}
			res.Task, res.History, res.NewStatus = &task, hist, string(models.StatusPending)
		case StrategyKeep:
			hist, err := s.transition(ctx, tx, &task, models.StatusTaskMiss, &label, nil)
			if err != nil {
				return err
			}
			res.Task, res.History, res.NewStatus = &task, hist, string(models.StatusTaskMiss)
		}

		if s.recorder != nil {
			_, err := s.recorder.RecordBehavior(ctx, tx, userID, tracking.BehaviorInput{
				TaskID:    task.ID,
				EventType: st.behavior(),
				Metadata:  map[string]any{"previous_status": task.Status},
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return ApplyResult{}, err
	}

	s.afterCommit(ctx, userID, realtime.Event{
		Type:   realtime.EventStrategyApplied,
		TaskID: taskID,
		Data:   map[string]any{"strategy": st, "new_status": res.NewStatus},
	})
	metrics.StrategiesApplied.WithLabelValues(string(st)).Inc()
	s.logger.Info("strategy applied", "user_id", userID, "task_id", taskID, "strategy", st, "from", res.PreviousStatus, "to", res.NewStatus)
	return res, nil
}

// ArchiveTask archives on a direct user edit. The history row carries no strategy.
func (s *Service) ArchiveTask(ctx context.Context, userID, taskID string) (models.TaskArchive, error) {
	ctx = params.Pin(ctx, s.params)
	var archive models.TaskArchive
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		task, err := loadTask(ctx, tx, userID, taskID)
		if err != nil {
			return err
		}
		archive, _, err = s.archive(ctx, tx, task, nil)
		return err
	})
	if err != nil {
		return models.TaskArchive{}, err
	}
	s.afterCommit(ctx, userID, realtime.Event{Type: realtime.EventTaskArchived, TaskID: taskID})
	return archive, nil
}

func (s *Service) afterCommit(ctx context.Context, userID string, evt realtime.Event) {
	if s.counts != nil {
		s.counts.Invalidate(ctx, userID)
	}
	s.publisher.Publish(userID, evt)
}

func (s *Service) history(ctx context.Context, tx *gorm.DB, task models.Task, newStatus string, strategy *string) (models.TaskStatusHistory, error) {
	h := models.TaskStatusHistory{
		TaskID:          task.ID,
		UserID:          task.UserID,
		PreviousStatus:  string(task.Status),
		NewStatus:       newStatus,
		StrategyApplied: strategy,
		ChangedAt:       s.now(),
	}
	if err := tx.WithContext(ctx).Create(&h).Error; err != nil {
		return h, fmt.Errorf("lifecycle: write history: %w", err)
	}
	return h, nil
}

func (s *Service) transition(ctx context.Context, tx *gorm.DB, task *models.Task, to models.TaskStatus, strategy *string, due *time.Time) (models.TaskStatusHistory, error) {
	hist, err := s.history(ctx, tx, *task, string(to), strategy)
	if err != nil {
		return hist, err
	}
	updates := map[string]any{"status": to, "updated_at": s.now()}
	if due != nil {
		d := due.UTC()
		updates["due_date"] = d
		task.DueDate = &d
	}
	if err := tx.WithContext(ctx).Model(&models.Task{}).Where("id = ?", task.ID).Updates(updates).Error; err != nil {
		return hist, fmt.Errorf("lifecycle: update task %s: %w", task.ID, err)
	}
	task.Status = to
	task.UpdatedAt = updates["updated_at"].(time.Time)
	return hist, nil
}

func (s *Service) archive(ctx context.Context, tx *gorm.DB, task models.Task, strategy *string) (models.TaskArchive, models.TaskStatusHistory, error) {
	limit := s.params.Int(ctx, params.MaxArchiveLimit, 20)
	var archived int64
	if err := tx.WithContext(ctx).Model(&models.TaskArchive{}).Where("user_id = ?", task.UserID).Count(&archived).Error; err != nil {
		return models.TaskArchive{}, models.TaskStatusHistory{}, fmt.Errorf("lifecycle: count archives: %w", err)
	}
	if archived >= int64(limit) {
		return models.TaskArchive{}, models.TaskStatusHistory{}, ErrArchiveLimitReached
	}

	hist, err := s.history(ctx, tx, task, models.StatusArchived, strategy)
	if err != nil {
		return models.TaskArchive{}, hist, err
	}
	archive := models.TaskArchive{
		OriginalTaskID: task.ID,
		UserID:         task.UserID,
		Title:          task.Title,
		Description:    task.Description,
		OriginalStatus: task.Status,
		DueDate:        task.DueDate,
		TaskCreatedAt:  task.CreatedAt,
		ArchivedAt:     s.now(),
	}
	if err := tx.WithContext(ctx).Create(&archive).Error; err != nil {
		return archive, hist, fmt.Errorf("lifecycle: archive task %s: %w", task.ID, err)
	}
	if err := tx.WithContext(ctx).Delete(&models.Task{}, "id = ?", task.ID).Error; err != nil {
		return archive, hist, fmt.Errorf("lifecycle: remove task %s: %w", task.ID, err)
	}
	return archive, hist, nil
}
