// Package tasks implements task CRUD, the creation limits and the home views.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"task-tracker-api/internal/experiment"
	"task-tracker-api/internal/lifecycle"
	"task-tracker-api/internal/metrics"
	"task-tracker-api/internal/models"
	"task-tracker-api/internal/params"
	"task-tracker-api/internal/policy"
	"task-tracker-api/internal/realtime"
	"task-tracker-api/internal/tracking"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrTaskNotFound  = lifecycle.ErrTaskNotFound
	ErrInvalidStatus = errors.New("invalid task status")
	ErrEmptyTitle    = errors.New("title must not be empty")
)

var activeStatuses = []models.TaskStatus{models.StatusPending, models.StatusInProgress}

type Service struct {
	db        *gorm.DB
	params    params.Reader
	assigner  *experiment.Assigner
	recorder  *tracking.Recorder
	lifecycle *lifecycle.Service
	counts    lifecycle.Invalidator
	publisher realtime.Publisher
	now       func() time.Time
	loc       *time.Location
	logger    *slog.Logger
}

type Deps struct {
	Params    params.Reader
	Assigner  *experiment.Assigner
	Recorder  *tracking.Recorder
	Lifecycle *lifecycle.Service
	Counts    lifecycle.Invalidator
	Publisher realtime.Publisher
	Now       func() time.Time
	Location  *time.Location
	Logger    *slog.Logger
}

func NewService(db *gorm.DB, d Deps) *Service {
	s := &Service{
		db:        db,
		params:    d.Params,
		assigner:  d.Assigner,
		recorder:  d.Recorder,
		lifecycle: d.Lifecycle,
		counts:    d.Counts,
		publisher: d.Publisher,
		now:       d.Now,
		loc:       d.Location,
		logger:    d.Logger,
	}
	if s.publisher == nil {
		s.publisher = realtime.Discard{}
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// dayBounds returns the UTC instants bounding the local calendar day containing now.
func dayBounds(now time.Time, loc *time.Location) (time.Time, time.Time) {
	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return start.UTC(), start.AddDate(0, 0, 1).UTC()
}

func (s *Service) todayScope(db *gorm.DB) *gorm.DB {
	start, end := dayBounds(s.now(), s.loc)
	return db.Where(
		"((due_date >= ? AND due_date < ?) OR (due_date IS NULL AND created_at >= ? AND created_at < ?))",
		start, end, start, end,
	)
}

func (s *Service) countActiveToday(ctx context.Context, tx *gorm.DB, userID string) (int, error) {
	var n int64
	q := tx.WithContext(ctx).Model(&models.Task{}).
		Where("user_id = ? AND status IN ?", userID, activeStatuses)
	if err := s.todayScope(q).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("tasks: count active: %w", err)
	}
	return int(n), nil
}

type ListFilter struct {
	Status models.TaskStatus
}

func (s *Service) List(ctx context.Context, userID string, f ListFilter) ([]models.Task, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if f.Status != "" {
		if !f.Status.Valid() {
			return nil, ErrInvalidStatus
		}
		q = q.Where("status = ?", f.Status)
	}
	var out []models.Task
	if err := q.Order("created_at DESC, id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("tasks: list: %w", err)
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, userID, taskID string) (models.Task, error) {
	var t models.Task
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", taskID, userID).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return t, ErrTaskNotFound
	}
	if err != nil {
		return t, fmt.Errorf("tasks: get %s: %w", taskID, err)
	}
	return t, nil
}

type CreateInput struct {
	Title       string
	Description string
	DueDate     *time.Time
}

type CreateResult struct {
	Task  models.Task  `json:"task"`
	Guide policy.Guide `json:"guide"`
}

// Create inserts a pending task. The soft limit only records a guide event;
// the hard limit, when enabled, rejects with *policy.HardLimitError.
func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (CreateResult, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return CreateResult{}, ErrEmptyTitle
	}

	ctx = params.Pin(ctx, s.params)
	var res CreateResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		active, err := s.countActiveToday(ctx, tx, userID)
		if err != nil {
			return err
		}
		if s.params.Bool(ctx, params.HardLimitEnabled, false) {
			if err := policy.CheckHardLimit(active, s.params.Int(ctx, params.MaxActiveTasks, 5)); err != nil {
				return err
			}
		}

		now := s.now()
		task := models.Task{
			ID:          uuid.NewString(),
			UserID:      userID,
			Title:       title,
			Description: in.Description,
			Status:      models.StatusPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if in.DueDate != nil {
			d := in.DueDate.UTC()
			task.DueDate = &d
		}
		if err := tx.Create(&task).Error; err != nil {
			return fmt.Errorf("tasks: create: %w", err)
		}

		a, err := s.assigner.GetOrAssign(ctx, tx, userID)
		if err != nil {
			return err
		}
		guide := policy.EvaluateGuide(active,
			s.params.Int(ctx, params.GuideThreshold, 6),
			s.params.Int(ctx, params.ActiveTaskCap, 5))
		if guide.Exposed {
			if _, err := s.recorder.RecordGoal(ctx, tx, userID, &task.ID, models.GoalGuideExposed, a.Group, guide.Payload()); err != nil {
				return err
			}
		}
		_, err = s.recorder.RecordGoal(ctx, tx, userID, &task.ID, models.GoalTaskCreate, a.Group, map[string]any{
			"active_task_count": active + 1,
		})
		if err != nil {
			return err
		}
		res = CreateResult{Task: task, Guide: guide}
		return nil
	})
	var blocked *policy.HardLimitError
	if errors.As(err, &blocked) {
		s.recordLimitBlocked(ctx, userID, blocked)
	}
	if err != nil {
		return CreateResult{}, err
	}

	if res.Guide.Exposed {
		metrics.GuideExposures.Inc()
		s.logger.Info("guide exposed", "user_id", userID, "active", res.Guide.Active)
	}
	s.publisher.Publish(userID, realtime.Event{Type: realtime.EventTaskCreated, TaskID: res.Task.ID})
	return res, nil
}

// recordLimitBlocked logs a rejected creation. The creating transaction has
// rolled back, so the event is written on its own.
func (s *Service) recordLimitBlocked(ctx context.Context, userID string, hl *policy.HardLimitError) {
	metrics.LimitBlocks.Inc()
	s.logger.Info("task creation blocked by hard limit", "user_id", userID, "active", hl.Active, "max", hl.Max)

	var group models.ExperimentGroup
	a, err := s.assigner.Lookup(ctx, s.db, userID)
	if err != nil {
		s.logger.Warn("limit_blocked: experiment lookup failed", "user_id", userID, "error", err)
	} else if a != nil {
		group = a.Group
	}
	_, err = s.recorder.RecordGoal(ctx, nil, userID, nil, models.GoalLimitBlocked, group, map[string]any{
		"active_task_count":     hl.Active,
		"next_task_ordinal":     hl.Next,
		"max_active_task_count": hl.Max,
	})
	if err != nil {
		s.logger.Warn("limit_blocked event not recorded", "user_id", userID, "error", err)
	}
}

type UpdateInput struct {
	Title       *string
	Description *string
	Status      *models.TaskStatus
	DueDate     *time.Time
	Archived    *bool
}

type UpdateResult struct {
	Task    *models.Task        `json:"task,omitempty"`
	Archive *models.TaskArchive `json:"archive,omitempty"`
}

// Update applies a user edit. Any status may be set; archived=true moves the
// task to the archive.
func (s *Service) Update(ctx context.Context, userID, taskID string, in UpdateInput) (UpdateResult, error) {
	if in.Archived != nil && *in.Archived {
		a, err := s.lifecycle.ArchiveTask(ctx, userID, taskID)
		if err != nil {
			return UpdateResult{}, err
		}
		return UpdateResult{Archive: &a}, nil
	}
	if in.Status != nil && !in.Status.Valid() {
		return UpdateResult{}, ErrInvalidStatus
	}
	if in.Title != nil && strings.TrimSpace(*in.Title) == "" {
		return UpdateResult{}, ErrEmptyTitle
	}

	var (
		task   models.Task
		before models.TaskStatus
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND user_id = ?", taskID, userID).First(&task).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTaskNotFound
			}
			return fmt.Errorf("tasks: load %s: %w", taskID, err)
		}
		before = task.Status

		if in.Title != nil {
			task.Title = strings.TrimSpace(*in.Title)
		}
		if in.Description != nil {
			task.Description = *in.Description
		}
		if in.Status != nil {
			task.Status = *in.Status
		}
		if in.DueDate != nil {
			d := in.DueDate.UTC()
			task.DueDate = &d
		}
		if err := tx.Save(&task).Error; err != nil {
			return fmt.Errorf("tasks: update %s: %w", taskID, err)
		}

		typ := models.GoalTaskModify
		if task.Status == models.StatusCompleted && before != models.StatusCompleted {
			typ = models.GoalTaskComplete
		}
		var group models.ExperimentGroup
		if a, err := s.assigner.Lookup(ctx, tx, userID); err != nil {
			return err
		} else if a != nil {
			group = a.Group
		}
		_, err := s.recorder.RecordGoal(ctx, tx, userID, &task.ID, typ, group, map[string]any{
			"previous_status": before,
			"status":          task.Status,
		})
		return err
	})
	if err != nil {
		return UpdateResult{}, err
	}

	if s.counts != nil && before != task.Status && (before == models.StatusTaskMiss || task.Status == models.StatusTaskMiss) {
		s.counts.Invalidate(ctx, userID)
	}
	s.publisher.Publish(userID, realtime.Event{Type: realtime.EventTaskUpdated, TaskID: task.ID})
	return UpdateResult{Task: &task}, nil
}

func (s *Service) Delete(ctx context.Context, userID, taskID string) error {
	task, err := s.Get(ctx, userID, taskID)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(&models.Task{}, "id = ? AND user_id = ?", taskID, userID).Error; err != nil {
		return fmt.Errorf("tasks: delete %s: %w", taskID, err)
	}
	if s.counts != nil && task.Status == models.StatusTaskMiss {
		s.counts.Invalidate(ctx, userID)
	}
	s.publisher.Publish(userID, realtime.Event{Type: realtime.EventTaskDeleted, TaskID: taskID})
	return nil
}
