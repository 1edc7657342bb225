// Package tracking records behaviour, goal and session events for experiment analysis.
package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"task-tracker-api/internal/experiment"
	"task-tracker-api/internal/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrInvalidEventType = errors.New("invalid event type")

// Recorder appends behaviour and goal events.
type Recorder struct {
	db       *gorm.DB
	assigner *experiment.Assigner
	now      func() time.Time
	logger   *slog.Logger
}

func NewRecorder(db *gorm.DB, assigner *experiment.Assigner, now func() time.Time, logger *slog.Logger) *Recorder {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{db: db, assigner: assigner, now: now, logger: logger}
}

type BehaviorInput struct {
	TaskID    string                   `json:"task_id" binding:"required"`
	EventType models.BehaviorEventType `json:"event_type" binding:"required"`
	Metadata  map[string]any           `json:"metadata"`
}

func encodeJSON(v map[string]any) (datatypes.JSON, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}

// RecordBehavior appends an event using tx, or the recorder's db when tx is nil.
// Latency is measured from the previous event of the same task.
func (r *Recorder) RecordBehavior(ctx context.Context, tx *gorm.DB, userID string, in BehaviorInput) (models.BehaviorLog, error) {
	if tx == nil {
		tx = r.db
	}
	if !in.EventType.Valid() {
		return models.BehaviorLog{}, fmt.Errorf("%w: %q", ErrInvalidEventType, in.EventType)
	}
	meta, err := encodeJSON(in.Metadata)
	if err != nil {
		return models.BehaviorLog{}, fmt.Errorf("tracking: metadata: %w", err)
	}

	assignment, err := r.assigner.GetOrAssign(ctx, tx, userID)
	if err != nil {
		return models.BehaviorLog{}, err
	}

	now := r.now()
	row := models.BehaviorLog{
		TaskID:          in.TaskID,
		UserID:          userID,
		EventType:       in.EventType,
		ExperimentID:    assignment.ExperimentID,
		ExperimentGroup: assignment.Group,
		EventAt:         now,
		Metadata:        meta,
	}

	var prev models.BehaviorLog
	err = tx.WithContext(ctx).Where("task_id = ?", in.TaskID).
		Order("event_at DESC, id DESC").First(&prev).Error
	switch {
	case err == nil:
		at := prev.EventAt
		latency := now.Sub(at).Milliseconds()
		row.PreviousEventAt = &at
		row.LatencyMs = &latency
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return models.BehaviorLog{}, fmt.Errorf("tracking: previous event: %w", err)
	}

	if err := tx.WithContext(ctx).Create(&row).Error; err != nil {
		return models.BehaviorLog{}, fmt.Errorf("tracking: record behavior: %w", err)
	}
	return row, nil
}

type Chain struct {
	TaskID         string               `json:"task_id"`
	Events         []models.BehaviorLog `json:"events"`
	TotalLatencyMs int64                `json:"total_latency_ms"`
}

// Chain returns the user's events for a task in occurrence order.
func (r *Recorder) Chain(ctx context.Context, userID, taskID string) (Chain, error) {
	var rows []models.BehaviorLog
	err := r.db.WithContext(ctx).Where("task_id = ? AND user_id = ?", taskID, userID).
		Order("event_at ASC, id ASC").Find(&rows).Error
	if err != nil {
		return Chain{}, fmt.Errorf("tracking: chain %s: %w", taskID, err)
	}
	c := Chain{TaskID: taskID, Events: rows}
	for _, row := range rows {
		if row.LatencyMs != nil {
			c.TotalLatencyMs += *row.LatencyMs
		}
	}
	return c, nil
}

type Summary struct {
	UserID          string                             `json:"user_id"`
	ExperimentGroup models.ExperimentGroup             `json:"experiment_group,omitempty"`
	TotalEvents     int64                              `json:"total_events"`
	Counts          map[models.BehaviorEventType]int64 `json:"counts"`
	AvgLatencyMs    *float64                           `json:"avg_latency_ms"`
}

// Summary aggregates a user's behaviour events.
func (r *Recorder) Summary(ctx context.Context, userID string) (Summary, error) {
	s := Summary{UserID: userID, Counts: map[models.BehaviorEventType]int64{}}

	var counts []struct {
		EventType models.BehaviorEventType
		N         int64
	}
	err := r.db.WithContext(ctx).Model(&models.BehaviorLog{}).
		Select("event_type, COUNT(*) AS n").
		Where("user_id = ?", userID).
		Group("event_type").Scan(&counts).Error
	if err != nil {
		return s, fmt.Errorf("tracking: summary counts: %w", err)
	}
	for _, c := range counts {
		s.Counts[c.EventType] = c.N
		s.TotalEvents += c.N
	}

	var avg struct{ Avg *float64 }
	err = r.db.WithContext(ctx).Model(&models.BehaviorLog{}).
		Select("AVG(latency_ms) AS avg").
		Where("user_id = ? AND latency_ms IS NOT NULL", userID).
		Scan(&avg).Error
	if err != nil {
		return s, fmt.Errorf("tracking: summary latency: %w", err)
	}
	s.AvgLatencyMs = avg.Avg

	a, err := r.assigner.Lookup(ctx, r.db, userID)
	if err != nil {
		return s, err
	}
	if a != nil {
		s.ExperimentGroup = a.Group
	}
	return s, nil
}
