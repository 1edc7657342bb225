package tracking

import (
	"context"
	"fmt"

	"task-tracker-api/internal/models"

	"gorm.io/gorm"
)

// RecordGoal appends a soft-limit event. group may be empty.
func (r *Recorder) RecordGoal(ctx context.Context, tx *gorm.DB, userID string, taskID *string, typ models.GoalEventType, group models.ExperimentGroup, payload map[string]any) (models.GoalEventLog, error) {
	if tx == nil {
		tx = r.db
	}
	body, err := encodeJSON(payload)
	if err != nil {
		return models.GoalEventLog{}, fmt.Errorf("tracking: goal payload: %w", err)
	}
	row := models.GoalEventLog{
		UserID:          userID,
		TaskID:          taskID,
		EventType:       typ,
		ExperimentGroup: group,
		Payload:         body,
		OccurredAt:      r.now(),
	}
	if err := tx.WithContext(ctx).Create(&row).Error; err != nil {
		return models.GoalEventLog{}, fmt.Errorf("tracking: record %s: %w", typ, err)
	}
	return row, nil
}

// GoalEvents lists a user's goal events, newest first.
func (r *Recorder) GoalEvents(ctx context.Context, userID string, typ models.GoalEventType) ([]models.GoalEventLog, error) {
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if typ != "" {
		q = q.Where("event_type = ?", typ)
	}
	var rows []models.GoalEventLog
	if err := q.Order("occurred_at DESC, id DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("tracking: goal events: %w", err)
	}
	return rows, nil
}
