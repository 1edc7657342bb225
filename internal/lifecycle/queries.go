package lifecycle

import (
	"context"
	"fmt"

	"task-tracker-api/internal/models"
	"task-tracker-api/internal/params"
)

// History returns a task's transitions, oldest first. It works for archived
// tasks too because rows are keyed by the original id.
func (s *Service) History(ctx context.Context, userID, taskID string) ([]models.TaskStatusHistory, error) {
	var rows []models.TaskStatusHistory
	err := s.db.WithContext(ctx).Where("task_id = ? AND user_id = ?", taskID, userID).
		Order("changed_at ASC, id ASC").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("lifecycle: history %s: %w", taskID, err)
	}
	if len(rows) == 0 {
		if _, err := loadTask(ctx, s.db, userID, taskID); err != nil {
			return nil, err
		}
	}
	return rows, nil
}

// Archives lists the user's archived tasks, newest first.
func (s *Service) Archives(ctx context.Context, userID string) ([]models.TaskArchive, error) {
	var rows []models.TaskArchive
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("archived_at DESC, id DESC").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("lifecycle: archives: %w", err)
	}
	return rows, nil
}

type Capacity struct {
	Count      int64 `json:"count"`
	Limit      int   `json:"limit"`
	Remaining  int64 `json:"remaining"`
	CanArchive bool  `json:"can_archive"`
}

func (s *Service) Capacity(ctx context.Context, userID string) (Capacity, error) {
	limit := s.params.Int(ctx, params.MaxArchiveLimit, 20)
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.TaskArchive{}).Where("user_id = ?", userID).Count(&n).Error; err != nil {
		return Capacity{}, fmt.Errorf("lifecycle: capacity: %w", err)
	}
	c := Capacity{Count: n, Limit: limit, CanArchive: n < int64(limit)}
	if c.CanArchive {
		c.Remaining = int64(limit) - n
	}
	return c, nil
}
