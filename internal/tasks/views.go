package tasks

import (
	"context"
	"fmt"

	"task-tracker-api/internal/models"
	"task-tracker-api/internal/params"
)

// Home returns the tasks shown on the home screen. Scope "today" limits the
// list to tasks due (or created without a due date) today; anything else
// shows every unfinished task.
func (s *Service) Home(ctx context.Context, userID string) ([]models.Task, string, error) {
	scope := s.params.String(ctx, params.DisplayScope, "today")
	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if scope == "today" {
		q = s.todayScope(q)
	} else {
		q = q.Where("status <> ?", models.StatusCompleted)
	}
	var out []models.Task
	if err := q.Order("due_date IS NULL, due_date ASC, created_at ASC").Find(&out).Error; err != nil {
		return nil, scope, fmt.Errorf("tasks: home: %w", err)
	}
	return out, scope, nil
}

type TodayStats struct {
	Date           string  `json:"date"`
	Total          int64   `json:"total"`
	Pending        int64   `json:"pending"`
	InProgress     int64   `json:"in_progress"`
	Completed      int64   `json:"completed"`
	Missed         int64   `json:"task_miss"`
	CompletionRate float64 `json:"completion_rate"`
}

// TodayStats groups today's tasks by status.
func (s *Service) TodayStats(ctx context.Context, userID string) (TodayStats, error) {
	var rows []struct {
		Status models.TaskStatus
		N      int64
	}
	q := s.db.WithContext(ctx).Model(&models.Task{}).
		Select("status, COUNT(*) AS n").
		Where("user_id = ?", userID)
	if err := s.todayScope(q).Group("status").Scan(&rows).Error; err != nil {
		return TodayStats{}, fmt.Errorf("tasks: today stats: %w", err)
	}

	st := TodayStats{Date: s.now().In(s.loc).Format("2006-01-02")}
	for _, r := range rows {
		st.Total += r.N
		switch r.Status {
		case models.StatusPending:
			st.Pending = r.N
		case models.StatusInProgress:
			st.InProgress = r.N
		case models.StatusCompleted:
			st.Completed = r.N
		case models.StatusTaskMiss:
			st.Missed = r.N
		}
	}
	if st.Total > 0 {
		st.CompletionRate = float64(st.Completed) / float64(st.Total)
	}
	return st, nil
}
