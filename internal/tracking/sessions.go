package tracking

import (
	"context"
	"errors"
	"fmt"

	"task-tracker-api/internal/models"
	"task-tracker-api/internal/params"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionClosed   = errors.New("session already closed")
)

// Sessions tracks app open / action / close timings.
type Sessions struct {
	rec    *Recorder
	params params.Reader
}

func NewSessions(rec *Recorder, p params.Reader) *Sessions {
	return &Sessions{rec: rec, params: p}
}

func (s *Sessions) Open(ctx context.Context, userID string) (models.SessionLog, error) {
	ctx = params.Pin(ctx, s.params)
	var row models.SessionLog
	err := s.rec.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		a, err := s.rec.assigner.GetOrAssign(ctx, tx, userID)
		if err != nil {
			return err
		}
		row = models.SessionLog{
			ID:              uuid.NewString(),
			UserID:          userID,
			ExperimentGroup: a.Group,
			AppOpenAt:       s.rec.now(),
		}
		return tx.Create(&row).Error
	})
	if err != nil {
		return models.SessionLog{}, fmt.Errorf("tracking: open session: %w", err)
	}
	return row, nil
}

func (s *Sessions) load(ctx context.Context, tx *gorm.DB, userID, sessionID string) (models.SessionLog, error) {
	var row models.SessionLog
	err := tx.WithContext(ctx).Where("id = ? AND user_id = ?", sessionID, userID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return row, ErrSessionNotFound
	}
	if err != nil {
		return row, fmt.Errorf("tracking: load session: %w", err)
	}
	return row, nil
}

// Action stamps a user action. The first one fixes the re-entry latency, and
// the first one after an intervention is stamped on its log.
func (s *Sessions) Action(ctx context.Context, userID, sessionID string) (models.SessionLog, error) {
	var row models.SessionLog
	err := s.rec.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		row, err = s.load(ctx, tx, userID, sessionID)
		if err != nil {
			return err
		}
		if row.AppCloseAt != nil {
			return ErrSessionClosed
		}
		now := s.rec.now()
		if row.FirstActionAt == nil {
			latency := now.Sub(row.AppOpenAt).Milliseconds()
			row.FirstActionAt = &now
			row.ReentryLatencyMs = &latency
		}
		row.LastActionAt = &now
		if err := tx.Save(&row).Error; err != nil {
			return err
		}
		return tx.Model(&models.InterventionLog{}).
			Where("session_id = ? AND first_action_after_trigger_at IS NULL", row.ID).
			Update("first_action_after_trigger_at", now).Error
	})
	return row, err
}

// List returns the user's sessions, newest first.
func (s *Sessions) List(ctx context.Context, userID string, limit int) ([]models.SessionLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []models.SessionLog
	err := s.rec.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("app_open_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("tracking: list sessions: %w", err)
	}
	return out, nil
}

// Close ends the session and classifies the exit. Closing twice is a no-op.
func (s *Sessions) Close(ctx context.Context, userID, sessionID string) (models.SessionLog, error) {
	ctx = params.Pin(ctx, s.params)
	var row models.SessionLog
	err := s.rec.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		row, err = s.load(ctx, tx, userID, sessionID)
		if err != nil || row.AppCloseAt != nil {
			return err
		}
		now := s.rec.now()
		since := row.AppOpenAt
		if row.LastActionAt != nil {
			since = *row.LastActionAt
		}
		inaction := now.Sub(since).Milliseconds()
		row.AppCloseAt = &now
		row.PreExitInactionMs = &inaction
		row.IsHighRiskExit = inaction >= int64(s.params.Int(ctx, params.HighRiskExitMs, 30000))
		if err := tx.Save(&row).Error; err != nil {
			return err
		}
		_, err = s.rec.RecordGoal(ctx, tx, userID, nil, models.GoalAppClose, row.ExperimentGroup, map[string]any{
			"session_id":           row.ID,
			"pre_exit_inaction_ms": inaction,
			"is_high_risk_exit":    row.IsHighRiskExit,
		})
		return err
	})
	return row, err
}
