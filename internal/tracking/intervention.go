package tracking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"task-tracker-api/internal/metrics"
	"task-tracker-api/internal/models"
	"task-tracker-api/internal/params"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InterventionState tells the client whether to pull focus to task input.
type InterventionState struct {
	SessionID       string                 `json:"session_id"`
	ExperimentGroup models.ExperimentGroup `json:"experiment_group"`
	InactionMs      int64                  `json:"inaction_ms"`
	// Triggered is true only on the call that created the log.
	Triggered  bool   `json:"triggered"`
	FocusInput bool   `json:"focus_input"`
	LogID      string `json:"log_id,omitempty"`
}

// lastActivity is the latest of the session's action stamps, or the open time.
func lastActivity(row models.SessionLog) time.Time {
	switch {
	case row.LastActionAt != nil:
		return *row.LastActionAt
	case row.FirstActionAt != nil:
		return *row.FirstActionAt
	}
	return row.AppOpenAt
}

// CheckIntervention fires the focus intervention for a treatment session that
// has been idle for INACTION_TRIGGER_SECONDS. A session gets at most one log;
// later checks report it with FocusInput set and Triggered false.
func (s *Sessions) CheckIntervention(ctx context.Context, userID, sessionID string) (InterventionState, error) {
	ctx = params.Pin(ctx, s.params)
	var state InterventionState
	err := s.rec.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := s.load(ctx, tx, userID, sessionID)
		if err != nil {
			return err
		}
		now := s.rec.now()
		state = InterventionState{
			SessionID:       row.ID,
			ExperimentGroup: row.ExperimentGroup,
			InactionMs:      now.Sub(lastActivity(row)).Milliseconds(),
		}
		if row.AppCloseAt != nil {
			return nil
		}
		threshold := time.Duration(s.params.Int(ctx, params.InactionTrigger, 30)) * time.Second
		if state.InactionMs < threshold.Milliseconds() {
			return nil
		}

		existing, err := interventionFor(ctx, tx, row.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			state.FocusInput = true
			state.LogID = existing.ID
			return nil
		}
		if row.ExperimentGroup != models.GroupTreatment {
			return nil
		}

		log := models.InterventionLog{
			ID:              uuid.NewString(),
			UserID:          userID,
			SessionID:       row.ID,
			ExperimentGroup: row.ExperimentGroup,
			TriggeredAt:     now,
		}
		res := tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "session_id"}}, DoNothing: true}).Create(&log)
		if res.Error != nil {
			return fmt.Errorf("tracking: write intervention: %w", res.Error)
		}
		state.FocusInput = true
		if res.RowsAffected == 0 {
			if existing, err = interventionFor(ctx, tx, row.ID); err != nil {
				return err
			}
			if existing != nil {
				state.LogID = existing.ID
			}
			return nil
		}
		state.Triggered = true
		state.LogID = log.ID
		metrics.Interventions.Inc()
		s.rec.logger.Info("focus intervention triggered", "user_id", userID, "session_id", row.ID, "inaction_ms", state.InactionMs)
		return nil
	})
	return state, err
}

func interventionFor(ctx context.Context, tx *gorm.DB, sessionID string) (*models.InterventionLog, error) {
	var log models.InterventionLog
	err := tx.WithContext(ctx).Where("session_id = ?", sessionID).First(&log).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("tracking: load intervention: %w", err)
	}
	return &log, nil
}

// Interventions returns the user's intervention logs, newest first.
func (s *Sessions) Interventions(ctx context.Context, userID string) ([]models.InterventionLog, error) {
	var out []models.InterventionLog
	err := s.rec.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("triggered_at DESC").
		Find(&out).Error
	return out, err
}
