package experiment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"task-tracker-api/internal/metrics"
	"task-tracker-api/internal/models"
	"task-tracker-api/internal/params"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Result is a user's assignment. NewlyAssigned is true only for the call that
// created the row.
type Result struct {
	UserID        string                 `json:"user_id"`
	ExperimentID  string                 `json:"experiment_id"`
	Group         models.ExperimentGroup `json:"group"`
	HashValue     int64                  `json:"hash_value"`
	AssignedAt    time.Time              `json:"assigned_at"`
	NewlyAssigned bool                   `json:"newly_assigned"`
}

func resultFrom(a models.ExperimentAssignment, fresh bool) Result {
	return Result{
		UserID:        a.UserID,
		ExperimentID:  a.ExperimentID,
		Group:         a.Group,
		HashValue:     a.HashValue,
		AssignedAt:    a.AssignedAt,
		NewlyAssigned: fresh,
	}
}

type Assigner struct {
	params params.Reader
	now    func() time.Time
	logger *slog.Logger
}

func NewAssigner(p params.Reader, now func() time.Time, logger *slog.Logger) *Assigner {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Assigner{params: p, now: now, logger: logger}
}

// Lookup returns the persisted assignment, or nil when the user has none.
func (a *Assigner) Lookup(ctx context.Context, db *gorm.DB, userID string) (*models.ExperimentAssignment, error) {
	return a.lookup(ctx, db, userID, false)
}

func lookupQuery(db *gorm.DB, userID string, locking bool) *gorm.DB {
	q := db.Where("user_id = ?", userID)
	if locking && db.Dialector.Name() == "mysql" {
		// A locking read sees rows committed after the REPEATABLE READ snapshot.
		q = q.Clauses(clause.Locking{Strength: "SHARE"})
	}
	return q
}

func (a *Assigner) lookup(ctx context.Context, db *gorm.DB, userID string, locking bool) (*models.ExperimentAssignment, error) {
	var row models.ExperimentAssignment
	err := lookupQuery(db.WithContext(ctx), userID, locking).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("experiment: lookup %s: %w", userID, err)
	}
	return &row, nil
}

// GetOrAssign returns the user's persisted assignment, creating it inside tx
// when absent. A persisted row always wins over the current ratio.
func (a *Assigner) GetOrAssign(ctx context.Context, tx *gorm.DB, userID string) (Result, error) {
	existing, err := a.Lookup(ctx, tx, userID)
	if err != nil {
		return Result{}, err
	}
	if existing != nil {
		return resultFrom(*existing, false), nil
	}

	ratio := a.params.Int(ctx, params.ExperimentRatio, 50)
	group, h := Bucket(userID, ratio)
	row := models.ExperimentAssignment{
		UserID:       userID,
		ExperimentID: a.params.String(ctx, params.ExperimentID, "PRO-B-24-ab-test"),
		Group:        group,
		HashValue:    int64(h),
		AssignedAt:   a.now(),
	}
	res := tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&row)
	if res.Error != nil {
		return Result{}, fmt.Errorf("experiment: assign %s: %w", userID, res.Error)
	}
	if res.RowsAffected == 0 {
		// another request assigned first
		existing, err = a.lookup(ctx, tx, userID, true)
		if err != nil {
			return Result{}, err
		}
		if existing == nil {
			return Result{}, fmt.Errorf("experiment: assignment for %s vanished", userID)
		}
		return resultFrom(*existing, false), nil
	}

	metrics.Assignments.WithLabelValues(string(group)).Inc()
	a.logger.Info("experiment assigned", "user_id", userID, "group", group, "ratio", ratio)
	return resultFrom(row, true), nil
}

// Branch is the response variant served to a group.
type Branch struct {
	Group              models.ExperimentGroup `json:"group"`
	Variant            string                 `json:"variant"`
	ShowStrategyPrompt bool                   `json:"show_strategy_prompt"`
	StrategyOptions    []string               `json:"strategy_options,omitempty"`
	ExitWindowSeconds  int                    `json:"exit_window_seconds,omitempty"`
	PopupDelaySeconds  int                    `json:"popup_delay_seconds,omitempty"`
}

// BranchFor builds the variant for group. Control, or any group while the
// experiment is switched off, gets the default experience.
func (a *Assigner) BranchFor(ctx context.Context, group models.ExperimentGroup) Branch {
	if group != models.GroupTreatment || !a.params.Bool(ctx, params.ExperimentActive, true) {
		return Branch{Group: group, Variant: "control_default"}
	}
	return Branch{
		Group:              group,
		Variant:            "treatment_v1",
		ShowStrategyPrompt: true,
		StrategyOptions:    a.params.Strings(ctx, params.StrategyOptions, []string{"archive", "modify", "keep"}),
		ExitWindowSeconds:  a.params.Int(ctx, params.ExitWindow, 60),
		PopupDelaySeconds:  a.params.Int(ctx, params.StrategyPopupDelay, 0),
	}
}
