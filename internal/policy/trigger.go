package policy

import (
	"context"
	"log/slog"

	"task-tracker-api/internal/experiment"
	"task-tracker-api/internal/models"
	"task-tracker-api/internal/params"

	"gorm.io/gorm"
)

// MissCounter is the subset of the miss-count aggregator the trigger needs.
type MissCounter interface {
	Get(ctx context.Context, userID string) (int64, bool, error)
}

type TriggerResult struct {
	UserID              string                 `json:"user_id"`
	MissCount           int64                  `json:"miss_count"`
	Threshold           int                    `json:"threshold"`
	Triggered           bool                   `json:"triggered"`
	CacheHit            bool                   `json:"cache_hit"`
	AvailableStrategies []string               `json:"available_strategies,omitempty"`
	ExitWindowSeconds   int                    `json:"exit_window_seconds"`
	PopupDelaySeconds   int                    `json:"popup_delay_seconds"`
	ExperimentGroup     models.ExperimentGroup `json:"experiment_group,omitempty"`
	Branch              *experiment.Branch     `json:"branch,omitempty"`
}

// TriggerService answers "should the strategy prompt be shown now".
// Polling it writes no events.
type TriggerService struct {
	db       *gorm.DB
	counter  MissCounter
	assigner *experiment.Assigner
	params   params.Reader
	logger   *slog.Logger
}

func NewTriggerService(db *gorm.DB, counter MissCounter, assigner *experiment.Assigner, p params.Reader, logger *slog.Logger) *TriggerService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TriggerService{db: db, counter: counter, assigner: assigner, params: p, logger: logger}
}

func (s *TriggerService) Check(ctx context.Context, userID string) (TriggerResult, error) {
	count, hit, err := s.counter.Get(ctx, userID)
	if err != nil {
		return TriggerResult{}, err
	}
	threshold := s.params.Int(ctx, params.TriggerThreshold, 1)
	res := TriggerResult{
		UserID:            userID,
		MissCount:         count,
		Threshold:         threshold,
		Triggered:         IsOverload(count, int64(threshold)),
		CacheHit:          hit,
		ExitWindowSeconds: s.params.Int(ctx, params.ExitWindow, 60),
		PopupDelaySeconds: s.params.Int(ctx, params.StrategyPopupDelay, 0),
	}
	if !res.Triggered {
		return res, nil
	}

	res.AvailableStrategies = s.params.Strings(ctx, params.StrategyOptions, []string{"archive", "modify", "keep"})
	if s.params.Bool(ctx, params.ExperimentActive, true) {
		a, err := s.assigner.GetOrAssign(ctx, s.db, userID)
		if err != nil {
			return TriggerResult{}, err
		}
		branch := s.assigner.BranchFor(ctx, a.Group)
		res.ExperimentGroup = a.Group
		res.Branch = &branch
	}
	s.logger.Debug("strategy trigger", "user_id", userID, "miss_count", count, "threshold", threshold)
	return res, nil
}
