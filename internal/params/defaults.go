package params

import "task-tracker-api/internal/models"

const (
	ExperimentID       = "EXPERIMENT_ID"
	ExperimentRatio    = "EXPERIMENT_RATIO"
	ExperimentActive   = "EXP_PROB_B1_ACTIVE"
	TriggerThreshold   = "TRIGGER_MISS_THRESHOLD"
	StrategyOptions    = "AVAILABLE_STRATEGY_OPTIONS"
	ExitWindow         = "POST_MISS_EXIT_WINDOW"
	StrategyPopupDelay = "STRATEGY_POPUP_DELAY"
	MaxArchiveLimit    = "MAX_ARCHIVE_LIMIT"
	MissGracePeriod    = "MISS_DETECTION_GRACE_PERIOD"
	GuideThreshold     = "GUIDE_EXPOSURE_THRESHOLD"
	ActiveTaskCap      = "ACTIVE_TASK_COUNT_CAP"
	MaxActiveTasks     = "MAX_ACTIVE_TASK_COUNT"
	HardLimitEnabled   = "TASK_HARD_LIMIT_ENABLED"
	DisplayScope       = "TASK_DISPLAY_SCOPE"
	HighRiskExitMs     = "HIGH_RISK_EXIT_THRESHOLD_MS"
	InactionTrigger    = "INACTION_TRIGGER_SECONDS"
)

// Default is a compiled-in parameter used for seeding and as the read fallback.
type Default struct {
	Key         string
	Value       string
	Type        models.ValueType
	Category    string
	Description string
}

// Defaults is the full compiled-in table.
var Defaults = []Default{
	{ExperimentID, "PRO-B-24-ab-test", models.ValueStr, "experiment", "Active experiment identifier"},
	{ExperimentRatio, "50", models.ValueInt, "experiment", "Percent of users bucketed into treatment (0-100)"},
	{ExperimentActive, "true", models.ValueBool, "experiment", "Whether the miss-strategy experiment is live"},
	{TriggerThreshold, "1", models.ValueInt, "trigger", "Missed tasks needed before strategies are offered"},
	{StrategyOptions, `["archive","modify","keep"]`, models.ValueJSON, "trigger", "Strategies offered after a miss"},
	{ExitWindow, "60", models.ValueInt, "trigger", "Seconds the strategy prompt stays open"},
	{StrategyPopupDelay, "0", models.ValueInt, "trigger", "Seconds before the strategy prompt appears"},
	{MaxArchiveLimit, "20", models.ValueInt, "archive", "Maximum archived tasks per user"},
	{MissGracePeriod, "0", models.ValueInt, "sweep", "Seconds past the due date before a task counts as missed"},
	{GuideThreshold, "6", models.ValueInt, "limit", "Active tasks today at which the guide is shown"},
	{ActiveTaskCap, "5", models.ValueInt, "limit", "Recommended active task count shown in the guide"},
	{MaxActiveTasks, "5", models.ValueInt, "limit", "Hard cap on active tasks when the hard limit is enabled"},
	{HardLimitEnabled, "false", models.ValueBool, "limit", "Block creation above MAX_ACTIVE_TASK_COUNT"},
	{DisplayScope, "today", models.ValueStr, "display", "Home list scope: today or all"},
	{HighRiskExitMs, "30000", models.ValueInt, "session", "Inaction before exit that marks a session high risk"},
	{InactionTrigger, "30", models.ValueInt, "session", "Seconds of in-session inaction before the focus intervention fires"},
}

func defaultValues(defs []Default) map[string]Value {
	out := make(map[string]Value, len(defs))
	for _, d := range defs {
		out[d.Key] = MustParse(d.Type, d.Value)
	}
	return out
}
