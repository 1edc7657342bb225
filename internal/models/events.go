package models

import (
	"time"

	"gorm.io/datatypes"
)

// BehaviorEventType names a step in a task's post-miss behaviour chain.
type BehaviorEventType string

const (
	EventTaskMiss  BehaviorEventType = "task_miss"
	EventArchive   BehaviorEventType = "archive"
	EventModify    BehaviorEventType = "modify"
	EventKeep      BehaviorEventType = "keep"
	EventCompleted BehaviorEventType = "completed"
)

func (e BehaviorEventType) Valid() bool {
	switch e {
	case EventTaskMiss, EventArchive, EventModify, EventKeep, EventCompleted:
		return true
	}
	return false
}

// BehaviorLog is an append-only behaviour event. LatencyMs is measured from the
// previous event of the same task.
type BehaviorLog struct {
	ID              uint              `json:"id" gorm:"primaryKey;autoIncrement"`
	TaskID          string            `json:"task_id" gorm:"size:36;not null;index:idx_behavior_task_at,priority:1"`
	UserID          string            `json:"user_id" gorm:"size:64;not null;index"`
	EventType       BehaviorEventType `json:"event_type" gorm:"size:20;not null"`
	ExperimentID    string            `json:"experiment_id" gorm:"size:100"`
	ExperimentGroup ExperimentGroup   `json:"experiment_group" gorm:"size:20"`
	EventAt         time.Time         `json:"event_at" gorm:"not null;index:idx_behavior_task_at,priority:2"`
	PreviousEventAt *time.Time        `json:"previous_event_at"`
	LatencyMs       *int64            `json:"latency_ms"`
	Metadata        datatypes.JSON    `json:"metadata"`
}

func (BehaviorLog) TableName() string {
	return "behavior_logs"
}

// GoalEventType names a soft-limit (guide) event.
type GoalEventType string

const (
	GoalGuideExposed GoalEventType = "guide_exposed"
	GoalTaskCreate   GoalEventType = "task_create"
	GoalTaskModify   GoalEventType = "task_modify"
	GoalTaskComplete GoalEventType = "task_complete"
	GoalAppClose     GoalEventType = "app_close"
	GoalLimitBlocked GoalEventType = "limit_blocked"
)

type GoalEventLog struct {
	ID              uint            `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID          string          `json:"user_id" gorm:"size:64;not null;index"`
	TaskID          *string         `json:"task_id" gorm:"size:36"`
	EventType       GoalEventType   `json:"event_type" gorm:"size:30;not null;index"`
	ExperimentGroup ExperimentGroup `json:"experiment_group" gorm:"size:20"`
	Payload         datatypes.JSON  `json:"payload"`
	OccurredAt      time.Time       `json:"occurred_at" gorm:"not null"`
}

func (GoalEventLog) TableName() string {
	return "goal_event_logs"
}

// SessionLog is one app session. Derived latencies are filled in once.
type SessionLog struct {
	ID                string          `json:"id" gorm:"primaryKey;size:36"`
	UserID            string          `json:"user_id" gorm:"size:64;not null;index"`
	ExperimentGroup   ExperimentGroup `json:"experiment_group" gorm:"size:20"`
	AppOpenAt         time.Time       `json:"app_open_at" gorm:"not null"`
	FirstActionAt     *time.Time      `json:"first_action_at"`
	ReentryLatencyMs  *int64          `json:"reentry_latency_ms"`
	LastActionAt      *time.Time      `json:"last_action_at"`
	AppCloseAt        *time.Time      `json:"app_close_at"`
	PreExitInactionMs *int64          `json:"pre_exit_inaction_ms"`
	IsHighRiskExit    bool            `json:"is_high_risk_exit"`
}

func (SessionLog) TableName() string {
	return "session_logs"
}

// InterventionLog records the focus intervention fired for a treatment
// session. There is at most one row per session.
type InterventionLog struct {
	ID                        string          `json:"log_id" gorm:"primaryKey;size:36"`
	UserID                    string          `json:"user_id" gorm:"size:64;not null;index"`
	SessionID                 string          `json:"session_id" gorm:"size:36;not null;uniqueIndex"`
	ExperimentGroup           ExperimentGroup `json:"experiment_group" gorm:"size:20"`
	TriggeredAt               time.Time       `json:"triggered_at" gorm:"not null"`
	FirstActionAfterTriggerAt *time.Time      `json:"first_action_after_trigger_at"`
}

func (InterventionLog) TableName() string {
	return "intervention_logs"
}
