package models

import "time"

// ExperimentGroup is the arm a user is bucketed into.
type ExperimentGroup string

const (
	GroupTreatment ExperimentGroup = "treatment"
	GroupControl   ExperimentGroup = "control"
)

// ExperimentAssignment is written once per user and never updated.
type ExperimentAssignment struct {
	ID           uint            `json:"-" gorm:"primaryKey;autoIncrement"`
	UserID       string          `json:"user_id" gorm:"size:64;uniqueIndex;not null"`
	ExperimentID string          `json:"experiment_id" gorm:"size:100;not null"`
	Group        ExperimentGroup `json:"group" gorm:"column:experiment_group;size:20;not null"`
	HashValue    int64           `json:"hash_value" gorm:"not null"`
	AssignedAt   time.Time       `json:"assigned_at" gorm:"not null"`
}

func (ExperimentAssignment) TableName() string {
	return "experiment_assignments"
}
