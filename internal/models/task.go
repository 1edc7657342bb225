package models

import (
	"time"
)

// TaskStatus represents the status of a task
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
	StatusTaskMiss   TaskStatus = "task_miss"
)

// StatusArchived only ever appears in history rows; archived tasks leave the tasks table.
const StatusArchived = "archived"

// Valid reports whether s is one of the storable task statuses.
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusTaskMiss:
		return true
	}
	return false
}

// TerminalStatuses are never touched by the expiry sweep.
var TerminalStatuses = []TaskStatus{StatusCompleted, StatusTaskMiss}

// Task represents an active (non-archived) task owned by a user
type Task struct {
	ID          string     `json:"id" gorm:"primaryKey;size:36"`
	UserID      string     `json:"user_id" gorm:"column:user_id;size:64;not null;index:idx_tasks_user_status,priority:1"`
	Title       string     `json:"title" gorm:"size:200;not null"`
	Description string     `json:"description"`
	Status      TaskStatus `json:"status" gorm:"size:20;not null;default:'pending';index:idx_tasks_user_status,priority:2"`
	DueDate     *time.Time `json:"due_date" gorm:"column:due_date;index"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	// Archived is always false for rows in this table; see TaskArchive.
	Archived bool `json:"archived" gorm:"-"`
}

// TableName specifies the table name for Task Model
func (Task) TableName() string {
	return "tasks"
}

// TaskArchive is the append-only copy of a task taken when it is archived.
type TaskArchive struct {
	ID             uint       `json:"id" gorm:"primaryKey;autoIncrement"`
	OriginalTaskID string     `json:"original_task_id" gorm:"size:36;uniqueIndex;not null"`
	UserID         string     `json:"user_id" gorm:"size:64;not null;index"`
	Title          string     `json:"title" gorm:"size:200;not null"`
	Description    string     `json:"description"`
	OriginalStatus TaskStatus `json:"original_status" gorm:"size:20;not null"`
	DueDate        *time.Time `json:"due_date"`
	TaskCreatedAt  time.Time  `json:"task_created_at"`
	ArchivedAt     time.Time  `json:"archived_at" gorm:"not null;index"`
}

func (TaskArchive) TableName() string {
	return "task_archives"
}

// TaskStatusHistory records one lifecycle transition. TaskID is kept after the
// task row is gone, so it is not a foreign key.
type TaskStatusHistory struct {
	ID              uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	TaskID          string    `json:"task_id" gorm:"size:36;not null;index"`
	UserID          string    `json:"user_id" gorm:"size:64;not null;index"`
	PreviousStatus  string    `json:"previous_status" gorm:"size:20;not null"`
	NewStatus       string    `json:"new_status" gorm:"size:20;not null"`
	StrategyApplied *string   `json:"strategy_applied"`
	ChangedAt       time.Time `json:"changed_at" gorm:"not null"`
}

func (TaskStatusHistory) TableName() string {
	return "task_status_history"
}
