package experiment

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	StatusCreated   = "created"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

type Experiment struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Name          string         `gorm:"column:name;not null;index" json:"name"`
	Description   string         `gorm:"column:description" json:"description,omitempty"`
	ModelType     string         `gorm:"column:model_type;not null;index" json:"model_type"`
	ModelName     string         `gorm:"column:model_name" json:"model_name,omitempty"`
	Status        string         `gorm:"column:status;not null;index" json:"status"`
	Parameters    datatypes.JSON `gorm:"column:parameters" json:"parameters,omitempty"`
	Metrics       datatypes.JSON `gorm:"column:metrics" json:"metrics,omitempty"`
	TrackingRunID *string        `gorm:"column:tracking_run_id;uniqueIndex" json:"tracking_run_id"`
	UserID        *uuid.UUID     `gorm:"type:uuid;column:user_id;index" json:"user_id,omitempty"`
	CreatedAt     time.Time      `gorm:"not null;autoCreateTime;index" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`
	CompletedAt   *time.Time     `gorm:"column:completed_at" json:"completed_at,omitempty"`
}

func (Experiment) TableName() string { return "experiment" }

var transitions = map[string][]string{
	StatusCreated: {StatusRunning, StatusFailed},
	StatusRunning: {StatusCompleted, StatusFailed},
}

// CanTransition reports whether the state machine allows from -> to.
// Staying in the same state is always allowed.
func CanTransition(from, to string) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func ValidStatus(s string) bool {
	switch s {
	case StatusCreated, StatusRunning, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Loggable reports whether a run may be synchronized to the tracking service.
func Loggable(status string) bool {
	return status == StatusRunning || status == StatusCompleted
}

type Filter struct {
	UserID    *uuid.UUID
	ModelType string
	Status    string
	Skip      int
	Limit     int
}
