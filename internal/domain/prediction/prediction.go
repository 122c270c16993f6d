package prediction

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	StatusPending = "pending"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

const (
	ModelSolubility          = "solubility"
	ModelToxicity            = "toxicity"
	ModelInteractionAffinity = "interaction-affinity"
)

// Failure reasons stored on failed predictions.
const (
	ReasonInvalidInput = "invalid_input"
	ReasonUnavailable  = "unavailable"
	ReasonTimeout      = "timeout"
	ReasonCancelled    = "cancelled"
	ReasonInternal     = "internal"
)

type Prediction struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CompoundID   uuid.UUID      `gorm:"type:uuid;column:compound_id;not null;index" json:"compound_id"`
	ModelType    string         `gorm:"column:model_type;not null;index" json:"model_type"`
	ModelName    string         `gorm:"column:model_name" json:"model_name,omitempty"`
	Value        *float64       `gorm:"column:value" json:"value"`
	Confidence   *float64       `gorm:"column:confidence" json:"confidence"`
	Details      datatypes.JSON `gorm:"column:details" json:"details,omitempty"`
	Status       string         `gorm:"column:status;not null;index" json:"status"`
	Error        string         `gorm:"column:error" json:"error,omitempty"`
	Attempts     int            `gorm:"column:attempts;not null;default:0" json:"attempts"`
	BatchID      *uuid.UUID     `gorm:"type:uuid;column:batch_id;index" json:"batch_id,omitempty"`
	BatchSeq     int            `gorm:"column:batch_seq;not null;default:0" json:"-"`
	ExperimentID *uuid.UUID     `gorm:"type:uuid;column:experiment_id;index" json:"experiment_id,omitempty"`
	CreatedBy    *uuid.UUID     `gorm:"type:uuid;column:created_by;index" json:"created_by,omitempty"`
	LockedAt     *time.Time     `gorm:"column:locked_at;index" json:"-"`
	ClaimToken   *uuid.UUID     `gorm:"type:uuid;column:claim_token" json:"-"`
	CompletedAt  *time.Time     `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CreatedAt    time.Time      `gorm:"not null;autoCreateTime;index" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (Prediction) TableName() string { return "prediction" }

func (p *Prediction) Terminal() bool {
	return p.Status == StatusDone || p.Status == StatusFailed
}

type Batch struct {
	ID          uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	ModelType   string        `gorm:"column:model_type;not null" json:"model_type"`
	ModelName   string        `gorm:"column:model_name" json:"model_name,omitempty"`
	CreatedBy   *uuid.UUID    `gorm:"type:uuid;column:created_by;index" json:"created_by,omitempty"`
	CancelledAt *time.Time    `gorm:"column:cancelled_at" json:"cancelled_at,omitempty"`
	CreatedAt   time.Time     `gorm:"not null;autoCreateTime" json:"created_at"`
	Status      string        `gorm:"-" json:"status"`
	Predictions []*Prediction `gorm:"-" json:"predictions"`
}

func (Batch) TableName() string { return "prediction_batch" }

// AggregateStatus derives a batch status from its members: pending wins over
// failed, failed wins over done.
func AggregateStatus(members []*Prediction) string {
	failed := false
	for _, m := range members {
		switch m.Status {
		case StatusPending:
			return StatusPending
		case StatusFailed:
			failed = true
		}
	}
	if failed {
		return StatusFailed
	}
	return StatusDone
}

// Counts tallies member statuses.
type Counts struct {
	Total   int `json:"total"`
	Pending int `json:"pending"`
	Done    int `json:"done"`
	Failed  int `json:"failed"`
}

func CountStatuses(members []*Prediction) Counts {
	c := Counts{Total: len(members)}
	for _, m := range members {
		switch m.Status {
		case StatusPending:
			c.Pending++
		case StatusDone:
			c.Done++
		case StatusFailed:
			c.Failed++
		}
	}
	return c
}

// NormalizeModelType lowercases the type and maps the short "dti" alias.
func NormalizeModelType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	switch t {
	case "dti", "interaction_affinity", "affinity":
		return ModelInteractionAffinity
	}
	return t
}

type Filter struct {
	CompoundID   *uuid.UUID
	ExperimentID *uuid.UUID
	BatchID      *uuid.UUID
	// CreatedBy limits results to one submitter plus rows submitted outside a request.
	CreatedBy    *uuid.UUID
	ModelType    string
	Status       string
	Skip         int
	Limit        int
}
