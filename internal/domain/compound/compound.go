package compound

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	ChangeCreate   = "create"
	ChangeUpdate   = "update"
	ChangeRollback = "rollback"
)

// Fields is the versioned content of a compound. Every snapshot stores a full copy.
type Fields struct {
	Name             string         `gorm:"column:name;not null;index" json:"name"`
	Smiles           string         `gorm:"column:smiles;not null;index" json:"smiles"`
	Inchi            string         `gorm:"column:inchi" json:"inchi,omitempty"`
	InchiKey         string         `gorm:"column:inchi_key;index" json:"inchi_key,omitempty"`
	MolecularFormula string         `gorm:"column:molecular_formula" json:"molecular_formula,omitempty"`
	MolecularWeight  *float64       `gorm:"column:molecular_weight" json:"molecular_weight"`
	Properties       datatypes.JSON `gorm:"column:properties" json:"properties,omitempty"`
}

type Compound struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Fields         `gorm:"embedded"`
	ExternalID     string     `gorm:"column:external_id;index" json:"external_id,omitempty"`
	ExternalSource string     `gorm:"column:external_source;index" json:"external_source,omitempty"`
	CreatedBy      *uuid.UUID `gorm:"type:uuid;column:created_by;index" json:"created_by,omitempty"`
	CurrentVersion int        `gorm:"column:current_version;not null" json:"current_version"`
	Deleted        bool       `gorm:"column:deleted;not null;default:false;index" json:"deleted"`
	TombstonedAt   *time.Time `gorm:"column:tombstoned_at" json:"tombstoned_at,omitempty"`
	CreatedAt      time.Time  `gorm:"not null;autoCreateTime;index" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (Compound) TableName() string { return "compound" }

// Version is an immutable snapshot of a compound at one version number.
type Version struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	CompoundID uuid.UUID  `gorm:"type:uuid;column:compound_id;not null;uniqueIndex:idx_compound_version_number" json:"compound_id"`
	Version    int        `gorm:"column:version;not null;uniqueIndex:idx_compound_version_number" json:"version"`
	ChangeType string     `gorm:"column:change_type;not null" json:"change_type"`
	Fields     `gorm:"embedded"`
	ChangedBy  *uuid.UUID `gorm:"type:uuid;column:changed_by" json:"changed_by,omitempty"`
	CreatedAt  time.Time  `gorm:"not null;autoCreateTime" json:"created_at"`
}

func (Version) TableName() string { return "compound_version" }

// Snapshot builds the version row for the compound's current state.
func (c *Compound) Snapshot(changeType string, changedBy *uuid.UUID) *Version {
	return &Version{
		ID:         uuid.New(),
		CompoundID: c.ID,
		Version:    c.CurrentVersion,
		ChangeType: changeType,
		Fields:     c.Fields.Clone(),
		ChangedBy:  changedBy,
	}
}

// Clone deep-copies pointer and JSON members so snapshots never alias live rows.
func (f Fields) Clone() Fields {
	out := f
	if f.MolecularWeight != nil {
		w := *f.MolecularWeight
		out.MolecularWeight = &w
	}
	if f.Properties != nil {
		out.Properties = append(datatypes.JSON(nil), f.Properties...)
	}
	return out
}

// Columns returns the column map used to overwrite a compound row with these fields.
func (f Fields) Columns() map[string]any {
	var props any
	if len(f.Properties) > 0 {
		props = f.Properties
	}
	return map[string]any{
		"name":              f.Name,
		"smiles":            f.Smiles,
		"inchi":             f.Inchi,
		"inchi_key":         f.InchiKey,
		"molecular_formula": f.MolecularFormula,
		"molecular_weight":  f.MolecularWeight,
		"properties":        props,
	}
}

// Filter narrows live-compound listings.
type Filter struct {
	Search         string
	MinWeight      *float64
	MaxWeight      *float64
	ExternalSource string
	ExternalID     string
	Skip           int
	Limit          int
}
