package aggregates

import (
	"context"

	"github.com/google/uuid"
	"github.com/yungbote/compoundlab-backend/internal/domain/compound"
	"gorm.io/datatypes"
)

type CreateCompoundInput struct {
	Fields         compound.Fields
	ExternalID     string
	ExternalSource string
	CreatedBy      *uuid.UUID
}

// CompoundPatch carries optional field updates. A nil member leaves the field
// unchanged; ClearWeight and ClearProperties explicitly null those fields.
type CompoundPatch struct {
	Name             *string
	Smiles           *string
	Inchi            *string
	InchiKey         *string
	MolecularFormula *string
	MolecularWeight  *float64
	Properties       datatypes.JSON
	ClearWeight      bool
	ClearProperties  bool
}

func (p CompoundPatch) Empty() bool {
	return p.Name == nil && p.Smiles == nil && p.Inchi == nil && p.InchiKey == nil &&
		p.MolecularFormula == nil && p.MolecularWeight == nil && p.Properties == nil &&
		!p.ClearWeight && !p.ClearProperties
}

// Apply returns a copy of f with the patch applied.
func (p CompoundPatch) Apply(f compound.Fields) compound.Fields {
	out := f.Clone()
	if p.Name != nil {
		out.Name = *p.Name
	}
	if p.Smiles != nil {
		out.Smiles = *p.Smiles
	}
	if p.Inchi != nil {
		out.Inchi = *p.Inchi
	}
	if p.InchiKey != nil {
		out.InchiKey = *p.InchiKey
	}
	if p.MolecularFormula != nil {
		out.MolecularFormula = *p.MolecularFormula
	}
	if p.MolecularWeight != nil {
		w := *p.MolecularWeight
		out.MolecularWeight = &w
	}
	if p.ClearWeight {
		out.MolecularWeight = nil
	}
	if p.Properties != nil {
		out.Properties = append(datatypes.JSON(nil), p.Properties...)
	}
	if p.ClearProperties {
		out.Properties = nil
	}
	return out
}

// CompoundStore is the versioned entity store. Every write appends a snapshot
// and advances current_version under a compare-and-swap on the expected version.
type CompoundStore interface {
	Aggregate
	Create(ctx context.Context, in CreateCompoundInput) (*compound.Compound, error)
	Update(ctx context.Context, id uuid.UUID, expectedVersion int, patch CompoundPatch, actor *uuid.UUID) (*compound.Compound, error)
	Rollback(ctx context.Context, id uuid.UUID, targetVersion int, actor *uuid.UUID) (*compound.Compound, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (*compound.Compound, error)
	GetAny(ctx context.Context, id uuid.UUID) (*compound.Compound, error)
	ListVersions(ctx context.Context, id uuid.UUID, skip, limit int) ([]*compound.Version, error)
}
