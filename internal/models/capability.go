// Package models resolves and invokes prediction capabilities by model type
// and name.
package models

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Snapshot is the compound content handed to a model. It is read once per
// attempt and may belong to a tombstoned compound.
type Snapshot struct {
	CompoundID      uuid.UUID
	Name            string
	Smiles          string
	MolecularWeight *float64
	Properties      datatypes.JSON
}

type Result struct {
	Value      float64
	Confidence float64
	ModelName  string
	Details    map[string]any
}

type Capability interface {
	ModelType() string
	Name() string
	Predict(ctx context.Context, in Snapshot) (Result, error)
}
