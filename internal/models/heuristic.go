package models

import (
	"context"
	"math"

	"github.com/yungbote/compoundlab-backend/internal/chem"
	"github.com/yungbote/compoundlab-backend/internal/domain/prediction"
)

const HeuristicName = "heuristic"

type scoreFunc func(d chem.Descriptors) (value float64, confidence float64, extra map[string]any)

// heuristic scores a compound from estimated descriptors.
type heuristic struct {
	modelType string
	name      string
	used      []string
	score     scoreFunc
}

func (h *heuristic) ModelType() string { return h.modelType }
func (h *heuristic) Name() string      { return h.name }

func (h *heuristic) Predict(ctx context.Context, in Snapshot) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	d, err := chem.Describe(in.Smiles)
	if err != nil {
		return Result{}, InvalidInput("%v", err)
	}
	value, confidence, extra := h.score(d)
	details := map[string]any{
		"model_type":      h.modelType,
		"model_name":      h.name,
		"properties_used": h.used,
	}
	for k, v := range extra {
		details[k] = v
	}
	return Result{
		Value:      round4(value),
		Confidence: confidence,
		ModelName:  h.name,
		Details:    details,
	}, nil
}

func NewSolubilityHeuristic() Capability {
	return &heuristic{
		modelType: prediction.ModelSolubility,
		name:      HeuristicName,
		used:      []string{"logp", "molecular_weight"},
		score: func(d chem.Descriptors) (float64, float64, map[string]any) {
			logp := d.LogP
			mw := d.MolecularWeight
			v := (1 / (1 + math.Exp((logp-2)/2))) * (1 / (1 + mw/500)) * 100
			return v, 0.75, map[string]any{"units": "mg/mL"}
		},
	}
}

func NewToxicityHeuristic() Capability {
	return &heuristic{
		modelType: prediction.ModelToxicity,
		name:      HeuristicName,
		used:      []string{"molecular_weight", "num_rings"},
		score: func(d chem.Descriptors) (float64, float64, map[string]any) {
			v := math.Min(1, d.MolecularWeight/1000*0.3+float64(d.Rings)/10*0.2)
			risk := "low"
			if v > 0.5 {
				risk = "high"
			}
			return v, 0.70, map[string]any{"is_toxic": v > 0.5, "risk_level": risk}
		},
	}
}

func NewAffinityHeuristic() Capability {
	return &heuristic{
		modelType: prediction.ModelInteractionAffinity,
		name:      HeuristicName,
		used:      []string{"logp", "molecular_weight"},
		score: func(d chem.Descriptors) (float64, float64, map[string]any) {
			v := (1 / (1 + math.Exp(-(d.LogP - 1)))) * (1 / (1 + math.Abs(d.MolecularWeight-300)/100))
			return v, 0.65, nil
		},
	}
}

// Heuristics returns the built-in capability for every model type.
func Heuristics() []Capability {
	return []Capability{NewSolubilityHeuristic(), NewToxicityHeuristic(), NewAffinityHeuristic()}
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
