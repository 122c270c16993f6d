// Package reports renders compound and prediction exports.
package reports

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/compoundlab-backend/internal/domain"
)

var CompoundHeader = []string{
	"ID", "Name", "SMILES", "Molecular Formula", "Molecular Weight",
	"External ID", "External Source", "Created At",
}

var PredictionHeader = []string{
	"ID", "Compound ID", "Compound Name", "Model Type", "Model Name",
	"Prediction Value", "Confidence", "Status", "Created At",
}

func WriteCompoundsCSV(w io.Writer, compounds []*domain.Compound) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CompoundHeader); err != nil {
		return err
	}
	for _, c := range compounds {
		if err := cw.Write([]string{
			c.ID.String(),
			c.Name,
			c.Smiles,
			c.MolecularFormula,
			formatFloat(c.MolecularWeight),
			c.ExternalID,
			c.ExternalSource,
			formatTime(c.CreatedAt),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WritePredictionsCSV writes one row per prediction. names maps compound ids
// to display names; unknown ids get an empty name.
func WritePredictionsCSV(w io.Writer, preds []*domain.Prediction, names map[uuid.UUID]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(PredictionHeader); err != nil {
		return err
	}
	for _, p := range preds {
		if err := cw.Write([]string{
			p.ID.String(),
			p.CompoundID.String(),
			names[p.CompoundID],
			p.ModelType,
			p.ModelName,
			formatFloat(p.Value),
			formatFloat(p.Confidence),
			p.Status,
			formatTime(p.CreatedAt),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
