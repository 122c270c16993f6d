package reports

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/google/uuid"

	"github.com/yungbote/compoundlab-backend/internal/domain"
)

// MaxPDFPredictions bounds the prediction table of an experiment report.
const MaxPDFPredictions = 50

type ExperimentReport struct {
	Experiment    *domain.Experiment
	Predictions   []*domain.Prediction
	CompoundNames map[uuid.UUID]string
	GeneratedAt   time.Time
}

func WriteExperimentPDF(w io.Writer, r ExperimentReport) error {
	e := r.Experiment
	if e == nil {
		return fmt.Errorf("experiment required")
	}
	if r.GeneratedAt.IsZero() {
		r.GeneratedAt = time.Now().UTC()
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Experiment Report: "+e.Name, true)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Helvetica", "B", 18)
	pdf.MultiCell(0, 9, tr("Experiment Report: "+e.Name), "", "L", false)
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(0, 5, "Generated "+r.GeneratedAt.UTC().Format("2006-01-02 15:04:05 MST"), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	heading(pdf, "Experiment Details")
	rows := [][2]string{
		{"ID", e.ID.String()},
		{"Name", e.Name},
		{"Model Type", e.ModelType},
		{"Model Name", orNA(e.ModelName)},
		{"Status", e.Status},
		{"Tracking Run", orNA(deref(e.TrackingRunID))},
		{"Created At", e.CreatedAt.UTC().Format("2006-01-02 15:04:05")},
	}
	if e.CompletedAt != nil {
		rows = append(rows, [2]string{"Completed At", e.CompletedAt.UTC().Format("2006-01-02 15:04:05")})
	}
	if e.Description != "" {
		rows = append(rows, [2]string{"Description", e.Description})
	}
	rows = append(rows, jsonRows("Param", e.Parameters)...)
	rows = append(rows, jsonRows("Metric", e.Metrics)...)
	pdf.SetFont("Helvetica", "", 10)
	for _, row := range rows {
		pdf.SetFillColor(200, 200, 200)
		pdf.CellFormat(45, 7, tr(row[0]), "1", 0, "L", true, 0, "")
		pdf.SetFillColor(245, 245, 220)
		pdf.CellFormat(0, 7, tr(truncate(row[1], 90)), "1", 1, "L", true, 0, "")
	}
	pdf.Ln(6)

	values := make([]float64, 0, len(r.Predictions))
	for _, p := range r.Predictions {
		if p.Value != nil && len(values) < MaxPDFPredictions {
			values = append(values, *p.Value)
		}
	}
	if len(values) > 0 {
		png, err := BarChartPNG("Prediction values", values)
		if err != nil {
			return err
		}
		heading(pdf, "Prediction Values")
		opts := fpdf.ImageOptions{ImageType: "PNG"}
		pdf.RegisterImageOptionsReader("values-chart", opts, bytes.NewReader(png))
		pageW, _ := pdf.GetPageSize()
		left, _, right, _ := pdf.GetMargins()
		pdf.ImageOptions("values-chart", left, pdf.GetY(), pageW-left-right, 0, true, opts, 0, "")
		pdf.Ln(4)
	}

	heading(pdf, fmt.Sprintf("Predictions (%d)", len(r.Predictions)))
	if len(r.Predictions) == 0 {
		pdf.SetFont("Helvetica", "", 10)
		pdf.CellFormat(0, 6, "No predictions found.", "", 1, "L", false, 0, "")
	} else {
		widths := []float64{70, 50, 25, 25, 20}
		pdf.SetFont("Helvetica", "B", 10)
		pdf.SetFillColor(128, 128, 128)
		pdf.SetTextColor(255, 255, 255)
		for i, h := range []string{"Compound ID", "Compound Name", "Value", "Confidence", "Status"} {
			pdf.CellFormat(widths[i], 7, h, "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetTextColor(0, 0, 0)
		pdf.SetFont("Helvetica", "", 8)
		pdf.SetFillColor(245, 245, 220)
		for i, p := range r.Predictions {
			if i == MaxPDFPredictions {
				break
			}
			cells := []string{
				p.CompoundID.String(),
				truncate(orNA(r.CompoundNames[p.CompoundID]), 30),
				formatOptional(p.Value, "%.4f"),
				formatOptional(p.Confidence, "%.2f"),
				p.Status,
			}
			for j, c := range cells {
				pdf.CellFormat(widths[j], 6, tr(c), "1", 0, "C", true, 0, "")
			}
			pdf.Ln(-1)
		}
	}

	if err := pdf.Error(); err != nil {
		return err
	}
	return pdf.Output(w)
}

func heading(pdf *fpdf.Fpdf, text string) {
	pdf.SetFont("Helvetica", "B", 13)
	pdf.CellFormat(0, 8, text, "", 1, "L", false, 0, "")
}

// jsonRows flattens a JSON object into sorted label/value rows.
func jsonRows(label string, raw []byte) [][2]string {
	if len(raw) == 0 {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([][2]string, 0, len(keys))
	for _, k := range keys {
		v := obj[k]
		var s string
		switch t := v.(type) {
		case string:
			s = t
		case map[string]any, []any:
			b, _ := json.Marshal(t)
			s = string(b)
		default:
			s = fmt.Sprint(t)
		}
		out = append(out, [2]string{label + ": " + k, s})
	}
	return out
}

func formatOptional(v *float64, format string) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf(format, *v)
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "..."
}
