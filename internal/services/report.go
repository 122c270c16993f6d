package services

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/compoundlab-backend/internal/data/repos"
	"github.com/yungbote/compoundlab-backend/internal/domain"
	"github.com/yungbote/compoundlab-backend/internal/platform/archive"
	"github.com/yungbote/compoundlab-backend/internal/platform/ctxutil"
	"github.com/yungbote/compoundlab-backend/internal/platform/logger"
	"github.com/yungbote/compoundlab-backend/internal/reports"
)

const (
	reportPageSize = 1000
	// Upper bound on rows in a single CSV export.
	maxReportRows  = 100000
	archiveTimeout = 30 * time.Second
)

type Report struct {
	Filename    string
	ContentType string
	Data        []byte
}

type ReportService interface {
	// CompoundsCSV exports live compounds, or only ids when given.
	CompoundsCSV(ctx context.Context, ids []uuid.UUID) (*Report, error)
	PredictionsCSV(ctx context.Context, experimentID, compoundID *uuid.UUID) (*Report, error)
	ExperimentPDF(ctx context.Context, experimentID uuid.UUID) (*Report, error)
}

type reportService struct {
	log            *logger.Logger
	compoundRepo   repos.CompoundRepo
	predictionRepo repos.PredictionRepo
	experiments    ExperimentService
	archive        archive.Store
	now            func() time.Time
}

func NewReportService(
	baseLog *logger.Logger,
	compoundRepo repos.CompoundRepo,
	predictionRepo repos.PredictionRepo,
	experiments ExperimentService,
	store archive.Store,
) ReportService {
	return &reportService{
		log:            baseLog.With("service", "ReportService"),
		compoundRepo:   compoundRepo,
		predictionRepo: predictionRepo,
		experiments:    experiments,
		archive:        store,
		now:            time.Now,
	}
}

func (rs *reportService) CompoundsCSV(ctx context.Context, ids []uuid.UUID) (*Report, error) {
	var compounds []*domain.Compound
	if len(ids) > 0 {
		found, err := rs.compoundRepo.GetByIDs(ctx, nil, ids)
		if err != nil {
			return nil, err
		}
		for _, c := range found {
			if !c.Deleted {
				compounds = append(compounds, c)
			}
		}
	} else {
		for skip := 0; skip < maxReportRows; skip += reportPageSize {
			page, err := rs.compoundRepo.List(ctx, nil, domain.CompoundFilter{Skip: skip, Limit: reportPageSize})
			if err != nil {
				return nil, err
			}
			compounds = append(compounds, page...)
			if len(page) < reportPageSize {
				break
			}
		}
	}

	var buf bytes.Buffer
	if err := reports.WriteCompoundsCSV(&buf, compounds); err != nil {
		return nil, fmt.Errorf("render compounds csv: %w", err)
	}
	r := &Report{Filename: "compounds.csv", ContentType: "text/csv", Data: buf.Bytes()}
	rs.archiveCopy(ctx, "compounds", r)
	return r, nil
}

func (rs *reportService) PredictionsCSV(ctx context.Context, experimentID, compoundID *uuid.UUID) (*Report, error) {
	if experimentID != nil {
		// Enforces visibility of the experiment to the caller.
		if _, err := rs.experiments.Get(ctx, *experimentID); err != nil {
			return nil, err
		}
	}
	preds, err := rs.allPredictions(ctx, domain.PredictionFilter{
		ExperimentID: experimentID,
		CompoundID:   compoundID,
		CreatedBy:    ownerScope(ctx),
	})
	if err != nil {
		return nil, err
	}
	names, err := rs.compoundNames(ctx, preds)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := reports.WritePredictionsCSV(&buf, preds, names); err != nil {
		return nil, fmt.Errorf("render predictions csv: %w", err)
	}
	r := &Report{Filename: "predictions.csv", ContentType: "text/csv", Data: buf.Bytes()}
	rs.archiveCopy(ctx, "predictions", r)
	return r, nil
}

func (rs *reportService) ExperimentPDF(ctx context.Context, experimentID uuid.UUID) (*Report, error) {
	var (
		exp   *domain.Experiment
		preds []*domain.Prediction
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		exp, err = rs.experiments.Get(gctx, experimentID)
		return err
	})
	g.Go(func() error {
		var err error
		preds, err = rs.predictionRepo.List(gctx, nil, domain.PredictionFilter{
			ExperimentID: &experimentID,
			CreatedBy:    ownerScope(gctx),
			Limit:        reportPageSize,
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	shown := preds
	if len(shown) > reports.MaxPDFPredictions {
		shown = shown[:reports.MaxPDFPredictions]
	}
	names, err := rs.compoundNames(ctx, shown)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := reports.WriteExperimentPDF(&buf, reports.ExperimentReport{
		Experiment:    exp,
		Predictions:   preds,
		CompoundNames: names,
		GeneratedAt:   rs.now().UTC(),
	}); err != nil {
		return nil, fmt.Errorf("render experiment pdf: %w", err)
	}
	r := &Report{
		Filename:    fmt.Sprintf("experiment_%s_report.pdf", experimentID),
		ContentType: "application/pdf",
		Data:        buf.Bytes(),
	}
	rs.archiveCopy(ctx, "experiments", r)
	return r, nil
}

func (rs *reportService) allPredictions(ctx context.Context, filter domain.PredictionFilter) ([]*domain.Prediction, error) {
	var out []*domain.Prediction
	for skip := 0; skip < maxReportRows; skip += reportPageSize {
		filter.Skip, filter.Limit = skip, reportPageSize
		page, err := rs.predictionRepo.List(ctx, nil, filter)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < reportPageSize {
			break
		}
	}
	return out, nil
}

func (rs *reportService) compoundNames(ctx context.Context, preds []*domain.Prediction) (map[uuid.UUID]string, error) {
	seen := make(map[uuid.UUID]bool, len(preds))
	ids := make([]uuid.UUID, 0, len(preds))
	for _, p := range preds {
		if !seen[p.CompoundID] {
			seen[p.CompoundID] = true
			ids = append(ids, p.CompoundID)
		}
	}
	names := make(map[uuid.UUID]string, len(ids))
	for start := 0; start < len(ids); start += reportPageSize {
		end := min(start+reportPageSize, len(ids))
		found, err := rs.compoundRepo.GetByIDs(ctx, nil, ids[start:end])
		if err != nil {
			return nil, err
		}
		for _, c := range found {
			names[c.ID] = c.Name
		}
	}
	return names, nil
}

// archiveCopy stores a copy of r when an archive is configured. Failures are
// logged and never fail the download.
func (rs *reportService) archiveCopy(ctx context.Context, kind string, r *Report) {
	if rs.archive == nil {
		return
	}
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
	defer cancel()
	key := fmt.Sprintf("%s/%s/%s", kind, rs.now().UTC().Format("2006/01/02/150405.000000000"), r.Filename)
	if err := rs.archive.Put(actx, key, r.ContentType, r.Data); err != nil {
		rs.log.Warn("Report archive failed", append(ctxutil.LogFields(ctx), "key", key, "archive", rs.archive.Kind(), "error", err)...)
	}
}
