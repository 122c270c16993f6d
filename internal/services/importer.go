package services

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/yungbote/compoundlab-backend/internal/clients/chembl"
	"github.com/yungbote/compoundlab-backend/internal/data/repos"
	"github.com/yungbote/compoundlab-backend/internal/domain"
	domainagg "github.com/yungbote/compoundlab-backend/internal/domain/aggregates"
	"github.com/yungbote/compoundlab-backend/internal/platform/apierr"
	"github.com/yungbote/compoundlab-backend/internal/platform/ctxutil"
	"github.com/yungbote/compoundlab-backend/internal/platform/logger"
)

var chemblIDPattern = regexp.MustCompile(`^CHEMBL\d+$`)

type ImportResult struct {
	Compound *domain.Compound `json:"compound"`
	Created  bool             `json:"created"`
}

type ImportService interface {
	// Import returns the live compound for externalID, fetching it from the
	// registry when it has not been imported yet.
	Import(ctx context.Context, externalID string) (*ImportResult, error)
}

type importService struct {
	log          *logger.Logger
	store        domainagg.CompoundStore
	compoundRepo repos.CompoundRepo
	registry     chembl.Client
	flight       singleflight.Group
}

func NewImportService(baseLog *logger.Logger, store domainagg.CompoundStore, compoundRepo repos.CompoundRepo, registry chembl.Client) ImportService {
	return &importService{
		log:          baseLog.With("service", "ImportService"),
		store:        store,
		compoundRepo: compoundRepo,
		registry:     registry,
	}
}

func (is *importService) Import(ctx context.Context, externalID string) (*ImportResult, error) {
	id := strings.ToUpper(strings.TrimSpace(externalID))
	if !chemblIDPattern.MatchString(id) {
		return nil, apierr.Validation("invalid ChEMBL id %q", externalID)
	}
	actor := ctxutil.UserIDPtr(ctx)
	v, err, shared := is.flight.Do(id, func() (interface{}, error) {
		return is.importOne(context.WithoutCancel(ctx), id, actor)
	})
	if err != nil {
		return nil, err
	}
	res := *v.(*ImportResult)
	if shared {
		// Only one of the coalesced callers created the row.
		res.Created = false
	}
	return &res, nil
}

func (is *importService) importOne(ctx context.Context, id string, actor *uuid.UUID) (*ImportResult, error) {
	existing, err := is.compoundRepo.GetLiveByExternal(ctx, nil, chembl.Source, id)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &ImportResult{Compound: existing}, nil
	}
	if is.registry == nil {
		return nil, apierr.External(chembl.Source, errors.New("registry client not configured"))
	}

	mol, err := is.registry.GetMolecule(ctx, id)
	switch {
	case errors.Is(err, chembl.ErrNotFound):
		return nil, apierr.NotFound("compound %s not found in ChEMBL", id)
	case err != nil:
		is.log.Warn("Registry fetch failed", "chembl_id", id, "error", err)
		return nil, apierr.External(chembl.Source, err)
	}
	if mol.CanonicalSmiles == "" {
		return nil, apierr.Validation("ChEMBL record %s has no structure", id)
	}

	fields, err := moleculeFields(mol)
	if err != nil {
		return nil, err
	}
	c, err := is.store.Create(ctx, domainagg.CreateCompoundInput{
		Fields:         fields,
		ExternalID:     id,
		ExternalSource: chembl.Source,
		CreatedBy:      actor,
	})
	if err != nil {
		if apierr.Is(err, apierr.CodeConflict) {
			// Another instance may have imported the same record first.
			if again, lookupErr := is.compoundRepo.GetLiveByExternal(ctx, nil, chembl.Source, id); lookupErr == nil && again != nil {
				return &ImportResult{Compound: again}, nil
			}
		}
		return nil, err
	}
	is.log.Info("Compound imported", "chembl_id", id, "compound_id", c.ID)
	return &ImportResult{Compound: c, Created: true}, nil
}

func moleculeFields(mol *chembl.Molecule) (domain.CompoundFields, error) {
	name := mol.PrefName
	if name == "" {
		name = mol.ChemblID
	}
	props := map[string]any{"source": chembl.Source}
	if mol.ALogP != nil {
		props["alogp"] = *mol.ALogP
	}
	if mol.Ro5Violations != nil {
		props["num_ro5_violations"] = *mol.Ro5Violations
	}
	raw, err := json.Marshal(props)
	if err != nil {
		return domain.CompoundFields{}, err
	}
	return domain.CompoundFields{
		Name:             name,
		Smiles:           mol.CanonicalSmiles,
		Inchi:            mol.StandardInchi,
		InchiKey:         mol.StandardInchiKey,
		MolecularFormula: mol.FullFormula,
		MolecularWeight:  mol.FullMolWeight,
		Properties:       raw,
	}, nil
}
