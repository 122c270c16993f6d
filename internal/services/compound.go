package services

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/compoundlab-backend/internal/data/repos"
	"github.com/yungbote/compoundlab-backend/internal/domain"
	domainagg "github.com/yungbote/compoundlab-backend/internal/domain/aggregates"
	"github.com/yungbote/compoundlab-backend/internal/platform/apierr"
	"github.com/yungbote/compoundlab-backend/internal/platform/ctxutil"
	"github.com/yungbote/compoundlab-backend/internal/platform/logger"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

type CompoundService interface {
	Create(ctx context.Context, fields domain.CompoundFields) (*domain.Compound, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Compound, error)
	List(ctx context.Context, filter domain.CompoundFilter) ([]*domain.Compound, error)
	Update(ctx context.Context, id uuid.UUID, expectedVersion int, patch domainagg.CompoundPatch) (*domain.Compound, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Rollback(ctx context.Context, id uuid.UUID, targetVersion int) (*domain.Compound, error)
	Versions(ctx context.Context, id uuid.UUID, skip, limit int) ([]*domain.CompoundVersion, error)
}

type compoundService struct {
	db           *gorm.DB
	log          *logger.Logger
	store        domainagg.CompoundStore
	compoundRepo repos.CompoundRepo
}

func NewCompoundService(db *gorm.DB, baseLog *logger.Logger, store domainagg.CompoundStore, compoundRepo repos.CompoundRepo) CompoundService {
	return &compoundService{
		db:           db,
		log:          baseLog.With("service", "CompoundService"),
		store:        store,
		compoundRepo: compoundRepo,
	}
}

func (cs *compoundService) Create(ctx context.Context, fields domain.CompoundFields) (*domain.Compound, error) {
	c, err := cs.store.Create(ctx, domainagg.CreateCompoundInput{
		Fields:    fields,
		CreatedBy: ctxutil.UserIDPtr(ctx),
	})
	if err != nil {
		return nil, err
	}
	cs.log.Info("Compound created", append(ctxutil.LogFields(ctx), "compound_id", c.ID)...)
	return c, nil
}

func (cs *compoundService) Get(ctx context.Context, id uuid.UUID) (*domain.Compound, error) {
	return cs.store.Get(ctx, id)
}

func (cs *compoundService) List(ctx context.Context, filter domain.CompoundFilter) ([]*domain.Compound, error) {
	filter.Skip, filter.Limit = clampPage(filter.Skip, filter.Limit)
	if filter.MinWeight != nil && filter.MaxWeight != nil && *filter.MinWeight > *filter.MaxWeight {
		return nil, apierr.Validation("min_weight must not exceed max_weight")
	}
	return cs.compoundRepo.List(ctx, nil, filter)
}

func (cs *compoundService) Update(ctx context.Context, id uuid.UUID, expectedVersion int, patch domainagg.CompoundPatch) (*domain.Compound, error) {
	if expectedVersion <= 0 {
		return nil, apierr.Validation("version is required for updates")
	}
	if patch.Empty() {
		return nil, apierr.Validation("no fields to update")
	}
	c, err := cs.store.Update(ctx, id, expectedVersion, patch, ctxutil.UserIDPtr(ctx))
	if err != nil {
		return nil, err
	}
	cs.log.Info("Compound updated", append(ctxutil.LogFields(ctx), "compound_id", id, "version", c.CurrentVersion)...)
	return c, nil
}

func (cs *compoundService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := cs.store.Delete(ctx, id); err != nil {
		return err
	}
	cs.log.Info("Compound tombstoned", append(ctxutil.LogFields(ctx), "compound_id", id)...)
	return nil
}

func (cs *compoundService) Rollback(ctx context.Context, id uuid.UUID, targetVersion int) (*domain.Compound, error) {
	if targetVersion <= 0 {
		return nil, apierr.Validation("version must be positive")
	}
	c, err := cs.store.Rollback(ctx, id, targetVersion, ctxutil.UserIDPtr(ctx))
	if err != nil {
		return nil, err
	}
	cs.log.Info("Compound rolled back",
		append(ctxutil.LogFields(ctx), "compound_id", id, "target_version", targetVersion, "version", c.CurrentVersion)...)
	return c, nil
}

func (cs *compoundService) Versions(ctx context.Context, id uuid.UUID, skip, limit int) ([]*domain.CompoundVersion, error) {
	skip, limit = clampPage(skip, limit)
	return cs.store.ListVersions(ctx, id, skip, limit)
}

func clampPage(skip, limit int) (int, int) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return skip, limit
}
