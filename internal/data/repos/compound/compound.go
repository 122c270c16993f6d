package compound

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/yungbote/compoundlab-backend/internal/domain"
	"github.com/yungbote/compoundlab-backend/internal/platform/logger"
	"gorm.io/gorm"
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

type CompoundRepo interface {
	Create(ctx context.Context, tx *gorm.DB, c *domain.Compound) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.Compound, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*domain.Compound, error)
	List(ctx context.Context, tx *gorm.DB, filter domain.CompoundFilter) ([]*domain.Compound, error)
	LiveSmilesExists(ctx context.Context, tx *gorm.DB, smiles string, excludeID uuid.UUID) (bool, error)
	GetLiveByExternal(ctx context.Context, tx *gorm.DB, source, externalID string) (*domain.Compound, error)
}

type compoundRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCompoundRepo(db *gorm.DB, baseLog *logger.Logger) CompoundRepo {
	repoLog := baseLog.With("repo", "CompoundRepo")
	return &compoundRepo{db: db, log: repoLog}
}

func (r *compoundRepo) Create(ctx context.Context, tx *gorm.DB, c *domain.Compound) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return transaction.WithContext(ctx).Create(c).Error
}

// GetByID returns tombstoned rows too; nil without error when absent.
func (r *compoundRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.Compound, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var c domain.Compound
	err := transaction.WithContext(ctx).Where("id = ?", id).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *compoundRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*domain.Compound, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*domain.Compound
	if len(ids) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// List returns live compounds, newest first.
func (r *compoundRepo) List(ctx context.Context, tx *gorm.DB, filter domain.CompoundFilter) ([]*domain.Compound, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	q := transaction.WithContext(ctx).Model(&domain.Compound{}).Where("deleted = ?", false)
	if s := strings.ToLower(strings.TrimSpace(filter.Search)); s != "" {
		like := "%" + s + "%"
		q = q.Where("LOWER(name) LIKE ? OR LOWER(smiles) LIKE ? OR LOWER(molecular_formula) LIKE ?", like, like, like)
	}
	if filter.MinWeight != nil {
		q = q.Where("molecular_weight >= ?", *filter.MinWeight)
	}
	if filter.MaxWeight != nil {
		q = q.Where("molecular_weight <= ?", *filter.MaxWeight)
	}
	if src := strings.TrimSpace(filter.ExternalSource); src != "" {
		q = q.Where("external_source = ?", src)
	}
	if ext := strings.TrimSpace(filter.ExternalID); ext != "" {
		q = q.Where("external_id = ?", ext)
	}
	var results []*domain.Compound
	if err := q.Order("created_at DESC").Order("id").
		Offset(clampSkip(filter.Skip)).
		Limit(ClampLimit(filter.Limit)).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *compoundRepo) LiveSmilesExists(ctx context.Context, tx *gorm.DB, smiles string, excludeID uuid.UUID) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	q := transaction.WithContext(ctx).Model(&domain.Compound{}).
		Where("smiles = ? AND deleted = ?", strings.TrimSpace(smiles), false)
	if excludeID != uuid.Nil {
		q = q.Where("id <> ?", excludeID)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *compoundRepo) GetLiveByExternal(ctx context.Context, tx *gorm.DB, source, externalID string) (*domain.Compound, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var c domain.Compound
	err := transaction.WithContext(ctx).
		Where("external_source = ? AND external_id = ? AND deleted = ?", source, externalID, false).
		First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ClampLimit applies the listing default and ceiling.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	}
	return limit
}

func clampSkip(skip int) int {
	if skip < 0 {
		return 0
	}
	return skip
}
