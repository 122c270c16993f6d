package testutil

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/yungbote/compoundlab-backend/internal/domain"
	"github.com/yungbote/compoundlab-backend/internal/domain/compound"
	"github.com/yungbote/compoundlab-backend/internal/domain/experiment"
	"github.com/yungbote/compoundlab-backend/internal/domain/prediction"
	"github.com/yungbote/compoundlab-backend/internal/domain/user"
	"gorm.io/gorm"
)

func SeedUser(tb testing.TB, ctx context.Context, tx *gorm.DB, email string) *domain.User {
	tb.Helper()
	u := &domain.User{
		ID:       uuid.New(),
		Email:    email,
		Password: "pw",
		FullName: "Test User",
		Role:     user.RoleUser,
		IsActive: true,
	}
	if err := tx.WithContext(ctx).Create(u).Error; err != nil {
		tb.Fatalf("seed user: %v", err)
	}
	return u
}

// SeedCompound inserts a live compound at version 1 together with its snapshot.
func SeedCompound(tb testing.TB, ctx context.Context, tx *gorm.DB, name, smiles string) *domain.Compound {
	tb.Helper()
	c := &domain.Compound{
		ID:             uuid.New(),
		Fields:         compound.Fields{Name: name, Smiles: smiles},
		CurrentVersion: 1,
	}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed compound: %v", err)
	}
	if err := tx.WithContext(ctx).Create(c.Snapshot(compound.ChangeCreate, nil)).Error; err != nil {
		tb.Fatalf("seed compound version: %v", err)
	}
	return c
}

func SeedPrediction(tb testing.TB, ctx context.Context, tx *gorm.DB, compoundID uuid.UUID, modelType string) *domain.Prediction {
	tb.Helper()
	p := &domain.Prediction{
		ID:         uuid.New(),
		CompoundID: compoundID,
		ModelType:  modelType,
		Status:     prediction.StatusPending,
	}
	if err := tx.WithContext(ctx).Create(p).Error; err != nil {
		tb.Fatalf("seed prediction: %v", err)
	}
	return p
}

func SeedExperiment(tb testing.TB, ctx context.Context, tx *gorm.DB, name, modelType string, userID *uuid.UUID) *domain.Experiment {
	tb.Helper()
	e := &domain.Experiment{
		ID:        uuid.New(),
		Name:      name,
		ModelType: modelType,
		Status:    experiment.StatusCreated,
		UserID:    userID,
	}
	if err := tx.WithContext(ctx).Create(e).Error; err != nil {
		tb.Fatalf("seed experiment: %v", err)
	}
	return e
}
