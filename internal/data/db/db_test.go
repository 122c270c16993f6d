package db

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/compoundlab-backend/internal/domain"
	"github.com/yungbote/compoundlab-backend/internal/platform/logger"
)

func openSQLite(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(logger.NewNop(), Config{
		Driver: "sqlite",
		URL:    fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	require.NoError(t, svc.AutoMigrateAll())
	return svc
}

func TestMigrateIsRepeatable(t *testing.T) {
	svc := openSQLite(t)
	require.NoError(t, svc.AutoMigrateAll())
	for _, m := range domain.Models() {
		assert.True(t, svc.DB().Migrator().HasTable(m), "%T", m)
	}
}

func TestLiveSmilesIndexIgnoresTombstones(t *testing.T) {
	svc := openSQLite(t)
	db := svc.DB()

	mk := func(deleted bool) error {
		c := &domain.Compound{ID: uuid.New(), CurrentVersion: 1, Deleted: deleted}
		c.Name, c.Smiles = "Ethanol", "CCO"
		return db.Create(c).Error
	}
	require.NoError(t, mk(true))
	require.NoError(t, mk(false))
	assert.Error(t, mk(false), "second live row with the same smiles")
}

func TestUnsupportedDriver(t *testing.T) {
	_, err := NewService(logger.NewNop(), Config{Driver: "oracle"})
	assert.Error(t, err)
}
