package aggregates

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yungbote/compoundlab-backend/internal/platform/dbctx"
	"gorm.io/gorm"
)

// CASGuard provides compare-and-set helpers for aggregate writes.
type CASGuard struct {
	db *gorm.DB
}

func NewCASGuard(db *gorm.DB) CASGuard {
	return CASGuard{db: db}
}

func (g CASGuard) baseDB(dbc dbctx.Context) (*gorm.DB, error) {
	if dbc.Tx == nil && g.db == nil {
		return nil, ValidationError("missing db transaction context")
	}
	return dbc.DB(g.db), nil
}

// UpdateWhere updates the row with the given id only when every guard column
// still holds the expected value. A nil guard value matches SQL NULL.
func (g CASGuard) UpdateWhere(dbc dbctx.Context, table string, id uuid.UUID, guard map[string]any, updates map[string]any) (bool, error) {
	db, err := g.baseDB(dbc)
	if err != nil {
		return false, err
	}
	table = strings.TrimSpace(table)
	if table == "" || id == uuid.Nil {
		return false, ValidationError("table and id are required for UpdateWhere")
	}
	if len(updates) == 0 {
		return false, ValidationError("updates must not be empty")
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	q := db.Table(table).Where("id = ?", id)
	if len(guard) > 0 {
		q = q.Where(guard)
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// UpdateByVersion updates a live row only when its current_version matches.
func (g CASGuard) UpdateByVersion(dbc dbctx.Context, table string, id uuid.UUID, expectedVersion int, updates map[string]any) (bool, error) {
	if expectedVersion < 1 {
		return false, ValidationError("expected version must be >= 1")
	}
	return g.UpdateWhere(dbc, table, id, map[string]any{
		"current_version": expectedVersion,
		"deleted":         false,
	}, updates)
}

// UpdateByStatus updates a row only when its status is one of allowedStatuses.
func (g CASGuard) UpdateByStatus(dbc dbctx.Context, table string, id uuid.UUID, allowedStatuses []string, updates map[string]any) (bool, error) {
	if len(allowedStatuses) == 0 {
		return false, ValidationError("allowedStatuses must not be empty")
	}
	db, err := g.baseDB(dbc)
	if err != nil {
		return false, err
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	res := db.Table(strings.TrimSpace(table)).
		Where("id = ? AND status IN ?", id, allowedStatuses).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// RequireCASSuccess converts a failed compare-and-set into a typed conflict error.
func RequireCASSuccess(ok bool, message string) error {
	if ok {
		return nil
	}
	return ConflictError(strings.TrimSpace(message))
}

// RequireVersionMatch validates version equality for optimistic locking flows.
func RequireVersionMatch(current, expected int) error {
	if expected < 1 {
		return ValidationError("expected version must be >= 1")
	}
	if current != expected {
		return ConflictError("version mismatch: expected " + itoa(expected) + ", current " + itoa(current))
	}
	return nil
}
