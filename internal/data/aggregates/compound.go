package aggregates

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yungbote/compoundlab-backend/internal/chem"
	"github.com/yungbote/compoundlab-backend/internal/data/repos"
	domainagg "github.com/yungbote/compoundlab-backend/internal/domain/aggregates"
	"github.com/yungbote/compoundlab-backend/internal/domain/compound"
	"github.com/yungbote/compoundlab-backend/internal/platform/dbctx"
)

const compoundTable = "compound"

type CompoundStoreDeps struct {
	Base BaseDeps

	Compounds repos.CompoundRepo
	Versions  repos.CompoundVersionRepo
}

type compoundStore struct {
	deps CompoundStoreDeps
}

func NewCompoundStore(deps CompoundStoreDeps) domainagg.CompoundStore {
	deps.Base = deps.Base.withDefaults()
	return &compoundStore{deps: deps}
}

func (s *compoundStore) Contract() domainagg.Contract {
	return domainagg.CompoundStoreContract
}

func (s *compoundStore) Create(ctx context.Context, in domainagg.CreateCompoundInput) (*compound.Compound, error) {
	const op = "Compound.Store.Create"
	fields := normalizeFields(in.Fields)
	if err := validateFields(op, fields); err != nil {
		return nil, err
	}

	c := &compound.Compound{
		ID:             uuid.New(),
		Fields:         fields,
		ExternalID:     strings.TrimSpace(in.ExternalID),
		ExternalSource: strings.TrimSpace(in.ExternalSource),
		CreatedBy:      in.CreatedBy,
		CurrentVersion: 1,
	}
	err := executeWrite(ctx, s.deps.Base, op, func(dbc dbctx.Context) error {
		if err := s.ensureUniqueSmiles(dbc, op, c.Smiles, uuid.Nil); err != nil {
			return err
		}
		if err := s.deps.Compounds.Create(dbc.Ctx, dbc.Tx, c); err != nil {
			return err
		}
		return s.deps.Versions.Append(dbc.Ctx, dbc.Tx, c.Snapshot(compound.ChangeCreate, in.CreatedBy))
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *compoundStore) Update(ctx context.Context, id uuid.UUID, expectedVersion int, patch domainagg.CompoundPatch, actor *uuid.UUID) (*compound.Compound, error) {
	const op = "Compound.Store.Update"
	if id == uuid.Nil {
		return nil, domainagg.Validation(op, "missing compound id")
	}
	if expectedVersion < 1 {
		return nil, domainagg.Validation(op, "expected version must be >= 1")
	}
	if patch.Empty() {
		return nil, domainagg.Validation(op, "patch has no fields")
	}

	var out *compound.Compound
	err := executeWrite(ctx, s.deps.Base, op, func(dbc dbctx.Context) error {
		cur, err := s.loadLive(dbc, op, id)
		if err != nil {
			return err
		}
		if cur.CurrentVersion != expectedVersion {
			return domainagg.Conflict(op, "version mismatch: expected %d, current %d", expectedVersion, cur.CurrentVersion)
		}
		next := normalizeFields(patch.Apply(cur.Fields))
		if err := validateFields(op, next); err != nil {
			return err
		}
		if next.Smiles != cur.Smiles {
			if err := s.ensureUniqueSmiles(dbc, op, next.Smiles, cur.ID); err != nil {
				return err
			}
		}
		out, err = s.advance(dbc, cur, next, compound.ChangeUpdate, actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Rollback appends a new version whose content equals the target snapshot.
// Intervening versions are left untouched.
func (s *compoundStore) Rollback(ctx context.Context, id uuid.UUID, targetVersion int, actor *uuid.UUID) (*compound.Compound, error) {
	const op = "Compound.Store.Rollback"
	if id == uuid.Nil {
		return nil, domainagg.Validation(op, "missing compound id")
	}

	var out *compound.Compound
	err := executeWrite(ctx, s.deps.Base, op, func(dbc dbctx.Context) error {
		cur, err := s.loadLive(dbc, op, id)
		if err != nil {
			return err
		}
		if targetVersion < 1 || targetVersion > cur.CurrentVersion {
			return domainagg.NotFound(op, "version %d not found for compound %s", targetVersion, id)
		}
		target, err := s.deps.Versions.Get(dbc.Ctx, dbc.Tx, id, targetVersion)
		if err != nil {
			return err
		}
		if target == nil {
			return InvariantError("version log has a gap at " + itoa(targetVersion))
		}
		next := target.Fields.Clone()
		if next.Smiles != cur.Smiles {
			if err := s.ensureUniqueSmiles(dbc, op, next.Smiles, cur.ID); err != nil {
				return err
			}
		}
		out, err = s.advance(dbc, cur, next, compound.ChangeRollback, actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete tombstones the compound without bumping its version. Deleting a
// tombstoned compound succeeds.
func (s *compoundStore) Delete(ctx context.Context, id uuid.UUID) error {
	const op = "Compound.Store.Delete"
	if id == uuid.Nil {
		return domainagg.Validation(op, "missing compound id")
	}
	return executeWrite(ctx, s.deps.Base, op, func(dbc dbctx.Context) error {
		cur, err := s.deps.Compounds.GetByID(dbc.Ctx, dbc.Tx, id)
		if err != nil {
			return err
		}
		if cur == nil {
			return domainagg.NotFound(op, "compound %s not found", id)
		}
		if cur.Deleted {
			return nil
		}
		now := time.Now().UTC()
		_, err = s.deps.Base.CASGuard.UpdateWhere(dbc, compoundTable, id,
			map[string]any{"deleted": false},
			map[string]any{"deleted": true, "tombstoned_at": now, "updated_at": now},
		)
		// Losing the guard means a concurrent delete already tombstoned it.
		return err
	})
}

func (s *compoundStore) Get(ctx context.Context, id uuid.UUID) (*compound.Compound, error) {
	const op = "Compound.Store.Get"
	c, err := s.deps.Compounds.GetByID(ctx, nil, id)
	if err != nil {
		return nil, MapError(op, err)
	}
	if c == nil || c.Deleted {
		return nil, domainagg.NotFound(op, "compound %s not found", id)
	}
	return c, nil
}

func (s *compoundStore) GetAny(ctx context.Context, id uuid.UUID) (*compound.Compound, error) {
	const op = "Compound.Store.GetAny"
	c, err := s.deps.Compounds.GetByID(ctx, nil, id)
	if err != nil {
		return nil, MapError(op, err)
	}
	if c == nil {
		return nil, domainagg.NotFound(op, "compound %s not found", id)
	}
	return c, nil
}

func (s *compoundStore) ListVersions(ctx context.Context, id uuid.UUID, skip, limit int) ([]*compound.Version, error) {
	const op = "Compound.Store.ListVersions"
	if _, err := s.GetAny(ctx, id); err != nil {
		return nil, err
	}
	out, err := s.deps.Versions.List(ctx, nil, id, skip, limit)
	if err != nil {
		return nil, MapError(op, err)
	}
	return out, nil
}

// advance moves the live pointer one version forward under a CAS on the
// version read earlier in this transaction, then appends the snapshot.
func (s *compoundStore) advance(dbc dbctx.Context, cur *compound.Compound, next compound.Fields, changeType string, actor *uuid.UUID) (*compound.Compound, error) {
	now := time.Now().UTC()
	updates := next.Columns()
	updates["current_version"] = cur.CurrentVersion + 1
	updates["updated_at"] = now

	ok, err := s.deps.Base.CASGuard.UpdateByVersion(dbc, compoundTable, cur.ID, cur.CurrentVersion, updates)
	if err != nil {
		return nil, err
	}
	if err := RequireCASSuccess(ok, "compound "+cur.ID.String()+" changed concurrently"); err != nil {
		return nil, err
	}

	out := *cur
	out.Fields = next
	out.CurrentVersion = cur.CurrentVersion + 1
	out.UpdatedAt = now
	if err := s.deps.Versions.Append(dbc.Ctx, dbc.Tx, out.Snapshot(changeType, actor)); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *compoundStore) loadLive(dbc dbctx.Context, op string, id uuid.UUID) (*compound.Compound, error) {
	cur, err := s.deps.Compounds.GetByID(dbc.Ctx, dbc.Tx, id)
	if err != nil {
		return nil, err
	}
	if cur == nil || cur.Deleted {
		return nil, domainagg.NotFound(op, "compound %s not found", id)
	}
	return cur, nil
}

func (s *compoundStore) ensureUniqueSmiles(dbc dbctx.Context, op, smiles string, self uuid.UUID) error {
	exists, err := s.deps.Compounds.LiveSmilesExists(dbc.Ctx, dbc.Tx, smiles, self)
	if err != nil {
		return err
	}
	if exists {
		return domainagg.Conflict(op, "a compound with SMILES %q already exists", smiles)
	}
	return nil
}

func normalizeFields(f compound.Fields) compound.Fields {
	out := f.Clone()
	out.Name = strings.TrimSpace(out.Name)
	out.Smiles = strings.TrimSpace(out.Smiles)
	out.Inchi = strings.TrimSpace(out.Inchi)
	out.InchiKey = strings.TrimSpace(out.InchiKey)
	out.MolecularFormula = strings.TrimSpace(out.MolecularFormula)
	return out
}

func validateFields(op string, f compound.Fields) error {
	if f.Name == "" {
		return domainagg.Validation(op, "name is required")
	}
	if f.Smiles == "" {
		return domainagg.Validation(op, "structure notation is required")
	}
	if err := chem.Validate(f.Smiles); err != nil {
		return domainagg.NewError(domainagg.CodeValidation, op, err.Error(), err)
	}
	if f.MolecularWeight != nil && *f.MolecularWeight <= 0 {
		return domainagg.Validation(op, "molecular weight must be positive")
	}
	if len(f.Properties) > 0 {
		var obj map[string]any
		if err := json.Unmarshal(f.Properties, &obj); err != nil {
			return domainagg.NewError(domainagg.CodeValidation, op, "properties must be a JSON object", err)
		}
	}
	return nil
}
