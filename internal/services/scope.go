package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/yungbote/compoundlab-backend/internal/domain"
	"github.com/yungbote/compoundlab-backend/internal/domain/user"
	"github.com/yungbote/compoundlab-backend/internal/platform/ctxutil"
)

func visibleTo(ctx context.Context, e *domain.Experiment) bool {
	return ownedBy(ctx, e.UserID)
}

// ownerScope is the user id reads are restricted to, or nil for admins and
// callers without a request identity (CLI, workers).
func ownerScope(ctx context.Context) *uuid.UUID {
	rd := ctxutil.GetRequestData(ctx)
	if rd == nil || rd.UserID == uuid.Nil || rd.Role == user.RoleAdmin {
		return nil
	}
	uid := rd.UserID
	return &uid
}

// ownedBy reports whether a row owned by owner is visible to the caller.
// Rows without an owner were written outside a request and stay shared.
func ownedBy(ctx context.Context, owner *uuid.UUID) bool {
	scope := ownerScope(ctx)
	return scope == nil || owner == nil || *owner == *scope
}

