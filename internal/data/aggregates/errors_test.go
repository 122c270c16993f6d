package aggregates

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	domainagg "github.com/yungbote/compoundlab-backend/internal/domain/aggregates"
	"gorm.io/gorm"
)

func TestMapErrorCodes(t *testing.T) {
	cases := []struct {
		name string
		in   error
		want domainagg.ErrorCode
	}{
		{"validation", ValidationError("bad input"), domainagg.CodeValidation},
		{"conflict", ConflictError("stale"), domainagg.CodeConflict},
		{"record not found", gorm.ErrRecordNotFound, domainagg.CodeNotFound},
		{"wrapped not found", fmt.Errorf("load: %w", gorm.ErrRecordNotFound), domainagg.CodeNotFound},
		{"pg unique", &pgconn.PgError{Code: "23505"}, domainagg.CodeConflict},
		{"pg fk", &pgconn.PgError{Code: "23503"}, domainagg.CodePreconditionFailed},
		{"pg serialization", &pgconn.PgError{Code: "40001"}, domainagg.CodeRetryable},
		{"sqlite unique", errors.New("UNIQUE constraint failed: compound_version.compound_id, compound_version.version"), domainagg.CodeConflict},
		{"sqlite busy", errors.New("database is locked"), domainagg.CodeRetryable},
		{"canceled", context.Canceled, domainagg.CodeRetryable},
		{"other", errors.New("disk on fire"), domainagg.CodeInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := MapError("Compound.Store.Update", tc.in)
			if !domainagg.IsCode(err, tc.want) {
				t.Fatalf("want %q, got %q (%v)", tc.want, domainagg.CodeOf(err), err)
			}
		})
	}
}

func TestMapErrorNil(t *testing.T) {
	if MapError("op", nil) != nil {
		t.Fatalf("nil error must stay nil")
	}
}

func TestMapErrorPassthroughAggregateError(t *testing.T) {
	in := domainagg.NewError(domainagg.CodeRetryable, "op", "retry", errors.New("boom"))
	if out := MapError("other", in); out != in {
		t.Fatalf("expected passthrough aggregate error")
	}
}
