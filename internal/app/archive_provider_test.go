package app

import (
	"context"
	"errors"
	"testing"

	"github.com/yungbote/compoundlab-backend/internal/platform/archive"
	"github.com/yungbote/compoundlab-backend/internal/platform/logger"
)

func TestResolveArchiveDisabled(t *testing.T) {
	store, err := resolveArchive(context.Background(), logger.NewNop(), Config{ReportArchive: ""}, nil)
	if err != nil {
		t.Fatalf("resolveArchive: %v", err)
	}
	if store != nil {
		t.Fatalf("expected nil store when archiving is disabled, got=%T", store)
	}
}

func TestResolveArchiveInvalidKind(t *testing.T) {
	_, err := resolveArchive(context.Background(), logger.NewNop(), Config{ReportArchive: "ftp"}, nil)

	var got *ArchiveBootstrapError
	if !errors.As(err, &got) {
		t.Fatalf("expected ArchiveBootstrapError, got=%T", err)
	}
	if got.Code != ArchiveBootstrapErrorInvalidKind {
		t.Fatalf("code: want=%q got=%q", ArchiveBootstrapErrorInvalidKind, got.Code)
	}
}

func TestResolveArchiveMissingBucket(t *testing.T) {
	for _, kind := range []string{"gcs", "S3"} {
		_, err := resolveArchive(context.Background(), logger.NewNop(), Config{ReportArchive: kind}, nil)
		if code := archiveBootstrapErrorCode(err); code != ArchiveBootstrapErrorMissingBucket {
			t.Fatalf("%s: code: want=%q got=%q", kind, ArchiveBootstrapErrorMissingBucket, code)
		}
	}
}

func TestResolveArchiveMissingDir(t *testing.T) {
	_, err := resolveArchive(context.Background(), logger.NewNop(), Config{ReportArchive: "local", ReportDir: "  "}, nil)
	if code := archiveBootstrapErrorCode(err); code != ArchiveBootstrapErrorMissingDir {
		t.Fatalf("code: want=%q got=%q", ArchiveBootstrapErrorMissingDir, code)
	}
}

func TestResolveArchiveConnectFailed(t *testing.T) {
	restore := newArchiveStore
	t.Cleanup(func() { newArchiveStore = restore })
	want := errors.New("credentials unavailable")
	newArchiveStore = func(context.Context, *logger.Logger, archive.Config) (archive.Store, error) {
		return nil, want
	}

	_, err := resolveArchive(context.Background(), logger.NewNop(), Config{ReportArchive: "s3", ReportBucket: "reports"}, nil)

	var got *ArchiveBootstrapError
	if !errors.As(err, &got) {
		t.Fatalf("expected ArchiveBootstrapError, got=%T", err)
	}
	if got.Code != ArchiveBootstrapErrorConnectFailed {
		t.Fatalf("code: want=%q got=%q", ArchiveBootstrapErrorConnectFailed, got.Code)
	}
	if got.Bucket != "reports" {
		t.Fatalf("bucket: want=%q got=%q", "reports", got.Bucket)
	}
	if !errors.Is(err, want) {
		t.Fatalf("expected cause to unwrap to %v", want)
	}
}

func TestResolveArchiveLocalIsInstrumented(t *testing.T) {
	dir := t.TempDir()
	store, err := resolveArchive(context.Background(), logger.NewNop(), Config{ReportArchive: "local", ReportDir: dir}, nil)
	if err != nil {
		t.Fatalf("resolveArchive: %v", err)
	}
	if _, ok := store.(*instrumentedArchive); !ok {
		t.Fatalf("expected instrumented store, got=%T", store)
	}
	if store.Kind() != archive.KindLocal {
		t.Fatalf("kind: want=%q got=%q", archive.KindLocal, store.Kind())
	}
}

func TestArchiveBootstrapErrorCodeFallback(t *testing.T) {
	if code := archiveBootstrapErrorCode(errors.New("boom")); code != ArchiveBootstrapErrorConnectFailed {
		t.Fatalf("code: want=%q got=%q", ArchiveBootstrapErrorConnectFailed, code)
	}
	var nilErr *ArchiveBootstrapError
	if nilErr.Error() == "" {
		t.Fatalf("nil error should still render a message")
	}
}
