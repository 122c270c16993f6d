package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yungbote/compoundlab-backend/internal/observability"
	"github.com/yungbote/compoundlab-backend/internal/platform/archive"
	"github.com/yungbote/compoundlab-backend/internal/platform/logger"
)

var newArchiveStore = archive.New

type ArchiveBootstrapErrorCode string

const (
	ArchiveBootstrapErrorInvalidKind   ArchiveBootstrapErrorCode = "invalid_kind"
	ArchiveBootstrapErrorMissingBucket ArchiveBootstrapErrorCode = "missing_bucket"
	ArchiveBootstrapErrorMissingDir    ArchiveBootstrapErrorCode = "missing_dir"
	ArchiveBootstrapErrorConnectFailed ArchiveBootstrapErrorCode = "connect_failed"
)

type ArchiveBootstrapError struct {
	Code   ArchiveBootstrapErrorCode
	Kind   string
	Bucket string
	Cause  error
}

func (e *ArchiveBootstrapError) Error() string {
	if e == nil {
		return "report archive bootstrap failed"
	}
	return fmt.Sprintf(
		"report archive bootstrap failed (code=%s kind=%q bucket=%q): %v",
		e.Code,
		e.Kind,
		e.Bucket,
		e.Cause,
	)
}

func (e *ArchiveBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func archiveConfig(cfg Config) archive.Config {
	return archive.Config{
		Kind:            strings.ToLower(strings.TrimSpace(cfg.ReportArchive)),
		Bucket:          strings.TrimSpace(cfg.ReportBucket),
		Prefix:          cfg.ReportPrefix,
		Region:          cfg.S3Region,
		Endpoint:        strings.TrimSpace(cfg.S3Endpoint),
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretAccessKey,
		PathStyle:       cfg.S3PathStyle,
		Dir:             strings.TrimSpace(cfg.ReportDir),
	}
}

// resolveArchive returns nil when archiving is off. A misconfigured archive
// fails startup rather than silently dropping reports.
func resolveArchive(ctx context.Context, log *logger.Logger, cfg Config, metrics *observability.Metrics) (archive.Store, error) {
	acfg := archiveConfig(cfg)
	if err := checkArchiveConfig(acfg); err != nil {
		metrics.ObserveExternalCall("archive", "bootstrap", string(archiveBootstrapErrorCode(err)), 0)
		log.Error(
			"Report archive selection failed",
			"kind", acfg.Kind,
			"bucket", acfg.Bucket,
			"error_code", archiveBootstrapErrorCode(err),
			"error", err,
		)
		return nil, err
	}

	start := time.Now()
	store, err := newArchiveStore(ctx, log, acfg)
	if err != nil {
		classified := classifyArchiveBootstrapError(acfg, err)
		code := archiveBootstrapErrorCode(classified)
		metrics.ObserveExternalCall("archive", "bootstrap", string(code), time.Since(start))
		log.Error(
			"Report archive bootstrap failed",
			"kind", acfg.Kind,
			"bucket", acfg.Bucket,
			"endpoint", acfg.Endpoint,
			"error_code", code,
			"error", classified,
		)
		return nil, classified
	}
	if store == nil {
		log.Info("Report archive disabled")
		return nil, nil
	}
	metrics.ObserveExternalCall("archive", "bootstrap", "ok", time.Since(start))
	log.Info("Report archive ready", "kind", store.Kind(), "bucket", acfg.Bucket, "prefix", acfg.Prefix)
	return instrumentArchive(store, metrics), nil
}

func checkArchiveConfig(acfg archive.Config) error {
	switch acfg.Kind {
	case archive.KindNone, "none", "off":
		return nil
	case archive.KindGCS, archive.KindS3:
		if acfg.Bucket == "" {
			return &ArchiveBootstrapError{
				Code:  ArchiveBootstrapErrorMissingBucket,
				Kind:  acfg.Kind,
				Cause: errors.New("REPORT_BUCKET is required"),
			}
		}
		return nil
	case archive.KindLocal:
		if acfg.Dir == "" {
			return &ArchiveBootstrapError{
				Code:  ArchiveBootstrapErrorMissingDir,
				Kind:  acfg.Kind,
				Cause: errors.New("REPORT_DIR is required"),
			}
		}
		return nil
	default:
		return &ArchiveBootstrapError{
			Code:   ArchiveBootstrapErrorInvalidKind,
			Kind:   acfg.Kind,
			Bucket: acfg.Bucket,
			Cause:  fmt.Errorf("unsupported report archive %q", acfg.Kind),
		}
	}
}

func classifyArchiveBootstrapError(acfg archive.Config, err error) error {
	var bootstrapErr *ArchiveBootstrapError
	if errors.As(err, &bootstrapErr) {
		return err
	}
	return &ArchiveBootstrapError{
		Code:   ArchiveBootstrapErrorConnectFailed,
		Kind:   acfg.Kind,
		Bucket: acfg.Bucket,
		Cause:  err,
	}
}

func archiveBootstrapErrorCode(err error) ArchiveBootstrapErrorCode {
	var bootstrapErr *ArchiveBootstrapError
	if errors.As(err, &bootstrapErr) {
		if bootstrapErr.Code != "" {
			return bootstrapErr.Code
		}
	}
	return ArchiveBootstrapErrorConnectFailed
}
