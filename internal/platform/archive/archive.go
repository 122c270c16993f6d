// Package archive stores copies of generated reports in object storage.
package archive

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/compoundlab-backend/internal/platform/logger"
)

const (
	KindNone  = ""
	KindGCS   = "gcs"
	KindS3    = "s3"
	KindLocal = "local"
)

type Store interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
	Kind() string
}

type Config struct {
	Kind   string
	Bucket string
	Prefix string

	// S3 only.
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	PathStyle       bool

	// Local only.
	Dir string
}

// New returns the configured store, or nil when archiving is disabled.
func New(ctx context.Context, log *logger.Logger, cfg Config) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case KindNone, "none", "off":
		return nil, nil
	case KindGCS:
		return NewGCS(ctx, log, cfg)
	case KindS3:
		return NewS3(ctx, log, cfg)
	case KindLocal:
		return NewLocal(log, cfg)
	default:
		return nil, fmt.Errorf("unknown REPORT_ARCHIVE %q (want gcs, s3 or local)", cfg.Kind)
	}
}

func objectKey(prefix, key string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	key = strings.TrimLeft(key, "/")
	if prefix == "" {
		return key
	}
	return prefix + "/" + key
}
