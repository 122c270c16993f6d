package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/yungbote/compoundlab-backend/internal/platform/logger"
)

type localStore struct {
	log *logger.Logger
	dir string
}

func NewLocal(log *logger.Logger, cfg Config) (Store, error) {
	dir := strings.TrimSpace(cfg.Dir)
	if dir == "" {
		dir = strings.TrimSpace(cfg.Bucket)
	}
	if dir == "" {
		return nil, fmt.Errorf("local archive needs a directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	return &localStore{log: log.With("component", "LocalArchive"), dir: dir}, nil
}

func (s *localStore) Kind() string { return KindLocal }

func (s *localStore) Put(ctx context.Context, key, contentType string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := filepath.Join(s.dir, filepath.FromSlash(objectKey("", key)))
	rel, err := filepath.Rel(s.dir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("archive key %q escapes the archive directory", key)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
