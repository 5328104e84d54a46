// Package archive stores pre-patch copies of definition documents.
package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"evalgo.org/dataflowmigrator/internal/domain"
	"evalgo.org/dataflowmigrator/internal/helpers"
)

// Kinds of archive backends
const (
	KindNone  = "none"
	KindFS    = "fs"
	KindMinio = "minio"
)

// Sink stores one document under key.
type Sink interface {
	Put(ctx context.Context, key string, data []byte) error
}

// Config selects and configures a backend.
type Config struct {
	Kind  string
	Dir   string
	Minio MinioConfig
}

// New returns the configured sink, or nil for KindNone.
func New(ctx context.Context, cfg Config) (Sink, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case "", KindNone:
		return nil, nil
	case KindFS:
		sink, err := NewFSSink(cfg.Dir)
		if err != nil {
			return nil, err
		}
		return sink, nil
	case KindMinio:
		sink, err := NewMinioSink(ctx, cfg.Minio)
		if err != nil {
			return nil, err
		}
		return sink, nil
	default:
		return nil, domain.NewValidationError("archive.kind", fmt.Sprintf("unknown archive kind %q", cfg.Kind))
	}
}

// FSSink writes documents below a directory.
type FSSink struct {
	dir string
}

// NewFSSink creates the directory if needed.
func NewFSSink(dir string) (*FSSink, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, domain.NewValidationError("archive.dir", "required for the fs archive")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	return &FSSink{dir: dir}, nil
}

// Put writes data to dir/key atomically.
func (s *FSSink) Put(_ context.Context, key string, data []byte) error {
	clean := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return fmt.Errorf("invalid archive key %q", key)
	}
	return helpers.WriteFileAtomic(filepath.Join(s.dir, clean), data, 0600)
}
