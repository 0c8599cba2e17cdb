package blob

import (
	"context"
	"fmt"

	"escala/internal/infra/blob/fs"
	memorystore "escala/internal/infra/blob/memory"
	infraS3 "escala/internal/infra/blob/s3"
)

// S3Config carries the bucket settings for the s3 driver.
type S3Config = infraS3.Config

// Config selects and configures a backend.
type Config struct {
	Driver Driver
	// FSRoot is the directory used by the fs driver.
	FSRoot string
	// PublicBaseURL prefixes the URLs the fs driver hands out.
	PublicBaseURL string
	S3            S3Config
}

// Open returns the backend named by cfg.Driver (fs when empty).
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", DriverFilesystem:
		return NewFilesystem(cfg.FSRoot, cfg.PublicBaseURL)
	case DriverS3:
		return NewS3(ctx, cfg.S3)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.Driver)
	}
}

// NewFilesystem returns a filesystem-backed Store rooted at root.
func NewFilesystem(root, publicBaseURL string) (Store, error) {
	return fs.New(root, publicBaseURL)
}

// NewMemory returns an in-memory Store.
func NewMemory() Store { return memorystore.New() }

// NewS3 returns an S3-backed Store.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) {
	return infraS3.New(ctx, cfg)
}

// NewMockS3 exposes the in-process fake bucket for cross-package tests.
func NewMockS3() Store { return infraS3.NewMock() }
