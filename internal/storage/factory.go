package storage

import (
	"context"
	"fmt"

	"github.com/wouterc/sagsfiler/internal/config"
	"github.com/wouterc/sagsfiler/internal/storage/local"
	"github.com/wouterc/sagsfiler/internal/storage/s3"
)

// Open returns the Backend named by cfg.StorageBackend.
func Open(ctx context.Context, cfg *config.Config) (Backend, error) {
	switch cfg.StorageBackend {
	case "local":
		return local.New(local.Config{RootPath: cfg.LocalStoragePath, CreateDirs: true})
	case "s3":
		return s3.New(ctx, s3.Config{
			Endpoint:  cfg.S3Endpoint,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Region:    cfg.S3Region,
			UseSSL:    cfg.S3UseSSL,
		})
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
}
