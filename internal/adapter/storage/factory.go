package storage

import (
	"context"
	"fmt"

	"github.com/semmidev/backdrop/internal/config"
	"github.com/semmidev/backdrop/internal/domain"
)

// New builds the remote store selected by cfg.Type.
func New(ctx context.Context, cfg *config.RemoteConfig) (domain.RemoteStore, error) {
	var (
		store domain.RemoteStore
		err   error
	)

	switch cfg.Type {
	case "dropbox":
		store, err = NewDropbox(ctx, &cfg.Dropbox)
	case "s3":
		store, err = NewS3(ctx, &cfg.S3)
	case "minio":
		store, err = NewMinio(&cfg.Minio)
	case "gdrive":
		store, err = NewGDrive(ctx, &cfg.GDrive)
	case "local":
		store, err = NewLocal(cfg.Local.Path)
	default:
		return nil, fmt.Errorf("%w: unsupported remote type %q", domain.ErrConfiguration, cfg.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s storage: %w", cfg.Type, err)
	}

	return store, nil
}
