package blob

import (
	"context"
	"fmt"

	"github.com/vrsandeep/catalog-importer/internal/config"
)

// New opens the store selected by cfg.Driver.
func New(ctx context.Context, cfg config.StorageConfig) (Storage, error) {
	switch cfg.Driver {
	case "", "local":
		return NewLocalStore(cfg.Local.Root)
	case "s3":
		if cfg.S3.Bucket == "" {
			return nil, fmt.Errorf("storage.s3.bucket is required for the s3 driver")
		}
		client, err := NewS3Client(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewS3Store(client, cfg.S3.Bucket, cfg.S3.Prefix), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
