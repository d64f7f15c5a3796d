package blob

import (
	"context"
	"fmt"
	"kittycore/internal/config"
	"kittycore/internal/infra/blob/fs"
	"kittycore/internal/infra/blob/memory"
	"kittycore/internal/infra/blob/s3"
)

// Open constructs the Store selected by cfg.Driver. An empty driver selects
// the filesystem.
func Open(ctx context.Context, cfg config.Blob) (Store, error) {
	switch Driver(cfg.Driver) {
	case "", DriverFilesystem:
		store, err := fs.New(cfg.FSRoot)
		if err != nil {
			return nil, err
		}
		return store, nil
	case DriverS3:
		store, err := s3.New(ctx, s3.Config{
			Region:          cfg.S3.Region,
			Bucket:          cfg.S3.Bucket,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			PathStyle:       cfg.S3.UsePathStyle,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	case DriverMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", cfg.Driver)
	}
}

// NewMockS3ForTests returns an S3 store whose client talks to an in-process
// fake endpoint.
func NewMockS3ForTests() Store {
	return s3.NewMockForTests()
}
