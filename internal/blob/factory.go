package blob

import (
	"context"
	"fmt"

	fsstore "giftmatch/internal/infra/blob/fs"
	memorystore "giftmatch/internal/infra/blob/memory"
	s3store "giftmatch/internal/infra/blob/s3"
)

// S3Config re-exports the S3 driver configuration.
type S3Config = s3store.Config

// Options selects and configures a blob backend. The zero value opens a
// filesystem store under fs.DefaultRoot.
type Options struct {
	Driver Driver
	FSRoot string
	S3     S3Config
}

// Open returns the Store named by opts.Driver.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case "", DriverFilesystem:
		return NewFilesystem(opts.FSRoot)
	case DriverS3:
		return NewS3(ctx, opts.S3)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", opts.Driver)
	}
}

// NewFilesystem returns a Store writing under root.
func NewFilesystem(root string) (Store, error) {
	store, err := fsstore.New(root)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// NewMemory returns an in-memory Store.
func NewMemory() Store { return memorystore.New() }

// NewS3 returns a Store on the configured bucket.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) {
	store, err := s3store.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// NewMockS3 returns an S3 Store backed by an in-memory transport, for tests
// outside the infra tree.
func NewMockS3(ctx context.Context) (Store, error) {
	store, _, err := s3store.NewMock(ctx)
	if err != nil {
		return nil, err
	}
	return store, nil
}
