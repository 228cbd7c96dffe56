package trident

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/trident/blobstore"
	"github.com/hupe1980/trident/internal/manifest"
	"github.com/hupe1980/trident/internal/resource"
	"github.com/hupe1980/trident/internal/snapshot"
)

var (
	// ErrNoSnapshot is returned by Pull when the store holds no snapshot.
	ErrNoSnapshot = snapshot.ErrNoSnapshot

	// ErrChecksum is returned by Pull when a downloaded file does not match
	// the snapshot index.
	ErrChecksum = snapshot.ErrChecksum
)

// TransferResult summarizes a Push or Pull.
type TransferResult struct {
	Files int
	Bytes int64
}

func transferOptions(o options, component string) snapshot.Options {
	return snapshot.Options{
		Resources: resource.NewController(resource.Config{
			MaxBackgroundWorkers: int64(o.transferWorkers),
			IOLimitBytesPerSec:   o.ioLimit,
		}),
		Concurrency: o.transferWorkers,
		Logger:      o.logger.WithComponent(component).Logger,
	}
}

// Push publishes the knowledge base in dir to store. The knowledge base
// must not be updated while it is pushed.
//
// Example:
//
//	store, _ := s3.New(ctx, "my-bucket", s3.WithPrefix("kb/v1"))
//	res, err := trident.Push(ctx, "./kb", store, trident.WithIOLimit(64<<20))
func Push(ctx context.Context, dir string, store blobstore.BlobStore, optFns ...Option) (*TransferResult, error) {
	o := applyOptions(optFns)

	res, err := push(ctx, dir, store, o)
	if err != nil {
		o.logger.LogPush(ctx, dir, 0, 0, err)
		return nil, translateError(err)
	}
	o.logger.LogPush(ctx, dir, res.Files, res.Bytes, nil)
	return res, nil
}

func push(ctx context.Context, dir string, store blobstore.BlobStore, o options) (*TransferResult, error) {
	if _, err := manifest.NewStore(o.fs, dir).Load(); err != nil {
		return nil, err
	}
	idx, err := snapshot.Push(ctx, dir, store, transferOptions(o, "push"))
	if err != nil {
		return nil, err
	}
	return &TransferResult{Files: len(idx.Files), Bytes: idx.Bytes()}, nil
}

// Pull restores the knowledge base published in store into dir, which
// must be empty or missing. Every file is verified against the checksum
// recorded by Push.
func Pull(ctx context.Context, store blobstore.BlobStore, dir string, optFns ...Option) (*TransferResult, error) {
	o := applyOptions(optFns)

	res, err := pull(ctx, store, dir, o)
	if err != nil {
		o.logger.LogPull(ctx, dir, 0, 0, err)
		return nil, translateError(err)
	}
	o.logger.LogPull(ctx, dir, res.Files, res.Bytes, nil)
	return res, nil
}

func pull(ctx context.Context, store blobstore.BlobStore, dir string, o options) (*TransferResult, error) {
	idx, err := snapshot.Pull(ctx, store, dir, transferOptions(o, "pull"))
	if err != nil {
		return nil, err
	}
	if _, err := manifest.NewStore(o.fs, dir).Load(); err != nil {
		if errors.Is(err, manifest.ErrNotFound) {
			return nil, fmt.Errorf("%w: snapshot holds no manifest", ErrCorrupt)
		}
		return nil, err
	}
	return &TransferResult{Files: len(idx.Files), Bytes: idx.Bytes()}, nil
}
