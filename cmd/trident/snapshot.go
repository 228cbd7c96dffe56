package main

import (
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/cobra"

	"github.com/hupe1980/trident"
	"github.com/hupe1980/trident/blobstore"
	minioblob "github.com/hupe1980/trident/blobstore/minio"
	"github.com/hupe1980/trident/blobstore/s3"
	"github.com/hupe1980/trident/internal/config"
)

// openStore creates the blob store selected by the configuration.
func openStore(ctx context.Context, c config.BlobConfig) (blobstore.BlobStore, error) {
	switch c.Backend {
	case config.BackendLocal:
		return blobstore.NewLocalStore(c.Path), nil
	case config.BackendS3:
		var opts []s3.Option
		if c.Prefix != "" {
			opts = append(opts, s3.WithPrefix(c.Prefix))
		}
		if c.Region != "" {
			opts = append(opts, s3.WithRegion(c.Region))
		}
		if c.Endpoint != "" {
			opts = append(opts, s3.WithEndpoint(c.Endpoint))
		}
		return s3.New(ctx, c.Bucket, opts...)
	case config.BackendMinio:
		client, err := minio.New(c.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(c.AccessKey, c.SecretKey, ""),
			Secure: c.UseSSL,
			Region: c.Region,
		})
		if err != nil {
			return nil, fmt.Errorf("minio client: %w", err)
		}
		return minioblob.NewStore(client, c.Bucket, c.Prefix), nil
	default:
		return nil, fmt.Errorf("unknown blob backend %q", c.Backend)
	}
}

func newPushCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "push",
		Short: "Publish the knowledge base to the configured blob store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore(cmd.Context(), a.cfg.Blob)
			if err != nil {
				return err
			}
			res, err := trident.Push(cmd.Context(), a.cfg.Dir, store, a.options()...)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "pushed %d files (%d bytes)\n", res.Files, res.Bytes)
			return nil
		},
	}
}

func newPullCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "pull",
		Short: "Restore the knowledge base from the configured blob store",
		Long:  "Download the snapshot in the configured blob store into the knowledge base directory, which must be empty or missing.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore(cmd.Context(), a.cfg.Blob)
			if err != nil {
				return err
			}
			res, err := trident.Pull(cmd.Context(), store, a.cfg.Dir, a.options()...)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "pulled %d files (%d bytes)\n", res.Files, res.Bytes)
			return nil
		},
	}
}
