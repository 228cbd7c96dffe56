// Package s3 provides an S3 implementation of the blobstore.BlobStore interface.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("kb/dbpedia"),
//	    s3.WithRegion("us-east-1"),
//	)
//
//	res, err := trident.Push(ctx, kbDir, store)
//
// # Features
//
//   - Range reads for partial fetches
//   - Multipart uploads with CRC32C checksums
//   - Automatic pagination for listing
//   - Configurable prefix, so many KBs can share a bucket
package s3
