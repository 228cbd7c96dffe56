// Package blobstore abstracts the object stores a knowledge base is
// published to and fetched from.
//
// A KB directory is immutable once built, apart from appended diff layers
// and the manifest. The snapshot package copies such a directory file by
// file into a BlobStore and back.
//
// # Built-in Implementations
//
//   - LocalStore: a local directory, reads are memory mapped
//   - MemoryStore: an in-memory map, for tests
//   - s3.Store: Amazon S3 with range reads and multipart uploads
//   - minio.Store: MinIO and other S3-compatible servers
//
// Implementations must be safe for concurrent use. Open returns an error
// matching ErrNotFound for missing blobs.
package blobstore
