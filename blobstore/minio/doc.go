// Package minio provides a BlobStore backed by the MinIO client, for
// MinIO and other S3-compatible stores (Ceph, SeaweedFS, Garage) that do
// not need the AWS SDK.
//
// # Usage
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
//	    Secure: false,
//	})
//	if err != nil {
//	    return err
//	}
//
//	store := minioblob.NewStore(client, "kb-snapshots", "dbpedia/")
//	res, err := trident.Push(ctx, "./kb", store)
//
// Files are streamed through a pipe into PutObject, so large table files
// are uploaded without being buffered in memory.
package minio
