// Package snapshot publishes a closed knowledge base directory to a
// blobstore.BlobStore and restores it.
//
// Every file is uploaded under its slash-separated path relative to the
// directory. The SNAPSHOT index, a JSON document listing each file with
// its size and xxh3 checksum, is written after all files, so readers never
// see a partially published snapshot. Pull verifies every file while it
// downloads.
//
// Transfers run in parallel and are throttled by the IO limit of the
// resource.Controller passed in Options.
package snapshot
