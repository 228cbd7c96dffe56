// Package fs provides filesystem abstractions for testability and fault injection.
//
// The package defines two key interfaces:
//
//   - [File]: an open file with read/write/sync capabilities
//   - [FileSystem]: filesystem operations (open, remove, rename, etc.)
//
// # Implementations
//
//   - [LocalFS]: production implementation using the os package
//   - [FaultyFS]: test utility that injects I/O errors per file name pattern
//
// Small metadata files of a knowledge base (marks, node index, manifest)
// go through this package. Bulk table data is written through memory
// mappings and does not.
//
// Filesystem operations take no context.Context: local syscalls cannot be
// interrupted. Remote transfers live in the blobstore package.
package fs
