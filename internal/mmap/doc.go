// Package mmap provides memory-mapped access to table, marks and node files.
//
// Two kinds of mappings exist:
//
//   - Mapping: a read-only view of a finished file. Readers decode tables
//     straight out of the mapped bytes without copying.
//   - Writable: a read-write, growable mapping used while a file is being
//     appended to. Growing remaps the file; slices obtained before a call to
//     Grow must not be used afterwards.
//
// # Platform Support
//
//   - Unix (Linux, macOS, BSD): mmap(2), msync(2) and madvise(2)
//   - Windows: CreateFileMapping/MapViewOfFile (madvise is a no-op)
//
// # Thread Safety
//
// Mapping is safe for concurrent reads and Close is idempotent. Writable has
// a single owner.
package mmap
