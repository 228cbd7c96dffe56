// Package files manages the numbered data files of one permutation.
//
// A Descriptor is an append-only file backed by a growable writable mapping.
// Offsets returned by Append and ReserveBytes stay valid for the lifetime of
// the file; growing remaps but never relocates data. A Manager owns the
// files "0", "1", ... of a directory, rolls over to a new file once the
// current one exceeds the configured maximum, and serves read-only views of
// finished files through lazily opened mappings.
package files
