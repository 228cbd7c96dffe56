// Package compress provides the block codecs used for tree nodes and the
// ZSTD spill files used while building large column tables.
//
// Block format: [uncompressed uint32 LE][compressed uint32 LE][payload].
// A compressed size of 0 marks a payload stored raw because compression did
// not pay off.
package compress
