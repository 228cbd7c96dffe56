// Package binenc implements the fixed-width and variable-length integer
// encodings used by table files, marks files and tree nodes.
//
// Fixed-width integers are big-endian. Two variable-length encodings exist:
//
//   - VLong: continuation-bit varint, 7 bits per byte, least significant
//     group first. The MSB of a byte is set when more bytes follow.
//   - VLong2: length-prefixed. The top 3 bits of the first byte hold the
//     number of extra bytes (0..7), the low 5 bits hold the most significant
//     value bits, followed by the extra bytes in big-endian order.
//
// All functions are pure. Callers are responsible for bounds; readers panic
// on short input just like slice indexing does.
package binenc
