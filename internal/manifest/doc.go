// Package manifest implements atomic manifest persistence for a knowledge base.
//
// # Overview
//
// The manifest is a snapshot of the KB state at a specific point in time:
// triple and term counts, per-permutation table statistics, tree settings
// and the ordered list of diff layers. Every diff layer commit writes a
// new manifest version.
//
// # Binary Format
//
//	Header (16 bytes):
//	  Magic    (4 bytes) - 0x54524944 ("TRID")
//	  Version  (4 bytes) - Format version (currently 1)
//	  Checksum (4 bytes) - CRC32-IEEE of payload
//	  Length   (4 bytes) - Payload length in bytes
//
// The payload layout is documented on Manifest.Marshal. Integers are
// little-endian and strings are length-prefixed (2-byte length + bytes).
//
// # Atomic Protocol
//
// Save follows a two-phase protocol:
//
//  1. Write the manifest to MANIFEST-NNNNNN.bin (where N is the version ID)
//  2. Atomically replace the CURRENT pointer file to reference it
//
// Both steps write a temporary sibling and rename it into place. Load reads
// CURRENT to find the active manifest, then loads that file.
package manifest
