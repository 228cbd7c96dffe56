// Package resource accounts for the process-wide resources of a knowledge base.
//
//   - Memory: bytes held by writable mappings and in-memory column buffers
//     (non-blocking, fail-fast)
//   - Concurrency: slots for parallel permutation builds and snapshot transfers
//   - IO: a token bucket that throttles snapshot uploads and downloads
//
// All methods are safe for concurrent use and nil-safe: a nil *Controller
// tracks nothing and limits nothing.
package resource
