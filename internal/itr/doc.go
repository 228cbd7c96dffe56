// Package itr defines the PairItr contract and the iterator algebra used to
// answer triple patterns.
//
// A PairItr walks the (Value1, Value2) pairs of one table, or of a merged
// view over several tables, in ascending order. Scan-like iterators also
// advance Key. The typical loop is
//
//	for it.HasNext() {
//		it.Next()
//		use(it.Key(), it.Value1(), it.Value2())
//	}
//
// HasNext is idempotent. Operations a variant cannot support return an
// *UnsupportedError (matching ErrUnsupported) instead of panicking; read
// accessors never fail. Decoding problems encountered while iterating are
// sticky and reported by Err.
//
// Table readers live in internal/tables, the cache-backed iterator in
// internal/cacheidx and the update-layer iterators in internal/diff. This
// package holds the combinators: arrays, merges, removals, reorderings,
// aggregated tables and full scans.
package itr
