package trident

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/trident/internal/cacheidx"
	"github.com/hupe1980/trident/internal/diff"
	"github.com/hupe1980/trident/internal/itr"
	"github.com/hupe1980/trident/internal/manifest"
	"github.com/hupe1980/trident/internal/perm"
	"github.com/hupe1980/trident/internal/tables"
	"github.com/hupe1980/trident/internal/tree"
)

// Counters reports how a Querier answered its lookups.
type Counters struct {
	// Aggregated and NotAggregated count the tables opened by layout.
	Aggregated    int64
	NotAggregated int64
	// Cached counts tables served from their reverse through the cache,
	// Reversed those re-sorted on every access.
	Cached   int64
	Reversed int64
	Scans    int64
	// Perms counts the iterators requested per permutation.
	Perms [perm.Count]int64
}

// Querier builds iterators over one state of a knowledge base: its tables
// plus the update layers present when the querier was created.
//
// A Querier is not safe for concurrent use. Every iterator it returns must
// be given back with Release.
type Querier struct {
	kb    *KB
	m     *manifest.Manifest
	diffs []diff.Index

	// last term looked up in the tree
	hasLast    bool
	lastKey    int64
	lastFound  bool
	lastCoords tree.Coordinates

	src      scanSource
	openers  [perm.Count]*aggrOpener
	loaders  [perm.Count]*reverseLoader
	counters Counters
}

func (kb *KB) newQuerier(m *manifest.Manifest, diffs []diff.Index) *Querier {
	q := &Querier{kb: kb, m: m, diffs: snapshotDiffs(diffs)}
	q.src = scanSource{q}
	// aggregated POS and PSO rows point into OPS and SPO
	if kb.storages[perm.OPS] != nil {
		q.openers[perm.POS] = &aggrOpener{q: q, src: perm.OPS}
	}
	if kb.storages[perm.SPO] != nil {
		q.openers[perm.PSO] = &aggrOpener{q: q, src: perm.SPO}
	}
	for p := range q.loaders {
		if kb.caches[p] != nil {
			q.loaders[p] = &reverseLoader{q: q, p: p}
		}
	}
	return q
}

var (
	aggrPool          = sync.Pool{New: func() any { return &itr.AggrItr{} }}
	scanPool          = sync.Pool{New: func() any { return &itr.ScanItr{} }}
	cachePool         = sync.Pool{New: func() any { return &cacheidx.CacheItr{} }}
	compositePool     = sync.Pool{New: func() any { return &itr.CompositeItr{} }}
	compositeScanPool = sync.Pool{New: func() any { return &itr.CompositeScanItr{} }}
	rmPool            = sync.Pool{New: func() any { return &itr.RmItr{} }}
)

func putPool(it itr.PairItr) {
	switch v := it.(type) {
	case *itr.AggrItr:
		aggrPool.Put(v)
	case *itr.ScanItr:
		scanPool.Put(v)
	case *cacheidx.CacheItr:
		cachePool.Put(v)
	case *itr.CompositeItr:
		compositePool.Put(v)
	case *itr.CompositeScanItr:
		compositeScanPool.Put(v)
	case *itr.RmItr:
		rmPool.Put(v)
	}
}

// lookup returns the coordinates of key. The last result is memoized.
func (q *Querier) lookup(key int64) (tree.Coordinates, bool, error) {
	if q.hasLast && q.lastKey == key {
		return q.lastCoords, q.lastFound, nil
	}
	c, ok, err := q.kb.coords(key)
	if err != nil {
		return c, false, err
	}
	q.hasLast, q.lastKey, q.lastCoords, q.lastFound = true, key, c, ok
	return c, ok, nil
}

// Iterator returns the triples matching (s, p, o) in the order of
// permutation idx. Negative terms are unbound. The positions bound must
// lead the permutation.
//
// Example:
//
//	it, err := q.Iterator(trident.POS, trident.Any, 7, trident.Any)
//	if err != nil {
//	    return err
//	}
//	defer q.Release(it)
//	for it.HasNext() {
//	    it.Next()
//	    fmt.Println(it.Value1(), it.Value2()) // object, subject
//	}
func (q *Querier) Iterator(idx int, s, p, o int64) (PairItr, error) {
	if !perm.Valid(idx) {
		return nil, ErrInvalidPermutation
	}
	first, second, third := perm.Permute(idx, s, p, o)
	return q.Permuted(idx, first, second, third, true)
}

// Permuted is Iterator with the terms given in the order of idx. Without
// constrain the iterator is positioned at (second, third) but not limited
// to it, which lets merge joins move it forward.
func (q *Querier) Permuted(idx int, first, second, third int64, constrain bool) (PairItr, error) {
	start := time.Now()
	it, err := q.permuted(idx, first, second, third, constrain)
	q.kb.opts.metricsCollector.RecordQuery(idx, time.Since(start), err)
	if err != nil {
		err = translateError(err)
		if perm.Valid(idx) {
			s, p, o := perm.Unpermute(idx, first, second, third)
			q.kb.opts.logger.LogQuery(context.Background(), perm.Name(idx), s, p, o, "", err)
		}
		return nil, err
	}
	q.kb.opts.metricsCollector.RecordIterator(it.Type().String())
	return it, nil
}

func (q *Querier) permuted(idx int, first, second, third int64, constrain bool) (itr.PairItr, error) {
	if !perm.Valid(idx) {
		return nil, ErrInvalidPermutation
	}
	if (first < 0 && (second >= 0 || third >= 0)) || (second < 0 && third >= 0) {
		s, p, o := perm.Unpermute(idx, first, second, third)
		return nil, &ErrInvalidPattern{Perm: idx, S: s, P: p, O: o}
	}
	q.counters.Perms[idx]++

	out, err := q.base(idx, first, second, third, constrain)
	if err != nil {
		return nil, err
	}
	if len(q.diffs) == 0 {
		return out, nil
	}
	return q.layer(idx, first, second, third, out)
}

// base returns the iterator over the knowledge base tables only.
func (q *Querier) base(idx int, first, second, third int64, constrain bool) (itr.PairItr, error) {
	if first < 0 {
		q.counters.Scans++
		if rev := perm.Reverse(idx); q.kb.storages[idx] == nil && q.kb.caches[idx] == nil && q.kb.storages[rev] != nil {
			return q.reorderedScan(rev, idx)
		}
		return q.newScan(idx)
	}
	c, ok, err := q.lookup(first)
	if err != nil {
		return nil, err
	}
	if !ok {
		return itr.NewEmpty(), nil
	}
	return q.get(idx, c, first, second, third, constrain)
}

func (q *Querier) newScan(idx int) (itr.PairItr, error) {
	s := scanPool.Get().(*itr.ScanItr)
	s.SetOwnership(itr.OwnedByPool)
	if err := s.Init(q.src, idx, perm.Reverse(idx)); err != nil {
		scanPool.Put(s)
		return nil, err
	}
	return s, nil
}

// reorderedScan materializes a scan of from in the order of to.
func (q *Querier) reorderedScan(from, to int) (itr.PairItr, error) {
	helper, err := q.newScan(from)
	if err != nil {
		return nil, err
	}
	defer q.Release(helper)
	q.counters.Reversed++
	return itr.NewReOrder(helper, from, to)
}

// get opens the table of key in idx, or serves it from the reverse
// permutation when idx is not stored.
func (q *Querier) get(idx int, c tree.Coordinates, key, v1, v2 int64, constrain bool) (itr.PairItr, error) {
	c1, c2 := v1, v2
	if !constrain {
		c1, c2 = itr.NoConstraint, itr.NoConstraint
	}

	var (
		it  itr.PairItr
		err error
	)
	if t, ok := c.Get(idx); ok {
		it, err = q.openTable(idx, key, t, c1, c2)
	} else if c.Exists(perm.Reverse(idx)) {
		it, err = q.openReversed(idx, key, c, c1, c2)
	} else {
		return itr.NewEmpty(), nil
	}
	if err != nil {
		return nil, err
	}

	if !constrain && v1 >= 0 {
		if err := it.MoveTo(v1, max(v2, 0)); err != nil {
			q.Release(it)
			return nil, err
		}
	}
	return it, nil
}

func (q *Querier) openTable(idx int, key int64, t tree.Table, c1, c2 int64) (itr.PairItr, error) {
	st := q.kb.storages[idx]
	if tables.Strategy(t.Strategy).Aggregated() && q.openers[idx] != nil {
		q.counters.Aggregated++
		main, err := st.Open(int(t.File), t.Mark, key, c1, itr.NoConstraint)
		if err != nil {
			return nil, err
		}
		a := aggrPool.Get().(*itr.AggrItr)
		a.SetOwnership(itr.OwnedByPool)
		a.Init(key, main, q.openers[idx])
		a.SetConstraint1(c1)
		a.SetConstraint2(c2)
		return a, nil
	}
	q.counters.NotAggregated++
	return st.Open(int(t.File), t.Mark, key, c1, c2)
}

func (q *Querier) openReversed(idx int, key int64, c tree.Coordinates, c1, c2 int64) (itr.PairItr, error) {
	rev := perm.Reverse(idx)
	t, _ := c.Get(rev)

	if ci := q.kb.caches[idx]; ci != nil {
		q.counters.Cached++
		it := cachePool.Get().(*cacheidx.CacheItr)
		it.SetOwnership(itr.OwnedByPool)
		if err := it.Init(ci, q.loaders[idx], key, uint64(t.NElements), c1, c2); err != nil {
			cachePool.Put(it)
			return nil, err
		}
		q.kb.opts.metricsCollector.RecordCacheIdx(!it.LoadedFromDisk())
		return it, nil
	}

	q.counters.Reversed++
	src, err := q.openTable(rev, key, t, itr.NoConstraint, itr.NoConstraint)
	if err != nil {
		return nil, err
	}
	defer q.Release(src)
	return itr.NewReversed(key, src, c1, c2)
}

// layer applies the update layers in order: additions are merged with the
// iterator built so far, deletions are subtracted from it.
func (q *Querier) layer(idx int, first, second, third int64, out itr.PairItr) (itr.PairItr, error) {
	var (
		adds []itr.PairItr
		addN []int64
	)
	for _, d := range q.diffs {
		it, n, err := q.diffIterator(d, idx, first, second, third)
		if err != nil {
			q.Release(out)
			for _, a := range adds {
				q.Release(a)
			}
			return nil, err
		}
		if !it.HasNext() {
			q.Release(it)
			continue
		}

		if d.Type() == diff.Deletion {
			main := q.merge(idx, first, out, adds, addN)
			adds, addN = nil, nil
			r := rmPool.Get().(*itr.RmItr)
			r.SetOwnership(itr.OwnedByPool)
			r.Init(main, it, n)
			out = r
			continue
		}

		// With the second term bound a layer adds a first value only if
		// nothing below holds it yet.
		if second >= 0 && (out.HasNext() || anyHasNext(adds)) {
			n = 0
		}
		adds = append(adds, it)
		addN = append(addN, n)
	}
	if len(adds) == 0 {
		return out, nil
	}
	return q.merge(idx, first, out, adds, addN), nil
}

func anyHasNext(its []itr.PairItr) bool {
	for _, it := range its {
		if it.HasNext() {
			return true
		}
	}
	return false
}

func (q *Querier) diffIterator(d diff.Index, idx int, first, second, third int64) (itr.PairItr, int64, error) {
	if first >= 0 {
		return d.Iterator(idx, first, second, third)
	}
	it, err := q.scanDiff(d, idx)
	return it, 0, err
}

func (q *Querier) scanDiff(d diff.Index, idx int) (itr.PairItr, error) {
	return d.Scan(idx)
}

// merge combines base with the additions adds, dropping base when it is
// exhausted. addN holds the first values each addition contributes.
func (q *Querier) merge(idx int, first int64, base itr.PairItr, adds []itr.PairItr, addN []int64) itr.PairItr {
	if len(adds) == 0 {
		return base
	}
	children := make([]itr.PairItr, 0, len(adds)+1)
	var nFirst int64
	for _, n := range addN {
		nFirst += n
	}
	if base.HasNext() {
		children = append(children, base)
	} else {
		q.Release(base)
		nFirst -= addN[0]
	}
	children = append(children, adds...)
	if len(children) == 1 {
		return children[0]
	}

	if first >= 0 {
		c := compositePool.Get().(*itr.CompositeItr)
		c.SetOwnership(itr.OwnedByPool)
		c.Init(first, children, nFirst)
		return c
	}
	c := compositeScanPool.Get().(*itr.CompositeScanItr)
	c.SetOwnership(itr.OwnedByPool)
	c.Init(children, uint64(q.InputSize()), uint64(q.NFirstTablesPerPartition(idx)))
	return c
}

// Release gives it back. Children of composite iterators are released
// with their parent.
func (q *Querier) Release(it PairItr) {
	if it == nil {
		return
	}
	if t, ok := it.(*tables.Table); ok {
		if !t.Release() {
			q.doubleRelease(it)
		}
		return
	}
	if r, ok := it.(itr.Releaser); ok && !r.MarkReleased() {
		q.doubleRelease(it)
		return
	}
	if p, ok := it.(itr.Parent); ok {
		for _, ch := range p.Children() {
			q.Release(ch)
		}
	}
	it.Clear()
	if it.Ownership() == itr.OwnedByPool {
		putPool(it)
	}
}

func (q *Querier) doubleRelease(it itr.PairItr) {
	q.kb.opts.logger.LogRelease(context.Background(), it.Type().String(), itr.ErrDoubleRelease)
}

// Exists reports whether a triple matches (s, p, o).
func (q *Querier) Exists(s, p, o int64) (bool, error) {
	it, err := q.Iterator(q.Index(s, p, o), s, p, o)
	if err != nil {
		return false, err
	}
	defer q.Release(it)
	return it.HasNext(), it.Err()
}

// IsEmpty reports whether no triple matches (s, p, o).
func (q *Querier) IsEmpty(s, p, o int64) (bool, error) {
	if s < 0 && p < 0 && o < 0 {
		return q.InputSize() == 0, nil
	}
	ok, err := q.Exists(s, p, o)
	return !ok, err
}

// Index returns the permutation best suited to (s, p, o): bound terms
// lead, and a Join position follows them so that the iterator is sorted
// on it. The permutation may not be stored; it is then served from its
// reverse.
func (q *Querier) Index(s, p, o int64) int {
	if s >= 0 {
		if p >= 0 || (p == Join && o < 0) {
			return perm.SPO
		}
		return perm.SOP
	}
	if o >= 0 {
		if p >= 0 || p == Join {
			return perm.OPS
		}
		return perm.OSP
	}
	if p >= 0 {
		if o >= 0 || o == Join {
			return perm.POS
		}
		return perm.PSO
	}

	// no constant: either a scan or a join on some position
	switch {
	case s == Join:
		if p != Any || o == Any {
			return perm.SPO
		}
		return perm.SOP
	case o == Join:
		if p != Any || s == Any {
			return perm.OPS
		}
		return perm.OSP
	case p == Join:
		if o != Any || s == Any {
			return perm.POS
		}
		return perm.PSO
	}
	return perm.SPO
}

func countUnbound(s, p, o int64) int {
	n := 0
	for _, v := range [3]int64{s, p, o} {
		if v < 0 {
			n++
		}
	}
	return n
}

// keyCard returns the number of pairs of key in idx across the base and
// the update layers.
func (q *Querier) keyCard(idx int, key int64) (int64, error) {
	c, ok, err := q.lookup(key)
	if err != nil {
		return 0, err
	}
	var n int64
	if ok {
		if c.Exists(idx) {
			n = c.NElements(idx)
		} else {
			n = c.NElements(perm.Reverse(idx))
		}
	}
	for _, d := range q.diffs {
		if d.Type() == diff.Addition {
			n += d.Card(idx, key)
		} else {
			n -= d.Card(idx, key)
		}
	}
	return n, nil
}

// leadingKey returns the term leading idx in (s, p, o).
func leadingKey(idx int, s, p, o int64) int64 {
	first, _, _ := perm.Permute(idx, s, p, o)
	return first
}

// Card returns the number of triples matching (s, p, o).
func (q *Querier) Card(s, p, o int64) (int64, error) {
	unbound := countUnbound(s, p, o)
	if unbound == 3 {
		return q.InputSize(), nil
	}
	idx := q.Index(s, p, o)
	if unbound == 2 {
		return q.keyCard(idx, leadingKey(idx, s, p, o))
	}

	it, err := q.Iterator(idx, s, p, o)
	if err != nil {
		return 0, err
	}
	defer q.Release(it)
	if !it.HasNext() {
		return 0, it.Err()
	}
	if unbound == 0 {
		return 1, nil
	}
	n, err := it.Cardinality()
	return int64(n), translateError(err)
}

// CardAt returns the number of distinct values at position pos (0 for
// the subject, 1 for the predicate, 2 for the object) among the triples
// matching (s, p, o). At least one term must be bound.
func (q *Querier) CardAt(s, p, o int64, pos int) (int64, error) {
	unbound := countUnbound(s, p, o)
	if unbound == 3 {
		return 0, &ErrInvalidPattern{Perm: perm.SPO, S: s, P: p, O: o}
	}
	idx := q.Index(s, p, o)
	it, err := q.Iterator(idx, s, p, o)
	if err != nil {
		return 0, err
	}
	if !it.HasNext() {
		err := it.Err()
		q.Release(it)
		return 0, translateError(err)
	}

	switch unbound {
	case 0:
		q.Release(it)
		return 1, nil
	case 1:
		defer q.Release(it)
		n, err := it.Cardinality()
		return int64(n), translateError(err)
	}

	// two unbound: count the first column of the permutation led by the
	// bound term and followed by pos
	idx2 := perm.SPO
	switch {
	case s >= 0:
		if pos == 2 {
			idx2 = perm.SOP
		}
	case p >= 0:
		if pos == 0 {
			idx2 = perm.PSO
		} else {
			idx2 = perm.POS
		}
	default:
		if pos == 0 {
			idx2 = perm.OSP
		} else {
			idx2 = perm.OPS
		}
	}
	if idx2 != idx {
		q.Release(it)
		if it, err = q.Iterator(idx2, s, p, o); err != nil {
			return 0, err
		}
	}
	defer q.Release(it)
	if err := it.IgnoreSecondColumn(); err != nil {
		return 0, translateError(err)
	}
	n, err := it.Cardinality()
	return int64(n), translateError(err)
}

// EstCard estimates the number of triples matching (s, p, o) without
// iterating.
func (q *Querier) EstCard(s, p, o int64) (int64, error) {
	switch countUnbound(s, p, o) {
	case 3:
		return q.InputSize(), nil
	case 0:
		return 1, nil
	case 1:
		it, err := q.Iterator(q.Index(s, p, o), s, p, o)
		if err != nil {
			return 0, err
		}
		defer q.Release(it)
		return int64(it.EstCardinality()), nil
	}
	idx := q.Index(s, p, o)
	return q.keyCard(idx, leadingKey(idx, s, p, o))
}

// CardOnIndex returns the number of triples matching (s, p, o) in idx.
// With skipLast the last unbound position is ignored: the result is the
// number of distinct values of the remaining positions.
func (q *Querier) CardOnIndex(idx int, s, p, o int64, skipLast bool) (int64, error) {
	if !perm.Valid(idx) {
		return 0, ErrInvalidPermutation
	}
	key := leadingKey(idx, s, p, o)
	if key < 0 && !skipLast {
		return q.InputSize(), nil
	}

	it, err := q.Iterator(idx, s, p, o)
	if err != nil {
		return 0, err
	}
	defer q.Release(it)
	if !it.HasNext() {
		return 0, it.Err()
	}

	switch unbound := countUnbound(s, p, o); {
	case unbound >= 2 && skipLast:
		if err := it.IgnoreSecondColumn(); err != nil {
			return 0, translateError(err)
		}
		n, err := it.Cardinality()
		return int64(n), translateError(err)
	case unbound >= 2:
		return q.keyCard(idx, key)
	case unbound == 1 && skipLast:
		return 1, nil
	case unbound == 1:
		n, err := it.Cardinality()
		return int64(n), translateError(err)
	}
	return 1, nil
}

// EstCardOnIndex estimates CardOnIndex without skipping.
func (q *Querier) EstCardOnIndex(idx int, s, p, o int64) (int64, error) {
	if !perm.Valid(idx) {
		return 0, ErrInvalidPermutation
	}
	key, key2, _ := perm.Permute(idx, s, p, o)
	if key < 0 {
		return q.InputSize(), nil
	}
	switch unbound := countUnbound(s, p, o); {
	case unbound == 0:
		return 1, nil
	case unbound == 1 && key2 >= 0:
		it, err := q.Iterator(idx, s, p, o)
		if err != nil {
			return 0, err
		}
		defer q.Release(it)
		return int64(it.EstCardinality()), nil
	}
	return q.keyCard(idx, key)
}

// AggregatedGroups returns the number of aggregated groups an iterator
// over (s, p, o) in idx walks, or 0 if the table of the predicate is not
// aggregated. Only POS and PSO store aggregated tables.
func (q *Querier) AggregatedGroups(idx int, s, p, o int64) (int64, error) {
	if (idx != perm.POS && idx != perm.PSO) || p < 0 {
		return 0, nil
	}
	c, ok, err := q.lookup(p)
	if err != nil || !ok {
		return 0, err
	}
	t, ok := c.Get(idx)
	if !ok || !tables.Strategy(t.Strategy).Aggregated() {
		return 0, nil
	}
	if (idx == perm.PSO && s >= 0) || (idx == perm.POS && o >= 0) {
		return 1, nil
	}
	main, err := q.kb.storages[idx].Open(int(t.File), t.Mark, p, itr.NoConstraint, itr.NoConstraint)
	if err != nil {
		return 0, err
	}
	defer q.Release(main)
	n, err := main.Cardinality()
	return int64(n), err
}

// ReverseCard returns the number of pairs an iterator over (s, p, o) in
// idx re-sorts from the reverse permutation, or 0 if idx is stored for
// the leading term. An unbound leading term yields the input size.
func (q *Querier) ReverseCard(idx int, s, p, o int64) (int64, error) {
	if !perm.Valid(idx) {
		return 0, ErrInvalidPermutation
	}
	if idx < perm.SOP {
		return 0, nil
	}
	key := leadingKey(idx, s, p, o)
	if key < 0 {
		return q.m.NTriples, nil
	}
	c, ok, err := q.lookup(key)
	if err != nil || !ok {
		return 0, err
	}
	if rev := perm.Reverse(idx); !c.Exists(idx) && c.Exists(rev) {
		return c.NElements(rev), nil
	}
	return 0, nil
}

// TermList lists the keys of permutation idx with the number of pairs of
// each, update layers included. Key returns the term and Count its pairs.
func (q *Querier) TermList(idx int) (PairItr, error) {
	if !perm.Valid(idx) {
		return nil, ErrInvalidPermutation
	}
	out, err := q.kbTermList(idx, false)
	if err != nil {
		return nil, translateError(err)
	}

	var adds []itr.PairItr
	flush := func() {
		if len(adds) > 0 {
			out = itr.NewCompositeTerm(append([]itr.PairItr{out}, adds...))
			adds = nil
		}
	}
	for _, d := range q.diffs {
		if d.NUniqueKeys(idx) == 0 && d.Type() == diff.Addition {
			continue
		}
		tl, err := d.TermList(idx)
		if err != nil {
			q.Release(out)
			for _, a := range adds {
				q.Release(a)
			}
			return nil, translateError(err)
		}
		if d.Type() == diff.Addition {
			adds = append(adds, tl)
			continue
		}
		flush()
		out = itr.NewRmCompositeTerm(out, tl)
	}
	flush()
	return out, nil
}

// kbTermList returns the key list of idx in the base tables. Unless
// enforce is set a permutation that is not stored lists the keys of its
// reverse, which are the same.
func (q *Querier) kbTermList(idx int, enforce bool) (itr.PairItr, error) {
	sp := idx
	if q.kb.storages[sp] == nil && !enforce {
		sp = perm.Reverse(idx)
	}
	st := q.kb.storages[sp]
	if st == nil {
		return itr.NewEmpty(), nil
	}
	return st.Terms(q.countFunc(sp))
}

// countFunc returns the pair count of a key in the stored permutation sp.
func (q *Querier) countFunc(sp int) func(int64) int64 {
	return func(key int64) int64 {
		c, ok, err := q.lookup(key)
		if err != nil || !ok {
			return 0
		}
		return c.NElements(sp)
	}
}

// ExistKey reports whether key leads at least one triple in idx.
func (q *Querier) ExistKey(idx int, key int64) (bool, error) {
	it, err := q.Permuted(idx, key, itr.NoConstraint, itr.NoConstraint, true)
	if err != nil {
		return false, err
	}
	defer q.Release(it)
	return it.HasNext(), it.Err()
}

// SummaryAddDiff scans in SPO order the triples the update layers add
// and later layers do not remove again. It returns nil when there are
// none.
func (q *Querier) SummaryAddDiff() (PairItr, error) {
	add, err := q.summaryDiff(perm.SPO, diff.Addition)
	if err != nil || add == nil {
		return nil, translateError(err)
	}
	rm, err := q.summaryDiff(perm.SPO, diff.Deletion)
	if err != nil {
		q.Release(add)
		return nil, translateError(err)
	}
	if rm == nil {
		return add, nil
	}
	return q.newRm(add, rm, 0), nil
}

// SummaryRmDiff is SummaryAddDiff for the removed triples.
func (q *Querier) SummaryRmDiff() (PairItr, error) {
	rm, err := q.summaryDiff(perm.SPO, diff.Deletion)
	if err != nil || rm == nil {
		return nil, translateError(err)
	}
	add, err := q.summaryDiff(perm.SPO, diff.Addition)
	if err != nil {
		q.Release(rm)
		return nil, translateError(err)
	}
	if add == nil {
		return rm, nil
	}
	return q.newRm(rm, add, 0), nil
}

// summaryDiff merges the scans of the layers of type typ. A layer of the
// other type removes its triples from what was merged before it.
func (q *Querier) summaryDiff(idx int, typ diff.Type) (itr.PairItr, error) {
	var (
		out     itr.PairItr
		size    int64
		nFirsts int64
	)
	for _, d := range q.diffs {
		if d.Size() == 0 {
			continue
		}
		if d.Type() != typ && out == nil {
			continue
		}
		sc, err := q.scanDiff(d, idx)
		if err != nil {
			q.Release(out)
			return nil, err
		}
		if d.Type() != typ {
			out = q.newRm(out, sc, 0)
			continue
		}
		size += d.Size()
		nFirsts += d.NFirstTables(idx)
		if out == nil {
			out = sc
			continue
		}
		c := compositeScanPool.Get().(*itr.CompositeScanItr)
		c.SetOwnership(itr.OwnedByPool)
		c.Init([]itr.PairItr{out, sc}, uint64(size), uint64(nFirsts))
		out = c
	}
	return out, nil
}

func (q *Querier) newRm(main, rm itr.PairItr, delNFirstTerms int64) itr.PairItr {
	r := rmPool.Get().(*itr.RmItr)
	r.SetOwnership(itr.OwnedByPool)
	r.Init(main, rm, delNFirstTerms)
	return r
}

// InputSize returns the number of triples, update layers included.
func (q *Querier) InputSize() int64 {
	n := q.m.NTriples
	for _, d := range q.diffs {
		if d.Type() == diff.Addition {
			n += d.Size()
		} else {
			n -= d.Size()
		}
	}
	return n
}

// NFirstTablesPerPartition returns the number of distinct (key, first
// value) pairs of idx, update layers included.
func (q *Querier) NFirstTablesPerPartition(idx int) int64 {
	if !perm.Valid(idx) {
		return 0
	}
	n := q.m.Perms[idx].NFirstTables
	for _, d := range q.diffs {
		if d.Type() == diff.Addition {
			n += d.UniqueNFirstTerms(idx)
		} else {
			n -= d.UniqueNFirstTerms(idx)
		}
	}
	return n
}

// Counters returns the lookups made since the last reset.
func (q *Querier) Counters() Counters { return q.counters }

// ResetCounters zeroes the counters.
func (q *Querier) ResetCounters() { q.counters = Counters{} }

// scanSource feeds the full scans of the base tables.
type scanSource struct{ q *Querier }

func (s scanSource) TermList(idx int) (itr.TermCursor, error) {
	st := s.q.kb.storages[idx]
	if st == nil {
		return nil, nil
	}
	t, err := st.Terms(s.q.countFunc(idx))
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s scanSource) OpenTable(idx int, e itr.TermEntry) (itr.PairItr, error) {
	t := tree.Table{File: e.File, Mark: e.Mark, Strategy: e.Strategy, NElements: e.NElements}
	return s.q.openTable(idx, e.Key, t, itr.NoConstraint, itr.NoConstraint)
}

func (s scanSource) OpenReversed(idx int, key int64) (itr.PairItr, error) {
	c, ok, err := s.q.lookup(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return itr.NewEmpty(), nil
	}
	return s.q.openReversed(idx, key, c, itr.NoConstraint, itr.NoConstraint)
}

func (s scanSource) Release(it itr.PairItr) { s.q.Release(it) }

func (s scanSource) InputSize() uint64 { return uint64(s.q.m.NTriples) }

func (s scanSource) NFirstTables(idx int) uint64 {
	return uint64(s.q.m.Perms[idx].NFirstTables)
}

// aggrOpener opens the table an aggregated POS or PSO row points to.
type aggrOpener struct {
	q   *Querier
	src int
}

func (a *aggrOpener) OpenSecond(coords, c1, c2 int64) (itr.PairItr, error) {
	file, mark := itr.UnpackCoordinates(coords)
	// the key of the pointed table is the group value, which AggrItr
	// tracks itself
	return a.q.kb.storages[a.src].Open(int(file), mark, 0, c1, c2)
}

func (a *aggrOpener) Release(it itr.PairItr) { a.q.Release(it) }

// reverseLoader fills the cache of a permutation that is not stored from
// the tables of its reverse.
type reverseLoader struct {
	q *Querier
	p int
}

func (l *reverseLoader) Load(key, from, to int64) ([]itr.Pair, error) {
	c, ok, err := l.q.lookup(key)
	if err != nil || !ok {
		return nil, err
	}
	rev := perm.Reverse(l.p)
	t, ok := c.Get(rev)
	if !ok {
		return nil, nil
	}
	src, err := l.q.openTable(rev, key, t, itr.NoConstraint, itr.NoConstraint)
	if err != nil {
		return nil, err
	}
	defer l.q.Release(src)
	pairs, err := itr.SwapPairs(src)
	if err != nil {
		return nil, err
	}
	lo := sort.Search(len(pairs), func(i int) bool { return pairs[i].V1 >= from })
	hi := sort.Search(len(pairs), func(i int) bool { return pairs[i].V1 >= to })
	return pairs[lo:hi], nil
}

// view adapts q to the base an update layer is built against.
func (q *Querier) view() diff.Base { return baseView{q} }

type baseView struct{ q *Querier }

func (b baseView) Exists(t perm.Triple) (bool, error) { return b.q.Exists(t.S, t.P, t.O) }

func (b baseView) Card(idx int, key int64) (int64, error) { return b.q.keyCard(idx, key) }

func (b baseView) CardPair(idx int, key, v1 int64) (int64, error) {
	it, err := b.q.permuted(idx, key, v1, itr.NoConstraint, true)
	if err != nil {
		return 0, err
	}
	defer b.q.Release(it)
	if !it.HasNext() {
		return 0, it.Err()
	}
	n, err := it.Cardinality()
	return int64(n), err
}
