package tables

import (
	"sort"

	"github.com/hupe1980/trident/internal/itr"
)

// TermItr lists the keys of a Storage in order together with the location
// of their tables.
type TermItr struct {
	itr.Base

	files [][]mark
	count func(int64) int64
	total uint64

	file, pos int // pos is the index of the next mark in files[file]
	cur       itr.TermEntry
	cached    int64

	mFile, mPos int
	mCur        itr.TermEntry
	mCached     int64
}

func (t *TermItr) init(files [][]mark, count func(int64) int64) {
	t.InitBase()
	t.files, t.count = files, count
	t.total = 0
	for _, ms := range files {
		t.total += uint64(len(ms))
	}
	t.file, t.pos, t.cached = 0, 0, -1
}

func (t *TermItr) Type() itr.Type { return itr.TypeTerm }
func (t *TermItr) Value1() int64  { return 0 }
func (t *TermItr) Value2() int64  { return 0 }

// Entry returns the location of the current key's table.
func (t *TermItr) Entry() itr.TermEntry {
	e := t.cur
	e.NElements = t.Count()
	return e
}

// Count is the number of pairs of the current key.
func (t *TermItr) Count() int64 {
	if t.count == nil {
		return 0
	}
	if t.cached < 0 {
		t.cached = t.count(t.Key())
	}
	return t.cached
}

func (t *TermItr) HasNext() bool {
	for t.file < len(t.files) {
		if t.pos < len(t.files[t.file]) {
			return true
		}
		t.file++
		t.pos = 0
	}
	return false
}

func (t *TermItr) Next() {
	m := t.files[t.file][t.pos]
	t.cur = itr.TermEntry{Key: m.key, File: uint16(t.file), Mark: int64(t.pos), Strategy: byte(m.strat)}
	t.SetKey(m.key)
	t.pos++
	t.cached = -1
}

// GotoKey positions the iterator so that the next key is the first one
// >= k.
func (t *TermItr) GotoKey(k int64) error {
	t.cached = -1
	for t.HasNext() {
		ms := t.files[t.file]
		if ms[len(ms)-1].key < k {
			t.file++
			t.pos = 0
			continue
		}
		from := t.pos
		t.pos = from + sort.Search(len(ms)-from, func(i int) bool { return ms[from+i].key >= k })
		return nil
	}
	return nil
}

func (t *TermItr) MoveTo(int64, int64) error { return itr.Unsupported(itr.TypeTerm, "MoveTo") }

func (t *TermItr) Mark() error {
	t.mFile, t.mPos, t.mCur, t.mCached = t.file, t.pos, t.cur, t.cached
	return nil
}

func (t *TermItr) Reset(int) error {
	t.file, t.pos, t.cur, t.cached = t.mFile, t.mPos, t.mCur, t.mCached
	t.SetKey(t.cur.Key)
	return nil
}

func (t *TermItr) IgnoreSecondColumn() error { return nil }

// Cardinality is the number of keys.
func (t *TermItr) Cardinality() (uint64, error) { return t.total, nil }
func (t *TermItr) EstCardinality() uint64       { return t.total }

func (t *TermItr) Clear() {
	t.files, t.count = nil, nil
}
