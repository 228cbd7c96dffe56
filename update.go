package trident

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/hupe1980/trident/internal/diff"
)

// AddTriples records triples as a new addition layer and returns how many
// of them were not already present. Queriers created before the call do
// not see the layer.
func (kb *KB) AddTriples(ctx context.Context, triples []Triple) (int64, error) {
	return kb.update(ctx, diff.Addition, triples)
}

// RemoveTriples records triples as a new deletion layer and returns how
// many of them were present.
func (kb *KB) RemoveTriples(ctx context.Context, triples []Triple) (int64, error) {
	return kb.update(ctx, diff.Deletion, triples)
}

func (kb *KB) update(ctx context.Context, typ diff.Type, triples []Triple) (int64, error) {
	start := time.Now()
	seq, n, err := kb.applyUpdate(ctx, typ, triples)
	kb.opts.metricsCollector.RecordDiffLayer(n, time.Since(start), err)
	kb.opts.logger.LogDiffLayer(ctx, seq, typ.String(), n, err)
	if err != nil {
		return 0, translateError(err)
	}
	return n, nil
}

func (kb *KB) applyUpdate(ctx context.Context, typ diff.Type, triples []Triple) (uint64, int64, error) {
	if kb.opts.readOnly {
		return 0, 0, ErrReadOnly
	}
	for _, t := range triples {
		if !inTermRange(t.S) || !inTermRange(t.P) || !inTermRange(t.O) {
			return 0, 0, fmt.Errorf("%w: (%d, %d, %d)", ErrTermRange, t.S, t.P, t.O)
		}
	}
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}

	kb.mu.Lock()
	defer kb.mu.Unlock()
	if kb.closed {
		return 0, 0, ErrClosed
	}

	idx, err := diff.New(typ, triples, kb.newQuerier(kb.manifest, kb.diffs).view(), kb.diffOptions())
	if err != nil {
		return 0, 0, err
	}
	if idx.Size() == 0 {
		return 0, 0, idx.Close()
	}

	m := kb.manifest.Clone()
	seq := m.NextDiffSeq
	path := diff.LayerPath(kb.dir, int(seq), typ)
	if err := diff.Save(path, idx.Triples()); err != nil {
		return seq, 0, errors.Join(err, kb.opts.fs.RemoveAll(path), idx.Close())
	}
	rel, err := filepath.Rel(kb.dir, path)
	if err != nil {
		return seq, 0, errors.Join(err, kb.opts.fs.RemoveAll(path), idx.Close())
	}
	m.AddDiff(typ.String(), idx.Size(), rel)
	if err := kb.mstore.Save(m); err != nil {
		return seq, 0, errors.Join(fmt.Errorf("write manifest: %w", err), kb.opts.fs.RemoveAll(path), idx.Close())
	}

	kb.manifest = m
	kb.diffs = append(snapshotDiffs(kb.diffs), idx)
	return seq, idx.Size(), nil
}

func inTermRange(v int64) bool { return v >= 0 && v <= MaxTerm }
