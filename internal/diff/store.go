package diff

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/hupe1980/trident/internal/binenc"
	"github.com/hupe1980/trident/internal/perm"
)

// Dir is the subdirectory of a knowledge base holding its layers.
const Dir = "diff"

const tripleKeySize = 24

// Layer is a persisted update layer stored in <kb>/diff/<seq>-<type>/.
type Layer struct {
	Seq  int
	Type Type
	Path string
}

// LayerPath returns the directory of layer seq.
func LayerPath(kbDir string, seq int, typ Type) string {
	return filepath.Join(kbDir, Dir, fmt.Sprintf("%06d-%s", seq, typ))
}

// ListLayers returns the layers of kbDir ordered by sequence number.
func ListLayers(kbDir string) ([]Layer, error) {
	entries, err := os.ReadDir(filepath.Join(kbDir, Dir))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var layers []Layer
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		seqStr, typStr, ok := strings.Cut(e.Name(), "-")
		if !ok {
			continue
		}
		seq, err := strconv.Atoi(seqStr)
		if err != nil {
			continue
		}
		typ, err := ParseType(typStr)
		if err != nil {
			continue
		}
		layers = append(layers, Layer{Seq: seq, Type: typ, Path: filepath.Join(kbDir, Dir, e.Name())})
	}
	slices.SortFunc(layers, func(a, b Layer) int { return a.Seq - b.Seq })
	return layers, nil
}

func openDB(path string, readOnly bool) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithLogger(nil).
		WithReadOnly(readOnly).
		WithSyncWrites(!readOnly)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("diff: open layer %s: %w", path, err)
	}
	return db, nil
}

func tripleKey(t perm.Triple) []byte {
	k := make([]byte, 0, tripleKeySize)
	k = binenc.AppendN(k, t.S, 8)
	k = binenc.AppendN(k, t.P, 8)
	return binenc.AppendN(k, t.O, 8)
}

// Save writes triples as a new layer at path.
func Save(path string, triples []perm.Triple) error {
	db, err := openDB(path, false)
	if err != nil {
		return err
	}
	wb := db.NewWriteBatch()
	for _, t := range triples {
		if err := wb.Set(tripleKey(t), nil); err != nil {
			wb.Cancel()
			return errors.Join(err, db.Close())
		}
	}
	if err := wb.Flush(); err != nil {
		return errors.Join(fmt.Errorf("diff: write layer %s: %w", path, err), db.Close())
	}
	return db.Close()
}

// Load reads the triples of the layer at path sorted by S, P, O.
func Load(path string, readOnly bool) ([]perm.Triple, error) {
	db, err := openDB(path, readOnly)
	if err != nil {
		return nil, err
	}
	var out []perm.Triple
	err = db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			k := it.Item().Key()
			if len(k) != tripleKeySize {
				return fmt.Errorf("diff: layer %s: malformed key of %d bytes", path, len(k))
			}
			out = append(out, perm.Triple{
				S: binenc.Read8(k, 0),
				P: binenc.Read8(k, 8),
				O: binenc.Read8(k, 16),
			})
		}
		return nil
	})
	return out, errors.Join(err, db.Close())
}
