package manifest

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/trident/internal/perm"
)

func sample() *Manifest {
	m := New()
	m.ID = 3
	m.CreatedAt = time.Unix(0, 1_700_000_000_000_000_000)
	m.NTriples = 1000
	m.NTerms = 120
	m.Aggregated = true
	m.MaxElementsPerNode = 2048
	m.NodeCompression = 1
	m.Perms[perm.SPO] = PermInfo{Materialized: true, Tables: 40, NFirstTables: 90, Files: 1}
	m.Perms[perm.POS] = PermInfo{Materialized: true, Tables: 5, NFirstTables: 70, Aggregated: 2, Files: 2}
	m.AddDiff("add", 10, "diff/000001-add")
	m.AddDiff("rm", 2, "diff/000002-rm")
	return m
}

func TestBinaryRoundTrip(t *testing.T) {
	m := sample()

	var buf bytes.Buffer
	require.NoError(t, m.WriteBinary(&buf))

	got, err := ReadBinary(&buf)
	require.NoError(t, err)
	assert.Equal(t, m.ID, got.ID)
	assert.True(t, m.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, m.NTriples, got.NTriples)
	assert.Equal(t, m.NTerms, got.NTerms)
	assert.True(t, got.Aggregated)
	assert.False(t, got.FlatTree)
	assert.Equal(t, m.MaxElementsPerNode, got.MaxElementsPerNode)
	assert.Equal(t, m.NodeCompression, got.NodeCompression)
	assert.Equal(t, m.Perms, got.Perms)
	assert.Equal(t, uint64(3), got.NextDiffSeq)
	assert.Equal(t, m.Diffs, got.Diffs)
	assert.Equal(t, []int{perm.SPO, perm.POS}, got.Materialized())
}

func TestBinaryCorruption(t *testing.T) {
	b, err := sample().Marshal()
	require.NoError(t, err)

	t.Run("checksum", func(t *testing.T) {
		c := bytes.Clone(b)
		c[len(c)-1] ^= 0xff
		_, err := Unmarshal(c)
		assert.ErrorIs(t, err, ErrCorrupt)
	})
	t.Run("magic", func(t *testing.T) {
		c := bytes.Clone(b)
		c[0] = 'X'
		_, err := Unmarshal(c)
		assert.ErrorIs(t, err, ErrCorrupt)
	})
	t.Run("version", func(t *testing.T) {
		c := bytes.Clone(b)
		c[4] = 9
		_, err := Unmarshal(c)
		assert.ErrorIs(t, err, ErrIncompatibleVersion)
	})
	t.Run("truncated", func(t *testing.T) {
		_, err := Unmarshal(b[:len(b)-3])
		assert.ErrorIs(t, err, ErrCorrupt)
		_, err = Unmarshal(b[:5])
		assert.ErrorIs(t, err, ErrCorrupt)
	})
}
