package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/trident"
)

func TestReadTriples(t *testing.T) {
	got, err := readTriples(strings.NewReader(sampleInput))
	require.NoError(t, err)
	assert.Equal(t, []trident.Triple{
		{S: 1, P: 10, O: 2},
		{S: 1, P: 10, O: 3},
		{S: 2, P: 10, O: 3},
		{S: 3, P: 11, O: 1},
	}, got)
}

func TestReadTriples_Errors(t *testing.T) {
	for _, in := range []string{"1 2\n", "1 2 3 4\n", "1 a 3\n"} {
		_, err := readTriples(strings.NewReader(in))
		assert.Error(t, err, in)
	}
}

func TestParseTerm(t *testing.T) {
	for _, s := range []string{"?", "*", "_"} {
		v, err := parseTerm(s)
		require.NoError(t, err)
		assert.Equal(t, int64(trident.Any), v)
	}
	v, err := parseTerm("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)

	_, err = parseTerm("-3")
	assert.Error(t, err)
	_, err = parseTerm("abc")
	assert.Error(t, err)
}
