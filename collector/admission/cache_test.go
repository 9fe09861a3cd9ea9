// Copyright (C) 2026 Ironlog Authors.
// See LICENSE for copying information.

package admission_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heety313/ironlog/collector/admission"
)

func TestAdmit(t *testing.T) {
	cache := admission.NewCache(2)

	// first come, first served up to the cap
	require.True(t, cache.Admit("a"))
	require.True(t, cache.Admit("b"))
	require.False(t, cache.Admit("c"))
	assert.Equal(t, 2, cache.Len())

	// known ids stay admitted even when the cache is full
	require.True(t, cache.Admit("a"))
	require.True(t, cache.Admit("a"))
	assert.EqualValues(t, 3, cache.Count("a"))
	assert.EqualValues(t, 1, cache.Count("b"))

	// rejected ids leave no trace
	assert.EqualValues(t, 0, cache.Count("c"))
}

func TestAdmitBoundary(t *testing.T) {
	cache := admission.NewCache(3)
	require.True(t, cache.Admit("a"))
	require.True(t, cache.Admit("b"))

	// cardinality is max-1: the next new id is admitted, the one after not
	require.True(t, cache.Admit("c"))
	require.False(t, cache.Admit("d"))
}

func TestReseed(t *testing.T) {
	cache := admission.NewCache(2)
	require.True(t, cache.Admit("a"))
	require.True(t, cache.Admit("b"))
	require.False(t, cache.Admit("x"))

	cache.Reseed([]admission.Entry{
		{Hash: "x", Count: 10},
		{Hash: "y", Count: 5},
	})

	assert.Equal(t, 2, cache.Len())
	assert.EqualValues(t, 10, cache.Count("x"))
	assert.EqualValues(t, 0, cache.Count("a"))

	require.True(t, cache.Admit("x"))
	assert.EqualValues(t, 11, cache.Count("x"))
	require.False(t, cache.Admit("a"))
}

func TestZeroCap(t *testing.T) {
	cache := admission.NewCache(0)
	require.False(t, cache.Admit("a"))
	assert.Equal(t, 0, cache.Len())
}
