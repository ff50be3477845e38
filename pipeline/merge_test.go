// Copyright 2026 Mutscan Authors. All rights reserved.
// Licensed under the Apache License, version 2.0:
// http://www.apache.org/licenses/LICENSE-2.0

package pipeline

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mutscan/mutscan/store/memstore"
	"github.com/mutscan/mutscan/store/tabular"
)

// syntheticSources builds three stores with partially overlapping row keys:
// child i holds rows i*2000 .. i*2000+5999 of a 10000-key universe.
func syntheticSources(t *testing.T) []MergeSource {
	t.Helper()
	srcs := make([]MergeSource, 3)
	for i := 0; i < 3; i++ {
		st := memstore.New(fmt.Sprintf("child%d.mem", i))
		var keys []string
		var vals []float64
		for j := i * 2000; j < i*2000+6000; j++ {
			keys = append(keys, fmt.Sprintf("v%06d", j))
			vals = append(vals, float64(i*1000000+j))
		}
		tbl := tabular.NewTable(keys)
		require.NoError(t, tbl.AddColumn("count", vals))
		require.NoError(t, st.Put("main/variants/counts", tbl))
		srcs[i] = StoreSource(fmt.Sprintf("child%d", i), st, "main/variants/counts")
	}
	return srcs
}

func TestUnionChunkEquivalence(t *testing.T) {
	srcs := syntheticSources(t)

	onePass := memstore.New("one.mem")
	require.NoError(t, UnionMerge(onePass, "main/variants/counts", srcs, 20000))

	rowAtATime := memstore.New("tiny.mem")
	require.NoError(t, UnionMerge(rowAtATime, "main/variants/counts", srcs, 1))

	a, err := onePass.Get("main/variants/counts")
	require.NoError(t, err)
	b, err := rowAtATime.Get("main/variants/counts")
	require.NoError(t, err)

	assert.Equal(t, 10000, a.NumRows())
	assert.Equal(t, tabular.EncodeTable(a), tabular.EncodeTable(b))
}

func TestUnionMergeShape(t *testing.T) {
	srcs := syntheticSources(t)

	dst := memstore.New("dst.mem")
	require.NoError(t, UnionMerge(dst, "main/variants/counts", srcs, 1024))

	got, err := dst.Get("main/variants/counts")
	require.NoError(t, err)
	assert.Equal(t, []string{"child0.count", "child1.count", "child2.count"}, got.Columns())

	// row v000100 is only in child0's range
	v, _ := got.Value("v000100", "child0.count")
	assert.Equal(t, 100.0, v)
	v, _ = got.Value("v000100", "child1.count")
	assert.True(t, tabular.IsNull(v))

	// row v004500 overlaps child0, child1 and child2
	for i := 0; i < 3; i++ {
		v, _ = got.Value("v004500", fmt.Sprintf("child%d.count", i))
		assert.Equal(t, float64(i*1000000+4500), v)
	}
}

func TestUnionMergeSkipsExistingDestination(t *testing.T) {
	srcs := syntheticSources(t)

	dst := memstore.New("dst.mem")
	sentinel := tabular.NewTable([]string{"sentinel"})
	require.NoError(t, sentinel.AddColumn("x", []float64{1}))
	require.NoError(t, dst.Put("main/variants/counts", sentinel))

	require.NoError(t, UnionMerge(dst, "main/variants/counts", srcs, 1024))

	got, err := dst.Get("main/variants/counts")
	require.NoError(t, err)
	assert.Equal(t, []string{"sentinel"}, got.Index())
}
