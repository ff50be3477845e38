// Copyright 2026 Mutscan Authors. All rights reserved.
// Licensed under the Apache License, version 2.0:
// http://www.apache.org/licenses/LICENSE-2.0

package tabular

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkTable(t *testing.T, index []string, cols map[string][]float64, order []string) *Table {
	t.Helper()
	tbl := NewTable(index)
	for _, name := range order {
		require.NoError(t, tbl.AddColumn(name, cols[name]))
	}
	return tbl
}

func TestAddColumnLengthMismatch(t *testing.T) {
	tbl := NewTable([]string{"a", "b"})
	err := tbl.AddColumn("count", []float64{1})
	assert.True(t, ErrTypeMismatch.Is(err))
}

func TestSelectFillsMissingWithNull(t *testing.T) {
	tbl := mkTable(t, []string{"a", "b"}, map[string][]float64{"count": {1, 2}}, []string{"count"})
	sel := tbl.Select([]string{"b", "z"})
	assert.Equal(t, []string{"b", "z"}, sel.Index())
	v, ok := sel.Value("b", "count")
	require.True(t, ok)
	assert.Equal(t, 2.0, v)
	v, ok = sel.Value("z", "count")
	require.True(t, ok)
	assert.True(t, IsNull(v))
}

func TestWithColumnPrefix(t *testing.T) {
	tbl := mkTable(t, []string{"a"}, map[string][]float64{"count": {1}, "score": {2}}, []string{"count", "score"})
	out := tbl.WithColumnPrefix("lib1")
	assert.Equal(t, []string{"lib1.count", "lib1.score"}, out.Columns())
}

func TestAppendRejectsColumnDrift(t *testing.T) {
	dst := mkTable(t, []string{"a"}, map[string][]float64{"count": {1}}, []string{"count"})
	src := mkTable(t, []string{"b"}, map[string][]float64{"score": {2}}, []string{"score"})
	assert.True(t, ErrTypeMismatch.Is(dst.Append(src)))

	dup := mkTable(t, []string{"a"}, map[string][]float64{"count": {9}}, []string{"count"})
	assert.True(t, ErrTypeMismatch.Is(dst.Append(dup)))

	ok := mkTable(t, []string{"b", "c"}, map[string][]float64{"count": {2, 3}}, []string{"count"})
	require.NoError(t, dst.Append(ok))
	assert.Equal(t, []string{"a", "b", "c"}, dst.Index())
}

func TestMergeTablesInnerJoin(t *testing.T) {
	a := mkTable(t, []string{"x", "y"}, map[string][]float64{"ca": {1, 2}}, []string{"ca"})
	b := mkTable(t, []string{"y", "z"}, map[string][]float64{"cb": {3, 4}}, []string{"cb"})

	merged, err := MergeTables([]string{"a", "b"}, []*Table{a, b})
	require.NoError(t, err)
	assert.Equal(t, []string{"y"}, merged.Index())
	assert.Equal(t, []string{"ca", "cb"}, merged.Columns())

	c := mkTable(t, []string{"q"}, map[string][]float64{"cc": {5}}, []string{"cc"})
	_, err = MergeTables([]string{"a", "c"}, []*Table{a, c})
	assert.True(t, ErrEmptyResult.Is(err))
}

func TestMergeTablesRenamesCollidingColumns(t *testing.T) {
	a := mkTable(t, []string{"x"}, map[string][]float64{"count": {1}}, []string{"count"})
	b := mkTable(t, []string{"x"}, map[string][]float64{"count": {2}}, []string{"count"})

	merged, err := MergeTables([]string{"a", "b"}, []*Table{a, b})
	require.NoError(t, err)
	assert.Equal(t, []string{"count", "count.1"}, merged.Columns())
}

func TestSumTablesUnion(t *testing.T) {
	a := mkTable(t, []string{"v1", "v2"}, map[string][]float64{"count": {3, 5}}, []string{"count"})
	b := mkTable(t, []string{"v1", "v3"}, map[string][]float64{"count": {2, 7}}, []string{"count"})

	sum := SumTables([]*Table{a, b})
	assert.Equal(t, []string{"v1", "v2", "v3"}, sum.Index())
	v, _ := sum.Value("v1", "count")
	assert.Equal(t, 5.0, v)
	v, _ = sum.Value("v2", "count")
	assert.Equal(t, 5.0, v)
	v, _ = sum.Value("v3", "count")
	assert.Equal(t, 7.0, v)
}

func TestSumTablesAllMissingStaysNull(t *testing.T) {
	a := mkTable(t, []string{"v1"}, map[string][]float64{"count": {Null()}}, []string{"count"})
	b := mkTable(t, []string{"v1"}, map[string][]float64{"count": {Null()}}, []string{"count"})

	sum := SumTables([]*Table{a, b})
	v, _ := sum.Value("v1", "count")
	assert.True(t, IsNull(v))
}

func TestNormalizeKey(t *testing.T) {
	assert.Equal(t, "main/variants/counts", NormalizeKey("/main/variants/counts"))
	assert.Equal(t, "main/variants/counts", NormalizeKey("main/variants/counts"))
}

func TestExportFileName(t *testing.T) {
	assert.Equal(t, "main_variants_scores.tsv", ExportFileName("main/variants/scores"))
}

func TestIsMainIsRaw(t *testing.T) {
	assert.True(t, IsMainKey("main/variants/counts"))
	assert.False(t, IsMainKey("raw/variants/counts"))
	assert.True(t, IsRawKey("/raw/variants/counts"))
}
