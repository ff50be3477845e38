// Copyright 2026 Mutscan Authors. All rights reserved.
// Licensed under the Apache License, version 2.0:
// http://www.apache.org/licenses/LICENSE-2.0

package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mutscan/mutscan/store/tabular"
)

func TestReadCountsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "counts.tsv")
	require.NoError(t, os.WriteFile(path, []byte("element\tcount\textra\nv1\t3\tx\nv2\tNA\ty\n"), 0644))

	got, err := readCountsFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"v1", "v2"}, got.Index())
	assert.Equal(t, []string{"count"}, got.Columns())
	v, _ := got.Value("v1", "count")
	assert.Equal(t, 3.0, v)
	v, _ = got.Value("v2", "count")
	assert.True(t, tabular.IsNull(v))
}

func TestReadCountsFileErrors(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "nocount.tsv")
	require.NoError(t, os.WriteFile(path, []byte("element\ttotal\nv1\t3\n"), 0644))
	_, err := readCountsFile(path)
	assert.True(t, tabular.ErrIO.Is(err))

	path = filepath.Join(dir, "dup.tsv")
	require.NoError(t, os.WriteFile(path, []byte("element\tcount\nv1\t3\nv1\t4\n"), 0644))
	_, err = readCountsFile(path)
	assert.True(t, tabular.ErrIO.Is(err))

	_, err = readCountsFile(filepath.Join(dir, "missing.tsv"))
	assert.True(t, tabular.ErrIO.Is(err))
}

func TestWriteTableTSV(t *testing.T) {
	tbl := tabular.NewTable([]string{"v1", "v2"})
	require.NoError(t, tbl.AddColumn("count", []float64{3, tabular.Null()}))
	require.NoError(t, tbl.AddColumn("score", []float64{0.25, 1}))

	path := filepath.Join(t.TempDir(), "out.tsv")
	require.NoError(t, writeTableTSV(path, tbl))

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "element\tcount\tscore\nv1\t3\t0.25\nv2\tNA\t1\n", string(body))
}
