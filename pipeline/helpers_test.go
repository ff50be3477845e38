// Copyright 2026 Mutscan Authors. All rights reserved.
// Licensed under the Apache License, version 2.0:
// http://www.apache.org/licenses/LICENSE-2.0

package pipeline

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	// default backend for node stores in tests
	_ "github.com/mutscan/mutscan/store/tablefile"
)

func testLog() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

// writeCountsFile writes a two-column counts TSV and returns its path.
func writeCountsFile(t *testing.T, dir, name string, counts map[string]float64) string {
	t.Helper()
	path := filepath.Join(dir, name+".tsv")
	body := "element\tcount\n"
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		body += k + "\t" + strconv.FormatFloat(counts[k], 'g', -1, 64) + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func libraryConfig(t *testing.T, dir, name string, tp int, minCount float64, counts map[string]float64) LibraryConfig {
	t.Helper()
	file := writeCountsFile(t, dir, name, counts)
	return LibraryConfig{
		Name:        name,
		Timepoint:   &tp,
		CountsFiles: map[string]string{LabelVariants: file},
		MinCount:    minCount,
	}
}

// testLibrary builds a ready-to-open library rooted in dir.
func testLibrary(t *testing.T, dir, name string, minCount float64, counts map[string]float64) *Library {
	t.Helper()
	cfg := libraryConfig(t, dir, name, 0, minCount, counts)
	cfg.OutputDir = dir
	lib, err := NewLibrary(cfg, testLog())
	require.NoError(t, err)
	applyRunOptions(lib.TreeNode, DefaultRunOptions())
	return lib
}

// testSelection builds a selection whose libraries sit at timepoints 0..n-1.
func testSelection(t *testing.T, dir, name string, chunkSize int, countsByTimepoint []map[string]float64) *Selection {
	t.Helper()
	cfg := SelectionConfig{Name: name, OutputDir: dir}
	for tp, counts := range countsByTimepoint {
		cfg.Libraries = append(cfg.Libraries,
			libraryConfig(t, dir, fmt.Sprintf("%s_t%d", name, tp), tp, 0, counts))
	}
	sel, err := NewSelection(cfg, countsScorer{}, testLog())
	require.NoError(t, err)
	opts := DefaultRunOptions()
	opts.ChunkSize = chunkSize
	applyRunOptions(sel.TreeNode, opts)
	return sel
}
