// Copyright 2026 Mutscan Authors. All rights reserved.
// Licensed under the Apache License, version 2.0:
// http://www.apache.org/licenses/LICENSE-2.0

package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mutscan/mutscan/store/tabular"
)

// Two-level tree: libraries A {v1:3, v2:5} and B {v1:2, v3:7} under one
// selection, merged with chunk size 2. The combined table must hold exactly
// the union {v1,v2,v3}, populated per child where present and null
// otherwise, stamped with the selection's current fingerprint.
func TestTwoLevelTreeAggregation(t *testing.T) {
	dir := t.TempDir()
	sel := testSelection(t, dir, "sel", 2, []map[string]float64{
		{"v1": 3, "v2": 5},
		{"v1": 2, "v3": 7},
	})

	require.NoError(t, sel.Open(true))
	require.NoError(t, sel.Compute())

	combined, err := sel.Store().Get(unfilteredCountsKey(LabelVariants))
	require.NoError(t, err)
	assert.Equal(t, []string{"v1", "v2", "v3"}, combined.Index())
	assert.Equal(t, []string{"c_0", "c_1"}, combined.Columns())

	expect := map[string][2]float64{
		"v1": {3, 2},
		"v2": {5, tabular.Null()},
		"v3": {tabular.Null(), 7},
	}
	for row, want := range expect {
		for i, col := range []string{"c_0", "c_1"} {
			v, ok := combined.Value(row, col)
			require.True(t, ok)
			if tabular.IsNull(want[i]) {
				assert.True(t, tabular.IsNull(v), "%s/%s should be null", row, col)
			} else {
				assert.Equal(t, want[i], v, "%s/%s", row, col)
			}
		}
	}

	// only v1 was observed at both timepoints
	filtered, err := sel.Store().Get(countsKey(LabelVariants))
	require.NoError(t, err)
	assert.Equal(t, []string{"v1"}, filtered.Index())

	md, err := sel.Store().GetMetadata(unfilteredCountsKey(LabelVariants))
	require.NoError(t, err)
	assert.Equal(t, sel.Fingerprint().String(), md["fingerprint"])

	require.NoError(t, sel.Close(true))
	assert.Equal(t, StateClosed, sel.State())
	for _, c := range sel.Children() {
		assert.Equal(t, StateClosed, c.State())
	}
}

// scoreCopier is a stand-in for a real scoring method: the score is the
// element's count at the final timepoint.
type scoreCopier struct{}

func (scoreCopier) Name() string       { return "copier" }
func (scoreCopier) MinTimepoints() int { return 2 }

func (scoreCopier) Score(target ScoreTarget, label string) error {
	counts, err := target.Store().Get(countsKey(label))
	if err != nil {
		return err
	}
	tps := target.Timepoints()
	last, ok := counts.Column(countColumn(tps[len(tps)-1]))
	if !ok {
		return tabular.ErrColumnNotFound.New(countColumn(tps[len(tps)-1]), countsKey(label))
	}
	scores := tabular.NewTable(counts.Index())
	if err := scores.AddColumn("score", last); err != nil {
		return err
	}
	return target.Store().Put(scoresKey(label), scores)
}

func TestExperimentSharedScores(t *testing.T) {
	dir := t.TempDir()
	cfg := ExperimentConfig{
		Name:      "exp",
		OutputDir: dir,
		Conditions: []ConditionConfig{
			{
				Name: "drug",
				Selections: []SelectionConfig{
					selectionConfig(t, dir, "rep1", []map[string]float64{
						{"v1": 3, "v2": 5}, {"v1": 6, "v2": 1},
					}),
					selectionConfig(t, dir, "rep2", []map[string]float64{
						{"v1": 4, "v3": 2}, {"v1": 8, "v3": 4},
					}),
				},
			},
		},
	}

	exp, err := NewExperiment(cfg, scoreCopier{}, testLog())
	require.NoError(t, err)
	applyRunOptions(exp.TreeNode, DefaultRunOptions())

	require.NoError(t, exp.Open(true))
	require.NoError(t, exp.Compute())

	full, err := exp.Store().Get(sharedFullKey(LabelVariants))
	require.NoError(t, err)
	assert.Equal(t, []string{"v1", "v2", "v3"}, full.Index())
	assert.Equal(t, []string{"drug.rep1.score", "drug.rep2.score"}, full.Columns())

	// only v1 is scored in two selections of the condition
	shared, err := exp.Store().Get(sharedKey(LabelVariants))
	require.NoError(t, err)
	assert.Equal(t, []string{"v1"}, shared.Index())
	v, _ := shared.Value("v1", "drug.rep1.score")
	assert.Equal(t, 6.0, v)
	v, _ = shared.Value("v1", "drug.rep2.score")
	assert.Equal(t, 8.0, v)

	require.NoError(t, exp.Close(true))
}

// A dot inside a condition name must not fuse its replicate columns with
// another condition's when the shared subset is computed.
func TestSharedScoresWithDottedConditionNames(t *testing.T) {
	dir := t.TempDir()
	cfg := ExperimentConfig{
		Name:      "exp",
		OutputDir: dir,
		Conditions: []ConditionConfig{
			{
				Name: "drug.high",
				Selections: []SelectionConfig{
					selectionConfig(t, dir, "rep1", []map[string]float64{
						{"v1": 3}, {"v1": 6},
					}),
				},
			},
			{
				Name: "drug.low",
				Selections: []SelectionConfig{
					selectionConfig(t, dir, "rep2", []map[string]float64{
						{"v1": 4}, {"v1": 8},
					}),
				},
			},
		},
	}

	exp, err := NewExperiment(cfg, scoreCopier{}, testLog())
	require.NoError(t, err)
	applyRunOptions(exp.TreeNode, DefaultRunOptions())

	require.NoError(t, exp.Open(true))
	require.NoError(t, exp.Compute())

	full, err := exp.Store().Get(sharedFullKey(LabelVariants))
	require.NoError(t, err)
	assert.Equal(t, []string{"drug.high.rep1.score", "drug.low.rep2.score"}, full.Columns())

	// v1 is scored once per condition, never twice within one, so no row
	// qualifies for replicate statistics
	shared, err := exp.Store().Get(sharedKey(LabelVariants))
	require.NoError(t, err)
	assert.Equal(t, 0, shared.NumRows())

	require.NoError(t, exp.Close(true))
}

func selectionConfig(t *testing.T, dir, name string, countsByTimepoint []map[string]float64) SelectionConfig {
	t.Helper()
	cfg := SelectionConfig{Name: name}
	for tp, counts := range countsByTimepoint {
		cfg.Libraries = append(cfg.Libraries,
			libraryConfig(t, dir, fmt.Sprintf("%s_t%d", name, tp), tp, 0, counts))
	}
	return cfg
}

func TestRunnerEndToEnd(t *testing.T) {
	dir := t.TempDir()
	libA := writeCountsFile(t, dir, "libA", map[string]float64{"v1": 3, "v2": 5})
	libB := writeCountsFile(t, dir, "libB", map[string]float64{"v1": 2, "v3": 7})

	doc := map[string]interface{}{
		"name":             "exp",
		"output directory": dir,
		"conditions": []interface{}{
			map[string]interface{}{
				"name": "cond",
				"selections": []interface{}{
					map[string]interface{}{
						"name": "sel",
						"libraries": []interface{}{
							map[string]interface{}{
								"name":         "libA",
								"timepoint":    0,
								"counts files": map[string]string{"variants": libA},
							},
							map[string]interface{}{
								"name":         "libB",
								"timepoint":    1,
								"counts files": map[string]string{"variants": libB},
							},
						},
					},
				},
			},
		},
	}
	data, err := json.Marshal(doc)
	require.NoError(t, err)

	root, err := LoadConfig(data, DefaultRunOptions(), testLog())
	require.NoError(t, err)
	require.Equal(t, KindExperiment, root.Kind())

	require.NoError(t, NewRunner(testLog()).Run(root))

	// the cascade left fingerprinted stores and flat exports behind
	assert.FileExists(t, filepath.Join(dir, "exp_exp"+DefaultStoreExt))
	assert.FileExists(t, filepath.Join(dir, "sel_sel"+DefaultStoreExt))
	assert.FileExists(t, filepath.Join(dir, "tsv", "exp", "main_variants_counts.tsv"))
	assert.FileExists(t, filepath.Join(dir, "tsv", "sel", "main_variants_counts_unfiltered.tsv"))
	assert.FileExists(t, filepath.Join(dir, "tsv", "libA", "raw_variants_counts.tsv"))

	body, err := os.ReadFile(filepath.Join(dir, "tsv", "exp", "main_variants_counts.tsv"))
	require.NoError(t, err)
	assert.Contains(t, string(body), "element\tcond.sel.c_0\tcond.sel.c_1")
	assert.Contains(t, string(body), "v2\t5\tNA")

	// a second run over the same configuration reuses everything
	root2, err := LoadConfig(data, DefaultRunOptions(), testLog())
	require.NoError(t, err)
	require.NoError(t, NewRunner(testLog()).Run(root2))
}
