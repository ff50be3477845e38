// Copyright 2026 Mutscan Authors. All rights reserved.
// Licensed under the Apache License, version 2.0:
// http://www.apache.org/licenses/LICENSE-2.0

package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mutscan/mutscan/store/tabular"
	"github.com/mutscan/mutscan/store/tabulartest"
)

func TestLifecycleMisuse(t *testing.T) {
	dir := t.TempDir()
	lib := testLibrary(t, dir, "libA", 0, map[string]float64{"v1": 3})

	assert.True(t, tabular.ErrNotOpen.Is(lib.Compute()))
	assert.True(t, tabular.ErrNotOpen.Is(lib.Close(false)))

	require.NoError(t, lib.Open(false))
	assert.True(t, tabular.ErrAlreadyOpen.Is(lib.Open(false)))

	require.NoError(t, lib.Compute())
	assert.True(t, tabular.ErrAlreadyOpen.Is(lib.Open(false)))

	require.NoError(t, lib.Close(false))
	assert.True(t, tabular.ErrNotOpen.Is(lib.Close(false)))
}

func TestComputeIsAtMostOnce(t *testing.T) {
	dir := t.TempDir()
	lib := testLibrary(t, dir, "libA", 0, map[string]float64{"v1": 3, "v2": 5})

	var counter *tabulartest.CountingStore
	inner := lib.openStore
	lib.openStore = func(path string) (tabular.TableStore, error) {
		st, err := inner(path)
		if err != nil {
			return nil, err
		}
		counter = tabulartest.NewCountingStore(st)
		return counter, nil
	}

	require.NoError(t, lib.Open(false))
	require.NoError(t, lib.Compute())
	assert.Positive(t, counter.Writes())

	// same run: second compute is a no-op
	counter.Reset()
	require.NoError(t, lib.Compute())
	assert.Zero(t, counter.Writes())
	require.NoError(t, lib.Close(false))

	// next run, same configuration: every sub-step is skipped
	lib2 := testLibrary(t, dir, "libA", 0, map[string]float64{"v1": 3, "v2": 5})
	var counter2 *tabulartest.CountingStore
	inner2 := lib2.openStore
	lib2.openStore = func(path string) (tabular.TableStore, error) {
		st, err := inner2(path)
		if err != nil {
			return nil, err
		}
		counter2 = tabulartest.NewCountingStore(st)
		return counter2, nil
	}
	require.NoError(t, lib2.Open(false))
	require.NoError(t, lib2.Compute())
	assert.Zero(t, counter2.Writes())
	require.NoError(t, lib2.Close(false))
}

func TestFingerprintInvalidationClearsMainKeepsRaw(t *testing.T) {
	dir := t.TempDir()

	lib := testLibrary(t, dir, "libA", 0, map[string]float64{"v1": 3, "v2": 5})
	require.NoError(t, lib.Open(false))
	require.NoError(t, lib.Compute())
	require.NoError(t, lib.Close(false))

	// min count change produces a different fingerprint
	changed := testLibrary(t, dir, "libA", 4, map[string]float64{"v1": 3, "v2": 5})
	require.NoError(t, changed.Open(false))

	keys := changed.Store().Keys()
	assert.Equal(t, []string{"raw/variants/counts"}, keys)

	// recompute uses the surviving raw table and the new parameters
	require.NoError(t, changed.Compute())
	got, err := changed.Store().Get("main/variants/counts")
	require.NoError(t, err)
	assert.Equal(t, []string{"v2"}, got.Index())
	require.NoError(t, changed.Close(false))
}

func TestReusableStoreDetected(t *testing.T) {
	dir := t.TempDir()

	lib := testLibrary(t, dir, "libA", 0, map[string]float64{"v1": 3})
	require.NoError(t, lib.Open(false))
	require.NoError(t, lib.Compute())
	require.NoError(t, lib.Close(false))

	same := testLibrary(t, dir, "libA", 0, map[string]float64{"v1": 3})
	require.NoError(t, same.Open(false))
	assert.True(t, same.StoreReusable())
	require.NoError(t, same.Close(false))
}

func TestForceRecomputeClearsMainUnconditionally(t *testing.T) {
	dir := t.TempDir()

	lib := testLibrary(t, dir, "libA", 0, map[string]float64{"v1": 3})
	require.NoError(t, lib.Open(false))
	require.NoError(t, lib.Compute())
	require.NoError(t, lib.Close(false))

	forced := testLibrary(t, dir, "libA", 0, map[string]float64{"v1": 3})
	opts := DefaultRunOptions()
	opts.ForceRecompute = true
	applyRunOptions(forced.TreeNode, opts)

	require.NoError(t, forced.Open(false))
	assert.False(t, forced.StoreReusable())
	assert.Equal(t, []string{"raw/variants/counts"}, forced.Store().Keys())
	require.NoError(t, forced.Close(false))
}

func TestRootScalarUnsetIsConfigError(t *testing.T) {
	dir := t.TempDir()
	cfg := libraryConfig(t, dir, "libA", 0, 0, map[string]float64{"v1": 3})
	cfg.OutputDir = dir
	lib, err := NewLibrary(cfg, testLog())
	require.NoError(t, err)

	// no run options were applied, so the root scalars are unset
	err = lib.Open(false)
	assert.True(t, tabular.ErrConfig.Is(err))
}
