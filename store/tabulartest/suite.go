// Copyright 2026 Mutscan Authors. All rights reserved.
// Licensed under the Apache License, version 2.0:
// http://www.apache.org/licenses/LICENSE-2.0

// Package tabulartest holds the conformance suite every TableStore backend
// must pass, plus instrumentation wrappers used by pipeline tests. It lives
// outside the backend packages so that each backend's _test.go can run the
// identical suite.
package tabulartest

import (
	"github.com/stretchr/testify/suite"

	"github.com/mutscan/mutscan/store/tabular"
)

// StoreSuite exercises the TableStore contract. Backend test packages embed
// it and supply a Factory that creates-or-reopens a store rooted in dir.
type StoreSuite struct {
	suite.Suite

	// Factory creates or reopens the backend's store inside dir. Calling it
	// twice with the same dir must address the same store.
	Factory func(dir string) (tabular.TableStore, error)

	// Persistent is false only for backends that do not survive Close;
	// reopen and exclusivity tests are skipped for those.
	Persistent bool
}

func (s *StoreSuite) makeStore() tabular.TableStore {
	store, err := s.Factory(s.T().TempDir())
	s.Require().NoError(err)
	return store
}

// MakeTable builds a single-column table for test fixtures.
func MakeTable(col string, keys []string, vals []float64) *tabular.Table {
	t := tabular.NewTable(keys)
	if err := t.AddColumn(col, vals); err != nil {
		panic(err)
	}
	return t
}

func (s *StoreSuite) assertTablesEqual(want, got *tabular.Table) {
	s.Require().Equal(want.Index(), got.Index())
	s.Require().Equal(want.Columns(), got.Columns())
	for _, col := range want.Columns() {
		wantVals, _ := want.Column(col)
		gotVals, _ := got.Column(col)
		s.Require().Len(gotVals, len(wantVals))
		for i := range wantVals {
			if tabular.IsNull(wantVals[i]) {
				s.True(tabular.IsNull(gotVals[i]), "row %d of column %s should be null", i, col)
			} else {
				s.Equal(wantVals[i], gotVals[i], "row %d of column %s", i, col)
			}
		}
	}
}

func (s *StoreSuite) TestPutGet() {
	store := s.makeStore()
	defer store.Close()

	t := MakeTable("count", []string{"v1", "v2", "v3"}, []float64{3, 5, tabular.Null()})
	s.Require().NoError(store.Put("raw/variants/counts", t))

	got, err := store.Get("raw/variants/counts")
	s.Require().NoError(err)
	s.assertTablesEqual(t, got)

	// leading slash addresses the same key
	got, err = store.Get("/raw/variants/counts")
	s.Require().NoError(err)
	s.assertTablesEqual(t, got)
	s.True(store.Has("raw/variants/counts"))
	s.False(store.IsEmpty())
}

func (s *StoreSuite) TestGetMissing() {
	store := s.makeStore()
	defer store.Close()

	_, err := store.Get("main/nope")
	s.True(tabular.ErrKeyNotFound.Is(err))
	_, err = store.GetMetadata("main/nope")
	s.True(tabular.ErrKeyNotFound.Is(err))
	s.False(store.Has("main/nope"))
}

func (s *StoreSuite) TestOverwriteDiscardsMetadata() {
	store := s.makeStore()
	defer store.Close()

	t := MakeTable("count", []string{"v1"}, []float64{1})
	s.Require().NoError(store.Put("main/x", t))
	s.Require().NoError(store.SetMetadata("main/x", tabular.Metadata{"fingerprint": "f1"}, false))

	s.Require().NoError(store.Put("main/x", MakeTable("count", []string{"v2"}, []float64{2})))
	md, err := store.GetMetadata("main/x")
	s.Require().NoError(err)
	s.Empty(md)
}

func (s *StoreSuite) TestGetColumn() {
	store := s.makeStore()
	defer store.Close()

	t := tabular.NewTable([]string{"v1", "v2"})
	s.Require().NoError(t.AddColumn("count", []float64{3, 5}))
	s.Require().NoError(t.AddColumn("score", []float64{0.5, tabular.Null()}))
	s.Require().NoError(store.Put("main/variants/counts", t))

	vals, err := store.GetColumn("main/variants/counts", "count")
	s.Require().NoError(err)
	s.Equal([]float64{3, 5}, vals)

	_, err = store.GetColumn("main/variants/counts", "missing")
	s.True(tabular.ErrColumnNotFound.Is(err))
	_, err = store.GetColumn("main/nope", "count")
	s.True(tabular.ErrKeyNotFound.Is(err))
}

func (s *StoreSuite) TestGetIndexAndRows() {
	store := s.makeStore()
	defer store.Close()

	t := MakeTable("count", []string{"v1", "v2"}, []float64{3, 5})
	s.Require().NoError(store.Put("main/t", t))

	index, err := store.GetIndex("main/t")
	s.Require().NoError(err)
	s.Equal([]string{"v1", "v2"}, index)

	rows, err := store.GetRows("main/t", []string{"v2", "v9"})
	s.Require().NoError(err)
	s.Equal([]string{"v2", "v9"}, rows.Index())
	v, _ := rows.Value("v2", "count")
	s.Equal(5.0, v)
	v, _ = rows.Value("v9", "count")
	s.True(tabular.IsNull(v))
}

func (s *StoreSuite) TestDropCleanup() {
	store := s.makeStore()
	defer store.Close()

	s.Require().NoError(store.Put("main/a", MakeTable("count", []string{"v1"}, []float64{1})))
	s.Require().NoError(store.Put("raw/b", MakeTable("count", []string{"v1"}, []float64{1})))
	s.Require().NoError(store.Drop("main/a"))

	_, err := store.Get("main/a")
	s.True(tabular.ErrKeyNotFound.Is(err))
	_, err = store.GetMetadata("main/a")
	s.True(tabular.ErrKeyNotFound.Is(err))
	s.Equal([]string{"raw/b"}, store.Keys())

	err = store.Drop("main/a")
	s.True(tabular.ErrKeyNotFound.Is(err))

	s.Require().NoError(store.Drop("raw/b"))
	s.True(store.IsEmpty())
}

func (s *StoreSuite) TestMetadata() {
	store := s.makeStore()
	defer store.Close()

	s.Require().NoError(store.Put("main/t", MakeTable("count", []string{"v1"}, []float64{1})))

	// never set: empty map, not an error
	md, err := store.GetMetadata("main/t")
	s.Require().NoError(err)
	s.Empty(md)

	s.Require().NoError(store.SetMetadata("main/t", tabular.Metadata{"a": "1", "b": "2"}, false))
	s.Require().NoError(store.SetMetadata("main/t", tabular.Metadata{"b": "3", "c": "4"}, true))
	md, err = store.GetMetadata("main/t")
	s.Require().NoError(err)
	s.Equal(tabular.Metadata{"a": "1", "b": "3", "c": "4"}, md)

	// replace
	s.Require().NoError(store.SetMetadata("main/t", tabular.Metadata{"only": "x"}, false))
	md, err = store.GetMetadata("main/t")
	s.Require().NoError(err)
	s.Equal(tabular.Metadata{"only": "x"}, md)

	err = store.SetMetadata("main/nope", tabular.Metadata{"a": "1"}, false)
	s.True(tabular.ErrKeyNotFound.Is(err))
}

func (s *StoreSuite) TestGetWithMerge() {
	store := s.makeStore()
	defer store.Close()

	s.Require().NoError(store.Put("main/a", MakeTable("ca", []string{"x", "y"}, []float64{1, 2})))
	s.Require().NoError(store.Put("main/b", MakeTable("cb", []string{"y", "z"}, []float64{3, 4})))

	merged, err := store.GetWithMerge([]string{"main/a", "main/b"})
	s.Require().NoError(err)
	s.Equal([]string{"y"}, merged.Index())
	s.Equal([]string{"ca", "cb"}, merged.Columns())
	v, _ := merged.Value("y", "ca")
	s.Equal(2.0, v)
	v, _ = merged.Value("y", "cb")
	s.Equal(3.0, v)

	s.Require().NoError(store.Put("main/c", MakeTable("cc", []string{"q"}, []float64{9})))
	_, err = store.GetWithMerge([]string{"main/a", "main/c"})
	s.True(tabular.ErrEmptyResult.Is(err))

	_, err = store.GetWithMerge([]string{"main/a", "main/nope"})
	s.True(tabular.ErrKeyNotFound.Is(err))
}

func (s *StoreSuite) TestAppend() {
	store := s.makeStore()
	defer store.Close()

	// creates when absent
	s.Require().NoError(store.Append("main/t", MakeTable("count", []string{"v1"}, []float64{1})))
	s.Require().NoError(store.SetMetadata("main/t", tabular.Metadata{"keep": "me"}, false))
	s.Require().NoError(store.Append("main/t", MakeTable("count", []string{"v2"}, []float64{2})))

	got, err := store.Get("main/t")
	s.Require().NoError(err)
	s.Equal([]string{"v1", "v2"}, got.Index())

	md, err := store.GetMetadata("main/t")
	s.Require().NoError(err)
	s.Equal(tabular.Metadata{"keep": "me"}, md)

	err = store.Append("main/t", MakeTable("other", []string{"v3"}, []float64{3}))
	s.True(tabular.ErrTypeMismatch.Is(err))
}

func (s *StoreSuite) TestKeysSorted() {
	store := s.makeStore()
	defer store.Close()

	for _, key := range []string{"raw/z", "main/a", "main/b"} {
		s.Require().NoError(store.Put(key, MakeTable("count", []string{"v"}, []float64{1})))
	}
	s.Equal([]string{"main/a", "main/b", "raw/z"}, store.Keys())
}

func (s *StoreSuite) TestClosedStoreRejectsOperations() {
	store := s.makeStore()
	s.Require().NoError(store.Put("main/t", MakeTable("count", []string{"v"}, []float64{1})))
	s.Require().NoError(store.Close())

	err := store.Put("main/u", MakeTable("count", []string{"v"}, []float64{1}))
	s.True(tabular.ErrNotOpen.Is(err))
	_, err = store.Get("main/t")
	s.True(tabular.ErrNotOpen.Is(err))
	err = store.Close()
	s.True(tabular.ErrNotOpen.Is(err))

	// predicates report an empty store rather than stale contents
	s.False(store.Has("main/t"))
	s.Empty(store.Keys())
	s.True(store.IsEmpty())
}

func (s *StoreSuite) TestReopenIdempotence() {
	if !s.Persistent {
		s.T().Skip("backend does not persist across Close")
	}
	dir := s.T().TempDir()
	store, err := s.Factory(dir)
	s.Require().NoError(err)

	raw := MakeTable("count", []string{"v1", "v2"}, []float64{3, tabular.Null()})
	main := MakeTable("score", []string{"v1"}, []float64{0.25})
	s.Require().NoError(store.Put("raw/variants/counts", raw))
	s.Require().NoError(store.Put("main/variants/scores", main))
	s.Require().NoError(store.SetMetadata("main/variants/scores", tabular.Metadata{"fingerprint": "f1"}, false))
	s.Require().NoError(store.Put("main/dropme", MakeTable("count", []string{"v"}, []float64{1})))
	s.Require().NoError(store.Drop("main/dropme"))
	s.Require().NoError(store.Close())

	store, err = s.Factory(dir)
	s.Require().NoError(err)
	defer store.Close()

	s.Equal([]string{"main/variants/scores", "raw/variants/counts"}, store.Keys())

	got, err := store.Get("raw/variants/counts")
	s.Require().NoError(err)
	s.assertTablesEqual(raw, got)

	got, err = store.Get("main/variants/scores")
	s.Require().NoError(err)
	s.assertTablesEqual(main, got)

	md, err := store.GetMetadata("main/variants/scores")
	s.Require().NoError(err)
	s.Equal(tabular.Metadata{"fingerprint": "f1"}, md)

	md, err = store.GetMetadata("raw/variants/counts")
	s.Require().NoError(err)
	s.Empty(md)
}

func (s *StoreSuite) TestExclusiveHandle() {
	if !s.Persistent {
		s.T().Skip("backend does not lock a path")
	}
	dir := s.T().TempDir()
	store, err := s.Factory(dir)
	s.Require().NoError(err)

	_, err = s.Factory(dir)
	s.True(tabular.ErrAlreadyOpen.Is(err))

	s.Require().NoError(store.Close())
	store, err = s.Factory(dir)
	s.Require().NoError(err)
	s.Require().NoError(store.Close())
}

func (s *StoreSuite) TestEmptyTableSurvives() {
	store := s.makeStore()
	defer store.Close()

	empty := tabular.NewTable(nil)
	s.Require().NoError(empty.AddColumn("count", nil))
	s.Require().NoError(store.Put("main/empty", empty))

	got, err := store.Get("main/empty")
	s.Require().NoError(err)
	s.Equal(0, got.NumRows())
	s.Equal([]string{"count"}, got.Columns())
}
