// Copyright 2026 Mutscan Authors. All rights reserved.
// Licensed under the Apache License, version 2.0:
// http://www.apache.org/licenses/LICENSE-2.0

package pipeline

import (
	"github.com/mutscan/mutscan/store/tabular"
	"github.com/mutscan/mutscan/utils/set"
)

// DefaultChunkSize bounds how many union rows a single merge pass holds in
// memory. Peak usage is O(sources x chunk) instead of O(sources x rows).
const DefaultChunkSize = 10000

// MergeSource supplies one column group of a union merge. Index lists the
// source's row keys; Rows fetches the named rows in order, with missing rows
// contributing all-null cells. Column names across the sources of one merge
// must be disjoint.
type MergeSource struct {
	Name  string
	Index func() ([]string, error)
	Rows  func(rows []string) (*tabular.Table, error)
}

// StoreSource adapts a stored table into a MergeSource whose columns are
// prefixed with name.
func StoreSource(name string, st tabular.TableStore, key string) MergeSource {
	return MergeSource{
		Name: name,
		Index: func() ([]string, error) {
			return st.GetIndex(key)
		},
		Rows: func(rows []string) (*tabular.Table, error) {
			t, err := st.GetRows(key, rows)
			if err != nil {
				return nil, err
			}
			return t.WithColumnPrefix(name), nil
		},
	}
}

// UnionMerge combines the sources into one table at dstKey, over the union
// of their row keys. The union is processed in fixed-size chunks: each chunk
// is fetched from every source, concatenated column-wise, and appended to
// the destination. If dstKey already exists the merge is skipped, which
// makes an interrupted run resumable: completed destinations are never
// rebuilt, and a failure mid-loop leaves prior chunks persisted.
func UnionMerge(dst tabular.TableStore, dstKey string, srcs []MergeSource, chunkSize int) error {
	if dst.Has(dstKey) {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	union := set.NewStrSet(nil)
	for _, src := range srcs {
		index, err := src.Index()
		if err != nil {
			return err
		}
		for _, key := range index {
			union.Add(key)
		}
	}
	rows := union.AsSortedSlice()

	if len(rows) == 0 {
		out := tabular.NewTable(nil)
		for _, src := range srcs {
			part, err := src.Rows(nil)
			if err != nil {
				return err
			}
			for _, col := range part.Columns() {
				vals, _ := part.Column(col)
				if err := out.AddColumn(col, vals); err != nil {
					return err
				}
			}
		}
		return dst.Put(dstKey, out)
	}

	for start := 0; start < len(rows); start += chunkSize {
		end := start + chunkSize
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]

		out := tabular.NewTable(chunk)
		for _, src := range srcs {
			part, err := src.Rows(chunk)
			if err != nil {
				return err
			}
			for _, col := range part.Columns() {
				vals, _ := part.Column(col)
				if err := out.AddColumn(col, vals); err != nil {
					return err
				}
			}
		}
		if err := dst.Append(dstKey, out); err != nil {
			return err
		}
	}
	return nil
}

// mergeUnion runs UnionMerge against the node's own store with the node's
// chunk size and stamps the result.
func (n *TreeNode) mergeUnion(dstKey string, srcs []MergeSource) error {
	if n.checkKey(dstKey) {
		return nil
	}
	if err := UnionMerge(n.store, dstKey, srcs, n.chunkRows()); err != nil {
		return err
	}
	return n.stampFingerprint(dstKey)
}
