// Copyright 2026 Mutscan Authors. All rights reserved.
// Licensed under the Apache License, version 2.0:
// http://www.apache.org/licenses/LICENSE-2.0

package tabular

import (
	"fmt"
	"math"
	"sort"
)

// Null is the value stored for a missing cell. Tables hold float64 data and
// use NaN for nulls, so aggregations must go through IsNull rather than
// comparing against a sentinel.
func Null() float64 {
	return math.NaN()
}

// IsNull reports whether a cell value is the null marker.
func IsNull(v float64) bool {
	return math.IsNaN(v)
}

// Table is an immutable-index, column-major table of float64 values keyed by
// string row labels. Row order is significant and preserved by every
// operation. Column values are stored densely; missing cells are NaN.
type Table struct {
	index []string
	cols  []string
	data  map[string][]float64
	pos   map[string]int
}

// NewTable creates a table with the given row index and no columns. The
// index slice is copied.
func NewTable(index []string) *Table {
	t := &Table{
		index: append([]string(nil), index...),
		data:  make(map[string][]float64),
		pos:   make(map[string]int, len(index)),
	}
	for i, key := range t.index {
		t.pos[key] = i
	}
	return t
}

// NumRows returns the number of rows.
func (t *Table) NumRows() int {
	return len(t.index)
}

// NumCols returns the number of columns.
func (t *Table) NumCols() int {
	return len(t.cols)
}

// Index returns a copy of the row index, in row order.
func (t *Table) Index() []string {
	return append([]string(nil), t.index...)
}

// Columns returns a copy of the column names, in column order.
func (t *Table) Columns() []string {
	return append([]string(nil), t.cols...)
}

// HasRow reports whether the table contains a row with the given key.
func (t *Table) HasRow(key string) bool {
	_, ok := t.pos[key]
	return ok
}

// AddColumn appends a column. The value slice is copied and must have one
// entry per row.
func (t *Table) AddColumn(name string, vals []float64) error {
	if len(vals) != len(t.index) {
		return ErrTypeMismatch.New(fmt.Sprintf("column '%s' has %d values for %d rows", name, len(vals), len(t.index)))
	}
	if _, ok := t.data[name]; ok {
		return ErrTypeMismatch.New(fmt.Sprintf("duplicate column '%s'", name))
	}
	t.cols = append(t.cols, name)
	t.data[name] = append([]float64(nil), vals...)
	return nil
}

// Column returns the values of the named column in row order.
func (t *Table) Column(name string) ([]float64, bool) {
	vals, ok := t.data[name]
	if !ok {
		return nil, false
	}
	return append([]float64(nil), vals...), true
}

// Value returns the cell at (rowKey, col). The second return is false if the
// row or column does not exist.
func (t *Table) Value(rowKey, col string) (float64, bool) {
	i, ok := t.pos[rowKey]
	if !ok {
		return Null(), false
	}
	vals, ok := t.data[col]
	if !ok {
		return Null(), false
	}
	return vals[i], true
}

// Copy returns a deep copy of the table.
func (t *Table) Copy() *Table {
	c := NewTable(t.index)
	for _, col := range t.cols {
		_ = c.AddColumn(col, t.data[col])
	}
	return c
}

// Select returns a new table with the given row keys, in the given order.
// Keys absent from the table contribute all-null rows.
func (t *Table) Select(keys []string) *Table {
	out := NewTable(keys)
	for _, col := range t.cols {
		src := t.data[col]
		vals := make([]float64, len(keys))
		for i, key := range keys {
			if j, ok := t.pos[key]; ok {
				vals[i] = src[j]
			} else {
				vals[i] = Null()
			}
		}
		_ = out.AddColumn(col, vals)
	}
	return out
}

// WithColumnPrefix returns a copy of the table with every column renamed to
// "<prefix>.<name>".
func (t *Table) WithColumnPrefix(prefix string) *Table {
	c := NewTable(t.index)
	for _, col := range t.cols {
		_ = c.AddColumn(prefix+"."+col, t.data[col])
	}
	return c
}

// Append appends the rows of other to t. Both tables must have identical
// column names in identical order, and the row key sets must be disjoint.
func (t *Table) Append(other *Table) error {
	if len(t.cols) != len(other.cols) {
		return ErrTypeMismatch.New(fmt.Sprintf("append with %d columns onto %d columns", len(other.cols), len(t.cols)))
	}
	for i, col := range t.cols {
		if other.cols[i] != col {
			return ErrTypeMismatch.New(fmt.Sprintf("append column '%s' does not match '%s'", other.cols[i], col))
		}
	}
	for _, key := range other.index {
		if _, ok := t.pos[key]; ok {
			return ErrTypeMismatch.New(fmt.Sprintf("append with duplicate row key '%s'", key))
		}
	}
	base := len(t.index)
	t.index = append(t.index, other.index...)
	for i, key := range other.index {
		t.pos[key] = base + i
	}
	for _, col := range t.cols {
		t.data[col] = append(t.data[col], other.data[col]...)
	}
	return nil
}

// MergeTables performs an inner join of the given tables on their row
// indexes. Row order follows the first table. Column name collisions are
// resolved by suffixing the later column with its table ordinal. The keys
// argument is used for error reporting only.
func MergeTables(keys []string, tables []*Table) (*Table, error) {
	if len(tables) == 0 {
		return nil, ErrEmptyResult.New(keys)
	}
	shared := make([]string, 0, tables[0].NumRows())
	for _, key := range tables[0].index {
		inAll := true
		for _, t := range tables[1:] {
			if !t.HasRow(key) {
				inAll = false
				break
			}
		}
		if inAll {
			shared = append(shared, key)
		}
	}
	if len(shared) == 0 {
		return nil, ErrEmptyResult.New(keys)
	}
	out := NewTable(shared)
	seen := make(map[string]bool)
	for i, t := range tables {
		sel := t.Select(shared)
		for _, col := range sel.cols {
			name := col
			if seen[name] {
				name = fmt.Sprintf("%s.%d", col, i)
			}
			seen[name] = true
			if err := out.AddColumn(name, sel.data[col]); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// SumTables combines tables over the sorted union of their row keys,
// summing cell values per column name. Cells missing from every input stay
// null; otherwise nulls are treated as zero.
func SumTables(tables []*Table) *Table {
	keySet := make(map[string]bool)
	var cols []string
	colSeen := make(map[string]bool)
	for _, t := range tables {
		for _, key := range t.index {
			keySet[key] = true
		}
		for _, col := range t.cols {
			if !colSeen[col] {
				colSeen[col] = true
				cols = append(cols, col)
			}
		}
	}
	keys := make([]string, 0, len(keySet))
	for key := range keySet {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := NewTable(keys)
	for _, col := range cols {
		vals := make([]float64, len(keys))
		for i, key := range keys {
			sum := Null()
			for _, t := range tables {
				v, ok := t.Value(key, col)
				if !ok || IsNull(v) {
					continue
				}
				if IsNull(sum) {
					sum = v
				} else {
					sum += v
				}
			}
			vals[i] = sum
		}
		_ = out.AddColumn(col, vals)
	}
	return out
}
