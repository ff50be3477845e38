// Copyright 2026 Mutscan Authors. All rights reserved.
// Licensed under the Apache License, version 2.0:
// http://www.apache.org/licenses/LICENSE-2.0

package tabular

// Generic implementations of the derived TableStore operations, expressed in
// terms of the primitive ones. Backends delegate here unless they can do
// better natively.

// GenericAppend appends rows to the table at key, creating it if absent.
// Metadata survives the rewrite.
func GenericAppend(s TableStore, key string, t *Table) error {
	if !s.Has(key) {
		return s.Put(key, t)
	}
	existing, err := s.Get(key)
	if err != nil {
		return err
	}
	md, err := s.GetMetadata(key)
	if err != nil {
		return err
	}
	if err := existing.Append(t); err != nil {
		return err
	}
	if err := s.Put(key, existing); err != nil {
		return err
	}
	if len(md) > 0 {
		return s.SetMetadata(key, md, false)
	}
	return nil
}

// GenericMerge inner-joins the tables at keys on their row index.
func GenericMerge(s TableStore, keys []string) (*Table, error) {
	tables := make([]*Table, len(keys))
	for i, key := range keys {
		t, err := s.Get(key)
		if err != nil {
			return nil, err
		}
		tables[i] = t
	}
	return MergeTables(keys, tables)
}

// GenericRows selects the named rows from the table at key.
func GenericRows(s TableStore, key string, rows []string) (*Table, error) {
	t, err := s.Get(key)
	if err != nil {
		return nil, err
	}
	return t.Select(rows), nil
}

// GenericIndex returns the row keys of the table at key.
func GenericIndex(s TableStore, key string) ([]string, error) {
	t, err := s.Get(key)
	if err != nil {
		return nil, err
	}
	return t.Index(), nil
}

// GenericColumn projects a single column from the table at key.
func GenericColumn(s TableStore, key, column string) ([]float64, error) {
	t, err := s.Get(key)
	if err != nil {
		return nil, err
	}
	vals, ok := t.Column(column)
	if !ok {
		return nil, ErrColumnNotFound.New(column, key)
	}
	return vals, nil
}

// CopyMetadata returns a copy of md, never nil.
func CopyMetadata(md Metadata) Metadata {
	out := make(Metadata, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out
}
