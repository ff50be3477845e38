// Copyright 2026 Mutscan Authors. All rights reserved.
// Licensed under the Apache License, version 2.0:
// http://www.apache.org/licenses/LICENSE-2.0

// Package memstore provides a non-persistent, map-backed TableStore. It is
// used by tests and by tooling that needs the store contract without disk
// I/O; unlike the file backends it does not survive Close.
package memstore

import (
	"github.com/mutscan/mutscan/store/tabular"
)

type memStore struct {
	path   string
	tables map[string]*tabular.Table
	meta   map[string]tabular.Metadata
	closed bool
}

var _ tabular.TableStore = &memStore{}

// New creates an empty in-memory store. The path is reported by Path but has
// no filesystem meaning.
func New(path string) tabular.TableStore {
	return &memStore{
		path:   path,
		tables: make(map[string]*tabular.Table),
		meta:   make(map[string]tabular.Metadata),
	}
}

func (m *memStore) check() error {
	if m.closed {
		return tabular.ErrNotOpen.New(m.path)
	}
	return nil
}

func (m *memStore) Put(key string, t *tabular.Table) error {
	if err := m.check(); err != nil {
		return err
	}
	key = tabular.NormalizeKey(key)
	m.tables[key] = t.Copy()
	m.meta[key] = tabular.Metadata{}
	return nil
}

func (m *memStore) Append(key string, t *tabular.Table) error {
	if err := m.check(); err != nil {
		return err
	}
	return tabular.GenericAppend(m, key, t)
}

func (m *memStore) Get(key string) (*tabular.Table, error) {
	if err := m.check(); err != nil {
		return nil, err
	}
	key = tabular.NormalizeKey(key)
	t, ok := m.tables[key]
	if !ok {
		return nil, tabular.ErrKeyNotFound.New(key)
	}
	return t.Copy(), nil
}

func (m *memStore) GetIndex(key string) ([]string, error) {
	return tabular.GenericIndex(m, key)
}

func (m *memStore) GetRows(key string, rows []string) (*tabular.Table, error) {
	return tabular.GenericRows(m, key, rows)
}

func (m *memStore) GetColumn(key, column string) ([]float64, error) {
	return tabular.GenericColumn(m, key, column)
}

func (m *memStore) Drop(key string) error {
	if err := m.check(); err != nil {
		return err
	}
	key = tabular.NormalizeKey(key)
	if _, ok := m.tables[key]; !ok {
		return tabular.ErrKeyNotFound.New(key)
	}
	delete(m.tables, key)
	delete(m.meta, key)
	return nil
}

func (m *memStore) GetWithMerge(keys []string) (*tabular.Table, error) {
	if err := m.check(); err != nil {
		return nil, err
	}
	return tabular.GenericMerge(m, keys)
}

func (m *memStore) SetMetadata(key string, md tabular.Metadata, update bool) error {
	if err := m.check(); err != nil {
		return err
	}
	key = tabular.NormalizeKey(key)
	if _, ok := m.tables[key]; !ok {
		return tabular.ErrKeyNotFound.New(key)
	}
	if update {
		merged := tabular.CopyMetadata(m.meta[key])
		for k, v := range md {
			merged[k] = v
		}
		m.meta[key] = merged
	} else {
		m.meta[key] = tabular.CopyMetadata(md)
	}
	return nil
}

func (m *memStore) GetMetadata(key string) (tabular.Metadata, error) {
	if err := m.check(); err != nil {
		return nil, err
	}
	key = tabular.NormalizeKey(key)
	if _, ok := m.tables[key]; !ok {
		return nil, tabular.ErrKeyNotFound.New(key)
	}
	return tabular.CopyMetadata(m.meta[key]), nil
}

func (m *memStore) Has(key string) bool {
	_, ok := m.tables[tabular.NormalizeKey(key)]
	return ok && !m.closed
}

func (m *memStore) Keys() []string {
	if m.closed {
		return nil
	}
	keys := make([]string, 0, len(m.tables))
	for key := range m.tables {
		keys = append(keys, key)
	}
	return tabular.SortKeys(keys)
}

func (m *memStore) IsEmpty() bool {
	if m.closed {
		return true
	}
	return len(m.tables) == 0
}

func (m *memStore) Path() string {
	return m.path
}

func (m *memStore) Close() error {
	if err := m.check(); err != nil {
		return err
	}
	m.closed = true
	return nil
}
