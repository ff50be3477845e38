// Copyright 2026 Mutscan Authors. All rights reserved.
// Licensed under the Apache License, version 2.0:
// http://www.apache.org/licenses/LICENSE-2.0

package tabulartest

import (
	"github.com/mutscan/mutscan/store/tabular"
)

// CountingStore wraps a TableStore and counts mutating calls. Pipeline tests
// use it to check that recomputation is skipped when results are present.
type CountingStore struct {
	tabular.TableStore

	Puts         int
	Appends      int
	Drops        int
	MetadataSets int
}

func NewCountingStore(inner tabular.TableStore) *CountingStore {
	return &CountingStore{TableStore: inner}
}

func (c *CountingStore) Put(key string, t *tabular.Table) error {
	c.Puts++
	return c.TableStore.Put(key, t)
}

func (c *CountingStore) Append(key string, t *tabular.Table) error {
	c.Appends++
	return c.TableStore.Append(key, t)
}

func (c *CountingStore) Drop(key string) error {
	c.Drops++
	return c.TableStore.Drop(key)
}

func (c *CountingStore) SetMetadata(key string, md tabular.Metadata, update bool) error {
	c.MetadataSets++
	return c.TableStore.SetMetadata(key, md, update)
}

// Writes is the total number of table-mutating calls seen.
func (c *CountingStore) Writes() int {
	return c.Puts + c.Appends + c.Drops
}

// Reset zeroes all counters.
func (c *CountingStore) Reset() {
	c.Puts, c.Appends, c.Drops, c.MetadataSets = 0, 0, 0, 0
}
