// Copyright 2026 Mutscan Authors. All rights reserved.
// Licensed under the Apache License, version 2.0:
// http://www.apache.org/licenses/LICENSE-2.0

// Package tabular defines the key-indexed table store used by every analysis
// node, the Table value type it traffics in, and the backend registry.
// Backend implementations live in sibling packages and satisfy the identical
// TableStore contract, enforced by the shared conformance suite in
// store/tabulartest.
package tabular

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

const (
	// GroupRaw prefixes keys holding unfiltered, parameter-independent data.
	GroupRaw = "raw"

	// GroupMain prefixes keys holding filtered or aggregated data. Main-group
	// keys are invalidated wholesale on a fingerprint mismatch; raw-group
	// keys survive.
	GroupMain = "main"
)

// Metadata is the arbitrary string-keyed record attached to every key.
type Metadata map[string]string

// TableStore is a key-indexed store of tables with per-key metadata. Keys
// are slash-delimited hierarchical strings partitioned into the "raw" and
// "main" root groups. All operations are synchronous and leave the store in
// a consistent, reopenable state on success. A store handle is owned by a
// single node and is not safe for concurrent use.
type TableStore interface {
	// Put writes or overwrites key. Overwrite discards previous metadata.
	// The key is registered so that an interrupted run either shows the key
	// with valid data or does not show the key at all.
	Put(key string, t *Table) error

	// Append appends rows to the table at key, creating it if absent. The
	// appended table's columns must match the existing table's columns.
	Append(key string, t *Table) error

	// Get returns the table at key, or ErrKeyNotFound.
	Get(key string) (*Table, error)

	// GetIndex returns the row keys of the table at key without
	// materializing its columns.
	GetIndex(key string) ([]string, error)

	// GetRows returns the rows of the table at key named by rows, in the
	// order given. Missing rows contribute all-null rows.
	GetRows(key string, rows []string) (*Table, error)

	// GetColumn projects a single column from the table at key. Fails with
	// ErrKeyNotFound or ErrColumnNotFound.
	GetColumn(key, column string) ([]float64, error)

	// Drop removes the table, its metadata, and its key registration. Fails
	// with ErrKeyNotFound if absent, and must not leave partial artifacts
	// behind.
	Drop(key string) error

	// GetWithMerge inner-joins the tables at keys on their row index, in the
	// order given; the first key's row order dictates the output order.
	// Fails with ErrEmptyResult if the intersection is empty and
	// ErrKeyNotFound if any key is absent.
	GetWithMerge(keys []string) (*Table, error)

	// SetMetadata replaces (update=false) or merges (update=true, new keys
	// winning) the metadata at key. Fails with ErrKeyNotFound if the key is
	// absent.
	SetMetadata(key string, md Metadata, update bool) error

	// GetMetadata returns the metadata at key; an empty map if none was ever
	// set, ErrKeyNotFound if the key itself is absent.
	GetMetadata(key string) (Metadata, error)

	// Has reports whether key is present.
	Has(key string) bool

	// Keys returns all keys, sorted.
	Keys() []string

	// IsEmpty reports whether the store holds no keys.
	IsEmpty() bool

	// Path returns the store's resolved path.
	Path() string

	// Close flushes pending writes and releases the exclusive handle.
	// A closed store rejects every error-returning operation with ErrNotOpen;
	// the predicates Has, Keys, and IsEmpty report an empty store.
	Close() error
}

// NormalizeKey strips a leading slash so that "/main/x" and "main/x" address
// the same table.
func NormalizeKey(key string) string {
	return strings.TrimPrefix(key, "/")
}

// IsMainKey reports whether key belongs to the main group.
func IsMainKey(key string) bool {
	return strings.HasPrefix(NormalizeKey(key), GroupMain+"/")
}

// IsRawKey reports whether key belongs to the raw group.
func IsRawKey(key string) bool {
	return strings.HasPrefix(NormalizeKey(key), GroupRaw+"/")
}

// ExportFileName converts a key into a flat-export file name by replacing
// the path separators with underscores.
func ExportFileName(key string) string {
	return strings.ReplaceAll(NormalizeKey(key), "/", "_") + ".tsv"
}

// SortKeys sorts a key slice in place and returns it.
func SortKeys(keys []string) []string {
	sort.Strings(keys)
	return keys
}

// Factory creates or reopens a store at path.
type Factory func(path string) (TableStore, error)

var factories = map[string]Factory{}

// RegisterFactory binds a path extension (e.g. ".mtbl") to a backend
// constructor. Registration happens once at process start from backend
// package init functions; re-registering an extension panics.
func RegisterFactory(ext string, f Factory) {
	if _, ok := factories[ext]; ok {
		panic(fmt.Sprintf("tabular: backend for extension %q registered twice", ext))
	}
	factories[ext] = f
}

// OpenStore creates or reopens the store at path, selecting the backend by
// the path's extension. An unknown extension is an ErrConfig, not a panic:
// it is reachable from user configuration.
func OpenStore(path string) (TableStore, error) {
	ext := filepath.Ext(path)
	f, ok := factories[ext]
	if !ok {
		return nil, ErrConfig.New(fmt.Sprintf("no table store backend for extension %q (path %s)", ext, path))
	}
	return f(path)
}

// RegisteredExtensions returns the extensions with registered backends,
// sorted.
func RegisteredExtensions() []string {
	exts := make([]string, 0, len(factories))
	for ext := range factories {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}
