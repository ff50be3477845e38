// Copyright 2026 Mutscan Authors. All rights reserved.
// Licensed under the Apache License, version 2.0:
// http://www.apache.org/licenses/LICENSE-2.0

// Package dirstore implements the directory-of-partitions TableStore
// backend. The store is a directory with one sub-directory per table
// generation holding tab-separated partition files and a metadata.json
// sidecar, plus a top-level index.json mapping each key to its current
// generation directory, rewritten after each Put and Drop.
//
// The index rewrite is the commit point. Put stages a new generation, points
// the index at it, and only then retires the previous one, so a crash at any
// step leaves every registered key readable (old data or new) and at worst
// an unreferenced directory, which is swept on open. Unexpected files inside
// a key's directory make Drop fail loudly instead of leaving orphaned state
// behind.
package dirstore

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/juju/fslock"

	"github.com/mutscan/mutscan/store/tabular"
)

// Ext is the path extension this backend registers for.
const Ext = ".mdir"

const (
	lockFileName  = "LOCK"
	indexFileName = "index.json"
	metaFileName  = "metadata.json"
	tempDirPrefix = "tmp-"

	// nullToken is how a null cell is spelled in partition files.
	nullToken = "NA"

	// partRows is the maximum number of rows per partition file.
	partRows = 50000

	// tableCacheSize bounds the number of decoded tables kept in memory.
	tableCacheSize = 64
)

func init() {
	tabular.RegisterFactory(Ext, func(path string) (tabular.TableStore, error) {
		return Open(path)
	})
}

type indexFile struct {
	Keys map[string]string `json:"keys"` // key -> generation directory name
}

type dirStore struct {
	path   string
	lock   *fslock.Lock
	keys   map[string]string // key -> generation directory name
	cache  *lru.Cache[string, *tabular.Table]
	closed bool
}

var _ tabular.TableStore = &dirStore{}

// Open creates or reopens the store directory at path.
func Open(path string) (tabular.TableStore, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, tabular.ErrIO.New(path, err.Error())
	}
	lock := fslock.New(filepath.Join(path, lockFileName))
	if err := lock.TryLock(); err != nil {
		if err == fslock.ErrLocked {
			return nil, tabular.ErrAlreadyOpen.New(path)
		}
		return nil, tabular.ErrIO.New(path, err.Error())
	}

	cache, err := lru.New[string, *tabular.Table](tableCacheSize)
	if err != nil {
		_ = lock.Unlock()
		return nil, tabular.ErrIO.New(path, err.Error())
	}
	ds := &dirStore{path: path, lock: lock, keys: make(map[string]string), cache: cache}
	if err := ds.load(); err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	return ds, nil
}

// load reads index.json and sweeps directories no generation references:
// staging debris from interrupted puts and generations retired by an
// interrupted overwrite or drop.
func (ds *dirStore) load() error {
	indexPath := filepath.Join(ds.path, indexFileName)
	buf, err := os.ReadFile(indexPath)
	if err != nil && !os.IsNotExist(err) {
		return tabular.ErrIO.New(indexPath, err.Error())
	}
	if err == nil {
		var idx indexFile
		if err := json.Unmarshal(buf, &idx); err != nil {
			return tabular.ErrIO.New(indexPath, fmt.Sprintf("corrupt key index: %v", err))
		}
		for key, dir := range idx.Keys {
			ds.keys[key] = dir
		}
	}

	referenced := make(map[string]bool, len(ds.keys))
	for _, dir := range ds.keys {
		referenced[dir] = true
	}
	entries, err := os.ReadDir(ds.path)
	if err != nil {
		return tabular.ErrIO.New(ds.path, err.Error())
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if !referenced[e.Name()] {
			if err := os.RemoveAll(filepath.Join(ds.path, e.Name())); err != nil {
				return tabular.ErrIO.New(filepath.Join(ds.path, e.Name()), err.Error())
			}
		}
	}
	return nil
}

// keyDirName maps a key to the readable stem of its generation directory
// names. index.json is the source of truth for the key set; directory names
// are only derived, never parsed back into keys.
func keyDirName(key string) string {
	return strings.ReplaceAll(tabular.NormalizeKey(key), "/", "__")
}

// keyDir returns the current generation directory of a registered key.
func (ds *dirStore) keyDir(key string) string {
	return filepath.Join(ds.path, ds.keys[tabular.NormalizeKey(key)])
}

func (ds *dirStore) check() error {
	if ds.closed {
		return tabular.ErrNotOpen.New(ds.path)
	}
	return nil
}

func (ds *dirStore) writeIndex() error {
	buf, err := json.Marshal(indexFile{Keys: ds.keys})
	if err != nil {
		return tabular.ErrIO.New(ds.path, err.Error())
	}
	indexPath := filepath.Join(ds.path, indexFileName)
	temp := indexPath + ".new"
	if err := os.WriteFile(temp, buf, 0644); err != nil {
		return tabular.ErrIO.New(temp, err.Error())
	}
	if err := os.Rename(temp, indexPath); err != nil {
		_ = os.Remove(temp)
		return tabular.ErrIO.New(indexPath, err.Error())
	}
	return nil
}

func (ds *dirStore) Put(key string, t *tabular.Table) error {
	if err := ds.check(); err != nil {
		return err
	}
	key = tabular.NormalizeKey(key)

	staging, err := os.MkdirTemp(ds.path, tempDirPrefix)
	if err != nil {
		return tabular.ErrIO.New(ds.path, err.Error())
	}
	if err := writePartitions(staging, t); err != nil {
		_ = os.RemoveAll(staging)
		return err
	}
	if err := writeMetadataFile(staging, tabular.Metadata{}); err != nil {
		_ = os.RemoveAll(staging)
		return err
	}

	// commit: give the staged data its generation name, point the index at
	// it, then retire the previous generation. A crash on either side of the
	// index rewrite leaves the key readable, old data or new, plus at worst
	// an unreferenced directory for the open sweep.
	dirName := keyDirName(key) + "-" + strings.TrimPrefix(filepath.Base(staging), tempDirPrefix)
	dir := filepath.Join(ds.path, dirName)
	if err := os.Rename(staging, dir); err != nil {
		_ = os.RemoveAll(staging)
		return tabular.ErrIO.New(dir, err.Error())
	}

	prev, existed := ds.keys[key]
	ds.keys[key] = dirName
	if err := ds.writeIndex(); err != nil {
		if existed {
			ds.keys[key] = prev
		} else {
			delete(ds.keys, key)
		}
		_ = os.RemoveAll(dir)
		return err
	}
	if existed {
		// failure here leaves the retired generation for the open sweep
		_ = os.RemoveAll(filepath.Join(ds.path, prev))
	}
	ds.cache.Add(key, t.Copy())
	return nil
}

func (ds *dirStore) Append(key string, t *tabular.Table) error {
	if err := ds.check(); err != nil {
		return err
	}
	return tabular.GenericAppend(ds, key, t)
}

func (ds *dirStore) Get(key string) (*tabular.Table, error) {
	if err := ds.check(); err != nil {
		return nil, err
	}
	key = tabular.NormalizeKey(key)
	if _, ok := ds.keys[key]; !ok {
		return nil, tabular.ErrKeyNotFound.New(key)
	}
	if t, ok := ds.cache.Get(key); ok {
		return t.Copy(), nil
	}
	t, err := readPartitions(ds.keyDir(key))
	if err != nil {
		return nil, err
	}
	ds.cache.Add(key, t.Copy())
	return t, nil
}

func (ds *dirStore) GetIndex(key string) ([]string, error) {
	return tabular.GenericIndex(ds, key)
}

func (ds *dirStore) GetRows(key string, rows []string) (*tabular.Table, error) {
	return tabular.GenericRows(ds, key, rows)
}

func (ds *dirStore) GetColumn(key, column string) ([]float64, error) {
	return tabular.GenericColumn(ds, key, column)
}

func (ds *dirStore) Drop(key string) error {
	if err := ds.check(); err != nil {
		return err
	}
	key = tabular.NormalizeKey(key)
	if _, ok := ds.keys[key]; !ok {
		return tabular.ErrKeyNotFound.New(key)
	}

	dir := ds.keyDir(key)
	entries, err := os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		return tabular.ErrIO.New(dir, err.Error())
	}
	// a missing directory means the data is already cleaned up and only the
	// registration is left to undo
	for _, e := range entries {
		name := e.Name()
		expected := name == metaFileName ||
			(strings.HasPrefix(name, "part-") && strings.HasSuffix(name, ".tsv"))
		if !expected {
			return tabular.ErrIO.New(filepath.Join(dir, name),
				"unexpected file in key directory; refusing to drop")
		}
	}

	delete(ds.keys, key)
	ds.cache.Remove(key)
	if err := ds.writeIndex(); err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return tabular.ErrIO.New(dir, err.Error())
	}
	return nil
}

func (ds *dirStore) GetWithMerge(keys []string) (*tabular.Table, error) {
	if err := ds.check(); err != nil {
		return nil, err
	}
	return tabular.GenericMerge(ds, keys)
}

func (ds *dirStore) SetMetadata(key string, md tabular.Metadata, update bool) error {
	if err := ds.check(); err != nil {
		return err
	}
	key = tabular.NormalizeKey(key)
	if _, ok := ds.keys[key]; !ok {
		return tabular.ErrKeyNotFound.New(key)
	}
	out := tabular.CopyMetadata(md)
	if update {
		existing, err := readMetadataFile(ds.keyDir(key))
		if err != nil {
			return err
		}
		for k, v := range md {
			existing[k] = v
		}
		out = existing
	}
	return writeMetadataFile(ds.keyDir(key), out)
}

func (ds *dirStore) GetMetadata(key string) (tabular.Metadata, error) {
	if err := ds.check(); err != nil {
		return nil, err
	}
	key = tabular.NormalizeKey(key)
	if _, ok := ds.keys[key]; !ok {
		return nil, tabular.ErrKeyNotFound.New(key)
	}
	return readMetadataFile(ds.keyDir(key))
}

func (ds *dirStore) Has(key string) bool {
	if ds.closed {
		return false
	}
	_, ok := ds.keys[tabular.NormalizeKey(key)]
	return ok
}

func (ds *dirStore) Keys() []string {
	if ds.closed {
		return nil
	}
	keys := make([]string, 0, len(ds.keys))
	for key := range ds.keys {
		keys = append(keys, key)
	}
	return tabular.SortKeys(keys)
}

func (ds *dirStore) IsEmpty() bool {
	if ds.closed {
		return true
	}
	return len(ds.keys) == 0
}

func (ds *dirStore) Path() string {
	return ds.path
}

func (ds *dirStore) Close() error {
	if err := ds.check(); err != nil {
		return err
	}
	ds.closed = true
	ds.cache.Purge()
	if err := ds.lock.Unlock(); err != nil {
		return tabular.ErrIO.New(ds.path, err.Error())
	}
	return nil
}

// writePartitions writes t into dir as a run of part-NNNNN.tsv files with at
// most partRows rows each. An empty table still gets one part so the column
// names survive a reopen.
func writePartitions(dir string, t *tabular.Table) error {
	index := t.Index()
	cols := t.Columns()
	colData := make([][]float64, len(cols))
	for i, col := range cols {
		colData[i], _ = t.Column(col)
	}

	part := 0
	for start := 0; ; start += partRows {
		end := start + partRows
		if end > len(index) {
			end = len(index)
		}
		name := filepath.Join(dir, fmt.Sprintf("part-%05d.tsv", part))
		if err := writePart(name, cols, index[start:end], colData, start); err != nil {
			return err
		}
		part++
		if end == len(index) {
			break
		}
	}
	return nil
}

func writePart(name string, cols, rows []string, colData [][]float64, base int) error {
	f, err := os.Create(name)
	if err != nil {
		return tabular.ErrIO.New(name, err.Error())
	}
	w := bufio.NewWriter(f)

	header := append([]string{"element"}, cols...)
	if _, err := w.WriteString(strings.Join(header, "\t") + "\n"); err != nil {
		_ = f.Close()
		return tabular.ErrIO.New(name, err.Error())
	}
	fields := make([]string, len(cols)+1)
	for i, row := range rows {
		fields[0] = row
		for j := range cols {
			fields[j+1] = formatCell(colData[j][base+i])
		}
		if _, err := w.WriteString(strings.Join(fields, "\t") + "\n"); err != nil {
			_ = f.Close()
			return tabular.ErrIO.New(name, err.Error())
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return tabular.ErrIO.New(name, err.Error())
	}
	return f.Close()
}

func formatCell(v float64) string {
	if tabular.IsNull(v) {
		return nullToken
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// readPartitions reassembles a table from the part files in dir, in part
// order.
func readPartitions(dir string) (*tabular.Table, error) {
	parts, err := filepath.Glob(filepath.Join(dir, "part-*.tsv"))
	if err != nil {
		return nil, tabular.ErrIO.New(dir, err.Error())
	}
	if len(parts) == 0 {
		return nil, tabular.ErrIO.New(dir, "key directory has no partition files")
	}
	sort.Strings(parts)

	var cols []string
	var index []string
	var data [][]float64
	for _, part := range parts {
		partCols, partIndex, partData, err := readPart(part)
		if err != nil {
			return nil, err
		}
		if cols == nil {
			cols = partCols
			data = make([][]float64, len(cols))
		} else if !equalStrings(cols, partCols) {
			return nil, tabular.ErrIO.New(part, "partition columns do not match")
		}
		index = append(index, partIndex...)
		for i := range cols {
			data[i] = append(data[i], partData[i]...)
		}
	}

	t := tabular.NewTable(index)
	for i, col := range cols {
		if err := t.AddColumn(col, data[i]); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func readPart(name string) (cols, index []string, data [][]float64, err error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, nil, nil, tabular.ErrIO.New(name, err.Error())
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1<<16), 1<<24)
	if !scanner.Scan() {
		return nil, nil, nil, tabular.ErrIO.New(name, "partition file has no header")
	}
	header := strings.Split(scanner.Text(), "\t")
	if len(header) < 1 || header[0] != "element" {
		return nil, nil, nil, tabular.ErrIO.New(name, "partition file has a bad header")
	}
	cols = header[1:]
	data = make([][]float64, len(cols))

	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), "\t")
		if len(fields) != len(cols)+1 {
			return nil, nil, nil, tabular.ErrIO.New(name, "partition row has wrong field count")
		}
		index = append(index, fields[0])
		for i, field := range fields[1:] {
			v, err := parseCell(field)
			if err != nil {
				return nil, nil, nil, tabular.ErrIO.New(name, err.Error())
			}
			data[i] = append(data[i], v)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, nil, tabular.ErrIO.New(name, err.Error())
	}
	return cols, index, data, nil
}

func parseCell(field string) (float64, error) {
	if field == nullToken {
		return tabular.Null(), nil
	}
	return strconv.ParseFloat(field, 64)
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
