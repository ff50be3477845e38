// Copyright 2026 Mutscan Authors. All rights reserved.
// Licensed under the Apache License, version 2.0:
// http://www.apache.org/licenses/LICENSE-2.0

// Package ldbstore implements a LevelDB-backed TableStore. Table blocks and
// metadata records live under separate key prefixes and are written in one
// batch, so a key is registered atomically with its data.
package ldbstore

import (
	"bytes"

	"github.com/goccy/go-json"
	"github.com/juju/fslock"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
	ldbutil "github.com/syndtr/goleveldb/leveldb/util"

	"github.com/mutscan/mutscan/store/tabular"
)

// Ext is the path extension this backend registers for.
const Ext = ".ldb"

var (
	tablePrefix = []byte("t/")
	metaPrefix  = []byte("m/")
)

func init() {
	tabular.RegisterFactory(Ext, func(path string) (tabular.TableStore, error) {
		return Open(path)
	})
}

type ldbStore struct {
	path   string
	lock   *fslock.Lock
	db     *leveldb.DB
	closed bool
}

var _ tabular.TableStore = &ldbStore{}

// Open creates or reopens the LevelDB directory at path. Table blocks are
// already snappy-compressed, so LevelDB's own compression is disabled.
func Open(path string) (tabular.TableStore, error) {
	lock := fslock.New(path + ".lock")
	if err := lock.TryLock(); err != nil {
		if err == fslock.ErrLocked {
			return nil, tabular.ErrAlreadyOpen.New(path)
		}
		return nil, tabular.ErrIO.New(path, err.Error())
	}
	db, err := leveldb.OpenFile(path, &opt.Options{
		Compression: opt.NoCompression,
		Filter:      filter.NewBloomFilter(10), // 10 bits/key
	})
	if err != nil {
		_ = lock.Unlock()
		return nil, tabular.ErrIO.New(path, err.Error())
	}
	return &ldbStore{path: path, lock: lock, db: db}, nil
}

func tableKey(key string) []byte {
	return append(append([]byte(nil), tablePrefix...), key...)
}

func metaKey(key string) []byte {
	return append(append([]byte(nil), metaPrefix...), key...)
}

func (l *ldbStore) check() error {
	if l.closed {
		return tabular.ErrNotOpen.New(l.path)
	}
	return nil
}

func (l *ldbStore) has(key string) bool {
	ok, err := l.db.Has(tableKey(key), nil)
	return err == nil && ok
}

func (l *ldbStore) Put(key string, t *tabular.Table) error {
	if err := l.check(); err != nil {
		return err
	}
	key = tabular.NormalizeKey(key)
	mdBytes, err := json.Marshal(tabular.Metadata{})
	if err != nil {
		return tabular.ErrIO.New(l.path, err.Error())
	}
	batch := new(leveldb.Batch)
	batch.Put(tableKey(key), tabular.EncodeTable(t))
	batch.Put(metaKey(key), mdBytes)
	if err := l.db.Write(batch, &opt.WriteOptions{Sync: true}); err != nil {
		return tabular.ErrIO.New(l.path, err.Error())
	}
	return nil
}

func (l *ldbStore) Append(key string, t *tabular.Table) error {
	if err := l.check(); err != nil {
		return err
	}
	return tabular.GenericAppend(l, key, t)
}

func (l *ldbStore) Get(key string) (*tabular.Table, error) {
	if err := l.check(); err != nil {
		return nil, err
	}
	key = tabular.NormalizeKey(key)
	block, err := l.db.Get(tableKey(key), nil)
	if err == leveldb.ErrNotFound {
		return nil, tabular.ErrKeyNotFound.New(key)
	}
	if err != nil {
		return nil, tabular.ErrIO.New(l.path, err.Error())
	}
	return tabular.DecodeTable(block)
}

func (l *ldbStore) GetIndex(key string) ([]string, error) {
	return tabular.GenericIndex(l, key)
}

func (l *ldbStore) GetRows(key string, rows []string) (*tabular.Table, error) {
	return tabular.GenericRows(l, key, rows)
}

func (l *ldbStore) GetColumn(key, column string) ([]float64, error) {
	return tabular.GenericColumn(l, key, column)
}

func (l *ldbStore) Drop(key string) error {
	if err := l.check(); err != nil {
		return err
	}
	key = tabular.NormalizeKey(key)
	if !l.has(key) {
		return tabular.ErrKeyNotFound.New(key)
	}
	batch := new(leveldb.Batch)
	batch.Delete(tableKey(key))
	batch.Delete(metaKey(key))
	if err := l.db.Write(batch, &opt.WriteOptions{Sync: true}); err != nil {
		return tabular.ErrIO.New(l.path, err.Error())
	}
	return nil
}

func (l *ldbStore) GetWithMerge(keys []string) (*tabular.Table, error) {
	if err := l.check(); err != nil {
		return nil, err
	}
	return tabular.GenericMerge(l, keys)
}

func (l *ldbStore) SetMetadata(key string, md tabular.Metadata, update bool) error {
	if err := l.check(); err != nil {
		return err
	}
	key = tabular.NormalizeKey(key)
	if !l.has(key) {
		return tabular.ErrKeyNotFound.New(key)
	}
	out := tabular.CopyMetadata(md)
	if update {
		existing, err := l.GetMetadata(key)
		if err != nil {
			return err
		}
		for k, v := range md {
			existing[k] = v
		}
		out = existing
	}
	buf, err := json.Marshal(out)
	if err != nil {
		return tabular.ErrIO.New(l.path, err.Error())
	}
	if err := l.db.Put(metaKey(key), buf, &opt.WriteOptions{Sync: true}); err != nil {
		return tabular.ErrIO.New(l.path, err.Error())
	}
	return nil
}

func (l *ldbStore) GetMetadata(key string) (tabular.Metadata, error) {
	if err := l.check(); err != nil {
		return nil, err
	}
	key = tabular.NormalizeKey(key)
	if !l.has(key) {
		return nil, tabular.ErrKeyNotFound.New(key)
	}
	buf, err := l.db.Get(metaKey(key), nil)
	if err == leveldb.ErrNotFound {
		return tabular.Metadata{}, nil
	}
	if err != nil {
		return nil, tabular.ErrIO.New(l.path, err.Error())
	}
	md := tabular.Metadata{}
	if err := json.Unmarshal(buf, &md); err != nil {
		return nil, tabular.ErrIO.New(l.path, err.Error())
	}
	return md, nil
}

func (l *ldbStore) Has(key string) bool {
	return !l.closed && l.has(tabular.NormalizeKey(key))
}

func (l *ldbStore) Keys() []string {
	if l.closed {
		return nil
	}
	var keys []string
	iter := l.db.NewIterator(ldbutil.BytesPrefix(tablePrefix), nil)
	for iter.Next() {
		keys = append(keys, string(bytes.TrimPrefix(iter.Key(), tablePrefix)))
	}
	iter.Release()
	return tabular.SortKeys(keys)
}

func (l *ldbStore) IsEmpty() bool {
	if l.closed {
		return true
	}
	iter := l.db.NewIterator(ldbutil.BytesPrefix(tablePrefix), nil)
	defer iter.Release()
	return !iter.Next()
}

func (l *ldbStore) Path() string {
	return l.path
}

func (l *ldbStore) Close() error {
	if err := l.check(); err != nil {
		return err
	}
	l.closed = true
	err := l.db.Close()
	if unlockErr := l.lock.Unlock(); unlockErr != nil && err == nil {
		err = unlockErr
	}
	if err != nil {
		return tabular.ErrIO.New(l.path, err.Error())
	}
	return nil
}
