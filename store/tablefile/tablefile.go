// Copyright 2026 Mutscan Authors. All rights reserved.
// Licensed under the Apache License, version 2.0:
// http://www.apache.org/licenses/LICENSE-2.0

// Package tablefile implements the single-file TableStore backend. One file
// holds every table of a node: a header, snappy-compressed table blocks and
// JSON metadata blocks back to back, and a footer index mapping keys to
// block offsets.
//
// Mutations accumulate in memory and the whole file is rewritten through a
// temp-file-plus-rename on Flush and Close, so an interrupted run leaves
// either the previous file or the new one, never a torn mix. A sidecar lock
// file enforces one live handle per path.
package tablefile

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/juju/fslock"
	"github.com/pkg/errors"

	"github.com/mutscan/mutscan/store/tabular"
)

// Ext is the path extension this backend registers for.
const Ext = ".mtbl"

const (
	lockSuffix     = ".lock"
	tempFilePrefix = "mtf_"
)

var fileMagic = []byte("MSF1")

func init() {
	tabular.RegisterFactory(Ext, func(path string) (tabular.TableStore, error) {
		return Open(path)
	})
}

// segref locates a key's blocks inside the on-disk file.
type segref struct {
	metaOff, metaLen uint64
	dataOff, dataLen uint64
}

type tableFile struct {
	path string
	lock *fslock.Lock
	file *os.File // nil until the first flush of a fresh store

	segments map[string]segref
	pending  map[string][]byte // encoded blocks not yet flushed
	meta     map[string]tabular.Metadata
	dirty    bool
	closed   bool
}

var _ tabular.TableStore = &tableFile{}

// Open creates or reopens the store file at path, taking the sidecar lock.
// A second open of the same path fails with ErrAlreadyOpen until the first
// handle is closed.
func Open(path string) (tabular.TableStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, tabular.ErrIO.New(path, err.Error())
	}
	lock := fslock.New(path + lockSuffix)
	if err := lock.TryLock(); err != nil {
		if err == fslock.ErrLocked {
			return nil, tabular.ErrAlreadyOpen.New(path)
		}
		return nil, tabular.ErrIO.New(path, err.Error())
	}

	tf := &tableFile{
		path:     path,
		lock:     lock,
		segments: make(map[string]segref),
		pending:  make(map[string][]byte),
		meta:     make(map[string]tabular.Metadata),
	}
	if err := tf.load(); err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	return tf, nil
}

// load reads the footer index and every metadata block from an existing
// file. Table data blocks stay on disk until requested.
func (tf *tableFile) load() error {
	f, err := os.Open(tf.path)
	if os.IsNotExist(err) {
		return nil // fresh store
	}
	if err != nil {
		return tabular.ErrIO.New(tf.path, err.Error())
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return tabular.ErrIO.New(tf.path, err.Error())
	}
	size := info.Size()
	if size < int64(len(fileMagic)*2+8) {
		_ = f.Close()
		return tabular.ErrIO.New(tf.path, "store file is truncated")
	}

	head := make([]byte, len(fileMagic))
	if _, err := f.ReadAt(head, 0); err != nil || string(head) != string(fileMagic) {
		_ = f.Close()
		return tabular.ErrIO.New(tf.path, "store file has bad header magic")
	}
	tail := make([]byte, 8+len(fileMagic))
	if _, err := f.ReadAt(tail, size-int64(len(tail))); err != nil {
		_ = f.Close()
		return tabular.ErrIO.New(tf.path, err.Error())
	}
	if string(tail[8:]) != string(fileMagic) {
		_ = f.Close()
		return tabular.ErrIO.New(tf.path, "store file has bad footer magic")
	}
	indexOff := binary.LittleEndian.Uint64(tail[:8])
	if indexOff >= uint64(size) {
		_ = f.Close()
		return tabular.ErrIO.New(tf.path, "store file index offset out of range")
	}

	indexBytes := make([]byte, uint64(size)-uint64(len(tail))-indexOff)
	if _, err := f.ReadAt(indexBytes, int64(indexOff)); err != nil {
		_ = f.Close()
		return tabular.ErrIO.New(tf.path, err.Error())
	}
	if err := tf.parseIndex(indexBytes); err != nil {
		_ = f.Close()
		return err
	}

	for key, seg := range tf.segments {
		buf := make([]byte, seg.metaLen)
		if _, err := f.ReadAt(buf, int64(seg.metaOff)); err != nil {
			_ = f.Close()
			return tabular.ErrIO.New(tf.path, err.Error())
		}
		md := tabular.Metadata{}
		if err := json.Unmarshal(buf, &md); err != nil {
			_ = f.Close()
			return tabular.ErrIO.New(tf.path, fmt.Sprintf("corrupt metadata for key %s: %v", key, err))
		}
		tf.meta[key] = md
	}

	tf.file = f
	return nil
}

func (tf *tableFile) parseIndex(buf []byte) error {
	bad := func() error {
		return tabular.ErrIO.New(tf.path, "store file has a corrupt index")
	}
	readUvarint := func() (uint64, bool) {
		v, n := binary.Uvarint(buf)
		if n <= 0 {
			return 0, false
		}
		buf = buf[n:]
		return v, true
	}

	n, ok := readUvarint()
	if !ok {
		return bad()
	}
	for i := uint64(0); i < n; i++ {
		klen, ok := readUvarint()
		if !ok || uint64(len(buf)) < klen {
			return bad()
		}
		key := string(buf[:klen])
		buf = buf[klen:]
		if len(buf) < 32 {
			return bad()
		}
		tf.segments[key] = segref{
			metaOff: binary.LittleEndian.Uint64(buf[0:]),
			metaLen: binary.LittleEndian.Uint64(buf[8:]),
			dataOff: binary.LittleEndian.Uint64(buf[16:]),
			dataLen: binary.LittleEndian.Uint64(buf[24:]),
		}
		buf = buf[32:]
	}
	return nil
}

func (tf *tableFile) check() error {
	if tf.closed {
		return tabular.ErrNotOpen.New(tf.path)
	}
	return nil
}

// block returns the encoded table block for key, from the pending set or
// from disk.
func (tf *tableFile) block(key string) ([]byte, error) {
	if b, ok := tf.pending[key]; ok {
		return b, nil
	}
	seg, ok := tf.segments[key]
	if !ok || tf.file == nil {
		return nil, tabular.ErrKeyNotFound.New(key)
	}
	buf := make([]byte, seg.dataLen)
	if _, err := tf.file.ReadAt(buf, int64(seg.dataOff)); err != nil {
		return nil, tabular.ErrIO.New(tf.path, err.Error())
	}
	return buf, nil
}

func (tf *tableFile) has(key string) bool {
	if _, ok := tf.pending[key]; ok {
		return true
	}
	_, ok := tf.segments[key]
	return ok
}

func (tf *tableFile) Put(key string, t *tabular.Table) error {
	if err := tf.check(); err != nil {
		return err
	}
	key = tabular.NormalizeKey(key)
	tf.pending[key] = tabular.EncodeTable(t)
	tf.meta[key] = tabular.Metadata{}
	tf.dirty = true
	return nil
}

func (tf *tableFile) Append(key string, t *tabular.Table) error {
	if err := tf.check(); err != nil {
		return err
	}
	return tabular.GenericAppend(tf, key, t)
}

func (tf *tableFile) Get(key string) (*tabular.Table, error) {
	if err := tf.check(); err != nil {
		return nil, err
	}
	key = tabular.NormalizeKey(key)
	if !tf.has(key) {
		return nil, tabular.ErrKeyNotFound.New(key)
	}
	b, err := tf.block(key)
	if err != nil {
		return nil, err
	}
	t, err := tabular.DecodeTable(b)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding table at key %s in %s", key, tf.path)
	}
	return t, nil
}

func (tf *tableFile) GetIndex(key string) ([]string, error) {
	return tabular.GenericIndex(tf, key)
}

func (tf *tableFile) GetRows(key string, rows []string) (*tabular.Table, error) {
	return tabular.GenericRows(tf, key, rows)
}

func (tf *tableFile) GetColumn(key, column string) ([]float64, error) {
	return tabular.GenericColumn(tf, key, column)
}

func (tf *tableFile) Drop(key string) error {
	if err := tf.check(); err != nil {
		return err
	}
	key = tabular.NormalizeKey(key)
	if !tf.has(key) {
		return tabular.ErrKeyNotFound.New(key)
	}
	delete(tf.pending, key)
	delete(tf.segments, key)
	delete(tf.meta, key)
	tf.dirty = true
	return nil
}

func (tf *tableFile) GetWithMerge(keys []string) (*tabular.Table, error) {
	if err := tf.check(); err != nil {
		return nil, err
	}
	return tabular.GenericMerge(tf, keys)
}

func (tf *tableFile) SetMetadata(key string, md tabular.Metadata, update bool) error {
	if err := tf.check(); err != nil {
		return err
	}
	key = tabular.NormalizeKey(key)
	if !tf.has(key) {
		return tabular.ErrKeyNotFound.New(key)
	}
	if update {
		merged := tabular.CopyMetadata(tf.meta[key])
		for k, v := range md {
			merged[k] = v
		}
		tf.meta[key] = merged
	} else {
		tf.meta[key] = tabular.CopyMetadata(md)
	}
	tf.dirty = true
	return nil
}

func (tf *tableFile) GetMetadata(key string) (tabular.Metadata, error) {
	if err := tf.check(); err != nil {
		return nil, err
	}
	key = tabular.NormalizeKey(key)
	if !tf.has(key) {
		return nil, tabular.ErrKeyNotFound.New(key)
	}
	return tabular.CopyMetadata(tf.meta[key]), nil
}

func (tf *tableFile) Has(key string) bool {
	if tf.closed {
		return false
	}
	return tf.has(tabular.NormalizeKey(key))
}

func (tf *tableFile) Keys() []string {
	if tf.closed {
		return nil
	}
	keys := make([]string, 0, len(tf.segments)+len(tf.pending))
	for key := range tf.segments {
		keys = append(keys, key)
	}
	for key := range tf.pending {
		if _, ok := tf.segments[key]; !ok {
			keys = append(keys, key)
		}
	}
	return tabular.SortKeys(keys)
}

func (tf *tableFile) IsEmpty() bool {
	if tf.closed {
		return true
	}
	return len(tf.segments) == 0 && len(tf.pending) == 0
}

func (tf *tableFile) Path() string {
	return tf.path
}

// Flush rewrites the store file with all pending mutations applied. The new
// file is written beside the old one and renamed over it.
func (tf *tableFile) Flush() error {
	if err := tf.check(); err != nil {
		return err
	}
	if !tf.dirty {
		return nil
	}

	temp, err := os.CreateTemp(filepath.Dir(tf.path), tempFilePrefix)
	if err != nil {
		return tabular.ErrIO.New(tf.path, err.Error())
	}
	tempName := temp.Name()
	cleanup := func() {
		_ = temp.Close()
		_ = os.Remove(tempName)
	}

	segments, err := tf.writeFile(temp)
	if err != nil {
		cleanup()
		return err
	}
	if err := temp.Sync(); err != nil {
		cleanup()
		return tabular.ErrIO.New(tf.path, err.Error())
	}
	if err := temp.Close(); err != nil {
		cleanup()
		return tabular.ErrIO.New(tf.path, err.Error())
	}

	if tf.file != nil {
		_ = tf.file.Close()
		tf.file = nil
	}
	if err := os.Rename(tempName, tf.path); err != nil {
		_ = os.Remove(tempName)
		return tabular.ErrIO.New(tf.path, err.Error())
	}

	f, err := os.Open(tf.path)
	if err != nil {
		return tabular.ErrIO.New(tf.path, err.Error())
	}
	tf.file = f
	tf.segments = segments
	tf.pending = make(map[string][]byte)
	tf.dirty = false
	return nil
}

// writeFile streams the full store image to w and returns the new segment
// index.
func (tf *tableFile) writeFile(w io.Writer) (map[string]segref, error) {
	off := uint64(0)
	write := func(b []byte) error {
		if _, err := w.Write(b); err != nil {
			return tabular.ErrIO.New(tf.path, err.Error())
		}
		off += uint64(len(b))
		return nil
	}

	if err := write(fileMagic); err != nil {
		return nil, err
	}

	keys := tf.Keys()
	segments := make(map[string]segref, len(keys))
	for _, key := range keys {
		block, err := tf.block(key)
		if err != nil {
			return nil, err
		}
		mdBytes, err := json.Marshal(tf.meta[key])
		if err != nil {
			return nil, tabular.ErrIO.New(tf.path, err.Error())
		}
		seg := segref{metaOff: off, metaLen: uint64(len(mdBytes))}
		if err := write(mdBytes); err != nil {
			return nil, err
		}
		seg.dataOff = off
		seg.dataLen = uint64(len(block))
		if err := write(block); err != nil {
			return nil, err
		}
		segments[key] = seg
	}

	indexOff := off
	var idx []byte
	var scratch [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(scratch[:], uint64(len(keys)))
	idx = append(idx, scratch[:n]...)
	for _, key := range keys {
		n := binary.PutUvarint(scratch[:], uint64(len(key)))
		idx = append(idx, scratch[:n]...)
		idx = append(idx, key...)
		var cell [32]byte
		seg := segments[key]
		binary.LittleEndian.PutUint64(cell[0:], seg.metaOff)
		binary.LittleEndian.PutUint64(cell[8:], seg.metaLen)
		binary.LittleEndian.PutUint64(cell[16:], seg.dataOff)
		binary.LittleEndian.PutUint64(cell[24:], seg.dataLen)
		idx = append(idx, cell[:]...)
	}
	if err := write(idx); err != nil {
		return nil, err
	}

	var tail [8]byte
	binary.LittleEndian.PutUint64(tail[:], indexOff)
	if err := write(tail[:]); err != nil {
		return nil, err
	}
	if err := write(fileMagic); err != nil {
		return nil, err
	}
	return segments, nil
}

func (tf *tableFile) Close() error {
	if err := tf.check(); err != nil {
		return err
	}
	flushErr := tf.Flush()
	if tf.file != nil {
		_ = tf.file.Close()
		tf.file = nil
	}
	tf.closed = true
	if err := tf.lock.Unlock(); err != nil && flushErr == nil {
		flushErr = tabular.ErrIO.New(tf.path, err.Error())
	}
	return flushErr
}
