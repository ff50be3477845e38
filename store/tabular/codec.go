// Copyright 2026 Mutscan Authors. All rights reserved.
// Licensed under the Apache License, version 2.0:
// http://www.apache.org/licenses/LICENSE-2.0

package tabular

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/golang/snappy"
)

// Tables are persisted as snappy-compressed blocks. The uncompressed layout
// is:
//
//	|-- magic --|- uvarint -|-- row keys --|- uvarint -|---- columns ----|
//	|  "MTB1"   |   nrows   | len-prefixed |   ncols   | name + raw f64s |
//
// Row keys and column names are uvarint-length-prefixed byte strings; column
// values are little-endian float64 bits (NaN round-trips as the null
// marker).

var codecMagic = []byte("MTB1")

// EncodeTable serializes a table into a compressed block.
func EncodeTable(t *Table) []byte {
	var buf []byte
	var scratch [binary.MaxVarintLen64]byte

	putUvarint := func(v uint64) {
		n := binary.PutUvarint(scratch[:], v)
		buf = append(buf, scratch[:n]...)
	}
	putString := func(s string) {
		putUvarint(uint64(len(s)))
		buf = append(buf, s...)
	}

	buf = append(buf, codecMagic...)
	putUvarint(uint64(len(t.index)))
	for _, key := range t.index {
		putString(key)
	}
	putUvarint(uint64(len(t.cols)))
	for _, col := range t.cols {
		putString(col)
		var cell [8]byte
		for _, v := range t.data[col] {
			binary.LittleEndian.PutUint64(cell[:], math.Float64bits(v))
			buf = append(buf, cell[:]...)
		}
	}
	return snappy.Encode(nil, buf)
}

// DecodeTable deserializes a table from a compressed block produced by
// EncodeTable.
func DecodeTable(block []byte) (*Table, error) {
	buf, err := snappy.Decode(nil, block)
	if err != nil {
		return nil, ErrTypeMismatch.New(fmt.Sprintf("corrupt table block: %v", err))
	}
	if len(buf) < len(codecMagic) || string(buf[:len(codecMagic)]) != string(codecMagic) {
		return nil, ErrTypeMismatch.New("table block has bad magic")
	}
	buf = buf[len(codecMagic):]

	readUvarint := func() (uint64, error) {
		v, n := binary.Uvarint(buf)
		if n <= 0 {
			return 0, ErrTypeMismatch.New("truncated table block")
		}
		buf = buf[n:]
		return v, nil
	}
	readString := func() (string, error) {
		n, err := readUvarint()
		if err != nil {
			return "", err
		}
		if uint64(len(buf)) < n {
			return "", ErrTypeMismatch.New("truncated table block")
		}
		s := string(buf[:n])
		buf = buf[n:]
		return s, nil
	}

	nrows, err := readUvarint()
	if err != nil {
		return nil, err
	}
	// every row key takes at least its length prefix, so a count beyond the
	// remaining bytes is corruption, not a huge allocation
	if nrows > uint64(len(buf)) {
		return nil, ErrTypeMismatch.New("corrupt table block: row count exceeds block size")
	}
	index := make([]string, nrows)
	for i := range index {
		if index[i], err = readString(); err != nil {
			return nil, err
		}
	}
	t := NewTable(index)

	ncols, err := readUvarint()
	if err != nil {
		return nil, err
	}
	if ncols > uint64(len(buf)) {
		return nil, ErrTypeMismatch.New("corrupt table block: column count exceeds block size")
	}
	for i := uint64(0); i < ncols; i++ {
		name, err := readString()
		if err != nil {
			return nil, err
		}
		if uint64(len(buf))/8 < nrows {
			return nil, ErrTypeMismatch.New("truncated table block")
		}
		vals := make([]float64, nrows)
		for j := range vals {
			vals[j] = math.Float64frombits(binary.LittleEndian.Uint64(buf[j*8:]))
		}
		buf = buf[nrows*8:]
		if err := t.AddColumn(name, vals); err != nil {
			return nil, err
		}
	}
	return t, nil
}
