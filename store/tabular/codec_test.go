// Copyright 2026 Mutscan Authors. All rights reserved.
// Licensed under the Apache License, version 2.0:
// http://www.apache.org/licenses/LICENSE-2.0

package tabular

import (
	"encoding/binary"
	"testing"

	"github.com/golang/snappy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecRoundTrip(t *testing.T) {
	tbl := NewTable([]string{"v1", "v2", "v3"})
	require.NoError(t, tbl.AddColumn("count", []float64{3, 5, Null()}))
	require.NoError(t, tbl.AddColumn("score", []float64{-0.5, 0, 1e300}))

	got, err := DecodeTable(EncodeTable(tbl))
	require.NoError(t, err)
	assert.Equal(t, tbl.Index(), got.Index())
	assert.Equal(t, tbl.Columns(), got.Columns())

	v, _ := got.Value("v3", "count")
	assert.True(t, IsNull(v))
	v, _ = got.Value("v3", "score")
	assert.Equal(t, 1e300, v)
}

func TestCodecEmptyTable(t *testing.T) {
	tbl := NewTable(nil)
	require.NoError(t, tbl.AddColumn("count", nil))

	got, err := DecodeTable(EncodeTable(tbl))
	require.NoError(t, err)
	assert.Equal(t, 0, got.NumRows())
	assert.Equal(t, []string{"count"}, got.Columns())
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := DecodeTable([]byte("not a table"))
	assert.Error(t, err)

	_, err = DecodeTable(nil)
	assert.Error(t, err)
}

func TestDecodeRejectsOversizedCounts(t *testing.T) {
	// a block claiming more rows than it has bytes must fail cleanly
	// instead of allocating for the claimed count
	forged := func(count uint64) []byte {
		var scratch [binary.MaxVarintLen64]byte
		buf := append([]byte(nil), codecMagic...)
		n := binary.PutUvarint(scratch[:], count)
		return snappy.Encode(nil, append(buf, scratch[:n]...))
	}

	_, err := DecodeTable(forged(1 << 62))
	assert.True(t, ErrTypeMismatch.Is(err))

	_, err = DecodeTable(forged(^uint64(0)))
	assert.True(t, ErrTypeMismatch.Is(err))
}
