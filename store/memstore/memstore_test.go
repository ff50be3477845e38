// Copyright 2026 Mutscan Authors. All rights reserved.
// Licensed under the Apache License, version 2.0:
// http://www.apache.org/licenses/LICENSE-2.0

package memstore

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/mutscan/mutscan/store/tabular"
	"github.com/mutscan/mutscan/store/tabulartest"
)

func TestMemStore(t *testing.T) {
	suite.Run(t, &tabulartest.StoreSuite{
		Factory: func(dir string) (tabular.TableStore, error) {
			return New(dir + "/store.mem"), nil
		},
		Persistent: false,
	})
}

func TestPutCopiesTable(t *testing.T) {
	store := New("test.mem")
	defer store.Close()

	original := tabulartest.MakeTable("count", []string{"v1"}, []float64{1})
	require.NoError(t, store.Put("main/t", original))
	require.NoError(t, original.AddColumn("extra", []float64{9}))

	got, err := store.Get("main/t")
	require.NoError(t, err)
	require.Equal(t, []string{"count"}, got.Columns())
}
