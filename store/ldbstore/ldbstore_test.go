// Copyright 2026 Mutscan Authors. All rights reserved.
// Licensed under the Apache License, version 2.0:
// http://www.apache.org/licenses/LICENSE-2.0

package ldbstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/mutscan/mutscan/store/tabular"
	"github.com/mutscan/mutscan/store/tabulartest"
)

func TestLevelDBStore(t *testing.T) {
	suite.Run(t, &tabulartest.StoreSuite{
		Factory: func(dir string) (tabular.TableStore, error) {
			return Open(filepath.Join(dir, "store"+Ext))
		},
		Persistent: true,
	})
}

func TestFactoryRegistration(t *testing.T) {
	store, err := tabular.OpenStore(filepath.Join(t.TempDir(), "node_variants"+Ext))
	require.NoError(t, err)
	require.NoError(t, store.Put("main/t", tabulartest.MakeTable("count", []string{"v"}, []float64{1})))
	require.NoError(t, store.Close())
}
