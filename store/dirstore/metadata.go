// Copyright 2026 Mutscan Authors. All rights reserved.
// Licensed under the Apache License, version 2.0:
// http://www.apache.org/licenses/LICENSE-2.0

package dirstore

import (
	"os"
	"path/filepath"

	"github.com/goccy/go-json"

	"github.com/mutscan/mutscan/store/tabular"
)

func metadataPath(keyDir string) string {
	return filepath.Join(keyDir, metaFileName)
}

func readMetadataFile(keyDir string) (tabular.Metadata, error) {
	path := metadataPath(keyDir)
	buf, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return tabular.Metadata{}, nil
	}
	if err != nil {
		return nil, tabular.ErrIO.New(path, err.Error())
	}
	md := tabular.Metadata{}
	if err := json.Unmarshal(buf, &md); err != nil {
		return nil, tabular.ErrIO.New(path, err.Error())
	}
	return md, nil
}

func writeMetadataFile(keyDir string, md tabular.Metadata) error {
	path := metadataPath(keyDir)
	buf, err := json.Marshal(md)
	if err != nil {
		return tabular.ErrIO.New(path, err.Error())
	}
	temp := path + ".new"
	if err := os.WriteFile(temp, buf, 0644); err != nil {
		return tabular.ErrIO.New(temp, err.Error())
	}
	if err := os.Rename(temp, path); err != nil {
		_ = os.Remove(temp)
		return tabular.ErrIO.New(path, err.Error())
	}
	return nil
}
