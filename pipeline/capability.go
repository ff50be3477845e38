// Copyright 2026 Mutscan Authors. All rights reserved.
// Licensed under the Apache License, version 2.0:
// http://www.apache.org/licenses/LICENSE-2.0

package pipeline

import (
	"fmt"
	"sort"

	"github.com/mutscan/mutscan/store/tabular"
)

// Table-family labels a library can carry. A library's label set is the
// set of capabilities attached to it; an internal node's label set is the
// intersection across its children.
const (
	LabelVariants    = "variants"
	LabelBarcodes    = "barcodes"
	LabelIdentifiers = "identifiers"
	LabelSynonymous  = "synonymous"
)

var knownLabels = map[string]bool{
	LabelVariants:    true,
	LabelBarcodes:    true,
	LabelIdentifiers: true,
	LabelSynonymous:  true,
}

// Capability is one table family a library produces. A library holds an
// ordered list of capability components, each contributing its own label and
// sub-keys; compute invokes them in label-sorted order.
type Capability interface {
	Label() string
	Compute(lib *Library) error
}

// countsCapability loads a family's element counts into the raw group and
// filters them into the main group. The raw table survives fingerprint
// invalidation, so the load runs once per counts file.
type countsCapability struct {
	label    string
	file     string
	minCount float64
}

func newCountsCapability(label, file string, minCount float64) (*countsCapability, error) {
	if !knownLabels[label] {
		return nil, tabular.ErrConfig.New(fmt.Sprintf("unknown table family label '%s'", label))
	}
	if file == "" {
		return nil, tabular.ErrConfig.New(fmt.Sprintf("no counts file given for label '%s'", label))
	}
	return &countsCapability{label: label, file: file, minCount: minCount}, nil
}

func (c *countsCapability) Label() string {
	return c.label
}

func (c *countsCapability) rawKey() string {
	return fmt.Sprintf("%s/%s/counts", tabular.GroupRaw, c.label)
}

func (c *countsCapability) mainKey() string {
	return fmt.Sprintf("%s/%s/counts", tabular.GroupMain, c.label)
}

func (c *countsCapability) Compute(lib *Library) error {
	if !lib.store.Has(c.rawKey()) {
		t, err := readCountsFile(c.file)
		if err != nil {
			return err
		}
		lib.log.WithField("key", c.rawKey()).WithField("file", c.file).Info("loaded counts")
		if err := lib.putTable(c.rawKey(), t); err != nil {
			return err
		}
	}
	if lib.checkKey(c.mainKey()) {
		return nil
	}
	raw, err := lib.store.Get(c.rawKey())
	if err != nil {
		return err
	}
	return lib.putTable(c.mainKey(), filterMinCount(raw, c.minCount))
}

// filterMinCount keeps rows whose every cell is present and at least min.
func filterMinCount(t *tabular.Table, min float64) *tabular.Table {
	cols := t.Columns()
	keep := make([]string, 0, t.NumRows())
	for _, key := range t.Index() {
		ok := true
		for _, col := range cols {
			v, _ := t.Value(key, col)
			if tabular.IsNull(v) || v < min {
				ok = false
				break
			}
		}
		if ok {
			keep = append(keep, key)
		}
	}
	return t.Select(keep)
}

// sortCapabilities orders components by label so compute order is stable
// regardless of configuration order.
func sortCapabilities(caps []Capability) {
	sort.Slice(caps, func(i, j int) bool {
		return caps[i].Label() < caps[j].Label()
	})
}
