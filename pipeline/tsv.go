// Copyright 2026 Mutscan Authors. All rights reserved.
// Licensed under the Apache License, version 2.0:
// http://www.apache.org/licenses/LICENSE-2.0

package pipeline

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mutscan/mutscan/store/tabular"
)

// WriteBufSize is the size of the write buffer used by TSV export.
const WriteBufSize = 256 * 1024

// naValue is how missing cells appear in TSV files, both ways.
const naValue = "NA"

// readCountsFile loads a tab-separated counts file: a header line naming the
// element column first and a "count" column somewhere, then one element per
// line. Extra columns are ignored.
func readCountsFile(path string) (*tabular.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, tabular.ErrIO.New(path, err.Error())
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if !scanner.Scan() {
		return nil, tabular.ErrIO.New(path, "counts file is empty")
	}
	header := strings.Split(scanner.Text(), "\t")
	countCol := -1
	for i, name := range header {
		if i > 0 && name == "count" {
			countCol = i
		}
	}
	if countCol < 0 {
		return nil, tabular.ErrIO.New(path, "counts file has no 'count' column")
	}

	var keys []string
	var vals []float64
	seen := map[string]bool{}
	for line := 2; scanner.Scan(); line++ {
		fields := strings.Split(scanner.Text(), "\t")
		if len(fields) <= countCol {
			return nil, tabular.ErrIO.New(path, fmt.Sprintf("line %d has %d fields, expected %d", line, len(fields), len(header)))
		}
		key := fields[0]
		if seen[key] {
			return nil, tabular.ErrIO.New(path, fmt.Sprintf("duplicate element '%s' at line %d", key, line))
		}
		seen[key] = true

		v := tabular.Null()
		if raw := fields[countCol]; raw != naValue && raw != "" {
			v, err = strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, tabular.ErrIO.New(path, fmt.Sprintf("bad count '%s' at line %d", raw, line))
			}
		}
		keys = append(keys, key)
		vals = append(vals, v)
	}
	if err := scanner.Err(); err != nil {
		return nil, tabular.ErrIO.New(path, err.Error())
	}

	t := tabular.NewTable(keys)
	if err := t.AddColumn("count", vals); err != nil {
		return nil, err
	}
	return t, nil
}

// writeTableTSV writes a table as one tab-separated file with an "element"
// index column. Missing cells are written as NA.
func writeTableTSV(path string, t *tabular.Table) error {
	f, err := os.Create(path)
	if err != nil {
		return tabular.ErrIO.New(path, err.Error())
	}
	bw := bufio.NewWriterSize(f, WriteBufSize)

	cols := t.Columns()
	fields := make([]string, 0, len(cols)+1)
	fields = append(fields, "element")
	fields = append(fields, cols...)
	if _, err := bw.WriteString(strings.Join(fields, "\t") + "\n"); err != nil {
		f.Close()
		return tabular.ErrIO.New(path, err.Error())
	}

	for _, key := range t.Index() {
		fields = fields[:0]
		fields = append(fields, key)
		for _, col := range cols {
			v, _ := t.Value(key, col)
			if tabular.IsNull(v) {
				fields = append(fields, naValue)
			} else {
				fields = append(fields, strconv.FormatFloat(v, 'g', -1, 64))
			}
		}
		if _, err := bw.WriteString(strings.Join(fields, "\t") + "\n"); err != nil {
			f.Close()
			return tabular.ErrIO.New(path, err.Error())
		}
	}

	if err := bw.Flush(); err != nil {
		f.Close()
		return tabular.ErrIO.New(path, err.Error())
	}
	return f.Close()
}

// WriteTSV exports every key in the node's store as one flat file under
// <output dir>/tsv/<node>/, then exports children. Key path separators
// become underscores in the file names.
func (n *TreeNode) WriteTSV() error {
	if n.state != StateOpened && n.state != StateComputed {
		return tabular.ErrNotOpen.New(n.name)
	}
	if n.hasStore && n.store != nil && !n.store.IsEmpty() {
		outputDir, err := n.resolveOutputDir()
		if err != nil {
			return err
		}
		dir := filepath.Join(outputDir, "tsv", fixName(n.name))
		if err := os.MkdirAll(dir, 0755); err != nil {
			return tabular.ErrIO.New(dir, err.Error())
		}
		for _, key := range n.store.Keys() {
			t, err := n.store.Get(key)
			if err != nil {
				return err
			}
			path := filepath.Join(dir, tabular.ExportFileName(key))
			if err := writeTableTSV(path, t); err != nil {
				return err
			}
		}
		n.log.WithField("dir", dir).Info("wrote tsv files")
	}
	for _, c := range n.children {
		if err := c.WriteTSV(); err != nil {
			return err
		}
	}
	return nil
}
