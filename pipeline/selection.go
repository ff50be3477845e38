// Copyright 2026 Mutscan Authors. All rights reserved.
// Licensed under the Apache License, version 2.0:
// http://www.apache.org/licenses/LICENSE-2.0

package pipeline

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/mutscan/mutscan/store/tabular"
	"github.com/mutscan/mutscan/utils/set"
)

// KindSelection is the store path suffix for selection nodes.
const KindSelection = "sel"

func countsKey(label string) string {
	return fmt.Sprintf("%s/%s/counts", tabular.GroupMain, label)
}

func unfilteredCountsKey(label string) string {
	return fmt.Sprintf("%s/%s/counts_unfiltered", tabular.GroupMain, label)
}

func scoresKey(label string) string {
	return fmt.Sprintf("%s/%s/scores", tabular.GroupMain, label)
}

// countColumn names the count column for one timepoint in a selection's
// combined tables.
func countColumn(tp int) string {
	return fmt.Sprintf("c_%d", tp)
}

// Selection is a time course: libraries sampled from one population at
// successive timepoints. It combines its libraries' counts per timepoint,
// filters for elements observed at every timepoint, and hands the result to
// the scoring method.
type Selection struct {
	*TreeNode

	scorer Scorer
}

// NewSelection builds a selection and its library children.
func NewSelection(cfg SelectionConfig, scorer Scorer, log *logrus.Entry) (*Selection, error) {
	if cfg.Name == "" {
		return nil, tabular.ErrConfig.New("selection has no name")
	}
	if len(cfg.Libraries) == 0 {
		return nil, tabular.ErrConfig.New(fmt.Sprintf("selection '%s' has no libraries", cfg.Name))
	}

	s := &Selection{
		TreeNode: newTreeNode(KindSelection, cfg.Name, true, log),
		scorer:   scorer,
	}
	s.outputDir = cfg.OutputDir
	s.storePath = cfg.StorePath

	for _, lc := range cfg.Libraries {
		lib, err := NewLibrary(lc, log)
		if err != nil {
			return nil, err
		}
		if err := s.addChild(lib, s); err != nil {
			return nil, err
		}
	}
	s.intersectChildLabels()
	if s.labels.Size() == 0 {
		return nil, tabular.ErrConfig.New(fmt.Sprintf("libraries of selection '%s' share no table family", cfg.Name))
	}
	if err := s.validateTimepoints(); err != nil {
		return nil, err
	}

	fp, err := fingerprintOf(cfg)
	if err != nil {
		return nil, err
	}
	s.fp = fp
	s.state = StateConfigured
	return s, nil
}

func (s *Selection) validateTimepoints() error {
	tps := s.Timepoints()
	if len(tps) < 2 {
		return tabular.ErrConfig.New(fmt.Sprintf("selection '%s' has %d timepoints, at least 2 required", s.name, len(tps)))
	}
	if tps[0] != 0 {
		return tabular.ErrConfig.New(fmt.Sprintf("selection '%s' has no timepoint 0", s.name))
	}
	if min := s.scorer.MinTimepoints(); len(tps) < min {
		return tabular.ErrConfig.New(fmt.Sprintf("selection '%s' has %d timepoints, scoring method '%s' requires %d",
			s.name, len(tps), s.scorer.Name(), min))
	}
	return nil
}

// Timepoints returns the sorted distinct timepoints across the selection's
// libraries.
func (s *Selection) Timepoints() []int {
	seen := map[int]bool{}
	var tps []int
	for _, c := range s.children {
		tp := c.(*Library).Timepoint()
		if !seen[tp] {
			seen[tp] = true
			tps = append(tps, tp)
		}
	}
	sort.Ints(tps)
	return tps
}

func (s *Selection) librariesAt(tp int) []*Library {
	var libs []*Library
	for _, c := range s.children {
		if lib := c.(*Library); lib.Timepoint() == tp {
			libs = append(libs, lib)
		}
	}
	return libs
}

// Compute combines, filters, and scores each table family.
func (s *Selection) Compute() error {
	return s.cascade(func() error {
		for _, label := range s.Labels() {
			if err := s.combineCounts(label); err != nil {
				return err
			}
			if err := s.filterCounts(label); err != nil {
				return err
			}
			if err := s.score(label); err != nil {
				return err
			}
		}
		return nil
	})
}

// combineCounts merges the family's library counts over the union of
// observed elements, one c_<timepoint> column per timepoint. Libraries
// sharing a timepoint are technical replicates and their counts are summed.
func (s *Selection) combineCounts(label string) error {
	srcs := make([]MergeSource, 0, len(s.Timepoints()))
	for _, tp := range s.Timepoints() {
		srcs = append(srcs, s.timepointSource(label, tp))
	}
	return s.mergeUnion(unfilteredCountsKey(label), srcs)
}

func (s *Selection) timepointSource(label string, tp int) MergeSource {
	libs := s.librariesAt(tp)
	name := countColumn(tp)
	key := countsKey(label)
	return MergeSource{
		Name: name,
		Index: func() ([]string, error) {
			union := set.NewStrSet(nil)
			for _, lib := range libs {
				index, err := lib.Store().GetIndex(key)
				if err != nil {
					return nil, err
				}
				for _, row := range index {
					union.Add(row)
				}
			}
			return union.AsSortedSlice(), nil
		},
		Rows: func(rows []string) (*tabular.Table, error) {
			parts := make([]*tabular.Table, 0, len(libs))
			for _, lib := range libs {
				t, err := lib.Store().GetRows(key, rows)
				if err != nil {
					return nil, err
				}
				parts = append(parts, t)
			}
			summed := tabular.SumTables(parts).Select(rows)
			vals, ok := summed.Column("count")
			if !ok {
				return nil, tabular.ErrColumnNotFound.New("count", key)
			}
			out := tabular.NewTable(rows)
			if err := out.AddColumn(name, vals); err != nil {
				return nil, err
			}
			return out, nil
		},
	}
}

// filterCounts keeps the elements observed at every timepoint. Elements with
// a missing count anywhere cannot be scored over the full time course.
func (s *Selection) filterCounts(label string) error {
	dst := countsKey(label)
	if s.checkKey(dst) {
		return nil
	}
	unfiltered, err := s.store.Get(unfilteredCountsKey(label))
	if err != nil {
		return err
	}
	filtered := filterCompleteCases(unfiltered)
	s.log.WithFields(logrus.Fields{
		"label": label,
		"kept":  filtered.NumRows(),
		"of":    unfiltered.NumRows(),
	}).Info("filtered counts")
	return s.putTable(dst, filtered)
}

// score delegates to the scoring method and stamps whatever it wrote.
func (s *Selection) score(label string) error {
	dst := scoresKey(label)
	if s.checkKey(dst) {
		return nil
	}
	if err := s.scorer.Score(s, label); err != nil {
		return err
	}
	if s.store.Has(dst) {
		return s.stampFingerprint(dst)
	}
	return nil
}

// filterCompleteCases keeps rows with no missing cells.
func filterCompleteCases(t *tabular.Table) *tabular.Table {
	cols := t.Columns()
	keep := make([]string, 0, t.NumRows())
	for _, key := range t.Index() {
		ok := true
		for _, col := range cols {
			if v, _ := t.Value(key, col); tabular.IsNull(v) {
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
