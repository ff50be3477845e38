// Copyright 2026 Mutscan Authors. All rights reserved.
// Licensed under the Apache License, version 2.0:
// http://www.apache.org/licenses/LICENSE-2.0

package pipeline

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/mutscan/mutscan/store/tabular"
)

// KindExperiment is the store path suffix for experiment nodes.
const KindExperiment = "exp"

func sharedFullKey(label string) string {
	return fmt.Sprintf("%s/%s/scores_shared_full", tabular.GroupMain, label)
}

func sharedKey(label string) string {
	return fmt.Sprintf("%s/%s/scores_shared", tabular.GroupMain, label)
}

// Combiner computes per-condition statistics over an experiment's shared
// score tables. It is an external plugin; the pipeline only provides the
// seam and the suppression mechanics.
type Combiner interface {
	Name() string
	Combine(exp *Experiment, label string) error
}

// Experiment is the tree root: conditions holding replicate selections. It
// combines counts and scores across every selection, one column group per
// condition/selection pair.
type Experiment struct {
	*TreeNode

	combiner Combiner
}

// NewExperiment builds the full tree below an experiment configuration.
func NewExperiment(cfg ExperimentConfig, scorer Scorer, log *logrus.Entry) (*Experiment, error) {
	if cfg.Name == "" {
		return nil, tabular.ErrConfig.New("experiment has no name")
	}
	if len(cfg.Conditions) == 0 {
		return nil, tabular.ErrConfig.New(fmt.Sprintf("experiment '%s' has no conditions", cfg.Name))
	}

	e := &Experiment{TreeNode: newTreeNode(KindExperiment, cfg.Name, true, log)}
	e.outputDir = cfg.OutputDir
	e.storePath = cfg.StorePath

	for _, cc := range cfg.Conditions {
		cond, err := NewCondition(cc, scorer, log)
		if err != nil {
			return nil, err
		}
		if err := e.addChild(cond, e); err != nil {
			return nil, err
		}
	}
	e.intersectChildLabels()
	if e.labels.Size() == 0 {
		return nil, tabular.ErrConfig.New(fmt.Sprintf("conditions of experiment '%s' share no table family", cfg.Name))
	}

	fp, err := fingerprintOf(cfg)
	if err != nil {
		return nil, err
	}
	e.fp = fp
	e.state = StateConfigured
	return e, nil
}

// SetCombiner attaches an optional per-condition statistics plugin.
func (e *Experiment) SetCombiner(c Combiner) {
	e.combiner = c
}

// Conditions returns the experiment's children with their concrete type.
func (e *Experiment) Conditions() []*Condition {
	conds := make([]*Condition, len(e.children))
	for i, child := range e.children {
		conds[i] = child.(*Condition)
	}
	return conds
}

// selectionSources enumerates every selection as a merge source over key,
// named "<condition>.<selection>".
func (e *Experiment) selectionSources(key string) []MergeSource {
	var srcs []MergeSource
	for _, cond := range e.Conditions() {
		for _, sel := range cond.Selections() {
			name := cond.Name() + "." + sel.Name()
			srcs = append(srcs, StoreSource(name, sel.Store(), key))
		}
	}
	return srcs
}

// Compute combines counts and scores for each table family.
func (e *Experiment) Compute() error {
	return e.cascade(func() error {
		for _, label := range e.Labels() {
			if err := e.mergeUnion(countsKey(label), e.selectionSources(countsKey(label))); err != nil {
				return err
			}
			if !e.selectionsScored(label) {
				e.log.WithField("label", label).Info("no selection scores, skipping score tables")
				continue
			}
			if err := e.mergeUnion(sharedFullKey(label), e.selectionSources(scoresKey(label))); err != nil {
				return err
			}
			if err := e.computeShared(label); err != nil {
				return err
			}
			if err := e.auxiliaryStats(label); err != nil {
				return err
			}
		}
		return nil
	})
}

// selectionsScored reports whether the scoring method produced score tables.
// The counts-only method writes none, and then no experiment-level score
// aggregation is possible.
func (e *Experiment) selectionsScored(label string) bool {
	for _, cond := range e.Conditions() {
		for _, sel := range cond.Selections() {
			if !sel.Store().Has(scoresKey(label)) {
				return false
			}
		}
	}
	return true
}

// computeShared subsets scores_shared_full to the elements scored in at
// least two selections of some condition, the population usable for
// replicate statistics.
func (e *Experiment) computeShared(label string) error {
	dst := sharedKey(label)
	if e.checkKey(dst) {
		return nil
	}
	full, err := e.store.Get(sharedFullKey(label))
	if err != nil {
		return err
	}

	// score columns per condition, named <condition>.<selection>.score; the
	// grouping comes from the tree, not from parsing the names, so dots in
	// condition or selection names are harmless
	condCols := make(map[string][]string, len(e.children))
	for _, cond := range e.Conditions() {
		for _, sel := range cond.Selections() {
			col := cond.Name() + "." + sel.Name() + ".score"
			if _, ok := full.Column(col); ok {
				condCols[cond.Name()] = append(condCols[cond.Name()], col)
			}
		}
	}

	keep := make([]string, 0, full.NumRows())
	for _, row := range full.Index() {
		for _, cols := range condCols {
			present := 0
			for _, col := range cols {
				if v, _ := full.Value(row, col); !tabular.IsNull(v) {
					present++
				}
			}
			if present >= 2 {
				keep = append(keep, row)
				break
			}
		}
	}
	return e.putTable(dst, full.Select(keep))
}

// auxiliaryStats invokes the optional combiner. A store whose every table
// matched the current fingerprint on open skips the recomputation.
func (e *Experiment) auxiliaryStats(label string) error {
	if e.combiner == nil {
		return nil
	}
	outliers, err := e.ComponentOutliers()
	if err != nil {
		return err
	}
	if !outliers {
		return nil
	}
	if e.storeReusable {
		e.log.WithField("label", label).Info("store reusable, skipping auxiliary statistics")
		return nil
	}
	return e.combiner.Combine(e, label)
}
