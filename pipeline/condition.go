// Copyright 2026 Mutscan Authors. All rights reserved.
// Licensed under the Apache License, version 2.0:
// http://www.apache.org/licenses/LICENSE-2.0

package pipeline

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/mutscan/mutscan/store/tabular"
)

// KindCondition is the kind discriminant for condition nodes.
const KindCondition = "condition"

// Condition groups the biological replicates (selections) of one
// experimental condition. It is a pure aggregator: it owns no store of its
// own, and its selections' tables are combined at the experiment level.
type Condition struct {
	*TreeNode
}

// NewCondition builds a condition and its selection children.
func NewCondition(cfg ConditionConfig, scorer Scorer, log *logrus.Entry) (*Condition, error) {
	if cfg.Name == "" {
		return nil, tabular.ErrConfig.New("condition has no name")
	}
	if len(cfg.Selections) == 0 {
		return nil, tabular.ErrConfig.New(fmt.Sprintf("condition '%s' has no selections", cfg.Name))
	}

	c := &Condition{TreeNode: newTreeNode(KindCondition, cfg.Name, false, log)}
	c.outputDir = cfg.OutputDir

	for _, sc := range cfg.Selections {
		sel, err := NewSelection(sc, scorer, log)
		if err != nil {
			return nil, err
		}
		if err := c.addChild(sel, c); err != nil {
			return nil, err
		}
	}
	c.intersectChildLabels()

	fp, err := fingerprintOf(cfg)
	if err != nil {
		return nil, err
	}
	c.fp = fp
	c.state = StateConfigured
	return c, nil
}

// Selections returns the condition's children with their concrete type.
func (c *Condition) Selections() []*Selection {
	sels := make([]*Selection, len(c.children))
	for i, child := range c.children {
		sels[i] = child.(*Selection)
	}
	return sels
}

// Compute only cascades: aggregation across selections happens at the
// experiment.
func (c *Condition) Compute() error {
	return c.cascade(nil)
}
