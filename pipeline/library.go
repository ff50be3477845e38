// Copyright 2026 Mutscan Authors. All rights reserved.
// Licensed under the Apache License, version 2.0:
// http://www.apache.org/licenses/LICENSE-2.0

package pipeline

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/mutscan/mutscan/store/tabular"
)

// KindLibrary is the store path suffix for library nodes.
const KindLibrary = "lib"

// Library is a leaf node: one sequencing library at one timepoint. Its
// counts come from precomputed counts files, one per table family; read
// parsing and alignment happen upstream of this pipeline.
type Library struct {
	*TreeNode

	timepoint int
	caps      []Capability
}

// NewLibrary builds a library node from its configuration.
func NewLibrary(cfg LibraryConfig, log *logrus.Entry) (*Library, error) {
	if cfg.Name == "" {
		return nil, tabular.ErrConfig.New("library has no name")
	}
	if cfg.Timepoint == nil {
		return nil, tabular.ErrConfig.New(fmt.Sprintf("library '%s' has no timepoint", cfg.Name))
	}
	if *cfg.Timepoint < 0 {
		return nil, tabular.ErrConfig.New(fmt.Sprintf("library '%s' has negative timepoint %d", cfg.Name, *cfg.Timepoint))
	}
	if len(cfg.CountsFiles) == 0 {
		return nil, tabular.ErrConfig.New(fmt.Sprintf("library '%s' has no counts files", cfg.Name))
	}

	lib := &Library{
		TreeNode:  newTreeNode(KindLibrary, cfg.Name, true, log),
		timepoint: *cfg.Timepoint,
	}
	lib.outputDir = cfg.OutputDir
	lib.storePath = cfg.StorePath

	for label, file := range cfg.CountsFiles {
		cap, err := newCountsCapability(label, file, cfg.MinCount)
		if err != nil {
			return nil, err
		}
		lib.caps = append(lib.caps, cap)
		lib.labels.Add(label)
	}
	sortCapabilities(lib.caps)

	fp, err := fingerprintOf(cfg)
	if err != nil {
		return nil, err
	}
	lib.fp = fp
	lib.state = StateConfigured
	return lib, nil
}

// Timepoint returns the library's position in its selection's time course.
func (l *Library) Timepoint() int {
	return l.timepoint
}

// Compute runs every attached capability, in label order. Sub-steps whose
// output tables already exist are skipped.
func (l *Library) Compute() error {
	return l.cascade(func() error {
		for _, cap := range l.caps {
			if err := cap.Compute(l); err != nil {
				return err
			}
		}
		return nil
	})
}
