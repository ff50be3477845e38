// Copyright 2026 Mutscan Authors. All rights reserved.
// Licensed under the Apache License, version 2.0:
// http://www.apache.org/licenses/LICENSE-2.0

package pipeline

import (
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Runner drives one full pass over an analysis tree: open, compute, export,
// close. Any failure still gets a best-effort close of every open node so no
// exclusive store handle is left dangling.
type Runner struct {
	log *logrus.Entry
}

func NewRunner(log *logrus.Entry) *Runner {
	return &Runner{log: log}
}

// Run executes the cascade for root. Tables persisted by completed sub-steps
// stay on disk even when a later step fails; they carry their fingerprint
// and the next run reuses them.
func (r *Runner) Run(root Node) error {
	log := r.log.WithFields(logrus.Fields{
		"run":  uuid.New().String(),
		"root": root.Name(),
	})
	log.Info("starting analysis")

	if err := root.Open(true); err != nil {
		r.closeAll(root)
		return errors.Wrapf(err, "opening '%s'", root.Name())
	}
	if err := root.Compute(); err != nil {
		r.closeAll(root)
		return errors.Wrapf(err, "computing '%s'", root.Name())
	}
	log.WithField("tables", humanize.Comma(int64(countTables(root)))).Info("computation finished")

	tsv, err := root.TSVRequested()
	if err != nil {
		r.closeAll(root)
		return err
	}
	if tsv {
		if err := root.WriteTSV(); err != nil {
			r.closeAll(root)
			return errors.Wrapf(err, "exporting '%s'", root.Name())
		}
	}
	if err := root.Close(true); err != nil {
		r.closeAll(root)
		return errors.Wrapf(err, "closing '%s'", root.Name())
	}
	log.Info("analysis finished")
	return nil
}

// closeAll closes every node that still holds a live handle, keeping going
// past failures.
func (r *Runner) closeAll(root Node) {
	Walk(root, func(n Node) {
		switch n.State() {
		case StateOpened, StateComputed:
			if err := n.Close(false); err != nil {
				r.log.WithField("node", n.Name()).WithError(err).Warn("close failed during cleanup")
			}
		}
	})
}

func countTables(root Node) int {
	total := 0
	Walk(root, func(n Node) {
		if n.HasStore() && n.Store() != nil {
			total += len(n.Store().Keys())
		}
	})
	return total
}
