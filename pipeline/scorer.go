// Copyright 2026 Mutscan Authors. All rights reserved.
// Licensed under the Apache License, version 2.0:
// http://www.apache.org/licenses/LICENSE-2.0

package pipeline

import (
	"fmt"
	"sort"

	"github.com/mutscan/mutscan/store/tabular"
)

// ScoreTarget is the view of a selection a scoring plugin works against. The
// filtered per-timepoint counts for the label are guaranteed to exist at
// main/<label>/counts before Score is invoked; whatever the plugin writes is
// persisted under the node's fingerprint.
type ScoreTarget interface {
	Name() string
	Store() tabular.TableStore
	Timepoints() []int
}

// Scorer computes per-element scores from a selection's filtered counts.
// Implementations live outside this package; the built-in "counts" method
// produces count tables only.
type Scorer interface {
	// Name returns the configuration discriminant for this method.
	Name() string

	// MinTimepoints returns the smallest number of timepoints the method is
	// defined for. Selections with fewer timepoints are a configuration
	// error.
	MinTimepoints() int

	// Score reads main/<label>/counts from the target's store and writes
	// main/<label>/scores. A method that produces scores must include a
	// "score" column; experiment-level aggregation keys on it.
	Score(target ScoreTarget, label string) error
}

var scorerRegistry = map[string]func() Scorer{}

// RegisterScorer binds a scoring method name to a constructor. Registration
// happens once at process start; re-registering a name panics.
func RegisterScorer(name string, f func() Scorer) {
	if _, ok := scorerRegistry[name]; ok {
		panic(fmt.Sprintf("pipeline: scoring method %q registered twice", name))
	}
	scorerRegistry[name] = f
}

// NewScorer constructs the named scoring method. An unknown name is an
// ErrConfig: it comes straight from user configuration.
func NewScorer(name string) (Scorer, error) {
	f, ok := scorerRegistry[name]
	if !ok {
		return nil, tabular.ErrConfig.New(fmt.Sprintf("unknown scoring method '%s' (known: %v)", name, ScoringMethods()))
	}
	return f(), nil
}

// ScoringMethods returns the registered method names, sorted.
func ScoringMethods() []string {
	names := make([]string, 0, len(scorerRegistry))
	for name := range scorerRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// countsScorer is the built-in counts-only method: per-timepoint count
// tables are produced and no scores are computed.
type countsScorer struct{}

func (countsScorer) Name() string       { return "counts" }
func (countsScorer) MinTimepoints() int { return 2 }

func (countsScorer) Score(ScoreTarget, string) error {
	return nil
}

func init() {
	RegisterScorer("counts", func() Scorer { return countsScorer{} })
}
