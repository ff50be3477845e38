// Copyright 2026 Mutscan Authors. All rights reserved.
// Licensed under the Apache License, version 2.0:
// http://www.apache.org/licenses/LICENSE-2.0

package pipeline

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/mutscan/mutscan/store/tabular"
)

// LibraryConfig describes one sequencing library. Counts files map a table
// family label to a two-column TSV of element counts.
type LibraryConfig struct {
	Name        string            `json:"name"`
	OutputDir   string            `json:"output directory,omitempty"`
	StorePath   string            `json:"store path,omitempty"`
	Timepoint   *int              `json:"timepoint"`
	CountsFiles map[string]string `json:"counts files"`
	MinCount    float64           `json:"min count,omitempty"`
}

// SelectionConfig describes one time course.
type SelectionConfig struct {
	Name      string          `json:"name"`
	OutputDir string          `json:"output directory,omitempty"`
	StorePath string          `json:"store path,omitempty"`
	Libraries []LibraryConfig `json:"libraries"`
}

// ConditionConfig groups replicate selections.
type ConditionConfig struct {
	Name       string            `json:"name"`
	OutputDir  string            `json:"output directory,omitempty"`
	Selections []SelectionConfig `json:"selections"`
}

// ExperimentConfig is the root configuration document.
type ExperimentConfig struct {
	Name       string            `json:"name"`
	OutputDir  string            `json:"output directory"`
	StorePath  string            `json:"store path,omitempty"`
	Conditions []ConditionConfig `json:"conditions"`
}

// RunOptions carries the root-only scalars supplied by the driver rather
// than the configuration document.
type RunOptions struct {
	ScoringMethod     string
	OutputDir         string // overrides the document when non-empty
	ForceRecompute    bool
	ComponentOutliers bool
	WriteTSV          bool
	ChunkSize         int
}

// DefaultRunOptions are the options a bare driver invocation gets.
func DefaultRunOptions() RunOptions {
	return RunOptions{
		ScoringMethod: "counts",
		WriteTSV:      true,
	}
}

// Builder constructs a root node of one kind from its raw configuration
// section.
type Builder func(raw json.RawMessage, opts RunOptions, log *logrus.Entry) (Node, error)

// builders maps a configuration shape discriminant to its constructor. The
// table is fixed at process start; a miss surfaces as ErrConfig from
// DetectKind, never a bare lookup failure.
var builders = map[string]Builder{
	KindExperiment: buildExperiment,
	KindSelection:  buildSelection,
	KindLibrary:    buildLibrary,
}

// DetectKind infers the node kind from the shape of a configuration
// document: conditions make an experiment, libraries a selection, and a
// timepoint with counts files a library.
func DetectKind(data []byte) (string, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return "", tabular.ErrConfig.New(fmt.Sprintf("configuration is not a JSON object: %v", err))
	}
	switch {
	case probe["conditions"] != nil:
		return KindExperiment, nil
	case probe["libraries"] != nil:
		return KindSelection, nil
	case probe["timepoint"] != nil || probe["counts files"] != nil:
		return KindLibrary, nil
	}
	return "", tabular.ErrConfig.New("configuration matches no node kind (expected conditions, libraries, or timepoint/counts files)")
}

// LoadConfig builds the analysis tree from a configuration document,
// detecting the root kind from its shape.
func LoadConfig(data []byte, opts RunOptions, log *logrus.Entry) (Node, error) {
	kind, err := DetectKind(data)
	if err != nil {
		return nil, err
	}
	build, ok := builders[kind]
	if !ok {
		return nil, tabular.ErrConfig.New(fmt.Sprintf("no builder for node kind '%s'", kind))
	}
	return build(data, opts, log)
}

// LoadConfigFile is LoadConfig over a file path.
func LoadConfigFile(path string, opts RunOptions, log *logrus.Entry) (Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, tabular.ErrIO.New(path, err.Error())
	}
	return LoadConfig(data, opts, log)
}

func buildExperiment(raw json.RawMessage, opts RunOptions, log *logrus.Entry) (Node, error) {
	var cfg ExperimentConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, tabular.ErrConfig.New(fmt.Sprintf("malformed experiment configuration: %v", err))
	}
	scorer, err := NewScorer(opts.ScoringMethod)
	if err != nil {
		return nil, err
	}
	exp, err := NewExperiment(cfg, scorer, log)
	if err != nil {
		return nil, err
	}
	applyRunOptions(exp.TreeNode, opts)
	return exp, nil
}

func buildSelection(raw json.RawMessage, opts RunOptions, log *logrus.Entry) (Node, error) {
	var cfg SelectionConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, tabular.ErrConfig.New(fmt.Sprintf("malformed selection configuration: %v", err))
	}
	scorer, err := NewScorer(opts.ScoringMethod)
	if err != nil {
		return nil, err
	}
	sel, err := NewSelection(cfg, scorer, log)
	if err != nil {
		return nil, err
	}
	applyRunOptions(sel.TreeNode, opts)
	return sel, nil
}

func buildLibrary(raw json.RawMessage, opts RunOptions, log *logrus.Entry) (Node, error) {
	var cfg LibraryConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, tabular.ErrConfig.New(fmt.Sprintf("malformed library configuration: %v", err))
	}
	lib, err := NewLibrary(cfg, log)
	if err != nil {
		return nil, err
	}
	applyRunOptions(lib.TreeNode, opts)
	return lib, nil
}

// applyRunOptions binds the root-only scalars to the tree root.
func applyRunOptions(root *TreeNode, opts RunOptions) {
	force := opts.ForceRecompute
	outliers := opts.ComponentOutliers
	tsv := opts.WriteTSV
	root.forceRecompute = &force
	root.componentOutliers = &outliers
	root.tsvRequested = &tsv
	root.chunkSize = opts.ChunkSize
	if opts.OutputDir != "" {
		root.outputDir = opts.OutputDir
	}
}

// fingerprintOf canonicalizes a typed configuration section into a
// fingerprint. Going through JSON keeps the canonical form identical whether
// the section arrived from a document or was built in code.
func fingerprintOf(cfg interface{}) (*Fingerprint, error) {
	b, err := json.Marshal(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "serializing node configuration")
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, errors.Wrap(err, "canonicalizing node configuration")
	}
	return NewFingerprint(m)
}
