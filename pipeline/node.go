// Copyright 2026 Mutscan Authors. All rights reserved.
// Licensed under the Apache License, version 2.0:
// http://www.apache.org/licenses/LICENSE-2.0

// Package pipeline implements the analysis node tree: sequencing libraries at
// the leaves, selections and conditions above them, and an experiment at the
// root. Each node owning a store computes its tables at most once per
// configuration; results persisted by an earlier run are reused when their
// stored fingerprint matches the node's current one.
package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/mutscan/mutscan/store/tabular"
	"github.com/mutscan/mutscan/utils/set"
)

// DefaultStoreExt is the backend extension used when a node's configuration
// does not name a store path.
const DefaultStoreExt = ".mtbl"

// State tracks a node's position in the configure/open/compute/close
// lifecycle.
type State int

const (
	StateUnconfigured State = iota
	StateConfigured
	StateOpened
	StateComputed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnconfigured:
		return "unconfigured"
	case StateConfigured:
		return "configured"
	case StateOpened:
		return "opened"
	case StateComputed:
		return "computed"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Node is one entity in the analysis tree. The parent owns its children;
// a child holds only a back-reference for upward lookups (inherited output
// directory, root-only flags). Concrete kinds are Library, Selection,
// Condition and Experiment.
type Node interface {
	Name() string
	Kind() string
	Parent() Node
	Children() []Node
	Labels() []string
	HasStore() bool
	Store() tabular.TableStore
	StorePath() string
	State() State
	Fingerprint() *Fingerprint

	// Root-only scalars, resolved by walking to the root. Unset at the
	// root is an ErrConfig.
	ForceRecompute() (bool, error)
	ComponentOutliers() (bool, error)
	TSVRequested() (bool, error)

	Open(recursive bool) error
	Compute() error
	Close(recursive bool) error
	WriteTSV() error

	resolveOutputDir() (string, error)
	chunkRows() int
	setParentNode(Node)
}

// TreeNode carries the state and behavior shared by every node kind. Concrete
// kinds embed it and supply Compute.
type TreeNode struct {
	name     string
	kind     string
	parent   Node
	children []Node
	labels   *set.StrSet
	log      *logrus.Entry

	outputDir string
	storePath string
	hasStore  bool
	store     tabular.TableStore
	fp        *Fingerprint
	state     State

	// storeReusable is set when every persisted key matched the current
	// fingerprint on open; it suppresses auxiliary statistics for the run.
	storeReusable bool

	// Root-only scalars; nil means "ask the parent".
	forceRecompute    *bool
	componentOutliers *bool
	tsvRequested      *bool
	chunkSize         int

	// openStore is swapped out by tests to interpose instrumented stores.
	openStore func(path string) (tabular.TableStore, error)
}

func newTreeNode(kind, name string, hasStore bool, log *logrus.Entry) *TreeNode {
	return &TreeNode{
		name:      name,
		kind:      kind,
		hasStore:  hasStore,
		labels:    set.NewStrSet(nil),
		log:       log.WithField("node", name),
		openStore: tabular.OpenStore,
	}
}

func (n *TreeNode) Name() string              { return n.name }
func (n *TreeNode) Kind() string              { return n.kind }
func (n *TreeNode) Parent() Node              { return n.parent }
func (n *TreeNode) Children() []Node          { return n.children }
func (n *TreeNode) Labels() []string          { return n.labels.AsSortedSlice() }
func (n *TreeNode) HasStore() bool            { return n.hasStore }
func (n *TreeNode) Store() tabular.TableStore { return n.store }
func (n *TreeNode) StorePath() string         { return n.storePath }
func (n *TreeNode) State() State              { return n.state }
func (n *TreeNode) Fingerprint() *Fingerprint { return n.fp }
func (n *TreeNode) StoreReusable() bool       { return n.storeReusable }

func (n *TreeNode) addChild(c Node, self Node) error {
	for _, existing := range n.children {
		if existing.Name() == c.Name() {
			return tabular.ErrConfig.New(fmt.Sprintf("duplicate sibling name '%s' under '%s'", c.Name(), n.name))
		}
	}
	c.setParentNode(self)
	n.children = append(n.children, c)
	return nil
}

func (n *TreeNode) setParentNode(p Node) {
	n.parent = p
}

// intersectChildLabels recomputes the node's labels as the intersection of
// its children's label sets: a table family is only usable at a parent if
// every child can supply it.
func (n *TreeNode) intersectChildLabels() {
	if len(n.children) == 0 {
		return
	}
	labels := set.NewStrSet(n.children[0].Labels())
	for _, c := range n.children[1:] {
		labels = labels.Intersect(set.NewStrSet(c.Labels()))
	}
	n.labels = labels
}

func (n *TreeNode) ForceRecompute() (bool, error) {
	if n.forceRecompute != nil {
		return *n.forceRecompute, nil
	}
	if n.parent != nil {
		return n.parent.ForceRecompute()
	}
	return false, tabular.ErrConfig.New(fmt.Sprintf("force-recompute flag is not set at the root of '%s'", n.name))
}

func (n *TreeNode) ComponentOutliers() (bool, error) {
	if n.componentOutliers != nil {
		return *n.componentOutliers, nil
	}
	if n.parent != nil {
		return n.parent.ComponentOutliers()
	}
	return false, tabular.ErrConfig.New(fmt.Sprintf("component-outliers flag is not set at the root of '%s'", n.name))
}

func (n *TreeNode) TSVRequested() (bool, error) {
	if n.tsvRequested != nil {
		return *n.tsvRequested, nil
	}
	if n.parent != nil {
		return n.parent.TSVRequested()
	}
	return false, tabular.ErrConfig.New(fmt.Sprintf("tsv-export flag is not set at the root of '%s'", n.name))
}

// chunkRows resolves the merge chunk size: locally set, else inherited, else
// the package default.
func (n *TreeNode) chunkRows() int {
	if n.chunkSize > 0 {
		return n.chunkSize
	}
	if n.parent != nil {
		return n.parent.chunkRows()
	}
	return DefaultChunkSize
}

// resolveOutputDir walks up to the nearest ancestor that defines an output
// directory. The root must define one.
func (n *TreeNode) resolveOutputDir() (string, error) {
	if n.outputDir != "" {
		return n.outputDir, nil
	}
	if n.parent != nil {
		return n.parent.resolveOutputDir()
	}
	return "", tabular.ErrConfig.New(fmt.Sprintf("no output directory set on the path from '%s' to the root", n.name))
}

// fixName makes a node name usable as a file name component.
func fixName(name string) string {
	return strings.ReplaceAll(strings.TrimSpace(name), " ", "_")
}

// Open readies the node for compute. With recursive set, children are opened
// first. For a store-backed node this resolves the store path, opens or
// creates the backend, and validates the persisted cache against the node's
// fingerprint: on any mismatch the main group is dropped wholesale while raw
// tables survive; when everything matches the store is marked reusable.
func (n *TreeNode) Open(recursive bool) error {
	switch n.state {
	case StateUnconfigured:
		return tabular.ErrConfig.New(fmt.Sprintf("node '%s' opened before it was configured", n.name))
	case StateOpened, StateComputed:
		return tabular.ErrAlreadyOpen.New(n.name)
	}
	if recursive {
		for _, c := range n.children {
			if err := c.Open(true); err != nil {
				return err
			}
		}
	}
	if !n.hasStore {
		n.state = StateOpened
		return nil
	}
	if n.storePath == "" {
		dir, err := n.resolveOutputDir()
		if err != nil {
			return err
		}
		n.storePath = filepath.Join(dir, fixName(n.name)+"_"+n.kind+DefaultStoreExt)
	}
	if err := os.MkdirAll(filepath.Dir(n.storePath), 0755); err != nil {
		return tabular.ErrIO.New(n.storePath, err.Error())
	}
	store, err := n.openStore(n.storePath)
	if err != nil {
		return err
	}
	n.store = store
	n.log.WithField("path", n.storePath).Info("opened store")
	if err := n.validateCache(); err != nil {
		_ = store.Close()
		n.store = nil
		return err
	}
	n.state = StateOpened
	return nil
}

// validateCache compares every persisted key's fingerprint with the node's
// current one. Force-recompute clears the main group unconditionally.
func (n *TreeNode) validateCache() error {
	force, err := n.ForceRecompute()
	if err != nil {
		return err
	}
	if force {
		n.log.Info("recompute requested, clearing main tables")
		return n.clearMainGroup()
	}
	if n.store.IsEmpty() {
		return nil
	}
	for _, key := range n.store.Keys() {
		md, err := n.store.GetMetadata(key)
		if err != nil {
			return err
		}
		if !n.fp.Matches(md[mdFingerprint]) {
			n.log.WithField("key", key).Info("fingerprint mismatch, clearing main tables")
			return n.clearMainGroup()
		}
	}
	n.storeReusable = true
	n.log.Info("all stored tables match the current configuration")
	return nil
}

// clearMainGroup drops every main-group key. Raw tables represent expensive
// extraction that does not depend on downstream parameters and are kept.
func (n *TreeNode) clearMainGroup() error {
	for _, key := range n.store.Keys() {
		if !tabular.IsMainKey(key) {
			continue
		}
		if err := n.store.Drop(key); err != nil {
			return err
		}
	}
	return nil
}

// cascade is the shared compute discipline: a second call after success is a
// no-op, children always compute before the node's own work, and the node
// only advances to Computed when its own step succeeds.
func (n *TreeNode) cascade(fn func() error) error {
	switch n.state {
	case StateComputed:
		return nil
	case StateOpened:
	default:
		return tabular.ErrNotOpen.New(n.name)
	}
	for _, c := range n.children {
		if err := c.Compute(); err != nil {
			return err
		}
	}
	if fn != nil {
		if err := fn(); err != nil {
			return err
		}
	}
	n.state = StateComputed
	return nil
}

// checkKey reports whether key is already present, which makes the sub-step
// that would produce it skippable.
func (n *TreeNode) checkKey(key string) bool {
	if n.store.Has(key) {
		n.log.WithField("key", key).Info("found existing table, skipping")
		return true
	}
	return false
}

// putTable writes a table and stamps it with the node's fingerprint, so the
// result is self-describing for later runs.
func (n *TreeNode) putTable(key string, t *tabular.Table) error {
	if err := n.store.Put(key, t); err != nil {
		return err
	}
	return n.stampFingerprint(key)
}

func (n *TreeNode) stampFingerprint(key string) error {
	return n.store.SetMetadata(key, tabular.Metadata{
		mdFingerprint:     n.fp.String(),
		mdFingerprintAt:   n.fp.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		mdFingerprintUser: n.fp.User,
	}, true)
}

// Close flushes the node's own writes, stamps final metadata on every key,
// and releases the store handle before closing children.
func (n *TreeNode) Close(recursive bool) error {
	if n.state != StateOpened && n.state != StateComputed {
		return tabular.ErrNotOpen.New(n.name)
	}
	if n.hasStore && n.store != nil {
		for _, key := range n.store.Keys() {
			if err := n.stampFingerprint(key); err != nil {
				return err
			}
		}
		if err := n.store.Close(); err != nil {
			return err
		}
		n.store = nil
		n.log.Info("closed store")
	}
	n.state = StateClosed
	if recursive {
		for _, c := range n.children {
			switch c.State() {
			case StateOpened, StateComputed:
				if err := c.Close(true); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// Walk visits root and every node below it, depth-first.
func Walk(root Node, fn func(Node)) {
	fn(root)
	for _, c := range root.Children() {
		Walk(c, fn)
	}
}
