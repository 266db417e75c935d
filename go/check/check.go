// Package check scans a revision store for inconsistencies: ghosts,
// revisions whose index parents disagree with the revision itself,
// inventories that do not hash to what the revision recorded, and
// per-file histories whose parents do not follow from the inventories.
//
// Discrepancies in the data are collected into a Result and never stop the
// scan. Only a failure to read the store, or a store that cannot provide
// per-file history, ends the pass early; the partial Result is still
// returned.
package check

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.skia.org/revgraph/go/graph"
	"go.skia.org/revgraph/go/metrics2"
	"go.skia.org/revgraph/go/revision"
	"go.skia.org/revgraph/go/revstore"
	"go.skia.org/revgraph/go/skerr"
	"go.skia.org/revgraph/go/sklog"
)

// ErrNoVersionedFileChecker is returned when the store does not implement
// revstore.VersionedFiles.
var ErrNoVersionedFileChecker = errors.New("store has no versioned file checker")

// State is a step of a check pass.
type State int

const (
	StateInit State = iota
	StateScanningRevisions
	StateCheckingInventories
	StateCheckingFileGraphs
	StateCheckingBranchesAndTrees
	StateReporting
)

var stateNames = []string{
	"init",
	"scanning revisions",
	"checking inventories",
	"checking file graphs",
	"checking branches and trees",
	"reporting",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ParentsMismatch is a text whose stored parents differ from the parents
// implied by the inventories.
type ParentsMismatch struct {
	Stored  []revision.TextKey
	Correct []revision.TextKey
}

// Result is everything a check pass found.
type Result struct {
	// State is the last state entered. It is StateReporting after a
	// complete pass.
	State State

	// RevisionCount is the number of stored revisions scanned. Ghosts are
	// not counted.
	RevisionCount int
	// Ghosts are parents referenced by some revision but not stored.
	Ghosts revision.IDSet
	// MissingParentLinks maps each ghost to the revisions naming it as a
	// parent.
	MissingParentLinks map[revision.ID][]revision.ID
	// MissingInventorySHA1Count counts revisions that recorded no
	// inventory sha1.
	MissingInventorySHA1Count int
	// FileIDCount is the number of distinct files seen in inventories.
	FileIDCount int
	// Ancestors maps every stored revision to its parents, with
	// NullRevision standing in for no parents.
	Ancestors revision.ParentMap

	// InconsistentParents holds the texts whose stored parents are wrong.
	InconsistentParents map[revision.TextKey]ParentsMismatch
	// UnreferencedVersions are stored texts no inventory refers to.
	UnreferencedVersions []revision.TextKey

	// Problems are other inconsistencies, one line each.
	Problems []string
	// RefProblems holds the problems found by each RefWanter, by name.
	RefProblems map[string][]string
}

func newResult() *Result {
	return &Result{
		Ghosts:              revision.IDSet{},
		MissingParentLinks:  map[revision.ID][]revision.ID{},
		Ancestors:           revision.ParentMap{},
		InconsistentParents: map[revision.TextKey]ParentsMismatch{},
		RefProblems:         map[string][]string{},
	}
}

func (r *Result) problem(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	sklog.Debugf("check: %s", msg)
	r.Problems = append(r.Problems, msg)
}

// Options configures Run.
type Options struct {
	// Wanters are checked after the repository itself, using refs
	// resolved once for all of them.
	Wanters []RefWanter
	// Graph answers the ref queries. It defaults to a Graph over the store.
	Graph *graph.Graph
	// InventoryCacheSize is the number of inventories the file graph check
	// keeps loaded. It defaults to DefaultInventoryCacheSize.
	InventoryCacheSize int
}

// checker carries a single pass.
type checker struct {
	store  revstore.Store
	opts   Options
	result *Result

	// expectedSHA1s maps each revision to the inventory sha1s recorded for
	// it. More than one is an inconsistency in itself.
	expectedSHA1s map[revision.ID][]string
}

// Run checks s. The returned Result is never nil, even with an error.
func Run(ctx context.Context, s revstore.Store, opts Options) (*Result, error) {
	defer metrics2.FuncTimer().Stop()
	if opts.Graph == nil {
		opts.Graph = graph.New(s)
	}
	if opts.InventoryCacheSize <= 0 {
		opts.InventoryCacheSize = DefaultInventoryCacheSize
	}
	c := &checker{
		store:         s,
		opts:          opts,
		result:        newResult(),
		expectedSHA1s: map[revision.ID][]string{},
	}
	err := c.run(ctx)
	if err != nil {
		sklog.Errorf("Check stopped while %s: %s", c.result.State, err)
	}
	return c.result, err
}

func (c *checker) enter(s State) {
	sklog.Infof("Check: %s", s)
	c.result.State = s
}

func (c *checker) run(ctx context.Context) error {
	c.enter(StateScanningRevisions)
	if err := c.scanRevisions(ctx); err != nil {
		return err
	}
	vf, ok := c.store.(revstore.VersionedFiles)

	c.enter(StateCheckingInventories)
	if !ok {
		return skerr.Wrapf(ErrNoVersionedFileChecker, "checking inventories")
	}
	if err := c.checkInventories(ctx, vf); err != nil {
		return err
	}

	c.enter(StateCheckingFileGraphs)
	if err := c.checkFileGraphs(ctx, vf); err != nil {
		return err
	}

	if len(c.opts.Wanters) > 0 {
		c.enter(StateCheckingBranchesAndTrees)
		refs, err := resolveRefs(ctx, c.store, c.opts.Graph, c.opts.Wanters)
		if err != nil {
			return err
		}
		problems, err := dispatchRefs(ctx, c.opts.Wanters, refs)
		c.result.RefProblems = problems
		if err != nil {
			return err
		}
	}

	c.enter(StateReporting)
	metrics2.GetInt64Metric("revgraph_check_revisions").Update(int64(c.result.RevisionCount))
	metrics2.GetInt64Metric("revgraph_check_ghosts").Update(int64(len(c.result.Ghosts)))
	metrics2.GetInt64Metric("revgraph_check_inconsistent_parents").Update(int64(len(c.result.InconsistentParents)))
	return nil
}

// scanRevisions reads every stored revision once. A parent is a ghost if it
// is not stored; that is only known once the whole store has been read, so
// ghosts are settled at the end and the scan order does not matter.
func (c *checker) scanRevisions(ctx context.Context) error {
	ids, err := c.store.AllRevisionIDs(ctx)
	if err != nil {
		return skerr.Wrapf(err, "listing revisions")
	}
	slices.Sort(ids)
	r := c.result
	planned := revision.IDSet{}
	for _, id := range ids {
		planned[id] = true
	}
	indexParents, err := c.store.GetParentMap(ctx, ids)
	if err != nil {
		return skerr.Wrapf(err, "reading index parents")
	}
	for entry, err := range revstore.IterRevisions(ctx, c.store, ids) {
		if err != nil {
			return skerr.Wrapf(err, "reading revisions")
		}
		rev := entry.Rev
		if rev == nil {
			r.problem("revision %s is listed but cannot be read", entry.ID)
			continue
		}
		r.RevisionCount++
		if rev.ID != entry.ID {
			r.problem("stored revision %s has revision id %s", entry.ID, rev.ID)
		}
		parents := rev.ParentIDs
		if len(parents) == 0 {
			r.Ancestors[entry.ID] = []revision.ID{revision.NullRevision}
		} else {
			r.Ancestors[entry.ID] = append([]revision.ID{}, parents...)
		}
		for _, p := range parents {
			if !planned[p] {
				r.Ghosts[p] = true
				r.MissingParentLinks[p] = append(r.MissingParentLinks[p], entry.ID)
			}
		}
		if index, ok := indexParents[entry.ID]; ok && !slices.Equal(index, parents) {
			r.problem("index parents of %s are %v but the revision has %v", entry.ID, index, parents)
		}
		if rev.InventorySHA1 == "" {
			r.MissingInventorySHA1Count++
			continue
		}
		c.expectedSHA1s[rev.ID] = append(c.expectedSHA1s[rev.ID], rev.InventorySHA1)
	}
	return nil
}

// checkInventories compares the sha1 of each stored inventory with the one
// its revision recorded.
func (c *checker) checkInventories(ctx context.Context, vf revstore.VersionedFiles) error {
	r := c.result
	ids := make([]revision.ID, 0, len(c.expectedSHA1s))
	for id := range c.expectedSHA1s {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	actual, err := vf.InventorySHA1s(ctx, ids)
	if err != nil {
		return skerr.Wrapf(err, "reading inventory sha1s")
	}
	for _, id := range ids {
		expected := c.expectedSHA1s[id]
		if len(slices.Compact(slices.Sorted(slices.Values(expected)))) > 1 {
			r.problem("multiple expected sha1s for inventory of %s: %v", id, expected)
			continue
		}
		got, ok := actual[id]
		if !ok {
			r.problem("inventory of %s is missing", id)
			continue
		}
		if got != expected[0] {
			r.problem("sha1 mismatch for inventory of %s: revision has %s, inventory is %s", id, expected[0], got)
		}
	}
	return nil
}

func (c *checker) checkFileGraphs(ctx context.Context, vf revstore.VersionedFiles) error {
	fc := newVersionedFileChecker(vf, c.opts.InventoryCacheSize)
	res, err := fc.check(ctx, c.result.Ancestors)
	if err != nil {
		return err
	}
	c.result.FileIDCount = res.fileIDs
	c.result.InconsistentParents = res.wrongParents
	c.result.UnreferencedVersions = res.unreferenced
	for _, key := range res.missing {
		c.result.problem("text %s version %s is referenced by an inventory but not stored", key.FileID, key.RevisionID)
	}
	return nil
}

// Report renders r, counts first. Each category is always listed; verbose
// adds one line per item.
func (r *Result) Report(verbose bool) []string {
	var lines []string
	add := func(format string, args ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, args...))
	}
	add("%6d revisions", r.RevisionCount)
	add("%6d file-ids", r.FileIDCount)
	add("%6d revisions are missing inventory_sha1", r.MissingInventorySHA1Count)
	add("%6d ghost revisions", len(r.Ghosts))
	if verbose {
		for _, id := range r.Ghosts.Sorted() {
			add("      %s", id)
		}
	}
	add("%6d revisions missing parents in ancestry", len(r.MissingParentLinks))
	if verbose {
		for _, id := range sortedIDs(r.MissingParentLinks) {
			add("      %s should be in the ancestry for:", id)
			for _, child := range r.MissingParentLinks[id] {
				add("       * %s", child)
			}
		}
	}
	add("%6d inconsistent parents", len(r.InconsistentParents))
	if verbose {
		for _, key := range sortedTextKeys(r.InconsistentParents) {
			m := r.InconsistentParents[key]
			add("      * %s version %s has parents %s but should have %s",
				key.FileID, key.RevisionID, formatKeys(m.Stored), formatKeys(m.Correct))
		}
	}
	add("%6d unreferenced text versions", len(r.UnreferencedVersions))
	if verbose {
		for _, key := range r.UnreferencedVersions {
			add("      %s version %s", key.FileID, key.RevisionID)
		}
	}
	if len(r.Problems) > 0 {
		add("%6d other problems", len(r.Problems))
		for _, p := range r.Problems {
			add("      %s", p)
		}
	}
	for _, name := range sortedNames(r.RefProblems) {
		add("%s:", name)
		for _, p := range r.RefProblems[name] {
			add("      %s", p)
		}
	}
	return lines
}

func sortedIDs[V any](m map[revision.ID]V) []revision.ID {
	ret := make([]revision.ID, 0, len(m))
	for id := range m {
		ret = append(ret, id)
	}
	slices.Sort(ret)
	return ret
}

func formatKeys(keys []revision.TextKey) string {
	revs := make([]string, 0, len(keys))
	for _, k := range keys {
		revs = append(revs, string(k.RevisionID))
	}
	return fmt.Sprintf("(%s)", joinQuoted(revs))
}

func joinQuoted(s []string) string {
	ret := ""
	for i, v := range s {
		if i > 0 {
			ret += ", "
		}
		ret += fmt.Sprintf("%q", v)
	}
	return ret
}
