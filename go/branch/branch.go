// Package branch models a line of development: a tip revision, its
// recorded revno, and tags. It numbers the tip's ancestry with dotted
// revnos and walks it in merge-sorted order.
package branch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.skia.org/revgraph/go/check"
	"go.skia.org/revgraph/go/graph"
	"go.skia.org/revgraph/go/revision"
	"go.skia.org/revgraph/go/revstore"
	"go.skia.org/revgraph/go/skerr"
	"go.skia.org/revgraph/go/sklog"
)

// ErrNoSuchRevision is returned when a revision or revno is not part of
// the branch's history.
var ErrNoSuchRevision = errors.New("no such revision")

// RevnoUnknown is the Options.Revno that asks for the revno to be
// computed from the lefthand history of the tip.
const RevnoUnknown = -1

// Options describes a branch.
type Options struct {
	Name string
	Tip  revision.ID
	// Revno is the revno recorded for Tip, or RevnoUnknown.
	Revno int
	// CalculateRevnos lets the linear log view number revisions without
	// loading the merge graph.
	CalculateRevnos bool
	Tags            map[string]revision.ID
}

// Branch is safe for concurrent use.
type Branch struct {
	name            string
	store           revstore.Store
	graph           *graph.Graph
	tip             revision.ID
	calculateRevnos bool
	storesRevno     bool
	tags            map[string]revision.ID

	mtx   sync.Mutex
	revno int
	// history is the lefthand ancestry of tip, tip first, as far as it has
	// been walked. historyNext is the next revision to walk.
	history      []revision.ID
	historyNext  revision.ID
	historyDone  bool
	historyGhost revision.ID

	mergeSorted []graph.MergeSortNode
	revnoMap    map[revision.ID]revision.DottedRevno
}

// New returns a Branch reading from s through g.
func New(s revstore.Store, g *graph.Graph, opts Options) *Branch {
	tip := opts.Tip
	if tip == "" {
		tip = revision.NullRevision
	}
	revno := opts.Revno
	if tip == revision.NullRevision {
		revno = 0
	}
	return &Branch{
		name:            opts.Name,
		store:           s,
		graph:           g,
		tip:             tip,
		calculateRevnos: opts.CalculateRevnos,
		storesRevno:     revno != RevnoUnknown,
		tags:            opts.Tags,
		revno:           revno,
		historyNext:     tip,
	}
}

// Name implements check.RefWanter.
func (b *Branch) Name() string {
	return b.name
}

// Store returns the revision store the branch reads from.
func (b *Branch) Store() revstore.Store {
	return b.store
}

// Graph returns the graph the branch reads from.
func (b *Branch) Graph() *graph.Graph {
	return b.graph
}

// LastRevision returns the tip.
func (b *Branch) LastRevision() revision.ID {
	return b.tip
}

// CalculateRevnos returns true if mainline revnos may be derived from the
// tip's revno without loading the merge graph.
func (b *Branch) CalculateRevnos() bool {
	return b.calculateRevnos
}

// StoresRevno returns true if a revno was recorded for the tip.
func (b *Branch) StoresRevno() bool {
	return b.storesRevno
}

// LastRevisionInfo returns the revno and id of the tip. If no revno was
// recorded it is computed, and a *graph.GhostRevnoError is returned when
// the lefthand history of the tip reaches a ghost.
func (b *Branch) LastRevisionInfo(ctx context.Context) (int, revision.ID, error) {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	revno, err := b.lastRevnoLocked(ctx)
	return revno, b.tip, err
}

func (b *Branch) lastRevnoLocked(ctx context.Context) (int, error) {
	if b.revno != RevnoUnknown {
		return b.revno, nil
	}
	revno, err := b.graph.FindDistanceToNull(ctx, b.tip, nil)
	if err != nil {
		return 0, skerr.Wrapf(err, "computing revno of %s", b.tip)
	}
	b.revno = revno
	return revno, nil
}

// extendHistoryLocked walks the lefthand history of the tip until it holds
// more than stopIndex entries, reaches stop, or ends.
func (b *Branch) extendHistoryLocked(ctx context.Context, stopIndex int, stop revision.ID) error {
	for !b.historyDone {
		if stopIndex >= 0 && len(b.history) > stopIndex {
			return nil
		}
		if stop != "" && len(b.history) > 0 && b.history[len(b.history)-1] == stop {
			return nil
		}
		next := b.historyNext
		if next == revision.NullRevision {
			b.historyDone = true
			break
		}
		pm, err := b.graph.GetParentMap(ctx, []revision.ID{next})
		if err != nil {
			return skerr.Wrapf(err, "walking history of %s", b.name)
		}
		parents, ok := pm[next]
		if !ok {
			b.historyGhost = next
			b.historyDone = true
			break
		}
		b.history = append(b.history, next)
		b.historyNext = parents[0]
	}
	return nil
}

func (b *Branch) noSuchRevision(what interface{}) error {
	return skerr.Wrapf(ErrNoSuchRevision, "%v in branch %q", what, b.name)
}

// RevisionIDToRevno returns the mainline revno of id.
func (b *Branch) RevisionIDToRevno(ctx context.Context, id revision.ID) (int, error) {
	if id.IsNull() {
		return 0, nil
	}
	b.mtx.Lock()
	defer b.mtx.Unlock()
	return b.revisionIDToRevnoLocked(ctx, id)
}

func (b *Branch) revisionIDToRevnoLocked(ctx context.Context, id revision.ID) (int, error) {
	index := -1
	for i, h := range b.history {
		if h == id {
			index = i
			break
		}
	}
	if index < 0 {
		if err := b.extendHistoryLocked(ctx, -1, id); err != nil {
			return 0, err
		}
		if n := len(b.history); n > 0 && b.history[n-1] == id {
			index = n - 1
		} else if b.historyGhost != "" {
			return 0, &graph.GhostRevnoError{Target: id, Ghost: b.historyGhost}
		} else {
			return 0, b.noSuchRevision(id)
		}
	}
	revno, err := b.lastRevnoLocked(ctx)
	if err != nil {
		return 0, err
	}
	return revno - index, nil
}

// GetRevID returns the mainline revision with the given revno. Revno 0 is
// NullRevision.
func (b *Branch) GetRevID(ctx context.Context, revno int) (revision.ID, error) {
	if revno == 0 {
		return revision.NullRevision, nil
	}
	b.mtx.Lock()
	defer b.mtx.Unlock()
	last, err := b.lastRevnoLocked(ctx)
	if err != nil {
		return "", err
	}
	if revno == last {
		return b.tip, nil
	}
	if revno < 0 || revno > last {
		return "", b.noSuchRevision(fmt.Sprintf("revno %d", revno))
	}
	index := last - revno
	if err := b.extendHistoryLocked(ctx, index, ""); err != nil {
		return "", err
	}
	if len(b.history) > index {
		return b.history[index], nil
	}
	if b.historyGhost != "" {
		return "", &graph.GhostRevnoError{Target: b.tip, Ghost: b.historyGhost}
	}
	return "", b.noSuchRevision(fmt.Sprintf("revno %d", revno))
}

// MergeSorted returns the merge-sorted ancestry of the tip. It is computed
// once and must not be modified.
func (b *Branch) MergeSorted(ctx context.Context) ([]graph.MergeSortNode, error) {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	return b.mergeSortedLocked(ctx)
}

func (b *Branch) mergeSortedLocked(ctx context.Context) ([]graph.MergeSortNode, error) {
	if b.mergeSorted != nil {
		return b.mergeSorted, nil
	}
	if b.tip == revision.NullRevision {
		b.mergeSorted = []graph.MergeSortNode{}
		return b.mergeSorted, nil
	}
	pm, err := b.graph.AncestryParentMap(ctx, []revision.ID{b.tip})
	if err != nil {
		return nil, skerr.Wrapf(err, "loading ancestry of %s", b.tip)
	}
	sklog.Debugf("Merge sorting %d revisions of %s", len(pm), b.name)
	sorted, err := graph.MergeSort(pm, b.tip)
	if err != nil {
		return nil, skerr.Wrapf(err, "merge sorting %s", b.name)
	}
	b.mergeSorted = sorted
	return sorted, nil
}

func (b *Branch) revnoMapLocked(ctx context.Context) (map[revision.ID]revision.DottedRevno, error) {
	if b.revnoMap != nil {
		return b.revnoMap, nil
	}
	sorted, err := b.mergeSortedLocked(ctx)
	if err != nil {
		return nil, err
	}
	m := make(map[revision.ID]revision.DottedRevno, len(sorted))
	for _, n := range sorted {
		m[n.ID] = n.Revno
	}
	b.revnoMap = m
	return m, nil
}

// RevisionIDToDottedRevno returns the dotted revno of id. The mainline is
// tried first, since it does not need the merge graph. Unlike the mainline
// revno, this works when the lefthand history of the tip has a ghost.
func (b *Branch) RevisionIDToDottedRevno(ctx context.Context, id revision.ID) (revision.DottedRevno, error) {
	if id.IsNull() {
		return revision.DottedRevno{0}, nil
	}
	b.mtx.Lock()
	defer b.mtx.Unlock()
	if b.revnoMap == nil {
		revno, err := b.revisionIDToRevnoLocked(ctx, id)
		if err == nil {
			return revision.DottedRevno{revno}, nil
		} else if !errors.Is(err, ErrNoSuchRevision) && !errors.Is(err, graph.ErrGhostRevisionsHaveNoRevno) {
			return nil, err
		}
	}
	m, err := b.revnoMapLocked(ctx)
	if err != nil {
		return nil, err
	}
	if revno, ok := m[id]; ok {
		return revno, nil
	}
	return nil, b.noSuchRevision(id)
}

// DottedRevnoToRevisionID is the inverse of RevisionIDToDottedRevno.
func (b *Branch) DottedRevnoToRevisionID(ctx context.Context, revno revision.DottedRevno) (revision.ID, error) {
	if len(revno) == 1 {
		return b.GetRevID(ctx, revno[0])
	}
	b.mtx.Lock()
	defer b.mtx.Unlock()
	m, err := b.revnoMapLocked(ctx)
	if err != nil {
		return "", err
	}
	for id, r := range m {
		if r.Equal(revno) {
			return id, nil
		}
	}
	return "", b.noSuchRevision(revno)
}

// ReverseTagDict maps each tagged revision to its sorted tag names.
func (b *Branch) ReverseTagDict() map[revision.ID][]string {
	ret := map[revision.ID][]string{}
	for name, id := range b.tags {
		ret[id] = append(ret[id], name)
	}
	for _, names := range ret {
		sort.Strings(names)
	}
	return ret
}

// CheckRefs implements check.RefWanter.
func (b *Branch) CheckRefs() []check.Ref {
	return []check.Ref{
		{Kind: check.RefRevisionExistence, ID: b.tip},
		{Kind: check.RefLefthandDistance, ID: b.tip},
	}
}

// Check implements check.RefWanter. The recorded revno must be the lefthand
// distance of the tip.
func (b *Branch) Check(ctx context.Context, refs *check.RefValues) ([]string, error) {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	var problems []string
	if b.tip != revision.NullRevision && !refs.Exists[b.tip] {
		problems = append(problems, fmt.Sprintf("branch tip %s is not present in the repository", b.tip))
	}
	actual, ok := refs.Distances[b.tip]
	if !ok {
		if b.tip != revision.NullRevision {
			return nil, skerr.Fmt("lefthand distance of %s was not resolved", b.tip)
		}
		actual = 0
	}
	if !b.storesRevno {
		// Nothing was recorded; the computed revno is the distance itself.
		return problems, nil
	}
	if actual != b.revno {
		problems = append(problems, fmt.Sprintf("revno does not match len(mainline) %d != %d", b.revno, actual))
	}
	return problems, nil
}

var _ check.RefWanter = (*Branch)(nil)
