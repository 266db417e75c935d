// Package graph answers ancestry questions about a revision DAG: parent
// lookups, lefthand distances, heads, lowest common ancestors and the
// merge-sorted order used to number revisions.
//
// A Graph never fails because a revision is missing. Revisions that are
// referenced but not stored (ghosts) simply have no parents entry, and every
// algorithm here treats them as ancestry terminators.
package graph

import (
	"context"
	"errors"
	"iter"
	"sort"

	"go.skia.org/revgraph/go/metrics2"
	"go.skia.org/revgraph/go/revision"
	"go.skia.org/revgraph/go/skerr"
	"go.skia.org/revgraph/go/util"
)

// ParentMapBatchSize bounds the number of ids sent to the ParentsProvider in
// one call.
const ParentMapBatchSize = 1000

// DistanceUnknown is the lefthand distance reported for revisions whose
// lefthand ancestry ends in a ghost before reaching NullRevision.
const DistanceUnknown = -1

// Graph provides incremental access to a revision graph.
type Graph struct {
	provider ParentsProvider
	lookups  metrics2.Counter
}

// New returns a Graph over p.
func New(p ParentsProvider) *Graph {
	return &Graph{
		provider: p,
		lookups:  metrics2.GetCounter("revgraph_parent_map_lookups"),
	}
}

// GetParentMap returns the parents of every resolvable id. A revision with
// no parents maps to [NullRevision], and NullRevision maps to an empty list.
// Ids are sent to the provider in batches of ParentMapBatchSize.
func (g *Graph) GetParentMap(ctx context.Context, ids []revision.ID) (revision.ParentMap, error) {
	ret := make(revision.ParentMap, len(ids))
	query := make([]revision.ID, 0, len(ids))
	queued := make(revision.IDSet, len(ids))
	for _, id := range ids {
		if id == revision.NullRevision {
			ret[id] = []revision.ID{}
			continue
		}
		if !queued[id] {
			queued[id] = true
			query = append(query, id)
		}
	}
	if len(query) == 0 {
		return ret, nil
	}
	g.lookups.Inc(int64(len(query)))
	err := util.ChunkIter(len(query), ParentMapBatchSize, func(start, end int) error {
		pm, err := g.provider.GetParentMap(ctx, query[start:end])
		if err != nil {
			return skerr.Wrapf(err, "looking up parents of %d revisions", end-start)
		}
		for id, parents := range pm {
			if len(parents) == 0 {
				ret[id] = []revision.ID{revision.NullRevision}
			} else {
				ret[id] = parents
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

func (g *Graph) getParentSet(ctx context.Context, ids revision.IDSet) (revision.ParentMap, error) {
	return g.GetParentMap(ctx, ids.Sorted())
}

// AncestryEntry is one element of IterAncestry. Parents is nil and Ghost is
// true for revisions that are referenced but not present.
type AncestryEntry struct {
	ID      revision.ID
	Parents []revision.ID
	Ghost   bool
}

// IterAncestry walks the full multi-parent ancestry of heads breadth first,
// yielding every revision once. Each generation is looked up with one
// batched GetParentMap call and yielded in id order. NullRevision is
// included once reached.
func (g *Graph) IterAncestry(ctx context.Context, heads []revision.ID) iter.Seq2[AncestryEntry, error] {
	return func(yield func(AncestryEntry, error) bool) {
		pending := revision.NewIDSet(heads...)
		processed := revision.IDSet{}
		for len(pending) > 0 {
			processed.Add(pending.Sorted()...)
			pm, err := g.getParentSet(ctx, pending)
			if err != nil {
				yield(AncestryEntry{}, err)
				return
			}
			next := revision.IDSet{}
			for _, id := range pending.Sorted() {
				parents, ok := pm[id]
				if !ok {
					if !yield(AncestryEntry{ID: id, Ghost: true}, nil) {
						return
					}
					continue
				}
				if !yield(AncestryEntry{ID: id, Parents: parents}, nil) {
					return
				}
				for _, p := range parents {
					if !processed[p] {
						next[p] = true
					}
				}
			}
			pending = next
		}
	}
}

// AncestryParentMap collects the ancestry of heads into a parent map.
// Ghosts are absent from the map. NullRevision is dropped from parent lists
// so that roots have no parents.
func (g *Graph) AncestryParentMap(ctx context.Context, heads []revision.ID) (revision.ParentMap, error) {
	ret := revision.ParentMap{}
	for entry, err := range g.IterAncestry(ctx, heads) {
		if err != nil {
			return nil, err
		}
		if entry.Ghost || entry.ID == revision.NullRevision {
			continue
		}
		parents := make([]revision.ID, 0, len(entry.Parents))
		for _, p := range entry.Parents {
			if p != revision.NullRevision {
				parents = append(parents, p)
			}
		}
		ret[entry.ID] = parents
	}
	return ret, nil
}

// LefthandStep is one element of IterLefthandAncestry. The last element of
// a walk that ran into a missing revision has Ghost set; that id was never
// resolved.
type LefthandStep struct {
	ID    revision.ID
	Ghost bool
}

// IterLefthandAncestry follows parent index 0 from start. The walk ends
// before yielding any id in stop (NullRevision always stops it), after a
// root revision, or with a Ghost step when a revision is missing. The
// returned sequence can be ranged over more than once.
func (g *Graph) IterLefthandAncestry(ctx context.Context, start revision.ID, stop revision.IDSet) iter.Seq2[LefthandStep, error] {
	return func(yield func(LefthandStep, error) bool) {
		next := start
		for {
			if next == revision.NullRevision || stop[next] {
				return
			}
			pm, err := g.GetParentMap(ctx, []revision.ID{next})
			if err != nil {
				yield(LefthandStep{}, err)
				return
			}
			parents, ok := pm[next]
			if !ok {
				yield(LefthandStep{ID: next, Ghost: true}, nil)
				return
			}
			if !yield(LefthandStep{ID: next}, nil) {
				return
			}
			if len(parents) == 0 {
				return
			}
			next = parents[0]
		}
	}
}

// KnownRevno pairs a revision with its known lefthand distance to
// NullRevision.
type KnownRevno struct {
	ID    revision.ID
	Revno int
}

// FindDistanceToNull returns the number of lefthand hops from target to
// NullRevision. known revnos short-circuit the walk: their lefthand chains
// are walked in parallel so that meeting any of them ends the search. A
// *GhostRevnoError is returned when the chain hits a ghost first.
func (g *Graph) FindDistanceToNull(ctx context.Context, target revision.ID, known []KnownRevno) (int, error) {
	knownRevnos := map[revision.ID]int{revision.NullRevision: 0}
	searchingKnownTips := []revision.ID{revision.NullRevision}
	for _, k := range known {
		if _, ok := knownRevnos[k.ID]; !ok {
			searchingKnownTips = append(searchingKnownTips, k.ID)
		}
		knownRevnos[k.ID] = k.Revno
	}
	unknownSearched := map[revision.ID]int{}
	curTip := target
	numSteps := 0
	for {
		if revno, ok := knownRevnos[curTip]; ok {
			return revno + numSteps, nil
		}
		unknownSearched[curTip] = numSteps
		numSteps++
		toSearch := append([]revision.ID{curTip}, searchingKnownTips...)
		pm, err := g.GetParentMap(ctx, toSearch)
		if err != nil {
			return 0, err
		}
		parents := pm[curTip]
		if len(parents) == 0 {
			return 0, &GhostRevnoError{Target: target, Ghost: curTip}
		}
		curTip = parents[0]
		var nextKnownTips []revision.ID
		for _, id := range searchingKnownTips {
			parents := pm[id]
			if len(parents) == 0 {
				continue
			}
			next := parents[0]
			nextRevno := knownRevnos[id] - 1
			if steps, ok := unknownSearched[next]; ok {
				// The target's chain already went through next.
				return nextRevno + steps, nil
			}
			if _, ok := knownRevnos[next]; ok {
				continue
			}
			knownRevnos[next] = nextRevno
			nextKnownTips = append(nextKnownTips, next)
		}
		searchingKnownTips = nextKnownTips
	}
}

// FindLefthandDistances returns the lefthand distance of each id to
// NullRevision. Ids whose lefthand chain ends in a ghost map to
// DistanceUnknown. Distances found earlier speed up later searches.
func (g *Graph) FindLefthandDistances(ctx context.Context, ids []revision.ID) (map[revision.ID]int, error) {
	sorted := revision.NewIDSet(ids...).Sorted()
	ret := make(map[revision.ID]int, len(sorted))
	var known []KnownRevno
	for _, id := range sorted {
		d, err := g.FindDistanceToNull(ctx, id, known)
		if errors.Is(err, ErrGhostRevisionsHaveNoRevno) {
			ret[id] = DistanceUnknown
			continue
		} else if err != nil {
			return nil, err
		}
		known = append(known, KnownRevno{ID: id, Revno: d})
		ret[id] = d
	}
	return ret, nil
}

// IsAncestor returns true if candidate is an ancestor of descendant, or the
// same revision.
func (g *Graph) IsAncestor(ctx context.Context, candidate, descendant revision.ID) (bool, error) {
	heads, err := g.Heads(ctx, []revision.ID{candidate, descendant})
	if err != nil {
		return false, err
	}
	return len(heads) == 1 && heads[descendant], nil
}

// IsBetween returns true if lower is an ancestor of rev and rev is an
// ancestor of upper. NullRevision as lower is always satisfied.
func (g *Graph) IsBetween(ctx context.Context, rev, lower, upper revision.ID) (bool, error) {
	above, err := g.IsAncestor(ctx, rev, upper)
	if err != nil || !above {
		return false, err
	}
	if lower == revision.NullRevision {
		return true, nil
	}
	return g.IsAncestor(ctx, lower, rev)
}

// ancestrySet returns every revision reachable from heads, ghosts included.
func (g *Graph) ancestrySet(ctx context.Context, heads []revision.ID) (revision.IDSet, error) {
	ret := revision.IDSet{}
	for entry, err := range g.IterAncestry(ctx, heads) {
		if err != nil {
			return nil, err
		}
		ret[entry.ID] = true
	}
	return ret, nil
}

// FindUniqueAncestors returns the ancestors of unique, itself included,
// that are not ancestors of any of common.
func (g *Graph) FindUniqueAncestors(ctx context.Context, unique revision.ID, common []revision.ID) (revision.IDSet, error) {
	ret, err := g.ancestrySet(ctx, []revision.ID{unique})
	if err != nil {
		return nil, err
	}
	if len(common) == 0 {
		return ret, nil
	}
	excluded, err := g.ancestrySet(ctx, common)
	if err != nil {
		return nil, err
	}
	for id := range excluded {
		delete(ret, id)
	}
	return ret, nil
}

// FindDifference returns the revisions only in the ancestry of left and the
// revisions only in the ancestry of right.
func (g *Graph) FindDifference(ctx context.Context, left, right revision.ID) (revision.IDSet, revision.IDSet, error) {
	l, err := g.ancestrySet(ctx, []revision.ID{left})
	if err != nil {
		return nil, nil, err
	}
	r, err := g.ancestrySet(ctx, []revision.ID{right})
	if err != nil {
		return nil, nil, err
	}
	onlyLeft, onlyRight := revision.IDSet{}, revision.IDSet{}
	for id := range l {
		if !r[id] {
			onlyLeft[id] = true
		}
	}
	for id := range r {
		if !l[id] {
			onlyRight[id] = true
		}
	}
	return onlyLeft, onlyRight, nil
}

// sortedKeys returns the keys of a parent map in id order.
func sortedKeys(pm revision.ParentMap) []revision.ID {
	ret := make([]revision.ID, 0, len(pm))
	for id := range pm {
		ret = append(ret, id)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i] < ret[j] })
	return ret
}
