package branch

import (
	"context"
	"iter"
	"slices"

	"go.skia.org/revgraph/go/graph"
	"go.skia.org/revgraph/go/revision"
	"go.skia.org/revgraph/go/skerr"
)

// StopRule decides how a merge-sorted walk ends at its stop revision.
type StopRule string

const (
	// StopExclude leaves the stop revision out.
	StopExclude StopRule = "exclude"
	// StopInclude makes the stop revision the last one.
	StopInclude StopRule = "include"
	// StopWithMerges includes the stop revision and everything it merged.
	StopWithMerges StopRule = "with-merges"
	// StopWithMergesWithoutCommonAncestry keeps only the revisions that are
	// ancestors of the start but not of the stop revision.
	StopWithMergesWithoutCommonAncestry StopRule = "with-merges-without-common-ancestry"
)

// Direction of a walk.
type Direction string

const (
	// Reverse is newest first, the native merge-sort order.
	Reverse Direction = "reverse"
	// Forward is the exact reverse of Reverse. It does not regroup merged
	// revisions; see revlog.ReverseByDepth for that.
	Forward Direction = "forward"
)

// Validate returns an error for unknown directions.
func (d Direction) Validate() error {
	if d != Reverse && d != Forward {
		return skerr.Fmt("invalid direction %q", d)
	}
	return nil
}

// Validate returns an error for unknown stop rules.
func (r StopRule) Validate() error {
	switch r {
	case StopExclude, StopInclude, StopWithMerges, StopWithMergesWithoutCommonAncestry:
		return nil
	}
	return skerr.Fmt("invalid stop rule %q", r)
}

type nodeSeq = iter.Seq2[graph.MergeSortNode, error]

func fail(err error) nodeSeq {
	return func(yield func(graph.MergeSortNode, error) bool) {
		yield(graph.MergeSortNode{}, err)
	}
}

// IterMergeSortedRevisions walks the merge-sorted ancestry of the tip from
// start (the tip if empty) to stop (the end of history if empty), ending as
// stopRule says. Depths and revnos are those of the whole branch, whatever
// start is. If start is a merged revision, revisions that are not its
// ancestors are left out.
func (b *Branch) IterMergeSortedRevisions(ctx context.Context, start, stop revision.ID, stopRule StopRule, direction Direction) nodeSeq {
	if err := stopRule.Validate(); err != nil {
		return fail(err)
	}
	if err := direction.Validate(); err != nil {
		return fail(err)
	}
	sorted, err := b.MergeSorted(ctx)
	if err != nil {
		return fail(err)
	}
	filtered := b.filterStartNonAncestors(ctx, b.filterMergeSorted(ctx, sorted, start, stop, stopRule))
	if direction == Reverse {
		return filtered
	}
	return func(yield func(graph.MergeSortNode, error) bool) {
		var all []graph.MergeSortNode
		for n, err := range filtered {
			if err != nil {
				yield(graph.MergeSortNode{}, err)
				return
			}
			all = append(all, n)
		}
		for _, n := range slices.Backward(all) {
			if !yield(n, nil) {
				return
			}
		}
	}
}

func (b *Branch) filterMergeSorted(ctx context.Context, sorted []graph.MergeSortNode, start, stop revision.ID, stopRule StopRule) nodeSeq {
	return func(yield func(graph.MergeSortNode, error) bool) {
		nodes := sorted
		if start != "" {
			i := slices.IndexFunc(sorted, func(n graph.MergeSortNode) bool { return n.ID == start })
			if i < 0 {
				yield(graph.MergeSortNode{}, b.noSuchRevision(start))
				return
			}
			nodes = sorted[i:]
		}
		if stop == "" {
			for _, n := range nodes {
				if !yield(n, nil) {
					return
				}
			}
			return
		}
		switch stopRule {
		case StopExclude:
			for _, n := range nodes {
				if n.ID == stop || !yield(n, nil) {
					return
				}
			}
		case StopInclude:
			for _, n := range nodes {
				if !yield(n, nil) || n.ID == stop {
					return
				}
			}
		case StopWithMergesWithoutCommonAncestry:
			from := start
			if from == "" {
				from = b.tip
			}
			unique, err := b.graph.FindUniqueAncestors(ctx, from, []revision.ID{stop})
			if err != nil {
				yield(graph.MergeSortNode{}, err)
				return
			}
			for _, n := range nodes {
				if unique[n.ID] && !yield(n, nil) {
					return
				}
			}
		case StopWithMerges:
			b.filterWithMerges(ctx, nodes, stop, yield)
		}
	}
}

// filterWithMerges yields up to and including stop, then only what stop
// merged, ending at the lefthand parent of stop.
func (b *Branch) filterWithMerges(ctx context.Context, nodes []graph.MergeSortNode, stop revision.ID, yield func(graph.MergeSortNode, error) bool) {
	parentsOf := func(id revision.ID) ([]revision.ID, bool) {
		pm, err := b.store.GetParentMap(ctx, []revision.ID{id})
		if err != nil {
			yield(graph.MergeSortNode{}, skerr.Wrapf(err, "loading parents of %s", id))
			return nil, false
		}
		return pm[id], true
	}
	stopParents, ok := parentsOf(stop)
	if !ok {
		return
	}
	leftParent := revision.NullRevision
	if len(stopParents) > 0 {
		leftParent = stopParents[0]
	}
	reachedStop := false
	whitelist := revision.IDSet{}
	for _, n := range nodes {
		if n.ID == leftParent {
			return
		}
		if reachedStop && !whitelist[n.ID] {
			continue
		}
		if !yield(n, nil) {
			return
		}
		if reachedStop || n.ID == stop {
			parents, ok := parentsOf(n.ID)
			if !ok {
				return
			}
			if len(parents) > 0 {
				reachedStop = true
				whitelist.Add(parents...)
			}
		}
	}
}

// filterStartNonAncestors drops the revisions that follow a merged start
// revision in merge-sorted order without being its ancestors, until the
// mainline is reached again.
func (b *Branch) filterStartNonAncestors(ctx context.Context, nodes nodeSeq) nodeSeq {
	return func(yield func(graph.MergeSortNode, error) bool) {
		first := true
		clean := false
		whitelist := revision.IDSet{}
		for n, err := range nodes {
			if err != nil {
				yield(graph.MergeSortNode{}, err)
				return
			}
			if first {
				first = false
				if !yield(n, nil) {
					return
				}
				if n.MergeDepth == 0 {
					clean = true
					continue
				}
				pm, err := b.store.GetParentMap(ctx, []revision.ID{n.ID})
				if err != nil {
					yield(graph.MergeSortNode{}, skerr.Wrapf(err, "loading parents of %s", n.ID))
					return
				}
				if len(pm[n.ID]) == 0 {
					return
				}
				whitelist.Add(pm[n.ID]...)
				continue
			}
			if !clean {
				if !whitelist[n.ID] {
					continue
				}
				pm, err := b.store.GetParentMap(ctx, []revision.ID{n.ID})
				if err != nil {
					yield(graph.MergeSortNode{}, skerr.Wrapf(err, "loading parents of %s", n.ID))
					return
				}
				delete(whitelist, n.ID)
				whitelist.Add(pm[n.ID]...)
				if n.MergeDepth == 0 {
					clean = true
				}
			}
			if !yield(n, nil) {
				return
			}
		}
	}
}
