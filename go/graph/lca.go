package graph

import (
	"context"

	"go.skia.org/revgraph/go/metrics2"
	"go.skia.org/revgraph/go/revision"
	"go.skia.org/revgraph/go/skerr"
	"go.skia.org/revgraph/go/sklog"
)

// Heads returns the members of ids that are not ancestors of any other
// member. NullRevision is a head only if it is the only id.
//
// Each candidate gets its own searcher. A searcher that reaches another
// candidate removes that candidate. Revisions reached by every searcher are
// common to all candidates and are handed to a separate walker, so that
// searches stop early instead of reading all history.
func (g *Graph) Heads(ctx context.Context, ids []revision.ID) (revision.IDSet, error) {
	candidates := revision.NewIDSet(ids...)
	if candidates[revision.NullRevision] {
		delete(candidates, revision.NullRevision)
		if len(candidates) == 0 {
			return revision.NewIDSet(revision.NullRevision), nil
		}
	}
	if len(candidates) < 2 {
		return candidates, nil
	}
	searchers := make(map[revision.ID]*searcher, len(candidates))
	active := make(map[revision.ID]*searcher, len(candidates))
	for id := range candidates {
		s := g.newSearcher(id)
		// Skip over the candidate itself.
		if _, err := s.step(ctx); err != nil {
			return nil, err
		}
		searchers[id] = s
		active[id] = s
	}
	common := g.newSearcher()
	for len(active) > 0 {
		if _, err := common.step(ctx); err != nil {
			return nil, err
		}
		ancestors := revision.IDSet{}
		for _, id := range candidates.Sorted() {
			s, ok := active[id]
			if !ok {
				continue
			}
			found, err := s.step(ctx)
			if err != nil {
				return nil, err
			}
			if len(found) == 0 {
				delete(active, id)
				continue
			}
			for a := range found {
				ancestors[a] = true
			}
		}
		newCommon := revision.IDSet{}
		for _, a := range ancestors.Sorted() {
			if candidates[a] {
				delete(candidates, a)
				delete(searchers, a)
				delete(active, a)
			}
			if common.seen[a] {
				// Already known to be common; stop every search at it.
				stop := revision.NewIDSet(a)
				for _, s := range searchers {
					s.stopSearchingAny(stop)
				}
				continue
			}
			seenByAll := true
			for _, s := range searchers {
				if !s.seen[a] {
					seenByAll = false
					break
				}
			}
			if !seenByAll {
				continue
			}
			newCommon[a] = true
			for _, s := range searchers {
				seenAncestors, err := s.findSeenAncestors(ctx, revision.NewIDSet(a))
				if err != nil {
					return nil, err
				}
				s.stopSearchingAny(seenAncestors)
			}
		}
		common.startSearching(newCommon)
	}
	return candidates, nil
}

// findBorderAncestors returns the common ancestors of ids that have at
// least one uncommon descendant, along with every common ancestor seen.
func (g *Graph) findBorderAncestors(ctx context.Context, ids []revision.ID) (revision.IDSet, revision.IDSet, error) {
	commonAncestors := revision.IDSet{}
	borderAncestors := revision.IDSet{}
	searchers := make([]*searcher, 0, len(ids))
	for _, id := range ids {
		searchers = append(searchers, g.newSearcher(id))
	}
	for {
		newlySeen := revision.IDSet{}
		for _, s := range searchers {
			found, err := s.step(ctx)
			if err != nil {
				return nil, nil, err
			}
			for id := range found {
				newlySeen[id] = true
			}
		}
		newCommon := revision.IDSet{}
		for id := range newlySeen {
			if commonAncestors[id] {
				newCommon[id] = true
				continue
			}
			seenByAll := true
			for _, s := range searchers {
				if !s.seen[id] {
					seenByAll = false
					break
				}
			}
			if seenByAll {
				borderAncestors[id] = true
				newCommon[id] = true
			}
		}
		if len(newCommon) > 0 {
			for _, s := range searchers {
				more, err := s.findSeenAncestors(ctx, newCommon)
				if err != nil {
					return nil, nil, err
				}
				for id := range more {
					newCommon[id] = true
				}
			}
			for _, s := range searchers {
				s.startSearching(newCommon)
			}
			for id := range newCommon {
				commonAncestors[id] = true
			}
		}

		// When every searcher is about to query the same frontier, that
		// frontier is common and the search is done.
		first := searchers[0].nextQuery
		converged := true
		for _, s := range searchers[1:] {
			if !s.nextQuery.Equal(first) {
				converged = false
				break
			}
		}
		if converged {
			for id := range first {
				if !commonAncestors[id] {
					return nil, nil, skerr.Fmt("searchers converged on %s without marking it common", id)
				}
			}
			return borderAncestors, commonAncestors, nil
		}
	}
}

// FindLCA returns the lowest common ancestors of ids: common ancestors none
// of whose descendants are common ancestors. A graph may have several.
func (g *Graph) FindLCA(ctx context.Context, ids ...revision.ID) (revision.IDSet, error) {
	if len(ids) == 0 {
		return revision.IDSet{}, nil
	}
	border, _, err := g.findBorderAncestors(ctx, ids)
	if err != nil {
		return nil, err
	}
	return g.Heads(ctx, border.Sorted())
}

// FindUniqueLCA returns a single lowest common ancestor of a and b.
//
// When a and b have several LCAs, as after criss-cross merges, the LCAs of
// those LCAs are computed, repeating until one remains. Every step works on
// sets, so the result does not depend on the argument order. NullRevision
// is the LCA of unrelated histories; ErrNoCommonAncestor is returned only
// when ghosts hide the shared root.
func (g *Graph) FindUniqueLCA(ctx context.Context, a, b revision.ID) (revision.ID, error) {
	defer metrics2.FuncTimer().Stop()
	revs := []revision.ID{a, b}
	for steps := 1; ; steps++ {
		lca, err := g.FindLCA(ctx, revs...)
		if err != nil {
			return "", err
		}
		switch len(lca) {
		case 0:
			return "", skerr.Wrapf(ErrNoCommonAncestor, "%s and %s", a, b)
		case 1:
			for id := range lca {
				sklog.Debugf("Unique LCA of %s and %s is %s after %d steps", a, b, id, steps)
				return id, nil
			}
		}
		revs = lca.Sorted()
	}
}
