package graph

import (
	"context"

	"go.skia.org/revgraph/go/revision"
)

// searcher walks ancestry breadth first, one generation per step. A step
// returns the revisions about to be queried, so revisions are reported
// before their parents are read; ghosts and missing start revisions show up
// like any other id.
type searcher struct {
	g         *Graph
	started   bool
	nextQuery revision.IDSet
	seen      revision.IDSet
}

func (g *Graph) newSearcher(ids ...revision.ID) *searcher {
	return &searcher{
		g:         g,
		nextQuery: revision.NewIDSet(ids...),
		seen:      revision.IDSet{},
	}
}

// step returns the next generation, or an empty set once the search is
// exhausted. Every returned id is marked seen.
func (s *searcher) step(ctx context.Context) (revision.IDSet, error) {
	if !s.started {
		s.started = true
	} else if err := s.advance(ctx); err != nil {
		return nil, err
	}
	if len(s.nextQuery) == 0 {
		return revision.IDSet{}, nil
	}
	for id := range s.nextQuery {
		s.seen[id] = true
	}
	return s.nextQuery.Copy(), nil
}

// advance queries the current frontier and replaces it with the parents
// that were not seen before.
func (s *searcher) advance(ctx context.Context) error {
	for id := range s.nextQuery {
		s.seen[id] = true
	}
	pm, err := s.g.getParentSet(ctx, s.nextQuery)
	if err != nil {
		return err
	}
	next := revision.IDSet{}
	for _, parents := range pm {
		for _, p := range parents {
			if !s.seen[p] {
				next[p] = true
			}
		}
	}
	s.nextQuery = next
	return nil
}

// findSeenAncestors returns the members of ids this searcher has seen,
// plus all of their ancestors it has seen. Revisions that are queued but not
// yet queried are not expanded.
func (s *searcher) findSeenAncestors(ctx context.Context, ids revision.IDSet) (revision.IDSet, error) {
	pending := revision.IDSet{}
	for id := range ids {
		if s.seen[id] {
			pending[id] = true
		}
	}
	seenAncestors := pending.Copy()
	for id := range s.nextQuery {
		delete(pending, id)
	}
	for len(pending) > 0 {
		pm, err := s.g.getParentSet(ctx, pending)
		if err != nil {
			return nil, err
		}
		next := revision.IDSet{}
		for _, parents := range pm {
			for _, p := range parents {
				if s.seen[p] && !seenAncestors[p] {
					next[p] = true
				}
			}
		}
		for id := range next {
			seenAncestors[id] = true
		}
		for id := range s.nextQuery {
			delete(next, id)
		}
		pending = next
	}
	return seenAncestors, nil
}

// stopSearchingAny removes ids from the frontier and returns the ones that
// were there.
func (s *searcher) stopSearchingAny(ids revision.IDSet) revision.IDSet {
	stopped := revision.IDSet{}
	for id := range ids {
		if s.nextQuery[id] {
			stopped[id] = true
			delete(s.nextQuery, id)
		}
	}
	return stopped
}

// startSearching adds the unseen members of ids to the frontier.
func (s *searcher) startSearching(ids revision.IDSet) {
	for id := range ids {
		if !s.seen[id] {
			s.nextQuery[id] = true
			s.seen[id] = true
		}
	}
}
