package graph

import (
	"go.skia.org/revgraph/go/revision"
	"go.skia.org/revgraph/go/skerr"
)

// TopologicalSort orders the keys of pm so that every revision comes after
// all of its parents that are keys of pm. Parents outside pm, such as ghosts
// and NullRevision, are ignored. Ties are broken by id so the order is
// stable. ErrGraphCycle is returned if pm has a cycle.
func TopologicalSort(pm revision.ParentMap) ([]revision.ID, error) {
	remaining := make(revision.IDSet, len(pm))
	for id := range pm {
		remaining[id] = true
	}
	// children maps each revision to those revisions which have it as a
	// parent.
	children := make(map[revision.ID]revision.IDSet, len(pm))
	for id, parents := range pm {
		for _, p := range parents {
			if remaining[p] {
				if children[p] == nil {
					children[p] = revision.IDSet{}
				}
				children[p][id] = true
			}
		}
	}

	// Build the order newest first, following each branch down as far as
	// possible, then reverse it.
	rv := make([]revision.ID, 0, len(pm))
	followBranch := func(id revision.ID) {
		for len(children[id]) == 0 {
			rv = append(rv, id)
			delete(remaining, id)

			// Remove this revision from its parents' children, so that they
			// can be processed.
			for _, p := range pm[id] {
				if remaining[p] {
					delete(children[p], id)
				}
			}

			// Find a parent to process next.
			var next revision.ID
			found := false
			for _, p := range pm[id] {
				if remaining[p] && len(children[p]) == 0 {
					if !found || p < next {
						next = p
						found = true
					}
				}
			}
			if !found {
				return
			}
			id = next
		}
	}
	for len(remaining) > 0 {
		var next revision.ID
		found := false
		for id := range remaining {
			if len(children[id]) == 0 && (!found || id < next) {
				next = id
				found = true
			}
		}
		if !found {
			return nil, skerr.Wrapf(ErrGraphCycle, "%d revisions left unsorted", len(remaining))
		}
		followBranch(next)
	}
	for i, j := 0, len(rv)-1; i < j; i, j = i+1, j-1 {
		rv[i], rv[j] = rv[j], rv[i]
	}
	return rv, nil
}
