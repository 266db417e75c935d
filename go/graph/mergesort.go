package graph

import (
	"go.skia.org/revgraph/go/metrics2"
	"go.skia.org/revgraph/go/revision"
	"go.skia.org/revgraph/go/skerr"
)

// MergeSortNode is one revision of a merge-sorted history.
type MergeSortNode struct {
	ID revision.ID
	// MergeDepth is 0 on the mainline and grows by one per merge nesting.
	MergeDepth int
	Revno      revision.DottedRevno
	// EndOfMerge is set on the last revision of a merged line of
	// development, i.e. when the next node is shallower, or at the same
	// depth but not a parent of this one.
	EndOfMerge bool
}

// firstChild records whether a revision's lefthand parent had not yet been
// claimed as a lefthand parent by another revision when it was pushed.
type firstChild int

const (
	firstChildUnknown firstChild = iota
	firstChildYes
	firstChildNo
)

type revnoState struct {
	revno revision.DottedRevno
	// unclaimed is true until some revision is pushed with this one as its
	// lefthand parent.
	unclaimed bool
}

type mergeSorter struct {
	graph     revision.ParentMap
	pending   revision.ParentMap
	revnos    map[revision.ID]*revnoState
	completed revision.IDSet
	// branchCount maps a mainline revno to the number of branches numbered
	// off it so far. Roots after the first use key 0.
	branchCount map[int]int
	scheduled   []scheduledNode

	nameStack         []revision.ID
	depthStack        []int
	pendingParents    [][]revision.ID
	firstChildStack   []firstChild
	leftSubtreePushed []bool
}

type scheduledNode struct {
	id    revision.ID
	depth int
	revno revision.DottedRevno
}

// MergeSort orders the ancestry of tip in pm newest first, numbering every
// revision with a dotted revno.
//
// Revisions are visited depth first. The lefthand parent is followed first
// at the same depth; the other parents are followed right to left, one
// level deeper. A revision is emitted after all of its ancestors, and the
// output is that order reversed, so a merge is immediately followed by the
// revisions it brought in. Timestamps are never consulted, so the output
// depends only on the shape of pm.
//
// Parents missing from pm are ghosts and are skipped. NullRevision must not
// appear in pm; roots have no parents. ErrGraphCycle is returned if the
// ancestry of tip has a cycle.
func MergeSort(pm revision.ParentMap, tip revision.ID) ([]MergeSortNode, error) {
	defer metrics2.FuncTimer().Stop()
	if tip.IsNull() {
		return []MergeSortNode{}, nil
	}
	tipParents, ok := pm[tip]
	if !ok {
		return nil, skerr.Fmt("tip %s is not in the parent map", tip)
	}
	s := &mergeSorter{
		graph:       pm,
		pending:     make(revision.ParentMap, len(pm)),
		revnos:      make(map[revision.ID]*revnoState, len(pm)),
		completed:   make(revision.IDSet, len(pm)),
		branchCount: map[int]int{},
	}
	for id, parents := range pm {
		s.pending[id] = parents
		s.revnos[id] = &revnoState{unclaimed: true}
	}
	delete(s.pending, tip)
	s.push(tip, 0, tipParents)
	if err := s.run(); err != nil {
		return nil, err
	}
	return s.output(), nil
}

func (s *mergeSorter) push(id revision.ID, depth int, parents []revision.ID) {
	s.nameStack = append(s.nameStack, id)
	s.depthStack = append(s.depthStack, depth)
	s.pendingParents = append(s.pendingParents, append([]revision.ID(nil), parents...))
	s.leftSubtreePushed = append(s.leftSubtreePushed, false)
	fc := firstChildUnknown
	if len(parents) > 0 {
		if info, ok := s.revnos[parents[0]]; ok {
			if info.unclaimed {
				fc = firstChildYes
			} else {
				fc = firstChildNo
			}
			info.unclaimed = false
		}
	}
	s.firstChildStack = append(s.firstChildStack, fc)
}

func (s *mergeSorter) pop() {
	top := len(s.nameStack) - 1
	id := s.nameStack[top]
	depth := s.depthStack[top]
	fc := s.firstChildStack[top]
	s.nameStack = s.nameStack[:top]
	s.depthStack = s.depthStack[:top]
	s.pendingParents = s.pendingParents[:top]
	s.firstChildStack = s.firstChildStack[:top]
	s.leftSubtreePushed = s.leftSubtreePushed[:top]

	var parentRevno revision.DottedRevno
	if parents := s.graph[id]; len(parents) > 0 {
		if info, ok := s.revnos[parents[0]]; ok {
			parentRevno = info.revno
		}
	}
	var revno revision.DottedRevno
	if parentRevno != nil {
		if fc != firstChildYes {
			// A new branch off the parent's mainline revno.
			base := parentRevno[0]
			s.branchCount[base]++
			revno = revision.DottedRevno{base, s.branchCount[base], 1}
		} else {
			// Continue the parent's line of development.
			revno = append(revision.DottedRevno(nil), parentRevno...)
			revno[len(revno)-1]++
		}
	} else {
		// A root, or a revision whose lefthand parent is a ghost.
		rootCount, ok := s.branchCount[0]
		if !ok {
			rootCount = -1
		}
		rootCount++
		if rootCount > 0 {
			revno = revision.DottedRevno{0, rootCount, 1}
		} else {
			revno = revision.DottedRevno{1}
		}
		s.branchCount[0] = rootCount
	}
	s.completed[id] = true
	s.revnos[id].revno = revno
	s.scheduled = append(s.scheduled, scheduledNode{id: id, depth: depth, revno: revno})
}

func (s *mergeSorter) run() error {
	for len(s.nameStack) > 0 {
		top := len(s.nameStack) - 1
		pushed := false
		for len(s.pendingParents[top]) > 0 && !pushed {
			pp := s.pendingParents[top]
			var next revision.ID
			isLeft := false
			if !s.leftSubtreePushed[top] {
				next = pp[0]
				s.pendingParents[top] = pp[1:]
				s.leftSubtreePushed[top] = true
				isLeft = true
			} else {
				next = pp[len(pp)-1]
				s.pendingParents[top] = pp[:len(pp)-1]
			}
			if s.completed[next] {
				continue
			}
			parents, ok := s.pending[next]
			if !ok {
				if _, known := s.graph[next]; known {
					// Present in the graph but neither pending nor
					// completed: it is on the stack.
					return skerr.Wrapf(ErrGraphCycle, "revision %s is its own ancestor", next)
				}
				// A ghost.
				continue
			}
			delete(s.pending, next)
			depth := s.depthStack[top]
			if !isLeft {
				depth++
			}
			s.push(next, depth, parents)
			pushed = true
		}
		if !pushed {
			s.pop()
		}
	}
	return nil
}

func (s *mergeSorter) output() []MergeSortNode {
	ret := make([]MergeSortNode, 0, len(s.scheduled))
	for i := len(s.scheduled) - 1; i >= 0; i-- {
		node := s.scheduled[i]
		end := true
		if i > 0 {
			next := s.scheduled[i-1]
			if next.depth > node.depth {
				end = false
			} else if next.depth == node.depth {
				end = true
				for _, p := range s.graph[node.id] {
					if p == next.id {
						end = false
						break
					}
				}
			}
		}
		ret = append(ret, MergeSortNode{
			ID:         node.id,
			MergeDepth: node.depth,
			Revno:      node.revno,
			EndOfMerge: end,
		})
	}
	return ret
}
