package revlog

import (
	"context"
	"errors"
	"iter"
	"slices"
	"strconv"

	"go.skia.org/revgraph/go/branch"
	"go.skia.org/revgraph/go/graph"
	"go.skia.org/revgraph/go/revision"
	"go.skia.org/revgraph/go/sklog"
)

// ViewRevision is a revision picked for display, before it is loaded. Revno
// is empty when the revision has no number in the branch, which is always
// the case for ghosts.
type ViewRevision struct {
	ID         revision.ID
	Revno      string
	MergeDepth int
}

type viewSeq = iter.Seq2[ViewRevision, error]

func sliceSeq(views []ViewRevision) viewSeq {
	return func(yield func(ViewRevision, error) bool) {
		for _, v := range views {
			if !yield(v, nil) {
				return
			}
		}
	}
}

func concat(seqs ...viewSeq) viewSeq {
	return func(yield func(ViewRevision, error) bool) {
		for _, seq := range seqs {
			for v, err := range seq {
				if !yield(v, err) || err != nil {
					return
				}
			}
		}
	}
}

func collect(seq viewSeq) ([]ViewRevision, error) {
	var ret []ViewRevision
	for v, err := range seq {
		if err != nil {
			return nil, err
		}
		ret = append(ret, v)
	}
	return ret, nil
}

// revisionLimits checks the range of a request and returns its ids, empty
// for open ends.
func revisionLimits(b *branch.Branch, start, end *RevisionInfo) (revision.ID, revision.ID, error) {
	var startID, endID revision.ID
	startRevno, endRevno := 1, branch.RevnoUnknown
	if start != nil {
		startID = start.ID
		if start.Revno != branch.RevnoUnknown {
			startRevno = start.Revno
		}
	}
	if end != nil {
		endID = end.ID
		endRevno = end.Revno
	}
	if b.LastRevision() != revision.NullRevision {
		if startID == revision.NullRevision || endID == revision.NullRevision {
			return "", "", &RangeError{Reason: RangeRevisionZero, StartID: startID, EndID: endID, StartRevno: startRevno, EndRevno: endRevno}
		}
		if endRevno != branch.RevnoUnknown && startRevno > endRevno {
			return "", "", &RangeError{Reason: RangeStartAfterEnd, StartID: startID, EndID: endID, StartRevno: startRevno, EndRevno: endRevno}
		}
	}
	return startID, endID, nil
}

type viewOptions struct {
	start     revision.ID
	end       revision.ID
	direction branch.Direction
	// generateMerges includes merged revisions.
	generateMerges bool
	// delayGraph walks the lefthand history until the first merge before
	// loading the merge graph.
	delayGraph            bool
	excludeCommonAncestry bool
}

// calcViewRevisions returns the revisions a log shows, in display order.
// Malformed requests fail immediately; problems found while walking are
// returned through the sequence.
func calcViewRevisions(ctx context.Context, b *branch.Branch, o viewOptions) (viewSeq, error) {
	if o.excludeCommonAncestry && o.start == o.end {
		return nil, &RangeError{Reason: RangeIdenticalBounds, StartID: o.start, EndID: o.end, StartRevno: branch.RevnoUnknown, EndRevno: branch.RevnoUnknown}
	}
	if err := o.direction.Validate(); err != nil {
		return nil, err
	}
	if b.LastRevision() == revision.NullRevision {
		return sliceSeq(nil), nil
	}

	if o.end != "" && o.start == o.end {
		single := !o.generateMerges
		if !single {
			merges, err := hasMerges(ctx, b, o.end)
			if err != nil {
				return nil, err
			}
			single = !merges
		}
		if single {
			v, err := generateOneRevision(ctx, b, o.end)
			if err != nil {
				return nil, err
			}
			return sliceSeq([]ViewRevision{v}), nil
		}
	}

	if !o.generateMerges {
		materialize := o.direction == branch.Forward
		if !materialize && o.start != "" {
			obvious, err := isObviousAncestor(ctx, b, o.start, o.end)
			if err != nil {
				return nil, err
			}
			materialize = !obvious
		}
		if !materialize {
			return lazyLinearViewRevisions(ctx, b, o.start, o.end, o.excludeCommonAncestry), nil
		}
		res, err := LinearViewRevisions(ctx, b, o.start, o.end, o.excludeCommonAncestry)
		if err != nil {
			return nil, err
		}
		if !res.NotAncestor {
			if o.direction == branch.Forward {
				slices.Reverse(res.Revisions)
			}
			return sliceSeq(res.Revisions), nil
		}
		sklog.Debugf("%s is not a lefthand ancestor of %s, using the merge graph", o.start, o.end)
	}

	seq, err := generateAllRevisions(ctx, b, o)
	if err != nil {
		return nil, err
	}
	if o.direction == branch.Reverse {
		return seq, nil
	}
	views, err := collect(seq)
	if err != nil {
		return nil, err
	}
	return sliceSeq(ReverseByDepth(RebaseMergeDepth(views))), nil
}

func hasMerges(ctx context.Context, b *branch.Branch, id revision.ID) (bool, error) {
	pm, err := b.Graph().GetParentMap(ctx, []revision.ID{id})
	if err != nil {
		return false, err
	}
	return len(pm[id]) > 1, nil
}

// revnoString returns the dotted revno of id, or "" if it is not in the
// branch.
func revnoString(ctx context.Context, b *branch.Branch, id revision.ID) (string, error) {
	revno, err := b.RevisionIDToDottedRevno(ctx, id)
	if errors.Is(err, branch.ErrNoSuchRevision) {
		return "", nil
	} else if err != nil {
		return "", err
	}
	return revno.String(), nil
}

func generateOneRevision(ctx context.Context, b *branch.Branch, id revision.ID) (ViewRevision, error) {
	if id != b.LastRevision() {
		revno, err := revnoString(ctx, b, id)
		return ViewRevision{ID: id, Revno: revno}, err
	}
	revno, _, err := b.LastRevisionInfo(ctx)
	if errors.Is(err, graph.ErrGhostRevisionsHaveNoRevno) {
		return ViewRevision{ID: id}, nil
	} else if err != nil {
		return ViewRevision{}, err
	}
	return ViewRevision{ID: id, Revno: strconv.Itoa(revno)}, nil
}

// isObviousAncestor returns true if the revnos of start and end show that
// start is a lefthand ancestor of end without walking the graph.
func isObviousAncestor(ctx context.Context, b *branch.Branch, start, end revision.ID) (bool, error) {
	if start == "" || end == "" {
		return true, nil
	}
	s, err := b.RevisionIDToDottedRevno(ctx, start)
	if errors.Is(err, branch.ErrNoSuchRevision) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	e, err := b.RevisionIDToDottedRevno(ctx, end)
	if errors.Is(err, branch.ErrNoSuchRevision) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	switch {
	case len(s) == 1 && len(e) == 1:
		return s[0] <= e[0], nil
	case len(s) == 3 && len(e) == 3 && s[0] == e[0] && s[1] == e[1]:
		// Same line of development.
		return s[2] <= e[2], nil
	}
	return false, nil
}

// LinearResult is the lefthand history between two revisions. NotAncestor
// is set when a start revision was given but not reached, in which case
// Revisions runs to the end of the lefthand history.
type LinearResult struct {
	Revisions   []ViewRevision
	NotAncestor bool
}

// LinearViewRevisions walks the lefthand history from end (the tip if
// empty) down to start (the first revision if empty), newest first. When
// no bounds are given, revnos count down from the tip's revno if the branch
// records or calculates revnos, and are empty otherwise. A ghost ends the
// walk as a revision without revno.
func LinearViewRevisions(ctx context.Context, b *branch.Branch, start, end revision.ID, excludeCommonAncestry bool) (*LinearResult, error) {
	ret := &LinearResult{}
	notAncestor, err := walkLinear(ctx, b, start, end, excludeCommonAncestry, func(v ViewRevision) bool {
		ret.Revisions = append(ret.Revisions, v)
		return true
	})
	if err != nil {
		return nil, err
	}
	ret.NotAncestor = notAncestor
	return ret, nil
}

// lazyLinearViewRevisions is LinearViewRevisions as a sequence. Not reaching
// start is a RangeError at the end of the sequence.
func lazyLinearViewRevisions(ctx context.Context, b *branch.Branch, start, end revision.ID, excludeCommonAncestry bool) viewSeq {
	return func(yield func(ViewRevision, error) bool) {
		stopped := false
		notAncestor, err := walkLinear(ctx, b, start, end, excludeCommonAncestry, func(v ViewRevision) bool {
			stopped = !yield(v, nil)
			return !stopped
		})
		if stopped {
			return
		}
		if err != nil {
			yield(ViewRevision{}, err)
		} else if notAncestor {
			yield(ViewRevision{}, &RangeError{Reason: RangeStartNotAncestor, StartID: start, EndID: end, StartRevno: branch.RevnoUnknown, EndRevno: branch.RevnoUnknown})
		}
	}
}

// walkLinear calls visit for each revision of the linear view until visit
// returns false. It reports whether a start revision was given and not
// reached; that is only meaningful if visit never returned false.
func walkLinear(ctx context.Context, b *branch.Branch, start, end revision.ID, excludeCommonAncestry bool, visit func(ViewRevision) bool) (bool, error) {
	g := b.Graph()
	stop := revision.NewIDSet(revision.NullRevision)
	if start == "" && end == "" {
		revno := branch.RevnoUnknown
		if b.StoresRevno() || b.CalculateRevnos() {
			r, _, err := b.LastRevisionInfo(ctx)
			if err == nil {
				revno = r
			} else if !errors.Is(err, graph.ErrGhostRevisionsHaveNoRevno) {
				return false, err
			}
		}
		for step, err := range g.IterLefthandAncestry(ctx, b.LastRevision(), stop) {
			if err != nil {
				return false, err
			}
			v := ViewRevision{ID: step.ID}
			if !step.Ghost && revno != branch.RevnoUnknown {
				v.Revno = strconv.Itoa(revno)
				revno--
			}
			if !visit(v) || step.Ghost {
				return false, nil
			}
		}
		return false, nil
	}

	if end == "" {
		end = b.LastRevision()
	}
	foundStart := start == ""
	for step, err := range g.IterLefthandAncestry(ctx, end, stop) {
		if err != nil {
			return false, err
		}
		if step.Ghost {
			if !visit(ViewRevision{ID: step.ID}) {
				return false, nil
			}
			break
		}
		revno, err := revnoString(ctx, b, step.ID)
		if err != nil {
			return false, err
		}
		v := ViewRevision{ID: step.ID, Revno: revno}
		if !foundStart && step.ID == start {
			foundStart = true
			if !excludeCommonAncestry && !visit(v) {
				return false, nil
			}
			break
		}
		if !visit(v) {
			return false, nil
		}
	}
	return !foundStart, nil
}

// generateAllRevisions returns the merge-sorted view in reverse order.
func generateAllRevisions(ctx context.Context, b *branch.Branch, o viewOptions) (viewSeq, error) {
	var initial []ViewRevision
	end := o.end
	if o.delayGraph {
		var mergeAt revision.ID
		var visitErr error
		notAncestor, err := walkLinear(ctx, b, o.start, o.end, o.excludeCommonAncestry, func(v ViewRevision) bool {
			merges, err := hasMerges(ctx, b, v.ID)
			if err != nil {
				visitErr = err
				return false
			}
			if merges {
				mergeAt = v.ID
				return false
			}
			initial = append(initial, v)
			return true
		})
		if err != nil {
			return nil, err
		}
		if visitErr != nil {
			return nil, visitErr
		}
		notFound := &RangeError{Reason: RangeStartNotAncestor, StartID: o.start, EndID: o.end, StartRevno: branch.RevnoUnknown, EndRevno: branch.RevnoUnknown}
		if mergeAt == "" {
			if notAncestor {
				return nil, notFound
			}
			return sliceSeq(initial), nil
		}
		if o.start != "" {
			// start may be merged somewhere below mergeAt.
			target := o.end
			if target == "" {
				target = b.LastRevision()
			}
			ok, err := b.Graph().IsAncestor(ctx, o.start, target)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, notFound
			}
		}
		sklog.Debugf("Found a merge at %s after %d linear revisions", mergeAt, len(initial))
		end = mergeAt
	}
	return concat(sliceSeq(initial), graphViewRevisions(ctx, b, o.start, end, o.direction == branch.Reverse, o.excludeCommonAncestry)), nil
}

// graphViewRevisions walks the merge-sorted history from end down to start.
// With rebaseInitialDepths, a walk starting inside a merged line has its
// depths lowered so that the line reads like a mainline. The adjustment
// shrinks whenever a shallower revision appears, and ends at the mainline.
func graphViewRevisions(ctx context.Context, b *branch.Branch, start, end revision.ID, rebaseInitialDepths, excludeCommonAncestry bool) viewSeq {
	rule := branch.StopWithMerges
	if excludeCommonAncestry {
		rule = branch.StopWithMergesWithoutCommonAncestry
	}
	return func(yield func(ViewRevision, error) bool) {
		adjustment, adjusting := 0, false
		for n, err := range b.IterMergeSortedRevisions(ctx, end, start, rule, branch.Reverse) {
			if err != nil {
				yield(ViewRevision{}, err)
				return
			}
			depth := n.MergeDepth
			if rebaseInitialDepths {
				if !adjusting {
					adjustment, adjusting = depth, true
				}
				if adjustment > 0 {
					if depth < adjustment {
						adjustment = depth
					}
					depth -= adjustment
				}
			}
			if !yield(ViewRevision{ID: n.ID, Revno: n.Revno.String(), MergeDepth: depth}, nil) {
				return
			}
		}
	}
}

// RebaseMergeDepth lowers all depths by the smallest one when neither the
// first nor the last revision is at depth 0, so that a log starting inside
// a merged line has a top level.
func RebaseMergeDepth(views []ViewRevision) []ViewRevision {
	if len(views) == 0 || views[0].MergeDepth == 0 || views[len(views)-1].MergeDepth == 0 {
		return views
	}
	minDepth := views[0].MergeDepth
	for _, v := range views {
		minDepth = min(minDepth, v.MergeDepth)
	}
	if minDepth == 0 {
		return views
	}
	ret := make([]ViewRevision, len(views))
	for i, v := range views {
		v.MergeDepth -= minDepth
		ret[i] = v
	}
	return ret
}

// ReverseByDepth turns a newest-first merge-sorted view into an oldest-first
// one that keeps every revision's merged revisions right after it. Each
// revision at a depth is grouped with the deeper revisions that follow it;
// the groups are reversed and each group's deeper revisions are reordered
// the same way, one level down.
func ReverseByDepth(views []ViewRevision) []ViewRevision {
	return reverseByDepth(views, 0)
}

func reverseByDepth(views []ViewRevision, depth int) []ViewRevision {
	if len(views) == 0 {
		return nil
	}
	// chunks[0] has no head revision; it holds leading deeper revisions.
	chunks := [][]ViewRevision{nil}
	for _, v := range views {
		if v.MergeDepth == depth {
			chunks = append(chunks, []ViewRevision{v})
		} else {
			chunks[len(chunks)-1] = append(chunks[len(chunks)-1], v)
		}
	}
	ret := make([]ViewRevision, 0, len(views))
	for i := len(chunks) - 1; i > 0; i-- {
		ret = append(ret, chunks[i][0])
		ret = append(ret, reverseByDepth(chunks[i][1:], depth+1)...)
	}
	return append(ret, reverseByDepth(chunks[0], depth+1)...)
}
