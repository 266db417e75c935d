package revlog

import (
	"context"
	"errors"
	"iter"

	"go.skia.org/revgraph/go/branch"
	"go.skia.org/revgraph/go/metrics2"
	"go.skia.org/revgraph/go/revision"
	"go.skia.org/revgraph/go/revstore"
	"go.skia.org/revgraph/go/skerr"
	"go.skia.org/revgraph/go/sklog"
)

// LogRevision is one revision of a log, with the details the request asked
// for. Revno is empty for revisions outside the branch.
type LogRevision struct {
	Rev        *revision.Revision
	Revno      string
	MergeDepth int
	Delta      *revstore.TreeDelta
	Tags       []string
	Diff       []byte
	Signature  string
}

// SignatureValidator describes the signature of a revision in one line.
type SignatureValidator interface {
	SignatureValidity(ctx context.Context, id revision.ID) (string, error)
}

// Generator produces the revisions of a log.
type Generator struct {
	branch    *branch.Branch
	rqst      Request
	match     []matchGroup
	validator SignatureValidator
	tags      map[revision.ID][]string
	emitted   metrics2.Counter
}

// NewGenerator returns a Generator for rqst on b. validator is only used,
// and then required, when rqst.Signature is set. A request with unset
// levels shows the mainline only.
func NewGenerator(b *branch.Branch, rqst *Request, validator SignatureValidator) (*Generator, error) {
	if err := rqst.Validate(); err != nil {
		return nil, err
	}
	match, err := compileMatch(rqst.Match)
	if err != nil {
		return nil, err
	}
	if rqst.Signature && validator == nil {
		return nil, skerr.Fmt("signatures requested without a signature validator")
	}
	g := &Generator{
		branch:    b,
		rqst:      *rqst,
		match:     match,
		validator: validator,
		tags:      map[revision.ID][]string{},
		emitted:   metrics2.GetCounter("revgraph_log_revisions_emitted"),
	}
	if g.rqst.Levels == LevelsUnset {
		g.rqst.Levels = 1
	}
	if rqst.GenerateTags {
		g.tags = b.ReverseTagDict()
	}
	return g, nil
}

func (g *Generator) revisionBatches(ctx context.Context) (batchSeq, error) {
	r := &g.rqst
	start, end, err := revisionLimits(g.branch, r.StartRevision, r.EndRevision)
	if err != nil {
		return nil, err
	}
	views, err := calcViewRevisions(ctx, g.branch, viewOptions{
		start:                 start,
		end:                   end,
		direction:             r.Direction,
		generateMerges:        r.Levels != 1,
		delayGraph:            len(r.SpecificFiles) == 0 && (r.Limit > 0 || start != "" || end != ""),
		excludeCommonAncestry: r.ExcludeCommonAncestry,
	})
	if err != nil {
		return nil, err
	}
	s := g.branch.Store()
	batches := batchFilter(views, r.BatchCap)
	batches = hydrate(ctx, s, batches)
	batches = searchFilter(g.match, batches)
	return deltaFilter(ctx, s, r.DeltaType, r.SpecificFiles, r.Direction, batches), nil
}

// Revisions returns the log. Request errors are returned by the first step
// of the sequence. Reaching a ghost is an ErrGhostRevisionUnusableHere.
func (g *Generator) Revisions(ctx context.Context) iter.Seq2[*LogRevision, error] {
	return func(yield func(*LogRevision, error) bool) {
		batches, err := g.revisionBatches(ctx)
		if err != nil {
			yield(nil, err)
			return
		}
		count := 0
		for batch, err := range batches {
			if err != nil {
				yield(nil, err)
				return
			}
			for _, lr := range batch {
				if g.rqst.Levels != 0 && lr.view.MergeDepth >= g.rqst.Levels {
					continue
				}
				if lr.rev == nil {
					yield(nil, skerr.Wrapf(ErrGhostRevisionUnusableHere, "revision %s is not present", lr.view.ID))
					return
				}
				if g.rqst.OmitMerges && len(lr.rev.ParentIDs) > 1 {
					continue
				}
				out, err := g.logRevision(ctx, lr)
				if err != nil {
					yield(nil, err)
					return
				}
				g.emitted.Inc(1)
				if !yield(out, nil) {
					return
				}
				count++
				if g.rqst.Limit > 0 && count >= g.rqst.Limit {
					return
				}
			}
		}
	}
}

func (g *Generator) logRevision(ctx context.Context, lr logRev) (*LogRevision, error) {
	ret := &LogRevision{
		Rev:        lr.rev,
		Revno:      lr.view.Revno,
		MergeDepth: lr.view.MergeDepth,
		Delta:      lr.delta,
		Tags:       g.tags[lr.rev.ID],
	}
	if g.rqst.DiffType != DiffNone {
		src, ok := g.branch.Store().(revstore.DiffSource)
		if !ok {
			return nil, skerr.Wrapf(revstore.ErrUnsupported, "generating diffs")
		}
		var paths []string
		if g.rqst.DiffType == DiffPartial {
			paths = g.rqst.SpecificFiles
		}
		diff, err := src.RevisionDiff(ctx, lr.rev, paths)
		if err != nil {
			return nil, skerr.Wrapf(err, "generating diff of %s", lr.rev.ID)
		}
		ret.Diff = diff
	}
	if g.rqst.Signature {
		sig, err := g.validator.SignatureValidity(ctx, lr.rev.ID)
		if err != nil {
			return nil, skerr.Wrapf(err, "verifying signature of %s", lr.rev.ID)
		}
		ret.Signature = sig
	}
	return ret, nil
}

// Logger renders a log through a Formatter.
type Logger struct {
	branch    *branch.Branch
	rqst      Request
	validator SignatureValidator
}

// NewLogger returns a Logger for rqst on b.
func NewLogger(b *branch.Branch, rqst *Request, validator SignatureValidator) *Logger {
	return &Logger{branch: b, rqst: *rqst, validator: validator}
}

// Show writes the log to lf. The request is first narrowed to what lf can
// display: levels default to the formatter's, and tags, deltas, diffs and
// signatures are dropped if lf cannot show them. It returns the number of
// revisions shown.
func (l *Logger) Show(ctx context.Context, lf Formatter) (int, error) {
	rqst := l.rqst
	caps := lf.Capabilities()
	if levels := lf.Levels(); rqst.Levels == LevelsUnset || levels > rqst.Levels {
		rqst.Levels = levels
	}
	if !caps.Tags {
		rqst.GenerateTags = false
	}
	if !caps.Delta {
		rqst.DeltaType = DeltaNone
	}
	if !caps.Diff {
		rqst.DiffType = DiffNone
	}
	if !caps.Signatures {
		rqst.Signature = false
	}
	gen, err := NewGenerator(l.branch, &rqst, l.validator)
	if err != nil {
		return 0, err
	}
	shown := 0
	for lr, err := range gen.Revisions(ctx) {
		if errors.Is(err, ErrGhostRevisionUnusableHere) {
			sklog.Warningf("Log of %s stopped at a ghost: %s", l.branch.Name(), err)
			return shown, err
		} else if err != nil {
			return shown, err
		}
		if err := lf.LogRevision(lr); err != nil {
			return shown, skerr.Wrap(err)
		}
		shown++
	}
	return shown, skerr.Wrap(lf.ShowAdvice())
}
