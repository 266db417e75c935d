package revlog

import (
	"context"
	"iter"
	"slices"
	"sort"

	"go.skia.org/revgraph/go/branch"
	"go.skia.org/revgraph/go/revision"
	"go.skia.org/revgraph/go/revstore"
	"go.skia.org/revgraph/go/skerr"
	"go.skia.org/revgraph/go/util"
)

// firstBatchSize is the size of the first batch read from the store. Each
// following batch is half as large again, up to the batch cap.
const firstBatchSize = 9

// logRev is a revision moving through the pipeline. Rev is nil until the
// revision is loaded, and for ghosts.
type logRev struct {
	view  ViewRevision
	rev   *revision.Revision
	delta *revstore.TreeDelta
}

type batchSeq = iter.Seq2[[]logRev, error]

// batchFilter groups views into batches of growing size, so that the first
// revisions are shown quickly and later reads are amortized.
func batchFilter(views viewSeq, batchCap int) batchSeq {
	if batchCap <= 0 {
		batchCap = DefaultBatchCap
	}
	return func(yield func([]logRev, error) bool) {
		size := min(firstBatchSize, batchCap)
		batch := make([]logRev, 0, size)
		for v, err := range views {
			if err != nil {
				yield(nil, err)
				return
			}
			batch = append(batch, logRev{view: v})
			if len(batch) < size {
				continue
			}
			if !yield(batch, nil) {
				return
			}
			size = min(size*3/2, batchCap)
			batch = make([]logRev, 0, size)
		}
		if len(batch) > 0 {
			yield(batch, nil)
		}
	}
}

// hydrate loads the revisions of each batch with one store read.
func hydrate(ctx context.Context, s revstore.Store, batches batchSeq) batchSeq {
	return func(yield func([]logRev, error) bool) {
		for batch, err := range batches {
			if err != nil {
				yield(nil, err)
				return
			}
			ids := make([]revision.ID, len(batch))
			for i, lr := range batch {
				ids[i] = lr.view.ID
			}
			i := 0
			for entry, err := range revstore.IterRevisions(ctx, s, ids) {
				if err != nil {
					yield(nil, skerr.Wrapf(err, "loading %d revisions", len(ids)))
					return
				}
				batch[i].rev = entry.Rev
				i++
			}
			if !yield(batch, nil) {
				return
			}
		}
	}
}

// searchFilter drops the revisions that do not match every group. Ghosts
// are kept so that the generator can report them.
func searchFilter(groups []matchGroup, batches batchSeq) batchSeq {
	if len(groups) == 0 {
		return batches
	}
	return func(yield func([]logRev, error) bool) {
		for batch, err := range batches {
			if err != nil {
				yield(nil, err)
				return
			}
			kept := slices.DeleteFunc(batch, func(lr logRev) bool {
				return lr.rev != nil && !matchRevision(groups, lr.rev)
			})
			if len(kept) > 0 && !yield(kept, nil) {
				return
			}
		}
	}
}

func matchRevision(groups []matchGroup, rev *revision.Revision) bool {
	fields := map[string][]string{
		MatchMessage:   {rev.Message},
		MatchCommitter: {rev.Committer},
		MatchAuthor:    rev.ApparentAuthors(),
		MatchBugs:      {},
	}
	for _, bug := range rev.Bugs() {
		fields[MatchBugs] = append(fields[MatchBugs], bug.URL)
	}
	for _, f := range []string{MatchMessage, MatchCommitter, MatchAuthor, MatchBugs} {
		fields[MatchAny] = append(fields[MatchAny], fields[f]...)
	}
	for _, g := range groups {
		strs, ok := fields[g.field]
		if !ok {
			// Unknown fields do not restrict the log.
			continue
		}
		if !matchAny(g, strs) {
			return false
		}
	}
	return true
}

func matchAny(g matchGroup, strs []string) bool {
	for _, s := range strs {
		if util.AnyMatch(g.patterns, s) {
			return true
		}
	}
	return false
}

// deltaFilter attaches deltas when deltaType asks for them, and keeps only
// the revisions touching files when files are given. The tracked files
// follow renames, and a file stops being tracked at the revision that
// added it (reverse) or removed it (forward). Once no file is tracked,
// nothing else can match and the sequence ends.
func deltaFilter(ctx context.Context, s revstore.Store, deltaType DeltaType, files []string, direction branch.Direction, batches batchSeq) batchSeq {
	if deltaType == DeltaNone && len(files) == 0 {
		return batches
	}
	return func(yield func([]logRev, error) bool) {
		src, ok := s.(revstore.DeltaSource)
		if !ok {
			yield(nil, skerr.Wrapf(revstore.ErrUnsupported, "generating deltas"))
			return
		}
		checkFiles := len(files) > 0
		fileSet := map[string]bool{}
		for _, f := range files {
			fileSet[f] = true
		}
		stopOn := stopOnAdd
		if direction == branch.Forward {
			stopOn = stopOnRemove
		}
		for batch, err := range batches {
			if err != nil {
				yield(nil, err)
				return
			}
			if checkFiles && len(fileSet) == 0 {
				return
			}
			var revs []*revision.Revision
			for _, lr := range batch {
				if lr.rev != nil {
					revs = append(revs, lr.rev)
				}
			}
			fetch := func(revs []*revision.Revision) ([]*revstore.TreeDelta, error) {
				var paths []string
				if checkFiles {
					paths = sortedPaths(fileSet)
				}
				deltas, err := src.RevisionDeltas(ctx, revs, paths)
				return deltas, skerr.Wrapf(err, "computing deltas of %d revisions", len(revs))
			}
			deltas, err := fetch(revs)
			if err != nil {
				yield(nil, err)
				return
			}
			kept := make([]logRev, 0, len(batch))
			i := 0
			for _, lr := range batch {
				if checkFiles && len(fileSet) == 0 {
					break
				}
				if lr.rev == nil {
					kept = append(kept, lr)
					continue
				}
				delta := deltas[i]
				i++
				if checkFiles {
					if !delta.HasChanged() {
						continue
					}
					if updateFiles(delta, fileSet, stopOn) && i < len(revs) && len(fileSet) > 0 {
						// The rest of the batch is matched against the new names.
						rest, err := fetch(revs[i:])
						if err != nil {
							yield(nil, err)
							return
						}
						deltas = append(deltas[:i], rest...)
					}
					switch deltaType {
					case DeltaNone:
						delta = nil
					case DeltaFull:
						full, err := src.RevisionDeltas(ctx, []*revision.Revision{lr.rev}, nil)
						if err != nil {
							yield(nil, skerr.Wrapf(err, "computing delta of %s", lr.rev.ID))
							return
						}
						delta = full[0]
					}
				}
				lr.delta = delta
				kept = append(kept, lr)
			}
			if !yield(kept, nil) {
				return
			}
		}
	}
}

func sortedPaths(set map[string]bool) []string {
	ret := make([]string, 0, len(set))
	for p := range set {
		ret = append(ret, p)
	}
	sort.Strings(ret)
	return ret
}

type stopOn int

const (
	stopOnAdd stopOn = iota
	stopOnRemove
)

// updateFiles follows the tracked files through delta and reports whether
// the set changed. Walking backwards, a renamed file is tracked under its
// old name and an added file is no longer tracked. Walking forwards it is
// the other way around.
func updateFiles(delta *revstore.TreeDelta, files map[string]bool, stop stopOn) bool {
	changed := false
	moved := append(append([]revstore.Change{}, delta.Copied...), delta.Renamed...)
	from, to := func(c revstore.Change) string { return c.NewPath }, func(c revstore.Change) string { return c.OldPath }
	ended := delta.Added
	if stop == stopOnRemove {
		from, to = to, from
		ended = delta.Removed
	}
	for _, c := range ended {
		if files[from(c)] {
			delete(files, from(c))
			changed = true
		}
	}
	for _, c := range moved {
		src, dst := from(c), to(c)
		if files[src] {
			delete(files, src)
			files[dst] = true
			changed = true
		}
		if c.Kind == revstore.KindDirectory {
			for _, p := range sortedPaths(files) {
				if revstore.IsInside(src, p) {
					delete(files, p)
					files[dst+p[len(src):]] = true
					changed = true
				}
			}
		}
	}
	return changed
}
