package revlog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.skia.org/revgraph/go/branch"
	"go.skia.org/revgraph/go/graph"
	"go.skia.org/revgraph/go/revision"
	"go.skia.org/revgraph/go/revstore"
	"go.skia.org/revgraph/go/revstore/memstore"
)

type row struct {
	ID    revision.ID
	Revno string
	Depth int
}

func runLog(t *testing.T, b *branch.Branch, rqst *Request) ([]*LogRevision, error) {
	g, err := NewGenerator(b, rqst, nil)
	require.NoError(t, err)
	var ret []*LogRevision
	for lr, err := range g.Revisions(context.Background()) {
		if err != nil {
			return ret, err
		}
		ret = append(ret, lr)
	}
	return ret, nil
}

func logRows(t *testing.T, b *branch.Branch, rqst *Request) []row {
	revs, err := runLog(t, b, rqst)
	require.NoError(t, err)
	ret := make([]row, 0, len(revs))
	for _, lr := range revs {
		ret = append(ret, row{ID: lr.Rev.ID, Revno: lr.Revno, Depth: lr.MergeDepth})
	}
	return ret
}

func assertRows(t *testing.T, want, got []row) {
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("log mismatch (-want +got):\n%s", diff)
	}
}

func request(mod func(r *Request)) *Request {
	r := NewRequest()
	if mod != nil {
		mod(r)
	}
	return r
}

func allLevels(r *Request) { r.Levels = 0 }

func TestRevisions_OneMerge(t *testing.T) {
	b := branchOf(oneMerge(), "2")
	assertRows(t, []row{
		{"2", "2", 0},
		{"1.1.1", "1.1.1", 1},
		{"1", "1", 0},
	}, logRows(t, b, request(allLevels)))

	assertRows(t, []row{
		{"1", "1", 0},
		{"2", "2", 0},
		{"1.1.1", "1.1.1", 1},
	}, logRows(t, b, request(func(r *Request) {
		r.Levels = 0
		r.Direction = branch.Forward
	})))

	// Unset levels show the mainline only.
	assertRows(t, []row{
		{"2", "2", 0},
		{"1", "1", 0},
	}, logRows(t, b, request(nil)))
}

func TestRevisions_Linear(t *testing.T) {
	b := branchOf(linear(), "5")
	r := func(mod func(r *Request)) *Request {
		return request(func(r *Request) {
			r.Levels = 1
			mod(r)
		})
	}
	assertRows(t, []row{{"4", "4", 0}, {"3", "3", 0}, {"2", "2", 0}}, logRows(t, b, r(func(r *Request) {
		r.StartRevision = &RevisionInfo{ID: "2", Revno: 2}
		r.EndRevision = &RevisionInfo{ID: "4", Revno: 4}
	})))
	assertRows(t, []row{{"4", "4", 0}, {"3", "3", 0}}, logRows(t, b, r(func(r *Request) {
		r.StartRevision = &RevisionInfo{ID: "2", Revno: 2}
		r.EndRevision = &RevisionInfo{ID: "4", Revno: 4}
		r.ExcludeCommonAncestry = true
	})))
	assertRows(t, []row{{"2", "2", 0}, {"3", "3", 0}, {"4", "4", 0}}, logRows(t, b, r(func(r *Request) {
		r.StartRevision = &RevisionInfo{ID: "2", Revno: 2}
		r.EndRevision = &RevisionInfo{ID: "4", Revno: 4}
		r.Direction = branch.Forward
	})))
	assertRows(t, []row{{"5", "5", 0}, {"4", "4", 0}}, logRows(t, b, r(func(r *Request) {
		r.Limit = 2
	})))
	assertRows(t, []row{{"3", "3", 0}}, logRows(t, b, r(func(r *Request) {
		r.StartRevision = &RevisionInfo{ID: "3", Revno: 3}
		r.EndRevision = r.StartRevision
	})))
}

func TestRevisions_RangeErrors(t *testing.T) {
	var rangeErr *RangeError
	b := branchOf(oneMerge(), "2")
	tip := &RevisionInfo{ID: "2", Revno: 2}
	_, err := runLog(t, b, request(func(r *Request) {
		r.StartRevision, r.EndRevision = tip, tip
		r.ExcludeCommonAncestry = true
	}))
	require.True(t, errors.As(err, &rangeErr))
	assert.Equal(t, RangeIdenticalBounds, rangeErr.Reason)

	_, err = runLog(t, branchOf(linear(), "5"), request(func(r *Request) {
		r.StartRevision = &RevisionInfo{ID: "4", Revno: 4}
		r.EndRevision = &RevisionInfo{ID: "2", Revno: 2}
	}))
	require.True(t, errors.As(err, &rangeErr))
	assert.Equal(t, RangeStartAfterEnd, rangeErr.Reason)

	// B is not in the history of F.
	_, err = runLog(t, branchOf(nested(), "G"), request(func(r *Request) {
		r.Levels = 1
		r.StartRevision = &RevisionInfo{ID: "B", Revno: 2}
		r.EndRevision = &RevisionInfo{ID: "F", Revno: branch.RevnoUnknown}
	}))
	require.True(t, errors.As(err, &rangeErr))
	assert.Equal(t, RangeStartNotAncestor, rangeErr.Reason)
}

func TestRevisions_InvalidRequest(t *testing.T) {
	b := branchOf(linear(), "5")
	for name, mod := range map[string]func(r *Request){
		"direction": func(r *Request) { r.Direction = "sideways" },
		"delta":     func(r *Request) { r.DeltaType = "some" },
		"diff":      func(r *Request) { r.DiffType = "some" },
		"pattern":   func(r *Request) { r.Match = map[string][]string{MatchMessage: {"("}} },
		"signature": func(r *Request) { r.Signature = true },
	} {
		_, err := NewGenerator(b, request(mod), nil)
		assert.Error(t, err, name)
	}
}

func TestRevisions_NestedRanges(t *testing.T) {
	b := branchOf(nested(), "G")
	assertRows(t, []row{
		{"G", "3", 0},
		{"F", "1.1.3", 1},
		{"E", "1.2.1", 2},
		{"D", "1.1.2", 1},
		{"C", "1.1.1", 1},
	}, logRows(t, b, request(func(r *Request) {
		r.Levels = 0
		r.StartRevision = &RevisionInfo{ID: "C", Revno: branch.RevnoUnknown}
		r.EndRevision = &RevisionInfo{ID: "G", Revno: 3}
	})))

	// Starting inside a merged line rebases depths to that line.
	assertRows(t, []row{
		{"F", "1.1.3", 0},
		{"E", "1.2.1", 1},
		{"D", "1.1.2", 0},
		{"C", "1.1.1", 0},
		{"A", "1", 0},
	}, logRows(t, b, request(func(r *Request) {
		r.Levels = 0
		r.EndRevision = &RevisionInfo{ID: "F", Revno: branch.RevnoUnknown}
	})))

	// Forward depths are only rebased when both ends are merged, and A is
	// on the mainline.
	assertRows(t, []row{
		{"A", "1", 0},
		{"C", "1.1.1", 1},
		{"D", "1.1.2", 1},
		{"F", "1.1.3", 1},
		{"E", "1.2.1", 2},
	}, logRows(t, b, request(func(r *Request) {
		r.Levels = 0
		r.Direction = branch.Forward
		r.EndRevision = &RevisionInfo{ID: "F", Revno: branch.RevnoUnknown}
	})))

	// E is merged, so the mainline walk does not reach it and the merge
	// graph is used instead.
	assertRows(t, []row{{"G", "3", 0}}, logRows(t, b, request(func(r *Request) {
		r.Levels = 1
		r.StartRevision = &RevisionInfo{ID: "E", Revno: branch.RevnoUnknown}
		r.EndRevision = &RevisionInfo{ID: "G", Revno: 3}
	})))

	assertRows(t, []row{
		{"G", "3", 0},
		{"F", "1.1.3", 1},
		{"E", "1.2.1", 2},
	}, logRows(t, b, request(func(r *Request) {
		r.Levels = 0
		r.Limit = 3
	})))

	assertRows(t, []row{
		{"G", "3", 0},
		{"F", "1.1.3", 1},
		{"D", "1.1.2", 1},
		{"C", "1.1.1", 1},
		{"B", "2", 0},
		{"A", "1", 0},
	}, logRows(t, b, request(func(r *Request) {
		r.Levels = 2
	})))
}

func TestRevisions_OmitMerges(t *testing.T) {
	assertRows(t, []row{
		{"E", "1.2.1", 2},
		{"D", "1.1.2", 1},
		{"C", "1.1.1", 1},
		{"B", "2", 0},
		{"A", "1", 0},
	}, logRows(t, branchOf(nested(), "G"), request(func(r *Request) {
		r.Levels = 0
		r.OmitMerges = true
	})))
}

func TestRevisions_Ghost(t *testing.T) {
	b := branchOf(revision.ParentMap{"B": {"ghost"}, "C": {"B"}}, "C")
	revs, err := runLog(t, b, request(nil))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrGhostRevisionUnusableHere))
	require.Len(t, revs, 2)
	assert.Equal(t, revision.ID("C"), revs[0].Rev.ID)
	assert.Equal(t, revision.ID("B"), revs[1].Rev.ID)
}

func TestRevisions_Match(t *testing.T) {
	s := memstore.FromParentMap(nested())
	bugged, err := revstore.GetRevision(context.Background(), s, "C")
	require.NoError(t, err)
	bugged.Properties = map[string]string{
		"bugs":    "https://bugs.example.com/42 fixed",
		"authors": "Ada <ada@example.com>",
	}
	s.AddRevision(bugged)
	b := newBranch(s, "G", nil)

	match := func(m map[string][]string) []row {
		return logRows(t, b, request(func(r *Request) {
			r.Levels = 0
			r.Match = m
		}))
	}
	assertRows(t, []row{{"D", "1.1.2", 1}, {"B", "2", 0}}, match(map[string][]string{MatchMessage: {"FOR (b|d)$"}}))
	assertRows(t, []row{{"C", "1.1.1", 1}}, match(map[string][]string{MatchBugs: {"bugs.example.com/42"}}))
	assertRows(t, []row{{"C", "1.1.1", 1}}, match(map[string][]string{MatchAuthor: {"ada"}}))
	assertRows(t, []row{{"C", "1.1.1", 1}}, match(map[string][]string{MatchAny: {"example.com/42"}}))
	assert.Len(t, match(map[string][]string{MatchCommitter: {"test committer"}}), 7)
	// Every field must match.
	assert.Empty(t, match(map[string][]string{MatchMessage: {"for C"}, MatchCommitter: {"nobody"}}))
	// A revision without bugs fails a bugs group.
	assert.Empty(t, match(map[string][]string{MatchMessage: {"for B"}, MatchBugs: {"."}}))
	// Any pattern within a field may match.
	assertRows(t, []row{{"G", "3", 0}, {"A", "1", 0}}, match(map[string][]string{MatchMessage: {"for G", "for A"}}))
}

func TestRevisions_TagsDiffsAndSignatures(t *testing.T) {
	s := memstore.FromParentMap(linear())
	s.SetDiff("2", []byte("--- a\n+++ b\n"))
	b := newBranch(s, "2", map[string]revision.ID{"v1": "2", "old": "1"})

	revs, err := runLog(t, b, request(nil))
	require.NoError(t, err)
	require.Len(t, revs, 2)
	assert.Equal(t, []string{"v1"}, revs[0].Tags)
	assert.Equal(t, []string{"old"}, revs[1].Tags)
	assert.Nil(t, revs[0].Diff)

	revs, err = runLog(t, b, request(func(r *Request) {
		r.GenerateTags = false
		r.DiffType = DiffFull
	}))
	require.NoError(t, err)
	assert.Nil(t, revs[0].Tags)
	assert.Equal(t, "--- a\n+++ b\n", string(revs[0].Diff))

	g, err := NewGenerator(b, request(func(r *Request) { r.Signature = true }), fakeValidator{})
	require.NoError(t, err)
	var sigs []string
	for lr, err := range g.Revisions(context.Background()) {
		require.NoError(t, err)
		sigs = append(sigs, lr.Signature)
	}
	assert.Equal(t, []string{"valid signature from 2", "valid signature from 1"}, sigs)
}

type fakeValidator struct{}

func (fakeValidator) SignatureValidity(_ context.Context, id revision.ID) (string, error) {
	return fmt.Sprintf("valid signature from %s", id), nil
}

func file(path string) revstore.Change {
	return revstore.Change{OldPath: path, NewPath: path, Kind: revstore.KindFile}
}

func TestRevisions_SpecificFilesFollowRenames(t *testing.T) {
	s := memstore.FromParentMap(linear())
	s.SetDelta("1", &revstore.TreeDelta{Added: []revstore.Change{
		{NewPath: "old", Kind: revstore.KindFile},
		{NewPath: "other", Kind: revstore.KindFile},
	}})
	s.SetDelta("2", &revstore.TreeDelta{Renamed: []revstore.Change{{OldPath: "old", NewPath: "new", Kind: revstore.KindFile}}})
	s.SetDelta("3", &revstore.TreeDelta{Modified: []revstore.Change{file("other")}})
	s.SetDelta("4", &revstore.TreeDelta{Modified: []revstore.Change{file("new")}})
	b := newBranch(s, "5", nil)

	revs, err := runLog(t, b, request(func(r *Request) {
		r.SpecificFiles = []string{"new"}
	}))
	require.NoError(t, err)
	var ids []revision.ID
	for _, lr := range revs {
		ids = append(ids, lr.Rev.ID)
		assert.Nil(t, lr.Delta)
	}
	assert.Equal(t, []revision.ID{"4", "2", "1"}, ids)

	revs, err = runLog(t, b, request(func(r *Request) {
		r.SpecificFiles = []string{"new"}
		r.DeltaType = DeltaFull
	}))
	require.NoError(t, err)
	require.Len(t, revs, 3)
	assert.Len(t, revs[2].Delta.Added, 2)

	revs, err = runLog(t, b, request(func(r *Request) {
		r.SpecificFiles = []string{"new"}
		r.DeltaType = DeltaPartial
	}))
	require.NoError(t, err)
	require.Len(t, revs, 3)
	assert.Equal(t, []revstore.Change{{NewPath: "old", Kind: revstore.KindFile}}, revs[2].Delta.Added)
}

func TestRevisions_SpecificFilesStopAtAdd(t *testing.T) {
	s := memstore.FromParentMap(linear())
	s.SetDelta("1", &revstore.TreeDelta{Added: []revstore.Change{{NewPath: "a", Kind: revstore.KindFile}}})
	s.SetDelta("2", &revstore.TreeDelta{Added: []revstore.Change{{NewPath: "b", Kind: revstore.KindFile}}})
	s.SetDelta("3", &revstore.TreeDelta{Modified: []revstore.Change{file("a")}})
	s.SetDelta("4", &revstore.TreeDelta{Modified: []revstore.Change{file("b")}})
	b := newBranch(s, "4", nil)

	rows := logRows(t, b, request(func(r *Request) { r.SpecificFiles = []string{"b"} }))
	assertRows(t, []row{{"4", "4", 0}, {"2", "2", 0}}, rows)

	rows = logRows(t, b, request(func(r *Request) {
		r.SpecificFiles = []string{"a"}
		r.Direction = branch.Forward
	}))
	assertRows(t, []row{{"1", "1", 0}, {"3", "3", 0}}, rows)
}

func TestRevisions_FullDeltas(t *testing.T) {
	s := memstore.FromParentMap(linear())
	s.SetDelta("2", &revstore.TreeDelta{Modified: []revstore.Change{file("a")}})
	revs, err := runLog(t, newBranch(s, "2", nil), request(func(r *Request) { r.DeltaType = DeltaFull }))
	require.NoError(t, err)
	require.Len(t, revs, 2)
	assert.True(t, revs[0].Delta.HasChanged())
	assert.False(t, revs[1].Delta.HasChanged())
}

func TestBatchFilter(t *testing.T) {
	views := make([]ViewRevision, 100)
	for i := range views {
		views[i] = v(revision.ID(fmt.Sprint(i)), "", 0)
	}
	var sizes []int
	for batch, err := range batchFilter(sliceSeq(views), 20) {
		require.NoError(t, err)
		sizes = append(sizes, len(batch))
	}
	assert.Equal(t, []int{9, 13, 19, 20, 20, 19}, sizes)
}

func TestLogger_ShowNarrowsRequest(t *testing.T) {
	b := branchOf(nested(), "G")
	rqst := request(func(r *Request) {
		r.DeltaType = DeltaFull
		r.DiffType = DiffFull
		r.Signature = true
	})
	var buf bytes.Buffer
	lf, err := NewFormatter("line", &buf, FormatterOptions{Levels: LevelsUnset, ShowAdvice: true})
	require.NoError(t, err)
	// No validator: the line formatter cannot show signatures, so none is
	// needed.
	shown, err := NewLogger(b, rqst, nil).Show(context.Background(), lf)
	require.NoError(t, err)
	assert.Equal(t, 3, shown)
	assert.Equal(t, "3: Test Committer 2023-11-14 [merge] message for G\n"+
		"2: Test Committer 2023-11-14 message for B\n"+
		"1: Test Committer 2023-11-14 message for A\n"+
		"Use --include-merged or -n0 to see merged revisions.\n", buf.String())
}

func TestLogger_ShowGhost(t *testing.T) {
	b := branchOf(revision.ParentMap{"B": {"ghost"}, "C": {"B"}}, "C")
	var buf bytes.Buffer
	lf, err := NewFormatter("line", &buf, FormatterOptions{Levels: LevelsUnset})
	require.NoError(t, err)
	shown, err := NewLogger(b, NewRequest(), nil).Show(context.Background(), lf)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrGhostRevisionUnusableHere))
	assert.Equal(t, 2, shown)
}

// countingStore counts the ids asked of the wrapped store.
type countingStore struct {
	*memstore.Store
	revisions int
	parents   int
}

func (s *countingStore) GetRevisions(ctx context.Context, ids []revision.ID) ([]*revision.Revision, error) {
	s.revisions += len(ids)
	return s.Store.GetRevisions(ctx, ids)
}

func (s *countingStore) GetParentMap(ctx context.Context, ids []revision.ID) (revision.ParentMap, error) {
	s.parents += len(ids)
	return s.Store.GetParentMap(ctx, ids)
}

// longLinear is a linear history of n revisions with a known tip revno.
func longLinear(n int) (*countingStore, *branch.Branch) {
	id := func(i int) revision.ID { return revision.ID(fmt.Sprintf("r%05d", i)) }
	pm := revision.ParentMap{id(1): {}}
	for i := 2; i <= n; i++ {
		pm[id(i)] = []revision.ID{id(i - 1)}
	}
	s := &countingStore{Store: memstore.FromParentMap(pm)}
	b := branch.New(s, graph.New(s), branch.Options{
		Name:            "trunk",
		Tip:             id(n),
		Revno:           n,
		CalculateRevnos: true,
	})
	return s, b
}

func TestRevisions_MainlineLimitReadsOneBatch(t *testing.T) {
	s, b := longLinear(5000)
	rows := logRows(t, b, request(func(r *Request) {
		r.Levels = 1
		r.Limit = 5
	}))
	require.Len(t, rows, 5)
	assert.Equal(t, row{"r05000", "5000", 0}, rows[0])
	assert.Equal(t, row{"r04996", "4996", 0}, rows[4])
	assert.LessOrEqual(t, s.revisions, firstBatchSize)
	assert.Less(t, s.parents, 100)
}

func TestRevisions_AllLevelsLimitWalksMainlineForMerges(t *testing.T) {
	// Finding the first merge below the tip needs the parents of every
	// mainline revision when there is none; the revisions themselves are
	// still read one batch at a time.
	s, b := longLinear(5000)
	rows := logRows(t, b, request(func(r *Request) {
		r.Levels = 0
		r.Limit = 5
	}))
	require.Len(t, rows, 5)
	assert.Equal(t, row{"r04996", "4996", 0}, rows[4])
	assert.LessOrEqual(t, s.revisions, firstBatchSize)
	assert.GreaterOrEqual(t, s.parents, 5000)
}
