// Package shared_tests holds tests that every revstore.Store implementation
// must pass. Each implementation calls these from its own _test.go file.
package shared_tests

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"go.skia.org/revgraph/go/revision"
	"go.skia.org/revgraph/go/revstore"
)

// Builder adds revisions to a store under test.
type Builder interface {
	// Commit stores a revision called name whose parents are the named
	// revisions. Parents need not have been committed; those become ghosts.
	Commit(t *testing.T, ctx context.Context, name, message string, parents ...string) revision.ID

	// ID returns the revision id of name, whether or not it was committed.
	ID(name string) revision.ID
}

// buildHistory stores the standard history:
//
//	A <- B <- D <- E
//	 \       /    /
//	  <- C <-   ghost
func buildHistory(t *testing.T, ctx context.Context, b Builder) {
	b.Commit(t, ctx, "A", "root")
	b.Commit(t, ctx, "B", "left", "A")
	b.Commit(t, ctx, "C", "right", "A")
	b.Commit(t, ctx, "D", "merge C", "B", "C")
	b.Commit(t, ctx, "E", "merge ghost", "D", "ghost")
}

func ids(b Builder, names ...string) []revision.ID {
	ret := make([]revision.ID, 0, len(names))
	for _, n := range names {
		ret = append(ret, b.ID(n))
	}
	return ret
}

// TestAllRevisionIDs checks that every committed revision is listed and
// ghosts are not.
func TestAllRevisionIDs(t *testing.T, ctx context.Context, s revstore.Store, b Builder) {
	buildHistory(t, ctx, b)
	all, err := s.AllRevisionIDs(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, ids(b, "A", "B", "C", "D", "E"), all)
}

// TestGetRevisions checks ordering, content and nil entries for ghosts.
func TestGetRevisions(t *testing.T, ctx context.Context, s revstore.Store, b Builder) {
	buildHistory(t, ctx, b)
	revs, err := s.GetRevisions(ctx, ids(b, "D", "ghost", "A"))
	require.NoError(t, err)
	require.Len(t, revs, 3)
	require.NotNil(t, revs[0])
	require.Nil(t, revs[1])
	require.NotNil(t, revs[2])

	require.Equal(t, b.ID("D"), revs[0].ID)
	require.Equal(t, ids(b, "B", "C"), revs[0].ParentIDs)
	require.Equal(t, "merge C", revs[0].Message)
	require.NotEmpty(t, revs[0].Committer)

	require.Equal(t, b.ID("A"), revs[2].ID)
	require.Empty(t, revs[2].ParentIDs)
	require.Equal(t, "root", revs[2].Message)

	r, err := revstore.GetRevision(ctx, s, b.ID("E"))
	require.NoError(t, err)
	require.Equal(t, ids(b, "D", "ghost"), r.ParentIDs)
}

// TestHasRevision checks presence for stored, ghost and null revisions.
func TestHasRevision(t *testing.T, ctx context.Context, s revstore.Store, b Builder) {
	buildHistory(t, ctx, b)
	ok, err := s.HasRevision(ctx, b.ID("C"))
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = s.HasRevision(ctx, b.ID("ghost"))
	require.NoError(t, err)
	require.False(t, ok)
	ok, err = s.HasRevision(ctx, revision.NullRevision)
	require.NoError(t, err)
	require.False(t, ok)
}

// TestGetParentMap checks that roots map to an empty list and missing ids
// are left out without an error.
func TestGetParentMap(t *testing.T, ctx context.Context, s revstore.Store, b Builder) {
	buildHistory(t, ctx, b)
	pm, err := s.GetParentMap(ctx, ids(b, "A", "D", "E", "ghost", "nonexistent"))
	require.NoError(t, err)
	require.Len(t, pm, 3)
	require.Empty(t, pm[b.ID("A")])
	require.Equal(t, ids(b, "B", "C"), pm[b.ID("D")])
	require.Equal(t, ids(b, "D", "ghost"), pm[b.ID("E")])
	_, ok := pm[b.ID("ghost")]
	require.False(t, ok)
}

// TestIterRevisions checks that the lazy sequence keeps the requested order
// and marks ghosts with a nil revision.
func TestIterRevisions(t *testing.T, ctx context.Context, s revstore.Store, b Builder) {
	buildHistory(t, ctx, b)
	want := ids(b, "E", "ghost", "C", "A")
	var got []revision.ID
	var ghosts []revision.ID
	for e, err := range revstore.IterRevisions(ctx, s, want) {
		require.NoError(t, err)
		got = append(got, e.ID)
		if e.Rev == nil {
			ghosts = append(ghosts, e.ID)
		} else {
			require.Equal(t, e.ID, e.Rev.ID)
		}
	}
	require.Equal(t, want, got)
	require.Equal(t, ids(b, "ghost"), ghosts)

	// Stopping early must not panic or keep reading.
	n := 0
	for range revstore.IterRevisions(ctx, s, want) {
		n++
		break
	}
	require.Equal(t, 1, n)
}

// TestSignatures checks write group semantics on stores that support
// signatures: nothing is visible before commit, and aborting drops
// everything.
func TestSignatures(t *testing.T, ctx context.Context, s revstore.SignatureStore, b Builder) {
	buildHistory(t, ctx, b)
	sig := &revstore.Signature{Payload: []byte("payload"), Armored: []byte("armored")}

	wg, err := s.StartWriteGroup(ctx)
	require.NoError(t, err)
	require.NoError(t, wg.AddSignature(ctx, b.ID("A"), sig))
	require.NoError(t, wg.Abort(ctx))
	got, err := s.GetSignature(ctx, b.ID("A"))
	require.NoError(t, err)
	require.Nil(t, got)

	wg, err = s.StartWriteGroup(ctx)
	require.NoError(t, err)
	require.NoError(t, wg.AddSignature(ctx, b.ID("A"), sig))
	require.NoError(t, wg.AddSignature(ctx, b.ID("B"), sig))
	require.NoError(t, wg.Commit(ctx))

	got, err = s.GetSignature(ctx, b.ID("A"))
	require.NoError(t, err)
	require.Equal(t, sig, got)
	got, err = s.GetSignature(ctx, b.ID("C"))
	require.NoError(t, err)
	require.Nil(t, got)
}
