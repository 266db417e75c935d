package sqlstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"go.skia.org/revgraph/go/revision"
	"go.skia.org/revgraph/go/revstore"
	"go.skia.org/revgraph/go/revstore/shared_tests"
)

type builder struct {
	s *Store
}

func (b *builder) Commit(t *testing.T, ctx context.Context, name, message string, parents ...string) revision.ID {
	rev := &revision.Revision{
		ID:        b.ID(name),
		Committer: "Test Committer <test@example.com>",
		Message:   message,
		Timestamp: 1700000000.5,
		Timezone:  3600,
	}
	for _, p := range parents {
		rev.ParentIDs = append(rev.ParentIDs, b.ID(p))
	}
	require.NoError(t, b.s.AddRevision(ctx, rev))
	return rev.ID
}

func (b *builder) ID(name string) revision.ID {
	return revision.ID("rev-" + name)
}

func setup(t *testing.T) (context.Context, *Store, *builder) {
	ctx := context.Background()
	s, err := Open(ctx, filepath.Join(t.TempDir(), "revisions.db"), 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	return ctx, s, &builder{s: s}
}

func TestAllRevisionIDs(t *testing.T) {
	ctx, s, b := setup(t)
	shared_tests.TestAllRevisionIDs(t, ctx, s, b)
}

func TestGetRevisions(t *testing.T) {
	ctx, s, b := setup(t)
	shared_tests.TestGetRevisions(t, ctx, s, b)
}

func TestHasRevision(t *testing.T) {
	ctx, s, b := setup(t)
	shared_tests.TestHasRevision(t, ctx, s, b)
}

func TestGetParentMap(t *testing.T) {
	ctx, s, b := setup(t)
	shared_tests.TestGetParentMap(t, ctx, s, b)
}

func TestIterRevisions(t *testing.T) {
	ctx, s, b := setup(t)
	shared_tests.TestIterRevisions(t, ctx, s, b)
}

func TestSignatures(t *testing.T) {
	ctx, s, b := setup(t)
	shared_tests.TestSignatures(t, ctx, s, b)
}

func TestAddRevision_RoundTripsAllFields(t *testing.T) {
	ctx, s, _ := setup(t)
	rev := &revision.Revision{
		ID:            "r1",
		ParentIDs:     []revision.ID{"p1", "p2"},
		Committer:     "Jo <jo@example.com>",
		Message:       "line one\nline two",
		Timestamp:     1234.25,
		Timezone:      -18000,
		Properties:    map[string]string{"branch-nick": "trunk", "bugs": "http://b/1 fixed"},
		InventorySHA1: "abc",
	}
	require.NoError(t, s.AddRevision(ctx, rev))
	got, err := revstore.GetRevision(ctx, s, "r1")
	require.NoError(t, err)
	require.Equal(t, rev, got)

	require.Error(t, s.AddRevision(ctx, rev), "duplicate ids are rejected")
}

func TestSetIndexParents(t *testing.T) {
	ctx, s, b := setup(t)
	b.Commit(t, ctx, "A", "root")
	b.Commit(t, ctx, "B", "child", "A")
	require.NoError(t, s.SetIndexParents(ctx, b.ID("B"), []revision.ID{"x", "y"}))

	pm, err := s.GetParentMap(ctx, []revision.ID{b.ID("B")})
	require.NoError(t, err)
	require.Equal(t, []revision.ID{"x", "y"}, pm[b.ID("B")])
	rev, err := revstore.GetRevision(ctx, s, b.ID("B"))
	require.NoError(t, err)
	require.Equal(t, []revision.ID{b.ID("A")}, rev.ParentIDs)
}

func TestVersionedFiles(t *testing.T) {
	ctx, s, _ := setup(t)
	inv := revision.Inventory{"f1": "r1", "f2": "r2"}
	require.NoError(t, s.AddInventory(ctx, "r2", inv))
	k1 := revision.TextKey{FileID: "f1", RevisionID: "r1"}
	k2 := revision.TextKey{FileID: "f2", RevisionID: "r2"}
	k3 := revision.TextKey{FileID: "f1", RevisionID: "r3"}
	require.NoError(t, s.AddText(ctx, k1))
	require.NoError(t, s.AddText(ctx, k2))
	require.NoError(t, s.AddText(ctx, k3, k1))

	sha1s, err := s.InventorySHA1s(ctx, []revision.ID{"r1", "r2"})
	require.NoError(t, err)
	require.Equal(t, map[revision.ID]string{"r2": inv.SHA1()}, sha1s)

	got, err := s.GetInventory(ctx, "r2")
	require.NoError(t, err)
	require.Equal(t, inv, got)
	got, err = s.GetInventory(ctx, "r1")
	require.NoError(t, err)
	require.Nil(t, got)

	parents, err := s.TextParents(ctx, []revision.TextKey{k1, k3, {FileID: "f9", RevisionID: "r9"}})
	require.NoError(t, err)
	require.Equal(t, map[revision.TextKey][]revision.TextKey{
		k1: {},
		k3: {k1},
	}, parents)

	keys, err := s.AllTextKeys(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []revision.TextKey{k1, k2, k3}, keys)
}

func TestRevisionDeltas(t *testing.T) {
	ctx, s, b := setup(t)
	b.Commit(t, ctx, "A", "root")
	b.Commit(t, ctx, "B", "child", "A")
	d := &revstore.TreeDelta{
		Added:   []revstore.Change{{NewPath: "src/a.go", Kind: revstore.KindFile}},
		Renamed: []revstore.Change{{OldPath: "doc", NewPath: "docs", Kind: revstore.KindDirectory}},
	}
	require.NoError(t, s.SetDelta(ctx, b.ID("B"), d))

	revs, err := s.GetRevisions(ctx, []revision.ID{b.ID("A"), b.ID("B")})
	require.NoError(t, err)
	deltas, err := s.RevisionDeltas(ctx, revs, nil)
	require.NoError(t, err)
	require.False(t, deltas[0].HasChanged())
	require.Equal(t, d, deltas[1])

	deltas, err = s.RevisionDeltas(ctx, revs, []string{"docs"})
	require.NoError(t, err)
	require.Empty(t, deltas[1].Added)
	require.Len(t, deltas[1].Renamed, 1)
}
