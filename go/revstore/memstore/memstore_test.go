package memstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"go.skia.org/revgraph/go/revision"
	"go.skia.org/revgraph/go/revstore"
	"go.skia.org/revgraph/go/revstore/shared_tests"
)

type builder struct {
	s *Store
}

func (b *builder) Commit(_ *testing.T, _ context.Context, name, message string, parents ...string) revision.ID {
	rev := &revision.Revision{
		ID:        b.ID(name),
		Committer: "Test Committer <test@example.com>",
		Message:   message,
	}
	for _, p := range parents {
		rev.ParentIDs = append(rev.ParentIDs, b.ID(p))
	}
	b.s.AddRevision(rev)
	return rev.ID
}

func (b *builder) ID(name string) revision.ID {
	return revision.ID(name)
}

func setup(t *testing.T) (context.Context, *Store, *builder) {
	s := New()
	return context.Background(), s, &builder{s: s}
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

func TestFromParentMap(t *testing.T) {
	s := FromParentMap(revision.ParentMap{
		"a": nil,
		"b": {"a", "ghost"},
	})
	revs, err := s.GetRevisions(context.Background(), []revision.ID{"a", "b", "ghost"})
	require.NoError(t, err)
	require.Equal(t, "message for a", revs[0].Message)
	require.Equal(t, []revision.ID{"a", "ghost"}, revs[1].ParentIDs)
	require.Nil(t, revs[2])
	require.Less(t, revs[0].Timestamp, revs[1].Timestamp)
}

func TestSetIndexParents_LeavesRevisionAlone(t *testing.T) {
	ctx := context.Background()
	s := FromParentMap(revision.ParentMap{"a": nil, "b": {"a"}})
	s.SetIndexParents("b", []revision.ID{"x"})
	pm, err := s.GetParentMap(ctx, []revision.ID{"b"})
	require.NoError(t, err)
	require.Equal(t, []revision.ID{"x"}, pm["b"])
	rev, err := revstore.GetRevision(ctx, s, "b")
	require.NoError(t, err)
	require.Equal(t, []revision.ID{"a"}, rev.ParentIDs)
}

func TestRevisionDeltas_FiltersPaths(t *testing.T) {
	ctx := context.Background()
	s := FromParentMap(revision.ParentMap{"a": nil, "b": {"a"}})
	s.SetDelta("b", &revstore.TreeDelta{
		Added:    []revstore.Change{{NewPath: "src/foo.go", Kind: revstore.KindFile}},
		Modified: []revstore.Change{{OldPath: "README", NewPath: "README", Kind: revstore.KindFile}},
	})
	revs, err := s.GetRevisions(ctx, []revision.ID{"a", "b"})
	require.NoError(t, err)

	deltas, err := s.RevisionDeltas(ctx, revs, nil)
	require.NoError(t, err)
	require.False(t, deltas[0].HasChanged())
	require.True(t, deltas[1].HasChanged())
	require.Len(t, deltas[1].Modified, 1)

	deltas, err = s.RevisionDeltas(ctx, revs, []string{"src"})
	require.NoError(t, err)
	require.Len(t, deltas[1].Added, 1)
	require.Empty(t, deltas[1].Modified)
}

func TestVersionedFiles(t *testing.T) {
	ctx := context.Background()
	s := FromParentMap(revision.ParentMap{"a": nil})
	inv := revision.Inventory{"file-1": "a"}
	s.AddInventory("a", inv)
	key := revision.TextKey{FileID: "file-1", RevisionID: "a"}
	s.AddText(key)

	sha1s, err := s.InventorySHA1s(ctx, []revision.ID{"a", "b"})
	require.NoError(t, err)
	require.Equal(t, map[revision.ID]string{"a": inv.SHA1()}, sha1s)

	got, err := s.GetInventory(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, inv, got)

	parents, err := s.TextParents(ctx, []revision.TextKey{key, {FileID: "file-1", RevisionID: "b"}})
	require.NoError(t, err)
	require.Len(t, parents, 1)
	require.Empty(t, parents[key])

	keys, err := s.AllTextKeys(ctx)
	require.NoError(t, err)
	require.Equal(t, []revision.TextKey{key}, keys)
}
