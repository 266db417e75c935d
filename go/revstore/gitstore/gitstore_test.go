package gitstore

import (
	"context"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	gitcache "github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/filesystem"
	"github.com/stretchr/testify/require"

	"go.skia.org/revgraph/go/revision"
	"go.skia.org/revgraph/go/revstore"
	"go.skia.org/revgraph/go/revstore/shared_tests"
)

// builder writes commits straight into the object store so that parents
// which were never written can be referenced.
type builder struct {
	repo    *git.Repository
	ids     map[string]revision.ID
	counter int
}

func (b *builder) blob(t *testing.T, content string) plumbing.Hash {
	obj := b.repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	w, err := obj.Writer()
	require.NoError(t, err)
	_, err = w.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	h, err := b.repo.Storer.SetEncodedObject(obj)
	require.NoError(t, err)
	return h
}

// commitFiles writes a commit whose tree holds files, which maps flat file
// names to contents.
func (b *builder) commitFiles(t *testing.T, message string, files map[string]string, parents ...revision.ID) revision.ID {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	tree := object.Tree{}
	for _, name := range names {
		tree.Entries = append(tree.Entries, object.TreeEntry{Name: name, Mode: filemode.Regular, Hash: b.blob(t, files[name])})
	}
	treeObj := b.repo.Storer.NewEncodedObject()
	require.NoError(t, tree.Encode(treeObj))
	treeHash, err := b.repo.Storer.SetEncodedObject(treeObj)
	require.NoError(t, err)

	b.counter++
	when := time.Unix(1700000000+int64(b.counter)*60, 0).In(time.FixedZone("", 3600))
	c := object.Commit{
		Author:    object.Signature{Name: "Test", Email: "test@example.com", When: when},
		Committer: object.Signature{Name: "Test", Email: "test@example.com", When: when},
		Message:   message,
		TreeHash:  treeHash,
	}
	for _, p := range parents {
		c.ParentHashes = append(c.ParentHashes, plumbing.NewHash(string(p)))
	}
	commitObj := b.repo.Storer.NewEncodedObject()
	require.NoError(t, c.Encode(commitObj))
	h, err := b.repo.Storer.SetEncodedObject(commitObj)
	require.NoError(t, err)
	return revision.ID(h.String())
}

func (b *builder) Commit(t *testing.T, _ context.Context, name, message string, parents ...string) revision.ID {
	var parentIDs []revision.ID
	for _, p := range parents {
		parentIDs = append(parentIDs, b.ID(p))
	}
	id := b.commitFiles(t, message, map[string]string{"README": message}, parentIDs...)
	b.ids[name] = id
	return id
}

func (b *builder) ID(name string) revision.ID {
	if id, ok := b.ids[name]; ok {
		return id
	}
	return revision.ID(plumbing.ComputeHash(plumbing.CommitObject, []byte("ghost "+name)).String())
}

func setup(t *testing.T) (context.Context, *Store, *builder) {
	fs := memfs.New()
	_, err := git.Init(filesystem.NewStorage(fs, gitcache.NewObjectLRUDefault()), nil)
	require.NoError(t, err)
	s, err := OpenFilesystem(fs)
	require.NoError(t, err)
	return context.Background(), s, &builder{repo: s.repo, ids: map[string]revision.ID{}}
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

func TestGetRevisions_Metadata(t *testing.T) {
	ctx, s, b := setup(t)
	id := b.Commit(t, ctx, "A", "root")
	rev, err := revstore.GetRevision(ctx, s, id)
	require.NoError(t, err)
	require.Equal(t, "Test <test@example.com>", rev.Committer)
	require.Equal(t, 3600, rev.Timezone)
	require.Equal(t, float64(1700000060), rev.Timestamp)
	require.Len(t, rev.InventorySHA1, 40)
	require.Empty(t, rev.Properties)
}

func TestRevisionDeltas(t *testing.T) {
	ctx, s, b := setup(t)
	a := b.commitFiles(t, "root", map[string]string{"old.txt": "same content\n", "keep.txt": "v1\n"})
	c := b.commitFiles(t, "rename and edit", map[string]string{"new.txt": "same content\n", "keep.txt": "v2\n", "added.txt": "x\n"}, a)

	revs, err := s.GetRevisions(ctx, []revision.ID{a, c})
	require.NoError(t, err)
	deltas, err := s.RevisionDeltas(ctx, revs, nil)
	require.NoError(t, err)

	require.Len(t, deltas[0].Added, 2)
	require.Equal(t, []revstore.Change{{NewPath: "added.txt", Kind: revstore.KindFile}}, deltas[1].Added)
	require.Equal(t, []revstore.Change{{OldPath: "keep.txt", NewPath: "keep.txt", Kind: revstore.KindFile}}, deltas[1].Modified)
	require.Equal(t, []revstore.Change{{OldPath: "old.txt", NewPath: "new.txt", Kind: revstore.KindFile}}, deltas[1].Renamed)
	require.Empty(t, deltas[1].Removed)

	deltas, err = s.RevisionDeltas(ctx, revs[1:], []string{"keep.txt"})
	require.NoError(t, err)
	require.Len(t, deltas[0].Modified, 1)
	require.Empty(t, deltas[0].Added)
	require.Empty(t, deltas[0].Renamed)
}

func TestRevisionDiff(t *testing.T) {
	ctx, s, b := setup(t)
	a := b.commitFiles(t, "root", map[string]string{"f.txt": "one\n"})
	c := b.commitFiles(t, "edit", map[string]string{"f.txt": "two\n"}, a)
	rev, err := revstore.GetRevision(ctx, s, c)
	require.NoError(t, err)
	diff, err := s.RevisionDiff(ctx, rev, nil)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(diff), "-one"))
	require.True(t, strings.Contains(string(diff), "+two"))
}

func TestGetSignature(t *testing.T) {
	ctx, s, b := setup(t)
	id := b.Commit(t, ctx, "A", "unsigned")
	sig, err := s.GetSignature(ctx, id)
	require.NoError(t, err)
	require.Nil(t, sig)

	c, err := s.repo.CommitObject(plumbing.NewHash(string(id)))
	require.NoError(t, err)
	c.PGPSignature = "-----BEGIN PGP SIGNATURE-----\n\nfake\n-----END PGP SIGNATURE-----\n"
	obj := s.repo.Storer.NewEncodedObject()
	require.NoError(t, c.Encode(obj))
	h, err := s.repo.Storer.SetEncodedObject(obj)
	require.NoError(t, err)

	sig, err = s.GetSignature(ctx, revision.ID(h.String()))
	require.NoError(t, err)
	require.NotNil(t, sig)
	require.True(t, strings.HasPrefix(string(sig.Armored), "-----BEGIN PGP SIGNATURE-----"))
	require.Contains(t, string(sig.Armored), "fake")
	require.Contains(t, string(sig.Payload), "unsigned")
	require.NotContains(t, string(sig.Payload), "PGP SIGNATURE")
}

func TestHead(t *testing.T) {
	_, s, b := setup(t)
	id := b.commitFiles(t, "root", map[string]string{"f": "x"})
	require.NoError(t, s.repo.Storer.SetReference(plumbing.NewHashReference(plumbing.Master, plumbing.NewHash(string(id)))))
	got, err := s.Head()
	require.NoError(t, err)
	require.Equal(t, id, got)
}
