// Package gitstore exposes a git repository as a read-only revstore.Store.
//
// Commits are revisions and their hex hashes are revision ids. The tree hash
// plays the role of the inventory sha1. Deltas and diffs are computed
// against the first parent, with rename detection.
package gitstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	gitcache "github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/filesystem"
	"github.com/go-git/go-git/v5/utils/merkletrie"

	"go.skia.org/revgraph/go/revision"
	"go.skia.org/revgraph/go/revstore"
	"go.skia.org/revgraph/go/skerr"
)

// Store wraps a go-git Repository. go-git repositories are not safe for
// concurrent use, so every method holds mtx.
type Store struct {
	mtx  sync.Mutex
	repo *git.Repository
}

// New returns a Store over repo.
func New(repo *git.Repository) *Store {
	return &Store{repo: repo}
}

// Open opens the repository containing path.
func Open(path string) (*Store, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, skerr.Wrapf(err, "opening git repository at %s", path)
	}
	return New(repo), nil
}

// OpenFilesystem opens the bare repository stored in fs.
func OpenFilesystem(fs billy.Filesystem) (*Store, error) {
	repo, err := git.Open(filesystem.NewStorage(fs, gitcache.NewObjectLRUDefault()), nil)
	if err != nil {
		return nil, skerr.Wrapf(err, "opening git repository")
	}
	return New(repo), nil
}

// Head returns the commit HEAD points at.
func (s *Store) Head() (revision.ID, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	ref, err := s.repo.Head()
	if err != nil {
		return "", skerr.Wrapf(err, "resolving HEAD")
	}
	return revision.ID(ref.Hash().String()), nil
}

// commit returns the commit with the given id, or nil if it is not stored or
// id is not a hash.
func (s *Store) commit(id revision.ID) (*object.Commit, error) {
	if !plumbing.IsHash(string(id)) {
		return nil, nil
	}
	c, err := s.repo.CommitObject(plumbing.NewHash(string(id)))
	if errors.Is(err, plumbing.ErrObjectNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, skerr.Wrapf(err, "reading commit %s", id)
	}
	return c, nil
}

func signatureString(sig object.Signature) string {
	return fmt.Sprintf("%s <%s>", sig.Name, sig.Email)
}

func toRevision(c *object.Commit) *revision.Revision {
	_, offset := c.Committer.When.Zone()
	r := &revision.Revision{
		ID:            revision.ID(c.Hash.String()),
		Committer:     signatureString(c.Committer),
		Message:       c.Message,
		Timestamp:     float64(c.Committer.When.UnixNano()) / 1e9,
		Timezone:      offset,
		InventorySHA1: c.TreeHash.String(),
	}
	for _, p := range c.ParentHashes {
		r.ParentIDs = append(r.ParentIDs, revision.ID(p.String()))
	}
	if author := signatureString(c.Author); author != r.Committer {
		r.Properties = map[string]string{"authors": author}
	}
	return r
}

// AllRevisionIDs implements revstore.Store.
func (s *Store) AllRevisionIDs(_ context.Context) ([]revision.ID, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	iter, err := s.repo.CommitObjects()
	if err != nil {
		return nil, skerr.Wrapf(err, "listing commits")
	}
	var ret []revision.ID
	err = iter.ForEach(func(c *object.Commit) error {
		ret = append(ret, revision.ID(c.Hash.String()))
		return nil
	})
	return ret, skerr.Wrapf(err, "listing commits")
}

// GetRevisions implements revstore.Store.
func (s *Store) GetRevisions(_ context.Context, ids []revision.ID) ([]*revision.Revision, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	ret := make([]*revision.Revision, len(ids))
	for i, id := range ids {
		c, err := s.commit(id)
		if err != nil {
			return nil, err
		}
		if c != nil {
			ret[i] = toRevision(c)
		}
	}
	return ret, nil
}

// HasRevision implements revstore.Store.
func (s *Store) HasRevision(_ context.Context, id revision.ID) (bool, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	c, err := s.commit(id)
	return c != nil, err
}

// GetParentMap implements revstore.Store.
func (s *Store) GetParentMap(_ context.Context, ids []revision.ID) (revision.ParentMap, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	ret := make(revision.ParentMap, len(ids))
	for _, id := range ids {
		c, err := s.commit(id)
		if err != nil {
			return nil, err
		}
		if c == nil {
			continue
		}
		parents := make([]revision.ID, 0, len(c.ParentHashes))
		for _, p := range c.ParentHashes {
			parents = append(parents, revision.ID(p.String()))
		}
		ret[id] = parents
	}
	return ret, nil
}

// changes diffs rev against its first parent, keeping only changes inside
// paths. A missing first parent diffs against the empty tree.
func (s *Store) changes(ctx context.Context, rev *revision.Revision, paths []string) (object.Changes, error) {
	c, err := s.commit(rev.ID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, skerr.Fmt("commit %s not found", rev.ID)
	}
	tree, err := c.Tree()
	if err != nil {
		return nil, skerr.Wrapf(err, "reading tree of %s", rev.ID)
	}
	parentTree := &object.Tree{}
	if len(c.ParentHashes) > 0 {
		parent, err := s.commit(revision.ID(c.ParentHashes[0].String()))
		if err != nil {
			return nil, err
		}
		if parent != nil {
			if parentTree, err = parent.Tree(); err != nil {
				return nil, skerr.Wrapf(err, "reading tree of %s", parent.Hash)
			}
		}
	}
	changes, err := object.DiffTreeWithOptions(ctx, parentTree, tree, object.DefaultDiffTreeOptions)
	if err != nil {
		return nil, skerr.Wrapf(err, "diffing %s", rev.ID)
	}
	if len(paths) == 0 {
		return changes, nil
	}
	var ret object.Changes
	for _, ch := range changes {
		if (ch.From.Name != "" && revstore.IsInsideAny(paths, ch.From.Name)) || (ch.To.Name != "" && revstore.IsInsideAny(paths, ch.To.Name)) {
			ret = append(ret, ch)
		}
	}
	return ret, nil
}

func kind(m filemode.FileMode) revstore.Kind {
	switch m {
	case filemode.Dir:
		return revstore.KindDirectory
	case filemode.Symlink:
		return revstore.KindSymlink
	default:
		return revstore.KindFile
	}
}

func toDelta(changes object.Changes) (*revstore.TreeDelta, error) {
	d := &revstore.TreeDelta{}
	for _, ch := range changes {
		action, err := ch.Action()
		if err != nil {
			return nil, skerr.Wrap(err)
		}
		switch action {
		case merkletrie.Insert:
			d.Added = append(d.Added, revstore.Change{NewPath: ch.To.Name, Kind: kind(ch.To.TreeEntry.Mode)})
		case merkletrie.Delete:
			d.Removed = append(d.Removed, revstore.Change{OldPath: ch.From.Name, Kind: kind(ch.From.TreeEntry.Mode)})
		case merkletrie.Modify:
			c := revstore.Change{OldPath: ch.From.Name, NewPath: ch.To.Name, Kind: kind(ch.To.TreeEntry.Mode)}
			if ch.From.Name != ch.To.Name {
				d.Renamed = append(d.Renamed, c)
			} else {
				d.Modified = append(d.Modified, c)
			}
		}
	}
	return d, nil
}

// RevisionDeltas implements revstore.DeltaSource.
func (s *Store) RevisionDeltas(ctx context.Context, revs []*revision.Revision, paths []string) ([]*revstore.TreeDelta, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	ret := make([]*revstore.TreeDelta, len(revs))
	for i, r := range revs {
		changes, err := s.changes(ctx, r, paths)
		if err != nil {
			return nil, err
		}
		if ret[i], err = toDelta(changes); err != nil {
			return nil, skerr.Wrapf(err, "computing delta of %s", r.ID)
		}
	}
	return ret, nil
}

// RevisionDiff implements revstore.DiffSource.
func (s *Store) RevisionDiff(ctx context.Context, rev *revision.Revision, paths []string) ([]byte, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	changes, err := s.changes(ctx, rev, paths)
	if err != nil {
		return nil, err
	}
	patch, err := changes.PatchContext(ctx)
	if err != nil {
		return nil, skerr.Wrapf(err, "generating patch for %s", rev.ID)
	}
	return []byte(patch.String()), nil
}

// GetSignature implements revstore.SignatureSource. The payload is the
// commit encoded without its signature, which is what git signs.
func (s *Store) GetSignature(_ context.Context, id revision.ID) (*revstore.Signature, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	c, err := s.commit(id)
	if err != nil || c == nil || c.PGPSignature == "" {
		return nil, err
	}
	obj := &plumbing.MemoryObject{}
	if err := c.EncodeWithoutSignature(obj); err != nil {
		return nil, skerr.Wrapf(err, "encoding %s", id)
	}
	r, err := obj.Reader()
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	defer func() { _ = r.Close() }()
	payload, err := io.ReadAll(r)
	if err != nil {
		return nil, skerr.Wrapf(err, "reading encoded %s", id)
	}
	return &revstore.Signature{Payload: payload, Armored: []byte(c.PGPSignature)}, nil
}

var (
	_ revstore.Store           = (*Store)(nil)
	_ revstore.DeltaSource     = (*Store)(nil)
	_ revstore.DiffSource      = (*Store)(nil)
	_ revstore.SignatureSource = (*Store)(nil)
)
