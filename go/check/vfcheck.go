package check

import (
	"cmp"
	"context"
	"slices"

	"go.skia.org/revgraph/go/cache"
	"go.skia.org/revgraph/go/graph"
	"go.skia.org/revgraph/go/revision"
	"go.skia.org/revgraph/go/revstore"
	"go.skia.org/revgraph/go/skerr"
)

// DefaultInventoryCacheSize is enough to hold a revision and the parents of
// a typical merge while walking in topological order.
const DefaultInventoryCacheSize = 10

// versionedFileChecker derives the parents every text should have from the
// inventories and compares them with the stored per-file graph.
type versionedFileChecker struct {
	vf          revstore.VersionedFiles
	inventories *cache.MemLRUCache
}

type fileGraphResult struct {
	fileIDs      int
	wrongParents map[revision.TextKey]ParentsMismatch
	// missing are texts an inventory refers to but the store lacks.
	missing      []revision.TextKey
	unreferenced []revision.TextKey
}

func newVersionedFileChecker(vf revstore.VersionedFiles, cacheSize int) *versionedFileChecker {
	return &versionedFileChecker{
		vf:          vf,
		inventories: cache.NewMemLRUCache(cacheSize),
	}
}

// inventory returns the inventory of id, or nil for NullRevision and
// revisions without one.
func (fc *versionedFileChecker) inventory(ctx context.Context, id revision.ID) (revision.Inventory, error) {
	if id == revision.NullRevision {
		return nil, nil
	}
	if v, ok := fc.inventories.Get(string(id)); ok {
		return v.(revision.Inventory), nil
	}
	inv, err := fc.vf.GetInventory(ctx, id)
	if err != nil {
		return nil, skerr.Wrapf(err, "loading inventory of %s", id)
	}
	fc.inventories.Add(string(id), inv)
	return inv, nil
}

// check walks ancestors oldest first. A text is introduced by the revision
// its inventory entry names. Its parents are the texts the revision's
// parents had for the same file, minus any that is an ancestor of another.
func (fc *versionedFileChecker) check(ctx context.Context, ancestors revision.ParentMap) (*fileGraphResult, error) {
	order, err := graph.TopologicalSort(ancestors)
	if err != nil {
		return nil, skerr.Wrapf(err, "ordering %d revisions", len(ancestors))
	}
	correct := map[revision.TextKey][]revision.TextKey{}
	fileIDs := map[revision.FileID]bool{}
	for _, rev := range order {
		inv, err := fc.inventory(ctx, rev)
		if err != nil {
			return nil, err
		}
		for _, file := range sortedFileIDs(inv) {
			fileIDs[file] = true
			if inv[file] != rev {
				continue
			}
			var parents []revision.TextKey
			for _, p := range ancestors[rev] {
				pinv, err := fc.inventory(ctx, p)
				if err != nil {
					return nil, err
				}
				last, ok := pinv[file]
				if !ok {
					continue
				}
				pk := revision.TextKey{FileID: file, RevisionID: last}
				if !slices.Contains(parents, pk) {
					parents = append(parents, pk)
				}
			}
			correct[revision.TextKey{FileID: file, RevisionID: rev}] = textHeads(parents, correct)
		}
	}

	keys := sortedTextKeys(correct)
	stored, err := fc.vf.TextParents(ctx, keys)
	if err != nil {
		return nil, skerr.Wrapf(err, "reading parents of %d texts", len(keys))
	}
	ret := &fileGraphResult{
		fileIDs:      len(fileIDs),
		wrongParents: map[revision.TextKey]ParentsMismatch{},
	}
	for _, key := range keys {
		s, ok := stored[key]
		if !ok {
			ret.missing = append(ret.missing, key)
			continue
		}
		if !slices.Equal(s, correct[key]) {
			ret.wrongParents[key] = ParentsMismatch{Stored: s, Correct: correct[key]}
		}
	}

	all, err := fc.vf.AllTextKeys(ctx)
	if err != nil {
		return nil, skerr.Wrapf(err, "listing texts")
	}
	for _, key := range all {
		if _, ok := correct[key]; !ok {
			ret.unreferenced = append(ret.unreferenced, key)
		}
	}
	slices.SortFunc(ret.unreferenced, compareTextKeys)
	return ret, nil
}

// textHeads drops every key reachable from another key through parents.
func textHeads(keys []revision.TextKey, parents map[revision.TextKey][]revision.TextKey) []revision.TextKey {
	if len(keys) < 2 {
		return keys
	}
	reachable := map[revision.TextKey]bool{}
	for _, k := range keys {
		pending := append([]revision.TextKey{}, parents[k]...)
		for len(pending) > 0 {
			next := pending[len(pending)-1]
			pending = pending[:len(pending)-1]
			if reachable[next] {
				continue
			}
			reachable[next] = true
			pending = append(pending, parents[next]...)
		}
	}
	ret := make([]revision.TextKey, 0, len(keys))
	for _, k := range keys {
		if !reachable[k] {
			ret = append(ret, k)
		}
	}
	return ret
}

func compareTextKeys(a, b revision.TextKey) int {
	if c := cmp.Compare(a.FileID, b.FileID); c != 0 {
		return c
	}
	return cmp.Compare(a.RevisionID, b.RevisionID)
}

func sortedTextKeys[V any](m map[revision.TextKey]V) []revision.TextKey {
	ret := make([]revision.TextKey, 0, len(m))
	for k := range m {
		ret = append(ret, k)
	}
	slices.SortFunc(ret, compareTextKeys)
	return ret
}

func sortedFileIDs(inv revision.Inventory) []revision.FileID {
	ret := make([]revision.FileID, 0, len(inv))
	for f := range inv {
		ret = append(ret, f)
	}
	slices.Sort(ret)
	return ret
}
