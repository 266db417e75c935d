// Package memstore is an in-memory revstore.Store. It is used for fixtures
// and tests, and supports every optional capability.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.skia.org/revgraph/go/revision"
	"go.skia.org/revgraph/go/revstore"
	"go.skia.org/revgraph/go/skerr"
)

// Store keeps everything in maps guarded by a single lock.
type Store struct {
	mtx          sync.RWMutex
	revs         map[revision.ID]*revision.Revision
	indexParents map[revision.ID][]revision.ID
	inventories  map[revision.ID]revision.Inventory
	texts        map[revision.TextKey][]revision.TextKey
	deltas       map[revision.ID]*revstore.TreeDelta
	diffs        map[revision.ID][]byte
	sigs         map[revision.ID]*revstore.Signature
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		revs:         map[revision.ID]*revision.Revision{},
		indexParents: map[revision.ID][]revision.ID{},
		inventories:  map[revision.ID]revision.Inventory{},
		texts:        map[revision.TextKey][]revision.TextKey{},
		deltas:       map[revision.ID]*revstore.TreeDelta{},
		diffs:        map[revision.ID][]byte{},
		sigs:         map[revision.ID]*revstore.Signature{},
	}
}

// FromParentMap returns a Store holding one revision per key of pm. Parents
// that are not keys become ghosts. Committers, messages and timestamps are
// derived from the ids so that fixtures are reproducible.
func FromParentMap(pm revision.ParentMap) *Store {
	s := New()
	ids := make([]revision.ID, 0, len(pm))
	for id := range pm {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for i, id := range ids {
		s.AddRevision(&revision.Revision{
			ID:        id,
			ParentIDs: append([]revision.ID{}, pm[id]...),
			Committer: "Test Committer <test@example.com>",
			Message:   fmt.Sprintf("message for %s", id),
			Timestamp: float64(1700000000 + i*60),
		})
	}
	return s
}

// AddRevision stores rev. The index parents are taken from rev.ParentIDs.
func (s *Store) AddRevision(rev *revision.Revision) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.revs[rev.ID] = rev
	s.indexParents[rev.ID] = append([]revision.ID{}, rev.ParentIDs...)
}

// SetIndexParents overrides the parents the index reports for id, leaving
// the stored revision alone. It lets tests model a corrupt index.
func (s *Store) SetIndexParents(id revision.ID, parents []revision.ID) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.indexParents[id] = parents
}

// AddInventory stores the inventory of id.
func (s *Store) AddInventory(id revision.ID, inv revision.Inventory) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.inventories[id] = inv
}

// AddText stores a file text and its parents.
func (s *Store) AddText(key revision.TextKey, parents ...revision.TextKey) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.texts[key] = parents
}

// SetDelta stores the delta RevisionDeltas returns for id.
func (s *Store) SetDelta(id revision.ID, d *revstore.TreeDelta) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.deltas[id] = d
}

// SetDiff stores the diff RevisionDiff returns for id.
func (s *Store) SetDiff(id revision.ID, diff []byte) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.diffs[id] = diff
}

// AllRevisionIDs implements revstore.Store.
func (s *Store) AllRevisionIDs(_ context.Context) ([]revision.ID, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	ret := make([]revision.ID, 0, len(s.revs))
	for id := range s.revs {
		ret = append(ret, id)
	}
	return ret, nil
}

// GetRevisions implements revstore.Store.
func (s *Store) GetRevisions(_ context.Context, ids []revision.ID) ([]*revision.Revision, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	ret := make([]*revision.Revision, len(ids))
	for i, id := range ids {
		ret[i] = s.revs[id]
	}
	return ret, nil
}

// HasRevision implements revstore.Store.
func (s *Store) HasRevision(_ context.Context, id revision.ID) (bool, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	_, ok := s.revs[id]
	return ok, nil
}

// GetParentMap implements revstore.Store.
func (s *Store) GetParentMap(_ context.Context, ids []revision.ID) (revision.ParentMap, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	ret := make(revision.ParentMap, len(ids))
	for _, id := range ids {
		if _, ok := s.revs[id]; !ok {
			continue
		}
		ret[id] = append([]revision.ID{}, s.indexParents[id]...)
	}
	return ret, nil
}

// RevisionDeltas implements revstore.DeltaSource. Revisions without a
// stored delta get an empty one.
func (s *Store) RevisionDeltas(_ context.Context, revs []*revision.Revision, paths []string) ([]*revstore.TreeDelta, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	ret := make([]*revstore.TreeDelta, len(revs))
	for i, r := range revs {
		d, ok := s.deltas[r.ID]
		if !ok {
			d = &revstore.TreeDelta{}
		}
		ret[i] = d.Filter(paths)
	}
	return ret, nil
}

// RevisionDiff implements revstore.DiffSource.
func (s *Store) RevisionDiff(_ context.Context, rev *revision.Revision, _ []string) ([]byte, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return s.diffs[rev.ID], nil
}

// GetSignature implements revstore.SignatureSource.
func (s *Store) GetSignature(_ context.Context, id revision.ID) (*revstore.Signature, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return s.sigs[id], nil
}

// StartWriteGroup implements revstore.SignatureStore.
func (s *Store) StartWriteGroup(_ context.Context) (revstore.WriteGroup, error) {
	return &writeGroup{s: s, sigs: map[revision.ID]*revstore.Signature{}}, nil
}

type writeGroup struct {
	s    *Store
	sigs map[revision.ID]*revstore.Signature
	done bool
}

func (w *writeGroup) AddSignature(_ context.Context, id revision.ID, sig *revstore.Signature) error {
	if w.done {
		return skerr.Fmt("write group already finished")
	}
	w.sigs[id] = sig
	return nil
}

func (w *writeGroup) Commit(_ context.Context) error {
	if w.done {
		return skerr.Fmt("write group already finished")
	}
	w.done = true
	w.s.mtx.Lock()
	defer w.s.mtx.Unlock()
	for id, sig := range w.sigs {
		w.s.sigs[id] = sig
	}
	return nil
}

func (w *writeGroup) Abort(_ context.Context) error {
	w.done = true
	w.sigs = nil
	return nil
}

// InventorySHA1s implements revstore.VersionedFiles.
func (s *Store) InventorySHA1s(_ context.Context, ids []revision.ID) (map[revision.ID]string, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	ret := make(map[revision.ID]string, len(ids))
	for _, id := range ids {
		if inv, ok := s.inventories[id]; ok {
			ret[id] = inv.SHA1()
		}
	}
	return ret, nil
}

// GetInventory implements revstore.VersionedFiles.
func (s *Store) GetInventory(_ context.Context, id revision.ID) (revision.Inventory, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return s.inventories[id], nil
}

// TextParents implements revstore.VersionedFiles.
func (s *Store) TextParents(_ context.Context, keys []revision.TextKey) (map[revision.TextKey][]revision.TextKey, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	ret := make(map[revision.TextKey][]revision.TextKey, len(keys))
	for _, k := range keys {
		if parents, ok := s.texts[k]; ok {
			ret[k] = parents
		}
	}
	return ret, nil
}

// AllTextKeys implements revstore.VersionedFiles.
func (s *Store) AllTextKeys(_ context.Context) ([]revision.TextKey, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	ret := make([]revision.TextKey, 0, len(s.texts))
	for k := range s.texts {
		ret = append(ret, k)
	}
	return ret, nil
}

var (
	_ revstore.Store          = (*Store)(nil)
	_ revstore.DeltaSource    = (*Store)(nil)
	_ revstore.DiffSource     = (*Store)(nil)
	_ revstore.SignatureStore = (*Store)(nil)
	_ revstore.VersionedFiles = (*Store)(nil)
)
