// Package revstore defines the storage interfaces the revision graph reads
// from, and the optional capabilities a store may provide.
//
// Stores report missing revisions by leaving them out of results, never by
// failing. Errors are reserved for I/O problems.
package revstore

import (
	"context"
	"errors"
	"iter"

	"go.skia.org/revgraph/go/revision"
	"go.skia.org/revgraph/go/util"
)

// ErrUnsupported is returned when a store lacks an optional capability.
var ErrUnsupported = errors.New("operation not supported by this store")

// IterBatchSize is the number of revisions IterRevisions reads per call.
const IterBatchSize = 1000

// Store is the read path of a revision store.
type Store interface {
	// AllRevisionIDs returns every stored revision, in no particular order.
	AllRevisionIDs(ctx context.Context) ([]revision.ID, error)

	// GetRevisions returns one entry per id, in order. The entry is nil for
	// ids that are not stored.
	GetRevisions(ctx context.Context, ids []revision.ID) ([]*revision.Revision, error)

	// HasRevision reports whether id is stored.
	HasRevision(ctx context.Context, id revision.ID) (bool, error)

	// GetParentMap returns the parents recorded in the store's index for
	// each stored id. Roots map to an empty list; missing ids are absent.
	GetParentMap(ctx context.Context, ids []revision.ID) (revision.ParentMap, error)
}

// Entry is one element of IterRevisions. Rev is nil for ghosts.
type Entry struct {
	ID  revision.ID
	Rev *revision.Revision
}

// IterRevisions lazily reads ids from s in batches of IterBatchSize.
func IterRevisions(ctx context.Context, s Store, ids []revision.ID) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		if len(ids) == 0 {
			return
		}
		stopped := false
		err := util.ChunkIter(len(ids), IterBatchSize, func(start, end int) error {
			revs, err := s.GetRevisions(ctx, ids[start:end])
			if err != nil {
				return err
			}
			for i, id := range ids[start:end] {
				if !yield(Entry{ID: id, Rev: revs[i]}, nil) {
					stopped = true
					return errStop
				}
			}
			return nil
		})
		if err != nil && !stopped {
			yield(Entry{}, err)
		}
	}
}

var errStop = errors.New("stop")

// GetRevision returns a single revision, or nil if it is not stored.
func GetRevision(ctx context.Context, s Store, id revision.ID) (*revision.Revision, error) {
	revs, err := s.GetRevisions(ctx, []revision.ID{id})
	if err != nil {
		return nil, err
	}
	return revs[0], nil
}

// DeltaSource computes what each revision changed relative to its lefthand
// parent.
type DeltaSource interface {
	// RevisionDeltas returns one delta per revision. If paths is non-empty
	// each delta only holds changes at or below those paths.
	RevisionDeltas(ctx context.Context, revs []*revision.Revision, paths []string) ([]*TreeDelta, error)
}

// DiffSource renders a textual diff of a revision against its lefthand
// parent.
type DiffSource interface {
	RevisionDiff(ctx context.Context, rev *revision.Revision, paths []string) ([]byte, error)
}

// Signature is a detached signature over Payload.
type Signature struct {
	Payload []byte
	// Armored is the ASCII-armored OpenPGP signature.
	Armored []byte
}

// SignatureSource reads revision signatures.
type SignatureSource interface {
	// GetSignature returns the signature of id, or nil if it is unsigned.
	GetSignature(ctx context.Context, id revision.ID) (*Signature, error)
}

// SignatureStore also writes signatures. Writes happen inside a write group
// and become visible all together on commit, or not at all.
type SignatureStore interface {
	SignatureSource
	StartWriteGroup(ctx context.Context) (WriteGroup, error)
}

// WriteGroup is a pending set of writes.
type WriteGroup interface {
	AddSignature(ctx context.Context, id revision.ID, sig *Signature) error
	Commit(ctx context.Context) error
	// Abort discards every write. It is safe to call after Commit failed.
	Abort(ctx context.Context) error
}

// VersionedFiles exposes the per-file history the consistency checker
// compares against the revision graph.
type VersionedFiles interface {
	// InventorySHA1s returns the sha1 of the stored inventory of each id.
	// Ids without an inventory are absent.
	InventorySHA1s(ctx context.Context, ids []revision.ID) (map[revision.ID]string, error)

	// GetInventory returns the inventory of id, or nil if none is stored.
	GetInventory(ctx context.Context, id revision.ID) (revision.Inventory, error)

	// TextParents returns the stored parents of each text. Missing texts are
	// absent.
	TextParents(ctx context.Context, keys []revision.TextKey) (map[revision.TextKey][]revision.TextKey, error)

	// AllTextKeys returns every stored text.
	AllTextKeys(ctx context.Context) ([]revision.TextKey, error)
}
