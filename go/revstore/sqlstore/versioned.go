package sqlstore

import (
	"context"
	"database/sql"
	"errors"

	"go.skia.org/revgraph/go/revision"
	"go.skia.org/revgraph/go/revstore"
	"go.skia.org/revgraph/go/skerr"
	"go.skia.org/revgraph/go/sklog"
)

// AddInventory stores the inventory of id, replacing any earlier one.
func (s *Store) AddInventory(ctx context.Context, id revision.ID, inv revision.Inventory) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM inventory_entries WHERE revision_id=?`, string(id)); err != nil {
			return skerr.Wrap(err)
		}
		if _, err := tx.ExecContext(ctx, `REPLACE INTO inventories (revision_id, sha1) VALUES (?, ?)`, string(id), inv.SHA1()); err != nil {
			return skerr.Wrapf(err, "storing inventory of %s", id)
		}
		for fileID, textRev := range inv {
			if _, err := tx.ExecContext(ctx, `INSERT INTO inventory_entries (revision_id, file_id, text_revision) VALUES (?, ?, ?)`, string(id), string(fileID), string(textRev)); err != nil {
				return skerr.Wrapf(err, "storing inventory entry %s of %s", fileID, id)
			}
		}
		return nil
	})
}

// AddText stores a file text and its parents.
func (s *Store) AddText(ctx context.Context, key revision.TextKey, parents ...revision.TextKey) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO texts (file_id, revision_id) VALUES (?, ?)`, string(key.FileID), string(key.RevisionID)); err != nil {
			return skerr.Wrapf(err, "storing text %v", key)
		}
		for i, p := range parents {
			if _, err := tx.ExecContext(ctx, `INSERT INTO text_parents (file_id, revision_id, idx, parent_file_id, parent_revision_id) VALUES (?, ?, ?, ?, ?)`,
				string(key.FileID), string(key.RevisionID), i, string(p.FileID), string(p.RevisionID)); err != nil {
				return skerr.Wrapf(err, "storing parent %d of text %v", i, key)
			}
		}
		return nil
	})
}

// InventorySHA1s implements revstore.VersionedFiles.
func (s *Store) InventorySHA1s(ctx context.Context, ids []revision.ID) (map[revision.ID]string, error) {
	ret := make(map[revision.ID]string, len(ids))
	err := s.queryIDs(ctx, `SELECT revision_id, sha1 FROM inventories WHERE revision_id IN (%s)`, ids, func(rows *sql.Rows) error {
		var id, sha1 string
		if err := rows.Scan(&id, &sha1); err != nil {
			return err
		}
		ret[revision.ID(id)] = sha1
		return nil
	})
	return ret, skerr.Wrapf(err, "loading inventory sha1s")
}

// GetInventory implements revstore.VersionedFiles.
func (s *Store) GetInventory(ctx context.Context, id revision.ID) (revision.Inventory, error) {
	var sha1 string
	err := s.db.DB.QueryRowContext(ctx, `SELECT sha1 FROM inventories WHERE revision_id=?`, string(id)).Scan(&sha1)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	} else if err != nil {
		return nil, skerr.Wrapf(err, "loading inventory of %s", id)
	}
	inv := revision.Inventory{}
	err = s.queryIDs(ctx, `SELECT file_id, text_revision FROM inventory_entries WHERE revision_id IN (%s)`, []revision.ID{id}, func(rows *sql.Rows) error {
		var fileID, textRev string
		if err := rows.Scan(&fileID, &textRev); err != nil {
			return err
		}
		inv[revision.FileID(fileID)] = revision.ID(textRev)
		return nil
	})
	if err != nil {
		return nil, skerr.Wrapf(err, "loading inventory entries of %s", id)
	}
	if got := inv.SHA1(); got != sha1 {
		sklog.Warningf("Inventory of %s hashes to %s, recorded as %s", id, got, sha1)
	}
	return inv, nil
}

// TextParents implements revstore.VersionedFiles.
func (s *Store) TextParents(ctx context.Context, keys []revision.TextKey) (map[revision.TextKey][]revision.TextKey, error) {
	ret := make(map[revision.TextKey][]revision.TextKey, len(keys))
	for _, k := range keys {
		rows, err := s.db.DB.QueryContext(ctx, `SELECT t.file_id, p.parent_file_id, p.parent_revision_id FROM texts t
			LEFT JOIN text_parents p ON p.file_id = t.file_id AND p.revision_id = t.revision_id
			WHERE t.file_id=? AND t.revision_id=? ORDER BY p.idx`, string(k.FileID), string(k.RevisionID))
		if err != nil {
			return nil, skerr.Wrapf(err, "loading parents of text %v", k)
		}
		err = func() error {
			defer func() { _ = rows.Close() }()
			for rows.Next() {
				var fileID string
				var pFile, pRev sql.NullString
				if err := rows.Scan(&fileID, &pFile, &pRev); err != nil {
					return skerr.Wrap(err)
				}
				parents := ret[k]
				if parents == nil {
					parents = []revision.TextKey{}
				}
				if pFile.Valid {
					parents = append(parents, revision.TextKey{FileID: revision.FileID(pFile.String), RevisionID: revision.ID(pRev.String)})
				}
				ret[k] = parents
			}
			return skerr.Wrap(rows.Err())
		}()
		if err != nil {
			return nil, err
		}
	}
	return ret, nil
}

// AllTextKeys implements revstore.VersionedFiles.
func (s *Store) AllTextKeys(ctx context.Context) ([]revision.TextKey, error) {
	rows, err := s.db.DB.QueryContext(ctx, `SELECT file_id, revision_id FROM texts`)
	if err != nil {
		return nil, skerr.Wrapf(err, "listing texts")
	}
	defer func() { _ = rows.Close() }()
	var ret []revision.TextKey
	for rows.Next() {
		var fileID, revID string
		if err := rows.Scan(&fileID, &revID); err != nil {
			return nil, skerr.Wrap(err)
		}
		ret = append(ret, revision.TextKey{FileID: revision.FileID(fileID), RevisionID: revision.ID(revID)})
	}
	return ret, skerr.Wrap(rows.Err())
}

const (
	actionAdded    = "added"
	actionRemoved  = "removed"
	actionRenamed  = "renamed"
	actionCopied   = "copied"
	actionModified = "modified"
)

// SetDelta stores the changes made by id.
func (s *Store) SetDelta(ctx context.Context, id revision.ID, d *revstore.TreeDelta) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM changes WHERE revision_id=?`, string(id)); err != nil {
			return skerr.Wrap(err)
		}
		seq := 0
		for _, group := range []struct {
			action  string
			changes []revstore.Change
		}{
			{actionAdded, d.Added},
			{actionRemoved, d.Removed},
			{actionRenamed, d.Renamed},
			{actionCopied, d.Copied},
			{actionModified, d.Modified},
		} {
			for _, c := range group.changes {
				if _, err := tx.ExecContext(ctx, `INSERT INTO changes (revision_id, seq, action, old_path, new_path, kind) VALUES (?, ?, ?, ?, ?, ?)`,
					string(id), seq, group.action, c.OldPath, c.NewPath, string(c.Kind)); err != nil {
					return skerr.Wrapf(err, "storing change of %s", id)
				}
				seq++
			}
		}
		return nil
	})
}

// RevisionDeltas implements revstore.DeltaSource.
func (s *Store) RevisionDeltas(ctx context.Context, revs []*revision.Revision, paths []string) ([]*revstore.TreeDelta, error) {
	ids := make([]revision.ID, len(revs))
	deltas := make(map[revision.ID]*revstore.TreeDelta, len(revs))
	for i, r := range revs {
		ids[i] = r.ID
		deltas[r.ID] = &revstore.TreeDelta{}
	}
	err := s.queryIDs(ctx, `SELECT revision_id, action, old_path, new_path, kind FROM changes WHERE revision_id IN (%s) ORDER BY revision_id, seq`, ids, func(rows *sql.Rows) error {
		var id, action, kind string
		var c revstore.Change
		if err := rows.Scan(&id, &action, &c.OldPath, &c.NewPath, &kind); err != nil {
			return err
		}
		c.Kind = revstore.Kind(kind)
		d := deltas[revision.ID(id)]
		switch action {
		case actionAdded:
			d.Added = append(d.Added, c)
		case actionRemoved:
			d.Removed = append(d.Removed, c)
		case actionRenamed:
			d.Renamed = append(d.Renamed, c)
		case actionCopied:
			d.Copied = append(d.Copied, c)
		case actionModified:
			d.Modified = append(d.Modified, c)
		default:
			return skerr.Fmt("unknown change action %q for %s", action, id)
		}
		return nil
	})
	if err != nil {
		return nil, skerr.Wrapf(err, "loading deltas")
	}
	ret := make([]*revstore.TreeDelta, len(revs))
	for i, id := range ids {
		ret[i] = deltas[id].Filter(paths)
	}
	return ret, nil
}

// GetSignature implements revstore.SignatureSource.
func (s *Store) GetSignature(ctx context.Context, id revision.ID) (*revstore.Signature, error) {
	sig := &revstore.Signature{}
	err := s.db.DB.QueryRowContext(ctx, `SELECT payload, armored FROM signatures WHERE revision_id=?`, string(id)).Scan(&sig.Payload, &sig.Armored)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	} else if err != nil {
		return nil, skerr.Wrapf(err, "loading signature of %s", id)
	}
	return sig, nil
}

// StartWriteGroup implements revstore.SignatureStore. The group is a SQL
// transaction.
func (s *Store) StartWriteGroup(ctx context.Context) (revstore.WriteGroup, error) {
	tx, err := s.db.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, skerr.Wrapf(err, "starting write group")
	}
	return &writeGroup{tx: tx}, nil
}

type writeGroup struct {
	tx *sql.Tx
}

func (w *writeGroup) AddSignature(ctx context.Context, id revision.ID, sig *revstore.Signature) error {
	_, err := w.tx.ExecContext(ctx, `REPLACE INTO signatures (revision_id, payload, armored) VALUES (?, ?, ?)`, string(id), sig.Payload, sig.Armored)
	return skerr.Wrapf(err, "storing signature of %s", id)
}

func (w *writeGroup) Commit(_ context.Context) error {
	return skerr.Wrapf(w.tx.Commit(), "committing write group")
}

func (w *writeGroup) Abort(_ context.Context) error {
	if err := w.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return skerr.Wrapf(err, "aborting write group")
	}
	return nil
}
