// Package sqlstore is a revstore.Store kept in a SQLite database.
package sqlstore

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"go.skia.org/revgraph/go/database"
	"go.skia.org/revgraph/go/revision"
	"go.skia.org/revgraph/go/revstore"
	"go.skia.org/revgraph/go/skerr"
	"go.skia.org/revgraph/go/util"
)

// queryBatchSize bounds the number of bound parameters in one IN clause.
const queryBatchSize = 500

// Store implements revstore.Store and its optional capabilities, other than
// diffs, on top of a VersionedDB.
type Store struct {
	db *database.VersionedDB
}

// Open opens or creates the store at path.
func Open(ctx context.Context, path string, busyTimeout time.Duration) (*Store, error) {
	db, err := database.Open(ctx, &database.Config{
		Path:           path,
		BusyTimeout:    busyTimeout,
		MigrationSteps: migrationSteps,
	})
	if err != nil {
		return nil, skerr.Wrapf(err, "opening revision store")
	}
	return &Store{db: db}, nil
}

// Close the store.
func (s *Store) Close() error {
	return s.db.Close()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func idArgs(ids []revision.ID) []interface{} {
	ret := make([]interface{}, len(ids))
	for i, id := range ids {
		ret[i] = string(id)
	}
	return ret
}

// queryIDs runs query once per batch of ids. The query must contain a
// single "%s" where the placeholder list goes.
func (s *Store) queryIDs(ctx context.Context, query string, ids []revision.ID, fn func(*sql.Rows) error) error {
	if len(ids) == 0 {
		return nil
	}
	return util.ChunkIter(len(ids), queryBatchSize, func(start, end int) error {
		batch := ids[start:end]
		rows, err := s.db.DB.QueryContext(ctx, strings.Replace(query, "%s", placeholders(len(batch)), 1), idArgs(batch)...)
		if err != nil {
			return skerr.Wrap(err)
		}
		defer util.Close(rows)
		for rows.Next() {
			if err := fn(rows); err != nil {
				return skerr.Wrap(err)
			}
		}
		return skerr.Wrap(rows.Err())
	})
}

// AddRevision stores rev and indexes its parents.
func (s *Store) AddRevision(ctx context.Context, rev *revision.Revision) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		parents := make([]string, len(rev.ParentIDs))
		for i, p := range rev.ParentIDs {
			parents[i] = string(p)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO revisions (id, parent_ids, committer, message, timestamp, timezone, inventory_sha1) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			string(rev.ID), strings.Join(parents, "\n"), rev.Committer, rev.Message, rev.Timestamp, rev.Timezone, rev.InventorySHA1); err != nil {
			return skerr.Wrapf(err, "inserting revision %s", rev.ID)
		}
		for name, value := range rev.Properties {
			if _, err := tx.ExecContext(ctx, `INSERT INTO revision_properties (revision_id, name, value) VALUES (?, ?, ?)`, string(rev.ID), name, value); err != nil {
				return skerr.Wrapf(err, "inserting property %q of %s", name, rev.ID)
			}
		}
		return insertIndexParents(ctx, tx, rev.ID, rev.ParentIDs)
	})
}

func insertIndexParents(ctx context.Context, tx *sql.Tx, id revision.ID, parents []revision.ID) error {
	for i, p := range parents {
		if _, err := tx.ExecContext(ctx, `INSERT INTO revision_parents (revision_id, idx, parent_id) VALUES (?, ?, ?)`, string(id), i, string(p)); err != nil {
			return skerr.Wrapf(err, "indexing parent %d of %s", i, id)
		}
	}
	return nil
}

// SetIndexParents rewrites the indexed parents of id without touching the
// stored revision.
func (s *Store) SetIndexParents(ctx context.Context, id revision.ID, parents []revision.ID) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM revision_parents WHERE revision_id=?`, string(id)); err != nil {
			return skerr.Wrapf(err, "clearing parents of %s", id)
		}
		return insertIndexParents(ctx, tx, id, parents)
	})
}

// AllRevisionIDs implements revstore.Store.
func (s *Store) AllRevisionIDs(ctx context.Context) ([]revision.ID, error) {
	rows, err := s.db.DB.QueryContext(ctx, `SELECT id FROM revisions`)
	if err != nil {
		return nil, skerr.Wrapf(err, "listing revisions")
	}
	defer util.Close(rows)
	var ret []revision.ID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, skerr.Wrap(err)
		}
		ret = append(ret, revision.ID(id))
	}
	return ret, skerr.Wrap(rows.Err())
}

// GetRevisions implements revstore.Store.
func (s *Store) GetRevisions(ctx context.Context, ids []revision.ID) ([]*revision.Revision, error) {
	found := make(map[revision.ID]*revision.Revision, len(ids))
	err := s.queryIDs(ctx, `SELECT id, parent_ids, committer, message, timestamp, timezone, inventory_sha1 FROM revisions WHERE id IN (%s)`, ids, func(rows *sql.Rows) error {
		var id, parents string
		r := &revision.Revision{}
		if err := rows.Scan(&id, &parents, &r.Committer, &r.Message, &r.Timestamp, &r.Timezone, &r.InventorySHA1); err != nil {
			return err
		}
		r.ID = revision.ID(id)
		if parents != "" {
			for _, p := range strings.Split(parents, "\n") {
				r.ParentIDs = append(r.ParentIDs, revision.ID(p))
			}
		}
		found[r.ID] = r
		return nil
	})
	if err != nil {
		return nil, skerr.Wrapf(err, "loading %d revisions", len(ids))
	}
	err = s.queryIDs(ctx, `SELECT revision_id, name, value FROM revision_properties WHERE revision_id IN (%s)`, ids, func(rows *sql.Rows) error {
		var id, name, value string
		if err := rows.Scan(&id, &name, &value); err != nil {
			return err
		}
		r := found[revision.ID(id)]
		if r.Properties == nil {
			r.Properties = map[string]string{}
		}
		r.Properties[name] = value
		return nil
	})
	if err != nil {
		return nil, skerr.Wrapf(err, "loading revision properties")
	}
	ret := make([]*revision.Revision, len(ids))
	for i, id := range ids {
		ret[i] = found[id]
	}
	return ret, nil
}

// HasRevision implements revstore.Store.
func (s *Store) HasRevision(ctx context.Context, id revision.ID) (bool, error) {
	var n int
	if err := s.db.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM revisions WHERE id=?`, string(id)).Scan(&n); err != nil {
		return false, skerr.Wrapf(err, "looking up %s", id)
	}
	return n > 0, nil
}

// GetParentMap implements revstore.Store.
func (s *Store) GetParentMap(ctx context.Context, ids []revision.ID) (revision.ParentMap, error) {
	ret := revision.ParentMap{}
	err := s.queryIDs(ctx, `SELECT r.id, p.parent_id FROM revisions r LEFT JOIN revision_parents p ON p.revision_id = r.id WHERE r.id IN (%s) ORDER BY r.id, p.idx`, ids, func(rows *sql.Rows) error {
		var id string
		var parent sql.NullString
		if err := rows.Scan(&id, &parent); err != nil {
			return err
		}
		parents := ret[revision.ID(id)]
		if parents == nil {
			parents = []revision.ID{}
		}
		if parent.Valid {
			parents = append(parents, revision.ID(parent.String))
		}
		ret[revision.ID(id)] = parents
		return nil
	})
	if err != nil {
		return nil, skerr.Wrapf(err, "loading parents of %d revisions", len(ids))
	}
	return ret, nil
}

var (
	_ revstore.Store          = (*Store)(nil)
	_ revstore.DeltaSource    = (*Store)(nil)
	_ revstore.SignatureStore = (*Store)(nil)
	_ revstore.VersionedFiles = (*Store)(nil)
)
