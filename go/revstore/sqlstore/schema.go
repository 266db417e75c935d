package sqlstore

import "go.skia.org/revgraph/go/database"

// migrationSteps is the schema history. Version 1 holds the revision graph,
// version 2 the versioned-file data, deltas and signatures.
var migrationSteps = []database.MigrationStep{
	{
		Up: []string{
			`CREATE TABLE revisions (
				id              TEXT     NOT NULL PRIMARY KEY,
				parent_ids      TEXT     NOT NULL,
				committer       TEXT     NOT NULL,
				message         TEXT     NOT NULL,
				timestamp       REAL     NOT NULL,
				timezone        INTEGER  NOT NULL,
				inventory_sha1  TEXT     NOT NULL
			)`,
			`CREATE TABLE revision_properties (
				revision_id  TEXT  NOT NULL REFERENCES revisions(id),
				name         TEXT  NOT NULL,
				value        TEXT  NOT NULL,
				PRIMARY KEY (revision_id, name)
			)`,
			`CREATE TABLE revision_parents (
				revision_id  TEXT     NOT NULL REFERENCES revisions(id),
				idx          INTEGER  NOT NULL,
				parent_id    TEXT     NOT NULL,
				PRIMARY KEY (revision_id, idx)
			)`,
		},
		Down: []string{
			`DROP TABLE revision_parents`,
			`DROP TABLE revision_properties`,
			`DROP TABLE revisions`,
		},
	},
	{
		Up: []string{
			`CREATE TABLE inventories (
				revision_id  TEXT  NOT NULL PRIMARY KEY,
				sha1         TEXT  NOT NULL
			)`,
			`CREATE TABLE inventory_entries (
				revision_id    TEXT  NOT NULL REFERENCES inventories(revision_id),
				file_id        TEXT  NOT NULL,
				text_revision  TEXT  NOT NULL,
				PRIMARY KEY (revision_id, file_id)
			)`,
			`CREATE TABLE texts (
				file_id      TEXT  NOT NULL,
				revision_id  TEXT  NOT NULL,
				PRIMARY KEY (file_id, revision_id)
			)`,
			`CREATE TABLE text_parents (
				file_id             TEXT     NOT NULL,
				revision_id         TEXT     NOT NULL,
				idx                 INTEGER  NOT NULL,
				parent_file_id      TEXT     NOT NULL,
				parent_revision_id  TEXT     NOT NULL,
				PRIMARY KEY (file_id, revision_id, idx)
			)`,
			`CREATE TABLE changes (
				revision_id  TEXT     NOT NULL,
				seq          INTEGER  NOT NULL,
				action       TEXT     NOT NULL,
				old_path     TEXT     NOT NULL,
				new_path     TEXT     NOT NULL,
				kind         TEXT     NOT NULL,
				PRIMARY KEY (revision_id, seq)
			)`,
			`CREATE TABLE signatures (
				revision_id  TEXT  NOT NULL PRIMARY KEY,
				payload      BLOB  NOT NULL,
				armored      BLOB  NOT NULL
			)`,
		},
		Down: []string{
			`DROP TABLE signatures`,
			`DROP TABLE changes`,
			`DROP TABLE text_parents`,
			`DROP TABLE texts`,
			`DROP TABLE inventory_entries`,
			`DROP TABLE inventories`,
		},
	},
}
