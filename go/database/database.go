// Package database opens versioned SQLite databases. A database records the
// schema version it was migrated to, and is moved between versions by
// applying MigrationSteps inside a single transaction.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "modernc.org/sqlite"

	"go.skia.org/revgraph/go/skerr"
	"go.skia.org/revgraph/go/sklog"
)

// MigrationStep moves the schema one version up or down.
type MigrationStep struct {
	Up   []string
	Down []string
}

// Config describes how to open a database.
type Config struct {
	// Path of the SQLite file.
	Path string
	// BusyTimeout is how long a statement waits on a locked database.
	BusyTimeout time.Duration
	// MigrationSteps in order. Version N is reached after applying the
	// first N steps.
	MigrationSteps []MigrationStep
}

// VersionedDB is a database handle that knows its schema version.
type VersionedDB struct {
	DB *sql.DB

	migrationSteps []MigrationStep
}

// dsn builds the modernc.org/sqlite connection string for conf.
func dsn(conf *Config) string {
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "journal_mode(WAL)")
	if conf.BusyTimeout > 0 {
		q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", conf.BusyTimeout.Milliseconds()))
	}
	return conf.Path + "?" + q.Encode()
}

// Open opens the database and migrates it to the latest version.
func Open(ctx context.Context, conf *Config) (*VersionedDB, error) {
	sklog.Infof("Opening sqlite database at %s", conf.Path)
	db, err := sql.Open("sqlite", dsn(conf))
	if err != nil {
		return nil, skerr.Wrapf(err, "opening %s", conf.Path)
	}
	vdb := &VersionedDB{
		DB:             db,
		migrationSteps: conf.MigrationSteps,
	}
	if err := vdb.ensureVersionTable(ctx); err != nil {
		_ = db.Close()
		return nil, skerr.Wrapf(err, "creating version table in %s", conf.Path)
	}
	if err := vdb.Migrate(ctx, vdb.MaxDBVersion()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return vdb, nil
}

// Close the underlying database.
func (vdb *VersionedDB) Close() error {
	return vdb.DB.Close()
}

// WithTx runs fn in a transaction, committing if fn succeeds and rolling
// back otherwise.
func (vdb *VersionedDB) WithTx(ctx context.Context, fn func(*sql.Tx) error) (err error) {
	tx, err := vdb.DB.BeginTx(ctx, nil)
	if err != nil {
		return skerr.Wrapf(err, "starting transaction")
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				sklog.Errorf("Rolling back transaction: %s", rbErr)
			}
			return
		}
		err = skerr.Wrapf(tx.Commit(), "committing transaction")
	}()
	return fn(tx)
}

// Migrate moves the database to targetVersion. Use DBVersion() to retrieve
// the current version of the database.
func (vdb *VersionedDB) Migrate(ctx context.Context, targetVersion int) error {
	if targetVersion < 0 || targetVersion > vdb.MaxDBVersion() {
		return skerr.Fmt("target db version must be in range [0 .. %d], got %d", vdb.MaxDBVersion(), targetVersion)
	}
	currentVersion, err := vdb.DBVersion(ctx)
	if err != nil {
		return err
	}
	if targetVersion == currentVersion {
		return nil
	}
	sklog.Infof("Migrating database from version %d to %d", currentVersion, targetVersion)
	return vdb.WithTx(ctx, func(tx *sql.Tx) error {
		for _, step := range vdb.getMigrations(currentVersion, targetVersion) {
			for _, stmt := range step {
				sklog.Debugf("EXECUTING: %s", stmt)
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return skerr.Wrapf(err, "executing %q", stmt)
				}
			}
		}
		return setDBVersion(ctx, tx, targetVersion)
	})
}

// DBVersion returns the current version of the database.
func (vdb *VersionedDB) DBVersion(ctx context.Context) (int, error) {
	var version int
	err := vdb.DB.QueryRowContext(ctx, `SELECT version FROM sk_db_version WHERE id=1`).Scan(&version)
	return version, skerr.Wrapf(err, "reading db version")
}

// MaxDBVersion returns the highest version available.
func (vdb *VersionedDB) MaxDBVersion() int {
	return len(vdb.migrationSteps)
}

func setDBVersion(ctx context.Context, tx *sql.Tx, version int) error {
	_, err := tx.ExecContext(ctx, `REPLACE INTO sk_db_version (id, version, updated) VALUES(1, ?, ?)`, version, time.Now().Unix())
	return skerr.Wrapf(err, "setting db version to %d", version)
}

func (vdb *VersionedDB) ensureVersionTable(ctx context.Context) error {
	return vdb.WithTx(ctx, func(tx *sql.Tx) error {
		stmt := `CREATE TABLE IF NOT EXISTS sk_db_version (
			id         INTEGER      NOT NULL PRIMARY KEY,
			version    INTEGER      NOT NULL,
			updated    BIGINT       NOT NULL
		)`
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return skerr.Wrapf(err, "creating version table")
		}
		var count int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM sk_db_version`).Scan(&count); err != nil {
			return skerr.Wrapf(err, "reading version table")
		}
		if count == 0 {
			return setDBVersion(ctx, tx, 0)
		} else if count > 1 {
			return skerr.Fmt("version table contains %d rows", count)
		}
		return nil
	})
}

// getMigrations returns the statements that move the schema from
// currentVersion to targetVersion, which must differ.
func (vdb *VersionedDB) getMigrations(currentVersion, targetVersion int) [][]string {
	var ret [][]string
	if targetVersion > currentVersion {
		for i := currentVersion; i < targetVersion; i++ {
			ret = append(ret, vdb.migrationSteps[i].Up)
		}
		return ret
	}
	for i := currentVersion - 1; i >= targetVersion; i-- {
		ret = append(ret, vdb.migrationSteps[i].Down)
	}
	return ret
}
