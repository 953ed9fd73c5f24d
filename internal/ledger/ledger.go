// Package ledger implements the reference-count ledger backing the object
// store's garbage collection: a transactional digest -> positive-count
// mapping persisted in a single SQLite file.
package ledger

import (
	"database/sql"
	"fmt"

	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/nicolagi/dedupvfs/internal/hash"
	log "github.com/sirupsen/logrus"
)

type baseErr string

func (e baseErr) Error() string { return string(e) }

// ErrExists is returned by Create when a row for the digest already exists.
const ErrExists = baseErr("counter already exists")

// ErrNotExists is returned by operations that require an existing row when
// none is found.
const ErrNotExists = baseErr("counter does not exist")

const schema = `CREATE TABLE IF NOT EXISTS id_count (
	id TEXT PRIMARY KEY,
	count INTEGER NOT NULL
)`

// Ledger is a reference-count table keyed by content digest. It is not safe
// for concurrent use by multiple goroutines; the per-root single-writer
// invariant is enforced by the caller (VirtualFileSystem), not by this
// package.
type Ledger struct {
	db *sql.DB
}

func errorf(method, format string, a ...interface{}) error {
	return fmt.Errorf("github.com/nicolagi/dedupvfs/internal/ledger."+method+": "+format, a...)
}

// Open opens (creating if necessary) the SQLite database at path and
// ensures the id_count table exists.
func Open(path string) (*Ledger, error) {
	const method = "Open"
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errorf(method, "opening %q: %v", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errorf(method, "creating schema: %v", err)
	}
	return &Ledger{db: db}, nil
}

// Create inserts a fresh row with count=1. It fails with ErrExists if a row
// for d is already present.
func (l *Ledger) Create(d hash.Digest) error {
	const method = "Ledger.Create"
	_, err := l.db.Exec(`INSERT INTO id_count (id, count) VALUES (?, 1)`, string(d))
	if err != nil {
		if sqlErr, ok := err.(sqlite3.Error); ok && sqlErr.Code == sqlite3.ErrConstraint {
			return errorf(method, "%q: %w", d, ErrExists)
		}
		return errorf(method, "inserting %q: %v", d, err)
	}
	return nil
}

// Increment adds one to the count for d, auto-creating the row if absent.
func (l *Ledger) Increment(d hash.Digest) error {
	const method = "Ledger.Increment"
	res, err := l.db.Exec(`UPDATE id_count SET count = count + 1 WHERE id = ?`, string(d))
	if err != nil {
		return errorf(method, "incrementing %q: %v", d, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errorf(method, "checking rows affected for %q: %v", d, err)
	}
	if n == 0 {
		return l.Create(d)
	}
	return nil
}

// Decrement subtracts one from the count for d. If the resulting count is
// zero, the row is deleted within the same transaction and Decrement
// returns true. It fails with ErrNotExists if no row exists for d.
func (l *Ledger) Decrement(d hash.Digest) (deleted bool, err error) {
	const method = "Ledger.Decrement"
	tx, err := l.db.Begin()
	if err != nil {
		return false, errorf(method, "begin transaction: %v", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.WithFields(log.Fields{"digest": d, "err": rbErr}).Warning("ledger: rollback failed")
			}
		}
	}()

	res, execErr := tx.Exec(`UPDATE id_count SET count = count - 1 WHERE id = ?`, string(d))
	if execErr != nil {
		err = errorf(method, "decrementing %q: %v", d, execErr)
		return false, err
	}
	n, raErr := res.RowsAffected()
	if raErr != nil {
		err = errorf(method, "checking rows affected for %q: %v", d, raErr)
		return false, err
	}
	if n == 0 {
		err = errorf(method, "%q: %w", d, ErrNotExists)
		return false, err
	}

	delRes, delErr := tx.Exec(`DELETE FROM id_count WHERE id = ? AND count <= 0`, string(d))
	if delErr != nil {
		err = errorf(method, "deleting exhausted counter %q: %v", d, delErr)
		return false, err
	}
	deletedRows, raErr := delRes.RowsAffected()
	if raErr != nil {
		err = errorf(method, "checking deleted rows for %q: %v", d, raErr)
		return false, err
	}

	if commitErr := tx.Commit(); commitErr != nil {
		err = errorf(method, "committing decrement of %q: %v", d, commitErr)
		return false, err
	}
	return deletedRows > 0, nil
}

// Get returns the current count for d. It fails with ErrNotExists if no row
// exists.
func (l *Ledger) Get(d hash.Digest) (int64, error) {
	const method = "Ledger.Get"
	var count int64
	err := l.db.QueryRow(`SELECT count FROM id_count WHERE id = ?`, string(d)).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, errorf(method, "%q: %w", d, ErrNotExists)
	}
	if err != nil {
		return 0, errorf(method, "querying %q: %v", d, err)
	}
	return count, nil
}

// Commit is the lifecycle close operation: SQLite commits each statement's
// transaction as it runs, so this only closes the underlying connection.
func (l *Ledger) Commit() error {
	const method = "Ledger.Commit"
	if err := l.db.Close(); err != nil {
		return errorf(method, "closing database: %v", err)
	}
	return nil
}
