package db

import (
	"database/sql"
)

// MakeTx begins a transaction and returns queries bound to it. Callers defer discard
// right away and call commit once every write succeeded, discard after a commit is a
// no-op error that is safe to ignore.
type MakeTx = func() (tx *Queries, discard, commit func() error, err error)

// NewMakeTx binds MakeTx to database, the stores use it for batch upserts and for
// page edits that read before they write.
func NewMakeTx(database *sql.DB) MakeTx {
	return func() (*Queries, func() error, func() error, error) {
		sqltx, err := database.Begin()
		if err != nil {
			return nil, nil, nil, err
		}
		return New(sqltx), sqltx.Rollback, sqltx.Commit, nil
	}
}
