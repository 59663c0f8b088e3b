package store

import (
	"aywatch/internal/components/telemetry"
	"aywatch/internal/components/testutil"
	"aywatch/internal/db"
	"database/sql"
	"testing"
)

func openTestDB(t testing.TB) *sql.DB {
	return testutil.OpenDB(t, db.Schema)
}

func newTestPages(t testing.TB, database *sql.DB) (Pages, *telemetry.TestingAPI) {
	tel := telemetry.NewTestingAPI()
	return NewPages(db.New(database), db.NewMakeTx(database), tel), tel
}
