package testutil

import (
	configlibsql "aywatch/internal/components/configutil/libsql"
	"database/sql"
	"testing"
)

// OpenDB opens a private in-memory sqlite database with schema applied, it is
// closed when the test ends.
func OpenDB(t testing.TB, schema string) *sql.DB {
	t.Helper()
	database, err := configlibsql.Struct{File: ":memory:"}.OpenDB(schema)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		database.Close()
	})
	return database
}
