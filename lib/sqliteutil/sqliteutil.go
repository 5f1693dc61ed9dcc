package sqliteutil

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

// opens a sqlite database at `path` (":memory:" is allowed) and applies
// the given schema. a remote libsql url (libsql://...) is also accepted.
func OpenDB(schema, path string) (*sql.DB, error) {
	var db *sql.DB
	var err error

	if strings.HasPrefix(path, "libsql://") {
		db, err = sql.Open("libsql", path)
	} else if path == "" || path == ":memory:" {
		db, err = sql.Open("sqlite", ":memory:")
	} else {
		db, err = sql.Open("sqlite", fmt.Sprintf("file:%s", path))
	}
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(schema)
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		db.Close()
		return nil, err
	}
	return db, nil
}
