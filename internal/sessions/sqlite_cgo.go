//go:build cgo

package sessions

import (
	_ "github.com/mattn/go-sqlite3"
)

// sqlDriverName is the database/sql driver registered for sqlite-backed
// session storage. Builds with cgo available link mattn/go-sqlite3,
// which wraps the C sqlite3 amalgamation directly.
const sqlDriverName = "sqlite3"
