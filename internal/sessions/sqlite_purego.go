//go:build !cgo

package sessions

import (
	_ "modernc.org/sqlite"
)

// sqlDriverName is the database/sql driver registered for sqlite-backed
// session storage. Cross-compiled or cgo-disabled builds fall back to
// modernc.org/sqlite's pure-Go translation of sqlite3.
const sqlDriverName = "sqlite"
