// Package all links every built-in storage backend into a binary. Import it
// for side effects:
//
//	import _ "ingest/internal/storage/all"
//
// after which storage.Open accepts the kinds postgres, sqlite, mssql and
// mysql.
package all

import (
	_ "ingest/internal/storage/mssql"
	_ "ingest/internal/storage/mysql"
	_ "ingest/internal/storage/postgres"
	_ "ingest/internal/storage/sqlite"
)
