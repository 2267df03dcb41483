// Package all wires all built-in storage backends into the storage factory.
//
// Importing it for side effects runs each backend's init, which registers
// its factory and dialect with the storage package:
//
//   - "postgres" (behavioretl/internal/storage/postgres)
//   - "mssql"    (behavioretl/internal/storage/mssql)
//   - "sqlite"   (behavioretl/internal/storage/sqlite)
//
// Typical usage:
//
//	import _ "behavioretl/internal/storage/all"
//
//	st, err := storage.New(ctx, storage.Config{Kind: "postgres", DSN: dsn})
//
// A binary that needs only a subset of backends can import those packages
// directly instead.
package all

import (
	_ "behavioretl/internal/storage/mssql"
	_ "behavioretl/internal/storage/postgres"
	_ "behavioretl/internal/storage/sqlite"
)
