// Package all wires all built-in storage backends into the storage factory.
//
// This package exists purely for side effects: importing it (even as a blank
// import) causes the init functions of each concrete storage backend to run,
// which in turn register their factories with the storage package.
//
// Importing this package makes the following storage kinds available:
//
//   - "postgres" (staretl/internal/storage/postgres)
//   - "mysql"    (staretl/internal/storage/mysql)
//   - "mssql"    (staretl/internal/storage/mssql)
//   - "sqlite"   (staretl/internal/storage/sqlite)
//   - "memory"   (staretl/internal/storage/memory)
//
// Typical usage (in cmd/etl/main.go or a similar wiring layer):
//
//	import _ "staretl/internal/storage/all" // enable all built-in backends
//
//	repo, err := storage.New(ctx, storage.Config{Kind: cfg.Destination.Kind, DSN: cfg.Destination.DSN})
//
// A binary that needs only a subset of backends can import those packages
// directly instead.
package all

import (
	_ "staretl/internal/storage/memory"
	_ "staretl/internal/storage/mssql"
	_ "staretl/internal/storage/mysql"
	_ "staretl/internal/storage/postgres"
	_ "staretl/internal/storage/sqlite"
)
