// Package storage persists posts, channels, users and delivery history.
//
// Drivers:
//   - "sqlite": single-file database (modernc.org/sqlite, no cgo)
//   - "postgres": shared database through a pgx pool
//   - "memory": process-local maps, used by tests and dry runs
package storage
