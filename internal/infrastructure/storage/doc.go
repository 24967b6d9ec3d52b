// Package storage provides the durable key-value slot behind the buffer store.
//
// Backends:
//   - SQLite: one `kv` table in a WAL-mode database (modernc.org/sqlite, no cgo)
//   - Memory: process-local map, for tests and STORAGE_DRIVER=memory
//
// Both overwrite a key with a single write, so a reader never sees a
// partially written record.
package storage
