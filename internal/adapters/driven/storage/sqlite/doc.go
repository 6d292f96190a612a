// Package sqlite provides the SQLite-based persistence of index generations
// and case runs.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation. It implements two store interfaces
// through a single database connection:
//
//   - BundleStore: Index generations (document ids, evidence snapshot, vectors, lexical index)
//   - RunStore: Case run summaries
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql files.
//
// # Atomicity
//
// A bundle is written in one transaction that also moves the current marker,
// so readers see either the previous generation or the new one, never a mix.
//
// # Data Location
//
// By default, the database is stored at ~/.clinical-rag/data/copilot.db
package sqlite
