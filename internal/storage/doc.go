// Package storage is the optional delivery journal: one compact entry per
// notification delivery attempt and per tracker lifecycle change.
//
// Backends:
//   - "file": append-only JSON Lines
//   - "sqlite": SQLite database (modernc.org/sqlite)
package storage
