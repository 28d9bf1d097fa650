// Package storage holds users, todos and e-mail verification codes behind
// small repository interfaces.
//
// Drivers:
//   - memory: process-lifetime maps (default)
//   - file:   memory state + JSON Lines journal, compacted into a snapshot
//   - sqlite: SQLite database file (modernc.org/sqlite, no cgo)
package storage
