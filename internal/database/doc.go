// Package database provides SQLite-based storage for extraction history.
//
// HistoryDB stores:
//   - one row per extraction run, with its outcome, timing, row count, a
//     SHA3-256 hash of the raw clipboard text or export file, and the
//     parsed result as JSON
//   - one row per captcha recognition attempt, for auditing solve rates
//
// The database is a single file opened through modernc.org/sqlite, so no
// cgo toolchain is needed on the Windows machines the client runs on.
package database
