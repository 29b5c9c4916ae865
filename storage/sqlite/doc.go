// Package sqlite implements storage.AnalysisRepository on SQLite.
//
// The store uses the pure-Go modernc.org/sqlite driver in WAL mode with a
// single connection, so transactions serialize inside the process and
// admission checks cannot race. Schema migrations are embedded and applied on
// Open.
//
// Nested structures (processing options, metadata, analysis result) are JSON
// columns. The audit trail and the external service call log are append-only
// tables keyed by analysis id.
package sqlite
