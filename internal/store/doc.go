// Package store is the relational store behind every pipeline stage.
//
// Two dialects are supported through sqlx:
//   - sqlite3 (mattn/go-sqlite3): embedded, used for dev runs and tests
//   - postgres (lib/pq): the production-like target for staging/perf bands
//
// Schema is owned by versioned golang-migrate migrations embedded per
// dialect. All timestamps are BIGINT unix milliseconds so hour-of-day and
// day-of-week reduce to integer arithmetic in both dialects.
//
// # Operational rules
//
//   - Every call runs under the configured statement timeout; a deadline
//     surfaces as EXECUTION_ERROR.
//   - Read-only queries are retried with exponential backoff up to the
//     configured retry count.
//   - Bulk writes are never retried: a retried batch could duplicate rows.
//   - Aggregate queries never return identifiers to the caller; raw values
//     leave the store only as sorted numeric samples for percentiles.
package store
