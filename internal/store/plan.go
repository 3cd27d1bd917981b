package store

import (
	"context"
	"time"
)

// SQLitePlanRow is one row of EXPLAIN QUERY PLAN output.
type SQLitePlanRow struct {
	ID     int64  `db:"id"`
	Parent int64  `db:"parent"`
	Detail string `db:"detail"`
}

// PlanCapture is the raw plan of one query in the store's own format.
// Exactly one of JSON (postgres) or Rows (sqlite3) is set.
type PlanCapture struct {
	Driver string
	// JSON is EXPLAIN (ANALYZE, BUFFERS, FORMAT JSON) output.
	JSON []byte
	// Rows is EXPLAIN QUERY PLAN output; ElapsedMs is the measured time of
	// a separate execution since sqlite has no EXPLAIN ANALYZE.
	Rows      []SQLitePlanRow
	ElapsedMs float64
	// RowsReturned counts rows drained during the timed sqlite execution.
	RowsReturned int64
}

// Explain captures the execution plan of a read-only query. Placeholders
// use '?' and are rebound for the dialect.
func (s *Store) Explain(ctx context.Context, query string, args ...any) (*PlanCapture, error) {
	q := s.db.Rebind(query)
	pc := &PlanCapture{Driver: s.driver}
	if s.driver == DriverPostgres {
		err := s.readOnly(ctx, "explain analyze", func(ctx context.Context) error {
			var raw string
			if err := s.db.GetContext(ctx, &raw, "EXPLAIN (ANALYZE, BUFFERS, FORMAT JSON) "+q, args...); err != nil {
				return err
			}
			pc.JSON = []byte(raw)
			return nil
		})
		return pc, err
	}

	err := s.readOnly(ctx, "explain query plan", func(ctx context.Context) error {
		rows, err := s.db.QueryxContext(ctx, "EXPLAIN QUERY PLAN "+q, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		pc.Rows = pc.Rows[:0]
		for rows.Next() {
			var (
				r       SQLitePlanRow
				notused int64
			)
			if err := rows.Scan(&r.ID, &r.Parent, &notused, &r.Detail); err != nil {
				return err
			}
			pc.Rows = append(pc.Rows, r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	err = s.readOnly(ctx, "timed execution", func(ctx context.Context) error {
		start := time.Now()
		rows, err := s.db.QueryContext(ctx, q, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		var n int64
		for rows.Next() {
			n++
		}
		if err := rows.Err(); err != nil {
			return err
		}
		pc.ElapsedMs = float64(time.Since(start).Microseconds()) / 1000
		pc.RowsReturned = n
		return nil
	})
	return pc, err
}
