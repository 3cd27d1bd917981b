package store

import (
	"context"
	"fmt"
	"math"
	"slices"
)

// Measure names a numeric per-record quantity the sampler summarizes.
type Measure int

const (
	MeasureUsernameLength Measure = iota
	MeasureMemberCount
	MeasureGroupMemberCount
	MeasureChannelMemberCount
	MeasureMessagesPerConversation
	MeasureContentLength
	MeasureInterArrival
	MeasureAttachmentSize
)

// measureSQL returns a subquery yielding one column v, with exactly one
// placeholder: the window start in unix milliseconds.
func measureSQL(m Measure) (string, error) {
	switch m {
	case MeasureUsernameLength:
		return `SELECT LENGTH(username) AS v FROM users WHERE created_at >= ?`, nil
	case MeasureMemberCount:
		return `SELECT member_count AS v FROM conversations WHERE created_at >= ?`, nil
	case MeasureGroupMemberCount:
		return `SELECT member_count AS v FROM conversations WHERE created_at >= ? AND type = 'GROUP_CHAT'`, nil
	case MeasureChannelMemberCount:
		return `SELECT member_count AS v FROM conversations WHERE created_at >= ? AND type = 'CHANNEL'`, nil
	case MeasureMessagesPerConversation:
		return `SELECT COUNT(*) AS v FROM messages WHERE created_at >= ? GROUP BY conversation_id`, nil
	case MeasureContentLength:
		return `SELECT content_length AS v FROM messages WHERE created_at >= ?`, nil
	case MeasureInterArrival:
		return `SELECT (created_at - prev) / 1000 AS v FROM (
			SELECT created_at, LAG(created_at) OVER (PARTITION BY conversation_id ORDER BY created_at, id) AS prev
			FROM messages WHERE created_at >= ?
		) w WHERE prev IS NOT NULL`, nil
	case MeasureAttachmentSize:
		return `SELECT a.size_bytes AS v FROM attachments a JOIN messages m ON m.id = a.message_id WHERE m.created_at >= ?`, nil
	default:
		return "", fmt.Errorf("unknown measure %d", m)
	}
}

// ValueStats are exact aggregates over a measure.
type ValueStats struct {
	Count int64   `db:"n"`
	Mean  float64 `db:"mean"`
	Min   float64 `db:"lo"`
	Max   float64 `db:"hi"`
}

// BucketCount is one fixed-width histogram bucket.
type BucketCount struct {
	Start int64 `db:"b"`
	Count int64 `db:"n"`
}

// MeasureStats returns count, mean, min and max of a measure.
func (s *Store) MeasureStats(ctx context.Context, m Measure, since int64) (ValueStats, error) {
	sub, err := measureSQL(m)
	if err != nil {
		return ValueStats{}, err
	}
	q := s.db.Rebind(`SELECT COUNT(*) AS n, COALESCE(AVG(v), 0) AS mean, COALESCE(MIN(v), 0) AS lo, COALESCE(MAX(v), 0) AS hi FROM (` + sub + `) t`)
	var st ValueStats
	err = s.readOnly(ctx, "measure stats", func(ctx context.Context) error {
		return s.db.GetContext(ctx, &st, q, since)
	})
	return st, err
}

// MeasureHistogram buckets a measure at a fixed width in SQL.
func (s *Store) MeasureHistogram(ctx context.Context, m Measure, since, width int64) ([]BucketCount, error) {
	if width <= 0 {
		return nil, fmt.Errorf("histogram width must be positive, got %d", width)
	}
	sub, err := measureSQL(m)
	if err != nil {
		return nil, err
	}
	q := s.db.Rebind(fmt.Sprintf(
		`SELECT (CAST(v AS BIGINT) / %d) * %d AS b, COUNT(*) AS n FROM (%s) t GROUP BY b ORDER BY b`,
		width, width, sub))
	var out []BucketCount
	err = s.readOnly(ctx, "measure histogram", func(ctx context.Context) error {
		out = out[:0]
		return s.db.SelectContext(ctx, &out, q, since)
	})
	return out, err
}

// MeasureSample returns an ascending sample of at most limit values taken
// at a fixed stride through the sorted measure, so every quantile of the
// sample tracks the population's. total is the measure's row count.
func (s *Store) MeasureSample(ctx context.Context, m Measure, since int64, total int64, limit int) ([]float64, error) {
	if total <= 0 || limit <= 0 {
		return nil, nil
	}
	sub, err := measureSQL(m)
	if err != nil {
		return nil, err
	}
	stride := int64(math.Ceil(float64(total) / float64(limit)))
	if stride < 1 {
		stride = 1
	}
	q := s.db.Rebind(`SELECT v FROM (
		SELECT v, ROW_NUMBER() OVER (ORDER BY v) AS rn FROM (` + sub + `) t
	) r WHERE (rn - 1) % ? = 0 ORDER BY v`)
	var out []float64
	err = s.readOnly(ctx, "measure sample", func(ctx context.Context) error {
		out = out[:0]
		return s.db.SelectContext(ctx, &out, q, since, stride)
	})
	if err != nil {
		return nil, err
	}
	// Window ordering and driver numeric conversions can disagree on ties.
	slices.Sort(out)
	return out, nil
}

// ProfileCounts are users with each optional profile field set.
type ProfileCounts struct {
	Total          int64 `db:"total"`
	HasAvatar      int64 `db:"avatar"`
	HasBio         int64 `db:"bio"`
	HasDisplayName int64 `db:"display"`
}

// UserProfileCounts counts users created since the window start.
func (s *Store) UserProfileCounts(ctx context.Context, since int64) (ProfileCounts, error) {
	q := s.db.Rebind(`SELECT COUNT(*) AS total,
		COALESCE(SUM(has_avatar), 0) AS avatar,
		COALESCE(SUM(has_bio), 0) AS bio,
		COALESCE(SUM(has_display_name), 0) AS display
		FROM users WHERE created_at >= ?`)
	var pc ProfileCounts
	err := s.readOnly(ctx, "user profile counts", func(ctx context.Context) error {
		return s.db.GetContext(ctx, &pc, q, since)
	})
	return pc, err
}

type keyCount struct {
	Key   string `db:"k"`
	Count int64  `db:"n"`
}

// Type-bearing tables for TypeCounts.
const (
	TypesConversations = "conversations"
	TypesMessages      = "messages"
	TypesAttachments   = "attachments"
)

// TypeCounts groups a type-bearing table by its type column.
func (s *Store) TypeCounts(ctx context.Context, table string, since int64) (map[string]int64, error) {
	var q string
	switch table {
	case TypesConversations, TypesMessages:
		q = fmt.Sprintf(`SELECT type AS k, COUNT(*) AS n FROM %s WHERE created_at >= ? GROUP BY type`, table)
	case TypesAttachments:
		q = `SELECT a.type AS k, COUNT(*) AS n FROM attachments a JOIN messages m ON m.id = a.message_id
			WHERE m.created_at >= ? GROUP BY a.type`
	default:
		return nil, fmt.Errorf("table %q has no type column", table)
	}
	q = s.db.Rebind(q)
	var rows []keyCount
	err := s.readOnly(ctx, "type counts", func(ctx context.Context) error {
		rows = rows[:0]
		return s.db.SelectContext(ctx, &rows, q, since)
	})
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Key] = r.Count
	}
	return out, nil
}

type slotCount struct {
	Slot  int64 `db:"k"`
	Count int64 `db:"n"`
}

// HourCounts counts messages per UTC hour of day.
func (s *Store) HourCounts(ctx context.Context, since int64) ([24]int64, error) {
	var out [24]int64
	err := s.slotCounts(ctx, "hour counts",
		`SELECT (created_at / 3600000) % 24 AS k, COUNT(*) AS n FROM messages WHERE created_at >= ? GROUP BY k`,
		since, out[:])
	return out, err
}

// WeekdayCounts counts messages per UTC day of week, 0 = Sunday.
// Day 0 of the unix epoch was a Thursday, hence the +4.
func (s *Store) WeekdayCounts(ctx context.Context, since int64) ([7]int64, error) {
	var out [7]int64
	err := s.slotCounts(ctx, "weekday counts",
		`SELECT ((created_at / 86400000) + 4) % 7 AS k, COUNT(*) AS n FROM messages WHERE created_at >= ? GROUP BY k`,
		since, out[:])
	return out, err
}

func (s *Store) slotCounts(ctx context.Context, op, q string, since int64, out []int64) error {
	q = s.db.Rebind(q)
	var rows []slotCount
	err := s.readOnly(ctx, op, func(ctx context.Context) error {
		rows = rows[:0]
		return s.db.SelectContext(ctx, &rows, q, since)
	})
	if err != nil {
		return err
	}
	for _, r := range rows {
		if r.Slot >= 0 && int(r.Slot) < len(out) {
			out[r.Slot] += r.Count
		}
	}
	return nil
}

// TopConversationMessages sums the message counts of the k busiest
// conversations.
func (s *Store) TopConversationMessages(ctx context.Context, since int64, k int64) (int64, error) {
	return s.QueryInt64(ctx, "top conversation messages", `SELECT COALESCE(SUM(n), 0) FROM (
		SELECT COUNT(*) AS n FROM messages WHERE created_at >= ?
		GROUP BY conversation_id ORDER BY n DESC LIMIT ?
	) t`, since, k)
}

// ConversationsAbove counts conversations with more than floor messages.
func (s *Store) ConversationsAbove(ctx context.Context, since int64, floor int64) (int64, error) {
	return s.QueryInt64(ctx, "conversations above floor", `SELECT COUNT(*) FROM (
		SELECT conversation_id FROM messages WHERE created_at >= ?
		GROUP BY conversation_id HAVING COUNT(*) > ?
	) t`, since, floor)
}

// ReceiptStats summarizes read receipts for messages in the window.
type ReceiptStats struct {
	Total int64
	// Eligible is the number of (message, non-sender member) pairs, at most
	// ReceiptMemberCap members per message.
	Eligible int64
	// Bands counts receipts by read delay: "0-60", "60-3600", "3600-604800"
	// seconds. Delays beyond a week fall in the last band.
	Bands map[string]int64
}

// ReceiptMemberCap is the most non-sender members that can hold a receipt
// for one message. Eligible pairs are counted under the same cap.
const ReceiptMemberCap = 50

// ReadReceiptStats aggregates receipts against their messages.
func (s *Store) ReadReceiptStats(ctx context.Context, since int64) (ReceiptStats, error) {
	st := ReceiptStats{Bands: map[string]int64{}}
	eligible, err := s.QueryInt64(ctx, "receipt eligible pairs", `SELECT COALESCE(SUM(
			CASE WHEN c.member_count - 1 > ? THEN ? ELSE c.member_count - 1 END), 0)
		FROM messages m JOIN conversations c ON c.id = m.conversation_id WHERE m.created_at >= ?`,
		ReceiptMemberCap, ReceiptMemberCap, since)
	if err != nil {
		return st, err
	}
	st.Eligible = eligible

	q := s.db.Rebind(`SELECT CASE
			WHEN r.read_at - m.created_at < 60000 THEN '0-60'
			WHEN r.read_at - m.created_at < 3600000 THEN '60-3600'
			ELSE '3600-604800' END AS k,
		COUNT(*) AS n
		FROM read_receipts r JOIN messages m ON m.id = r.message_id
		WHERE m.created_at >= ? GROUP BY k`)
	var rows []keyCount
	err = s.readOnly(ctx, "receipt delay bands", func(ctx context.Context) error {
		rows = rows[:0]
		return s.db.SelectContext(ctx, &rows, q, since)
	})
	if err != nil {
		return st, err
	}
	for _, r := range rows {
		st.Bands[r.Key] = r.Count
		st.Total += r.Count
	}
	return st, nil
}

// EachEmail streams lower-cased emails of users in the window to fn.
// fn may be called again from the start if a transient failure forces a
// retry; reset must clear any state fn accumulated.
func (s *Store) EachEmail(ctx context.Context, since int64, reset func(), fn func(email string)) error {
	q := s.db.Rebind(`SELECT LOWER(email) FROM users WHERE created_at >= ?`)
	return s.readOnly(ctx, "stream emails", func(ctx context.Context) error {
		reset()
		rows, err := s.db.QueryxContext(ctx, q, since)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var email string
			if err := rows.Scan(&email); err != nil {
				return err
			}
			fn(email)
		}
		return rows.Err()
	})
}

// NonSyntheticEmails counts users whose email lacks the synthetic marker.
func (s *Store) NonSyntheticEmails(ctx context.Context, prefix, domain string) (int64, error) {
	return s.QueryInt64(ctx, "non-synthetic emails",
		`SELECT COUNT(*) FROM users WHERE email NOT LIKE ?`, prefix+"%@"+domain)
}

// OutOfOrderMessages counts messages created before their predecessor in
// id order within the same conversation.
func (s *Store) OutOfOrderMessages(ctx context.Context) (int64, error) {
	return s.QueryInt64(ctx, "out-of-order messages", `SELECT COUNT(*) FROM (
		SELECT created_at, LAG(created_at) OVER (PARTITION BY conversation_id ORDER BY id) AS prev
		FROM messages
	) t WHERE prev IS NOT NULL AND created_at < prev`)
}

// CountRows counts every row of an entity table.
func (s *Store) CountRows(ctx context.Context, table string) (int64, error) {
	if !slices.Contains(Tables, table) {
		return 0, fmt.Errorf("unknown table %q", table)
	}
	return s.QueryInt64(ctx, "count "+table, "SELECT COUNT(*) FROM "+table)
}

// RowCounts counts every entity table.
func (s *Store) RowCounts(ctx context.Context) (map[string]int64, error) {
	out := make(map[string]int64, len(Tables))
	for _, t := range Tables {
		n, err := s.CountRows(ctx, t)
		if err != nil {
			return nil, err
		}
		out[t] = n
	}
	return out, nil
}

// QueryInt64 runs a read-only single-value query. Placeholders use '?'
// and are rebound for the dialect.
func (s *Store) QueryInt64(ctx context.Context, op, query string, args ...any) (int64, error) {
	q := s.db.Rebind(query)
	var v int64
	err := s.readOnly(ctx, op, func(ctx context.Context) error {
		return s.db.GetContext(ctx, &v, q, args...)
	})
	return v, err
}

// QueryInt64s runs a read-only single-column query.
func (s *Store) QueryInt64s(ctx context.Context, op, query string, args ...any) ([]int64, error) {
	q := s.db.Rebind(query)
	var out []int64
	err := s.readOnly(ctx, op, func(ctx context.Context) error {
		out = out[:0]
		return s.db.SelectContext(ctx, &out, q, args...)
	})
	return out, err
}
