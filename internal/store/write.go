package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// Entity tables in dependency order (parents first).
var Tables = []string{"users", "conversations", "memberships", "messages", "read_receipts", "attachments"}

// User is one users row.
type User struct {
	ID             int64
	Username       string
	Email          string
	HasAvatar      bool
	HasBio         bool
	HasDisplayName bool
	CreatedAt      int64
}

// Conversation is one conversations row.
type Conversation struct {
	ID          int64
	Type        string
	CreatorID   int64
	MemberCount int
	CreatedAt   int64
}

// Membership is one memberships row.
type Membership struct {
	ConversationID int64
	UserID         int64
	JoinedAt       int64
	Active         bool
}

// Message is one messages row.
type Message struct {
	ID             int64
	ConversationID int64
	SenderID       int64
	Body           string
	ContentLength  int
	Type           string
	CreatedAt      int64
}

// ReadReceipt is one read_receipts row.
type ReadReceipt struct {
	MessageID int64
	UserID    int64
	ReadAt    int64
}

// Attachment is one attachments row.
type Attachment struct {
	ID        int64
	MessageID int64
	Type      string
	SizeBytes int64
}

// Batch is a set of rows written in one transaction. Slices are reused
// between batches: Reset truncates without releasing capacity.
type Batch struct {
	Seq           int
	Users         []User
	Conversations []Conversation
	Memberships   []Membership
	Messages      []Message
	ReadReceipts  []ReadReceipt
	Attachments   []Attachment
}

// Reset empties the batch and keeps its backing arrays.
func (b *Batch) Reset() {
	b.Seq = 0
	b.Users = b.Users[:0]
	b.Conversations = b.Conversations[:0]
	b.Memberships = b.Memberships[:0]
	b.Messages = b.Messages[:0]
	b.ReadReceipts = b.ReadReceipts[:0]
	b.Attachments = b.Attachments[:0]
}

// Len returns the total number of rows in the batch.
func (b *Batch) Len() int {
	return len(b.Users) + len(b.Conversations) + len(b.Memberships) +
		len(b.Messages) + len(b.ReadReceipts) + len(b.Attachments)
}

// maxParams keeps one INSERT under SQLite's bound-parameter limit.
const maxParams = 30000

// WriteBatch inserts every row of b in one transaction, parents first.
// Never retried: a failed batch is surfaced as EXECUTION_ERROR.
func (s *Store) WriteBatch(ctx context.Context, b *Batch) error {
	return s.write(ctx, fmt.Sprintf("write batch %d", b.Seq), func(ctx context.Context) error {
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		if err := writeRows(ctx, tx, b); err != nil {
			tx.Rollback()
			return err
		}
		return tx.Commit()
	})
}

func writeRows(ctx context.Context, tx *sqlx.Tx, b *Batch) error {
	if err := insert(ctx, tx, "users",
		[]string{"id", "username", "email", "has_avatar", "has_bio", "has_display_name", "created_at"},
		len(b.Users), func(i int) []any {
			u := &b.Users[i]
			return []any{u.ID, u.Username, u.Email, b2i(u.HasAvatar), b2i(u.HasBio), b2i(u.HasDisplayName), u.CreatedAt}
		}); err != nil {
		return err
	}
	if err := insert(ctx, tx, "conversations",
		[]string{"id", "type", "creator_id", "member_count", "created_at"},
		len(b.Conversations), func(i int) []any {
			c := &b.Conversations[i]
			return []any{c.ID, c.Type, c.CreatorID, c.MemberCount, c.CreatedAt}
		}); err != nil {
		return err
	}
	if err := insert(ctx, tx, "memberships",
		[]string{"conversation_id", "user_id", "joined_at", "active"},
		len(b.Memberships), func(i int) []any {
			m := &b.Memberships[i]
			return []any{m.ConversationID, m.UserID, m.JoinedAt, b2i(m.Active)}
		}); err != nil {
		return err
	}
	if err := insert(ctx, tx, "messages",
		[]string{"id", "conversation_id", "sender_id", "body", "content_length", "type", "created_at"},
		len(b.Messages), func(i int) []any {
			m := &b.Messages[i]
			return []any{m.ID, m.ConversationID, m.SenderID, m.Body, m.ContentLength, m.Type, m.CreatedAt}
		}); err != nil {
		return err
	}
	if err := insert(ctx, tx, "read_receipts",
		[]string{"message_id", "user_id", "read_at"},
		len(b.ReadReceipts), func(i int) []any {
			r := &b.ReadReceipts[i]
			return []any{r.MessageID, r.UserID, r.ReadAt}
		}); err != nil {
		return err
	}
	return insert(ctx, tx, "attachments",
		[]string{"id", "message_id", "type", "size_bytes"},
		len(b.Attachments), func(i int) []any {
			a := &b.Attachments[i]
			return []any{a.ID, a.MessageID, a.Type, a.SizeBytes}
		})
}

// insert writes n rows as multi-row INSERTs chunked under maxParams.
func insert(ctx context.Context, tx *sqlx.Tx, table string, cols []string, n int, row func(i int) []any) error {
	if n == 0 {
		return nil
	}
	perStmt := maxParams / len(cols)
	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?,", len(cols)), ",") + ")"
	head := fmt.Sprintf("INSERT INTO %s (%s) VALUES ", table, strings.Join(cols, ", "))

	args := make([]any, 0, min(n, perStmt)*len(cols))
	var sb strings.Builder
	for start := 0; start < n; start += perStmt {
		end := min(start+perStmt, n)
		sb.Reset()
		sb.WriteString(head)
		args = args[:0]
		for i := start; i < end; i++ {
			if i > start {
				sb.WriteByte(',')
			}
			sb.WriteString(placeholder)
			args = append(args, row(i)...)
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(sb.String()), args...); err != nil {
			return fmt.Errorf("insert %s: %w", table, err)
		}
	}
	return nil
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

// ExecScript runs a multi-statement script in one transaction.
// Used to apply teardown scripts and index changes.
func (s *Store) ExecScript(ctx context.Context, script string) error {
	return s.write(ctx, "exec script", func(ctx context.Context) error {
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		for _, stmt := range SplitStatements(script) {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				tx.Rollback()
				return fmt.Errorf("%q: %w", stmt, err)
			}
		}
		return tx.Commit()
	})
}

// SplitStatements splits a script on semicolons at line ends and drops
// comment-only lines. It does not understand quoted semicolons; scripts
// generated by this tool never contain them.
func SplitStatements(script string) []string {
	var (
		stmts []string
		cur   strings.Builder
	)
	for _, line := range strings.Split(script, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		cur.WriteString(trimmed)
		if strings.HasSuffix(trimmed, ";") {
			stmts = append(stmts, strings.TrimSuffix(cur.String(), ";"))
			cur.Reset()
			continue
		}
		cur.WriteByte(' ')
	}
	if rest := strings.TrimSpace(cur.String()); rest != "" {
		stmts = append(stmts, rest)
	}
	return stmts
}
