package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

// createTestStore creates a migrated temp-file sqlite store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(context.Background(), Options{
		Driver:      DriverSQLite,
		DSN:         path,
		Timeout:     10 * time.Second,
		ReadRetries: 1,
	})
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// hourMs is one hour in milliseconds.
const hourMs = int64(3600000)

// smallDataset returns two users, one direct conversation with three
// messages at 09:00, 09:01 and 10:00 on 2025-01-01 (a Wednesday), one
// receipt and one attachment.
func smallDataset() *Batch {
	base := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC).UnixMilli()
	return &Batch{
		Users: []User{
			{ID: 1, Username: "u_abcd", Email: "synthetic-1@chatshape.invalid", HasAvatar: true, CreatedAt: base},
			{ID: 2, Username: "u_abcdefgh", Email: "synthetic-2@chatshape.invalid", HasBio: true, CreatedAt: base},
		},
		Conversations: []Conversation{
			{ID: 1, Type: "DIRECT_MESSAGE", CreatorID: 1, MemberCount: 2, CreatedAt: base},
		},
		Memberships: []Membership{
			{ConversationID: 1, UserID: 1, JoinedAt: base, Active: true},
			{ConversationID: 1, UserID: 2, JoinedAt: base, Active: true},
		},
		Messages: []Message{
			{ID: 1, ConversationID: 1, SenderID: 1, Body: "xxxx", ContentLength: 4, Type: "TEXT", CreatedAt: base},
			{ID: 2, ConversationID: 1, SenderID: 2, Body: "xx", ContentLength: 2, Type: "IMAGE", CreatedAt: base + 60000},
			{ID: 3, ConversationID: 1, SenderID: 1, Body: "xxxxxx", ContentLength: 6, Type: "TEXT", CreatedAt: base + hourMs},
		},
		ReadReceipts: []ReadReceipt{
			{MessageID: 1, UserID: 2, ReadAt: base + 30000},
		},
		Attachments: []Attachment{
			{ID: 1, MessageID: 2, Type: "IMAGE", SizeBytes: 2048},
		},
	}
}
