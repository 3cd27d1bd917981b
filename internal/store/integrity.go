package store

import "context"

// Orphan check names, one per anti-join.
const (
	OrphanConversationCreator = "conversations_missing_creator"
	OrphanMessageConversation = "messages_missing_conversation"
	OrphanMessageSender       = "messages_missing_sender"
	OrphanMembershipUser      = "memberships_missing_user"
	OrphanMembershipConv      = "memberships_missing_conversation"
	OrphanReceiptMessage      = "read_receipts_missing_message"
	OrphanReceiptUser         = "read_receipts_missing_user"
	OrphanAttachmentMessage   = "attachments_missing_message"
)

type orphanCheck struct {
	name  string
	query string
}

// orphanChecks are evaluated in this order.
var orphanChecks = []orphanCheck{
	{OrphanConversationCreator, `SELECT COUNT(*) FROM conversations c LEFT JOIN users u ON u.id = c.creator_id WHERE u.id IS NULL`},
	{OrphanMessageConversation, `SELECT COUNT(*) FROM messages m LEFT JOIN conversations c ON c.id = m.conversation_id WHERE c.id IS NULL`},
	{OrphanMessageSender, `SELECT COUNT(*) FROM messages m LEFT JOIN users u ON u.id = m.sender_id WHERE u.id IS NULL`},
	{OrphanMembershipUser, `SELECT COUNT(*) FROM memberships mb LEFT JOIN users u ON u.id = mb.user_id WHERE u.id IS NULL`},
	{OrphanMembershipConv, `SELECT COUNT(*) FROM memberships mb LEFT JOIN conversations c ON c.id = mb.conversation_id WHERE c.id IS NULL`},
	{OrphanReceiptMessage, `SELECT COUNT(*) FROM read_receipts r LEFT JOIN messages m ON m.id = r.message_id WHERE m.id IS NULL`},
	{OrphanReceiptUser, `SELECT COUNT(*) FROM read_receipts r LEFT JOIN users u ON u.id = r.user_id WHERE u.id IS NULL`},
	{OrphanAttachmentMessage, `SELECT COUNT(*) FROM attachments a LEFT JOIN messages m ON m.id = a.message_id WHERE m.id IS NULL`},
}

// OrphanCheckNames lists the orphan checks in evaluation order.
func OrphanCheckNames() []string {
	names := make([]string, len(orphanChecks))
	for i, c := range orphanChecks {
		names[i] = c.name
	}
	return names
}

// OrphanCounts runs every anti-join and returns the count per check.
func (s *Store) OrphanCounts(ctx context.Context) (map[string]int64, error) {
	out := make(map[string]int64, len(orphanChecks))
	for _, c := range orphanChecks {
		n, err := s.QueryInt64(ctx, c.name, c.query)
		if err != nil {
			return nil, err
		}
		out[c.name] = n
	}
	return out, nil
}
