// Package perf verifies that an index optimization changes what the query
// planner does, not only how long queries take.
//
// A fixed catalog of hot-path queries is captured as a baseline before and
// after an optimization. Each capture records the normalized plan tree and
// its analysis; Compare matches two baselines by query id and renders a
// suite-level GO/NO-GO with per-query mitigations.
package perf

// ParamKind says how a catalog placeholder is resolved from the dataset.
type ParamKind string

const (
	// ParamConversation is the busiest conversation by message count.
	ParamConversation ParamKind = "conversation"
	// ParamUser is the user with the most memberships.
	ParamUser ParamKind = "user"
	// ParamFeed is one of the three busiest conversations, in rank order.
	ParamFeed ParamKind = "feed"
)

// Scan families.
const (
	ScanSeq       = "Seq Scan"
	ScanIndex     = "Index Scan"
	ScanIndexOnly = "Index Only Scan"
	ScanBitmap    = "Bitmap Index Scan"
)

// Expectation states what the optimized plan must look like.
type Expectation struct {
	Index string `json:"index"`
	// IndexDDL creates Index; quoted in mitigations.
	IndexDDL string `json:"index_ddl"`
	NoSort   bool   `json:"no_sort"`
	ScanType string `json:"scan_type"`
}

// Query is one catalog entry. SQL uses '?' placeholders.
type Query struct {
	ID          string      `json:"id"`
	Description string      `json:"description"`
	SQL         string      `json:"sql"`
	Params      []ParamKind `json:"params"`
	Expect      Expectation `json:"expectation"`
}

// Index DDL shared by catalog entries.
const (
	idxMessagesConversationCreated = "idx_messages_conversation_created"
	idxMembershipsUserActive       = "idx_memberships_user_active"
	idxMembershipsConversation     = "idx_memberships_conversation_active"

	ddlMessagesConversationCreated = "CREATE INDEX IF NOT EXISTS idx_messages_conversation_created ON messages (conversation_id, created_at DESC, id DESC)"
	ddlMembershipsUserActive       = "CREATE INDEX IF NOT EXISTS idx_memberships_user_active ON memberships (user_id, active)"
	ddlMembershipsConversation     = "CREATE INDEX IF NOT EXISTS idx_memberships_conversation_active ON memberships (conversation_id, active, user_id)"
)

var catalog = []Query{
	{
		ID:          "message_history",
		Description: "latest page of one conversation's messages",
		SQL: `SELECT id, sender_id, body, created_at FROM messages
WHERE conversation_id = ? ORDER BY created_at DESC, id DESC LIMIT 50`,
		Params: []ParamKind{ParamConversation},
		Expect: Expectation{Index: idxMessagesConversationCreated, IndexDDL: ddlMessagesConversationCreated, NoSort: true, ScanType: ScanIndex},
	},
	{
		ID:          "message_history_deep_page",
		Description: "deep offset page of one conversation's messages",
		SQL: `SELECT id, sender_id, body, created_at FROM messages
WHERE conversation_id = ? ORDER BY created_at DESC, id DESC LIMIT 50 OFFSET 500`,
		Params: []ParamKind{ParamConversation},
		Expect: Expectation{Index: idxMessagesConversationCreated, IndexDDL: ddlMessagesConversationCreated, NoSort: true, ScanType: ScanIndex},
	},
	{
		ID:          "conversation_list_by_user",
		Description: "a user's active conversations, newest first",
		SQL: `SELECT c.id, c.type, c.created_at FROM memberships m
JOIN conversations c ON c.id = m.conversation_id
WHERE m.user_id = ? AND m.active = 1 ORDER BY c.created_at DESC LIMIT 20`,
		Params: []ParamKind{ParamUser},
		Expect: Expectation{Index: idxMembershipsUserActive, IndexDDL: ddlMembershipsUserActive, ScanType: ScanIndex},
	},
	{
		ID:          "unread_count",
		Description: "messages a user has not read across active conversations",
		SQL: `SELECT COUNT(*) FROM memberships mb
JOIN messages m ON m.conversation_id = mb.conversation_id
WHERE mb.user_id = ? AND mb.active = 1 AND m.sender_id <> mb.user_id
AND NOT EXISTS (SELECT 1 FROM read_receipts r WHERE r.message_id = m.id AND r.user_id = mb.user_id)`,
		Params: []ParamKind{ParamUser},
		Expect: Expectation{Index: idxMembershipsUserActive, IndexDDL: ddlMembershipsUserActive, NoSort: true, ScanType: ScanIndex},
	},
	{
		ID:          "multi_conversation_feed",
		Description: "merged recent messages of three conversations",
		SQL: `SELECT id, conversation_id, created_at FROM messages
WHERE conversation_id IN (?, ?, ?) ORDER BY created_at DESC LIMIT 50`,
		Params: []ParamKind{ParamFeed, ParamFeed, ParamFeed},
		Expect: Expectation{Index: idxMessagesConversationCreated, IndexDDL: ddlMessagesConversationCreated, ScanType: ScanIndex},
	},
	{
		ID:          "presence_lookup",
		Description: "active members of one conversation",
		SQL: `SELECT u.id, u.username FROM memberships m
JOIN users u ON u.id = m.user_id
WHERE m.conversation_id = ? AND m.active = 1`,
		Params: []ParamKind{ParamConversation},
		Expect: Expectation{Index: idxMembershipsConversation, IndexDDL: ddlMembershipsConversation, NoSort: true, ScanType: ScanIndex},
	},
}

// Catalog returns a copy of the query catalog in fixed order.
func Catalog() []Query {
	out := make([]Query, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup finds a catalog entry by id.
func Lookup(id string) (Query, bool) {
	for _, q := range catalog {
		if q.ID == id {
			return q, true
		}
	}
	return Query{}, false
}

// IndexDDL returns the distinct index statements the catalog expects, in
// catalog order.
func IndexDDL() []string {
	seen := make(map[string]bool)
	var out []string
	for _, q := range catalog {
		if !seen[q.Expect.IndexDDL] {
			seen[q.Expect.IndexDDL] = true
			out = append(out, q.Expect.IndexDDL)
		}
	}
	return out
}
