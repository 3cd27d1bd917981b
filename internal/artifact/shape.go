package artifact

import "time"

// Version is the schema version stamped on every contract.
const Version = 1

// PrivacyLevel is the fixed privacy tag carried by ShapeMetrics.
const PrivacyLevel = "aggregate-only"

// Conversation types.
const (
	ConversationDirect  = "DIRECT_MESSAGE" // one-to-one, exactly 2 members
	ConversationGroup   = "GROUP_CHAT"     // small group, 3..SmallGroupMax members
	ConversationChannel = "CHANNEL"        // large group, LargeGroupMin+ members
)

// Group size boundaries.
const (
	SmallGroupMin = 3
	SmallGroupMax = 20
	LargeGroupMin = 21
)

// ConversationTypes lists conversation types in their canonical draw order.
var ConversationTypes = []string{ConversationDirect, ConversationGroup, ConversationChannel}

// Message types.
const (
	MessageText  = "TEXT"
	MessageImage = "IMAGE"
	MessageFile  = "FILE"
	MessageAudio = "AUDIO"
	MessageVideo = "VIDEO"
)

// MessageTypes lists every message type, text first.
var MessageTypes = []string{MessageText, MessageImage, MessageFile, MessageAudio, MessageVideo}

// MediaTypes lists the media message types in their canonical draw order.
var MediaTypes = []string{MessageImage, MessageFile, MessageAudio, MessageVideo}

// Read-delay band keys.
const (
	DelayImmediate = "0-60"
	DelayNearTerm  = "60-3600"
	DelayLong      = "3600-604800"
)

// Percentiles is the percentile ladder of a sample.
type Percentiles struct {
	Min float64 `json:"min"`
	P50 float64 `json:"p50"`
	P75 float64 `json:"p75"`
	P90 float64 `json:"p90"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
	Max float64 `json:"max"`
}

// Distribution summarizes one numeric measure.
type Distribution struct {
	// Count is the number of records the aggregate was computed over.
	Count       int64            `json:"count"`
	Mean        float64          `json:"mean"`
	Histogram   map[string]int64 `json:"histogram,omitempty"`
	Percentiles Percentiles      `json:"percentiles"`
}

// ProfileCompleteness holds the fraction of users with each optional field.
type ProfileCompleteness struct {
	HasAvatar      float64 `json:"has_avatar"`
	HasBio         float64 `json:"has_bio"`
	HasDisplayName float64 `json:"has_display_name"`
}

// UserShape aggregates the users table.
type UserShape struct {
	TotalCount             int64               `json:"total_count"`
	UsernameLength         Distribution        `json:"username_length"`
	ProfileCompleteness    ProfileCompleteness `json:"profile_completeness"`
	DuplicateIdentityCount int64               `json:"duplicate_identity_count"`
}

// ConversationShape aggregates the conversations table.
type ConversationShape struct {
	TotalCount       int64            `json:"total_count"`
	TypeDistribution map[string]int64 `json:"type_distribution"`
	MemberCount      Distribution     `json:"member_count"`
	// Member counts restricted to small groups and to channels.
	GroupMemberCount   Distribution `json:"group_member_count"`
	ChannelMemberCount Distribution `json:"channel_member_count"`
}

// MessageShape aggregates the messages table.
type MessageShape struct {
	TotalCount            int64            `json:"total_count"`
	PerConversation       Distribution     `json:"per_conversation"`
	ContentLength         Distribution     `json:"content_length"`
	TypeDistribution      map[string]int64 `json:"type_distribution"`
	MediaRatio            float64          `json:"media_ratio"`
	HourlyDistribution    []float64        `json:"hourly_distribution"`
	DayOfWeekDistribution []float64        `json:"day_of_week_distribution"`
	InterArrivalSeconds   Distribution     `json:"inter_arrival_seconds"`
	// HeavyRoomShare is the fraction of all messages that belong to the
	// busiest 2% of conversations.
	HeavyRoomShare float64 `json:"heavy_room_share"`
}

// ReadReceiptShape aggregates the read_receipts table.
type ReadReceiptShape struct {
	TotalCount int64 `json:"total_count"`
	// ReadFraction is receipts over (message, non-sender member) pairs.
	ReadFraction float64          `json:"read_fraction"`
	DelayBands   map[string]int64 `json:"delay_bands"`
}

// AttachmentShape aggregates the attachments table.
type AttachmentShape struct {
	TotalCount       int64            `json:"total_count"`
	TypeDistribution map[string]int64 `json:"type_distribution"`
	SizeBytes        Distribution     `json:"size_bytes"`
}

// ShapeMetrics is the aggregate-only statistical summary of a dataset.
// It never contains identifiers, emails or message bodies.
type ShapeMetrics struct {
	Version       int               `json:"version"`
	ExtractedAt   time.Time         `json:"extracted_at"`
	WindowDays    int               `json:"window_days"`
	PrivacyLevel  string            `json:"privacy_level"`
	Users         UserShape         `json:"users"`
	Conversations ConversationShape `json:"conversations"`
	Messages      MessageShape      `json:"messages"`
	ReadReceipts  ReadReceiptShape  `json:"read_receipts"`
	Attachments   AttachmentShape   `json:"attachments"`
}

// Expired reports whether the metrics are older than the retention period.
func (m *ShapeMetrics) Expired(now time.Time, retention time.Duration) bool {
	return now.Sub(m.ExtractedAt) > retention
}
