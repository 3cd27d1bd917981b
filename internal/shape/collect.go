// Package shape extracts aggregate-only ShapeMetrics from a store.
//
// Collect gathers the aggregates; Sampler wraps it with the anonymization
// precondition and the pre-write PII scan. The fidelity validator reuses
// Collect directly to measure a generated dataset the same way production
// was measured.
package shape

import (
	"context"
	"math"
	"time"

	"github.com/roach88/chatshape/internal/artifact"
	"github.com/roach88/chatshape/internal/dist"
	"github.com/roach88/chatshape/internal/privacy"
	"github.com/roach88/chatshape/internal/store"
)

// Bucket widths.
const (
	WidthUsernameLength = 2
	WidthCount          = 5
	WidthContentLength  = 50
	WidthInterArrival   = 60
)

// HeavyRoomFraction is the share of busiest conversations whose traffic is
// reported as heavy_room_share.
const HeavyRoomFraction = 0.02

// DefaultSampleCap bounds the raw values pulled per percentile ladder.
const DefaultSampleCap = 100000

// Aggregator is the read-only store surface Collect needs.
type Aggregator interface {
	MeasureStats(ctx context.Context, m store.Measure, since int64) (store.ValueStats, error)
	MeasureHistogram(ctx context.Context, m store.Measure, since, width int64) ([]store.BucketCount, error)
	MeasureSample(ctx context.Context, m store.Measure, since, total int64, limit int) ([]float64, error)
	UserProfileCounts(ctx context.Context, since int64) (store.ProfileCounts, error)
	TypeCounts(ctx context.Context, table string, since int64) (map[string]int64, error)
	HourCounts(ctx context.Context, since int64) ([24]int64, error)
	WeekdayCounts(ctx context.Context, since int64) ([7]int64, error)
	TopConversationMessages(ctx context.Context, since, k int64) (int64, error)
	ReadReceiptStats(ctx context.Context, since int64) (store.ReceiptStats, error)
	EachEmail(ctx context.Context, since int64, reset func(), fn func(email string)) error
}

// Options controls one collection.
type Options struct {
	// WindowDays limits every aggregate to records created in the last
	// WindowDays before Now. Zero covers the whole dataset.
	WindowDays int
	Now        time.Time
	SampleCap  int
	// Anonymizer enables the duplicate-identity count. Nil skips it.
	Anonymizer *privacy.Anonymizer
}

// WindowStart returns the inclusive window start in unix milliseconds.
func (o Options) WindowStart() int64 {
	if o.WindowDays <= 0 {
		return 0
	}
	return o.Now.Add(-time.Duration(o.WindowDays) * 24 * time.Hour).UnixMilli()
}

type collector struct {
	agg       Aggregator
	since     int64
	sampleCap int
}

// Collect runs every aggregate and assembles ShapeMetrics.
func Collect(ctx context.Context, agg Aggregator, opts Options) (*artifact.ShapeMetrics, error) {
	if opts.SampleCap <= 0 {
		opts.SampleCap = DefaultSampleCap
	}
	c := &collector{agg: agg, since: opts.WindowStart(), sampleCap: opts.SampleCap}
	m := &artifact.ShapeMetrics{
		Version:      artifact.Version,
		ExtractedAt:  opts.Now.UTC(),
		WindowDays:   opts.WindowDays,
		PrivacyLevel: artifact.PrivacyLevel,
	}

	steps := []func(context.Context, *artifact.ShapeMetrics) error{
		c.users,
		c.conversations,
		c.messages,
		c.readReceipts,
		c.attachments,
	}
	for _, step := range steps {
		if err := step(ctx, m); err != nil {
			return nil, err
		}
	}
	if opts.Anonymizer != nil {
		dups, err := duplicateIdentities(ctx, agg, c.since, opts.Anonymizer)
		if err != nil {
			return nil, err
		}
		m.Users.DuplicateIdentityCount = dups
	}
	return m, nil
}

func (c *collector) users(ctx context.Context, m *artifact.ShapeMetrics) error {
	pc, err := c.agg.UserProfileCounts(ctx, c.since)
	if err != nil {
		return err
	}
	m.Users.TotalCount = pc.Total
	m.Users.ProfileCompleteness = artifact.ProfileCompleteness{
		HasAvatar:      ratio(pc.HasAvatar, pc.Total),
		HasBio:         ratio(pc.HasBio, pc.Total),
		HasDisplayName: ratio(pc.HasDisplayName, pc.Total),
	}
	m.Users.UsernameLength, err = c.distribution(ctx, store.MeasureUsernameLength, WidthUsernameLength)
	return err
}

func (c *collector) conversations(ctx context.Context, m *artifact.ShapeMetrics) error {
	types, err := c.agg.TypeCounts(ctx, store.TypesConversations, c.since)
	if err != nil {
		return err
	}
	m.Conversations.TypeDistribution = types
	m.Conversations.TotalCount = sum(types)
	if m.Conversations.MemberCount, err = c.distribution(ctx, store.MeasureMemberCount, WidthCount); err != nil {
		return err
	}
	if m.Conversations.GroupMemberCount, err = c.distribution(ctx, store.MeasureGroupMemberCount, WidthCount); err != nil {
		return err
	}
	m.Conversations.ChannelMemberCount, err = c.distribution(ctx, store.MeasureChannelMemberCount, WidthCount)
	return err
}

func (c *collector) messages(ctx context.Context, m *artifact.ShapeMetrics) error {
	msg := &m.Messages
	types, err := c.agg.TypeCounts(ctx, store.TypesMessages, c.since)
	if err != nil {
		return err
	}
	msg.TypeDistribution = types
	msg.TotalCount = sum(types)
	msg.MediaRatio = ratio(msg.TotalCount-types[artifact.MessageText], msg.TotalCount)

	if msg.PerConversation, err = c.distribution(ctx, store.MeasureMessagesPerConversation, WidthCount); err != nil {
		return err
	}
	if msg.ContentLength, err = c.distribution(ctx, store.MeasureContentLength, WidthContentLength); err != nil {
		return err
	}
	if msg.InterArrivalSeconds, err = c.distribution(ctx, store.MeasureInterArrival, WidthInterArrival); err != nil {
		return err
	}

	hours, err := c.agg.HourCounts(ctx, c.since)
	if err != nil {
		return err
	}
	msg.HourlyDistribution = fractions(hours[:])
	days, err := c.agg.WeekdayCounts(ctx, c.since)
	if err != nil {
		return err
	}
	msg.DayOfWeekDistribution = fractions(days[:])

	if active := msg.PerConversation.Count; active > 0 && msg.TotalCount > 0 {
		k := int64(math.Ceil(HeavyRoomFraction * float64(active)))
		top, err := c.agg.TopConversationMessages(ctx, c.since, max(k, 1))
		if err != nil {
			return err
		}
		msg.HeavyRoomShare = ratio(top, msg.TotalCount)
	}
	return nil
}

func (c *collector) readReceipts(ctx context.Context, m *artifact.ShapeMetrics) error {
	st, err := c.agg.ReadReceiptStats(ctx, c.since)
	if err != nil {
		return err
	}
	m.ReadReceipts = artifact.ReadReceiptShape{
		TotalCount:   st.Total,
		ReadFraction: ratio(st.Total, st.Eligible),
		DelayBands:   st.Bands,
	}
	return nil
}

func (c *collector) attachments(ctx context.Context, m *artifact.ShapeMetrics) error {
	types, err := c.agg.TypeCounts(ctx, store.TypesAttachments, c.since)
	if err != nil {
		return err
	}
	m.Attachments.TypeDistribution = types
	m.Attachments.TotalCount = sum(types)
	m.Attachments.SizeBytes, err = c.distribution(ctx, store.MeasureAttachmentSize, 0)
	return err
}

// distribution summarizes one measure: exact count/mean/min/max, a SQL
// histogram when width > 0, and percentiles from a strided sorted sample.
func (c *collector) distribution(ctx context.Context, m store.Measure, width int64) (artifact.Distribution, error) {
	st, err := c.agg.MeasureStats(ctx, m, c.since)
	if err != nil || st.Count == 0 {
		return artifact.Distribution{}, err
	}
	d := artifact.Distribution{Count: st.Count, Mean: st.Mean}
	if width > 0 {
		buckets, err := c.agg.MeasureHistogram(ctx, m, c.since, width)
		if err != nil {
			return d, err
		}
		d.Histogram = make(map[string]int64, len(buckets))
		for _, b := range buckets {
			d.Histogram[dist.BucketKey(b.Start, b.Start+width)] = b.Count
		}
	}
	sample, err := c.agg.MeasureSample(ctx, m, c.since, st.Count, c.sampleCap)
	if err != nil {
		return d, err
	}
	d.Percentiles = artifact.Percentiles{
		Min: st.Min,
		P50: dist.Percentile(sample, 0.50),
		P75: dist.Percentile(sample, 0.75),
		P90: dist.Percentile(sample, 0.90),
		P95: dist.Percentile(sample, 0.95),
		P99: dist.Percentile(sample, 0.99),
		Max: st.Max,
	}
	return d, nil
}

// duplicateIdentities counts users whose anonymized email token was already
// seen. Tokens stay in this function.
func duplicateIdentities(ctx context.Context, agg Aggregator, since int64, anon *privacy.Anonymizer) (int64, error) {
	seen := make(map[string]struct{})
	var dups int64
	err := agg.EachEmail(ctx, since,
		func() {
			clear(seen)
			dups = 0
		},
		func(email string) {
			tok := anon.Token(email)
			if _, ok := seen[tok]; ok {
				dups++
				return
			}
			seen[tok] = struct{}{}
		})
	return dups, err
}

func ratio(num, den int64) float64 {
	if den <= 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func sum(m map[string]int64) int64 {
	var total int64
	for _, v := range m {
		total += v
	}
	return total
}

// fractions converts counts to shares of their total; all zero stays zero.
func fractions(counts []int64) []float64 {
	out := make([]float64, len(counts))
	var total int64
	for _, c := range counts {
		total += c
	}
	if total == 0 {
		return out
	}
	for i, c := range counts {
		out[i] = float64(c) / float64(total)
	}
	return out
}
