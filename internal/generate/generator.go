// Package generate produces a synthetic chat dataset from a distribution
// spec.
//
// Every random draw happens on the producing goroutine in one fixed order,
// so a (spec, band, seed) triple always yields the same rows. Only the
// database write of batch N overlaps with construction of batch N+1.
package generate

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/spaolacci/murmur3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/chatshape/internal/artifact"
	"github.com/roach88/chatshape/internal/clock"
	"github.com/roach88/chatshape/internal/dist"
	"github.com/roach88/chatshape/internal/failure"
	"github.com/roach88/chatshape/internal/store"
)

// Work bounds.
const (
	// MaxMessagesPerConversation caps a single conversation's draw.
	MaxMessagesPerConversation = 100_000
	// MaxReceiptMembers caps the non-sender members considered for read
	// receipts on one message. The sampler's read fraction uses the same cap.
	MaxReceiptMembers = store.ReceiptMemberCap
)

// Synthetic identity markers. Loader and fidelity checks treat any email
// without both as real data.
const (
	EmailPrefix = "synthetic-"
	EmailDomain = "chatshape.invalid"
)

// activeMembershipRate is the share of memberships marked active.
const activeMembershipRate = 0.95

const (
	msPerHour = int64(time.Hour / time.Millisecond)
	msPerDay  = 24 * msPerHour
	maxDelay  = 7 * msPerDay
)

// Options configures a Generator.
type Options struct {
	Spec      *artifact.Spec
	Band      Band
	Seed      string
	BatchSize int
	// InFlight is how many filled batches may wait for the writer.
	InFlight int
	Clock    clock.Clock
	Logger   *zap.Logger
}

// Generator builds and writes one dataset. A Generator runs once.
type Generator struct {
	opts     Options
	src      *dist.Source
	filler   string
	convMix  []float64
	mediaMix []float64
	// receiptMix orders the read-delay bands immediate, near-term, delayed.
	receiptMix []float64
	dow        []float64
	peak       [24]bool
	windowMs   int64
	epochMs    int64
	log        *zap.Logger

	nextMessageID    int64
	nextAttachmentID int64
	budget           int64
	digest           murmur3.Hash128
	members          []int64
	scratch          [24]byte
}

// New validates opts and prepares a generator.
func New(opts Options) (*Generator, error) {
	if strings.TrimSpace(opts.Seed) == "" {
		return nil, failure.Configuration("seed must not be empty", opts.Seed)
	}
	if opts.Spec == nil {
		opts.Spec = artifact.DefaultSpec()
	}
	if opts.Band.Users < 2 {
		return nil, failure.Configuration("band needs at least two users", strconv.FormatInt(opts.Band.Users, 10))
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1000
	}
	if opts.InFlight <= 0 {
		opts.InFlight = 1
	}
	if opts.Clock == nil {
		opts.Clock = clock.Wall{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	spec := opts.Spec
	g := &Generator{
		opts:     opts,
		src:      dist.NewSource(opts.Seed),
		filler:   buildFiller(spec.ContentLength.Max),
		convMix:  spec.ConversationWeights(),
		mediaMix: spec.MediaWeights(),
		receiptMix: []float64{
			spec.ReadReceipts.Immediate,
			spec.ReadReceipts.NearTerm,
			spec.ReadReceipts.Delayed,
		},
		dow:      dist.Normalize(spec.DayOfWeekWeights),
		windowMs: int64(max(spec.WindowDays, 1)) * msPerDay,
		epochMs:  spec.Epoch.UnixMilli(),
		log:      opts.Logger.Named("generate"),
		budget:   opts.Band.MessageBudget,
		digest:   murmur3.New128(),
	}
	for _, h := range spec.PeakHours {
		if h >= 0 && h < 24 {
			g.peak[h] = true
		}
	}
	return g, nil
}

// Run generates the dataset into w and returns the run report.
func (g *Generator) Run(ctx context.Context, w BatchWriter) (*Report, error) {
	start := g.opts.Clock.Now()
	g.log.Info("generation started",
		zap.String("band", g.opts.Band.Name),
		zap.Int64("users", g.opts.Band.Users),
		zap.Int64("conversations", g.opts.Band.Conversations),
		zap.Int("batch_size", g.opts.BatchSize),
	)

	p := newPipeline(g.opts.BatchSize, g.opts.InFlight)
	eg, egctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return p.drain(egctx, w) })
	eg.Go(func() error {
		defer close(p.work)
		if err := g.produce(egctx, p); err != nil {
			return err
		}
		return p.flush(egctx)
	})
	if err := eg.Wait(); err != nil {
		if failure.KindOf(err) == "" {
			err = failure.Execution("generation aborted", err)
		}
		g.log.Error("generation failed", zap.Int("batches_written", p.batches), zap.Error(err))
		return nil, err
	}

	report, err := g.report(start, p)
	if err != nil {
		return nil, err
	}
	g.log.Info("generation finished",
		zap.Int64("messages", report.RowCounts["messages"]),
		zap.Int("batches", report.Batches),
		zap.Int64("duration_ms", report.DurationMs),
	)
	return report, nil
}

func (g *Generator) produce(ctx context.Context, p *pipeline) error {
	if err := g.users(ctx, p); err != nil {
		return err
	}
	return g.conversations(ctx, p)
}

func (g *Generator) users(ctx context.Context, p *pipeline) error {
	spec := g.opts.Spec
	created := g.epochMs
	spread := max(g.windowMs/10, 1)
	for id := int64(1); id <= g.opts.Band.Users; id++ {
		b, err := p.batch(ctx)
		if err != nil {
			return err
		}
		length := int(boundedRound(g.src.Normal(spec.UsernameLength.Mean, spec.UsernameLength.StdDev),
			int64(spec.UsernameLength.Min), int64(spec.UsernameLength.Max)))
		b.Users = append(b.Users, store.User{
			ID:             id,
			Username:       username(id, length),
			Email:          EmailPrefix + strconv.FormatInt(id, 10) + "@" + EmailDomain,
			HasAvatar:      g.src.Bernoulli(spec.ProfileCompleteness.HasAvatar),
			HasBio:         g.src.Bernoulli(spec.ProfileCompleteness.HasBio),
			HasDisplayName: g.src.Bernoulli(spec.ProfileCompleteness.HasDisplayName),
			CreatedAt:      created + int64(g.src.Intn(int(spread))),
		})
		if err := p.maybeFlush(ctx); err != nil {
			return err
		}
	}
	return nil
}

// conversations walks every conversation, emitting its row, memberships,
// messages, attachments and receipts before moving on.
func (g *Generator) conversations(ctx context.Context, p *pipeline) error {
	users := g.opts.Band.Users
	// Persistent permutation of user ids; each conversation takes a
	// partial Fisher-Yates prefix of it.
	perm := make([]int32, users)
	for i := range perm {
		perm[i] = int32(i + 1)
	}
	swap := func(i, j int) { perm[i], perm[j] = perm[j], perm[i] }

	convStart := g.epochMs + g.windowMs/10
	convSpread := max(g.windowMs*2/5, 1)
	for id := int64(1); id <= g.opts.Band.Conversations; id++ {
		b, err := p.batch(ctx)
		if err != nil {
			return err
		}
		kind, size := g.conversationSize(int(users))
		g.src.ShufflePrefix(len(perm), size, swap)
		g.members = g.members[:0]
		for _, uid := range perm[:size] {
			g.members = append(g.members, int64(uid))
		}

		created := convStart + int64(g.src.Intn(int(convSpread)))
		b.Conversations = append(b.Conversations, store.Conversation{
			ID:          id,
			Type:        kind,
			CreatorID:   g.members[0],
			MemberCount: size,
			CreatedAt:   created,
		})
		for _, uid := range g.members {
			b.Memberships = append(b.Memberships, store.Membership{
				ConversationID: id,
				UserID:         uid,
				JoinedAt:       created,
				Active:         g.src.Bernoulli(activeMembershipRate),
			})
		}
		if err := p.maybeFlush(ctx); err != nil {
			return err
		}
		if err := g.messages(ctx, p, id, created); err != nil {
			return err
		}
	}
	return nil
}

// conversationSize draws a type and member count, bounded by the user pool.
func (g *Generator) conversationSize(users int) (string, int) {
	spec := g.opts.Spec
	var size int
	switch artifact.ConversationTypes[g.src.Categorical(g.convMix)] {
	case artifact.ConversationGroup:
		sg := spec.SmallGroup
		size = int(boundedRound(float64(sg.Min)+math.Floor(g.src.Exponential(sg.Lambda)), int64(sg.Min), int64(sg.Max)))
	case artifact.ConversationChannel:
		lg := spec.LargeGroup
		size = int(boundedRound(g.src.PowerLaw(float64(lg.Min), float64(lg.Max), lg.Alpha), int64(lg.Min), int64(lg.Max)))
	default:
		size = 2
	}
	size = clampInt(size, 2, users)
	return classify(size), size
}

// classify names a conversation by member count.
func classify(size int) string {
	switch {
	case size >= artifact.LargeGroupMin:
		return artifact.ConversationChannel
	case size >= artifact.SmallGroupMin:
		return artifact.ConversationGroup
	default:
		return artifact.ConversationDirect
	}
}

// messages runs the forward time walk for one conversation. Timestamps
// never decrease because each one is the previous plus a non-negative gap.
func (g *Generator) messages(ctx context.Context, p *pipeline, convID, created int64) error {
	spec := g.opts.Spec
	mpc := spec.MessagesPerConversation
	count := boundedRound(g.src.PowerLaw(float64(mpc.Min), float64(mpc.Max), mpc.Alpha), int64(mpc.Min), int64(mpc.Max))
	count = max(min(count, MaxMessagesPerConversation, g.budget), 0)
	g.budget -= count

	t := created
	for i := int64(0); i < count; i++ {
		b, err := p.batch(ctx)
		if err != nil {
			return err
		}
		t += g.gap(t)
		sender := g.members[g.src.Intn(len(g.members))]
		length := int(boundedRound(g.src.LogNormal(spec.ContentLength.Mu, spec.ContentLength.Sigma), 1, spec.ContentLength.Max))
		kind := artifact.MessageText
		if g.src.Bernoulli(spec.MediaRatio) {
			kind = artifact.MediaTypes[g.src.Categorical(g.mediaMix)]
		}

		g.nextMessageID++
		id := g.nextMessageID
		b.Messages = append(b.Messages, store.Message{
			ID:             id,
			ConversationID: convID,
			SenderID:       sender,
			Body:           g.filler[:length],
			ContentLength:  length,
			Type:           kind,
			CreatedAt:      t,
		})
		g.digestMessage(id, convID, t)

		if kind != artifact.MessageText {
			g.nextAttachmentID++
			as := spec.AttachmentSize
			size := boundedRound(g.src.LogNormal(as.Mu, as.Sigma), 1, as.Max)
			b.Attachments = append(b.Attachments, store.Attachment{
				ID: g.nextAttachmentID, MessageID: id, Type: kind, SizeBytes: size,
			})
		}
		g.receipts(b, id, sender, t)

		if err := p.maybeFlush(ctx); err != nil {
			return err
		}
	}
	return nil
}

// gap draws the inter-arrival gap in milliseconds after time t. The rate
// follows the hour's peak flag and is scaled by the day-of-week weight.
// Weekdays with zero weight carry no traffic and are skipped whole.
func (g *Generator) gap(t int64) int64 {
	start := t + g.idle(t)
	ia := g.opts.Spec.InterArrival
	lambda := ia.TroughLambda
	if g.peak[(start/msPerHour)%24] {
		lambda = ia.PeakLambda
	}
	if w := g.weekdayWeight(start); w > 0 {
		lambda *= w * 7
	}
	end := start + boundedRound(math.Ceil(g.src.Exponential(lambda)*1000), 0, maxDelay)
	return g.skipIdle(start, end) - t
}

// skipIdle moves end out of zero-weight weekdays it fell into after start.
// Time spent in them carries over into the next weekday with traffic.
func (g *Generator) skipIdle(start, end int64) int64 {
	for range 7 {
		idle := g.idle(end)
		if idle == 0 {
			return end
		}
		zeroStart := (end / msPerDay) * msPerDay
		for zeroStart-msPerDay >= start && g.weekdayWeight(zeroStart-msPerDay) == 0 {
			zeroStart -= msPerDay
		}
		start = end + idle
		end = start + (end - zeroStart)
	}
	return end
}

// weekdayWeight is the day-of-week weight at t, or 0 without a vector.
// Unix day 0 is a Thursday, so +4 maps days onto Sunday-first indices.
func (g *Generator) weekdayWeight(t int64) float64 {
	if len(g.dow) != 7 {
		return 0
	}
	return g.dow[((t/msPerDay)+4)%7]
}

// idle returns the distance from t to the start of the next weekday with
// non-zero weight, or 0 when t's own weekday has traffic or none does.
func (g *Generator) idle(t int64) int64 {
	if len(g.dow) != 7 {
		return 0
	}
	day := t / msPerDay
	for k := int64(0); k < 7; k++ {
		if g.dow[(day+k+4)%7] > 0 {
			if k == 0 {
				return 0
			}
			return (day+k)*msPerDay - t
		}
	}
	return 0
}

// receipts draws reads for up to MaxReceiptMembers non-sender members.
func (g *Generator) receipts(b *store.Batch, msgID, sender, sent int64) {
	rr := g.opts.Spec.ReadReceipts
	considered := 0
	for _, uid := range g.members {
		if considered == MaxReceiptMembers {
			break
		}
		if uid == sender {
			continue
		}
		considered++
		if g.src.Bernoulli(rr.NeverRead) {
			continue
		}
		var delay int64
		switch g.src.Categorical(g.receiptMix) {
		case 0:
			delay = int64(g.src.Uniform(0, 60) * 1000)
		case 1:
			s := 60 + g.src.Exponential(1/rr.NearTermMeanSeconds)
			delay = boundedRound(s*1000, 60_000, msPerHour-1)
		default:
			delay = boundedRound(g.src.LogNormal(rr.DelayedMu, rr.DelayedSigma)*1000, msPerHour, maxDelay)
		}
		b.ReadReceipts = append(b.ReadReceipts, store.ReadReceipt{MessageID: msgID, UserID: uid, ReadAt: sent + delay})
	}
}

func (g *Generator) digestMessage(id, convID, created int64) {
	binary.LittleEndian.PutUint64(g.scratch[0:8], uint64(id))
	binary.LittleEndian.PutUint64(g.scratch[8:16], uint64(convID))
	binary.LittleEndian.PutUint64(g.scratch[16:24], uint64(created))
	g.digest.Write(g.scratch[:])
}

func (g *Generator) messageFingerprint() string {
	h1, h2 := g.digest.Sum128()
	return fmt.Sprintf("%016x%016x", h1, h2)
}

const usernameAlphabet = "abcdefghijklmnopqrstuvwxyz"

// username builds a unique lower-case handle of about length characters:
// "u" + base36(id), padded after an underscore.
func username(id int64, length int) string {
	base := "u" + strconv.FormatInt(id, 36)
	if len(base)+1 >= length {
		return base
	}
	var sb strings.Builder
	sb.Grow(length)
	sb.WriteString(base)
	sb.WriteByte('_')
	for i := sb.Len(); i < length; i++ {
		sb.WriteByte(usernameAlphabet[(int(id)+i*7)%len(usernameAlphabet)])
	}
	return sb.String()
}

const fillerWords = "lorem ipsum dolor sit amet consectetur adipiscing elit sed do eiusmod tempor incididunt ut labore et dolore magna aliqua "

// buildFiller returns lower-case text at least n bytes long. Message bodies
// are prefixes of it, so they share one allocation.
func buildFiller(n int64) string {
	if n < 1 {
		n = 1
	}
	reps := int(n)/len(fillerWords) + 1
	return strings.Repeat(fillerWords, reps)
}

// boundedRound rounds x and clamps it to [lo, hi] before converting, so
// infinite or huge draws cannot overflow.
func boundedRound(x float64, lo, hi int64) int64 {
	switch {
	case math.IsNaN(x) || x <= float64(lo):
		return lo
	case x >= float64(hi):
		return hi
	}
	return int64(math.Round(x))
}

func clampInt(x, lo, hi int) int {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
