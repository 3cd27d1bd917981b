package generate

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chatshape/internal/artifact"
	"github.com/roach88/chatshape/internal/clock"
	"github.com/roach88/chatshape/internal/failure"
	"github.com/roach88/chatshape/internal/store"
)

var testBand = Band{Name: "test", Users: 60, Conversations: 80, MessageBudget: 3000}

// memWriter records what a run would have written.
type memWriter struct {
	rows         map[string]int64
	lastByConv   map[int64]int64
	outOfOrder   int
	typeMismatch int
	maxBatch     int
	fail         error
}

func newMemWriter() *memWriter {
	return &memWriter{rows: map[string]int64{}, lastByConv: map[int64]int64{}}
}

func (w *memWriter) WriteBatch(_ context.Context, b *store.Batch) error {
	if w.fail != nil {
		return w.fail
	}
	w.maxBatch = max(w.maxBatch, b.Len())
	w.rows["users"] += int64(len(b.Users))
	w.rows["conversations"] += int64(len(b.Conversations))
	w.rows["messages"] += int64(len(b.Messages))
	for _, c := range b.Conversations {
		if classify(c.MemberCount) != c.Type {
			w.typeMismatch++
		}
	}
	for _, m := range b.Messages {
		if last, ok := w.lastByConv[m.ConversationID]; ok && m.CreatedAt < last {
			w.outOfOrder++
		}
		w.lastByConv[m.ConversationID] = m.CreatedAt
	}
	return nil
}

func run(t *testing.T, seed string, batchSize int, w BatchWriter) (*Report, error) {
	t.Helper()
	g, err := New(Options{
		Band:      testBand,
		Seed:      seed,
		BatchSize: batchSize,
		InFlight:  2,
		Clock:     clock.NewFixed(time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), time.Millisecond),
	})
	require.NoError(t, err)
	return g.Run(context.Background(), w)
}

func TestParseBand(t *testing.T) {
	b, err := ParseBand(" Staging ")
	require.NoError(t, err)
	assert.Equal(t, BandStaging, b)

	_, err = ParseBand("huge")
	require.Error(t, err)
	assert.True(t, failure.Is(err, failure.KindConfiguration))
	assert.Equal(t, []string{"dev", "perf", "smoke", "staging"}, BandNames())
}

func TestNew_RejectsEmptySeed(t *testing.T) {
	_, err := New(Options{Band: testBand, Seed: "  "})
	assert.True(t, failure.Is(err, failure.KindConfiguration))
}

func TestRun_Deterministic(t *testing.T) {
	a, err := run(t, "seed-a", 100, newMemWriter())
	require.NoError(t, err)
	b, err := run(t, "seed-a", 100, newMemWriter())
	require.NoError(t, err)

	assert.Equal(t, a.RowCounts, b.RowCounts)
	assert.Equal(t, a.MessageFingerprint, b.MessageFingerprint)
	assert.Equal(t, a.SpecFingerprint, b.SpecFingerprint)
	assert.NotEqual(t, a.RunID, b.RunID)

	c, err := run(t, "seed-b", 100, newMemWriter())
	require.NoError(t, err)
	assert.NotEqual(t, a.MessageFingerprint, c.MessageFingerprint)
}

type timestampWriter struct {
	byConv map[int64][]int64
}

func (w *timestampWriter) WriteBatch(_ context.Context, b *store.Batch) error {
	for _, m := range b.Messages {
		w.byConv[m.ConversationID] = append(w.byConv[m.ConversationID], m.CreatedAt)
	}
	return nil
}

func TestRun_ZeroWeekdayWeightsAreSkipped(t *testing.T) {
	spec := artifact.DefaultSpec()
	third := 1.0 / 3
	// Only Wednesday, Thursday and Friday carry traffic.
	spec.DayOfWeekWeights = []float64{0, 0, 0, third, third, third, 0}
	spec.MessagesPerConversation = artifact.PowerLawParams{Alpha: 2, Min: 200, Max: 201}

	g, err := New(Options{
		Spec:      spec,
		Band:      Band{Name: "test", Users: 20, Conversations: 5, MessageBudget: 1000},
		Seed:      "weekdays",
		BatchSize: 100,
		Clock:     clock.NewFixed(time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), time.Millisecond),
	})
	require.NoError(t, err)
	w := &timestampWriter{byConv: map[int64][]int64{}}
	_, err = g.Run(context.Background(), w)
	require.NoError(t, err)
	require.NotEmpty(t, w.byConv)

	allowed := map[time.Weekday]bool{time.Wednesday: true, time.Thursday: true, time.Friday: true}
	for conv, ts := range w.byConv {
		stalls := 0
		for i, at := range ts {
			day := time.UnixMilli(at).UTC().Weekday()
			assert.True(t, allowed[day], "conversation %d message %d on %s", conv, i, day)
			if i > 0 && at == ts[i-1] {
				stalls++
			}
		}
		assert.Zero(t, stalls, "conversation %d repeats timestamps", conv)
	}
}

func TestRun_BatchSizeDoesNotChangeData(t *testing.T) {
	small, err := run(t, "seed-a", 7, newMemWriter())
	require.NoError(t, err)
	large, err := run(t, "seed-a", 5000, newMemWriter())
	require.NoError(t, err)

	assert.Equal(t, small.RowCounts, large.RowCounts)
	assert.Equal(t, small.MessageFingerprint, large.MessageFingerprint)
	assert.Greater(t, small.Batches, large.Batches)
}

func TestRun_ShapeInvariants(t *testing.T) {
	w := newMemWriter()
	report, err := run(t, "invariants", 200, w)
	require.NoError(t, err)

	assert.Equal(t, testBand.Users, report.RowCounts["users"])
	assert.Equal(t, testBand.Conversations, report.RowCounts["conversations"])
	assert.LessOrEqual(t, report.RowCounts["messages"], testBand.MessageBudget)
	assert.Equal(t, report.RowCounts["messages"], w.rows["messages"])
	assert.Zero(t, w.outOfOrder)
	assert.Zero(t, w.typeMismatch)
	assert.Len(t, report.HotPathQueries, 6)
}

func TestRun_WriterFailureIsExecutionError(t *testing.T) {
	w := newMemWriter()
	w.fail = failure.Execution("write batch 1", errors.New("disk full"))
	_, err := run(t, "seed", 10, w)
	require.Error(t, err)
	assert.True(t, failure.Is(err, failure.KindExecution))
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	g, err := New(Options{Band: testBand, Seed: "seed", BatchSize: 10})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = g.Run(ctx, newMemWriter())
	require.Error(t, err)
	assert.True(t, failure.Is(err, failure.KindExecution))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_SQLiteDatasetIsSound(t *testing.T) {
	ctx := context.Background()
	s, err := store.Open(ctx, store.Options{
		Driver:      store.DriverSQLite,
		DSN:         filepath.Join(t.TempDir(), "gen.db"),
		Timeout:     30 * time.Second,
		ReadRetries: 1,
	})
	require.NoError(t, err)
	defer s.Close()

	report, err := run(t, "sqlite", 500, s)
	require.NoError(t, err)

	counts, err := s.RowCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, report.RowCounts, counts)

	orphans, err := s.OrphanCounts(ctx)
	require.NoError(t, err)
	for name, n := range orphans {
		assert.Zero(t, n, name)
	}
	outOfOrder, err := s.OutOfOrderMessages(ctx)
	require.NoError(t, err)
	assert.Zero(t, outOfOrder)
	foreign, err := s.NonSyntheticEmails(ctx, EmailPrefix, EmailDomain)
	require.NoError(t, err)
	assert.Zero(t, foreign)
}

func TestRun_SameSeedSameDigest(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 10
	properties := gopter.NewProperties(parameters)

	properties.Property("equal seeds give equal counts and message digests", prop.ForAll(
		func(seed string) bool {
			a, errA := run(t, seed, 64, newMemWriter())
			b, errB := run(t, seed, 64, newMemWriter())
			if errA != nil || errB != nil {
				return false
			}
			return a.MessageFingerprint == b.MessageFingerprint &&
				a.RowCounts["messages"] == b.RowCounts["messages"]
		},
		gen.Identifier(),
	))
	properties.TestingRun(t)
}

func TestUsername(t *testing.T) {
	assert.Equal(t, "u1", username(1, 2))
	assert.Len(t, username(1, 10), 10)
	assert.Equal(t, "uzz", username(36*36-1, 3))
	assert.NotEqual(t, username(46, 8), username(1, 8))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, artifact.ConversationDirect, classify(2))
	assert.Equal(t, artifact.ConversationGroup, classify(3))
	assert.Equal(t, artifact.ConversationGroup, classify(20))
	assert.Equal(t, artifact.ConversationChannel, classify(21))
}

func TestBoundedRound(t *testing.T) {
	assert.Equal(t, int64(5), boundedRound(4.6, 1, 10))
	assert.Equal(t, int64(10), boundedRound(1e300, 1, 10))
	assert.Equal(t, int64(1), boundedRound(-3, 1, 10))
}
