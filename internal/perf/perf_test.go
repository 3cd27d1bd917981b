package perf

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chatshape/internal/clock"
	"github.com/roach88/chatshape/internal/failure"
	"github.com/roach88/chatshape/internal/store"
)

func TestCompareQuery_RegressionExample(t *testing.T) {
	q, ok := Lookup("message_history")
	require.True(t, ok)
	pre := &QueryResult{ID: q.ID, Expectation: q.Expect, ExecutionTimeMs: 120, Analysis: Analysis{HasSort: true}}
	post := &QueryResult{ID: q.ID, Expectation: q.Expect, ExecutionTimeMs: 45, Analysis: Analysis{
		UsesIndex:  true,
		IndexNames: []string{q.Expect.Index},
	}}

	c := CompareQuery(pre, post)
	assert.InDelta(t, 62.5, c.TimeReductionPct, 1e-9)
	assert.Equal(t, -75.0, c.DeltaMs)
	assert.True(t, c.SortEliminated)
	assert.True(t, c.IndexAdopted)
	assert.Equal(t, StatusImproved, c.Status)
	assert.Empty(t, c.Mitigations)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, StatusImproved, Classify(10))
	assert.Equal(t, StatusNoChange, Classify(9.9))
	assert.Equal(t, StatusNoChange, Classify(-9.9))
	assert.Equal(t, StatusDegraded, Classify(-10))
	assert.Equal(t, 0.0, ReductionPct(0, 0))
	assert.Equal(t, -100.0, ReductionPct(0, 5))
}

func TestParsePostgres_Analysis(t *testing.T) {
	raw, err := os.ReadFile(filepath.Join("testdata", "pg_sorted_plan.json"))
	require.NoError(t, err)
	plan, err := ParsePostgres(raw)
	require.NoError(t, err)
	assert.Equal(t, 120.5, plan.ExecutionTimeMs)

	a := Analyze(plan)
	assert.True(t, a.UsesIndex)
	assert.True(t, a.HasSort)
	assert.Equal(t, []string{"idx_messages_conversation"}, a.IndexNames)
	assert.Equal(t, []string{ScanBitmap}, a.ScanTypes)
	require.NotNil(t, a.BufferHitRatio)
	assert.InDelta(t, 0.9, *a.BufferHitRatio, 1e-9)
	require.NotNil(t, a.EstimationAccuracy)
	assert.InDelta(t, 0.812, *a.EstimationAccuracy, 1e-9, "the early-stopped sort under the limit is not drift")

	q, _ := Lookup("message_history")
	verdict, issues := Judge(q, a)
	assert.Equal(t, VerdictFail, verdict)
	codes := []string{}
	for _, is := range issues {
		codes = append(codes, is.Code)
	}
	assert.Equal(t, []string{IssueIndexMissing, IssueSortPresent, IssueScanType}, codes)
}

func TestParsePostgres_RejectsEmpty(t *testing.T) {
	_, err := ParsePostgres([]byte(`[]`))
	assert.Error(t, err)
	_, err = ParsePostgres([]byte(`{`))
	assert.Error(t, err)
}

func TestParseSQLite_Normalizes(t *testing.T) {
	plan := ParseSQLite([]store.SQLitePlanRow{
		{ID: 2, Parent: 0, Detail: "SEARCH m USING COVERING INDEX idx_memberships_user_active (user_id=? AND active=?)"},
		{ID: 7, Parent: 0, Detail: "SEARCH c USING INTEGER PRIMARY KEY (rowid=?)"},
		{ID: 12, Parent: 0, Detail: "USE TEMP B-TREE FOR ORDER BY"},
		{ID: 15, Parent: 0, Detail: "SCAN TABLE users AS u"},
	}, 3.5, 20)

	require.Len(t, plan.Root.Plans, 4)
	assert.Equal(t, ScanIndexOnly, plan.Root.Plans[0].NodeType)
	assert.Equal(t, "m", plan.Root.Plans[0].RelationName)
	assert.Equal(t, "PRIMARY KEY", plan.Root.Plans[1].IndexName)
	assert.Equal(t, "Sort", plan.Root.Plans[2].NodeType)
	assert.Equal(t, ScanSeq, plan.Root.Plans[3].NodeType)
	assert.Equal(t, "u", plan.Root.Plans[3].Alias)

	a := Analyze(plan)
	assert.True(t, a.HasSort)
	assert.True(t, a.HasSeqScan)
	assert.True(t, a.HasIndex("idx_memberships_user_active"))
	assert.Nil(t, a.EstimationAccuracy)
	assert.Nil(t, a.BufferHitRatio)

	q, _ := Lookup("conversation_list_by_user")
	verdict, _ := Judge(q, a)
	assert.Equal(t, VerdictPass, verdict, "sort is allowed for the conversation list")
}

func TestJudge_WarnsOnSecondaryIssues(t *testing.T) {
	q, _ := Lookup("presence_lookup")
	low, drift := 0.5, 0.01
	verdict, issues := Judge(q, Analysis{
		UsesIndex:          true,
		IndexNames:         []string{q.Expect.Index},
		ScanTypes:          []string{ScanIndex},
		BufferHitRatio:     &low,
		EstimationAccuracy: &drift,
	})
	assert.Equal(t, VerdictWarn, verdict)
	assert.Len(t, issues, 2)
}

func TestAnalyze_EstimationAccuracyUsesWorstNode(t *testing.T) {
	plan := &Plan{
		HasEstimates: true,
		Root: PlanNode{
			NodeType: "Limit", PlanRows: 50, ActualRows: 50, ActualLoops: 1,
			Plans: []PlanNode{{
				NodeType: ScanIndex, IndexName: idxMessagesConversationCreated, RelationName: "messages",
				PlanRows: 1, ActualRows: 50, ActualLoops: 1,
			}},
		},
	}
	a := Analyze(plan)
	require.NotNil(t, a.EstimationAccuracy)
	assert.InDelta(t, 0.02, *a.EstimationAccuracy, 1e-9)

	q, _ := Lookup("message_history")
	verdict, issues := Judge(q, a)
	assert.Equal(t, VerdictWarn, verdict)
	require.Len(t, issues, 1)
	assert.Equal(t, IssueEstimateDrift, issues[0].Code)
}

func TestAnalyze_EstimationAccuracySkipsUnexecutedAndEarlyStopped(t *testing.T) {
	plan := &Plan{
		HasEstimates: true,
		Root: PlanNode{
			NodeType: "Limit", PlanRows: 20, ActualRows: 20, ActualLoops: 1,
			Plans: []PlanNode{{
				NodeType: ScanIndex, PlanRows: 5000, ActualRows: 20, ActualLoops: 1,
				Plans: []PlanNode{{NodeType: ScanSeq, PlanRows: 300, ActualRows: 0, ActualLoops: 0}},
			}},
		},
	}
	a := Analyze(plan)
	require.NotNil(t, a.EstimationAccuracy)
	assert.Equal(t, 1.0, *a.EstimationAccuracy)
}

func TestJudge_ScanType(t *testing.T) {
	q, _ := Lookup("message_history")
	base := Analysis{UsesIndex: true, IndexNames: []string{q.Expect.Index}}

	bitmap := base
	bitmap.ScanTypes = []string{ScanBitmap}
	verdict, issues := Judge(q, bitmap)
	assert.Equal(t, VerdictWarn, verdict)
	require.Len(t, issues, 1)
	assert.Equal(t, IssueScanType, issues[0].Code)
	assert.Contains(t, Mitigate(q, IssueScanType).Suggestion, q.Expect.Index)

	indexOnly := base
	indexOnly.ScanTypes = []string{ScanIndexOnly}
	verdict, issues = Judge(q, indexOnly)
	assert.Equal(t, VerdictPass, verdict)
	assert.Empty(t, issues)
}

func TestEstimationAccuracy(t *testing.T) {
	assert.Equal(t, 0.5, EstimationAccuracy(100, 50))
	assert.Equal(t, 0.5, EstimationAccuracy(50, 100))
	assert.Equal(t, 1.0, EstimationAccuracy(0, 0))
	assert.Equal(t, 0.0, EstimationAccuracy(0, 10))
}

func TestMitigate_NamesQueryAndIndex(t *testing.T) {
	q, _ := Lookup("message_history")
	m := Mitigate(q, IssueSortRemains)
	assert.Equal(t, "message_history", m.QueryID)
	assert.Contains(t, m.Suggestion, "ORDER BY direction")
	assert.Contains(t, m.Suggestion, q.Expect.IndexDDL)
}

func suite(timeMs float64, sorted, indexed bool) *BaselineReport {
	r := &BaselineReport{RunID: "run"}
	for _, q := range Catalog() {
		a := Analysis{HasSort: sorted && q.Expect.NoSort}
		if indexed {
			a.UsesIndex = true
			a.IndexNames = []string{q.Expect.Index}
		}
		r.Queries = append(r.Queries, QueryResult{ID: q.ID, Expectation: q.Expect, ExecutionTimeMs: timeMs, Analysis: a})
	}
	return r
}

func TestCompare_Go(t *testing.T) {
	r, err := Compare(suite(100, true, false), suite(40, false, true), time.Now())
	require.NoError(t, err)
	assert.Equal(t, DecisionGo, r.Decision)
	assert.Equal(t, 6, r.Summary.Matched)
	assert.Equal(t, 6, r.Summary.Improved)
	assert.InDelta(t, 60.0, r.Summary.AvgImprovementPct, 1e-9)
	assert.Equal(t, 4, r.Summary.SortEliminationsExpected)
	assert.Equal(t, 1.0, r.Summary.SortEliminationRate)
	assert.Equal(t, 6, r.Summary.IndexesAdopted)
	assert.Empty(t, r.Mitigations)
}

func TestCompare_NoGo(t *testing.T) {
	tests := []struct {
		name   string
		pre    *BaselineReport
		post   *BaselineReport
		reason string
	}{
		{"small improvement", suite(100, true, false), suite(80, false, true), "average improvement"},
		{"sorts remain", suite(100, true, false), suite(40, true, true), "expected sort eliminations"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Compare(tt.pre, tt.post, time.Now())
			require.NoError(t, err)
			assert.Equal(t, DecisionNoGo, r.Decision)
			require.NotEmpty(t, r.Reasons)
			assert.Contains(t, r.Reasons[0], tt.reason)
			assert.NotEmpty(t, r.Mitigations)
		})
	}
}

func TestCompare_TwoDegradedIsNoGo(t *testing.T) {
	pre := suite(100, true, false)
	post := suite(10, false, true)
	post.Queries[0].ExecutionTimeMs = 150
	post.Queries[1].ExecutionTimeMs = 150
	post.Queries = post.Queries[:5]

	r, err := Compare(pre, post, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, r.Summary.Degraded)
	assert.Equal(t, DecisionNoGo, r.Decision)
	assert.Equal(t, []string{"presence_lookup"}, r.Unmatched)
}

func TestBind_FeedConsumesSuccessiveIDs(t *testing.T) {
	q, _ := Lookup("multi_conversation_feed")
	args, values := bind(q, map[ParamKind][]int64{ParamFeed: {7, 3}})
	assert.Equal(t, []int64{7, 3, 3}, values)
	assert.Len(t, args, 3)
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), store.Options{
		Driver:      store.DriverSQLite,
		DSN:         filepath.Join(t.TempDir(), "perf.db"),
		Timeout:     10 * time.Second,
		ReadRetries: 1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seed(t *testing.T, s *store.Store) {
	t.Helper()
	b := &store.Batch{}
	for u := int64(1); u <= 10; u++ {
		b.Users = append(b.Users, store.User{ID: u, Username: "u", Email: "synthetic-x@chatshape.invalid"})
	}
	for c := int64(1); c <= 3; c++ {
		b.Conversations = append(b.Conversations, store.Conversation{ID: c, Type: "GROUP_CHAT", CreatorID: 1, MemberCount: 3})
		for u := int64(1); u <= 3; u++ {
			b.Memberships = append(b.Memberships, store.Membership{ConversationID: c, UserID: u + c - 1, Active: true})
		}
	}
	id := int64(0)
	for c := int64(1); c <= 3; c++ {
		for i := int64(0); i < 300*(4-c); i++ {
			id++
			b.Messages = append(b.Messages, store.Message{ID: id, ConversationID: c, SenderID: c, Body: "x", ContentLength: 1, Type: "TEXT", CreatedAt: i * 1000})
		}
	}
	require.NoError(t, s.WriteBatch(context.Background(), b))
}

func TestResolveParams(t *testing.T) {
	s := openStore(t)
	_, err := ResolveParams(context.Background(), s)
	assert.True(t, failure.Is(err, failure.KindConfiguration))

	seed(t, s)
	params, err := ResolveParams(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, params[ParamConversation])
	assert.Equal(t, []int64{1, 2, 3}, params[ParamFeed])
	assert.Equal(t, []int64{3}, params[ParamUser])
}

func TestCapture_SQLiteIndexRemovesSort(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	seed(t, s)
	clk := clock.NewFixed(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), time.Second)

	pre, err := Capture(ctx, s, CaptureOptions{Phase: PhasePre, Runs: 1, Clock: clk})
	require.NoError(t, err)
	require.Len(t, pre.Queries, 6)
	hist, ok := pre.Query("message_history")
	require.True(t, ok)
	assert.True(t, hist.Analysis.HasSort)
	assert.Equal(t, VerdictFail, hist.Verdict)
	assert.Equal(t, []int64{1}, hist.Params)
	assert.NotEmpty(t, hist.Mitigations)

	require.NoError(t, ApplyIndexes(ctx, s))
	post, err := Capture(ctx, s, CaptureOptions{Phase: PhasePost, Runs: 1, Clock: clk})
	require.NoError(t, err)
	for _, id := range []string{"message_history", "message_history_deep_page"} {
		q, ok := post.Query(id)
		require.True(t, ok)
		assert.False(t, q.Analysis.HasSort, id)
		assert.True(t, q.Analysis.HasIndex(q.Expectation.Index), id)
	}

	cmp, err := Compare(pre, post, clk.Now())
	require.NoError(t, err)
	for _, c := range cmp.Queries {
		if c.ID == "message_history" {
			assert.True(t, c.SortEliminated)
			assert.True(t, c.IndexAdopted)
		}
	}
}

func TestCapture_RejectsUnknownPhase(t *testing.T) {
	_, err := Capture(context.Background(), openStore(t), CaptureOptions{Phase: "during"})
	assert.True(t, failure.Is(err, failure.KindConfiguration))
}
