package perf

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/chatshape/internal/artifact"
)

// Comparison statuses.
const (
	StatusImproved = "IMPROVED"
	StatusDegraded = "DEGRADED"
	StatusNoChange = "NO_CHANGE"
)

// Decisions.
const (
	DecisionGo   = "GO"
	DecisionNoGo = "NO-GO"
)

// Suite gates.
const (
	// ChangeThresholdPct separates IMPROVED/DEGRADED from NO_CHANGE.
	ChangeThresholdPct = 10.0
	// MinAvgImprovementPct is the least average time reduction for GO.
	MinAvgImprovementPct = 30.0
	// MaxDegraded is the most degraded queries tolerated.
	MaxDegraded = 1
	// MinSortEliminationRate is the least share of expected sort
	// eliminations that must happen.
	MinSortEliminationRate = 0.60
)

// QueryComparison is one query matched across two baselines.
type QueryComparison struct {
	ID               string  `json:"id"`
	PreMs            float64 `json:"pre_execution_time_ms"`
	PostMs           float64 `json:"post_execution_time_ms"`
	DeltaMs          float64 `json:"delta_ms"`
	TimeReductionPct float64 `json:"time_reduction_pct"`
	PreHasSort       bool    `json:"pre_has_sort"`
	PostHasSort      bool    `json:"post_has_sort"`
	SortEliminated   bool    `json:"sort_eliminated"`
	IndexAdopted     bool    `json:"index_adopted"`
	// SortEliminationExpected is set when the pre plan sorted and the
	// expectation forbids a sort.
	SortEliminationExpected bool         `json:"sort_elimination_expected"`
	Status                  string       `json:"status"`
	PostVerdict             string       `json:"post_verdict"`
	Mitigations             []Mitigation `json:"mitigations"`
}

// ComparisonSummary aggregates the suite.
type ComparisonSummary struct {
	Matched                  int     `json:"matched"`
	Improved                 int     `json:"improved"`
	Degraded                 int     `json:"degraded"`
	NoChange                 int     `json:"no_change"`
	AvgImprovementPct        float64 `json:"avg_improvement_pct"`
	SortEliminationsExpected int     `json:"sort_eliminations_expected"`
	SortEliminations         int     `json:"sort_eliminations"`
	SortEliminationRate      float64 `json:"sort_elimination_rate"`
	IndexesAdopted           int     `json:"indexes_adopted"`
}

// ComparisonReport is the pre/post verdict.
type ComparisonReport struct {
	Version     int               `json:"version"`
	RunID       string            `json:"run_id"`
	CreatedAt   time.Time         `json:"created_at"`
	PreRunID    string            `json:"pre_run_id"`
	PostRunID   string            `json:"post_run_id"`
	Queries     []QueryComparison `json:"queries"`
	Unmatched   []string          `json:"unmatched"`
	Summary     ComparisonSummary `json:"summary"`
	Decision    string            `json:"decision"`
	Reasons     []string          `json:"reasons"`
	Mitigations []Mitigation      `json:"mitigations"`
}

// Classify maps a percent time reduction to a status.
func Classify(reductionPct float64) string {
	switch {
	case reductionPct >= ChangeThresholdPct:
		return StatusImproved
	case reductionPct <= -ChangeThresholdPct:
		return StatusDegraded
	}
	return StatusNoChange
}

// ReductionPct is the percent drop from pre to post. A zero pre time
// reports 0 when post is also zero and -100 otherwise.
func ReductionPct(pre, post float64) float64 {
	if pre <= 0 {
		if post <= 0 {
			return 0
		}
		return -100
	}
	return (pre - post) / pre * 100
}

// CompareQuery compares one query's pre and post captures.
func CompareQuery(pre, post *QueryResult) QueryComparison {
	expect := post.Expectation
	reduction := ReductionPct(pre.ExecutionTimeMs, post.ExecutionTimeMs)
	c := QueryComparison{
		ID:                      post.ID,
		PreMs:                   pre.ExecutionTimeMs,
		PostMs:                  post.ExecutionTimeMs,
		DeltaMs:                 post.ExecutionTimeMs - pre.ExecutionTimeMs,
		TimeReductionPct:        reduction,
		PreHasSort:              pre.Analysis.HasSort,
		PostHasSort:             post.Analysis.HasSort,
		SortEliminated:          pre.Analysis.HasSort && !post.Analysis.HasSort,
		IndexAdopted:            !pre.Analysis.HasIndex(expect.Index) && post.Analysis.HasIndex(expect.Index),
		SortEliminationExpected: expect.NoSort && pre.Analysis.HasSort,
		Status:                  Classify(reduction),
		PostVerdict:             post.Verdict,
	}

	q, ok := Lookup(post.ID)
	if !ok {
		q = Query{ID: post.ID, Expect: expect}
	}
	var codes []string
	if c.SortEliminationExpected && !c.SortEliminated {
		codes = append(codes, IssueSortRemains)
	}
	if !post.Analysis.HasIndex(expect.Index) {
		codes = append(codes, IssueIndexNotInPost)
	}
	switch c.Status {
	case StatusDegraded:
		codes = append(codes, IssueDegraded)
	case StatusNoChange:
		codes = append(codes, IssueNoImprovement)
	}
	for _, code := range codes {
		c.Mitigations = append(c.Mitigations, Mitigate(q, code))
	}
	return c
}

// Compare matches two baselines by query id and decides GO/NO-GO.
func Compare(pre, post *BaselineReport, now time.Time) (*ComparisonReport, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("run id: %w", err)
	}
	r := &ComparisonReport{
		Version:   artifact.Version,
		RunID:     id.String(),
		CreatedAt: now.UTC(),
		PreRunID:  pre.RunID,
		PostRunID: post.RunID,
	}

	var totalReduction float64
	for i := range post.Queries {
		pq := &post.Queries[i]
		prq, ok := pre.Query(pq.ID)
		if !ok {
			r.Unmatched = append(r.Unmatched, pq.ID)
			continue
		}
		c := CompareQuery(prq, pq)
		r.Queries = append(r.Queries, c)

		s := &r.Summary
		s.Matched++
		totalReduction += c.TimeReductionPct
		switch c.Status {
		case StatusImproved:
			s.Improved++
		case StatusDegraded:
			s.Degraded++
		default:
			s.NoChange++
		}
		if c.SortEliminationExpected {
			s.SortEliminationsExpected++
			if c.SortEliminated {
				s.SortEliminations++
			}
		}
		if c.IndexAdopted {
			s.IndexesAdopted++
		}
	}
	for _, q := range pre.Queries {
		if _, ok := post.Query(q.ID); !ok {
			r.Unmatched = append(r.Unmatched, q.ID)
		}
	}
	sort.Strings(r.Unmatched)

	s := &r.Summary
	if s.Matched > 0 {
		s.AvgImprovementPct = totalReduction / float64(s.Matched)
	}
	s.SortEliminationRate = 1
	if s.SortEliminationsExpected > 0 {
		s.SortEliminationRate = float64(s.SortEliminations) / float64(s.SortEliminationsExpected)
	}

	r.Decision, r.Reasons = decide(s)
	for i := range r.Queries {
		c := &r.Queries[i]
		// A suite that misses the average target names the queries that
		// pulled it down, unless they already carry a status mitigation.
		if s.AvgImprovementPct < MinAvgImprovementPct && c.Status == StatusImproved &&
			c.TimeReductionPct < MinAvgImprovementPct {
			q, ok := Lookup(c.ID)
			if !ok {
				q = Query{ID: c.ID}
			}
			c.Mitigations = append(c.Mitigations, Mitigate(q, IssueBelowTarget))
		}
		r.Mitigations = append(r.Mitigations, c.Mitigations...)
	}
	return r, nil
}

func decide(s *ComparisonSummary) (string, []string) {
	var reasons []string
	if s.Matched == 0 {
		reasons = append(reasons, "no queries matched between the two baselines")
	}
	if s.AvgImprovementPct < MinAvgImprovementPct {
		reasons = append(reasons, fmt.Sprintf("average improvement %.1f%% below %.0f%%", s.AvgImprovementPct, MinAvgImprovementPct))
	}
	if s.Degraded > MaxDegraded {
		reasons = append(reasons, fmt.Sprintf("%d queries degraded (max %d)", s.Degraded, MaxDegraded))
	}
	if s.SortEliminationRate < MinSortEliminationRate {
		reasons = append(reasons, fmt.Sprintf("%d of %d expected sort eliminations occurred (%.0f%% < %.0f%%)",
			s.SortEliminations, s.SortEliminationsExpected, s.SortEliminationRate*100, MinSortEliminationRate*100))
	}
	if len(reasons) > 0 {
		return DecisionNoGo, reasons
	}
	return DecisionGo, nil
}
