package perf

import "fmt"

// Mitigation is a concrete next step for one query.
type Mitigation struct {
	QueryID    string `json:"query_id"`
	Condition  string `json:"condition"`
	Suggestion string `json:"suggestion"`
}

// Mitigate maps an issue code on q to a suggestion naming q's own index and
// statement.
func Mitigate(q Query, code string) Mitigation {
	e := q.Expect
	var s string
	switch code {
	case IssueIndexMissing:
		s = fmt.Sprintf("create %s (%s), then refresh planner statistics (ANALYZE) so it is considered", e.Index, e.IndexDDL)
	case IssueIndexNotInPost:
		s = fmt.Sprintf("optimization did not make the planner use %s; check that %q ran in the target schema and matches the WHERE columns", e.Index, e.IndexDDL)
	case IssueSortPresent, IssueSortRemains:
		s = fmt.Sprintf("sort still present; verify composite index column order matches ORDER BY direction: %s", e.IndexDDL)
	case IssueLowBufferHits:
		s = "most blocks came from disk; warm the cache with one run before capturing, or raise shared_buffers if the working set should fit"
	case IssueEstimateDrift:
		s = "planner row estimates are far from actual; run ANALYZE on the tables this query reads or raise the statistics target on its filter columns"
	case IssueScanType:
		s = fmt.Sprintf("planner chose a different access path than %s; check the selectivity of the filter and that %s covers the predicate columns", e.ScanType, e.Index)
	case IssueDegraded:
		s = "execution time rose beyond 10%; diff the pre and post plans for a changed join order and check the new index for bloat or stale statistics"
	case IssueNoImprovement:
		s = fmt.Sprintf("execution time moved less than 10%%; confirm the post baseline was captured after %s existed and against the same dataset", e.Index)
	case IssueBelowTarget:
		s = fmt.Sprintf("improved but below the %.0f%% suite target; check whether %s is covering for this query's select list or whether a narrower index would avoid heap fetches", MinAvgImprovementPct, e.Index)
	default:
		s = "inspect the captured plan for this query"
	}
	return Mitigation{QueryID: q.ID, Condition: code, Suggestion: s}
}

func mitigateAll(q Query, issues []Issue) []Mitigation {
	if len(issues) == 0 {
		return nil
	}
	out := make([]Mitigation, len(issues))
	for i, is := range issues {
		out[i] = Mitigate(q, is.Code)
	}
	return out
}
