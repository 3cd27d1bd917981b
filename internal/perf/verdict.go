package perf

import "fmt"

// Verdicts.
const (
	VerdictPass = "PASS"
	VerdictWarn = "WARN"
	VerdictFail = "FAIL"
)

// Issue codes.
const (
	IssueIndexMissing   = "expected_index_missing"
	IssueSortPresent    = "unexpected_sort"
	IssueLowBufferHits  = "low_buffer_hit_ratio"
	IssueEstimateDrift  = "row_estimate_drift"
	IssueScanType       = "unexpected_scan_type"
	IssueSortRemains    = "sort_not_eliminated"
	IssueDegraded       = "degraded"
	IssueNoImprovement  = "no_improvement"
	IssueIndexNotInPost = "index_not_adopted"
	IssueBelowTarget    = "below_improvement_target"
)

// Issue is one finding against a query's expectation.
type Issue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Judge renders a query's verdict. Missing index or a forbidden sort is a
// FAIL; a different scan type or buffer or estimate drift is a WARN.
func Judge(q Query, a Analysis) (string, []Issue) {
	var fails, warns []Issue
	if !a.HasIndex(q.Expect.Index) {
		fails = append(fails, Issue{Code: IssueIndexMissing, Message: fmt.Sprintf("plan does not use %s", q.Expect.Index)})
	}
	if q.Expect.NoSort && a.HasSort {
		fails = append(fails, Issue{Code: IssueSortPresent, Message: "plan sorts although the index should provide order"})
	}
	if q.Expect.ScanType != "" && !hasScanType(a, q.Expect.ScanType) {
		warns = append(warns, Issue{Code: IssueScanType, Message: fmt.Sprintf("plan has no %s (found %v)", q.Expect.ScanType, a.ScanTypes)})
	}
	if a.BufferHitRatio != nil && *a.BufferHitRatio < MinBufferHitRatio {
		warns = append(warns, Issue{Code: IssueLowBufferHits, Message: fmt.Sprintf("buffer hit ratio %.2f below %.2f", *a.BufferHitRatio, MinBufferHitRatio)})
	}
	if a.EstimationAccuracy != nil && *a.EstimationAccuracy < MinEstimationAccuracy {
		warns = append(warns, Issue{Code: IssueEstimateDrift, Message: fmt.Sprintf("row estimate accuracy %.3f below %.2f", *a.EstimationAccuracy, MinEstimationAccuracy)})
	}
	switch {
	case len(fails) > 0:
		return VerdictFail, append(fails, warns...)
	case len(warns) > 0:
		return VerdictWarn, warns
	}
	return VerdictPass, nil
}

// hasScanType reports whether the plan contains the expected scan. An index
// only scan satisfies an index scan expectation since it reads less.
func hasScanType(a Analysis, want string) bool {
	for _, got := range a.ScanTypes {
		if got == want || (want == ScanIndex && got == ScanIndexOnly) {
			return true
		}
	}
	return false
}
