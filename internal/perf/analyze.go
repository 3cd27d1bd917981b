package perf

import (
	"math"
	"sort"
	"strings"
)

// Thresholds for secondary (WARN) issues.
const (
	MinBufferHitRatio     = 0.90
	MinEstimationAccuracy = 0.10
)

// Analysis is what a recursive walk of a plan found.
type Analysis struct {
	UsesIndex        bool     `json:"uses_index"`
	IndexNames       []string `json:"index_names"`
	ScanTypes        []string `json:"scan_types"`
	HasSort          bool     `json:"has_sort"`
	HasSeqScan       bool     `json:"has_seq_scan"`
	SharedHitBlocks  int64    `json:"shared_hit_blocks"`
	SharedReadBlocks int64    `json:"shared_read_blocks"`
	// BufferHitRatio and EstimationAccuracy are nil when the store does
	// not report them.
	BufferHitRatio     *float64 `json:"buffer_hit_ratio"`
	EstimationAccuracy *float64 `json:"estimation_accuracy"`
}

// HasIndex reports whether the plan used the named index.
func (a *Analysis) HasIndex(name string) bool {
	for _, n := range a.IndexNames {
		if strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}

// Analyze walks the plan tree. EstimationAccuracy is the worst estimate of
// any executed node, since a LIMIT root is exact by construction.
func Analyze(p *Plan) Analysis {
	var a Analysis
	indexes := make(map[string]bool)
	scans := make(map[string]bool)
	accuracy := math.Inf(1)
	var walk func(n *PlanNode, limited bool)
	walk = func(n *PlanNode, limited bool) {
		// Nodes that never ran have no actual rows to compare. Below a
		// Limit, fewer rows than estimated only means the parent stopped early.
		if p.HasEstimates && n.ActualLoops > 0 && !(limited && n.ActualRows < n.PlanRows) {
			accuracy = math.Min(accuracy, EstimationAccuracy(n.PlanRows, n.ActualRows))
		}
		limited = limited || n.NodeType == "Limit"
		switch {
		case isIndexScan(n.NodeType):
			a.UsesIndex = true
			scans[n.NodeType] = true
			if n.IndexName != "" {
				indexes[n.IndexName] = true
			}
		case n.NodeType == ScanSeq:
			a.HasSeqScan = true
			scans[n.NodeType] = true
		case isSort(n.NodeType):
			a.HasSort = true
		}
		for i := range n.Plans {
			walk(&n.Plans[i], limited)
		}
	}
	walk(&p.Root, false)
	a.IndexNames = sortedKeys(indexes)
	a.ScanTypes = sortedKeys(scans)

	if p.HasBuffers {
		// Buffer counters on a postgres node already include its children.
		a.SharedHitBlocks = p.Root.SharedHitBlocks
		a.SharedReadBlocks = p.Root.SharedReadBlocks
		if total := a.SharedHitBlocks + a.SharedReadBlocks; total > 0 {
			r := float64(a.SharedHitBlocks) / float64(total)
			a.BufferHitRatio = &r
		}
	}
	if !math.IsInf(accuracy, 1) {
		a.EstimationAccuracy = &accuracy
	}
	return a
}

// EstimationAccuracy is min(actual/estimated, estimated/actual), so 1 means
// a perfect estimate. Two zeros count as perfect.
func EstimationAccuracy(estimated, actual float64) float64 {
	if estimated <= 0 && actual <= 0 {
		return 1
	}
	if estimated <= 0 || actual <= 0 {
		return 0
	}
	return math.Min(actual/estimated, estimated/actual)
}

func isIndexScan(nodeType string) bool {
	switch nodeType {
	case ScanIndex, ScanIndexOnly, ScanBitmap:
		return true
	}
	return false
}

func isSort(nodeType string) bool {
	return nodeType == "Sort" || nodeType == "Incremental Sort"
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
