package perf

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/chatshape/internal/store"
)

// PlanNode is a plan operator in the postgres EXPLAIN JSON vocabulary.
// SQLite plans are normalized into the same shape; fields sqlite cannot
// report stay zero and the Has* flags say so.
type PlanNode struct {
	NodeType         string     `json:"Node Type"`
	RelationName     string     `json:"Relation Name,omitempty"`
	Alias            string     `json:"Alias,omitempty"`
	IndexName        string     `json:"Index Name,omitempty"`
	PlanRows         float64    `json:"Plan Rows"`
	ActualRows       float64    `json:"Actual Rows"`
	ActualLoops      float64    `json:"Actual Loops"`
	SharedHitBlocks  int64      `json:"Shared Hit Blocks"`
	SharedReadBlocks int64      `json:"Shared Read Blocks"`
	Detail           string     `json:"Detail,omitempty"`
	Plans            []PlanNode `json:"Plans,omitempty"`
}

// Plan is one captured execution plan.
type Plan struct {
	Root            PlanNode `json:"root"`
	ExecutionTimeMs float64  `json:"execution_time_ms"`
	PlanningTimeMs  float64  `json:"planning_time_ms"`
	// HasEstimates is false for sqlite, which reports no row estimates.
	HasEstimates bool `json:"has_estimates"`
	HasBuffers   bool `json:"has_buffers"`
}

type pgExplain struct {
	Plan          PlanNode `json:"Plan"`
	PlanningTime  float64  `json:"Planning Time"`
	ExecutionTime float64  `json:"Execution Time"`
}

// ParsePostgres decodes EXPLAIN (ANALYZE, BUFFERS, FORMAT JSON) output.
func ParsePostgres(raw []byte) (*Plan, error) {
	var out []pgExplain
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("parse explain json: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("parse explain json: empty plan")
	}
	return &Plan{
		Root:            out[0].Plan,
		ExecutionTimeMs: out[0].ExecutionTime,
		PlanningTimeMs:  out[0].PlanningTime,
		HasEstimates:    true,
		HasBuffers:      true,
	}, nil
}

var sqliteAccess = regexp.MustCompile(`^(SCAN|SEARCH)(?: TABLE)? (\S+)(?: AS (\S+))?(?: USING (?:(COVERING) )?INDEX (\S+)| USING (?:INTEGER )?PRIMARY KEY)?`)

// ParseSQLite normalizes EXPLAIN QUERY PLAN rows into a plan tree under a
// synthetic "Result" root carrying the timed execution.
func ParseSQLite(rows []store.SQLitePlanRow, elapsedMs float64, returned int64) *Plan {
	children := make(map[int64][]store.SQLitePlanRow)
	for _, r := range rows {
		children[r.Parent] = append(children[r.Parent], r)
	}
	var build func(parent int64) []PlanNode
	build = func(parent int64) []PlanNode {
		var nodes []PlanNode
		for _, r := range children[parent] {
			n := sqliteNode(r.Detail)
			if r.ID != parent {
				n.Plans = build(r.ID)
			}
			nodes = append(nodes, n)
		}
		return nodes
	}
	return &Plan{
		Root: PlanNode{
			NodeType:    "Result",
			ActualRows:  float64(returned),
			ActualLoops: 1,
			Plans:       build(0),
		},
		ExecutionTimeMs: elapsedMs,
	}
}

func sqliteNode(detail string) PlanNode {
	n := PlanNode{Detail: detail}
	if m := sqliteAccess.FindStringSubmatch(detail); m != nil {
		n.RelationName = m[2]
		n.Alias = m[3]
		switch {
		case m[5] != "" && m[4] == "COVERING":
			n.NodeType, n.IndexName = ScanIndexOnly, m[5]
		case m[5] != "":
			n.NodeType, n.IndexName = ScanIndex, m[5]
		case strings.Contains(detail, "PRIMARY KEY"):
			n.NodeType, n.IndexName = ScanIndex, "PRIMARY KEY"
		default:
			n.NodeType = ScanSeq
		}
		return n
	}
	switch {
	case strings.HasPrefix(detail, "USE TEMP B-TREE FOR") && strings.Contains(detail, "ORDER BY"):
		n.NodeType = "Sort"
	case strings.HasPrefix(detail, "USE TEMP B-TREE FOR"):
		n.NodeType = "Aggregate"
	case strings.Contains(detail, "SUBQUERY"):
		n.NodeType = "SubPlan"
	default:
		n.NodeType = "Other"
	}
	return n
}

// FromCapture normalizes a store capture into a Plan.
func FromCapture(pc *store.PlanCapture) (*Plan, error) {
	if pc.Driver == store.DriverPostgres {
		return ParsePostgres(pc.JSON)
	}
	return ParseSQLite(pc.Rows, pc.ElapsedMs, pc.RowsReturned), nil
}
