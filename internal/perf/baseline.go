package perf

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/roach88/chatshape/internal/artifact"
	"github.com/roach88/chatshape/internal/clock"
	"github.com/roach88/chatshape/internal/failure"
	"github.com/roach88/chatshape/internal/store"
)

// Baseline phases.
const (
	PhasePre  = "pre-optimization"
	PhasePost = "post-optimization"
)

// Target is the store surface a capture needs. Implemented by *store.Store.
type Target interface {
	Driver() string
	Explain(ctx context.Context, query string, args ...any) (*store.PlanCapture, error)
	QueryInt64s(ctx context.Context, op, query string, args ...any) ([]int64, error)
}

// QueryResult is one captured catalog query.
type QueryResult struct {
	ID              string       `json:"id"`
	Description     string       `json:"description"`
	SQL             string       `json:"sql"`
	Params          []int64      `json:"params"`
	Expectation     Expectation  `json:"expectation"`
	ExecutionTimeMs float64      `json:"execution_time_ms"`
	PlanningTimeMs  float64      `json:"planning_time_ms"`
	Runs            int          `json:"runs"`
	Plan            PlanNode     `json:"plan"`
	Analysis        Analysis     `json:"analysis"`
	Verdict         string       `json:"verdict"`
	Issues          []Issue      `json:"issues"`
	Mitigations     []Mitigation `json:"mitigations"`
}

// VerdictCounts tallies per-query verdicts.
type VerdictCounts struct {
	Pass int `json:"pass"`
	Warn int `json:"warn"`
	Fail int `json:"fail"`
}

// BaselineReport is one phase's capture of the whole catalog.
type BaselineReport struct {
	Version   int           `json:"version"`
	RunID     string        `json:"run_id"`
	CreatedAt time.Time     `json:"created_at"`
	Phase     string        `json:"phase"`
	Driver    string        `json:"driver"`
	Queries   []QueryResult `json:"queries"`
	Summary   VerdictCounts `json:"summary"`
}

// Query returns the result with the given id.
func (r *BaselineReport) Query(id string) (*QueryResult, bool) {
	for i := range r.Queries {
		if r.Queries[i].ID == id {
			return &r.Queries[i], true
		}
	}
	return nil, false
}

// CaptureOptions tunes a capture.
type CaptureOptions struct {
	Phase string
	// Runs is how many times each query is explained; the median time is
	// reported.
	Runs   int
	Clock  clock.Clock
	Logger *zap.Logger
}

// Capture resolves parameters and records plan, timing and verdict for
// every catalog query.
func Capture(ctx context.Context, t Target, opts CaptureOptions) (*BaselineReport, error) {
	if opts.Phase != PhasePre && opts.Phase != PhasePost {
		return nil, failure.Configuration("phase must be "+PhasePre+" or "+PhasePost, opts.Phase)
	}
	if opts.Runs <= 0 {
		opts.Runs = 3
	}
	if opts.Clock == nil {
		opts.Clock = clock.Wall{}
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("perf")

	params, err := ResolveParams(ctx, t)
	if err != nil {
		return nil, err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("run id: %w", err)
	}
	report := &BaselineReport{
		Version:   artifact.Version,
		RunID:     id.String(),
		CreatedAt: opts.Clock.Now().UTC(),
		Phase:     opts.Phase,
		Driver:    t.Driver(),
	}
	for _, q := range catalog {
		res, err := captureQuery(ctx, t, q, params, opts.Runs)
		if err != nil {
			return nil, err
		}
		switch res.Verdict {
		case VerdictPass:
			report.Summary.Pass++
		case VerdictWarn:
			report.Summary.Warn++
		default:
			report.Summary.Fail++
		}
		log.Debug("query captured",
			zap.String("query", q.ID),
			zap.Float64("execution_time_ms", res.ExecutionTimeMs),
			zap.String("verdict", res.Verdict),
		)
		report.Queries = append(report.Queries, *res)
	}
	log.Info("baseline captured",
		zap.String("phase", opts.Phase),
		zap.Int("pass", report.Summary.Pass),
		zap.Int("warn", report.Summary.Warn),
		zap.Int("fail", report.Summary.Fail),
	)
	return report, nil
}

func captureQuery(ctx context.Context, t Target, q Query, params map[ParamKind][]int64, runs int) (*QueryResult, error) {
	args, values := bind(q, params)
	times := make([]float64, 0, runs)
	var plan *Plan
	for i := 0; i < runs; i++ {
		pc, err := t.Explain(ctx, q.SQL, args...)
		if err != nil {
			return nil, err
		}
		if plan, err = FromCapture(pc); err != nil {
			return nil, failure.Execution("capture "+q.ID, err)
		}
		times = append(times, plan.ExecutionTimeMs)
	}
	sort.Float64s(times)

	a := Analyze(plan)
	verdict, issues := Judge(q, a)
	return &QueryResult{
		ID:              q.ID,
		Description:     q.Description,
		SQL:             q.SQL,
		Params:          values,
		Expectation:     q.Expect,
		ExecutionTimeMs: times[len(times)/2],
		PlanningTimeMs:  plan.PlanningTimeMs,
		Runs:            runs,
		Plan:            plan.Root,
		Analysis:        a,
		Verdict:         verdict,
		Issues:          issues,
		Mitigations:     mitigateAll(q, issues),
	}, nil
}

// bind assigns resolved ids to q's placeholders. Repeated kinds consume
// successive values.
func bind(q Query, params map[ParamKind][]int64) ([]any, []int64) {
	used := make(map[ParamKind]int)
	args := make([]any, len(q.Params))
	values := make([]int64, len(q.Params))
	for i, kind := range q.Params {
		vs := params[kind]
		v := vs[min(used[kind], len(vs)-1)]
		used[kind]++
		args[i], values[i] = v, v
	}
	return args, values
}

// ResolveParams picks catalog parameters from the dataset. The choice is
// deterministic: ties break on the lowest id.
func ResolveParams(ctx context.Context, t Target) (map[ParamKind][]int64, error) {
	convs, err := t.QueryInt64s(ctx, "resolve conversations",
		`SELECT conversation_id FROM messages GROUP BY conversation_id ORDER BY COUNT(*) DESC, conversation_id LIMIT 3`)
	if err != nil {
		return nil, err
	}
	if len(convs) == 0 {
		return nil, failure.Configuration("dataset has no messages; generate one before verify-perf", "messages")
	}
	users, err := t.QueryInt64s(ctx, "resolve user",
		`SELECT user_id FROM memberships GROUP BY user_id ORDER BY COUNT(*) DESC, user_id LIMIT 1`)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, failure.Configuration("dataset has no memberships; generate one before verify-perf", "memberships")
	}
	return map[ParamKind][]int64{
		ParamConversation: convs[:1],
		ParamFeed:         convs,
		ParamUser:         users,
	}, nil
}

// Scripter runs a semicolon-separated script. Implemented by *store.Store.
type Scripter interface {
	ExecScript(ctx context.Context, script string) error
}

// ApplyIndexes creates every index the catalog expects.
func ApplyIndexes(ctx context.Context, s Scripter) error {
	return s.ExecScript(ctx, strings.Join(IndexDDL(), ";\n")+";\n")
}
