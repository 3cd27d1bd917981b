package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/chatshape/internal/artifact"
	"github.com/roach88/chatshape/internal/failure"
	"github.com/roach88/chatshape/internal/perf"
)

// VerifyPerfOptions holds flags for the verify-perf command.
type VerifyPerfOptions struct {
	*RootOptions
	Pre          bool
	Post         bool
	Compare      bool
	ApplyIndexes bool
	Runs         int
	Output       string
	Schema       string
}

// NewVerifyPerfCommand creates the verify-perf command.
func NewVerifyPerfCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VerifyPerfOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "verify-perf [--pre-optimization|--post-optimization] | --compare <pre.json> <post.json>",
		Short: "Capture query plans or compare two baselines",
		Long: `Capture EXPLAIN plans, timings and verdicts for the fixed query catalog,
or compare a pre-optimization and a post-optimization baseline.

A comparison exits 1 on NO-GO and lists a mitigation per failing query.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerifyPerf(opts, cmd, args)
		},
	}

	cmd.Flags().BoolVar(&opts.Pre, "pre-optimization", false, "capture the pre-optimization baseline")
	cmd.Flags().BoolVar(&opts.Post, "post-optimization", false, "capture the post-optimization baseline")
	cmd.Flags().BoolVar(&opts.Compare, "compare", false, "compare two baseline files")
	cmd.Flags().BoolVar(&opts.ApplyIndexes, "apply-indexes", false, "create the catalog's expected indexes before capturing")
	cmd.Flags().IntVar(&opts.Runs, "runs", 3, "executions per query; the median time is reported")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "report output path")
	cmd.Flags().StringVar(&opts.Schema, "schema", "", "dataset schema (postgres)")
	cmd.MarkFlagsMutuallyExclusive("pre-optimization", "post-optimization", "compare")

	return cmd
}

func runVerifyPerf(opts *VerifyPerfOptions, cmd *cobra.Command, args []string) error {
	s := newSession(opts.RootOptions, cmd)
	defer s.done()

	switch {
	case opts.Compare:
		if len(args) != 2 {
			return s.out.Fail(failure.Configuration("--compare takes exactly two baseline paths", strings.Join(args, " ")))
		}
		return runComparePerf(s, opts, cmd, args[0], args[1])
	case opts.Pre || opts.Post:
		if len(args) != 0 {
			return s.out.Fail(failure.Configuration("unexpected arguments", strings.Join(args, " ")))
		}
		phase := perf.PhasePre
		if opts.Post {
			phase = perf.PhasePost
		}
		return runCapturePerf(s, opts, cmd, phase)
	default:
		return s.out.Fail(failure.Configuration("one of --pre-optimization, --post-optimization or --compare is required", ""))
	}
}

func runCapturePerf(s *session, opts *VerifyPerfOptions, cmd *cobra.Command, phase string) error {
	ctx := cmd.Context()
	if err := s.loadSettings(""); err != nil {
		return s.out.Fail(err)
	}
	if opts.ApplyIndexes {
		if err := s.guard(); err != nil {
			return s.out.Fail(err)
		}
	}

	st, err := s.openStore(ctx, opts.Schema, !opts.ApplyIndexes)
	if err != nil {
		return s.out.Fail(err)
	}
	defer st.Close()

	if opts.ApplyIndexes {
		if err := perf.ApplyIndexes(ctx, st); err != nil {
			return s.out.Fail(err)
		}
		s.out.VerboseLog("applied %d index statement(s)", len(perf.IndexDDL()))
	}
	report, err := perf.Capture(ctx, st, perf.CaptureOptions{Phase: phase, Runs: opts.Runs, Clock: s.clock(), Logger: s.log})
	if err != nil {
		return s.out.Fail(err)
	}
	path := opts.Output
	if path == "" {
		path = filepath.Join(".", fmt.Sprintf("baseline-%s-%s.json", phase, report.RunID))
	}
	if err := s.writeArtifact(ctx, path, artifact.ReportKey("baseline", report.RunID), report); err != nil {
		return s.out.Fail(err)
	}
	return s.out.Success(baselineSummary{BaselineReport: report, Path: path})
}

func runComparePerf(s *session, opts *VerifyPerfOptions, cmd *cobra.Command, prePath, postPath string) error {
	ctx := cmd.Context()
	var pre, post perf.BaselineReport
	if err := artifact.ReadJSON(prePath, &pre); err != nil {
		return s.out.Fail(err)
	}
	if err := artifact.ReadJSON(postPath, &post); err != nil {
		return s.out.Fail(err)
	}
	if pre.Phase != perf.PhasePre || post.Phase != perf.PhasePost {
		return s.out.Fail(failure.Configuration("baselines must be pre-optimization then post-optimization", pre.Phase+" / "+post.Phase))
	}
	if err := s.loadSettings(""); err != nil {
		return s.out.Fail(err)
	}

	report, err := perf.Compare(&pre, &post, s.clock().Now())
	if err != nil {
		return s.out.Fail(err)
	}
	path := opts.Output
	if path == "" {
		path = filepath.Join(".", fmt.Sprintf("comparison-%s.json", report.RunID))
	}
	if err := s.writeArtifact(ctx, path, artifact.ReportKey("comparison", report.RunID), report); err != nil {
		return s.out.Fail(err)
	}

	var noGo error
	if report.Decision != perf.DecisionGo {
		noGo = failure.Statistical("performance NO-GO: "+strings.Join(report.Reasons, "; "), path)
	}
	return s.verdict(comparisonSummary{ComparisonReport: report, Path: path}, noGo)
}

type baselineSummary struct {
	*perf.BaselineReport
	Path string `json:"report_path"`
}

func (b baselineSummary) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Baseline %s on %s (%d pass, %d warn, %d fail)\n",
		b.Phase, b.Driver, b.Summary.Pass, b.Summary.Warn, b.Summary.Fail)
	for _, q := range b.Queries {
		fmt.Fprintf(&sb, "  %-4s %-28s %9.3fms\n", q.Verdict, q.ID, q.ExecutionTimeMs)
	}
	fmt.Fprintf(&sb, "  report: %s", b.Path)
	return sb.String()
}

type comparisonSummary struct {
	*perf.ComparisonReport
	Path string `json:"report_path"`
}

func (c comparisonSummary) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Performance %s (avg improvement %.1f%%, %d degraded, sort eliminations %d/%d)\n",
		c.Decision, c.Summary.AvgImprovementPct, c.Summary.Degraded,
		c.Summary.SortEliminations, c.Summary.SortEliminationsExpected)
	for _, q := range c.Queries {
		fmt.Fprintf(&sb, "  %-9s %-28s %9.3fms -> %9.3fms (%+.1f%%)\n",
			q.Status, q.ID, q.PreMs, q.PostMs, -q.TimeReductionPct)
	}
	for _, m := range c.Mitigations {
		fmt.Fprintf(&sb, "  mitigation [%s] %s: %s\n", m.QueryID, m.Condition, m.Suggestion)
	}
	fmt.Fprintf(&sb, "  report: %s", c.Path)
	return sb.String()
}
