package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/chatshape/internal/artifact"
	"github.com/roach88/chatshape/internal/fidelity"
)

// ValidateFidelityOptions holds flags for the validate-fidelity command.
type ValidateFidelityOptions struct {
	*RootOptions
	Shape     string
	Tolerance float64
	Output    string
	Schema    string
}

// NewValidateFidelityCommand creates the validate-fidelity command.
func NewValidateFidelityCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateFidelityOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate-fidelity",
		Short: "Compare the generated dataset against a shape and decide GO/NO-GO",
		Long: `Measure the generated dataset the same way production was sampled and
compare it against a ShapeMetrics artifact.

--tolerance sets the normal band; strict is a third of it and relaxed is
double. Exits 1 on NO-GO with the report path.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidateFidelity(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Shape, "shape", "", "expected ShapeMetrics path (required)")
	cmd.Flags().Float64Var(&opts.Tolerance, "tolerance", fidelity.DefaultTolerance, "normal tolerance band")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "fidelity report output path (required)")
	cmd.Flags().StringVar(&opts.Schema, "schema", "", "dataset schema (postgres)")
	_ = cmd.MarkFlagRequired("shape")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

func runValidateFidelity(opts *ValidateFidelityOptions, cmd *cobra.Command) error {
	s := newSession(opts.RootOptions, cmd)
	defer s.done()
	ctx := cmd.Context()

	if _, err := fidelity.NewTolerance(opts.Tolerance); err != nil {
		return s.out.Fail(err)
	}
	expected, err := artifact.ReadShape(opts.Shape)
	if err != nil {
		return s.out.Fail(err)
	}
	if err := s.loadSettings(""); err != nil {
		return s.out.Fail(err)
	}

	st, err := s.openStore(ctx, opts.Schema, true)
	if err != nil {
		return s.out.Fail(err)
	}
	defer st.Close()

	report, err := fidelity.Validate(ctx, st, expected, fidelity.Options{
		Tolerance:      opts.Tolerance,
		HeavyRoomFloor: int64(s.settings.Fidelity.HeavyRoomFloor),
		SampleCap:      s.settings.Sampler.SampleCap,
		Clock:          s.clock(),
		Logger:         s.log,
	})
	if err != nil {
		return s.out.Fail(err)
	}
	if err := s.writeArtifact(ctx, opts.Output, artifact.ReportKey("fidelity", report.RunID), report); err != nil {
		return s.out.Fail(err)
	}
	return s.verdict(fidelitySummary{Report: report, Path: opts.Output}, report.Err(opts.Output))
}

type fidelitySummary struct {
	*fidelity.Report
	Path string `json:"report_path"`
}

func (f fidelitySummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Fidelity %s (%d pass, %d warn, %d fail, %d skip)\n",
		f.Decision, f.Summary.Pass, f.Summary.Warn, f.Summary.Fail, f.Summary.Skip)
	for _, c := range f.Checks {
		if c.Status == fidelity.StatusSkip {
			continue
		}
		fmt.Fprintf(&b, "  %-4s %-34s expected=%-10.4g actual=%-10.4g deviation=%.4g\n",
			c.Status, c.Name, c.Expected, c.Actual, c.Deviation)
	}
	for _, r := range f.Reasons {
		fmt.Fprintf(&b, "  reason: %s\n", r)
	}
	fmt.Fprintf(&b, "  report: %s", f.Path)
	return b.String()
}
