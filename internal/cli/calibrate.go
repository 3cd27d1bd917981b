package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/chatshape/internal/artifact"
	"github.com/roach88/chatshape/internal/calibrate"
)

// CalibrateOptions holds flags for the calibrate command.
type CalibrateOptions struct {
	*RootOptions
	Shape  string
	Output string
}

// CalibrateResult summarizes a written generator spec.
type CalibrateResult struct {
	Output          string  `json:"output"`
	Fingerprint     string  `json:"fingerprint"`
	ShapeSource     string  `json:"shape_fingerprint"`
	MessagesAlpha   float64 `json:"messages_per_conversation_alpha"`
	MediaRatio      float64 `json:"media_ratio"`
	PeakHours       []int   `json:"peak_hours"`
	ContentLengthMu float64 `json:"content_length_mu"`
}

func (r CalibrateResult) String() string {
	return fmt.Sprintf("✓ Calibrated spec %s\n  output: %s\n  messages/conversation alpha: %.3f\n  media ratio: %.3f\n  peak hours: %v",
		r.Fingerprint[:12], r.Output, r.MessagesAlpha, r.MediaRatio, r.PeakHours)
}

// NewCalibrateCommand creates the calibrate command.
func NewCalibrateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CalibrateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Fit generator parameters to shape metrics",
		Long: `Fit the generator's distribution parameters to a ShapeMetrics artifact.

Calibration performs no store I/O. Parameters without supporting data keep
their defaults; implausible fits are caught by validate-fidelity.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCalibrate(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Shape, "shape", "", "ShapeMetrics input path (required)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "calibrated spec output path (required)")
	_ = cmd.MarkFlagRequired("shape")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

func runCalibrate(opts *CalibrateOptions, cmd *cobra.Command) error {
	s := newSession(opts.RootOptions, cmd)
	defer s.done()

	m, err := artifact.ReadShape(opts.Shape)
	if err != nil {
		return s.out.Fail(err)
	}
	spec, err := calibrate.Calibrate(m)
	if err != nil {
		return s.out.Fail(err)
	}
	fp, err := spec.Fingerprint()
	if err != nil {
		return s.out.Fail(err)
	}
	if err := s.loadSettings(""); err != nil {
		return s.out.Fail(err)
	}
	if err := s.writeArtifact(cmd.Context(), opts.Output, artifact.PrefixSpec+fp+".json", spec); err != nil {
		return s.out.Fail(err)
	}
	s.out.VerboseLog("calibrated from shape %s", spec.Source.Fingerprint)

	return s.out.Success(CalibrateResult{
		Output:          opts.Output,
		Fingerprint:     fp,
		ShapeSource:     spec.Source.Fingerprint,
		MessagesAlpha:   spec.MessagesPerConversation.Alpha,
		MediaRatio:      spec.MediaRatio,
		PeakHours:       spec.PeakHours,
		ContentLengthMu: spec.ContentLength.Mu,
	})
}
