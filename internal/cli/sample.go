package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/chatshape/internal/artifact"
	"github.com/roach88/chatshape/internal/failure"
	"github.com/roach88/chatshape/internal/privacy"
	"github.com/roach88/chatshape/internal/shape"
)

// SampleOptions holds flags for the sample command.
type SampleOptions struct {
	*RootOptions
	Output     string
	WindowDays int
}

// SampleResult summarizes a written ShapeMetrics artifact.
type SampleResult struct {
	Output        string    `json:"output"`
	Fingerprint   string    `json:"fingerprint"`
	ExtractedAt   time.Time `json:"extracted_at"`
	WindowDays    int       `json:"window_days"`
	Users         int64     `json:"users"`
	Conversations int64     `json:"conversations"`
	Messages      int64     `json:"messages"`
}

func (r SampleResult) String() string {
	return fmt.Sprintf("✓ Sampled %d user(s), %d conversation(s), %d message(s) over %d day(s)\n  output: %s\n  fingerprint: %s",
		r.Users, r.Conversations, r.Messages, r.WindowDays, r.Output, r.Fingerprint)
}

// NewSampleCommand creates the sample command.
func NewSampleCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SampleOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Extract aggregate shape metrics from a live store",
		Long: `Extract aggregate-only shape metrics (histograms, percentiles, type mixes)
from the configured store over a trailing window.

Requires ANONYMIZATION_SALT (at least 32 characters). The artifact is scanned
for PII patterns before it is written; a finding aborts without output.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSample(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "ShapeMetrics output path (required)")
	cmd.Flags().IntVar(&opts.WindowDays, "window-days", 30, "trailing extraction window in days")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

func runSample(opts *SampleOptions, cmd *cobra.Command) error {
	s := newSession(opts.RootOptions, cmd)
	defer s.done()
	ctx := cmd.Context()

	secret := s.getenv(privacy.SecretEnv)
	if err := privacy.ValidateSecret(secret); err != nil {
		return s.out.Fail(err)
	}
	if opts.WindowDays < 1 {
		return s.out.Fail(failure.Configuration("window-days must be at least 1", strconv.Itoa(opts.WindowDays)))
	}
	if err := s.loadSettings(""); err != nil {
		return s.out.Fail(err)
	}

	st, err := s.openStore(ctx, "", true)
	if err != nil {
		return s.out.Fail(err)
	}
	defer st.Close()

	sampler, err := shape.NewSampler(st, secret, s.clock(), s.settings.Sampler.SampleCap, s.log)
	if err != nil {
		return s.out.Fail(err)
	}
	res, err := sampler.Sample(ctx, opts.WindowDays)
	if err != nil {
		return s.out.Fail(err)
	}
	if err := artifact.WriteFile(opts.Output, res.Encoded); err != nil {
		return s.out.Fail(err)
	}
	s.publish(ctx, artifact.ShapeKey(res.Metrics.ExtractedAt, res.Fingerprint), res.Encoded)

	return s.out.Success(SampleResult{
		Output:        opts.Output,
		Fingerprint:   res.Fingerprint,
		ExtractedAt:   res.Metrics.ExtractedAt,
		WindowDays:    opts.WindowDays,
		Users:         res.Metrics.Users.TotalCount,
		Conversations: res.Metrics.Conversations.TotalCount,
		Messages:      res.Metrics.Messages.TotalCount,
	})
}
