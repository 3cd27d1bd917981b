package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/chatshape/internal/artifact"
	"github.com/roach88/chatshape/internal/failure"
)

// PruneOptions holds flags for the prune command.
type PruneOptions struct {
	*RootOptions
	OlderThanDays int
}

// NewPruneCommand creates the prune command.
func NewPruneCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PruneOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete published shape metrics past their retention period",
		Long: `Delete ShapeMetrics objects from the configured artifact store whose
extraction time is older than the retention period (default from settings,
90 days).`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrune(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.OlderThanDays, "older-than-days", 0, "retention in days (0 uses settings)")

	return cmd
}

type pruneSummary struct {
	Retention string   `json:"retention"`
	Deleted   []string `json:"deleted"`
}

func (p pruneSummary) String() string {
	s := fmt.Sprintf("✓ Pruned %d shape artifact(s) older than %s", len(p.Deleted), p.Retention)
	for _, k := range p.Deleted {
		s += "\n  " + k
	}
	return s
}

func runPrune(opts *PruneOptions, cmd *cobra.Command) error {
	s := newSession(opts.RootOptions, cmd)
	defer s.done()
	ctx := cmd.Context()

	if opts.OlderThanDays < 0 {
		return s.out.Fail(failure.Configuration("older-than-days must not be negative", strconv.Itoa(opts.OlderThanDays)))
	}
	if err := s.loadSettings(""); err != nil {
		return s.out.Fail(err)
	}
	as, err := s.artifactStore(ctx)
	if err != nil {
		return s.out.Fail(err)
	}
	if as == nil {
		return s.out.Fail(failure.Configuration("prune needs an artifact store; set artifacts.backend", s.settings.Artifacts.Backend))
	}

	retention := s.settings.Retention()
	if opts.OlderThanDays > 0 {
		retention = time.Duration(opts.OlderThanDays) * 24 * time.Hour
	}
	deleted, err := artifact.Prune(ctx, as, retention, s.clock().Now())
	if err != nil {
		return s.out.Fail(err)
	}
	if deleted == nil {
		deleted = []string{}
	}
	return s.out.Success(pruneSummary{Retention: retention.String(), Deleted: deleted})
}
