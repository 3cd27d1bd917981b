package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/chatshape/internal/failure"
	"github.com/roach88/chatshape/internal/loader"
)

// TeardownOptions holds flags for the teardown command.
type TeardownOptions struct {
	*RootOptions
	Script string
	Schema string
}

// NewTeardownCommand creates the teardown command.
func NewTeardownCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TeardownOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "teardown",
		Short: "Run a teardown script emitted by load",
		Long: `Empty every synthetic entity table by running a teardown script written by
the load command. Running the same script twice is harmless.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTeardown(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Script, "script", "", "teardown script path (required)")
	cmd.Flags().StringVar(&opts.Schema, "schema", "", "target schema (postgres)")
	_ = cmd.MarkFlagRequired("script")

	return cmd
}

type teardownSummary struct {
	Script string `json:"script"`
	Driver string `json:"driver"`
}

func (t teardownSummary) String() string {
	return fmt.Sprintf("✓ Teardown applied on %s\n  script: %s", t.Driver, t.Script)
}

func runTeardown(opts *TeardownOptions, cmd *cobra.Command) error {
	s := newSession(opts.RootOptions, cmd)
	defer s.done()
	ctx := cmd.Context()

	if err := loader.CheckEnvironment(s.getenv, ""); err != nil {
		return s.out.Fail(err)
	}
	script, err := os.ReadFile(opts.Script)
	if err != nil {
		return s.out.Fail(failure.Configuration(fmt.Sprintf("cannot read teardown script: %v", err), opts.Script))
	}
	if err := s.loadSettings(""); err != nil {
		return s.out.Fail(err)
	}

	st, err := s.openStore(ctx, opts.Schema, false)
	if err != nil {
		return s.out.Fail(err)
	}
	defer st.Close()

	if err := loader.Teardown(ctx, st, string(script), s.getenv, s.settings.Environment); err != nil {
		return s.out.Fail(err)
	}
	return s.out.Success(teardownSummary{Script: opts.Script, Driver: st.Driver()})
}
