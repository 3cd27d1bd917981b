package cli

import (
	"fmt"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/chatshape/internal/clock"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	Settings string // settings YAML path; empty uses defaults

	// Getenv reads the process environment. Tests replace it.
	Getenv func(string) string
	// Clock stamps every report and drives retention. Tests replace it.
	Clock clock.Clock
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the chatshape CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(os.Getenv, clock.Wall{})
}

func newRootCommand(getenv func(string) string, clk clock.Clock) *cobra.Command {
	opts := &RootOptions{Getenv: getenv, Clock: clk}

	cmd := &cobra.Command{
		Use:   "chatshape",
		Short: "chatshape - synthetic chat datasets shaped like production",
		Long: `Sample aggregate shape metrics from a chat store, calibrate a generator,
generate and load deterministic synthetic datasets, validate their fidelity
and verify that index changes alter query plans as claimed.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Settings, "settings", "", "settings YAML file")

	cmd.AddCommand(NewSampleCommand(opts))
	cmd.AddCommand(NewCalibrateCommand(opts))
	cmd.AddCommand(NewGenerateCommand(opts))
	cmd.AddCommand(NewLoadCommand(opts))
	cmd.AddCommand(NewTeardownCommand(opts))
	cmd.AddCommand(NewValidateFidelityCommand(opts))
	cmd.AddCommand(NewVerifyPerfCommand(opts))
	cmd.AddCommand(NewPruneCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
