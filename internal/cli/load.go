package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/chatshape/internal/artifact"
	"github.com/roach88/chatshape/internal/loader"
	"github.com/roach88/chatshape/internal/store"
)

// LoadOptions holds flags for the load command.
type LoadOptions struct {
	*RootOptions
	Schema    string
	Config    string // settings file; overrides --settings
	OutputDir string
	Band      string
	Seed      string
	Spec      string
}

// NewLoadCommand creates the load command.
func NewLoadCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LoadOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load and verify a synthetic dataset, emitting teardown",
		Long: `Verify the referential integrity of a synthetic dataset and write run
metadata plus an idempotent teardown script.

With --seed the dataset is generated first at --band. Refuses to run when
CHATSHAPE_ENV, APP_ENV or the settings environment names production.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Schema, "schema", "", "target schema (postgres)")
	cmd.Flags().StringVar(&opts.Config, "config", "", "settings YAML file")
	cmd.Flags().StringVar(&opts.OutputDir, "output-dir", ".", "directory for run metadata and teardown script")
	cmd.Flags().StringVar(&opts.Band, "band", "dev", "volume band when generating")
	cmd.Flags().StringVar(&opts.Seed, "seed", "", "generate with this seed before verifying")
	cmd.Flags().StringVar(&opts.Spec, "spec", "", "calibrated spec path when generating")

	return cmd
}

func runLoad(opts *LoadOptions, cmd *cobra.Command) error {
	s := newSession(opts.RootOptions, cmd)
	defer s.done()
	ctx := cmd.Context()

	// The production guard runs before anything reads settings or touches
	// the store; the settings marker is checked again once loaded.
	if err := loader.CheckEnvironment(s.getenv, ""); err != nil {
		return s.out.Fail(err)
	}
	if err := s.loadSettings(opts.Config); err != nil {
		return s.out.Fail(err)
	}
	if err := s.guard(); err != nil {
		return s.out.Fail(err)
	}
	schema := opts.Schema
	if schema == "" {
		schema = s.settings.Store.Schema
	}

	lo := loader.Options{
		Schema:      schema,
		OutputDir:   opts.OutputDir,
		Environment: s.settings.Environment,
		Getenv:      s.getenv,
		Clock:       s.clock(),
		Logger:      s.log,
	}
	if opts.Seed != "" {
		genOpts, err := s.generateOptions(opts.Band, opts.Seed, opts.Spec)
		if err != nil {
			return s.out.Fail(err)
		}
		lo.Generate = genOpts
	}

	st, err := s.openStore(ctx, schema, false)
	if err != nil {
		return s.out.Fail(err)
	}
	defer st.Close()

	res, err := loader.Run(ctx, st, lo)
	if res != nil {
		if data, encErr := artifact.Encode(res.Metadata); encErr == nil {
			s.publish(ctx, artifact.ReportKey("load", res.Metadata.RunID), data)
		}
	}
	if err != nil {
		return s.out.Fail(err)
	}
	return s.out.Success(loadSummary{Result: res})
}

type loadSummary struct {
	*loader.Result
}

func (l loadSummary) String() string {
	m := l.Metadata
	var b strings.Builder
	fmt.Fprintf(&b, "✓ Load %s verified on %s (%s) in %dms\n", m.RunID, m.Driver, m.Schema, m.DurationMs)
	for _, table := range tableOrder(m.RowCounts) {
		fmt.Fprintf(&b, "  %-14s %d\n", table, m.RowCounts[table])
	}
	fmt.Fprintf(&b, "  metadata: %s\n  teardown: %s", l.MetadataPath, l.TeardownPath)
	return b.String()
}

// tableOrder lists the entity tables present in counts in dependency order.
func tableOrder(counts map[string]int64) []string {
	var out []string
	for _, t := range store.Tables {
		if _, ok := counts[t]; ok {
			out = append(out, t)
		}
	}
	return out
}
