// Package loader verifies a loaded synthetic dataset and leaves behind the
// means to remove it.
//
// Run refuses to do anything in a production environment. Otherwise it
// optionally generates a dataset, counts orphaned references and
// out-of-order messages, and always writes two artifacts: run metadata and
// an idempotent teardown script. Integrity failures are recorded verbatim
// in the metadata before the DATA_INTEGRITY_ERROR is returned.
package loader

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/roach88/chatshape/internal/artifact"
	"github.com/roach88/chatshape/internal/clock"
	"github.com/roach88/chatshape/internal/config"
	"github.com/roach88/chatshape/internal/failure"
	"github.com/roach88/chatshape/internal/generate"
	"github.com/roach88/chatshape/internal/store"
)

// Environment markers checked by the production guard.
const (
	EnvMarker    = config.EnvEnvironment
	EnvAppMarker = "APP_ENV"
)

// Run statuses.
const (
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
)

// Target is the store surface the loader needs. Implemented by *store.Store.
type Target interface {
	generate.BatchWriter
	Driver() string
	RowCounts(ctx context.Context) (map[string]int64, error)
	OrphanCounts(ctx context.Context) (map[string]int64, error)
	OutOfOrderMessages(ctx context.Context) (int64, error)
}

// RunMetadata records one load run.
type RunMetadata struct {
	Version            int              `json:"version"`
	RunID              string           `json:"run_id"`
	CreatedAt          time.Time        `json:"created_at"`
	Schema             string           `json:"schema"`
	Driver             string           `json:"driver"`
	Status             string           `json:"status"`
	RowCounts          map[string]int64 `json:"row_counts"`
	OrphanCounts       map[string]int64 `json:"orphan_counts"`
	OutOfOrderMessages int64            `json:"out_of_order_messages"`
	DurationMs         int64            `json:"duration_ms"`
	Errors             []string         `json:"errors"`
	TeardownScript     string           `json:"teardown_script"`
	Generation         *generate.Report `json:"generation,omitempty"`
}

// Options configures a load run.
type Options struct {
	Schema    string
	OutputDir string
	// Environment is the settings-file environment marker.
	Environment string
	// Getenv reads the process environment markers.
	Getenv func(string) string
	// Generate, when set, writes a dataset before verification.
	Generate *generate.Options
	Clock    clock.Clock
	Logger   *zap.Logger
}

// Result is what Run wrote.
type Result struct {
	Metadata     *RunMetadata `json:"metadata"`
	MetadataPath string       `json:"metadata_path"`
	TeardownPath string       `json:"teardown_path"`
}

// CheckEnvironment returns a SAFETY_VIOLATION when any marker names a
// production environment.
func CheckEnvironment(getenv func(string) string, settingsEnv string) error {
	markers := map[string]string{"settings environment": settingsEnv}
	if getenv != nil {
		markers[EnvMarker] = getenv(EnvMarker)
		markers[EnvAppMarker] = getenv(EnvAppMarker)
	}
	for _, name := range []string{EnvMarker, EnvAppMarker, "settings environment"} {
		if config.IsProduction(markers[name]) {
			return failure.Safety("refusing to run against a production environment", name+"="+markers[name])
		}
	}
	return nil
}

// Run executes the load. The production guard runs before anything else.
func Run(ctx context.Context, t Target, opts Options) (*Result, error) {
	if err := CheckEnvironment(opts.Getenv, opts.Environment); err != nil {
		return nil, err
	}
	if opts.Clock == nil {
		opts.Clock = clock.Wall{}
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("loader")

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("run id: %w", err)
	}
	start := opts.Clock.Now()
	meta := &RunMetadata{
		Version:   artifact.Version,
		RunID:     id.String(),
		CreatedAt: start.UTC(),
		Schema:    opts.Schema,
		Driver:    t.Driver(),
		Status:    StatusSuccess,
		Errors:    []string{},
	}
	res := &Result{
		Metadata:     meta,
		MetadataPath: filepath.Join(opts.OutputDir, "run-"+meta.RunID+".json"),
		TeardownPath: filepath.Join(opts.OutputDir, "teardown-"+meta.RunID+".sql"),
	}
	meta.TeardownScript = res.TeardownPath

	// The teardown script is written first so cleanup exists even if the
	// rest of the run fails.
	if err := artifact.WriteFile(res.TeardownPath, []byte(TeardownScript(t.Driver(), opts.Schema))); err != nil {
		return nil, err
	}

	runErr := verify(ctx, t, opts, meta, log)
	meta.DurationMs = opts.Clock.Now().Sub(start).Milliseconds()
	if runErr != nil {
		meta.Status = StatusFailed
		meta.Errors = append(meta.Errors, runErr.Error())
	}
	if err := artifact.WriteJSON(res.MetadataPath, meta); err != nil {
		return res, err
	}
	log.Info("load finished",
		zap.String("status", meta.Status),
		zap.String("metadata", res.MetadataPath),
		zap.String("teardown", res.TeardownPath),
	)
	if runErr != nil {
		var fe *failure.Error
		if errors.As(runErr, &fe) {
			return res, fe.WithReport(res.MetadataPath)
		}
		return res, failure.Execution("load failed", runErr).WithReport(res.MetadataPath)
	}
	return res, nil
}

func verify(ctx context.Context, t Target, opts Options, meta *RunMetadata, log *zap.Logger) error {
	if opts.Generate != nil {
		g, err := generate.New(*opts.Generate)
		if err != nil {
			return err
		}
		report, err := g.Run(ctx, t)
		if err != nil {
			return err
		}
		meta.Generation = report
	}

	counts, err := t.RowCounts(ctx)
	if err != nil {
		return err
	}
	meta.RowCounts = counts

	orphans, err := t.OrphanCounts(ctx)
	if err != nil {
		return err
	}
	meta.OrphanCounts = orphans
	outOfOrder, err := t.OutOfOrderMessages(ctx)
	if err != nil {
		return err
	}
	meta.OutOfOrderMessages = outOfOrder

	details := make(map[string]int64)
	for _, name := range store.OrphanCheckNames() {
		if n := orphans[name]; n > 0 {
			details[name] = n
		}
	}
	if outOfOrder > 0 {
		details["out_of_order_messages"] = outOfOrder
	}
	if len(details) > 0 {
		for name, n := range details {
			log.Error("integrity check failed", zap.String("check", name), zap.Int64("count", n))
		}
		return failure.Integrity(fmt.Sprintf("%d integrity check(s) failed", len(details)), details)
	}
	return nil
}

// Teardown runs a previously generated teardown script.
func Teardown(ctx context.Context, s interface {
	ExecScript(ctx context.Context, script string) error
}, script string, getenv func(string) string, settingsEnv string) error {
	if err := CheckEnvironment(getenv, settingsEnv); err != nil {
		return err
	}
	return s.ExecScript(ctx, script)
}
