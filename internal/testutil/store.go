// Package testutil holds fixtures shared by package tests: migrated
// temp-file stores and small deterministic datasets.
package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/chatshape/internal/artifact"
	"github.com/roach88/chatshape/internal/clock"
	"github.com/roach88/chatshape/internal/generate"
	"github.com/roach88/chatshape/internal/store"
)

// Epoch is the fixed clock start used by fixtures.
var Epoch = time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

// OpenStore creates a migrated temp-file sqlite store closed at cleanup.
func OpenStore(t testing.TB) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), store.Options{
		Driver:      store.DriverSQLite,
		DSN:         filepath.Join(t.TempDir(), "test.db"),
		Timeout:     10 * time.Second,
		ReadRetries: 1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// NewClock returns a fixed clock at Epoch advancing a millisecond per read.
func NewClock() *clock.Fixed {
	return clock.NewFixed(Epoch, time.Millisecond)
}

// GenerateOptions returns generator options for band and seed with the
// default spec and a fixed clock.
func GenerateOptions(band generate.Band, seed string) *generate.Options {
	return &generate.Options{
		Spec:      artifact.DefaultSpec(),
		Band:      band,
		Seed:      seed,
		BatchSize: 250,
		InFlight:  2,
		Clock:     NewClock(),
	}
}

// Generate writes a dataset for band and seed into s.
func Generate(t testing.TB, s *store.Store, band generate.Band, seed string) *generate.Report {
	t.Helper()
	g, err := generate.New(*GenerateOptions(band, seed))
	require.NoError(t, err)
	report, err := g.Run(context.Background(), s)
	require.NoError(t, err)
	return report
}
