package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chatshape/internal/failure"
)

func noEnv(string) string { return "" }

func writeSettings(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_DefaultsAreValid(t *testing.T) {
	s, err := Load("", noEnv)
	require.NoError(t, err)
	assert.Equal(t, "sqlite3", s.Store.Driver)
	assert.Equal(t, 30*time.Second, s.Store.StatementTimeout)
	assert.Equal(t, 1000, s.Generate.BatchSize)
	assert.Equal(t, 90*24*time.Hour, s.Retention())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeSettings(t, `
store:
  driver: postgres
  dsn: postgres://localhost/chat?sslmode=disable
  schema: perf_run
  statement_timeout: 5s
generate:
  batch_size: 2500
artifacts:
  backend: local
  dir: ./artifacts
`)
	s, err := Load(path, noEnv)
	require.NoError(t, err)
	assert.Equal(t, "postgres", s.Store.Driver)
	assert.Equal(t, "perf_run", s.Store.Schema)
	assert.Equal(t, 5*time.Second, s.Store.StatementTimeout)
	assert.Equal(t, 2500, s.Generate.BatchSize)
	assert.Equal(t, 2, s.Generate.InFlightBatches, "unset fields keep defaults")
	assert.Equal(t, 3, s.Store.ReadRetries)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	env := map[string]string{
		EnvDriver:      "postgres",
		EnvDSN:         "postgres://db/x",
		EnvEnvironment: "staging",
	}
	s, err := Load("", func(k string) string { return env[k] })
	require.NoError(t, err)
	assert.Equal(t, "postgres", s.Store.Driver)
	assert.Equal(t, "postgres://db/x", s.Store.DSN)
	assert.Equal(t, "staging", s.Environment)
}

func TestLoad_RejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown driver", "store:\n  driver: mysql\n"},
		{"zero batch size", "generate:\n  batch_size: 0\n"},
		{"bad schema name", "store:\n  schema: \"drop table;\"\n"},
		{"s3 without bucket", "artifacts:\n  backend: s3\n"},
		{"local without dir", "artifacts:\n  backend: local\n"},
		{"malformed yaml", "store: [unclosed\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeSettings(t, tt.body), noEnv)
			require.Error(t, err)
			assert.True(t, failure.Is(err, failure.KindConfiguration), "got %v", err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), noEnv)
	require.Error(t, err)
	assert.True(t, failure.Is(err, failure.KindConfiguration))
}

func TestIsProduction(t *testing.T) {
	assert.True(t, IsProduction("production"))
	assert.True(t, IsProduction("", "PROD"))
	assert.True(t, IsProduction(" prod "))
	assert.False(t, IsProduction("staging", "dev"))
	assert.False(t, IsProduction())
}
