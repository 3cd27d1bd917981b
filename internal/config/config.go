// Package config loads run settings.
//
// Settings are read from YAML over the values in Default, then overridden
// from the environment, then validated against an embedded CUE schema. A
// settings value that reaches the rest of the program has passed validation.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cueyaml "cuelang.org/go/encoding/yaml"
	"gopkg.in/yaml.v3"

	"github.com/roach88/chatshape/internal/failure"
)

// Environment variables that override file settings.
const (
	EnvDriver      = "CHATSHAPE_DB_DRIVER"
	EnvDSN         = "CHATSHAPE_DB_DSN"
	EnvEnvironment = "CHATSHAPE_ENV"
)

//go:embed schema.cue
var schema string

// Settings holds everything a command needs besides its own flags.
type Settings struct {
	// Environment names the deployment context. "production" or "prod"
	// makes every writing command refuse to run.
	Environment string           `yaml:"environment,omitempty"`
	Store       StoreSettings    `yaml:"store"`
	Generate    GenerateSettings `yaml:"generate"`
	Artifacts   ArtifactSettings `yaml:"artifacts"`
	Sampler     SamplerSettings  `yaml:"sampler"`
	Fidelity    FidelitySettings `yaml:"fidelity"`
}

// StoreSettings selects and tunes the relational store.
type StoreSettings struct {
	Driver           string        `yaml:"driver"`
	DSN              string        `yaml:"dsn"`
	Schema           string        `yaml:"schema"`
	StatementTimeout time.Duration `yaml:"statement_timeout"`
	ReadRetries      int           `yaml:"read_retries"`
}

// GenerateSettings tunes bulk writes.
type GenerateSettings struct {
	BatchSize       int `yaml:"batch_size"`
	InFlightBatches int `yaml:"in_flight_batches"`
}

// ArtifactSettings selects where artifacts are published besides the
// paths given on the command line.
type ArtifactSettings struct {
	Backend       string `yaml:"backend"`
	Dir           string `yaml:"dir,omitempty"`
	Bucket        string `yaml:"bucket,omitempty"`
	Prefix        string `yaml:"prefix,omitempty"`
	Region        string `yaml:"region,omitempty"`
	Endpoint      string `yaml:"endpoint,omitempty"`
	UsePathStyle  bool   `yaml:"use_path_style"`
	RetentionDays int    `yaml:"retention_days"`
}

// SamplerSettings bounds the sampler's raw-value pulls.
type SamplerSettings struct {
	// SampleCap is the most raw values pulled for one percentile ladder.
	SampleCap int `yaml:"sample_cap"`
}

// FidelitySettings tunes the fidelity battery.
type FidelitySettings struct {
	// HeavyRoomFloor is the message count a conversation must exceed to
	// count toward the heavy-room presence check.
	HeavyRoomFloor int `yaml:"heavy_room_floor"`
}

// Default returns the settings used when no file is given.
func Default() *Settings {
	return &Settings{
		Store: StoreSettings{
			Driver:           "sqlite3",
			DSN:              "chatshape.db",
			Schema:           "public",
			StatementTimeout: 30 * time.Second,
			ReadRetries:      3,
		},
		Generate: GenerateSettings{
			BatchSize:       1000,
			InFlightBatches: 2,
		},
		Artifacts: ArtifactSettings{
			Backend:       "none",
			RetentionDays: 90,
		},
		Sampler:  SamplerSettings{SampleCap: 100000},
		Fidelity: FidelitySettings{HeavyRoomFloor: 500},
	}
}

// Load reads settings from path (empty means defaults only), applies
// environment overrides through getenv, and validates the result.
// Every failure is a CONFIGURATION_ERROR.
func Load(path string, getenv func(string) string) (*Settings, error) {
	s := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, failure.Configuration(fmt.Sprintf("cannot read settings: %v", err), path)
		}
		if err := yaml.Unmarshal(data, s); err != nil {
			return nil, failure.Configuration(fmt.Sprintf("malformed settings: %v", err), path)
		}
	}
	if getenv == nil {
		getenv = os.Getenv
	}
	s.applyEnv(getenv)
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) applyEnv(getenv func(string) string) {
	if v := getenv(EnvDriver); v != "" {
		s.Store.Driver = v
	}
	if v := getenv(EnvDSN); v != "" {
		s.Store.DSN = v
	}
	if v := getenv(EnvEnvironment); v != "" {
		s.Environment = v
	}
}

// Validate checks s against the embedded CUE schema.
func (s *Settings) Validate() error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	file, err := cueyaml.Extract("settings.yaml", data)
	if err != nil {
		return failure.Configuration("settings are not valid YAML", err.Error())
	}

	ctx := cuecontext.New()
	def := ctx.CompileString(schema, cue.Filename("schema.cue")).LookupPath(cue.ParsePath("#Settings"))
	if err := def.Err(); err != nil {
		return fmt.Errorf("compile settings schema: %w", err)
	}
	value := def.Unify(ctx.BuildFile(file))
	if err := value.Validate(cue.Concrete(true)); err != nil {
		errs := cueerrors.Errors(err)
		msg := err.Error()
		if len(errs) > 0 {
			msg = errs[0].Error()
		}
		return failure.Configuration("invalid settings", msg)
	}
	if s.Store.StatementTimeout <= 0 {
		return failure.Configuration("statement_timeout must be positive", s.Store.StatementTimeout.String())
	}
	return nil
}

// IsProduction reports whether an environment marker names production.
func IsProduction(values ...string) bool {
	for _, v := range values {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "production", "prod":
			return true
		}
	}
	return false
}

// Retention returns the shape retention period.
func (s *Settings) Retention() time.Duration {
	return time.Duration(s.Artifacts.RetentionDays) * 24 * time.Hour
}
