package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/chatshape/internal/artifact"
	"github.com/roach88/chatshape/internal/clock"
	"github.com/roach88/chatshape/internal/config"
	"github.com/roach88/chatshape/internal/loader"
	"github.com/roach88/chatshape/internal/logging"
	"github.com/roach88/chatshape/internal/store"
)

// session is the per-invocation state shared by every command: output,
// logger and settings.
type session struct {
	root     *RootOptions
	out      *OutputFormatter
	log      *zap.Logger
	settings *config.Settings
}

func newSession(root *RootOptions, cmd *cobra.Command) *session {
	return &session{
		root: root,
		out: &OutputFormatter{
			Format:    root.Format,
			Writer:    cmd.OutOrStdout(),
			ErrWriter: cmd.ErrOrStderr(),
			Verbose:   root.Verbose,
		},
		log: logging.New(cmd.ErrOrStderr(), root.Verbose),
	}
}

func (s *session) getenv(key string) string {
	if s.root.Getenv == nil {
		return ""
	}
	return s.root.Getenv(key)
}

func (s *session) clock() clock.Clock {
	if s.root.Clock == nil {
		return clock.Wall{}
	}
	return s.root.Clock
}

// loadSettings reads settings from path, or the global --settings flag when
// path is empty.
func (s *session) loadSettings(path string) error {
	if path == "" {
		path = s.root.Settings
	}
	settings, err := config.Load(path, s.getenv)
	if err != nil {
		return err
	}
	s.settings = settings
	return nil
}

// openStore opens the configured store. Sampling opens without migrating.
func (s *session) openStore(ctx context.Context, schema string, skipMigrate bool) (*store.Store, error) {
	st := s.settings.Store
	if schema == "" {
		schema = st.Schema
	}
	return store.Open(ctx, store.Options{
		Driver:      st.Driver,
		DSN:         st.DSN,
		Schema:      schema,
		Timeout:     st.StatementTimeout,
		ReadRetries: st.ReadRetries,
		SkipMigrate: skipMigrate,
		Logger:      s.log,
	})
}

// artifactStore returns the configured publication target, or nil when
// the backend is "none".
func (s *session) artifactStore(ctx context.Context) (artifact.Store, error) {
	a := s.settings.Artifacts
	switch a.Backend {
	case "local":
		return artifact.NewLocalStore(a.Dir)
	case "s3":
		return artifact.NewS3Store(ctx, artifact.S3Config{
			Bucket:       a.Bucket,
			Prefix:       a.Prefix,
			Region:       a.Region,
			Endpoint:     a.Endpoint,
			UsePathStyle: a.UsePathStyle,
			MaxRetries:   3,
		})
	default:
		return nil, nil
	}
}

// publish copies an artifact to the configured store. Publication is
// best effort: the local file has already been written.
func (s *session) publish(ctx context.Context, key string, data []byte) {
	as, err := s.artifactStore(ctx)
	if err != nil {
		s.log.Warn("artifact store unavailable", zap.Error(err))
		return
	}
	if as == nil {
		return
	}
	if err := as.Put(ctx, key, data); err != nil {
		s.log.Warn("publish failed", zap.String("key", key), zap.Error(err))
		return
	}
	s.log.Info("artifact published", zap.String("key", key))
}

// writeArtifact encodes v, writes it to path and publishes it under key.
func (s *session) writeArtifact(ctx context.Context, path, key string, v any) error {
	data, err := artifact.Encode(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := artifact.WriteFile(path, data); err != nil {
		return err
	}
	if key != "" {
		s.publish(ctx, key, data)
	}
	return nil
}

// done syncs the logger; zap returns spurious errors for terminals.
func (s *session) done() {
	_ = s.log.Sync()
}

// verdict reports a GO/NO-GO outcome. GO prints result. NO-GO prints result
// too in text mode, then the failure; JSON output carries only the failure
// so stdout stays a single document.
func (s *session) verdict(result any, noGo error) error {
	if noGo == nil {
		return s.out.Success(result)
	}
	if s.out.Format != "json" {
		if err := s.out.Success(result); err != nil {
			return err
		}
	}
	return s.out.Fail(noGo)
}

// guard refuses writing commands in a production environment.
func (s *session) guard() error {
	return loader.CheckEnvironment(s.getenv, s.settings.Environment)
}
