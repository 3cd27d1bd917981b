package shape

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/chatshape/internal/artifact"
	"github.com/roach88/chatshape/internal/clock"
	"github.com/roach88/chatshape/internal/failure"
	"github.com/roach88/chatshape/internal/privacy"
)

// Sampler extracts ShapeMetrics from a live store without exporting PII.
type Sampler struct {
	agg        Aggregator
	anonymizer *privacy.Anonymizer
	clock      clock.Clock
	sampleCap  int
	log        *zap.Logger
}

// NewSampler checks the anonymization secret before anything touches the
// store; a missing or short secret is a CONFIGURATION_ERROR.
func NewSampler(agg Aggregator, secret string, clk clock.Clock, sampleCap int, log *zap.Logger) (*Sampler, error) {
	anon, err := privacy.NewAnonymizer(secret)
	if err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.Wall{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Sampler{agg: agg, anonymizer: anon, clock: clk, sampleCap: sampleCap, log: log.Named("sampler")}, nil
}

// Result is a sampled artifact and its serialized, scanned form.
type Result struct {
	Metrics     *artifact.ShapeMetrics
	Encoded     []byte
	Fingerprint string
}

// Sample collects over the last windowDays and returns the encoded
// artifact. If the encoded artifact trips the PII scan, Sample returns a
// SAFETY_VIOLATION and no bytes.
func (s *Sampler) Sample(ctx context.Context, windowDays int) (*Result, error) {
	if windowDays < 1 {
		return nil, failure.Configuration("window-days must be at least 1", strconv.Itoa(windowDays))
	}
	start := s.clock.Now()
	m, err := Collect(ctx, s.agg, Options{
		WindowDays: windowDays,
		Now:        start,
		SampleCap:  s.sampleCap,
		Anonymizer: s.anonymizer,
	})
	if err != nil {
		return nil, err
	}
	encoded, err := artifact.Encode(m)
	if err != nil {
		return nil, err
	}
	if err := privacy.Guard("shape metrics", encoded); err != nil {
		s.log.Error("refusing to emit shape metrics", zap.Error(err))
		return nil, err
	}
	fp, err := artifact.Fingerprint(artifact.DomainShape, m)
	if err != nil {
		return nil, err
	}
	s.log.Info("shape sampled",
		zap.Int("window_days", windowDays),
		zap.Int64("users", m.Users.TotalCount),
		zap.Int64("conversations", m.Conversations.TotalCount),
		zap.Int64("messages", m.Messages.TotalCount),
		zap.Duration("elapsed", s.clock.Now().Sub(start).Round(time.Millisecond)),
	)
	return &Result{Metrics: m, Encoded: encoded, Fingerprint: fp}, nil
}
