// Package fidelity decides whether a generated dataset is close enough to a
// target shape to be trusted for performance work.
//
// Validate measures the dataset with the same collector the shape sampler
// uses, then Evaluate runs the critical integrity checks and the
// distribution battery. Chi-square decisions use a critical-value table
// keyed by degrees of freedom rather than an exact p-value.
package fidelity

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/roach88/chatshape/internal/artifact"
	"github.com/roach88/chatshape/internal/clock"
	"github.com/roach88/chatshape/internal/failure"
	"github.com/roach88/chatshape/internal/generate"
	"github.com/roach88/chatshape/internal/shape"
)

// DefaultHeavyRoomFloor is the message count a heavy room must exceed.
const DefaultHeavyRoomFloor = 500

// Target is the generated dataset under validation.
type Target interface {
	shape.Aggregator
	NonSyntheticEmails(ctx context.Context, prefix, domain string) (int64, error)
	OrphanCounts(ctx context.Context) (map[string]int64, error)
	OutOfOrderMessages(ctx context.Context) (int64, error)
	ConversationsAbove(ctx context.Context, since, floor int64) (int64, error)
}

// Options configures Validate.
type Options struct {
	// Tolerance is the normal band; zero means DefaultTolerance.
	Tolerance      float64
	HeavyRoomFloor int64
	SampleCap      int
	Clock          clock.Clock
	Logger         *zap.Logger
}

// Validate measures t and evaluates it against expected. A NO-GO verdict is
// a normal outcome carried in the report, not an error; see Report.Err.
func Validate(ctx context.Context, t Target, expected *artifact.ShapeMetrics, opts Options) (*Report, error) {
	if opts.Tolerance == 0 {
		opts.Tolerance = DefaultTolerance
	}
	tol, err := NewTolerance(opts.Tolerance)
	if err != nil {
		return nil, err
	}
	if opts.HeavyRoomFloor <= 0 {
		opts.HeavyRoomFloor = DefaultHeavyRoomFloor
	}
	if opts.Clock == nil {
		opts.Clock = clock.Wall{}
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("fidelity")

	fp, err := artifact.Fingerprint(artifact.DomainShape, expected)
	if err != nil {
		return nil, err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("run id: %w", err)
	}

	now := opts.Clock.Now()
	actual, err := shape.Collect(ctx, t, shape.Options{Now: now, SampleCap: opts.SampleCap})
	if err != nil {
		return nil, err
	}
	obs, err := observe(ctx, t, opts.HeavyRoomFloor)
	if err != nil {
		return nil, err
	}

	r := Evaluate(expected, actual, obs, tol, opts.HeavyRoomFloor)
	r.RunID = id.String()
	r.CreatedAt = now.UTC()
	r.Shape.Fingerprint = fp

	log.Info("fidelity evaluated",
		zap.String("decision", r.Decision),
		zap.Int("pass", r.Summary.Pass),
		zap.Int("warn", r.Summary.Warn),
		zap.Int("fail", r.Summary.Fail),
		zap.Int("skip", r.Summary.Skip),
	)
	for _, c := range r.Checks {
		if c.Status == StatusWarn || c.Status == StatusFail {
			log.Warn("check did not pass",
				zap.String("check", c.Name),
				zap.String("status", c.Status),
				zap.Float64("expected", c.Expected),
				zap.Float64("actual", c.Actual),
				zap.Float64("deviation", c.Deviation),
			)
		}
	}
	return r, nil
}

func observe(ctx context.Context, t Target, floor int64) (Observations, error) {
	var (
		obs Observations
		err error
	)
	if obs.NonSyntheticEmails, err = t.NonSyntheticEmails(ctx, generate.EmailPrefix, generate.EmailDomain); err != nil {
		return obs, err
	}
	if obs.Orphans, err = t.OrphanCounts(ctx); err != nil {
		return obs, err
	}
	if obs.OutOfOrderMessages, err = t.OutOfOrderMessages(ctx); err != nil {
		return obs, err
	}
	obs.HeavyRooms, err = t.ConversationsAbove(ctx, 0, floor)
	return obs, err
}

// Err returns a STATISTICAL_VALIDATION_FAILURE pointing at reportPath when
// the decision is NO-GO.
func (r *Report) Err(reportPath string) error {
	if r.Decision == DecisionGo {
		return nil
	}
	return failure.Statistical(fmt.Sprintf("fidelity NO-GO: %d warning(s), %d failure(s)", r.Summary.Warn, r.Summary.Fail), reportPath)
}
