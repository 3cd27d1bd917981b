package fidelity

import (
	"strconv"

	"github.com/roach88/chatshape/internal/failure"
)

// Band names a tolerance level.
type Band string

const (
	BandStrict  Band = "strict"
	BandNormal  Band = "normal"
	BandRelaxed Band = "relaxed"
)

// DefaultTolerance is the normal band.
const DefaultTolerance = 0.15

// Tolerance holds the maximum relative deviation per band.
type Tolerance struct {
	Strict  float64 `json:"strict"`
	Normal  float64 `json:"normal"`
	Relaxed float64 `json:"relaxed"`
}

// NewTolerance scales the bands from the normal value: strict is a third of
// it and relaxed is double.
func NewTolerance(normal float64) (Tolerance, error) {
	if !(normal > 0 && normal <= 1) {
		return Tolerance{}, failure.Configuration("tolerance must be in (0, 1]", strconv.FormatFloat(normal, 'g', -1, 64))
	}
	return Tolerance{Strict: normal / 3, Normal: normal, Relaxed: 2 * normal}, nil
}

// Of returns the limit for band.
func (t Tolerance) Of(b Band) float64 {
	switch b {
	case BandStrict:
		return t.Strict
	case BandRelaxed:
		return t.Relaxed
	default:
		return t.Normal
	}
}
