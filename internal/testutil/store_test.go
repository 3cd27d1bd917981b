package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chatshape/internal/generate"
)

func TestGenerate_MatchesReportedCounts(t *testing.T) {
	s := OpenStore(t)
	report := Generate(t, s, generate.BandSmoke, "fixture")

	counts, err := s.RowCounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, report.RowCounts, counts)
	assert.Equal(t, generate.BandSmoke.Users, counts["users"])
}

func TestGenerate_SameSeedSameRows(t *testing.T) {
	a := Generate(t, OpenStore(t), generate.BandSmoke, "fixture")
	b := Generate(t, OpenStore(t), generate.BandSmoke, "fixture")
	assert.Equal(t, a.MessageFingerprint, b.MessageFingerprint)
}

func TestNewClock_StartsAtEpoch(t *testing.T) {
	c := NewClock()
	assert.True(t, c.Now().Equal(Epoch))
	assert.True(t, c.Now().After(Epoch))
}
