package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chatshape/internal/failure"
)

func TestMarshalCanonical_SortsKeysAndSkipsHTMLEscaping(t *testing.T) {
	got, err := MarshalCanonical(map[string]any{
		"b":  1,
		"a":  "<x&y>",
		"aa": []any{true, nil, 1.5},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"a":"<x&y>","aa":[true,null,1.5],"b":1}`, string(got))
}

func TestMarshalCanonical_NFCNormalizesStrings(t *testing.T) {
	decomposed, err := MarshalCanonical("e\u0301")
	require.NoError(t, err)
	composed, err := MarshalCanonical("\u00e9")
	require.NoError(t, err)
	assert.Equal(t, composed, decomposed)
}

func TestMarshalCanonical_UTF16KeyOrder(t *testing.T) {
	// U+1F600 is the surrogate pair D83D DE00, which sorts before U+FF61 in UTF-16
	// even though its UTF-8 encoding sorts after.
	got, err := MarshalCanonical(map[string]any{"\U0001F600": 1, "｡": 2})
	require.NoError(t, err)
	assert.Equal(t, "{\"\U0001F600\":1,\"｡\":2}", string(got))
}

func TestFingerprint_StableAndDomainSeparated(t *testing.T) {
	spec := DefaultSpec()
	a, err := Fingerprint(DomainSpec, spec)
	require.NoError(t, err)
	b, err := spec.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	other, err := Fingerprint(DomainShape, spec)
	require.NoError(t, err)
	assert.NotEqual(t, a, other)

	spec.MediaRatio = 0.2
	changed, err := spec.Fingerprint()
	require.NoError(t, err)
	assert.NotEqual(t, a, changed)
}

func TestDefaultSpec_Shape(t *testing.T) {
	spec := DefaultSpec()
	require.NoError(t, ValidateSpec(spec))

	assert.Len(t, spec.HourlyWeights, 24)
	assert.Len(t, spec.DayOfWeekWeights, 7)
	assert.Equal(t, []int{9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20}, spec.PeakHours)
	assert.True(t, spec.IsPeak(12))
	assert.False(t, spec.IsPeak(3))
	assert.Nil(t, spec.Source)

	var sum float64
	for _, w := range spec.HourlyWeights {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.Equal(t, []float64{0.70, 0.27, 0.03}, spec.ConversationWeights())
	assert.Equal(t, []float64{0.6, 0.2, 0.1, 0.1}, spec.MediaWeights())
}

func TestValidateSpec_RejectsBadFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Spec)
	}{
		{"short hourly vector", func(s *Spec) { s.HourlyWeights = s.HourlyWeights[:23] }},
		{"negative media ratio", func(s *Spec) { s.MediaRatio = -0.1 }},
		{"large group below channel size", func(s *Spec) { s.LargeGroup.Min = 5 }},
		{"inverted username bounds", func(s *Spec) { s.UsernameLength.Max = 1 }},
		{"zero trough rate", func(s *Spec) { s.InterArrival.TroughLambda = 0 }},
		{"unknown media type", func(s *Spec) { s.MediaTypeMix["GIF"] = 0.1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := DefaultSpec()
			tt.mutate(spec)
			err := ValidateSpec(spec)
			require.Error(t, err)
			assert.True(t, failure.Is(err, failure.KindConfiguration), "got %v", err)
		})
	}
}

func TestWriteFile_RefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "shape.json")
	require.NoError(t, WriteFile(path, []byte("first")))

	err := WriteFile(path, []byte("second"))
	require.Error(t, err)
	assert.True(t, failure.Is(err, failure.KindConfiguration))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))
}

func TestReadSpec_RoundTripsDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spec.json")
	spec := DefaultSpec()
	require.NoError(t, WriteJSON(path, spec))

	loaded, err := ReadSpec(path)
	require.NoError(t, err)
	assert.Equal(t, spec.PeakHours, loaded.PeakHours)
	assert.True(t, spec.Epoch.Equal(loaded.Epoch))

	want, err := spec.Fingerprint()
	require.NoError(t, err)
	got, err := loaded.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestReadSpec_InvalidIsConfigurationError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spec.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version": 2}`), 0o644))

	_, err := ReadSpec(path)
	require.Error(t, err)
	assert.True(t, failure.Is(err, failure.KindConfiguration))
}

func TestReadShape_ChecksPrivacyTag(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.json")
	require.NoError(t, WriteJSON(good, &ShapeMetrics{Version: Version, PrivacyLevel: PrivacyLevel}))
	_, err := ReadShape(good)
	require.NoError(t, err)

	bad := filepath.Join(dir, "bad.json")
	raw, _ := json.Marshal(map[string]any{"version": 1, "privacy_level": "raw"})
	require.NoError(t, os.WriteFile(bad, raw, 0o644))
	_, err = ReadShape(bad)
	assert.True(t, failure.Is(err, failure.KindConfiguration))
}

func TestShapeKey_RoundTrip(t *testing.T) {
	at := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	key := ShapeKey(at, "abcdef0123456789abcdef")
	assert.Equal(t, "shape/20250304T050607Z-abcdef012345.json", key)

	parsed, err := ParseShapeKey(key)
	require.NoError(t, err)
	assert.True(t, at.Equal(parsed))

	_, err = ParseShapeKey("reports/fidelity/x.json")
	assert.Error(t, err)
}

func TestLocalStore_WriteOnce(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "spec/a.json", []byte("a")))
	err = store.Put(ctx, "spec/a.json", []byte("b"))
	assert.True(t, errors.Is(err, ErrExists))

	data, err := store.Get(ctx, "spec/a.json")
	require.NoError(t, err)
	assert.Equal(t, "a", string(data))

	_, err = store.Get(ctx, "spec/missing.json")
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, store.Delete(ctx, "spec/a.json"))
	require.NoError(t, store.Delete(ctx, "spec/a.json"))
}

func TestPrune_RemovesOnlyExpiredShapes(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	old := ShapeKey(now.Add(-91*24*time.Hour), "aaaa")
	fresh := ShapeKey(now.Add(-10*24*time.Hour), "bbbb")
	for _, key := range []string{old, fresh, "shape/notes.txt", "spec/x.json"} {
		require.NoError(t, store.Put(ctx, key, []byte("{}")))
	}

	deleted, err := Prune(ctx, store, DefaultRetention, now)
	require.NoError(t, err)
	assert.Equal(t, []string{old}, deleted)

	remaining, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{fresh, "shape/notes.txt", "spec/x.json"}, remaining)
}

func TestShapeMetrics_Expired(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	m := &ShapeMetrics{ExtractedAt: now.Add(-100 * 24 * time.Hour)}
	assert.True(t, m.Expired(now, DefaultRetention))
	m.ExtractedAt = now.Add(-time.Hour)
	assert.False(t, m.Expired(now, DefaultRetention))
}
