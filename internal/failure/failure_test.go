package failure

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Format(t *testing.T) {
	err := Configuration("anonymization secret too short", Redact("abc"))
	assert.Equal(t, "CONFIGURATION_ERROR: anonymization secret too short (value=<redacted len=3>)", err.Error())

	withReport := Statistical("fidelity NO-GO", "/tmp/fidelity.json")
	assert.Contains(t, withReport.Error(), "(report=/tmp/fidelity.json)")
}

func TestKindOf_ThroughWrapping(t *testing.T) {
	base := Integrity("orphaned rows", map[string]int64{"messages_missing_sender": 3})
	wrapped := fmt.Errorf("load: %w", base)

	assert.Equal(t, KindIntegrity, KindOf(wrapped))
	assert.True(t, Is(wrapped, KindIntegrity))
	assert.False(t, Is(wrapped, KindSafety))

	var fe *Error
	require.True(t, errors.As(wrapped, &fe))
	assert.Equal(t, int64(3), fe.Details["messages_missing_sender"])
}

func TestKindOf_DeadlineIsExecution(t *testing.T) {
	err := fmt.Errorf("query: %w", context.DeadlineExceeded)
	assert.Equal(t, KindExecution, KindOf(err))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}

func TestExecution_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Execution("store unreachable", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestWithReport_Copies(t *testing.T) {
	orig := Integrity("orphans", nil)
	cp := orig.WithReport("run.json")
	assert.Empty(t, orig.ReportPath)
	assert.Equal(t, "run.json", cp.ReportPath)
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "<empty>", Redact(""))
	assert.NotContains(t, Redact("super-secret-value"), "secret")
}
