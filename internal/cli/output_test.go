package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chatshape/internal/failure"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Success(map[string]string{"result": "success"}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Success("dataset loaded"))
	assert.Contains(t, buf.String(), "dataset loaded")
}

func TestOutputFormatter_FailJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	cause := failure.Integrity("2 integrity check(s) failed", map[string]int64{"messages_missing_sender": 3}).
		WithReport("out/run-1.json")
	err := formatter.Fail(cause)

	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, failure.Is(err, failure.KindIntegrity))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "DATA_INTEGRITY_ERROR", resp.Error.Code)
	assert.Equal(t, "out/run-1.json", resp.Error.ReportPath)
	assert.Equal(t, int64(3), resp.Error.Details["messages_missing_sender"])
}

func TestOutputFormatter_FailText(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	err := formatter.Fail(failure.Configuration("anonymization secret too short", failure.Redact("abc")))
	require.Error(t, err)
	assert.Contains(t, buf.String(), "Error [CONFIGURATION_ERROR]")
	assert.Contains(t, buf.String(), "<redacted len=3>")
	assert.NotContains(t, buf.String(), "abc\n")
}

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"configuration", failure.Configuration("bad", ""), ExitFailure},
		{"safety", failure.Safety("prod", ""), ExitFailure},
		{"integrity", failure.Integrity("orphans", nil), ExitFailure},
		{"statistical", failure.Statistical("NO-GO", "r.json"), ExitFailure},
		{"execution", failure.Execution("unreachable", errors.New("dial")), ExitCommandError},
		{"timeout", context.DeadlineExceeded, ExitCommandError},
		{"unknown", errors.New("boom"), ExitCommandError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCodeFor(tt.err))
		})
	}
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &bytes.Buffer{}
			diag := &bytes.Buffer{}
			formatter := &OutputFormatter{Format: "json", Writer: out, ErrWriter: diag, Verbose: tt.verbose}

			formatter.VerboseLog("applied %d index statement(s)", 4)

			assert.Empty(t, out.String())
			if tt.wantLog {
				assert.Contains(t, diag.String(), "applied 4 index statement(s)")
			} else {
				assert.Empty(t, diag.String())
			}
		})
	}
}
