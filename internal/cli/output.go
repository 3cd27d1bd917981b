package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/roach88/chatshape/internal/failure"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution, GO verdicts
	ExitFailure      = 1 // Configuration, safety, integrity errors and NO-GO verdicts
	ExitCommandError = 2 // Execution errors (store unreachable, timeouts) and unclassified errors
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// ExitCodeFor maps a failure kind to its exit code.
func ExitCodeFor(err error) int {
	switch failure.KindOf(err) {
	case failure.KindConfiguration, failure.KindSafety, failure.KindIntegrity, failure.KindStatistical:
		return ExitFailure
	default:
		return ExitCommandError
	}
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code       string           `json:"code"` // failure kind, e.g. "SAFETY_VIOLATION"
	Message    string           `json:"message"`
	Value      string           `json:"value,omitempty"`
	ReportPath string           `json:"report_path,omitempty"`
	Details    map[string]int64 `json:"details,omitempty"`
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(e *CLIError) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error:  e,
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", e.Code, e.Message)
	if e.Value != "" {
		fmt.Fprintf(f.Writer, "  value:  %s\n", e.Value)
	}
	if e.ReportPath != "" {
		fmt.Fprintf(f.Writer, "  report: %s\n", e.ReportPath)
	}
	for _, k := range slices.Sorted(maps.Keys(e.Details)) {
		fmt.Fprintf(f.Writer, "  %s: %d\n", k, e.Details[k])
	}
	return nil
}

// Fail prints err and returns the ExitError the command should return.
func (f *OutputFormatter) Fail(err error) error {
	ce := &CLIError{Code: string(failure.KindExecution), Message: err.Error()}
	var fe *failure.Error
	if errors.As(err, &fe) {
		ce = &CLIError{
			Code:       string(fe.Kind),
			Message:    fe.Message,
			Value:      fe.Value,
			ReportPath: fe.ReportPath,
			Details:    fe.Details,
		}
		if fe.Err != nil {
			ce.Message = fmt.Sprintf("%s: %v", fe.Message, fe.Err)
		}
	}
	if outErr := f.Error(ce); outErr != nil {
		return outErr
	}
	return WrapExitError(ExitCodeFor(err), ce.Message, err)
}

// VerboseLog outputs a message only if verbose mode is enabled.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
