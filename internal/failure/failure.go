// Package failure defines the error taxonomy shared by every pipeline stage.
//
// Kinds:
//   - CONFIGURATION_ERROR: missing/invalid secret, tolerance or flag; raised
//     before any I/O.
//   - SAFETY_VIOLATION: production guard tripped or PII detected in an
//     artifact about to be exported; raised before anything is written.
//   - DATA_INTEGRITY_ERROR: orphaned rows, out-of-order timestamps, null
//     references; fatal for the stage, reported with exact counts.
//   - STATISTICAL_VALIDATION_FAILURE: a NO-GO verdict. Expected outcome,
//     communicated through the report and the exit code.
//   - EXECUTION_ERROR: store unreachable or timed out.
package failure

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind categorizes a pipeline error.
type Kind string

const (
	KindConfiguration Kind = "CONFIGURATION_ERROR"
	KindSafety        Kind = "SAFETY_VIOLATION"
	KindIntegrity     Kind = "DATA_INTEGRITY_ERROR"
	KindStatistical   Kind = "STATISTICAL_VALIDATION_FAILURE"
	KindExecution     Kind = "EXECUTION_ERROR"
)

// Error is the structured pipeline error.
type Error struct {
	// Kind is the taxonomy category.
	Kind Kind

	// Message is a human-readable description.
	Message string

	// Value is the offending value, already redacted when sensitive.
	Value string

	// ReportPath points at the structured report that explains the failure,
	// when one was written.
	ReportPath string

	// Details carries exact counts or other structured context.
	Details map[string]int64

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Value != "" {
		fmt.Fprintf(&b, " (value=%s)", e.Value)
	}
	if e.ReportPath != "" {
		fmt.Fprintf(&b, " (report=%s)", e.ReportPath)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithReport returns a copy of the error pointing at a report path.
func (e *Error) WithReport(path string) *Error {
	cp := *e
	cp.ReportPath = path
	return &cp
}

// Configuration builds a CONFIGURATION_ERROR.
func Configuration(message, value string) *Error {
	return &Error{Kind: KindConfiguration, Message: message, Value: value}
}

// Safety builds a SAFETY_VIOLATION.
func Safety(message, value string) *Error {
	return &Error{Kind: KindSafety, Message: message, Value: value}
}

// Integrity builds a DATA_INTEGRITY_ERROR with exact counts.
func Integrity(message string, details map[string]int64) *Error {
	return &Error{Kind: KindIntegrity, Message: message, Details: details}
}

// Statistical builds a STATISTICAL_VALIDATION_FAILURE for a NO-GO verdict.
func Statistical(message, reportPath string) *Error {
	return &Error{Kind: KindStatistical, Message: message, ReportPath: reportPath}
}

// Execution wraps a store failure as an EXECUTION_ERROR.
func Execution(message string, err error) *Error {
	return &Error{Kind: KindExecution, Message: message, Err: err}
}

// KindOf extracts the kind from an error chain.
// Deadline and cancellation errors without a taxonomy wrapper count as
// EXECUTION_ERROR. Returns "" for anything else.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindExecution
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Redact masks a sensitive value, keeping only its length.
func Redact(value string) string {
	if value == "" {
		return "<empty>"
	}
	return fmt.Sprintf("<redacted len=%d>", len(value))
}
