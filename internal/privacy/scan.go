package privacy

import (
	"fmt"
	"regexp"

	"github.com/roach88/chatshape/internal/failure"
)

// Finding is one disallowed pattern match in an artifact.
type Finding struct {
	Pattern string `json:"pattern"`
	Offset  int    `json:"offset"`
}

var (
	// Anything with an at-sign may be an email or handle.
	emailPattern = regexp.MustCompile(`@`)
	// Two adjacent capitalized words look like a personal name.
	namePattern = regexp.MustCompile(`\b[A-Z][a-z]+\s+[A-Z][a-z]+\b`)
)

// Scan reports every disallowed pattern in data.
func Scan(data []byte) []Finding {
	var findings []Finding
	for _, loc := range emailPattern.FindAllIndex(data, -1) {
		findings = append(findings, Finding{Pattern: "at-sign", Offset: loc[0]})
	}
	for _, loc := range namePattern.FindAllIndex(data, -1) {
		findings = append(findings, Finding{Pattern: "capitalized-name", Offset: loc[0]})
	}
	return findings
}

// Guard returns a SAFETY_VIOLATION when Scan finds anything in data.
// The matched text itself is not echoed back.
func Guard(artifact string, data []byte) error {
	findings := Scan(data)
	if len(findings) == 0 {
		return nil
	}
	return failure.Safety(
		fmt.Sprintf("%s contains %d disallowed pattern(s); refusing to write", artifact, len(findings)),
		fmt.Sprintf("%s at offset %d", findings[0].Pattern, findings[0].Offset),
	)
}
