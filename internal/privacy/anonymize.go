// Package privacy holds the controls that keep shape extraction free of PII.
//
// Anonymizer turns identifiers into stable one-way tokens so the sampler can
// count duplicates without exporting the identity. Scan is the last-line
// heuristic run over every artifact before it is written. Neither is a formal
// privacy proof: Scan is pattern based and can miss encodings it does not
// know about. They are layered controls on top of the aggregate-only queries.
package privacy

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/roach88/chatshape/internal/failure"
)

// SecretEnv is the environment variable carrying the anonymization secret.
const SecretEnv = "ANONYMIZATION_SALT"

// MinSecretLength is the shortest accepted secret.
const MinSecretLength = 32

// TokenLength is the number of hex characters kept from the HMAC.
const TokenLength = 16

// Anonymizer computes HMAC-SHA256 tokens under a fixed secret.
type Anonymizer struct {
	secret []byte
}

// ValidateSecret checks the secret precondition without retaining it.
func ValidateSecret(secret string) error {
	if secret == "" {
		return failure.Configuration(SecretEnv+" is not set", failure.Redact(secret))
	}
	if len(secret) < MinSecretLength {
		return failure.Configuration(
			SecretEnv+" must be at least 32 characters",
			failure.Redact(secret),
		)
	}
	return nil
}

// NewAnonymizer returns an Anonymizer, or a CONFIGURATION_ERROR when the
// secret is absent or shorter than MinSecretLength.
func NewAnonymizer(secret string) (*Anonymizer, error) {
	if err := ValidateSecret(secret); err != nil {
		return nil, err
	}
	return &Anonymizer{secret: []byte(secret)}, nil
}

// Token returns the first 16 hex characters of HMAC-SHA256(secret, identifier).
// The same identifier always yields the same token; without the secret the
// token cannot be inverted.
func (a *Anonymizer) Token(identifier string) string {
	mac := hmac.New(sha256.New, a.secret)
	mac.Write([]byte(identifier))
	return hex.EncodeToString(mac.Sum(nil))[:TokenLength]
}
