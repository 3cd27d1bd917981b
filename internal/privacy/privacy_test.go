package privacy

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chatshape/internal/failure"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestNewAnonymizer_RejectsMissingSecret(t *testing.T) {
	_, err := NewAnonymizer("")
	require.Error(t, err)
	assert.True(t, failure.Is(err, failure.KindConfiguration))
}

func TestNewAnonymizer_RejectsShortSecret(t *testing.T) {
	_, err := NewAnonymizer(strings.Repeat("x", MinSecretLength-1))
	require.Error(t, err)
	assert.True(t, failure.Is(err, failure.KindConfiguration))
	assert.NotContains(t, err.Error(), "xxxx", "secret must not be echoed")
}

func TestToken_Deterministic(t *testing.T) {
	a, err := NewAnonymizer(testSecret)
	require.NoError(t, err)

	tok := a.Token("alice@example.com")
	assert.Len(t, tok, TokenLength)
	assert.Equal(t, tok, a.Token("alice@example.com"))
	assert.NotEqual(t, tok, a.Token("bob@example.com"))
}

func TestProperty_TokenDeterminismAndSecretSeparation(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	secretGen := gen.SliceOfN(MinSecretLength, gen.AlphaNumChar()).Map(func(rs []rune) string {
		return string(rs)
	})

	properties.Property("same secret and identifier give the same token", prop.ForAll(
		func(secret, id string) bool {
			a, err := NewAnonymizer(secret)
			if err != nil {
				return false
			}
			return a.Token(id) == a.Token(id)
		},
		secretGen,
		gen.AnyString(),
	))

	properties.Property("different secrets give different tokens", prop.ForAll(
		func(s1, s2, id string) bool {
			if s1 == s2 {
				return true
			}
			a1, err1 := NewAnonymizer(s1)
			a2, err2 := NewAnonymizer(s2)
			if err1 != nil || err2 != nil {
				return false
			}
			return a1.Token(id) != a2.Token(id)
		},
		secretGen,
		secretGen,
		gen.AnyString(),
	))

	properties.Property("tokens never contain the identifier", prop.ForAll(
		func(secret, id string) bool {
			a, err := NewAnonymizer(secret)
			if err != nil {
				return false
			}
			tok := a.Token(id)
			// An identifier made only of hex digits could coincide by chance
			// with a short slice of the token; longer ones never should.
			if len(id) < 6 {
				return true
			}
			return !strings.Contains(tok, id)
		},
		secretGen,
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

func TestScan_DetectsPatterns(t *testing.T) {
	findings := Scan([]byte(`{"note":"contact jane@corp.io","name":"Jane Doe"}`))
	require.Len(t, findings, 2)
	assert.Equal(t, "at-sign", findings[0].Pattern)
	assert.Equal(t, "capitalized-name", findings[1].Pattern)
}

func TestScan_AllowsAggregateKeys(t *testing.T) {
	data := []byte(`{"privacy_level":"aggregate-only","type_distribution":{"DIRECT_MESSAGE":700,"GROUP_CHAT":300}}`)
	assert.Empty(t, Scan(data))
}

func TestGuard(t *testing.T) {
	require.NoError(t, Guard("shape metrics", []byte(`{"count":3}`)))

	err := Guard("shape metrics", []byte(`{"email":"x@y"}`))
	require.Error(t, err)
	assert.True(t, failure.Is(err, failure.KindSafety))
	assert.NotContains(t, err.Error(), "x@y")
}
