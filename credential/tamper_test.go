package credential

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geni-nsf/am-contract-tests/fault"
)

func TestAlteredSignatureStaysWellFormed(t *testing.T) {
	c := validTestCredential(t)

	altered, err := c.AlteredSignature()
	require.NoError(t, err)
	assert.NotEqual(t, c.String(), altered)
	assert.Len(t, altered, len(c.String()))

	// The document must still parse, with the rights assertion untouched;
	// only the signature bytes changed.
	reparsed, err := Parse([]byte(altered))
	require.NoError(t, err)
	assert.Equal(t, c.TargetURN, reparsed.TargetURN)
	assert.Equal(t, c.Expires, reparsed.Expires)
}

func TestAlteredSignatureIsDeterministic(t *testing.T) {
	c := validTestCredential(t)

	first, err := c.AlteredSignature()
	require.NoError(t, err)
	second, err := c.AlteredSignature()
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, c.String(), validTestCredential(t).String(), "source credential must not change")
}

func TestAlteredSignatureKeepsPaddingInPlace(t *testing.T) {
	c := validTestCredential(t)
	original := c.String()

	altered, err := c.AlteredSignature()
	require.NoError(t, err)
	for i := range original {
		if original[i] == '=' {
			assert.Equal(t, byte('='), altered[i], "padding moved at offset %d", i)
		}
		if original[i] == '\n' {
			assert.Equal(t, byte('\n'), altered[i], "line break moved at offset %d", i)
		}
	}
}

func TestAlteredSignatureRequiresSignature(t *testing.T) {
	unsigned := strings.Replace(validTestCredential(t).String(), "SignatureValue", "Sig", -1)
	c, err := Parse([]byte(unsigned))
	require.NoError(t, err)

	_, err = c.AlteredSignature()
	assert.Error(t, err)
}

func TestCorruptedPrefixIsNotWellFormed(t *testing.T) {
	c := validTestCredential(t)

	corrupted, err := c.CorruptedPrefix()
	require.NoError(t, err)
	assert.Less(t, len(corrupted), len(c.String()))

	_, err = Parse([]byte(corrupted))
	assert.Equal(t, fault.KindMalformedDocument, fault.KindOf(err))
}

func TestCorruptedPrefixDiffersFromAlteredSignature(t *testing.T) {
	// The two variants must be distinguishable failures: one parseable with a
	// bad signature, one not parseable at all.
	c := validTestCredential(t)

	altered, err := c.AlteredSignature()
	require.NoError(t, err)
	corrupted, err := c.CorruptedPrefix()
	require.NoError(t, err)

	_, alteredErr := Parse([]byte(altered))
	_, corruptedErr := Parse([]byte(corrupted))
	assert.NoError(t, alteredErr)
	assert.Error(t, corruptedErr)
}

func TestTruncatedIsNotWellFormed(t *testing.T) {
	c := validTestCredential(t)

	truncated := c.Truncated()
	assert.Less(t, len(truncated), len(c.String()))

	_, err := Parse([]byte(truncated))
	assert.Equal(t, fault.KindMalformedDocument, fault.KindOf(err))
}

func TestScrambleBase64Degenerate(t *testing.T) {
	assert.Equal(t, "=", scrambleBase64("="))
	assert.Equal(t, "A", scrambleBase64("A"))
	assert.NotEqual(t, "AB", scrambleBase64("AB"))
	// A palindromic run still changes by rotation.
	assert.NotEqual(t, "ABA", scrambleBase64("ABA"))
}
