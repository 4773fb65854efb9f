package tokens

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpaqueLengths(t *testing.T) {
	s, err := NewState()
	require.NoError(t, err)
	assert.Len(t, s, 43)

	v, err := NewVerifier()
	require.NoError(t, err)
	assert.Len(t, v, 64)
	assert.NotContains(t, v, "=")

	_, err = Opaque(0)
	assert.Error(t, err)
}

func TestOpaqueIsRandom(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		s, err := NewState()
		require.NoError(t, err)
		require.False(t, seen[s], "duplicate state")
		seen[s] = true
	}
}

func TestS256MatchesRFC7636Vector(t *testing.T) {
	// Apéndice B de RFC 7636
	assert.Equal(t, "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM",
		S256("dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"))
}

func TestDigest(t *testing.T) {
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", Digest("hello"))
	assert.NotEqual(t, Digest("a"), Digest("b"))
}
