package adminsession

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueThenVerifySucceeds(t *testing.T) {
	now := time.Date(2026, 1, 28, 9, 0, 0, 0, time.UTC)
	issuer := NewIssuer("s3cret-admin-key")
	token, err := issuer.Issue(now)
	require.NoError(t, err)
	assert.True(t, issuer.Verify(token, now))
}

func TestVerifyRejectsTokenFromDifferentKey(t *testing.T) {
	now := time.Date(2026, 1, 28, 9, 0, 0, 0, time.UTC)
	a := NewIssuer("key-a")
	b := NewIssuer("key-b")
	token, err := a.Issue(now)
	require.NoError(t, err)
	assert.False(t, b.Verify(token, now))
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	now := time.Date(2026, 1, 28, 9, 0, 0, 0, time.UTC)
	issuer := NewIssuer("s3cret-admin-key")
	token, err := issuer.Issue(now.Add(-2 * DefaultExpiry))
	require.NoError(t, err)
	assert.False(t, issuer.Verify(token, now))
}

func TestVerifyRejectsGarbage(t *testing.T) {
	now := time.Date(2026, 1, 28, 9, 0, 0, 0, time.UTC)
	issuer := NewIssuer("s3cret-admin-key")
	assert.False(t, issuer.Verify("not-a-jwt", now))
}
