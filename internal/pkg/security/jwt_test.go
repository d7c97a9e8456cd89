package security

import (
	"Murmur/internal/api/config"
	"Murmur/internal/pkg/apperr"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryRevocations struct {
	mu   sync.Mutex
	sigs map[string]time.Duration
	err  error
}

func (m *memoryRevocations) IsRevoked(_ context.Context, signature string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	_, ok := m.sigs[signature]
	return ok, nil
}

func (m *memoryRevocations) Revoke(_ context.Context, signature string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sigs[signature] = ttl
	return nil
}

func newGate(revocations Revocations) *Gate {
	return NewGate(config.JWTConfig{Secret: "s3cret", Issuer: "murmur", Expiration: 1}, revocations)
}

func TestAuthenticateRoundTrip(t *testing.T) {
	g := newGate(nil)
	token, err := g.GenerateToken(42, []string{"USER"})
	require.NoError(t, err)

	claims, err := g.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.EqualValues(t, 42, claims.UserID)
	assert.Equal(t, []string{"USER"}, claims.Roles)
}

func TestAuthenticateRejects(t *testing.T) {
	g := newGate(nil)
	good, err := g.GenerateToken(42, nil)
	require.NoError(t, err)

	other := NewGate(config.JWTConfig{Secret: "other", Issuer: "murmur", Expiration: 1}, nil)
	forged, err := other.GenerateToken(42, nil)
	require.NoError(t, err)

	expired := newGate(nil)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	stale, err := expired.GenerateToken(42, nil)
	require.NoError(t, err)

	anonymous, err := g.GenerateToken(0, nil)
	require.NoError(t, err)

	foreign := NewGate(config.JWTConfig{Secret: "s3cret", Issuer: "someone-else", Expiration: 1}, nil)
	wrongIssuer, err := foreign.GenerateToken(42, nil)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"empty":        "",
		"garbage":      "not-a-token",
		"forged":       forged,
		"expired":      stale,
		"no identity":  anonymous,
		"wrong issuer": wrongIssuer,
		"truncated":    good[:len(good)-4],
	} {
		t.Run(name, func(t *testing.T) {
			_, err := g.Authenticate(context.Background(), token)
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.ErrAuth))
		})
	}
}

func TestRevokedTokenIsRejected(t *testing.T) {
	revocations := &memoryRevocations{sigs: map[string]time.Duration{}}
	g := newGate(revocations)
	token, err := g.GenerateToken(7, nil)
	require.NoError(t, err)

	require.NoError(t, g.Revoke(context.Background(), token))
	_, err = g.Authenticate(context.Background(), token)
	assert.ErrorIs(t, err, ErrTokenRevoked)

	sig, _ := ExtractSignature(token)
	assert.Greater(t, revocations.sigs[sig], time.Duration(0))

	assert.NoError(t, g.Revoke(context.Background(), token), "revoking twice is a no-op")
}

func TestRevocationStoreFailureIsServerError(t *testing.T) {
	g := newGate(&memoryRevocations{sigs: map[string]time.Duration{}, err: errors.New("redis down")})
	token, err := g.GenerateToken(7, nil)
	require.NoError(t, err)

	_, err = g.Authenticate(context.Background(), token)
	assert.True(t, apperr.Is(err, apperr.ErrServer))
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", BearerToken("Bearer abc"))
	assert.Empty(t, BearerToken("Basic abc"))
	assert.Empty(t, BearerToken(""))
}
