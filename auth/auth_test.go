package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/drawguess/apperr"
)

func TestJWTProvider_RoundTrip(t *testing.T) {
	p := NewJWTProvider("secret", time.Hour)
	token, err := p.Issue(Identity{PlayerID: "p1", Name: "Alice"}, time.Now())
	require.NoError(t, err)

	r := httptest.NewRequest("GET", "/ws?room=r1", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	id, err := p.Authenticate(r)
	require.NoError(t, err)
	assert.Equal(t, Identity{PlayerID: "p1", Name: "Alice"}, id)

	// query fallback for websocket upgrades
	r = httptest.NewRequest("GET", "/ws?room=r1&token="+token, nil)
	id, err = p.Authenticate(r)
	require.NoError(t, err)
	assert.Equal(t, "p1", id.PlayerID)
}

func TestJWTProvider_Rejects(t *testing.T) {
	p := NewJWTProvider("secret", time.Hour)

	_, err := p.Authenticate(httptest.NewRequest("GET", "/ws", nil))
	assert.ErrorIs(t, err, ErrMissingToken)
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)

	expired, err := p.Issue(Identity{PlayerID: "p1"}, time.Now().Add(-2*time.Hour))
	require.NoError(t, err)
	_, err = p.Verify(expired)
	assert.ErrorIs(t, err, ErrExpiredToken)

	other, err := NewJWTProvider("other", time.Hour).Issue(Identity{PlayerID: "p1"}, time.Now())
	require.NoError(t, err)
	_, err = p.Verify(other)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = p.Verify("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"name": "x"}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = p.Verify(noSubject)
	assert.ErrorIs(t, err, ErrInvalidToken)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "p1"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = p.Verify(none)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestHeaderProvider(t *testing.T) {
	var p HeaderProvider

	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("X-Player-Id", "p1")
	r.Header.Set("X-Player-Name", "Alice")
	id, err := p.Authenticate(r)
	require.NoError(t, err)
	assert.Equal(t, Identity{PlayerID: "p1", Name: "Alice"}, id)

	id, err = p.Authenticate(httptest.NewRequest("GET", "/ws?playerId=p2", nil))
	require.NoError(t, err)
	assert.Equal(t, Identity{PlayerID: "p2", Name: "p2"}, id)

	_, err = p.Authenticate(httptest.NewRequest("GET", "/ws", nil))
	assert.ErrorIs(t, err, ErrMissingIdentity)
}

func TestNewProvider(t *testing.T) {
	assert.IsType(t, HeaderProvider{}, NewProvider(""))
	assert.IsType(t, &JWTProvider{}, NewProvider("secret"))
}
