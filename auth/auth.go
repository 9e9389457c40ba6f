// Package auth resolves the player behind an incoming connection.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wfunc/drawguess/apperr"
)

var (
	ErrMissingToken     = fmt.Errorf("%w: missing token", apperr.ErrUnauthenticated)
	ErrInvalidToken     = fmt.Errorf("%w: invalid token", apperr.ErrUnauthenticated)
	ErrExpiredToken     = fmt.Errorf("%w: token expired", apperr.ErrUnauthenticated)
	ErrMissingIdentity  = fmt.Errorf("%w: missing player id", apperr.ErrUnauthenticated)
	errInvalidSignature = errors.New("auth: unexpected signing method")
)

// Identity is who the caller claims to be once verified.
type Identity struct {
	PlayerID string
	Name     string
}

type Provider interface {
	Authenticate(r *http.Request) (Identity, error)
}

// NewProvider picks JWT verification when a secret is configured and the
// header provider otherwise.
func NewProvider(secret string) Provider {
	if secret == "" {
		return HeaderProvider{}
	}
	return NewJWTProvider(secret, 24*time.Hour)
}

type playerClaims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// JWTProvider verifies HS256 tokens whose subject is the player id.
type JWTProvider struct {
	secret []byte
	maxAge time.Duration
}

func NewJWTProvider(secret string, maxAge time.Duration) *JWTProvider {
	return &JWTProvider{secret: []byte(secret), maxAge: maxAge}
}

// Issue signs a token for id. Used by tools and tests; the game itself only
// verifies.
func (p *JWTProvider) Issue(id Identity, now time.Time) (string, error) {
	claims := playerClaims{
		Name: id.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.PlayerID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.maxAge)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
}

func (p *JWTProvider) Verify(tokenString string) (Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &playerClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errInvalidSignature
		}
		return p.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return Identity{}, ErrExpiredToken
		default:
			return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
	}
	claims, ok := token.Claims.(*playerClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{PlayerID: claims.Subject, Name: claims.Name}, nil
}

func (p *JWTProvider) Authenticate(r *http.Request) (Identity, error) {
	token := bearer(r.Header.Get("Authorization"))
	if token == "" {
		// browsers cannot set headers on a websocket upgrade
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		return Identity{}, ErrMissingToken
	}
	return p.Verify(token)
}

func bearer(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

// HeaderProvider trusts X-Player-Id / X-Player-Name or the matching query
// parameters. Local development only.
type HeaderProvider struct{}

func (HeaderProvider) Authenticate(r *http.Request) (Identity, error) {
	q := r.URL.Query()
	id := firstNonEmpty(r.Header.Get("X-Player-Id"), q.Get("playerId"))
	if id == "" {
		return Identity{}, ErrMissingIdentity
	}
	name := firstNonEmpty(r.Header.Get("X-Player-Name"), q.Get("playerName"), id)
	return Identity{PlayerID: id, Name: name}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
