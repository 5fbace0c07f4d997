// Package auth manages the bearer-token lifecycle: durable storage of the
// access/refresh token pair and the single refresh-and-retry cycle applied
// to REST calls that come back 401.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/krishishift/mandistream/internal/kv"
)

// Keys under which tokens live in the kv store.
const (
	accessTokenKey  = "auth:access_token"
	refreshTokenKey = "auth:refresh_token"
)

// ErrNoToken is returned when the store holds no token of the requested kind.
var ErrNoToken = errors.New("auth: no token stored")

// TokenStore persists the bearer token pair in the durable kv store.
// Tokens are read at call time, never cached in memory, so an external
// login flow can rotate them underneath a running client.
type TokenStore struct {
	kv kv.Store
}

// NewTokenStore wraps a kv store.
func NewTokenStore(store kv.Store) *TokenStore {
	return &TokenStore{kv: store}
}

// AccessToken returns the stored access token.
func (s *TokenStore) AccessToken(ctx context.Context) (string, error) {
	return s.get(ctx, accessTokenKey)
}

// RefreshToken returns the stored refresh token.
func (s *TokenStore) RefreshToken(ctx context.Context) (string, error) {
	return s.get(ctx, refreshTokenKey)
}

// SetAccessToken stores a new access token.
func (s *TokenStore) SetAccessToken(ctx context.Context, token string) error {
	return s.kv.Set(ctx, accessTokenKey, []byte(token))
}

// SetRefreshToken stores a new refresh token.
func (s *TokenStore) SetRefreshToken(ctx context.Context, token string) error {
	return s.kv.Set(ctx, refreshTokenKey, []byte(token))
}

// Clear removes both tokens. Called when the session is terminated.
func (s *TokenStore) Clear(ctx context.Context) error {
	if err := s.kv.Delete(ctx, accessTokenKey); err != nil {
		return err
	}
	return s.kv.Delete(ctx, refreshTokenKey)
}

func (s *TokenStore) get(ctx context.Context, key string) (string, error) {
	val, err := s.kv.Get(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return "", ErrNoToken
	}
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	return string(val), nil
}

// expiryLeeway is how close to expiry an access token may get before it is
// treated as already expired and refreshed proactively.
const expiryLeeway = 30 * time.Second

// NearExpiry reports whether the access token's exp claim is within the
// leeway window. Tokens that do not parse as JWTs, or carry no exp claim,
// are assumed valid; the 401 path catches them.
func NearExpiry(token string, now time.Time) bool {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return now.Add(expiryLeeway).After(exp.Time)
}
