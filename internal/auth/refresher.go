package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/krishishift/mandistream/internal/apperr"
	"github.com/krishishift/mandistream/pkg/logger"
)

// refreshPath is the dedicated token-exchange endpoint.
const refreshPath = "/api/auth/refresh"

// SessionTerminatedFunc is invoked once when a refresh fails and the
// session is considered over. The composition root owns what happens next
// (typically redirecting the UI to its authentication entry point).
type SessionTerminatedFunc func(err error)

// Refresher exchanges the stored refresh token for a new access token.
// At most one exchange runs at a time; concurrent 401s share its result.
type Refresher struct {
	baseURL      string
	httpClient   *http.Client
	tokens       *TokenStore
	onTerminated SessionTerminatedFunc
	log          *logger.Logger

	mu sync.Mutex
}

// NewRefresher creates a Refresher. httpClient must be the bare client, not
// one wrapped with the auth round tripper, or a failing refresh would
// recurse.
func NewRefresher(baseURL string, httpClient *http.Client, tokens *TokenStore, onTerminated SessionTerminatedFunc, log *logger.Logger) *Refresher {
	if log == nil {
		log = logger.NewDefault("auth")
	}
	return &Refresher{
		baseURL:      baseURL,
		httpClient:   httpClient,
		tokens:       tokens,
		onTerminated: onTerminated,
		log:          log,
	}
}

// Refresh performs one token exchange and stores the new access token.
// On failure it clears the stored tokens, fires the terminated callback,
// and returns an AuthError. It never retries itself.
func (r *Refresher) Refresh(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	refreshToken, err := r.tokens.RefreshToken(ctx)
	if err != nil {
		return r.terminate(ctx, fmt.Errorf("no refresh token: %w", err))
	}

	body, _ := json.Marshal(map[string]string{"refreshToken": refreshToken})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+refreshPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return r.terminate(ctx, fmt.Errorf("refresh call: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return r.terminate(ctx, fmt.Errorf("refresh rejected with status %d: %s", resp.StatusCode, excerpt))
	}

	var payload struct {
		AccessToken string `json:"accessToken"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return r.terminate(ctx, fmt.Errorf("decode refresh response: %w", err))
	}
	if payload.AccessToken == "" {
		return r.terminate(ctx, fmt.Errorf("refresh response carried no access token"))
	}

	if err := r.tokens.SetAccessToken(ctx, payload.AccessToken); err != nil {
		return fmt.Errorf("store refreshed token: %w", err)
	}

	r.log.Info("access token refreshed")
	return nil
}

func (r *Refresher) terminate(ctx context.Context, cause error) error {
	r.log.WithError(cause).Warn("token refresh failed, session terminated")
	if err := r.tokens.Clear(ctx); err != nil {
		r.log.WithError(err).Warn("failed to clear stored tokens")
	}
	authErr := &apperr.AuthError{Err: cause}
	if r.onTerminated != nil {
		r.onTerminated(authErr)
	}
	return authErr
}

// RoundTripper attaches the stored bearer token to every request and runs
// exactly one refresh-and-retry cycle when a response comes back 401.
type RoundTripper struct {
	Base      http.RoundTripper
	Tokens    *TokenStore
	Refresher *Refresher
	Now       func() time.Time
}

// RoundTrip implements http.RoundTripper.
func (rt *RoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	base := rt.Base
	if base == nil {
		base = http.DefaultTransport
	}
	now := rt.Now
	if now == nil {
		now = time.Now
	}

	ctx := req.Context()
	token, err := rt.Tokens.AccessToken(ctx)
	if err == nil && NearExpiry(token, now()) {
		if err := rt.Refresher.Refresh(ctx); err != nil {
			return nil, err
		}
		token, err = rt.Tokens.AccessToken(ctx)
	}

	out := req.Clone(ctx)
	if err == nil && token != "" {
		out.Header.Set("Authorization", "Bearer "+token)
	}

	resp, rtErr := base.RoundTrip(out)
	if rtErr != nil {
		return nil, rtErr
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	// One refresh-and-retry per failing call; a second 401 is final.
	resp.Body.Close()
	if err := rt.Refresher.Refresh(ctx); err != nil {
		return nil, err
	}
	token, err = rt.Tokens.AccessToken(ctx)
	if err != nil {
		return nil, &apperr.AuthError{Err: err}
	}

	retry := req.Clone(ctx)
	if req.GetBody != nil {
		body, bodyErr := req.GetBody()
		if bodyErr != nil {
			return nil, fmt.Errorf("rewind request body for retry: %w", bodyErr)
		}
		retry.Body = body
	}
	retry.Header.Set("Authorization", "Bearer "+token)
	return base.RoundTrip(retry)
}

var _ http.RoundTripper = (*RoundTripper)(nil)
