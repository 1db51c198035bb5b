package voysis

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
)

// SessionToken is a short-lived application token issued in exchange for
// the refresh token.
type SessionToken struct {
	Token          string `json:"token"`
	ExpiresAt      string `json:"expiresAt"`
	ExpiresAtEpoch int64  `json:"expiresAtEpoch"` // milliseconds since the Unix epoch
}

// Expiry returns ExpiresAtEpoch as a time.
func (t SessionToken) Expiry() time.Time {
	return time.UnixMilli(t.ExpiresAtEpoch)
}

// tokenManager keeps the current session token. The token is replaced as a
// whole on every issuance.
type tokenManager struct {
	refreshToken string
	margin       time.Duration
	now          func() time.Time
	send         func(ctx context.Context, req *request) (json.RawMessage, error)
	logger       *slog.Logger
	metrics      *metrics

	current atomic.Pointer[SessionToken]
}

// Current returns the current token, which is empty before the first
// issuance.
func (m *tokenManager) Current() SessionToken {
	if t := m.current.Load(); t != nil {
		return *t
	}
	return SessionToken{}
}

// Issue exchanges the refresh token for a new session token.
func (m *tokenManager) Issue(ctx context.Context) (SessionToken, error) {
	if m.refreshToken == "" {
		return SessionToken{}, fmt.Errorf("%w: a refresh token is required to issue an application token", ErrConfiguration)
	}

	entity, err := m.send(ctx, &request{
		method:  http.MethodPost,
		uri:     "/tokens",
		token:   m.refreshToken,
		headers: map[string]any{"Accept": "application/json"},
	})
	if err != nil {
		return SessionToken{}, err
	}

	var tok SessionToken
	if err := json.Unmarshal(entity, &tok); err != nil {
		return SessionToken{}, fmt.Errorf("voysis: decode token: %w", err)
	}
	expiry, err := time.Parse(time.RFC3339Nano, tok.ExpiresAt)
	if err != nil {
		return SessionToken{}, fmt.Errorf("voysis: invalid token expiry %q: %w", tok.ExpiresAt, err)
	}
	tok.ExpiresAtEpoch = expiry.UnixMilli()

	m.current.Store(&tok)
	m.metrics.observeToken()
	m.logger.Debug("issued session token", "expires_at", tok.ExpiresAt)
	return tok, nil
}

// EnsureFresh returns a token that will not expire within the margin,
// issuing one when needed. Without a refresh token the current token is
// returned as is.
func (m *tokenManager) EnsureFresh(ctx context.Context) (SessionToken, error) {
	cur := m.Current()
	if m.refreshToken == "" {
		return cur, nil
	}
	if cur.ExpiresAtEpoch < m.now().Add(m.margin).UnixMilli() {
		m.logger.Debug("session token expired or about to expire")
		return m.Issue(ctx)
	}
	return cur, nil
}
