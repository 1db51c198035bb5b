package voysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

type fakeTokenServer struct {
	calls    int
	lastReq  *request
	response string
	err      error
}

func (f *fakeTokenServer) send(_ context.Context, req *request) (json.RawMessage, error) {
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(f.response), nil
}

func newTestTokenManager(refresh string, now time.Time, srv *fakeTokenServer) *tokenManager {
	return &tokenManager{
		refreshToken: refresh,
		margin:       DefaultTokenExpiryMargin,
		now:          func() time.Time { return now },
		send:         srv.send,
		logger:       discardLogger(),
	}
}

func TestIssueParsesExpiry(t *testing.T) {
	srv := &fakeTokenServer{response: `{"token":"T","expiresAt":"2009-02-13T23:31:30.123Z"}`}
	m := newTestTokenManager("refresh", time.Now(), srv)

	tok, err := m.Issue(context.Background())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if tok.Token != "T" {
		t.Errorf("Token = %q, want T", tok.Token)
	}
	if tok.ExpiresAtEpoch != 1234567890123 {
		t.Errorf("ExpiresAtEpoch = %d, want 1234567890123", tok.ExpiresAtEpoch)
	}
	if got := m.Current(); got != tok {
		t.Errorf("Current() = %+v, want %+v", got, tok)
	}

	req := srv.lastReq
	if req.method != "POST" || req.uri != "/tokens" || req.token != "refresh" {
		t.Errorf("request = %s %s token=%q", req.method, req.uri, req.token)
	}
	if req.headers["Accept"] != "application/json" {
		t.Errorf("Accept = %v", req.headers["Accept"])
	}
}

func TestIssueWithoutRefreshToken(t *testing.T) {
	srv := &fakeTokenServer{}
	m := newTestTokenManager("", time.Now(), srv)

	_, err := m.Issue(context.Background())
	if !errors.Is(err, ErrConfiguration) {
		t.Errorf("Issue() error = %v, want ErrConfiguration", err)
	}
	if srv.calls != 0 {
		t.Errorf("calls = %d, want 0", srv.calls)
	}
}

func TestIssueFailures(t *testing.T) {
	tests := []struct {
		name  string
		srv   *fakeTokenServer
		check func(error) bool
	}{
		{
			name:  "rejected",
			srv:   &fakeTokenServer{err: &Error{ResponseCode: 401, ResponseMessage: "Unauthorized"}},
			check: func(err error) bool { e, ok := AsError(err); return ok && e.ResponseCode == 401 },
		},
		{
			name:  "bad expiry",
			srv:   &fakeTokenServer{response: `{"token":"T","expiresAt":"tomorrow"}`},
			check: func(err error) bool { return err != nil },
		},
		{
			name:  "bad body",
			srv:   &fakeTokenServer{response: `[1,2]`},
			check: func(err error) bool { return err != nil },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestTokenManager("refresh", time.Now(), tt.srv)
			_, err := m.Issue(context.Background())
			if !tt.check(err) {
				t.Errorf("Issue() error = %v", err)
			}
			if m.Current().Token != "" {
				t.Error("failed issuance replaced the token")
			}
		})
	}
}

func TestEnsureFresh(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	newToken := `{"token":"new","expiresAt":"2026-01-01T13:00:00Z"}`

	tests := []struct {
		name      string
		refresh   string
		current   *SessionToken
		wantCalls int
		wantToken string
	}{
		{
			name:      "no refresh token",
			refresh:   "",
			wantCalls: 0,
			wantToken: "",
		},
		{
			name:      "no token yet",
			refresh:   "refresh",
			wantCalls: 1,
			wantToken: "new",
		},
		{
			name:      "fresh",
			refresh:   "refresh",
			current:   &SessionToken{Token: "old", ExpiresAtEpoch: now.Add(time.Hour).UnixMilli()},
			wantCalls: 0,
			wantToken: "old",
		},
		{
			name:      "within margin",
			refresh:   "refresh",
			current:   &SessionToken{Token: "old", ExpiresAtEpoch: now.Add(10 * time.Second).UnixMilli()},
			wantCalls: 1,
			wantToken: "new",
		},
		{
			name:      "expired",
			refresh:   "refresh",
			current:   &SessionToken{Token: "old", ExpiresAtEpoch: now.Add(-time.Minute).UnixMilli()},
			wantCalls: 1,
			wantToken: "new",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := &fakeTokenServer{response: newToken}
			m := newTestTokenManager(tt.refresh, now, srv)
			if tt.current != nil {
				m.current.Store(tt.current)
			}

			tok, err := m.EnsureFresh(context.Background())
			if err != nil {
				t.Fatalf("EnsureFresh: %v", err)
			}
			if srv.calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", srv.calls, tt.wantCalls)
			}
			if tok.Token != tt.wantToken {
				t.Errorf("token = %q, want %q", tok.Token, tt.wantToken)
			}
			if m.Current().Token != tt.wantToken {
				t.Errorf("Current().Token = %q, want %q", m.Current().Token, tt.wantToken)
			}
		})
	}
}
