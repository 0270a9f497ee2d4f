package oauth

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/oauthkit/oauth2-core/internal/testutil"
)

func newAuthenticateHandler(t *testing.T, opts AuthenticateOptions) *AuthenticateHandler {
	t.Helper()
	h, err := NewAuthenticateHandler(opts)
	if err != nil {
		t.Fatalf("NewAuthenticateHandler: %v", err)
	}
	return h
}

func validAccessTokenModel(clock *testutil.MockTime) *mockModel {
	// Fix the expiry at registration time so advancing the clock actually
	// ages the token.
	expiresAt := clock.Now().Add(time.Hour)
	return &mockModel{
		getAccessTokenFn: func(_ context.Context, raw string) (*Token, error) {
			if raw != "valid-token" {
				return nil, nil
			}
			return &Token{
				AccessToken:          "valid-token",
				AccessTokenExpiresAt: expiresAt,
				Scope:                "read write",
				User:                 map[string]any{"id": "alice"},
			}, nil
		},
	}
}

func TestAuthenticateSuccess(t *testing.T) {
	clock := testutil.NewMockTime(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	h := newAuthenticateHandler(t, AuthenticateOptions{
		Model: validAccessTokenModel(clock),
		Clock: clock,
	})

	header := http.Header{}
	header.Set("Authorization", "Bearer valid-token")
	r := NewRequest("GET", header, nil, nil)
	w := NewResponse()

	token, err := h.Handle(context.Background(), r, w)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if token.AccessToken != "valid-token" {
		t.Errorf("AccessToken = %q", token.AccessToken)
	}
	if token.User == nil {
		t.Error("User not propagated")
	}
}

func TestAuthenticateTokenSources(t *testing.T) {
	clock := testutil.NewMockTime(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	tests := []struct {
		name       string
		allowQuery bool
		request    func() *Request
		wantCode   string
	}{
		{
			name: "no token",
			request: func() *Request {
				return NewRequest("GET", nil, nil, nil)
			},
			wantCode: ErrorCodeUnauthorizedRequest,
		},
		{
			name: "malformed header",
			request: func() *Request {
				header := http.Header{}
				header.Set("Authorization", "NotBearer valid-token")
				return NewRequest("GET", header, nil, nil)
			},
			wantCode: ErrorCodeInvalidRequest,
		},
		{
			name: "two sources",
			request: func() *Request {
				header := http.Header{}
				header.Set("Authorization", "Bearer valid-token")
				query := url.Values{"access_token": {"valid-token"}}
				return NewRequest("GET", header, query, nil)
			},
			wantCode: ErrorCodeInvalidRequest,
		},
		{
			name: "query without opt-in",
			request: func() *Request {
				query := url.Values{"access_token": {"valid-token"}}
				return NewRequest("GET", nil, query, nil)
			},
			wantCode: ErrorCodeInvalidRequest,
		},
		{
			name: "body on GET",
			request: func() *Request {
				body := url.Values{"access_token": {"valid-token"}}
				r := NewRequest("GET", nil, nil, body)
				r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
				return r
			},
			wantCode: ErrorCodeInvalidRequest,
		},
		{
			name: "body with wrong content type",
			request: func() *Request {
				body := url.Values{"access_token": {"valid-token"}}
				r := NewRequest("POST", nil, nil, body)
				r.Header.Set("Content-Type", "application/json")
				return r
			},
			wantCode: ErrorCodeInvalidRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newAuthenticateHandler(t, AuthenticateOptions{
				Model:                          validAccessTokenModel(clock),
				AllowBearerTokensInQueryString: tt.allowQuery,
				Clock:                          clock,
			})
			w := NewResponse()
			_, err := h.Handle(context.Background(), tt.request(), w)
			if err == nil {
				t.Fatal("expected error")
			}
			if oerr := WrapError(err); oerr.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", oerr.Code, tt.wantCode)
			}
		})
	}
}

func TestAuthenticateQueryTokenWhenAllowed(t *testing.T) {
	clock := testutil.NewMockTime(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	h := newAuthenticateHandler(t, AuthenticateOptions{
		Model:                          validAccessTokenModel(clock),
		AllowBearerTokensInQueryString: true,
		Clock:                          clock,
	})
	query := url.Values{"access_token": {"valid-token"}}
	r := NewRequest("GET", nil, query, nil)

	token, err := h.Handle(context.Background(), r, NewResponse())
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if token.AccessToken != "valid-token" {
		t.Errorf("AccessToken = %q", token.AccessToken)
	}
}

func TestAuthenticateBodyToken(t *testing.T) {
	clock := testutil.NewMockTime(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	h := newAuthenticateHandler(t, AuthenticateOptions{
		Model: validAccessTokenModel(clock),
		Clock: clock,
	})
	r := formRequest(map[string]string{"access_token": "valid-token"})

	token, err := h.Handle(context.Background(), r, NewResponse())
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if token.AccessToken != "valid-token" {
		t.Errorf("AccessToken = %q", token.AccessToken)
	}
}

func TestAuthenticateUnknownToken(t *testing.T) {
	clock := testutil.NewMockTime(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	h := newAuthenticateHandler(t, AuthenticateOptions{
		Model: validAccessTokenModel(clock),
		Clock: clock,
	})
	header := http.Header{}
	header.Set("Authorization", "Bearer unknown")
	r := NewRequest("GET", header, nil, nil)

	_, err := h.Handle(context.Background(), r, NewResponse())
	if oerr := WrapError(err); oerr.Code != ErrorCodeInvalidToken {
		t.Errorf("Code = %q, want invalid_token", oerr.Code)
	}
}

func TestAuthenticateExpiredToken(t *testing.T) {
	clock := testutil.NewMockTime(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	model := validAccessTokenModel(clock)
	h := newAuthenticateHandler(t, AuthenticateOptions{Model: model, Clock: clock})

	clock.Advance(2 * time.Hour)

	header := http.Header{}
	header.Set("Authorization", "Bearer valid-token")
	r := NewRequest("GET", header, nil, nil)
	_, err := h.Handle(context.Background(), r, NewResponse())
	if err == nil {
		t.Fatal("expected an error for an expired token")
	}
	if oerr := WrapError(err); oerr.Code != ErrorCodeInvalidToken {
		t.Errorf("Code = %q, want invalid_token", oerr.Code)
	}
}

func TestAuthenticateMissingExpiryIsServerError(t *testing.T) {
	model := &mockModel{
		getAccessTokenFn: func(_ context.Context, _ string) (*Token, error) {
			return &Token{AccessToken: "valid-token", User: "alice"}, nil
		},
	}
	h := newAuthenticateHandler(t, AuthenticateOptions{Model: model})

	header := http.Header{}
	header.Set("Authorization", "Bearer valid-token")
	r := NewRequest("GET", header, nil, nil)
	_, err := h.Handle(context.Background(), r, NewResponse())
	if oerr := WrapError(err); oerr.Code != ErrorCodeServerError {
		t.Errorf("Code = %q, want server_error", oerr.Code)
	}
}

func TestAuthenticateMissingUserIsServerError(t *testing.T) {
	model := &mockModel{
		getAccessTokenFn: func(_ context.Context, _ string) (*Token, error) {
			return &Token{
				AccessToken:          "valid-token",
				AccessTokenExpiresAt: time.Now().Add(time.Hour),
			}, nil
		},
	}
	h := newAuthenticateHandler(t, AuthenticateOptions{Model: model})

	header := http.Header{}
	header.Set("Authorization", "Bearer valid-token")
	r := NewRequest("GET", header, nil, nil)
	_, err := h.Handle(context.Background(), r, NewResponse())
	if oerr := WrapError(err); oerr.Code != ErrorCodeServerError {
		t.Errorf("Code = %q, want server_error", oerr.Code)
	}
}

func TestAuthenticateScopeVerification(t *testing.T) {
	clock := testutil.NewMockTime(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	model := validAccessTokenModel(clock)
	model.verifyScopeFn = func(_ context.Context, token *Token, scope string) (bool, error) {
		return scope == "read", nil
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer valid-token")

	t.Run("sufficient", func(t *testing.T) {
		h := newAuthenticateHandler(t, AuthenticateOptions{
			Model: model, Scope: "read",
			AddAcceptedScopesHeader:   true,
			AddAuthorizedScopesHeader: true,
			Clock:                     clock,
		})
		w := NewResponse()
		_, err := h.Handle(context.Background(), NewRequest("GET", header, nil, nil), w)
		if err != nil {
			t.Fatalf("Handle: %v", err)
		}
		if got := w.Get("X-Accepted-OAuth-Scopes"); got != "read" {
			t.Errorf("X-Accepted-OAuth-Scopes = %q", got)
		}
		if got := w.Get("X-OAuth-Scopes"); got != "read write" {
			t.Errorf("X-OAuth-Scopes = %q", got)
		}
	})

	t.Run("insufficient", func(t *testing.T) {
		h := newAuthenticateHandler(t, AuthenticateOptions{Model: model, Scope: "admin", Clock: clock})
		_, err := h.Handle(context.Background(), NewRequest("GET", header, nil, nil), NewResponse())
		if oerr := WrapError(err); oerr.Code != ErrorCodeInsufficientScope {
			t.Errorf("Code = %q, want insufficient_scope", oerr.Code)
		}
	})
}

func TestAuthenticateChallengeHeaderOnMissingCredentials(t *testing.T) {
	h := newAuthenticateHandler(t, AuthenticateOptions{Model: &mockModel{}})
	w := NewResponse()
	_, err := h.Handle(context.Background(), NewRequest("GET", nil, nil, nil), w)
	if err == nil {
		t.Fatal("expected error")
	}
	if got := w.Get("WWW-Authenticate"); got != `Bearer realm="Service"` {
		t.Errorf("WWW-Authenticate = %q", got)
	}

	// An invalid token is not a missing-credentials case.
	header := http.Header{}
	header.Set("Authorization", "Bearer nope")
	w = NewResponse()
	_, _ = h.Handle(context.Background(), NewRequest("GET", header, nil, nil), w)
	if got := w.Get("WWW-Authenticate"); got != "" {
		t.Errorf("WWW-Authenticate = %q, want unset", got)
	}
}

func TestNewAuthenticateHandlerCapabilityChecks(t *testing.T) {
	if _, err := NewAuthenticateHandler(AuthenticateOptions{}); err == nil {
		t.Error("expected error for missing model")
	}
	type clientOnly struct{ ClientModel }
	if _, err := NewAuthenticateHandler(AuthenticateOptions{Model: clientOnly{}}); err == nil {
		t.Error("expected error for model without GetAccessToken")
	}
}
