package oauth

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/oauthkit/oauth2-core/internal/testutil"
)

func revokeModel(clock *testutil.MockTime) *mockModel {
	return &mockModel{
		getClientFn: func(_ context.Context, clientID, clientSecret string) (*Client, error) {
			if clientID == "test-client" && clientSecret == "test-secret" {
				return testClient(), nil
			}
			return nil, nil
		},
		getRefreshTokenFn: func(_ context.Context, raw string) (*RefreshToken, error) {
			if raw == "live-refresh" {
				return &RefreshToken{
					RefreshToken: raw,
					ExpiresAt:    clock.Now().Add(time.Hour),
					Client:       testClient(),
					User:         "alice",
				}, nil
			}
			return nil, nil
		},
		getAccessTokenFn: func(_ context.Context, raw string) (*Token, error) {
			if raw == "live-access" {
				return &Token{
					AccessToken:          raw,
					AccessTokenExpiresAt: clock.Now().Add(time.Hour),
					Client:               testClient(),
					User:                 "alice",
				}, nil
			}
			return nil, nil
		},
	}
}

func newRevokeHandler(t *testing.T, opts RevokeOptions) *RevokeHandler {
	t.Helper()
	h, err := NewRevokeHandler(opts)
	if err != nil {
		t.Fatalf("NewRevokeHandler: %v", err)
	}
	return h
}

func revokeRequest(token string) *Request {
	r := formRequest(map[string]string{"token": token})
	r.Header.Set("Authorization", basicAuth("test-client", "test-secret"))
	return r
}

func TestRevokeRefreshToken(t *testing.T) {
	clock := testutil.NewMockTime(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	model := revokeModel(clock)
	var revoked string
	model.revokeTokenFn = func(_ context.Context, token *RefreshToken) (bool, error) {
		revoked = token.RefreshToken
		return true, nil
	}
	h := newRevokeHandler(t, RevokeOptions{Model: model, Clock: clock})

	w := NewResponse()
	if err := h.Handle(context.Background(), revokeRequest("live-refresh"), w); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if revoked != "live-refresh" {
		t.Errorf("revoked = %q, want live-refresh", revoked)
	}
	if w.Status != http.StatusOK {
		t.Errorf("Status = %d, want 200", w.Status)
	}
	if w.Get("Cache-Control") != "no-store" {
		t.Error("missing cache suppression header")
	}
}

func TestRevokeAccessToken(t *testing.T) {
	clock := testutil.NewMockTime(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	model := revokeModel(clock)
	var revoked string
	model.revokeAccessTokenFn = func(_ context.Context, token *Token) (bool, error) {
		revoked = token.AccessToken
		return true, nil
	}
	h := newRevokeHandler(t, RevokeOptions{Model: model, Clock: clock})

	if err := h.Handle(context.Background(), revokeRequest("live-access"), NewResponse()); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if revoked != "live-access" {
		t.Errorf("revoked = %q, want live-access", revoked)
	}
}

func TestRevokeUnknownTokenSucceeds(t *testing.T) {
	clock := testutil.NewMockTime(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	h := newRevokeHandler(t, RevokeOptions{Model: revokeModel(clock), Clock: clock})

	w := NewResponse()
	if err := h.Handle(context.Background(), revokeRequest("no-such-token"), w); err != nil {
		t.Fatalf("unknown tokens must not be distinguishable: %v", err)
	}
	if w.Status != http.StatusOK {
		t.Errorf("Status = %d, want 200", w.Status)
	}
}

func TestRevokeSwallowsMismatchAndExpiry(t *testing.T) {
	clock := testutil.NewMockTime(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	t.Run("other client's token", func(t *testing.T) {
		model := revokeModel(clock)
		model.getRefreshTokenFn = func(_ context.Context, raw string) (*RefreshToken, error) {
			return &RefreshToken{
				RefreshToken: raw,
				ExpiresAt:    clock.Now().Add(time.Hour),
				Client:       &Client{ID: "someone-else"},
				User:         "bob",
			}, nil
		}
		model.revokeTokenFn = func(_ context.Context, _ *RefreshToken) (bool, error) {
			t.Error("must not revoke another client's token")
			return false, nil
		}
		h := newRevokeHandler(t, RevokeOptions{Model: model, Clock: clock})
		if err := h.Handle(context.Background(), revokeRequest("live-refresh"), NewResponse()); err != nil {
			t.Fatalf("Handle: %v", err)
		}
	})

	t.Run("expired token", func(t *testing.T) {
		model := revokeModel(clock)
		h := newRevokeHandler(t, RevokeOptions{Model: model, Clock: clock})
		clock.Advance(2 * time.Hour)
		defer clock.Advance(-2 * time.Hour)
		if err := h.Handle(context.Background(), revokeRequest("live-refresh"), NewResponse()); err != nil {
			t.Fatalf("Handle: %v", err)
		}
	})
}

func TestRevokeRequestValidation(t *testing.T) {
	clock := testutil.NewMockTime(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	h := newRevokeHandler(t, RevokeOptions{Model: revokeModel(clock), Clock: clock})

	t.Run("missing token", func(t *testing.T) {
		r := formRequest(nil)
		r.Header.Set("Authorization", basicAuth("test-client", "test-secret"))
		err := h.Handle(context.Background(), r, NewResponse())
		if oerr := WrapError(err); oerr.Code != ErrorCodeInvalidRequest {
			t.Errorf("Code = %q, want invalid_request", oerr.Code)
		}
	})

	t.Run("wrong method", func(t *testing.T) {
		r := revokeRequest("live-refresh")
		r.Method = http.MethodGet
		err := h.Handle(context.Background(), r, NewResponse())
		if oerr := WrapError(err); oerr.Code != ErrorCodeInvalidRequest {
			t.Errorf("Code = %q, want invalid_request", oerr.Code)
		}
	})

	t.Run("missing client_id", func(t *testing.T) {
		err := h.Handle(context.Background(), formRequest(map[string]string{
			"token":         "live-refresh",
			"client_secret": "test-secret",
		}), NewResponse())
		oerr := WrapError(err)
		if oerr.Code != ErrorCodeInvalidRequest {
			t.Errorf("Code = %q, want invalid_request", oerr.Code)
		}
		if oerr.Description != "missing parameter: client_id" {
			t.Errorf("Description = %q", oerr.Description)
		}
	})

	t.Run("missing client_secret", func(t *testing.T) {
		err := h.Handle(context.Background(), formRequest(map[string]string{
			"token":     "live-refresh",
			"client_id": "test-client",
		}), NewResponse())
		oerr := WrapError(err)
		if oerr.Code != ErrorCodeInvalidRequest {
			t.Errorf("Code = %q, want invalid_request", oerr.Code)
		}
		if oerr.Description != "missing parameter: client_secret" {
			t.Errorf("Description = %q", oerr.Description)
		}
	})

	t.Run("bad client credentials", func(t *testing.T) {
		r := formRequest(map[string]string{"token": "live-refresh"})
		r.Header.Set("Authorization", basicAuth("test-client", "wrong"))
		w := NewResponse()
		err := h.Handle(context.Background(), r, w)
		oerr := WrapError(err)
		if oerr.Code != ErrorCodeInvalidClient || oerr.Status != http.StatusUnauthorized {
			t.Errorf("got %q/%d, want invalid_client/401", oerr.Code, oerr.Status)
		}
		if got := w.Get("WWW-Authenticate"); got != `Basic realm="Service"` {
			t.Errorf("WWW-Authenticate = %q", got)
		}
	})
}

func TestRevokeClientWithoutGrantsIsServerError(t *testing.T) {
	clock := testutil.NewMockTime(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	model := revokeModel(clock)
	model.getClientFn = func(_ context.Context, _, _ string) (*Client, error) {
		return &Client{ID: "test-client"}, nil
	}
	h := newRevokeHandler(t, RevokeOptions{Model: model, Clock: clock})

	err := h.Handle(context.Background(), revokeRequest("live-refresh"), NewResponse())
	if oerr := WrapError(err); oerr.Code != ErrorCodeServerError {
		t.Errorf("Code = %q, want server_error", oerr.Code)
	}
}

func TestRevokeModelErrorPropagates(t *testing.T) {
	clock := testutil.NewMockTime(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	model := revokeModel(clock)
	model.getRefreshTokenFn = func(_ context.Context, _ string) (*RefreshToken, error) {
		return nil, errTestIO
	}
	h := newRevokeHandler(t, RevokeOptions{Model: model, Clock: clock})

	err := h.Handle(context.Background(), revokeRequest("live-refresh"), NewResponse())
	if oerr := WrapError(err); oerr.Code != ErrorCodeServerError {
		t.Errorf("Code = %q, want server_error", oerr.Code)
	}
}

func TestNewRevokeHandlerRequiresRevocableStore(t *testing.T) {
	type clientOnlyModel struct{ ClientModel }
	if _, err := NewRevokeHandler(RevokeOptions{Model: &clientOnlyModel{}}); err == nil {
		t.Error("expected error for a model without a revocable token store")
	}
}
