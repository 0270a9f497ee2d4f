package oauth

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/oauthkit/oauth2-core/instrumentation"
	"github.com/oauthkit/oauth2-core/internal/testutil"
)

func TestNewServerValidation(t *testing.T) {
	if _, err := NewServer(nil); err == nil {
		t.Error("expected error for nil config")
	}
	if _, err := NewServer(&Config{}); err == nil {
		t.Error("expected error for missing model")
	}

	type noCapabilities struct{}
	if _, err := NewServer(&Config{Model: noCapabilities{}}); err == nil {
		t.Error("expected error for a model without any endpoint capability")
	}
}

func TestServerDefaults(t *testing.T) {
	cfg := Config{Model: tokenModel()}
	if _, err := NewServer(&cfg); err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	// the caller's config must not be mutated
	if cfg.AccessTokenTTL != 0 {
		t.Error("NewServer mutated the caller's config")
	}

	clock := testutil.NewMockTime(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	s, err := NewServer(&Config{Model: tokenModel(), Clock: clock})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	if s.config.AccessTokenTTL != 3600 {
		t.Errorf("AccessTokenTTL = %d, want 3600", s.config.AccessTokenTTL)
	}
	if s.config.RefreshTokenTTL != 1209600 {
		t.Errorf("RefreshTokenTTL = %d, want 1209600", s.config.RefreshTokenTTL)
	}
	if s.config.AuthorizationCodeTTL != 300 {
		t.Errorf("AuthorizationCodeTTL = %d, want 300", s.config.AuthorizationCodeTTL)
	}
}

func TestServerCapabilityGating(t *testing.T) {
	// ClientModel plus TokenSaver only: the token endpoint works, the
	// others report invalid_argument.
	type tokenOnlyModel struct {
		ClientModel
		TokenSaver
	}
	s, err := NewServer(&Config{Model: &tokenOnlyModel{}})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	if s.token == nil {
		t.Fatal("token endpoint should be enabled")
	}
	if s.authenticate != nil || s.authorize != nil || s.revoke != nil {
		t.Error("endpoints without model capabilities must stay disabled")
	}

	w := NewResponse()
	_, err = s.Authenticate(context.Background(), NewRequest(http.MethodGet, nil, nil, nil), w)
	if oerr := WrapError(err); oerr.Code != ErrorCodeInvalidArgument {
		t.Errorf("disabled endpoint Code = %q, want invalid_argument", oerr.Code)
	}
	if err := s.Authorize(context.Background(), NewRequest(http.MethodGet, nil, nil, nil), NewResponse()); err == nil {
		t.Error("disabled authorize endpoint must fail")
	}
	if err := s.Revoke(context.Background(), NewRequest(http.MethodPost, nil, nil, nil), NewResponse()); err == nil {
		t.Error("disabled revoke endpoint must fail")
	}
}

func TestServerFullModelEnablesAllEndpoints(t *testing.T) {
	s, err := NewServer(&Config{Model: tokenModel()})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	if s.authenticate == nil || s.authorize == nil || s.token == nil || s.revoke == nil {
		t.Error("a full-capability model should enable every endpoint")
	}
}

func TestServerTokenFlow(t *testing.T) {
	clock := testutil.NewMockTime(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	inst, err := instrumentation.New(instrumentation.Config{ServiceName: "oauth2-core-test"})
	if err != nil {
		t.Fatalf("instrumentation.New: %v", err)
	}
	defer inst.Shutdown(context.Background())

	s, err := NewServer(&Config{
		Model:           tokenModel(),
		Clock:           clock,
		Instrumentation: inst,
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	r := formRequest(map[string]string{
		"grant_type": "password",
		"username":   "alice",
		"password":   "wonderland",
	})
	r.Header.Set("Authorization", basicAuth("test-client", "test-secret"))
	w := NewResponse()

	token, err := s.Token(context.Background(), r, w)
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if w.Body["access_token"] != token.AccessToken {
		t.Errorf("body access_token = %v, want %q", w.Body["access_token"], token.AccessToken)
	}
}

func TestServerWritesErrorBody(t *testing.T) {
	s, err := NewServer(&Config{Model: tokenModel()})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	r := formRequest(map[string]string{"grant_type": "password"})
	w := NewResponse()
	_, err = s.Token(context.Background(), r, w)
	if err == nil {
		t.Fatal("expected an authentication failure")
	}
	if w.Body["error"] != ErrorCodeInvalidClient {
		t.Errorf("body error = %v, want invalid_client", w.Body["error"])
	}
	if w.Status != http.StatusBadRequest {
		t.Errorf("Status = %d, want 400", w.Status)
	}
}

func TestServerPreservesErrorRedirect(t *testing.T) {
	clock := testutil.NewMockTime(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	model := tokenModel()
	model.getClientFn = func(_ context.Context, clientID, _ string) (*Client, error) {
		if clientID == "test-client" {
			return testClient(), nil
		}
		return nil, nil
	}
	s, err := NewServer(&Config{
		Model: model,
		Clock: clock,
		GetUser: func(ctx context.Context, r *Request, w *Response) (User, error) {
			return "alice", nil
		},
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	// missing state resolves after the client, so the error travels on the
	// redirect rather than the response body
	r := authorizeRequest(map[string]string{
		"client_id":     "test-client",
		"redirect_uri":  "https://example.com/cb",
		"response_type": "code",
	})
	w := NewResponse()
	if err := s.Authorize(context.Background(), r, w); err == nil {
		t.Fatal("expected invalid_request for the missing state")
	}
	if !w.IsRedirect() {
		t.Fatal("post-client errors must redirect")
	}
	if _, ok := w.Body["error"]; ok {
		t.Error("error redirects must not also carry a JSON error body")
	}
}
