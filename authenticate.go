package oauth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/oauthkit/oauth2-core/security"
)

// bearerHeaderPattern matches an Authorization header carrying a bearer
// token per RFC 6750 section 2.1.
var bearerHeaderPattern = regexp.MustCompile(`^Bearer\s(\S+)$`)

// AuthenticateOptions configures an AuthenticateHandler.
type AuthenticateOptions struct {
	// Model must implement AccessTokenModel, and ScopeVerifier when
	// Scope is non-empty.
	Model any

	// Scope, when non-empty, is required of every authenticated token.
	Scope string

	// AddAcceptedScopesHeader sets X-Accepted-OAuth-Scopes on responses.
	AddAcceptedScopesHeader bool

	// AddAuthorizedScopesHeader sets X-OAuth-Scopes on responses.
	AddAuthorizedScopesHeader bool

	// AllowBearerTokensInQueryString permits the access_token query
	// parameter as a token source. Discouraged by RFC 6750 section 2.3.
	AllowBearerTokensInQueryString bool

	Clock  security.Clock
	Logger *slog.Logger
}

// AuthenticateHandler validates bearer tokens presented to protected
// resources, per RFC 6750.
type AuthenticateHandler struct {
	model    AccessTokenModel
	verifier ScopeVerifier

	scope                          string
	addAcceptedScopesHeader        bool
	addAuthorizedScopesHeader      bool
	allowBearerTokensInQueryString bool

	clock  security.Clock
	logger *slog.Logger
}

// NewAuthenticateHandler builds an AuthenticateHandler, verifying that the
// model implements every capability the configuration requires.
func NewAuthenticateHandler(opts AuthenticateOptions) (*AuthenticateHandler, error) {
	if opts.Model == nil {
		return nil, ErrInvalidArgument("missing parameter: model")
	}
	model, ok := opts.Model.(AccessTokenModel)
	if !ok {
		return nil, ErrInvalidArgument("model does not implement GetAccessToken")
	}
	var verifier ScopeVerifier
	if opts.Scope != "" {
		verifier, ok = opts.Model.(ScopeVerifier)
		if !ok {
			return nil, ErrInvalidArgument("model does not implement VerifyScope")
		}
	}
	clock := opts.Clock
	if clock == nil {
		clock = security.SystemClock{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthenticateHandler{
		model:                          model,
		verifier:                       verifier,
		scope:                          opts.Scope,
		addAcceptedScopesHeader:        opts.AddAcceptedScopesHeader,
		addAuthorizedScopesHeader:      opts.AddAuthorizedScopesHeader,
		allowBearerTokensInQueryString: opts.AllowBearerTokensInQueryString,
		clock:                          clock,
		logger:                         logger,
	}, nil
}

// Handle authenticates the bearer token carried by r. On success it returns
// the resolved token; on failure the returned error is an *OAuthError and w
// carries any RFC 6750 challenge headers.
func (h *AuthenticateHandler) Handle(ctx context.Context, r *Request, w *Response) (*Token, error) {
	token, err := h.handle(ctx, r, w)
	if err != nil {
		oerr := WrapError(err)
		// RFC 6750 section 3: challenge only when no credentials were
		// presented at all.
		if oerr.Code == ErrorCodeUnauthorizedRequest {
			w.Set("WWW-Authenticate", `Bearer realm="Service"`)
		}
		h.logger.DebugContext(ctx, "authentication failed",
			"error", oerr.Code, "description", oerr.Description)
		return nil, oerr
	}
	return token, nil
}

func (h *AuthenticateHandler) handle(ctx context.Context, r *Request, w *Response) (*Token, error) {
	if r == nil {
		return nil, ErrInvalidArgument("missing parameter: request")
	}
	if w == nil {
		return nil, ErrInvalidArgument("missing parameter: response")
	}

	raw, err := h.tokenFromRequest(r)
	if err != nil {
		return nil, err
	}
	token, err := h.getAccessToken(ctx, raw)
	if err != nil {
		return nil, err
	}
	if err := h.validateExpiry(token); err != nil {
		return nil, err
	}
	if h.scope != "" {
		if err := h.verifyScope(ctx, token); err != nil {
			return nil, err
		}
	}
	h.setScopeHeaders(w, token)
	return token, nil
}

// tokenFromRequest extracts the bearer token from exactly one transmission
// method: header, query string, or form body. RFC 6750 section 2 forbids
// using more than one in a single request.
func (h *AuthenticateHandler) tokenFromRequest(r *Request) (string, error) {
	header := r.Header.Get("Authorization")
	query := r.Query.Get("access_token")
	body := r.Body.Get("access_token")

	sources := 0
	for _, s := range []string{header, query, body} {
		if s != "" {
			sources++
		}
	}
	if sources > 1 {
		return "", ErrInvalidRequest("only one authentication method is allowed")
	}

	switch {
	case header != "":
		return h.tokenFromHeader(header)
	case query != "":
		return h.tokenFromQuery(query)
	case body != "":
		return h.tokenFromBody(r)
	}
	return "", ErrUnauthorizedRequest("authentication request missing bearer token")
}

func (h *AuthenticateHandler) tokenFromHeader(header string) (string, error) {
	m := bearerHeaderPattern.FindStringSubmatch(header)
	if m == nil {
		return "", ErrInvalidRequest("malformed authorization header")
	}
	return m[1], nil
}

func (h *AuthenticateHandler) tokenFromQuery(token string) (string, error) {
	if !h.allowBearerTokensInQueryString {
		return "", ErrInvalidRequest("bearer tokens are not allowed in the query string")
	}
	return token, nil
}

func (h *AuthenticateHandler) tokenFromBody(r *Request) (string, error) {
	if r.Method == http.MethodGet {
		return "", ErrInvalidRequest("bearer tokens are not allowed in GET request bodies")
	}
	if !r.Is("application/x-www-form-urlencoded") {
		return "", ErrInvalidRequest("content must be application/x-www-form-urlencoded")
	}
	return r.Body.Get("access_token"), nil
}

func (h *AuthenticateHandler) getAccessToken(ctx context.Context, raw string) (*Token, error) {
	token, err := h.model.GetAccessToken(ctx, raw)
	if err != nil {
		return nil, WrapError(err)
	}
	if token == nil || token.AccessToken == "" {
		return nil, ErrInvalidToken("access token is invalid")
	}
	if token.User == nil {
		return nil, ErrServerError("model did not return a user with the access token")
	}
	return token, nil
}

func (h *AuthenticateHandler) validateExpiry(token *Token) error {
	if token.AccessTokenExpiresAt.IsZero() {
		return ErrServerError("model did not return an access token expiry")
	}
	if security.IsExpired(h.clock, token.AccessTokenExpiresAt) {
		return ErrInvalidToken("access token has expired")
	}
	return nil
}

func (h *AuthenticateHandler) verifyScope(ctx context.Context, token *Token) error {
	ok, err := h.verifier.VerifyScope(ctx, token, h.scope)
	if err != nil {
		return WrapError(err)
	}
	if !ok {
		return ErrInsufficientScope(fmt.Sprintf("authorized scope is insufficient, required scope: %s", h.scope))
	}
	return nil
}

func (h *AuthenticateHandler) setScopeHeaders(w *Response, token *Token) {
	if h.scope == "" {
		return
	}
	if h.addAcceptedScopesHeader {
		w.Set("X-Accepted-OAuth-Scopes", h.scope)
	}
	if h.addAuthorizedScopesHeader {
		w.Set("X-OAuth-Scopes", strings.TrimSpace(token.Scope))
	}
}
