package oauth

import (
	"context"
	"log/slog"
	"net/http"
	"slices"

	"github.com/oauthkit/oauth2-core/security"
)

// TokenOptions configures a TokenHandler.
type TokenOptions struct {
	// Model must implement ClientModel and TokenSaver, plus the
	// capabilities of every grant type the deployment uses.
	Model any

	// AccessTokenTTL is the default access token lifetime in seconds.
	AccessTokenTTL int64

	// RefreshTokenTTL is the default refresh token lifetime in seconds.
	RefreshTokenTTL int64

	// ReuseRefreshTokens disables refresh token rotation.
	ReuseRefreshTokens bool

	// AllowExtendedTokenAttributes copies Token.Extra into the response
	// body.
	AllowExtendedTokenAttributes bool

	// RequireClientAuthentication maps a grant type name to whether the
	// client must present a secret. Grant types absent from the map
	// require authentication. Setting password or refresh_token to false
	// admits public clients per RFC 6749 section 2.1.
	RequireClientAuthentication map[string]bool

	// ExtensionGrants registers additional grant strategies. Keys must be
	// valid grant_type values: either name-form or URI-form (RFC 6749
	// section 4.5).
	ExtensionGrants map[string]GrantFactory

	// RateLimiter, when set, throttles token requests per client address.
	RateLimiter *security.RateLimiter

	Clock  security.Clock
	Logger *slog.Logger
}

// TokenHandler implements the token endpoint of RFC 6749 section 3.2:
// client authentication, grant dispatch, and bearer serialization.
type TokenHandler struct {
	model    ClientModel
	rawModel any

	grantTypes map[string]GrantFactory

	accessTokenTTL               int64
	refreshTokenTTL              int64
	reuseRefreshTokens           bool
	allowExtendedTokenAttributes bool
	requireClientAuthentication  map[string]bool

	limiter *security.RateLimiter
	clock   security.Clock
	logger  *slog.Logger
}

// NewTokenHandler builds a TokenHandler, verifying that the model
// implements every capability the configuration requires.
func NewTokenHandler(opts TokenOptions) (*TokenHandler, error) {
	if opts.AccessTokenTTL <= 0 {
		return nil, ErrInvalidArgument("missing parameter: access token lifetime")
	}
	if opts.RefreshTokenTTL <= 0 {
		return nil, ErrInvalidArgument("missing parameter: refresh token lifetime")
	}
	if opts.Model == nil {
		return nil, ErrInvalidArgument("missing parameter: model")
	}
	model, ok := opts.Model.(ClientModel)
	if !ok {
		return nil, ErrInvalidArgument("model does not implement GetClient")
	}
	if _, ok := opts.Model.(TokenSaver); !ok {
		return nil, ErrInvalidArgument("model does not implement SaveToken")
	}

	grantTypes := map[string]GrantFactory{
		GrantTypeAuthorizationCode: NewAuthorizationCodeGrant,
		GrantTypeClientCredentials: NewClientCredentialsGrant,
		GrantTypePassword:          NewPasswordGrant,
		GrantTypeRefreshToken:      NewRefreshTokenGrant,
	}
	for name, factory := range opts.ExtensionGrants {
		if !isNchar(name) && !isURI(name) {
			return nil, ErrInvalidArgument("invalid extension grant type: " + name)
		}
		if _, builtin := grantTypes[name]; builtin {
			return nil, ErrInvalidArgument("extension grant type shadows a built-in: " + name)
		}
		if factory == nil {
			return nil, ErrInvalidArgument("missing factory for extension grant type: " + name)
		}
		grantTypes[name] = factory
	}

	clock := opts.Clock
	if clock == nil {
		clock = security.SystemClock{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenHandler{
		model:                        model,
		rawModel:                     opts.Model,
		grantTypes:                   grantTypes,
		accessTokenTTL:               opts.AccessTokenTTL,
		refreshTokenTTL:              opts.RefreshTokenTTL,
		reuseRefreshTokens:           opts.ReuseRefreshTokens,
		allowExtendedTokenAttributes: opts.AllowExtendedTokenAttributes,
		requireClientAuthentication:  opts.RequireClientAuthentication,
		limiter:                      opts.RateLimiter,
		clock:                        clock,
		logger:                       logger,
	}, nil
}

// Handle processes one token request. On success the bearer token body and
// cache headers are written to w and the issued token is returned.
func (h *TokenHandler) Handle(ctx context.Context, r *Request, w *Response) (*Token, error) {
	if r == nil {
		return nil, ErrInvalidArgument("missing parameter: request")
	}
	if w == nil {
		return nil, ErrInvalidArgument("missing parameter: response")
	}
	if h.limiter != nil && r.RemoteAddr != "" && !h.limiter.Allow(r.RemoteAddr) {
		return nil, ErrRateLimitExceeded("too many token requests")
	}
	if r.Method != http.MethodPost {
		return nil, ErrInvalidRequest("method must be POST")
	}
	if !r.Is("application/x-www-form-urlencoded") {
		return nil, ErrInvalidRequest("content must be application/x-www-form-urlencoded")
	}

	client, err := h.getClient(ctx, r, w)
	if err != nil {
		return nil, err
	}
	token, err := h.handleGrantType(ctx, r, client)
	if err != nil {
		oerr := WrapError(err)
		h.logger.DebugContext(ctx, "token request failed",
			"client_id", client.ID, "grant_type", r.Body.Get("grant_type"),
			"error", oerr.Code, "description", oerr.Description)
		return nil, oerr
	}

	bearer, err := newBearerToken(token, h.allowExtendedTokenAttributes, h.clock)
	if err != nil {
		return nil, err
	}
	w.Body = bearer.body()
	w.Set("Cache-Control", "no-store")
	w.Set("Pragma", "no-cache")
	return token, nil
}

// getClient authenticates the requesting client. Failures caused by bad
// credentials in an Authorization header are escalated to 401 with a Basic
// challenge, per RFC 6749 section 5.2.
func (h *TokenHandler) getClient(ctx context.Context, r *Request, w *Response) (*Client, error) {
	client, err := h.lookupClient(ctx, r)
	if err == nil {
		return client, nil
	}
	oerr := WrapError(err)
	if oerr.Code == ErrorCodeInvalidClient && r.Header.Get("Authorization") != "" {
		w.Set("WWW-Authenticate", `Basic realm="Service"`)
		return nil, NewOAuthError(ErrorCodeInvalidClient, oerr.Description, http.StatusUnauthorized)
	}
	return nil, oerr
}

func (h *TokenHandler) lookupClient(ctx context.Context, r *Request) (*Client, error) {
	clientID, clientSecret, err := h.getClientCredentials(r)
	if err != nil {
		return nil, err
	}
	if !isVschar(clientID) {
		return nil, ErrInvalidRequest("invalid parameter: client_id")
	}
	if clientSecret != "" && !isVschar(clientSecret) {
		return nil, ErrInvalidRequest("invalid parameter: client_secret")
	}

	client, err := h.model.GetClient(ctx, clientID, clientSecret)
	if err != nil {
		return nil, WrapError(err)
	}
	if client == nil {
		return nil, ErrInvalidClient("client is invalid")
	}
	if len(client.Grants) == 0 {
		return nil, ErrServerError("model did not return client grants")
	}
	return client, nil
}

// getClientCredentials reads the client id and secret from the Basic auth
// header or, failing that, the request body. A missing secret is accepted
// only when authentication is not required for the requested grant type.
func (h *TokenHandler) getClientCredentials(r *Request) (string, string, error) {
	if id, secret, ok := r.BasicAuth(); ok {
		return id, secret, nil
	}
	id := r.Body.Get("client_id")
	secret := r.Body.Get("client_secret")
	if id != "" && secret != "" {
		return id, secret, nil
	}
	if id != "" && !h.isClientAuthenticationRequired(r.Body.Get("grant_type")) {
		return id, "", nil
	}
	return "", "", ErrInvalidClient("cannot retrieve client credentials")
}

func (h *TokenHandler) isClientAuthenticationRequired(grantType string) bool {
	if grantType == "" {
		return true
	}
	required, ok := h.requireClientAuthentication[grantType]
	if !ok {
		return true
	}
	return required
}

func (h *TokenHandler) handleGrantType(ctx context.Context, r *Request, client *Client) (*Token, error) {
	grantType := r.Body.Get("grant_type")
	if grantType == "" {
		return nil, ErrInvalidRequest("missing parameter: grant_type")
	}
	if !isNchar(grantType) && !isURI(grantType) {
		return nil, ErrInvalidRequest("invalid parameter: grant_type")
	}
	if !slices.Contains(client.Grants, grantType) {
		return nil, ErrUnauthorizedClient("unauthorized client: grant_type is invalid")
	}
	factory, ok := h.grantTypes[grantType]
	if !ok {
		return nil, ErrUnsupportedGrantType("unsupported grant type: " + grantType)
	}

	accessTokenTTL := h.accessTokenTTL
	if client.AccessTokenTTL > 0 {
		accessTokenTTL = client.AccessTokenTTL
	}
	refreshTokenTTL := h.refreshTokenTTL
	if client.RefreshTokenTTL > 0 {
		refreshTokenTTL = client.RefreshTokenTTL
	}

	grant, err := factory(GrantOptions{
		Model:              h.rawModel,
		AccessTokenTTL:     accessTokenTTL,
		RefreshTokenTTL:    refreshTokenTTL,
		ReuseRefreshTokens: h.reuseRefreshTokens,
		Clock:              h.clock,
	})
	if err != nil {
		return nil, err
	}
	return grant.Handle(ctx, r, client)
}
