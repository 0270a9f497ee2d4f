package oauth

import (
	"context"
	"log/slog"
	"net/url"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/oauthkit/oauth2-core/security"
)

// UserResolver resolves the authenticated resource owner for an authorize
// request. A nil user with a nil error is treated as a server error.
type UserResolver func(ctx context.Context, r *Request, w *Response) (User, error)

// AuthorizeOptions configures an AuthorizeHandler.
type AuthorizeOptions struct {
	// Model must implement ClientModel and AuthorizationCodeModel.
	// ScopeValidator and AuthorizationCodeGenerator are honored when
	// implemented.
	Model any

	// Authenticate resolves the resource owner from a bearer token.
	// Ignored when GetUser is set.
	Authenticate *AuthenticateHandler

	// GetUser overrides bearer-token authentication with a custom
	// resolver, e.g. a session cookie lookup.
	GetUser UserResolver

	AuthorizationCodeTTL int64
	AccessTokenTTL       int64

	// AllowEmptyState drops the requirement for a state parameter.
	AllowEmptyState bool

	// EnableImplicitFlow registers the token response type. Off by
	// default; the implicit flow is discouraged by current guidance.
	EnableImplicitFlow bool

	Clock  security.Clock
	Logger *slog.Logger
}

// AuthorizeHandler implements the authorization endpoint of RFC 6749
// section 3.1: it authenticates the resource owner, validates the client
// and redirect URI, and hands off to a response type strategy.
type AuthorizeHandler struct {
	model        ClientModel
	rawModel     any
	authenticate *AuthenticateHandler
	getUser      UserResolver

	responseTypes map[string]responseTypeFactory

	authorizationCodeTTL int64
	accessTokenTTL       int64
	allowEmptyState      bool

	clock  security.Clock
	logger *slog.Logger
}

// NewAuthorizeHandler builds an AuthorizeHandler, verifying that the model
// implements every capability the configuration requires.
func NewAuthorizeHandler(opts AuthorizeOptions) (*AuthorizeHandler, error) {
	if opts.AuthorizationCodeTTL <= 0 {
		return nil, ErrInvalidArgument("missing parameter: authorization code lifetime")
	}
	if opts.Model == nil {
		return nil, ErrInvalidArgument("missing parameter: model")
	}
	model, ok := opts.Model.(ClientModel)
	if !ok {
		return nil, ErrInvalidArgument("model does not implement GetClient")
	}
	if _, ok := opts.Model.(AuthorizationCodeModel); !ok {
		return nil, ErrInvalidArgument("model does not implement SaveAuthorizationCode")
	}
	if opts.Authenticate == nil && opts.GetUser == nil {
		return nil, ErrInvalidArgument("missing parameter: authenticate handler or user resolver")
	}
	if opts.EnableImplicitFlow && opts.AccessTokenTTL <= 0 {
		return nil, ErrInvalidArgument("missing parameter: access token lifetime")
	}

	responseTypes := map[string]responseTypeFactory{
		responseTypeCode: newCodeResponseType,
	}
	if opts.EnableImplicitFlow {
		responseTypes[responseTypeToken] = newTokenResponseType
	}

	clock := opts.Clock
	if clock == nil {
		clock = security.SystemClock{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthorizeHandler{
		model:                model,
		rawModel:             opts.Model,
		authenticate:         opts.Authenticate,
		getUser:              opts.GetUser,
		responseTypes:        responseTypes,
		authorizationCodeTTL: opts.AuthorizationCodeTTL,
		accessTokenTTL:       opts.AccessTokenTTL,
		allowEmptyState:      opts.AllowEmptyState,
		clock:                clock,
		logger:               logger,
	}, nil
}

// Handle processes one authorize request. On success w carries the redirect
// back to the client with the authorization code (or, for the implicit
// flow, the access token). Errors raised after the client is resolved are
// also delivered as a redirect, per RFC 6749 section 4.1.2.1.
func (h *AuthorizeHandler) Handle(ctx context.Context, r *Request, w *Response) error {
	if r == nil {
		return ErrInvalidArgument("missing parameter: request")
	}
	if w == nil {
		return ErrInvalidArgument("missing parameter: response")
	}
	if r.Param("allowed") == "false" {
		return ErrAccessDenied("access denied: user denied access to application")
	}

	var (
		client *Client
		user   User
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		client, err = h.getClient(gctx, r)
		return err
	})
	g.Go(func() error {
		var err error
		user, err = h.resolveUser(gctx, r, w)
		return err
	})
	if err := g.Wait(); err != nil {
		return WrapError(err)
	}

	// The redirect URI is trusted from here on: it was checked against the
	// client's registration by getClient.
	redirectURI := r.Param("redirect_uri")
	if redirectURI == "" {
		redirectURI = client.RedirectURIs[0]
	}
	base, err := url.Parse(redirectURI)
	if err != nil {
		return ErrServerError("client redirect URI is malformed")
	}
	state := r.Param("state")

	rt, err := h.authorize(ctx, r, client, user, redirectURI)
	if err != nil {
		oerr := WrapError(err)
		h.redirectError(w, rt, base, oerr, state)
		h.logger.DebugContext(ctx, "authorization failed",
			"client_id", client.ID, "error", oerr.Code, "description", oerr.Description)
		return oerr
	}

	success := rt.buildSuccessRedirect(base)
	if state != "" {
		rt.setParam(success, "state", state)
	}
	w.Redirect(success.String())
	return nil
}

// authorize runs the redirect-phase steps: scope and state validation,
// response type resolution, and credential issuance. The returned strategy
// is non-nil once the response type resolved, even on later errors, so the
// caller can place error parameters in the right carrier.
func (h *AuthorizeHandler) authorize(ctx context.Context, r *Request, client *Client, user User, redirectURI string) (responseType, error) {
	scope, err := h.getScope(ctx, r, client, user)
	if err != nil {
		return nil, err
	}
	if err := h.validateState(r); err != nil {
		return nil, err
	}
	rt, err := h.resolveResponseType(r)
	if err != nil {
		return nil, err
	}
	if err := rt.handle(ctx, r, client, user, redirectURI, scope); err != nil {
		return rt, err
	}
	return rt, nil
}

func (h *AuthorizeHandler) getClient(ctx context.Context, r *Request) (*Client, error) {
	clientID := r.Param("client_id")
	if clientID == "" {
		return nil, ErrInvalidRequest("missing parameter: client_id")
	}
	if !isVschar(clientID) {
		return nil, ErrInvalidRequest("invalid parameter: client_id")
	}
	redirectURI := r.Param("redirect_uri")
	if redirectURI != "" && !isURI(redirectURI) {
		return nil, ErrInvalidRequest("invalid request: redirect_uri is not a valid URI")
	}

	client, err := h.model.GetClient(ctx, clientID, "")
	if err != nil {
		return nil, WrapError(err)
	}
	if client == nil {
		return nil, ErrInvalidClient("client credentials are invalid")
	}
	if len(client.Grants) == 0 {
		return nil, ErrInvalidClient("missing client grants")
	}
	if !slices.Contains(client.Grants, GrantTypeAuthorizationCode) {
		return nil, ErrUnauthorizedClient("unauthorized client: grant type is invalid")
	}
	if len(client.RedirectURIs) == 0 {
		return nil, ErrInvalidClient("missing client redirect URI")
	}
	if redirectURI != "" && !slices.Contains(client.RedirectURIs, redirectURI) {
		return nil, ErrInvalidClient("redirect_uri does not match client value")
	}
	return client, nil
}

func (h *AuthorizeHandler) resolveUser(ctx context.Context, r *Request, w *Response) (User, error) {
	if h.getUser != nil {
		user, err := h.getUser(ctx, r, w)
		if err != nil {
			return nil, WrapError(err)
		}
		if user == nil {
			return nil, ErrServerError("user resolver did not return a user")
		}
		return user, nil
	}
	token, err := h.authenticate.Handle(ctx, r, w)
	if err != nil {
		return nil, err
	}
	return token.User, nil
}

func (h *AuthorizeHandler) validateState(r *Request) error {
	state := r.Param("state")
	if state == "" {
		if h.allowEmptyState {
			return nil
		}
		return ErrInvalidRequest("missing parameter: state")
	}
	if !isVschar(state) {
		return ErrInvalidRequest("invalid parameter: state")
	}
	return nil
}

func (h *AuthorizeHandler) resolveResponseType(r *Request) (responseType, error) {
	name := r.Param("response_type")
	if name == "" {
		return nil, ErrInvalidRequest("missing parameter: response_type")
	}
	factory, ok := h.responseTypes[name]
	if !ok {
		return nil, ErrUnsupportedResponseType("unsupported response type: " + name)
	}
	return factory(responseTypeOptions{
		model:                h.rawModel,
		authorizationCodeTTL: h.authorizationCodeTTL,
		accessTokenTTL:       h.accessTokenTTL,
		clock:                h.clock,
	})
}

func (h *AuthorizeHandler) getScope(ctx context.Context, r *Request, client *Client, user User) (string, error) {
	scope := r.Param("scope")
	if scope != "" && !isNqschar(scope) {
		return "", ErrInvalidScope("invalid parameter: scope")
	}
	validator, ok := h.rawModel.(ScopeValidator)
	if !ok {
		return scope, nil
	}
	validated, err := validator.ValidateScope(ctx, user, client, scope)
	if err != nil {
		return "", WrapError(err)
	}
	if validated == "" {
		return "", ErrInvalidScope("invalid scope: requested scope is invalid")
	}
	return validated, nil
}

// redirectError delivers err to the client application via its redirect
// URI. The strategy's carrier is used when known, the query string
// otherwise.
func (h *AuthorizeHandler) redirectError(w *Response, rt responseType, base *url.URL, err *OAuthError, state string) {
	u := *base
	set := func(key, value string) {
		q := u.Query()
		q.Set(key, value)
		u.RawQuery = q.Encode()
	}
	if rt != nil {
		set = func(key, value string) { rt.setParam(&u, key, value) }
	}
	set("error", err.Code)
	if err.Description != "" {
		set("error_description", err.Description)
	}
	if state != "" {
		set("state", state)
	}
	w.Redirect(u.String())
}
