package oauth

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/oauthkit/oauth2-core/instrumentation"
	"github.com/oauthkit/oauth2-core/security"
)

// Config holds server configuration. Zero values select the documented
// defaults.
type Config struct {
	// Model is the application's persistence contract. Required. Each
	// endpoint is enabled when the model implements its capabilities.
	Model any

	// AccessTokenTTL is the access token lifetime in seconds.
	// Default: 3600 (1 hour).
	AccessTokenTTL int64

	// RefreshTokenTTL is the refresh token lifetime in seconds.
	// Default: 1209600 (2 weeks).
	RefreshTokenTTL int64

	// AuthorizationCodeTTL is the authorization code lifetime in seconds.
	// Default: 300 (5 minutes).
	AuthorizationCodeTTL int64

	// Scope, when non-empty, is required of every token passed to
	// Authenticate.
	Scope string

	// AllowEmptyState drops the state requirement on the authorize
	// endpoint.
	AllowEmptyState bool

	// AllowExtendedTokenAttributes copies Token.Extra into token
	// responses.
	AllowExtendedTokenAttributes bool

	// AllowBearerTokensInQueryString permits the access_token query
	// parameter on protected resources. Discouraged by RFC 6750.
	AllowBearerTokensInQueryString bool

	// DisableAcceptedScopesHeader suppresses the X-Accepted-OAuth-Scopes
	// response header. On by default when Scope is configured.
	DisableAcceptedScopesHeader bool

	// DisableAuthorizedScopesHeader suppresses the X-OAuth-Scopes
	// response header. On by default when Scope is configured.
	DisableAuthorizedScopesHeader bool

	// ReuseRefreshTokens disables refresh token rotation. Rotation is the
	// default.
	ReuseRefreshTokens bool

	// RequireClientAuthentication relaxes client authentication per grant
	// type; see TokenOptions.
	RequireClientAuthentication map[string]bool

	// EnableImplicitFlow registers the token response type on the
	// authorize endpoint.
	EnableImplicitFlow bool

	// ExtensionGrants registers additional grant strategies by
	// grant_type name.
	ExtensionGrants map[string]GrantFactory

	// GetUser overrides bearer-token authentication on the authorize
	// endpoint.
	GetUser UserResolver

	// RateLimiter, when set, throttles token requests per client address.
	RateLimiter *security.RateLimiter

	// Clock supplies the current time; nil means the system clock.
	Clock security.Clock

	Logger          *slog.Logger
	Instrumentation *instrumentation.Instrumentation
}

// Server is the library facade: it wires configuration defaults into the
// four protocol handlers and adds logging and telemetry around them.
type Server struct {
	config *Config

	authenticate *AuthenticateHandler
	authorize    *AuthorizeHandler
	token        *TokenHandler
	revoke       *RevokeHandler

	logger  *slog.Logger
	metrics *instrumentation.Metrics
	tracer  trace.Tracer
}

// NewServer builds a Server. Endpoints whose model capabilities are absent
// are left disabled and report invalid_argument when called.
func NewServer(config *Config) (*Server, error) {
	if config == nil || config.Model == nil {
		return nil, ErrInvalidArgument("missing parameter: model")
	}
	cfg := *config
	applyDefaults(&cfg)

	s := &Server{
		config: &cfg,
		logger: cfg.Logger,
	}
	if cfg.Instrumentation != nil {
		s.metrics = cfg.Instrumentation.Metrics()
		s.tracer = cfg.Instrumentation.Tracer("server")
	}

	var err error
	if _, ok := cfg.Model.(AccessTokenModel); ok {
		s.authenticate, err = NewAuthenticateHandler(AuthenticateOptions{
			Model:                          cfg.Model,
			Scope:                          cfg.Scope,
			AddAcceptedScopesHeader:        !cfg.DisableAcceptedScopesHeader,
			AddAuthorizedScopesHeader:      !cfg.DisableAuthorizedScopesHeader,
			AllowBearerTokensInQueryString: cfg.AllowBearerTokensInQueryString,
			Clock:                          cfg.Clock,
			Logger:                         cfg.Logger,
		})
		if err != nil {
			return nil, err
		}
	}

	_, isClientModel := cfg.Model.(ClientModel)
	if isClientModel {
		if _, ok := cfg.Model.(AuthorizationCodeModel); ok && (s.authenticate != nil || cfg.GetUser != nil) {
			s.authorize, err = NewAuthorizeHandler(AuthorizeOptions{
				Model:                cfg.Model,
				Authenticate:         s.authenticate,
				GetUser:              cfg.GetUser,
				AuthorizationCodeTTL: cfg.AuthorizationCodeTTL,
				AccessTokenTTL:       cfg.AccessTokenTTL,
				AllowEmptyState:      cfg.AllowEmptyState,
				EnableImplicitFlow:   cfg.EnableImplicitFlow,
				Clock:                cfg.Clock,
				Logger:               cfg.Logger,
			})
			if err != nil {
				return nil, err
			}
		}
		if _, ok := cfg.Model.(TokenSaver); ok {
			s.token, err = NewTokenHandler(TokenOptions{
				Model:                        cfg.Model,
				AccessTokenTTL:               cfg.AccessTokenTTL,
				RefreshTokenTTL:              cfg.RefreshTokenTTL,
				ReuseRefreshTokens:           cfg.ReuseRefreshTokens,
				AllowExtendedTokenAttributes: cfg.AllowExtendedTokenAttributes,
				RequireClientAuthentication:  cfg.RequireClientAuthentication,
				ExtensionGrants:              cfg.ExtensionGrants,
				RateLimiter:                  cfg.RateLimiter,
				Clock:                        cfg.Clock,
				Logger:                       cfg.Logger,
			})
			if err != nil {
				return nil, err
			}
		}
		_, hasRefresh := cfg.Model.(RefreshTokenModel)
		_, hasRevoker := cfg.Model.(AccessTokenRevoker)
		if hasRefresh || (s.authenticate != nil && hasRevoker) {
			s.revoke, err = NewRevokeHandler(RevokeOptions{
				Model:  cfg.Model,
				Clock:  cfg.Clock,
				Logger: cfg.Logger,
			})
			if err != nil {
				return nil, err
			}
		}
	}

	if s.authenticate == nil && s.authorize == nil && s.token == nil && s.revoke == nil {
		return nil, ErrInvalidArgument("model does not implement any endpoint capability")
	}
	return s, nil
}

func applyDefaults(cfg *Config) {
	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = 3600
	}
	if cfg.RefreshTokenTTL <= 0 {
		cfg.RefreshTokenTTL = 1209600
	}
	if cfg.AuthorizationCodeTTL <= 0 {
		cfg.AuthorizationCodeTTL = 300
	}
	if cfg.Clock == nil {
		cfg.Clock = security.SystemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
}

// Authenticate validates the bearer token on r and returns the resolved
// token. On failure w carries the error body and challenge headers.
func (s *Server) Authenticate(ctx context.Context, r *Request, w *Response) (*Token, error) {
	ctx, span, start := s.start(ctx, "oauth.authenticate")
	defer s.end(span)

	if s.authenticate == nil {
		return nil, s.fail(ctx, w, span, "authenticate", start, ErrInvalidArgument("model does not support authentication"))
	}
	token, err := s.authenticate.Handle(ctx, r, w)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordAuthentication(ctx, false)
		}
		return nil, s.fail(ctx, w, span, "authenticate", start, err)
	}
	s.succeed(ctx, span, "authenticate", start)
	if s.metrics != nil {
		s.metrics.RecordAuthentication(ctx, true)
	}
	return token, nil
}

// Authorize processes an authorization request; on success w carries the
// redirect back to the client.
func (s *Server) Authorize(ctx context.Context, r *Request, w *Response) error {
	ctx, span, start := s.start(ctx, "oauth.authorize")
	defer s.end(span)

	if s.authorize == nil {
		return s.fail(ctx, w, span, "authorize", start, ErrInvalidArgument("model does not support the authorize endpoint"))
	}
	if err := s.authorize.Handle(ctx, r, w); err != nil {
		return s.fail(ctx, w, span, "authorize", start, err)
	}
	s.succeed(ctx, span, "authorize", start)
	if s.metrics != nil {
		s.metrics.RecordAuthorizationCodeIssued(ctx, r.Param("response_type"))
	}
	return nil
}

// Token processes a token request; on success w carries the bearer token
// body and the issued token is returned.
func (s *Server) Token(ctx context.Context, r *Request, w *Response) (*Token, error) {
	ctx, span, start := s.start(ctx, "oauth.token")
	defer s.end(span)

	if s.token == nil {
		return nil, s.fail(ctx, w, span, "token", start, ErrInvalidArgument("model does not support the token endpoint"))
	}
	token, err := s.token.Handle(ctx, r, w)
	if err != nil {
		return nil, s.fail(ctx, w, span, "token", start, err)
	}
	s.succeed(ctx, span, "token", start)
	if s.metrics != nil {
		s.metrics.RecordTokenIssued(ctx, r.Body.Get("grant_type"))
	}
	return token, nil
}

// Revoke processes a revocation request; on success w carries an empty 200
// response whether or not the token existed.
func (s *Server) Revoke(ctx context.Context, r *Request, w *Response) error {
	ctx, span, start := s.start(ctx, "oauth.revoke")
	defer s.end(span)

	if s.revoke == nil {
		return s.fail(ctx, w, span, "revoke", start, ErrInvalidArgument("model does not support the revoke endpoint"))
	}
	if err := s.revoke.Handle(ctx, r, w); err != nil {
		return s.fail(ctx, w, span, "revoke", start, err)
	}
	s.succeed(ctx, span, "revoke", start)
	if s.metrics != nil {
		s.metrics.RecordRevocation(ctx)
	}
	return nil
}

func (s *Server) start(ctx context.Context, name string) (context.Context, trace.Span, time.Time) {
	start := time.Now()
	var span trace.Span
	if s.tracer != nil {
		ctx, span = s.tracer.Start(ctx, name)
	}
	return ctx, span, start
}

func (s *Server) end(span trace.Span) {
	if span != nil {
		span.End()
	}
}

// fail records the error, writes it to w unless the handler already built
// an error redirect, and returns the typed error.
func (s *Server) fail(ctx context.Context, w *Response, span trace.Span, handler string, start time.Time, err error) *OAuthError {
	oerr := WrapError(err)
	if w != nil && !w.IsRedirect() {
		w.setError(oerr)
	}
	instrumentation.RecordError(span, oerr)
	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrError, oerr.Code))
	if s.metrics != nil {
		s.metrics.RecordProtocolError(ctx, handler, oerr.Code)
		s.metrics.RecordHandlerRequest(ctx, handler, float64(time.Since(start).Milliseconds()), false)
	}
	return oerr
}

func (s *Server) succeed(ctx context.Context, span trace.Span, handler string, start time.Time) {
	instrumentation.SetSpanSuccess(span)
	if s.metrics != nil {
		s.metrics.RecordHandlerRequest(ctx, handler, float64(time.Since(start).Milliseconds()), true)
	}
}
