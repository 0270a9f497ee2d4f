package oauth

import (
	"context"
	"time"

	"github.com/oauthkit/oauth2-core/security"
)

// Built-in grant type names, as they appear in the grant_type request
// parameter and in Client.Grants.
const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeClientCredentials = "client_credentials"
	GrantTypePassword          = "password"
	GrantTypeRefreshToken      = "refresh_token"
)

// GrantType is a token-issuing strategy for one OAuth grant. Implementations
// run their full validation pipeline and return the persisted token bundle.
type GrantType interface {
	Handle(ctx context.Context, r *Request, client *Client) (*Token, error)
}

// GrantFactory builds a grant strategy for a single token request. The token
// handler instantiates a fresh strategy per request with the effective
// (possibly per-client) lifetimes.
type GrantFactory func(opts GrantOptions) (GrantType, error)

// GrantOptions configure a grant strategy instance.
type GrantOptions struct {
	// Model is the embedding application's model value. Each strategy
	// asserts the capabilities it needs at construction time.
	Model any

	// AccessTokenTTL is the access token lifetime in seconds. Required.
	AccessTokenTTL int64

	// RefreshTokenTTL is the refresh token lifetime in seconds.
	RefreshTokenTTL int64

	// ReuseRefreshTokens keeps the presented refresh token valid instead
	// of rotating it on every refresh_token grant.
	ReuseRefreshTokens bool

	// Clock supplies the current time; nil means the system clock.
	Clock security.Clock
}

// grantBase carries the state and helpers shared by every grant strategy:
// token generation, expiry computation and scope handling.
type grantBase struct {
	model              any
	saver              TokenSaver
	accessTokenTTL     int64
	refreshTokenTTL    int64
	reuseRefreshTokens bool
	clock              security.Clock
}

func newGrantBase(opts GrantOptions) (grantBase, error) {
	if opts.Model == nil {
		return grantBase{}, ErrInvalidArgument("missing parameter: model")
	}
	if opts.AccessTokenTTL <= 0 {
		return grantBase{}, ErrInvalidArgument("missing parameter: access token lifetime")
	}
	saver, ok := opts.Model.(TokenSaver)
	if !ok {
		return grantBase{}, ErrInvalidArgument("model does not implement SaveToken")
	}
	clock := opts.Clock
	if clock == nil {
		clock = security.SystemClock{}
	}
	return grantBase{
		model:              opts.Model,
		saver:              saver,
		accessTokenTTL:     opts.AccessTokenTTL,
		refreshTokenTTL:    opts.RefreshTokenTTL,
		reuseRefreshTokens: opts.ReuseRefreshTokens,
		clock:              clock,
	}, nil
}

// generateAccessToken delegates to the model's generator when present,
// falling back to the built-in random generator on an empty result.
func (g *grantBase) generateAccessToken(ctx context.Context, client *Client, user User, scope string) (string, error) {
	if gen, ok := g.model.(AccessTokenGenerator); ok {
		token, err := gen.GenerateAccessToken(ctx, client, user, scope)
		if err != nil {
			return "", err
		}
		if token != "" {
			return token, nil
		}
	}
	return security.GenerateToken(), nil
}

// generateRefreshToken mirrors generateAccessToken for refresh tokens.
func (g *grantBase) generateRefreshToken(ctx context.Context, client *Client, user User, scope string) (string, error) {
	if gen, ok := g.model.(RefreshTokenGenerator); ok {
		token, err := gen.GenerateRefreshToken(ctx, client, user, scope)
		if err != nil {
			return "", err
		}
		if token != "" {
			return token, nil
		}
	}
	return security.GenerateToken(), nil
}

// accessTokenExpiresAt computes now + access token lifetime.
func (g *grantBase) accessTokenExpiresAt() time.Time {
	return g.clock.Now().Add(time.Duration(g.accessTokenTTL) * time.Second)
}

// refreshTokenExpiresAt computes now + refresh token lifetime.
func (g *grantBase) refreshTokenExpiresAt() time.Time {
	return g.clock.Now().Add(time.Duration(g.refreshTokenTTL) * time.Second)
}

// getScope extracts and validates the scope from the request body.
func (g *grantBase) getScope(r *Request) (string, error) {
	scope := r.Body.Get("scope")
	if scope != "" && !isNqschar(scope) {
		return "", ErrInvalidArgument("invalid parameter: scope")
	}
	return scope, nil
}

// validateScope narrows the requested scope through the model when it
// implements ValidateScope; an empty result is an invalid_scope error.
func (g *grantBase) validateScope(ctx context.Context, user User, client *Client, scope string) (string, error) {
	validator, ok := g.model.(ScopeValidator)
	if !ok {
		return scope, nil
	}
	validated, err := validator.ValidateScope(ctx, user, client, scope)
	if err != nil {
		return "", err
	}
	if validated == "" {
		return "", ErrInvalidScope("requested scope is invalid")
	}
	return validated, nil
}

// saveToken runs the shared end-of-grant path: validate scope, generate
// access and refresh tokens, compute both expiries and persist the bundle.
func (g *grantBase) saveToken(ctx context.Context, user User, client *Client, scope string) (*Token, error) {
	validScope, err := g.validateScope(ctx, user, client, scope)
	if err != nil {
		return nil, err
	}
	accessToken, err := g.generateAccessToken(ctx, client, user, scope)
	if err != nil {
		return nil, err
	}
	refreshToken, err := g.generateRefreshToken(ctx, client, user, scope)
	if err != nil {
		return nil, err
	}
	token := &Token{
		AccessToken:           accessToken,
		AccessTokenExpiresAt:  g.accessTokenExpiresAt(),
		RefreshToken:          refreshToken,
		RefreshTokenExpiresAt: g.refreshTokenExpiresAt(),
		Scope:                 validScope,
	}
	saved, err := g.saver.SaveToken(ctx, token, client, user)
	if err != nil {
		return nil, err
	}
	if saved == nil {
		return nil, ErrServerError("SaveToken did not return a token")
	}
	return saved, nil
}

// saveAccessOnlyToken persists an access-token-only bundle. Used by the
// client_credentials grant (RFC 6749 section 4.4.3 forbids refresh tokens)
// and the implicit flow.
func (g *grantBase) saveAccessOnlyToken(ctx context.Context, user User, client *Client, scope string) (*Token, error) {
	validScope, err := g.validateScope(ctx, user, client, scope)
	if err != nil {
		return nil, err
	}
	accessToken, err := g.generateAccessToken(ctx, client, user, scope)
	if err != nil {
		return nil, err
	}
	token := &Token{
		AccessToken:          accessToken,
		AccessTokenExpiresAt: g.accessTokenExpiresAt(),
		Scope:                validScope,
	}
	saved, err := g.saver.SaveToken(ctx, token, client, user)
	if err != nil {
		return nil, err
	}
	if saved == nil {
		return nil, ErrServerError("SaveToken did not return a token")
	}
	return saved, nil
}
