package oauth

import (
	"context"

	"github.com/oauthkit/oauth2-core/security"
)

// refreshTokenGrant exchanges a refresh token for a fresh access token
// (RFC 6749 section 6), rotating the refresh token unless the server is
// configured to reuse them.
type refreshTokenGrant struct {
	grantBase
	tokens RefreshTokenModel
}

// NewRefreshTokenGrant builds the refresh_token strategy. The model must
// implement RefreshTokenModel and TokenSaver.
func NewRefreshTokenGrant(opts GrantOptions) (GrantType, error) {
	base, err := newGrantBase(opts)
	if err != nil {
		return nil, err
	}
	tokens, ok := opts.Model.(RefreshTokenModel)
	if !ok {
		return nil, ErrInvalidArgument("model does not implement GetRefreshToken and RevokeToken")
	}
	return &refreshTokenGrant{grantBase: base, tokens: tokens}, nil
}

func (g *refreshTokenGrant) Handle(ctx context.Context, r *Request, client *Client) (*Token, error) {
	if r == nil {
		return nil, ErrInvalidArgument("missing parameter: request")
	}
	if client == nil {
		return nil, ErrInvalidArgument("missing parameter: client")
	}

	token, err := g.getRefreshToken(ctx, r, client)
	if err != nil {
		return nil, err
	}
	if err := g.revokeToken(ctx, token); err != nil {
		return nil, err
	}
	return g.saveRefreshedToken(ctx, token.User, client, token.Scope)
}

func (g *refreshTokenGrant) getRefreshToken(ctx context.Context, r *Request, client *Client) (*RefreshToken, error) {
	raw := r.Body.Get("refresh_token")
	if raw == "" {
		return nil, ErrInvalidRequest("missing parameter: refresh_token")
	}
	if !isVschar(raw) {
		return nil, ErrInvalidRequest("invalid parameter: refresh_token")
	}

	token, err := g.tokens.GetRefreshToken(ctx, raw)
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, ErrInvalidGrant("refresh token is invalid")
	}
	if token.Client == nil {
		return nil, ErrServerError("GetRefreshToken did not return a client")
	}
	if token.User == nil {
		return nil, ErrServerError("GetRefreshToken did not return a user")
	}
	if token.Client.ID != client.ID {
		return nil, ErrInvalidGrant("refresh token is invalid")
	}
	if security.IsExpired(g.clock, token.ExpiresAt) {
		return nil, ErrInvalidGrant("refresh token has expired")
	}
	return token, nil
}

// revokeToken invalidates the presented refresh token before issuing its
// replacement. Skipped entirely when rotation is disabled.
func (g *refreshTokenGrant) revokeToken(ctx context.Context, token *RefreshToken) error {
	if g.reuseRefreshTokens {
		return nil
	}
	revoked, err := g.tokens.RevokeToken(ctx, token)
	if err != nil {
		return err
	}
	if !revoked {
		return ErrInvalidGrant("refresh token is invalid")
	}
	return nil
}

// saveRefreshedToken issues the replacement bundle. The scope was already
// validated when the refresh token was granted, so it is carried over
// verbatim. A new refresh token is included only when rotation is enabled;
// otherwise the client keeps using the one it presented.
func (g *refreshTokenGrant) saveRefreshedToken(ctx context.Context, user User, client *Client, scope string) (*Token, error) {
	accessToken, err := g.generateAccessToken(ctx, client, user, scope)
	if err != nil {
		return nil, err
	}
	token := &Token{
		AccessToken:          accessToken,
		AccessTokenExpiresAt: g.accessTokenExpiresAt(),
		Scope:                scope,
	}
	if !g.reuseRefreshTokens {
		refreshToken, err := g.generateRefreshToken(ctx, client, user, scope)
		if err != nil {
			return nil, err
		}
		token.RefreshToken = refreshToken
		token.RefreshTokenExpiresAt = g.refreshTokenExpiresAt()
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
