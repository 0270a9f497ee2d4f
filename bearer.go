package oauth

import (
	"time"

	"github.com/oauthkit/oauth2-core/security"
)

const tokenTypeBearer = "Bearer"

// bearerToken is the wire form of a token response (RFC 6750). It is built
// from the saved token bundle and serialized onto the response body.
type bearerToken struct {
	accessToken  string
	expiresIn    int64
	refreshToken string
	scope        string
	extra        map[string]any
}

// newBearerToken validates the saved bundle and derives the wire fields.
// expires_in is the remaining lifetime in whole seconds relative to the
// clock; a token without an expiry serializes without expires_in.
func newBearerToken(token *Token, allowExtendedAttributes bool, clock security.Clock) (*bearerToken, error) {
	if token == nil || token.AccessToken == "" {
		return nil, ErrInvalidArgument("missing parameter: access token")
	}
	b := &bearerToken{
		accessToken:  token.AccessToken,
		refreshToken: token.RefreshToken,
		scope:        token.Scope,
	}
	if !token.AccessTokenExpiresAt.IsZero() {
		b.expiresIn = int64(token.AccessTokenExpiresAt.Sub(clock.Now()) / time.Second)
	}
	if allowExtendedAttributes {
		b.extra = token.Extra
	}
	return b, nil
}

// body returns the RFC 6749 section 5.1 success payload.
func (b *bearerToken) body() map[string]any {
	body := map[string]any{
		"access_token": b.accessToken,
		"token_type":   tokenTypeBearer,
	}
	if b.expiresIn != 0 {
		body["expires_in"] = b.expiresIn
	}
	if b.refreshToken != "" {
		body["refresh_token"] = b.refreshToken
	}
	if b.scope != "" {
		body["scope"] = b.scope
	}
	for key, value := range b.extra {
		body[key] = value
	}
	return body
}
