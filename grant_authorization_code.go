package oauth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"

	"github.com/oauthkit/oauth2-core/security"
)

// authorizationCodeGrant exchanges a single-use authorization code for
// tokens (RFC 6749 section 4.1.3), verifying PKCE when the code carries a
// challenge (RFC 7636).
type authorizationCodeGrant struct {
	grantBase
	codes AuthorizationCodeModel
}

// NewAuthorizationCodeGrant builds the authorization_code strategy. The
// model must implement AuthorizationCodeModel and TokenSaver.
func NewAuthorizationCodeGrant(opts GrantOptions) (GrantType, error) {
	base, err := newGrantBase(opts)
	if err != nil {
		return nil, err
	}
	codes, ok := opts.Model.(AuthorizationCodeModel)
	if !ok {
		return nil, ErrInvalidArgument("model does not implement GetAuthorizationCode, SaveAuthorizationCode and RevokeAuthorizationCode")
	}
	return &authorizationCodeGrant{grantBase: base, codes: codes}, nil
}

func (g *authorizationCodeGrant) Handle(ctx context.Context, r *Request, client *Client) (*Token, error) {
	if r == nil {
		return nil, ErrInvalidArgument("missing parameter: request")
	}
	if client == nil {
		return nil, ErrInvalidArgument("missing parameter: client")
	}

	code, err := g.getAuthorizationCode(ctx, r, client)
	if err != nil {
		return nil, err
	}
	if err := g.validateRedirectURI(r, code); err != nil {
		return nil, err
	}
	if err := g.verifyCodeChallenge(r, code); err != nil {
		return nil, err
	}
	if err := g.revokeAuthorizationCode(ctx, code); err != nil {
		return nil, err
	}
	return g.saveToken(ctx, code.User, client, code.Scope)
}

func (g *authorizationCodeGrant) getAuthorizationCode(ctx context.Context, r *Request, client *Client) (*AuthorizationCode, error) {
	raw := r.Body.Get("code")
	if raw == "" {
		return nil, ErrInvalidRequest("missing parameter: code")
	}
	if !isVschar(raw) {
		return nil, ErrInvalidRequest("invalid parameter: code")
	}

	code, err := g.codes.GetAuthorizationCode(ctx, raw)
	if err != nil {
		return nil, err
	}
	if code == nil {
		return nil, ErrInvalidGrant("authorization code is invalid")
	}
	if code.Client == nil {
		return nil, ErrServerError("GetAuthorizationCode did not return a client")
	}
	if code.User == nil {
		return nil, ErrServerError("GetAuthorizationCode did not return a user")
	}
	if code.Client.ID != client.ID {
		return nil, ErrInvalidGrant("authorization code is invalid")
	}
	if code.ExpiresAt.IsZero() {
		return nil, ErrServerError("GetAuthorizationCode did not return an expiry")
	}
	if security.IsExpired(g.clock, code.ExpiresAt) {
		return nil, ErrInvalidGrant("authorization code has expired")
	}
	if code.RedirectURI != "" && !isURI(code.RedirectURI) {
		return nil, ErrInvalidGrant("redirect_uri is not a valid URI")
	}
	return code, nil
}

// validateRedirectURI enforces RFC 6749 section 4.1.3: if the authorization
// request carried a redirect_uri, the same value must be presented here.
func (g *authorizationCodeGrant) validateRedirectURI(r *Request, code *AuthorizationCode) error {
	if code.RedirectURI == "" {
		return nil
	}
	redirectURI := r.Body.Get("redirect_uri")
	if redirectURI == "" {
		redirectURI = r.Query.Get("redirect_uri")
	}
	if !isURI(redirectURI) {
		return ErrInvalidRequest("redirect_uri is not a valid URI")
	}
	if redirectURI != code.RedirectURI {
		return ErrInvalidRequest("redirect_uri is invalid")
	}
	return nil
}

// verifyCodeChallenge checks the PKCE code_verifier against the challenge
// bound to the code at authorization time. Codes issued without a challenge
// skip verification.
func (g *authorizationCodeGrant) verifyCodeChallenge(r *Request, code *AuthorizationCode) error {
	if code.CodeChallenge == "" {
		return nil
	}
	verifier := r.Body.Get("code_verifier")
	if verifier == "" {
		return ErrInvalidGrant("missing parameter: code_verifier")
	}
	if !isVschar(verifier) {
		return ErrInvalidGrant("invalid parameter: code_verifier")
	}

	var derived string
	switch code.CodeChallengeMethod {
	case "", "plain":
		derived = verifier
	case "S256":
		sum := sha256.Sum256([]byte(verifier))
		derived = base64.RawURLEncoding.EncodeToString(sum[:])
	default:
		return ErrServerError("unsupported code challenge method")
	}
	if subtle.ConstantTimeCompare([]byte(derived), []byte(code.CodeChallenge)) != 1 {
		return ErrInvalidGrant("code_verifier is invalid")
	}
	return nil
}

// revokeAuthorizationCode consumes the code so it can never be exchanged
// twice (RFC 6749 section 4.1.2).
func (g *authorizationCodeGrant) revokeAuthorizationCode(ctx context.Context, code *AuthorizationCode) error {
	revoked, err := g.codes.RevokeAuthorizationCode(ctx, code)
	if err != nil {
		return err
	}
	if !revoked {
		return ErrInvalidGrant("authorization code is invalid")
	}
	return nil
}
