package oauth

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/oauthkit/oauth2-core/security"
)

const (
	responseTypeCode  = "code"
	responseTypeToken = "token"
)

// responseType builds the authorize flow's outcome into a redirect URI.
// The code response type carries its result in the query string; the token
// response type (implicit flow) in the fragment.
type responseType interface {
	// handle produces and persists the flow's credential (authorization
	// code or access token) for later embedding into the redirect.
	handle(ctx context.Context, r *Request, client *Client, user User, redirectURI, scope string) error

	// buildSuccessRedirect returns the redirect URI with the credential
	// embedded.
	buildSuccessRedirect(base *url.URL) *url.URL

	// setParam adds a parameter to the redirect URI in the strategy's
	// carrier (query string or fragment).
	setParam(u *url.URL, key, value string)
}

// responseTypeOptions configure a response type instance for one request.
type responseTypeOptions struct {
	model                any
	authorizationCodeTTL int64
	accessTokenTTL       int64
	clock                security.Clock
}

// responseTypeFactory builds a response type for one authorize request.
type responseTypeFactory func(opts responseTypeOptions) (responseType, error)

// codeResponseType issues an authorization code and embeds it into the
// redirect URI query string (RFC 6749 section 4.1.2).
type codeResponseType struct {
	model AuthorizationCodeModel
	gen   any // model, for the optional AuthorizationCodeGenerator capability
	ttl   int64
	clock security.Clock

	code string
}

func newCodeResponseType(opts responseTypeOptions) (responseType, error) {
	if opts.authorizationCodeTTL <= 0 {
		return nil, ErrInvalidArgument("missing parameter: authorization code lifetime")
	}
	if opts.model == nil {
		return nil, ErrInvalidArgument("missing parameter: model")
	}
	model, ok := opts.model.(AuthorizationCodeModel)
	if !ok {
		return nil, ErrInvalidArgument("model does not implement SaveAuthorizationCode")
	}
	clock := opts.clock
	if clock == nil {
		clock = security.SystemClock{}
	}
	return &codeResponseType{
		model: model,
		gen:   opts.model,
		ttl:   opts.authorizationCodeTTL,
		clock: clock,
	}, nil
}

func (t *codeResponseType) handle(ctx context.Context, r *Request, client *Client, user User, redirectURI, scope string) error {
	if r == nil {
		return ErrInvalidArgument("missing parameter: request")
	}
	if client == nil {
		return ErrInvalidArgument("missing parameter: client")
	}
	if user == nil {
		return ErrInvalidArgument("missing parameter: user")
	}
	if redirectURI == "" {
		return ErrInvalidArgument("missing parameter: redirect URI")
	}

	code, err := t.generateAuthorizationCode(ctx, client, user, scope)
	if err != nil {
		return err
	}

	ttl := t.ttl
	if client.AuthorizationCodeTTL > 0 {
		ttl = client.AuthorizationCodeTTL
	}
	saved, err := t.model.SaveAuthorizationCode(ctx, &AuthorizationCode{
		Code:                code,
		ExpiresAt:           t.clock.Now().Add(time.Duration(ttl) * time.Second),
		RedirectURI:         redirectURI,
		Scope:               scope,
		CodeChallenge:       r.Param("code_challenge"),
		CodeChallengeMethod: r.Param("code_challenge_method"),
	}, client, user)
	if err != nil {
		return err
	}
	if saved == nil {
		return ErrServerError("SaveAuthorizationCode did not return a code")
	}
	t.code = saved.Code
	return nil
}

func (t *codeResponseType) generateAuthorizationCode(ctx context.Context, client *Client, user User, scope string) (string, error) {
	if gen, ok := t.gen.(AuthorizationCodeGenerator); ok {
		code, err := gen.GenerateAuthorizationCode(ctx, client, user, scope)
		if err != nil {
			return "", err
		}
		if code != "" {
			return code, nil
		}
	}
	return security.GenerateToken(), nil
}

func (t *codeResponseType) buildSuccessRedirect(base *url.URL) *url.URL {
	u := *base
	u.RawQuery = ""
	t.setParam(&u, "code", t.code)
	return &u
}

func (t *codeResponseType) setParam(u *url.URL, key, value string) {
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
}

// tokenResponseType issues an access token through the implicit grant and
// embeds it into the redirect URI fragment (RFC 6749 section 4.2.2).
type tokenResponseType struct {
	opts responseTypeOptions

	accessToken string
	expiresIn   int64
}

func newTokenResponseType(opts responseTypeOptions) (responseType, error) {
	if opts.accessTokenTTL <= 0 {
		return nil, ErrInvalidArgument("missing parameter: access token lifetime")
	}
	return &tokenResponseType{opts: opts}, nil
}

func (t *tokenResponseType) handle(ctx context.Context, r *Request, client *Client, user User, redirectURI, scope string) error {
	ttl := t.opts.accessTokenTTL
	if client != nil && client.AccessTokenTTL > 0 {
		ttl = client.AccessTokenTTL
	}
	grant, err := NewImplicitGrant(GrantOptions{
		Model:          t.opts.model,
		AccessTokenTTL: ttl,
		Clock:          t.opts.clock,
	}, user, scope)
	if err != nil {
		return err
	}
	token, err := grant.Handle(ctx, r, client)
	if err != nil {
		return err
	}
	t.accessToken = token.AccessToken
	t.expiresIn = ttl
	return nil
}

func (t *tokenResponseType) buildSuccessRedirect(base *url.URL) *url.URL {
	u := *base
	t.setParam(&u, "access_token", t.accessToken)
	t.setParam(&u, "token_type", tokenTypeBearer)
	if t.expiresIn > 0 {
		t.setParam(&u, "expires_in", strconv.FormatInt(t.expiresIn, 10))
	}
	return &u
}

func (t *tokenResponseType) setParam(u *url.URL, key, value string) {
	enc := u.RawFragment
	if enc == "" && u.Fragment != "" {
		enc = u.EscapedFragment()
	}
	if enc != "" {
		enc += "&"
	}
	enc += key + "=" + url.QueryEscape(value)
	u.RawFragment = enc
	if dec, err := url.QueryUnescape(enc); err == nil {
		u.Fragment = dec
	} else {
		u.Fragment = enc
	}
}
