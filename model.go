package oauth

import (
	"context"
	"time"

	"golang.org/x/oauth2"
)

// User is the opaque resource-owner value supplied by the model. The core
// never inspects it beyond requiring that it be non-nil.
type User = any

// Client is a registered OAuth client as returned by the model. Identity and
// secret verification are entirely the model's responsibility.
type Client struct {
	// ID is the client identifier.
	ID string

	// Grants lists the grant types this client is authorized for
	// (e.g. "authorization_code", "refresh_token").
	Grants []string

	// RedirectURIs lists the registered redirection endpoints.
	RedirectURIs []string

	// Per-client lifetime overrides in seconds; zero means "use the
	// server default".
	AccessTokenTTL       int64
	RefreshTokenTTL      int64
	AuthorizationCodeTTL int64
}

// AuthorizationCode is a single-use intermediate credential issued by the
// authorize handler and consumed by the authorization_code grant.
type AuthorizationCode struct {
	Code                string
	ExpiresAt           time.Time
	RedirectURI         string
	Scope               string
	CodeChallenge       string
	CodeChallengeMethod string
	Client              *Client
	User                User
}

// RefreshToken is a long-lived credential exchanged for fresh access tokens.
// A zero ExpiresAt means the token never expires.
type RefreshToken struct {
	RefreshToken string
	ExpiresAt    time.Time
	Scope        string
	Client       *Client
	User         User
}

// Token is the access token bundle produced by every token-issuing grant.
type Token struct {
	AccessToken           string
	AccessTokenExpiresAt  time.Time
	RefreshToken          string
	RefreshTokenExpiresAt time.Time
	Scope                 string
	Client                *Client
	User                  User

	// Extra carries model-defined custom attributes. They are only
	// serialized onto the token response when the server is configured
	// with AllowExtendedTokenAttributes.
	Extra map[string]any
}

// OAuth2Token converts the bundle into a golang.org/x/oauth2 token for
// interoperability with clients built on that package.
func (t *Token) OAuth2Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    tokenTypeBearer,
		RefreshToken: t.RefreshToken,
		Expiry:       t.AccessTokenExpiresAt,
	}
}

// Model method sets. The embedding application supplies one value satisfying
// the capabilities for the flows it enables; each handler and grant checks
// its required capabilities at construction time and fails fast with an
// invalid_argument error when one is missing. A (nil, nil) return from any
// lookup means "not found" and maps to the flow's defined error.

// ClientModel looks up and authenticates clients. Required by the authorize,
// token and revoke handlers. clientSecret is empty when the flow does not
// authenticate the client (e.g. the authorize endpoint, public clients).
type ClientModel interface {
	GetClient(ctx context.Context, clientID, clientSecret string) (*Client, error)
}

// TokenSaver persists the access token bundle at the end of a grant. The
// returned token is what the handler serializes, so the model may decorate it.
type TokenSaver interface {
	SaveToken(ctx context.Context, token *Token, client *Client, user User) (*Token, error)
}

// AccessTokenModel resolves bearer tokens. Required by the authenticate and
// revoke handlers.
type AccessTokenModel interface {
	GetAccessToken(ctx context.Context, accessToken string) (*Token, error)
}

// AuthorizationCodeModel is required by the authorization_code grant and the
// code response type.
type AuthorizationCodeModel interface {
	GetAuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, error)
	SaveAuthorizationCode(ctx context.Context, code *AuthorizationCode, client *Client, user User) (*AuthorizationCode, error)

	// RevokeAuthorizationCode invalidates a code after its first use.
	// Returning false without an error reports that the code was already
	// consumed; the grant fails with invalid_grant in that case.
	RevokeAuthorizationCode(ctx context.Context, code *AuthorizationCode) (bool, error)
}

// RefreshTokenModel is required by the refresh_token grant and the revoke
// handler.
type RefreshTokenModel interface {
	GetRefreshToken(ctx context.Context, refreshToken string) (*RefreshToken, error)

	// RevokeToken invalidates a refresh token. Returning false without an
	// error reports that the token was already invalid.
	RevokeToken(ctx context.Context, token *RefreshToken) (bool, error)
}

// AccessTokenRevoker lets the revoke handler invalidate access tokens
// directly (RFC 7009). Optional; without it only refresh tokens are
// revocable.
type AccessTokenRevoker interface {
	RevokeAccessToken(ctx context.Context, token *Token) (bool, error)
}

// UserModel authenticates resource-owner credentials. Required by the
// password grant.
type UserModel interface {
	GetUser(ctx context.Context, username, password string, r *Request) (User, error)
}

// ClientUserModel resolves the user associated with a client. Required by the
// client_credentials grant.
type ClientUserModel interface {
	GetUserFromClient(ctx context.Context, client *Client) (User, error)
}

// ScopeValidator optionally narrows or rejects a requested scope. A returned
// empty scope means the request is invalid. When the model does not implement
// it, the requested scope passes through unchanged.
type ScopeValidator interface {
	ValidateScope(ctx context.Context, user User, client *Client, scope string) (string, error)
}

// ScopeVerifier checks that an issued token satisfies a required scope.
// Required by the authenticate handler when it is configured with a scope.
type ScopeVerifier interface {
	VerifyScope(ctx context.Context, token *Token, scope string) (bool, error)
}

// AccessTokenGenerator optionally overrides opaque access token generation.
// An empty return falls back to the built-in random generator.
type AccessTokenGenerator interface {
	GenerateAccessToken(ctx context.Context, client *Client, user User, scope string) (string, error)
}

// RefreshTokenGenerator optionally overrides refresh token generation.
type RefreshTokenGenerator interface {
	GenerateRefreshToken(ctx context.Context, client *Client, user User, scope string) (string, error)
}

// AuthorizationCodeGenerator optionally overrides authorization code
// generation.
type AuthorizationCodeGenerator interface {
	GenerateAuthorizationCode(ctx context.Context, client *Client, user User, scope string) (string, error)
}

// ExtensionModel backs extension grant types registered through
// Config.ExtensionGrants with NewExtensionGrant. GetTokenData extracts the
// assertion carried by the request (e.g. a JWT); GetUserFromTokenData
// resolves the user it asserts. Errors from either are reported to the
// client as invalid_grant.
type ExtensionModel interface {
	GetTokenData(ctx context.Context, r *Request, client *Client) (any, error)
	GetUserFromTokenData(ctx context.Context, r *Request, client *Client, tokenData any) (User, error)
}
