package oauth

import (
	"context"
	"errors"
)

// errTestIO stands in for a model-layer I/O failure.
var errTestIO = errors.New("io failure")

// mockModel implements every model capability with overridable functions.
// Unset functions fall back to permissive defaults so tests only wire the
// behavior they exercise.
type mockModel struct {
	getClientFn               func(ctx context.Context, clientID, clientSecret string) (*Client, error)
	saveTokenFn               func(ctx context.Context, token *Token, client *Client, user User) (*Token, error)
	getAccessTokenFn          func(ctx context.Context, accessToken string) (*Token, error)
	revokeAccessTokenFn       func(ctx context.Context, token *Token) (bool, error)
	getAuthorizationCodeFn    func(ctx context.Context, code string) (*AuthorizationCode, error)
	saveAuthorizationCodeFn   func(ctx context.Context, code *AuthorizationCode, client *Client, user User) (*AuthorizationCode, error)
	revokeAuthorizationCodeFn func(ctx context.Context, code *AuthorizationCode) (bool, error)
	getRefreshTokenFn         func(ctx context.Context, refreshToken string) (*RefreshToken, error)
	revokeTokenFn             func(ctx context.Context, token *RefreshToken) (bool, error)
	getUserFn                 func(ctx context.Context, username, password string, r *Request) (User, error)
	getUserFromClientFn       func(ctx context.Context, client *Client) (User, error)
	verifyScopeFn             func(ctx context.Context, token *Token, scope string) (bool, error)
}

func (m *mockModel) GetClient(ctx context.Context, clientID, clientSecret string) (*Client, error) {
	if m.getClientFn != nil {
		return m.getClientFn(ctx, clientID, clientSecret)
	}
	return nil, nil
}

func (m *mockModel) SaveToken(ctx context.Context, token *Token, client *Client, user User) (*Token, error) {
	if m.saveTokenFn != nil {
		return m.saveTokenFn(ctx, token, client, user)
	}
	saved := *token
	saved.Client = client
	saved.User = user
	return &saved, nil
}

func (m *mockModel) GetAccessToken(ctx context.Context, accessToken string) (*Token, error) {
	if m.getAccessTokenFn != nil {
		return m.getAccessTokenFn(ctx, accessToken)
	}
	return nil, nil
}

func (m *mockModel) RevokeAccessToken(ctx context.Context, token *Token) (bool, error) {
	if m.revokeAccessTokenFn != nil {
		return m.revokeAccessTokenFn(ctx, token)
	}
	return true, nil
}

func (m *mockModel) GetAuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, error) {
	if m.getAuthorizationCodeFn != nil {
		return m.getAuthorizationCodeFn(ctx, code)
	}
	return nil, nil
}

func (m *mockModel) SaveAuthorizationCode(ctx context.Context, code *AuthorizationCode, client *Client, user User) (*AuthorizationCode, error) {
	if m.saveAuthorizationCodeFn != nil {
		return m.saveAuthorizationCodeFn(ctx, code, client, user)
	}
	saved := *code
	saved.Client = client
	saved.User = user
	return &saved, nil
}

func (m *mockModel) RevokeAuthorizationCode(ctx context.Context, code *AuthorizationCode) (bool, error) {
	if m.revokeAuthorizationCodeFn != nil {
		return m.revokeAuthorizationCodeFn(ctx, code)
	}
	return true, nil
}

func (m *mockModel) GetRefreshToken(ctx context.Context, refreshToken string) (*RefreshToken, error) {
	if m.getRefreshTokenFn != nil {
		return m.getRefreshTokenFn(ctx, refreshToken)
	}
	return nil, nil
}

func (m *mockModel) RevokeToken(ctx context.Context, token *RefreshToken) (bool, error) {
	if m.revokeTokenFn != nil {
		return m.revokeTokenFn(ctx, token)
	}
	return true, nil
}

func (m *mockModel) GetUser(ctx context.Context, username, password string, r *Request) (User, error) {
	if m.getUserFn != nil {
		return m.getUserFn(ctx, username, password, r)
	}
	return nil, nil
}

func (m *mockModel) GetUserFromClient(ctx context.Context, client *Client) (User, error) {
	if m.getUserFromClientFn != nil {
		return m.getUserFromClientFn(ctx, client)
	}
	return nil, nil
}

func (m *mockModel) VerifyScope(ctx context.Context, token *Token, scope string) (bool, error) {
	if m.verifyScopeFn != nil {
		return m.verifyScopeFn(ctx, token, scope)
	}
	return true, nil
}

// scopeValidatingModel adds the optional ValidateScope capability.
type scopeValidatingModel struct {
	mockModel
	validateScopeFn func(ctx context.Context, user User, client *Client, scope string) (string, error)
}

func (m *scopeValidatingModel) ValidateScope(ctx context.Context, user User, client *Client, scope string) (string, error) {
	if m.validateScopeFn != nil {
		return m.validateScopeFn(ctx, user, client, scope)
	}
	return scope, nil
}

// extensionModel adds the ExtensionModel capability for custom grants.
type extensionModel struct {
	mockModel
	getTokenDataFn         func(ctx context.Context, r *Request, client *Client) (any, error)
	getUserFromTokenDataFn func(ctx context.Context, r *Request, client *Client, tokenData any) (User, error)
}

func (m *extensionModel) GetTokenData(ctx context.Context, r *Request, client *Client) (any, error) {
	if m.getTokenDataFn != nil {
		return m.getTokenDataFn(ctx, r, client)
	}
	return nil, nil
}

func (m *extensionModel) GetUserFromTokenData(ctx context.Context, r *Request, client *Client, tokenData any) (User, error) {
	if m.getUserFromTokenDataFn != nil {
		return m.getUserFromTokenDataFn(ctx, r, client, tokenData)
	}
	return nil, nil
}

func testClient() *Client {
	return &Client{
		ID:           "test-client",
		Grants:       []string{GrantTypeAuthorizationCode, GrantTypePassword, GrantTypeClientCredentials, GrantTypeRefreshToken},
		RedirectURIs: []string{"https://example.com/cb"},
	}
}

func formRequest(body map[string]string) *Request {
	r := NewRequest("POST", nil, nil, nil)
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for k, v := range body {
		r.Body.Set(k, v)
	}
	return r
}
