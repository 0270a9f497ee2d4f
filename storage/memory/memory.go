// Package memory provides an in-memory model implementation covering every
// capability the protocol handlers consume. It is suitable for development,
// testing, and single-instance deployments.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	oauth "github.com/oauthkit/oauth2-core"
	"github.com/oauthkit/oauth2-core/security"
)

type storedClient struct {
	client     *oauth.Client
	secretHash []byte
	user       oauth.User
}

type storedUser struct {
	user         oauth.User
	passwordHash []byte
}

// Model is an in-memory implementation of the model contract. Secrets and
// passwords are stored as bcrypt hashes.
type Model struct {
	mu sync.RWMutex

	clients            map[string]*storedClient
	users              map[string]*storedUser
	accessTokens       map[string]*oauth.Token
	refreshTokens      map[string]*oauth.RefreshToken
	authorizationCodes map[string]*oauth.AuthorizationCode

	clock  security.Clock
	logger *slog.Logger

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
}

var (
	_ oauth.ClientModel            = (*Model)(nil)
	_ oauth.TokenSaver             = (*Model)(nil)
	_ oauth.AccessTokenModel       = (*Model)(nil)
	_ oauth.AccessTokenRevoker     = (*Model)(nil)
	_ oauth.AuthorizationCodeModel = (*Model)(nil)
	_ oauth.RefreshTokenModel      = (*Model)(nil)
	_ oauth.UserModel              = (*Model)(nil)
	_ oauth.ClientUserModel        = (*Model)(nil)
	_ oauth.ScopeVerifier          = (*Model)(nil)
)

// New creates an in-memory model with the default cleanup interval of one
// minute.
func New() *Model {
	return NewWithInterval(time.Minute)
}

// NewWithInterval creates an in-memory model that sweeps expired tokens and
// codes every cleanupInterval. Zero or negative means one minute.
func NewWithInterval(cleanupInterval time.Duration) *Model {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	m := &Model{
		clients:            make(map[string]*storedClient),
		users:              make(map[string]*storedUser),
		accessTokens:       make(map[string]*oauth.Token),
		refreshTokens:      make(map[string]*oauth.RefreshToken),
		authorizationCodes: make(map[string]*oauth.AuthorizationCode),
		clock:              security.SystemClock{},
		logger:             slog.Default(),
		cleanupInterval:    cleanupInterval,
		stopCleanup:        make(chan struct{}),
	}
	go m.cleanupLoop()
	return m
}

// SetLogger sets a custom logger.
func (m *Model) SetLogger(logger *slog.Logger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if logger != nil {
		m.logger = logger
	}
}

// SetClock sets the time source used for expiry sweeps.
func (m *Model) SetClock(clock security.Clock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if clock != nil {
		m.clock = clock
	}
}

// Stop terminates the background cleanup goroutine.
func (m *Model) Stop() {
	m.stopOnce.Do(func() { close(m.stopCleanup) })
}

// RegisterClient stores a client with a bcrypt-hashed secret. An empty
// secret registers a public client.
func (m *Model) RegisterClient(client *oauth.Client, secret string) error {
	if client == nil || client.ID == "" {
		return fmt.Errorf("client with an id is required")
	}
	var hash []byte
	if secret != "" {
		var err error
		hash, err = bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("failed to hash client secret: %w", err)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[client.ID] = &storedClient{client: client, secretHash: hash}
	m.logger.Debug("registered client", "client_id", client.ID, "public", secret == "")
	return nil
}

// RegisterClientUser associates a user with a client for the
// client_credentials grant.
func (m *Model) RegisterClientUser(clientID string, user oauth.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[clientID]
	if !ok {
		return fmt.Errorf("unknown client: %s", clientID)
	}
	c.user = user
	return nil
}

// RegisterUser stores a resource owner with a bcrypt-hashed password.
func (m *Model) RegisterUser(username, password string, user oauth.User) error {
	if username == "" {
		return fmt.Errorf("username is required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[username] = &storedUser{user: user, passwordHash: hash}
	return nil
}

// GetClient resolves a client, checking the secret when one is supplied.
// Lookup misses and secret mismatches both return (nil, nil).
func (m *Model) GetClient(_ context.Context, clientID, clientSecret string) (*oauth.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clients[clientID]
	if !ok {
		return nil, nil
	}
	if clientSecret != "" {
		if len(c.secretHash) == 0 {
			return nil, nil
		}
		if bcrypt.CompareHashAndPassword(c.secretHash, []byte(clientSecret)) != nil {
			return nil, nil
		}
	}
	return c.client, nil
}

// SaveToken stores the token bundle, indexing the refresh token separately
// so the refresh_token grant and the revoke handler can find it.
func (m *Model) SaveToken(_ context.Context, token *oauth.Token, client *oauth.Client, user oauth.User) (*oauth.Token, error) {
	if token == nil || token.AccessToken == "" {
		return nil, fmt.Errorf("token with an access token is required")
	}
	saved := *token
	saved.Client = client
	saved.User = user

	m.mu.Lock()
	defer m.mu.Unlock()
	m.accessTokens[saved.AccessToken] = &saved
	if saved.RefreshToken != "" {
		m.refreshTokens[saved.RefreshToken] = &oauth.RefreshToken{
			RefreshToken: saved.RefreshToken,
			ExpiresAt:    saved.RefreshTokenExpiresAt,
			Scope:        saved.Scope,
			Client:       client,
			User:         user,
		}
	}
	m.logger.Debug("saved token", "client_id", client.ID, "has_refresh", saved.RefreshToken != "")
	return &saved, nil
}

func (m *Model) GetAccessToken(_ context.Context, accessToken string) (*oauth.Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.accessTokens[accessToken], nil
}

func (m *Model) RevokeAccessToken(_ context.Context, token *oauth.Token) (bool, error) {
	if token == nil {
		return false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accessTokens[token.AccessToken]; !ok {
		return false, nil
	}
	delete(m.accessTokens, token.AccessToken)
	return true, nil
}

func (m *Model) GetRefreshToken(_ context.Context, refreshToken string) (*oauth.RefreshToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.refreshTokens[refreshToken], nil
}

func (m *Model) RevokeToken(_ context.Context, token *oauth.RefreshToken) (bool, error) {
	if token == nil {
		return false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.refreshTokens[token.RefreshToken]; !ok {
		return false, nil
	}
	delete(m.refreshTokens, token.RefreshToken)
	return true, nil
}

func (m *Model) GetAuthorizationCode(_ context.Context, code string) (*oauth.AuthorizationCode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.authorizationCodes[code], nil
}

func (m *Model) SaveAuthorizationCode(_ context.Context, code *oauth.AuthorizationCode, client *oauth.Client, user oauth.User) (*oauth.AuthorizationCode, error) {
	if code == nil || code.Code == "" {
		return nil, fmt.Errorf("authorization code is required")
	}
	saved := *code
	saved.Client = client
	saved.User = user

	m.mu.Lock()
	defer m.mu.Unlock()
	m.authorizationCodes[saved.Code] = &saved
	return &saved, nil
}

// RevokeAuthorizationCode consumes a code. The delete under a single lock
// makes consumption at most once even with concurrent exchanges.
func (m *Model) RevokeAuthorizationCode(_ context.Context, code *oauth.AuthorizationCode) (bool, error) {
	if code == nil {
		return false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.authorizationCodes[code.Code]; !ok {
		return false, nil
	}
	delete(m.authorizationCodes, code.Code)
	return true, nil
}

func (m *Model) GetUser(_ context.Context, username, password string, _ *oauth.Request) (oauth.User, error) {
	m.mu.RLock()
	u, ok := m.users[username]
	m.mu.RUnlock()
	if !ok {
		// Burn a comparison so a missing user costs the same as a wrong
		// password.
		_ = bcrypt.CompareHashAndPassword(
			[]byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"),
			[]byte(password))
		return nil, nil
	}
	if bcrypt.CompareHashAndPassword(u.passwordHash, []byte(password)) != nil {
		return nil, nil
	}
	return u.user, nil
}

func (m *Model) GetUserFromClient(_ context.Context, client *oauth.Client) (oauth.User, error) {
	if client == nil {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clients[client.ID]
	if !ok {
		return nil, nil
	}
	return c.user, nil
}

// VerifyScope reports whether the token's granted scope covers every
// required scope.
func (m *Model) VerifyScope(_ context.Context, token *oauth.Token, scope string) (bool, error) {
	if token == nil {
		return false, nil
	}
	granted := strings.Fields(token.Scope)
	for _, required := range strings.Fields(scope) {
		found := false
		for _, g := range granted {
			if g == required {
				found = true
				break
			}
		}
		if !found {
			return false, nil
		}
	}
	return true, nil
}

func (m *Model) cleanupLoop() {
	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.cleanupExpired()
		case <-m.stopCleanup:
			return
		}
	}
}

func (m *Model) cleanupExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	removed := 0
	for key, t := range m.accessTokens {
		if !t.AccessTokenExpiresAt.IsZero() && t.AccessTokenExpiresAt.Before(now) {
			delete(m.accessTokens, key)
			removed++
		}
	}
	for key, t := range m.refreshTokens {
		if !t.ExpiresAt.IsZero() && t.ExpiresAt.Before(now) {
			delete(m.refreshTokens, key)
			removed++
		}
	}
	for key, c := range m.authorizationCodes {
		if !c.ExpiresAt.IsZero() && c.ExpiresAt.Before(now) {
			delete(m.authorizationCodes, key)
			removed++
		}
	}
	if removed > 0 {
		m.logger.Debug("swept expired credentials", "removed", removed)
	}
}
