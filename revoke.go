package oauth

import (
	"context"
	"log/slog"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/oauthkit/oauth2-core/security"
)

// RevokeOptions configures a RevokeHandler.
type RevokeOptions struct {
	// Model must implement ClientModel, and at least one revocable token
	// store: RefreshTokenModel, or AccessTokenModel plus
	// AccessTokenRevoker.
	Model any

	Clock  security.Clock
	Logger *slog.Logger
}

// RevokeHandler implements the revocation endpoint of RFC 7009. Lookups
// that miss are absorbed into an empty success response so callers cannot
// probe for token existence.
type RevokeHandler struct {
	model   ClientModel
	refresh RefreshTokenModel
	access  AccessTokenModel
	revoker AccessTokenRevoker

	clock  security.Clock
	logger *slog.Logger
}

// NewRevokeHandler builds a RevokeHandler, verifying that the model
// implements every capability the configuration requires.
func NewRevokeHandler(opts RevokeOptions) (*RevokeHandler, error) {
	if opts.Model == nil {
		return nil, ErrInvalidArgument("missing parameter: model")
	}
	model, ok := opts.Model.(ClientModel)
	if !ok {
		return nil, ErrInvalidArgument("model does not implement GetClient")
	}
	refresh, _ := opts.Model.(RefreshTokenModel)
	access, _ := opts.Model.(AccessTokenModel)
	revoker, _ := opts.Model.(AccessTokenRevoker)
	if access != nil && revoker == nil {
		access = nil
	}
	if refresh == nil && access == nil {
		return nil, ErrInvalidArgument("model does not implement a revocable token store")
	}
	clock := opts.Clock
	if clock == nil {
		clock = security.SystemClock{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &RevokeHandler{
		model:   model,
		refresh: refresh,
		access:  access,
		revoker: revoker,
		clock:   clock,
		logger:  logger,
	}, nil
}

// Handle processes one revocation request. Only client authentication
// failures and malformed requests surface as errors; an unknown or already
// dead token still yields an empty 200 response per RFC 7009 section 2.2.
func (h *RevokeHandler) Handle(ctx context.Context, r *Request, w *Response) error {
	if r == nil {
		return ErrInvalidArgument("missing parameter: request")
	}
	if w == nil {
		return ErrInvalidArgument("missing parameter: response")
	}
	if r.Method != http.MethodPost {
		return ErrInvalidRequest("method must be POST")
	}
	if !r.Is("application/x-www-form-urlencoded") {
		return ErrInvalidRequest("content must be application/x-www-form-urlencoded")
	}

	client, err := h.getClient(ctx, r, w)
	if err != nil {
		return err
	}

	raw := r.Body.Get("token")
	if raw == "" {
		return ErrInvalidRequest("missing parameter: token")
	}
	if !isVschar(raw) {
		return ErrInvalidRequest("invalid parameter: token")
	}

	// RFC 7009 section 2.1: search across token types. Both stores are
	// probed concurrently; only model failures propagate.
	var accessRevoked, refreshRevoked bool
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		refreshRevoked, err = h.revokeRefreshToken(gctx, raw, client)
		return err
	})
	g.Go(func() error {
		var err error
		accessRevoked, err = h.revokeAccessToken(gctx, raw, client)
		return err
	})
	if err := g.Wait(); err != nil {
		return WrapError(err)
	}

	if !accessRevoked && !refreshRevoked {
		h.logger.DebugContext(ctx, "revocation target not found", "client_id", client.ID)
	}
	w.Status = http.StatusOK
	w.Set("Cache-Control", "no-store")
	w.Set("Pragma", "no-cache")
	return nil
}

// getClient authenticates the revoking client, with the same Basic
// challenge escalation as the token endpoint.
func (h *RevokeHandler) getClient(ctx context.Context, r *Request, w *Response) (*Client, error) {
	clientID, clientSecret, ok := r.BasicAuth()
	if !ok {
		clientID = r.Body.Get("client_id")
		clientSecret = r.Body.Get("client_secret")
	}
	if clientID == "" {
		return nil, ErrInvalidRequest("missing parameter: client_id")
	}
	if clientSecret == "" {
		return nil, ErrInvalidRequest("missing parameter: client_secret")
	}
	if !isVschar(clientID) {
		return nil, ErrInvalidRequest("invalid parameter: client_id")
	}
	if !isVschar(clientSecret) {
		return nil, ErrInvalidRequest("invalid parameter: client_secret")
	}

	client, err := h.model.GetClient(ctx, clientID, clientSecret)
	if err != nil {
		return nil, WrapError(err)
	}
	if client == nil {
		err := ErrInvalidClient("client is invalid")
		if r.Header.Get("Authorization") != "" {
			w.Set("WWW-Authenticate", `Basic realm="Service"`)
			return nil, NewOAuthError(ErrorCodeInvalidClient, err.Description, http.StatusUnauthorized)
		}
		return nil, err
	}
	if len(client.Grants) == 0 {
		return nil, ErrServerError("model did not return client grants")
	}
	return client, nil
}

func (h *RevokeHandler) revokeRefreshToken(ctx context.Context, raw string, client *Client) (bool, error) {
	if h.refresh == nil {
		return false, nil
	}
	token, err := h.refresh.GetRefreshToken(ctx, raw)
	if err != nil {
		return false, err
	}
	if token == nil || token.Client == nil || token.Client.ID != client.ID {
		return false, nil
	}
	if !token.ExpiresAt.IsZero() && security.IsExpired(h.clock, token.ExpiresAt) {
		return false, nil
	}
	return h.refresh.RevokeToken(ctx, token)
}

func (h *RevokeHandler) revokeAccessToken(ctx context.Context, raw string, client *Client) (bool, error) {
	if h.access == nil {
		return false, nil
	}
	token, err := h.access.GetAccessToken(ctx, raw)
	if err != nil {
		return false, err
	}
	if token == nil || token.Client == nil || token.Client.ID != client.ID {
		return false, nil
	}
	if security.IsExpired(h.clock, token.AccessTokenExpiresAt) {
		return false, nil
	}
	return h.revoker.RevokeAccessToken(ctx, token)
}
