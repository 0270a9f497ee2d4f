package oauth

import "context"

// extensionGrant handles custom grant types (RFC 6749 section 4.5). Token
// data extraction and user resolution are delegated to the model; any error
// the model raises is reported to the client as invalid_grant. Extension
// grants are registered explicitly through Config.ExtensionGrants, with
// URI-form grant type identifiers treated as ordinary registry keys.
type extensionGrant struct {
	grantBase
	ext ExtensionModel
}

// NewExtensionGrant builds an extension strategy backed by the model's
// GetTokenData and GetUserFromTokenData hooks. The model must implement
// ExtensionModel and TokenSaver.
func NewExtensionGrant(opts GrantOptions) (GrantType, error) {
	base, err := newGrantBase(opts)
	if err != nil {
		return nil, err
	}
	ext, ok := opts.Model.(ExtensionModel)
	if !ok {
		return nil, ErrInvalidArgument("model does not implement GetTokenData and GetUserFromTokenData")
	}
	return &extensionGrant{grantBase: base, ext: ext}, nil
}

func (g *extensionGrant) Handle(ctx context.Context, r *Request, client *Client) (*Token, error) {
	if r == nil {
		return nil, ErrInvalidArgument("missing parameter: request")
	}
	if client == nil {
		return nil, ErrInvalidArgument("missing parameter: client")
	}

	scope, err := g.getScope(r)
	if err != nil {
		return nil, err
	}

	tokenData, err := g.ext.GetTokenData(ctx, r, client)
	if err != nil {
		return nil, invalidGrantFrom(err)
	}
	if tokenData == nil {
		return nil, ErrInvalidGrant("token is invalid")
	}

	user, err := g.ext.GetUserFromTokenData(ctx, r, client, tokenData)
	if err != nil {
		return nil, invalidGrantFrom(err)
	}
	if user == nil {
		return nil, ErrInvalidGrant("user credentials are invalid")
	}

	return g.saveToken(ctx, user, client, scope)
}

// invalidGrantFrom maps a model error onto invalid_grant, keeping the
// model's message for the error_description.
func invalidGrantFrom(err error) *OAuthError {
	return ErrInvalidGrant(err.Error())
}
