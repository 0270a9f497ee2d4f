package oauth

import "context"

// implicitGrant issues an access token directly from the authorize endpoint
// (RFC 6749 section 4.2). It is constructed with a pre-resolved user and
// scope by the token response type and is not dispatchable from the token
// endpoint.
type implicitGrant struct {
	grantBase
	user  User
	scope string
}

// NewImplicitGrant builds the implicit strategy for an already-authenticated
// user. The model must implement TokenSaver.
func NewImplicitGrant(opts GrantOptions, user User, scope string) (GrantType, error) {
	base, err := newGrantBase(opts)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidArgument("missing parameter: user")
	}
	return &implicitGrant{grantBase: base, user: user, scope: scope}, nil
}

func (g *implicitGrant) Handle(ctx context.Context, r *Request, client *Client) (*Token, error) {
	if r == nil {
		return nil, ErrInvalidArgument("missing parameter: request")
	}
	if client == nil {
		return nil, ErrInvalidArgument("missing parameter: client")
	}
	return g.saveAccessOnlyToken(ctx, g.user, client, g.scope)
}
