package oauth

import "context"

// clientCredentialsGrant issues tokens directly to a confidential client
// (RFC 6749 section 4.4). Per section 4.4.3 the response never includes a
// refresh token.
type clientCredentialsGrant struct {
	grantBase
	clientUsers ClientUserModel
}

// NewClientCredentialsGrant builds the client_credentials strategy. The
// model must implement ClientUserModel and TokenSaver.
func NewClientCredentialsGrant(opts GrantOptions) (GrantType, error) {
	base, err := newGrantBase(opts)
	if err != nil {
		return nil, err
	}
	clientUsers, ok := opts.Model.(ClientUserModel)
	if !ok {
		return nil, ErrInvalidArgument("model does not implement GetUserFromClient")
	}
	return &clientCredentialsGrant{grantBase: base, clientUsers: clientUsers}, nil
}

func (g *clientCredentialsGrant) Handle(ctx context.Context, r *Request, client *Client) (*Token, error) {
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
	user, err := g.clientUsers.GetUserFromClient(ctx, client)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidGrant("user credentials are invalid")
	}
	return g.saveAccessOnlyToken(ctx, user, client, scope)
}
