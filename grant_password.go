package oauth

import "context"

// passwordGrant exchanges resource-owner credentials for tokens
// (RFC 6749 section 4.3).
type passwordGrant struct {
	grantBase
	users UserModel
}

// NewPasswordGrant builds the password strategy. The model must implement
// UserModel and TokenSaver.
func NewPasswordGrant(opts GrantOptions) (GrantType, error) {
	base, err := newGrantBase(opts)
	if err != nil {
		return nil, err
	}
	users, ok := opts.Model.(UserModel)
	if !ok {
		return nil, ErrInvalidArgument("model does not implement GetUser")
	}
	return &passwordGrant{grantBase: base, users: users}, nil
}

func (g *passwordGrant) Handle(ctx context.Context, r *Request, client *Client) (*Token, error) {
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
	user, err := g.getUser(ctx, r)
	if err != nil {
		return nil, err
	}
	return g.saveToken(ctx, user, client, scope)
}

func (g *passwordGrant) getUser(ctx context.Context, r *Request) (User, error) {
	username := r.Body.Get("username")
	password := r.Body.Get("password")
	if username == "" {
		return nil, ErrInvalidRequest("missing parameter: username")
	}
	if password == "" {
		return nil, ErrInvalidRequest("missing parameter: password")
	}
	if !isUchar(username) {
		return nil, ErrInvalidRequest("invalid parameter: username")
	}
	if !isUchar(password) {
		return nil, ErrInvalidRequest("invalid parameter: password")
	}

	user, err := g.users.GetUser(ctx, username, password, r)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidGrant("user credentials are invalid")
	}
	return user, nil
}
