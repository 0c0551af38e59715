package api

import (
	"context"
	"net/http"

	"github.com/jhalvorsen/ledgerview/internal/domain"
)

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResponse, error) {
	ctx, done := span(ctx, "Client.Login")
	defer done()

	var resp domain.LoginResponse
	if err := c.do(ctx, "login", http.MethodPost, "/api/auth/login", nil, "", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Signup creates a new account. The backend answers 201 with the
// created account, which the client does not need.
func (c *Client) Signup(ctx context.Context, req *domain.SignupRequest) error {
	ctx, done := span(ctx, "Client.Signup")
	defer done()

	return c.do(ctx, "signup", http.MethodPost, "/api/auth/signup", nil, "", req, nil)
}

// Me fetches the account behind the given bearer token.
func (c *Client) Me(ctx context.Context, token string) (*domain.User, error) {
	ctx, done := span(ctx, "Client.Me")
	defer done()

	var user domain.User
	if err := c.do(ctx, "me", http.MethodGet, "/api/auth/me", nil, token, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}
