package storeapi

import (
	"context"
	"net/http"
	"net/url"
)

// Login authenticates a customer against the backend. The client-credentials
// bearer token is unrelated to the customer session; this flips the backend
// session into authenticated mode.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	form := url.Values{}
	form.Set("email", email)
	form.Set("password", password)

	var result LoginResult
	if err := c.do(ctx, http.MethodPost, "login", "account/login", form, &result); err != nil {
		return LoginResult{}, err
	}
	return result, nil
}

// Logout terminates the customer session.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "logout", "account/logout", nil, nil)
}
