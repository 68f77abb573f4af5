package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Login exchanges credentials for an access token.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	if email == "" || password == "" {
		return LoginResult{}, errors.New("login: email and password are required")
	}

	var res LoginResult
	req := loginRequest{Email: email, Password: password}
	if err := c.call(ctx, http.MethodPost, "/auth/login", nil, req, &res); err != nil {
		return LoginResult{}, fmt.Errorf("login: %w", err)
	}
	if res.AccessToken == "" {
		return LoginResult{}, errors.New("login: response has no access token")
	}
	return res, nil
}
