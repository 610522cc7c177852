package api

import (
	"context"
	"net/http"
)

// SessionStatus queries the primary cookie/session endpoint.
func (c *Client) SessionStatus(ctx context.Context) (*SessionStatus, error) {
	var resp SessionStatus
	if err := c.get(ctx, c.paths.Session, "", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Verify asks the legacy endpoint who owns token.
func (c *Client) Verify(ctx context.Context, token string) (*LegacyResponse, error) {
	var resp LegacyResponse
	if err := c.get(ctx, c.paths.Verify, token, &resp); err != nil {
		return nil, err
	}
	if !resp.OK() {
		return &resp, rejected(&resp)
	}
	return &resp, nil
}

// Login authenticates with username and password on the legacy endpoint.
// The server also sets its session cookie on success.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*LegacyResponse, error) {
	return c.legacyPost(ctx, c.paths.Login, req, "")
}

// Register creates an account on the legacy endpoint.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*LegacyResponse, error) {
	return c.legacyPost(ctx, c.paths.Register, req, "")
}

// Logout ends the session and revokes token if one is given.
func (c *Client) Logout(ctx context.Context, token string) (*LegacyResponse, error) {
	return c.legacyPost(ctx, c.paths.Logout, struct{}{}, token)
}

func (c *Client) legacyPost(ctx context.Context, path string, payload any, bearer string) (*LegacyResponse, error) {
	var resp LegacyResponse
	if err := c.post(ctx, path, payload, bearer, &resp); err != nil {
		return nil, err
	}
	if !resp.OK() {
		return &resp, rejected(&resp)
	}
	return &resp, nil
}

// rejected turns a 2xx {"status":"error"} envelope into an APIError.
func rejected(resp *LegacyResponse) error {
	return &APIError{
		StatusCode: http.StatusOK,
		Message:    resp.Message,
		Code:       resp.ErrorCode,
	}
}
