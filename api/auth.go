package api

import (
	"context"
	"net/http"

	"github.com/ciesa/portal-client/model"
)

type SignupRequest struct {
	Username       string `json:"username"`
	Password       string `json:"password"`
	Phone          string `json:"phone"`
	RegNumber      string `json:"reg_number"`
	DepartmentName string `json:"department_name"`
}

func (c *Client) Signup(ctx context.Context, req SignupRequest) (*model.User, error) {
	var out struct {
		User model.User `json:"user"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/auth/signup", req, &out); err != nil {
		return nil, err
	}
	return &out.User, nil
}

func (c *Client) Login(ctx context.Context, username, password string) (*model.User, error) {
	body := map[string]string{"username": username, "password": password}
	var out struct {
		User model.User `json:"user"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/auth/login", body, &out); err != nil {
		return nil, err
	}
	return &out.User, nil
}

// Logout ends the session. The cached CSRF token dies with it regardless of
// the call's outcome.
func (c *Client) Logout(ctx context.Context) error {
	err := c.doJSON(ctx, http.MethodPost, "/auth/logout", nil, nil)
	c.invalidateCSRF()
	return err
}

// Me returns the currently authenticated user.
func (c *Client) Me(ctx context.Context) (*model.User, error) {
	var out struct {
		User model.User `json:"user"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/auth/me", nil, &out); err != nil {
		return nil, err
	}
	return &out.User, nil
}

func (c *Client) MarkTutorialSeen(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodPost, "/auth/tutorial-seen", nil, nil)
}
