package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/ciesa/portal-client/model"
)

func (c *Client) Departments(ctx context.Context) ([]model.Department, error) {
	var out struct {
		Departments []model.Department `json:"departments"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/departments", nil, &out); err != nil {
		return nil, err
	}
	return out.Departments, nil
}

func (c *Client) UserProfile(ctx context.Context, username string) (*model.User, error) {
	var out struct {
		User model.User `json:"user"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/users/"+url.PathEscape(username), nil, &out); err != nil {
		return nil, err
	}
	return &out.User, nil
}
