package client

import (
	"context"
	"net/http"
	"strconv"

	"github.com/tablerohq/tablero/pkg/api"
)

// ListPermissions fetches all permissions from the user service.
func (c *Client) ListPermissions(ctx context.Context) ([]api.Permission, error) {
	var resp struct {
		Permissions []api.Permission `json:"permissions"`
	}
	if err := c.doJSON(ctx, http.MethodGet, c.userURL.JoinPath("permissions"), nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Permissions, nil
}

// CreatePermission registers a new named permission.
func (c *Client) CreatePermission(ctx context.Context, name string) (*api.Permission, error) {
	body := map[string]string{"name": name}
	var resp struct {
		Permission api.Permission `json:"permission"`
	}
	if err := c.doJSON(ctx, http.MethodPost, c.userURL.JoinPath("permissions"), body, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Permission, nil
}

// GetPermission fetches one permission by id.
func (c *Client) GetPermission(ctx context.Context, id int64) (*api.Permission, error) {
	var resp struct {
		Permission api.Permission `json:"permission"`
	}
	target := c.userURL.JoinPath("permissions", strconv.FormatInt(id, 10))
	if err := c.doJSON(ctx, http.MethodGet, target, nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Permission, nil
}
