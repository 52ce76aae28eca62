package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/tablerohq/tablero/pkg/api"
	"github.com/tablerohq/tablero/pkg/httputil"
	"github.com/tablerohq/tablero/pkg/transport"
)

// UserForm carries the fields for creating or updating a user. Zero-value
// fields are omitted from the form. Image, when set, is uploaded as the
// profile image part.
type UserForm struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
	Phone     string
	RoleIDs   []string

	Image         io.Reader
	ImageFilename string
}

// ListUsers fetches all users from the user service.
func (c *Client) ListUsers(ctx context.Context) ([]api.User, error) {
	var users []api.User
	if err := c.doJSON(ctx, http.MethodGet, c.userURL.JoinPath("users"), nil, nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// GetUser fetches one user by id.
func (c *Client) GetUser(ctx context.Context, id string) (*api.User, error) {
	var resp struct {
		User api.User `json:"user"`
	}
	if err := c.doJSON(ctx, http.MethodGet, c.userURL.JoinPath("users", id), nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.User, nil
}

// CreateUser creates a user, optionally with a profile image, via a
// multipart form.
func (c *Client) CreateUser(ctx context.Context, form UserForm) (*api.User, error) {
	return c.submitUserForm(ctx, http.MethodPost, c.userURL.JoinPath("users").String(), form)
}

// UpdateUser updates an existing user via a multipart form.
func (c *Client) UpdateUser(ctx context.Context, id string, form UserForm) (*api.User, error) {
	return c.submitUserForm(ctx, http.MethodPut, c.userURL.JoinPath("users", id).String(), form)
}

// ToggleUserActive enables or disables an account.
func (c *Client) ToggleUserActive(ctx context.Context, id string, isActive bool) (*api.User, error) {
	body := map[string]bool{"isActive": isActive}
	var resp struct {
		User api.User `json:"user"`
	}
	if err := c.doJSON(ctx, http.MethodPatch, c.userURL.JoinPath("users", id, "status"), body, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.User, nil
}

// ListRoles fetches all roles. Requires an authenticated session.
func (c *Client) ListRoles(ctx context.Context) ([]api.Role, error) {
	var resp struct {
		Roles []api.Role `json:"roles"`
	}
	if err := c.doJSON(ctx, http.MethodGet, c.userURL.JoinPath("roles"), nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Roles, nil
}

// CreateRole registers a new role. description may be empty.
func (c *Client) CreateRole(ctx context.Context, name, description string) (*api.Role, error) {
	body := map[string]string{"name": name}
	if description != "" {
		body["description"] = description
	}
	var resp struct {
		Role api.Role `json:"role"`
	}
	if err := c.doJSON(ctx, http.MethodPost, c.userURL.JoinPath("roles"), body, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Role, nil
}

// GetRole fetches one role by id.
func (c *Client) GetRole(ctx context.Context, id string) (*api.Role, error) {
	var resp struct {
		Role api.Role `json:"role"`
	}
	if err := c.doJSON(ctx, http.MethodGet, c.userURL.JoinPath("roles", id), nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Role, nil
}

// ListPublicRoles fetches the publicly visible roles; works without a
// session, so the recovery phase is skipped outright.
func (c *Client) ListPublicRoles(ctx context.Context) ([]api.Role, error) {
	headers := map[string]string{transport.SkipRefreshHeader: "true"}
	var resp struct {
		Roles []api.Role `json:"roles"`
	}
	if err := c.doJSON(ctx, http.MethodGet, c.userURL.JoinPath("public", "roles"), nil, headers, &resp); err != nil {
		return nil, err
	}
	return resp.Roles, nil
}

func (c *Client) submitUserForm(ctx context.Context, method, target string, form UserForm) (*api.User, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fields := map[string]string{
		"username":  form.Username,
		"email":     form.Email,
		"password":  form.Password,
		"firstName": form.FirstName,
		"lastName":  form.LastName,
		"phone":     form.Phone,
	}
	for name, value := range fields {
		if value == "" {
			continue
		}
		if err := writer.WriteField(name, value); err != nil {
			return nil, fmt.Errorf("write form field %s: %w", name, err)
		}
	}
	for _, roleID := range form.RoleIDs {
		if err := writer.WriteField("roles", roleID); err != nil {
			return nil, fmt.Errorf("write role field: %w", err)
		}
	}
	if form.Image != nil {
		name := form.ImageFilename
		if name == "" {
			name = "profile-image"
		}
		part, err := writer.CreateFormFile("profileImage", name)
		if err != nil {
			return nil, fmt.Errorf("create image part: %w", err)
		}
		if _, err := io.Copy(part, form.Image); err != nil {
			return nil, fmt.Errorf("copy image: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finish form: %w", err)
	}

	// Body is buffered up front so the transport can rebuild it for a
	// post-refresh replay.
	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(buf.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	var decoded struct {
		User api.User `json:"user"`
	}
	if err := httputil.DecodeJSON(resp, &decoded); err != nil {
		return nil, err
	}
	return &decoded.User, nil
}
