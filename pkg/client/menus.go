package client

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/tablerohq/tablero/pkg/api"
)

// MenuForm carries the fields for creating or updating a menu entry.
type MenuForm struct {
	Name       string  `json:"name"`
	Path       string  `json:"path"`
	Icon       string  `json:"icon"`
	Group      string  `json:"group,omitempty"`
	ParentID   *int64  `json:"parentId"`
	IsActive   bool    `json:"isActive"`
	SortOrder  int     `json:"sortOrder"`
	Permission *string `json:"permission"`
}

// MenuTree fetches the caller's permission-filtered menu tree.
func (c *Client) MenuTree(ctx context.Context) ([]api.MenuNode, error) {
	var tree []api.MenuNode
	if err := c.doJSON(ctx, http.MethodGet, c.menuURL.JoinPath("menus", "tree"), nil, nil, &tree); err != nil {
		return nil, err
	}
	return tree, nil
}

// LoadMenus fetches the menu tree into the menu store. A confirmed
// anti-forgery token is required first: loading navigation against a stale
// token would just fail on the next state-changing call anyway.
func (c *Client) LoadMenus(ctx context.Context) error {
	if _, err := c.csrf.Wait(ctx); err != nil {
		return fmt.Errorf("menu load aborted: %w", err)
	}
	tree, err := c.MenuTree(ctx)
	if err != nil {
		return err
	}
	c.menus.SetMenus(ctx, tree)
	c.sessions.SetMenus(ctx, tree)
	return nil
}

// CreateMenu adds a menu entry.
func (c *Client) CreateMenu(ctx context.Context, form MenuForm) (*api.MenuNode, error) {
	var node api.MenuNode
	if err := c.doJSON(ctx, http.MethodPost, c.menuURL.JoinPath("menus"), form, nil, &node); err != nil {
		return nil, err
	}
	return &node, nil
}

// UpdateMenu updates a menu entry.
func (c *Client) UpdateMenu(ctx context.Context, id int64, form MenuForm) (*api.MenuNode, error) {
	var node api.MenuNode
	target := c.menuURL.JoinPath("menus", strconv.FormatInt(id, 10))
	if err := c.doJSON(ctx, http.MethodPut, target, form, nil, &node); err != nil {
		return nil, err
	}
	return &node, nil
}

// DeleteMenu removes a menu entry.
func (c *Client) DeleteMenu(ctx context.Context, id int64) error {
	var resp struct {
		Success bool `json:"success"`
	}
	target := c.menuURL.JoinPath("menus", strconv.FormatInt(id, 10))
	if err := c.doJSON(ctx, http.MethodDelete, target, nil, nil, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("menu service refused to delete menu %d", id)
	}
	return nil
}
