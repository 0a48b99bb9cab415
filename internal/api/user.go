package api

import (
	"context"
	"fmt"

	"github.com/rickgao/fundsync/internal/model"
)

// GetCurrentUser fetches the full current-user state.
func (c *Client) GetCurrentUser(ctx context.Context) (*model.User, error) {
	var resp UserResponse
	if err := c.get(ctx, "/user", nil, &resp); err != nil {
		return nil, fmt.Errorf("get current user: %w", err)
	}

	return resp.Data.ToModel(), nil
}
