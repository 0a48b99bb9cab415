package api

import (
	"context"
	"errors"
	"fmt"
	"net/url"
)

// ErrEmptyChannelAuth is returned when the backend answers without an auth signature.
var ErrEmptyChannelAuth = errors.New("empty channel auth")

// AuthorizeChannel obtains the private-channel signature for socketID.
// The returned string is passed verbatim in the subscribe frame.
func (c *Client) AuthorizeChannel(ctx context.Context, socketID, channel string) (string, error) {
	form := url.Values{}
	form.Set("socket_id", socketID)
	form.Set("channel_name", channel)

	var resp ChannelAuthResponse
	if err := c.postForm(ctx, c.authEndpoint, form, &resp); err != nil {
		return "", fmt.Errorf("authorize channel %s: %w", channel, err)
	}
	if resp.Auth == "" {
		return "", fmt.Errorf("authorize channel %s: %w", channel, ErrEmptyChannelAuth)
	}

	return resp.Auth, nil
}
