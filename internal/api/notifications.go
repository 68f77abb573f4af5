package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
)

// Notifications lists the caller's notifications.
func (c *Client) Notifications(ctx context.Context) ([]Notification, error) {
	var out []Notification
	if err := c.get(ctx, "/notifications", nil, &out); err != nil {
		return nil, fmt.Errorf("get notifications: %w", err)
	}
	return out, nil
}

// MarkNotificationRead marks one notification as read.
func (c *Client) MarkNotificationRead(ctx context.Context, id int64) error {
	path := "/notifications/" + strconv.FormatInt(id, 10) + "/read"
	if err := c.call(ctx, http.MethodPatch, path, nil, nil, nil); err != nil {
		return fmt.Errorf("mark notification %d read: %w", id, err)
	}
	return nil
}
