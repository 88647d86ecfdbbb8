package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ciesa/portal-client/model"
)

func (c *Client) Notifications(ctx context.Context) ([]model.Notification, error) {
	var out struct {
		Notifications []model.Notification `json:"notifications"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/notifications", nil, &out); err != nil {
		return nil, err
	}
	return out.Notifications, nil
}

// PostNotification publishes a board notification. postGenerally targets the
// whole campus instead of the poster's department.
func (c *Client) PostNotification(ctx context.Context, notifType, content string, postGenerally bool) (*model.Notification, error) {
	body := map[string]any{
		"type":    notifType,
		"content": content,
	}
	if postGenerally {
		body["post_generally"] = true
	}
	var out struct {
		Notification model.Notification `json:"notification"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/notifications/post", body, &out); err != nil {
		return nil, err
	}
	return &out.Notification, nil
}

func (c *Client) MarkNotificationRead(ctx context.Context, id int64) error {
	return c.doJSON(ctx, http.MethodPost, fmt.Sprintf("/notifications/%d/read", id), nil, nil)
}

func (c *Client) ReactToNotification(ctx context.Context, id int64, emoji string) error {
	body := map[string]string{"emoji": emoji}
	return c.doJSON(ctx, http.MethodPost, fmt.Sprintf("/notifications/%d/react", id), body, nil)
}

func (c *Client) DeleteNotification(ctx context.Context, id int64) error {
	return c.doJSON(ctx, http.MethodDelete, fmt.Sprintf("/notifications/%d", id), nil, nil)
}
