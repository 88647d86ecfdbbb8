package api

import (
	"context"
	"net/http"

	"github.com/ciesa/portal-client/model"
)

// TriggerBackup asks the backend to run a backup; sendToTelegram forwards
// the archive to the configured messaging channel as well.
func (c *Client) TriggerBackup(ctx context.Context, sendToTelegram bool) error {
	body := map[string]bool{"send_to_telegram": sendToTelegram}
	return c.doJSON(ctx, http.MethodPost, "/admin/backup", body, nil)
}

func (c *Client) PushSubscribe(ctx context.Context, sub model.PushSubscription) error {
	return c.doJSON(ctx, http.MethodPost, "/push/subscribe", sub, nil)
}

func (c *Client) PushUnsubscribe(ctx context.Context, sub model.PushSubscription) error {
	return c.doJSON(ctx, http.MethodPost, "/push/unsubscribe", sub, nil)
}
