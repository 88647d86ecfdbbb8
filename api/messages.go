package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"

	"github.com/ciesa/portal-client/model"
)

const (
	DefaultMessageLimit = 100
)

// MessagesByRoom fetches the authoritative message list for a room, oldest
// first, paginated by limit/offset. limit <= 0 selects the default page size.
func (c *Client) MessagesByRoom(ctx context.Context, roomID int64, limit, offset int) ([]model.Message, error) {
	if limit <= 0 {
		limit = DefaultMessageLimit
	}
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	path := fmt.Sprintf("/messages/%d?%s", roomID, q.Encode())

	var out struct {
		Messages []model.Message `json:"messages"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// UploadChatImage uploads an image destined for a chat message. The returned
// filename and expiry are embedded into the send_message payload by the
// caller.
func (c *Client) UploadChatImage(ctx context.Context, filename string, r io.Reader) (*model.ChatImage, error) {
	var out model.ChatImage
	err := c.doMultipart(ctx, "/messages/upload-image", func(mw *multipart.Writer) error {
		fw, err := mw.CreateFormFile("image", filename)
		if err != nil {
			return err
		}
		_, err = io.Copy(fw, r)
		return err
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.Filename == "" {
		return nil, errors.Join(ErrRequest, errors.New("upload response missing filename"))
	}
	return &out, nil
}
