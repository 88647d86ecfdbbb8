package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/ciesa/portal-client/model"
)

func (c *Client) Documents(ctx context.Context) ([]model.Document, error) {
	var out struct {
		Documents []model.Document `json:"documents"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/documents", nil, &out); err != nil {
		return nil, err
	}
	return out.Documents, nil
}

// UploadDocument stores a document in the repository, optionally asking the
// server to watermark it.
func (c *Client) UploadDocument(ctx context.Context, filename string, r io.Reader, watermark bool) (*model.Document, error) {
	var out struct {
		Document model.Document `json:"document"`
	}
	err := c.doMultipart(ctx, "/documents/upload", func(mw *multipart.Writer) error {
		fw, err := mw.CreateFormFile("document", filename)
		if err != nil {
			return err
		}
		if _, err = io.Copy(fw, r); err != nil {
			return err
		}
		return mw.WriteField("watermark", strconv.FormatBool(watermark))
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out.Document, nil
}

// DocumentDownloadURL is the stable URL a document can be fetched from.
func (c *Client) DocumentDownloadURL(id int64) string {
	return fmt.Sprintf("%s/documents/download/%d", c.base, id)
}

// DownloadDocument streams a document's bytes. The caller owns the reader.
func (c *Client) DownloadDocument(ctx context.Context, id int64) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.DocumentDownloadURL(id), nil)
	if err != nil {
		return nil, errors.Join(ErrRequest, err)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, errors.Join(ErrRequest, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		defer func() {
			_ = resp.Body.Close()
		}()
		return nil, c.apiError(resp)
	}
	return resp.Body, nil
}
