// Package api is the typed REST client for the portal backend. Session
// credentials ride in a cookie jar; state-changing calls carry a CSRF token
// fetched lazily and invalidated on 403 or logout.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultRequestTimeout = 30 * time.Second

	csrfHeader = "X-CSRF-Token"
)

var ErrRequest = errors.New("portal api request failed")

// Error carries a server-reported failure: the HTTP status and the message
// from the response's error field.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("portal api: %s (status %d)", e.Message, e.Status)
}

type Config struct {
	Logger *zerolog.Logger

	// BaseURL is the portal origin, e.g. https://portal.example.edu.
	// The /api prefix is appended here.
	BaseURL string

	Timeout time.Duration
}

type Client struct {
	logger zerolog.Logger
	hc     *http.Client
	base   string // origin + /api

	csrfMu       sync.Mutex
	csrfToken    string
	csrfInflight *tokenFetch
}

// tokenFetch shares one in-flight CSRF fetch between concurrent callers.
type tokenFetch struct {
	done  chan struct{}
	token string
	err   error
}

func New(cfg Config) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, errors.Join(ErrRequest, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: invalid base url %q", ErrRequest, cfg.BaseURL)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, errors.Join(ErrRequest, err)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultRequestTimeout
	}
	return &Client{
		logger: cfg.Logger.With().Str("component", "api-client").Logger(),
		hc: &http.Client{
			Jar:     jar,
			Timeout: cfg.Timeout,
		},
		base: strings.TrimRight(base.String(), "/") + "/api",
	}, nil
}

// Jar exposes the session cookie jar so the realtime dialer can present the
// same credentials.
func (c *Client) Jar() http.CookieJar {
	return c.hc.Jar
}

// csrf returns the cached token, or fetches it once for all concurrent
// callers.
func (c *Client) csrf(ctx context.Context) (string, error) {
	c.csrfMu.Lock()
	if c.csrfToken != "" {
		token := c.csrfToken
		c.csrfMu.Unlock()
		return token, nil
	}
	if f := c.csrfInflight; f != nil {
		c.csrfMu.Unlock()
		select {
		case <-f.done:
			return f.token, f.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	f := &tokenFetch{done: make(chan struct{})}
	c.csrfInflight = f
	c.csrfMu.Unlock()

	var out struct {
		CSRFToken string `json:"csrf_token"`
	}
	err := c.doJSON(ctx, http.MethodGet, "/csrf-token", nil, &out)

	c.csrfMu.Lock()
	if c.csrfInflight == f {
		c.csrfInflight = nil
	}
	if err == nil {
		c.csrfToken = out.CSRFToken
	}
	c.csrfMu.Unlock()

	f.token, f.err = out.CSRFToken, err
	close(f.done)
	return f.token, f.err
}

// invalidateCSRF drops the cached token so the next state-changing call
// refetches it.
func (c *Client) invalidateCSRF() {
	c.csrfMu.Lock()
	c.csrfToken = ""
	c.csrfMu.Unlock()
}

func stateChanging(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// doJSON performs one JSON request against the API. out may be nil when the
// response body is irrelevant.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errors.Join(ErrRequest, err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return errors.Join(ErrRequest, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

// doMultipart performs a multipart/form-data request; build fills the form.
func (c *Client) doMultipart(ctx context.Context, path string, build func(*multipart.Writer) error, out any) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := build(mw); err != nil {
		return errors.Join(ErrRequest, err)
	}
	if err := mw.Close(); err != nil {
		return errors.Join(ErrRequest, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, &buf)
	if err != nil {
		return errors.Join(ErrRequest, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	if stateChanging(req.Method) {
		token, err := c.csrf(req.Context())
		if err != nil {
			// Proceed without the header; the server's 403 is the
			// authoritative verdict.
			c.logger.Warn().Err(err).Msg("failed to fetch csrf token")
		} else {
			req.Header.Set(csrfHeader, token)
		}
	}

	c.logger.Trace().Str("method", req.Method).Str("url", req.URL.String()).Msg("request")

	resp, err := c.hc.Do(req)
	if err != nil {
		return errors.Join(ErrRequest, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusForbidden {
		c.invalidateCSRF()
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return c.apiError(resp)
	}
	if out == nil {
		return nil
	}
	if err = json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Join(ErrRequest, err)
	}
	return nil
}

func (c *Client) apiError(resp *http.Response) error {
	apiErr := &Error{Status: resp.StatusCode, Message: resp.Status}
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
		if body.Error != "" {
			apiErr.Message = body.Error
		} else if body.Message != "" {
			apiErr.Message = body.Message
		}
	}
	return apiErr
}
