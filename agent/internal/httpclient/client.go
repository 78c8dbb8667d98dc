package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/telepoll/telepoll/pkg/types"
)

const (
	// DefaultTokenHeader is the request header carrying the session token.
	DefaultTokenHeader = "X-Client-Token"

	// MaxResponseSize bounds response body reads. Data source payloads are a
	// few kilobytes; the limit only guards against a misbehaving server.
	MaxResponseSize int64 = 32 << 20
)

// DefaultReasonKeys are the JSON error-body fields searched, in order, for a
// diagnostic reason.
var DefaultReasonKeys = []string{"reason", "detail"}

// TokenSource supplies session tokens. *session.Manager implements it.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

// HTTPError reports a non-2xx response from a data source.
type HTTPError struct {
	Status int
	Reason string
}

func (e *HTTPError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("http status %d", e.Status)
	}
	return fmt.Sprintf("http status %d: %s", e.Status, e.Reason)
}

// Config configures a Client.
type Config struct {
	// Endpoint is the base URL; resources are resolved relative to it.
	Endpoint string

	// HTTPClient carries transport settings. Defaults to http.DefaultClient.
	HTTPClient *http.Client

	// Tokens attaches a session token to each request and enables the
	// single re-authentication retry on 401. Nil sends requests as-is.
	Tokens TokenSource

	// TokenHeader defaults to DefaultTokenHeader.
	TokenHeader string

	// ReasonKeys defaults to DefaultReasonKeys.
	ReasonKeys []string
}

// Client issues requests against one data source, re-authenticating once
// when the session token is rejected.
type Client struct {
	base       string
	http       *http.Client
	tokens     TokenSource
	header     string
	reasonKeys []string
}

// New creates a Client from cfg.
func New(cfg Config) *Client {
	c := &Client{
		base:       strings.TrimRight(cfg.Endpoint, "/"),
		http:       cfg.HTTPClient,
		tokens:     cfg.Tokens,
		header:     cfg.TokenHeader,
		reasonKeys: cfg.ReasonKeys,
	}
	if c.http == nil {
		c.http = http.DefaultClient
	}
	if c.header == "" {
		c.header = DefaultTokenHeader
	}
	if len(c.reasonKeys) == 0 {
		c.reasonKeys = DefaultReasonKeys
	}
	return c
}

// Do issues method against resource with params as the query string and
// returns the response body.
//
// Errors:
//   - *session.AuthenticationError (from the TokenSource) when no token
//     can be obtained
//   - *HTTPError for non-2xx responses, including a second 401
//   - *types.TransportError for network-level failures
func (c *Client) Do(ctx context.Context, method, resource string, params url.Values) ([]byte, error) {
	target := c.resolve(resource, params)

	status, body, err := c.attempt(ctx, method, target)
	if err != nil {
		return nil, err
	}

	// A token can expire between acquisition and use; a 401 covers both
	// that race and an explicit revocation. Retry exactly once.
	if status == http.StatusUnauthorized && c.tokens != nil {
		slog.Debug("httpclient: token rejected, re-authenticating", "url", target)
		c.tokens.Invalidate()
		status, body, err = c.attempt(ctx, method, target)
		if err != nil {
			return nil, err
		}
	}

	if status < 200 || status > 299 {
		return nil, &HTTPError{Status: status, Reason: c.reason(status, body)}
	}
	return body, nil
}

// GetJSON issues a GET and decodes the JSON response into v.
func (c *Client) GetJSON(ctx context.Context, resource string, params url.Values, v any) error {
	body, err := c.Do(ctx, http.MethodGet, resource, params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode %s: %w", resource, err)
	}
	return nil
}

// attempt sends one request and returns its status and bounded body.
func (c *Client) attempt(ctx context.Context, method, target string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		req.Header.Set("Content-Type", "application/json")
	}

	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return 0, nil, err
		}
		req.Header.Set(c.header, token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, &types.TransportError{Op: method, Addr: target, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return 0, nil, &types.TransportError{Op: "read " + method, Addr: target, Err: err}
	}
	return resp.StatusCode, body, nil
}

// resolve joins resource onto the base URL and appends params.
func (c *Client) resolve(resource string, params url.Values) string {
	target := c.base
	if resource = strings.TrimLeft(resource, "/"); resource != "" {
		target += "/" + resource
	}
	if len(params) > 0 {
		target += "?" + params.Encode()
	}
	return target
}

// reason extracts a diagnostic message from an error response: the first
// non-empty reason key of a JSON object body, else the raw body text, else
// the status text.
func (c *Client) reason(status int, body []byte) string {
	var obj map[string]any
	if json.Unmarshal(body, &obj) == nil {
		for _, key := range c.reasonKeys {
			if s, ok := obj[key].(string); ok && s != "" {
				return s
			}
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		return text
	}
	return http.StatusText(status)
}
