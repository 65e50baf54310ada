// Package client provides the authenticated HTTP gateway to the registry's REST API.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/dnscache"
	"github.com/rs/zerolog"
)

const (
	// DefaultTimeout bounds a single API call.
	DefaultTimeout = 30 * time.Second

	// DefaultTransferTimeout bounds a single upload or download.
	DefaultTransferTimeout = 10 * time.Minute

	// JobTokenHeader carries a CI job-scoped token.
	JobTokenHeader = "JOB-TOKEN"

	// PrivateTokenHeader carries a personal access token.
	PrivateTokenHeader = "PRIVATE-TOKEN"

	maxErrorBody = 1024
)

// Client issues authenticated requests against the registry API.
// API calls and file transfers use separate timeouts over a shared transport.
type Client struct {
	baseURL      string
	jobToken     string
	privateToken string
	userAgent    string
	api          *http.Client
	transfer     *http.Client
	logger       zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL sets the API root, e.g. https://gitlab.example.com/api/v4.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(u, "/")
	}
}

// WithJobToken authenticates with a job-scoped token. It takes precedence
// over a private token.
func WithJobToken(token string) Option {
	return func(c *Client) {
		c.jobToken = token
	}
}

// WithPrivateToken authenticates with a personal access token.
func WithPrivateToken(token string) Option {
	return func(c *Client) {
		c.privateToken = token
	}
}

// WithTimeout sets the timeout for API calls.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.api.Timeout = d
	}
}

// WithTransferTimeout sets the timeout for uploads and downloads.
func WithTransferTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.transfer.Timeout = d
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithHTTPClient replaces both underlying HTTP clients. Their timeouts are
// kept as configured on hc.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		api := *hc
		transfer := *hc
		c.api = &api
		c.transfer = &transfer
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient creates a Client with the given options.
func NewClient(opts ...Option) *Client {
	transport := newTransport()
	c := &Client{
		userAgent: "genpkg",
		api:       &http.Client{Timeout: DefaultTimeout, Transport: transport},
		transfer:  &http.Client{Timeout: DefaultTransferTimeout, Transport: transport},
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// newTransport dials through a DNS cache. The cache is never refreshed in
// the background; a process resolves a handful of hosts and exits.
func newTransport() *http.Transport {
	resolver := &dnscache.Resolver{}
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}
			ips, err := resolver.LookupHost(ctx, host)
			if err != nil {
				return nil, err
			}
			for _, ip := range ips {
				conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
				if err == nil {
					return conn, nil
				}
			}
			return nil, fmt.Errorf("failed to dial any resolved IP for %s", host)
		},
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// URLs returns an endpoint builder rooted at the client's base URL.
func (c *Client) URLs() *URLs {
	return NewURLs(c.baseURL)
}

// Response is a completed API response whose body has been read.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// authHeader returns the single authentication header to send.
func (c *Client) authHeader() (string, string) {
	switch {
	case c.jobToken != "":
		return JobTokenHeader, c.jobToken
	case c.privateToken != "":
		return PrivateTokenHeader, c.privateToken
	default:
		return "", ""
	}
}

func (c *Client) newRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	if name, value := c.authHeader(); name != "" {
		req.Header.Set(name, value)
	}
	return req, nil
}

// send performs req and classifies the status. On success the caller owns
// resp.Body; on failure it has been closed.
func (c *Client) send(hc *http.Client, req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		c.logger.Debug().Str("method", req.Method).Str("url", req.URL.String()).Err(err).Msg("request failed")
		return nil, &HTTPError{Method: req.Method, URL: req.URL.String(), Err: err}
	}
	c.logger.Debug().
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("request")

	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		return resp, nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	_ = resp.Body.Close()
	return nil, &HTTPError{
		Method:     req.Method,
		StatusCode: resp.StatusCode,
		URL:        req.URL.String(),
		Body:       string(body),
	}
}

// Do performs an API call and reads the whole response body.
// 2xx and 3xx statuses are success; anything else is an *HTTPError.
func (c *Client) Do(ctx context.Context, method, url string, body io.Reader) (*Response, error) {
	req, err := c.newRequest(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	resp, err := c.send(c.api, req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &HTTPError{Method: method, StatusCode: resp.StatusCode, URL: url, Err: err}
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

// GetBody fetches url and returns the response body.
func (c *Client) GetBody(ctx context.Context, url string) ([]byte, error) {
	resp, err := c.Do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// GetJSON fetches url and decodes the JSON body into v.
func (c *Client) GetJSON(ctx context.Context, url string, v any) error {
	body, err := c.GetBody(ctx, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decoding %s: %w", url, err)
	}
	return nil
}

// Head returns the response headers for url.
func (c *Client) Head(ctx context.Context, url string) (http.Header, error) {
	resp, err := c.Do(ctx, http.MethodHead, url, nil)
	if err != nil {
		return nil, err
	}
	return resp.Header, nil
}

// Delete issues a DELETE for url.
func (c *Client) Delete(ctx context.Context, url string) error {
	_, err := c.Do(ctx, http.MethodDelete, url, nil)
	return err
}

// Put streams body to url under the transfer timeout and returns the
// response body. size may be -1 when unknown.
func (c *Client) Put(ctx context.Context, url string, body io.Reader, size int64) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodPut, url, body)
	if err != nil {
		return nil, err
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.send(c.transfer, req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &HTTPError{Method: http.MethodPut, StatusCode: resp.StatusCode, URL: url, Err: err}
	}
	return data, nil
}

// Download opens url for streaming under the transfer timeout.
// The caller must close the returned body.
func (c *Client) Download(ctx context.Context, url string) (io.ReadCloser, int64, error) {
	req, err := c.newRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "*/*")

	resp, err := c.send(c.transfer, req)
	if err != nil {
		return nil, 0, err
	}
	return resp.Body, resp.ContentLength, nil
}
