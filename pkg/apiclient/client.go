package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	DefaultRefreshPath = "/api/auth/refresh/"
	DefaultLoginPath   = "/login"
)

type Config struct {
	BaseURL     string
	Timeout     time.Duration
	Headers     map[string]string
	RefreshPath string
	LoginPath   string

	// OnSessionExpired is called with LoginPath after a failed refresh has
	// cleared the stored tokens.
	OnSessionExpired func(loginPath string)

	HTTPClient *http.Client
	Logger     *slog.Logger
}

type Client struct {
	baseURL     string
	httpClient  *http.Client
	headers     http.Header
	tokens      TokenStore
	refreshPath string
	loginPath   string
	onExpired   func(loginPath string)
	log         *slog.Logger

	refreshes singleflight.Group
}

func NewClient(cfg Config, tokens TokenStore) (*Client, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", cfg.BaseURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	headers := make(http.Header, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers.Set(k, v)
	}
	if tokens == nil {
		tokens = NewMemoryTokens("", "")
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Client{
		baseURL:     strings.TrimRight(u.String(), "/"),
		httpClient:  httpClient,
		headers:     headers,
		tokens:      tokens,
		refreshPath: orDefault(cfg.RefreshPath, DefaultRefreshPath),
		loginPath:   orDefault(cfg.LoginPath, DefaultLoginPath),
		onExpired:   cfg.OnSessionExpired,
		log:         log.With("component", "apiclient"),
	}, nil
}

func (c *Client) Tokens() TokenStore { return c.tokens }

// Request describes one outbound call. SkipAuth bypasses both interceptors:
// no bearer header is attached and a 401 is returned as is.
type Request struct {
	Method   string
	Path     string
	Body     any
	Header   http.Header
	SkipAuth bool
}

// Response is the raw outcome of a successful (2xx) call.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

func (r *Response) Decode(out any) error {
	if out == nil || len(bytes.TrimSpace(r.Body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type call struct {
	method   string
	path     string
	body     []byte
	header   http.Header
	skipAuth bool

	retried bool
	bearer  string
}

func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.Send(ctx, Request{Method: method, Path: path, Body: body})
	if err != nil {
		return err
	}
	return resp.Decode(out)
}

func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPut, path, body, out)
}

func (c *Client) Patch(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPatch, path, body, out)
}

func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodDelete, path, nil, out)
}

func (c *Client) Send(ctx context.Context, r Request) (*Response, error) {
	body, err := encodeBody(r.Body)
	if err != nil {
		return nil, err
	}
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}
	return c.do(ctx, &call{
		method:   method,
		path:     r.Path,
		body:     body,
		header:   r.Header,
		skipAuth: r.SkipAuth,
	})
}

func (c *Client) do(ctx context.Context, cl *call) (*Response, error) {
	resp, err := c.send(ctx, cl)
	if err != nil {
		return nil, err
	}
	if resp.Status >= 200 && resp.Status < 300 {
		return resp, nil
	}

	apiErr := newAPIError(resp.Status, resp.Body)
	if resp.Status != http.StatusUnauthorized || cl.retried || cl.skipAuth {
		return nil, apiErr
	}

	cl.retried = true
	if _, err := c.refreshAfter(ctx, cl.bearer); err != nil {
		return nil, fmt.Errorf("%w: refresh: %v: %w", ErrSessionExpired, err, apiErr)
	}
	return c.do(ctx, cl)
}

// refreshAfter obtains a fresh access token for a call that was rejected
// while carrying used. Concurrent callers share one in-flight refresh, and a
// caller whose token was already replaced reuses the replacement. A failed
// refresh tears the session down once, inside the shared call.
func (c *Client) refreshAfter(ctx context.Context, used string) (string, error) {
	current := c.tokens.Access()
	switch {
	case current != "" && current != used:
		return current, nil
	case current == "" && used != "":
		return "", errSessionCleared
	}
	v, err, _ := c.refreshes.Do("refresh", func() (any, error) {
		tok, err := c.Refresh(context.WithoutCancel(ctx))
		if err != nil {
			c.expire(err)
		}
		return tok, err
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type refreshResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

// Refresh exchanges the stored refresh token for a new access token and
// stores it.
func (c *Client) Refresh(ctx context.Context) (string, error) {
	refresh := c.tokens.Refresh()
	if refresh == "" {
		return "", ErrNoRefreshToken
	}
	body, err := encodeBody(refreshRequest{Refresh: refresh})
	if err != nil {
		return "", err
	}

	resp, err := c.send(ctx, &call{method: http.MethodPost, path: c.refreshPath, body: body, skipAuth: true})
	if err != nil {
		return "", err
	}
	if resp.Status < 200 || resp.Status >= 300 {
		return "", newAPIError(resp.Status, resp.Body)
	}

	var out refreshResponse
	if err := resp.Decode(&out); err != nil {
		return "", err
	}
	if out.Access == "" {
		return "", errors.New("refresh response has no access token")
	}
	if out.Refresh != "" {
		c.tokens.Set(out.Access, out.Refresh)
	} else {
		c.tokens.SetAccess(out.Access)
	}
	c.log.Debug("token_refreshed")
	return out.Access, nil
}

func (c *Client) expire(cause error) {
	c.tokens.Clear()
	c.log.Warn("session_expired", "reason", "refresh failed", "error", cause, "redirect", c.loginPath)
	if c.onExpired != nil {
		c.onExpired(c.loginPath)
	}
}

func (c *Client) send(ctx context.Context, cl *call) (*Response, error) {
	target := c.baseURL + cl.path
	var body io.Reader
	if cl.body != nil {
		body = bytes.NewReader(cl.body)
	}
	req, err := http.NewRequestWithContext(ctx, cl.method, target, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	for k, vs := range c.headers {
		req.Header[k] = append([]string(nil), vs...)
	}
	for k, vs := range cl.header {
		req.Header[k] = append([]string(nil), vs...)
	}
	if cl.body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}

	cl.bearer = ""
	if !cl.skipAuth {
		if tok := c.tokens.Access(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
			cl.bearer = tok
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Method: cl.method, URL: target, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Method: cl.method, URL: target, Err: fmt.Errorf("read body: %w", err)}
	}
	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	case io.Reader:
		data, err := io.ReadAll(b)
		if err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
		return data, nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		return data, nil
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
