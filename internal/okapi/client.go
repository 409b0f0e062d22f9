// Package okapi provides the authenticated HTTP client and the named route
// catalog for the Okapi gateway's administrative API.
package okapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/folio-tools/stripesctl/internal/tokenstore"
	"github.com/folio-tools/stripesctl/pkg/logger"
)

// ClientConfig configures the gateway client.
type ClientConfig struct {
	// BaseURL is the gateway base URL (e.g. http://localhost:9130).
	// TODO: validate the URL here; today a bad value surfaces as a failed
	// request, matching the tenant string which is also passed through as-is.
	BaseURL string
	// Tenant is attached as x-okapi-tenant unless a call opts out.
	Tenant string
	// Store owns the credential bundle; the client only borrows it per
	// request and never caches credentials itself.
	Store *tokenstore.Store
	// HTTPClient defaults to http.DefaultClient. No timeout is configured
	// by default: a hung gateway call hangs the command.
	HTTPClient *http.Client
	Log        *logger.Logger
}

// Client issues authenticated requests against the gateway base URL and
// normalizes non-2xx responses into *Error.
type Client struct {
	baseURL    string
	tenant     string
	store      *tokenstore.Store
	httpClient *http.Client
	log        *logger.Logger
	now        func() time.Time
}

// NewClient creates a gateway client.
func NewClient(cfg ClientConfig) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	log := cfg.Log
	if log == nil {
		log = logger.NewDefault("okapi")
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		tenant:     cfg.Tenant,
		store:      cfg.Store,
		httpClient: httpClient,
		log:        log,
		now:        time.Now,
	}
}

// Tenant returns the configured tenant identifier.
func (c *Client) Tenant() string { return c.tenant }

// requestOptions holds per-call header overrides.
type requestOptions struct {
	noToken  bool
	noTenant bool
}

// Option adjusts a single request.
type Option func(*requestOptions)

// WithoutToken omits the x-okapi-token header and cookie resolution.
func WithoutToken() Option { return func(o *requestOptions) { o.noToken = true } }

// WithoutTenant omits the x-okapi-tenant header.
func WithoutTenant() Option { return func(o *requestOptions) { o.noTenant = true } }

// WithoutAuth omits both okapi headers; used for authn, discovery, and
// proxy-module CRUD endpoints.
func WithoutAuth() Option {
	return func(o *requestOptions) {
		o.noToken = true
		o.noTenant = true
	}
}

// Response is a completed gateway response.
type Response struct {
	StatusCode int
	Body       []byte
	Header     http.Header
}

// JSON unmarshals the response body into v.
func (r *Response) JSON(v interface{}) error {
	return json.Unmarshal(r.Body, v)
}

// Get issues a GET request against the gateway.
func (c *Client) Get(ctx context.Context, resource string, opts ...Option) (*Response, error) {
	return c.do(ctx, http.MethodGet, resource, nil, opts)
}

// Post issues a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, resource string, body interface{}, opts ...Option) (*Response, error) {
	return c.do(ctx, http.MethodPost, resource, body, opts)
}

// Put issues a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, resource string, body interface{}, opts ...Option) (*Response, error) {
	return c.do(ctx, http.MethodPut, resource, body, opts)
}

// Delete issues a DELETE request against the gateway.
func (c *Client) Delete(ctx context.Context, resource string, opts ...Option) (*Response, error) {
	return c.do(ctx, http.MethodDelete, resource, nil, opts)
}

func (c *Client) do(ctx context.Context, method, resource string, body interface{}, opts []Option) (*Response, error) {
	var o requestOptions
	for _, opt := range opts {
		opt(&o)
	}

	reqURL := c.resolve(resource)

	var payload []byte
	var reader io.Reader
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	// Header assembly is itself gated on a possible refresh exchange, so it
	// must complete before the primary request goes out.
	req.Header.Set("Content-Type", "application/json")
	if !o.noToken {
		if token := c.store.Token(); token != "" {
			req.Header.Set(TokenHeader, token)
		}
		cookie, err := c.accessCookie(ctx)
		if err != nil {
			return nil, err
		}
		if cookie != nil {
			req.AddCookie(&http.Cookie{Name: cookie.Name, Value: cookie.Value})
		}
	}
	if !o.noTenant && c.tenant != "" {
		req.Header.Set("X-Okapi-Tenant", c.tenant)
	}

	c.narrate(req, payload)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{
			RequestURL: reqURL,
			StatusCode: resp.StatusCode,
			StatusText: resp.Status,
			Message:    strings.TrimSpace(string(respBody)),
		}
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       respBody,
		Header:     resp.Header,
	}, nil
}

// accessCookie resolves the cookie to attach to an outbound request. An
// unexpired stored access cookie is used directly; an expired one triggers a
// refresh-token exchange first. When the refresh cookie is also expired the
// session is unrecoverable and the whole command fails.
func (c *Client) accessCookie(ctx context.Context) (*tokenstore.Cookie, error) {
	access := c.store.AccessCookie()
	if access == nil {
		return nil, nil
	}
	now := c.now()
	if !cookieExpired(access, now) {
		return access, nil
	}

	refresh := c.store.RefreshCookie()
	if refresh == nil || cookieExpired(refresh, now) {
		expires := "(unknown)"
		if refresh != nil && refresh.Expires != "" {
			expires = refresh.Expires
		}
		return nil, fmt.Errorf("refresh token expired at %s; please log in again", expires)
	}

	if err := c.refreshExchange(ctx, refresh); err != nil {
		return nil, err
	}
	return c.store.AccessCookie(), nil
}

// refreshExchange trades the refresh cookie for a new cookie pair and persists
// it through the same cookie-saving routine the login flow uses.
func (c *Client) refreshExchange(ctx context.Context, refresh *tokenstore.Cookie) error {
	reqURL := c.resolve("/authn/refresh")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, nil)
	if err != nil {
		return fmt.Errorf("create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(&http.Cookie{Name: refresh.Name, Value: refresh.Value})

	c.log.WithField("url", reqURL).Debug("access token expired, exchanging refresh token")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute refresh request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return &Error{
			RequestURL: reqURL,
			StatusCode: resp.StatusCode,
			StatusText: resp.Status,
			Message:    strings.TrimSpace(string(body)),
		}
	}

	return StoreCookiesFromHeader(c.store, resp.Header)
}

// resolve resolves a resource against the base URL. Absolute resource URLs
// pass through path-only re-resolution so callers may pass either relative
// paths or full URLs safely.
func (c *Client) resolve(resource string) string {
	u, err := url.Parse(resource)
	if err != nil {
		return c.baseURL + resource
	}
	if u.IsAbs() {
		u = &url.URL{Path: u.Path, RawQuery: u.RawQuery}
	}
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL + resource
	}
	return base.ResolveReference(u).String()
}

// narrate logs the request as an equivalent curl invocation. Diagnostics
// only: debug level, never load-bearing.
func (c *Client) narrate(req *http.Request, body []byte) {
	var b strings.Builder
	fmt.Fprintf(&b, "curl -X %s", req.Method)
	for name, values := range req.Header {
		for _, v := range values {
			fmt.Fprintf(&b, " -H %q", name+": "+v)
		}
	}
	if len(body) > 0 {
		fmt.Fprintf(&b, " -d %q", string(body))
	}
	fmt.Fprintf(&b, " %s", req.URL.String())
	c.log.Debug(b.String())
}
