// Package egrn queries the cadastral map service for the parcel record at a
// coordinate. The service answers with JSON that carries a free-text postal
// address; decoding that address is left to the caller.
package egrn

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/address-helper/internal/geo"
)

// DefaultTimeout bounds a single request including the body read.
const DefaultTimeout = 30 * time.Second

// maxBody caps the response body; parcel records are a few kilobytes.
const maxBody = 4 << 20

// Requester issues one lookup per coordinate.
type Requester interface {
	Request(ctx context.Context, ll geo.LatLon) (*Response, error)
}

// Response is a successful (2xx) reply.
type Response struct {
	URL        string
	StatusCode int
	Body       []byte
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithRateLimit caps requests per second. Zero or negative disables the cap.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithInsecureSkipVerify disables certificate validation. NewClient logs a
// warning whenever it is on.
func WithInsecureSkipVerify(skip bool) Option {
	return func(c *Client) {
		c.insecure = skip
	}
}

// Client implements Requester over HTTP.
type Client struct {
	template   Template
	httpClient *http.Client
	userAgent  string
	timeout    time.Duration
	limiter    *rate.Limiter
	insecure   bool
}

// NewClient creates a client for the given URL template.
func NewClient(tmpl Template, opts ...Option) *Client {
	c := &Client{
		template:  tmpl,
		userAgent: "address-helper",
		timeout:   DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{
			Transport: &http.Transport{
				Proxy:           http.ProxyFromEnvironment,
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
			},
		}
	}
	if c.insecure {
		c.httpClient = insecureClient(c.httpClient)
		zap.L().Warn("egrn: TLS certificate verification is DISABLED",
			zap.String("template", tmpl.String()),
		)
	}
	return c
}

// insecureClient returns a copy of hc whose transport skips certificate
// verification. Certificate verification is not disabled on the caller's
// transport.
func insecureClient(hc *http.Client) *http.Client {
	tr, ok := hc.Transport.(*http.Transport)
	if !ok || tr == nil {
		tr = http.DefaultTransport.(*http.Transport)
	}
	tr = tr.Clone()
	if tr.TLSClientConfig == nil {
		tr.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	tr.TLSClientConfig.InsecureSkipVerify = true //nolint:gosec // opt-in via egrn.insecure_skip_verify
	cp := *hc
	cp.Transport = tr
	return &cp
}

// Template returns the URL template the client expands.
func (c *Client) Template() Template { return c.template }

// Request fetches the record at ll. Non-2xx statuses return *ResponseError,
// failures before a response return *TransportError.
func (c *Client) Request(ctx context.Context, ll geo.LatLon) (*Response, error) {
	reqURL := c.template.Expand(ll)

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "egrn: rate limit")
		}
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "egrn: build request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{URL: reqURL, Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
		return nil, &ResponseError{URL: reqURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, &TransportError{URL: reqURL, Err: err}
	}

	return &Response{URL: reqURL, StatusCode: resp.StatusCode, Body: body}, nil
}
