// Package httpclient implements the HTTP/1.1 byte-range client: initial
// connect with redirect following and cookie capture, follow-up range
// requests on the same logical origin, and response classification into
// RangeSupported / RangeRefused / RangeNotSatisfiable.
package httpclient

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"
)

// maxRedirects bounds redirect following.
const maxRedirects = 10

// userAgent is sent on every outbound request.
const userAgent = "rangestream"

// Client is a stateful object tied to a specific resource URL. It owns a
// cookie jar and reconnects its underlying transport whenever a redirect
// changes origin.
type Client struct {
	url    string
	jar    *CookieJar
	logger *slog.Logger

	localAddr  net.Addr
	onRedirect func()

	httpClient *http.Client
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithLogger attaches a structured logger; nil defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithLocalAddr binds the underlying dialer to a specific local network
// interface, for restricting a stream to a particular outbound
// interface.
func WithLocalAddr(addr net.Addr) Option {
	return func(c *Client) { c.localAddr = addr }
}

// WithOnRedirect registers a callback invoked once per redirect hop
// followed, letting an embedding process count redirects without this
// package depending on any particular metrics library.
func WithOnRedirect(fn func()) Option {
	return func(c *Client) { c.onRedirect = fn }
}

// New creates a Client for target, not yet connected.
func New(target string, opts ...Option) *Client {
	c := &Client{
		url: target,
		jar: NewCookieJar(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.httpClient = c.newHTTPClient()
	return c
}

func (c *Client) newHTTPClient() *http.Client {
	dialer := &net.Dialer{Timeout: 15 * time.Second}
	if c.localAddr != nil {
		dialer.LocalAddr = c.localAddr
	}
	transport := &http.Transport{
		DialContext:        dialer.DialContext,
		DisableCompression: true,
	}
	return &http.Client{
		Transport: transport,
		Jar:       c.jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > maxRedirects {
				return ErrTooManyRedirects
			}
			if len(via) > 0 && req.URL.Host != via[0].URL.Host {
				c.logger.Info("httpclient: redirect changed origin",
					slog.String("from", via[0].URL.Host), slog.String("to", req.URL.Host))
			}
			if c.onRedirect != nil {
				c.onRedirect()
			}
			return nil
		},
	}
}

// Connect issues the initial ranged GET starting at rangeStart (an open
// range if rangeEnd is 0), following redirects and capturing cookies.
func (c *Client) Connect(ctx context.Context, rangeStart, rangeEnd uint64) (*Response, error) {
	return c.request(ctx, rangeStart, rangeEnd)
}

// SendRangeRequest reuses the client's cookie jar and transport to issue
// a new ranged GET, e.g. after a seek or reconnect.
func (c *Client) SendRangeRequest(ctx context.Context, rangeStart, rangeEnd uint64) (*Response, error) {
	return c.request(ctx, rangeStart, rangeEnd)
}

func (c *Client) request(ctx context.Context, start, end uint64) (*Response, error) {
	u, err := url.Parse(c.url)
	if err != nil {
		return nil, wrap(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, wrap(err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Range", formatRangeHeader(start, end))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, wrap(err)
	}
	// c.httpClient.Jar is c.jar, which already recorded every Set-Cookie
	// line via SetCookies as part of Do; recording them again here would
	// duplicate every cookie in the jar.
	classified, err := classify(resp)
	if err != nil {
		return nil, wrap(err)
	}
	return classified, nil
}

// Close releases idle connections held by the client's transport.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
