// Package client consumes chat streams over HTTP.
//
// [Client.Stream] follows one connection until it ends. [Reconnector] wraps
// it with exponential backoff so that transient drops are invisible to the
// handler, giving up after a run of consecutive failures.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/MrWong99/chatsim/internal/observe"
	"github.com/MrWong99/chatsim/internal/phrase"
	"github.com/MrWong99/chatsim/internal/stream"
)

// StreamPath is the server endpoint of the event stream.
const StreamPath = "/api/chat-stream"

// ErrStreamEnded is returned when the server closes an open stream.
var ErrStreamEnded = errors.New("client: stream ended by server")

// StatusError reports a non-success response to the stream request.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("client: unexpected status %d", e.Code)
	}
	return fmt.Sprintf("client: unexpected status %d: %s", e.Code, e.Body)
}

// Temporary reports whether retrying the same request may succeed. Client
// errors other than timeouts and rate limits are permanent.
func (e *StatusError) Temporary() bool {
	if e.Code == http.StatusRequestTimeout || e.Code == http.StatusTooManyRequests {
		return true
	}
	return e.Code < 400 || e.Code >= 500
}

// HandlerError wraps an error returned by a [Handler].
type HandlerError struct {
	Err error
}

func (e *HandlerError) Error() string { return "client: handler: " + e.Err.Error() }
func (e *HandlerError) Unwrap() error { return e.Err }

// Handler receives every event of a stream. A non-nil error ends the stream
// and is returned wrapped in a [*HandlerError].
type Handler func(Event) error

// Request selects the stream to open.
type Request struct {
	Topic string
	Mode  phrase.Mode

	// Pacing is sent as min/max milliseconds. Zero leaves the server default.
	Pacing stream.Pacing
}

// Option configures a [Client].
type Option func(*Client)

// WithHTTPClient sets the HTTP client. The client must not apply a total
// request timeout since streams are long-lived.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithToken sends token as a bearer credential.
func WithToken(token string) Option {
	return func(c *Client) {
		c.header.Set("Authorization", "Bearer "+token)
	}
}

// WithHeader adds a request header, for example an identity header expected
// by the server's auth proxy.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.header.Set(key, value)
	}
}

// Client opens chat streams against one server.
type Client struct {
	base   string
	http   *http.Client
	header http.Header
}

// New returns a Client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		base:   strings.TrimSuffix(baseURL, "/"),
		http:   &http.Client{},
		header: http.Header{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// URL returns the stream URL for req.
func (c *Client) URL(req Request) string {
	q := url.Values{}
	q.Set("topic", req.Topic)
	if req.Mode != "" {
		q.Set("mode", string(req.Mode))
	}
	if req.Pacing != (stream.Pacing{}) {
		q.Set("min", strconv.FormatInt(req.Pacing.Min.Milliseconds(), 10))
		q.Set("max", strconv.FormatInt(req.Pacing.Max.Milliseconds(), 10))
	}
	return c.base + StreamPath + "?" + q.Encode()
}

// Conn is an open event stream.
type Conn struct {
	body io.ReadCloser
	r    *Reader
}

// Next returns the next event of the stream.
func (c *Conn) Next() (Event, error) { return c.r.Next() }

// Close releases the connection.
func (c *Conn) Close() error { return c.body.Close() }

// Open issues the stream request and validates the response. Cancelling ctx
// closes the stream.
func (c *Client) Open(ctx context.Context, req Request) (*Conn, error) {
	hreq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(req), nil)
	if err != nil {
		return nil, fmt.Errorf("client: build request: %w", err)
	}
	for k, v := range c.header {
		hreq.Header[k] = v
	}
	hreq.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(hreq)
	if err != nil {
		return nil, fmt.Errorf("client: open stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if mt, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); mt != "text/event-stream" {
		resp.Body.Close()
		return nil, fmt.Errorf("client: unexpected content type %q", resp.Header.Get("Content-Type"))
	}
	return &Conn{body: resp.Body, r: NewReader(resp.Body)}, nil
}

// Stream opens one stream and delivers its events to h until ctx is
// cancelled (nil error), the server ends it ([ErrStreamEnded]), the
// connection fails, or h returns an error.
func (c *Client) Stream(ctx context.Context, req Request, h Handler) error {
	conn, err := c.Open(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	return consume(ctx, conn, h)
}

func consume(ctx context.Context, conn *Conn, h Handler) error {
	defer conn.Close()
	for {
		ev, err := conn.Next()
		if ctx.Err() != nil {
			return nil
		}
		switch {
		case err == nil:
		case errors.Is(err, ErrMalformedFrame):
			observe.Logger(ctx).Warn("skipping malformed chat frame", "err", err)
			continue
		case errors.Is(err, io.EOF):
			return ErrStreamEnded
		default:
			return fmt.Errorf("client: read stream: %w", err)
		}
		if err := h(ev); err != nil {
			return &HandlerError{Err: err}
		}
	}
}
