package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/NeatooDotNet/RemoteFactory-sub015/pkg/wire"
)

// DefaultInvokePath is where the hosted endpoint mounts the invocation
// handler.
const DefaultInvokePath = "/v1/factory/invoke"

const maxResponseBytes = 4 << 20

// Client is the HTTP transport for Remote mode. It implements Transport;
// one client is shared by all stubs and is safe for concurrent use.
type Client struct {
	baseURL string
	path    string
	token   string
	http    *http.Client
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithToken sets the bearer token attached to every request.
func WithToken(token string) ClientOption {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the underlying HTTP client, e.g. to tune
// timeouts or inject a test transport.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithPath overrides the invocation path.
func WithPath(path string) ClientOption {
	return func(c *Client) { c.path = path }
}

// NewClient builds a transport client for the endpoint at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		path:    DefaultInvokePath,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do sends one request envelope and returns the decoded response
// envelope. Any failure to complete the exchange — connection, status,
// malformed body, format mismatch — is a TransportError; faults the
// server itself reports come back inside the response envelope.
func (c *Client) Do(ctx context.Context, req *wire.Request, format wire.Format) (*wire.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, &TransportError{Op: "encode request", Err: err}
	}

	hr, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.path, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Op: "build request", Err: err}
	}
	hr.Header.Set("Content-Type", "application/json")
	hr.Header.Set(wire.FormatHeader, format.String())
	if c.token != "" {
		hr.Header.Set("Authorization", "Bearer "+c.token)
	}

	res, err := c.http.Do(hr)
	if err != nil {
		return nil, &TransportError{Op: "send", Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		// Drain a bounded slice of the body for the error message; the
		// endpoint returns RFC 7807 problems for protocol-level rejects.
		detail, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return nil, &TransportError{
			Op:  "status",
			Err: fmt.Errorf("endpoint returned %d: %s", res.StatusCode, strings.TrimSpace(string(detail))),
		}
	}

	if echo := res.Header.Get(wire.FormatHeader); echo != "" && echo != format.String() {
		return nil, &TransportError{
			Op:  "format",
			Err: fmt.Errorf("endpoint answered in %q, expected %q", echo, format),
		}
	}

	var resp wire.Response
	if err := json.NewDecoder(io.LimitReader(res.Body, maxResponseBytes)).Decode(&resp); err != nil {
		return nil, &TransportError{Op: "decode response", Err: err}
	}
	if resp.ID != req.ID {
		return nil, &TransportError{
			Op:  "correlate",
			Err: fmt.Errorf("response id %q does not match request id %q", resp.ID, req.ID),
		}
	}
	return &resp, nil
}
