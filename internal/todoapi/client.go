package todoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

type Config struct {
	BaseURL string
	Timeout time.Duration
}

// RawResponse captures everything the conformance checks assert on.
type RawResponse struct {
	URL         string
	StatusCode  int
	Headers     http.Header
	Body        []byte
	Duration    time.Duration
}

func (r *RawResponse) Header(name string) string {
	if r == nil {
		return ""
	}
	return r.Headers.Get(name)
}

// ContentType returns the response Content-Type header value.
func (r *RawResponse) ContentType() string {
	return r.Header("Content-Type")
}

// IsJSON reports whether the response declares a JSON body. Matching is
// substring containment so parameters like charset are tolerated.
func (r *RawResponse) IsJSON() bool {
	return ContentTypeIsJSON(r.ContentType())
}

func ContentTypeIsJSON(contentType string) bool {
	return strings.Contains(contentType, "application/json")
}

// TransportKind separates network-level refusal (the target never answered)
// from other request failures.
type TransportKind string

const (
	TransportNetwork TransportKind = "network"
	TransportRequest TransportKind = "request"
)

// TransportError wraps any failure where no HTTP response was received.
type TransportError struct {
	Kind TransportKind
	URL  string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s error contacting %s: %v", e.Kind, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func IsTransportError(err error) (*TransportError, bool) {
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return transportErr, true
	}
	return nil, false
}

func classifyTransport(err error) TransportKind {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return TransportNetwork
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return TransportNetwork
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return TransportNetwork
	}
	return TransportRequest
}

type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(cfg Config) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// URL joins a path onto the configured base. The base is taken as-is; a
// malformed base surfaces as a transport failure on the first request.
func (c *Client) URL(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

func (c *Client) Get(ctx context.Context, path string) (*RawResponse, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *Client) PostJSON(ctx context.Context, path string, body any) (*RawResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request body: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, payload)
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) (*RawResponse, error) {
	fullURL := c.URL(path)
	var reader io.Reader
	if len(payload) > 0 {
		reader = bytes.NewReader(payload)
	}

	request, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return nil, &TransportError{Kind: TransportRequest, URL: fullURL, Err: err}
	}
	if len(payload) > 0 {
		request.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	response, err := c.client.Do(request)
	if err != nil {
		return nil, &TransportError{Kind: classifyTransport(err), URL: fullURL, Err: err}
	}
	defer response.Body.Close()

	bodyBytes, readErr := io.ReadAll(response.Body)
	raw := &RawResponse{
		URL:        fullURL,
		StatusCode: response.StatusCode,
		Headers:    response.Header.Clone(),
		Body:       bodyBytes,
		Duration:   time.Since(start),
	}
	if readErr != nil {
		return raw, &TransportError{Kind: TransportRequest, URL: fullURL, Err: fmt.Errorf("read response body: %w", readErr)}
	}
	return raw, nil
}
