// Package catalogapi is a thin HTTP client for the remote product catalog
// service. It performs no retries and no caching; every failure is returned
// as an *Error tagged with a Kind.
package catalogapi

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultTimeout bounds every remote call.
	DefaultTimeout = 30 * time.Second

	productsPath = "/api/productos"

	maxBodySize  = 8 << 20
	maxErrorBody = 512
)

// Options configures a Client.
type Options struct {
	// HTTPClient overrides the default instrumented client. Timeout is
	// ignored when set.
	HTTPClient *http.Client
	Timeout    time.Duration

	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

func (o *Options) setDefaults() {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.HTTPClient != nil {
		return
	}
	var transportOpts []otelhttp.Option
	if o.TracerProvider != nil {
		transportOpts = append(transportOpts, otelhttp.WithTracerProvider(o.TracerProvider))
	}
	if o.MeterProvider != nil {
		transportOpts = append(transportOpts, otelhttp.WithMeterProvider(o.MeterProvider))
	}
	o.HTTPClient = &http.Client{
		Timeout:   o.Timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport, transportOpts...),
	}
}

// Client talks to the remote catalog service.
type Client struct {
	base string
	http *http.Client
}

// New returns a Client for the service rooted at baseURL.
func New(baseURL string, opts Options) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse base url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("unsupported base url scheme %q", u.Scheme)
	}
	opts.setDefaults()
	return &Client{
		base: strings.TrimRight(u.String(), "/"),
		http: opts.HTTPClient,
	}, nil
}

// ListAll fetches every product. An empty or null payload yields a nil slice.
func (c *Client) ListAll(ctx context.Context) ([]Record, error) {
	const op = "list products"
	body, err := c.do(ctx, op, http.MethodGet, productsPath, nil)
	if err != nil {
		return nil, err
	}
	records, err := DecodeRecords(body)
	if err != nil {
		return nil, malformed(op, err)
	}
	return records, nil
}

// GetByID fetches a single product. A 404 is reported as KindNotFound.
func (c *Client) GetByID(ctx context.Context, id int64) (*Record, error) {
	const op = "get product"
	body, err := c.do(ctx, op, http.MethodGet, productPath(id), nil)
	if err != nil {
		return nil, err
	}
	r, err := DecodeRecord(body)
	if err != nil {
		return nil, malformed(op, err)
	}
	return r, nil
}

// Create submits r and returns the record confirmed by the server.
func (c *Client) Create(ctx context.Context, r Record) (*Record, error) {
	const op = "create product"
	body, err := c.do(ctx, op, http.MethodPost, productsPath, EncodeRecord(r))
	if err != nil {
		return nil, err
	}
	created, err := DecodeRecord(body)
	if err != nil {
		return nil, malformed(op, err)
	}
	return created, nil
}

// Update replaces the product with id and returns the server's record.
func (c *Client) Update(ctx context.Context, id int64, r Record) (*Record, error) {
	const op = "update product"
	body, err := c.do(ctx, op, http.MethodPut, productPath(id), EncodeRecord(r))
	if err != nil {
		return nil, err
	}
	updated, err := DecodeRecord(body)
	if err != nil {
		return nil, malformed(op, err)
	}
	return updated, nil
}

// Delete removes the product with id. The response body is ignored.
func (c *Client) Delete(ctx context.Context, id int64) error {
	_, err := c.do(ctx, "delete product", http.MethodDelete, productPath(id), nil)
	return err
}

func productPath(id int64) string {
	return productsPath + "/" + strconv.FormatInt(id, 10)
}

func (c *Client) do(ctx context.Context, op, method, path string, payload []byte) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reqBody)
	if err != nil {
		return nil, &Error{Op: op, Kind: KindUnreachable, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, transportError(op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, transportError(op, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, &Error{Op: op, Kind: KindNotFound, Status: resp.StatusCode}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &Error{
			Op:     op,
			Kind:   KindRejected,
			Status: resp.StatusCode,
			Body:   truncate(strings.TrimSpace(string(body)), maxErrorBody),
		}
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
