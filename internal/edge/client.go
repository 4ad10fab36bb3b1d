// Package edge calls the storefront's edge functions: coupon verification and
// order creation.
package edge

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/storefront-cart/pkg/httpclient"
)

const (
	functionsPath   = "/functions/v1/"
	defaultTimeout  = 15 * time.Second
	maxErrorBodyLen = 4 << 10
	maxBodyLen      = 1 << 20
)

// Error is a non-2xx reply from an edge function.
type Error struct {
	Function string
	Status   int
	Message  string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("edge %s: status %d", e.Function, e.Status)
	}
	return fmt.Sprintf("edge %s: status %d: %s", e.Function, e.Status, e.Message)
}

// Client invokes edge functions with the store's public API key.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	lg      *zap.Logger

	timeout        time.Duration
	tracerProvider trace.TracerProvider
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying client. Its transport is used as is.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithTimeout bounds each call.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(lg *zap.Logger) Option {
	return func(c *Client) { c.lg = lg }
}

// WithTracerProvider sets the tracer provider for the HTTP transport.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) { c.tracerProvider = tp }
}

// New creates a Client for the project at baseURL.
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		lg:      zap.NewNop(),
		timeout: defaultTimeout,
	}
	for _, o := range opts {
		o(c)
	}
	if c.http == nil {
		var topts []otelhttp.Option
		if c.tracerProvider != nil {
			topts = append(topts, otelhttp.WithTracerProvider(c.tracerProvider))
		}
		c.http = &http.Client{
			Timeout:   c.timeout,
			Transport: otelhttp.NewTransport(httpclient.RequestID(http.DefaultTransport), topts...),
		}
	}
	return c
}

// call POSTs the encoded body to the function and decodes a 2xx reply.
func (c *Client) call(
	ctx context.Context,
	function string,
	body func(e *jx.Encoder),
	decode func(d *jx.Decoder) error,
) error {
	e := jx.GetEncoder()
	body(e)
	payload := append([]byte(nil), e.Bytes()...)
	jx.PutEncoder(e)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+functionsPath+function, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("apikey", c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "call %s", function)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyLen+1))
	if err != nil {
		return errors.Wrapf(err, "read %s response", function)
	}
	if len(raw) > maxBodyLen {
		return errors.Errorf("read %s response: body exceeds %d bytes", function, maxBodyLen)
	}
	c.lg.Debug("Edge call",
		zap.String("function", function),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{Function: function, Status: resp.StatusCode, Message: errorMessage(raw)}
	}
	if err := decode(jx.DecodeBytes(raw)); err != nil {
		return errors.Wrapf(err, "decode %s response", function)
	}
	return nil
}

// errorMessage extracts "error" or "message" from a JSON error body and
// falls back to the raw text.
func errorMessage(raw []byte) string {
	var msg string
	d := jx.DecodeBytes(raw)
	if d.Next() == jx.Object {
		_ = d.Obj(func(d *jx.Decoder, key string) error {
			if (key == "error" || key == "message") && msg == "" && d.Next() == jx.String {
				s, err := d.Str()
				msg = s
				return err
			}
			return d.Skip()
		})
	}
	if msg != "" {
		return msg
	}
	if len(raw) > maxErrorBodyLen {
		raw = raw[:maxErrorBodyLen]
	}
	return strings.TrimSpace(string(raw))
}
