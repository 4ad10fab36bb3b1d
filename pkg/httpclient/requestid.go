// Package httpclient provides http.RoundTripper middleware for outgoing calls.
package httpclient

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// HeaderRequestID carries the request identifier.
const HeaderRequestID = "X-Request-ID"

type requestIDKey struct{}

// WithRequestID stores a request ID in the context. Outgoing requests made
// with that context reuse it.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext extracts the request ID from the context.
// It returns an empty string if no request ID is present.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// RoundTripperFunc adapts a function to http.RoundTripper.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

// RoundTrip implements http.RoundTripper.
func (f RoundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

// RequestID wraps next so that every request carries an X-Request-ID header.
// A valid header already on the request wins, then the context value, then a
// new UUID v4.
func RequestID(next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
		if isValidRequestID(r.Header.Get(HeaderRequestID)) {
			return next.RoundTrip(r)
		}
		id := RequestIDFromContext(r.Context())
		if !isValidRequestID(id) {
			id = uuid.New().String()
		}
		r = r.Clone(r.Context())
		r.Header.Set(HeaderRequestID, id)
		return next.RoundTrip(r)
	})
}

// isValidRequestID checks that id is non-empty, at most 128 bytes, and
// contains only printable ASCII.
func isValidRequestID(id string) bool {
	if len(id) == 0 || len(id) > 128 {
		return false
	}
	for i := range len(id) {
		if id[i] < 0x20 || id[i] > 0x7E {
			return false
		}
	}
	return true
}
