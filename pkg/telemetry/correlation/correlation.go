package correlation

import (
	"context"
	"net/http"
	"strings"

	"github.com/oklog/ulid/v2"
)

// HeaderName is the inbound/outbound correlation header.
const HeaderName = "X-Correlation-Id"

// correlationKey is an unexported type for context keys within this package.
type correlationKey struct{}

// ExtractCorrelationID fetches a correlation ID from the context if present.
func ExtractCorrelationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if val, ok := ctx.Value(correlationKey{}).(string); ok {
		return val
	}
	return ""
}

// ContextWithCorrelationID sets the correlation ID onto the context.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationKey{}, id)
}

// EnsureCorrelationID guarantees a correlation ID on the context, generating one when missing.
func EnsureCorrelationID(ctx context.Context) (context.Context, string) {
	cid := ExtractCorrelationID(ctx)
	if cid == "" {
		cid = ulid.Make().String()
	}
	return ContextWithCorrelationID(ctx, cid), cid
}

// FromRequest seeds ctx with the request's correlation header, generating a
// fresh ULID when absent.
func FromRequest(ctx context.Context, r *http.Request) (context.Context, string) {
	if r != nil {
		ctx = ContextWithCorrelationID(ctx, strings.TrimSpace(r.Header.Get(HeaderName)))
	}
	return EnsureCorrelationID(ctx)
}

// Propagate copies the correlation id from ctx onto an outbound request.
func Propagate(ctx context.Context, r *http.Request) {
	if r == nil {
		return
	}
	if cid := ExtractCorrelationID(ctx); cid != "" {
		r.Header.Set(HeaderName, cid)
	}
}
