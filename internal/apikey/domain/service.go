package domain

import (
	"context"
	"errors"
)

type Service interface {
	// Lookup returns the token for a jti or ErrNotFound.
	Lookup(ctx context.Context, id string) (*APIToken, error)
}

type bypassCacheKey struct{}

// WithoutCache marks ctx so token lookups go to the database. Authorization
// uses it so a deleted token stops granting access immediately.
func WithoutCache(ctx context.Context) context.Context {
	return context.WithValue(ctx, bypassCacheKey{}, true)
}

func CacheAllowed(ctx context.Context) bool {
	bypass, _ := ctx.Value(bypassCacheKey{}).(bool)
	return !bypass
}

var (
	ErrInvalidTokenID = errors.New("invalid_token_id")
	ErrNotFound       = errors.New("not_found")
)
