// Package extension defines the hooks tracking extensions can implement.
package extension

import (
	"context"

	"github.com/smallbiznis/usagetrack/internal/tracking/domain"
)

// Extension is the base contract; every hook below is optional.
type Extension interface {
	Name() string
}

// PathDefiner contributes classification patterns. It receives a copy of the
// mapping built so far and returns the patterns to merge into it.
type PathDefiner interface {
	Extension
	DefinePaths(current *domain.Paths) *domain.Paths
}

// HandlerProvider registers extraction handlers at startup.
type HandlerProvider interface {
	Extension
	RegisterHandlers(r HandlerRegistrar)
}

// BeforeTracker may rewrite the event before extraction.
type BeforeTracker interface {
	Extension
	BeforeTrack(ctx context.Context, ev domain.TrackEvent) domain.TrackEvent
}

// BeforeSaver may rewrite the payload after extraction.
type BeforeSaver interface {
	Extension
	BeforeSave(ctx context.Context, p domain.Payload) domain.Payload
}

// AfterSaver observes a committed record. Errors are logged only.
type AfterSaver interface {
	Extension
	AfterSave(ctx context.Context, rec *domain.UsageRecord) error
}

// Handler extracts a payload from a classified request. ok=false means the
// request is not meaningful and must not be recorded.
type Handler func(ctx context.Context, u *domain.RequestURL) (domain.Payload, bool)

// HandlerRegistrar accepts handlers keyed by {method}_{type} and
// {method}_api_action_{action}.
type HandlerRegistrar interface {
	Handle(method, trackingType string, h Handler)
	HandleAPIAction(method, action string, h Handler)
}
