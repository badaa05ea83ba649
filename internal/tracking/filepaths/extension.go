// Package filepaths exposes the operator-managed tracking.yml entries as a
// tracking extension.
package filepaths

import (
	"context"
	"strings"

	"github.com/smallbiznis/usagetrack/internal/config"
	"github.com/smallbiznis/usagetrack/internal/tracking/domain"
	"github.com/smallbiznis/usagetrack/internal/tracking/extension"
)

const Name = "tracking_file"

type Extension struct {
	holder *config.TrackingPathsHolder
}

func New(holder *config.TrackingPathsHolder) *Extension {
	return &Extension{holder: holder}
}

func (e *Extension) Name() string { return Name }

func (e *Extension) DefinePaths(current *domain.Paths) *domain.Paths {
	for _, p := range e.holder.Get().Paths {
		current.Add(p.Type, p.Patterns...)
	}
	return current
}

// RegisterHandlers adds a generic handler for every entry that declares
// tracking_type and sub_type. Entries without one only contribute patterns.
func (e *Extension) RegisterHandlers(r extension.HandlerRegistrar) {
	for _, p := range e.holder.Get().Paths {
		if !p.HasHandler() {
			continue
		}
		methods := p.Methods
		if len(methods) == 0 {
			methods = []string{"GET"}
		}
		h := handlerFor(p)
		for _, method := range methods {
			r.Handle(method, p.Type, h)
		}
	}
}

func handlerFor(p config.TrackingPath) extension.Handler {
	from := strings.TrimSpace(p.ObjectFrom)
	return func(_ context.Context, u *domain.RequestURL) (domain.Payload, bool) {
		payload := domain.Payload{
			TrackingType:    p.TrackingType,
			TrackingSubType: p.SubType,
			ObjectType:      p.ObjectType,
		}
		if p.ObjectType == "" {
			return payload, true
		}
		if name, ok := strings.CutPrefix(from, "query:"); ok {
			payload.ObjectID = u.QueryParam(name)
		} else {
			payload.ObjectID = u.Part(-1)
		}
		return payload, true
	}
}
