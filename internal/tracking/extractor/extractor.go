// Package extractor dispatches classified requests to tracking handlers.
package extractor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/smallbiznis/usagetrack/internal/tracking/domain"
	"github.com/smallbiznis/usagetrack/internal/tracking/extension"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Registry *extension.Registry
	Log      *zap.Logger
}

type handlerTable struct {
	handlers map[string]extension.Handler
}

// Handle registers h under {method}_{trackingType}. Later registrations for
// the same key replace earlier ones.
func (t *handlerTable) Handle(method, trackingType string, h extension.Handler) {
	t.handlers[Key(method, trackingType)] = h
}

func (t *handlerTable) HandleAPIAction(method, action string, h extension.Handler) {
	t.handlers[APIActionKey(method, action)] = h
}

// Extractor turns a classified request into a payload using handlers
// collected from HandlerProvider extensions.
type Extractor struct {
	registry *extension.Registry
	log      *zap.Logger

	table atomic.Pointer[handlerTable]
}

func New(p Params) *Extractor {
	e := &Extractor{
		registry: p.Registry,
		log:      p.Log.Named("tracking.extractor"),
	}
	e.Rebuild()
	return e
}

// Rebuild collects handlers from every HandlerProvider in registration order.
func (e *Extractor) Rebuild() {
	table := &handlerTable{handlers: map[string]extension.Handler{}}
	for _, provider := range e.registry.HandlerProviders() {
		provider.RegisterHandlers(table)
	}
	e.table.Store(table)
	e.log.Debug("tracking handlers built", zap.Strings("keys", e.Keys()))
}

// Keys lists the registered dispatch keys, sorted.
func (e *Extractor) Keys() []string {
	table := e.table.Load()
	keys := make([]string, 0, len(table.handlers))
	for k := range table.handlers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (e *Extractor) Extract(ctx context.Context, trackingType string, u *domain.RequestURL) (domain.Payload, error) {
	key := Key(u.Method, trackingType)
	if trackingType == domain.PathTypeAPIAction {
		_, action, err := u.APIAction()
		if err != nil {
			return domain.Payload{}, fmt.Errorf("%s: %w", u.Path, err)
		}
		key = APIActionKey(u.Method, action)
	}

	h, ok := e.table.Load().handlers[key]
	if !ok {
		return domain.Payload{}, fmt.Errorf("%w: %s", domain.ErrNoHandler, key)
	}

	p, ok := h(ctx, u)
	if !ok {
		return domain.Payload{}, fmt.Errorf("%w: %s", domain.ErrEmptyPayload, key)
	}

	extras := map[string]any{domain.ExtraMethod: u.Method}
	for k, v := range p.Extras {
		extras[k] = v
	}
	p.Extras = extras
	return p, nil
}

func Key(method, trackingType string) string {
	return strings.ToLower(method) + "_" + trackingType
}

func APIActionKey(method, action string) string {
	return strings.ToLower(method) + "_" + domain.PathTypeAPIAction + "_" + action
}

var _ domain.Extractor = (*Extractor)(nil)
