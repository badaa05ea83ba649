package extension

import (
	"context"
	"fmt"
	"sync"

	"github.com/smallbiznis/usagetrack/internal/tracking/domain"
	"go.uber.org/zap"
)

// Registry holds extensions in registration order with per-hook caches.
type Registry struct {
	mu         sync.RWMutex
	extensions []Extension
	log        *zap.Logger

	pathDefiners     []PathDefiner
	handlerProviders []HandlerProvider
	beforeTrackers   []BeforeTracker
	beforeSavers     []BeforeSaver
	afterSavers      []AfterSaver
}

func NewRegistry(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{log: log.Named("tracking.extension")}
}

// Register adds an extension and caches the hooks it implements.
func (r *Registry) Register(e Extension) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.extensions {
		if existing.Name() == e.Name() {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateExtension, e.Name())
		}
	}
	r.extensions = append(r.extensions, e)

	hooks := make([]string, 0, 5)
	if v, ok := e.(PathDefiner); ok {
		r.pathDefiners = append(r.pathDefiners, v)
		hooks = append(hooks, "define_paths")
	}
	if v, ok := e.(HandlerProvider); ok {
		r.handlerProviders = append(r.handlerProviders, v)
		hooks = append(hooks, "handlers")
	}
	if v, ok := e.(BeforeTracker); ok {
		r.beforeTrackers = append(r.beforeTrackers, v)
		hooks = append(hooks, "before_track")
	}
	if v, ok := e.(BeforeSaver); ok {
		r.beforeSavers = append(r.beforeSavers, v)
		hooks = append(hooks, "before_track_save")
	}
	if v, ok := e.(AfterSaver); ok {
		r.afterSavers = append(r.afterSavers, v)
		hooks = append(hooks, "after_track_save")
	}

	r.log.Info("tracking extension registered", zap.String("name", e.Name()), zap.Strings("hooks", hooks))
	return nil
}

func (r *Registry) List() []Extension {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Extension(nil), r.extensions...)
}

func (r *Registry) PathDefiners() []PathDefiner {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]PathDefiner(nil), r.pathDefiners...)
}

func (r *Registry) HandlerProviders() []HandlerProvider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]HandlerProvider(nil), r.handlerProviders...)
}

// BeforeTrack runs every BeforeTracker in registration order.
func (r *Registry) BeforeTrack(ctx context.Context, ev domain.TrackEvent) domain.TrackEvent {
	r.mu.RLock()
	hooks := r.beforeTrackers
	r.mu.RUnlock()

	for _, h := range hooks {
		ev = h.BeforeTrack(ctx, ev)
	}
	return ev
}

// BeforeSave runs every BeforeSaver in registration order.
func (r *Registry) BeforeSave(ctx context.Context, p domain.Payload) domain.Payload {
	r.mu.RLock()
	hooks := r.beforeSavers
	r.mu.RUnlock()

	for _, h := range hooks {
		p = h.BeforeSave(ctx, p)
	}
	return p
}

// AfterSave notifies every AfterSaver. A failing or panicking hook is logged
// and does not stop the others.
func (r *Registry) AfterSave(ctx context.Context, rec *domain.UsageRecord) {
	r.mu.RLock()
	hooks := r.afterSavers
	r.mu.RUnlock()

	for _, h := range hooks {
		if err := r.safeAfterSave(ctx, h, rec); err != nil {
			r.log.Warn("after_track_save hook failed",
				zap.String("extension", h.Name()),
				zap.String("record_id", rec.ID),
				zap.Error(err),
			)
		}
	}
}

func (r *Registry) safeAfterSave(ctx context.Context, h AfterSaver, rec *domain.UsageRecord) (err error) {
	defer func() {
		if rv := recover(); rv != nil {
			err = fmt.Errorf("panic: %v", rv)
		}
	}()
	return h.AfterSave(ctx, rec)
}
