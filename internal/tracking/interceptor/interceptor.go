// Package interceptor runs the usage tracking pipeline once per request.
package interceptor

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/smallbiznis/usagetrack/internal/observability/logger"
	"github.com/smallbiznis/usagetrack/internal/observability/metrics"
	"github.com/smallbiznis/usagetrack/internal/tracking/domain"
	"github.com/smallbiznis/usagetrack/internal/tracking/extension"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	ReasonAlreadyTracked = "already_tracked"
	ReasonErrorStatus    = "error_status"
	ReasonRedirect       = "redirect"
	ReasonNotTrackable   = "not_trackable"
	ReasonAnonymous      = "anonymous"
	ReasonExtractFailed  = "extract_failed"
	ReasonEventDisabled  = "event_disabled"
	ReasonInvalidPayload = "invalid_payload"
	ReasonRecordFailed   = "record_failed"
	ReasonDuplicateID    = "duplicate_id"
	ReasonPanic          = "panic"
)

// Outcome is the terminal state of one pipeline run.
type Outcome struct {
	State        string
	Reason       string
	TrackingType string
	Record       *domain.UsageRecord
}

func (o Outcome) Recorded() bool { return o.State == metrics.TrackingStateRecorded }

// Attempted reports whether the run reached the store, successfully or not.
func (o Outcome) Attempted() bool { return o.State != metrics.TrackingStateSkipped }

type Params struct {
	fx.In

	Log        *zap.Logger
	Classifier domain.Classifier
	Resolver   domain.Resolver
	Extractor  domain.Extractor
	Recorder   domain.Recorder
	Registry   *extension.Registry
	Metrics    *metrics.TrackingMetrics `optional:"true"`
}

type Interceptor struct {
	log        *zap.Logger
	classifier domain.Classifier
	resolver   domain.Resolver
	extractor  domain.Extractor
	recorder   domain.Recorder
	registry   *extension.Registry
	metrics    *metrics.TrackingMetrics
	tracer     trace.Tracer
}

func New(p Params) *Interceptor {
	return &Interceptor{
		log:        p.Log.Named("tracking.interceptor"),
		classifier: p.Classifier,
		resolver:   p.Resolver,
		extractor:  p.Extractor,
		recorder:   p.Recorder,
		registry:   p.Registry,
		metrics:    p.Metrics,
		tracer:     otel.Tracer("usagetrack/tracking"),
	}
}

// Track runs the pipeline for a finished response. It never panics and never
// returns an error; every failure ends in a SKIPPED or FAILED outcome.
func (i *Interceptor) Track(ctx context.Context, r *http.Request, status int) (out Outcome) {
	log := logger.WithContext(ctx, i.log)

	marker := markerFrom(ctx)
	if marker == nil {
		marker = markerFrom(r.Context())
	}
	if marker == nil {
		_, marker = EnsureMarker(ctx)
	}
	if !marker.begin() {
		return i.finish(Outcome{State: metrics.TrackingStateSkipped, Reason: ReasonAlreadyTracked})
	}

	ctx, span := i.tracer.Start(ctx, "tracking.track")
	defer func() {
		if rv := recover(); rv != nil {
			log.Error("tracking pipeline panicked",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Any("panic", rv),
				zap.Stack("stack"),
			)
			out = Outcome{State: metrics.TrackingStateFailed, Reason: ReasonPanic}
		}
		marker.finish(out.Attempted())
		span.SetAttributes(
			attribute.String("tracking.state", out.State),
			attribute.String("tracking.reason", out.Reason),
			attribute.String("tracking.type", out.TrackingType),
		)
		span.End()
		out = i.finish(out)
	}()

	return i.run(ctx, log, r, status)
}

func (i *Interceptor) run(ctx context.Context, log *zap.Logger, r *http.Request, status int) Outcome {
	if status >= http.StatusBadRequest {
		return skipped(ReasonErrorStatus, "")
	}

	u := domain.NewRequestURL(r)
	trackingType, ok := i.classifier.Classify(u.Path)

	// resource downloads legitimately answer with a redirect to the file
	if isRedirect(status) && trackingType != domain.PathTypeResourceDownload {
		return skipped(ReasonRedirect, trackingType)
	}
	if !ok {
		return skipped(ReasonNotTrackable, "")
	}
	log = log.With(zap.String("tracking_type", trackingType), zap.String("url", u.String()))

	actor := i.resolver.Resolve(ctx, r)
	log = logger.WithActor(log, string(actor.Source), actor.UserID)
	if !actor.Resolved() && !i.recorder.TrackAnonymous() {
		return skipped(ReasonAnonymous, trackingType)
	}

	ev := domain.TrackEvent{TrackingType: trackingType, URL: u, Actor: actor}
	if i.registry != nil {
		ev = i.registry.BeforeTrack(ctx, ev)
	}

	payload, err := i.extractor.Extract(ctx, ev.TrackingType, ev.URL)
	if err != nil {
		log.Error("unable to extract tracking payload", zap.Error(err))
		return skipped(ReasonExtractFailed, trackingType)
	}

	rec, err := i.recorder.Record(ctx, ev.Actor, payload)
	switch {
	case errors.Is(err, domain.ErrEventDisabled):
		return skipped(ReasonEventDisabled, trackingType)
	case errors.Is(err, domain.ErrMissingTrackingType), errors.Is(err, domain.ErrMissingTrackingSubType):
		log.Error("invalid tracking payload", zap.Error(err))
		return skipped(ReasonInvalidPayload, trackingType)
	case errors.Is(err, domain.ErrDuplicateRecord):
		log.Error("usage record id already stored", zap.Error(err))
		return Outcome{State: metrics.TrackingStateFailed, Reason: ReasonDuplicateID, TrackingType: trackingType}
	case err != nil:
		log.Error("unable to record usage", zap.Error(err))
		return Outcome{State: metrics.TrackingStateFailed, Reason: ReasonRecordFailed, TrackingType: trackingType}
	}

	log.Debug("usage recorded", zap.String("record_id", rec.ID))
	return Outcome{State: metrics.TrackingStateRecorded, TrackingType: trackingType, Record: rec}
}

func (i *Interceptor) finish(out Outcome) Outcome {
	i.metrics.ObserveOutcome(out.State, out.Reason)
	return out
}

// TrackAuthEvent records a login or logout for userID. Disabled events are
// skipped.
func (i *Interceptor) TrackAuthEvent(ctx context.Context, r *http.Request, subType, userID string) (out Outcome) {
	log := logger.WithContext(ctx, i.log)
	defer func() {
		if rv := recover(); rv != nil {
			log.Error("auth event tracking panicked", zap.Any("panic", rv), zap.Stack("stack"))
			out = Outcome{State: metrics.TrackingStateFailed, Reason: ReasonPanic}
		}
		out = i.finish(out)
	}()

	if subType != domain.SubTypeLogin && subType != domain.SubTypeLogout {
		log.Error("unsupported auth event", zap.String("sub_type", subType))
		return skipped(ReasonInvalidPayload, "")
	}

	method := http.MethodPost
	if r != nil && r.Method != "" {
		method = r.Method
	}
	payload := domain.Payload{
		TrackingType:    domain.TrackingTypeUI,
		TrackingSubType: subType,
		ObjectType:      domain.ObjectTypeUser,
		ObjectID:        userID,
		Extras:          map[string]any{domain.ExtraMethod: method},
	}
	actor := domain.Actor{UserID: userID, Source: domain.ActorSourceSession}

	rec, err := i.recorder.Record(ctx, actor, payload)
	switch {
	case errors.Is(err, domain.ErrEventDisabled):
		return skipped(ReasonEventDisabled, "")
	case err != nil:
		log.Error("unable to record auth event", zap.String("sub_type", subType), zap.Error(err))
		return Outcome{State: metrics.TrackingStateFailed, Reason: ReasonRecordFailed}
	}
	return Outcome{State: metrics.TrackingStateRecorded, Record: rec}
}

func skipped(reason, trackingType string) Outcome {
	return Outcome{State: metrics.TrackingStateSkipped, Reason: reason, TrackingType: trackingType}
}

func isRedirect(status int) bool {
	return status >= http.StatusMultipleChoices && status < http.StatusBadRequest
}

func (o Outcome) String() string {
	if o.Reason == "" {
		return o.State
	}
	return fmt.Sprintf("%s:%s", o.State, o.Reason)
}
