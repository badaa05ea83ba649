package logger

import (
	"context"
	"testing"

	obscontext "github.com/smallbiznis/usagetrack/internal/observability/context"
	"github.com/smallbiznis/usagetrack/pkg/telemetry/correlation"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithContext_OmitsMissingFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	WithContext(context.Background(), base).Info("bare")

	ctx := obscontext.WithRequestID(context.Background(), "req-9")
	ctx = obscontext.WithActor(ctx, "token", "user-1")
	ctx = correlation.ContextWithCorrelationID(ctx, "cid-1")
	WithContext(ctx, base).Info("full")

	entries := logs.All()
	assert.Empty(t, entries[0].ContextMap())
	assert.Equal(t, map[string]any{
		"request_id":     "req-9",
		"actor_type":     "token",
		"actor_id":       "user-1",
		"correlation_id": "cid-1",
	}, entries[1].ContextMap())
}

func TestWithActor(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)

	WithActor(zap.New(core), "anonymous", "").Info("x")

	assert.Equal(t, map[string]any{"actor_type": "anonymous"}, logs.All()[0].ContextMap())
	assert.Nil(t, WithActor(nil, "token", "u"))
}
