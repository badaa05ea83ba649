package filepaths

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/smallbiznis/usagetrack/internal/config"
	"github.com/smallbiznis/usagetrack/internal/tracking/domain"
	"github.com/smallbiznis/usagetrack/internal/tracking/extension"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type registrar map[string]extension.Handler

func (r registrar) Handle(method, trackingType string, h extension.Handler) {
	r[method+"_"+trackingType] = h
}

func (r registrar) HandleAPIAction(method, action string, h extension.Handler) {
	r[method+"_api_action_"+action] = h
}

func holderWith(t *testing.T, paths ...config.TrackingPath) *config.TrackingPathsHolder {
	t.Helper()
	cfg := config.Config{Tracking: config.TrackingConfig{PathsFile: "tracking", PathsDirs: []string{t.TempDir()}}}
	holder, err := config.NewTrackingPathsHolder(cfg, nil)
	require.NoError(t, err)
	holder.Set(config.TrackingPathsConfig{Paths: paths})
	return holder
}

func TestDefinePaths_AddsFileEntries(t *testing.T) {
	ext := New(holderWith(t,
		config.TrackingPath{Type: "showcase", Patterns: []string{"^showcase/[^/]+$"}},
		config.TrackingPath{Type: "dataset", Patterns: []string{"^ds/[^/]+$"}},
	))

	current := domain.NewPaths()
	current.Add("dataset", "^dataset/[^/]+$")
	out := ext.DefinePaths(current)

	assert.Equal(t, []string{"dataset", "showcase"}, out.Types())
	assert.Equal(t, []string{"^dataset/[^/]+$", "^ds/[^/]+$"}, out.Patterns("dataset"))
}

func TestRegisterHandlers(t *testing.T) {
	ext := New(holderWith(t,
		config.TrackingPath{Type: "showcase", Patterns: []string{"^showcase/[^/]+$"}, TrackingType: "ui", SubType: "show", ObjectType: "showcase"},
		config.TrackingPath{Type: "harvest", Patterns: []string{"^harvest$"}, Methods: []string{"GET", "POST"}, TrackingType: "ui", SubType: "search", ObjectType: "harvest_source", ObjectFrom: "query:source"},
		config.TrackingPath{Type: "about", Patterns: []string{"^about$"}, TrackingType: "ui", SubType: "home"},
		config.TrackingPath{Type: "patterns_only", Patterns: []string{"^x$"}},
	))

	r := registrar{}
	ext.RegisterHandlers(r)
	assert.Len(t, r, 4)

	p, ok := r["GET_showcase"](context.Background(), domain.NewRequestURL(httptest.NewRequest("GET", "/showcase/s-1", nil)))
	require.True(t, ok)
	assert.Equal(t, domain.Payload{TrackingType: "ui", TrackingSubType: "show", ObjectType: "showcase", ObjectID: "s-1"}, p)

	p, ok = r["POST_harvest"](context.Background(), domain.NewRequestURL(httptest.NewRequest("POST", "/harvest?source=src-9", nil)))
	require.True(t, ok)
	assert.Equal(t, "src-9", p.ObjectID)

	p, ok = r["GET_about"](context.Background(), domain.NewRequestURL(httptest.NewRequest("GET", "/about", nil)))
	require.True(t, ok)
	assert.Empty(t, p.ObjectID)
	assert.Empty(t, p.ObjectType)
}
