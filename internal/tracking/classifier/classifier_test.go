package classifier

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/usagetrack/internal/observability/metrics"
	"github.com/smallbiznis/usagetrack/internal/tracking/builtin"
	"github.com/smallbiznis/usagetrack/internal/tracking/domain"
	"github.com/smallbiznis/usagetrack/internal/tracking/extension"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type pathsExt struct {
	name  string
	paths func(current *domain.Paths) *domain.Paths
}

func (p *pathsExt) Name() string { return p.name }

func (p *pathsExt) DefinePaths(current *domain.Paths) *domain.Paths { return p.paths(current) }

func newClassifier(t *testing.T, exts ...extension.Extension) (*Classifier, *prometheus.Registry) {
	t.Helper()
	reg := extension.NewRegistry(zap.NewNop())
	require.NoError(t, reg.Register(builtin.New(builtin.Params{Log: zap.NewNop()})))
	for _, e := range exts {
		require.NoError(t, reg.Register(e))
	}
	promReg := prometheus.NewRegistry()
	m := metrics.NewTrackingMetrics(promReg, metrics.Config{})
	c, err := New(Params{Registry: reg, Log: zap.NewNop(), Metrics: m})
	require.NoError(t, err)
	return c, promReg
}

func TestClassify_BuiltinPaths(t *testing.T) {
	c, _ := newClassifier(t)

	cases := []struct {
		path string
		want string
	}{
		{"", "home"},
		{"organization", "organization_home"},
		{"organization/my-org", "organization"},
		{"dataset", "dataset_home"},
		{"dataset/my-data", "dataset"},
		{"dataset/my-data/resource/abc", "resource"},
		{"dataset/my-data/resource/abc/download", "resource_download"},
		{"dataset/pkg/resource/res123/download/report.csv", "resource_download"},
		{"group", "group_home"},
		{"group/g1", "group"},
		{"api/action/package_show", "api_action"},
		{"api/3/action/package_search", "api_action"},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			got, ok := c.Classify(tc.path)
			require.True(t, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestClassify_Misses(t *testing.T) {
	c, _ := newClassifier(t)

	for _, path := range []string{
		"about",
		"dataset/a/b",
		"dataset/my-data/resource/abc/edit",
		"api/v3/action/package_show",
		"api/33/action/package_show",
		"api/action",
		"Dataset/x",
	} {
		_, ok := c.Classify(path)
		assert.False(t, ok, path)
	}
}

func TestClassify_ContributedPatternsMergeAfterBuiltin(t *testing.T) {
	c, _ := newClassifier(t,
		&pathsExt{name: "showcase", paths: func(current *domain.Paths) *domain.Paths {
			out := domain.NewPaths()
			out.Add("showcase", `^showcase/[^/]+$`)
			out.Add("dataset", `^ds/[^/]+$`)
			return out
		}},
	)

	got, ok := c.Classify("showcase/s1")
	require.True(t, ok)
	assert.Equal(t, "showcase", got)

	got, ok = c.Classify("ds/x")
	require.True(t, ok)
	assert.Equal(t, "dataset", got)

	assert.Equal(t, []string{`^dataset/[^/]+$`, `^ds/[^/]+$`}, c.Paths().Patterns("dataset"))
	assert.Equal(t, "showcase", c.Paths().Types()[c.Paths().Len()-1])
}

func TestClassify_DefinersSeeCopy(t *testing.T) {
	c, _ := newClassifier(t,
		&pathsExt{name: "mutator", paths: func(current *domain.Paths) *domain.Paths {
			require.Equal(t, 10, current.Len())
			current.Add("home", `^index$`)
			return current
		}},
	)

	got, ok := c.Classify("index")
	require.True(t, ok)
	assert.Equal(t, "home", got)
}

func TestRebuild_KeepsPreviousRulesOnError(t *testing.T) {
	broken := false
	c, reg := newClassifier(t,
		&pathsExt{name: "toggle", paths: func(current *domain.Paths) *domain.Paths {
			if broken {
				current.Add("bad", `^(unclosed`)
			}
			return current
		}},
	)

	broken = true
	err := c.Rebuild()
	assert.ErrorIs(t, err, domain.ErrInvalidPattern)

	got, ok := c.Classify("dataset/x")
	require.True(t, ok)
	assert.Equal(t, "dataset", got)

	families, err := reg.Gather()
	require.NoError(t, err)
	results := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != "usagetrack_tracking_rule_reloads_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "result" {
					results[label.GetValue()] = metric.GetCounter().GetValue()
				}
			}
		}
	}
	assert.Equal(t, map[string]float64{"ok": 1, "error": 1}, results)
}
