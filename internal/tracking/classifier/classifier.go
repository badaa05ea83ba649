// Package classifier maps request paths to tracking types.
package classifier

import (
	"fmt"
	"regexp"
	"sync/atomic"

	"github.com/smallbiznis/usagetrack/internal/observability/metrics"
	"github.com/smallbiznis/usagetrack/internal/tracking/domain"
	"github.com/smallbiznis/usagetrack/internal/tracking/extension"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Registry *extension.Registry
	Log      *zap.Logger
	Metrics  *metrics.TrackingMetrics `optional:"true"`
}

type rule struct {
	trackingType string
	patterns     []*regexp.Regexp
}

type ruleSet struct {
	paths *domain.Paths
	rules []rule
}

// Classifier holds an immutable rule set that is swapped whole on rebuild.
type Classifier struct {
	registry *extension.Registry
	log      *zap.Logger
	metrics  *metrics.TrackingMetrics

	current atomic.Pointer[ruleSet]
}

func New(p Params) (*Classifier, error) {
	c := &Classifier{
		registry: p.Registry,
		log:      p.Log.Named("tracking.classifier"),
		metrics:  p.Metrics,
	}
	if err := c.Rebuild(); err != nil {
		return nil, err
	}
	return c, nil
}

// Rebuild asks every PathDefiner, in registration order, for its patterns and
// swaps in the compiled result. On error the previous rule set stays active.
func (c *Classifier) Rebuild() error {
	paths := domain.NewPaths()
	for _, definer := range c.registry.PathDefiners() {
		contributed := definer.DefinePaths(paths.Clone())
		paths.Merge(contributed)
	}

	rules, err := compile(paths)
	c.metrics.ObserveReload(err)
	if err != nil {
		c.log.Error("tracking rules rejected", zap.Error(err))
		return err
	}

	c.current.Store(&ruleSet{paths: paths, rules: rules})
	c.log.Info("tracking rules built", zap.Int("types", paths.Len()))
	return nil
}

// Classify returns the first tracking type with a pattern matching path.
// path must already be stripped of leading and trailing slashes.
func (c *Classifier) Classify(path string) (string, bool) {
	set := c.current.Load()
	if set == nil {
		return "", false
	}
	for _, r := range set.rules {
		for _, re := range r.patterns {
			if re.MatchString(path) {
				c.metrics.ObserveClassification(r.trackingType)
				return r.trackingType, true
			}
		}
	}
	return "", false
}

// Paths returns a copy of the active pattern mapping.
func (c *Classifier) Paths() *domain.Paths {
	set := c.current.Load()
	if set == nil {
		return domain.NewPaths()
	}
	return set.paths.Clone()
}

func compile(paths *domain.Paths) ([]rule, error) {
	rules := make([]rule, 0, paths.Len())
	for _, trackingType := range paths.Types() {
		patterns := paths.Patterns(trackingType)
		compiled := make([]*regexp.Regexp, 0, len(patterns))
		for _, pattern := range patterns {
			// Anchored at the start only, like a prefix match.
			re, err := regexp.Compile("^(?:" + pattern + ")")
			if err != nil {
				return nil, fmt.Errorf("%w: %s %q: %v", domain.ErrInvalidPattern, trackingType, pattern, err)
			}
			compiled = append(compiled, re)
		}
		rules = append(rules, rule{trackingType: trackingType, patterns: compiled})
	}
	return rules, nil
}

var _ domain.Classifier = (*Classifier)(nil)
