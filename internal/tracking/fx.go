// Package tracking wires the request usage tracking pipeline.
package tracking

import (
	"github.com/smallbiznis/usagetrack/internal/config"
	"github.com/smallbiznis/usagetrack/internal/tracking/builtin"
	"github.com/smallbiznis/usagetrack/internal/tracking/classifier"
	"github.com/smallbiznis/usagetrack/internal/tracking/domain"
	"github.com/smallbiznis/usagetrack/internal/tracking/extension"
	"github.com/smallbiznis/usagetrack/internal/tracking/extractor"
	"github.com/smallbiznis/usagetrack/internal/tracking/filepaths"
	"github.com/smallbiznis/usagetrack/internal/tracking/identity"
	"github.com/smallbiznis/usagetrack/internal/tracking/interceptor"
	"github.com/smallbiznis/usagetrack/internal/tracking/recorder"
	"github.com/smallbiznis/usagetrack/internal/tracking/report"
	"github.com/smallbiznis/usagetrack/internal/tracking/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("tracking.service",
	fx.Provide(repository.Provide),
	fx.Provide(builtin.New),
	fx.Provide(filepaths.New),
	fx.Provide(NewRegistry),
	fx.Provide(classifier.New),
	fx.Provide(extractor.New),
	fx.Provide(identity.New),
	fx.Provide(recorder.New),
	fx.Provide(
		func(c *classifier.Classifier) domain.Classifier { return c },
		func(e *extractor.Extractor) domain.Extractor { return e },
		func(r *identity.Resolver) domain.Resolver { return r },
		func(r *recorder.Recorder) domain.Recorder { return r },
	),
	fx.Provide(interceptor.New),
	fx.Provide(report.New),
	fx.Invoke(WatchPaths),
)

// RegistryParams collects the built-in and file extensions plus anything
// provided into the "tracking_extensions" value group, registered in that
// order.
type RegistryParams struct {
	fx.In

	Log     *zap.Logger
	Builtin *builtin.Extension
	File    *filepaths.Extension
	Extra   []extension.Extension `group:"tracking_extensions"`
}

func NewRegistry(p RegistryParams) (*extension.Registry, error) {
	reg := extension.NewRegistry(p.Log)
	exts := append([]extension.Extension{p.Builtin, p.File}, p.Extra...)
	for _, e := range exts {
		if err := reg.Register(e); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// WatchPaths rebuilds the rule set and handler table whenever tracking.yml
// changes. A rule set that fails to compile leaves the previous one active.
func WatchPaths(holder *config.TrackingPathsHolder, cls *classifier.Classifier, ext *extractor.Extractor, log *zap.Logger) {
	log = log.Named("tracking.reload")
	holder.Subscribe(func(cfg config.TrackingPathsConfig) {
		if err := cls.Rebuild(); err != nil {
			log.Warn("tracking rule rebuild failed", zap.Error(err))
			return
		}
		ext.Rebuild()
		log.Info("tracking rules rebuilt", zap.Int("file_paths", len(cfg.Paths)))
	})
}
