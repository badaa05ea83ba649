package apikey

import (
	"github.com/smallbiznis/usagetrack/internal/apikey/cache"
	"github.com/smallbiznis/usagetrack/internal/apikey/repository"
	"github.com/smallbiznis/usagetrack/internal/apikey/service"
	"go.uber.org/fx"
)

var Module = fx.Module("apikey.service",
	fx.Provide(repository.Provide),
	fx.Provide(cache.New),
	fx.Provide(service.New),
)
