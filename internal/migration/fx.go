package migration

import (
	"github.com/smallbiznis/usagetrack/internal/config"
	"github.com/smallbiznis/usagetrack/internal/tracking/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(Migrate),
)

// Migrate creates the tracker's own tables. Postgres uses the versioned SQL
// migrations; other dialects fall back to AutoMigrate. Host catalog, token
// and session tables are never touched.
func Migrate(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
	log = log.Named("migration")
	if cfg.DBType != "postgres" {
		log.Info("auto migrating tracking tables", zap.String("type", cfg.DBType))
		return conn.AutoMigrate(&domain.UsageRecord{})
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	version, err := RunMigrations(sqlDB)
	if err != nil {
		return err
	}
	log.Info("migrations applied", zap.Uint("version", version), zap.String("table", MigrationsTable))
	return nil
}
