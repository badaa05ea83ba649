package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/usagetrack/internal/config"
	"github.com/smallbiznis/usagetrack/internal/migration"
	"github.com/smallbiznis/usagetrack/internal/observability"
	"github.com/smallbiznis/usagetrack/internal/server"
	"github.com/smallbiznis/usagetrack/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		server.Module,
	)
	app.Run()
}

// RegisterSnowflake builds the id generator for usage records.
func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
