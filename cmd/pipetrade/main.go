package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pipetrade/internal/clock"
	"github.com/smallbiznis/pipetrade/internal/config"
	"github.com/smallbiznis/pipetrade/internal/migration"
	"github.com/smallbiznis/pipetrade/internal/observability"
	"github.com/smallbiznis/pipetrade/internal/server"
	"github.com/smallbiznis/pipetrade/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,

		// Document engine and HTTP transport
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
