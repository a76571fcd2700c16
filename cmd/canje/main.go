package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/andinolabs/canje/internal/clock"
	"github.com/andinolabs/canje/internal/config"
	"github.com/andinolabs/canje/internal/migration"
	"github.com/andinolabs/canje/internal/observability"
	"github.com/andinolabs/canje/internal/scheduler"
	"github.com/andinolabs/canje/internal/server"
	"github.com/andinolabs/canje/pkg/db"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Domain services and HTTP surface
		server.Module,
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
