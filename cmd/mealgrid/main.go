package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/mealgrid/mealgrid/internal/clock"
	"github.com/mealgrid/mealgrid/internal/config"
	"github.com/mealgrid/mealgrid/internal/migration"
	"github.com/mealgrid/mealgrid/internal/observability"
	"github.com/mealgrid/mealgrid/internal/scheduler"
	"github.com/mealgrid/mealgrid/internal/server"
	"github.com/mealgrid/mealgrid/pkg/db"
	"github.com/mealgrid/mealgrid/pkg/log"
)

func main() {
	app := fx.New(
		config.Module,
		log.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
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
