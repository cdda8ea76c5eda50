package main

import (
	"os"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/staybook/internal/clock"
	"github.com/smallbiznis/staybook/internal/config"
	"github.com/smallbiznis/staybook/internal/migration"
	"github.com/smallbiznis/staybook/internal/observability"
	"github.com/smallbiznis/staybook/internal/server"
	"github.com/smallbiznis/staybook/internal/writerlock"
	"github.com/smallbiznis/staybook/pkg/db"
	"go.uber.org/fx"
)

// The hub binary always runs as the hub role, whatever SERVICE_ROLE says.
func main() {
	if err := os.Setenv("SERVICE_ROLE", string(writerlock.RoleHub)); err != nil {
		panic(err)
	}

	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		server.Module,
	)
	app.Run()
}

// Adapter and hub use distinct snowflake nodes so their row ids never collide.
func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}
