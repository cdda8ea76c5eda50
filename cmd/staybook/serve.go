package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/staybook/internal/clock"
	"github.com/smallbiznis/staybook/internal/config"
	"github.com/smallbiznis/staybook/internal/migration"
	"github.com/smallbiznis/staybook/internal/observability"
	"github.com/smallbiznis/staybook/internal/server"
	"github.com/smallbiznis/staybook/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func serveCmd() *cobra.Command {
	var nodeID int64

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service for one role",
		Long: `Run the booking HTTP service. The role decides which brands this
process may write bookings for; the other role answers 409
WRITER_LOCK_VIOLATION for them.

Examples:
  staybook serve --role adapter
  SERVICE_ROLE=hub staybook serve --node-id 2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fx.New(
				config.Module,
				observability.Module,
				fx.Provide(func() (*snowflake.Node, error) {
					return snowflake.NewNode(nodeID)
				}),
				db.Module,
				migration.Module,
				clock.Module,
				server.Module,
			)
			if err := app.Err(); err != nil {
				return err
			}
			app.Run()
			return nil
		},
	}

	cmd.Flags().Int64Var(&nodeID, "node-id", 1, "snowflake node id, unique per process")

	return cmd
}
