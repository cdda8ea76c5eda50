package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/smallbiznis/staybook/internal/config"
	"github.com/smallbiznis/staybook/internal/migration"
	"github.com/smallbiznis/staybook/internal/observability"
	"github.com/smallbiznis/staybook/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the postgres schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(func(conn *sql.DB) error {
				if err := migration.RunMigrations(conn); err != nil {
					return err
				}
				fmt.Println("migrations applied")
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(func(conn *sql.DB) error {
				version, dirty, err := migration.Version(conn)
				if err != nil {
					return err
				}
				fmt.Printf("version %d (dirty=%t)\n", version, dirty)
				return nil
			})
		},
	})

	var steps int
	rollback := &cobra.Command{
		Use:   "rollback",
		Short: "Revert the most recent migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(func(conn *sql.DB) error {
				if err := migration.Rollback(conn, steps); err != nil {
					return err
				}
				fmt.Printf("rolled back %d migration(s)\n", steps)
				return nil
			})
		},
	}
	rollback.Flags().IntVar(&steps, "steps", 1, "number of migrations to revert")
	cmd.AddCommand(rollback)

	return cmd
}

// withDatabase starts only the config, logging and database modules.
func withDatabase(fn func(*sql.DB) error) error {
	var conn *gorm.DB
	app := fx.New(
		fx.NopLogger,
		config.Module,
		observability.Module,
		db.Module,
		fx.Populate(&conn),
	)
	if err := app.Err(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		_ = app.Stop(stopCtx)
	}()

	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return fn(sqlDB)
}
