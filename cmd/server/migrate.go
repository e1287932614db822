package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rpattn/restfilter/internal/config"
	"github.com/rpattn/restfilter/internal/db"
)

var migrateSteps int

// migrateCmd applies or rolls back the SQL migrations
var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down]",
	Short:     "apply or roll back database migrations",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{string(db.MigrateUp), string(db.MigrateDown)},
	RunE: func(_ *cobra.Command, args []string) error {
		if cfg.Driver != config.DriverPostgres {
			return fmt.Errorf("migrate requires the postgres driver, configured driver is %s", cfg.Driver)
		}
		direction := db.MigrateUp
		if len(args) == 1 {
			direction = db.MigrationDirection(args[0])
		}
		return db.RunMigrations(cfg.Database, cfg.MigrationsPath, direction, migrateSteps)
	},
}

func init() {
	migrateCmd.Flags().IntVar(&migrateSteps, "steps", 0, "number of migrations to apply, 0 for all")
}
