// cmd/api/migrate.go

package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"regionalert/internal/adapter/storage"
	"regionalert/internal/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the PostGIS schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if cfg.Database.Driver != config.DriverPostgres {
			return eris.Errorf("migrate: nothing to migrate for the %s driver", cfg.Database.Driver)
		}

		log := zap.L().With(zap.String("command", "migrate"))

		pool, err := initDatabase(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := storage.Migrate(ctx, pool, log); err != nil {
			return err
		}
		log.Info("schema applied")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
