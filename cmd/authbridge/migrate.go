package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/authbridge/internal/config"
	"github.com/dropDatabas3/authbridge/internal/store/pg"
	pgmigrations "github.com/dropDatabas3/authbridge/migrations/postgres"
)

func migrateCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath(*cfgPath))
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			if cfg.Storage.Driver != "postgres" {
				return fmt.Errorf("migrate requires the postgres driver (got %q)", cfg.Storage.Driver)
			}

			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := pg.NewMigrator(pgmigrations.FS, pgmigrations.Dir)
			res, err := migrator.Run(ctx, pool)
			if err != nil {
				return err
			}
			fmt.Printf("applied=%d skipped=%d duration=%s\n",
				len(res.Applied), len(res.Skipped), res.Duration)
			return nil
		},
	}
}
