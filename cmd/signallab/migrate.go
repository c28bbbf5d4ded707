package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"signal-replay-lab/internal/storage/migrations"
	pgstore "signal-replay-lab/internal/storage/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply PostgreSQL and ClickHouse schema migrations",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer log.Sync()

	if cfg.Storage.UseMemory {
		log.Info("in-memory storage needs no migrations")
		return nil
	}

	pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()

	applied, err := migrations.RunPostgresMigrations(ctx, pool)
	if err != nil {
		return err
	}
	log.Info("postgres migrations applied", zap.Strings("files", applied))

	conn, err := migrations.RunClickhouseMigrations(ctx, cfg.Storage.ClickHouseDSN)
	if err != nil {
		return err
	}
	defer conn.Close()
	log.Info("clickhouse migrations applied")

	fmt.Println("migrations complete")
	return nil
}
