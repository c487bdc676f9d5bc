package main

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"

	"github.com/iota-uz/changeorders/migrations"
	"github.com/iota-uz/changeorders/pkg/configuration"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or inspect the embedded schema migrations",
	}
	cmd.AddCommand(
		migrateSubcommand("up", "Apply all pending migrations", goose.UpContext),
		migrateSubcommand("down", "Roll back the latest migration", goose.DownContext),
		migrateSubcommand("status", "Print the state of every migration", goose.StatusContext),
	)
	return cmd
}

type gooseFunc func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error

func migrateSubcommand(use, short string, run gooseFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := configuration.Load([]string{".env", ".env.local"})
			if err != nil {
				return err
			}
			defer conf.Unload()

			db, err := sql.Open("postgres", conf.Database.ConnectionString())
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			goose.SetBaseFS(migrations.FS)
			if err := goose.SetDialect("postgres"); err != nil {
				return err
			}
			if err := run(cmd.Context(), db, migrations.Dir); err != nil {
				return fmt.Errorf("migrate %s: %w", use, err)
			}
			return nil
		},
	}
}
