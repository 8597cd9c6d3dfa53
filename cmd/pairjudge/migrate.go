package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kdimtricp/pairjudge/internal/database"
)

var migrateStatus bool

func init() {
	migrateCmd.Flags().BoolVar(&migrateStatus, "status", false, "show migration status only")
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending PostgreSQL migrations",
	Long: `Apply the SQL files under database.migrations_path. SQLite schemas are
created automatically, so this only does work against PostgreSQL.`,
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, log, db, err := bootstrap()
	if err != nil {
		return err
	}
	defer log.Sync()
	defer db.Close()

	path := cfg.Database.MigrationsPath

	if !migrateStatus {
		cmd.Printf("Running migrations from %s...\n", path)
		if err := db.RunMigrations(cmd.Context(), path); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		cmd.Println("Migrations completed successfully!")
		return nil
	}

	statuses, err := database.NewMigrator(db.Conn(), db.Type(), log).Status(cmd.Context(), path)
	if err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}

	cmd.Println("Migration Status:")
	cmd.Println("=================")
	for _, s := range statuses {
		state := "pending"
		if s.Applied {
			state = "applied"
		}
		cmd.Printf("%s - %s [%s]\n", s.Version, s.Name, state)
	}
	return nil
}
