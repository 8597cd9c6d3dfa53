// Package main implements the pairjudge command: the HTTP server plus the
// operator commands that seed and migrate its database.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kdimtricp/pairjudge/internal/config"
	"github.com/kdimtricp/pairjudge/internal/database"
	"github.com/kdimtricp/pairjudge/internal/platform/logger"
)

var (
	configPath string
	envFile    string
	version    = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "pairjudge",
	Short: "Pairwise comparative judgment server",
	Long: `pairjudge serves pairs of items to registered respondents, records which
one they prefer and paces them through cycles of judgments.

The deployment is described by a YAML file. Values can be overridden with
PAIRJUDGE_* environment variables, for example PAIRJUDGE_SERVER_PORT.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the deployment configuration")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional file of PAIRJUDGE_* overrides")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(migrateCmd)
}

// bootstrap loads the configuration and opens the logger and database shared
// by every subcommand. The caller closes the database and syncs the logger.
func bootstrap() (*config.Config, *logger.Logger, *database.DB, error) {
	// Variables already set in the environment win over the file.
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, nil, nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}

	log, err := logger.New(logger.Options{
		Mode:     cfg.Logging.Mode,
		Level:    cfg.Logging.Level,
		Redact:   cfg.Logging.Redact,
		HashSalt: cfg.Logging.HashSalt,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}

	db, err := database.NewDB(dbConfig(cfg.Database), log)
	if err != nil {
		log.Sync()
		return nil, nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return cfg, log, db, nil
}

func dbConfig(c config.DatabaseConfig) database.Config {
	return database.Config{
		Type:       c.Type,
		Host:       c.Host,
		Port:       c.Port,
		User:       c.User,
		Password:   c.Password,
		Name:       c.Name,
		SQLitePath: c.SQLitePath,
	}
}
