package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kdimtricp/pairjudge/internal/database"
	"github.com/kdimtricp/pairjudge/internal/storage"
)

var assumeYes bool

func init() {
	resetCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "skip the confirmation prompt")
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Seed groups, items and weights from the configuration",
	Long: `Seed the database from the configuration file. Does nothing when the
database has already been initialized; use reset to start over.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSetup(cmd, false)
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete every respondent and judgment and re-seed",
	Long: `Wipe all data, including registered users and their comparisons, and
seed the database again from the configuration file.

Examples:
  # Reset without prompting
  pairjudge reset --yes`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSetup(cmd, true)
	},
}

func runSetup(cmd *cobra.Command, reset bool) error {
	cfg, log, db, err := bootstrap()
	if err != nil {
		return err
	}
	defer log.Sync()
	defer db.Close()

	images, err := storage.NewLocalStorage(cfg.Images.Directory)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	setup := database.NewSetup(db, images)

	if !reset {
		ok, err := setup.IsInitialized(cmd.Context())
		if err != nil {
			return err
		}
		if ok {
			cmd.Println("Database already initialized. Use `pairjudge reset` to start over.")
			return nil
		}
	} else if !assumeYes && !confirm(cmd, "This deletes every user and judgment. Continue? [y/N] ") {
		cmd.Println("Aborted.")
		return nil
	}

	if err := setup.Exec(cmd.Context(), cfg); err != nil {
		return err
	}
	cmd.Printf("Seeded %d group(s) with %s weights.\n", len(cfg.Comparison.Groups), cfg.Comparison.WeightConfiguration)
	return nil
}

func confirm(cmd *cobra.Command, prompt string) bool {
	cmd.Print(prompt)
	answer, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && answer == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}
