package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"honkspotter/internal/db"
)

func NewMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down|version]",
		Short:     "Apply, revert or inspect database migrations",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"up", "down", "version"},
		RunE:      runMigrate,
	}
}

func parseMigrateAction(args []string) (string, error) {
	if len(args) == 0 {
		return "up", nil
	}

	action := strings.ToLower(strings.TrimSpace(args[0]))
	switch action {
	case "up", "down", "version":
		return action, nil
	default:
		return "", fmt.Errorf("unknown migrate action %q (want up, down or version)", args[0])
	}
}

func runMigrate(cmd *cobra.Command, args []string) error {
	action, err := parseMigrateAction(args)
	if err != nil {
		return err
	}

	databaseURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if databaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable is required")
	}

	migrator, err := db.NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer migrator.Close()

	switch action {
	case "down":
		if err := migrator.Down(); err != nil {
			return err
		}
		cmd.Println("Reverted one migration")
	case "version":
		version, dirty, err := migrator.Version()
		if err != nil {
			return err
		}
		cmd.Printf("version %d (dirty: %t)\n", version, dirty)
	default:
		if err := migrator.Up(); err != nil {
			return err
		}
		cmd.Println("Migrations completed successfully")
	}

	return nil
}
