package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"honkspotter/internal/auth"
	"honkspotter/internal/db"
)

const defaultSeedTimeout = 30 * time.Second

type seedConfig struct {
	email      string
	password   string
	bcryptCost int
	timeout    time.Duration
}

type seedStore interface {
	UpsertSeedUser(ctx context.Context, email, passwordHash string) error
}

// NewSeedCmd creates or resets a development account. The password skips
// the signup strength rules so the default test/test login works.
func NewSeedCmd() *cobra.Command {
	cfg := &seedConfig{}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create or reset a development user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSeed(cmd, cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.email, "email", "test@test.com", "account email")
	cmd.Flags().StringVar(&cfg.password, "password", "test", "account password")
	cmd.Flags().IntVar(&cfg.bcryptCost, "bcrypt-cost", 12, "bcrypt cost for the stored hash")
	cmd.Flags().DurationVar(&cfg.timeout, "timeout", defaultSeedTimeout, "timeout for database operations")

	return cmd
}

func runSeed(cmd *cobra.Command, cfg *seedConfig) error {
	databaseURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if databaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable is required")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.timeout)
	defer cancel()

	pool, err := db.Open(ctx, databaseURL, 2, 0)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := seedUser(ctx, auth.NewRepository(pool), auth.NewBcryptHasher(cfg.bcryptCost), cfg.email, cfg.password); err != nil {
		return err
	}

	cmd.Printf("Seeded user %s\n", strings.ToLower(strings.TrimSpace(cfg.email)))
	return nil
}

func seedUser(ctx context.Context, store seedStore, hasher auth.PasswordHasher, email, password string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return fmt.Errorf("seed user needs both --email and --password")
	}

	hash, err := hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("hash seed password: %w", err)
	}

	if err := store.UpsertSeedUser(ctx, email, hash); err != nil {
		return fmt.Errorf("upsert seed user: %w", err)
	}
	return nil
}
