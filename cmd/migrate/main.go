package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vladislavdragonenkov/orderstore/internal/storage/postgres"
)

const (
	defaultTimeout = 30 * time.Second
	envPostgresDSN = "ORDERS_POSTGRES_DSN"
)

var errDSNRequired = errors.New(envPostgresDSN + " (or --dsn) is required")

type migrateOptions struct {
	dsn       string
	timeout   time.Duration
	upSteps   int
	downSteps int
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newRootCmd собирает CLI: migrate up|down|status.
func newRootCmd() *cobra.Command {
	opts := &migrateOptions{}

	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Apply or roll back order store schema migrations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.dsn, "dsn", "", "PostgreSQL DSN (fallback: "+envPostgresDSN+")")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", defaultTimeout, "overall timeout of the command")

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd.Context(), opts, func(ctx context.Context, store *postgres.Store) error {
				if err := store.MigrateUp(ctx, opts.upSteps); err != nil {
					return fmt.Errorf("migrate up failed: %w", err)
				}
				return printVersion(ctx, cmd.OutOrStdout(), store, "migrate up ok")
			})
		},
	}
	up.Flags().IntVar(&opts.upSteps, "steps", 0, "number of migrations to apply (0 = all)")

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back applied migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd.Context(), opts, func(ctx context.Context, store *postgres.Store) error {
				if err := store.MigrateDown(ctx, opts.downSteps); err != nil {
					return fmt.Errorf("migrate down failed: %w", err)
				}
				return printVersion(ctx, cmd.OutOrStdout(), store, "migrate down ok")
			})
		},
	}
	down.Flags().IntVar(&opts.downSteps, "steps", 1, "number of migrations to roll back")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show state of every embedded migration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd.Context(), opts, func(ctx context.Context, store *postgres.Store) error {
				states, err := store.Migrations(ctx)
				if err != nil {
					return fmt.Errorf("migration status failed: %w", err)
				}
				out := cmd.OutOrStdout()
				for _, st := range states {
					state := "pending"
					if st.Applied {
						state = "applied"
					}
					_, _ = fmt.Fprintf(out, "%05d  %-8s %s\n", st.Version, state, filepath.Base(st.Name))
				}
				return printVersion(ctx, out, store, "migration status")
			})
		},
	}

	root.AddCommand(up, down, status)
	return root
}

// resolveDSN берёт DSN из флага или окружения.
func resolveDSN(flagValue string, lookup func(string) (string, bool)) (string, error) {
	if dsn := strings.TrimSpace(flagValue); dsn != "" {
		return dsn, nil
	}
	if v, ok := lookup(envPostgresDSN); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v), nil
	}
	return "", errDSNRequired
}

func withStore(ctx context.Context, opts *migrateOptions, fn func(ctx context.Context, store *postgres.Store) error) error {
	dsn, err := resolveDSN(opts.dsn, os.LookupEnv)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	store, err := postgres.Open(ctx, dsn)
	if err != nil {
		return fmt.Errorf("open postgres store: %w", err)
	}
	defer store.Close()

	return fn(ctx, store)
}

func printVersion(ctx context.Context, out io.Writer, store *postgres.Store, prefix string) error {
	version, count, err := store.MigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("migration status failed: %w", err)
	}
	_, err = fmt.Fprintf(out, "%s: version=%d applied=%d\n", prefix, version, count)
	return err
}
