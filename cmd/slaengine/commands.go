package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bissquit/incident-sla/internal/app"
	"github.com/bissquit/incident-sla/internal/config"
	"github.com/bissquit/incident-sla/internal/domain"
	"github.com/bissquit/incident-sla/internal/identity/jwt"
	"github.com/bissquit/incident-sla/internal/pkg/postgres"
	"github.com/bissquit/incident-sla/internal/version"
)

const shutdownTimeout = 45 * time.Second

var configPath string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "slaengine",
		Short:         "slaengine computes incident SLA targets and escalates breaches",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", os.Getenv("SLAENGINE_CONFIG"), "config file path")

	root.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newScanCmd(),
		newTokenCmd(),
		newVersionCmd(),
	)
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the breach scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			a, err := app.New(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				errCh <- a.Run()
			}()

			select {
			case err := <-errCh:
				if err != nil {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
					defer cancel()
					return errors.Join(err, a.Shutdown(shutdownCtx))
				}
				return nil
			case <-ctx.Done():
				slog.Info("received shutdown signal")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return a.Shutdown(shutdownCtx)
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return errors.New("database.url is not set")
			}
			if err := postgres.Migrate(cfg.Database.URL); err != nil {
				return err
			}
			slog.Info("migrations applied")
			return nil
		},
	}
}

func newScanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Run one breach scan pass and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			a, err := app.New(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			result, scanErr := a.Scanner().Scan(ctx)

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := a.Shutdown(shutdownCtx); err != nil {
				slog.Warn("shutdown failed", "error", err)
			}

			if scanErr != nil {
				return scanErr
			}
			fmt.Fprintf(cmd.OutOrStdout(), "scanned=%d breaches=%d warnings=%d errors=%d duration=%s\n",
				result.Scanned, result.Breaches, result.Warnings, result.Errors, result.Duration)
			return nil
		},
	}
}

func newTokenCmd() *cobra.Command {
	var (
		subject string
		role    string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			r := domain.Role(role)
			if !r.IsValid() {
				return fmt.Errorf("unknown role %q", role)
			}

			auth, err := jwt.NewAuthenticator(jwt.Config{
				SecretKey:     cfg.JWT.SecretKey,
				Issuer:        cfg.JWT.Issuer,
				TokenDuration: cfg.JWT.TokenDuration,
			})
			if err != nil {
				return err
			}

			token, err := auth.IssueToken(subject, r)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "admin", "token subject")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleAdmin), "token role (operator, admin)")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s (commit %s, built %s)\n",
				version.Version, version.GitCommit, version.BuildDate)
		},
	}
}
