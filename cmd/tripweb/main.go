// Package main is the entry point for the trip tracker web client.
// Its sole responsibility is wiring dependencies together and starting the
// server or the migration commands. No business logic belongs here.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx" driver for database/sql
	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"

	"github.com/pkordes/trip-tracker/internal/auth"
	"github.com/pkordes/trip-tracker/internal/backend"
	"github.com/pkordes/trip-tracker/internal/backend/memory"
	"github.com/pkordes/trip-tracker/internal/backend/postgres"
	"github.com/pkordes/trip-tracker/internal/backend/supabase"
	"github.com/pkordes/trip-tracker/internal/config"
	"github.com/pkordes/trip-tracker/internal/handler"
	"github.com/pkordes/trip-tracker/migrations"
)

// Version is overridden at build time with -ldflags "-X main.Version=...".
var Version = "dev"

const sweepInterval = time.Minute

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "tripweb",
		Short:         "Trip tracker web client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(serveCmd(), migrateCmd(), &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tripweb version %s\n", Version)
		},
	})
	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the web client",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

// newLogger builds the JSON logger for level; unknown levels fall back to info.
func newLogger(level string) *slog.Logger {
	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(level)); err != nil {
		logLevel = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
}

func serve(ctx context.Context, cfg config.Config) error {
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	factory, cleanup, err := newBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	server := handler.NewServer(factory, handler.Options{
		SessionTTL:     cfg.SessionTTL,
		CookieSecure:   cfg.CookieSecure,
		CORSOrigins:    cfg.CORSOrigins,
		MaxBodyBytes:   cfg.MaxBodyBytes,
		SignInRate:     cfg.SignInRate,
		SignInBurst:    cfg.SignInBurst,
		TrustedProxies: cfg.TrustedProxies,
		MaxSessions:    cfg.MaxSessions,
	}, logger)
	defer server.Close()
	go server.Sweep(ctx, sweepInterval)

	// Explicit timeouts prevent slowloris and resource exhaustion attacks.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", srv.Addr, "backend", cfg.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}
	logger.Info("shutting down server")

	// In-flight requests get up to 15 seconds to complete.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

// newBackend builds the client factory selected by cfg.Backend. cleanup
// releases whatever the backend holds open.
func newBackend(ctx context.Context, cfg config.Config, logger *slog.Logger) (backend.Factory, func(), error) {
	switch cfg.Backend {
	case config.BackendSupabase:
		svc, err := supabase.New(supabase.Config{
			URL:     cfg.SupabaseURL,
			AnonKey: cfg.SupabaseAnonKey,
			Logger:  logger,
		})
		if err != nil {
			return nil, nil, err
		}
		return svc.Factory(), func() {}, nil

	case config.BackendPostgres:
		if cfg.MigrateOnStart {
			if err := migrateUp(ctx, cfg.DatabaseURL, logger); err != nil {
				return nil, nil, err
			}
		}

		tokens, err := auth.NewTokenService(cfg.TokenKey, cfg.SessionTTL)
		if err != nil {
			return nil, nil, fmt.Errorf("TOKEN_KEY: %w", err)
		}

		// New() does not open connections immediately; the ping does.
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("create database pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("connect to database: %w", err)
		}
		logger.Info("database connection established")
		return postgres.New(pool, tokens, logger).Factory(), pool.Close, nil

	case config.BackendMemory:
		logger.Warn("using the in-memory backend; data is lost on exit")
		return memory.NewStore().Factory(), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the Postgres schema (DATABASE_URL)",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(cmd *cobra.Command, _ []string) error {
				dsn, err := config.DatabaseURL()
				if err != nil {
					return err
				}
				return migrateUp(cmd.Context(), dsn, newLogger("info"))
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withProvider(cmd.Context(), func(p *goose.Provider) error {
					res, err := p.Down(cmd.Context())
					if err != nil {
						return fmt.Errorf("migrate down: %w", err)
					}
					fmt.Fprintln(cmd.OutOrStdout(), res)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show the state of every migration",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withProvider(cmd.Context(), func(p *goose.Provider) error {
					statuses, err := p.Status(cmd.Context())
					if err != nil {
						return fmt.Errorf("migrate status: %w", err)
					}
					for _, s := range statuses {
						applied := "pending"
						if s.State == goose.StateApplied {
							applied = s.AppliedAt.Format(time.RFC3339)
						}
						fmt.Fprintf(cmd.OutOrStdout(), "%05d  %-40s  %s\n", s.Source.Version, s.Source.Path, applied)
					}
					return nil
				})
			},
		},
	)
	return cmd
}

// withProvider opens DATABASE_URL and runs fn with a goose provider on it.
func withProvider(ctx context.Context, fn func(*goose.Provider) error) error {
	dsn, err := config.DatabaseURL()
	if err != nil {
		return err
	}
	return openProvider(ctx, dsn, fn)
}

func openProvider(ctx context.Context, dsn string, fn func(*goose.Provider) error) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}

	p, err := migrations.NewProvider(db)
	if err != nil {
		return err
	}
	return fn(p)
}

func migrateUp(ctx context.Context, dsn string, logger *slog.Logger) error {
	return openProvider(ctx, dsn, func(p *goose.Provider) error {
		results, err := p.Up(ctx)
		if err != nil {
			return fmt.Errorf("migrate up: %w", err)
		}
		for _, r := range results {
			logger.Info("migration applied", "version", r.Source.Version, "file", r.Source.Path, "duration", r.Duration)
		}
		if len(results) == 0 {
			logger.Info("schema up to date")
		}
		return nil
	})
}
