// Package main is the entry point for the asset management server. It loads
// configuration, establishes database connections, runs migrations, wires
// together all plugins, and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/glassyams/ams/internal/app"
	"github.com/glassyams/ams/internal/config"
	"github.com/glassyams/ams/internal/database"
	"github.com/glassyams/ams/internal/plugins/auth"
)

func main() {
	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	// Configure structured logging based on environment.
	setupLogging(cfg)

	slog.Info("starting "+cfg.AppName,
		slog.String("env", cfg.Env),
		slog.Int("port", cfg.Port),
	)

	// Startup waits (connection retries) and the server both stop on
	// SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Connect to MariaDB ---
	db, err := database.NewMariaDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("failed to connect to MariaDB", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()
	slog.Info("connected to MariaDB")

	// --- Run Migrations ---
	if err := database.RunMigrations(db, cfg.Migrations); err != nil {
		slog.Error("failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}

	// --- Connect to Redis ---
	rdb, err := database.NewRedis(ctx, cfg.Redis)
	if err != nil {
		slog.Error("failed to connect to Redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = rdb.Close() }()
	slog.Info("connected to Redis")

	// --- Create Application ---
	application := app.New(cfg, db, rdb)

	// Register all routes and get back the services startup still needs.
	services := application.RegisterRoutes()

	// --- First-Run Admin ---
	if err := bootstrapAdmin(ctx, cfg.Bootstrap, services); err != nil {
		slog.Error("failed to create bootstrap admin", slog.Any("error", err))
		os.Exit(1)
	}

	// --- Graceful Shutdown ---
	// Drain in-flight requests once a signal arrives.
	go func() {
		<-ctx.Done()

		slog.Info("shutting down server...")

		// Give in-flight requests 10 seconds to complete.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := application.Shutdown(shutdownCtx); err != nil {
			slog.Error("server forced shutdown", slog.Any("error", err))
		}
	}()

	// --- Start Server ---
	if err := application.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server failed", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("server stopped")
}

// bootstrapAdmin creates the configured admin when the users table is empty.
// Without it a fresh install has no way to sign in.
func bootstrapAdmin(ctx context.Context, boot config.BootstrapConfig, services *app.Services) error {
	if boot.Email == "" {
		return nil
	}

	n, err := services.Users.CountUsers(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	u, err := services.Auth.CreateUser(ctx, auth.NewUserInput{
		FullName: boot.Name,
		Email:    boot.Email,
		Role:     auth.RoleAdmin,
		IsActive: true,
		Password: boot.Password,
	})
	if err != nil {
		return err
	}
	slog.Info("created bootstrap admin", slog.Int64("user_id", u.ID), slog.String("email", u.Email))
	return nil
}

// setupLogging configures the global slog logger based on the environment.
// Development uses text format for readability. Production uses JSON for
// structured log aggregation. LOG_LEVEL overrides the default level.
func setupLogging(cfg *config.Config) {
	var handler slog.Handler

	if cfg.IsDevelopment() {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: parseLevel(cfg.LogLevel, slog.LevelDebug),
		})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: parseLevel(cfg.LogLevel, slog.LevelInfo),
		})
	}

	slog.SetDefault(slog.New(handler))
}

// parseLevel maps a LOG_LEVEL name to a slog level, falling back to def.
func parseLevel(name string, def slog.Level) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return def
	}
}
