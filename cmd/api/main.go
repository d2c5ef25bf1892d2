package main

import (
	"context"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/transcriptionsvc/internal/api"
	"github.com/nikhilbhutani/transcriptionsvc/internal/app"
	"github.com/nikhilbhutani/transcriptionsvc/internal/audit"
	"github.com/nikhilbhutani/transcriptionsvc/internal/config"
	"github.com/nikhilbhutani/transcriptionsvc/internal/database"
	"github.com/nikhilbhutani/transcriptionsvc/internal/stats"
	"github.com/nikhilbhutani/transcriptionsvc/internal/transcription"
	"github.com/nikhilbhutani/transcriptionsvc/internal/worker"
	"github.com/nikhilbhutani/transcriptionsvc/migrations"
)

var version = "0.1.0"

func main() {
	var level slog.LevelVar
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: &level}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	level.Set(cfg.SlogLevel())

	ctx := context.Background()

	core, err := app.NewCore(ctx, cfg)
	if err != nil {
		slog.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}

	var recorders transcription.MultiRecorder

	// Database connection (optional: run history is disabled without it)
	var (
		db   *pgxpool.Pool
		runs *audit.Store
	)
	if cfg.Database.URL != "" {
		db, err = database.NewPool(ctx, cfg.Database)
		if err != nil {
			slog.Warn("database unavailable, running without run history", "error", err)
		} else {
			defer db.Close()

			var schema fs.FS = migrations.FS
			if cfg.Database.MigrationsPath != "" {
				schema = os.DirFS(cfg.Database.MigrationsPath)
			}
			if err := database.RunMigrations(ctx, db, schema); err != nil {
				slog.Warn("migrations failed", "error", err)
			}
			runs = audit.NewStore(db)
			recorders = append(recorders, runs)
		}
	}

	// Redis connection (optional: shared counters are disabled without it)
	var (
		rdb      *redis.Client
		counters *stats.Counters
	)
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Warn("redis unavailable, running without counters", "error", err)
			rdb.Close()
			rdb = nil
		} else {
			defer rdb.Close()
			counters = stats.NewCounters(rdb, "")
			recorders = append(recorders, counters)
		}
	}

	pool := worker.NewPool(cfg.Pool.Workers, cfg.RequestTimeout())

	svc := transcription.NewService(core.Scratch, core.Prober, pool, core.Executor, recorders, transcription.Options{
		MaxFileSize:      cfg.MaxFileSizeBytes(),
		SupportedFormats: cfg.Upload.SupportedFormats,
	})

	router := api.NewRouter(api.Deps{
		Config:   cfg,
		Version:  version,
		Service:  svc,
		Pool:     pool,
		DB:       db,
		Redis:    rdb,
		Runs:     runs,
		Counters: counters,
	})

	// Pipeline runs can take minutes, so only header reads are bounded.
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router.Setup(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("starting API server", "addr", cfg.Addr(), "version", version, "workers", cfg.Pool.Workers)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced shutdown", "error", err)
	}
	if err := pool.Shutdown(shutdownCtx); err != nil {
		slog.Error("worker pool did not drain", "error", err)
	}
	slog.Info("server stopped")
}
