package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/liamcoop/expiry/config"
	"github.com/liamcoop/expiry/content"
	"github.com/liamcoop/expiry/expirydates"
	"github.com/liamcoop/expiry/internal/logger"
	"github.com/liamcoop/expiry/internal/metrics"
	"github.com/liamcoop/expiry/notifier"
	"github.com/liamcoop/expiry/policy"
	"github.com/liamcoop/expiry/rules"
	_ "github.com/lib/pq"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.MustLoad("")
	logger.Setup(logger.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogType,
		Color:  cfg.Env == "local",
	})

	var m *metrics.Metrics
	if cfg.MetricsSettings.Enabled {
		m = metrics.New(cfg.MetricsSettings.Namespace)
	}

	db, err := openDatabase(cfg.DbSettings)
	if err != nil {
		logger.Fatal("failed to connect to database", slog.String("err", err.Error()))
	}
	defer db.Close()

	repo := content.NewPostgresRepository(db)

	var (
		engine *rules.Engine
		source policy.Source
	)
	switch cfg.RulesSettings.Source {
	case "file":
		source = policy.FileSource{Path: cfg.RulesSettings.File}
	default:
		engine, err = rules.NewEngineWithCache(ctx, rules.NewPostgresRuleStore(db),
			rules.NewInMemoryRuleSetCache(rules.CacheConfig{TTL: cfg.RulesSettings.CacheTTL}))
		if err != nil {
			logger.Fatal("failed to load rules", slog.String("err", err.Error()))
		}
		source = policy.StoreSource{Engine: engine}
	}

	manager, err := policy.NewManager(ctx, source, policy.Options{Metrics: m, Logger: logger.Logger})
	if err != nil {
		logger.Fatal("failed to load expiry policy", slog.String("source", source.Name()), slog.String("err", err.Error()))
	}
	logger.Info("expiry policy loaded", slog.String("source", source.Name()), slog.Int("rules", manager.Current().Len()))

	cache, err := expirydates.NewCache(*cfg.CacheSettings)
	if err != nil {
		logger.Fatal("failed to create expiry date cache", slog.String("err", err.Error()))
	}
	defer cache.Close()
	dates := expirydates.NewCachedSource(expirydates.TreeIndex{Tree: repo}, cache, expirydates.Options{
		TTL:     cfg.CacheSettings.TTL,
		Metrics: m,
		Logger:  logger.Logger,
	})

	logs, err := openLogRepository(cfg.NotifierSettings, db)
	if err != nil {
		logger.Fatal("failed to open notification log", slog.String("err", err.Error()))
	}
	defer logs.Close()

	if cfg.RulesSettings.Source == "file" && cfg.RulesSettings.Watch {
		w := policy.NewWatcher(cfg.RulesSettings.File, manager, logger.Logger)
		go func() {
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("rules file watcher stopped", slog.String("err", err.Error()))
			}
		}()
	}
	go refreshPolicy(ctx, manager, cfg.RulesSettings.CacheTTL)

	server := NewServer(Deps{
		Config:  cfg.ServerSettings,
		Manager: manager,
		Engine:  engine,
		Content: repo,
		Dates:   dates,
		Logs:    logs,
		Metrics: m,
		Ping:    db.PingContext,
		Logger:  logger.Logger,
	})

	httpServer := &http.Server{
		Addr:         ":" + cfg.ServerSettings.Port,
		Handler:      server,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.ServerSettings.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", slog.String("port", cfg.ServerSettings.Port), slog.String("env", cfg.Env))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed to start", slog.String("err", err.Error()))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerSettings.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.String("err", err.Error()))
	}
	logger.Info("server stopped")
}

func openDatabase(cfg *config.DatabaseConfig) (*sql.DB, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database.url (or DATABASE_URL) is required")
	}
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

func openLogRepository(cfg *config.NotifierConfig, db *sql.DB) (notifier.LogRepository, error) {
	if cfg.LogBackend == "sqlite" {
		return notifier.NewSQLiteLogRepository(cfg.SQLitePath)
	}
	return notifier.NewPostgresLogRepository(db), nil
}

// refreshPolicy rebuilds the snapshot periodically; rule windows are
// measured from the time the snapshot was built.
func refreshPolicy(ctx context.Context, manager *policy.Manager, every time.Duration) {
	if every <= 0 {
		every = time.Hour
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := manager.Reload(ctx); err != nil {
				logger.Warn("scheduled policy refresh failed", slog.String("err", err.Error()))
			}
		}
	}
}
