package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/liamcoop/expiry/config"
	"github.com/liamcoop/expiry/internal/logger"
	"github.com/liamcoop/expiry/internal/metrics"
	"github.com/liamcoop/expiry/notifier"
	_ "github.com/lib/pq"
)

func emailSettings(cfg *config.NotifierConfig) notifier.EmailSettings {
	return notifier.EmailSettings{
		WebsiteName:      cfg.WebsiteName,
		SiteURI:          cfg.SiteURI,
		GuidanceURL:      cfg.GuidanceURL,
		AdminEmail:       cfg.AdminEmail,
		ForceSendTo:      cfg.ForceSendTo,
		EmailAdminAtDays: cfg.EmailAdminAtDays,
	}
}

// escalationFilter compiles the configured expression, falling back to the
// email_admin_at_days window.
func escalationFilter(cfg *config.NotifierConfig) (*notifier.EscalationFilter, error) {
	expr := cfg.EscalationExpression
	if expr == "" {
		expr = notifier.DefaultEscalation(cfg.EmailAdminAtDays)
	}
	f, err := notifier.NewEscalationFilter(expr)
	if err != nil {
		return nil, fmt.Errorf("notifier.escalation_expression: %w", err)
	}
	return f, nil
}

func apiClient(cfg *config.NotifierConfig) (*notifier.APIClient, error) {
	var opts []notifier.ClientOption
	if cfg.APIUser != "" {
		opts = append(opts, notifier.WithBasicAuth(cfg.APIUser, cfg.APIKey))
	}
	return notifier.NewAPIClient(cfg.APIURL, cfg.APITimeout, opts...)
}

// openLogs opens the notification log named by notifier.log_backend. The
// returned func releases it and any database connection behind it.
func openLogs(cfg *config.Config) (notifier.LogRepository, func(), error) {
	if cfg.NotifierSettings.LogBackend == "sqlite" {
		repo, err := notifier.NewSQLiteLogRepository(cfg.NotifierSettings.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return repo, func() { _ = repo.Close() }, nil
	}

	if cfg.DbSettings.URL == "" {
		return nil, nil, fmt.Errorf("database.url (or DATABASE_URL) is required for the postgres notification log")
	}
	db, err := sql.Open("postgres", cfg.DbSettings.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(2)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return notifier.NewPostgresLogRepository(db), func() { _ = db.Close() }, nil
}

func buildNotifier(cfg *config.Config, sender notifier.Sender, logs notifier.LogRepository, m *metrics.Metrics) (*notifier.Notifier, error) {
	nc := cfg.NotifierSettings
	if nc.AdminEmail == "" {
		return nil, fmt.Errorf("notifier.admin_email is required")
	}

	client, err := apiClient(nc)
	if err != nil {
		return nil, err
	}
	escalation, err := escalationFilter(nc)
	if err != nil {
		return nil, err
	}

	return notifier.New(client, sender, logs, notifier.Options{
		Days:       nc.InTheNextHowManyDays,
		Settings:   emailSettings(nc),
		Escalation: escalation,
		Metrics:    m,
		Logger:     logger.Logger,
	})
}
