package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env              string          `mapstructure:"env"`
	LogLevel         string          `mapstructure:"log_level"`
	LogType          string          `mapstructure:"log_type"`
	ServiceName      string          `mapstructure:"service_name"`
	ServerSettings   *ServerConfig   `mapstructure:"server"`
	DbSettings       *DatabaseConfig `mapstructure:"database"`
	RulesSettings    *RulesConfig    `mapstructure:"rules"`
	CacheSettings    *CacheConfig    `mapstructure:"cache"`
	NotifierSettings *NotifierConfig `mapstructure:"notifier"`
	MetricsSettings  *MetricsConfig  `mapstructure:"metrics"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	APIUser         string        `mapstructure:"api_user"`
	APIKey          string        `mapstructure:"api_key"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	EnforceWorkers  int           `mapstructure:"enforce_workers"`
}

type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
}

// RulesConfig selects where the expiry policy comes from.
type RulesConfig struct {
	// Source is "store" (database, editable over the API) or "file".
	Source   string        `mapstructure:"source"`
	File     string        `mapstructure:"file"`
	Watch    bool          `mapstructure:"watch"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// CacheConfig configures the current-expiry-date cache.
type CacheConfig struct {
	// Backend is memory, memcached or redis.
	Backend       string        `mapstructure:"backend"`
	Servers       []string      `mapstructure:"servers"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	TTL           time.Duration `mapstructure:"ttl"`
}

type NotifierConfig struct {
	Schedule             string        `mapstructure:"schedule"`
	InTheNextHowManyDays int           `mapstructure:"in_the_next_how_many_days"`
	EmailAdminAtDays     int           `mapstructure:"email_admin_at_days"`
	EscalationExpression string        `mapstructure:"escalation_expression"`
	AdminEmail           string        `mapstructure:"admin_email"`
	ForceSendTo          string        `mapstructure:"force_send_to"`
	WebsiteName          string        `mapstructure:"website_name"`
	SiteURI              string        `mapstructure:"site_uri"`
	GuidanceURL          string        `mapstructure:"guidance_url"`
	APIURL               string        `mapstructure:"api_url"`
	APIUser              string        `mapstructure:"api_user"`
	APIKey               string        `mapstructure:"api_key"`
	APITimeout           time.Duration `mapstructure:"api_timeout"`
	LogBackend           string        `mapstructure:"log_backend"`
	SQLitePath           string        `mapstructure:"sqlite_path"`
	SMTP                 *SMTPConfig   `mapstructure:"smtp"`
}

type SMTPConfig struct {
	Host     string  `mapstructure:"host"`
	Port     int     `mapstructure:"port"`
	Username string  `mapstructure:"username"`
	Password string  `mapstructure:"password"`
	From     string  `mapstructure:"from"`
	Rate     float64 `mapstructure:"rate"`
	Burst    int     `mapstructure:"burst"`
}

type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

const defaultPort = "8080"

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "local")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_type", "json")
	v.SetDefault("service_name", "content-expiry")

	v.SetDefault("server.port", defaultPort)
	v.SetDefault("server.api_user", "")
	v.SetDefault("server.api_key", "")
	v.SetDefault("server.request_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.enforce_workers", 8)

	v.SetDefault("database.url", "")
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)

	v.SetDefault("rules.source", "store")
	v.SetDefault("rules.file", "expiry-rules.yaml")
	v.SetDefault("rules.watch", true)
	v.SetDefault("rules.cache_ttl", time.Hour)

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.servers", []string{})
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.ttl", time.Hour)

	v.SetDefault("notifier.schedule", "0 7 * * *")
	v.SetDefault("notifier.in_the_next_how_many_days", 14)
	v.SetDefault("notifier.email_admin_at_days", 3)
	v.SetDefault("notifier.escalation_expression", "")
	v.SetDefault("notifier.admin_email", "")
	v.SetDefault("notifier.force_send_to", "")
	v.SetDefault("notifier.website_name", "")
	v.SetDefault("notifier.site_uri", "")
	v.SetDefault("notifier.guidance_url", "")
	v.SetDefault("notifier.api_url", "http://localhost:8080/api/v1")
	v.SetDefault("notifier.api_user", "")
	v.SetDefault("notifier.api_key", "")
	v.SetDefault("notifier.api_timeout", 30*time.Second)
	v.SetDefault("notifier.log_backend", "postgres")
	v.SetDefault("notifier.sqlite_path", "expiry-emails.db")
	v.SetDefault("notifier.smtp.host", "localhost")
	v.SetDefault("notifier.smtp.port", 25)
	v.SetDefault("notifier.smtp.username", "")
	v.SetDefault("notifier.smtp.password", "")
	v.SetDefault("notifier.smtp.from", "")
	v.SetDefault("notifier.smtp.rate", 5.0)
	v.SetDefault("notifier.smtp.burst", 1)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", "content_expiry")
}

// Load reads config.yaml from dir (or the working directory when dir is
// empty), then applies EXPIRY_* environment overrides. A missing file is not
// an error.
func Load(dir string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if dir == "" {
		dir = "."
	}
	v.AddConfigPath(dir)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.SetEnvPrefix("EXPIRY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Plain DATABASE_URL and PORT are still honoured for container platforms.
	if cfg.DbSettings.URL == "" {
		cfg.DbSettings.URL = os.Getenv("DATABASE_URL")
	}
	if port := os.Getenv("PORT"); port != "" && cfg.ServerSettings.Port == defaultPort {
		cfg.ServerSettings.Port = port
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MustLoad is Load for main packages.
func MustLoad(dir string) *Config {
	cfg, err := Load(dir)
	if err != nil {
		slog.Error("can't initialize config.", slog.String("err", err.Error()))
		os.Exit(1)
	}
	return cfg
}

// Validate checks values that have no safe fallback.
func (c *Config) Validate() error {
	switch c.RulesSettings.Source {
	case "store", "file":
	default:
		return fmt.Errorf("rules.source must be store or file, got %q", c.RulesSettings.Source)
	}
	switch c.CacheSettings.Backend {
	case "memory", "memcached", "redis":
	default:
		return fmt.Errorf("cache.backend must be memory, memcached or redis, got %q", c.CacheSettings.Backend)
	}
	if c.CacheSettings.Backend == "memcached" && len(c.CacheSettings.Servers) == 0 {
		return fmt.Errorf("cache.servers is required for the memcached backend")
	}
	switch c.NotifierSettings.LogBackend {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("notifier.log_backend must be postgres or sqlite, got %q", c.NotifierSettings.LogBackend)
	}
	if c.NotifierSettings.InTheNextHowManyDays < 1 {
		return fmt.Errorf("notifier.in_the_next_how_many_days must be positive")
	}
	if c.NotifierSettings.EmailAdminAtDays < 0 {
		return fmt.Errorf("notifier.email_admin_at_days cannot be negative")
	}
	return nil
}
