package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServerSettings.Port)
	assert.Equal(t, "store", cfg.RulesSettings.Source)
	assert.Equal(t, "memory", cfg.CacheSettings.Backend)
	assert.Equal(t, time.Hour, cfg.CacheSettings.TTL)
	assert.Equal(t, 14, cfg.NotifierSettings.InTheNextHowManyDays)
	assert.Equal(t, 3, cfg.NotifierSettings.EmailAdminAtDays)
	assert.Equal(t, "0 7 * * *", cfg.NotifierSettings.Schedule)
}

func TestLoadFileAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	yaml := `
log_type: text
rules:
  source: file
  file: /etc/expiry/rules.yaml
cache:
  backend: memcached
  servers: ["cache-1:11211", "cache-2:11211"]
notifier:
  website_name: Example Council
  smtp:
    host: smtp.example.org
    port: 587
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))
	t.Setenv("EXPIRY_SERVER_PORT", "9090")
	t.Setenv("EXPIRY_NOTIFIER_EMAIL_ADMIN_AT_DAYS", "5")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "text", cfg.LogType)
	assert.Equal(t, "file", cfg.RulesSettings.Source)
	assert.Equal(t, "/etc/expiry/rules.yaml", cfg.RulesSettings.File)
	assert.Equal(t, []string{"cache-1:11211", "cache-2:11211"}, cfg.CacheSettings.Servers)
	assert.Equal(t, "Example Council", cfg.NotifierSettings.WebsiteName)
	assert.Equal(t, 587, cfg.NotifierSettings.SMTP.Port)
	assert.Equal(t, "9090", cfg.ServerSettings.Port)
	assert.Equal(t, 5, cfg.NotifierSettings.EmailAdminAtDays)
}

func TestLoadLegacyEnvironment(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/expiry")
	t.Setenv("PORT", "3000")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/expiry", cfg.DbSettings.URL)
	assert.Equal(t, "3000", cfg.ServerSettings.Port)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := map[string]string{
		"rules source":       "rules:\n  source: consul\n",
		"cache backend":      "cache:\n  backend: disk\n",
		"memcached servers":  "cache:\n  backend: memcached\n",
		"log backend":        "notifier:\n  log_backend: csv\n",
		"notification range": "notifier:\n  in_the_next_how_many_days: 0\n",
	}
	for name, yaml := range tests {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))
			_, err := Load(dir)
			assert.Error(t, err)
		})
	}
}
