package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, defaultDBPath, cfg.DBPath)
	assert.Equal(t, defaultListen, cfg.Listen)
	assert.Equal(t, 60*time.Second, cfg.PollInterval)
	assert.Equal(t, 30, cfg.RetentionDays)
	assert.Equal(t, 180*time.Second, cfg.StaleAfter)
	assert.Equal(t, CacheMemory, cfg.Cache.Backend)
	assert.Empty(t, cfg.Profiles)
}

func TestLoad_YAML(t *testing.T) {
	profiles := writeFile(t, "urls.txt", "# tracked\nhttps://web.sensibull.com/verified-pnl/alpha-trader\n\nbeta\n")
	path := writeFile(t, "config.yaml", `
db_path: /tmp/p.db
poll_interval: 30s
retention_days: 7
profiles:
  - beta
  - gamma/
profiles_file: `+profiles+`
feed:
  max_retries: 5
cache:
  backend: redis
  redis_addr: localhost:6379
  ttl: 1m
log:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/p.db", cfg.DBPath)
	assert.Equal(t, 30*time.Second, cfg.PollInterval)
	assert.Equal(t, 7, cfg.RetentionDays)
	assert.Equal(t, []string{"beta", "gamma", "alpha-trader"}, cfg.Profiles)
	assert.Equal(t, 5, cfg.Feed.MaxRetries)
	assert.Equal(t, CacheRedis, cfg.Cache.Backend)
	assert.Equal(t, time.Minute, cfg.Cache.TTL)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(EnvDBPath, "/var/lib/poswatch.db")
	t.Setenv(EnvListen, ":9999")

	path := writeFile(t, "config.yaml", "db_path: /tmp/p.db\nlisten: :8081\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/poswatch.db", cfg.DBPath)
	assert.Equal(t, ":9999", cfg.Listen)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"poll interval too short", "poll_interval: 10ms\n"},
		{"url template without slug", "feed:\n  url_template: https://example.com/\n"},
		{"unknown cache backend", "cache:\n  backend: memcached\n"},
		{"redis without addr", "cache:\n  backend: redis\n"},
		{"bad timezone", "timezone: Mars/Olympus\n"},
		{"bad holiday", "holidays: [\"26-01-2024\"]\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, "config.yaml", tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestSlugFromURL(t *testing.T) {
	assert.Equal(t, "alpha", SlugFromURL("https://web.sensibull.com/verified-pnl/alpha"))
	assert.Equal(t, "alpha", SlugFromURL("https://web.sensibull.com/verified-pnl/alpha/?tab=positions"))
	assert.Equal(t, "alpha", SlugFromURL("  alpha  "))
	assert.Equal(t, "", SlugFromURL(""))
}
