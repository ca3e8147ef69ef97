package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/poswatch/config"
	"github.com/vadiminshakov/poswatch/internal/notification"
	"go.uber.org/zap"
)

func loadConfig(t *testing.T, extra string) config.Config {
	t.Helper()
	dir := t.TempDir()
	yml := "db_path: " + filepath.Join(dir, "db", "poswatch.db") + "\n" +
		"wal_dir: " + filepath.Join(dir, "wal") + "\n" +
		"listen: 127.0.0.1:0\n" +
		"profiles:\n  - alpha\n  - https://web.sensibull.com/verified-pnl/beta\n" + extra
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

func TestNew_SyncsProfiles(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, loadConfig(t, ""), zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	profiles, err := a.Store.ListProfiles(ctx, true)
	require.NoError(t, err)
	require.Len(t, profiles, 2)
	assert.Equal(t, "alpha", profiles[0].Slug)
	assert.Equal(t, "beta", profiles[1].Slug)

	rec := httptest.NewRecorder()
	a.Server().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/scraper-status", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotNil(t, a.Scraper())
}

func TestNew_RedisFallsBackToMemory(t *testing.T) {
	cfg := loadConfig(t, "cache:\n  backend: redis\n  redis_addr: 127.0.0.1:1\n")
	a, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.redis)

	rec := httptest.NewRecorder()
	a.Server().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/profile_symbol_suggest/alpha?q=n", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNotifier(t *testing.T) {
	a, err := New(context.Background(), loadConfig(t, "notification:\n  webhook_url: http://127.0.0.1:1/hook\n"), zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	multi, ok := a.Notifier().(notification.Multi)
	require.True(t, ok)
	assert.Len(t, multi, 2)
}

func TestServe_StopsOnCancel(t *testing.T) {
	a, err := New(context.Background(), loadConfig(t, ""), zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx, false) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not stop")
	}
}

func TestNewLogger(t *testing.T) {
	l, err := NewLogger(config.LogConfig{Level: "debug"})
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zap.DebugLevel))

	l, err = NewLogger(config.LogConfig{Level: "warn", Development: true})
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zap.InfoLevel))

	_, err = NewLogger(config.LogConfig{Level: "loud"})
	assert.Error(t, err)
}
