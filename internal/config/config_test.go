package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "colly", cfg.Scraper.Transport)
	assert.Equal(t, 3, cfg.Scraper.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.Scraper.RetryDelay)
	assert.Equal(t, 5, cfg.Scraper.ConcurrentLimit)
	assert.Len(t, cfg.Scraper.UserAgents, 4)
	assert.Empty(t, cfg.Scraper.Proxies)
	assert.Equal(t, 3, cfg.Proxy.FailureThreshold)
	assert.Equal(t, 30*time.Second, cfg.Proxy.CooldownBase)
	assert.True(t, cfg.Browser.Headless)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "json", cfg.Output.Format)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SCRAPER_MAX_RETRIES", "5")
	t.Setenv("SCRAPER_PROXIES", "http://p1.local:8080, socks5://p2.local:1080")
	t.Setenv("SCRAPER_USER_AGENTS", "agent one (KHTML, like Gecko)|agent two")
	t.Setenv("SCRAPER_TRANSPORT", "browser")
	t.Setenv("PROXY_COOLDOWN_BASE", "1m")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Scraper.MaxRetries)
	assert.Equal(t, []string{"http://p1.local:8080", "socks5://p2.local:1080"}, cfg.Scraper.Proxies)
	assert.Equal(t, []string{"agent one (KHTML, like Gecko)", "agent two"}, cfg.Scraper.UserAgents)
	assert.Equal(t, "browser", cfg.Scraper.Transport)
	assert.Equal(t, time.Minute, cfg.Proxy.CooldownBase)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoadMockTransport(t *testing.T) {
	t.Setenv("SCRAPER_TRANSPORT", "MOCK")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "mock", cfg.Scraper.Transport)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
scraper:
  concurrent_limit: 8
  proxies:
    - http://p1.local:8080
    - http://p2.local:8080
output:
  format: csv
  dir: results
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Scraper.ConcurrentLimit)
	assert.Equal(t, []string{"http://p1.local:8080", "http://p2.local:8080"}, cfg.Scraper.Proxies)
	assert.Equal(t, "csv", cfg.Output.Format)
	assert.Equal(t, "results", cfg.Output.Dir)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"concurrency", map[string]string{"SCRAPER_CONCURRENT_LIMIT": "0"}, "SCRAPER_CONCURRENT_LIMIT"},
		{"retries", map[string]string{"SCRAPER_MAX_RETRIES": "-1"}, "SCRAPER_MAX_RETRIES"},
		{"retry delay", map[string]string{"SCRAPER_RETRY_DELAY": "1m", "SCRAPER_RETRY_MAX_DELAY": "1s"}, "SCRAPER_RETRY_DELAY"},
		{"transport", map[string]string{"SCRAPER_TRANSPORT": "curl"}, "SCRAPER_TRANSPORT"},
		{"order", map[string]string{"SCRAPER_RESULT_ORDER": "random"}, "SCRAPER_RESULT_ORDER"},
		{"cooldown", map[string]string{"PROXY_COOLDOWN_BASE": "1h", "PROXY_COOLDOWN_MAX": "1m"}, "PROXY_COOLDOWN_BASE"},
		{"log format", map[string]string{"LOG_FORMAT": "xml"}, "LOG_FORMAT"},
		{"output format", map[string]string{"OUTPUT_FORMAT": "pdf"}, "OUTPUT_FORMAT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := LoggingConfig{Level: "warn", Format: "json"}.NewLogger(&buf)

	logger.Info("hidden")
	logger.Warn("shown", "asin", "B086K4ZMT3")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"asin":"B086K4ZMT3"`)

	buf.Reset()
	LoggingConfig{Level: "debug", Format: "text"}.NewLogger(&buf).Debug("visible")
	assert.Contains(t, buf.String(), "msg=visible")
}
