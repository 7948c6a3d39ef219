package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const defaultBaseURL = "https://disease.sh/v3/covid-19"

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, defaultBaseURL, cfg.UpstreamBaseURL)
	assert.Equal(t, 5*time.Second, cfg.UpstreamTimeout)
	assert.Equal(t, 2, cfg.UpstreamMaxRetries)
	assert.InDelta(t, 5.0, cfg.UpstreamRateLimit, 1e-9)
	assert.Equal(t, 256, cfg.UpstreamCacheSize)
	assert.Equal(t, time.Minute, cfg.UpstreamCacheTTL)
	assert.Equal(t, 120, cfg.HistoryDays)
	assert.Equal(t, 10*time.Minute, cfg.RefreshInterval)
	assert.InDelta(t, 34.80746, cfg.DefaultMapLat, 1e-9)
	assert.InDelta(t, -40.4796, cfg.DefaultMapLng, 1e-9)
	assert.Equal(t, 3, cfg.WorldZoom)
	assert.Equal(t, 4, cfg.RegionZoom)
	assert.Equal(t, "en", cfg.DisplayLocale)
	assert.False(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "dashboard-view-updates", cfg.KafkaViewTopic)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("UPSTREAM_BASE_URL", "http://mock:8081/v3/covid-19/")
	t.Setenv("UPSTREAM_TIMEOUT", "2s")
	t.Setenv("UPSTREAM_MAX_RETRIES", "0")
	t.Setenv("UPSTREAM_RATE_LIMIT", "0.5")
	t.Setenv("UPSTREAM_CACHE_SIZE", "16")
	t.Setenv("UPSTREAM_CACHE_TTL", "30s")
	t.Setenv("HISTORY_DAYS", "30")
	t.Setenv("REFRESH_INTERVAL", "0s")
	t.Setenv("DEFAULT_MAP_LAT", "48.8")
	t.Setenv("DEFAULT_MAP_LNG", "2.3")
	t.Setenv("WORLD_ZOOM", "2")
	t.Setenv("REGION_ZOOM", "5")
	t.Setenv("DISPLAY_LOCALE", "de-DE")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("KAFKA_VIEW_TOPIC", "custom-views")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "http://mock:8081/v3/covid-19", cfg.UpstreamBaseURL, "trailing slash is trimmed")
	assert.Equal(t, 2*time.Second, cfg.UpstreamTimeout)
	assert.Equal(t, 0, cfg.UpstreamMaxRetries)
	assert.InDelta(t, 0.5, cfg.UpstreamRateLimit, 1e-9)
	assert.Equal(t, 16, cfg.UpstreamCacheSize)
	assert.Equal(t, 30*time.Second, cfg.UpstreamCacheTTL)
	assert.Equal(t, 30, cfg.HistoryDays)
	assert.Equal(t, time.Duration(0), cfg.RefreshInterval)
	assert.InDelta(t, 48.8, cfg.DefaultMapLat, 1e-9)
	assert.InDelta(t, 2.3, cfg.DefaultMapLng, 1e-9)
	assert.Equal(t, 2, cfg.WorldZoom)
	assert.Equal(t, 5, cfg.RegionZoom)
	assert.Equal(t, "de-DE", cfg.DisplayLocale)
	assert.True(t, cfg.KafkaEnabled, "setting brokers enables kafka")
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "custom-views", cfg.KafkaViewTopic)
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dashboard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
upstream_base_url: http://file-upstream/v3/covid-19
history_days: 60
default_map_lat: 51.5
kafka_enabled: true
http_addr: ":7000"
`), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("HTTP_ADDR", ":7100")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://file-upstream/v3/covid-19", cfg.UpstreamBaseURL)
	assert.Equal(t, 60, cfg.HistoryDays)
	assert.InDelta(t, 51.5, cfg.DefaultMapLat, 1e-9)
	assert.True(t, cfg.KafkaEnabled)
	assert.Equal(t, ":7100", cfg.HTTPAddr, "environment wins over the file")
}

func TestLoad_ConfigFileMissing(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "nope.yaml"))
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CONFIG_FILE")
}

func TestLoad_ConfigFileInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("history_days: [1, 2"), 0o600))
	t.Setenv("CONFIG_FILE", path)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CONFIG_FILE")
}

func TestLoad_InvalidShutdownTimeout(t *testing.T) {
	t.Setenv("SHUTDOWN_TIMEOUT", "not-a-duration")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHUTDOWN_TIMEOUT")
}

func TestLoad_InvalidValues(t *testing.T) {
	cases := []struct {
		key   string
		value string
	}{
		{"UPSTREAM_TIMEOUT", "bad"},
		{"UPSTREAM_TIMEOUT", "0s"},
		{"UPSTREAM_CACHE_TTL", "-1s"},
		{"REFRESH_INTERVAL", "soon"},
		{"UPSTREAM_MAX_RETRIES", "11"},
		{"UPSTREAM_CACHE_SIZE", "0"},
		{"HISTORY_DAYS", "abc"},
		{"HISTORY_DAYS", "0"},
		{"WORLD_ZOOM", "30"},
		{"REGION_ZOOM", "-1"},
		{"UPSTREAM_RATE_LIMIT", "0"},
		{"UPSTREAM_RATE_LIMIT", "fast"},
		{"DEFAULT_MAP_LAT", "95"},
		{"DEFAULT_MAP_LNG", "north"},
		{"DISPLAY_LOCALE", "not a locale!"},
		{"KAFKA_ENABLED", "yes"},
	}
	for _, tc := range cases {
		t.Run(tc.key+"="+tc.value, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.key)
		})
	}
}

func TestLoad_KafkaExplicitlyDisabled(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "broker1:9092")
	t.Setenv("KAFKA_ENABLED", "false")
	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.KafkaEnabled)
}

func TestLoad_KafkaEnabledUsesDefaultBroker(t *testing.T) {
	t.Setenv("KAFKA_ENABLED", "true")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
}

func TestLoad_KafkaEnabledAcceptsBoolSpellings(t *testing.T) {
	for _, v := range []string{"TRUE", "1", "t", "True"} {
		t.Run(v, func(t *testing.T) {
			t.Setenv("KAFKA_ENABLED", v)
			cfg, err := Load()
			require.NoError(t, err)
			assert.True(t, cfg.KafkaEnabled)
		})
	}
}
