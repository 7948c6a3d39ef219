package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// Config holds all service settings, populated from environment variables
// and an optional YAML file.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Upstream statistics API.
	UpstreamBaseURL    string
	UpstreamTimeout    time.Duration
	UpstreamMaxRetries int
	UpstreamRateLimit  float64
	UpstreamCacheSize  int
	UpstreamCacheTTL   time.Duration

	// Dashboard view defaults.
	HistoryDays     int
	RefreshInterval time.Duration
	DefaultMapLat   float64
	DefaultMapLng   float64
	WorldZoom       int
	RegionZoom      int
	DisplayLocale   string

	// Kafka fan-out of committed view updates.
	KafkaEnabled   bool
	KafkaBrokers   []string
	KafkaViewTopic string
}

// Load reads configuration from environment variables, applying defaults where
// unset. When CONFIG_FILE names a YAML file, its entries (keyed by the
// lower-cased variable name) replace the built-in defaults; environment
// variables still take precedence.
func Load() (*Config, error) {
	src, err := newSource(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return nil, err
	}

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	upstreamTimeout, err := src.duration("UPSTREAM_TIMEOUT", "5s", false)
	if err != nil {
		return nil, err
	}
	cacheTTL, err := src.duration("UPSTREAM_CACHE_TTL", "1m", false)
	if err != nil {
		return nil, err
	}
	refreshInterval, err := src.duration("REFRESH_INTERVAL", "10m", true)
	if err != nil {
		return nil, err
	}

	maxRetries, err := src.intInRange("UPSTREAM_MAX_RETRIES", "2", 0, 10)
	if err != nil {
		return nil, err
	}
	cacheSize, err := src.intInRange("UPSTREAM_CACHE_SIZE", "256", 1, 100000)
	if err != nil {
		return nil, err
	}
	historyDays, err := src.intInRange("HISTORY_DAYS", "120", 1, 3650)
	if err != nil {
		return nil, err
	}
	worldZoom, err := src.intInRange("WORLD_ZOOM", "3", 0, 22)
	if err != nil {
		return nil, err
	}
	regionZoom, err := src.intInRange("REGION_ZOOM", "4", 0, 22)
	if err != nil {
		return nil, err
	}

	rateLimit, err := src.float("UPSTREAM_RATE_LIMIT", "5")
	if err != nil {
		return nil, err
	}
	if rateLimit <= 0 {
		return nil, errors.New("invalid UPSTREAM_RATE_LIMIT: must be positive")
	}
	lat, err := src.float("DEFAULT_MAP_LAT", "34.80746")
	if err != nil {
		return nil, err
	}
	lng, err := src.float("DEFAULT_MAP_LNG", "-40.4796")
	if err != nil {
		return nil, err
	}

	_, brokersSet := src.lookup("KAFKA_BROKERS")
	kafkaEnabled := brokersSet
	if v, ok := src.lookup("KAFKA_ENABLED"); ok && v != "" {
		enabled, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("invalid KAFKA_ENABLED: %w", err)
		}
		kafkaEnabled = enabled
	}

	cfg := &Config{
		HTTPAddr:        src.get("HTTP_ADDR", ":8080"),
		LogLevel:        src.get("LOG_LEVEL", "info"),
		LogFormat:       src.get("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		UpstreamBaseURL:    strings.TrimRight(src.get("UPSTREAM_BASE_URL", "https://disease.sh/v3/covid-19"), "/"),
		UpstreamTimeout:    upstreamTimeout,
		UpstreamMaxRetries: maxRetries,
		UpstreamRateLimit:  rateLimit,
		UpstreamCacheSize:  cacheSize,
		UpstreamCacheTTL:   cacheTTL,

		HistoryDays:     historyDays,
		RefreshInterval: refreshInterval,
		DefaultMapLat:   lat,
		DefaultMapLng:   lng,
		WorldZoom:       worldZoom,
		RegionZoom:      regionZoom,
		DisplayLocale:   src.get("DISPLAY_LOCALE", "en"),

		KafkaEnabled:   kafkaEnabled,
		KafkaBrokers:   sharedcfg.ParseBrokers(src.get("KAFKA_BROKERS", "localhost:9092")),
		KafkaViewTopic: src.get("KAFKA_VIEW_TOPIC", "dashboard-view-updates"),
	}

	if cfg.UpstreamBaseURL == "" {
		return nil, errors.New("UPSTREAM_BASE_URL is required")
	}
	if lat < -90 || lat > 90 {
		return nil, errors.New("invalid DEFAULT_MAP_LAT: must be within [-90, 90]")
	}
	if lng < -180 || lng > 180 {
		return nil, errors.New("invalid DEFAULT_MAP_LNG: must be within [-180, 180]")
	}
	if _, err := language.Parse(cfg.DisplayLocale); err != nil {
		return nil, fmt.Errorf("invalid DISPLAY_LOCALE: %w", err)
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is empty")
	}
	if cfg.KafkaEnabled && cfg.KafkaViewTopic == "" {
		return nil, errors.New("KAFKA_VIEW_TOPIC is required when Kafka is enabled")
	}

	return cfg, nil
}

// source resolves a setting from the environment first, then the YAML file.
type source struct {
	file map[string]string
}

func newSource(path string) (*source, error) {
	s := &source{file: map[string]string{}}
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read CONFIG_FILE: %w", err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse CONFIG_FILE: %w", err)
	}
	for k, v := range raw {
		s.file[strings.ToUpper(k)] = fmt.Sprint(v)
	}
	return s, nil
}

func (s *source) lookup(key string) (string, bool) {
	if v, ok := os.LookupEnv(key); ok {
		return v, true
	}
	v, ok := s.file[key]
	return v, ok
}

func (s *source) get(key, def string) string {
	if v, ok := s.file[key]; ok && v != "" {
		def = v
	}
	return sharedcfg.EnvOrDefault(key, def)
}

func (s *source) duration(key, def string, allowZero bool) (time.Duration, error) {
	d, err := time.ParseDuration(s.get(key, def))
	if err != nil || d < 0 || (d == 0 && !allowZero) {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func (s *source) intInRange(key, def string, lo, hi int) (int, error) {
	n, err := strconv.Atoi(s.get(key, def))
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("invalid %s: must be an integer in [%d, %d]", key, lo, hi)
	}
	return n, nil
}

func (s *source) float(key, def string) (float64, error) {
	f, err := strconv.ParseFloat(s.get(key, def), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return f, nil
}
