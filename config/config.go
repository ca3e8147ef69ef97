package config

import (
	"bufio"
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/poswatch/internal/markethours"
	"gopkg.in/yaml.v3"
)

const (
	defaultDBPath        = "./data/positions.db"
	defaultWALDir        = "./wal/changes"
	defaultListen        = ":8080"
	defaultPollInterval  = 60 * time.Second
	defaultRetentionDays = 30
	defaultStaleAfter    = 180 * time.Second
	defaultTimezone      = "Asia/Kolkata"
	defaultFeedURL       = "https://oxide.sensibull.com/v1/compute/verified_by_sensibull/live_positions/snapshot/{slug}"
	defaultFeedTimeout   = 10 * time.Second
	defaultUserAgent     = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	defaultMaxRetries    = 3
	defaultCacheTTL      = 5 * time.Minute
	defaultLogLevel      = "info"

	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Environment variables that override file values.
const (
	EnvDBPath        = "POSWATCH_DB_PATH"
	EnvListen        = "POSWATCH_LISTEN"
	EnvRedisPassword = "POSWATCH_REDIS_PASSWORD"
	EnvWebhookURL    = "POSWATCH_WEBHOOK_URL"
)

type Config struct {
	DBPath        string             `yaml:"db_path"`
	WALDir        string             `yaml:"wal_dir"`
	Listen        string             `yaml:"listen"`
	PollInterval  time.Duration      `yaml:"poll_interval"`
	RetentionDays int                `yaml:"retention_days"`
	StaleAfter    time.Duration      `yaml:"stale_after"`
	Timezone      string             `yaml:"timezone"`
	Holidays      []string           `yaml:"holidays"`
	Profiles      []string           `yaml:"profiles"`
	ProfilesFile  string             `yaml:"profiles_file"`
	Feed          FeedConfig         `yaml:"feed"`
	Cache         CacheConfig        `yaml:"cache"`
	Notification  NotificationConfig `yaml:"notification"`
	Log           LogConfig          `yaml:"log"`
}

type FeedConfig struct {
	URLTemplate string        `yaml:"url_template"`
	Timeout     time.Duration `yaml:"timeout"`
	UserAgent   string        `yaml:"user_agent"`
	MaxRetries  int           `yaml:"max_retries"`
}

type CacheConfig struct {
	Backend       string        `yaml:"backend"`
	TTL           time.Duration `yaml:"ttl"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
}

type NotificationConfig struct {
	WebhookURL string `yaml:"webhook_url"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Load reads .env (if present), the yaml file at path (if set), applies
// defaults and environment overrides, and validates the result.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, errors.Wrap(err, "load .env")
	}

	var cfg Config
	if path != "" {
		f, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := yaml.Unmarshal(f, &cfg); err != nil {
			return Config{}, errors.Wrap(err, "parse yaml config")
		}
	}

	cfg.applyDefaults()
	cfg.applyEnv()

	if cfg.ProfilesFile != "" {
		slugs, err := readProfilesFile(cfg.ProfilesFile)
		if err != nil {
			return Config{}, err
		}
		cfg.Profiles = append(cfg.Profiles, slugs...)
	}
	cfg.Profiles = normalizeProfiles(cfg.Profiles)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.DBPath == "" {
		c.DBPath = defaultDBPath
	}
	if c.WALDir == "" {
		c.WALDir = defaultWALDir
	}
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.PollInterval == 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.RetentionDays == 0 {
		c.RetentionDays = defaultRetentionDays
	}
	if c.StaleAfter == 0 {
		c.StaleAfter = defaultStaleAfter
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.Feed.URLTemplate == "" {
		c.Feed.URLTemplate = defaultFeedURL
	}
	if c.Feed.Timeout == 0 {
		c.Feed.Timeout = defaultFeedTimeout
	}
	if c.Feed.UserAgent == "" {
		c.Feed.UserAgent = defaultUserAgent
	}
	if c.Feed.MaxRetries == 0 {
		c.Feed.MaxRetries = defaultMaxRetries
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = CacheMemory
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = defaultCacheTTL
	}
	if c.Log.Level == "" {
		c.Log.Level = defaultLogLevel
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvDBPath); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv(EnvListen); v != "" {
		c.Listen = v
	}
	if v := os.Getenv(EnvRedisPassword); v != "" {
		c.Cache.RedisPassword = v
	}
	if v := os.Getenv(EnvWebhookURL); v != "" {
		c.Notification.WebhookURL = v
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.PollInterval < time.Second {
		return fmt.Errorf("incorrect 'poll_interval' param in yaml config: %s, must be at least 1s", c.PollInterval)
	}
	if c.RetentionDays < 0 {
		return fmt.Errorf("incorrect 'retention_days' param in yaml config: %d, must not be negative", c.RetentionDays)
	}
	if c.StaleAfter < 0 {
		return fmt.Errorf("incorrect 'stale_after' param in yaml config: %s", c.StaleAfter)
	}
	if !strings.Contains(c.Feed.URLTemplate, "{slug}") {
		return fmt.Errorf("incorrect 'feed.url_template' param in yaml config: %s, must contain {slug}", c.Feed.URLTemplate)
	}
	if c.Feed.MaxRetries < 0 {
		return fmt.Errorf("incorrect 'feed.max_retries' param in yaml config: %d", c.Feed.MaxRetries)
	}
	switch c.Cache.Backend {
	case CacheMemory:
	case CacheRedis:
		if c.Cache.RedisAddr == "" {
			return fmt.Errorf("'cache.redis_addr' param is required for redis cache backend")
		}
	default:
		return fmt.Errorf("incorrect 'cache.backend' param in yaml config: %s (memory or redis)", c.Cache.Backend)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("incorrect 'timezone' param in yaml config: %s, error: %w", c.Timezone, err)
	}
	if _, err := markethours.New(markethours.IST, c.Holidays); err != nil {
		return fmt.Errorf("incorrect 'holidays' param in yaml config, error: %w", err)
	}
	return nil
}

// Location resolves the configured timezone. Asia/Kolkata falls back to a fixed
// IST zone on hosts without tzdata.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err == nil {
		return loc, nil
	}
	if c.Timezone == defaultTimezone || c.Timezone == "IST" {
		return markethours.IST, nil
	}
	return nil, err
}

func readProfilesFile(path string) ([]string, error) {
	f, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read profiles file")
	}

	var slugs []string
	sc := bufio.NewScanner(bytes.NewReader(f))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		slugs = append(slugs, line)
	}
	return slugs, sc.Err()
}

// normalizeProfiles extracts slugs from profile URLs and drops duplicates.
func normalizeProfiles(entries []string) []string {
	seen := make(map[string]struct{}, len(entries))
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		slug := SlugFromURL(e)
		if slug == "" {
			continue
		}
		if _, ok := seen[slug]; ok {
			continue
		}
		seen[slug] = struct{}{}
		out = append(out, slug)
	}
	return out
}

// SlugFromURL returns the last path segment of a profile URL, or s itself.
func SlugFromURL(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimRight(s, "/")
	if i := strings.LastIndex(s, "/"); i >= 0 {
		s = s[i+1:]
	}
	return s
}
