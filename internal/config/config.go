// Package config loads rentsync settings from a YAML (or JSON) file and
// RENTSYNC_* environment variables.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file read when --config is not given.
const DefaultPath = "rentsync.yaml"

// Backends accepted by FeedConfig.Backend and CacheConfig.Backend.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendLoam     = "loam"
	BackendFile     = "file"
)

// Config is the root configuration document.
type Config struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // text or json
	Listen    string `yaml:"listen"`

	Feed     FeedConfig     `yaml:"feed"`
	Cache    CacheConfig    `yaml:"cache"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
	Loam     LoamConfig     `yaml:"loam"`
	Auth     AuthConfig     `yaml:"auth"`
	Sentry   SentryConfig   `yaml:"sentry"`
}

// FeedConfig selects where user documents live.
type FeedConfig struct {
	Backend      string        `yaml:"backend"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	LockTTL      time.Duration `yaml:"lock_ttl"`
}

// CacheConfig selects where the cached user is persisted.
type CacheConfig struct {
	Backend string        `yaml:"backend"`
	Path    string        `yaml:"path"`
	Key     string        `yaml:"key"`
	Prefix  string        `yaml:"prefix"`
	TTL     time.Duration `yaml:"ttl"`

	// EncryptionKey is a base64 AES-256 key sealing personal fields at rest.
	EncryptionKey string   `yaml:"encryption_key"`
	FallbackKeys  []string `yaml:"fallback_keys"`

	// Redact lists patterns of profile fields that are never persisted.
	Redact []string `yaml:"redact"`
}

// Keys decodes the encryption keys. active is nil when encryption is off.
func (c CacheConfig) Keys() (active []byte, fallback [][]byte, err error) {
	if c.EncryptionKey == "" {
		return nil, nil, nil
	}
	active, err = decodeKey(c.EncryptionKey)
	if err != nil {
		return nil, nil, fmt.Errorf("cache.encryption_key: %w", err)
	}
	for i, k := range c.FallbackKeys {
		key, err := decodeKey(k)
		if err != nil {
			return nil, nil, fmt.Errorf("cache.fallback_keys[%d]: %w", i, err)
		}
		fallback = append(fallback, key)
	}
	return active, fallback, nil
}

func decodeKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("key must be 32 bytes, got %d", len(key))
	}
	return key, nil
}

// RedisConfig is shared by the redis feed, cache and lock.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type PostgresConfig struct {
	URL     string `yaml:"url"`
	Channel string `yaml:"channel"`
	Migrate bool   `yaml:"migrate"`
}

type LoamConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	Secret string `yaml:"secret"`
	Issuer string `yaml:"issuer"`
}

type SentryConfig struct {
	DSN              string  `yaml:"dsn"`
	Environment      string  `yaml:"environment"`
	TracesSampleRate float64 `yaml:"traces_sample_rate"`
}

// Default returns a configuration that runs entirely in-process.
func Default() Config {
	return Config{
		LogLevel:  "info",
		LogFormat: "text",
		Listen:    ":8080",
		Feed: FeedConfig{
			Backend:      BackendMemory,
			FetchTimeout: 10 * time.Second,
			LockTTL:      5 * time.Second,
		},
		Cache: CacheConfig{
			Backend: BackendFile,
			Path:    ".rentsync/cache",
			Key:     "rentsync:user",
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Postgres: PostgresConfig{
			Channel: "rentsync_users",
		},
		Loam: LoamConfig{
			Path: ".rentsync/users",
		},
	}
}

// Load reads path over Default and applies environment overrides.
// A missing file is not an error; the defaults are used.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		// JSON is valid YAML, so one decoder serves both.
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"RENTSYNC_LOG_LEVEL":            &c.LogLevel,
		"RENTSYNC_LOG_FORMAT":           &c.LogFormat,
		"RENTSYNC_LISTEN":               &c.Listen,
		"RENTSYNC_FEED_BACKEND":         &c.Feed.Backend,
		"RENTSYNC_CACHE_BACKEND":        &c.Cache.Backend,
		"RENTSYNC_CACHE_PATH":           &c.Cache.Path,
		"RENTSYNC_CACHE_KEY":            &c.Cache.Key,
		"RENTSYNC_CACHE_ENCRYPTION_KEY": &c.Cache.EncryptionKey,
		"RENTSYNC_REDIS_ADDR":           &c.Redis.Addr,
		"RENTSYNC_REDIS_PASSWORD":       &c.Redis.Password,
		"RENTSYNC_DATABASE_URL":         &c.Postgres.URL,
		"RENTSYNC_LOAM_PATH":            &c.Loam.Path,
		"RENTSYNC_JWT_SECRET":           &c.Auth.Secret,
		"RENTSYNC_JWT_ISSUER":           &c.Auth.Issuer,
		"RENTSYNC_SENTRY_DSN":           &c.Sentry.DSN,
		"RENTSYNC_SENTRY_ENVIRONMENT":   &c.Sentry.Environment,
	}
	for name, dst := range strs {
		if v, ok := os.LookupEnv(name); ok {
			*dst = v
		}
	}

	if v, ok := os.LookupEnv("RENTSYNC_REDIS_DB"); ok {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid RENTSYNC_REDIS_DB: %w", err)
		}
		c.Redis.DB = db
	}

	durations := map[string]*time.Duration{
		"RENTSYNC_FETCH_TIMEOUT": &c.Feed.FetchTimeout,
		"RENTSYNC_LOCK_TTL":      &c.Feed.LockTTL,
		"RENTSYNC_CACHE_TTL":     &c.Cache.TTL,
	}
	for name, dst := range durations {
		v, ok := os.LookupEnv(name)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
		*dst = d
	}
	return nil
}

// Validate reports every problem with c at once.
func (c Config) Validate() error {
	var errs []error

	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format must be text or json, got %q", c.LogFormat))
	}

	switch c.Feed.Backend {
	case BackendMemory, BackendLoam:
	case BackendRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis.addr is required for the redis feed"))
		}
	case BackendPostgres:
		if c.Postgres.URL == "" {
			errs = append(errs, errors.New("postgres.url is required for the postgres feed"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown feed backend %q", c.Feed.Backend))
	}
	if c.Feed.Backend == BackendLoam && c.Loam.Path == "" {
		errs = append(errs, errors.New("loam.path is required for the loam feed"))
	}

	switch c.Cache.Backend {
	case BackendMemory:
	case BackendFile:
		if c.Cache.Path == "" {
			errs = append(errs, errors.New("cache.path is required for the file cache"))
		}
	case BackendRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis.addr is required for the redis cache"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown cache backend %q", c.Cache.Backend))
	}
	if c.Cache.Key == "" {
		errs = append(errs, errors.New("cache.key must not be empty"))
	}
	if _, _, err := c.Cache.Keys(); err != nil {
		errs = append(errs, err)
	}
	for _, p := range c.Cache.Redact {
		if _, err := regexp.Compile(p); err != nil {
			errs = append(errs, fmt.Errorf("cache.redact: %w", err))
		}
	}

	if c.Feed.FetchTimeout < 0 || c.Feed.LockTTL < 0 || c.Cache.TTL < 0 {
		errs = append(errs, errors.New("durations must not be negative"))
	}
	if c.Sentry.TracesSampleRate < 0 || c.Sentry.TracesSampleRate > 1 {
		errs = append(errs, errors.New("sentry.traces_sample_rate must be between 0 and 1"))
	}

	return errors.Join(errs...)
}

// UsesRedis reports whether any component needs a redis client.
func (c Config) UsesRedis() bool {
	return c.Feed.Backend == BackendRedis || c.Cache.Backend == BackendRedis
}
