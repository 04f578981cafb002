// Package config loads gateway configuration from YAML with environment
// overrides and supports hot reload of the on-disk file.
package config

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment variable overrides,
// e.g. PROMPTGATE_SERVER_PORT or PROMPTGATE_RATELIMIT_CEILING.
const EnvPrefix = "PROMPTGATE"

// Config holds all gateway configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Upstream  UpstreamConfig  `mapstructure:"upstream"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Cache     CacheConfig     `mapstructure:"cache"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Memory    MemoryConfig    `mapstructure:"memory"`
	Limits    LimitsConfig    `mapstructure:"limits"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type ServerConfig struct {
	// Port is the listen address, e.g. ":8080".
	Port string `mapstructure:"port"`
}

type UpstreamConfig struct {
	// BaseURL is the provider endpoint, e.g. "https://api.openai.com/v1".
	BaseURL string `mapstructure:"base_url"`

	// APIKey authenticates against the provider. Usually set via
	// PROMPTGATE_UPSTREAM_API_KEY rather than the config file.
	APIKey string `mapstructure:"api_key"`

	// Model is the completion model requested from the provider.
	Model string `mapstructure:"model"`

	// AttemptTimeout bounds a single upstream call attempt.
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type CacheConfig struct {
	// TTL is how long a completion stays servable from cache.
	TTL time.Duration `mapstructure:"ttl"`
}

type RateLimitConfig struct {
	// Ceiling is the maximum number of requests an identity may issue
	// within one window.
	Ceiling int `mapstructure:"ceiling"`

	// Window is the fixed-window length.
	Window time.Duration `mapstructure:"window"`
}

type RetryConfig struct {
	// MaxAttempts bounds upstream call attempts (including the first).
	MaxAttempts int `mapstructure:"max_attempts"`

	// InitialBackoff is the delay before the second attempt.
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`

	// MaxBackoff caps the exponential backoff growth.
	MaxBackoff time.Duration `mapstructure:"max_backoff"`
}

type MemoryConfig struct {
	// ThresholdBytes triggers a reclamation pass when heap usage exceeds it.
	ThresholdBytes uint64 `mapstructure:"threshold_bytes"`

	// MinInterval is the minimum time between reclamation passes.
	MinInterval time.Duration `mapstructure:"min_interval"`
}

type LimitsConfig struct {
	// MaxMessageChars bounds the inbound message length.
	MaxMessageChars int `mapstructure:"max_message_chars"`

	// MaxContextChars bounds the optional context string length.
	MaxContextChars int `mapstructure:"max_context_chars"`

	// MaxPromptTokens bounds the tokenized prompt size. Zero disables
	// the token bound (length bounds still apply).
	MaxPromptTokens int `mapstructure:"max_prompt_tokens"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// Store wraps configuration with thread-safe access and hot-reload updates.
type Store struct {
	mu   sync.RWMutex
	cfg  *Config
	subs []func(*Config)
}

// Get returns a snapshot of the current configuration.
func (s *Store) Get() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cfg == nil {
		return nil
	}
	cpy := *s.cfg
	return &cpy
}

// Subscribe registers fn to run with the new snapshot after every
// successful reload. Callbacks run on the watcher goroutine and must
// not block.
func (s *Store) Subscribe(fn func(*Config)) {
	s.mu.Lock()
	s.subs = append(s.subs, fn)
	s.mu.Unlock()
}

func (s *Store) set(cfg *Config) {
	s.mu.Lock()
	s.cfg = cfg
	subs := make([]func(*Config), len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, fn := range subs {
		cpy := *cfg
		fn(&cpy)
	}
}

// setDefaults registers the documented default for every tunable.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", ":8080")
	v.SetDefault("upstream.base_url", "https://api.openai.com/v1")
	v.SetDefault("upstream.api_key", "")
	v.SetDefault("upstream.model", "gpt-4o-mini")
	v.SetDefault("upstream.attempt_timeout", 30*time.Second)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("cache.ttl", 30*time.Minute)
	v.SetDefault("ratelimit.ceiling", 100)
	v.SetDefault("ratelimit.window", time.Hour)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff", time.Second)
	v.SetDefault("retry.max_backoff", 30*time.Second)
	v.SetDefault("memory.threshold_bytes", 500*1024*1024)
	v.SetDefault("memory.min_interval", time.Minute)
	v.SetDefault("limits.max_message_chars", 8192)
	v.SetDefault("limits.max_context_chars", 16384)
	v.SetDefault("limits.max_prompt_tokens", 0)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.pretty", false)
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.AddConfigPath(path)
	} else {
		v.AddConfigPath("./configs")
	}
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	return v
}

// LoadAndWatch loads the config and watches for on-disk changes.
// A missing config file is not an error: defaults and environment
// overrides still apply, but no watcher is installed.
func LoadAndWatch(path string) (*Store, error) {
	v := newViper(path)

	haveFile := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		haveFile = false
	}

	store := &Store{}
	if err := refresh(v, store); err != nil {
		return nil, err
	}

	if haveFile {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			if err := refresh(v, store); err != nil {
				log.Error().Err(err).Str("file", e.Name).Msg("Config reload failed")
			} else {
				log.Info().Str("file", e.Name).Msg("Config reloaded")
			}
		})
	}

	return store, nil
}

// Load loads once and does not watch.
func Load(path string) (*Config, error) {
	store, err := LoadAndWatch(path)
	if err != nil {
		return nil, err
	}
	return store.Get(), nil
}

func refresh(v *viper.Viper, store *Store) error {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return err
	}
	store.set(&cfg)
	return nil
}
