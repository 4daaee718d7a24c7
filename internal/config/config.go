// Package config loads cratedig settings from a YAML file, the environment
// and a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/rsilvagit/cratedig/internal/bandcamp"
	"github.com/rsilvagit/cratedig/internal/batch"
	"github.com/rsilvagit/cratedig/internal/currency"
	"github.com/rsilvagit/cratedig/internal/discogs"
	"github.com/rsilvagit/cratedig/internal/httpclient"
	"github.com/rsilvagit/cratedig/internal/logger"
	"github.com/rsilvagit/cratedig/internal/model"
	"github.com/rsilvagit/cratedig/internal/rank"
	"github.com/rsilvagit/cratedig/internal/source"
)

type Config struct {
	Discogs  DiscogsConfig  `yaml:"discogs"`
	Bandcamp BandcampConfig `yaml:"bandcamp"`
	Batch    BatchConfig    `yaml:"batch"`
	HTTP     HTTPConfig     `yaml:"http"`
	Currency CurrencyConfig `yaml:"currency"`
	Search   SearchConfig   `yaml:"search"`
	Redis    RedisConfig    `yaml:"redis"`
	Server   ServerConfig   `yaml:"server"`
	Notify   NotifyConfig   `yaml:"notify"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type DiscogsConfig struct {
	Username           string `yaml:"username"`
	APIURL             string `yaml:"api_url"`
	WebURL             string `yaml:"web_url"`
	CollectConcurrency int    `yaml:"collect_concurrency"`
}

type BandcampConfig struct {
	Username    string `yaml:"username"`
	BaseURL     string `yaml:"base_url"`
	Concurrency int    `yaml:"concurrency"`
}

type BatchConfig struct {
	MaxBatchSize int           `yaml:"max_batch_size"`
	Cooldown     time.Duration `yaml:"cooldown"`
	WaveTimeout  time.Duration `yaml:"wave_timeout"`
}

type HTTPConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	ProxyURL  string        `yaml:"proxy_url"`
	Retry     RetryConfig   `yaml:"retry"`
	HostRPS   float64       `yaml:"host_rps"`
	HostBurst int           `yaml:"host_burst"`
}

type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Delay       time.Duration `yaml:"delay"`
}

type CurrencyConfig struct {
	Reference    string  `yaml:"reference"`
	APIURL       string  `yaml:"api_url"`
	FallbackRate float64 `yaml:"fallback_rate"`
}

type SearchConfig struct {
	TopN       int     `yaml:"top_n"`
	MaxPrice   float64 `yaml:"max_price"`
	Conditions string  `yaml:"conditions"`
}

type RedisConfig struct {
	URL             string        `yaml:"url"`
	RateTTL         time.Duration `yaml:"rate_ttl"`
	ProgressChannel string        `yaml:"progress_channel"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type NotifyConfig struct {
	TelegramToken  string `yaml:"telegram_token"`
	TelegramChatID string `yaml:"telegram_chat_id"`
	DiscordWebhook string `yaml:"discord_webhook"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Discogs: DiscogsConfig{
			APIURL:             discogs.DefaultAPIURL,
			WebURL:             discogs.DefaultWebURL,
			CollectConcurrency: discogs.DefaultCollectConcurrency,
		},
		Bandcamp: BandcampConfig{
			BaseURL:     bandcamp.DefaultBaseURL,
			Concurrency: bandcamp.DefaultConcurrency,
		},
		Batch: BatchConfig{
			MaxBatchSize: batch.MaxBatchSize,
			Cooldown:     batch.DefaultCooldown,
		},
		HTTP: HTTPConfig{
			Timeout: 30 * time.Second,
			Retry: RetryConfig{
				MaxAttempts: httpclient.DefaultRetry.MaxAttempts,
				Delay:       httpclient.DefaultRetry.Delay,
			},
		},
		Currency: CurrencyConfig{
			Reference:    string(currency.USD),
			APIURL:       currency.DefaultBaseURL,
			FallbackRate: currency.DefaultFallbackRate.InexactFloat64(),
		},
		Search: SearchConfig{TopN: rank.DefaultTopN},
		Redis: RedisConfig{
			RateTTL:         12 * time.Hour,
			ProgressChannel: "cratedig:progress",
		},
		Server: ServerConfig{Addr: ":8080"},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// LoadDotEnv loads variables from the given .env files. Missing files are
// ignored and variables already set are kept.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config: loading %s: %w", p, err)
		}
	}
	return nil
}

// Load reads the YAML file at path over the defaults, expanding ${VAR}
// references, then applies environment overrides. An empty path skips the
// file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	overrides := map[string]*string{
		"DISCOGS_USERNAME":    &c.Discogs.Username,
		"BANDCAMP_USERNAME":   &c.Bandcamp.Username,
		"REDIS_URL":           &c.Redis.URL,
		"TELEGRAM_TOKEN":      &c.Notify.TelegramToken,
		"TELEGRAM_CHAT_ID":    &c.Notify.TelegramChatID,
		"DISCORD_WEBHOOK_URL": &c.Notify.DiscordWebhook,
		"CRATEDIG_CURRENCY":   &c.Currency.Reference,
		"CRATEDIG_ADDR":       &c.Server.Addr,
	}
	for key, field := range overrides {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*field = v
		}
	}
}

// Validate checks every setting a run depends on. Usernames are checked per
// search, since the server receives them with each request.
func (c *Config) Validate() error {
	switch {
	case c.Batch.Cooldown <= 0:
		return &model.ConfigError{Field: "batch.cooldown", Reason: "must be positive"}
	case c.Batch.MaxBatchSize < 1 || c.Batch.MaxBatchSize > batch.MaxBatchSize:
		return &model.ConfigError{Field: "batch.max_batch_size", Reason: fmt.Sprintf("must be between 1 and %d", batch.MaxBatchSize)}
	case c.HTTP.Retry.MaxAttempts < 1:
		return &model.ConfigError{Field: "http.retry.max_attempts", Reason: "must be at least 1"}
	case c.HTTP.Retry.Delay < 0:
		return &model.ConfigError{Field: "http.retry.delay", Reason: "must not be negative"}
	case c.Search.TopN < 1:
		return &model.ConfigError{Field: "search.top_n", Reason: "must be at least 1"}
	case c.Currency.FallbackRate <= 0:
		return &model.ConfigError{Field: "currency.fallback_rate", Reason: "must be positive"}
	}

	switch currency.Code(strings.ToUpper(c.Currency.Reference)) {
	case currency.USD, currency.EUR, currency.GBP:
	default:
		return &model.ConfigError{Field: "currency.reference", Reason: fmt.Sprintf("%q is not supported", c.Currency.Reference)}
	}
	return nil
}

// ReferenceCurrency returns the currency every price is expressed in.
func (c *Config) ReferenceCurrency() currency.Code {
	return currency.Code(strings.ToUpper(c.Currency.Reference))
}

// HTTPOptions maps the HTTP section onto httpclient options.
func (c *Config) HTTPOptions(log *logger.Log) httpclient.Options {
	return httpclient.Options{
		ProxyURL:  c.HTTP.ProxyURL,
		Timeout:   c.HTTP.Timeout,
		Retry:     httpclient.RetryPolicy{MaxAttempts: c.HTTP.Retry.MaxAttempts, Delay: c.HTTP.Retry.Delay},
		HostRPS:   c.HTTP.HostRPS,
		HostBurst: c.HTTP.HostBurst,
		Logger:    log,
	}
}

// CurrencyOptions maps the currency section onto converter options. cache
// may be nil.
func (c *Config) CurrencyOptions(cache currency.RateCache, log *logger.Log) currency.Options {
	return currency.Options{
		BaseURL:  c.Currency.APIURL,
		Fallback: decimal.NewFromFloat(c.Currency.FallbackRate),
		Cache:    cache,
		Logger:   log,
	}
}

// SourceOptions maps the marketplace sections onto adapter options.
func (c *Config) SourceOptions(log *logger.Log) source.Options {
	ref := c.ReferenceCurrency()
	return source.Options{
		Discogs: discogs.ClientOptions{
			APIURL:   c.Discogs.APIURL,
			WebURL:   c.Discogs.WebURL,
			Currency: ref,
			Logger:   log,
		},
		DiscogsSource: discogs.SourceOptions{
			CollectConcurrency: c.Discogs.CollectConcurrency,
			Batch: batch.Options{
				MaxBatchSize: c.Batch.MaxBatchSize,
				Cooldown:     c.Batch.Cooldown,
				WaveTimeout:  c.Batch.WaveTimeout,
				Logger:       log,
			},
			Logger: log,
		},
		Bandcamp: bandcamp.Options{
			BaseURL:     c.Bandcamp.BaseURL,
			Currency:    ref,
			Concurrency: c.Bandcamp.Concurrency,
			Logger:      log,
		},
	}
}
