package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

const EnvPrefix = "storefront"

type Config struct {
	App     AppConfig
	API     APIConfig
	Storage StorageConfig
	Redis   RedisConfig
	Cache   CacheConfig
	Search  SearchConfig
	Payment PaymentConfig
	Retry   RetryConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Storage.Driver == StorageDriverRedis && strings.TrimSpace(c.Redis.URL) == "" {
		return fmt.Errorf("STOREFRONT_REDIS_URL is required when storage driver is %q", StorageDriverRedis)
	}
	return nil
}

type AppConfig struct {
	Env          string `envconfig:"STOREFRONT_APP_ENV" default:"dev"`
	LogLevel     string `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, "dev")
}

type APIConfig struct {
	BaseURL      string        `envconfig:"STOREFRONT_API_BASE_URL" required:"true" validate:"url"`
	ClientKey    string        `envconfig:"STOREFRONT_API_CLIENT_KEY" required:"true" validate:"required"`
	ClientSecret string        `envconfig:"STOREFRONT_API_CLIENT_SECRET" required:"true" validate:"required"`
	Timeout      time.Duration `envconfig:"STOREFRONT_API_TIMEOUT" default:"30s"`
}

const (
	StorageDriverBadger = "badger"
	StorageDriverRedis  = "redis"
	StorageDriverMemory = "memory"
)

type StorageConfig struct {
	Driver string `envconfig:"STOREFRONT_STORAGE_DRIVER" default:"badger" validate:"oneof=badger redis memory"`
	Path   string `envconfig:"STOREFRONT_STORAGE_PATH" default:".storefront/cache"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STOREFRONT_REDIS_URL"`
	DialTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOREFRONT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// CacheConfig holds the staleness windows applied by the synced stores.
type CacheConfig struct {
	StaleWindow       time.Duration `envconfig:"STOREFRONT_CACHE_STALE_WINDOW" default:"5m"`
	BackgroundRefresh time.Duration `envconfig:"STOREFRONT_CACHE_BACKGROUND_REFRESH" default:"1m"`
}

type SearchConfig struct {
	Debounce time.Duration `envconfig:"STOREFRONT_SEARCH_DEBOUNCE" default:"300ms"`
}

// PaymentConfig bounds the online-gateway completion wait and configures the
// local callback listener.
type PaymentConfig struct {
	WaitWindow   time.Duration `envconfig:"STOREFRONT_PAYMENT_WAIT_WINDOW" default:"15m"`
	CallbackAddr string        `envconfig:"STOREFRONT_PAYMENT_CALLBACK_ADDR" default:"127.0.0.1:9099"`
}

// RetryConfig drives the wishlist fixed-retry wrapper.
type RetryConfig struct {
	Attempts int           `envconfig:"STOREFRONT_RETRY_ATTEMPTS" default:"3" validate:"min=1"`
	Step     time.Duration `envconfig:"STOREFRONT_RETRY_STEP" default:"1s"`
}
