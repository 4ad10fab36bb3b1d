package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Storage drivers.
const (
	StorageMemory = "memory"
	StorageRedis  = "redis"
)

// Config holds the complete cart configuration, loadable from environment
// variables (CART_ prefix) or YAML config files.
type Config struct {
	StoreID     string        `env:"STORE_ID" yaml:"store_id" usage:"Store identifier sent with every lookup and order"`
	Currency    string        `env:"CURRENCY" yaml:"currency" default:"MXN" usage:"ISO 4217 currency code of the store"`
	Locale      string        `env:"LOCALE" yaml:"locale" default:"es-MX" usage:"BCP 47 locale for amounts"`
	Session     string        `env:"SESSION" yaml:"session" default:"default" usage:"Cart session name; handles sharing a name share a cart"`
	DatabaseURL string        `env:"DATABASE_URL" yaml:"database_url" usage:"PostgreSQL catalog URL (CART_DATABASE_URL or DATABASE_URL)"`
	Storage     StorageConfig `env:"STORAGE" yaml:"storage"`
	Edge        EdgeConfig    `env:"EDGE" yaml:"edge"`
	Coupon      CouponConfig  `env:"COUPON" yaml:"coupon"`
}

// StorageConfig selects where the cart is persisted.
type StorageConfig struct {
	Driver string      `env:"DRIVER" yaml:"driver" default:"memory" usage:"memory or redis"`
	Redis  RedisConfig `env:"REDIS" yaml:"redis"`
}

// RedisConfig configures the Redis storage driver.
type RedisConfig struct {
	Addr     string `env:"ADDR" yaml:"addr" default:"localhost:6379" usage:"Redis address"`
	Password string `env:"PASSWORD" yaml:"password" usage:"Redis password"`
	DB       int    `env:"DB" yaml:"db" default:"0" usage:"Redis database"`
	Prefix   string `env:"PREFIX" yaml:"prefix" default:"cart:" usage:"Key prefix; the store and session are appended"`
}

// EdgeConfig points at the storefront's edge functions.
type EdgeConfig struct {
	URL     string        `env:"URL" yaml:"url" usage:"Edge functions base URL"`
	Key     string        `env:"KEY" yaml:"key" usage:"Public API key"`
	Timeout time.Duration `env:"TIMEOUT" yaml:"timeout" default:"15s" usage:"Per call timeout"`
}

// CouponConfig controls coupon attempts.
type CouponConfig struct {
	MaxAttempts int           `env:"MAX_ATTEMPTS" yaml:"max_attempts" default:"5" usage:"Failed codes a cart may try per window; 0 disables throttling"`
	Window      time.Duration `env:"WINDOW" yaml:"window" default:"1m" usage:"How long a failed code counts against the cart"`
	KnownCodes  string        `env:"KNOWN_CODES" yaml:"known_codes" usage:"Path to a known-code filter built by coupon-ingest"`
}

// DefaultFiles are the config files read when none are given.
var DefaultFiles = []string{"cart.yaml", "/etc/cart/cart.yaml"}

// LoadConfig loads configuration from environment variables and YAML files.
// Missing files are skipped.
func LoadConfig(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = DefaultFiles
	}
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		SkipFlags: true,
		EnvPrefix: "CART",
		Files:     files,
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.StoreID == "" {
		return errors.New("store id is required: set CART_STORE_ID")
	}
	switch c.Storage.Driver {
	case StorageMemory, StorageRedis:
	default:
		return errors.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Coupon.MaxAttempts < 0 {
		return errors.New("coupon max attempts must not be negative")
	}
	return nil
}

// applyPlatformDefaults maps the conventional DATABASE_URL variable.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
}

// redisPrefix namespaces one session's keys and change channel.
func (c *Config) redisPrefix() string {
	return c.Storage.Redis.Prefix + c.StoreID + ":" + c.Session + ":"
}
