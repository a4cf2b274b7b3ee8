package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type sweeperConfig struct {
	Store   storeSettings   `mapstructure:"store"`
	Sweep   sweepSettings   `mapstructure:"sweep"`
	Metrics metricsSettings `mapstructure:"metrics"`
	Log     logSettings     `mapstructure:"log"`
}

// storeSettings selects the backend. Driver is "redis" or "postgres".
type storeSettings struct {
	Driver   string           `mapstructure:"driver"`
	Redis    redisSettings    `mapstructure:"redis"`
	Postgres postgresSettings `mapstructure:"postgres"`
}

type redisSettings struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type postgresSettings struct {
	DSN     string `mapstructure:"dsn"`
	Migrate bool   `mapstructure:"migrate"`
}

type sweepSettings struct {
	Interval  time.Duration `mapstructure:"interval"`
	BatchSize int           `mapstructure:"batch_size"`
	// MaxPasses bounds back-to-back passes within one tick while batches
	// come back full.
	MaxPasses int `mapstructure:"max_passes"`
}

type metricsSettings struct {
	// Addr is where /metrics is served. Empty disables the listener.
	Addr string `mapstructure:"addr"`
}

type logSettings struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "redis")
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.prefix", "zen")
	v.SetDefault("store.postgres.migrate", false)
	v.SetDefault("sweep.interval", 5*time.Minute)
	v.SetDefault("sweep.batch_size", 500)
	v.SetDefault("sweep.max_passes", 20)
	v.SetDefault("metrics.addr", ":9090")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

// loadConfig reads path (optional) and applies ZEN_* environment overrides,
// e.g. ZEN_STORE_REDIS_ADDR or ZEN_SWEEP_INTERVAL.
func loadConfig(path string) (*sweeperConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("ZEN")
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if err := bindEnvs(v, []string{
		"store.driver",
		"store.redis.addr",
		"store.redis.password",
		"store.redis.db",
		"store.redis.prefix",
		"store.postgres.dsn",
		"store.postgres.migrate",
		"sweep.interval",
		"sweep.batch_size",
		"sweep.max_passes",
		"metrics.addr",
		"log.level",
		"log.pretty",
	}); err != nil {
		return nil, err
	}
	v.AutomaticEnv()

	var cfg sweeperConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *sweeperConfig) validate() error {
	switch c.Store.Driver {
	case "redis":
		if c.Store.Redis.Addr == "" {
			return errors.New("store.redis.addr is required")
		}
	case "postgres":
		if c.Store.Postgres.DSN == "" {
			return errors.New("store.postgres.dsn is required")
		}
	default:
		return fmt.Errorf("store.driver %q is not one of redis, postgres", c.Store.Driver)
	}
	if c.Sweep.Interval <= 0 {
		return errors.New("sweep.interval must be > 0")
	}
	if c.Sweep.BatchSize <= 0 {
		return errors.New("sweep.batch_size must be > 0")
	}
	if c.Sweep.MaxPasses <= 0 {
		return errors.New("sweep.max_passes must be > 0")
	}
	return nil
}
