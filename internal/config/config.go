// Package config loads linkcache settings from defaults, an optional YAML
// file and LINKCACHE_* environment variables, in increasing precedence.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/IvanBrykalov/linkcache/internal/errs"
	"github.com/IvanBrykalov/linkcache/internal/logging"
	"github.com/IvanBrykalov/linkcache/internal/util"
)

// EnvPrefix prefixes environment overrides: cache.ttl is LINKCACHE_CACHE_TTL.
const EnvPrefix = "LINKCACHE"

type Config struct {
	Cache     CacheConfig     `mapstructure:"cache"`
	Store     StoreConfig     `mapstructure:"store"`
	Shortener ShortenerConfig `mapstructure:"shortener"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Log       LogConfig       `mapstructure:"log"`
}

type CacheConfig struct {
	MaxEntries    int           `mapstructure:"max_entries"`
	TTL           time.Duration `mapstructure:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	Shards        int           `mapstructure:"shards"`
}

type StoreConfig struct {
	Driver    string        `mapstructure:"driver"`
	DSN       string        `mapstructure:"dsn"`
	RedisAddr string        `mapstructure:"redis_addr"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Breaker   BreakerConfig `mapstructure:"breaker"`
}

type BreakerConfig struct {
	MaxFailures uint32        `mapstructure:"max_failures"`
	OpenTimeout time.Duration `mapstructure:"open_timeout"`
}

type ShortenerConfig struct {
	IDLength       int    `mapstructure:"id_length"`
	RefreshOnReuse bool   `mapstructure:"refresh_on_reuse"`
	BaseURL        string `mapstructure:"base_url"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Store drivers.
const (
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

// Load reads the configuration. An empty configFile searches ./configs and
// the working directory for config.yaml and falls back to defaults and env
// when none exists; an explicit configFile must exist.
func Load(ctx context.Context, configFile string) (Config, error) {
	if ctx == nil {
		return Config{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return Config{}, errs.Wrap(err, "check context")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "config"))

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile == "" && errors.As(err, &notFound) {
			logging.Debug(logCtx, "config file not found, using defaults and env")
		} else {
			return Config{}, errs.Wrap(err, "read config")
		}
	} else {
		logging.Info(logCtx, "using config file", slog.String("path", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errs.Wrap(err, "unmarshal config")
	}
	cfg.Store.Driver = strings.ToLower(strings.TrimSpace(cfg.Store.Driver))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	logging.Debug(logCtx, "config loaded",
		slog.String("store_driver", cfg.Store.Driver),
		slog.Int("cache_max_entries", cfg.Cache.MaxEntries),
		slog.Duration("cache_ttl", cfg.Cache.TTL),
	)
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case c.Cache.MaxEntries <= 0:
		return errors.New("cache.max_entries must be > 0")
	case c.Cache.TTL <= 0:
		return errors.New("cache.ttl must be > 0")
	case c.Cache.SweepInterval <= 0:
		return errors.New("cache.sweep_interval must be > 0")
	case c.Cache.Shards < 0:
		return errors.New("cache.shards must be >= 0")
	case c.Cache.Shards > util.MaxShards:
		return fmt.Errorf("cache.shards must be <= %d", util.MaxShards)
	case c.Store.Timeout <= 0:
		return errors.New("store.timeout must be > 0")
	case c.Shortener.IDLength < 4:
		return errors.New("shortener.id_length must be >= 4")
	}

	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.DSN == "" {
			return errors.New("store.dsn is required for the sqlite driver")
		}
	case DriverRedis:
		if c.Store.RedisAddr == "" {
			return errors.New("store.redis_addr is required for the redis driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unsupported store driver %q", c.Store.Driver)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("cache.max_entries", 100)
	v.SetDefault("cache.ttl", 24*time.Hour)
	v.SetDefault("cache.sweep_interval", time.Hour)
	v.SetDefault("cache.shards", 0)
	v.SetDefault("store.driver", DriverSQLite)
	v.SetDefault("store.dsn", "data/links.sqlite")
	v.SetDefault("store.redis_addr", "127.0.0.1:6379")
	v.SetDefault("store.timeout", 2*time.Second)
	v.SetDefault("store.breaker.max_failures", 5)
	v.SetDefault("store.breaker.open_timeout", 30*time.Second)
	v.SetDefault("shortener.id_length", 21)
	v.SetDefault("shortener.refresh_on_reuse", true)
	v.SetDefault("shortener.base_url", "")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("log.level", "info")
}
