package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "NOINDEX_SEO"

// Load reads path (yaml) with NOINDEX_SEO_* environment overrides. An empty
// path uses $NOINDEX_SEO_CONFIG, then ./config.yaml when it exists, then defaults.
func Load(path string) (*Config, *viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = os.Getenv(envPrefix + "_CONFIG")
	}
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, nil, err
	}
	return cfg, v, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.upstream", "")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.max_body_bytes", 5*1024*1024)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "noindex-seo.db")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("cache.driver", "memory")
	v.SetDefault("cache.ttl", time.Hour)
	v.SetDefault("cache.addr", "localhost:6379")
	v.SetDefault("cache.password", "")
	v.SetDefault("cache.db", 0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("security.jwt_secret", "")
	v.SetDefault("security.issuer", "noindex-seo")
	v.SetDefault("security.token_ttl", 24*time.Hour)
	v.SetDefault("security.nonce_ttl", 12*time.Hour)
}

func Validate(cfg *Config) error {
	switch cfg.Database.Driver {
	case "sqlite", "mysql":
	default:
		return fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
	if cfg.Database.DSN == "" {
		return fmt.Errorf("database dsn is required")
	}
	switch cfg.Cache.Driver {
	case "memory", "redis":
	default:
		return fmt.Errorf("unsupported cache driver %q", cfg.Cache.Driver)
	}
	if cfg.Cache.TTL <= 0 {
		return fmt.Errorf("cache ttl must be positive")
	}
	if s := cfg.Security.JWTSecret; s != "" && len(s) < 32 {
		return fmt.Errorf("jwt secret must be at least 32 characters long")
	}
	for i, r := range cfg.Routes {
		if r.Pattern == "" {
			return fmt.Errorf("routes[%d]: pattern is required", i)
		}
		if len(r.Sets) == 0 {
			return fmt.Errorf("routes[%d]: sets is required", i)
		}
	}
	return nil
}
