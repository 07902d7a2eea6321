package config

import "time"

type Config struct {
	Server       ServerConfig      `mapstructure:"server"`
	Database     DatabaseConfig    `mapstructure:"database"`
	Cache        CacheConfig       `mapstructure:"cache"`
	Log          LogConfig         `mapstructure:"log"`
	Security     SecurityConfig    `mapstructure:"security"`
	Routes       []RouteRule       `mapstructure:"routes"`
	Integrations IntegrationConfig `mapstructure:"integrations"`
}

type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	Upstream     string        `mapstructure:"upstream"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, mysql
	DSN             string        `mapstructure:"dsn"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LogLevel        string        `mapstructure:"log_level"`
}

type CacheConfig struct {
	Driver   string        `mapstructure:"driver"` // memory, redis
	TTL      time.Duration `mapstructure:"ttl"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

type SecurityConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	Issuer    string        `mapstructure:"issuer"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
	NonceTTL  time.Duration `mapstructure:"nonce_ttl"`
}

// RouteRule maps request paths to page predicates. Sets holds context names
// ("category", "archive", ...); ItemGroup is the regexp group with the item id.
type RouteRule struct {
	Pattern   string   `mapstructure:"pattern"`
	Query     string   `mapstructure:"query"`
	Sets      []string `mapstructure:"sets"`
	ItemGroup int      `mapstructure:"item_group"`
}

type IntegrationConfig struct {
	Active []string `mapstructure:"active"`
}
