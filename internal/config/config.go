package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
)

// Config holds all configuration for the application
type Config struct {
	Menu     MenuConfig     `mapstructure:"menu"`
	Session  SessionConfig  `mapstructure:"session"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Feed     FeedConfig     `mapstructure:"feed"`
	Log      LogConfig      `mapstructure:"log"`
}

// MenuConfig holds menu service endpoints and the default scope
type MenuConfig struct {
	BaseURL               string `mapstructure:"base_url"`
	StreamURL             string `mapstructure:"stream_url"`
	Partner               string `mapstructure:"partner"`
	Location              string `mapstructure:"location"`
	Timeout               int    `mapstructure:"timeout"`
	MaxRetries            int    `mapstructure:"max_retries"`
	MaxRequestsPerSecond  int    `mapstructure:"max_requests_per_second"`
	CircuitBreakerSeconds int    `mapstructure:"circuit_breaker_seconds"`
	KeysOnly              bool   `mapstructure:"keys_only"`
}

type SessionConfig struct {
	MaxLifetime    time.Duration `mapstructure:"max_lifetime"`
	CheckInterval  time.Duration `mapstructure:"check_interval"`
	OneShot        bool          `mapstructure:"one_shot"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
}

// StorageConfig selects the catalog index backend
type StorageConfig struct {
	Driver    string `mapstructure:"driver"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s", c.User, c.Password, c.Host, c.Port, c.Name)
}

// RedisConfig holds Redis connection details
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	Database int    `mapstructure:"database"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// FeedConfig controls mirroring of feed notifications to Redis streams
type FeedConfig struct {
	Mirror       bool          `mapstructure:"mirror"`
	StreamPrefix string        `mapstructure:"stream_prefix"`
	MaxLen       int64         `mapstructure:"max_len"`
	ClaimMinIdle time.Duration `mapstructure:"claim_min_idle"` // Pending messages idle this long are retried
	MaxAttempts  int           `mapstructure:"max_attempts"`   // Failed deliveries before a message is dropped
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load loads config.yaml from the current directory with environment
// variable overrides. A missing file leaves the defaults in place.
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom loads configuration from path, or from ./config.yaml when path
// is empty. Unlike Load, an explicit path must exist.
func LoadFrom(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case StorageRedis, StoragePostgres:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Menu.BaseURL == "" {
		return errors.New("menu.base_url must be set")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("menu.base_url", "http://localhost:8080")
	v.SetDefault("menu.stream_url", "")
	v.SetDefault("menu.partner", "")
	v.SetDefault("menu.location", "")
	v.SetDefault("menu.timeout", 30)
	v.SetDefault("menu.max_retries", 3)
	v.SetDefault("menu.max_requests_per_second", 10)
	v.SetDefault("menu.circuit_breaker_seconds", 60)
	v.SetDefault("menu.keys_only", false)

	v.SetDefault("session.max_lifetime", "8m")
	v.SetDefault("session.check_interval", "30s")
	v.SetDefault("session.one_shot", false)
	v.SetDefault("session.reconnect_delay", "5s")

	v.SetDefault("storage.driver", StorageRedis)
	v.SetDefault("storage.key_prefix", "menusync:")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "menusync")
	v.SetDefault("database.user", "menusync")
	v.SetDefault("database.password", "menusync")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.database", 0)

	v.SetDefault("feed.mirror", false)
	v.SetDefault("feed.stream_prefix", "menusync:stream:")
	v.SetDefault("feed.max_len", 10000)
	v.SetDefault("feed.claim_min_idle", "30s")
	v.SetDefault("feed.max_attempts", 3)

	v.SetDefault("log.level", "info")
}
