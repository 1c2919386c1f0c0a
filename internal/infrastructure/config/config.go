package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

type Config struct {
	Server    ServerConfig              `mapstructure:"server"`
	Database  DatabaseConfig            `mapstructure:"database"`
	Redis     RedisConfig               `mapstructure:"redis"`
	Logging   LoggingConfig             `mapstructure:"logging"`
	Providers map[string]ProviderConfig `mapstructure:"providers"`
	Cache     CacheConfig               `mapstructure:"cache"`
	RateLimit RateLimitConfig           `mapstructure:"rate_limit"`
	Tracking  TrackingConfig            `mapstructure:"tracking"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	EnableCORS   bool          `mapstructure:"enable_cors"`
}

type DatabaseConfig struct {
	Host               string        `mapstructure:"host"`
	Port               int           `mapstructure:"port"`
	Username           string        `mapstructure:"username"`
	Password           string        `mapstructure:"password"`
	Database           string        `mapstructure:"database"`
	SSLMode            string        `mapstructure:"ssl_mode"`
	MaxOpenConnections int           `mapstructure:"max_open_connections"`
	MaxIdleConnections int           `mapstructure:"max_idle_connections"`
	ConnMaxLife        time.Duration `mapstructure:"conn_max_life"`
	ConnectRetries     int           `mapstructure:"connect_retries"`
	ConnectBackoff     time.Duration `mapstructure:"connect_backoff"`
}

type RedisConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	Database     int           `mapstructure:"database"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ProviderConfig configures one upstream booking API client. Disabled
// providers are skipped at wiring time.
type ProviderConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	BaseURL       string        `mapstructure:"base_url"`
	APIKey        string        `mapstructure:"api_key"`
	APISecret     string        `mapstructure:"api_secret"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RateLimit     float64       `mapstructure:"rate_limit"`
	BurstLimit    int           `mapstructure:"burst_limit"`
	MaxRetries    int           `mapstructure:"max_retries"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
}

type CacheConfig struct {
	Prefix     string        `mapstructure:"prefix"`
	SearchTTL  time.Duration `mapstructure:"search_ttl"`
	DetailsTTL time.Duration `mapstructure:"details_ttl"`
	PurgeEvery time.Duration `mapstructure:"purge_every"`
}

// RateLimitConfig maps operation classes to sliding-window rules. The
// "default" class is mandatory: routes without an explicit class fall back to
// it and the service refuses to start without one.
type RateLimitConfig struct {
	Classes map[string]LimitRule `mapstructure:"classes"`
}

type LimitRule struct {
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

type TrackingConfig struct {
	Cities         []string      `mapstructure:"cities"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	Lookback       time.Duration `mapstructure:"lookback"`
	SnapshotTTL    time.Duration `mapstructure:"snapshot_ttl"`
	SampleInterval time.Duration `mapstructure:"sample_interval"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
}

func LoadConfig() (*Config, error) {
	if err := gotenv.Load(); err != nil {
		_ = gotenv.Load("../.env")
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	expandConfigEnvVars(&config)
	applyDefaults(&config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func expandConfigEnvVars(config *Config) {
	config.Server.Host = os.ExpandEnv(config.Server.Host)

	config.Database.Host = os.ExpandEnv(config.Database.Host)
	config.Database.Username = os.ExpandEnv(config.Database.Username)
	config.Database.Password = os.ExpandEnv(config.Database.Password)
	config.Database.Database = os.ExpandEnv(config.Database.Database)

	config.Redis.Host = os.ExpandEnv(config.Redis.Host)
	config.Redis.Password = os.ExpandEnv(config.Redis.Password)

	for name, provider := range config.Providers {
		provider.BaseURL = os.ExpandEnv(provider.BaseURL)
		provider.APIKey = os.ExpandEnv(provider.APIKey)
		provider.APISecret = os.ExpandEnv(provider.APISecret)
		config.Providers[name] = provider
	}
}

func applyDefaults(config *Config) {
	if config.Database.ConnectRetries <= 0 {
		config.Database.ConnectRetries = 5
	}
	if config.Database.ConnectBackoff <= 0 {
		config.Database.ConnectBackoff = time.Second
	}
	if config.Cache.Prefix == "" {
		config.Cache.Prefix = "hoteltracking:"
	}
	if config.Cache.SearchTTL <= 0 {
		config.Cache.SearchTTL = 5 * time.Minute
	}
	if config.Cache.DetailsTTL <= 0 {
		config.Cache.DetailsTTL = time.Hour
	}
	if config.Cache.PurgeEvery <= 0 {
		config.Cache.PurgeEvery = 10 * time.Minute
	}
	if config.Tracking.PollInterval <= 0 {
		config.Tracking.PollInterval = 5 * time.Minute
	}
	if config.Tracking.Lookback <= 0 {
		config.Tracking.Lookback = 30 * 24 * time.Hour
	}
	if config.Tracking.SnapshotTTL <= 0 {
		config.Tracking.SnapshotTTL = 5 * time.Minute
	}
	if config.Tracking.SampleInterval <= 0 {
		config.Tracking.SampleInterval = 15 * time.Minute
	}
	if config.Tracking.MaxBackoff <= 0 {
		config.Tracking.MaxBackoff = 10 * time.Minute
	}
	for name, provider := range config.Providers {
		if provider.Timeout <= 0 {
			provider.Timeout = 10 * time.Second
		}
		if provider.RateLimit <= 0 {
			provider.RateLimit = 10
		}
		if provider.BurstLimit <= 0 {
			provider.BurstLimit = 5
		}
		if provider.RetryInterval <= 0 {
			provider.RetryInterval = 500 * time.Millisecond
		}
		config.Providers[name] = provider
	}
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.Username, c.Password, c.Database, c.SSLMode)
}

func (c *RedisConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// EnabledProviders returns the names of providers that will be wired, in a
// stable order so aggregation tie-breaks stay deterministic across restarts.
func (c *Config) EnabledProviders() []string {
	order := []string{"expedia", "booking", "hotels", "amadeus"}
	var enabled []string
	for _, name := range order {
		if p, ok := c.Providers[name]; ok && p.Enabled {
			enabled = append(enabled, name)
		}
	}
	return enabled
}

func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	enabled := c.EnabledProviders()
	if len(enabled) == 0 {
		return fmt.Errorf("at least one provider must be enabled")
	}
	for _, name := range enabled {
		p := c.Providers[name]
		if p.BaseURL == "" {
			return fmt.Errorf("provider %s: base URL is required", name)
		}
		if !strings.HasPrefix(p.BaseURL, "http://") && !strings.HasPrefix(p.BaseURL, "https://") {
			p.BaseURL = "https://" + p.BaseURL
			c.Providers[name] = p
		}
		if p.APIKey == "" {
			return fmt.Errorf("provider %s: API key is required", name)
		}
	}

	// Running without a default class would mean running without a limit.
	if _, ok := c.RateLimit.Classes["default"]; !ok {
		return fmt.Errorf("rate limit class %q is required", "default")
	}
	for name, rule := range c.RateLimit.Classes {
		if rule.Limit <= 0 {
			return fmt.Errorf("rate limit class %q: limit must be positive", name)
		}
		if rule.Window <= 0 {
			return fmt.Errorf("rate limit class %q: window must be positive", name)
		}
	}

	return nil
}
