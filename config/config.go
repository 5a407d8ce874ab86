package config

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/spf13/viper"
)

/* Config is loaded from a .env file (TOML) in the working directory, overridden by
 * environment variables. The file is optional; every key has a default.
 */

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

type Config struct {
	Port     string `mapstructure:"PORT"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	StorageDriver string `mapstructure:"STORAGE_DRIVER"`

	PostgresURL             string `mapstructure:"POSTGRES_URL"`
	PostgresMaxOpenConns    int    `mapstructure:"POSTGRES_MAX_OPEN_CONNS"`
	PostgresMaxIdleConns    int    `mapstructure:"POSTGRES_MAX_IDLE_CONNS"`
	PostgresConnMaxLifetime int    `mapstructure:"POSTGRES_CONN_MAX_LIFETIME_MINUTES"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	WebhookTimeoutSeconds int    `mapstructure:"WEBHOOK_TIMEOUT_SECONDS"`
	WebhookUserAgent      string `mapstructure:"WEBHOOK_USER_AGENT"`
	DispatchConcurrency   int    `mapstructure:"DISPATCH_CONCURRENCY"`
	DeliveryLogCap        int    `mapstructure:"DELIVERY_LOG_CAP"`

	EndpointsFile         string `mapstructure:"ENDPOINTS_FILE"`
	RateLimitSweepSeconds int    `mapstructure:"RATE_LIMIT_SWEEP_SECONDS"`
	TrustedProxies        string `mapstructure:"TRUSTED_PROXIES"` // comma-separated IPs or CIDRs

	RetryEnabled     bool `mapstructure:"RETRY_ENABLED"`
	RetryPollSeconds int  `mapstructure:"RETRY_POLL_SECONDS"`
}

var defaults = map[string]any{
	"PORT":                               "8000",
	"LOG_LEVEL":                          "info",
	"STORAGE_DRIVER":                     DriverMemory,
	"POSTGRES_URL":                       "",
	"POSTGRES_MAX_OPEN_CONNS":            25,
	"POSTGRES_MAX_IDLE_CONNS":            5,
	"POSTGRES_CONN_MAX_LIFETIME_MINUTES": 5,
	"REDIS_ADDR":                         "localhost:6379",
	"REDIS_PASSWORD":                     "",
	"REDIS_DB":                           0,
	"WEBHOOK_TIMEOUT_SECONDS":            30,
	"WEBHOOK_USER_AGENT":                 "Heatmap-Webhook/1.0",
	"DISPATCH_CONCURRENCY":               8,
	"DELIVERY_LOG_CAP":                   1000,
	"ENDPOINTS_FILE":                     "",
	"RATE_LIMIT_SWEEP_SECONDS":           60,
	"TRUSTED_PROXIES":                    "",
	"RETRY_ENABLED":                      false,
	"RETRY_POLL_SECONDS":                 5,
}

func GetConfig() (*Config, error) {
	return Load(".")
}

// Load reads .env from dir when present
func Load(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("toml")
	v.AddConfigPath(dir)
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("parsing config data: %w", err)
	}
	config.StorageDriver = strings.ToLower(strings.TrimSpace(config.StorageDriver))
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &config, nil
}

// Validate checks cross-field constraints
func (c *Config) Validate() error {
	switch c.StorageDriver {
	case DriverMemory, DriverRedis:
	case DriverPostgres:
		if c.PostgresURL == "" {
			return fmt.Errorf("POSTGRES_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.WebhookTimeoutSeconds <= 0 {
		return fmt.Errorf("WEBHOOK_TIMEOUT_SECONDS must be positive")
	}
	if c.DispatchConcurrency <= 0 {
		return fmt.Errorf("DISPATCH_CONCURRENCY must be positive")
	}
	if c.DeliveryLogCap < 0 {
		return fmt.Errorf("DELIVERY_LOG_CAP cannot be negative")
	}
	if c.RateLimitSweepSeconds <= 0 {
		return fmt.Errorf("RATE_LIMIT_SWEEP_SECONDS must be positive")
	}
	if _, err := c.TrustedProxyPrefixes(); err != nil {
		return err
	}
	if c.RetryEnabled && c.RetryPollSeconds <= 0 {
		return fmt.Errorf("RETRY_POLL_SECONDS must be positive when retries are enabled")
	}
	return nil
}

/* TrustedProxyPrefixes parses TRUSTED_PROXIES. Forwarding headers are only
 * honoured when the socket peer falls in one of these prefixes; empty trusts nobody.
 */
func (c *Config) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	var prefixes []netip.Prefix
	for _, raw := range strings.Split(c.TrustedProxies, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.Contains(raw, "/") {
			prefix, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid TRUSTED_PROXIES entry %q: %w", raw, err)
			}
			prefixes = append(prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid TRUSTED_PROXIES entry %q: %w", raw, err)
		}
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

func (c *Config) WebhookTimeout() time.Duration {
	return time.Duration(c.WebhookTimeoutSeconds) * time.Second
}

func (c *Config) RateLimitSweepInterval() time.Duration {
	return time.Duration(c.RateLimitSweepSeconds) * time.Second
}

func (c *Config) RetryPollInterval() time.Duration {
	return time.Duration(c.RetryPollSeconds) * time.Second
}

func (c *Config) PostgresConnMaxLifetimeDuration() time.Duration {
	return time.Duration(c.PostgresConnMaxLifetime) * time.Minute
}
