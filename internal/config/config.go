package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config stores all configuration for the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Search   SearchConfig
	Cache    CacheConfig
	Database DatabaseConfig
	Redis    RedisConfig
	History  HistoryConfig
	Alerts   AlertsConfig
	Notify   NotifyConfig
	Server   ServerConfig
	Log      LogConfig
}

// SearchConfig defines how award searches hit the loyalty program sites.
type SearchConfig struct {
	Concurrency        int           `mapstructure:"concurrency"`
	MonitorConcurrency int           `mapstructure:"monitor_concurrency"`
	Timeout            time.Duration `mapstructure:"timeout"`
	Headless           bool          `mapstructure:"headless"`
	RateLimitDelay     time.Duration `mapstructure:"rate_limit_delay"`
	Retries            int           `mapstructure:"retries"`
	MaxStops           int           `mapstructure:"max_stops"`
}

// CacheConfig selects the search cache backend.
type CacheConfig struct {
	Backend string        `mapstructure:"backend"` // redis, postgres or none
	TTL     time.Duration `mapstructure:"ttl"`
}

// DatabaseConfig defines the database connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN builds a postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s", d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode)
}

// RedisConfig defines the redis connection used by the search cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// HistoryConfig controls price history recording.
type HistoryConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	LookbackDays int  `mapstructure:"lookback_days"`
}

// AlertsConfig controls alert matching.
type AlertsConfig struct {
	DedupWindow time.Duration `mapstructure:"dedup_window"`
}

// NotifyConfig holds settings for notification channels that are not encoded in the target URL.
type NotifyConfig struct {
	WebhookTimeout time.Duration  `mapstructure:"webhook_timeout"`
	Telegram       TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig defines the bot used for telegram:<chat_id> targets.
type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	APIBase  string `mapstructure:"api_base"`
}

// ServerConfig defines the HTTP API and the background monitor it runs.
type ServerConfig struct {
	Listen          string        `mapstructure:"listen"`
	MonitorInterval time.Duration `mapstructure:"monitor_interval"`
	MonitorDays     int           `mapstructure:"monitor_days"`
}

// LogConfig defines the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("search.concurrency", 5)
	v.SetDefault("search.monitor_concurrency", 3)
	v.SetDefault("search.timeout", 45*time.Second)
	v.SetDefault("search.headless", true)
	v.SetDefault("search.rate_limit_delay", 2*time.Second)
	v.SetDefault("search.retries", 2)
	v.SetDefault("search.max_stops", 0)

	v.SetDefault("cache.backend", "postgres")
	v.SetDefault("cache.ttl", 4*time.Hour)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "wombat")
	v.SetDefault("database.password", "wombat")
	v.SetDefault("database.dbname", "wombat")
	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("history.enabled", true)
	v.SetDefault("history.lookback_days", 30)

	v.SetDefault("alerts.dedup_window", 24*time.Hour)

	v.SetDefault("notify.webhook_timeout", 10*time.Second)
	v.SetDefault("notify.telegram.bot_token", "")
	v.SetDefault("notify.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.monitor_interval", time.Hour)
	v.SetDefault("server.monitor_days", 7)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// New returns a viper instance with defaults, env bindings and search paths applied.
func New(paths ...string) *viper.Viper {
	v := viper.New()
	setDefaults(v)

	for _, p := range paths {
		if p != "" {
			v.AddConfigPath(p)
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".wombat-miles"))
	}
	v.AddConfigPath(".")
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("WOMBAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadConfig reads configuration from file or environment variables.
// A missing config file is not an error.
func LoadConfig(paths ...string) (Config, error) {
	return Load(New(paths...))
}

// Load unmarshals an already prepared viper instance, e.g. one with CLI flags bound.
func Load(v *viper.Viper) (config Config, err error) {
	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
	}
	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return config, fmt.Errorf("read config: %w", err)
		}
	}

	err = v.Unmarshal(&config)
	return
}
