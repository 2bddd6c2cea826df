package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"currency-rate-alerts/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App          AppConfig          `mapstructure:"app"`
	Logging      logging.Config     `mapstructure:"logging"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Telegram     TelegramConfig     `mapstructure:"telegram"`
	Fetcher      FetcherConfig      `mapstructure:"fetcher"`
	Monitor      MonitorConfig      `mapstructure:"monitor"`
	Broadcast    BroadcastConfig    `mapstructure:"broadcast"`
	Dispatch     DispatchConfig     `mapstructure:"dispatch"`
	Conversation ConversationConfig `mapstructure:"conversation"`
	Export       ExportConfig       `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// TelegramConfig covers Bot API connectivity.
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	APIBase        string        `mapstructure:"api_base"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// FetcherConfig captures NBKR data source connectivity.
type FetcherConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// MonitorConfig governs the alert-monitoring cycle cadence.
type MonitorConfig struct {
	WeekdayInterval     time.Duration `mapstructure:"weekday_interval"`
	WeekendInterval     time.Duration `mapstructure:"weekend_interval"`
	StartupDelay        time.Duration `mapstructure:"startup_delay"`
	HistoryThresholdPct float64       `mapstructure:"history_threshold_pct"`
	Currencies          []string      `mapstructure:"currencies"`
}

// BroadcastConfig sets the daily digest schedule.
type BroadcastConfig struct {
	Hour   int `mapstructure:"hour"`
	Minute int `mapstructure:"minute"`
}

// DispatchConfig tunes notification delivery pacing.
type DispatchConfig struct {
	Pacing      time.Duration `mapstructure:"pacing"`
	SendTimeout time.Duration `mapstructure:"send_timeout"`
}

// ConversationConfig governs guided-flow state expiry.
type ConversationConfig struct {
	TTL           time.Duration `mapstructure:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RATEBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "ratebot")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("telegram.api_base", "https://api.telegram.org")
	v.SetDefault("telegram.request_timeout", "10s")

	v.SetDefault("fetcher.base_url", "https://www.nbkr.kg")
	v.SetDefault("fetcher.request_timeout", "15s")
	v.SetDefault("fetcher.user_agent", "ratebot/1.0")

	v.SetDefault("monitor.weekday_interval", "1h")
	v.SetDefault("monitor.weekend_interval", "6h")
	v.SetDefault("monitor.startup_delay", "5s")
	v.SetDefault("monitor.history_threshold_pct", 0.1)
	v.SetDefault("monitor.currencies", []string{"USD", "EUR", "RUB", "KZT", "CNY", "TRY"})

	v.SetDefault("broadcast.hour", 9)
	v.SetDefault("broadcast.minute", 5)

	v.SetDefault("dispatch.pacing", "100ms")
	v.SetDefault("dispatch.send_timeout", "10s")

	v.SetDefault("conversation.ttl", "10m")
	v.SetDefault("conversation.sweep_interval", "10m")

	v.SetDefault("export.max_data_points", 100000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Monitor.WeekdayInterval <= 0 {
		return fmt.Errorf("monitor.weekday_interval must be greater than zero")
	}
	if c.Monitor.WeekendInterval <= 0 {
		return fmt.Errorf("monitor.weekend_interval must be greater than zero")
	}
	if c.Monitor.HistoryThresholdPct < 0 {
		return fmt.Errorf("monitor.history_threshold_pct cannot be negative")
	}
	if len(c.Monitor.Currencies) == 0 {
		return fmt.Errorf("monitor.currencies must not be empty")
	}
	if c.Broadcast.Hour < 0 || c.Broadcast.Hour > 23 {
		return fmt.Errorf("broadcast.hour must be within 0-23")
	}
	if c.Broadcast.Minute < 0 || c.Broadcast.Minute > 59 {
		return fmt.Errorf("broadcast.minute must be within 0-59")
	}
	if c.Dispatch.Pacing < 0 {
		return fmt.Errorf("dispatch.pacing cannot be negative")
	}
	if c.Conversation.TTL <= 0 {
		return fmt.Errorf("conversation.ttl must be greater than zero")
	}
	if c.Conversation.SweepInterval <= 0 {
		return fmt.Errorf("conversation.sweep_interval must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
