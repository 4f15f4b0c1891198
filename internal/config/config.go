package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/lathiyaMagpiexyz/defi-news-bot/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App        AppConfig                 `mapstructure:"app"`
	Logging    logging.Config            `mapstructure:"logging"`
	Database   DatabaseConfig            `mapstructure:"database"`
	Collectors CollectorsConfig          `mapstructure:"collectors"`
	Scoring    ScoringConfig             `mapstructure:"scoring"`
	Trend      TrendConfig               `mapstructure:"trend"`
	Categories map[string]CategoryConfig `mapstructure:"categories"`
	Gating     GatingConfig              `mapstructure:"gating"`
	Telegram   TelegramConfig            `mapstructure:"telegram"`
	Retention  RetentionConfig           `mapstructure:"retention"`
	Export     ExportConfig              `mapstructure:"export"`
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
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// CollectorsConfig groups the upstream data sources.
type CollectorsConfig struct {
	Twitter   TwitterConfig   `mapstructure:"twitter"`
	DefiLlama LlamaConfig     `mapstructure:"defillama"`
	Market    MarketConfig    `mapstructure:"market"`
	Chainlink ChainlinkConfig `mapstructure:"chainlink"`
}

// TwitterConfig covers the recent-search poller.
type TwitterConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BearerToken    string        `mapstructure:"bearer_token"`
	BaseURL        string        `mapstructure:"base_url"`
	Query          string        `mapstructure:"query"`
	Interval       time.Duration `mapstructure:"interval"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// LlamaConfig covers DeFiLlama TVL polling.
type LlamaConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BaseURL        string        `mapstructure:"base_url"`
	Protocols      []string      `mapstructure:"protocols"`
	Interval       time.Duration `mapstructure:"interval"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// MarketConfig covers spot price polling.
type MarketConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BaseURL        string        `mapstructure:"base_url"`
	Assets         []string      `mapstructure:"assets"`
	VsCurrency     string        `mapstructure:"vs_currency"`
	Interval       time.Duration `mapstructure:"interval"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// ChainlinkConfig covers on-chain price feed access.
type ChainlinkConfig struct {
	Enabled        bool              `mapstructure:"enabled"`
	RPCURL         string            `mapstructure:"rpc_url"`
	Feeds          map[string]string `mapstructure:"feeds"`
	Interval       time.Duration     `mapstructure:"interval"`
	RequestTimeout time.Duration     `mapstructure:"request_timeout"`
}

// ScoringConfig tunes engagement bonuses.
type ScoringConfig struct {
	MinLikes   int `mapstructure:"min_likes"`
	MinReposts int `mapstructure:"min_reposts"`
}

// TrendConfig sizes the rolling windows.
type TrendConfig struct {
	ShortWindow time.Duration `mapstructure:"short_window"`
	LongWindow  time.Duration `mapstructure:"long_window"`
}

// CategoryConfig carries per-category matching rules and gating knobs.
type CategoryConfig struct {
	Enabled    bool            `mapstructure:"enabled"`
	Priority   int             `mapstructure:"priority"`
	Cooldown   time.Duration   `mapstructure:"cooldown"`
	Keywords   KeywordConfig   `mapstructure:"keywords"`
	Thresholds ThresholdConfig `mapstructure:"thresholds"`
}

// KeywordConfig lists the matching vocabulary for a category.
type KeywordConfig struct {
	Primary         []string `mapstructure:"primary"`
	Secondary       []string `mapstructure:"secondary"`
	Negative        []string `mapstructure:"negative"`
	TrustedAccounts []string `mapstructure:"trusted_accounts"`
	Hashtags        []string `mapstructure:"hashtags"`
}

// ThresholdConfig bounds trend significance for a category.
type ThresholdConfig struct {
	MinChangePct     float64 `mapstructure:"min_change_pct"`
	MinAbsoluteValue float64 `mapstructure:"min_absolute_value"`
	LookbackHours    int     `mapstructure:"lookback_hours"`
}

// GatingConfig defines global admission limits.
type GatingConfig struct {
	GlobalCooldown time.Duration `mapstructure:"global_cooldown"`
	DedupWindow    time.Duration `mapstructure:"dedup_window"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BotToken       string        `mapstructure:"bot_token"`
	APIBase        string        `mapstructure:"api_base"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	Chats          []ChatConfig  `mapstructure:"chats"`
}

// ChatConfig describes one delivery destination.
type ChatConfig struct {
	ChatID     string   `mapstructure:"chat_id"`
	Categories []string `mapstructure:"categories"`
	Paused     bool     `mapstructure:"paused"`
}

// RetentionConfig governs the maintenance sweep.
type RetentionConfig struct {
	Schedule    string        `mapstructure:"schedule"`
	AlertMaxAge time.Duration `mapstructure:"alert_max_age"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DEFIBOT")
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
	v.SetDefault("app.name", "defi-news-bot")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("collectors.twitter.base_url", "https://api.twitter.com/2")
	v.SetDefault("collectors.twitter.interval", "2m")
	v.SetDefault("collectors.twitter.request_timeout", "10s")

	v.SetDefault("collectors.defillama.base_url", "https://api.llama.fi")
	v.SetDefault("collectors.defillama.interval", "5m")
	v.SetDefault("collectors.defillama.request_timeout", "15s")

	v.SetDefault("collectors.market.base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("collectors.market.vs_currency", "usd")
	v.SetDefault("collectors.market.interval", "5m")
	v.SetDefault("collectors.market.request_timeout", "10s")
	v.SetDefault("collectors.market.user_agent", "defi-news-bot/1.0")

	v.SetDefault("collectors.chainlink.interval", "5m")
	v.SetDefault("collectors.chainlink.request_timeout", "10s")

	v.SetDefault("scoring.min_likes", 100)
	v.SetDefault("scoring.min_reposts", 50)

	v.SetDefault("trend.short_window", "24h")
	v.SetDefault("trend.long_window", "168h")

	v.SetDefault("gating.global_cooldown", "5m")
	v.SetDefault("gating.dedup_window", "24h")

	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.api_base", "https://api.telegram.org")
	v.SetDefault("telegram.request_timeout", "10s")

	v.SetDefault("retention.schedule", "0 3 * * *")
	v.SetDefault("retention.alert_max_age", "720h")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
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
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Gating.GlobalCooldown < 0 {
		return fmt.Errorf("gating.global_cooldown cannot be negative")
	}
	if c.Gating.DedupWindow <= 0 {
		return fmt.Errorf("gating.dedup_window must be greater than zero")
	}
	if c.Trend.ShortWindow <= 0 || c.Trend.LongWindow <= 0 {
		return fmt.Errorf("trend windows must be greater than zero")
	}
	if c.Trend.LongWindow < c.Trend.ShortWindow {
		return fmt.Errorf("trend.long_window must cover trend.short_window")
	}
	for name, cat := range c.Categories {
		if cat.Priority < 0 || cat.Priority > 4 {
			return fmt.Errorf("categories.%s.priority must be between 0 and 4", name)
		}
		if cat.Cooldown < 0 {
			return fmt.Errorf("categories.%s.cooldown cannot be negative", name)
		}
	}
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token 必须配置")
		}
		if len(c.Telegram.Chats) == 0 {
			return fmt.Errorf("telegram.chats 必须配置")
		}
	}
	return nil
}

// CategoryNames returns configured category names in stable order.
func (c *Config) CategoryNames() []string {
	names := make([]string, 0, len(c.Categories))
	for name := range c.Categories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
