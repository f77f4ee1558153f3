// Package config loads the War Room's configuration from a YAML file with
// environment-variable overrides, following the teacher's internal/config
// package: a nested mapstructure-tagged Config, viper defaults set once in
// setDefaults, and a Validate() pass run at the end of Load.
package config

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds every configuration knob from spec §6.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Vault      VaultConfig      `mapstructure:"vault"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Broker     BrokerConfig     `mapstructure:"broker"`
	Trading    TradingConfig    `mapstructure:"trading"`
	Risk       RiskConfig       `mapstructure:"risk"`
	Learning   LearningConfig   `mapstructure:"learning"`
	Shadow     ShadowConfig     `mapstructure:"shadow"`
	API        APIConfig        `mapstructure:"api"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// AppConfig contains application-level settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
}

// DatabaseConfig contains PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
	PoolSize int    `mapstructure:"pool_size"`
}

// GetDSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig backs the signal dedup window and per-ticker advisory locks.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// GetAddr returns the Redis address.
func (c *RedisConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// NATSConfig controls whether the Event Bus embeds its own broker or joins
// an externally-run one.
type NATSConfig struct {
	Embedded bool   `mapstructure:"embedded"`
	URL      string `mapstructure:"url"`
}

// VaultConfig is the secrets backend; see internal/secrets.
type VaultConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
	Token   string `mapstructure:"token"`
}

// TelegramConfig is the notification sink; see internal/notify.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   int64  `mapstructure:"chat_id"`
}

// LLMConfig controls the agent deliberation LLM adapter.
type LLMConfig struct {
	Endpoint          string  `mapstructure:"endpoint"`
	Model             string  `mapstructure:"model"`
	Temperature       float64 `mapstructure:"temperature"`
	MaxTokens         int     `mapstructure:"max_tokens"`
	TimeoutMS         int     `mapstructure:"timeout_ms"`
	RateLimitPerMin   int     `mapstructure:"rate_limit_per_min"`
	AgentTimeoutS     int     `mapstructure:"agent_timeout_s"`
	DeliberationTimeS int     `mapstructure:"deliberation_timeout_s"`
}

func (c *LLMConfig) Timeout() time.Duration       { return time.Duration(c.TimeoutMS) * time.Millisecond }
func (c *LLMConfig) AgentTimeout() time.Duration  { return time.Duration(c.AgentTimeoutS) * time.Second }
func (c *LLMConfig) DeliberationTimeout() time.Duration {
	return time.Duration(c.DeliberationTimeS) * time.Second
}

// BrokerConfig is the execution adapter's connection settings.
type BrokerConfig struct {
	Name       string `mapstructure:"name"`
	Endpoint   string `mapstructure:"endpoint"`
	APIKey     string `mapstructure:"api_key"`
	APISecret  string `mapstructure:"api_secret"`
	Paper      bool   `mapstructure:"paper"`
}

// TradingConfig carries persona selection and the tradeable universe.
type TradingConfig struct {
	PersonaMode         string   `mapstructure:"persona_mode"` // AGGRESSIVE|TRADING|LONG_TERM|DIVIDEND
	Symbols             []string `mapstructure:"symbols"`
	Blacklist           []string `mapstructure:"blacklist"`
	TradeableKeywords   []string `mapstructure:"tradeable_keywords"`
	RiskAnalyzerCommand string   `mapstructure:"risk_analyzer_command"` // path to cmd/mcp-servers/risk-analyzer binary; empty disables it
}

// RiskConfig carries the position-size, portfolio-risk and position-count
// thresholds of the hard rules (spec §4.4), plus the signal confidence
// floor and dedup window. The position sizer's constants are not
// configured here.
type RiskConfig struct {
	MaxPositionPct      decimal.Decimal `mapstructure:"-"`
	MaxPositionPctRaw   string          `mapstructure:"max_position_pct"`
	PortfolioRiskCap    decimal.Decimal `mapstructure:"-"`
	PortfolioRiskCapRaw string          `mapstructure:"portfolio_risk_cap"`
	PositionCountCap    int             `mapstructure:"position_count_cap"`
	MinSignalConfidence decimal.Decimal `mapstructure:"-"`
	MinSignalConfRaw    string          `mapstructure:"min_signal_confidence"`
	DedupWindowMin      int             `mapstructure:"dedup_window_min"`
}

// LearningConfig controls the Weight Adjuster (spec §4.14).
type LearningConfig struct {
	NIAWindowDays     int    `mapstructure:"nia_window_days"`
	NIAMinSample      int    `mapstructure:"nia_min_sample"`
	NIADailyDeltaCap  string `mapstructure:"nia_daily_delta_cap"`
	HorizonOffsetsRaw []string `mapstructure:"horizon_offsets"`
}

// ShadowConfig seeds the Shadow Ledger (spec §4.12).
type ShadowConfig struct {
	InitialCapital string `mapstructure:"shadow_initial_capital"`
}

// APIConfig is the read-only admin HTTP surface (internal/adminapi).
type APIConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

func (c *APIConfig) GetAddr() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }

// MonitoringConfig controls the Prometheus exporter.
type MonitoringConfig struct {
	PrometheusPort int  `mapstructure:"prometheus_port"`
	EnableMetrics  bool `mapstructure:"enable_metrics"`
}

// Load reads configPath (or ./configs/config.yaml, ./config.yaml) via viper,
// applies WARROOM_-prefixed environment overrides, fills in defaults, and
// validates the result.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("WARROOM")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.parseDecimals(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// parseDecimals converts the string-backed decimal fields viper populated
// into decimal.Decimal, so downstream code never parses a float itself.
func (c *Config) parseDecimals() error {
	fields := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"risk.max_position_pct", c.Risk.MaxPositionPctRaw, &c.Risk.MaxPositionPct},
		{"risk.portfolio_risk_cap", c.Risk.PortfolioRiskCapRaw, &c.Risk.PortfolioRiskCap},
		{"risk.min_signal_confidence", c.Risk.MinSignalConfRaw, &c.Risk.MinSignalConfidence},
	}
	for _, f := range fields {
		d, err := decimal.NewFromString(f.raw)
		if err != nil {
			return fmt.Errorf("config: parse %s=%q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}

// setDefaults sets every default named in spec §6.
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "warroom")
	v.SetDefault("app.version", "0.1.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "warroom")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.pool_size", 10)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	v.SetDefault("nats.embedded", true)
	v.SetDefault("nats.url", "nats://localhost:4222")

	v.SetDefault("vault.enabled", false)
	v.SetDefault("vault.address", "http://localhost:8200")

	v.SetDefault("telegram.enabled", false)

	v.SetDefault("llm.endpoint", "http://localhost:8080/v1/chat/completions")
	v.SetDefault("llm.model", "claude-sonnet-4-20250514")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_tokens", 2000)
	v.SetDefault("llm.timeout_ms", 8000)
	v.SetDefault("llm.rate_limit_per_min", 10)
	v.SetDefault("llm.agent_timeout_s", 8)
	v.SetDefault("llm.deliberation_timeout_s", 12)

	v.SetDefault("broker.name", "paper")
	v.SetDefault("broker.paper", true)

	v.SetDefault("trading.persona_mode", "TRADING")
	v.SetDefault("trading.symbols", []string{})
	v.SetDefault("trading.blacklist", []string{})
	v.SetDefault("trading.tradeable_keywords", []string{})
	v.SetDefault("trading.risk_analyzer_command", "")

	v.SetDefault("risk.max_position_pct", "0.30")
	v.SetDefault("risk.portfolio_risk_cap", "0.05")
	v.SetDefault("risk.position_count_cap", 20)
	v.SetDefault("risk.min_signal_confidence", "0.60")
	v.SetDefault("risk.dedup_window_min", 30)

	v.SetDefault("learning.nia_window_days", 30)
	v.SetDefault("learning.nia_min_sample", 50)
	v.SetDefault("learning.nia_daily_delta_cap", "0.05")
	v.SetDefault("learning.horizon_offsets", []string{"1d", "1w", "1m"})

	v.SetDefault("shadow.shadow_initial_capital", "100000")

	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8081)

	v.SetDefault("monitoring.prometheus_port", 9100)
	v.SetDefault("monitoring.enable_metrics", true)
}
