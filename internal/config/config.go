package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	News      NewsConfig      `mapstructure:"news"`
	Prices    PricesConfig    `mapstructure:"prices"`
	Sentiment SentimentConfig `mapstructure:"sentiment"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Limiter   LimiterConfig   `mapstructure:"limiter"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Analysis  AnalysisConfig  `mapstructure:"analysis"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig holds the HTTP API server configuration
type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// NewsConfig holds the headline search provider configuration
type NewsConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	APIKey        string        `mapstructure:"api_key"`
	PageSize      int           `mapstructure:"page_size"`
	MaxPages      int           `mapstructure:"max_pages"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RecentTTL     time.Duration `mapstructure:"recent_ttl"`
	HistoricalTTL time.Duration `mapstructure:"historical_ttl"`
}

// PricesConfig holds the daily price-quote provider configuration
type PricesConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	APIKey   string        `mapstructure:"api_key"`
	Timeout  time.Duration `mapstructure:"timeout"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// SentimentConfig holds the text classification provider configuration
type SentimentConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
	Workers        int           `mapstructure:"workers"`
	BatchSize      int           `mapstructure:"batch_size"`
}

// HTTPConfig holds the shared retrying HTTP client configuration
type HTTPConfig struct {
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// LimiterConfig holds rate limiter configuration: the short-window token
// bucket and the rolling daily quota
type LimiterConfig struct {
	Burst    int           `mapstructure:"burst"`
	Window   time.Duration `mapstructure:"window"`
	DailyMax int           `mapstructure:"daily_max"`
}

// CacheConfig holds the in-memory TTL cache configuration
type CacheConfig struct {
	Capacity int `mapstructure:"capacity"`
}

// AnalysisConfig holds orchestrator behavior configuration
type AnalysisConfig struct {
	CallBudget    int `mapstructure:"call_budget"`
	RollingWindow int `mapstructure:"rolling_window"`
	TopN          int `mapstructure:"top_n"`
	MaxHeadlines  int `mapstructure:"max_headlines"`
	RangeDays     int `mapstructure:"range_days"`
}

// StorageConfig holds the report archive configuration
type StorageConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	DBPath     string `mapstructure:"db_path"`
	MaxReports int    `mapstructure:"max_reports"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)

	setDefaults(v)

	v.SetEnvPrefix("MARKETMOOD")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "120s")

	// News defaults
	v.SetDefault("news.base_url", "https://newsapi.org/v2")
	v.SetDefault("news.page_size", 100)
	v.SetDefault("news.max_pages", 3)
	v.SetDefault("news.timeout", "20s")
	v.SetDefault("news.recent_ttl", "5m")
	v.SetDefault("news.historical_ttl", "24h")

	// Prices defaults
	v.SetDefault("prices.base_url", "https://www.alphavantage.co")
	v.SetDefault("prices.timeout", "20s")
	v.SetDefault("prices.cache_ttl", "5m")

	// Sentiment defaults
	v.SetDefault("sentiment.base_url", "https://api-inference.huggingface.co/models/ProsusAI/finbert")
	v.SetDefault("sentiment.timeout", "15s")
	v.SetDefault("sentiment.max_retries", 3)
	v.SetDefault("sentiment.retry_delay_base", "400ms")
	v.SetDefault("sentiment.workers", 6)
	v.SetDefault("sentiment.batch_size", 16)

	// HTTP client defaults
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.retry_delay_base", "250ms")

	// Limiter defaults: 5 tokens per rolling minute, 100 calls per day
	v.SetDefault("limiter.burst", 5)
	v.SetDefault("limiter.window", "60s")
	v.SetDefault("limiter.daily_max", 100)

	// Cache defaults
	v.SetDefault("cache.capacity", 400)

	// Analysis defaults
	v.SetDefault("analysis.call_budget", 25)
	v.SetDefault("analysis.rolling_window", 3)
	v.SetDefault("analysis.top_n", 5)
	v.SetDefault("analysis.max_headlines", 50)
	v.SetDefault("analysis.range_days", 7)

	// Storage defaults
	v.SetDefault("storage.enabled", true)
	v.SetDefault("storage.db_path", "./data/marketmood.db")
	v.SetDefault("storage.max_reports", 200)

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}

	if c.News.BaseURL == "" {
		return fmt.Errorf("news.base_url is required")
	}
	if c.News.APIKey == "" {
		return fmt.Errorf("news.api_key is required")
	}
	if c.News.PageSize < 1 || c.News.PageSize > 100 {
		return fmt.Errorf("news.page_size must be between 1 and 100")
	}
	if c.News.MaxPages < 1 {
		return fmt.Errorf("news.max_pages must be at least 1")
	}
	if c.News.RecentTTL <= 0 || c.News.HistoricalTTL <= 0 {
		return fmt.Errorf("news TTLs must be positive")
	}

	if c.Prices.BaseURL == "" {
		return fmt.Errorf("prices.base_url is required")
	}
	if c.Prices.APIKey == "" {
		return fmt.Errorf("prices.api_key is required")
	}

	if c.Sentiment.BaseURL == "" {
		return fmt.Errorf("sentiment.base_url is required")
	}
	if c.Sentiment.Workers < 1 {
		return fmt.Errorf("sentiment.workers must be at least 1")
	}
	if c.Sentiment.BatchSize < 1 || c.Sentiment.BatchSize > 64 {
		return fmt.Errorf("sentiment.batch_size must be between 1 and 64")
	}
	if c.Sentiment.MaxRetries < 0 {
		return fmt.Errorf("sentiment.max_retries must not be negative")
	}

	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http.max_retries must not be negative")
	}

	if c.Limiter.Burst < 1 {
		return fmt.Errorf("limiter.burst must be at least 1")
	}
	if c.Limiter.Window < time.Second {
		return fmt.Errorf("limiter.window must be at least 1 second")
	}
	if c.Limiter.DailyMax < 1 {
		return fmt.Errorf("limiter.daily_max must be at least 1")
	}

	if c.Cache.Capacity < 10 {
		return fmt.Errorf("cache.capacity must be at least 10")
	}

	if c.Analysis.CallBudget < 1 {
		return fmt.Errorf("analysis.call_budget must be at least 1")
	}
	if c.Analysis.RollingWindow < 1 {
		return fmt.Errorf("analysis.rolling_window must be at least 1")
	}
	if c.Analysis.TopN < 1 {
		return fmt.Errorf("analysis.top_n must be at least 1")
	}
	if c.Analysis.MaxHeadlines < 1 || c.Analysis.MaxHeadlines > 100 {
		return fmt.Errorf("analysis.max_headlines must be between 1 and 100")
	}
	if c.Analysis.RangeDays < 1 || c.Analysis.RangeDays > 30 {
		return fmt.Errorf("analysis.range_days must be between 1 and 30")
	}

	if c.Storage.Enabled {
		if c.Storage.DBPath == "" {
			return fmt.Errorf("storage.db_path is required when storage is enabled")
		}
		if c.Storage.MaxReports < 1 {
			return fmt.Errorf("storage.max_reports must be at least 1")
		}
	}

	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}
