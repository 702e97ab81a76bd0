// File: internal/config/config.go
package config

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds the entire application configuration.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Browser  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	Scraper  ScraperConfig  `mapstructure:"scraper" yaml:"scraper"`
	Analysis AnalysisConfig `mapstructure:"analysis" yaml:"analysis"`
	API      APIConfig      `mapstructure:"api" yaml:"api"`
}

// LoggerConfig controls the zap logger setup.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"` // "console" or "json"
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"` // megabytes
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"` // days
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	URL            string        `mapstructure:"url" yaml:"url"`
	MaxConns       int32         `mapstructure:"max_conns" yaml:"max_conns"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	RetryAttempts  int           `mapstructure:"retry_attempts" yaml:"retry_attempts"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay" yaml:"retry_base_delay"`
}

// BrowserConfig controls the Chrome instance owned by the session manager.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	Locale            string        `mapstructure:"locale" yaml:"locale"`
	Timezone          string        `mapstructure:"timezone" yaml:"timezone"`
	ViewportWidth     int           `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight    int           `mapstructure:"viewport_height" yaml:"viewport_height"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	Args              []string      `mapstructure:"args" yaml:"args"`
}

// ScraperConfig tunes the search resolver, extraction cascade and harvester.
type ScraperConfig struct {
	BaseURL            string        `mapstructure:"base_url" yaml:"base_url"`
	MaxVideos          int           `mapstructure:"max_videos" yaml:"max_videos"`
	MaxComments        int           `mapstructure:"max_comments" yaml:"max_comments"`
	SelectorTimeout    time.Duration `mapstructure:"selector_timeout" yaml:"selector_timeout"`
	NetworkIdleTimeout time.Duration `mapstructure:"network_idle_timeout" yaml:"network_idle_timeout"`
	ChallengeRetries   int           `mapstructure:"challenge_retries" yaml:"challenge_retries"`
	ChallengeCooldown  time.Duration `mapstructure:"challenge_cooldown" yaml:"challenge_cooldown"`
	HumanDelayMin      time.Duration `mapstructure:"human_delay_min" yaml:"human_delay_min"`
	HumanDelayMax      time.Duration `mapstructure:"human_delay_max" yaml:"human_delay_max"`
	CommentSettleWait  time.Duration `mapstructure:"comment_settle_wait" yaml:"comment_settle_wait"`
	RequestsPerMinute  float64       `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	KeywordConcurrency int           `mapstructure:"keyword_concurrency" yaml:"keyword_concurrency"`
	DebugScreenshotDir string        `mapstructure:"debug_screenshot_dir" yaml:"debug_screenshot_dir"`
}

// AnalysisConfig configures the Gemini sentiment analyzer.
type AnalysisConfig struct {
	APIKey      string  `mapstructure:"api_key" yaml:"api_key"`
	Model       string  `mapstructure:"model" yaml:"model"`
	MaxTokens   int32   `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature float32 `mapstructure:"temperature" yaml:"temperature"`
	BatchSize   int     `mapstructure:"batch_size" yaml:"batch_size"`
}

// APIConfig configures the job-trigger HTTP server.
type APIConfig struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	JobIdleTimeout  time.Duration `mapstructure:"job_idle_timeout" yaml:"job_idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// NewDefaultConfig returns a Config populated with sane defaults. Values are
// overridden by the config file and CLIPSIGHT_* environment variables.
func NewDefaultConfig() *Config {
	return &Config{
		Logger: LoggerConfig{
			Level:       "info",
			Format:      "console",
			ServiceName: "clipsight",
			MaxSize:     50,
			MaxBackups:  3,
			MaxAge:      14,
		},
		Database: DatabaseConfig{
			MaxConns:       8,
			ConnectTimeout: 10 * time.Second,
			RetryAttempts:  3,
			RetryBaseDelay: 2 * time.Second,
		},
		Browser: BrowserConfig{
			Headless:          true,
			UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
			Locale:            "en-US",
			Timezone:          "America/New_York",
			ViewportWidth:     1280,
			ViewportHeight:    720,
			NavigationTimeout: 60 * time.Second,
		},
		Scraper: ScraperConfig{
			BaseURL:            "https://www.tiktok.com",
			MaxVideos:          5,
			MaxComments:        20,
			SelectorTimeout:    15 * time.Second,
			NetworkIdleTimeout: 10 * time.Second,
			ChallengeRetries:   2,
			ChallengeCooldown:  5 * time.Second,
			HumanDelayMin:      2 * time.Second,
			HumanDelayMax:      5 * time.Second,
			CommentSettleWait:  3 * time.Second,
			RequestsPerMinute:  10,
			KeywordConcurrency: 1,
		},
		Analysis: AnalysisConfig{
			Model:       "gemini-1.5-flash",
			MaxTokens:   300,
			Temperature: 0.7,
			BatchSize:   10,
		},
		API: APIConfig{
			Host:            "0.0.0.0",
			Port:            5000,
			JobIdleTimeout:  time.Hour,
			ShutdownTimeout: 15 * time.Second,
		},
	}
}

// Load reads configuration from the given file (optional), the working
// directory, and the environment, layered on top of the defaults.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// Seed viper with the serialized defaults. Environment overrides only
	// bind for keys viper already knows about, so every key must be
	// registered before AutomaticEnv takes effect.
	defaults, err := yaml.Marshal(NewDefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to encode default config: %w", err)
	}
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return nil, fmt.Errorf("failed to seed default config: %w", err)
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("CLIPSIGHT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.MergeInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults and env vars.
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants that would otherwise surface as confusing
// runtime behavior deep inside the scraping loop.
func (c *Config) Validate() error {
	if c.Scraper.MaxVideos < 1 {
		return fmt.Errorf("scraper.max_videos must be a positive integer, got %d", c.Scraper.MaxVideos)
	}
	if c.Scraper.MaxComments < 0 {
		return fmt.Errorf("scraper.max_comments must not be negative, got %d", c.Scraper.MaxComments)
	}
	if c.Scraper.ChallengeRetries < 0 {
		return fmt.Errorf("scraper.challenge_retries must not be negative, got %d", c.Scraper.ChallengeRetries)
	}
	if c.Scraper.HumanDelayMax < c.Scraper.HumanDelayMin {
		return fmt.Errorf("scraper.human_delay_max (%s) must not be below scraper.human_delay_min (%s)",
			c.Scraper.HumanDelayMax, c.Scraper.HumanDelayMin)
	}
	if c.Scraper.KeywordConcurrency < 1 {
		return fmt.Errorf("scraper.keyword_concurrency must be a positive integer, got %d", c.Scraper.KeywordConcurrency)
	}
	if c.API.Port < 1 || c.API.Port > 65535 {
		return fmt.Errorf("api.port must be a valid TCP port, got %d", c.API.Port)
	}
	switch c.Logger.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logger.format must be 'console' or 'json', got %q", c.Logger.Format)
	}
	return nil
}
