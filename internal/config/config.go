// Package config loads application configuration from environment variables
// and an optional marketintel.yaml file via viper.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	App        App        `mapstructure:"app"`
	Providers  Providers  `mapstructure:"providers"`
	Gemini     Gemini     `mapstructure:"gemini"`
	Validation Validation `mapstructure:"validation"`
	Server     Server     `mapstructure:"server"`
	Scheduler  Scheduler  `mapstructure:"scheduler"`
}

// App holds general application configuration.
type App struct {
	Env     string `mapstructure:"env"`      // development or production
	DataDir string `mapstructure:"data_dir"` // Base directory for db, feed file, snapshots
}

// Providers holds news provider configuration.
type Providers struct {
	NewsAPIKeys []string      `mapstructure:"newsapi_keys"` // Ordered rotation pool
	Order       []string      `mapstructure:"order"`        // Provider execution order
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxArticles int           `mapstructure:"max_articles"` // Per-category fetch cap
}

// Gemini holds LLM configuration.
type Gemini struct {
	APIKeys        []string `mapstructure:"api_keys"` // Ordered rotation pool
	Model          string   `mapstructure:"model"`
	EmbeddingModel string   `mapstructure:"embedding_model"`
}

// Validation holds the optional market-correlation subsystem configuration.
type Validation struct {
	FinnhubAPIKey string `mapstructure:"finnhub_api_key"`
	Symbol        string `mapstructure:"symbol"`
	LookbackDays  int    `mapstructure:"lookback_days"`
}

// Server holds the read API configuration.
type Server struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Scheduler holds the periodic run configuration.
type Scheduler struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"` // cron spec, default @every 6h
}

// Load reads .env (if present), the optional marketintel.yaml, and the
// environment, and returns the merged configuration.
func Load() (*Config, error) {
	// .env is optional; absence is not an error.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("marketintel")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if dir := os.Getenv("NEWS_FEED_DIR"); dir != "" {
		v.AddConfigPath(dir)
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnv(&cfg)

	if cfg.App.DataDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve working directory: %w", err)
		}
		cfg.App.DataDir = wd
	}
	cfg.App.DataDir = filepath.Clean(cfg.App.DataDir)

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("providers.order", []string{"newsapi", "rss"})
	v.SetDefault("providers.timeout", "15s")
	v.SetDefault("providers.max_articles", 20)
	v.SetDefault("gemini.model", "gemini-flash-lite-latest")
	v.SetDefault("gemini.embedding_model", "gemini-embedding-001")
	v.SetDefault("validation.symbol", "QQQ")
	v.SetDefault("validation.lookback_days", 30)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.schedule", "@every 6h")
}

// applyEnv maps the closed environment-variable set onto the config. Environment
// values win over file values.
func applyEnv(cfg *Config) {
	if keys := envPool("NEWS_API_KEY"); len(keys) > 0 {
		cfg.Providers.NewsAPIKeys = keys
	}
	if keys := envPool("GEMINI_API_KEY"); len(keys) > 0 {
		cfg.Gemini.APIKeys = keys
	}
	if key := os.Getenv("FINNHUB_API_KEY"); key != "" {
		cfg.Validation.FinnhubAPIKey = key
	}
	if dir := os.Getenv("NEWS_FEED_DIR"); dir != "" {
		cfg.App.DataDir = dir
	}
	if env := os.Getenv("MARKETINTEL_ENV"); env != "" {
		cfg.App.Env = strings.ToLower(env)
	}
}

// envPool collects BASE, BASE_2, BASE_3 into an ordered key pool.
func envPool(base string) []string {
	var keys []string
	for _, name := range []string{base, base + "_2", base + "_3"} {
		if val := strings.TrimSpace(os.Getenv(name)); val != "" {
			keys = append(keys, val)
		}
	}
	return keys
}

// IsProduction reports whether the app runs in production mode.
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}
