// Package config loads application configuration from file and environment
// and initializes the global logger.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Verify  VerifyConfig  `yaml:"verify" mapstructure:"verify"`
	Collect CollectConfig `yaml:"collect" mapstructure:"collect"`
	Render  RenderConfig  `yaml:"render" mapstructure:"render"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// VerifyConfig configures the reachability check API. An empty check_url or
// token disables verification: requested verification then degrades to
// returning numbers as unconfirmed rather than failing the request.
type VerifyConfig struct {
	CheckURL    string `yaml:"check_url" mapstructure:"check_url"`
	Token       string `yaml:"token" mapstructure:"token"`
	ChunkSize   int    `yaml:"chunk_size" mapstructure:"chunk_size"`
	Concurrency int    `yaml:"concurrency" mapstructure:"concurrency"`
	MaxAttempts int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// CollectConfig configures the collection loop.
type CollectConfig struct {
	CountryCode         string `yaml:"country_code" mapstructure:"country_code"`
	SearchBaseURL       string `yaml:"search_base_url" mapstructure:"search_base_url"`
	Language            string `yaml:"language" mapstructure:"language"`
	Region              string `yaml:"region" mapstructure:"region"`
	MaxPages            int    `yaml:"max_pages" mapstructure:"max_pages"`
	NoProgressThreshold int    `yaml:"no_progress_threshold" mapstructure:"no_progress_threshold"`
	HardFailThreshold   int    `yaml:"hard_fail_threshold" mapstructure:"hard_fail_threshold"`
	MaxClicksPerPage    int    `yaml:"max_clicks_per_page" mapstructure:"max_clicks_per_page"`
	InterPageDelayMs    int    `yaml:"inter_page_delay_ms" mapstructure:"inter_page_delay_ms"`
	BatchCollect        int    `yaml:"batch_collect" mapstructure:"batch_collect"`
	OverCollect         int    `yaml:"over_collect" mapstructure:"over_collect"`
}

// RenderConfig configures the headless browser.
type RenderConfig struct {
	Headless       bool   `yaml:"headless" mapstructure:"headless"`
	NavTimeoutMs   int    `yaml:"nav_timeout_ms" mapstructure:"nav_timeout_ms"`
	SelTimeoutMs   int    `yaml:"sel_timeout_ms" mapstructure:"sel_timeout_ms"`
	UserAgent      string `yaml:"user_agent" mapstructure:"user_agent"`
	AcceptLanguage string `yaml:"accept_language" mapstructure:"accept_language"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEADS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The check API was historically configured through these names; keep
	// honoring them alongside the prefixed forms.
	_ = v.BindEnv("verify.check_url", "LEADS_VERIFY_CHECK_URL", "UAZAPI_CHECK_URL")
	_ = v.BindEnv("verify.token", "LEADS_VERIFY_TOKEN", "UAZAPI_INSTANCE_TOKEN")

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"https://*.vercel.app"})
	v.SetDefault("verify.chunk_size", 80)
	v.SetDefault("verify.concurrency", 3)
	v.SetDefault("verify.max_attempts", 3)
	v.SetDefault("verify.timeout_secs", 20)
	v.SetDefault("collect.country_code", "55")
	v.SetDefault("collect.search_base_url", "https://www.google.com/search")
	v.SetDefault("collect.language", "pt-BR")
	v.SetDefault("collect.region", "BR")
	v.SetDefault("collect.max_pages", 30)
	v.SetDefault("collect.no_progress_threshold", 2)
	v.SetDefault("collect.hard_fail_threshold", 2)
	v.SetDefault("collect.max_clicks_per_page", 4)
	v.SetDefault("collect.inter_page_delay_ms", 250)
	v.SetDefault("collect.batch_collect", 120)
	v.SetDefault("collect.over_collect", 6)
	v.SetDefault("render.headless", true)
	v.SetDefault("render.nav_timeout_ms", 11000)
	v.SetDefault("render.sel_timeout_ms", 6500)
	v.SetDefault("render.accept_language", "pt-BR")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the fields required for the given run mode ("serve" or
// "leads"). Verification credentials are deliberately not required: a missing
// check URL degrades verification instead of blocking startup.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "leads":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Collect.CountryCode == "" {
		errs = append(errs, "collect.country_code is required")
	}
	if c.Collect.MaxPages < 1 || c.Collect.MaxPages > 100 {
		errs = append(errs, "collect.max_pages must be between 1 and 100")
	}
	if c.Verify.ChunkSize < 1 || c.Verify.ChunkSize > 500 {
		errs = append(errs, "verify.chunk_size must be between 1 and 500")
	}
	if c.Verify.Concurrency < 1 || c.Verify.Concurrency > 20 {
		errs = append(errs, "verify.concurrency must be between 1 and 20")
	}
	if c.Render.NavTimeoutMs < 1000 {
		errs = append(errs, "render.nav_timeout_ms must be >= 1000")
	}

	if len(errs) > 0 {
		return eris.New("config: " + strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
