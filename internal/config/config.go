package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Pipedrive  PipedriveConfig  `yaml:"pipedrive" mapstructure:"pipedrive"`
	OpenAI     OpenAIConfig     `yaml:"openai" mapstructure:"openai"`
	Gemini     GeminiConfig     `yaml:"gemini" mapstructure:"gemini"`
	Fields     FieldKeys        `yaml:"fields" mapstructure:"fields"`
	Cadence    CadenceConfig    `yaml:"cadence" mapstructure:"cadence"`
	Label      LabelConfig      `yaml:"label" mapstructure:"label"`
	FieldMap   FieldMapConfig   `yaml:"fieldmap" mapstructure:"fieldmap"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// PipedriveConfig holds Pipedrive API settings.
type PipedriveConfig struct {
	Token          string  `yaml:"token" mapstructure:"token"`
	BaseURL        string  `yaml:"base_url" mapstructure:"base_url"`
	PageLimit      int     `yaml:"page_limit" mapstructure:"page_limit"`
	RequestDelayMs int     `yaml:"request_delay_ms" mapstructure:"request_delay_ms"`
	RateLimitRPS   float64 `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
	MaxAttempts    int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	BackoffMs      int     `yaml:"backoff_ms" mapstructure:"backoff_ms"`
	TimeoutSecs    int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// RequestDelay is the pause between sequential Pipedrive list calls.
func (c PipedriveConfig) RequestDelay() time.Duration {
	return time.Duration(c.RequestDelayMs) * time.Millisecond
}

// OpenAIConfig holds OpenAI Assistants API settings.
type OpenAIConfig struct {
	Key             string `yaml:"key" mapstructure:"key"`
	BaseURL         string `yaml:"base_url" mapstructure:"base_url"`
	PollIntervalMs  int    `yaml:"poll_interval_ms" mapstructure:"poll_interval_ms"`
	MaxPollAttempts int    `yaml:"max_poll_attempts" mapstructure:"max_poll_attempts"`
}

// PollInterval returns the run status polling interval.
func (c OpenAIConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// GeminiConfig holds Gemini API settings for the research agent.
type GeminiConfig struct {
	Key         string  `yaml:"key" mapstructure:"key"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	Model       string  `yaml:"model" mapstructure:"model"`
	Temperature float32 `yaml:"temperature" mapstructure:"temperature"`
}

// FieldKeys maps deal attributes to Pipedrive custom field hash keys.
type FieldKeys struct {
	EmailTitle     string `yaml:"email_title" mapstructure:"email_title"`
	EmailBody      string `yaml:"email_body" mapstructure:"email_body"`
	Label          string `yaml:"label" mapstructure:"label"`
	Sector         string `yaml:"sector" mapstructure:"sector"`
	Origin         string `yaml:"origin" mapstructure:"origin"`
	SubOrigin      string `yaml:"sub_origin" mapstructure:"sub_origin"`
	Portfolio      string `yaml:"portfolio" mapstructure:"portfolio"`
	Budget         string `yaml:"budget" mapstructure:"budget"`
	EmployeeCount  string `yaml:"employee_count" mapstructure:"employee_count"`
	Resumption     string `yaml:"resumption" mapstructure:"resumption"`
	ResumptionDate string `yaml:"resumption_date" mapstructure:"resumption_date"`
	NurturingStep  string `yaml:"nurturing_step" mapstructure:"nurturing_step"`
	OriginDealID   string `yaml:"origin_deal_id" mapstructure:"origin_deal_id"`
}

// CadenceConfig points at an optional cadence table override.
type CadenceConfig struct {
	File          string `yaml:"file" mapstructure:"file"`
	WaitingStages []int  `yaml:"waiting_stages" mapstructure:"waiting_stages"`
}

// LabelConfig points at an optional label table override.
type LabelConfig struct {
	File string `yaml:"file" mapstructure:"file"`
}

// FieldMapConfig configures the option-text cache.
type FieldMapConfig struct {
	CacheTTLHours int `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
}

// CacheTTL returns the option cache expiry.
func (c FieldMapConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLHours) * time.Hour
}

// PricingConfig holds per-provider pricing rates.
type PricingConfig struct {
	OpenAI map[string]ModelPricing `yaml:"openai" mapstructure:"openai"`
	Gemini map[string]ModelPricing `yaml:"gemini" mapstructure:"gemini"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	Limit       int `yaml:"limit" mapstructure:"limit"`
	LockTTLMins int `yaml:"lock_ttl_mins" mapstructure:"lock_ttl_mins"`
}

// LockTTL returns how long a batch lock is held before it expires.
func (c BatchConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLMins) * time.Minute
}

// ServerConfig configures the HTTP server and its schedule.
type ServerConfig struct {
	Port     int    `yaml:"port" mapstructure:"port"`
	Schedule string `yaml:"schedule" mapstructure:"schedule"`
}

// MonitoringConfig configures ledger-based alerting.
type MonitoringConfig struct {
	Enabled              bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	CostThresholdUSD     float64 `yaml:"cost_threshold_usd" mapstructure:"cost_threshold_usd"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
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
	v.SetEnvPrefix("REENGAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Secrets get empty defaults so AutomaticEnv can bind them.
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.schedule", "0 8 * * 1-5")
	v.SetDefault("batch.limit", 0)
	v.SetDefault("batch.lock_ttl_mins", 120)
	v.SetDefault("pipedrive.token", "")
	v.SetDefault("pipedrive.base_url", "https://api.pipedrive.com/v1")
	v.SetDefault("pipedrive.page_limit", 500)
	v.SetDefault("pipedrive.request_delay_ms", 300)
	v.SetDefault("pipedrive.rate_limit_rps", 5.0)
	v.SetDefault("pipedrive.max_attempts", 3)
	v.SetDefault("pipedrive.backoff_ms", 1000)
	v.SetDefault("pipedrive.timeout_secs", 30)
	v.SetDefault("openai.key", "")
	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.poll_interval_ms", 2000)
	v.SetDefault("openai.max_poll_attempts", 30)
	v.SetDefault("gemini.key", "")
	v.SetDefault("gemini.base_url", "")
	v.SetDefault("gemini.model", "gemini-2.5-pro")
	v.SetDefault("gemini.temperature", 0.3)
	v.SetDefault("fields.email_title", "74647c02e74ca7b4d0f98a71cfdc436bac8f0f5d")
	v.SetDefault("fields.email_body", "e616420fb16e671963854114c6bba6bd5c3bcef1")
	v.SetDefault("fields.label", "label")
	v.SetDefault("fields.sector", "eabf279da192f1d3d2a72a49845154b1e9a848f7")
	v.SetDefault("fields.origin", "97d0502cc2b489986844a93b374656e5acf179e1")
	v.SetDefault("fields.sub_origin", "4fd6987bdbb61585b82d4fe99ed0cf6cbb2b2218")
	v.SetDefault("fields.portfolio", "e4339ab04542dcd1e1215e4bc17ee2bcf45a9652")
	v.SetDefault("fields.budget", "5c69564ae115792817cb41b28249c8a1dd08b50f")
	v.SetDefault("fields.employee_count", "0b2be49fb7615b170878d944a7cb05f6ec8f9e27")
	v.SetDefault("fields.resumption", "212b2d53b667fdb5689b3f5c0a9abaf747b998b2")
	v.SetDefault("fields.resumption_date", "91cf62129f1fb478eb05f1aaa580952967f55e27")
	v.SetDefault("fields.nurturing_step", "b5ba71c0b89dfebaee61d9e3827a35ba7b6c7b67")
	v.SetDefault("fields.origin_deal_id", "e465d18813a12b0bbd089af1996b1090751ab057")
	v.SetDefault("cadence.file", "")
	v.SetDefault("cadence.waiting_stages", []int{89, 80})
	v.SetDefault("label.file", "")
	v.SetDefault("fieldmap.cache_ttl_hours", 720)
	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.failure_rate_threshold", 0.3)
	v.SetDefault("monitoring.cost_threshold_usd", 10.0)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.check_interval_secs", 900)
	v.SetDefault("pricing.openai", map[string]any{
		"gpt-4o":      map[string]any{"input": 2.50, "output": 10.00},
		"gpt-4o-mini": map[string]any{"input": 0.15, "output": 0.60},
		"gpt-4.1":     map[string]any{"input": 2.00, "output": 8.00},
	})
	v.SetDefault("pricing.gemini", map[string]any{
		"gemini-2.5-pro":   map[string]any{"input": 1.25, "output": 10.00},
		"gemini-2.5-flash": map[string]any{"input": 0.30, "output": 2.50},
	})

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

// Validate checks that the settings a command mode needs are present.
// Modes: "run" (batch and single deal), "sync" (note sync), "serve", "status".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "run", "serve":
		if c.Pipedrive.Token == "" {
			errs = append(errs, "pipedrive.token is required")
		}
		if c.OpenAI.Key == "" {
			errs = append(errs, "openai.key is required")
		}
		if c.Gemini.Key == "" {
			errs = append(errs, "gemini.key is required")
		}
		if c.OpenAI.MaxPollAttempts < 1 {
			errs = append(errs, "openai.max_poll_attempts must be > 0")
		}
		if mode == "serve" && c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "sync":
		if c.Pipedrive.Token == "" {
			errs = append(errs, "pipedrive.token is required")
		}
	case "status":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required for the postgres driver")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
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
