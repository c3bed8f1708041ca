package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const defaultExternalHTTPTimeout = 90 * time.Second
const defaultExternalHTTPTimeoutSeconds = int(defaultExternalHTTPTimeout / time.Second)

const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

type Config struct {
	LLMProvider         string  `yaml:"llm_provider"`
	LLMModel            string  `yaml:"llm_model"`
	LLMDescriptionModel string  `yaml:"llm_description_model"`
	LLMMaxTokens        int     `yaml:"llm_max_tokens"`
	LLMTemperature      float64 `yaml:"llm_temperature"`
	LLMRetryDelayMillis int     `yaml:"llm_retry_delay_ms"`
	LLMCacheTTLHours    int     `yaml:"llm_cache_ttl_hours"`
	AnthropicAPIKey     string  `yaml:"anthropic_api_key"`
	OpenAIAPIKey        string  `yaml:"openai_api_key"`

	DBPath   string `yaml:"db_path"`
	RedisURL string `yaml:"redis_url"`

	SlackBotToken     string `yaml:"slack_bot_token"`
	OperatorChannelID string `yaml:"operator_channel_id"`

	StatsSchedule string `yaml:"stats_schedule"`
	Timezone      string `yaml:"timezone"`

	WorkerConcurrency         int `yaml:"worker_concurrency"`
	WorkerPollIntervalSeconds int `yaml:"worker_poll_interval_seconds"`
	ReportTimeoutSeconds      int `yaml:"report_timeout_seconds"`

	FreeReportMinScore float64 `yaml:"free_report_min_score"`
	FreeReportLimit    int     `yaml:"free_report_limit"`
	PremiumReportCost  int     `yaml:"premium_report_cost"`

	MetricsAddr                string `yaml:"metrics_addr"`
	ExternalHTTPTimeoutSeconds int    `yaml:"external_http_timeout_seconds"`

	LogLevel    string `yaml:"log_level"`
	Environment string `yaml:"environment"`

	Location *time.Location `yaml:"-"` // computed from Timezone, not from YAML
}

// LoadConfig loads configuration and exits the process when it is invalid.
func LoadConfig() Config {
	cfg, err := Load()
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}
	return cfg
}

// Load reads .env (if present), then config.yaml or $CONFIG_PATH, then applies env
// overrides, defaults and validation.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logrus.WithError(err).Warn("could not load .env")
	}

	var cfg Config

	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing %s: %w", configPath, err)
		}
		logrus.WithField("path", configPath).Debug("loaded config file")
	}

	envOverride(&cfg.LLMProvider, "LLM_PROVIDER")
	envOverride(&cfg.LLMModel, "LLM_MODEL")
	envOverride(&cfg.LLMDescriptionModel, "LLM_DESCRIPTION_MODEL")
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverrideAllowEmpty(&cfg.RedisURL, "REDIS_URL")
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.OperatorChannelID, "OPERATOR_CHANNEL_ID")
	envOverrideAllowEmpty(&cfg.StatsSchedule, "STATS_SCHEDULE")
	envOverride(&cfg.Timezone, "TIMEZONE")
	envOverride(&cfg.MetricsAddr, "METRICS_ADDR")
	envOverride(&cfg.LogLevel, "LOG_LEVEL")
	envOverride(&cfg.Environment, "ENVIRONMENT")
	if err := errors.Join(
		envOverrideInt(&cfg.LLMMaxTokens, "LLM_MAX_TOKENS"),
		envOverrideFloat(&cfg.LLMTemperature, "LLM_TEMPERATURE"),
		envOverrideInt(&cfg.LLMRetryDelayMillis, "LLM_RETRY_DELAY_MS"),
		envOverrideInt(&cfg.LLMCacheTTLHours, "LLM_CACHE_TTL_HOURS"),
		envOverrideInt(&cfg.WorkerConcurrency, "WORKER_CONCURRENCY"),
		envOverrideInt(&cfg.WorkerPollIntervalSeconds, "WORKER_POLL_INTERVAL_SECONDS"),
		envOverrideInt(&cfg.ReportTimeoutSeconds, "REPORT_TIMEOUT_SECONDS"),
		envOverrideFloat(&cfg.FreeReportMinScore, "FREE_REPORT_MIN_SCORE"),
		envOverrideInt(&cfg.FreeReportLimit, "FREE_REPORT_LIMIT"),
		envOverrideInt(&cfg.PremiumReportCost, "PREMIUM_REPORT_COST"),
		envOverrideInt(&cfg.ExternalHTTPTimeoutSeconds, "EXTERNAL_HTTP_TIMEOUT_SECONDS"),
	); err != nil {
		return Config{}, err
	}

	applyDefaults(&cfg)
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.LLMProvider == "" {
		cfg.LLMProvider = ProviderAnthropic
	}
	cfg.LLMProvider = strings.ToLower(strings.TrimSpace(cfg.LLMProvider))
	if cfg.LLMMaxTokens == 0 {
		cfg.LLMMaxTokens = 5000
	}
	if cfg.LLMTemperature == 0 {
		cfg.LLMTemperature = 0.7
	}
	if cfg.LLMRetryDelayMillis == 0 {
		cfg.LLMRetryDelayMillis = 500
	}
	if cfg.LLMCacheTTLHours == 0 {
		cfg.LLMCacheTTLHours = 24
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./vehiclereport.db"
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Local"
	}
	if cfg.WorkerConcurrency == 0 {
		cfg.WorkerConcurrency = 4
	}
	if cfg.WorkerPollIntervalSeconds == 0 {
		cfg.WorkerPollIntervalSeconds = 5
	}
	if cfg.ReportTimeoutSeconds == 0 {
		cfg.ReportTimeoutSeconds = 300
	}
	if cfg.FreeReportMinScore == 0 {
		cfg.FreeReportMinScore = 0.65
	}
	if cfg.FreeReportLimit == 0 {
		cfg.FreeReportLimit = 5
	}
	if cfg.PremiumReportCost == 0 {
		cfg.PremiumReportCost = 1
	}
	if cfg.MetricsAddr == "" {
		cfg.MetricsAddr = ":9090"
	}
	if cfg.ExternalHTTPTimeoutSeconds == 0 {
		cfg.ExternalHTTPTimeoutSeconds = defaultExternalHTTPTimeoutSeconds
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Environment == "" {
		cfg.Environment = "local"
	}
}

func (c *Config) validate() error {
	switch c.LLMProvider {
	case ProviderAnthropic, ProviderOpenAI:
	default:
		return fmt.Errorf("llm_provider must be 'anthropic' or 'openai', got '%s'", c.LLMProvider)
	}

	if strings.EqualFold(c.Timezone, "Local") {
		c.Location = time.Local
		c.Timezone = time.Local.String()
	} else {
		loc, err := time.LoadLocation(c.Timezone)
		if err != nil {
			return fmt.Errorf("invalid timezone '%s': %w", c.Timezone, err)
		}
		c.Location = loc
	}

	if c.StatsSchedule != "" {
		if _, err := ParseSchedule(c.StatsSchedule); err != nil {
			return fmt.Errorf("invalid stats_schedule '%s': %w", c.StatsSchedule, err)
		}
	}
	if c.LLMMaxTokens < 1 {
		return fmt.Errorf("invalid llm_max_tokens '%d': must be >= 1", c.LLMMaxTokens)
	}
	if c.LLMTemperature < 0 || c.LLMTemperature > 2 {
		return fmt.Errorf("invalid llm_temperature '%f': must be between 0 and 2", c.LLMTemperature)
	}
	if c.LLMRetryDelayMillis < 0 {
		return fmt.Errorf("invalid llm_retry_delay_ms '%d': must be >= 0", c.LLMRetryDelayMillis)
	}
	if c.LLMCacheTTLHours < 0 {
		return fmt.Errorf("invalid llm_cache_ttl_hours '%d': must be >= 0", c.LLMCacheTTLHours)
	}
	if c.WorkerConcurrency < 1 {
		return fmt.Errorf("invalid worker_concurrency '%d': must be >= 1", c.WorkerConcurrency)
	}
	if c.WorkerPollIntervalSeconds < 1 {
		return fmt.Errorf("invalid worker_poll_interval_seconds '%d': must be >= 1", c.WorkerPollIntervalSeconds)
	}
	if c.ReportTimeoutSeconds < 1 {
		return fmt.Errorf("invalid report_timeout_seconds '%d': must be >= 1", c.ReportTimeoutSeconds)
	}
	if c.FreeReportMinScore < 0 || c.FreeReportMinScore > 1 {
		return fmt.Errorf("invalid free_report_min_score '%f': must be between 0 and 1", c.FreeReportMinScore)
	}
	if c.FreeReportLimit < 1 {
		return fmt.Errorf("invalid free_report_limit '%d': must be >= 1", c.FreeReportLimit)
	}
	if c.PremiumReportCost < 1 {
		return fmt.Errorf("invalid premium_report_cost '%d': must be >= 1", c.PremiumReportCost)
	}
	if c.ExternalHTTPTimeoutSeconds < 1 {
		return fmt.Errorf("invalid external_http_timeout_seconds '%d': must be >= 1", c.ExternalHTTPTimeoutSeconds)
	}
	return nil
}

// ValidateLLM checks that the selected provider has an API key. Commands that never call
// the text generator skip it.
func (c Config) ValidateLLM() error {
	switch c.LLMProvider {
	case ProviderAnthropic:
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("anthropic_api_key is required when llm_provider=anthropic")
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("openai_api_key is required when llm_provider=openai")
		}
	}
	return nil
}

func (c Config) SlackConfigured() bool {
	return c.SlackBotToken != "" && c.OperatorChannelID != ""
}

func (c Config) RedisConfigured() bool {
	return strings.TrimSpace(c.RedisURL) != ""
}

func (c Config) LLMCacheTTL() time.Duration {
	return time.Duration(c.LLMCacheTTLHours) * time.Hour
}

func (c Config) LLMRetryDelay() time.Duration {
	return time.Duration(c.LLMRetryDelayMillis) * time.Millisecond
}

func (c Config) WorkerPollInterval() time.Duration {
	return time.Duration(c.WorkerPollIntervalSeconds) * time.Second
}

func (c Config) ReportTimeout() time.Duration {
	return time.Duration(c.ReportTimeoutSeconds) * time.Second
}

// ParseSchedule parses a standard 5-field cron expression.
func ParseSchedule(spec string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return parser.Parse(strings.TrimSpace(spec))
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideAllowEmpty(field *string, envKey string) {
	if val, ok := os.LookupEnv(envKey); ok {
		*field = strings.TrimSpace(val)
	}
}

func envOverrideInt(field *int, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", envKey, val, err)
		}
		*field = parsed
	}
	return nil
}

func envOverrideFloat(field *float64, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", envKey, val, err)
		}
		*field = parsed
	}
	return nil
}
