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
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Warehouse  WarehouseConfig  `yaml:"warehouse" mapstructure:"warehouse"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
	Redis      RedisConfig      `yaml:"redis" mapstructure:"redis"`
	Scoring    ScoringConfig    `yaml:"scoring" mapstructure:"scoring"`
	Alert      AlertConfig      `yaml:"alert" mapstructure:"alert"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Circuit    CircuitConfig    `yaml:"circuit" mapstructure:"circuit"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the snapshot history backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// WarehouseConfig points at the behavioral-event warehouse (web, payment
// and usage aggregates).
type WarehouseConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

// AnthropicConfig holds Anthropic API settings. An empty key disables AI
// enrichment.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	Model       string `yaml:"model" mapstructure:"model"`
	MaxTokens   int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// SalesforceConfig holds Salesforce JWT auth settings and the record fields
// scores are written back to.
type SalesforceConfig struct {
	ClientID           string            `yaml:"client_id" mapstructure:"client_id"`
	Username           string            `yaml:"username" mapstructure:"username"`
	KeyPath            string            `yaml:"key_path" mapstructure:"key_path"`
	LoginURL           string            `yaml:"login_url" mapstructure:"login_url"`
	RateLimitRPS       float64           `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
	ContractValueField string            `yaml:"contract_value_field" mapstructure:"contract_value_field"`
	LeadFilter         string            `yaml:"lead_filter" mapstructure:"lead_filter"`
	AccountFilter      string            `yaml:"account_filter" mapstructure:"account_filter"`
	WriteBack          bool              `yaml:"write_back" mapstructure:"write_back"`
	Fields             ScoreFieldsConfig `yaml:"fields" mapstructure:"fields"`
}

// ScoreFieldsConfig names the custom fields receiving written-back scores.
type ScoreFieldsConfig struct {
	LeadScore        string `yaml:"lead_score" mapstructure:"lead_score"`
	LeadGrade        string `yaml:"lead_grade" mapstructure:"lead_grade"`
	HealthScore      string `yaml:"health_score" mapstructure:"health_score"`
	RiskCategory     string `yaml:"risk_category" mapstructure:"risk_category"`
	ChurnProbability string `yaml:"churn_probability" mapstructure:"churn_probability"`
}

// RedisConfig configures the distributed per-subject lease. An empty addr
// selects an in-process lease.
type RedisConfig struct {
	Addr         string `yaml:"addr" mapstructure:"addr"`
	Password     string `yaml:"password" mapstructure:"password"`
	DB           int    `yaml:"db" mapstructure:"db"`
	LeaseTTLSecs int    `yaml:"lease_ttl_secs" mapstructure:"lease_ttl_secs"`
}

// ScoringConfig configures collection and aggregation.
type ScoringConfig struct {
	WindowDays         int      `yaml:"window_days" mapstructure:"window_days"`
	FallbackConfidence float64  `yaml:"fallback_confidence" mapstructure:"fallback_confidence"`
	LeadProfilePath    string   `yaml:"lead_profile_path" mapstructure:"lead_profile_path"`
	HealthProfilePath  string   `yaml:"health_profile_path" mapstructure:"health_profile_path"`
	EnterpriseDomains  []string `yaml:"enterprise_domains" mapstructure:"enterprise_domains"`
	FreeMailDomains    []string `yaml:"free_mail_domains" mapstructure:"free_mail_domains"`
}

// AlertConfig configures score-drop alerts.
type AlertConfig struct {
	DropThreshold int `yaml:"drop_threshold" mapstructure:"drop_threshold"`
	DueInDays     int `yaml:"due_in_days" mapstructure:"due_in_days"`
}

// BatchConfig configures batch processing and the shared AI rate limit.
type BatchConfig struct {
	Concurrency        int     `yaml:"concurrency" mapstructure:"concurrency"`
	AIRPS              float64 `yaml:"ai_rps" mapstructure:"ai_rps"`
	AIBurst            int     `yaml:"ai_burst" mapstructure:"ai_burst"`
	ThrottleEvery      int     `yaml:"throttle_every" mapstructure:"throttle_every"`
	ThrottleDelayMs    int     `yaml:"throttle_delay_ms" mapstructure:"throttle_delay_ms"`
	SubjectTimeoutSecs int     `yaml:"subject_timeout_secs" mapstructure:"subject_timeout_secs"`
}

// RetryConfig configures retries for upstream reads and persistence.
type RetryConfig struct {
	MaxAttempts         int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs    int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs        int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	PersistenceAttempts int `yaml:"persistence_attempts" mapstructure:"persistence_attempts"`
}

// CircuitConfig configures the AI provider circuit breaker.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Port             int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins   []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	ScoreTimeoutSecs int      `yaml:"score_timeout_secs" mapstructure:"score_timeout_secs"`
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
	v.SetEnvPrefix("SCORING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "crm-scoring.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.score_timeout_secs", 60)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("anthropic.timeout_secs", 20)
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("salesforce.rate_limit_rps", 10)
	v.SetDefault("salesforce.contract_value_field", "Monthly_Value__c")
	v.SetDefault("salesforce.lead_filter", "IsConverted = false")
	v.SetDefault("salesforce.account_filter", "Type = 'Customer'")
	v.SetDefault("salesforce.fields.lead_score", "Lead_Score__c")
	v.SetDefault("salesforce.fields.lead_grade", "Lead_Grade__c")
	v.SetDefault("salesforce.fields.health_score", "Health_Score__c")
	v.SetDefault("salesforce.fields.risk_category", "Health_Risk__c")
	v.SetDefault("salesforce.fields.churn_probability", "Churn_Probability__c")
	v.SetDefault("redis.lease_ttl_secs", 120)
	v.SetDefault("scoring.window_days", 30)
	v.SetDefault("scoring.fallback_confidence", 0.5)
	v.SetDefault("alert.drop_threshold", 20)
	v.SetDefault("alert.due_in_days", 2)
	v.SetDefault("batch.concurrency", 5)
	v.SetDefault("batch.ai_rps", 2)
	v.SetDefault("batch.ai_burst", 1)
	v.SetDefault("batch.throttle_every", 10)
	v.SetDefault("batch.throttle_delay_ms", 1000)
	v.SetDefault("batch.subject_timeout_secs", 90)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 10000)
	v.SetDefault("retry.persistence_attempts", 2)
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.reset_timeout_secs", 30)

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
