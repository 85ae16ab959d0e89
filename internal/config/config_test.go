package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Batch.Concurrency)
	assert.Equal(t, 90, cfg.Batch.SubjectTimeoutSecs)
	assert.Equal(t, 120, cfg.Redis.LeaseTTLSecs)
	assert.InDelta(t, 2.0, cfg.Batch.AIRPS, 0.001)
	assert.Equal(t, 30, cfg.Scoring.WindowDays)
	assert.InDelta(t, 0.5, cfg.Scoring.FallbackConfidence, 0.001)
	assert.Equal(t, 20, cfg.Alert.DropThreshold)
	assert.Equal(t, 2, cfg.Alert.DueInDays)
	assert.Equal(t, 2, cfg.Retry.PersistenceAttempts)
	assert.Equal(t, 5, cfg.Circuit.FailureThreshold)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Anthropic.Model)
	assert.Equal(t, int64(1024), cfg.Anthropic.MaxTokens)
	assert.Equal(t, "https://login.salesforce.com", cfg.Salesforce.LoginURL)
	assert.Equal(t, "Monthly_Value__c", cfg.Salesforce.ContractValueField)
	assert.Equal(t, "Health_Score__c", cfg.Salesforce.Fields.HealthScore)
	assert.False(t, cfg.Salesforce.WriteBack)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Equal(t, 120, cfg.Redis.LeaseTTLSecs)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/scoring
log:
  level: debug
  format: console
scoring:
  window_days: 14
  enterprise_domains:
    - acme.com
    - globex.com
alert:
  drop_threshold: 15
batch:
  concurrency: 10
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 14, cfg.Scoring.WindowDays)
	assert.Equal(t, []string{"acme.com", "globex.com"}, cfg.Scoring.EnterpriseDomains)
	assert.Equal(t, 15, cfg.Alert.DropThreshold)
	assert.Equal(t, 10, cfg.Batch.Concurrency)
	// Defaults still apply for unset values
	assert.Equal(t, 2, cfg.Alert.DueInDays)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("SCORING_STORE_DRIVER", "postgres")
	t.Setenv("SCORING_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("SCORING_SERVER_PORT", "3000")
	t.Setenv("SCORING_ALERT_DROP_THRESHOLD", "25")
	t.Setenv("SCORING_ANTHROPIC_KEY", "sk-ant-key")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 25, cfg.Alert.DropThreshold)
	assert.Equal(t, "sk-ant-key", cfg.Anthropic.Key)
}

func TestLoadMalformedFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0o644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config populated well enough to pass every mode.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "scoring.db"
	cfg.Warehouse.DatabaseURL = "postgres://localhost/warehouse"
	cfg.Salesforce.ClientID = "client"
	cfg.Salesforce.Username = "svc@example.com"
	cfg.Salesforce.KeyPath = "/etc/sf/key.pem"
	cfg.Scoring.WindowDays = 30
	cfg.Scoring.FallbackConfidence = 0.5
	cfg.Alert.DropThreshold = 20
	cfg.Alert.DueInDays = 2
	cfg.Batch.Concurrency = 5
	cfg.Batch.SubjectTimeoutSecs = 90
	cfg.Redis.LeaseTTLSecs = 120
	cfg.Server.Port = 8080
	return cfg
}

func TestValidate_AllModesPass(t *testing.T) {
	cfg := validDefaults()
	for _, mode := range []string{"score", "batch", "history", "serve"} {
		assert.NoError(t, cfg.Validate(mode), mode)
	}
}

func TestValidate_MissingUpstream(t *testing.T) {
	cfg := validDefaults()
	cfg.Salesforce.ClientID = ""
	cfg.Warehouse.DatabaseURL = ""

	err := cfg.Validate("score")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "salesforce.client_id is required")
	assert.Contains(t, err.Error(), "warehouse.database_url is required")

	// history only reads the store
	assert.NoError(t, cfg.Validate("history"))
}

func TestValidate_Store(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"
	cfg.Store.DatabaseURL = ""

	err := cfg.Validate("history")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be sqlite or postgres")
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestValidate_ServePort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
}

func TestValidate_ScoringBounds(t *testing.T) {
	cfg := validDefaults()
	cfg.Scoring.FallbackConfidence = 1.5
	cfg.Scoring.WindowDays = 0
	cfg.Alert.DropThreshold = 0

	err := cfg.Validate("score")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fallback_confidence")
	assert.Contains(t, err.Error(), "window_days")
	assert.Contains(t, err.Error(), "drop_threshold")
}

func TestValidate_BatchConcurrency(t *testing.T) {
	cfg := validDefaults()

	cfg.Batch.Concurrency = 0
	err := cfg.Validate("batch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch.concurrency must be between 1 and 50")

	cfg.Batch.Concurrency = 51
	assert.Error(t, cfg.Validate("batch"))

	cfg.Batch.Concurrency = 50
	assert.NoError(t, cfg.Validate("batch"))
}

func TestValidate_SubjectTimeoutBelowLeaseTTL(t *testing.T) {
	cfg := validDefaults()

	cfg.Batch.SubjectTimeoutSecs = 120
	err := cfg.Validate("batch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch.subject_timeout_secs must be >= 1 and below redis.lease_ttl_secs (120)")

	cfg.Batch.SubjectTimeoutSecs = 0
	assert.Error(t, cfg.Validate("batch"))

	// batch settings only apply to batch mode
	assert.NoError(t, cfg.Validate("score"))

	cfg.Batch.SubjectTimeoutSecs = 119
	assert.NoError(t, cfg.Validate("batch"))
}

func TestValidate_UnknownMode(t *testing.T) {
	err := validDefaults().Validate("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
