package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/intel-cli/internal/model"
	"github.com/sells-group/intel-cli/internal/ratelimit"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 4, cfg.Gather.MaxConcurrency)
	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.False(t, cfg.Breaker.Enabled)

	assert.Equal(t, []string{"brand24", "clearbit", "dataforseo", "priceapi", "similarweb", "trustpilot"}, cfg.ProviderNames())
	assert.Equal(t, DefaultProviders()["similarweb"], cfg.Providers["similarweb"])
	assert.InDelta(t, 25, cfg.Providers["dataforseo"].BudgetLimit, 0.001)

	assert.InDelta(t, 0.05, cfg.Pricing.Providers["similarweb"].PerRequest, 0.0001)
	assert.InDelta(t, 0.0125, cfg.Pricing.Providers["dataforseo"].PerCapability[string(model.CapabilityKeywords)], 0.0001)
	assert.InDelta(t, 0.01, cfg.Pricing.Default.PerRequest, 0.0001)

	backoff := cfg.Retry.Backoff()
	assert.Equal(t, time.Second, backoff.Base)
	assert.Equal(t, 30*time.Second, backoff.Max)
	assert.Equal(t, time.Second, backoff.Jitter)

	cb := cfg.Breaker.CircuitBreaker()
	assert.Equal(t, 5, cb.FailureThreshold)
	assert.Equal(t, 30*time.Second, cb.ResetTimeout)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
log:
  level: debug
  format: console
server:
  port: 9090
providers:
  similarweb:
    requests_per_minute: 10
    budget_limit: 2.5
  semrush:
    requests_per_minute: 20
    budget_limit: 0
retry:
  max_retries: 1
  jitter_ms: -1
breaker:
  enabled: true
  failure_threshold: 2
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 10, cfg.Providers["similarweb"].RequestsPerMinute)
	assert.InDelta(t, 2.5, cfg.Providers["similarweb"].BudgetLimit, 0.001)
	// Unset keys of a partially overridden provider keep their defaults.
	assert.Equal(t, 500, cfg.Providers["similarweb"].RequestsPerHour)
	assert.Equal(t, ratelimit.Config{RequestsPerMinute: 20}, cfg.Providers["semrush"])
	assert.Len(t, cfg.Providers, 7)

	assert.Equal(t, 1, cfg.Retry.MaxRetries)
	assert.Equal(t, time.Duration(-1), cfg.Retry.Backoff().Jitter)
	assert.True(t, cfg.Breaker.Enabled)
	assert.Equal(t, 2, cfg.Breaker.CircuitBreaker().FailureThreshold)
	// Defaults still apply for unset values
	assert.Equal(t, 4, cfg.Gather.MaxConcurrency)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
log:
  level: debug
server:
  port: 9090
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("INTEL_LOG_LEVEL", "warn")
	t.Setenv("INTEL_SERVER_PORT", "7070")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("INTEL_GATHER_MAX_CONCURRENCY", "8")
	t.Setenv("INTEL_PROVIDERS_CLEARBIT_BUDGET_LIMIT", "99.5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Gather.MaxConcurrency)
	assert.InDelta(t, 99.5, cfg.Providers["clearbit"].BudgetLimit, 0.001)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("log: [unclosed"), 0644))

	_, err := Load()
	assert.Error(t, err)
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

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{Providers: DefaultProviders()}
	cfg.Server.Port = 8080
	cfg.Gather.MaxConcurrency = 4
	cfg.Retry.MaxRetries = 3
	return cfg
}

func TestValidate_Defaults(t *testing.T) {
	cfg := validDefaults()
	for _, mode := range []string{"serve", "gather", "limits", "normalize"} {
		assert.NoError(t, cfg.Validate(mode), mode)
	}
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")

	// Port only matters for serve.
	assert.NoError(t, cfg.Validate("gather"))
}

func TestValidateGather_ConcurrencyBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Gather.MaxConcurrency = 0
	err := cfg.Validate("gather")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "max_concurrency must be between 1 and 32")

	cfg.Gather.MaxConcurrency = 33
	assert.Error(t, cfg.Validate("gather"))

	cfg.Gather.MaxConcurrency = 32
	assert.NoError(t, cfg.Validate("gather"))
}

func TestValidate_ProviderLimits(t *testing.T) {
	cfg := validDefaults()
	cfg.Providers["broken"] = ratelimit.Config{RequestsPerMinute: 0}
	cfg.Retry.MaxRetries = -1

	err := cfg.Validate("limits")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "providers.broken")
	assert.Contains(t, err.Error(), "retry.max_retries must be >= 0")

	// normalize never touches providers.
	assert.NoError(t, cfg.Validate("normalize"))
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
