package config

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/intel-cli/internal/cost"
	"github.com/sells-group/intel-cli/internal/ratelimit"
	"github.com/sells-group/intel-cli/internal/resilience"
)

// Config holds the full application configuration.
type Config struct {
	Providers map[string]ratelimit.Config `yaml:"providers" mapstructure:"providers"`
	Pricing   cost.Rates                  `yaml:"pricing" mapstructure:"pricing"`
	Retry     RetryConfig                 `yaml:"retry" mapstructure:"retry"`
	Breaker   BreakerConfig               `yaml:"breaker" mapstructure:"breaker"`
	Gather    GatherConfig                `yaml:"gather" mapstructure:"gather"`
	Server    ServerConfig                `yaml:"server" mapstructure:"server"`
	Log       LogConfig                   `yaml:"log" mapstructure:"log"`
}

// RetryConfig configures backoff between failed provider calls.
type RetryConfig struct {
	BaseMs     int `yaml:"base_ms" mapstructure:"base_ms"`
	MaxMs      int `yaml:"max_ms" mapstructure:"max_ms"`
	JitterMs   int `yaml:"jitter_ms" mapstructure:"jitter_ms"`
	MaxRetries int `yaml:"max_retries" mapstructure:"max_retries"`
}

// Backoff converts the retry settings to a BackoffConfig.
func (r RetryConfig) Backoff() resilience.BackoffConfig {
	return resilience.FromBackoffConfig(r.BaseMs, r.MaxMs, r.JitterMs)
}

// BreakerConfig configures per-provider circuit breaking.
type BreakerConfig struct {
	Enabled          bool `yaml:"enabled" mapstructure:"enabled"`
	FailureThreshold int  `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int  `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// CircuitBreaker converts the breaker settings to a CircuitBreakerConfig.
func (b BreakerConfig) CircuitBreaker() resilience.CircuitBreakerConfig {
	return resilience.FromCircuitConfig(b.FailureThreshold, b.ResetTimeoutSecs)
}

// GatherConfig configures provider fan-out.
type GatherConfig struct {
	MaxConcurrency int    `yaml:"max_concurrency" mapstructure:"max_concurrency"`
	FixturesPath   string `yaml:"fixtures_path" mapstructure:"fixtures_path"`
}

// ServerConfig configures the status server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DefaultProviders returns the seeded limits for the built-in providers.
func DefaultProviders() map[string]ratelimit.Config {
	return map[string]ratelimit.Config{
		"dataforseo": {RequestsPerMinute: 120, RequestsPerHour: 2000, RequestsPerDay: 20000, BudgetLimit: 25},
		"similarweb": {RequestsPerMinute: 30, RequestsPerHour: 500, RequestsPerDay: 5000, BudgetLimit: 20},
		"priceapi":   {RequestsPerMinute: 60, RequestsPerHour: 1000, RequestsPerDay: 10000, BudgetLimit: 15},
		"trustpilot": {RequestsPerMinute: 60, RequestsPerHour: 1000, RequestsPerDay: 10000, BudgetLimit: 5},
		"brand24":    {RequestsPerMinute: 30, RequestsPerHour: 500, RequestsPerDay: 5000, BudgetLimit: 10},
		"clearbit":   {RequestsPerMinute: 60, RequestsPerHour: 600, RequestsPerDay: 6000, BudgetLimit: 30},
	}
}

// ProviderNames returns the configured provider ids, sorted.
func (c *Config) ProviderNames() []string {
	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks the settings the given command mode depends on. Mode is
// one of "serve", "gather", "limits" or "normalize".
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "serve", "gather", "limits":
		for _, name := range c.ProviderNames() {
			if err := c.Providers[name].Validate(); err != nil {
				problems = append(problems, "providers."+name+": "+err.Error())
			}
		}
		if c.Retry.MaxRetries < 0 {
			problems = append(problems, "retry.max_retries must be >= 0")
		}
	case "normalize":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch mode {
	case "serve":
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	case "gather":
		if c.Gather.MaxConcurrency < 1 || c.Gather.MaxConcurrency > 32 {
			problems = append(problems, "gather.max_concurrency must be between 1 and 32")
		}
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("gather.max_concurrency", 4)
	v.SetDefault("retry.base_ms", 1000)
	v.SetDefault("retry.max_ms", 30000)
	v.SetDefault("retry.jitter_ms", 1000)
	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("breaker.enabled", false)
	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.reset_timeout_secs", 30)

	for name, p := range DefaultProviders() {
		prefix := "providers." + name + "."
		v.SetDefault(prefix+"requests_per_minute", p.RequestsPerMinute)
		v.SetDefault(prefix+"requests_per_hour", p.RequestsPerHour)
		v.SetDefault(prefix+"requests_per_day", p.RequestsPerDay)
		v.SetDefault(prefix+"budget_limit", p.BudgetLimit)
	}

	rates := cost.DefaultRates()
	v.SetDefault("pricing.default.per_request", rates.Default.PerRequest)
	for name, r := range rates.Providers {
		prefix := "pricing.providers." + name + "."
		v.SetDefault(prefix+"per_request", r.PerRequest)
		for capability, price := range r.PerCapability {
			v.SetDefault(prefix+"per_capability."+capability, price)
		}
	}
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("INTEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

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
