package main

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/intel-cli/internal/budget"
	"github.com/sells-group/intel-cli/internal/config"
	"github.com/sells-group/intel-cli/internal/coordinator"
	"github.com/sells-group/intel-cli/internal/cost"
	"github.com/sells-group/intel-cli/internal/intel"
	"github.com/sells-group/intel-cli/internal/normalize"
	"github.com/sells-group/intel-cli/internal/provider"
	"github.com/sells-group/intel-cli/internal/ratelimit"
	"github.com/sells-group/intel-cli/internal/resilience"
)

// intelEnv holds the coordinator, provider registry and gatherer needed by
// the serve and gather commands.
type intelEnv struct {
	Coordinator *coordinator.Coordinator
	Registry    *provider.Registry
	Gatherer    *intel.Gatherer
	Normalizer  *normalize.Normalizer
	Calculator  *cost.Calculator
}

// newCoordinator builds the limiter, ledger and coordinator from c and
// installs every configured provider's limits.
func newCoordinator(c *config.Config) (*coordinator.Coordinator, error) {
	limiter := ratelimit.NewLimiter()
	ledger := budget.NewLedger(budget.WithDefaultLimit(ratelimit.DefaultConfig().BudgetLimit))

	opts := []coordinator.Option{coordinator.WithBackoff(c.Retry.Backoff())}
	if c.Breaker.Enabled {
		cbCfg := c.Breaker.CircuitBreaker()
		cbCfg.OnStateChange = func(from, to resilience.CircuitState) {
			zap.L().Warn("circuit breaker state change",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		}
		opts = append(opts, coordinator.WithBreakers(resilience.NewProviderBreakers(cbCfg)))
	}

	coord := coordinator.New(limiter, ledger, opts...)
	for _, name := range c.ProviderNames() {
		if err := coord.SetProviderLimits(name, c.Providers[name]); err != nil {
			return nil, eris.Wrapf(err, "provider %s", name)
		}
	}
	return coord, nil
}

// initIntel validates the config for mode and wires the full environment.
// Providers are loaded from gather.fixtures_path when it is set.
func initIntel(mode string) (*intelEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	coord, err := newCoordinator(cfg)
	if err != nil {
		return nil, err
	}

	reg := provider.NewRegistry()
	if cfg.Gather.FixturesPath != "" {
		fixtures, err := provider.LoadFixtures(cfg.Gather.FixturesPath)
		if err != nil {
			return nil, eris.Wrap(err, "load fixtures")
		}
		for _, f := range fixtures {
			reg.Register(f)
		}
		zap.L().Info("loaded fixture providers",
			zap.String("path", cfg.Gather.FixturesPath),
			zap.Strings("providers", reg.List()),
		)
	}

	calc := cost.NewCalculator(cfg.Pricing)
	norm := normalize.New()
	g := intel.NewGatherer(reg, coord, calc, norm,
		intel.WithMaxConcurrency(cfg.Gather.MaxConcurrency),
		intel.WithMaxRetries(cfg.Retry.MaxRetries),
	)

	return &intelEnv{
		Coordinator: coord,
		Registry:    reg,
		Gatherer:    g,
		Normalizer:  norm,
		Calculator:  calc,
	}, nil
}
