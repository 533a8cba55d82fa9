// Package intel fans one intelligence request out to every provider that can
// serve it, through the coordinator, and returns normalized, merged results.
package intel

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/intel-cli/internal/coordinator"
	"github.com/sells-group/intel-cli/internal/cost"
	"github.com/sells-group/intel-cli/internal/model"
	"github.com/sells-group/intel-cli/internal/normalize"
	"github.com/sells-group/intel-cli/internal/provider"
)

// DefaultMaxConcurrency bounds how many providers are called at once.
const DefaultMaxConcurrency = 4

// ErrNoProviders is returned when no configured provider serves the request.
var ErrNoProviders = eris.New("intel: no configured provider supports the requested capabilities")

// Result is the outcome of one Gather call. Errors lists providers that
// failed; their absence from Intel is the only other sign of it.
type Result struct {
	RequestID string                       `json:"request_id"`
	Intel     []model.NormalizedIntel      `json:"intel"`
	Errors    []*coordinator.ProviderError `json:"errors,omitempty"`
	Providers []string                     `json:"providers"`
	Datums    int                          `json:"datums"`
	Cost      float64                      `json:"estimated_cost"`
	Duration  time.Duration                `json:"duration"`
}

// Gatherer is safe for concurrent use.
type Gatherer struct {
	registry   *provider.Registry
	coord      *coordinator.Coordinator
	calc       *cost.Calculator
	normalizer *normalize.Normalizer

	maxConcurrency int
	maxRetries     int
}

// Option configures a Gatherer.
type Option func(*Gatherer)

// WithMaxConcurrency bounds parallel provider calls. Non-positive values keep
// the default.
func WithMaxConcurrency(n int) Option {
	return func(g *Gatherer) {
		if n > 0 {
			g.maxConcurrency = n
		}
	}
}

// WithMaxRetries sets the per-provider retry budget.
func WithMaxRetries(n int) Option {
	return func(g *Gatherer) { g.maxRetries = n }
}

// NewGatherer creates a Gatherer.
func NewGatherer(registry *provider.Registry, coord *coordinator.Coordinator, calc *cost.Calculator, normalizer *normalize.Normalizer, opts ...Option) *Gatherer {
	g := &Gatherer{
		registry:       registry,
		coord:          coord,
		calc:           calc,
		normalizer:     normalizer,
		maxConcurrency: DefaultMaxConcurrency,
		maxRetries:     coordinator.DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type providerOutcome struct {
	datums []model.IntelDatum
	err    *coordinator.ProviderError
}

// Gather queries every configured provider supporting at least one requested
// capability. Each provider's payloads are normalized separately and the
// per-provider results merged, so metrics from different providers combine
// on shared entities. A failing provider never fails the whole request.
func (g *Gatherer) Gather(ctx context.Context, req provider.Request) (*Result, error) {
	for _, c := range req.Capabilities {
		if !c.Valid() {
			return nil, eris.Errorf("intel: unknown capability %q", string(c))
		}
	}

	start := time.Now()
	res := &Result{RequestID: uuid.New().String()}
	log := zap.L().With(
		zap.String("request_id", res.RequestID),
		zap.String("shop_id", req.ShopID),
	)

	providers := g.registry.ForCapabilities(req.ShopID, req.Capabilities)
	if len(providers) == 0 {
		return nil, ErrNoProviders
	}

	outcomes := make([]providerOutcome, len(providers))
	var costMu sync.Mutex

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.maxConcurrency)

	for i, p := range providers {
		res.Providers = append(res.Providers, p.Name())
		caps := capabilitiesFor(p, req.Capabilities)
		estimated := g.calc.Estimate(p.Name(), caps)

		preq := req
		preq.Capabilities = caps

		eg.Go(func() error {
			datums, err := g.coord.ExecuteRequest(gctx, p.Name(), func(ctx context.Context) ([]model.IntelDatum, error) {
				return p.Fetch(ctx, preq)
			}, estimated, g.maxRetries)
			if err != nil {
				pe, ok := coordinator.AsProviderError(err)
				if !ok {
					pe = &coordinator.ProviderError{Provider: p.Name(), Code: coordinator.CodeRequestFailed, Message: err.Error(), Err: err}
				}
				log.Warn("intel: provider failed",
					zap.String("provider", p.Name()),
					zap.String("code", string(pe.Code)),
					zap.Error(err),
				)
				outcomes[i].err = pe
				return nil
			}

			costMu.Lock()
			res.Cost += estimated
			costMu.Unlock()
			outcomes[i].datums = datums
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, eris.Wrap(err, "intel: gather")
	}

	var merged []model.NormalizedIntel
	for _, o := range outcomes {
		if o.err != nil {
			res.Errors = append(res.Errors, o.err)
			continue
		}
		res.Datums += len(o.datums)
		merged = append(merged, g.normalizer.NormalizeResults(o.datums)...)
	}
	res.Intel = normalize.MergeEntityResults(merged)
	res.Duration = time.Since(start)

	log.Info("intel: gather complete",
		zap.Int("providers", len(providers)),
		zap.Int("failed", len(res.Errors)),
		zap.Int("datums", res.Datums),
		zap.Int("entities", len(res.Intel)),
		zap.Duration("duration", res.Duration),
	)

	if err := ctx.Err(); err != nil {
		return res, eris.Wrap(err, "intel: gather cancelled")
	}
	return res, nil
}

// capabilitiesFor returns the requested capabilities p supports, or all of
// p's capabilities when none were requested.
func capabilitiesFor(p provider.Provider, requested []model.Capability) []model.Capability {
	if len(requested) == 0 {
		return slices.Clone(p.Capabilities())
	}
	var out []model.Capability
	for _, c := range requested {
		if provider.Supports(p, c) {
			out = append(out, c)
		}
	}
	return out
}
