// Package cost estimates what a provider call will be charged against the
// provider's daily budget.
package cost

import (
	"github.com/sells-group/intel-cli/internal/model"
)

// Rates holds per-provider pricing configuration.
type Rates struct {
	Providers map[string]ProviderRate `yaml:"providers" mapstructure:"providers" json:"providers"`
	// Default applies to providers without an entry.
	Default ProviderRate `yaml:"default" mapstructure:"default" json:"default"`
}

// ProviderRate prices one call to a provider. A call for several
// capabilities costs the sum of their per-capability rates; capabilities
// without a rate cost PerRequest.
type ProviderRate struct {
	PerRequest    float64            `yaml:"per_request" mapstructure:"per_request" json:"per_request"`
	PerCapability map[string]float64 `yaml:"per_capability" mapstructure:"per_capability" json:"per_capability,omitempty"`
}

func (r ProviderRate) capability(c model.Capability) float64 {
	if v, ok := r.PerCapability[string(c)]; ok {
		return v
	}
	return r.PerRequest
}

// Calculator computes estimated request costs.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Rate returns the effective rate for a provider.
func (c *Calculator) Rate(provider string) ProviderRate {
	if r, ok := c.rates.Providers[provider]; ok {
		return r
	}
	return c.rates.Default
}

// Estimate returns the estimated cost of one call to provider covering caps.
// With no capabilities the call costs the provider's PerRequest rate.
func (c *Calculator) Estimate(provider string, caps []model.Capability) float64 {
	rate := c.Rate(provider)
	if len(caps) == 0 {
		return rate.PerRequest
	}
	var total float64
	for _, capability := range caps {
		total += rate.capability(capability)
	}
	return total
}

// DefaultRates returns the default pricing rates in USD.
func DefaultRates() Rates {
	return Rates{
		Providers: map[string]ProviderRate{
			"dataforseo": {
				PerRequest: 0.01,
				PerCapability: map[string]float64{
					string(model.CapabilityKeywords): 0.0125,
					string(model.CapabilitySERP):     0.002,
				},
			},
			"similarweb": {
				PerRequest:    0.05,
				PerCapability: map[string]float64{string(model.CapabilityTraffic): 0.05},
			},
			"priceapi": {
				PerRequest:    0.02,
				PerCapability: map[string]float64{string(model.CapabilityPricing): 0.02},
			},
			"trustpilot": {
				PerRequest:    0.005,
				PerCapability: map[string]float64{string(model.CapabilityReviews): 0.005},
			},
			"brand24": {
				PerRequest:    0.01,
				PerCapability: map[string]float64{string(model.CapabilitySocial): 0.01},
			},
			"clearbit": {
				PerRequest:    0.10,
				PerCapability: map[string]float64{string(model.CapabilityCompanyProfile): 0.10},
			},
		},
		Default: ProviderRate{PerRequest: 0.01},
	}
}
