package provider

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/intel-cli/internal/model"
)

func trafficDatum() model.IntelDatum {
	return model.IntelDatum{Capability: model.CapabilityTraffic, Payload: map[string]any{"domain": "a.com"}}
}

func pricingDatum() model.IntelDatum {
	return model.IntelDatum{Capability: model.CapabilityPricing, Payload: map[string]any{"productId": "sku-1"}}
}

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	assert.NotNil(t, r)
	assert.Empty(t, r.List())
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	r.Register(NewFixture("similarweb", []model.IntelDatum{trafficDatum()}))

	got := r.Get("similarweb")
	require.NotNil(t, got)
	assert.Equal(t, "similarweb", got.Name())
	assert.Nil(t, r.Get("nonexistent"))
}

func TestRegistry_ListSorted(t *testing.T) {
	r := NewRegistry()
	r.Register(NewFixture("trustpilot", nil))
	r.Register(NewFixture("brand24", nil))
	r.Register(NewFixture("clearbit", nil))

	assert.Equal(t, []string{"brand24", "clearbit", "trustpilot"}, r.List())
}

func TestRegistry_RegisterOverwrites(t *testing.T) {
	r := NewRegistry()
	r.Register(NewFixture("priceapi", []model.IntelDatum{pricingDatum()}))
	r.Register(NewFixture("priceapi", []model.IntelDatum{pricingDatum(), trafficDatum()}))

	assert.Equal(t, []model.Capability{model.CapabilityPricing, model.CapabilityTraffic}, r.Get("priceapi").Capabilities())
}

func TestRegistry_ForCapabilities(t *testing.T) {
	r := NewRegistry()
	r.Register(NewFixture("similarweb", []model.IntelDatum{trafficDatum()}))
	r.Register(NewFixture("priceapi", []model.IntelDatum{pricingDatum()}))
	r.Register(NewFixture("dataforseo", []model.IntelDatum{trafficDatum()}).RestrictShops("shop-2"))

	names := func(ps []Provider) []string {
		out := make([]string, 0, len(ps))
		for _, p := range ps {
			out = append(out, p.Name())
		}
		return out
	}

	assert.Equal(t, []string{"similarweb"}, names(r.ForCapabilities("shop-1", []model.Capability{model.CapabilityTraffic})))
	assert.Equal(t, []string{"dataforseo", "similarweb"}, names(r.ForCapabilities("shop-2", []model.Capability{model.CapabilityTraffic})))
	assert.Equal(t, []string{"priceapi", "similarweb"}, names(r.ForCapabilities("shop-1", nil)))
	assert.Empty(t, r.ForCapabilities("shop-1", []model.Capability{model.CapabilityReviews}))
}

func TestFixture_FetchFiltersCapabilities(t *testing.T) {
	f := NewFixture("multi", []model.IntelDatum{trafficDatum(), pricingDatum(), trafficDatum()})

	got, err := f.Fetch(context.Background(), Request{Capabilities: []model.Capability{model.CapabilityTraffic}})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	for _, d := range got {
		assert.Equal(t, "multi", d.Provider)
	}

	all, err := f.Fetch(context.Background(), Request{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestFixture_FailWith(t *testing.T) {
	boom := errors.New("boom")
	f := NewFixture("brand24", nil).FailWith(boom)

	_, err := f.Fetch(context.Background(), Request{})
	assert.ErrorIs(t, err, boom)
	assert.False(t, f.Healthcheck(context.Background()).OK)
}

func TestFixture_FetchHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewFixture("brand24", nil).Fetch(ctx, Request{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRegistry_Healthcheck(t *testing.T) {
	r := NewRegistry()
	r.Register(NewFixture("similarweb", []model.IntelDatum{trafficDatum()}))
	r.Register(NewFixture("brand24", nil).FailWith(errors.New("down")))

	got := r.Healthcheck(context.Background())
	assert.True(t, got["similarweb"].OK)
	assert.Equal(t, "1", got["similarweb"].Details["datums"])
	assert.False(t, got["brand24"].OK)
}

func TestLoadFixtures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixtures.yaml")
	content := `
- provider: similarweb
  capability: traffic
  payload:
    domain: rival.com
    visits: 1200
- provider: priceapi
  capability: pricing
  meta:
    currency: USD
  payload:
    products:
      - name: Widget
        seller: acme
        price: 9.99
- provider: similarweb
  capability: traffic
  payload:
    domain: other.com
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	fixtures, err := LoadFixtures(path)
	require.NoError(t, err)
	require.Len(t, fixtures, 2)
	assert.Equal(t, "similarweb", fixtures[0].Name())
	assert.Len(t, fixtures[0].data, 2)
	assert.Equal(t, "priceapi", fixtures[1].Name())
	assert.Equal(t, "USD", fixtures[1].data[0].Meta.Currency)
}

func TestReadDatums_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"provider":"clearbit","capability":"company_profile","payload":{"name":"Acme"}}]`), 0o600))

	data, err := ReadDatums(path)
	require.NoError(t, err)
	require.Len(t, data, 1)
	assert.Equal(t, model.CapabilityCompanyProfile, data[0].Capability)
	assert.Equal(t, "Acme", data[0].Payload["name"])
}

func TestLoadFixtures_Errors(t *testing.T) {
	_, err := LoadFixtures(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- capability: traffic\n"), 0o600))
	_, err = LoadFixtures(path)
	assert.Error(t, err)
}
