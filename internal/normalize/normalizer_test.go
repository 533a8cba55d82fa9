package normalize

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/intel-cli/internal/model"
)

var fixedNow = time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)

func newTestNormalizer() *Normalizer {
	return New(WithClock(func() time.Time { return fixedNow }))
}

func ptrF(v float64) *float64 { return &v }

func TestNormalizeResults_PricingProduct(t *testing.T) {
	n := newTestNormalizer()

	got := n.NormalizeResults([]model.IntelDatum{{
		Provider:   "p1",
		Capability: model.CapabilityPricing,
		Payload: map[string]any{
			"products": []any{
				map[string]any{
					"name":         "Widget",
					"price":        9.99,
					"currency":     "USD",
					"seller":       "acme",
					"availability": "in_stock",
					"lastSeenAt":   "t0",
				},
			},
		},
	}})

	require.Len(t, got, 1)
	rec := got[0]
	assert.Equal(t, model.EntityProduct, rec.EntityType)
	assert.Equal(t, "Widget-acme", rec.EntityID)
	assert.Equal(t, "Widget", rec.Name)
	require.NotNil(t, rec.Metrics.Price)
	assert.Equal(t, 9.99, *rec.Metrics.Price)
	assert.Equal(t, "USD", rec.Metrics.Currency)
	assert.Equal(t, "in_stock", rec.Metrics.Availability)
	require.Len(t, rec.Evidence, 1)
	assert.Equal(t, "p1", rec.Evidence[0].Provider)
	assert.Equal(t, model.CapabilityPricing, rec.Evidence[0].Capability)
	assert.Equal(t, fixedNow, rec.Evidence[0].RetrievedAt)
}

func TestNormalizeResults_PricingProductIDAndCurrency(t *testing.T) {
	n := newTestNormalizer()

	got := n.NormalizeResults([]model.IntelDatum{{
		Provider:   "priceapi",
		Capability: model.CapabilityPricing,
		Payload: map[string]any{
			"productId": "sku-42",
			"name":      "Gadget",
			"price":     "19.50",
			"history": []any{
				map[string]any{"price": 25.0, "date": "2026-05-01"},
				map[string]any{"price": 22.0, "date": "2026-06-01"},
			},
		},
		Meta: &model.DatumMeta{Currency: "eur"},
	}})

	require.Len(t, got, 1)
	assert.Equal(t, "sku-42", got[0].EntityID)
	require.NotNil(t, got[0].Metrics.Price)
	assert.InDelta(t, 19.5, *got[0].Metrics.Price, 1e-9)
	assert.Equal(t, "EUR", got[0].Metrics.Currency)
	assert.Equal(t, TrendDown, got[0].Metrics.PriceTrend)
}

func TestPriceTrend(t *testing.T) {
	tests := []struct {
		name string
		p    productPayload
		want string
	}{
		{"no data", productPayload{}, ""},
		{"single price", productPayload{Price: ptrF(10)}, ""},
		{"rising", productPayload{Price: ptrF(12), History: []pricePoint{{Price: 10}}}, TrendUp},
		{"falling", productPayload{Price: ptrF(8), History: []pricePoint{{Price: 10}}}, TrendDown},
		{"within threshold", productPayload{Price: ptrF(10.05), History: []pricePoint{{Price: 10}}}, TrendStable},
		{"history only, sorted by date", productPayload{History: []pricePoint{
			{Price: 30, Date: "2026-03-01"},
			{Price: 10, Date: "2026-01-01"},
		}}, TrendUp},
		{"from zero", productPayload{Price: ptrF(5), History: []pricePoint{{Price: 0}}}, TrendUp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, priceTrend(tt.p))
		})
	}
}

func TestNormalizeResults_DuplicatesKeepFirstAndCollectEvidence(t *testing.T) {
	n := newTestNormalizer()
	ts := time.Date(2026, 6, 30, 8, 0, 0, 0, time.UTC)

	got := n.NormalizeResults([]model.IntelDatum{
		{
			Provider:   "similarweb",
			Capability: model.CapabilityTraffic,
			Payload:    map[string]any{"domain": "https://www.Rival.com/", "visits": 1000},
			Meta:       &model.DatumMeta{Timestamp: &ts, Confidence: ptrF(0.8)},
		},
		{
			Provider:   "dataforseo",
			Capability: model.CapabilityTraffic,
			Payload:    map[string]any{"domain": "rival.com", "visits": 5000, "bounceRate": 0.4},
		},
	})

	require.Len(t, got, 1)
	rec := got[0]
	assert.Equal(t, model.EntityCompetitor, rec.EntityType)
	assert.Equal(t, "rival.com", rec.EntityID)
	assert.Equal(t, "https://rival.com", rec.URL)

	// Metrics of the later duplicate are discarded in this pass.
	require.NotNil(t, rec.Metrics.Traffic)
	assert.Equal(t, 1000.0, *rec.Metrics.Traffic.Visits)
	assert.Nil(t, rec.Metrics.Traffic.BounceRate)

	require.Len(t, rec.Evidence, 2)
	assert.Equal(t, "similarweb", rec.Evidence[0].Provider)
	assert.Equal(t, ts, rec.Evidence[0].RetrievedAt)
	assert.Equal(t, 0.8, *rec.Evidence[0].Confidence)
	assert.Equal(t, "dataforseo", rec.Evidence[1].Provider)
	assert.Equal(t, fixedNow, rec.Evidence[1].RetrievedAt)
}

func TestNormalizeResults_SkipsUnknownCapability(t *testing.T) {
	n := newTestNormalizer()

	got := n.NormalizeResults([]model.IntelDatum{
		{Provider: "x", Capability: model.Capability("backlinks"), Payload: map[string]any{"domain": "a.com"}},
		{Provider: "clearbit", Capability: model.CapabilityCompanyProfile, Payload: map[string]any{"name": "Acme Inc"}},
	})

	require.Len(t, got, 1)
	assert.Equal(t, "Acme Inc", got[0].EntityID)
}

func TestNormalizeResults_BadPayloadDoesNotAbortBatch(t *testing.T) {
	n := newTestNormalizer()

	got := n.NormalizeResults([]model.IntelDatum{
		{Provider: "similarweb", Capability: model.CapabilityTraffic, Payload: map[string]any{"visits": 10}},
		{Provider: "similarweb", Capability: model.CapabilityTraffic, Payload: map[string]any{"domain": "a.com", "visits": "lots"}},
		{Provider: "similarweb", Capability: model.CapabilityTraffic, Payload: nil},
		{Provider: "similarweb", Capability: model.CapabilityTraffic, Payload: map[string]any{"domain": "b.com", "visits": "42"}},
	})

	require.Len(t, got, 1)
	assert.Equal(t, "b.com", got[0].EntityID)
	assert.Equal(t, 42.0, *got[0].Metrics.Traffic.Visits)
}

func TestNormalizeResults_FirstSeenOrder(t *testing.T) {
	n := newTestNormalizer()

	got := n.NormalizeResults([]model.IntelDatum{
		{Provider: "brand24", Capability: model.CapabilitySocial, Payload: map[string]any{
			"platforms": []any{
				map[string]any{"platform": "Twitter", "mentions": 12},
				map[string]any{"platform": "reddit", "mentions": 3},
			},
		}},
		{Provider: "trustpilot", Capability: model.CapabilityReviews, Payload: map[string]any{
			"platform": "trustpilot", "rating": 4.2, "reviewCount": 180, "scale": 5,
		}},
		{Provider: "brand24", Capability: model.CapabilitySocial, Payload: map[string]any{
			"platform": "twitter", "mentions": 99,
		}},
	})

	keys := make([]string, 0, len(got))
	for _, r := range got {
		keys = append(keys, r.Key())
	}
	assert.Equal(t, []string{
		"mention:twitter-social",
		"mention:reddit-social",
		"competitor:reviews-trustpilot",
	}, keys)
	assert.Equal(t, 12, *got[0].Metrics.Social.Mentions)
	assert.Len(t, got[0].Evidence, 2)
	assert.InDelta(t, 4.2, *got[2].Metrics.Rating.Average, 1e-9)
	assert.Equal(t, 180, *got[2].Metrics.Rating.Count)
}

func TestNormalizeResults_KeywordsAndSERP(t *testing.T) {
	n := newTestNormalizer()

	got := n.NormalizeResults([]model.IntelDatum{
		{Provider: "dataforseo", Capability: model.CapabilityKeywords, Payload: map[string]any{
			"keywords": []any{
				map[string]any{"keyword": "running shoes", "volume": 5400, "cpc": "1.25", "difficulty": 63},
				map[string]any{"keyword": "  "},
			},
			"competitors": []any{
				map[string]any{"domain": "www.rival.com", "keywords": []any{map[string]any{"keyword": "trail shoes", "position": 3}}},
			},
		}},
		{Provider: "serpapi", Capability: model.CapabilitySERP, Payload: map[string]any{
			"results": []any{map[string]any{"keyword": "running shoes", "position": 4, "url": "https://shop.example/run"}},
		}},
	})

	require.Len(t, got, 3)

	assert.Equal(t, "keyword:running shoes-dataforseo", got[0].Key())
	kw := got[0].Metrics.Keywords
	require.Len(t, kw, 1)
	assert.Equal(t, 5400, *kw[0].Volume)
	assert.Equal(t, 1.25, *kw[0].CPC)
	assert.Equal(t, 63.0, *kw[0].Difficulty)

	assert.Equal(t, "competitor:rival.com", got[1].Key())
	require.Len(t, got[1].Metrics.Keywords, 1)
	assert.Equal(t, 3, *got[1].Metrics.Keywords[0].Position)

	// Keyword entities are scoped per provider.
	assert.Equal(t, "keyword:running shoes-serpapi", got[2].Key())
	assert.Equal(t, "https://shop.example/run", got[2].URL)
}

func TestNormalizeResults_CompanyProfile(t *testing.T) {
	n := newTestNormalizer()

	got := n.NormalizeResults([]model.IntelDatum{{
		Provider:   "clearbit",
		Capability: model.CapabilityCompanyProfile,
		Payload: map[string]any{
			"name":             "Acme Inc",
			"domain":           "acme.com",
			"country":          "us",
			"employees":        "250",
			"estimatedRevenue": 12500000,
		},
	}})

	require.Len(t, got, 1)
	rec := got[0]
	assert.Equal(t, "competitor:Acme Inc", rec.Key())
	assert.Equal(t, "https://acme.com", rec.URL)
	assert.Equal(t, "US", rec.Country)
	assert.Equal(t, 250, *rec.Metrics.Employees)
	assert.Equal(t, 12500000.0, *rec.Metrics.EstRevenue)
}

func TestMapperForEveryCapability(t *testing.T) {
	for _, c := range model.Capabilities {
		m, err := mapperFor(c)
		assert.NoError(t, err, c)
		assert.NotNil(t, m, c)
	}
	_, err := mapperFor(model.Capability("nope"))
	assert.ErrorIs(t, err, ErrUnknownCapability)
}

func TestNormalizeResults_DecodesJSONInput(t *testing.T) {
	raw := `[{"provider":"similarweb","capability":"traffic","payload":{"domain":"a.com","visits":12,"sources":{"direct":0.5,"search":"0.3"}}}]`
	var data []model.IntelDatum
	require.NoError(t, json.Unmarshal([]byte(raw), &data))

	got := newTestNormalizer().NormalizeResults(data)
	require.Len(t, got, 1)
	assert.Equal(t, map[string]float64{"direct": 0.5, "search": 0.3}, got[0].Metrics.Traffic.Sources)
}

func TestNormalizeResults_Empty(t *testing.T) {
	got := newTestNormalizer().NormalizeResults(nil)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}
