package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/intel-cli/internal/model"
)

func evidenceFrom(provider string) model.Evidence {
	return model.Evidence{Provider: provider, Capability: model.CapabilityTraffic, RetrievedAt: fixedNow}
}

func TestMergeEntityResults_FirstNonEmptyWins(t *testing.T) {
	first := model.NormalizedIntel{
		EntityType: model.EntityCompetitor,
		EntityID:   "rival.com",
		Name:       "rival.com",
		Metrics: model.Metrics{
			Traffic: &model.TrafficMetrics{Visits: ptrF(1000)},
		},
		Evidence: []model.Evidence{evidenceFrom("similarweb")},
	}
	second := model.NormalizedIntel{
		EntityType: model.EntityCompetitor,
		EntityID:   "rival.com",
		Name:       "Rival Inc",
		URL:        "https://rival.com",
		Country:    "US",
		Metrics: model.Metrics{
			Traffic:    &model.TrafficMetrics{Visits: ptrF(99999)},
			EstRevenue: ptrF(5e6),
			Rating:     &model.RatingMetrics{Average: ptrF(4.1)},
		},
		Evidence: []model.Evidence{evidenceFrom("dataforseo")},
	}
	third := model.NormalizedIntel{
		EntityType: model.EntityCompetitor,
		EntityID:   "rival.com",
		URL:        "https://other.example",
		Metrics: model.Metrics{
			EstRevenue: ptrF(1),
			Price:      ptrF(3),
		},
		Evidence: []model.Evidence{evidenceFrom("clearbit"), evidenceFrom("clearbit")},
	}

	got := MergeEntityResults([]model.NormalizedIntel{first, second, third})

	require.Len(t, got, 1)
	m := got[0]
	assert.Equal(t, "rival.com", m.Name)
	assert.Equal(t, "https://rival.com", m.URL)
	assert.Equal(t, "US", m.Country)
	assert.Equal(t, 1000.0, *m.Metrics.Traffic.Visits)
	assert.Equal(t, 5e6, *m.Metrics.EstRevenue)
	assert.Equal(t, 4.1, *m.Metrics.Rating.Average)
	assert.Equal(t, 3.0, *m.Metrics.Price)
	assert.Len(t, m.Evidence, 4)

	// Inputs are left untouched.
	assert.Len(t, first.Evidence, 1)
	assert.Empty(t, first.URL)
}

func TestMergeEntityResults_GroupsAcrossPasses(t *testing.T) {
	n := newTestNormalizer()
	ts := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	passA := n.NormalizeResults([]model.IntelDatum{
		{Provider: "priceapi", Capability: model.CapabilityPricing, Payload: map[string]any{"productId": "sku-1", "price": 10}},
		{Provider: "similarweb", Capability: model.CapabilityTraffic, Payload: map[string]any{"domain": "a.com"}},
	})
	passB := n.NormalizeResults([]model.IntelDatum{
		{
			Provider:   "priceapi",
			Capability: model.CapabilityPricing,
			Payload:    map[string]any{"productId": "sku-1", "price": 12, "availability": "out_of_stock"},
			Meta:       &model.DatumMeta{Timestamp: &ts},
		},
	})

	got := MergeEntityResults(append(passA, passB...))

	require.Len(t, got, 2)
	assert.Equal(t, "product:sku-1", got[0].Key())
	assert.Equal(t, 10.0, *got[0].Metrics.Price)
	assert.Equal(t, "out_of_stock", got[0].Metrics.Availability)
	require.Len(t, got[0].Evidence, 2)
	assert.Equal(t, ts, got[0].Evidence[1].RetrievedAt)
	assert.Equal(t, "competitor:a.com", got[1].Key())
}

func TestMergeEntityResults_KeywordsNotOverwritten(t *testing.T) {
	dst := model.Metrics{Keywords: []model.KeywordMetric{{Keyword: "a"}}}
	mergeMetrics(&dst, model.Metrics{
		Keywords:   []model.KeywordMetric{{Keyword: "b"}},
		Currency:   "USD",
		PriceTrend: TrendUp,
	})

	assert.Equal(t, []model.KeywordMetric{{Keyword: "a"}}, dst.Keywords)
	assert.Equal(t, "USD", dst.Currency)
	assert.Equal(t, TrendUp, dst.PriceTrend)
}

func TestMergeEntityResults_Empty(t *testing.T) {
	assert.Empty(t, MergeEntityResults(nil))
}
