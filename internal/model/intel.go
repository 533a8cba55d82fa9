package model

import "time"

// DatumMeta carries optional provider-side metadata for a raw payload.
type DatumMeta struct {
	Timestamp  *time.Time `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
	Confidence *float64   `json:"confidence,omitempty" yaml:"confidence,omitempty"`
	Currency   string     `json:"currency,omitempty" yaml:"currency,omitempty"`
}

// IntelDatum is a single raw payload returned by a provider call. It is
// consumed by the normalizer and not retained.
type IntelDatum struct {
	Provider   string         `json:"provider" yaml:"provider"`
	Capability Capability     `json:"capability" yaml:"capability"`
	Payload    map[string]any `json:"payload" yaml:"payload"`
	Meta       *DatumMeta     `json:"meta,omitempty" yaml:"meta,omitempty"`
}

// KeywordMetric is one keyword observation.
type KeywordMetric struct {
	Keyword    string   `json:"keyword" yaml:"keyword"`
	Volume     *int     `json:"volume,omitempty" yaml:"volume,omitempty"`
	Difficulty *float64 `json:"difficulty,omitempty" yaml:"difficulty,omitempty"`
	CPC        *float64 `json:"cpc,omitempty" yaml:"cpc,omitempty"`
	Position   *int     `json:"position,omitempty" yaml:"position,omitempty"`
	URL        string   `json:"url,omitempty" yaml:"url,omitempty"`
}

// TrafficMetrics summarises estimated site traffic.
type TrafficMetrics struct {
	Visits           *float64           `json:"visits,omitempty" yaml:"visits,omitempty"`
	UniqueVisitors   *float64           `json:"unique_visitors,omitempty" yaml:"unique_visitors,omitempty"`
	BounceRate       *float64           `json:"bounce_rate,omitempty" yaml:"bounce_rate,omitempty"`
	AvgVisitDuration *float64           `json:"avg_visit_duration,omitempty" yaml:"avg_visit_duration,omitempty"`
	PagesPerVisit    *float64           `json:"pages_per_visit,omitempty" yaml:"pages_per_visit,omitempty"`
	Sources          map[string]float64 `json:"sources,omitempty" yaml:"sources,omitempty"`
}

// RatingMetrics summarises review ratings on one platform.
type RatingMetrics struct {
	Average *float64 `json:"average,omitempty" yaml:"average,omitempty"`
	Count   *int     `json:"count,omitempty" yaml:"count,omitempty"`
	Scale   *float64 `json:"scale,omitempty" yaml:"scale,omitempty"`
}

// SocialMetrics summarises social mentions on one platform.
type SocialMetrics struct {
	Mentions   *int     `json:"mentions,omitempty" yaml:"mentions,omitempty"`
	Reach      *int     `json:"reach,omitempty" yaml:"reach,omitempty"`
	Engagement *int     `json:"engagement,omitempty" yaml:"engagement,omitempty"`
	Sentiment  *float64 `json:"sentiment,omitempty" yaml:"sentiment,omitempty"`
}

// Metrics is the bag of measured values attached to a normalized entity.
// A nil pointer, empty string or empty slice means "not populated".
type Metrics struct {
	Price        *float64        `json:"price,omitempty" yaml:"price,omitempty"`
	Currency     string          `json:"currency,omitempty" yaml:"currency,omitempty"`
	Availability string          `json:"availability,omitempty" yaml:"availability,omitempty"`
	PriceTrend   string          `json:"price_trend,omitempty" yaml:"price_trend,omitempty"`
	Traffic      *TrafficMetrics `json:"traffic,omitempty" yaml:"traffic,omitempty"`
	Rating       *RatingMetrics  `json:"rating,omitempty" yaml:"rating,omitempty"`
	Keywords     []KeywordMetric `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	Social       *SocialMetrics  `json:"social,omitempty" yaml:"social,omitempty"`
	EstRevenue   *float64        `json:"est_revenue,omitempty" yaml:"est_revenue,omitempty"`
	Employees    *int            `json:"employees,omitempty" yaml:"employees,omitempty"`
}

// Evidence records which provider contributed to an entity and when.
type Evidence struct {
	Provider    string     `json:"provider" yaml:"provider"`
	Capability  Capability `json:"capability" yaml:"capability"`
	RetrievedAt time.Time  `json:"retrieved_at" yaml:"retrieved_at"`
	Confidence  *float64   `json:"confidence,omitempty" yaml:"confidence,omitempty"`
}

// NormalizedIntel is the unified record every provider payload is mapped to.
// Records are keyed by (EntityType, EntityID).
type NormalizedIntel struct {
	EntityType EntityType `json:"entity_type" yaml:"entity_type"`
	EntityID   string     `json:"entity_id" yaml:"entity_id"`
	Name       string     `json:"name" yaml:"name"`
	URL        string     `json:"url,omitempty" yaml:"url,omitempty"`
	Country    string     `json:"country,omitempty" yaml:"country,omitempty"`
	Metrics    Metrics    `json:"metrics" yaml:"metrics"`
	Evidence   []Evidence `json:"evidence" yaml:"evidence"`
}

// Key returns the deduplication key "entityType:entityId".
func (n NormalizedIntel) Key() string {
	return EntityKey(n.EntityType, n.EntityID)
}

// EntityKey builds the deduplication key for an entity.
func EntityKey(t EntityType, id string) string {
	return string(t) + ":" + id
}
