// Package normalize maps heterogeneous provider payloads onto the unified
// NormalizedIntel schema, deduplicates them by entity key and merges
// records produced across several normalization passes.
package normalize

import (
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/intel-cli/internal/model"
)

// ErrUnknownCapability is reported for datums whose capability has no mapper.
var ErrUnknownCapability = eris.New("normalize: unknown capability")

// mapper converts one datum into zero or more normalized records. Every
// record it returns carries ev as its only evidence.
type mapper func(d model.IntelDatum, ev model.Evidence) ([]model.NormalizedIntel, error)

// Normalizer holds no state besides its clock; it is safe for concurrent use.
type Normalizer struct {
	nowFunc func() time.Time
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithClock overrides the clock used for evidence without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) {
		if now != nil {
			n.nowFunc = now
		}
	}
}

// New creates a Normalizer.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{nowFunc: time.Now}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// mapperFor returns the mapper for c. The switch is exhaustive over
// model.Capabilities.
func mapperFor(c model.Capability) (mapper, error) {
	switch c {
	case model.CapabilityKeywords, model.CapabilitySERP:
		return mapKeywords, nil
	case model.CapabilityTraffic:
		return mapTraffic, nil
	case model.CapabilityPricing:
		return mapPricing, nil
	case model.CapabilityReviews:
		return mapReviews, nil
	case model.CapabilitySocial:
		return mapSocial, nil
	case model.CapabilityCompanyProfile:
		return mapCompanyProfile, nil
	default:
		return nil, eris.Wrapf(ErrUnknownCapability, "capability %q", string(c))
	}
}

// NormalizeResults maps every datum to normalized records and collapses
// records sharing an entity key. The first record for a key is kept as is;
// later records with the same key only contribute their evidence. Output
// order is first-seen order. Datums with an unknown capability or a payload
// their mapper rejects are logged and skipped.
func (n *Normalizer) NormalizeResults(data []model.IntelDatum) []model.NormalizedIntel {
	out := make([]model.NormalizedIntel, 0, len(data))
	index := make(map[string]int, len(data))

	for i, d := range data {
		records, err := n.normalizeDatum(d)
		if err != nil {
			zap.L().Warn("normalize: skipping datum",
				zap.Int("index", i),
				zap.String("provider", d.Provider),
				zap.String("capability", string(d.Capability)),
				zap.Error(err),
			)
			continue
		}
		for _, rec := range records {
			key := rec.Key()
			if pos, ok := index[key]; ok {
				out[pos].Evidence = append(out[pos].Evidence, rec.Evidence...)
				continue
			}
			index[key] = len(out)
			out = append(out, rec)
		}
	}
	return out
}

// normalizeDatum runs the datum's mapper, converting a panic into an error so
// one malformed payload cannot abort the batch.
func (n *Normalizer) normalizeDatum(d model.IntelDatum) (records []model.NormalizedIntel, err error) {
	m, err := mapperFor(d.Capability)
	if err != nil {
		return nil, err
	}
	if d.Payload == nil {
		return nil, eris.New("normalize: empty payload")
	}

	defer func() {
		if r := recover(); r != nil {
			records = nil
			err = eris.Errorf("normalize: mapper panic: %v", r)
		}
	}()
	return m(d, n.evidence(d))
}

func (n *Normalizer) evidence(d model.IntelDatum) model.Evidence {
	ev := model.Evidence{
		Provider:   d.Provider,
		Capability: d.Capability,
	}
	if d.Meta != nil {
		ev.Confidence = d.Meta.Confidence
		if d.Meta.Timestamp != nil {
			ev.RetrievedAt = d.Meta.Timestamp.UTC()
		}
	}
	if ev.RetrievedAt.IsZero() {
		ev.RetrievedAt = n.nowFunc().UTC()
	}
	return ev
}

// MergeEntityResults groups records by entity key and merges each group.
// Name, URL, Country and every metric field take the first non-empty value
// in input order; evidence from the whole group is concatenated. Output
// order is first-seen order.
func MergeEntityResults(results []model.NormalizedIntel) []model.NormalizedIntel {
	out := make([]model.NormalizedIntel, 0, len(results))
	index := make(map[string]int, len(results))

	for _, rec := range results {
		key := rec.Key()
		pos, ok := index[key]
		if !ok {
			index[key] = len(out)
			rec.Evidence = append([]model.Evidence(nil), rec.Evidence...)
			out = append(out, rec)
			continue
		}
		dst := &out[pos]
		dst.Name = firstString(dst.Name, rec.Name)
		dst.URL = firstString(dst.URL, rec.URL)
		dst.Country = firstString(dst.Country, rec.Country)
		mergeMetrics(&dst.Metrics, rec.Metrics)
		dst.Evidence = append(dst.Evidence, rec.Evidence...)
	}
	return out
}
