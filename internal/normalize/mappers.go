package normalize

import (
	"math"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/intel-cli/internal/model"
)

// Entity keys produced here drive deduplication:
//
//	keywords, serp   keyword     "{keyword}-{provider}"
//	                 competitor  domain
//	traffic          competitor  domain
//	pricing          product     productId, else "{name}-{seller}"
//	reviews          competitor  "reviews-{platform}"
//	social           mention     "{platform}-social"
//	company_profile  competitor  company name

type keywordPayload struct {
	Keyword    string   `mapstructure:"keyword"`
	Volume     *int     `mapstructure:"volume"`
	Difficulty *float64 `mapstructure:"difficulty"`
	CPC        *float64 `mapstructure:"cpc"`
	Position   *int     `mapstructure:"position"`
	URL        string   `mapstructure:"url"`
}

func (k keywordPayload) metric() model.KeywordMetric {
	return model.KeywordMetric{
		Keyword:    strings.TrimSpace(k.Keyword),
		Volume:     k.Volume,
		Difficulty: k.Difficulty,
		CPC:        k.CPC,
		Position:   k.Position,
		URL:        k.URL,
	}
}

type competitorPayload struct {
	Domain   string           `mapstructure:"domain"`
	Name     string           `mapstructure:"name"`
	Keywords []keywordPayload `mapstructure:"keywords"`
}

type keywordsPayload struct {
	Keywords    []keywordPayload    `mapstructure:"keywords"`
	Results     []keywordPayload    `mapstructure:"results"`
	Competitors []competitorPayload `mapstructure:"competitors"`
}

// mapKeywords handles both keyword research and SERP payloads. Keywords may
// be listed under "keywords" or "results", or given as a single keyword at
// the top level.
func mapKeywords(d model.IntelDatum, ev model.Evidence) ([]model.NormalizedIntel, error) {
	var p keywordsPayload
	if err := decode(d.Payload, &p); err != nil {
		return nil, err
	}
	var single keywordPayload
	if err := decode(d.Payload, &single); err != nil {
		return nil, err
	}

	entries := append(append([]keywordPayload(nil), p.Keywords...), p.Results...)
	if strings.TrimSpace(single.Keyword) != "" {
		entries = append(entries, single)
	}

	var out []model.NormalizedIntel
	for _, kw := range entries {
		m := kw.metric()
		if m.Keyword == "" {
			continue
		}
		out = append(out, model.NormalizedIntel{
			EntityType: model.EntityKeyword,
			EntityID:   m.Keyword + "-" + d.Provider,
			Name:       m.Keyword,
			URL:        m.URL,
			Metrics:    model.Metrics{Keywords: []model.KeywordMetric{m}},
			Evidence:   []model.Evidence{ev},
		})
	}

	for _, c := range p.Competitors {
		domain := normalizeDomain(c.Domain)
		if domain == "" {
			continue
		}
		var kws []model.KeywordMetric
		for _, kw := range c.Keywords {
			if m := kw.metric(); m.Keyword != "" {
				kws = append(kws, m)
			}
		}
		out = append(out, model.NormalizedIntel{
			EntityType: model.EntityCompetitor,
			EntityID:   domain,
			Name:       firstString(strings.TrimSpace(c.Name), domain),
			URL:        domainURL(domain),
			Metrics:    model.Metrics{Keywords: kws},
			Evidence:   []model.Evidence{ev},
		})
	}

	if len(out) == 0 {
		return nil, eris.New("normalize: keywords payload has no keywords or competitors")
	}
	return out, nil
}

type trafficPayload struct {
	Domain           string             `mapstructure:"domain"`
	Name             string             `mapstructure:"name"`
	Country          string             `mapstructure:"country"`
	Visits           *float64           `mapstructure:"visits"`
	UniqueVisitors   *float64           `mapstructure:"uniqueVisitors"`
	BounceRate       *float64           `mapstructure:"bounceRate"`
	AvgVisitDuration *float64           `mapstructure:"avgVisitDuration"`
	PagesPerVisit    *float64           `mapstructure:"pagesPerVisit"`
	Sources          map[string]float64 `mapstructure:"sources"`
}

func mapTraffic(d model.IntelDatum, ev model.Evidence) ([]model.NormalizedIntel, error) {
	var p trafficPayload
	if err := decode(d.Payload, &p); err != nil {
		return nil, err
	}
	domain := normalizeDomain(p.Domain)
	if domain == "" {
		return nil, eris.New("normalize: traffic payload missing domain")
	}

	return []model.NormalizedIntel{{
		EntityType: model.EntityCompetitor,
		EntityID:   domain,
		Name:       firstString(strings.TrimSpace(p.Name), domain),
		URL:        domainURL(domain),
		Country:    strings.ToUpper(strings.TrimSpace(p.Country)),
		Metrics: model.Metrics{
			Traffic: &model.TrafficMetrics{
				Visits:           p.Visits,
				UniqueVisitors:   p.UniqueVisitors,
				BounceRate:       p.BounceRate,
				AvgVisitDuration: p.AvgVisitDuration,
				PagesPerVisit:    p.PagesPerVisit,
				Sources:          p.Sources,
			},
		},
		Evidence: []model.Evidence{ev},
	}}, nil
}

type pricePoint struct {
	Price float64 `mapstructure:"price"`
	Date  string  `mapstructure:"date"`
}

type productPayload struct {
	ProductID    string       `mapstructure:"productId"`
	Name         string       `mapstructure:"name"`
	Seller       string       `mapstructure:"seller"`
	Price        *float64     `mapstructure:"price"`
	Currency     string       `mapstructure:"currency"`
	Availability string       `mapstructure:"availability"`
	URL          string       `mapstructure:"url"`
	Country      string       `mapstructure:"country"`
	History      []pricePoint `mapstructure:"history"`
}

type pricingPayload struct {
	Products []productPayload `mapstructure:"products"`
}

// mapPricing emits one product record per entry in "products", or one for a
// product given at the top level.
func mapPricing(d model.IntelDatum, ev model.Evidence) ([]model.NormalizedIntel, error) {
	var p pricingPayload
	if err := decode(d.Payload, &p); err != nil {
		return nil, err
	}

	products := p.Products
	if len(products) == 0 {
		var single productPayload
		if err := decode(d.Payload, &single); err != nil {
			return nil, err
		}
		if single.ProductID != "" || single.Name != "" {
			products = []productPayload{single}
		}
	}

	var fallbackCurrency string
	if d.Meta != nil {
		fallbackCurrency = d.Meta.Currency
	}

	var out []model.NormalizedIntel
	for i, prod := range products {
		id := productID(prod)
		if id == "" {
			return nil, eris.Errorf("normalize: product %d has neither productId nor name", i)
		}
		out = append(out, model.NormalizedIntel{
			EntityType: model.EntityProduct,
			EntityID:   id,
			Name:       firstString(strings.TrimSpace(prod.Name), id),
			URL:        prod.URL,
			Country:    strings.ToUpper(strings.TrimSpace(prod.Country)),
			Metrics: model.Metrics{
				Price:        prod.Price,
				Currency:     canonicalCurrency(firstString(prod.Currency, fallbackCurrency)),
				Availability: strings.TrimSpace(prod.Availability),
				PriceTrend:   priceTrend(prod),
			},
			Evidence: []model.Evidence{ev},
		})
	}

	if len(out) == 0 {
		return nil, eris.New("normalize: pricing payload has no products")
	}
	return out, nil
}

func productID(p productPayload) string {
	if id := strings.TrimSpace(p.ProductID); id != "" {
		return id
	}
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return ""
	}
	return name + "-" + strings.TrimSpace(p.Seller)
}

// Price trends.
const (
	TrendUp     = "up"
	TrendDown   = "down"
	TrendStable = "stable"
)

// trendThreshold is the relative change below which a price counts as stable.
const trendThreshold = 0.01

// priceTrend compares the oldest historical price with the current price
// (or the newest historical one). Fewer than two observations yield "".
func priceTrend(p productPayload) string {
	history := append([]pricePoint(nil), p.History...)
	sort.SliceStable(history, func(i, j int) bool {
		ti, okI := parseTime(history[i].Date)
		tj, okJ := parseTime(history[j].Date)
		return okI && okJ && ti.Before(tj)
	})

	prices := make([]float64, 0, len(history)+1)
	for _, h := range history {
		prices = append(prices, h.Price)
	}
	if p.Price != nil {
		prices = append(prices, *p.Price)
	}
	if len(prices) < 2 {
		return ""
	}

	first, last := prices[0], prices[len(prices)-1]
	if first == 0 {
		if last > 0 {
			return TrendUp
		}
		return TrendStable
	}
	change := (last - first) / math.Abs(first)
	switch {
	case change > trendThreshold:
		return TrendUp
	case change < -trendThreshold:
		return TrendDown
	default:
		return TrendStable
	}
}

type reviewsPayload struct {
	Platform string   `mapstructure:"platform"`
	Domain   string   `mapstructure:"domain"`
	Name     string   `mapstructure:"name"`
	URL      string   `mapstructure:"url"`
	Country  string   `mapstructure:"country"`
	Rating   *float64 `mapstructure:"rating"`
	Count    *int     `mapstructure:"reviewCount"`
	Scale    *float64 `mapstructure:"scale"`
}

func mapReviews(d model.IntelDatum, ev model.Evidence) ([]model.NormalizedIntel, error) {
	var p reviewsPayload
	if err := decode(d.Payload, &p); err != nil {
		return nil, err
	}
	platform := strings.ToLower(strings.TrimSpace(p.Platform))
	if platform == "" {
		platform = strings.ToLower(d.Provider)
	}
	if platform == "" {
		return nil, eris.New("normalize: reviews payload missing platform")
	}

	domain := normalizeDomain(p.Domain)
	return []model.NormalizedIntel{{
		EntityType: model.EntityCompetitor,
		EntityID:   "reviews-" + platform,
		Name:       firstString(firstString(strings.TrimSpace(p.Name), domain), platform),
		URL:        firstString(p.URL, domainURL(domain)),
		Country:    strings.ToUpper(strings.TrimSpace(p.Country)),
		Metrics: model.Metrics{
			Rating: &model.RatingMetrics{
				Average: p.Rating,
				Count:   p.Count,
				Scale:   p.Scale,
			},
		},
		Evidence: []model.Evidence{ev},
	}}, nil
}

type mentionPayload struct {
	Platform   string   `mapstructure:"platform"`
	Mentions   *int     `mapstructure:"mentions"`
	Reach      *int     `mapstructure:"reach"`
	Engagement *int     `mapstructure:"engagement"`
	Sentiment  *float64 `mapstructure:"sentiment"`
	URL        string   `mapstructure:"url"`
}

type socialPayload struct {
	Platforms []mentionPayload `mapstructure:"platforms"`
}

// mapSocial emits one mention record per platform, listed under "platforms"
// or given at the top level.
func mapSocial(d model.IntelDatum, ev model.Evidence) ([]model.NormalizedIntel, error) {
	var p socialPayload
	if err := decode(d.Payload, &p); err != nil {
		return nil, err
	}

	var single mentionPayload
	if err := decode(d.Payload, &single); err != nil {
		return nil, err
	}

	entries := p.Platforms
	if strings.TrimSpace(single.Platform) != "" {
		entries = append(entries, single)
	}

	var out []model.NormalizedIntel
	for _, m := range entries {
		platform := strings.ToLower(strings.TrimSpace(m.Platform))
		if platform == "" {
			continue
		}
		out = append(out, model.NormalizedIntel{
			EntityType: model.EntityMention,
			EntityID:   platform + "-social",
			Name:       platform,
			URL:        m.URL,
			Metrics: model.Metrics{
				Social: &model.SocialMetrics{
					Mentions:   m.Mentions,
					Reach:      m.Reach,
					Engagement: m.Engagement,
					Sentiment:  m.Sentiment,
				},
			},
			Evidence: []model.Evidence{ev},
		})
	}

	if len(out) == 0 {
		return nil, eris.New("normalize: social payload has no platforms")
	}
	return out, nil
}

type companyPayload struct {
	Name       string   `mapstructure:"name"`
	Domain     string   `mapstructure:"domain"`
	Country    string   `mapstructure:"country"`
	Employees  *int     `mapstructure:"employees"`
	EstRevenue *float64 `mapstructure:"estimatedRevenue"`
}

func mapCompanyProfile(d model.IntelDatum, ev model.Evidence) ([]model.NormalizedIntel, error) {
	var p companyPayload
	if err := decode(d.Payload, &p); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return nil, eris.New("normalize: company profile missing name")
	}

	return []model.NormalizedIntel{{
		EntityType: model.EntityCompetitor,
		EntityID:   name,
		Name:       name,
		URL:        domainURL(normalizeDomain(p.Domain)),
		Country:    strings.ToUpper(strings.TrimSpace(p.Country)),
		Metrics: model.Metrics{
			EstRevenue: p.EstRevenue,
			Employees:  p.Employees,
		},
		Evidence: []model.Evidence{ev},
	}}, nil
}
