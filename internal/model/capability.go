package model

// Capability is a category of competitive intelligence a provider can supply.
// The set is closed: every value listed in Capabilities must have a mapper in
// the normalize package and a row in the entity key table.
type Capability string

const (
	CapabilityKeywords       Capability = "keywords"
	CapabilityTraffic        Capability = "traffic"
	CapabilityPricing        Capability = "pricing"
	CapabilitySERP           Capability = "serp"
	CapabilityReviews        Capability = "reviews"
	CapabilitySocial         Capability = "social"
	CapabilityCompanyProfile Capability = "company_profile"
)

// Capabilities lists every known capability in declaration order.
var Capabilities = []Capability{
	CapabilityKeywords,
	CapabilityTraffic,
	CapabilityPricing,
	CapabilitySERP,
	CapabilityReviews,
	CapabilitySocial,
	CapabilityCompanyProfile,
}

// Valid reports whether c is one of the known capabilities.
func (c Capability) Valid() bool {
	switch c {
	case CapabilityKeywords, CapabilityTraffic, CapabilityPricing, CapabilitySERP,
		CapabilityReviews, CapabilitySocial, CapabilityCompanyProfile:
		return true
	default:
		return false
	}
}

// ParseCapability converts a raw capability string into a Capability.
func ParseCapability(s string) (Capability, bool) {
	c := Capability(s)
	return c, c.Valid()
}

// EntityType classifies a normalized record.
type EntityType string

const (
	EntityCompetitor EntityType = "competitor"
	EntityKeyword    EntityType = "keyword"
	EntityProduct    EntityType = "product"
	EntityReview     EntityType = "review"
	EntityMention    EntityType = "mention"
)

// Valid reports whether t is one of the known entity types.
func (t EntityType) Valid() bool {
	switch t {
	case EntityCompetitor, EntityKeyword, EntityProduct, EntityReview, EntityMention:
		return true
	default:
		return false
	}
}
