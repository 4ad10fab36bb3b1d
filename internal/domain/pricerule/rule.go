// Package pricerule models store-configured promotions (volume tiers,
// buy-X-get-Y, free shipping, bundle rules) and evaluates them against a cart
// snapshot.
package pricerule

import (
	"time"

	"github.com/shopspring/decimal"
)

// Type is the promotion kind.
type Type string

const (
	TypeVolume       Type = "volume"
	TypeBogo         Type = "bogo"
	TypeFreeShipping Type = "free_shipping"
	TypeBundle       Type = "bundle"
)

// Scope selects which products a rule governs.
type Scope string

const (
	ScopeAll         Scope = "all"
	ScopeProducts    Scope = "specific_products"
	ScopeCollections Scope = "specific_collections"
)

// DiscountType is how a volume tier value is interpreted.
type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// TierMode selects how a volume tier's fixed value is applied.
type TierMode string

const (
	// TierFlat applies a fixed tier value once per product.
	TierFlat TierMode = "flat"
	// TierGraduated applies a fixed tier value per unit.
	TierGraduated TierMode = "graduated"
)

// BogoMode selects which units a buy-X-get-Y rule discounts.
type BogoMode string

const (
	BogoSameProduct       BogoMode = "same_product"
	BogoDifferentProducts BogoMode = "different_products"
)

// Tier is one step of a volume discount.
type Tier struct {
	MinQuantity   int
	DiscountValue decimal.Decimal
}

// VolumeConditions configures a volume rule.
type VolumeConditions struct {
	DiscountType DiscountType
	TierMode     TierMode
	Tiers        []Tier
}

// Tier returns the tier with the highest MinQuantity not above quantity.
func (c VolumeConditions) Tier(quantity int) (Tier, bool) {
	var (
		best  Tier
		found bool
	)
	for _, t := range c.Tiers {
		if t.MinQuantity > quantity {
			continue
		}
		if !found || t.MinQuantity > best.MinQuantity {
			best, found = t, true
		}
	}
	return best, found
}

// BogoConditions configures a buy-X-get-Y rule.
type BogoConditions struct {
	BuyQuantity           int
	GetQuantity           int
	GetDiscountPercentage decimal.Decimal
	Mode                  BogoMode
}

// groupSize is the number of units that earn GetQuantity discounted units.
func (c BogoConditions) groupSize() int {
	return c.BuyQuantity + c.GetQuantity
}

// FreeUnits returns how many of quantity units are discounted.
func (c BogoConditions) FreeUnits(quantity int) int {
	if c.BuyQuantity <= 0 || c.GetQuantity <= 0 {
		return 0
	}
	return quantity / c.groupSize() * c.GetQuantity
}

// FreeShippingConditions configures a free shipping rule. Both thresholds
// nil means shipping is free unconditionally.
type FreeShippingConditions struct {
	MinSubtotal *decimal.Decimal
	MinQuantity *int
}

// Conditions holds the decoded per-type payload. At most one of the typed
// fields is set, matching the rule's Type. Raw keeps the payload as stored.
type Conditions struct {
	Volume       *VolumeConditions
	Bogo         *BogoConditions
	FreeShipping *FreeShippingConditions
	Raw          []byte
}

// Rule is a store promotion.
type Rule struct {
	ID            string
	Title         string
	Description   string
	Type          Type
	AppliesTo     Scope
	ProductIDs    []string
	CollectionIDs []string
	// Priority orders rules of the same type; lower wins. Nil sorts last.
	Priority   *int
	Active     *bool
	StartsAt   *time.Time
	EndsAt     *time.Time
	Conditions Conditions
}

// Live reports whether the rule is enabled and inside its date window.
func (r Rule) Live(now time.Time) bool {
	if r.Active != nil && !*r.Active {
		return false
	}
	if r.StartsAt != nil && now.Before(*r.StartsAt) {
		return false
	}
	if r.EndsAt != nil && now.After(*r.EndsAt) {
		return false
	}
	return true
}

// Covers reports whether the rule's scope includes the product. A rule
// without a scope covers nothing.
func (r Rule) Covers(productID string, collectionIDs []string) bool {
	switch r.AppliesTo {
	case ScopeAll:
		return true
	case ScopeProducts:
		for _, id := range r.ProductIDs {
			if id == productID {
				return true
			}
		}
	case ScopeCollections:
		for _, want := range r.CollectionIDs {
			for _, got := range collectionIDs {
				if want == got {
					return true
				}
			}
		}
	}
	return false
}
