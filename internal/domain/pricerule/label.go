package pricerule

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Fallback labels shown when a rule has no title and no usable conditions.
const (
	VolumeFallback       = "Desc. por volumen"
	BogoFallback         = "2x1"
	FreeShippingFallback = "Envío gratis"
	BundleFallback       = "Paquete"
	// AppliedBogoFallback is used for applied buy-X-get-Y rules in cart totals.
	AppliedBogoFallback = "Promoción"
)

// VolumeLabel renders the badge for the first (most accessible) tier, e.g.
// "3+ → 10% OFF". It returns false when there are no tiers.
func VolumeLabel(c VolumeConditions) (string, bool) {
	if len(c.Tiers) == 0 {
		return "", false
	}
	t := c.Tiers[0]
	suffix := ""
	if c.DiscountType == DiscountPercentage {
		suffix = "%"
	}
	return fmt.Sprintf("%d+ → %s%s OFF", t.MinQuantity, t.DiscountValue.String(), suffix), true
}

// BogoLabel renders "Lleva 3, paga 2" for fully free units or
// "Compra 2, lleva 1 al 50%" otherwise. It returns false when the buy or get
// quantity is missing.
func BogoLabel(c BogoConditions) (string, bool) {
	if c.BuyQuantity <= 0 || c.GetQuantity <= 0 {
		return "", false
	}
	if c.GetDiscountPercentage.Equal(hundred) {
		return fmt.Sprintf("Lleva %d, paga %d", c.groupSize(), c.BuyQuantity), true
	}
	return fmt.Sprintf("Compra %d, lleva %d al %s%%",
		c.BuyQuantity, c.GetQuantity, c.GetDiscountPercentage.String()), true
}

// Label returns the badge text for a rule.
func Label(r Rule) string {
	switch r.Type {
	case TypeVolume:
		if r.Conditions.Volume != nil {
			if l, ok := VolumeLabel(*r.Conditions.Volume); ok {
				return l
			}
		}
		return titleOr(r, VolumeFallback)
	case TypeBogo:
		if r.Conditions.Bogo != nil {
			if l, ok := BogoLabel(*r.Conditions.Bogo); ok {
				return l
			}
		}
		return titleOr(r, BogoFallback)
	case TypeFreeShipping:
		return titleOr(r, FreeShippingFallback)
	case TypeBundle:
		return titleOr(r, BundleFallback)
	default:
		return r.Title
	}
}

func titleOr(r Rule, fallback string) string {
	if r.Title != "" {
		return r.Title
	}
	return fallback
}
