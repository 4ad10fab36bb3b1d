package pricerule

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-cart/internal/money"
)

// Progress describes how close a cart is to free shipping.
type Progress struct {
	// Unconditional is set when the rule has no thresholds.
	Unconditional bool
	Achieved      bool
	// ByQuantity is set when the threshold is an item count rather than a subtotal.
	ByQuantity        bool
	RemainingAmount   decimal.Decimal
	RemainingQuantity int
	// Percent is in [0, 100].
	Percent decimal.Decimal
}

// FreeShippingProgress evaluates the thresholds against the cart. The
// subtotal threshold takes precedence over the quantity threshold; zero
// thresholds count as absent.
func FreeShippingProgress(c *FreeShippingConditions, subtotal decimal.Decimal, quantity int) Progress {
	var (
		minSubtotal decimal.Decimal
		minQuantity int
	)
	if c != nil && c.MinSubtotal != nil {
		minSubtotal = *c.MinSubtotal
	}
	if c != nil && c.MinQuantity != nil {
		minQuantity = *c.MinQuantity
	}

	switch {
	case minSubtotal.IsPositive():
		remaining := minSubtotal.Sub(subtotal)
		return Progress{
			Achieved:        !remaining.IsPositive(),
			RemainingAmount: money.FloorAtZero(remaining),
			Percent:         money.Ratio(subtotal, minSubtotal),
		}
	case minQuantity > 0:
		remaining := minQuantity - quantity
		p := Progress{
			Achieved:   remaining <= 0,
			ByQuantity: true,
			Percent:    money.Ratio(decimal.NewFromInt(int64(quantity)), decimal.NewFromInt(int64(minQuantity))),
		}
		if remaining > 0 {
			p.RemainingQuantity = remaining
		}
		return p
	default:
		return Progress{Unconditional: true, Achieved: true, Percent: money.Hundred()}
	}
}
