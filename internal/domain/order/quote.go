package order

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-cart/internal/domain/cart"
	"github.com/xenking/storefront-cart/internal/domain/pricerule"
	"github.com/xenking/storefront-cart/internal/money"
)

// CouponDiscounter reports what the active coupon takes off a cart.
type CouponDiscounter interface {
	Code() string
	DiscountFor(total decimal.Decimal, quantity int) decimal.Decimal
}

// Quote is the client-side estimate shown before checkout. The checkout
// service recomputes every amount; nothing here is charged.
type Quote struct {
	Subtotal       decimal.Decimal
	Rules          []pricerule.AppliedRule
	RuleDiscount   decimal.Decimal
	CouponCode     string
	CouponDiscount decimal.Decimal
	FreeShipping   bool
	Total          decimal.Decimal
}

// NewQuote prices the cart. Either rules or coupons may be nil.
func NewQuote(st cart.State, rules *pricerule.Evaluator, coupons CouponDiscounter, currency string) Quote {
	q := Quote{
		Subtotal:       st.Total,
		RuleDiscount:   decimal.Zero,
		CouponDiscount: decimal.Zero,
	}
	if rules != nil {
		q.Rules = rules.Apply(st.Lines())
		q.RuleDiscount = pricerule.Discount(q.Rules)
		for _, r := range q.Rules {
			if r.Type == pricerule.TypeFreeShipping {
				q.FreeShipping = true
			}
		}
	}
	if coupons != nil {
		if d := coupons.DiscountFor(st.Total, st.TotalQuantity()); d.IsPositive() {
			q.CouponCode = coupons.Code()
			q.CouponDiscount = d
		}
	}

	total := st.Total.Sub(q.RuleDiscount).Sub(q.CouponDiscount)
	q.Subtotal = money.Round(q.Subtotal, currency)
	q.RuleDiscount = money.Round(q.RuleDiscount, currency)
	q.CouponDiscount = money.Round(q.CouponDiscount, currency)
	q.Total = money.Round(money.FloorAtZero(total), currency)
	return q
}
