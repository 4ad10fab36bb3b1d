package pricerule

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-cart/internal/money"
)

// Line is the evaluator's view of one cart line.
type Line struct {
	ProductID     string
	CollectionIDs []string
	UnitPrice     decimal.Decimal
	Quantity      int
	// Bundle lines count toward subtotal and quantity thresholds but are not
	// eligible for volume or buy-X-get-Y discounts.
	Bundle bool
}

func (l Line) amount() decimal.Decimal {
	return money.Line(l.UnitPrice, l.Quantity)
}

// AppliedRule is a promotion that takes effect on the cart.
type AppliedRule struct {
	RuleID   string
	Title    string
	Type     Type
	Discount decimal.Decimal
}

// Label returns the title or the per-type fallback used in cart totals.
func (a AppliedRule) Label() string {
	if a.Title != "" {
		return a.Title
	}
	switch a.Type {
	case TypeVolume:
		return VolumeFallback
	case TypeBogo:
		return AppliedBogoFallback
	case TypeFreeShipping:
		return FreeShippingFallback
	case TypeBundle:
		return BundleFallback
	}
	return ""
}

// Discount sums the discount of the applied rules.
func Discount(applied []AppliedRule) decimal.Decimal {
	sum := decimal.Zero
	for _, a := range applied {
		sum = sum.Add(a.Discount)
	}
	return sum
}

// product groups the lines of one product (its variants) in cart order.
type product struct {
	id            string
	collectionIDs []string
	lines         []Line
}

func (p product) quantity() int {
	n := 0
	for _, l := range p.lines {
		n += l.Quantity
	}
	return n
}

func (p product) amount() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range p.lines {
		sum = sum.Add(l.amount())
	}
	return sum
}

func groupProducts(lines []Line) []product {
	var out []product
	idx := make(map[string]int)
	for _, l := range lines {
		if l.Bundle || l.Quantity <= 0 {
			continue
		}
		i, ok := idx[l.ProductID]
		if !ok {
			i = len(out)
			idx[l.ProductID] = i
			out = append(out, product{id: l.ProductID, collectionIDs: l.CollectionIDs})
		}
		out[i].lines = append(out[i].lines, l)
	}
	return out
}

// accumulator collects discounts per rule in first-seen order.
type accumulator struct {
	order []string
	byID  map[string]*AppliedRule
}

func (a *accumulator) add(r Rule, discount decimal.Decimal) {
	if a.byID == nil {
		a.byID = make(map[string]*AppliedRule)
	}
	if got, ok := a.byID[r.ID]; ok {
		got.Discount = got.Discount.Add(discount)
		return
	}
	a.order = append(a.order, r.ID)
	a.byID[r.ID] = &AppliedRule{RuleID: r.ID, Title: r.Title, Type: r.Type, Discount: discount}
}

func (a *accumulator) appendTo(out []AppliedRule) []AppliedRule {
	for _, id := range a.order {
		if got := a.byID[id]; got.Discount.IsPositive() {
			out = append(out, *got)
		}
	}
	return out
}

// Apply evaluates the catalog against the cart and returns the rules that take
// effect: volume, then buy-X-get-Y, then free shipping, then bundle rules.
// Each product is governed by at most one rule of each type. Discounts are
// never negative and are left unrounded.
func (e *Evaluator) Apply(lines []Line) []AppliedRule {
	var out []AppliedRule
	products := groupProducts(lines)

	var volume accumulator
	for _, p := range products {
		r, ok := e.Volume(p.id, p.collectionIDs)
		if !ok || r.Conditions.Volume == nil {
			continue
		}
		volume.add(r, volumeDiscount(*r.Conditions.Volume, p))
	}
	out = volume.appendTo(out)

	var (
		bogo   accumulator
		pooled = make(map[string][]product)
		pools  []Rule
	)
	for _, p := range products {
		r, ok := e.Bogo(p.id, p.collectionIDs)
		if !ok || r.Conditions.Bogo == nil {
			continue
		}
		c := *r.Conditions.Bogo
		if c.Mode == BogoDifferentProducts {
			if _, seen := pooled[r.ID]; !seen {
				pools = append(pools, r)
			}
			pooled[r.ID] = append(pooled[r.ID], p)
			continue
		}
		bogo.add(r, bogoDiscount(c, p.lines))
	}
	for _, r := range pools {
		var all []Line
		for _, p := range pooled[r.ID] {
			all = append(all, p.lines...)
		}
		bogo.add(r, bogoDiscount(*r.Conditions.Bogo, all))
	}
	out = bogo.appendTo(out)

	if r, ok := e.FreeShipping(); ok {
		subtotal, quantity := totals(lines)
		if FreeShippingProgress(r.Conditions.FreeShipping, subtotal, quantity).Achieved {
			out = append(out, AppliedRule{RuleID: r.ID, Title: r.Title, Type: r.Type, Discount: decimal.Zero})
		}
	}

	if hasBundle(lines) {
		if rules := e.ByType(TypeBundle); len(rules) > 0 {
			r := rules[0]
			out = append(out, AppliedRule{RuleID: r.ID, Title: r.Title, Type: r.Type, Discount: decimal.Zero})
		}
	}
	return out
}

func volumeDiscount(c VolumeConditions, p product) decimal.Decimal {
	qty := p.quantity()
	tier, ok := c.Tier(qty)
	if !ok || !tier.DiscountValue.IsPositive() {
		return decimal.Zero
	}
	amount := p.amount()

	var d decimal.Decimal
	switch {
	case c.DiscountType == DiscountPercentage:
		d = money.Percent(amount, tier.DiscountValue)
	case c.TierMode == TierGraduated:
		d = money.Line(tier.DiscountValue, qty)
	default:
		d = tier.DiscountValue
	}
	if d.GreaterThan(amount) {
		return amount
	}
	return d
}

// bogoDiscount discounts the cheapest eligible units among lines, never by
// more than those units cost.
func bogoDiscount(c BogoConditions, lines []Line) decimal.Decimal {
	qty := 0
	for _, l := range lines {
		qty += l.Quantity
	}
	free := c.FreeUnits(qty)
	if free <= 0 {
		return decimal.Zero
	}

	sorted := make([]Line, len(lines))
	copy(sorted, lines)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].UnitPrice.LessThan(sorted[j].UnitPrice)
	})

	base := decimal.Zero
	for _, l := range sorted {
		if free == 0 {
			break
		}
		n := min(l.Quantity, free)
		base = base.Add(money.Line(l.UnitPrice, n))
		free -= n
	}
	d := money.FloorAtZero(money.Percent(base, c.GetDiscountPercentage))
	if d.GreaterThan(base) {
		return base
	}
	return d
}

func totals(lines []Line) (decimal.Decimal, int) {
	subtotal, quantity := decimal.Zero, 0
	for _, l := range lines {
		subtotal = subtotal.Add(l.amount())
		quantity += l.Quantity
	}
	return subtotal, quantity
}

func hasBundle(lines []Line) bool {
	for _, l := range lines {
		if l.Bundle {
			return true
		}
	}
	return false
}
