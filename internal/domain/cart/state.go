package cart

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-cart/internal/domain/bundle"
	"github.com/xenking/storefront-cart/internal/domain/pricerule"
	"github.com/xenking/storefront-cart/internal/domain/product"
	"github.com/xenking/storefront-cart/internal/money"
)

// State is the cart contents. Total is derived from Items by every
// transition and never set directly.
//
// Transitions are pure: they return a new State and leave the receiver
// untouched, so a State can be shared between goroutines once built.
type State struct {
	Items []Item
	Total decimal.Decimal
}

// Empty returns a cart with no lines.
func Empty() State {
	return State{Total: decimal.Zero}
}

// ComputeTotal sums unit price times quantity over items.
func ComputeTotal(items []Item) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(money.Line(it.UnitPrice(), it.Qty()))
	}
	return total
}

func build(items []Item) State {
	return State{Items: items, Total: ComputeTotal(items)}
}

func (s State) clone(extra int) []Item {
	items := make([]Item, len(s.Items), len(s.Items)+extra)
	copy(items, s.Items)
	return items
}

func (s State) index(key string) int {
	for i, it := range s.Items {
		if it.Key() == key {
			return i
		}
	}
	return -1
}

// Find returns the line with key.
func (s State) Find(key string) (Item, bool) {
	if i := s.index(key); i >= 0 {
		return s.Items[i], true
	}
	return nil, false
}

// AddItem adds one unit of the product, merging into an existing line with
// the same product and variant.
func (s State) AddItem(p product.Product, v *product.Variant) State {
	return s.add(ProductItem{Product: p, Variant: v, Quantity: 1})
}

// AddBundle adds one unit of the bundle. When the bundle is already in the
// cart its quantity grows and the constituents stay as first composed.
func (s State) AddBundle(b bundle.Bundle, entries []bundle.Entry) State {
	snapshot := make([]bundle.Entry, len(entries))
	copy(snapshot, entries)
	return s.add(BundleItem{Bundle: b, Items: snapshot, Quantity: 1})
}

func (s State) add(it Item) State {
	items := s.clone(1)
	if i := s.index(it.Key()); i >= 0 {
		items[i] = items[i].withQuantity(items[i].Qty() + it.Qty())
		return build(items)
	}
	return build(append(items, it))
}

// RemoveItem drops the line with key. Unknown keys are ignored.
func (s State) RemoveItem(key string) State {
	items := make([]Item, 0, len(s.Items))
	for _, it := range s.Items {
		if it.Key() != key {
			items = append(items, it)
		}
	}
	return build(items)
}

// UpdateQuantity sets the quantity of the line with key. A quantity of zero
// or less removes the line.
func (s State) UpdateQuantity(key string, quantity int) State {
	if quantity <= 0 {
		return s.RemoveItem(key)
	}
	i := s.index(key)
	if i < 0 {
		return build(s.clone(0))
	}
	items := s.clone(0)
	items[i] = items[i].withQuantity(quantity)
	return build(items)
}

// Clear returns an empty cart.
func (s State) Clear() State {
	return Empty()
}

// TotalQuantity counts units over every line, a bundle counting once per
// bundle unit.
func (s State) TotalQuantity() int {
	n := 0
	for _, it := range s.Items {
		n += it.Qty()
	}
	return n
}

// IsEmpty reports whether the cart has no lines.
func (s State) IsEmpty() bool {
	return len(s.Items) == 0
}

// Lines converts the cart into the price rule evaluator's view.
func (s State) Lines() []pricerule.Line {
	lines := make([]pricerule.Line, 0, len(s.Items))
	for _, it := range s.Items {
		switch it := it.(type) {
		case ProductItem:
			lines = append(lines, pricerule.Line{
				ProductID:     it.Product.ID,
				CollectionIDs: it.Product.CollectionIDs,
				UnitPrice:     it.UnitPrice(),
				Quantity:      it.Quantity,
			})
		case BundleItem:
			lines = append(lines, pricerule.Line{
				ProductID: it.Bundle.ID,
				UnitPrice: it.UnitPrice(),
				Quantity:  it.Quantity,
				Bundle:    true,
			})
		}
	}
	return lines
}
