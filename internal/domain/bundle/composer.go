package bundle

import (
	"sort"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-cart/internal/domain/product"
)

const statusActive = "active"

// ComposeFixed turns the predefined rows of a fixed bundle into cart entries,
// resolving each row's variant id against its parent product. Rows without a
// product are skipped; an unknown variant id leaves the entry without variant.
func ComposeFixed(rows []Row) []Entry {
	sorted := make([]Row, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].SortOrder < sorted[j].SortOrder
	})

	entries := make([]Entry, 0, len(sorted))
	for _, row := range sorted {
		if row.Product == nil {
			continue
		}
		qty := row.Quantity
		if qty <= 0 {
			qty = 1
		}
		e := Entry{Product: *row.Product, Quantity: qty}
		if v, ok := row.Product.Variant(row.VariantID); ok {
			e.Variant = v
		}
		entries = append(entries, e)
	}
	return entries
}

// Candidate is a product offered by a collection-based bundle, optionally
// pinned to the variant that satisfied the bundle's variant filter.
type Candidate struct {
	Product           product.Product
	MatchingVariantID string
}

// Candidates filters a collection's products down to the bundle's pool.
// Inactive products are dropped, as are products whose collection ids do not
// include collectionID. With an active filter, products without a matching
// variant are dropped and the first matching variant is attached.
func Candidates(products []product.Product, collectionID string, filter *VariantFilter) []Candidate {
	out := make([]Candidate, 0, len(products))
	for _, p := range products {
		if p.Status != "" && p.Status != statusActive {
			continue
		}
		if collectionID != "" && len(p.CollectionIDs) > 0 && !p.InCollection([]string{collectionID}) {
			continue
		}
		if !filter.Active() {
			out = append(out, Candidate{Product: p})
			continue
		}
		for _, v := range p.Variants {
			if filter.Matches(v) {
				out = append(out, Candidate{Product: p, MatchingVariantID: v.ID})
				break
			}
		}
	}
	return out
}

// ComposePicks selects the picked product ids from the candidate pool and
// confirms the selection. It fails with ErrNotOffered for an id outside the
// pool and with ErrSelectionNotReady unless exactly the bundle's pick
// quantity of distinct products was picked.
func ComposePicks(b Bundle, candidates []Candidate, picks []string) ([]Entry, error) {
	sel := NewSelection(b)
	if len(picks) != sel.PickQuantity() {
		return nil, errors.Wrapf(ErrSelectionNotReady, "pick %d products, got %d", sel.PickQuantity(), len(picks))
	}
	for _, id := range picks {
		c, ok := findCandidate(candidates, id)
		if !ok {
			return nil, errors.Wrapf(ErrNotOffered, "product %q", id)
		}
		if !sel.Toggle(c.Product, c.MatchingVariantID) {
			return nil, errors.Wrapf(ErrSelectionNotReady, "product %q picked twice", id)
		}
	}
	return sel.Confirm()
}

func findCandidate(candidates []Candidate, productID string) (Candidate, bool) {
	for _, c := range candidates {
		if c.Product.ID == productID {
			return c, true
		}
	}
	return Candidate{}, false
}

// Selection tracks a buyer's mix-and-match picks. It is not safe for
// concurrent use.
type Selection struct {
	pick   int
	order  []string
	chosen map[string]Entry
}

// NewSelection starts an empty selection for the bundle.
func NewSelection(b Bundle) *Selection {
	return &Selection{
		pick:   b.Picks(),
		chosen: make(map[string]Entry, b.Picks()),
	}
}

// Toggle selects or deselects a product. Selecting beyond the pick quantity
// is ignored. It reports whether the product is selected afterwards.
func (s *Selection) Toggle(p product.Product, matchingVariantID string) bool {
	if _, ok := s.chosen[p.ID]; ok {
		delete(s.chosen, p.ID)
		for i, id := range s.order {
			if id == p.ID {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
		return false
	}
	if len(s.chosen) >= s.pick {
		return false
	}
	e := Entry{Product: p, Quantity: 1}
	if v, ok := p.Variant(matchingVariantID); ok {
		e.Variant = v
	}
	s.chosen[p.ID] = e
	s.order = append(s.order, p.ID)
	return true
}

// Has reports whether a product is selected.
func (s *Selection) Has(productID string) bool {
	_, ok := s.chosen[productID]
	return ok
}

// Len returns the number of selected products.
func (s *Selection) Len() int { return len(s.chosen) }

// PickQuantity returns how many products must be selected.
func (s *Selection) PickQuantity() int { return s.pick }

// IsReady reports whether exactly PickQuantity products are selected.
func (s *Selection) IsReady() bool { return len(s.chosen) == s.pick }

// Entries returns the selected products in selection order, one unit each.
func (s *Selection) Entries() []Entry {
	out := make([]Entry, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.chosen[id])
	}
	return out
}

// OriginalPrice is the sum of the selected items' effective unit prices.
func (s *Selection) OriginalPrice() decimal.Decimal {
	return OriginalPrice(s.Entries())
}

// Confirm returns the entries to hand to the cart and clears the selection.
func (s *Selection) Confirm() ([]Entry, error) {
	if !s.IsReady() {
		return nil, ErrSelectionNotReady
	}
	entries := s.Entries()
	s.Reset()
	return entries, nil
}

// Reset clears the selection.
func (s *Selection) Reset() {
	s.order = nil
	s.chosen = make(map[string]Entry, s.pick)
}
