package bundle

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-cart/internal/domain/product"
	"github.com/xenking/storefront-cart/internal/money"
)

// Type enumerates how the constituents of a bundle are chosen.
type Type string

const (
	// TypeFixed bundles ship a predefined list of product/variant/quantity rows.
	TypeFixed Type = "fixed"
	// TypeCollectionFixed bundles offer products from a source collection.
	TypeCollectionFixed Type = "collection_fixed"
	// TypeMixMatch bundles let the buyer pick N products from a collection.
	TypeMixMatch Type = "mix_match"
	// TypeMixMatchVariant is mix-and-match narrowed to a matching variant.
	TypeMixMatchVariant Type = "mix_match_variant"
)

// DefaultPickQuantity is used when a mix-and-match bundle omits pick_quantity.
const DefaultPickQuantity = 2

var (
	// ErrNotFound is returned when a bundle slug does not resolve to an active bundle.
	ErrNotFound = errors.New("bundle not found")
	// ErrSelectionNotReady is returned when confirming a selection whose size
	// differs from the bundle's pick quantity.
	ErrSelectionNotReady = errors.New("bundle selection not ready")
	// ErrNotOffered is returned when a pick is not in the bundle's candidate pool.
	ErrNotOffered = errors.New("product not offered by bundle")
)

// VariantFilter narrows candidate products to one matching variant each.
type VariantFilter struct {
	OptionName   string
	OptionValue  string
	OptionValues []string
}

func (f *VariantFilter) byNameValue() bool {
	return f != nil && f.OptionName != "" && f.OptionValue != ""
}

func (f *VariantFilter) byValues() bool {
	return f != nil && len(f.OptionValues) > 0
}

// Active reports whether the filter constrains variants at all.
func (f *VariantFilter) Active() bool {
	return f.byNameValue() || f.byValues()
}

// Matches reports whether v satisfies the filter. The name/value pair takes
// precedence over the plural option_values list.
func (f *VariantFilter) Matches(v product.Variant) bool {
	switch {
	case f.byNameValue():
		got, ok := v.OptionValues[f.OptionName]
		return ok && got == f.OptionValue
	case f.byValues():
		for _, val := range v.OptionValues {
			for _, want := range f.OptionValues {
				if val == want {
					return true
				}
			}
		}
		return false
	default:
		return true
	}
}

// Bundle is a purchasable composite sold as one cart line.
type Bundle struct {
	ID          string
	Title       string
	Description string
	Slug        string
	Images      []string
	// BundlePrice is nil for bundles priced only through DiscountPercentage.
	BundlePrice        *decimal.Decimal
	DiscountPercentage *decimal.Decimal
	CompareAtPrice     *decimal.Decimal
	Status             string
	Type               Type
	SourceCollectionID string
	PickQuantity       int
	VariantFilter      *VariantFilter
}

// IsMixMatch reports whether the buyer picks the constituents from a
// collection, optionally narrowed to one variant each.
func (b Bundle) IsMixMatch() bool {
	return b.Type == TypeMixMatch || b.Type == TypeMixMatchVariant
}

// IsCollectionFixed reports whether the bundle offers a collection's products
// at their matching variants. The buyer still picks PickQuantity of them.
func (b Bundle) IsCollectionFixed() bool {
	return b.Type == TypeCollectionFixed
}

// IsFixed reports whether the bundle has predefined rows. Unknown or empty
// types are treated as fixed.
func (b Bundle) IsFixed() bool {
	return !b.IsMixMatch() && !b.IsCollectionFixed()
}

// Picks returns the number of products a buyer must select from a
// collection-based bundle.
func (b Bundle) Picks() int {
	if b.PickQuantity > 0 {
		return b.PickQuantity
	}
	return DefaultPickQuantity
}

// UnitPrice is the amount charged per bundle line unit. Percentage-only
// bundles contribute zero here and are priced for display only.
func (b Bundle) UnitPrice() decimal.Decimal {
	if b.BundlePrice != nil {
		return *b.BundlePrice
	}
	return decimal.Zero
}

// DisplayPrice resolves the price shown to the buyer given the original
// (pre-discount) price of the selected constituents.
func (b Bundle) DisplayPrice(original decimal.Decimal) decimal.Decimal {
	if b.BundlePrice != nil {
		return *b.BundlePrice
	}
	if b.DiscountPercentage != nil {
		return money.FloorAtZero(original.Sub(money.Percent(original, *b.DiscountPercentage)))
	}
	return original
}

// Savings returns how much the buyer saves against the original price.
func (b Bundle) Savings(original decimal.Decimal) decimal.Decimal {
	return money.FloorAtZero(original.Sub(b.DisplayPrice(original)))
}

// Row is one predefined constituent of a fixed bundle as stored in the catalog.
// Product is populated when the catalog joins it in.
type Row struct {
	ID        string
	BundleID  string
	ProductID string
	VariantID string
	Quantity  int
	SortOrder int
	Product   *product.Product
}

// Entry is one constituent of a bundle cart line, quantity per bundle.
type Entry struct {
	Product  product.Product
	Variant  *product.Variant
	Quantity int
}

// UnitPrice returns the entry's effective unit price.
func (e Entry) UnitPrice() decimal.Decimal {
	return product.UnitPrice(e.Product, e.Variant)
}

// OriginalPrice sums the effective price of the entries. Used for savings
// display only.
func OriginalPrice(entries []Entry) decimal.Decimal {
	sum := decimal.Zero
	for _, e := range entries {
		qty := e.Quantity
		if qty <= 0 {
			qty = 1
		}
		sum = sum.Add(money.Line(e.UnitPrice(), qty))
	}
	return sum
}

// Source is the slice of the catalog the bundle composer reads.
type Source interface {
	FetchBundle(ctx context.Context, slug string) (*Bundle, error)
	FetchBundleItems(ctx context.Context, bundleID string) ([]Row, error)
	FetchProductsByCollection(ctx context.Context, collectionID string) ([]product.Product, error)
	FetchProduct(ctx context.Context, id string) (*product.Product, error)
}
