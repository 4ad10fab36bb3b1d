package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product is an immutable catalog snapshot. The cart keeps a copy of it on
// every line and never mutates it.
type Product struct {
	ID             string
	Title          string
	Slug           string
	Price          decimal.Decimal
	CompareAtPrice *decimal.Decimal
	Images         []string
	Status         string
	CollectionIDs  []string
	Variants       []Variant
}

// Variant is a purchasable option combination of a product. A nil Price means
// the variant sells at the product's base price.
type Variant struct {
	ID                string
	Title             string
	SKU               string
	Price             *decimal.Decimal
	CompareAtPrice    *decimal.Decimal
	OptionValues      map[string]string
	InventoryQuantity *int
	Available         *bool
}

// UnitPrice returns the effective unit price: the variant override when
// present, otherwise the product base price.
func UnitPrice(p Product, v *Variant) decimal.Decimal {
	if v != nil && v.Price != nil {
		return *v.Price
	}
	return p.Price
}

// Variant returns the variant with the given id.
func (p Product) Variant(id string) (*Variant, bool) {
	if id == "" {
		return nil, false
	}
	for i := range p.Variants {
		if p.Variants[i].ID == id {
			v := p.Variants[i]
			return &v, true
		}
	}
	return nil, false
}

// InCollection reports whether the product belongs to any of the collections.
func (p Product) InCollection(ids []string) bool {
	for _, id := range ids {
		for _, own := range p.CollectionIDs {
			if own == id {
				return true
			}
		}
	}
	return false
}

// Repository defines read operations for the product catalog.
type Repository interface {
	FetchProduct(ctx context.Context, id string) (*Product, error)
	FetchProductsByCollection(ctx context.Context, collectionID string) ([]Product, error)
}
