// Package cart implements the shopping cart: a closed set of line types, pure
// state transitions, the persisted record format and the shared Store that
// keeps sessions converged.
package cart

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-cart/internal/domain/bundle"
	"github.com/xenking/storefront-cart/internal/domain/product"
)

// ItemType is the discriminator of a persisted cart line.
type ItemType string

const (
	TypeProduct ItemType = "product"
	TypeBundle  ItemType = "bundle"
)

const bundleKeyPrefix = "bundle:"

// Item is one cart line. The set of implementations is closed: ProductItem
// and BundleItem. Consumers switch on the concrete type.
type Item interface {
	Key() string
	Type() ItemType
	Qty() int
	UnitPrice() decimal.Decimal

	withQuantity(q int) Item
}

var (
	_ Item = ProductItem{}
	_ Item = BundleItem{}
)

// ProductKey returns the line key of a product, optionally narrowed to a
// variant.
func ProductKey(productID string, v *product.Variant) string {
	if v == nil || v.ID == "" {
		return productID
	}
	return productID + ":" + v.ID
}

// BundleKey returns the line key of a bundle.
func BundleKey(bundleID string) string {
	return bundleKeyPrefix + bundleID
}

// ProductItem is a standalone product line.
type ProductItem struct {
	Product  product.Product
	Variant  *product.Variant
	Quantity int
}

func (i ProductItem) Key() string    { return ProductKey(i.Product.ID, i.Variant) }
func (i ProductItem) Type() ItemType { return TypeProduct }
func (i ProductItem) Qty() int       { return i.Quantity }

// UnitPrice is the variant price override or the product base price.
func (i ProductItem) UnitPrice() decimal.Decimal {
	return product.UnitPrice(i.Product, i.Variant)
}

func (i ProductItem) withQuantity(q int) Item {
	i.Quantity = q
	return i
}

// BundleItem is a bundle line. Items is the composed constituent snapshot
// taken when the bundle was first added, quantities per bundle.
type BundleItem struct {
	Bundle   bundle.Bundle
	Items    []bundle.Entry
	Quantity int
}

func (i BundleItem) Key() string    { return BundleKey(i.Bundle.ID) }
func (i BundleItem) Type() ItemType { return TypeBundle }
func (i BundleItem) Qty() int       { return i.Quantity }

// UnitPrice is the bundle price, zero for percentage-only bundles.
func (i BundleItem) UnitPrice() decimal.Decimal {
	return i.Bundle.UnitPrice()
}

func (i BundleItem) withQuantity(q int) Item {
	i.Quantity = q
	return i
}
