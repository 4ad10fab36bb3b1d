// Package catalog describes the read-only storefront data the cart depends on.
package catalog

import (
	"github.com/xenking/storefront-cart/internal/domain/bundle"
	"github.com/xenking/storefront-cart/internal/domain/pricerule"
	"github.com/xenking/storefront-cart/internal/domain/product"
)

// Catalog is the full read surface: products, bundles and price rules.
type Catalog interface {
	product.Repository
	bundle.Source
	pricerule.Source
}
