// Package order assembles the checkout request from the cart and hands it to
// the checkout service.
package order

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-cart/internal/domain/cart"
	"github.com/xenking/storefront-cart/internal/domain/pricerule"
	"github.com/xenking/storefront-cart/internal/domain/product"
)

// ErrEmptyCart is returned when checking out a cart without lines.
var ErrEmptyCart = errors.New("cart is empty")

// ValidationError reports the first payload field that failed validation.
type ValidationError struct {
	Field string
	Rule  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Rule)
}

// Item is one flattened purchasable unit as the checkout service sees it.
// It never carries bundle structure.
type Item struct {
	ProductID string `validate:"required"`
	VariantID string
	Quantity  int    `validate:"gt=0"`
}

// Customer identifies the buyer.
type Customer struct {
	Email     string `validate:"required,email"`
	FirstName string
	LastName  string
	Phone     string `validate:"omitempty,e164"`
}

// Address is a postal address.
type Address struct {
	Line1      string `validate:"required"`
	Line2      string
	City       string `validate:"required"`
	State      string
	PostalCode string `validate:"required"`
	Country    string `validate:"required,iso3166_1_alpha2"`
}

// Payload is the order creation request.
type Payload struct {
	StoreID         string    `validate:"required"`
	Items           []Item    `validate:"required,min=1,dive"`
	DiscountCode    string
	CurrencyCode    string    `validate:"required,iso4217"`
	Customer        *Customer `validate:"omitempty"`
	ShippingAddress *Address  `validate:"omitempty"`
	BillingAddress  *Address  `validate:"omitempty"`
	Notes           string    `validate:"max=1000"`
	// IdempotencyKey lets the service recognize a retried submission.
	IdempotencyKey string
}

// Result is what the checkout service reports for a created order.
type Result struct {
	OrderID        string
	OrderNumber    string
	CheckoutToken  string
	Status         string
	CurrencyCode   string
	Subtotal       decimal.Decimal
	TaxAmount      decimal.Decimal
	ShippingAmount decimal.Decimal
	DiscountAmount decimal.Decimal
	TotalAmount    decimal.Decimal
	AppliedRules   []pricerule.AppliedRule
	// UnavailableItems lists product ids the service could not sell.
	UnavailableItems []string
}

// Service creates orders.
type Service interface {
	CreateOrder(ctx context.Context, p Payload) (*Result, error)
}

// Flatten turns cart lines into checkout items. Bundle lines expand into
// their constituents, multiplied by the bundle quantity. Entries for the
// same product and variant are merged, in order of first appearance.
func Flatten(items []cart.Item) []Item {
	var (
		out   []Item
		index = make(map[string]int)
	)
	add := func(pid, vid string, qty int) {
		key := pid + ":" + vid
		if i, ok := index[key]; ok {
			out[i].Quantity += qty
			return
		}
		index[key] = len(out)
		out = append(out, Item{ProductID: pid, VariantID: vid, Quantity: qty})
	}

	for _, it := range items {
		switch it := it.(type) {
		case cart.ProductItem:
			add(it.Product.ID, variantID(it.Variant), it.Quantity)
		case cart.BundleItem:
			for _, e := range it.Items {
				add(e.Product.ID, variantID(e.Variant), e.Quantity*it.Quantity)
			}
		}
	}
	return out
}

func variantID(v *product.Variant) string {
	if v == nil {
		return ""
	}
	return v.ID
}

// Validator checks payloads before they leave the process.
type Validator struct {
	v *validator.Validate
}

// NewValidator creates a Validator.
func NewValidator() *Validator {
	return &Validator{v: validator.New(validator.WithRequiredStructEnabled())}
}

// Validate returns a *ValidationError for the first failing field.
func (v *Validator) Validate(p Payload) error {
	err := v.v.Struct(p)
	if err == nil {
		return nil
	}
	var fields validator.ValidationErrors
	if errors.As(err, &fields) && len(fields) > 0 {
		f := fields[0]
		return &ValidationError{
			Field: strings.TrimPrefix(f.Namespace(), "Payload."),
			Rule:  f.Tag(),
		}
	}
	return errors.Wrap(err, "validate payload")
}
