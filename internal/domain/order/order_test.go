package order

import (
	"testing"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront-cart/internal/domain/bundle"
	"github.com/xenking/storefront-cart/internal/domain/cart"
	"github.com/xenking/storefront-cart/internal/domain/pricerule"
	"github.com/xenking/storefront-cart/internal/domain/product"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ptr[T any](v T) *T { return &v }

var (
	productA = product.Product{
		ID: "a", Title: "A", Price: d("100"),
		Variants: []product.Variant{{ID: "red"}, {ID: "blue"}},
	}
	productB = product.Product{ID: "b", Title: "B", Price: d("50")}
	kit      = bundle.Bundle{ID: "kit", Title: "Kit", BundlePrice: ptr(d("180"))}
)

func TestFlatten(t *testing.T) {
	red, _ := productA.Variant("red")
	blue, _ := productA.Variant("blue")

	tests := []struct {
		name  string
		state cart.State
		want  []Item
	}{
		{
			name:  "empty",
			state: cart.Empty(),
		},
		{
			name: "bundle quantities multiply",
			state: cart.Empty().
				AddBundle(kit, []bundle.Entry{{Product: productA, Quantity: 1}, {Product: productB, Quantity: 2}}).
				UpdateQuantity("bundle:kit", 3),
			want: []Item{{ProductID: "a", Quantity: 3}, {ProductID: "b", Quantity: 6}},
		},
		{
			name: "standalone lines merge with bundle constituents",
			state: cart.Empty().
				AddItem(productB, nil).
				AddItem(productB, nil).
				AddBundle(kit, []bundle.Entry{{Product: productA, Quantity: 1}, {Product: productB, Quantity: 2}}).
				UpdateQuantity("bundle:kit", 3),
			want: []Item{{ProductID: "b", Quantity: 8}, {ProductID: "a", Quantity: 3}},
		},
		{
			name: "variants stay distinct",
			state: cart.Empty().
				AddItem(productA, red).
				AddItem(productA, blue).
				AddBundle(kit, []bundle.Entry{{Product: productA, Variant: red, Quantity: 1}}),
			want: []Item{
				{ProductID: "a", VariantID: "red", Quantity: 2},
				{ProductID: "a", VariantID: "blue", Quantity: 1},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Flatten(tt.state.Items))
		})
	}
}

func validPayload() Payload {
	return Payload{
		StoreID:      "store-1",
		Items:        []Item{{ProductID: "a", Quantity: 1}},
		CurrencyCode: "MXN",
		Customer:     &Customer{Email: "ana@example.com", Phone: "+525512345678"},
		ShippingAddress: &Address{
			Line1: "Av. Reforma 1", City: "CDMX", PostalCode: "06600", Country: "MX",
		},
	}
}

func TestValidator(t *testing.T) {
	v := NewValidator()
	require.NoError(t, v.Validate(validPayload()))

	tests := []struct {
		name   string
		mutate func(p *Payload)
		field  string
		rule   string
	}{
		{"no items", func(p *Payload) { p.Items = nil }, "Items", "required"},
		{"zero quantity", func(p *Payload) { p.Items[0].Quantity = 0 }, "Items[0].Quantity", "gt"},
		{"bad currency", func(p *Payload) { p.CurrencyCode = "PESOS" }, "CurrencyCode", "iso4217"},
		{"bad email", func(p *Payload) { p.Customer.Email = "nope" }, "Customer.Email", "email"},
		{"bad country", func(p *Payload) { p.ShippingAddress.Country = "Mexico" }, "ShippingAddress.Country", "iso3166_1_alpha2"},
		{"missing store", func(p *Payload) { p.StoreID = "" }, "StoreID", "required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPayload()
			tt.mutate(&p)
			err := v.Validate(p)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, tt.field, verr.Field)
			assert.Equal(t, tt.rule, verr.Rule)
		})
	}
}

func TestDecodeResult(t *testing.T) {
	t.Run("full", func(t *testing.T) {
		raw := `{
			"order_id": "o-1",
			"checkout_token": "tok",
			"order_number": "1001",
			"subtotal": "500.00",
			"tax_amount": 0,
			"shipping_amount": 0,
			"discount_amount": 50,
			"total_amount": 450,
			"currency_code": "MXN",
			"status": "pending",
			"order": {"id": "o-1", "applied_rules": [{"rule_id":"r","title":"Envío","rule_type":"free_shipping","discount":0}]},
			"unavailable_items": [{"product_id":"x","reason":"stock"}, "y"]
		}`
		r, err := DecodeResult(jx.DecodeStr(raw))
		require.NoError(t, err)
		assert.Equal(t, "o-1", r.OrderID)
		assert.Equal(t, "tok", r.CheckoutToken)
		assert.True(t, d("450").Equal(r.TotalAmount))
		assert.True(t, d("500").Equal(r.Subtotal))
		require.Len(t, r.AppliedRules, 1)
		assert.Equal(t, pricerule.TypeFreeShipping, r.AppliedRules[0].Type)
		assert.Equal(t, []string{"x", "y"}, r.UnavailableItems)
	})

	t.Run("round trip", func(t *testing.T) {
		in := Result{OrderID: "o-2", TotalAmount: d("12.5"), Subtotal: d("12.5")}
		e := jx.GetEncoder()
		defer jx.PutEncoder(e)
		EncodeResult(e, in)

		out, err := DecodeResult(jx.DecodeBytes(e.Bytes()))
		require.NoError(t, err)
		assert.Equal(t, "o-2", out.OrderID)
		assert.True(t, in.TotalAmount.Equal(out.TotalAmount))
	})

	t.Run("missing id", func(t *testing.T) {
		_, err := DecodeResult(jx.DecodeStr(`{"total_amount": 1}`))
		require.Error(t, err)
	})
}

func TestEncodePayload(t *testing.T) {
	p := validPayload()
	p.Items = append(p.Items, Item{ProductID: "b", VariantID: "v", Quantity: 2})
	p.DiscountCode = "SAVE10"

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	EncodePayload(e, p)

	got := string(e.Bytes())
	assert.Contains(t, got, `"items":[{"product_id":"a","quantity":1},{"product_id":"b","variant_id":"v","quantity":2}]`)
	assert.Contains(t, got, `"discount_code":"SAVE10"`)
	assert.Contains(t, got, `"currency_code":"MXN"`)
	assert.Contains(t, got, `"country":"MX"`)
	assert.NotContains(t, got, `billing_address`)
}
