package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	cartapp "github.com/xenking/storefront-cart/internal/app"
	"github.com/xenking/storefront-cart/internal/domain/bundle"
	"github.com/xenking/storefront-cart/internal/domain/coupon"
	"github.com/xenking/storefront-cart/internal/domain/order"
	"github.com/xenking/storefront-cart/internal/domain/pricerule"
	"github.com/xenking/storefront-cart/internal/domain/product"
	"github.com/xenking/storefront-cart/internal/storage/memory"
)

type catalog struct{}

var tee = product.Product{ID: "tee", Title: "Playera", Price: decimal.NewFromInt(250), Status: "active"}

func (catalog) FetchProduct(_ context.Context, id string) (*product.Product, error) {
	if id != tee.ID {
		return nil, product.ErrNotFound
	}
	p := tee
	return &p, nil
}

func (catalog) FetchProductsByCollection(context.Context, string) ([]product.Product, error) {
	return nil, nil
}

func (catalog) FetchBundle(context.Context, string) (*bundle.Bundle, error) {
	return nil, bundle.ErrNotFound
}

func (catalog) FetchBundleItems(context.Context, string) ([]bundle.Row, error) { return nil, nil }

func (catalog) FetchPriceRules(context.Context, string) ([]pricerule.Rule, error) {
	threshold := decimal.NewFromInt(1000)
	return []pricerule.Rule{{
		ID: "ship", Type: pricerule.TypeFreeShipping, AppliesTo: pricerule.ScopeAll,
		Conditions: pricerule.Conditions{FreeShipping: &pricerule.FreeShippingConditions{MinSubtotal: &threshold}},
	}}, nil
}

type verifier struct{}

func (verifier) Verify(_ context.Context, _, code string) (*coupon.Discount, error) {
	if coupon.NormalizeCode(code) != "SAVE10" {
		return nil, coupon.ErrNotFound
	}
	return &coupon.Discount{Code: "SAVE10", DiscountType: coupon.DiscountPercentage, Value: decimal.NewFromInt(10)}, nil
}

type service struct{}

func (service) CreateOrder(context.Context, order.Payload) (*order.Result, error) {
	return &order.Result{OrderID: "o-1", OrderNumber: "1001", TotalAmount: decimal.NewFromInt(450)}, nil
}

type harness struct {
	t   *testing.T
	hub *memory.Hub
}

func newHarness(t *testing.T) *harness {
	t.Setenv("CART_STORE_ID", "store-1")
	return &harness{t: t, hub: memory.NewHub()}
}

func (h *harness) run(args ...string) (string, error) {
	var out bytes.Buffer
	args = append([]string{"-config", filepath.Join(h.t.TempDir(), "none.yaml")}, args...)
	err := run(context.Background(), zaptest.NewLogger(h.t), args, &out,
		cartapp.WithBackend(h.hub.Tab()),
		cartapp.WithCatalog(catalog{}),
		cartapp.WithServices(service{}, verifier{}),
	)
	return out.String(), err
}

func TestRun_Usage(t *testing.T) {
	h := newHarness(t)

	out, err := h.run()
	require.ErrorIs(t, err, errUsage)
	assert.Contains(t, out, "Commands:")
	assert.Contains(t, out, "checkout")

	_, err = h.run("frobnicate")
	require.ErrorIs(t, err, errUsage)
}

func TestRun_Session(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("add", "-qty", "2", "tee")
	require.NoError(t, err)
	assert.Contains(t, out, "Playera")
	assert.Contains(t, out, "free shipping")

	out, err = h.run("coupon", "nope")
	require.Error(t, err)
	assert.Contains(t, out, coupon.MsgNotFound)

	out, err = h.run("coupon", "save10")
	require.NoError(t, err)
	assert.Contains(t, out, coupon.MsgApplied)
	assert.Contains(t, out, "Coupon SAVE10")

	out, err = h.run("checkout", "-dry-run", "-email", "ana@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, `"discount_code":"SAVE10"`)
	assert.Contains(t, out, `"quantity":2`)

	out, err = h.run("checkout", "-email", "ana@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "Order 1001 created")

	out, err = h.run("show")
	require.NoError(t, err)
	assert.Contains(t, out, "Cart is empty")
}

func TestRun_EditLines(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("add", "tee")
	require.NoError(t, err)

	out, err := h.run("set", "tee", "4")
	require.NoError(t, err)
	assert.Contains(t, out, "Playera")

	_, err = h.run("set", "nope", "1")
	require.Error(t, err)

	out, err = h.run("remove", "tee")
	require.NoError(t, err)
	assert.Contains(t, out, "Cart is empty")

	_, err = h.run("add", "missing")
	require.ErrorIs(t, err, product.ErrNotFound)

	out, err = h.run("rules")
	require.NoError(t, err)
	assert.Contains(t, out, "ship")
}
