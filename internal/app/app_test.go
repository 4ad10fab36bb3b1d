package app

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xenking/storefront-cart/internal/domain/bundle"
	"github.com/xenking/storefront-cart/internal/domain/cart"
	"github.com/xenking/storefront-cart/internal/domain/coupon"
	"github.com/xenking/storefront-cart/internal/domain/order"
	"github.com/xenking/storefront-cart/internal/domain/pricerule"
	"github.com/xenking/storefront-cart/internal/domain/product"
	"github.com/xenking/storefront-cart/internal/storage/memory"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ptr[T any](v T) *T { return &v }

type fakeCatalog struct {
	products map[string]product.Product
	bundles  map[string]bundle.Bundle
	rows     map[string][]bundle.Row
	rules    []pricerule.Rule
}

func (f *fakeCatalog) FetchProduct(_ context.Context, id string) (*product.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (f *fakeCatalog) FetchProductsByCollection(_ context.Context, collectionID string) ([]product.Product, error) {
	var out []product.Product
	for _, id := range []string{"shirt", "tee", "cap"} {
		if p, ok := f.products[id]; ok && p.InCollection([]string{collectionID}) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeCatalog) FetchBundle(_ context.Context, slug string) (*bundle.Bundle, error) {
	b, ok := f.bundles[slug]
	if !ok {
		return nil, bundle.ErrNotFound
	}
	return &b, nil
}

func (f *fakeCatalog) FetchBundleItems(_ context.Context, bundleID string) ([]bundle.Row, error) {
	return f.rows[bundleID], nil
}

func (f *fakeCatalog) FetchPriceRules(context.Context, string) ([]pricerule.Rule, error) {
	return f.rules, nil
}

type fakeVerifier map[string]coupon.Discount

func (f fakeVerifier) Verify(_ context.Context, _, code string) (*coupon.Discount, error) {
	disc, ok := f[coupon.NormalizeCode(code)]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	return &disc, nil
}

type fakeService struct {
	last *order.Payload
}

func (f *fakeService) CreateOrder(_ context.Context, p order.Payload) (*order.Result, error) {
	f.last = &p
	return &order.Result{OrderID: "o-1", OrderNumber: "1001", TotalAmount: d("270")}, nil
}

func newCatalog() *fakeCatalog {
	shirt := product.Product{
		ID: "shirt", Title: "Shirt", Price: d("100"), Status: "active", CollectionIDs: []string{"tops"},
		Variants: []product.Variant{
			{ID: "shirt-m", Title: "M", OptionValues: map[string]string{"Talla": "M"}},
			{ID: "shirt-xl", Title: "XL", Price: ptr(d("120")), OptionValues: map[string]string{"Talla": "XL"}},
		},
	}
	tee := product.Product{ID: "tee", Title: "Tee", Price: d("80"), Status: "active", CollectionIDs: []string{"tops"}}
	hat := product.Product{ID: "cap", Title: "Cap", Price: d("50"), Status: "active", CollectionIDs: []string{"tops"}}

	return &fakeCatalog{
		products: map[string]product.Product{"shirt": shirt, "tee": tee, "cap": hat},
		bundles: map[string]bundle.Bundle{
			"duo":  {ID: "b1", Slug: "duo", Title: "Duo", Type: bundle.TypeFixed, BundlePrice: ptr(d("150"))},
			"pick": {ID: "b2", Slug: "pick", Title: "Pick", Type: bundle.TypeMixMatch, SourceCollectionID: "tops", PickQuantity: 2, BundlePrice: ptr(d("120"))},
			"all":  {ID: "b3", Slug: "all", Title: "All", Type: bundle.TypeCollectionFixed, SourceCollectionID: "tops", PickQuantity: 2, BundlePrice: ptr(d("200"))},
		},
		rows: map[string][]bundle.Row{
			"b1": {
				{ID: "r1", ProductID: "shirt", VariantID: "shirt-m", Quantity: 1, Product: &shirt},
				{ID: "r2", ProductID: "tee", Quantity: 1, Product: &tee},
			},
		},
	}
}

func testConfig() *Config {
	return &Config{
		StoreID:  "store-1",
		Currency: "MXN",
		Locale:   "es-MX",
		Session:  "default",
		Storage:  StorageConfig{Driver: StorageMemory},
		Coupon:   CouponConfig{MaxAttempts: 5, Window: time.Minute},
	}
}

func openSession(t *testing.T, opts ...Option) *Session {
	t.Helper()
	s, err := Open(context.Background(), zaptest.NewLogger(t), testConfig(), opts...)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestOpen_Minimal(t *testing.T) {
	s := openSession(t)

	assert.Nil(t, s.Catalog)
	assert.Nil(t, s.Coupons)
	assert.Nil(t, s.Submitter)
	assert.True(t, s.Cart.State().IsEmpty())

	_, err := s.AddProduct(context.Background(), "shirt", "", 1)
	require.ErrorIs(t, err, ErrNoCatalog)
	_, err = s.ApplyCoupon(context.Background(), "X")
	require.ErrorIs(t, err, ErrNoCheckout)

	res, err := s.RestoreCoupon(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Valid)
}

func TestOpen_Redis(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.Storage = StorageConfig{Driver: StorageRedis, Redis: RedisConfig{Addr: mr.Addr(), Prefix: "cart:"}}

	first, err := Open(ctx, zaptest.NewLogger(t), cfg, WithCatalog(newCatalog()))
	require.NoError(t, err)
	t.Cleanup(first.Close)
	_, err = first.AddProduct(ctx, "tee", "", 2)
	require.NoError(t, err)
	assert.False(t, first.Cart.Degraded())
	assert.True(t, mr.Exists("cart:store-1:default:cart-state"))

	second, err := Open(ctx, zaptest.NewLogger(t), cfg)
	require.NoError(t, err)
	t.Cleanup(second.Close)
	assert.Equal(t, 2, second.Cart.State().TotalQuantity())

	other := *cfg
	other.Session = "other"
	third, err := Open(ctx, zaptest.NewLogger(t), &other)
	require.NoError(t, err)
	t.Cleanup(third.Close)
	assert.True(t, third.Cart.State().IsEmpty())
}

func TestSession_AddProduct(t *testing.T) {
	ctx := context.Background()
	s := openSession(t, WithCatalog(newCatalog()))

	st, err := s.AddProduct(ctx, "shirt", "shirt-xl", 3)
	require.NoError(t, err)
	require.Len(t, st.Items, 1)
	assert.Equal(t, 3, st.TotalQuantity())
	assert.True(t, d("360").Equal(st.Total))

	st, err = s.AddProduct(ctx, "shirt", "shirt-xl", 1)
	require.NoError(t, err)
	assert.Equal(t, 4, st.TotalQuantity())

	_, err = s.AddProduct(ctx, "shirt", "shirt-s", 1)
	require.Error(t, err)
	_, err = s.AddProduct(ctx, "missing", "", 1)
	require.ErrorIs(t, err, product.ErrNotFound)
	_, err = s.AddProduct(ctx, "tee", "", 0)
	require.Error(t, err)
	assert.Equal(t, 4, s.Cart.State().TotalQuantity())
}

func TestSession_AddBundle(t *testing.T) {
	ctx := context.Background()

	t.Run("fixed", func(t *testing.T) {
		s := openSession(t, WithCatalog(newCatalog()))
		st, err := s.AddBundle(ctx, "duo", nil)
		require.NoError(t, err)
		require.Len(t, st.Items, 1)
		assert.Equal(t, cart.TypeBundle, st.Items[0].Type())
		assert.True(t, d("150").Equal(st.Total))
	})

	t.Run("collection", func(t *testing.T) {
		s := openSession(t, WithCatalog(newCatalog()))

		for _, picks := range [][]string{nil, {"shirt"}, {"shirt", "tee", "cap"}, {"tee", "tee"}} {
			_, err := s.AddBundle(ctx, "all", picks)
			require.ErrorIs(t, err, bundle.ErrSelectionNotReady, "picks %v", picks)
		}
		_, err := s.AddBundle(ctx, "all", []string{"shirt", "nope"})
		require.ErrorIs(t, err, bundle.ErrNotOffered)
		assert.True(t, s.Cart.State().IsEmpty())

		st, err := s.AddBundle(ctx, "all", []string{"shirt", "tee"})
		require.NoError(t, err)
		require.Len(t, st.Items, 1)
		b, ok := st.Items[0].(cart.BundleItem)
		require.True(t, ok)
		require.Len(t, b.Items, 2)
		assert.Equal(t, "shirt", b.Items[0].Product.ID)
		assert.Equal(t, "tee", b.Items[1].Product.ID)
		assert.True(t, d("200").Equal(st.Total))
	})

	t.Run("mix and match", func(t *testing.T) {
		s := openSession(t, WithCatalog(newCatalog()))

		_, err := s.AddBundle(ctx, "pick", []string{"tee"})
		require.ErrorIs(t, err, bundle.ErrSelectionNotReady)
		_, err = s.AddBundle(ctx, "pick", []string{"tee", "hat"})
		require.ErrorIs(t, err, bundle.ErrNotOffered)
		assert.True(t, s.Cart.State().IsEmpty())

		st, err := s.AddBundle(ctx, "pick", []string{"tee", "cap"})
		require.NoError(t, err)
		require.Len(t, st.Items, 1)
		assert.True(t, d("120").Equal(st.Total))
	})

	t.Run("missing", func(t *testing.T) {
		s := openSession(t, WithCatalog(newCatalog()))
		_, err := s.AddBundle(ctx, "nope", nil)
		require.ErrorIs(t, err, bundle.ErrNotFound)
	})
}

func TestSession_Checkout(t *testing.T) {
	ctx := context.Background()
	svc := &fakeService{}
	verifier := fakeVerifier{
		"SAVE10": {ID: "c1", Code: "SAVE10", DiscountType: coupon.DiscountPercentage, Value: d("10")},
	}
	hub := memory.NewHub()
	s := openSession(t,
		WithBackend(hub.Tab()),
		WithCatalog(newCatalog()),
		WithServices(svc, verifier),
	)
	require.NotNil(t, s.Coupons)
	require.NotNil(t, s.Submitter)

	_, err := s.AddProduct(ctx, "shirt", "", 3)
	require.NoError(t, err)

	res, err := s.ApplyCoupon(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, coupon.MsgNotFound, res.Message)

	res, err = s.ApplyCoupon(ctx, "save10")
	require.NoError(t, err)
	require.True(t, res.Valid)

	q := s.Quote()
	assert.Equal(t, "SAVE10", q.CouponCode)
	assert.True(t, d("30").Equal(q.CouponDiscount))
	assert.True(t, d("270").Equal(q.Total))

	out, err := s.Submitter.Submit(ctx, order.Details{Customer: &order.Customer{Email: "ana@example.com"}})
	require.NoError(t, err)
	assert.Equal(t, "o-1", out.OrderID)
	require.NotNil(t, svc.last)
	assert.Equal(t, "SAVE10", svc.last.DiscountCode)
	assert.True(t, s.Cart.State().IsEmpty())
	assert.Empty(t, s.Coupons.Code())
}

func TestSession_RestoreCoupon(t *testing.T) {
	ctx := context.Background()
	verifier := fakeVerifier{
		"SAVE10": {ID: "c1", Code: "SAVE10", DiscountType: coupon.DiscountPercentage, Value: d("10")},
	}
	hub := memory.NewHub()

	first := openSession(t, WithBackend(hub.Tab()), WithCatalog(newCatalog()), WithServices(nil, verifier))
	_, err := first.AddProduct(ctx, "tee", "", 1)
	require.NoError(t, err)
	res, err := first.ApplyCoupon(ctx, "SAVE10")
	require.NoError(t, err)
	require.True(t, res.Valid)

	second := openSession(t, WithBackend(hub.Tab()), WithCatalog(newCatalog()), WithServices(nil, verifier))
	assert.Equal(t, 1, second.Cart.State().TotalQuantity())
	assert.Empty(t, second.Coupons.Code())

	res, err = second.RestoreCoupon(ctx)
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, "SAVE10", second.Coupons.Code())
	assert.Nil(t, second.Submitter)
}

func TestSession_ReloadRules(t *testing.T) {
	c := newCatalog()
	c.rules = []pricerule.Rule{{
		ID: "ship", Type: pricerule.TypeFreeShipping, AppliesTo: pricerule.ScopeAll,
		Conditions: pricerule.Conditions{FreeShipping: &pricerule.FreeShippingConditions{MinSubtotal: ptr(d("500"))}},
	}}
	s := openSession(t, WithCatalog(c))

	_, ok := s.Rules().FreeShipping()
	assert.True(t, ok)

	c.rules = nil
	s.ReloadRules(context.Background())
	_, ok = s.Rules().FreeShipping()
	assert.False(t, ok)
}

func TestSession_ClosedTwice(t *testing.T) {
	s, err := Open(context.Background(), zaptest.NewLogger(t), testConfig())
	require.NoError(t, err)
	s.Close()
	s.Close()
}
