package coupon

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap/zaptest"

	"github.com/xenking/storefront-cart/internal/storage"
	"github.com/xenking/storefront-cart/internal/storage/memory"
	"github.com/xenking/storefront-cart/pkg/ratelimit"
)

type mockVerifier struct {
	mu        sync.Mutex
	discounts map[string]*Discount
	err       error
	calls     []string
	// block, when set for a code, holds Verify until closed.
	block map[string]chan struct{}
}

func (m *mockVerifier) Verify(ctx context.Context, storeID, code string) (*Discount, error) {
	m.mu.Lock()
	m.calls = append(m.calls, storeID+"/"+code)
	ch := m.block[code]
	m.mu.Unlock()

	if ch != nil {
		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	d, ok := m.discounts[code]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *mockVerifier) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestApplier(t *testing.T, v Verifier, opts ...Option) (*Applier, storage.Backend) {
	t.Helper()
	tab := memory.NewHub().Tab()
	opts = append([]Option{
		WithLogger(zaptest.NewLogger(t)),
		WithClock(func() time.Time { return testNow }),
	}, opts...)
	a, err := NewApplier(v, tab, "store-1", opts...)
	require.NoError(t, err)
	return a, tab
}

func catalog() *mockVerifier {
	return &mockVerifier{discounts: map[string]*Discount{
		"SAVE10": {Code: "SAVE10", DiscountType: DiscountPercentage, Value: decimal.NewFromInt(10)},
		"OFF50":  {Code: "OFF50", DiscountType: DiscountFixed, Value: decimal.NewFromInt(50), MinSubtotal: ptr(decimal.NewFromInt(200))},
	}}
}

func TestApplier_ApplyAndReplace(t *testing.T) {
	ctx := context.Background()
	v := catalog()
	a, backend := newTestApplier(t, v)

	res, err := a.Apply(ctx, "  SAVE10 ", decimal.NewFromInt(300), 2)
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, MsgApplied, res.Message)
	assert.Equal(t, "SAVE10", a.Code())
	assert.Equal(t, []string{"store-1/SAVE10"}, v.calls)

	pending, err := backend.Get(ctx, storage.KeyPendingCoupon)
	require.NoError(t, err)
	assert.Equal(t, "SAVE10", string(pending))

	// A second code replaces the first rather than stacking.
	res, err = a.Apply(ctx, "OFF50", decimal.NewFromInt(300), 2)
	require.NoError(t, err)
	require.True(t, res.Valid)
	assert.Equal(t, "OFF50", a.Code())
	assert.True(t, decimal.NewFromInt(50).Equal(a.DiscountFor(decimal.NewFromInt(300), 2)))

	// The cart dropping below the minimum disables the discount.
	assert.True(t, decimal.Zero.Equal(a.DiscountFor(decimal.NewFromInt(100), 1)))
}

func TestApplier_Rejections(t *testing.T) {
	ctx := context.Background()

	t.Run("empty code", func(t *testing.T) {
		v := catalog()
		a, _ := newTestApplier(t, v)
		res, err := a.Apply(ctx, "   ", decimal.NewFromInt(100), 1)
		require.NoError(t, err)
		assert.False(t, res.Valid)
		assert.Equal(t, MsgEmptyCode, res.Message)
		assert.Zero(t, v.callCount())
	})

	t.Run("not found", func(t *testing.T) {
		a, _ := newTestApplier(t, catalog())
		res, err := a.Apply(ctx, "NOPE", decimal.NewFromInt(100), 1)
		require.NoError(t, err)
		assert.False(t, res.Valid)
		assert.ErrorIs(t, res.Cause, ErrNotFound)
		assert.Equal(t, MsgNotFound, res.Message)
	})

	t.Run("validation failure keeps previous coupon", func(t *testing.T) {
		a, _ := newTestApplier(t, catalog())
		_, err := a.Apply(ctx, "SAVE10", decimal.NewFromInt(100), 1)
		require.NoError(t, err)

		res, err := a.Apply(ctx, "OFF50", decimal.NewFromInt(100), 1)
		require.NoError(t, err)
		assert.False(t, res.Valid)
		assert.Contains(t, res.Message, "200.00")
		assert.Equal(t, "SAVE10", a.Code())
	})

	t.Run("verifier failure", func(t *testing.T) {
		v := catalog()
		v.err = errors.New("connection refused")
		a, _ := newTestApplier(t, v)
		res, err := a.Apply(ctx, "SAVE10", decimal.NewFromInt(100), 1)
		require.Error(t, err)
		assert.Equal(t, MsgUnavailable, res.Message)
		assert.Empty(t, a.Code())
	})

	t.Run("known code filter", func(t *testing.T) {
		v := catalog()
		a, _ := newTestApplier(t, v, WithKnownCodes(NewKnownCodes(10, 0.001, "save10")))

		res, err := a.Apply(ctx, "BOGUS123", decimal.NewFromInt(100), 1)
		require.NoError(t, err)
		assert.ErrorIs(t, res.Cause, ErrUnknownCode)
		assert.Zero(t, v.callCount())

		res, err = a.Apply(ctx, "SAVE10", decimal.NewFromInt(100), 1)
		require.NoError(t, err)
		assert.True(t, res.Valid)
	})

	t.Run("throttled after failed codes", func(t *testing.T) {
		v := catalog()
		now := testNow
		l := ratelimit.New(ratelimit.Config{Max: 2, Window: time.Minute})
		a, _ := newTestApplier(t, v,
			WithLimiter(l, "store-1:cart-1"),
			WithClock(func() time.Time { return now }),
		)

		// A rejected code counts as much as an unknown one.
		res, err := a.Apply(ctx, "NOPE", decimal.NewFromInt(100), 1)
		require.NoError(t, err)
		require.ErrorIs(t, res.Cause, ErrNotFound)
		now = now.Add(15 * time.Second)
		res, err = a.Apply(ctx, "OFF50", decimal.NewFromInt(100), 1)
		require.NoError(t, err)
		require.False(t, res.Valid)

		now = now.Add(5 * time.Second)
		res, err = a.Apply(ctx, "SAVE10", decimal.NewFromInt(100), 1)
		require.NoError(t, err)
		assert.ErrorIs(t, res.Cause, ErrThrottled)
		assert.Equal(t, "Demasiados intentos fallidos, intenta de nuevo en 40 s", res.Message)
		assert.Equal(t, 2, v.callCount())

		// Another cart is unaffected.
		other, _ := newTestApplier(t, v,
			WithLimiter(l, "store-1:cart-2"),
			WithClock(func() time.Time { return now }),
		)
		res, err = other.Apply(ctx, "SAVE10", decimal.NewFromInt(100), 1)
		require.NoError(t, err)
		assert.True(t, res.Valid)

		// Once the first failure ages out the cart may try again.
		now = testNow.Add(time.Minute)
		res, err = a.Apply(ctx, "SAVE10", decimal.NewFromInt(100), 1)
		require.NoError(t, err)
		assert.True(t, res.Valid)
	})

	t.Run("applied code clears failures", func(t *testing.T) {
		v := catalog()
		l := ratelimit.New(ratelimit.Config{Max: 2, Window: time.Minute})
		a, _ := newTestApplier(t, v, WithLimiter(l, "store-1:cart-1"))

		_, err := a.Apply(ctx, "NOPE", decimal.NewFromInt(100), 1)
		require.NoError(t, err)
		res, err := a.Apply(ctx, "SAVE10", decimal.NewFromInt(100), 1)
		require.NoError(t, err)
		require.True(t, res.Valid)
		assert.Equal(t, 0, l.Len())

		_, err = a.Apply(ctx, "NOPE", decimal.NewFromInt(100), 1)
		require.NoError(t, err)
		res, err = a.Apply(ctx, "SAVE10", decimal.NewFromInt(100), 1)
		require.NoError(t, err)
		assert.True(t, res.Valid)
	})

	t.Run("verifier outage does not count", func(t *testing.T) {
		v := catalog()
		v.err = errors.New("connection refused")
		l := ratelimit.New(ratelimit.Config{Max: 1, Window: time.Minute})
		a, _ := newTestApplier(t, v, WithLimiter(l, "store-1:cart-1"))

		for range 3 {
			_, err := a.Apply(ctx, "SAVE10", decimal.NewFromInt(100), 1)
			require.Error(t, err)
		}
		assert.Equal(t, 0, l.Len())
	})
}

func TestApplier_StaleVerificationDropped(t *testing.T) {
	ctx := context.Background()
	v := catalog()
	gate := make(chan struct{})
	v.block = map[string]chan struct{}{"SAVE10": gate}
	a, _ := newTestApplier(t, v)

	errc := make(chan error, 1)
	go func() {
		_, err := a.Apply(ctx, "SAVE10", decimal.NewFromInt(300), 2)
		errc <- err
	}()
	require.Eventually(t, func() bool { return v.callCount() == 1 }, time.Second, 5*time.Millisecond)

	res, err := a.Apply(ctx, "OFF50", decimal.NewFromInt(300), 2)
	require.NoError(t, err)
	require.True(t, res.Valid)

	close(gate)
	require.ErrorIs(t, <-errc, ErrStale)
	assert.Equal(t, "OFF50", a.Code(), "older response must not overwrite the newer coupon")
}

func TestApplier_RemoveSupersedesInFlight(t *testing.T) {
	ctx := context.Background()
	v := catalog()
	gate := make(chan struct{})
	v.block = map[string]chan struct{}{"SAVE10": gate}
	a, backend := newTestApplier(t, v)

	errc := make(chan error, 1)
	go func() {
		_, err := a.Apply(ctx, "SAVE10", decimal.NewFromInt(300), 2)
		errc <- err
	}()
	require.Eventually(t, func() bool { return v.callCount() == 1 }, time.Second, 5*time.Millisecond)

	a.Remove(ctx)
	close(gate)
	require.ErrorIs(t, <-errc, ErrStale)
	assert.Empty(t, a.Code())

	_, err := backend.Get(ctx, storage.KeyPendingCoupon)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestApplier_Restore(t *testing.T) {
	ctx := context.Background()

	t.Run("nothing pending", func(t *testing.T) {
		a, _ := newTestApplier(t, catalog())
		res, err := a.Restore(ctx, decimal.NewFromInt(100), 1)
		require.NoError(t, err)
		assert.False(t, res.Valid)
		assert.Empty(t, res.Message)
	})

	t.Run("pending code re-applied", func(t *testing.T) {
		a, backend := newTestApplier(t, catalog())
		require.NoError(t, backend.Set(ctx, storage.KeyPendingCoupon, []byte("SAVE10")))

		res, err := a.Restore(ctx, decimal.NewFromInt(100), 1)
		require.NoError(t, err)
		assert.True(t, res.Valid)
		assert.Equal(t, "SAVE10", a.Code())
	})

	t.Run("invalid pending code forgotten", func(t *testing.T) {
		a, backend := newTestApplier(t, catalog())
		require.NoError(t, backend.Set(ctx, storage.KeyPendingCoupon, []byte("GONE")))

		res, err := a.Restore(ctx, decimal.NewFromInt(100), 1)
		require.NoError(t, err)
		assert.False(t, res.Valid)
		_, err = backend.Get(ctx, storage.KeyPendingCoupon)
		require.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestApplier_RecordsAttempts(t *testing.T) {
	ctx := context.Background()
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))

	a, _ := newTestApplier(t, catalog(), WithMeterProvider(mp))
	_, _ = a.Apply(ctx, "SAVE10", decimal.NewFromInt(100), 1)
	_, _ = a.Apply(ctx, "NOPE", decimal.NewFromInt(100), 1)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)
	require.Len(t, rm.ScopeMetrics[0].Metrics, 1)

	sum, ok := rm.ScopeMetrics[0].Metrics[0].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	assert.EqualValues(t, 2, total)
	assert.Len(t, sum.DataPoints, 2)
}

func TestKnownCodes_RoundTrip(t *testing.T) {
	f := NewKnownCodes(100, 0.001, "alpha", " Beta ")
	var buf bytes.Buffer
	require.NoError(t, WriteKnownCodes(&buf, f))

	got, err := ReadKnownCodes(&buf)
	require.NoError(t, err)
	assert.True(t, got.TestString("ALPHA"))
	assert.True(t, got.TestString(NormalizeCode("beta")))
}
