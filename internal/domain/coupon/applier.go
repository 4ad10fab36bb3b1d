package coupon

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/xenking/storefront-cart/internal/seq"
	"github.com/xenking/storefront-cart/internal/storage"
	"github.com/xenking/storefront-cart/pkg/ratelimit"
)

const meterName = "github.com/xenking/storefront-cart/internal/domain/coupon"

// Applier holds the single active coupon of a session. Applying a new code
// replaces the previous one; the accepted code is persisted so it survives a
// reload. It is safe for concurrent use.
type Applier struct {
	verifier Verifier
	backend  storage.Backend
	storeID  string

	lg       *zap.Logger
	now      func() time.Time
	known    KnownCodes
	limiter  *ratelimit.Limiter
	limitKey string
	mp       metric.MeterProvider
	attempts metric.Int64Counter

	seq    seq.Sequencer
	mu     sync.Mutex
	active *Discount
}

// Option configures an Applier.
type Option func(*Applier)

// WithLogger sets the logger.
func WithLogger(lg *zap.Logger) Option {
	return func(a *Applier) { a.lg = lg }
}

// WithClock overrides the clock used for validity windows and throttling.
func WithClock(now func() time.Time) Option {
	return func(a *Applier) { a.now = now }
}

// WithKnownCodes rejects codes missing from the filter without calling the
// verifier.
func WithKnownCodes(k KnownCodes) Option {
	return func(a *Applier) { a.known = k }
}

// WithLimiter blocks the cart identified by key after too many failed codes.
func WithLimiter(l *ratelimit.Limiter, key string) Option {
	return func(a *Applier) {
		a.limiter = l
		a.limitKey = key
	}
}

// WithMeterProvider sets the meter provider for the attempt counter.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(a *Applier) { a.mp = mp }
}

// NewApplier creates an Applier for the store.
func NewApplier(verifier Verifier, backend storage.Backend, storeID string, opts ...Option) (*Applier, error) {
	a := &Applier{
		verifier: verifier,
		backend:  backend,
		storeID:  storeID,
		lg:       zap.NewNop(),
		now:      time.Now,
		mp:       noop.NewMeterProvider(),
	}
	for _, o := range opts {
		o(a)
	}

	var err error
	a.attempts, err = a.mp.Meter(meterName).Int64Counter("coupon.attempts",
		metric.WithDescription("Coupon codes submitted, by outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create attempts counter")
	}
	return a, nil
}

func (a *Applier) record(ctx context.Context, outcome string) {
	a.attempts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// fail counts a rejected code against the cart. Verifier outages and stale
// results are not the buyer's fault and do not count.
func (a *Applier) fail() {
	if a.limiter == nil {
		return
	}
	if d := a.limiter.Fail(a.limitKey, a.now()); !d.Allowed {
		a.lg.Info("Coupon attempts blocked",
			zap.String("key", a.limitKey),
			zap.Duration("retry_after", d.RetryAfter),
		)
	}
}

// Apply verifies code and validates it against the cart. On success the code
// becomes the active coupon and is persisted. Rejections are reported in the
// Result with a nil error; an error is returned when the call was superseded
// (ErrStale) or the verifier failed.
func (a *Applier) Apply(ctx context.Context, code string, total decimal.Decimal, quantity int) (Result, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return reject(MsgEmptyCode), nil
	}
	ticket := a.seq.Next()

	if a.limiter != nil {
		if d := a.limiter.Check(a.limitKey, a.now()); !d.Allowed {
			a.record(ctx, "throttled")
			return Result{Message: ThrottledMessage(d.RetryAfter), Cause: ErrThrottled}, nil
		}
	}
	if a.known != nil && !a.known.TestString(NormalizeCode(code)) {
		a.record(ctx, "unknown")
		a.fail()
		return Result{Message: MsgNotFound, Cause: ErrUnknownCode}, nil
	}

	d, err := a.verifier.Verify(ctx, a.storeID, code)
	if !a.seq.Current(ticket) {
		a.lg.Debug("Drop stale coupon verification", zap.String("code", code))
		a.record(ctx, "stale")
		return Result{}, ErrStale
	}
	switch {
	case errors.Is(err, ErrNotFound) || (err == nil && d == nil):
		a.record(ctx, "not_found")
		a.fail()
		return Result{Message: MsgNotFound, Cause: ErrNotFound}, nil
	case err != nil:
		a.record(ctx, "error")
		return reject(MsgUnavailable), errors.Wrap(err, "verify coupon")
	}

	res := Validate(*d, total, quantity, a.now())
	if !res.Valid {
		a.record(ctx, "rejected")
		a.fail()
		return res, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.seq.Current(ticket) {
		a.record(ctx, "stale")
		return Result{}, ErrStale
	}
	if d.Code == "" {
		d.Code = code
	}
	a.active = d
	if err := a.backend.Set(ctx, storage.KeyPendingCoupon, []byte(code)); err != nil {
		a.lg.Warn("Persist pending coupon failed", zap.String("code", code), zap.Error(err))
	}
	if a.limiter != nil {
		a.limiter.Reset(a.limitKey)
	}
	a.record(ctx, "applied")
	a.lg.Info("Coupon applied", zap.String("code", d.Code))
	return Result{Valid: true, Message: MsgApplied}, nil
}

// Remove clears the active coupon and the persisted code. Verifications in
// flight resolve with ErrStale.
func (a *Applier) Remove(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.seq.Invalidate()
	a.active = nil
	if err := a.backend.Delete(ctx, storage.KeyPendingCoupon); err != nil {
		a.lg.Warn("Clear pending coupon failed", zap.Error(err))
	}
}

// Restore re-applies the persisted code, if any. A code that no longer
// validates is forgotten, unless the attempt was only throttled.
func (a *Applier) Restore(ctx context.Context, total decimal.Decimal, quantity int) (Result, error) {
	raw, err := a.backend.Get(ctx, storage.KeyPendingCoupon)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return Result{}, nil
	case err != nil:
		a.lg.Warn("Read pending coupon failed", zap.Error(err))
		return Result{}, nil
	case len(raw) == 0:
		return Result{}, nil
	}

	res, err := a.Apply(ctx, string(raw), total, quantity)
	if err != nil {
		return res, err
	}
	if !res.Valid && !errors.Is(res.Cause, ErrThrottled) {
		if err := a.backend.Delete(ctx, storage.KeyPendingCoupon); err != nil {
			a.lg.Warn("Clear pending coupon failed", zap.Error(err))
		}
	}
	return res, nil
}

// Active returns a copy of the active coupon.
func (a *Applier) Active() (Discount, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.active == nil {
		return Discount{}, false
	}
	return *a.active, true
}

// Code returns the active coupon code, or "".
func (a *Applier) Code() string {
	d, ok := a.Active()
	if !ok {
		return ""
	}
	return d.Code
}

// DiscountFor returns what the active coupon takes off the cart, or zero if
// there is none or the cart no longer satisfies it.
func (a *Applier) DiscountFor(total decimal.Decimal, quantity int) decimal.Decimal {
	d, ok := a.Active()
	if !ok {
		return decimal.Zero
	}
	if !Validate(d, total, quantity, a.now()).Valid {
		return decimal.Zero
	}
	return Amount(d, total)
}
