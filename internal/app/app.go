// Package app loads the cart configuration and wires a cart session: the
// persisted cart, the coupon applier, the rule catalog and checkout.
package app

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/extra/redisotel/v9"
	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/storefront-cart/internal/domain/bundle"
	"github.com/xenking/storefront-cart/internal/domain/cart"
	"github.com/xenking/storefront-cart/internal/domain/catalog"
	"github.com/xenking/storefront-cart/internal/domain/coupon"
	"github.com/xenking/storefront-cart/internal/domain/order"
	"github.com/xenking/storefront-cart/internal/domain/pricerule"
	"github.com/xenking/storefront-cart/internal/domain/product"
	"github.com/xenking/storefront-cart/internal/edge"
	"github.com/xenking/storefront-cart/internal/money"
	"github.com/xenking/storefront-cart/internal/storage"
	"github.com/xenking/storefront-cart/internal/storage/memory"
	"github.com/xenking/storefront-cart/internal/storage/postgres"
	"github.com/xenking/storefront-cart/internal/storage/redis"
	"github.com/xenking/storefront-cart/pkg/ratelimit"
)

// ErrNoCatalog is returned by catalog lookups when no database is configured.
var ErrNoCatalog = errors.New("catalog is not configured")

// ErrNoCheckout is returned when neither coupons nor orders can be sent.
var ErrNoCheckout = errors.New("edge functions are not configured")

// Session is one buyer's cart with everything needed to price and place it.
// Coupons, Catalog and Submitter are nil when their backing service is not
// configured.
type Session struct {
	Config    *Config
	Backend   storage.Backend
	Cart      *cart.Store
	Coupons   *coupon.Applier
	Catalog   catalog.Catalog
	Bundles   *bundle.Loader
	Submitter *order.Submitter
	Formatter *money.Formatter

	lg      *zap.Logger
	rules   *pricerule.Evaluator
	closers []func()
}

// Option configures Open.
type Option func(*options)

type options struct {
	mp      metric.MeterProvider
	tp      trace.TracerProvider
	backend storage.Backend
	catalog catalog.Catalog
	service order.Service
	coupons coupon.Verifier
}

// WithTelemetry sets the meter and tracer providers.
func WithTelemetry(mp metric.MeterProvider, tp trace.TracerProvider) Option {
	return func(o *options) {
		o.mp = mp
		o.tp = tp
	}
}

// WithBackend uses b instead of the configured storage driver.
func WithBackend(b storage.Backend) Option {
	return func(o *options) { o.backend = b }
}

// WithCatalog uses c instead of the configured database.
func WithCatalog(c catalog.Catalog) Option {
	return func(o *options) { o.catalog = c }
}

// WithServices uses the given checkout and coupon services instead of the
// configured edge functions.
func WithServices(service order.Service, coupons coupon.Verifier) Option {
	return func(o *options) {
		o.service = service
		o.coupons = coupons
	}
}

// Open wires a session and loads the persisted cart. Close releases it.
func Open(ctx context.Context, lg *zap.Logger, cfg *Config, opts ...Option) (_ *Session, rerr error) {
	o := options{
		mp: metricnoop.NewMeterProvider(),
		tp: tracenoop.NewTracerProvider(),
	}
	for _, fn := range opts {
		fn(&o)
	}

	s := &Session{
		Config:    cfg,
		Formatter: money.NewFormatter(cfg.Currency, cfg.Locale),
		lg:        lg,
		rules:     pricerule.NewEvaluator(nil),
	}
	defer func() {
		if rerr != nil {
			s.Close()
		}
	}()

	lg.Debug("Opening session",
		zap.String("store_id", cfg.StoreID),
		zap.String("session", cfg.Session),
		zap.String("storage", cfg.Storage.Driver),
	)

	backend, err := s.openBackend(ctx, cfg, o)
	if err != nil {
		return nil, err
	}
	s.Backend = backend

	s.Cart, err = cart.NewStore(backend,
		cart.WithLogger(lg.Named("cart")),
		cart.WithMeterProvider(o.mp),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create cart store")
	}
	s.Cart.Load(ctx)

	var verifier coupon.Verifier
	switch {
	case o.service != nil || o.coupons != nil:
		verifier = o.coupons
	case cfg.Edge.URL != "":
		client := edge.New(cfg.Edge.URL, cfg.Edge.Key,
			edge.WithTimeout(cfg.Edge.Timeout),
			edge.WithLogger(lg.Named("edge")),
			edge.WithTracerProvider(o.tp),
		)
		verifier = client
		o.service = client
	}

	s.Catalog = o.catalog
	if s.Catalog == nil && cfg.DatabaseURL != "" {
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.WithMaxConns(4))
		if err != nil {
			return nil, errors.Wrap(err, "create db pool")
		}
		s.closers = append(s.closers, pool.Close)
		s.Catalog = postgres.NewCatalog(pool, postgres.WithLogger(lg.Named("catalog")))
		if verifier == nil {
			verifier = postgres.NewVerifier(pool)
		}
	}
	if s.Catalog != nil {
		s.Bundles = bundle.NewLoader(s.Catalog, lg.Named("bundle"))
		s.ReloadRules(ctx)
	}

	if verifier != nil {
		if s.Coupons, err = s.openCoupons(ctx, cfg, verifier, backend, o.mp); err != nil {
			return nil, err
		}
	}

	if o.service != nil {
		subOpts := []order.SubmitterOption{order.WithTracerProvider(o.tp)}
		if s.Coupons != nil {
			subOpts = append(subOpts, order.WithCoupons(s.Coupons))
		}
		s.Submitter = order.NewSubmitter(o.service, s.Cart, backend, cfg.StoreID, cfg.Currency, subOpts...)
	}

	return s, nil
}

func (s *Session) openBackend(ctx context.Context, cfg *Config, o options) (storage.Backend, error) {
	if o.backend != nil {
		return o.backend, nil
	}
	switch cfg.Storage.Driver {
	case StorageRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Storage.Redis.Addr,
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		})
		s.closers = append(s.closers, func() { _ = client.Close() })
		if err := redisotel.InstrumentTracing(client, redisotel.WithTracerProvider(o.tp)); err != nil {
			return nil, errors.Wrap(err, "instrument redis tracing")
		}
		if err := redisotel.InstrumentMetrics(client, redisotel.WithMeterProvider(o.mp)); err != nil {
			return nil, errors.Wrap(err, "instrument redis metrics")
		}
		if err := client.Ping(ctx).Err(); err != nil {
			// The cart still works in memory; persistence failures are
			// reported through Store.Degraded.
			s.lg.Warn("Redis unavailable", zap.String("addr", cfg.Storage.Redis.Addr), zap.Error(err))
		}
		return redis.New(client,
			redis.WithPrefix(cfg.redisPrefix()),
			redis.WithLogger(s.lg.Named("redis")),
		), nil
	default:
		return memory.NewHub().Tab(), nil
	}
}

func (s *Session) openCoupons(
	ctx context.Context,
	cfg *Config,
	verifier coupon.Verifier,
	backend storage.Backend,
	mp metric.MeterProvider,
) (*coupon.Applier, error) {
	copts := []coupon.Option{
		coupon.WithLogger(s.lg.Named("coupon")),
		coupon.WithMeterProvider(mp),
	}
	if path := cfg.Coupon.KnownCodes; path != "" {
		known, err := coupon.LoadKnownCodes(path)
		if err != nil {
			s.lg.Warn("Known coupon codes unavailable", zap.String("path", path), zap.Error(err))
		} else {
			copts = append(copts, coupon.WithKnownCodes(known))
		}
	}
	limit := ratelimit.Config{Max: cfg.Coupon.MaxAttempts, Window: cfg.Coupon.Window}
	if limit.Enabled() {
		limiter := ratelimit.New(limit)
		ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		s.closers = append(s.closers, cancel)
		limiter.StartCleanup(ctx)
		copts = append(copts, coupon.WithLimiter(limiter, cfg.StoreID+":"+cfg.Session))
	}

	a, err := coupon.NewApplier(verifier, backend, cfg.StoreID, copts...)
	if err != nil {
		return nil, errors.Wrap(err, "create coupon applier")
	}
	return a, nil
}

// ReloadRules fetches the store's price rules. On failure the previous rules
// stay in effect.
func (s *Session) ReloadRules(ctx context.Context) {
	if s.Catalog == nil {
		return
	}
	rules, err := s.Catalog.FetchPriceRules(ctx, s.Config.StoreID)
	if err != nil {
		s.lg.Warn("Fetch price rules failed", zap.Error(err))
		return
	}
	s.rules = pricerule.NewEvaluator(rules)
}

// Rules returns the current rule catalog.
func (s *Session) Rules() *pricerule.Evaluator { return s.rules }

// Quote prices the current cart.
func (s *Session) Quote() order.Quote {
	var coupons order.CouponDiscounter
	if s.Coupons != nil {
		coupons = s.Coupons
	}
	return order.NewQuote(s.Cart.State(), s.rules, coupons, s.Config.Currency)
}

// ApplyCoupon validates code against the current cart.
func (s *Session) ApplyCoupon(ctx context.Context, code string) (coupon.Result, error) {
	if s.Coupons == nil {
		return coupon.Result{}, ErrNoCheckout
	}
	st := s.Cart.State()
	return s.Coupons.Apply(ctx, code, st.Total, st.TotalQuantity())
}

// AddProduct adds quantity units of a catalog product. An empty variantID
// adds the product at its base price.
func (s *Session) AddProduct(ctx context.Context, productID, variantID string, quantity int) (cart.State, error) {
	if s.Catalog == nil {
		return cart.State{}, ErrNoCatalog
	}
	if quantity <= 0 {
		return cart.State{}, errors.Errorf("invalid quantity %d", quantity)
	}
	p, err := s.Catalog.FetchProduct(ctx, productID)
	if err != nil {
		return cart.State{}, errors.Wrapf(err, "fetch product %q", productID)
	}
	var v *product.Variant
	if variantID != "" {
		found, ok := p.Variant(variantID)
		if !ok {
			return cart.State{}, errors.Errorf("product %q has no variant %q", productID, variantID)
		}
		v = found
	}

	st := s.Cart.AddItem(ctx, *p, v)
	if quantity > 1 {
		key := cart.ProductKey(p.ID, v)
		if it, ok := st.Find(key); ok {
			st = s.Cart.UpdateQuantity(ctx, key, it.Qty()+quantity-1)
		}
	}
	return st, nil
}

// AddBundle adds one unit of the bundle with the given slug. Collection-based
// bundles need exactly the bundle's pick quantity of distinct product ids in
// picks; fixed bundles ignore picks.
func (s *Session) AddBundle(ctx context.Context, slug string, picks []string) (cart.State, error) {
	if s.Bundles == nil {
		return cart.State{}, ErrNoCatalog
	}
	page, err := s.Bundles.Load(ctx, slug)
	if err != nil {
		return cart.State{}, errors.Wrapf(err, "load bundle %q", slug)
	}

	entries := page.Entries
	if !page.Bundle.IsFixed() {
		if entries, err = bundle.ComposePicks(page.Bundle, page.Candidates, picks); err != nil {
			return cart.State{}, errors.Wrapf(err, "bundle %q", slug)
		}
	}
	if len(entries) == 0 {
		return cart.State{}, errors.Errorf("bundle %q has no products", slug)
	}
	return s.Cart.AddBundle(ctx, page.Bundle, entries), nil
}

// RestoreCoupon re-applies the coupon accepted in an earlier session, if
// any, against the current cart.
func (s *Session) RestoreCoupon(ctx context.Context) (coupon.Result, error) {
	if s.Coupons == nil {
		return coupon.Result{}, nil
	}
	st := s.Cart.State()
	return s.Coupons.Restore(ctx, st.Total, st.TotalQuantity())
}

// Close releases the session's connections.
func (s *Session) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
