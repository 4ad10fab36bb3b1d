package cart

import (
	"context"
	"sync"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/xenking/storefront-cart/internal/domain/bundle"
	"github.com/xenking/storefront-cart/internal/domain/product"
	"github.com/xenking/storefront-cart/internal/storage"
)

const meterName = "github.com/xenking/storefront-cart/internal/domain/cart"

// Store is the session's single shared cart. Every mutation is applied in
// memory first and then written through to the backend; a failed write is
// logged and leaves the store degraded until the next successful one.
// Changes written by other sessions are applied through Rehydrate.
//
// Store is safe for concurrent use.
type Store struct {
	backend storage.Backend
	lg      *zap.Logger
	mp      metric.MeterProvider

	mutations       metric.Int64Counter
	persistFailures metric.Int64Counter
	syncApplied     metric.Int64Counter

	mu        sync.Mutex
	state     State
	degraded  bool
	listeners []func(State)
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the logger.
func WithLogger(lg *zap.Logger) StoreOption {
	return func(s *Store) { s.lg = lg }
}

// WithMeterProvider sets the meter provider for the store counters.
func WithMeterProvider(mp metric.MeterProvider) StoreOption {
	return func(s *Store) { s.mp = mp }
}

// NewStore creates an empty store over backend. Call Load to restore the
// persisted cart.
func NewStore(backend storage.Backend, opts ...StoreOption) (*Store, error) {
	s := &Store{
		backend: backend,
		lg:      zap.NewNop(),
		mp:      noop.NewMeterProvider(),
		state:   Empty(),
	}
	for _, o := range opts {
		o(s)
	}

	meter := s.mp.Meter(meterName)
	var err error
	if s.mutations, err = meter.Int64Counter("cart.mutations",
		metric.WithDescription("Cart transitions applied, by action"),
	); err != nil {
		return nil, errors.Wrap(err, "create mutations counter")
	}
	if s.persistFailures, err = meter.Int64Counter("cart.persist.failures",
		metric.WithDescription("Cart writes the backend rejected"),
	); err != nil {
		return nil, errors.Wrap(err, "create persist failures counter")
	}
	if s.syncApplied, err = meter.Int64Counter("cart.sync.applied",
		metric.WithDescription("Carts replaced by a change from another session"),
	); err != nil {
		return nil, errors.Wrap(err, "create sync counter")
	}
	return s, nil
}

// Load replaces the in-memory cart with the persisted one. Read failures and
// malformed records are logged and leave an empty cart.
func (s *Store) Load(ctx context.Context) State {
	raw, err := s.backend.Get(ctx, storage.KeyCart)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		raw = nil
	case err != nil:
		s.lg.Warn("Read persisted cart failed", zap.Error(err))
		s.mu.Lock()
		s.degraded = true
		s.mu.Unlock()
		raw = nil
	}

	next, err := Rehydrate(raw)
	if err != nil {
		s.lg.Warn("Discard malformed persisted cart", zap.Error(err))
	}
	s.replace(next)
	return next
}

// State returns the current cart.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Degraded reports whether the last backend access failed, meaning the cart
// currently lives in memory only.
func (s *Store) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

// OnChange registers fn to be called with the new cart after every local
// mutation or applied sync. fn runs with the store unlocked.
func (s *Store) OnChange(fn func(State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// AddItem adds one unit of the product.
func (s *Store) AddItem(ctx context.Context, p product.Product, v *product.Variant) State {
	return s.mutate(ctx, "add_item", func(st State) State { return st.AddItem(p, v) })
}

// AddBundle adds one unit of the bundle with the composed entries.
func (s *Store) AddBundle(ctx context.Context, b bundle.Bundle, entries []bundle.Entry) State {
	return s.mutate(ctx, "add_bundle", func(st State) State { return st.AddBundle(b, entries) })
}

// RemoveItem drops the line with key.
func (s *Store) RemoveItem(ctx context.Context, key string) State {
	return s.mutate(ctx, "remove_item", func(st State) State { return st.RemoveItem(key) })
}

// UpdateQuantity sets a line's quantity, removing it at zero or below.
func (s *Store) UpdateQuantity(ctx context.Context, key string, quantity int) State {
	return s.mutate(ctx, "update_quantity", func(st State) State { return st.UpdateQuantity(key, quantity) })
}

// Clear empties the cart and erases the persisted record.
func (s *Store) Clear(ctx context.Context) State {
	s.mu.Lock()
	s.state = Empty()
	err := s.backend.Delete(ctx, storage.KeyCart)
	s.setPersisted(ctx, err)
	next, listeners := s.state, s.listeners
	s.mu.Unlock()

	s.mutations.Add(ctx, 1, metric.WithAttributes(attribute.String("action", "clear")))
	notify(listeners, next)
	return next
}

func (s *Store) mutate(ctx context.Context, action string, fn func(State) State) State {
	s.mu.Lock()
	s.state = fn(s.state)
	err := s.backend.Set(ctx, storage.KeyCart, Encode(s.state))
	s.setPersisted(ctx, err)
	next, listeners := s.state, s.listeners
	s.mu.Unlock()

	s.mutations.Add(ctx, 1, metric.WithAttributes(attribute.String("action", action)))
	notify(listeners, next)
	return next
}

// setPersisted records the outcome of a write. Must hold s.mu.
func (s *Store) setPersisted(ctx context.Context, err error) {
	if err == nil {
		s.degraded = false
		return
	}
	if !s.degraded {
		s.lg.Warn("Persist cart failed, keeping cart in memory", zap.Error(err))
	}
	s.degraded = true
	s.persistFailures.Add(ctx, 1)
}

func (s *Store) replace(next State) {
	s.mu.Lock()
	s.state = next
	listeners := s.listeners
	s.mu.Unlock()
	notify(listeners, next)
}

func notify(listeners []func(State), st State) {
	for _, fn := range listeners {
		fn(st)
	}
}

// Sync subscribes to cart changes made by other sessions and applies them
// in the background until ctx is done. Each change replaces the whole cart,
// last writer wins, and is not written back. The subscription is in place
// when Sync returns; the returned channel is closed once it ends.
func (s *Store) Sync(ctx context.Context) (<-chan struct{}, error) {
	changes, err := s.backend.Watch(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "watch")
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for c := range changes {
			if c.Key != storage.KeyCart {
				continue
			}
			s.apply(ctx, c)
		}
	}()
	return done, nil
}

func (s *Store) apply(ctx context.Context, c storage.Change) {
	next := Empty()
	if !c.Deleted() {
		var err error
		if next, err = Rehydrate(c.Value); err != nil {
			s.lg.Warn("Foreign cart malformed, resetting to empty",
				zap.String("origin", c.Origin),
				zap.Error(err),
			)
		}
	}
	s.replace(next)
	s.syncApplied.Add(ctx, 1)
	s.lg.Debug("Applied cart from another session",
		zap.String("origin", c.Origin),
		zap.Int("lines", len(next.Items)),
	)
}
