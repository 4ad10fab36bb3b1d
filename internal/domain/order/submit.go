package order

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/storefront-cart/internal/domain/cart"
	"github.com/xenking/storefront-cart/internal/storage"
)

const tracerName = "github.com/xenking/storefront-cart/internal/domain/order"

// CouponHolder is the active coupon as seen by checkout.
type CouponHolder interface {
	Code() string
	Remove(ctx context.Context)
}

// Details is the buyer input collected on the checkout page.
type Details struct {
	Customer        *Customer
	ShippingAddress *Address
	BillingAddress  *Address
	Notes           string
}

// Submitter places the session's cart as an order. On success the cart and
// the coupon are cleared and the order is kept in storage for the
// confirmation page.
type Submitter struct {
	service  Service
	store    *cart.Store
	backend  storage.Backend
	coupons  CouponHolder
	storeID  string
	currency string

	validator *Validator
	tracer    trace.Tracer
	newKey    func() string
}

// SubmitterOption configures a Submitter.
type SubmitterOption func(*Submitter)

// WithCoupons attaches the coupon to submissions and removes it after a
// successful one.
func WithCoupons(c CouponHolder) SubmitterOption {
	return func(s *Submitter) { s.coupons = c }
}

// WithTracerProvider sets the tracer provider.
func WithTracerProvider(tp trace.TracerProvider) SubmitterOption {
	return func(s *Submitter) { s.tracer = tp.Tracer(tracerName) }
}

// NewSubmitter creates a Submitter.
func NewSubmitter(
	service Service,
	store *cart.Store,
	backend storage.Backend,
	storeID, currency string,
	opts ...SubmitterOption,
) *Submitter {
	s := &Submitter{
		service:   service,
		store:     store,
		backend:   backend,
		storeID:   storeID,
		currency:  currency,
		validator: NewValidator(),
		tracer:    noop.NewTracerProvider().Tracer(tracerName),
		newKey:    func() string { return uuid.New().String() },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Payload builds the request for the current cart without sending it.
func (s *Submitter) Payload(det Details) (Payload, error) {
	return s.payloadFor(s.store.State(), det)
}

func (s *Submitter) payloadFor(st cart.State, det Details) (Payload, error) {
	if st.IsEmpty() {
		return Payload{}, ErrEmptyCart
	}
	p := Payload{
		StoreID:         s.storeID,
		Items:           Flatten(st.Items),
		CurrencyCode:    s.currency,
		Customer:        det.Customer,
		ShippingAddress: det.ShippingAddress,
		BillingAddress:  det.BillingAddress,
		Notes:           det.Notes,
		IdempotencyKey:  s.newKey(),
	}
	if s.coupons != nil {
		p.DiscountCode = s.coupons.Code()
	}
	if err := s.validator.Validate(p); err != nil {
		return Payload{}, err
	}
	return p, nil
}

// Submit creates the order. The cart is left untouched when the service
// fails, so the buyer can retry.
func (s *Submitter) Submit(ctx context.Context, det Details) (_ *Result, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.Submit")
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()
	lg := zctx.From(ctx)

	st := s.store.State()
	p, err := s.payloadFor(st, det)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("order.items", len(p.Items)),
		attribute.Bool("order.coupon", p.DiscountCode != ""),
	)

	s.save(ctx, storage.KeyCheckoutCart, cart.Encode(st))

	res, err := s.service.CreateOrder(ctx, p)
	if err != nil {
		return nil, errors.Wrap(err, "create order")
	}
	span.SetAttributes(attribute.String("order.id", res.OrderID))

	e := jx.GetEncoder()
	EncodeResult(e, *res)
	s.save(ctx, storage.KeyCheckoutOrder, append([]byte(nil), e.Bytes()...))
	jx.PutEncoder(e)
	s.save(ctx, storage.KeyCheckoutOrderID, []byte(res.OrderID))

	s.store.Clear(ctx)
	if s.coupons != nil {
		s.coupons.Remove(ctx)
	}
	lg.Info("Order created",
		zap.String("order_id", res.OrderID),
		zap.String("order_number", res.OrderNumber),
		zap.Int("items", len(p.Items)),
	)
	return res, nil
}

// save writes a checkout snapshot. Failures are logged and ignored.
func (s *Submitter) save(ctx context.Context, key string, value []byte) {
	if err := s.backend.Set(ctx, key, value); err != nil {
		zctx.From(ctx).Warn("Save checkout snapshot failed", zap.String("key", key), zap.Error(err))
	}
}
