package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage applies a percentage-based discount to the subtotal.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed applies a fixed monetary discount capped at the subtotal.
	DiscountFixed DiscountType = "fixed"
)

var (
	// ErrNotFound is returned by a Verifier when the code does not exist.
	ErrNotFound = errors.New("coupon not found")
	// ErrUnknownCode is reported when the local known-code filter rules the
	// code out before any network call.
	ErrUnknownCode = errors.New("coupon code unknown")
	// ErrStale is returned when a newer Apply or a Remove superseded the call
	// before its verification resolved.
	ErrStale = errors.New("coupon verification superseded")
	// ErrThrottled is returned when too many codes were tried recently.
	ErrThrottled = errors.New("too many coupon attempts")
)

// Discount is a coupon as returned by the discount service.
type Discount struct {
	ID           string
	Code         string
	DiscountType DiscountType
	Value        decimal.Decimal
	MinSubtotal  *decimal.Decimal
	MinQuantity  *int
	StartsAt     *time.Time
	EndsAt       *time.Time
	// UsageLimit is nil for unlimited coupons.
	UsageLimit  *int
	UsageCount  int
	Active      *bool
	Description string
}

// Verifier looks a code up in the store's discount service.
type Verifier interface {
	Verify(ctx context.Context, storeID, code string) (*Discount, error)
}

// KnownCodes is a probabilistic set of codes that may exist. A negative
// answer is definitive.
type KnownCodes interface {
	TestString(code string) bool
}
