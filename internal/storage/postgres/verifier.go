package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-cart/internal/domain/coupon"
)

const getDiscountSQL = `SELECT id, code, discount_type, value, min_subtotal, min_quantity,
	starts_at, ends_at, usage_limit, usage_count, active, description
	FROM discounts WHERE store_id = $1 AND UPPER(code) = UPPER($2)`

var _ coupon.Verifier = (*Verifier)(nil)

// Verifier implements coupon.Verifier against the discounts table. It
// returns the coupon as stored; eligibility is decided by coupon.Validate.
type Verifier struct {
	pool *pgxpool.Pool
}

// NewVerifier returns a Verifier that uses the given pool.
func NewVerifier(pool *pgxpool.Pool) *Verifier {
	return &Verifier{pool: pool}
}

// Verify looks the code up case-insensitively.
func (v *Verifier) Verify(ctx context.Context, storeID, code string) (*coupon.Discount, error) {
	rows, err := v.pool.Query(ctx, getDiscountSQL, storeID, code)
	if err != nil {
		return nil, errors.Wrapf(err, "get discount %q", code)
	}

	d, err := pgx.CollectExactlyOneRow(rows, scanDiscount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get discount %q", code)
	}
	return &d, nil
}

func scanDiscount(row pgx.CollectableRow) (coupon.Discount, error) {
	var (
		d            coupon.Discount
		discountType string
		minSubtotal  *decimal.Decimal
		minQuantity  *int32
		startsAt     *time.Time
		endsAt       *time.Time
		usageLimit   *int32
		usageCount   int32
		active       bool
	)
	if err := row.Scan(
		&d.ID, &d.Code, &discountType, &d.Value, &minSubtotal, &minQuantity,
		&startsAt, &endsAt, &usageLimit, &usageCount, &active, &d.Description,
	); err != nil {
		return d, err
	}
	d.DiscountType = coupon.DiscountType(discountType)
	d.MinSubtotal = minSubtotal
	d.MinQuantity = intPtr(minQuantity)
	d.StartsAt = startsAt
	d.EndsAt = endsAt
	d.UsageLimit = intPtr(usageLimit)
	d.UsageCount = int(usageCount)
	d.Active = &active
	return d, nil
}

func intPtr(v *int32) *int {
	if v == nil {
		return nil
	}
	i := int(*v)
	return &i
}
