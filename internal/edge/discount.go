package edge

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront-cart/internal/domain/coupon"
	"github.com/xenking/storefront-cart/internal/money"
)

const verifyDiscountFn = "verify-discount"

// timeLayouts covers RFC 3339 and the Postgres text form of timestamptz.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02",
}

var _ coupon.Verifier = (*Client)(nil)

// Verify looks a coupon code up. A reply without a discount, or a 404, is
// coupon.ErrNotFound.
func (c *Client) Verify(ctx context.Context, storeID, code string) (*coupon.Discount, error) {
	var (
		found *coupon.Discount
		msg   string
	)
	err := c.call(ctx, verifyDiscountFn, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("store_id", func(e *jx.Encoder) { e.Str(storeID) })
			e.Field("code", func(e *jx.Encoder) { e.Str(code) })
		})
	}, func(d *jx.Decoder) error {
		return d.Obj(func(d *jx.Decoder, key string) error {
			switch {
			case key == "discount" && d.Next() == jx.Object:
				disc, err := decodeDiscount(d)
				found = disc
				return err
			case key == "error" && d.Next() == jx.String:
				s, err := d.Str()
				msg = s
				return err
			default:
				return d.Skip()
			}
		})
	})

	var edgeErr *Error
	switch {
	case errors.As(err, &edgeErr) && edgeErr.Status == http.StatusNotFound:
		return nil, errors.Wrap(coupon.ErrNotFound, edgeErr.Message)
	case err != nil:
		return nil, err
	case found == nil:
		if msg != "" {
			return nil, errors.Wrap(coupon.ErrNotFound, msg)
		}
		return nil, coupon.ErrNotFound
	}
	return found, nil
}

func decodeDiscount(d *jx.Decoder) (*coupon.Discount, error) {
	disc := &coupon.Discount{}
	err := d.Obj(func(d *jx.Decoder, key string) error {
		if d.Next() == jx.Null {
			return d.Null()
		}
		var err error
		switch key {
		case "id":
			disc.ID, err = decodeID(d)
		case "code":
			disc.Code, err = d.Str()
		case "discount_type":
			var s string
			s, err = d.Str()
			disc.DiscountType = coupon.DiscountType(s)
		case "value":
			disc.Value, err = money.Decode(d)
		case "min_subtotal":
			v, derr := money.Decode(d)
			disc.MinSubtotal, err = &v, derr
		case "min_quantity":
			v, derr := money.DecodeInt(d)
			disc.MinQuantity, err = &v, derr
		case "usage_limit":
			v, derr := money.DecodeInt(d)
			disc.UsageLimit, err = &v, derr
		case "usage_count":
			disc.UsageCount, err = money.DecodeInt(d)
		case "starts_at":
			disc.StartsAt, err = decodeTime(d)
		case "ends_at":
			disc.EndsAt, err = decodeTime(d)
		case "active":
			v, derr := d.Bool()
			disc.Active, err = &v, derr
		case "description":
			disc.Description, err = d.Str()
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode discount")
	}
	return disc, nil
}

// decodeID accepts string and numeric ids.
func decodeID(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Number {
		n, err := d.Num()
		return n.String(), err
	}
	return d.Str()
}

func decodeTime(d *jx.Decoder) (*time.Time, error) {
	s, err := d.Str()
	if err != nil {
		return nil, err
	}
	if s == "" {
		return nil, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, errors.Errorf("parse time %q", s)
}
