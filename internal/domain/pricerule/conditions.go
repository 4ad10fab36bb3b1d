package pricerule

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront-cart/internal/money"
)

// DecodeConditions parses a stored conditions payload for the given rule
// type. An empty or null payload yields zero Conditions, which for free
// shipping means unconditional. Unknown fields are ignored.
func DecodeConditions(t Type, raw []byte) (Conditions, error) {
	c := Conditions{Raw: raw}
	if len(raw) == 0 {
		return c, nil
	}
	d := jx.DecodeBytes(raw)
	if d.Next() == jx.Null {
		return c, nil
	}

	var err error
	switch t {
	case TypeVolume:
		var v VolumeConditions
		err = decodeVolume(d, &v)
		c.Volume = &v
	case TypeBogo:
		var b BogoConditions
		err = decodeBogo(d, &b)
		c.Bogo = &b
	case TypeFreeShipping:
		var f FreeShippingConditions
		err = decodeFreeShipping(d, &f)
		c.FreeShipping = &f
	default:
		err = d.Skip()
	}
	if err != nil {
		return Conditions{Raw: raw}, errors.Wrapf(err, "decode %s conditions", t)
	}
	return c, nil
}

func decodeVolume(d *jx.Decoder, v *VolumeConditions) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "discount_type":
			s, err := optStr(d)
			v.DiscountType = DiscountType(s)
			return err
		case "tier_mode":
			s, err := optStr(d)
			v.TierMode = TierMode(s)
			return err
		case "tiers":
			if d.Next() == jx.Null {
				return d.Null()
			}
			return d.Arr(func(d *jx.Decoder) error {
				var t Tier
				if err := d.Obj(func(d *jx.Decoder, key string) error {
					switch key {
					case "min_quantity":
						n, err := money.DecodeInt(d)
						t.MinQuantity = n
						return err
					case "discount_value":
						n, err := money.Decode(d)
						t.DiscountValue = n
						return err
					default:
						return d.Skip()
					}
				}); err != nil {
					return err
				}
				v.Tiers = append(v.Tiers, t)
				return nil
			})
		default:
			return d.Skip()
		}
	})
}

func decodeBogo(d *jx.Decoder, b *BogoConditions) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "buy_quantity":
			b.BuyQuantity, err = money.DecodeInt(d)
		case "get_quantity":
			b.GetQuantity, err = money.DecodeInt(d)
		case "get_discount_percentage":
			b.GetDiscountPercentage, err = money.Decode(d)
		case "bogo_mode":
			var s string
			s, err = optStr(d)
			b.Mode = BogoMode(s)
		default:
			err = d.Skip()
		}
		return err
	})
}

// optStr reads a string that may be null. Null reads as empty, which callers
// treat as the default.
func optStr(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

func decodeFreeShipping(d *jx.Decoder, f *FreeShippingConditions) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "min_subtotal":
			if d.Next() == jx.Null {
				return d.Null()
			}
			v, err := money.Decode(d)
			if err != nil {
				return err
			}
			f.MinSubtotal = &v
		case "min_quantity":
			if d.Next() == jx.Null {
				return d.Null()
			}
			v, err := money.DecodeInt(d)
			if err != nil {
				return err
			}
			f.MinQuantity = &v
		default:
			return d.Skip()
		}
		return nil
	})
}

// EncodeConditions renders typed conditions back to their stored shape. When
// no typed payload is set the raw payload is returned unchanged.
func EncodeConditions(c Conditions) []byte {
	var e jx.Encoder
	switch {
	case c.Volume != nil:
		e.Obj(func(e *jx.Encoder) {
			e.Field("discount_type", func(e *jx.Encoder) { e.Str(string(c.Volume.DiscountType)) })
			e.Field("tier_mode", func(e *jx.Encoder) { e.Str(string(c.Volume.TierMode)) })
			e.Field("tiers", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for _, t := range c.Volume.Tiers {
						e.Obj(func(e *jx.Encoder) {
							e.Field("min_quantity", func(e *jx.Encoder) { e.Int(t.MinQuantity) })
							e.Field("discount_value", func(e *jx.Encoder) { money.Encode(e, t.DiscountValue) })
						})
					}
				})
			})
		})
	case c.Bogo != nil:
		e.Obj(func(e *jx.Encoder) {
			e.Field("buy_quantity", func(e *jx.Encoder) { e.Int(c.Bogo.BuyQuantity) })
			e.Field("get_quantity", func(e *jx.Encoder) { e.Int(c.Bogo.GetQuantity) })
			e.Field("get_discount_percentage", func(e *jx.Encoder) { money.Encode(e, c.Bogo.GetDiscountPercentage) })
			if c.Bogo.Mode != "" {
				e.Field("bogo_mode", func(e *jx.Encoder) { e.Str(string(c.Bogo.Mode)) })
			}
		})
	case c.FreeShipping != nil:
		e.Obj(func(e *jx.Encoder) {
			if c.FreeShipping.MinSubtotal != nil {
				e.Field("min_subtotal", func(e *jx.Encoder) { money.Encode(e, *c.FreeShipping.MinSubtotal) })
			}
			if c.FreeShipping.MinQuantity != nil {
				e.Field("min_quantity", func(e *jx.Encoder) { e.Int(*c.FreeShipping.MinQuantity) })
			}
		})
	default:
		return c.Raw
	}
	return e.Bytes()
}
