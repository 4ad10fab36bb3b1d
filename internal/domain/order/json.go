package order

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront-cart/internal/domain/pricerule"
	"github.com/xenking/storefront-cart/internal/money"
)

// EncodePayload writes the checkout-create request body.
func EncodePayload(e *jx.Encoder, p Payload) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("store_id", func(e *jx.Encoder) { e.Str(p.StoreID) })
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, it := range p.Items {
					e.Obj(func(e *jx.Encoder) {
						e.Field("product_id", func(e *jx.Encoder) { e.Str(it.ProductID) })
						if it.VariantID != "" {
							e.Field("variant_id", func(e *jx.Encoder) { e.Str(it.VariantID) })
						}
						e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
					})
				}
			})
		})
		if p.DiscountCode != "" {
			e.Field("discount_code", func(e *jx.Encoder) { e.Str(p.DiscountCode) })
		}
		e.Field("currency_code", func(e *jx.Encoder) { e.Str(p.CurrencyCode) })
		if c := p.Customer; c != nil {
			e.Field("customer", func(e *jx.Encoder) {
				e.Obj(func(e *jx.Encoder) {
					e.Field("email", func(e *jx.Encoder) { e.Str(c.Email) })
					optStr(e, "first_name", c.FirstName)
					optStr(e, "last_name", c.LastName)
					optStr(e, "phone", c.Phone)
				})
			})
		}
		encodeAddress(e, "shipping_address", p.ShippingAddress)
		encodeAddress(e, "billing_address", p.BillingAddress)
		optStr(e, "notes", p.Notes)
		optStr(e, "idempotency_key", p.IdempotencyKey)
	})
}

func encodeAddress(e *jx.Encoder, name string, a *Address) {
	if a == nil {
		return
	}
	e.Field(name, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("line1", func(e *jx.Encoder) { e.Str(a.Line1) })
			optStr(e, "line2", a.Line2)
			e.Field("city", func(e *jx.Encoder) { e.Str(a.City) })
			optStr(e, "state", a.State)
			e.Field("postal_code", func(e *jx.Encoder) { e.Str(a.PostalCode) })
			e.Field("country", func(e *jx.Encoder) { e.Str(a.Country) })
		})
	})
}

func optStr(e *jx.Encoder, name, v string) {
	if v == "" {
		return
	}
	e.Field(name, func(e *jx.Encoder) { e.Str(v) })
}

// EncodeResult writes a created order in the same shape DecodeResult reads.
func EncodeResult(e *jx.Encoder, r Result) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("order_id", func(e *jx.Encoder) { e.Str(r.OrderID) })
		optStr(e, "order_number", r.OrderNumber)
		optStr(e, "checkout_token", r.CheckoutToken)
		optStr(e, "status", r.Status)
		optStr(e, "currency_code", r.CurrencyCode)
		e.Field("subtotal", func(e *jx.Encoder) { money.Encode(e, r.Subtotal) })
		e.Field("tax_amount", func(e *jx.Encoder) { money.Encode(e, r.TaxAmount) })
		e.Field("shipping_amount", func(e *jx.Encoder) { money.Encode(e, r.ShippingAmount) })
		e.Field("discount_amount", func(e *jx.Encoder) { money.Encode(e, r.DiscountAmount) })
		e.Field("total_amount", func(e *jx.Encoder) { money.Encode(e, r.TotalAmount) })
		if len(r.AppliedRules) > 0 {
			e.Field("applied_rules", func(e *jx.Encoder) { encodeRules(e, r.AppliedRules) })
		}
		if len(r.UnavailableItems) > 0 {
			e.Field("unavailable_items", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for _, id := range r.UnavailableItems {
						e.Str(id)
					}
				})
			})
		}
	})
}

func encodeRules(e *jx.Encoder, rules []pricerule.AppliedRule) {
	e.Arr(func(e *jx.Encoder) {
		for _, r := range rules {
			e.Obj(func(e *jx.Encoder) {
				e.Field("rule_id", func(e *jx.Encoder) { e.Str(r.RuleID) })
				e.Field("title", func(e *jx.Encoder) { e.Str(r.Title) })
				e.Field("rule_type", func(e *jx.Encoder) { e.Str(string(r.Type)) })
				e.Field("discount", func(e *jx.Encoder) { money.Encode(e, r.Discount) })
			})
		}
	})
}

// DecodeResult reads a checkout-create response. Applied rules are taken
// from the top level or from the embedded order, whichever is present.
func DecodeResult(d *jx.Decoder) (*Result, error) {
	r := &Result{}
	err := d.Obj(func(d *jx.Decoder, key string) error {
		if d.Next() == jx.Null {
			return d.Null()
		}
		var err error
		switch key {
		case "order_id":
			r.OrderID, err = d.Str()
		case "order_number":
			r.OrderNumber, err = d.Str()
		case "checkout_token":
			r.CheckoutToken, err = d.Str()
		case "status":
			r.Status, err = d.Str()
		case "currency_code":
			r.CurrencyCode, err = d.Str()
		case "subtotal":
			r.Subtotal, err = money.Decode(d)
		case "tax_amount":
			r.TaxAmount, err = money.Decode(d)
		case "shipping_amount":
			r.ShippingAmount, err = money.Decode(d)
		case "discount_amount":
			r.DiscountAmount, err = money.Decode(d)
		case "total_amount":
			r.TotalAmount, err = money.Decode(d)
		case "applied_rules":
			r.AppliedRules, err = decodeRules(d)
		case "unavailable_items":
			r.UnavailableItems, err = decodeUnavailable(d)
		case "order":
			err = d.Obj(func(d *jx.Decoder, key string) error {
				switch {
				case key == "id" && r.OrderID == "" && d.Next() == jx.String:
					id, err := d.Str()
					r.OrderID = id
					return err
				case key == "applied_rules" && r.AppliedRules == nil && d.Next() == jx.Array:
					rules, err := decodeRules(d)
					r.AppliedRules = rules
					return err
				default:
					return d.Skip()
				}
			})
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode order result")
	}
	if r.OrderID == "" {
		return nil, errors.New("order result without order_id")
	}
	return r, nil
}

func decodeRules(d *jx.Decoder) ([]pricerule.AppliedRule, error) {
	var out []pricerule.AppliedRule
	err := d.Arr(func(d *jx.Decoder) error {
		var r pricerule.AppliedRule
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			if d.Next() == jx.Null {
				return d.Null()
			}
			var err error
			switch key {
			case "rule_id":
				r.RuleID, err = d.Str()
			case "title":
				r.Title, err = d.Str()
			case "rule_type":
				var s string
				s, err = d.Str()
				r.Type = pricerule.Type(s)
			case "discount":
				r.Discount, err = money.Decode(d)
			default:
				err = d.Skip()
			}
			return err
		}); err != nil {
			return err
		}
		out = append(out, r)
		return nil
	})
	return out, err
}

// decodeUnavailable accepts plain ids or objects carrying product_id.
func decodeUnavailable(d *jx.Decoder) ([]string, error) {
	var out []string
	err := d.Arr(func(d *jx.Decoder) error {
		switch d.Next() {
		case jx.String:
			s, err := d.Str()
			out = append(out, s)
			return err
		case jx.Object:
			return d.Obj(func(d *jx.Decoder, key string) error {
				if key != "product_id" || d.Next() != jx.String {
					return d.Skip()
				}
				s, err := d.Str()
				out = append(out, s)
				return err
			})
		default:
			return d.Skip()
		}
	})
	return out, err
}
