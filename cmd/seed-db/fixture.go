package main

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-cart/internal/domain/bundle"
	"github.com/xenking/storefront-cart/internal/domain/coupon"
	"github.com/xenking/storefront-cart/internal/domain/pricerule"
	"github.com/xenking/storefront-cart/internal/domain/product"
	"github.com/xenking/storefront-cart/internal/money"
)

type collection struct {
	ID    string
	Title string
}

type bundleFixture struct {
	Bundle bundle.Bundle
	Rows   []bundle.Row
}

// fixture is a store catalog in the seed file format.
type fixture struct {
	Collections []collection
	Products    []product.Product
	Bundles     []bundleFixture
	Rules       []pricerule.Rule
	Discounts   []coupon.Discount
}

func decodeFixture(raw []byte) (*fixture, error) {
	f := &fixture{}
	d := jx.DecodeBytes(raw)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "collections":
			return d.Arr(func(d *jx.Decoder) error {
				var c collection
				err := d.Obj(func(d *jx.Decoder, key string) error {
					var err error
					switch key {
					case "id":
						c.ID, err = d.Str()
					case "title":
						c.Title, err = d.Str()
					default:
						err = d.Skip()
					}
					return err
				})
				f.Collections = append(f.Collections, c)
				return err
			})
		case "products":
			return d.Arr(func(d *jx.Decoder) error {
				p, err := decodeProduct(d)
				f.Products = append(f.Products, p)
				return err
			})
		case "bundles":
			return d.Arr(func(d *jx.Decoder) error {
				b, err := decodeBundle(d)
				f.Bundles = append(f.Bundles, b)
				return err
			})
		case "price_rules":
			return d.Arr(func(d *jx.Decoder) error {
				r, err := decodeRule(d)
				f.Rules = append(f.Rules, r)
				return err
			})
		case "discounts":
			return d.Arr(func(d *jx.Decoder) error {
				c, err := decodeDiscount(d)
				f.Discounts = append(f.Discounts, c)
				return err
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode fixture")
	}
	return f, nil
}

func decodeProduct(d *jx.Decoder) (product.Product, error) {
	var p product.Product
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			p.ID, err = d.Str()
		case "title":
			p.Title, err = d.Str()
		case "slug":
			p.Slug, err = d.Str()
		case "status":
			p.Status, err = d.Str()
		case "price":
			p.Price, err = money.Decode(d)
		case "compare_at_price":
			p.CompareAtPrice, err = optDecimal(d)
		case "images":
			p.Images, err = strs(d)
		case "collection_ids":
			p.CollectionIDs, err = strs(d)
		case "variants":
			err = d.Arr(func(d *jx.Decoder) error {
				v, err := decodeVariant(d)
				p.Variants = append(p.Variants, v)
				return err
			})
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	if err != nil {
		return p, errors.Wrapf(err, "product %q", p.ID)
	}
	return p, nil
}

func decodeVariant(d *jx.Decoder) (product.Variant, error) {
	var v product.Variant
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			v.ID, err = d.Str()
		case "title":
			v.Title, err = d.Str()
		case "sku":
			v.SKU, err = d.Str()
		case "price":
			v.Price, err = optDecimal(d)
		case "compare_at_price":
			v.CompareAtPrice, err = optDecimal(d)
		case "inventory_quantity":
			v.InventoryQuantity, err = optInt(d)
		case "available":
			var b bool
			if b, err = d.Bool(); err == nil {
				v.Available = &b
			}
		case "option_values":
			v.OptionValues = make(map[string]string)
			err = d.Obj(func(d *jx.Decoder, name string) error {
				s, err := d.Str()
				v.OptionValues[name] = s
				return err
			})
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	return v, err
}

func decodeBundle(d *jx.Decoder) (bundleFixture, error) {
	var bf bundleFixture
	b := &bf.Bundle
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			b.ID, err = d.Str()
		case "title":
			b.Title, err = d.Str()
		case "description":
			b.Description, err = d.Str()
		case "slug":
			b.Slug, err = d.Str()
		case "status":
			b.Status, err = d.Str()
		case "type":
			var s string
			s, err = d.Str()
			b.Type = bundle.Type(s)
		case "bundle_price":
			b.BundlePrice, err = optDecimal(d)
		case "discount_percentage":
			b.DiscountPercentage, err = optDecimal(d)
		case "compare_at_price":
			b.CompareAtPrice, err = optDecimal(d)
		case "source_collection_id":
			b.SourceCollectionID, err = d.Str()
		case "pick_quantity":
			b.PickQuantity, err = money.DecodeInt(d)
		case "images":
			b.Images, err = strs(d)
		case "variant_filter":
			b.VariantFilter = &bundle.VariantFilter{}
			err = d.Obj(func(d *jx.Decoder, key string) error {
				var err error
				switch key {
				case "option_name":
					b.VariantFilter.OptionName, err = d.Str()
				case "option_value":
					b.VariantFilter.OptionValue, err = d.Str()
				case "option_values":
					b.VariantFilter.OptionValues, err = strs(d)
				default:
					err = d.Skip()
				}
				return err
			})
		case "items":
			err = d.Arr(func(d *jx.Decoder) error {
				r := bundle.Row{Quantity: 1, SortOrder: len(bf.Rows)}
				err := d.Obj(func(d *jx.Decoder, key string) error {
					var err error
					switch key {
					case "id":
						r.ID, err = d.Str()
					case "product_id":
						r.ProductID, err = d.Str()
					case "variant_id":
						r.VariantID, err = d.Str()
					case "quantity":
						r.Quantity, err = money.DecodeInt(d)
					default:
						err = d.Skip()
					}
					return err
				})
				bf.Rows = append(bf.Rows, r)
				return err
			})
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	if err != nil {
		return bf, errors.Wrapf(err, "bundle %q", b.Slug)
	}
	return bf, nil
}

func decodeRule(d *jx.Decoder) (pricerule.Rule, error) {
	var (
		r          pricerule.Rule
		conditions []byte
	)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			r.ID, err = d.Str()
		case "title":
			r.Title, err = d.Str()
		case "description":
			r.Description, err = d.Str()
		case "type":
			var s string
			s, err = d.Str()
			r.Type = pricerule.Type(s)
		case "applies_to":
			var s string
			s, err = d.Str()
			r.AppliesTo = pricerule.Scope(s)
		case "product_ids":
			r.ProductIDs, err = strs(d)
		case "collection_ids":
			r.CollectionIDs, err = strs(d)
		case "priority":
			r.Priority, err = optInt(d)
		case "active":
			var b bool
			if b, err = d.Bool(); err == nil {
				r.Active = &b
			}
		case "starts_at":
			r.StartsAt, err = optTime(d)
		case "ends_at":
			r.EndsAt, err = optTime(d)
		case "conditions":
			var raw jx.Raw
			raw, err = d.Raw()
			conditions = append([]byte(nil), raw...)
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	if err != nil {
		return r, errors.Wrapf(err, "price rule %q", r.ID)
	}
	// Conditions depend on the type, which may follow them.
	if r.Conditions, err = pricerule.DecodeConditions(r.Type, conditions); err != nil {
		return r, errors.Wrapf(err, "price rule %q", r.ID)
	}
	return r, nil
}

func decodeDiscount(d *jx.Decoder) (coupon.Discount, error) {
	var c coupon.Discount
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			c.ID, err = d.Str()
		case "code":
			c.Code, err = d.Str()
		case "discount_type":
			var s string
			s, err = d.Str()
			c.DiscountType = coupon.DiscountType(s)
		case "value":
			c.Value, err = money.Decode(d)
		case "min_subtotal":
			c.MinSubtotal, err = optDecimal(d)
		case "min_quantity":
			c.MinQuantity, err = optInt(d)
		case "usage_limit":
			c.UsageLimit, err = optInt(d)
		case "starts_at":
			c.StartsAt, err = optTime(d)
		case "ends_at":
			c.EndsAt, err = optTime(d)
		case "active":
			var b bool
			if b, err = d.Bool(); err == nil {
				c.Active = &b
			}
		case "description":
			c.Description, err = d.Str()
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	if err != nil {
		return c, errors.Wrapf(err, "discount %q", c.Code)
	}
	return c, nil
}

func strs(d *jx.Decoder) ([]string, error) {
	var out []string
	err := d.Arr(func(d *jx.Decoder) error {
		s, err := d.Str()
		out = append(out, s)
		return err
	})
	return out, err
}

func optDecimal(d *jx.Decoder) (*decimal.Decimal, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	v, err := money.Decode(d)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func optInt(d *jx.Decoder) (*int, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	v, err := money.DecodeInt(d)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func optTime(d *jx.Decoder) (*time.Time, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	s, err := d.Str()
	if err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
