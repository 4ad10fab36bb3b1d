package cart

import (
	"maps"
	"slices"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-cart/internal/domain/bundle"
	"github.com/xenking/storefront-cart/internal/domain/product"
	"github.com/xenking/storefront-cart/internal/money"
)

// Encode serializes the cart into its persisted record:
// {"items":[...],"total":n}.
func Encode(s State) []byte {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.Obj(func(e *jx.Encoder) {
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, it := range s.Items {
					encodeItem(e, it)
				}
			})
		})
		e.Field("total", func(e *jx.Encoder) { money.Encode(e, s.Total) })
	})
	out := make([]byte, len(e.Bytes()))
	copy(out, e.Bytes())
	return out
}

// Rehydrate parses a persisted record. Entries without a type tag are read
// as product lines, lines with the same key are merged, non-positive
// quantities are dropped, and the stored total is ignored in favour of one
// recomputed from the lines. Malformed input yields an empty cart alongside
// the error.
func Rehydrate(raw []byte) (State, error) {
	if len(raw) == 0 {
		return Empty(), nil
	}
	var items []Item
	d := jx.DecodeBytes(raw)
	if d.Next() == jx.Null {
		return Empty(), nil
	}
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		if key != "items" {
			return d.Skip()
		}
		if d.Next() == jx.Null {
			return d.Null()
		}
		return d.Arr(func(d *jx.Decoder) error {
			it, err := decodeItem(d)
			if err != nil {
				return err
			}
			if it != nil {
				items = append(items, it)
			}
			return nil
		})
	}); err != nil {
		return Empty(), errors.Wrap(err, "decode cart")
	}

	s := Empty()
	for _, it := range items {
		s = s.add(it)
	}
	return s, nil
}

func encodeItem(e *jx.Encoder, it Item) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("type", func(e *jx.Encoder) { e.Str(string(it.Type())) })
		e.Field("key", func(e *jx.Encoder) { e.Str(it.Key()) })
		switch it := it.(type) {
		case ProductItem:
			e.Field("product", func(e *jx.Encoder) { encodeProduct(e, it.Product) })
			if it.Variant != nil {
				e.Field("variant", func(e *jx.Encoder) { encodeVariant(e, *it.Variant) })
			}
		case BundleItem:
			e.Field("bundle", func(e *jx.Encoder) { encodeBundle(e, it.Bundle) })
			e.Field("bundleItems", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for _, entry := range it.Items {
						encodeEntry(e, entry)
					}
				})
			})
		}
		e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Qty()) })
	})
}

// decodeItem returns nil for lines that cannot be placed in a cart: unknown
// type tags, missing product or bundle, non-positive quantity.
func decodeItem(d *jx.Decoder) (Item, error) {
	var (
		typ      = TypeProduct
		p        *product.Product
		v        *product.Variant
		b        *bundle.Bundle
		entries  []bundle.Entry
		quantity int
	)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		if d.Next() == jx.Null {
			return d.Null()
		}
		switch key {
		case "type":
			s, err := d.Str()
			if s != "" {
				typ = ItemType(s)
			}
			return err
		case "product":
			got, err := decodeProduct(d)
			p = &got
			return err
		case "variant":
			got, err := decodeVariant(d)
			v = &got
			return err
		case "bundle":
			got, err := decodeBundle(d)
			b = &got
			return err
		case "bundleItems":
			return d.Arr(func(d *jx.Decoder) error {
				entry, err := decodeEntry(d)
				if err != nil {
					return err
				}
				if entry.Product.ID != "" {
					entries = append(entries, entry)
				}
				return nil
			})
		case "quantity":
			n, err := money.DecodeInt(d)
			quantity = n
			return err
		default:
			return d.Skip()
		}
	}); err != nil {
		return nil, err
	}
	if quantity <= 0 {
		return nil, nil
	}

	switch typ {
	case TypeProduct:
		if p == nil || p.ID == "" {
			return nil, nil
		}
		return ProductItem{Product: *p, Variant: v, Quantity: quantity}, nil
	case TypeBundle:
		if b == nil || b.ID == "" {
			return nil, nil
		}
		return BundleItem{Bundle: *b, Items: entries, Quantity: quantity}, nil
	default:
		return nil, nil
	}
}

func encodeEntry(e *jx.Encoder, entry bundle.Entry) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("product", func(e *jx.Encoder) { encodeProduct(e, entry.Product) })
		if entry.Variant != nil {
			e.Field("variant", func(e *jx.Encoder) { encodeVariant(e, *entry.Variant) })
		}
		e.Field("quantity", func(e *jx.Encoder) { e.Int(entry.Quantity) })
	})
}

func decodeEntry(d *jx.Decoder) (bundle.Entry, error) {
	var entry bundle.Entry
	err := d.Obj(func(d *jx.Decoder, key string) error {
		if d.Next() == jx.Null {
			return d.Null()
		}
		switch key {
		case "product":
			p, err := decodeProduct(d)
			entry.Product = p
			return err
		case "variant":
			v, err := decodeVariant(d)
			entry.Variant = &v
			return err
		case "quantity":
			n, err := money.DecodeInt(d)
			entry.Quantity = n
			return err
		default:
			return d.Skip()
		}
	})
	if entry.Quantity <= 0 {
		entry.Quantity = 1
	}
	return entry, err
}

func encodeProduct(e *jx.Encoder, p product.Product) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(p.ID) })
		e.Field("title", func(e *jx.Encoder) { e.Str(p.Title) })
		if p.Slug != "" {
			e.Field("slug", func(e *jx.Encoder) { e.Str(p.Slug) })
		}
		e.Field("price", func(e *jx.Encoder) { money.Encode(e, p.Price) })
		encodeOptDecimal(e, "compare_at_price", p.CompareAtPrice)
		if len(p.Images) > 0 {
			e.Field("images", func(e *jx.Encoder) { encodeStrings(e, p.Images) })
		}
		if p.Status != "" {
			e.Field("status", func(e *jx.Encoder) { e.Str(p.Status) })
		}
		if len(p.CollectionIDs) > 0 {
			e.Field("collection_ids", func(e *jx.Encoder) { encodeStrings(e, p.CollectionIDs) })
		}
		if len(p.Variants) > 0 {
			e.Field("variants", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for _, v := range p.Variants {
						encodeVariant(e, v)
					}
				})
			})
		}
	})
}

func decodeProduct(d *jx.Decoder) (product.Product, error) {
	var p product.Product
	err := d.Obj(func(d *jx.Decoder, key string) error {
		if d.Next() == jx.Null {
			return d.Null()
		}
		var err error
		switch key {
		case "id":
			p.ID, err = d.Str()
		case "title":
			p.Title, err = d.Str()
		case "slug":
			p.Slug, err = d.Str()
		case "price":
			p.Price, err = money.Decode(d)
		case "compare_at_price":
			p.CompareAtPrice, err = decodeOptDecimal(d)
		case "images":
			p.Images, err = decodeStrings(d)
		case "status":
			p.Status, err = d.Str()
		case "collection_ids":
			p.CollectionIDs, err = decodeStrings(d)
		case "variants":
			err = d.Arr(func(d *jx.Decoder) error {
				v, err := decodeVariant(d)
				p.Variants = append(p.Variants, v)
				return err
			})
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return p, errors.Wrap(err, "product")
	}
	return p, nil
}

func encodeVariant(e *jx.Encoder, v product.Variant) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(v.ID) })
		if v.Title != "" {
			e.Field("title", func(e *jx.Encoder) { e.Str(v.Title) })
		}
		if v.SKU != "" {
			e.Field("sku", func(e *jx.Encoder) { e.Str(v.SKU) })
		}
		encodeOptDecimal(e, "price", v.Price)
		encodeOptDecimal(e, "compare_at_price", v.CompareAtPrice)
		if len(v.OptionValues) > 0 {
			e.Field("option_values", func(e *jx.Encoder) {
				e.Obj(func(e *jx.Encoder) {
					for _, name := range slices.Sorted(maps.Keys(v.OptionValues)) {
						e.Field(name, func(e *jx.Encoder) { e.Str(v.OptionValues[name]) })
					}
				})
			})
		}
		if v.InventoryQuantity != nil {
			e.Field("inventory_quantity", func(e *jx.Encoder) { e.Int(*v.InventoryQuantity) })
		}
		if v.Available != nil {
			e.Field("available", func(e *jx.Encoder) { e.Bool(*v.Available) })
		}
	})
}

func decodeVariant(d *jx.Decoder) (product.Variant, error) {
	var v product.Variant
	err := d.Obj(func(d *jx.Decoder, key string) error {
		if d.Next() == jx.Null {
			return d.Null()
		}
		var err error
		switch key {
		case "id":
			v.ID, err = d.Str()
		case "title":
			v.Title, err = d.Str()
		case "sku":
			v.SKU, err = d.Str()
		case "price":
			v.Price, err = decodeOptDecimal(d)
		case "compare_at_price":
			v.CompareAtPrice, err = decodeOptDecimal(d)
		case "option_values":
			if d.Next() != jx.Object {
				return d.Skip()
			}
			v.OptionValues = make(map[string]string)
			err = d.Obj(func(d *jx.Decoder, name string) error {
				if d.Next() != jx.String {
					return d.Skip()
				}
				val, err := d.Str()
				v.OptionValues[name] = val
				return err
			})
		case "inventory_quantity":
			n, derr := money.DecodeInt(d)
			v.InventoryQuantity, err = &n, derr
		case "available":
			b, derr := d.Bool()
			v.Available, err = &b, derr
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return v, errors.Wrap(err, "variant")
	}
	return v, nil
}

func encodeBundle(e *jx.Encoder, b bundle.Bundle) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(b.ID) })
		e.Field("title", func(e *jx.Encoder) { e.Str(b.Title) })
		if b.Description != "" {
			e.Field("description", func(e *jx.Encoder) { e.Str(b.Description) })
		}
		if b.Slug != "" {
			e.Field("slug", func(e *jx.Encoder) { e.Str(b.Slug) })
		}
		if len(b.Images) > 0 {
			e.Field("images", func(e *jx.Encoder) { encodeStrings(e, b.Images) })
		}
		e.Field("bundle_price", func(e *jx.Encoder) {
			if b.BundlePrice == nil {
				e.Null()
				return
			}
			money.Encode(e, *b.BundlePrice)
		})
		encodeOptDecimal(e, "discount_percentage", b.DiscountPercentage)
		encodeOptDecimal(e, "compare_at_price", b.CompareAtPrice)
		if b.Status != "" {
			e.Field("status", func(e *jx.Encoder) { e.Str(b.Status) })
		}
		if b.Type != "" {
			e.Field("bundle_type", func(e *jx.Encoder) { e.Str(string(b.Type)) })
		}
		if b.SourceCollectionID != "" {
			e.Field("source_collection_id", func(e *jx.Encoder) { e.Str(b.SourceCollectionID) })
		}
		if b.PickQuantity > 0 {
			e.Field("pick_quantity", func(e *jx.Encoder) { e.Int(b.PickQuantity) })
		}
		if f := b.VariantFilter; f != nil {
			e.Field("variant_filter", func(e *jx.Encoder) {
				e.Obj(func(e *jx.Encoder) {
					if f.OptionName != "" {
						e.Field("option_name", func(e *jx.Encoder) { e.Str(f.OptionName) })
					}
					if f.OptionValue != "" {
						e.Field("option_value", func(e *jx.Encoder) { e.Str(f.OptionValue) })
					}
					if len(f.OptionValues) > 0 {
						e.Field("option_values", func(e *jx.Encoder) { encodeStrings(e, f.OptionValues) })
					}
				})
			})
		}
	})
}

func decodeBundle(d *jx.Decoder) (bundle.Bundle, error) {
	var b bundle.Bundle
	err := d.Obj(func(d *jx.Decoder, key string) error {
		if d.Next() == jx.Null {
			return d.Null()
		}
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
		case "images":
			b.Images, err = decodeStrings(d)
		case "bundle_price":
			b.BundlePrice, err = decodeOptDecimal(d)
		case "discount_percentage":
			b.DiscountPercentage, err = decodeOptDecimal(d)
		case "compare_at_price":
			b.CompareAtPrice, err = decodeOptDecimal(d)
		case "status":
			b.Status, err = d.Str()
		case "bundle_type":
			var s string
			s, err = d.Str()
			b.Type = bundle.Type(s)
		case "source_collection_id":
			b.SourceCollectionID, err = d.Str()
		case "pick_quantity":
			b.PickQuantity, err = money.DecodeInt(d)
		case "variant_filter":
			f := &bundle.VariantFilter{}
			err = d.Obj(func(d *jx.Decoder, key string) error {
				if d.Next() == jx.Null {
					return d.Null()
				}
				var err error
				switch key {
				case "option_name":
					f.OptionName, err = d.Str()
				case "option_value":
					f.OptionValue, err = d.Str()
				case "option_values":
					f.OptionValues, err = decodeStrings(d)
				default:
					err = d.Skip()
				}
				return err
			})
			b.VariantFilter = f
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return b, errors.Wrap(err, "bundle")
	}
	return b, nil
}

func encodeOptDecimal(e *jx.Encoder, name string, v *decimal.Decimal) {
	if v == nil {
		return
	}
	e.Field(name, func(e *jx.Encoder) { money.Encode(e, *v) })
}

func decodeOptDecimal(d *jx.Decoder) (*decimal.Decimal, error) {
	v, err := money.Decode(d)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func encodeStrings(e *jx.Encoder, ss []string) {
	e.Arr(func(e *jx.Encoder) {
		for _, s := range ss {
			e.Str(s)
		}
	})
}

func decodeStrings(d *jx.Decoder) ([]string, error) {
	var out []string
	err := d.Arr(func(d *jx.Decoder) error {
		s, err := d.Str()
		out = append(out, s)
		return err
	})
	return out, err
}
