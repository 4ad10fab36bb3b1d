package postgres

import (
	"maps"
	"slices"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront-cart/internal/domain/bundle"
)

// decodeOptionValues reads a jsonb object of option name to value. Non-string
// values are skipped.
func decodeOptionValues(raw []byte) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	d := jx.DecodeBytes(raw)
	if d.Next() != jx.Object {
		return nil, errors.Wrap(d.Skip(), "option values")
	}
	out := make(map[string]string)
	if err := d.Obj(func(d *jx.Decoder, name string) error {
		if d.Next() != jx.String {
			return d.Skip()
		}
		v, err := d.Str()
		out[name] = v
		return err
	}); err != nil {
		return nil, errors.Wrap(err, "option values")
	}
	return out, nil
}

func encodeOptionValues(values map[string]string) []byte {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	e.Obj(func(e *jx.Encoder) {
		for _, name := range slices.Sorted(maps.Keys(values)) {
			e.Field(name, func(e *jx.Encoder) { e.Str(values[name]) })
		}
	})
	return append([]byte(nil), e.Bytes()...)
}

// decodeVariantFilter reads the bundles.variant_filter column. A NULL column
// yields a nil filter.
func decodeVariantFilter(raw []byte) (*bundle.VariantFilter, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	d := jx.DecodeBytes(raw)
	if d.Next() == jx.Null {
		return nil, nil
	}
	f := &bundle.VariantFilter{}
	err := d.Obj(func(d *jx.Decoder, key string) error {
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
			err = d.Arr(func(d *jx.Decoder) error {
				s, err := d.Str()
				f.OptionValues = append(f.OptionValues, s)
				return err
			})
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "variant filter")
	}
	return f, nil
}

func encodeVariantFilter(f *bundle.VariantFilter) []byte {
	if f == nil {
		return nil
	}
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	e.Obj(func(e *jx.Encoder) {
		if f.OptionName != "" {
			e.Field("option_name", func(e *jx.Encoder) { e.Str(f.OptionName) })
		}
		if f.OptionValue != "" {
			e.Field("option_value", func(e *jx.Encoder) { e.Str(f.OptionValue) })
		}
		if len(f.OptionValues) > 0 {
			e.Field("option_values", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for _, v := range f.OptionValues {
						e.Str(v)
					}
				})
			})
		}
	})
	return append([]byte(nil), e.Bytes()...)
}
