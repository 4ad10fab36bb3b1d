package money

import (
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// Decode reads an amount. Numeric strings are accepted alongside numbers,
// since Postgres numeric columns usually come back quoted. Null is zero.
func Decode(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	case jx.Null:
		return decimal.Zero, d.Null()
	default:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(string(n))
	}
}

// DecodeInt reads an integer quantity, truncating any fraction.
func DecodeInt(d *jx.Decoder) (int, error) {
	v, err := Decode(d)
	if err != nil {
		return 0, err
	}
	return int(v.IntPart()), nil
}

// Encode writes an amount as a JSON number.
func Encode(e *jx.Encoder, v decimal.Decimal) {
	e.Num(jx.Num(v.String()))
}
