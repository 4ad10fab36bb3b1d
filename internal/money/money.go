// Package money holds the arithmetic and formatting helpers shared by the cart,
// the price rule evaluator and the coupon validator. Amounts are decimals in
// major currency units; the currency only matters for rounding and display.
package money

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// DefaultCurrency is used when a store has no currency configured.
const DefaultCurrency = "MXN"

var (
	hundred = decimal.NewFromInt(100)
	zero    = decimal.Zero
)

// Hundred is the percentage base.
func Hundred() decimal.Decimal { return hundred }

// Line returns price * quantity.
func Line(price decimal.Decimal, quantity int) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(int64(quantity)))
}

// Percent returns pct percent of base (value/100 * base).
func Percent(base, pct decimal.Decimal) decimal.Decimal {
	return base.Mul(pct).Div(hundred)
}

// FloorAtZero clamps negative values to zero.
func FloorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return zero
	}
	return d
}

// Ratio returns part/whole as a percentage capped to [0, 100]. A non-positive
// whole yields 100.
func Ratio(part, whole decimal.Decimal) decimal.Decimal {
	if !whole.IsPositive() {
		return hundred
	}
	r := part.Mul(hundred).Div(whole)
	if r.GreaterThan(hundred) {
		return hundred
	}
	return FloorAtZero(r)
}

// Scale returns the number of minor-unit digits for an ISO 4217 code.
// Unknown codes fall back to two digits.
func Scale(code string) int32 {
	unit, err := currency.ParseISO(strings.TrimSpace(code))
	if err != nil {
		return 2
	}
	scale, _ := currency.Standard.Rounding(unit)
	return int32(scale)
}

// Round rounds d to the minor unit of the given currency.
func Round(d decimal.Decimal, code string) decimal.Decimal {
	return d.Round(Scale(code))
}

// symbols keeps the narrow symbols used by the storefront. x/text formats
// symbols with locale-dependent spacing, which breaks the "$150.00" layout the
// storefront renders.
var symbols = map[string]string{
	"MXN": "$",
	"USD": "$",
	"CAD": "$",
	"COP": "$",
	"CLP": "$",
	"ARS": "$",
	"EUR": "€",
	"GBP": "£",
	"JPY": "¥",
}

// Formatter renders amounts for display. Multi-currency conversion is out of
// scope; the formatter only rounds and decorates.
type Formatter struct {
	code    string
	printer *message.Printer
}

// NewFormatter creates a Formatter for the ISO currency code and BCP 47 locale.
// An empty or invalid locale falls back to es-MX.
func NewFormatter(code, locale string) *Formatter {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		code = DefaultCurrency
	}
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.MustParse("es-MX")
	}
	return &Formatter{code: code, printer: message.NewPrinter(tag)}
}

// Currency returns the ISO code used by the formatter.
func (f *Formatter) Currency() string { return f.code }

// Format renders d as symbol + grouped number with the currency's scale.
func (f *Formatter) Format(d decimal.Decimal) string {
	scale := Scale(f.code)
	rounded := d.Round(scale)
	sign := ""
	if rounded.IsNegative() {
		sign = "-"
		rounded = rounded.Abs()
	}
	num := f.printer.Sprint(number.Decimal(rounded.InexactFloat64(), number.Scale(int(scale))))
	if sym, ok := symbols[f.code]; ok {
		return sign + sym + num
	}
	return sign + f.code + " " + num
}
