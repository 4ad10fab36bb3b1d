package coupon

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-cart/internal/money"
)

// Messages shown to the buyer.
const (
	MsgApplied     = "Descuento aplicado"
	MsgEmptyCode   = "Ingresa un código de descuento"
	MsgNotFound    = "El código de descuento no existe"
	MsgUnavailable = "No se pudo verificar el código"
	MsgInactive    = "Este código no está activo"
	MsgNotStarted  = "Este código aún no está vigente"
	MsgExpired     = "Este código ha expirado"
	MsgExhausted   = "Este código alcanzó su límite de usos"
	MsgBadValue    = "Este código no tiene un descuento válido"
	MsgEmptyCart   = "Tu carrito está vacío"
	MsgThrottled   = "Demasiados intentos fallidos, intenta de nuevo en %d s"
)

// ThrottledMessage formats MsgThrottled with the wait rounded up to whole
// seconds.
func ThrottledMessage(wait time.Duration) string {
	secs := int((wait + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return fmt.Sprintf(MsgThrottled, secs)
}

// Result is the outcome of validating a discount against the cart. Message
// is set whenever Valid is false.
type Result struct {
	Valid   bool
	Message string
	// Cause is set when the rejection has a matching sentinel error.
	Cause error
}

func reject(msg string) Result {
	return Result{Message: msg}
}

// Validate checks a fetched discount against the cart subtotal and item
// count. It never returns an error; the outcome is in the Result.
func Validate(d Discount, cartTotal decimal.Decimal, cartQuantity int, now time.Time) Result {
	if d.Active != nil && !*d.Active {
		return reject(MsgInactive)
	}
	if d.StartsAt != nil && now.Before(*d.StartsAt) {
		return reject(MsgNotStarted)
	}
	if d.EndsAt != nil && now.After(*d.EndsAt) {
		return reject(MsgExpired)
	}
	if d.UsageLimit != nil && d.UsageCount >= *d.UsageLimit {
		return reject(MsgExhausted)
	}

	switch d.DiscountType {
	case DiscountPercentage:
		if !d.Value.IsPositive() || d.Value.GreaterThan(money.Hundred()) {
			return reject(MsgBadValue)
		}
	case DiscountFixed:
		if !d.Value.IsPositive() {
			return reject(MsgBadValue)
		}
	default:
		return reject(MsgBadValue)
	}

	if cartQuantity <= 0 {
		return reject(MsgEmptyCart)
	}
	if d.MinSubtotal != nil && cartTotal.LessThan(*d.MinSubtotal) {
		return reject(fmt.Sprintf("La compra mínima para este código es de %s", d.MinSubtotal.StringFixed(2)))
	}
	if d.MinQuantity != nil && cartQuantity < *d.MinQuantity {
		return reject(fmt.Sprintf("Agrega al menos %d productos para usar este código", *d.MinQuantity))
	}
	return Result{Valid: true}
}

// Amount returns the discount the coupon takes off subtotal: a percentage of
// it, or a fixed value capped at it. Never negative.
func Amount(d Discount, subtotal decimal.Decimal) decimal.Decimal {
	subtotal = money.FloorAtZero(subtotal)
	switch d.DiscountType {
	case DiscountPercentage:
		return money.FloorAtZero(money.Percent(subtotal, d.Value))
	case DiscountFixed:
		if d.Value.GreaterThan(subtotal) {
			return subtotal
		}
		return money.FloorAtZero(d.Value)
	default:
		return decimal.Zero
	}
}
