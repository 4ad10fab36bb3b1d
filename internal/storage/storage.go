// Package storage defines the key/value persistence the cart and the coupon
// applier write through, with change notifications between sessions that
// share the same data.
package storage

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned by Get when the key holds no value.
var ErrNotFound = errors.New("storage: key not found")

// Well-known keys.
const (
	KeyCart            = "cart-state"
	KeyPendingCoupon   = "pendingDiscount"
	KeyCheckoutCart    = "checkout_cart"
	KeyCheckoutOrder   = "checkout_order"
	KeyCheckoutOrderID = "checkout_order_id"
)

// Change is a write made by another session. Value is nil for deletions.
type Change struct {
	Key    string
	Value  []byte
	Origin string
}

// Deleted reports whether the change removed the key.
func (c Change) Deleted() bool { return c.Value == nil }

// Backend is one session's handle on shared storage. Writes are visible to
// every handle; Watch only delivers changes made through other handles, never
// the handle's own writes.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Watch streams foreign changes until ctx is done, then closes the channel.
	Watch(ctx context.Context) (<-chan Change, error)
}
