package edge

import (
	"context"

	"github.com/go-faster/jx"

	"github.com/xenking/storefront-cart/internal/domain/order"
)

const checkoutCreateFn = "checkout-create"

var _ order.Service = (*Client)(nil)

// CreateOrder places the order.
func (c *Client) CreateOrder(ctx context.Context, p order.Payload) (*order.Result, error) {
	var res *order.Result
	err := c.call(ctx, checkoutCreateFn, func(e *jx.Encoder) {
		order.EncodePayload(e, p)
	}, func(d *jx.Decoder) error {
		r, err := order.DecodeResult(d)
		res = r
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
