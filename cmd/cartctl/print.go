package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	cartapp "github.com/xenking/storefront-cart/internal/app"
	"github.com/xenking/storefront-cart/internal/domain/bundle"
	"github.com/xenking/storefront-cart/internal/domain/cart"
	"github.com/xenking/storefront-cart/internal/domain/order"
	"github.com/xenking/storefront-cart/internal/domain/pricerule"
	"github.com/xenking/storefront-cart/internal/money"
)

func lineTitle(it cart.Item) string {
	switch it := it.(type) {
	case cart.ProductItem:
		if it.Variant != nil && it.Variant.Title != "" {
			return it.Product.Title + " / " + it.Variant.Title
		}
		return it.Product.Title
	case cart.BundleItem:
		return it.Bundle.Title + fmt.Sprintf(" (%d products)", len(it.Items))
	default:
		return it.Key()
	}
}

func printCart(out io.Writer, s *cartapp.Session) error {
	st := s.Cart.State()
	f := s.Formatter
	if st.IsEmpty() {
		_, _ = fmt.Fprintln(out, "Cart is empty")
	} else {
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "KEY\tITEM\tQTY\tPRICE\tTOTAL")
		for _, it := range st.Items {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
				it.Key(), lineTitle(it), it.Qty(),
				f.Format(it.UnitPrice()), f.Format(money.Line(it.UnitPrice(), it.Qty())),
			)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		printSavings(out, f, st)
	}

	q := s.Quote()
	printQuote(out, f, q)
	if r, ok := s.Rules().FreeShipping(); ok && !q.FreeShipping {
		printShipping(out, f, pricerule.FreeShippingProgress(r.Conditions.FreeShipping, st.Total, st.TotalQuantity()))
	}
	if s.Cart.Degraded() {
		_, _ = fmt.Fprintln(out, "Warning: cart is not being saved")
	}
	return nil
}

// printSavings lists what each bundle line saves against its constituents.
func printSavings(out io.Writer, f *money.Formatter, st cart.State) {
	for _, it := range st.Items {
		b, ok := it.(cart.BundleItem)
		if !ok {
			continue
		}
		original := bundle.OriginalPrice(b.Items)
		if saved := b.Bundle.Savings(original); saved.IsPositive() {
			_, _ = fmt.Fprintf(out, "%s: %s instead of %s, save %s\n",
				b.Bundle.Title, f.Format(b.Bundle.DisplayPrice(original)), f.Format(original), f.Format(saved))
		}
	}
}

func printQuote(out io.Writer, f *money.Formatter, q order.Quote) {
	_, _ = fmt.Fprintf(out, "\nSubtotal: %s\n", f.Format(q.Subtotal))
	for _, r := range q.Rules {
		if r.Discount.IsPositive() {
			_, _ = fmt.Fprintf(out, "  %s: -%s\n", r.Label(), f.Format(r.Discount))
		} else {
			_, _ = fmt.Fprintf(out, "  %s\n", r.Label())
		}
	}
	if q.CouponCode != "" {
		_, _ = fmt.Fprintf(out, "  Coupon %s: -%s\n", q.CouponCode, f.Format(q.CouponDiscount))
	}
	_, _ = fmt.Fprintf(out, "Total: %s\n", f.Format(q.Total))
}

func printShipping(out io.Writer, f *money.Formatter, p pricerule.Progress) {
	switch {
	case p.Unconditional, p.Achieved:
		_, _ = fmt.Fprintln(out, "Free shipping unlocked")
	case p.ByQuantity:
		_, _ = fmt.Fprintf(out, "Add %d more items for free shipping (%s%%)\n",
			p.RemainingQuantity, p.Percent.Round(0).String())
	default:
		_, _ = fmt.Fprintf(out, "Add %s more for free shipping (%s%%)\n",
			f.Format(p.RemainingAmount), p.Percent.Round(0).String())
	}
}

func printRules(out io.Writer, rules []pricerule.Rule) {
	if len(rules) == 0 {
		_, _ = fmt.Fprintln(out, "No active promotions")
		return
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tTYPE\tLABEL")
	for _, r := range rules {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", r.ID, r.Type, pricerule.Label(r))
	}
	_ = tw.Flush()
}

func printOrder(out io.Writer, f *money.Formatter, res *order.Result) {
	_, _ = fmt.Fprintf(out, "Order %s created (%s)\n", res.OrderNumber, res.OrderID)
	if !res.TotalAmount.Equal(decimal.Zero) {
		_, _ = fmt.Fprintf(out, "Charged: %s\n", f.Format(res.TotalAmount))
	}
	for _, id := range res.UnavailableItems {
		_, _ = fmt.Fprintf(out, "Unavailable: %s\n", id)
	}
}
