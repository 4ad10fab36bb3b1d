package main

import (
	"context"
	"flag"
	"fmt"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.uber.org/zap"

	cartapp "github.com/xenking/storefront-cart/internal/app"
	"github.com/xenking/storefront-cart/internal/domain/cart"
	"github.com/xenking/storefront-cart/internal/domain/coupon"
	"github.com/xenking/storefront-cart/internal/domain/order"
)

func newFlags(env *env, name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(env.out)
	return fs
}

func runShow(ctx context.Context, env *env, _ []string) error {
	restoreCoupon(ctx, env)
	return printCart(env.out, env.s)
}

func runAdd(ctx context.Context, env *env, args []string) error {
	fs := newFlags(env, "add")
	variant := fs.String("variant", "", "Variant id")
	qty := fs.Int("qty", 1, "Quantity")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("add: expected one product id")
	}
	if _, err := env.s.AddProduct(ctx, fs.Arg(0), *variant, *qty); err != nil {
		return err
	}
	return printCart(env.out, env.s)
}

func runBundle(ctx context.Context, env *env, args []string) error {
	if len(args) == 0 {
		return errors.New("bundle: expected a slug")
	}
	if _, err := env.s.AddBundle(ctx, args[0], args[1:]); err != nil {
		return err
	}
	return printCart(env.out, env.s)
}

func runRemove(ctx context.Context, env *env, args []string) error {
	if len(args) != 1 {
		return errors.New("remove: expected one line key")
	}
	if _, ok := env.s.Cart.State().Find(args[0]); !ok {
		return errors.Errorf("no line %q", args[0])
	}
	env.s.Cart.RemoveItem(ctx, args[0])
	return printCart(env.out, env.s)
}

func runSet(ctx context.Context, env *env, args []string) error {
	if len(args) != 2 {
		return errors.New("set: expected a line key and a quantity")
	}
	qty, err := strconv.Atoi(args[1])
	if err != nil {
		return errors.Wrap(err, "parse quantity")
	}
	if _, ok := env.s.Cart.State().Find(args[0]); !ok {
		return errors.Errorf("no line %q", args[0])
	}
	env.s.Cart.UpdateQuantity(ctx, args[0], qty)
	return printCart(env.out, env.s)
}

func runClear(ctx context.Context, env *env, _ []string) error {
	env.s.Cart.Clear(ctx)
	return printCart(env.out, env.s)
}

func runCoupon(ctx context.Context, env *env, args []string) error {
	fs := newFlags(env, "coupon")
	remove := fs.Bool("remove", false, "Remove the active coupon")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if env.s.Coupons == nil {
		return cartapp.ErrNoCheckout
	}

	switch {
	case *remove:
		env.s.Coupons.Remove(ctx)
		_, _ = fmt.Fprintln(env.out, "Coupon removed")
		return nil
	case fs.NArg() == 0:
		restoreCoupon(ctx, env)
		if code := env.s.Coupons.Code(); code != "" {
			_, _ = fmt.Fprintln(env.out, code)
		}
		return nil
	}

	res, err := env.s.ApplyCoupon(ctx, fs.Arg(0))
	if err != nil && !errors.Is(err, coupon.ErrStale) {
		env.lg.Warn("Coupon check failed", zap.Error(err))
	}
	if res.Message != "" {
		_, _ = fmt.Fprintln(env.out, res.Message)
	}
	if !res.Valid {
		return errors.Errorf("coupon %q rejected", fs.Arg(0))
	}
	return printCart(env.out, env.s)
}

func runRules(_ context.Context, env *env, args []string) error {
	if env.s.Catalog == nil {
		return cartapp.ErrNoCatalog
	}
	if len(args) == 0 {
		printRules(env.out, env.s.Rules().Rules())
		return nil
	}
	for _, it := range env.s.Cart.State().Items {
		if p, ok := it.(cart.ProductItem); ok && p.Product.ID == args[0] {
			printRules(env.out, env.s.Rules().ForProduct(p.Product.ID, p.Product.CollectionIDs))
			return nil
		}
	}
	printRules(env.out, env.s.Rules().ForProduct(args[0], nil))
	return nil
}

func runCheckout(ctx context.Context, env *env, args []string) error {
	fs := newFlags(env, "checkout")
	var (
		cust    order.Customer
		addr    order.Address
		notes   = fs.String("notes", "", "Order notes")
		dryRun  = fs.Bool("dry-run", false, "Print the request instead of sending it")
		billing = fs.Bool("bill-to-shipping", true, "Use the shipping address for billing")
	)
	fs.StringVar(&cust.Email, "email", "", "Buyer email")
	fs.StringVar(&cust.FirstName, "first-name", "", "Buyer first name")
	fs.StringVar(&cust.LastName, "last-name", "", "Buyer last name")
	fs.StringVar(&cust.Phone, "phone", "", "Buyer phone, E.164")
	fs.StringVar(&addr.Line1, "line1", "", "Shipping address line 1")
	fs.StringVar(&addr.Line2, "line2", "", "Shipping address line 2")
	fs.StringVar(&addr.City, "city", "", "Shipping city")
	fs.StringVar(&addr.State, "state", "", "Shipping state")
	fs.StringVar(&addr.PostalCode, "postal-code", "", "Shipping postal code")
	fs.StringVar(&addr.Country, "country", "", "Shipping country, ISO 3166 alpha-2")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if env.s.Submitter == nil {
		return cartapp.ErrNoCheckout
	}
	restoreCoupon(ctx, env)

	det := order.Details{Notes: *notes}
	if cust.Email != "" {
		det.Customer = &cust
	}
	if addr.Line1 != "" {
		det.ShippingAddress = &addr
		if *billing {
			det.BillingAddress = &addr
		}
	}

	if *dryRun {
		p, err := env.s.Submitter.Payload(det)
		if err != nil {
			return err
		}
		e := &jx.Encoder{}
		order.EncodePayload(e, p)
		_, _ = fmt.Fprintln(env.out, e.String())
		return nil
	}

	res, err := env.s.Submitter.Submit(ctx, det)
	if err != nil {
		return err
	}
	printOrder(env.out, env.s.Formatter, res)
	return nil
}

func runWatch(ctx context.Context, env *env, _ []string) error {
	env.s.Cart.OnChange(func(st cart.State) {
		_, _ = fmt.Fprintf(env.out, "Cart changed: %d items, %s\n",
			st.TotalQuantity(), env.s.Formatter.Format(st.Total))
	})
	done, err := env.s.Cart.Sync(ctx)
	if err != nil {
		return err
	}
	if err := printCart(env.out, env.s); err != nil {
		return err
	}
	<-done
	return nil
}

// restoreCoupon re-applies the code kept from an earlier invocation.
func restoreCoupon(ctx context.Context, env *env) {
	res, err := env.s.RestoreCoupon(ctx)
	if err != nil {
		env.lg.Warn("Restore coupon failed", zap.Error(err))
		return
	}
	if !res.Valid && res.Message != "" {
		_, _ = fmt.Fprintf(env.out, "Coupon dropped: %s\n", res.Message)
	}
}
