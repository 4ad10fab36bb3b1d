// Command cartctl drives a cart session from the terminal: add products and
// bundles, apply coupons, inspect the quote and check out.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	cartapp "github.com/xenking/storefront-cart/internal/app"
)

// errUsage is returned after usage was printed.
var errUsage = errors.New("usage")

type command struct {
	usage string
	run   func(ctx context.Context, env *env, args []string) error
}

var commands = map[string]command{
	"show":     {usage: "show", run: runShow},
	"add":      {usage: "add [-variant id] [-qty n] <product-id>", run: runAdd},
	"bundle":   {usage: "bundle <slug> [product-id...]", run: runBundle},
	"remove":   {usage: "remove <line-key>", run: runRemove},
	"set":      {usage: "set <line-key> <quantity>", run: runSet},
	"clear":    {usage: "clear", run: runClear},
	"coupon":   {usage: "coupon [-remove] [code]", run: runCoupon},
	"rules":    {usage: "rules [product-id]", run: runRules},
	"checkout": {usage: "checkout -email addr [-dry-run] [...]", run: runCheckout},
	"watch":    {usage: "watch", run: runWatch},
}

// env is what every command works with.
type env struct {
	s   *cartapp.Session
	out io.Writer
	lg  *zap.Logger
}

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, m *app.Telemetry) error {
		err := run(ctx, lg, os.Args[1:], os.Stdout,
			cartapp.WithTelemetry(m.MeterProvider(), m.TracerProvider()),
		)
		if errors.Is(err, errUsage) || errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		return err
	})
}

func run(ctx context.Context, lg *zap.Logger, args []string, out io.Writer, opts ...cartapp.Option) error {
	fs := flag.NewFlagSet("cartctl", flag.ContinueOnError)
	fs.SetOutput(out)
	configFile := fs.String("config", "", "Config file (default cart.yaml or /etc/cart/cart.yaml)")
	session := fs.String("session", "", "Cart session name, overrides CART_SESSION")
	fs.Usage = func() { usage(out, fs) }
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errUsage
	}
	cmd, ok := commands[fs.Arg(0)]
	if !ok {
		_, _ = fmt.Fprintf(out, "unknown command %q\n", fs.Arg(0))
		fs.Usage()
		return errUsage
	}

	var files []string
	if *configFile != "" {
		files = []string{*configFile}
	}
	cfg, err := cartapp.LoadConfig(files...)
	if err != nil {
		return err
	}
	if *session != "" {
		cfg.Session = *session
	}

	s, err := cartapp.Open(ctx, lg, cfg, opts...)
	if err != nil {
		return errors.Wrap(err, "open session")
	}
	defer s.Close()

	return cmd.run(ctx, &env{s: s, out: out, lg: lg}, fs.Args()[1:])
}

func usage(out io.Writer, fs *flag.FlagSet) {
	_, _ = fmt.Fprintln(out, "Usage: cartctl [flags] <command> [args]")
	_, _ = fmt.Fprintln(out, "\nCommands:")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		_, _ = fmt.Fprintf(out, "  %s\n", commands[name].usage)
	}
	_, _ = fmt.Fprintln(out, "\nFlags:")
	fs.PrintDefaults()
}
