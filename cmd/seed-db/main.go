// Command seed-db creates the catalog schema and loads a store fixture:
// collections, products, bundles, price rules and discounts.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	"github.com/xenking/storefront-cart/internal/domain/bundle"
	"github.com/xenking/storefront-cart/internal/domain/coupon"
	"github.com/xenking/storefront-cart/internal/domain/pricerule"
	"github.com/xenking/storefront-cart/internal/domain/product"
	"github.com/xenking/storefront-cart/internal/storage/postgres"
)

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, _ *app.Telemetry) error {
		var (
			databaseURL string
			storeID     string
			fixtureFile string
		)
		fs := flag.NewFlagSet("seed-db", flag.ContinueOnError)
		fs.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
		fs.StringVar(&storeID, "store-id", "", "Store owning the seeded rules and discounts (or CART_STORE_ID env)")
		fs.StringVar(&fixtureFile, "fixture", "db/seed/catalog.json", "Path to the catalog fixture")
		if err := fs.Parse(os.Args[1:]); err != nil {
			return err
		}

		if databaseURL == "" {
			databaseURL = os.Getenv("DATABASE_URL")
		}
		if databaseURL == "" {
			return errors.New("database URL is required: set --database-url or DATABASE_URL")
		}
		if storeID == "" {
			storeID = os.Getenv("CART_STORE_ID")
		}
		if storeID == "" {
			return errors.New("store id is required: set --store-id or CART_STORE_ID")
		}

		return run(ctx, lg, databaseURL, storeID, fixtureFile)
	})
}

func run(ctx context.Context, lg *zap.Logger, databaseURL, storeID, fixtureFile string) error {
	lg.Info("Reading fixture", zap.String("path", fixtureFile))
	raw, err := os.ReadFile(fixtureFile)
	if err != nil {
		return errors.Wrap(err, "read fixture")
	}
	f, err := decodeFixture(raw)
	if err != nil {
		return err
	}

	lg.Info("Connecting to database")
	pool, err := postgres.NewPool(ctx, databaseURL, postgres.WithMaxConns(2))
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	lg.Info("Running migrations")
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	return seed(ctx, lg, postgres.NewWriter(pool, storeID), f)
}

// seeder is the write surface of postgres.Writer.
type seeder interface {
	UpsertCollection(ctx context.Context, id, title string) error
	UpsertProduct(ctx context.Context, p product.Product) error
	UpsertBundle(ctx context.Context, b bundle.Bundle, rows []bundle.Row) error
	UpsertPriceRule(ctx context.Context, r pricerule.Rule) error
	UpsertDiscount(ctx context.Context, d coupon.Discount) error
}

// seed writes collections before products and products before bundles, so
// references resolve.
func seed(ctx context.Context, lg *zap.Logger, w seeder, f *fixture) error {
	for _, c := range f.Collections {
		if err := w.UpsertCollection(ctx, c.ID, c.Title); err != nil {
			return errors.Wrapf(err, "upsert collection %s", c.ID)
		}
	}
	lg.Info("Upserted collections", zap.Int("count", len(f.Collections)))

	for _, p := range f.Products {
		if err := w.UpsertProduct(ctx, p); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}
		lg.Debug("Upserted product", zap.String("id", p.ID), zap.Int("variants", len(p.Variants)))
	}
	lg.Info("Upserted products", zap.Int("count", len(f.Products)))

	for _, b := range f.Bundles {
		if err := w.UpsertBundle(ctx, b.Bundle, b.Rows); err != nil {
			return errors.Wrapf(err, "upsert bundle %s", b.Bundle.Slug)
		}
	}
	lg.Info("Upserted bundles", zap.Int("count", len(f.Bundles)))

	for _, r := range f.Rules {
		if err := w.UpsertPriceRule(ctx, r); err != nil {
			return errors.Wrapf(err, "upsert price rule %s", r.ID)
		}
	}
	lg.Info("Upserted price rules", zap.Int("count", len(f.Rules)))

	for _, d := range f.Discounts {
		if err := w.UpsertDiscount(ctx, d); err != nil {
			return errors.Wrapf(err, "upsert discount %s", d.Code)
		}
	}
	lg.Info("Upserted discounts", zap.Int("count", len(f.Discounts)))
	return nil
}
