// Command coupon-ingest builds the known-code filter from gzip-compressed
// code dumps. A code is kept when it appears in at least -min-files dumps.
// Kept codes can also be written to the catalog's discounts table.
package main

import (
	"bufio"
	"context"
	"flag"
	"math/bits"
	"os"
	"path/filepath"
	"slices"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront-cart/internal/domain/coupon"
	"github.com/xenking/storefront-cart/internal/storage/postgres"
)

const (
	progressEvery = 10_000_000
	maxFiles      = bits.UintSize
)

type config struct {
	DataDir     string
	Pattern     string
	Out         string
	DatabaseURL string
	StoreID     string
	MinFiles    int
	MinLen      int
	MaxLen      int
	// Capacity sizes the per-file filters of the first pass.
	Capacity uint
	FPR      float64
	// Percent is the discount written for codes without a rule.
	Percent float64
}

func parseFlags(args []string) (config, error) {
	var cfg config
	fs := flag.NewFlagSet("coupon-ingest", flag.ContinueOnError)
	fs.StringVar(&cfg.DataDir, "data-dir", "data", "Directory containing the code dumps")
	fs.StringVar(&cfg.Pattern, "pattern", "*.gz", "Glob selecting dumps inside -data-dir")
	fs.StringVar(&cfg.Out, "out", "known-codes.bloom", "Known-code filter output path")
	fs.StringVar(&cfg.DatabaseURL, "database-url", "", "Write kept codes to this catalog (or DATABASE_URL env)")
	fs.StringVar(&cfg.StoreID, "store-id", "", "Store owning the written codes (or CART_STORE_ID env)")
	fs.IntVar(&cfg.MinFiles, "min-files", 2, "Dumps a code must appear in")
	fs.IntVar(&cfg.MinLen, "min-len", 4, "Shortest accepted code")
	fs.IntVar(&cfg.MaxLen, "max-len", 32, "Longest accepted code")
	fs.UintVar(&cfg.Capacity, "capacity", 10_000_000, "Expected codes per dump")
	fs.Float64Var(&cfg.FPR, "fpr", 0.001, "Filter false positive rate")
	fs.Float64Var(&cfg.Percent, "percent", 10, "Discount percentage for codes without a rule")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if cfg.StoreID == "" {
		cfg.StoreID = os.Getenv("CART_STORE_ID")
	}
	if cfg.DatabaseURL != "" && cfg.StoreID == "" {
		return cfg, errors.New("store id is required to write codes: set --store-id or CART_STORE_ID")
	}
	if cfg.MinFiles < 1 {
		return cfg, errors.New("min-files must be positive")
	}
	return cfg, nil
}

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, _ *app.Telemetry) error {
		cfg, err := parseFlags(os.Args[1:])
		if err != nil {
			return err
		}
		return run(ctx, lg, cfg)
	})
}

func run(ctx context.Context, lg *zap.Logger, cfg config) error {
	files, err := filepath.Glob(filepath.Join(cfg.DataDir, cfg.Pattern))
	if err != nil {
		return errors.Wrap(err, "list dumps")
	}
	switch {
	case len(files) == 0:
		return errors.Errorf("no dumps match %s", filepath.Join(cfg.DataDir, cfg.Pattern))
	case len(files) > maxFiles:
		return errors.Errorf("too many dumps: %d, at most %d", len(files), maxFiles)
	case len(files) < cfg.MinFiles:
		return errors.Errorf("need at least %d dumps, found %d", cfg.MinFiles, len(files))
	}
	slices.Sort(files)

	lg.Info("Pass 1: building filters", zap.Int("files", len(files)))
	filters, err := buildFilters(ctx, lg, cfg, files)
	if err != nil {
		return errors.Wrap(err, "build filters")
	}

	lg.Info("Pass 2: finding repeated codes")
	codes, err := findCodes(ctx, lg, cfg, files, filters)
	if err != nil {
		return errors.Wrap(err, "find codes")
	}
	lg.Info("Codes found", zap.Int("count", len(codes)))

	if err := writeFilter(cfg, codes); err != nil {
		return errors.Wrap(err, "write filter")
	}
	lg.Info("Filter written", zap.String("path", cfg.Out))

	if cfg.DatabaseURL == "" || len(codes) == 0 {
		return nil
	}
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.WithMaxConns(2))
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := writeDiscounts(ctx, lg, postgres.NewWriter(pool, cfg.StoreID), cfg, codes); err != nil {
		return errors.Wrap(err, "write discounts")
	}
	return nil
}

func accept(cfg config, code string) bool {
	return len(code) >= cfg.MinLen && len(code) <= cfg.MaxLen
}

// buildFilters creates one filter per dump, concurrently.
func buildFilters(ctx context.Context, lg *zap.Logger, cfg config, files []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			filter := coupon.NewKnownCodes(cfg.Capacity, cfg.FPR)
			var count uint64
			if err := streamCodes(ctx, path, func(code string) {
				if !accept(cfg, code) {
					return
				}
				filter.AddString(code)
				count++
				if count%progressEvery == 0 {
					lg.Info("Pass 1 progress", zap.String("file", path), zap.Uint64("codes", count))
				}
			}); err != nil {
				return errors.Wrapf(err, "build filter for %s", path)
			}
			lg.Info("Pass 1 complete", zap.String("file", path), zap.Uint64("codes", count))
			filters[i] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// findCodes re-streams every dump and tests each code against the other
// dumps' filters. Codes whose dump set reaches MinFiles are returned
// normalized and sorted.
func findCodes(
	ctx context.Context,
	lg *zap.Logger,
	cfg config,
	files []string,
	filters []*bloom.BloomFilter,
) ([]string, error) {
	masks := make([]map[string]uint, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			seen := make(map[string]uint)
			var count uint64
			if err := streamCodes(ctx, path, func(code string) {
				if !accept(cfg, code) {
					return
				}
				count++
				if count%progressEvery == 0 {
					lg.Info("Pass 2 progress", zap.String("file", path), zap.Uint64("codes", count))
				}
				mask := uint(1) << uint(i)
				for j, f := range filters {
					if j != i && f.TestString(code) {
						mask |= uint(1) << uint(j)
					}
				}
				if bits.OnesCount(mask) >= cfg.MinFiles {
					seen[code] |= mask
				}
			}); err != nil {
				return errors.Wrapf(err, "scan %s", path)
			}
			lg.Info("Pass 2 complete",
				zap.String("file", path),
				zap.Uint64("codes", count),
				zap.Int("candidates", len(seen)),
			)
			masks[i] = seen
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]uint)
	for _, m := range masks {
		for code, mask := range m {
			merged[code] |= mask
		}
	}
	codes := make([]string, 0, len(merged))
	for code := range merged {
		codes = append(codes, coupon.NormalizeCode(code))
	}
	slices.Sort(codes)
	return slices.Compact(codes), nil
}

// streamCodes calls fn for each line of a gzip-compressed file.
func streamCodes(ctx context.Context, path string, fn func(code string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}

func writeFilter(cfg config, codes []string) error {
	f, err := os.Create(cfg.Out)
	if err != nil {
		return errors.Wrapf(err, "create %s", cfg.Out)
	}
	if err := coupon.WriteKnownCodes(f, coupon.NewKnownCodes(uint(len(codes)), cfg.FPR, codes...)); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// discountWriter is the subset of postgres.Writer used here.
type discountWriter interface {
	UpsertDiscount(ctx context.Context, d coupon.Discount) error
}

func writeDiscounts(ctx context.Context, lg *zap.Logger, w discountWriter, cfg config, codes []string) error {
	lg.Info("Writing discounts", zap.Int("count", len(codes)))
	active := true
	for i, code := range codes {
		d, ok := codeRules[code]
		if !ok {
			d = coupon.Discount{DiscountType: coupon.DiscountPercentage, Value: decimal.NewFromFloat(cfg.Percent)}
		}
		d.ID = cfg.StoreID + ":" + code
		d.Code = code
		d.Active = &active
		if err := w.UpsertDiscount(ctx, d); err != nil {
			return errors.Wrapf(err, "upsert discount %s", code)
		}
		if (i+1)%100 == 0 || i+1 == len(codes) {
			lg.Info("Write progress", zap.Int("written", i+1), zap.Int("total", len(codes)))
		}
	}
	return nil
}

// codeRules overrides the default discount for well known codes.
var codeRules = map[string]coupon.Discount{
	"FIFTYOFF": {DiscountType: coupon.DiscountPercentage, Value: decimal.NewFromInt(50), Description: "50% en toda la compra"},
	"SIXTYOFF": {DiscountType: coupon.DiscountPercentage, Value: decimal.NewFromInt(60), Description: "60% en toda la compra"},
	"HAPPYHRS": {DiscountType: coupon.DiscountPercentage, Value: decimal.NewFromInt(18), Description: "Happy hour: 18%"},
	"OVER9000": {DiscountType: coupon.DiscountFixed, Value: decimal.NewFromInt(9), Description: "9 de descuento"},
}
