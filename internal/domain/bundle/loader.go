package bundle

import (
	"context"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront-cart/internal/domain/product"
	"github.com/xenking/storefront-cart/internal/seq"
)

// ErrStale is returned when a newer Load superseded the call before it resolved.
var ErrStale = errors.New("bundle load superseded")

// maxProductFetches bounds concurrent product lookups for rows the catalog
// returned without an embedded product.
const maxProductFetches = 4

// Page is everything needed to render and compose one bundle.
type Page struct {
	Bundle     Bundle
	Entries    []Entry
	Candidates []Candidate
}

// Loader fetches bundle pages. Only the newest in-flight Load may publish a
// result; older ones resolve with ErrStale.
type Loader struct {
	source Source
	lg     *zap.Logger
	seq    seq.Sequencer
}

// NewLoader creates a Loader reading from source.
func NewLoader(source Source, lg *zap.Logger) *Loader {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Loader{source: source, lg: lg}
}

// Load fetches the bundle by slug and, depending on its type, either the
// composed fixed entries or the candidate pool. Failures fetching rows or
// candidates degrade to an empty list; a missing bundle is ErrNotFound.
func (l *Loader) Load(ctx context.Context, slug string) (*Page, error) {
	ticket := l.seq.Next()

	b, err := l.source.FetchBundle(ctx, slug)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrapf(err, "fetch bundle %q", slug)
	}
	if b == nil {
		return nil, ErrNotFound
	}

	page := &Page{Bundle: *b}
	switch {
	case b.IsFixed():
		rows, err := l.fixedRows(ctx, b.ID)
		if err != nil {
			l.lg.Warn("Fetch bundle items failed", zap.String("bundle_id", b.ID), zap.Error(err))
		}
		page.Entries = ComposeFixed(rows)
	default:
		if b.SourceCollectionID == "" {
			break
		}
		products, err := l.source.FetchProductsByCollection(ctx, b.SourceCollectionID)
		if err != nil {
			l.lg.Warn("Fetch bundle candidates failed",
				zap.String("bundle_id", b.ID),
				zap.String("collection_id", b.SourceCollectionID),
				zap.Error(err),
			)
		}
		page.Candidates = Candidates(products, b.SourceCollectionID, b.VariantFilter)
	}

	if !l.seq.Current(ticket) {
		return nil, ErrStale
	}
	return page, nil
}

// fixedRows loads the bundle rows and fills in products the catalog did not
// embed, concurrently.
func (l *Loader) fixedRows(ctx context.Context, bundleID string) ([]Row, error) {
	rows, err := l.source.FetchBundleItems(ctx, bundleID)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxProductFetches)
	for i := range rows {
		if rows[i].Product != nil || rows[i].ProductID == "" {
			continue
		}
		g.Go(func() error {
			p, err := l.source.FetchProduct(gctx, rows[i].ProductID)
			if err != nil {
				if errors.Is(err, product.ErrNotFound) {
					return nil
				}
				return errors.Wrapf(err, "fetch product %q", rows[i].ProductID)
			}
			rows[i].Product = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return rows, err
	}
	return rows, nil
}
