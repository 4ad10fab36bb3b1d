package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xenking/storefront-cart/internal/domain/bundle"
	"github.com/xenking/storefront-cart/internal/domain/catalog"
	"github.com/xenking/storefront-cart/internal/domain/pricerule"
	"github.com/xenking/storefront-cart/internal/domain/product"
)

const (
	productColumns = `p.id, p.title, p.slug, p.price, p.compare_at_price, p.images, p.status,
		ARRAY(SELECT pc.collection_id FROM product_collections pc
			WHERE pc.product_id = p.id ORDER BY pc.sort_order, pc.collection_id)`

	getProductSQL = `SELECT ` + productColumns + ` FROM products p WHERE p.id = $1`

	listProductsByCollectionSQL = `SELECT ` + productColumns + `
		FROM products p
		JOIN product_collections c ON c.product_id = p.id
		WHERE c.collection_id = $1 AND p.status = 'active'
		ORDER BY c.sort_order, p.id`

	listVariantsSQL = `SELECT product_id, id, title, sku, price, compare_at_price,
		option_values, inventory_quantity, available
		FROM product_variants WHERE product_id = ANY($1)
		ORDER BY product_id, sort_order, id`

	getBundleSQL = `SELECT id, title, description, slug, images, bundle_price, discount_percentage,
		compare_at_price, status, bundle_type, source_collection_id, pick_quantity, variant_filter
		FROM bundles WHERE slug = $1 AND status = 'active'`

	listBundleItemsSQL = `SELECT bi.id, bi.bundle_id, bi.product_id, bi.variant_id, bi.quantity, bi.sort_order,
		` + productColumns + `
		FROM bundle_items bi
		JOIN products p ON p.id = bi.product_id
		WHERE bi.bundle_id = $1
		ORDER BY bi.sort_order, bi.id`

	listPriceRulesSQL = `SELECT id, title, description, rule_type, conditions, applies_to,
		product_ids, collection_ids, active, starts_at, ends_at, priority
		FROM price_rules WHERE store_id = $1
		ORDER BY priority ASC NULLS LAST, id`
)

var _ catalog.Catalog = (*Catalog)(nil)

// Catalog implements catalog.Catalog backed by PostgreSQL.
type Catalog struct {
	pool *pgxpool.Pool
	lg   *zap.Logger
}

// CatalogOption configures a Catalog.
type CatalogOption func(*Catalog)

// WithLogger sets the logger used for rows that cannot be decoded.
func WithLogger(lg *zap.Logger) CatalogOption {
	return func(c *Catalog) { c.lg = lg }
}

// NewCatalog returns a Catalog that uses the given pool.
func NewCatalog(pool *pgxpool.Pool, opts ...CatalogOption) *Catalog {
	c := &Catalog{pool: pool, lg: zap.NewNop()}
	for _, o := range opts {
		o(c)
	}
	return c
}

// FetchProduct returns a single product with its variants.
func (c *Catalog) FetchProduct(ctx context.Context, id string) (*product.Product, error) {
	rows, err := c.pool.Query(ctx, getProductSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get product %q", id)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get product %q", id)
	}

	products := []product.Product{p}
	if err := c.attachVariants(ctx, products); err != nil {
		return nil, err
	}
	return &products[0], nil
}

// FetchProductsByCollection returns the active products of a collection in
// collection order.
func (c *Catalog) FetchProductsByCollection(ctx context.Context, collectionID string) ([]product.Product, error) {
	rows, err := c.pool.Query(ctx, listProductsByCollectionSQL, collectionID)
	if err != nil {
		return nil, errors.Wrapf(err, "list products of collection %q", collectionID)
	}

	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, errors.Wrapf(err, "list products of collection %q", collectionID)
	}
	if err := c.attachVariants(ctx, products); err != nil {
		return nil, err
	}
	return products, nil
}

// FetchBundle returns the active bundle with the given slug.
func (c *Catalog) FetchBundle(ctx context.Context, slug string) (*bundle.Bundle, error) {
	rows, err := c.pool.Query(ctx, getBundleSQL, slug)
	if err != nil {
		return nil, errors.Wrapf(err, "get bundle %q", slug)
	}

	b, err := pgx.CollectExactlyOneRow(rows, c.scanBundle)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, bundle.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get bundle %q", slug)
	}
	return &b, nil
}

// FetchBundleItems returns the predefined rows of a fixed bundle with their
// products joined in.
func (c *Catalog) FetchBundleItems(ctx context.Context, bundleID string) ([]bundle.Row, error) {
	rows, err := c.pool.Query(ctx, listBundleItemsSQL, bundleID)
	if err != nil {
		return nil, errors.Wrapf(err, "list items of bundle %q", bundleID)
	}

	items, err := pgx.CollectRows(rows, scanBundleRow)
	if err != nil {
		return nil, errors.Wrapf(err, "list items of bundle %q", bundleID)
	}

	products := make([]product.Product, len(items))
	for i := range items {
		products[i] = *items[i].Product
	}
	if err := c.attachVariants(ctx, products); err != nil {
		return nil, err
	}
	for i := range items {
		items[i].Product = &products[i]
	}
	return items, nil
}

// FetchPriceRules returns every rule of the store, prioritized rules first.
// A rule whose conditions cannot be decoded is kept with its raw payload only.
func (c *Catalog) FetchPriceRules(ctx context.Context, storeID string) ([]pricerule.Rule, error) {
	rows, err := c.pool.Query(ctx, listPriceRulesSQL, storeID)
	if err != nil {
		return nil, errors.Wrapf(err, "list price rules of store %q", storeID)
	}

	rules, err := pgx.CollectRows(rows, c.scanRule)
	if err != nil {
		return nil, errors.Wrapf(err, "list price rules of store %q", storeID)
	}
	return rules, nil
}

func (c *Catalog) attachVariants(ctx context.Context, products []product.Product) error {
	if len(products) == 0 {
		return nil
	}
	ids := make([]string, len(products))
	for i, p := range products {
		ids[i] = p.ID
	}

	rows, err := c.pool.Query(ctx, listVariantsSQL, ids)
	if err != nil {
		return errors.Wrap(err, "list variants")
	}

	variants, err := pgx.CollectRows(rows, c.scanVariant)
	if err != nil {
		return errors.Wrap(err, "list variants")
	}

	byProduct := make(map[string][]product.Variant, len(products))
	for _, v := range variants {
		byProduct[v.productID] = append(byProduct[v.productID], v.Variant)
	}

	for i := range products {
		products[i].Variants = byProduct[products[i].ID]
	}
	return nil
}

type variantRow struct {
	product.Variant
	productID string
}

func (c *Catalog) scanVariant(row pgx.CollectableRow) (variantRow, error) {
	var (
		v         variantRow
		options   []byte
		inventory *int32
	)
	if err := row.Scan(
		&v.productID, &v.ID, &v.Title, &v.SKU, &v.Price, &v.CompareAtPrice,
		&options, &inventory, &v.Available,
	); err != nil {
		return v, err
	}
	v.InventoryQuantity = intPtr(inventory)
	opts, err := decodeOptionValues(options)
	if err != nil {
		c.lg.Warn("Ignore variant option values",
			zap.String("variant_id", v.ID),
			zap.Error(err),
		)
	}
	v.OptionValues = opts
	return v, nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(
		&p.ID, &p.Title, &p.Slug, &p.Price, &p.CompareAtPrice, &p.Images, &p.Status,
		&p.CollectionIDs,
	)
	return p, err
}

func scanBundleRow(row pgx.CollectableRow) (bundle.Row, error) {
	var (
		r         bundle.Row
		p         product.Product
		variantID *string
		quantity  int32
		sortOrder int32
	)
	err := row.Scan(
		&r.ID, &r.BundleID, &r.ProductID, &variantID, &quantity, &sortOrder,
		&p.ID, &p.Title, &p.Slug, &p.Price, &p.CompareAtPrice, &p.Images, &p.Status,
		&p.CollectionIDs,
	)
	if variantID != nil {
		r.VariantID = *variantID
	}
	r.Quantity = int(quantity)
	r.SortOrder = int(sortOrder)
	r.Product = &p
	return r, err
}

func (c *Catalog) scanBundle(row pgx.CollectableRow) (bundle.Bundle, error) {
	var (
		b            bundle.Bundle
		bundleType   string
		collectionID *string
		pick         *int32
		filter       []byte
	)
	if err := row.Scan(
		&b.ID, &b.Title, &b.Description, &b.Slug, &b.Images,
		&b.BundlePrice, &b.DiscountPercentage, &b.CompareAtPrice,
		&b.Status, &bundleType, &collectionID, &pick, &filter,
	); err != nil {
		return b, err
	}
	b.Type = bundle.Type(bundleType)
	if collectionID != nil {
		b.SourceCollectionID = *collectionID
	}
	if pick != nil {
		b.PickQuantity = int(*pick)
	}
	f, err := decodeVariantFilter(filter)
	if err != nil {
		c.lg.Warn("Ignore bundle variant filter",
			zap.String("bundle_id", b.ID),
			zap.Error(err),
		)
	}
	b.VariantFilter = f
	return b, nil
}

func (c *Catalog) scanRule(row pgx.CollectableRow) (pricerule.Rule, error) {
	var (
		r         pricerule.Rule
		ruleType  string
		appliesTo string
		raw       []byte
		active    bool
		startsAt  *time.Time
		endsAt    *time.Time
		priority  *int32
	)
	if err := row.Scan(
		&r.ID, &r.Title, &r.Description, &ruleType, &raw, &appliesTo,
		&r.ProductIDs, &r.CollectionIDs, &active, &startsAt, &endsAt, &priority,
	); err != nil {
		return r, err
	}
	r.Type = pricerule.Type(ruleType)
	r.AppliesTo = pricerule.Scope(appliesTo)
	r.Active = &active
	r.StartsAt = startsAt
	r.EndsAt = endsAt
	r.Priority = intPtr(priority)

	cond, err := pricerule.DecodeConditions(r.Type, raw)
	if err != nil {
		c.lg.Warn("Undecodable price rule conditions",
			zap.String("rule_id", r.ID),
			zap.String("rule_type", ruleType),
			zap.Error(err),
		)
	}
	r.Conditions = cond
	return r, nil
}
