package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront-cart/internal/domain/bundle"
	"github.com/xenking/storefront-cart/internal/domain/coupon"
	"github.com/xenking/storefront-cart/internal/domain/pricerule"
	"github.com/xenking/storefront-cart/internal/domain/product"
)

const (
	upsertCollectionSQL = `INSERT INTO collections (id, store_id, title) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET store_id = EXCLUDED.store_id, title = EXCLUDED.title`

	upsertProductSQL = `INSERT INTO products (id, store_id, title, slug, price, compare_at_price, images, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET store_id = EXCLUDED.store_id, title = EXCLUDED.title,
			slug = EXCLUDED.slug, price = EXCLUDED.price, compare_at_price = EXCLUDED.compare_at_price,
			images = EXCLUDED.images, status = EXCLUDED.status`

	deleteVariantsSQL = `DELETE FROM product_variants WHERE product_id = $1`

	insertVariantSQL = `INSERT INTO product_variants (id, product_id, title, sku, price, compare_at_price,
		option_values, inventory_quantity, available, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	deleteProductCollectionsSQL = `DELETE FROM product_collections WHERE product_id = $1`

	insertProductCollectionSQL = `INSERT INTO product_collections (product_id, collection_id, sort_order)
		VALUES ($1, $2, $3)`

	upsertBundleSQL = `INSERT INTO bundles (id, store_id, title, description, slug, images, bundle_price,
		discount_percentage, compare_at_price, status, bundle_type, source_collection_id, pick_quantity, variant_filter)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET store_id = EXCLUDED.store_id, title = EXCLUDED.title,
			description = EXCLUDED.description, slug = EXCLUDED.slug, images = EXCLUDED.images,
			bundle_price = EXCLUDED.bundle_price, discount_percentage = EXCLUDED.discount_percentage,
			compare_at_price = EXCLUDED.compare_at_price, status = EXCLUDED.status,
			bundle_type = EXCLUDED.bundle_type, source_collection_id = EXCLUDED.source_collection_id,
			pick_quantity = EXCLUDED.pick_quantity, variant_filter = EXCLUDED.variant_filter`

	deleteBundleItemsSQL = `DELETE FROM bundle_items WHERE bundle_id = $1`

	insertBundleItemSQL = `INSERT INTO bundle_items (id, bundle_id, product_id, variant_id, quantity, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6)`

	upsertPriceRuleSQL = `INSERT INTO price_rules (id, store_id, title, description, rule_type, conditions,
		applies_to, product_ids, collection_ids, active, starts_at, ends_at, priority)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET store_id = EXCLUDED.store_id, title = EXCLUDED.title,
			description = EXCLUDED.description, rule_type = EXCLUDED.rule_type,
			conditions = EXCLUDED.conditions, applies_to = EXCLUDED.applies_to,
			product_ids = EXCLUDED.product_ids, collection_ids = EXCLUDED.collection_ids,
			active = EXCLUDED.active, starts_at = EXCLUDED.starts_at, ends_at = EXCLUDED.ends_at,
			priority = EXCLUDED.priority`

	upsertDiscountSQL = `INSERT INTO discounts (id, store_id, code, discount_type, value, min_subtotal,
		min_quantity, starts_at, ends_at, usage_limit, usage_count, active, description)
		VALUES ($1, $2, UPPER($3), $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (store_id, (UPPER(code))) DO UPDATE SET discount_type = EXCLUDED.discount_type,
			value = EXCLUDED.value, min_subtotal = EXCLUDED.min_subtotal,
			min_quantity = EXCLUDED.min_quantity, starts_at = EXCLUDED.starts_at,
			ends_at = EXCLUDED.ends_at, usage_limit = EXCLUDED.usage_limit,
			active = EXCLUDED.active, description = EXCLUDED.description`
)

// Writer loads catalog data for one store. It is used by the seeding and
// ingest tools; the cart itself only reads.
type Writer struct {
	pool    *pgxpool.Pool
	storeID string
}

// NewWriter returns a Writer scoped to storeID.
func NewWriter(pool *pgxpool.Pool, storeID string) *Writer {
	return &Writer{pool: pool, storeID: storeID}
}

// UpsertCollection creates or renames a collection.
func (w *Writer) UpsertCollection(ctx context.Context, id, title string) error {
	if _, err := w.pool.Exec(ctx, upsertCollectionSQL, id, w.storeID, title); err != nil {
		return errors.Wrapf(err, "upsert collection %q", id)
	}
	return nil
}

// UpsertProduct writes a product and replaces its variants and collection
// memberships. Referenced collections must exist.
func (w *Writer) UpsertProduct(ctx context.Context, p product.Product) error {
	err := pgx.BeginFunc(ctx, w.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, upsertProductSQL,
			p.ID, w.storeID, p.Title, p.Slug, p.Price, p.CompareAtPrice, nonNil(p.Images), status(p.Status),
		); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, deleteVariantsSQL, p.ID); err != nil {
			return err
		}
		for i, v := range p.Variants {
			if _, err := tx.Exec(ctx, insertVariantSQL,
				v.ID, p.ID, v.Title, v.SKU, v.Price, v.CompareAtPrice,
				encodeOptionValues(v.OptionValues), v.InventoryQuantity, v.Available, i,
			); err != nil {
				return errors.Wrapf(err, "variant %q", v.ID)
			}
		}
		if _, err := tx.Exec(ctx, deleteProductCollectionsSQL, p.ID); err != nil {
			return err
		}
		for i, c := range p.CollectionIDs {
			if _, err := tx.Exec(ctx, insertProductCollectionSQL, p.ID, c, i); err != nil {
				return errors.Wrapf(err, "collection %q", c)
			}
		}
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "upsert product %q", p.ID)
	}
	return nil
}

// UpsertBundle writes a bundle and replaces its predefined rows.
func (w *Writer) UpsertBundle(ctx context.Context, b bundle.Bundle, rows []bundle.Row) error {
	var (
		collectionID *string
		pick         *int
	)
	if b.SourceCollectionID != "" {
		collectionID = &b.SourceCollectionID
	}
	if b.PickQuantity > 0 {
		pick = &b.PickQuantity
	}
	bundleType := b.Type
	if bundleType == "" {
		bundleType = bundle.TypeFixed
	}

	err := pgx.BeginFunc(ctx, w.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, upsertBundleSQL,
			b.ID, w.storeID, b.Title, b.Description, b.Slug, nonNil(b.Images),
			b.BundlePrice, b.DiscountPercentage, b.CompareAtPrice, status(b.Status),
			string(bundleType), collectionID, pick, encodeVariantFilter(b.VariantFilter),
		); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, deleteBundleItemsSQL, b.ID); err != nil {
			return err
		}
		for i, r := range rows {
			var variantID *string
			if r.VariantID != "" {
				variantID = &r.VariantID
			}
			qty := max(r.Quantity, 1)
			if _, err := tx.Exec(ctx, insertBundleItemSQL, r.ID, b.ID, r.ProductID, variantID, qty, i); err != nil {
				return errors.Wrapf(err, "bundle item %q", r.ID)
			}
		}
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "upsert bundle %q", b.ID)
	}
	return nil
}

// UpsertPriceRule writes a rule. Typed conditions are stored in their
// canonical shape.
func (w *Writer) UpsertPriceRule(ctx context.Context, r pricerule.Rule) error {
	active := r.Active == nil || *r.Active
	appliesTo := r.AppliesTo
	if appliesTo == "" {
		appliesTo = pricerule.ScopeAll
	}
	var conditions []byte
	if raw := pricerule.EncodeConditions(r.Conditions); len(raw) > 0 {
		conditions = raw
	}
	if _, err := w.pool.Exec(ctx, upsertPriceRuleSQL,
		r.ID, w.storeID, r.Title, r.Description, string(r.Type), conditions,
		string(appliesTo), nonNil(r.ProductIDs), nonNil(r.CollectionIDs),
		active, r.StartsAt, r.EndsAt, r.Priority,
	); err != nil {
		return errors.Wrapf(err, "upsert price rule %q", r.ID)
	}
	return nil
}

// UpsertDiscount writes a coupon. Codes are stored upper-cased and the usage
// counter of an existing coupon is preserved.
func (w *Writer) UpsertDiscount(ctx context.Context, d coupon.Discount) error {
	active := d.Active == nil || *d.Active
	if _, err := w.pool.Exec(ctx, upsertDiscountSQL,
		d.ID, w.storeID, d.Code, string(d.DiscountType), d.Value, d.MinSubtotal,
		d.MinQuantity, d.StartsAt, d.EndsAt, d.UsageLimit, d.UsageCount, active, d.Description,
	); err != nil {
		return errors.Wrapf(err, "upsert discount %q", d.Code)
	}
	return nil
}

func nonNil(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}

func status(s string) string {
	if s == "" {
		return "active"
	}
	return s
}
