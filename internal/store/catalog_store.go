package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"unicode/utf8"

	"github.com/vrsandeep/catalog-importer/internal/models"
)

// MaxFilterValueLength is the width of filter_product.value.
const MaxFilterValueLength = 250

// maxCollectionDepth bounds the parent walk; the parent relation is not
// guaranteed to be acyclic.
const maxCollectionDepth = 64

func encodeText(t models.LocalizedText) (string, error) {
	if t == nil {
		t = models.LocalizedText{}
	}
	b, err := json.Marshal(t)
	return string(b), err
}

func decodeText(raw string) models.LocalizedText {
	t := models.LocalizedText{}
	_ = json.Unmarshal([]byte(raw), &t)
	return t
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	var p models.Product
	var brandID sql.NullInt64
	var name, desc string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, product_type_id, brand_id, status, name, description, created_at, updated_at
		FROM products WHERE id = ?`, id).Scan(
		&p.ID, &p.ProductTypeID, &brandID, &p.Status, &name, &desc, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err, "product", id)
	}
	if brandID.Valid {
		p.BrandID = &brandID.Int64
	}
	p.Name = decodeText(name)
	p.Description = decodeText(desc)
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, p *models.Product) (int64, error) {
	name, err := encodeText(p.Name)
	if err != nil {
		return 0, err
	}
	desc, err := encodeText(p.Description)
	if err != nil {
		return 0, err
	}
	now := s.now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO products (product_type_id, brand_id, status, name, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ProductTypeID, p.BrandID, p.Status, name, desc, now, now,
	)
	if err != nil {
		return 0, err
	}
	p.ID, err = res.LastInsertId()
	return p.ID, err
}

// UpdateProductText replaces the localized name and description together.
func (s *Store) UpdateProductText(ctx context.Context, id int64, name, description models.LocalizedText) error {
	n, err := encodeText(name)
	if err != nil {
		return err
	}
	d, err := encodeText(description)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, "UPDATE products SET name = ?, description = ?, updated_at = ? WHERE id = ?", n, d, s.now(), id)
	return err
}

func (s *Store) SetProductBrand(ctx context.Context, productID, brandID int64) error {
	_, err := s.db.ExecContext(ctx, "UPDATE products SET brand_id = ?, updated_at = ? WHERE id = ?", brandID, s.now(), productID)
	return err
}

// PrimaryVariant returns the product's first variant, the one imports edit.
func (s *Store) PrimaryVariant(ctx context.Context, productID int64) (*models.Variant, error) {
	var v models.Variant
	err := s.db.QueryRowContext(ctx, `
		SELECT id, product_id, sku, stock, min_quantity
		FROM product_variants WHERE product_id = ? ORDER BY id ASC LIMIT 1`, productID).Scan(
		&v.ID, &v.ProductID, &v.SKU, &v.Stock, &v.MinQuantity,
	)
	if err != nil {
		return nil, notFound(err, "variant of product", productID)
	}
	return &v, nil
}

func (s *Store) CreateVariant(ctx context.Context, v *models.Variant) (int64, error) {
	if v.MinQuantity == 0 {
		v.MinQuantity = 1
	}
	now := s.now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO product_variants (product_id, sku, stock, min_quantity, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		v.ProductID, v.SKU, v.Stock, v.MinQuantity, now, now,
	)
	if err != nil {
		return 0, err
	}
	v.ID, err = res.LastInsertId()
	return v.ID, err
}

func (s *Store) UpdateVariantSKU(ctx context.Context, variantID int64, sku string) error {
	_, err := s.db.ExecContext(ctx, "UPDATE product_variants SET sku = ?, updated_at = ? WHERE id = ?", sku, s.now(), variantID)
	return err
}

func (s *Store) UpdateVariantStock(ctx context.Context, variantID, stock int64) error {
	_, err := s.db.ExecContext(ctx, "UPDATE product_variants SET stock = ?, updated_at = ? WHERE id = ?", stock, s.now(), variantID)
	return err
}

func (s *Store) UpdateVariantMinQuantity(ctx context.Context, variantID, minQuantity int64) error {
	_, err := s.db.ExecContext(ctx, "UPDATE product_variants SET min_quantity = ?, updated_at = ? WHERE id = ?", minQuantity, s.now(), variantID)
	return err
}

// UpdateStockBySKU sets the stock of the first variant carrying sku and
// reports whether one was found.
func (s *Store) UpdateStockBySKU(ctx context.Context, sku string, stock int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE product_variants SET stock = ?, updated_at = ?
		WHERE id = (SELECT id FROM product_variants WHERE sku = ? ORDER BY id ASC LIMIT 1)`,
		stock, s.now(), sku,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// FirstPrice returns the variant's first price record.
func (s *Store) FirstPrice(ctx context.Context, variantID int64) (*models.Price, error) {
	var p models.Price
	err := s.db.QueryRowContext(ctx, `
		SELECT id, variant_id, currency_id, price, min_quantity
		FROM prices WHERE variant_id = ? ORDER BY id ASC LIMIT 1`, variantID).Scan(
		&p.ID, &p.VariantID, &p.CurrencyID, &p.Amount, &p.MinQuantity,
	)
	if err != nil {
		return nil, notFound(err, "price of variant", variantID)
	}
	return &p, nil
}

func (s *Store) CreatePrice(ctx context.Context, p *models.Price) (int64, error) {
	if p.MinQuantity == 0 {
		p.MinQuantity = 1
	}
	now := s.now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO prices (variant_id, currency_id, price, min_quantity, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.VariantID, p.CurrencyID, p.Amount, p.MinQuantity, now, now,
	)
	if err != nil {
		return 0, err
	}
	p.ID, err = res.LastInsertId()
	return p.ID, err
}

func (s *Store) UpdatePriceAmount(ctx context.Context, priceID, amount int64) error {
	_, err := s.db.ExecContext(ctx, "UPDATE prices SET price = ?, updated_at = ? WHERE id = ?", amount, s.now(), priceID)
	return err
}

func (s *Store) CurrencyByCode(ctx context.Context, code string) (*models.Currency, error) {
	var c models.Currency
	err := s.db.QueryRowContext(ctx,
		"SELECT id, code, name, decimal_places FROM currencies WHERE code = ?", code,
	).Scan(&c.ID, &c.Code, &c.Name, &c.DecimalPlaces)
	if err != nil {
		return nil, notFound(err, "currency", code)
	}
	return &c, nil
}

// ProductTypeID resolves a product type by name, or the first one when
// name is empty.
func (s *Store) ProductTypeID(ctx context.Context, name string) (int64, error) {
	var id int64
	var err error
	if name == "" {
		err = s.db.QueryRowContext(ctx, "SELECT id FROM product_types ORDER BY id ASC LIMIT 1").Scan(&id)
	} else {
		err = s.db.QueryRowContext(ctx, "SELECT id FROM product_types WHERE name = ?", name).Scan(&id)
	}
	if err != nil {
		return 0, notFound(err, "product type", name)
	}
	return id, nil
}

// FindOrCreateBrand returns the id of the brand with exactly this name.
func (s *Store) FindOrCreateBrand(ctx context.Context, name string) (int64, error) {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO brands (name, created_at) VALUES (?, ?) ON CONFLICT(name) DO NOTHING", name, s.now())
	if err != nil {
		return 0, err
	}
	var id int64
	err = s.db.QueryRowContext(ctx, "SELECT id FROM brands WHERE name = ?", name).Scan(&id)
	return id, err
}

func (s *Store) GetCollection(ctx context.Context, id int64) (*models.Collection, error) {
	var c models.Collection
	var parent sql.NullInt64
	err := s.db.QueryRowContext(ctx, "SELECT id, parent_id, name FROM collections WHERE id = ?", id).Scan(&c.ID, &parent, &c.Name)
	if err != nil {
		return nil, notFound(err, "collection", id)
	}
	if parent.Valid {
		c.ParentID = &parent.Int64
	}
	return &c, nil
}

func (s *Store) CreateCollection(ctx context.Context, name string, parentID *int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, "INSERT INTO collections (parent_id, name, created_at) VALUES (?, ?, ?)", parentID, name, s.now())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// CollectionLineage returns the collection followed by its ancestors,
// nearest first. The walk stops at the root, at the first repeated
// collection, or after maxCollectionDepth steps.
func (s *Store) CollectionLineage(ctx context.Context, id int64) ([]int64, error) {
	c, err := s.GetCollection(ctx, id)
	if err != nil {
		return nil, err
	}
	lineage := []int64{c.ID}
	seen := map[int64]bool{c.ID: true}
	parent := c.ParentID
	for depth := 0; parent != nil && depth < maxCollectionDepth; depth++ {
		if seen[*parent] {
			break
		}
		p, err := s.GetCollection(ctx, *parent)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				break
			}
			return nil, err
		}
		seen[p.ID] = true
		lineage = append(lineage, p.ID)
		parent = p.ParentID
	}
	return lineage, nil
}

// FiltersWithAncestors lists the filters defined on the collection and on
// every ancestor, nearest collection first.
func (s *Store) FiltersWithAncestors(ctx context.Context, collectionID int64) ([]models.Filter, error) {
	lineage, err := s.CollectionLineage(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	var filters []models.Filter
	for _, cid := range lineage {
		rows, err := s.db.QueryContext(ctx,
			"SELECT id, collection_id, name, type FROM filters WHERE collection_id = ? ORDER BY id ASC", cid)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var f models.Filter
			if err := rows.Scan(&f.ID, &f.CollectionID, &f.Name, &f.Type); err != nil {
				rows.Close()
				return nil, err
			}
			filters = append(filters, f)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}
	return filters, nil
}

func (s *Store) CreateFilter(ctx context.Context, collectionID int64, name string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO filters (collection_id, name, type, created_at) VALUES (?, ?, ?, ?)",
		collectionID, name, models.FilterTypeDropdown, s.now())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// NextCollectionPosition is one past the highest position used in the
// collection, or 2 for an empty collection (positions start after 1).
func (s *Store) NextCollectionPosition(ctx context.Context, collectionID int64) (int64, error) {
	var max sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		"SELECT MAX(position) FROM collection_product WHERE collection_id = ?", collectionID).Scan(&max)
	if err != nil {
		return 0, err
	}
	if !max.Valid {
		return 2, nil
	}
	return max.Int64 + 1, nil
}

func (s *Store) AttachToCollection(ctx context.Context, collectionID, productID, position int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO collection_product (collection_id, product_id, position) VALUES (?, ?, ?)
		ON CONFLICT(collection_id, product_id) DO UPDATE SET position = excluded.position`,
		collectionID, productID, position)
	return err
}

// UpsertFilterValue stores the product's value for a filter, overwriting
// any previous value. Values longer than the column are cut.
func (s *Store) UpsertFilterValue(ctx context.Context, filterID, productID int64, value string) error {
	value = truncateRunes(value, MaxFilterValueLength)
	now := s.now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO filter_product (filter_id, product_id, value, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(filter_id, product_id) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		filterID, productID, value, now, now)
	return err
}

func (s *Store) FilterValues(ctx context.Context, productID int64) ([]models.FilterValue, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, filter_id, product_id, value, updated_at
		FROM filter_product WHERE product_id = ? ORDER BY filter_id ASC`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var values []models.FilterValue
	for rows.Next() {
		var v models.FilterValue
		if err := rows.Scan(&v.ID, &v.FilterID, &v.ProductID, &v.Value, &v.UpdatedAt); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

func (s *Store) AddMedia(ctx context.Context, m *models.Media) (int64, error) {
	var thumb sql.NullString
	if m.Thumbnail != "" {
		thumb = sql.NullString{String: m.Thumbnail, Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO product_media (product_id, file_name, storage_key, thumbnail, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		m.ProductID, m.FileName, m.StorageKey, thumb, s.now())
	if err != nil {
		return 0, err
	}
	m.ID, err = res.LastInsertId()
	return m.ID, err
}

func (s *Store) ListMedia(ctx context.Context, productID int64) ([]models.Media, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, file_name, storage_key, thumbnail
		FROM product_media WHERE product_id = ? ORDER BY id ASC`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var media []models.Media
	for rows.Next() {
		var m models.Media
		var thumb sql.NullString
		if err := rows.Scan(&m.ID, &m.ProductID, &m.FileName, &m.StorageKey, &thumb); err != nil {
			return nil, err
		}
		m.Thumbnail = thumb.String
		media = append(media, m)
	}
	return media, rows.Err()
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

